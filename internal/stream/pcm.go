package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/papaklement/klement/internal/utils"
)

const (
	sampleRate = 48000
	channels   = 2
	// samples per channel in one 20 ms opus frame
	frameSize = 960
)

// PCMStreamer decodes one input (file path or URL) to interleaved s16le
// stereo 48 kHz PCM, readable from Stdout.
type PCMStreamer struct {
	fc       *astiav.FormatContext
	stream   *astiav.Stream
	decCtx   *astiav.CodecContext
	swr      *astiav.SoftwareResampleContext
	srcFrame *astiav.Frame
	dstFrame *astiav.Frame
	packet   *astiav.Packet

	cancel context.CancelFunc
	pr     *io.PipeReader
	pw     *io.PipeWriter
	done   chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	runErr    error
}

func StartPCMStream(ctx context.Context, input string) (*PCMStreamer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	if strings.HasPrefix(input, "http") {
		_ = dict.Set("reconnect", "1", 0)
		_ = dict.Set("reconnect_streamed", "1", 0)
		_ = dict.Set("reconnect_delay_max", "5", 0)
		_ = dict.Set("headers", utils.BuildFFmpegHeaders(nil), 0)
	}

	if err := fc.OpenInput(input, nil, dict); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open input: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	st, codec, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil || st == nil || codec == nil {
		fc.CloseInput()
		fc.Free()
		if err != nil {
			return nil, fmt.Errorf("find audio stream: %w", err)
		}
		return nil, errors.New("no audio stream found")
	}

	s := &PCMStreamer{fc: fc, stream: st, done: make(chan struct{})}
	if err := s.openDecoder(codec); err != nil {
		s.free()
		return nil, err
	}

	s.pr, s.pw = io.Pipe()
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	return s, nil
}

func (s *PCMStreamer) openDecoder(codec *astiav.Codec) error {
	s.decCtx = astiav.AllocCodecContext(codec)
	if s.decCtx == nil {
		return errors.New("alloc codec context")
	}
	if err := s.stream.CodecParameters().ToCodecContext(s.decCtx); err != nil {
		return fmt.Errorf("codec from params: %w", err)
	}
	s.decCtx.SetTimeBase(s.stream.TimeBase())
	if err := s.decCtx.Open(codec, nil); err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}

	s.swr = astiav.AllocSoftwareResampleContext()
	s.srcFrame = astiav.AllocFrame()
	s.dstFrame = astiav.AllocFrame()
	s.packet = astiav.AllocPacket()
	if s.swr == nil || s.srcFrame == nil || s.dstFrame == nil || s.packet == nil {
		return errors.New("alloc decode buffers")
	}
	return nil
}

func (s *PCMStreamer) Stdout() io.Reader { return s.pr }

// Err reports the first decode error, if any, once the stream has ended.
func (s *PCMStreamer) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.runErr
}

func (s *PCMStreamer) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.pr.Close()
	})
}

// Done is closed once decoding has stopped and native resources are freed.
func (s *PCMStreamer) Done() <-chan struct{} { return s.done }

func (s *PCMStreamer) free() {
	if s.packet != nil {
		s.packet.Free()
	}
	if s.srcFrame != nil {
		s.srcFrame.Free()
	}
	if s.dstFrame != nil {
		s.dstFrame.Free()
	}
	if s.swr != nil {
		s.swr.Free()
	}
	if s.decCtx != nil {
		s.decCtx.Free()
	}
	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
	}
}

func (s *PCMStreamer) run(ctx context.Context) {
	defer close(s.done)
	defer s.free()
	defer func() { _ = s.pw.Close() }()

	for {
		if err := ctx.Err(); err != nil {
			s.setErr(err)
			return
		}

		s.packet.Unref()
		if err := s.fc.ReadFrame(s.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				_ = s.decCtx.SendPacket(nil)
				if err := s.drain(); err != nil {
					s.setErr(err)
				}
				return
			}
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			s.setErr(fmt.Errorf("read frame: %w", err))
			return
		}
		if s.packet.StreamIndex() != s.stream.Index() {
			continue
		}

		if err := s.decCtx.SendPacket(s.packet); err != nil && !errors.Is(err, astiav.ErrEagain) {
			s.setErr(fmt.Errorf("send packet: %w", err))
			return
		}
		if err := s.drain(); err != nil {
			s.setErr(err)
			return
		}
	}
}

// drain writes every frame the decoder has ready.
func (s *PCMStreamer) drain() error {
	for {
		s.srcFrame.Unref()
		if err := s.decCtx.ReceiveFrame(s.srcFrame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		if err := s.writePCM(s.srcFrame); err != nil {
			return err
		}
	}
}

func (s *PCMStreamer) writePCM(src *astiav.Frame) error {
	s.dstFrame.Unref()
	s.dstFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	s.dstFrame.SetSampleRate(sampleRate)
	s.dstFrame.SetSampleFormat(astiav.SampleFormatS16)

	if err := s.swr.ConvertFrame(src, s.dstFrame); err != nil {
		return fmt.Errorf("swr convert: %w", err)
	}
	b, err := s.dstFrame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("pcm bytes: %w", err)
	}
	_, err = s.pw.Write(b)
	return err
}

func (s *PCMStreamer) setErr(err error) {
	if err == nil || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.Canceled) {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.runErr == nil {
		s.runErr = err
	}
}
