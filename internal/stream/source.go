package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// Source is a playable input: a cached file or a live stream URL.
type Source struct {
	input string
	live  bool
}

func FileSource(path string) *Source { return &Source{input: path} }

func URLSource(streamURL string) *Source { return &Source{input: streamURL, live: true} }

// Stream decodes the input and hands each opus packet to send. It returns
// when the input ends, send fails, or ctx is cancelled.
func (s *Source) Stream(ctx context.Context, send func([]byte) error) error {
	pcm, err := StartPCMStream(ctx, s.input)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.describe(), err)
	}
	defer pcm.Close()

	enc, err := NewEncoder()
	if err != nil {
		return err
	}
	defer enc.Close()

	buf := make([]byte, enc.FrameBytes())
	r := bufio.NewReaderSize(pcm.Stdout(), 64*1024)
	for {
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			clear(buf[n:])
			if err := enc.EncodeFrame(buf, send); err != nil {
				return err
			}
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read pcm: %w", err)
		}
		if err := enc.EncodeFrame(buf, send); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := enc.Flush(send); err != nil {
		return err
	}
	return pcm.Err()
}

func (s *Source) describe() string {
	if s.live {
		return "stream"
	}
	return "cached file"
}
