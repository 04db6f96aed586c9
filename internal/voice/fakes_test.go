package voice

import (
	"context"
	"errors"
	"sync"
)

type fakeConn struct {
	mu           sync.Mutex
	channelID    string
	packets      int
	disconnected int
	rejoined     []string
}

func (c *fakeConn) Send(ctx context.Context, pkt []byte) error {
	c.mu.Lock()
	c.packets++
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeConn) Speaking(bool) error { return nil }

func (c *fakeConn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *fakeConn) Rejoin(_ context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelID = channelID
	c.rejoined = append(c.rejoined, channelID)
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected++
	c.channelID = ""
	return nil
}

func (c *fakeConn) setChannel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelID = id
}

type fakeTransport struct {
	mu    sync.Mutex
	joins int
	conns map[string]*fakeConn
	err   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(map[string]*fakeConn)}
}

func (t *fakeTransport) Join(_ context.Context, guildID, channelID string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	t.joins++
	c := &fakeConn{channelID: channelID}
	t.conns[guildID] = c
	return c, nil
}

func (t *fakeTransport) conn(guildID string) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[guildID]
}

// blockingSource sends one packet then waits for release or cancellation.
type blockingSource struct {
	release chan struct{}
	err     error
}

func newBlockingSource() *blockingSource {
	return &blockingSource{release: make(chan struct{})}
}

func (s *blockingSource) Stream(ctx context.Context, send func([]byte) error) error {
	if err := send([]byte{0xf8, 0xff, 0xfe}); err != nil {
		return err
	}
	select {
	case <-s.release:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSource) finish() { close(s.release) }

var errBroken = errors.New("broken stream")

type event struct {
	kind      string
	track     *Track
	remaining int
	err       error
	removed   []*Track
}

type recordingListener struct {
	events chan event
}

func newRecordingListener() *recordingListener {
	return &recordingListener{events: make(chan event, 64)}
}

func (l *recordingListener) TrackStart(_ *Session, t *Track) {
	l.events <- event{kind: "start", track: t}
}

func (l *recordingListener) TrackEnd(_ *Session, t *Track, remaining int, err error) {
	l.events <- event{kind: "end", track: t, remaining: remaining, err: err}
}

func (l *recordingListener) Disconnected(_ *Session, removed []*Track) {
	l.events <- event{kind: "disconnected", removed: removed}
}
