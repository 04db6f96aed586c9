package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, l *recordingListener) event {
	t.Helper()
	select {
	case e := <-l.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event{}
	}
}

func noEvent(t *testing.T, l *recordingListener) {
	t.Helper()
	select {
	case e := <-l.events:
		t.Fatalf("unexpected %s event", e.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestSession(l *recordingListener) (*Session, *fakeConn) {
	c := &fakeConn{channelID: "vc"}
	return newSession("g1", c, l), c
}

func TestEnqueueStartsOnlyFirst(t *testing.T) {
	l := newRecordingListener()
	s, _ := newTestSession(l)
	q := s.Queue()

	a, b := newBlockingSource(), newBlockingSource()
	ta, tb := NewTrack(a, time.Minute), NewTrack(b, 0)
	n, err := q.Enqueue(ta)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = q.Enqueue(tb)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e := nextEvent(t, l)
	assert.Equal(t, "start", e.kind)
	assert.Same(t, ta, e.track)

	cur, _, ok := q.Current()
	require.True(t, ok)
	assert.Same(t, ta, cur)
	tracks, _ := q.Snapshot()
	assert.Equal(t, []*Track{ta, tb}, tracks)

	a.finish()
	e = nextEvent(t, l)
	assert.Equal(t, "end", e.kind)
	assert.Same(t, ta, e.track)
	assert.Equal(t, 1, e.remaining)
	assert.NoError(t, e.err)

	e = nextEvent(t, l)
	assert.Equal(t, "start", e.kind)
	assert.Same(t, tb, e.track)

	b.finish()
	e = nextEvent(t, l)
	assert.Equal(t, "end", e.kind)
	assert.Equal(t, 0, e.remaining)
	assert.Zero(t, q.Len())
}

func TestSkip(t *testing.T) {
	l := newRecordingListener()
	s, _ := newTestSession(l)
	q := s.Queue()

	assert.ErrorIs(t, q.Skip(), ErrQueueEmpty)

	ta, tb := NewTrack(newBlockingSource(), 0), NewTrack(newBlockingSource(), 0)
	q.Enqueue(ta)
	q.Enqueue(tb)
	nextEvent(t, l)

	require.NoError(t, q.Skip())
	e := nextEvent(t, l)
	assert.Equal(t, "end", e.kind)
	assert.Same(t, ta, e.track)
	assert.NoError(t, e.err, "a skip is not a playback error")

	e = nextEvent(t, l)
	assert.Equal(t, "start", e.kind)
	assert.Same(t, tb, e.track)
	assert.Equal(t, 1, q.Len())
}

func TestTrackErrorReported(t *testing.T) {
	l := newRecordingListener()
	s, _ := newTestSession(l)
	src := newBlockingSource()
	src.err = errBroken

	s.Queue().Enqueue(NewTrack(src, 0))
	nextEvent(t, l)
	src.finish()

	e := nextEvent(t, l)
	assert.Equal(t, "end", e.kind)
	assert.ErrorIs(t, e.err, errBroken)
}

func TestStopEmitsNoTrackEnd(t *testing.T) {
	l := newRecordingListener()
	s, _ := newTestSession(l)
	q := s.Queue()

	ta, tb := NewTrack(newBlockingSource(), 0), NewTrack(newBlockingSource(), 0)
	q.Enqueue(ta)
	q.Enqueue(tb)
	nextEvent(t, l)

	removed := q.Stop()
	assert.Equal(t, []*Track{ta, tb}, removed)
	assert.Zero(t, q.Len())
	noEvent(t, l)

	_, _, ok := q.Current()
	assert.False(t, ok)
}

func TestCurrentElapsed(t *testing.T) {
	l := newRecordingListener()
	s, _ := newTestSession(l)
	q := s.Queue()

	q.Enqueue(NewTrack(newBlockingSource(), time.Minute))
	nextEvent(t, l)
	time.Sleep(20 * time.Millisecond)

	_, elapsed, ok := q.Current()
	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	q.Stop()
}

func TestEnqueueManyStartsFirstOnly(t *testing.T) {
	l := newRecordingListener()
	s, _ := newTestSession(l)
	q := s.Queue()

	ta, tb, tc := NewTrack(newBlockingSource(), 0), NewTrack(newBlockingSource(), 0), NewTrack(newBlockingSource(), 0)
	n, err := q.Enqueue(ta, tb, tc)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	e := nextEvent(t, l)
	assert.Equal(t, "start", e.kind)
	assert.Same(t, ta, e.track)
	noEvent(t, l)
	q.Stop()
}

func TestEnqueueAfterStopIsRejected(t *testing.T) {
	l := newRecordingListener()
	s, c := newTestSession(l)
	q := s.Queue()

	q.Stop()
	assert.True(t, q.Closed())

	n, err := q.Enqueue(NewTrack(newBlockingSource(), 0))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Zero(t, n)
	assert.Zero(t, q.Len())
	noEvent(t, l)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Zero(t, c.packets)
}

func TestSnapshotElapsedMatchesHead(t *testing.T) {
	l := newRecordingListener()
	s, _ := newTestSession(l)
	q := s.Queue()

	tracks, elapsed := q.Snapshot()
	assert.Empty(t, tracks)
	assert.Zero(t, elapsed)

	ta := NewTrack(newBlockingSource(), time.Minute)
	q.Enqueue(ta)
	nextEvent(t, l)
	time.Sleep(10 * time.Millisecond)

	tracks, elapsed = q.Snapshot()
	require.Len(t, tracks, 1)
	assert.Same(t, ta, tracks[0])
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	q.Stop()
}
