package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrSessionClosed is returned when enqueuing on a queue that was stopped
	// by its session's teardown.
	ErrSessionClosed = errors.New("voice session closed")
)

// Source produces opus packets for one track.
type Source interface {
	Stream(ctx context.Context, send func([]byte) error) error
}

type Track struct {
	ID     uuid.UUID
	Source Source
	// Duration is zero when unknown.
	Duration time.Duration
}

func NewTrack(src Source, d time.Duration) *Track {
	return &Track{ID: uuid.New(), Source: src, Duration: d}
}

// Sender is where a queue writes the packets of its current track.
type Sender interface {
	Send(ctx context.Context, pkt []byte) error
	Speaking(on bool) error
}

// TrackQueue is a FIFO of tracks. The head of the queue is the track being
// played; it is popped when it ends or is skipped and the next one starts.
type TrackQueue struct {
	out Sender

	mu      sync.Mutex
	tracks  []*Track
	started time.Time
	cancel  context.CancelFunc
	closed  bool

	onStart func(t *Track)
	onEnd   func(t *Track, remaining int, err error)
}

func NewTrackQueue(out Sender) *TrackQueue {
	return &TrackQueue{out: out}
}

// OnTrackStart and OnTrackEnd must be set before the first Enqueue.
func (q *TrackQueue) OnTrackStart(fn func(t *Track)) { q.onStart = fn }

func (q *TrackQueue) OnTrackEnd(fn func(t *Track, remaining int, err error)) { q.onEnd = fn }

// Enqueue appends tracks in order and returns the queue length including
// them. Playback starts when the queue was empty. A stopped queue accepts
// nothing and returns ErrSessionClosed.
func (q *TrackQueue) Enqueue(tracks ...*Track) (int, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrSessionClosed
	}
	wasEmpty := len(q.tracks) == 0
	q.tracks = append(q.tracks, tracks...)
	n := len(q.tracks)
	var start func()
	if wasEmpty && n > 0 {
		start = q.prepareLocked()
	}
	q.mu.Unlock()

	if start != nil {
		start()
	}
	return n, nil
}

// Current returns the playing track and how long it has been playing.
func (q *TrackQueue) Current() (*Track, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return nil, 0, false
	}
	return q.tracks[0], time.Since(q.started), true
}

func (q *TrackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

func (q *TrackQueue) IsEmpty() bool { return q.Len() == 0 }

// Snapshot copies the queue, current track first, together with how long the
// current track has been playing.
func (q *TrackQueue) Snapshot() ([]*Track, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return nil, 0
	}
	return slices.Clone(q.tracks), time.Since(q.started)
}

// Closed reports whether the queue was stopped.
func (q *TrackQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Skip ends the current track. The next one starts once the current
// track's stream has returned.
func (q *TrackQueue) Skip() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return ErrQueueEmpty
	}
	if q.cancel != nil {
		q.cancel()
	}
	return nil
}

// Stop clears the queue and stops playback without emitting a track end. The
// queue stays closed afterwards.
func (q *TrackQueue) Stop() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := q.tracks
	q.tracks = nil
	q.closed = true
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	return removed
}

func (q *TrackQueue) prepareLocked() func() {
	t := q.tracks[0]
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.started = time.Now()
	return func() { go q.play(ctx, t) }
}

func (q *TrackQueue) play(ctx context.Context, t *Track) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("playback panic: %v", r)
		}
		q.finish(t, err)
	}()

	if ctx.Err() != nil {
		// stopped before it started
		return
	}
	if q.onStart != nil {
		q.onStart(t)
	}
	_ = q.out.Speaking(true)
	err = t.Source.Stream(ctx, func(pkt []byte) error {
		return q.out.Send(ctx, pkt)
	})
	_ = q.out.Speaking(false)

	// skipped
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
}

func (q *TrackQueue) finish(t *Track, err error) {
	q.mu.Lock()
	if len(q.tracks) == 0 || q.tracks[0] != t {
		// stopped
		q.mu.Unlock()
		return
	}
	q.tracks[0] = nil
	q.tracks = q.tracks[1:]
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	remaining := len(q.tracks)
	var next func()
	if remaining > 0 {
		next = q.prepareLocked()
	}
	q.mu.Unlock()

	if err != nil {
		slog.Warn("track ended with error", "trackID", t.ID, "err", err)
	}
	if q.onEnd != nil {
		q.onEnd(t, remaining, err)
	}
	if next != nil {
		next()
	}
}
