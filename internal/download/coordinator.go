package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/papaklement/klement/internal/cache"
)

var ErrAlreadyInFlight = errors.New("download already in flight")

// MaxBackgroundDownloads bounds how many EnsureCachedAsync downloads run at
// once. A queued playlist starts one per entry.
const MaxBackgroundDownloads = 3

// Fetcher writes the media at url to dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// Cache is the part of the content cache the coordinator writes to.
type Cache interface {
	IsCached(ctx context.Context, url string) (bool, error)
	LinkQuery(ctx context.Context, url, query string) error
	Commit(ctx context.Context, url, query, title string, duration time.Duration) error
	PathFor(hash string) string
}

type Coordinator struct {
	cache    Cache
	fetcher  Fetcher
	inflight *InFlightSet
	slots    *semaphore.Weighted

	// background downloads run under ctx and are tracked by wg
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(c Cache, f Fetcher) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cache:    c,
		fetcher:  f,
		inflight: NewInFlightSet(),
		slots:    semaphore.NewWeighted(MaxBackgroundDownloads),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Coordinator) InFlight() *InFlightSet { return c.inflight }

// EnsureCached downloads url into the cache unless it is already there, in
// which case query is linked to the existing record. A concurrent call for
// the same url fails with ErrAlreadyInFlight instead of waiting.
func (c *Coordinator) EnsureCached(ctx context.Context, url, query, title string, duration time.Duration) error {
	cached, err := c.cache.IsCached(ctx, url)
	if err != nil {
		return fmt.Errorf("check cache: %w", err)
	}
	if cached {
		return c.cache.LinkQuery(ctx, url, query)
	}

	hash := cache.HashKey(url)
	if !c.inflight.TryAdd(hash) {
		return ErrAlreadyInFlight
	}

	slog.Debug("downloading", "url", url, "hash", hash)
	started := time.Now()
	fetchErr := c.fetcher.Fetch(ctx, url, c.cache.PathFor(hash))
	owned := c.inflight.Remove(hash)

	if fetchErr != nil {
		return fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if !owned {
		slog.Warn("download slot was released by another caller", "hash", hash)
		return nil
	}
	if err := c.cache.Commit(ctx, url, query, title, duration); err != nil {
		return err
	}
	slog.Info("cached", "url", url, "hash", hash, "took", time.Since(started).Round(time.Millisecond))
	return nil
}

// EnsureCachedAsync runs EnsureCached detached from the caller, waiting for
// one of MaxBackgroundDownloads slots first. Failures are only logged. Close
// cancels and waits for these downloads.
func (c *Coordinator) EnsureCachedAsync(url, query, title string, duration time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("download panic", "url", url, "panic", r)
			}
		}()
		if err := c.slots.Acquire(c.ctx, 1); err != nil {
			slog.Debug("background download cancelled before start", "url", url)
			return
		}
		defer c.slots.Release(1)

		err := c.EnsureCached(c.ctx, url, query, title, duration)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			slog.Debug("background download cancelled", "url", url)
		case errors.Is(err, ErrAlreadyInFlight):
			slog.Warn("download skipped", "url", url, "err", err)
		default:
			slog.Error("background download failed", "url", url, "err", err)
		}
	}()
}

// Close cancels running background downloads and waits for them to return or
// for ctx to expire.
func (c *Coordinator) Close(ctx context.Context) error {
	c.cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
