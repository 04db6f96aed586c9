package player

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papaklement/klement/internal/voice"
)

// lazySource picks a source for a playlist entry when it starts playing: the
// cached file if the background download has finished, otherwise a live
// stream.
type lazySource struct {
	svc *Service
	url string
}

func (l *lazySource) Stream(ctx context.Context, send func([]byte) error) error {
	src, err := l.resolve(ctx)
	if err != nil {
		return err
	}
	return src.Stream(ctx, send)
}

func (l *lazySource) resolve(ctx context.Context) (voice.Source, error) {
	entry, err := l.svc.cache.Lookup(ctx, l.url)
	if err != nil {
		slog.Warn("cache lookup failed", "query", l.url, "err", err)
	}
	if entry != nil {
		slog.Debug("playlist entry cached", "url", l.url, "id", entry.ID)
		return l.svc.fileSource(entry.Path), nil
	}

	res, err := l.svc.resolver.Live(ctx, l.url)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", l.url, err)
	}
	if res.StreamURL == "" {
		return nil, ErrUnknownSource
	}
	return l.svc.urlSource(res.StreamURL), nil
}
