package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

// Info is the subset of yt-dlp's extracted metadata the player needs.
type Info struct {
	ID         string
	Title      string
	Uploader   string
	Duration   time.Duration
	IsLive     bool
	WebpageURL string
	// StreamURL is the direct media URL for the selected audio format.
	StreamURL string
}

var installOnce sync.Once

// InstallYtdlp downloads a yt-dlp binary when none is available. Safe to call
// more than once.
func InstallYtdlp(ctx context.Context) {
	installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			slog.Warn("yt-dlp install failed", "err", err)
		}
	})
}

// YtdlpGetInfo runs yt-dlp -J for target, which may be a URL or a
// "ytsearch1:" query. For searches the first entry is returned.
func YtdlpGetInfo(ctx context.Context, target string) (*Info, error) {
	res, err := ytdlp.New().
		Format("ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best").
		NoPlaylist().
		IgnoreConfig().
		NoWarnings().
		DumpJSON().
		Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	for _, ext := range infos {
		if ext == nil {
			continue
		}
		if len(ext.Entries) > 0 {
			for _, e := range ext.Entries {
				if e != nil {
					return infoFrom(e), nil
				}
			}
			continue
		}
		return infoFrom(ext), nil
	}
	return nil, errors.New("yt-dlp returned no results")
}

func infoFrom(ext *ytdlp.ExtractedInfo) *Info {
	out := &Info{
		ID:         ext.ID,
		Title:      deref(ext.Title),
		Uploader:   deref(ext.Uploader),
		IsLive:     ext.IsLive != nil && *ext.IsLive,
		WebpageURL: deref(ext.WebpageURL),
	}
	if ext.Duration != nil {
		out.Duration = time.Duration(*ext.Duration * float64(time.Second))
	}
	out.StreamURL = audioURL(ext)
	return out
}

// audioURL picks the best playable URL: requested formats first, then the
// top-level url, then any format.
func audioURL(ext *ytdlp.ExtractedInfo) string {
	for _, rf := range ext.RequestedFormats {
		if rf != nil && strings.HasPrefix(rf.URL, "http") {
			return rf.URL
		}
	}
	if u := deref(ext.URL); strings.HasPrefix(u, "http") {
		return u
	}
	for _, f := range ext.Formats {
		if f != nil && strings.HasPrefix(f.URL, "http") {
			return f.URL
		}
	}
	return ""
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
