package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

// MaxPlaylistEntries caps how many tracks one playlist adds.
const MaxPlaylistEntries = 100

// Playlist is a flat listing: entries carry a page URL, title and duration
// but no stream URL, which is looked up when the entry is played.
type Playlist struct {
	Title   string
	URL     string
	Entries []*Resolved
}

// IsPlaylistURL reports whether q is a URL naming a playlist. A watch URL
// inside a playlist counts as the playlist; radio mixes ("RD" lists) are
// generated per viewer and are played as the single video instead.
func IsPlaylistURL(q string) bool {
	if !IsURL(q) {
		return false
	}
	u, err := url.Parse(q)
	if err != nil {
		return false
	}
	list := u.Query().Get("list")
	if list == "" || strings.HasPrefix(list, "RD") {
		return false
	}
	return true
}

// YtdlpPlaylist lists the entries of a playlist URL without resolving each
// entry.
func YtdlpPlaylist(ctx context.Context, target string) (*Playlist, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		IgnoreConfig().
		NoWarnings().
		DumpJSON().
		Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp playlist %s: %w", target, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp playlist json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("yt-dlp returned no playlist for %s", target)
	}
	return playlistFrom(infos[0], target)
}

func playlistFrom(ext *ytdlp.ExtractedInfo, target string) (*Playlist, error) {
	pl := &Playlist{
		Title: deref(ext.Title),
		URL:   deref(ext.WebpageURL),
	}
	if pl.URL == "" {
		pl.URL = target
	}
	if pl.Title == "" {
		pl.Title = pl.URL
	}

	for i, e := range ext.Entries {
		if e == nil {
			continue
		}
		page := entryURL(e)
		if page == "" {
			slog.Debug("playlist entry without url", "playlist", pl.URL, "index", i)
			continue
		}
		if len(pl.Entries) == MaxPlaylistEntries {
			slog.Info("playlist truncated", "playlist", pl.URL, "entries", len(ext.Entries), "kept", MaxPlaylistEntries)
			break
		}
		r := &Resolved{Title: deref(e.Title), URL: page}
		if e.Duration != nil {
			r.Duration = time.Duration(*e.Duration * float64(time.Second))
		}
		if r.Title == "" {
			r.Title = page
		}
		pl.Entries = append(pl.Entries, r)
	}
	if len(pl.Entries) == 0 {
		return nil, errors.New("playlist has no playable entries")
	}
	return pl, nil
}

// entryURL is the page URL of a flat playlist entry. YouTube flat entries
// may only carry the video id.
func entryURL(e *ytdlp.ExtractedInfo) string {
	if u := deref(e.WebpageURL); IsURL(u) {
		return u
	}
	if u := deref(e.URL); IsURL(u) {
		return u
	}
	if e.ID != "" {
		return "https://www.youtube.com/watch?v=" + e.ID
	}
	return ""
}
