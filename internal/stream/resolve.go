package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ppalone/ytsearch"

	"github.com/papaklement/klement/internal/spotify"
)

// Resolved is a live source found for a query.
type Resolved struct {
	Title string
	// URL is the canonical page URL used as cache key.
	URL       string
	StreamURL string
	Duration  time.Duration
}

type Resolver struct {
	spotify  *spotify.Client
	search   func(ctx context.Context, query string) (string, error)
	info     func(ctx context.Context, target string) (*Info, error)
	playlist func(ctx context.Context, target string) (*Playlist, error)
}

// NewResolver returns a resolver. sp may be nil, in which case Spotify links
// are rejected.
func NewResolver(sp *spotify.Client) *Resolver {
	return &Resolver{spotify: sp, search: searchYouTube, info: YtdlpGetInfo, playlist: YtdlpPlaylist}
}

// IsURL reports whether q parses as an absolute http(s) URL.
func IsURL(q string) bool {
	u, err := url.ParseRequestURI(q)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Live resolves query to a streamable source: URLs are used as is, anything
// else goes through a platform search.
func (r *Resolver) Live(ctx context.Context, query string) (*Resolved, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, errors.New("empty query")
	}

	if spotify.IsLink(q) {
		if r.spotify == nil {
			return nil, errors.New("spotify links are not enabled")
		}
		sq, err := r.spotify.TrackQuery(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("spotify: %w", err)
		}
		q = sq
	}

	target := q
	if !IsURL(q) {
		watch, err := r.search(ctx, q)
		if err != nil || watch == "" {
			target = "ytsearch1:" + q
		} else {
			target = watch
		}
	}

	info, err := r.info(ctx, target)
	if err != nil {
		return nil, err
	}
	if info.StreamURL == "" {
		return nil, errors.New("no playable stream found")
	}

	res := &Resolved{
		Title:     info.Title,
		URL:       info.WebpageURL,
		StreamURL: info.StreamURL,
		Duration:  info.Duration,
	}
	if res.URL == "" && IsURL(target) {
		res.URL = target
	}
	if res.Title == "" {
		res.Title = res.URL
	}
	return res, nil
}

func (r *Resolver) IsPlaylist(query string) bool {
	return IsPlaylistURL(strings.TrimSpace(query))
}

// Playlist lists the entries of a playlist URL.
func (r *Resolver) Playlist(ctx context.Context, query string) (*Playlist, error) {
	q := strings.TrimSpace(query)
	if !IsPlaylistURL(q) {
		return nil, fmt.Errorf("not a playlist URL: %q", q)
	}
	return r.playlist(ctx, q)
}

func searchYouTube(ctx context.Context, q string) (string, error) {
	c := ytsearch.NewClient(nil)
	res, err := c.Search(ctx, q)
	if err != nil {
		return "", err
	}
	for _, v := range res.Results {
		if v.VideoID != "" {
			return "https://www.youtube.com/watch?v=" + v.VideoID, nil
		}
	}
	return "", nil
}
