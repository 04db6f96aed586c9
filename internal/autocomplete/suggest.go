package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/papaklement/klement/internal/spotify"
	"github.com/papaklement/klement/internal/utils"
)

// MaxChoices is the most choices Discord accepts in one autocomplete
// response.
const MaxChoices = 25

// choiceLimit bounds both the name and the value of a choice.
const choiceLimit = 100

const youtubeSuggestURL = "https://suggestqueries.google.com/complete/search"

// QuerySource lists known queries starting with a prefix.
type QuerySource interface {
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

type TrackSearcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]spotify.Track, error)
}

type Suggester struct {
	cached   QuerySource
	spotify  TrackSearcher
	http     *http.Client
	endpoint string
}

// New returns a Suggester. sp may be nil.
func New(cached QuerySource, sp *spotify.Client) *Suggester {
	s := &Suggester{
		cached:   cached,
		http:     &http.Client{Timeout: 2 * time.Second},
		endpoint: youtubeSuggestURL,
	}
	if sp != nil {
		s.spotify = sp
	}
	return s
}

// YouTube returns the search suggestions YouTube offers for query.
func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube suggestions: %s", resp.Status)
	}

	// ["query", ["suggestion", ...], ...]
	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

// Choices builds the /play autocomplete list: cached queries first, then
// YouTube suggestions, then Spotify tracks. Values are unique.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	if limit <= 0 || limit > MaxChoices {
		limit = MaxChoices
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []*discordgo.ApplicationCommandOptionChoice{}
	}

	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	seen := make(map[string]struct{})
	add := func(name, value string) {
		if len(out) >= limit || len(value) > choiceLimit {
			return
		}
		if _, dup := seen[value]; dup {
			return
		}
		seen[value] = struct{}{}
		out = append(out, &discordgo.ApplicationCommandOptionChoice{
			Name:  utils.Truncate(name, choiceLimit),
			Value: value,
		})
	}

	if s.cached != nil {
		known, err := s.cached.Suggest(ctx, query, limit)
		if err != nil {
			slog.Warn("cached query suggestions failed", "err", err)
		}
		for _, k := range known {
			add("Cached: "+k, k)
		}
	}

	yt, err := s.YouTube(ctx, query)
	if err != nil {
		slog.Debug("youtube suggestions failed", "err", err)
	}
	ytMax := limit
	if s.spotify != nil {
		ytMax = limit - limit/3
	}
	for _, v := range yt {
		if len(out) >= ytMax {
			break
		}
		add("YouTube: "+v, v)
	}

	if s.spotify != nil && len(out) < limit {
		tracks, err := s.spotify.SearchTracks(ctx, query, min(limit-len(out), 10))
		if err != nil {
			slog.Debug("spotify suggestions failed", "err", err)
		}
		for _, t := range tracks {
			add("Spotify: 🎵 "+t.Query(), "spotify:track:"+t.ID.String())
		}
	}
	return out
}
