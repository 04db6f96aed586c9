package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	tests := map[string]bool{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": true,
		"http://example.com/a.mp3":                    true,
		"ftp://example.com/a.mp3":                     false,
		"never gonna give you up":                     false,
		"youtube.com/watch?v=x":                       false,
		"":                                            false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsURL(in), in)
	}
}

type fakeLookup struct {
	searched []string
	targets  []string
	watch    string
	err      error
	info     *Info
}

func (f *fakeLookup) resolver() *Resolver {
	return &Resolver{
		search: func(_ context.Context, q string) (string, error) {
			f.searched = append(f.searched, q)
			return f.watch, f.err
		},
		info: func(_ context.Context, target string) (*Info, error) {
			f.targets = append(f.targets, target)
			if f.info == nil {
				return nil, errors.New("not found")
			}
			return f.info, nil
		},
	}
}

func TestLiveURLSkipsSearch(t *testing.T) {
	f := &fakeLookup{info: &Info{
		Title:      "Song",
		WebpageURL: "https://www.youtube.com/watch?v=abc",
		StreamURL:  "https://rr1.googlevideo.com/x",
		Duration:   90 * time.Second,
	}}
	res, err := f.resolver().Live(context.Background(), " https://youtu.be/abc ")
	require.NoError(t, err)
	assert.Empty(t, f.searched)
	assert.Equal(t, []string{"https://youtu.be/abc"}, f.targets)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", res.URL)
	assert.Equal(t, "Song", res.Title)
	assert.Equal(t, 90*time.Second, res.Duration)
}

func TestLiveSearch(t *testing.T) {
	f := &fakeLookup{
		watch: "https://www.youtube.com/watch?v=abc",
		info:  &Info{Title: "Song", StreamURL: "https://rr1.googlevideo.com/x"},
	}
	res, err := f.resolver().Live(context.Background(), "some song")
	require.NoError(t, err)
	assert.Equal(t, []string{"some song"}, f.searched)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", res.URL)
}

func TestLiveSearchFallsBackToYtdlp(t *testing.T) {
	f := &fakeLookup{
		err:  errors.New("blocked"),
		info: &Info{Title: "Song", WebpageURL: "https://www.youtube.com/watch?v=z", StreamURL: "https://rr1/x"},
	}
	_, err := f.resolver().Live(context.Background(), "some song")
	require.NoError(t, err)
	assert.Equal(t, []string{"ytsearch1:some song"}, f.targets)
}

func TestLiveWithoutURL(t *testing.T) {
	f := &fakeLookup{info: &Info{Title: "Song", StreamURL: "https://rr1/x"}}
	res, err := f.resolver().Live(context.Background(), "some song")
	require.NoError(t, err)
	assert.Empty(t, res.URL)
}

func TestLiveErrors(t *testing.T) {
	_, err := (&fakeLookup{}).resolver().Live(context.Background(), "   ")
	assert.Error(t, err)

	_, err = (&fakeLookup{}).resolver().Live(context.Background(), "https://example.com/x")
	assert.Error(t, err)

	f := &fakeLookup{info: &Info{Title: "x"}}
	_, err = f.resolver().Live(context.Background(), "https://example.com/x")
	assert.Error(t, err)

	_, err = (&fakeLookup{}).resolver().Live(context.Background(), "https://open.spotify.com/track/abc")
	assert.Error(t, err)
}
