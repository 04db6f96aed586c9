package spotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		typ     string
		id      string
		wantErr bool
	}{
		{in: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", typ: "track", id: "4uLU6hMCjMI75M1A2tKUQC"},
		{in: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc", typ: "track", id: "4uLU6hMCjMI75M1A2tKUQC"},
		{in: "https://open.spotify.com/intl-de/track/abc", typ: "track", id: "abc"},
		{in: "https://open.spotify.com/album/xyz", typ: "album", id: "xyz"},
		{in: "https://open.spotify.com/show/xyz", wantErr: true},
		{in: "https://www.youtube.com/watch?v=abc", wantErr: true},
		{in: "spotify:track", wantErr: true},
		{in: "never gonna give you up", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, id, err := ParseID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, IsLink(tt.in))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.id, id.String())
			assert.True(t, IsLink(tt.in))
		})
	}
}

func TestTrackQuery(t *testing.T) {
	assert.Equal(t, "Rick Astley - Never Gonna Give You Up", Track{Name: "Never Gonna Give You Up", Artist: "Rick Astley"}.Query())
	assert.Equal(t, "Intro", Track{Name: "Intro"}.Query())
}
