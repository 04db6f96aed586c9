package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeMd(t *testing.T) {
	assert.Equal(t, `a\*b\_c\~d\`+"`"+`e`, EscapeMd("a*b_c~d`e"))
	assert.Equal(t, "plain", EscapeMd("plain"))
}

func TestPrettyTime(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{61, "1:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrettyTime(tt.sec), "sec=%d", tt.sec)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "héll…", Truncate("héllo wörld", 5))
}

func TestBuildFFmpegHeadersDefaults(t *testing.T) {
	got := BuildFFmpegHeaders(nil)

	assert.Contains(t, got, "Referer: https://www.youtube.com/\r\n")
	assert.Contains(t, got, "User-Agent: Mozilla/5.0")
	assert.True(t, strings.HasSuffix(got, "\r\n"))

	lines := strings.Split(strings.TrimSuffix(got, "\r\n"), "\r\n")
	assert.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "Accept: "))
}

func TestBuildFFmpegHeadersOverrides(t *testing.T) {
	got := BuildFFmpegHeaders(map[string]string{
		"user-agent": " custom ",
		"cookie":     "a=b",
	})

	assert.Contains(t, got, "User-Agent: custom\r\n")
	assert.Contains(t, got, "Cookie: a=b\r\n")
	assert.Equal(t, 1, strings.Count(got, "User-Agent:"))
}
