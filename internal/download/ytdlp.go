package download

import (
	"context"
	"fmt"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

const audioFormat = "webm[abr>0]/bestaudio/best"

// YtdlpFetcher downloads with the yt-dlp binary.
type YtdlpFetcher struct{}

func (YtdlpFetcher) Fetch(ctx context.Context, url, dest string) error {
	_, err := ytdlp.New().
		Format(audioFormat).
		NoPlaylist().
		IgnoreConfig().
		NoWarnings().
		Output(dest).
		Run(ctx, url)
	if err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}
