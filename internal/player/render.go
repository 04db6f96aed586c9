package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/papaklement/klement/internal/utils"
)

// MaxMessageLength is Discord's message content limit.
const MaxMessageLength = 2000

type queueItem struct {
	Title    string
	Duration time.Duration
	Playlist string
}

// renderQueue lists the playing track with its progress, then every queued
// track with the time until it starts. A track of unknown length makes all
// later start times unknown. Consecutive tracks of one playlist are listed
// under its title.
func renderQueue(items []queueItem, elapsed time.Duration) string {
	if len(items) == 0 {
		return MsgQueueEmpty
	}

	elapsed = elapsed.Truncate(time.Second)
	cur := items[0]
	total := "unknown"
	known := false
	var eta time.Duration
	if cur.Duration > 0 {
		total = formatDuration(cur.Duration)
		eta = max(cur.Duration-elapsed, 0)
		known = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Currently playing:** %s **⏐⏐ %s / %s ⏐⏐**\n\n",
		utils.EscapeMd(cur.Title), formatDuration(elapsed), total)

	lastPlaylist := ""
	for i, it := range items[1:] {
		start := "unknown"
		if known {
			start = formatDuration(eta)
		}
		if it.Playlist != "" {
			if it.Playlist != lastPlaylist {
				fmt.Fprintf(&b, "**%s**\n", utils.EscapeMd(it.Playlist))
			}
			b.WriteString("> ")
		}
		lastPlaylist = it.Playlist
		fmt.Fprintf(&b, "**%d. ⏐⏐ %s ⏐⏐** %s\n", i+1, start, utils.EscapeMd(it.Title))

		if it.Duration <= 0 {
			known = false
		} else {
			eta += it.Duration
		}
	}
	return truncateMessage(b.String())
}

func truncateMessage(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageLength {
		return s
	}
	marker := []rune(msgQueueTruncated)
	out := string(r[:MaxMessageLength-len(marker)-1])
	out = strings.TrimSuffix(out, "\n")
	return out + msgQueueTruncated
}

func formatDuration(d time.Duration) string {
	return utils.PrettyTime(int(d / time.Second))
}
