package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// Presence is the bot's "playing" activity.
type Presence interface {
	SetPlaying(title string)
	Clear()
}

type nopPresence struct{}

func (nopPresence) SetPlaying(string) {}
func (nopPresence) Clear()            {}

// DiscordPresence coalesces activity changes and applies the latest one at a
// rate the gateway accepts.
type DiscordPresence struct {
	s       *discordgo.Session
	idle    string
	limiter *rate.Limiter

	mu   sync.Mutex
	want string
	kick chan struct{}
}

func NewDiscordPresence(s *discordgo.Session, idle string) *DiscordPresence {
	return &DiscordPresence{
		s:       s,
		idle:    idle,
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 2),
		want:    idle,
		kick:    make(chan struct{}, 1),
	}
}

func (p *DiscordPresence) SetPlaying(title string) { p.set(title) }

func (p *DiscordPresence) Clear() { p.set(p.idle) }

func (p *DiscordPresence) set(status string) {
	p.mu.Lock()
	p.want = status
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run applies queued updates until ctx is done.
func (p *DiscordPresence) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		p.mu.Lock()
		status := p.want
		p.mu.Unlock()

		if err := p.s.UpdateGameStatus(0, status); err != nil {
			slog.Warn("update presence failed", "err", err)
		}
	}
}
