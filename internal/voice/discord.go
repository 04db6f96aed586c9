package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordTransport joins voice channels through a discordgo session.
type DiscordTransport struct {
	s *discordgo.Session
}

func NewDiscordTransport(s *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{s: s}
}

func (d *DiscordTransport) Join(ctx context.Context, guildID, channelID string) (Conn, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vc, err := d.s.ChannelVoiceJoin(guildID, channelID, false, true)
		ch <- result{vc, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &discordConn{vc: r.vc}, nil
	case <-ctx.Done():
		// a late join is cleaned up once it completes
		go func() {
			if r := <-ch; r.vc != nil {
				_ = (&discordConn{vc: r.vc}).Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// VoiceChannel reads the member's voice state from the gateway cache.
func (d *DiscordTransport) VoiceChannel(guildID, userID string) (string, bool) {
	g, err := d.s.State.Guild(guildID)
	if err != nil || g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

type discordConn struct {
	vc *discordgo.VoiceConnection
}

func (c *discordConn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	if !c.vc.Ready {
		return ""
	}
	return c.vc.ChannelID
}

func (c *discordConn) Send(ctx context.Context, pkt []byte) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	select {
	case c.vc.OpusSend <- pkt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("opus send timeout")
	}
}

func (c *discordConn) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.vc.RLock()
		ready := c.vc.Ready && c.vc.OpusSend != nil
		c.vc.RUnlock()
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("voice connection not ready")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (c *discordConn) Speaking(on bool) error {
	return c.vc.Speaking(on)
}

func (c *discordConn) Rejoin(_ context.Context, channelID string) error {
	return c.vc.ChangeChannel(channelID, false, true)
}

func (c *discordConn) Disconnect() (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice disconnect panic recovered", "guildID", c.vc.GuildID, "panic", r)
			err = fmt.Errorf("voice disconnect panic: %v", r)
		}
	}()
	_ = c.vc.Speaking(false)
	return c.vc.Disconnect()
}
