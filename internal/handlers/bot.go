package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/papaklement/klement/internal/config"
)

// VoiceEvents receives the voice state changes of the bot user.
type VoiceEvents interface {
	HandleVoiceStateUpdate(guildID, channelID string)
}

// PresenceRunner applies presence updates until its context ends.
type PresenceRunner interface {
	Run(ctx context.Context)
}

type Bot struct {
	cfg      *config.Config
	dg       *discordgo.Session
	voice    VoiceEvents
	presence PresenceRunner
	cmd      *CommandHandler
}

// NewSession creates the gateway session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	return dg, nil
}

func NewBot(cfg *config.Config, dg *discordgo.Session, voice VoiceEvents, presence PresenceRunner, cmd *CommandHandler) *Bot {
	return &Bot{cfg: cfg, dg: dg, voice: voice, presence: presence, cmd: cmd}
}

// Run connects to the gateway and serves interactions until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	dg := b.dg
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	if b.presence != nil {
		go b.presence.Run(ctx)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("connected", "user", r.User.Username, "guilds", len(r.Guilds))
	if b.cfg.BotStatus != "" {
		if err := s.UpdateGameStatus(0, b.cfg.BotStatus); err != nil {
			slog.Warn("set status", "err", err)
		}
	}

	appID := r.User.ID
	if b.cfg.RegisterCommandsOnBot {
		if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
			slog.Error("register global commands", "err", err)
		}
		return
	}

	var wg sync.WaitGroup
	for _, g := range r.Guilds {
		wg.Add(1)
		go func(guildID string) {
			defer wg.Done()
			if err := b.cmd.RegisterCommands(s, appID, guildID); err != nil {
				slog.Error("register guild commands", "guildID", guildID, "err", err)
			}
		}(g.ID)
	}
	wg.Wait()

	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
		slog.Error("clear global commands", "err", err)
	}
}

// onGuildCreate registers the commands in guilds joined after startup.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.cfg.RegisterCommandsOnBot || s.State == nil || s.State.User == nil {
		return
	}
	if err := b.cmd.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
		slog.Error("register guild commands on join", "guildID", g.ID, "err", err)
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || s.State == nil || s.State.User == nil {
		return
	}
	if vs.UserID != s.State.User.ID {
		return
	}
	b.voice.HandleVoiceStateUpdate(vs.GuildID, vs.ChannelID)
}
