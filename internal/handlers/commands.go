package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	playTimeout    = 45 * time.Second
	commandTimeout = 10 * time.Second

	msgGuildOnly = "This command only works in a server"
)

// Music is the command surface of the player.
type Music interface {
	Play(ctx context.Context, guildID, userID, query string) (string, error)
	Skip(guildID string) (string, error)
	Stop(guildID string) (string, error)
	Queue(guildID string) (string, error)
}

type Suggestions interface {
	Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice
}

type CommandHandler struct {
	music   Music
	suggest Suggestions
}

// NewCommandHandler returns a handler for the music commands. suggest may be
// nil, which disables /play autocompletion.
func NewCommandHandler(music Music, suggest Suggestions) *CommandHandler {
	return &CommandHandler{music: music, suggest: suggest}
}

func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song from a URL or a search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:         "query",
					Description:  "query or URL",
					Type:         discordgo.ApplicationCommandOptionString,
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "stop", Description: "Stop playback and leave the voice channel"},
		{Name: "queue", Description: "Show the current queue"},
	}
}

// RegisterCommands replaces the application's commands in guildID, or the
// global commands when guildID is empty.
func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	cmds := Commands()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	slog.Info("registered commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "play" {
		return
	}
	choices := []*discordgo.ApplicationCommandOptionChoice{}
	if h.suggest != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
		choices = h.suggest.Choices(ctx, focusedValue(data.Options), 0)
		cancel()
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	cmd := command{
		name:    data.Name,
		guildID: i.GuildID,
		userID:  userIDOf(i),
		query:   stringOption(data.Options, "query"),
	}

	// play resolves media before it can answer
	if cmd.name == "play" {
		h.deferReply(s, i, false)
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()
		h.editReply(s, i, h.run(ctx, cmd))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	h.reply(s, i, h.run(ctx, cmd), false)
}

type command struct {
	name    string
	guildID string
	userID  string
	query   string
}

// run executes cmd and returns the reply text. Errors and panics become an
// "Error: ..." reply.
func (h *CommandHandler) run(ctx context.Context, cmd command) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("command panic", "command", cmd.name, "guildID", cmd.guildID, "panic", r)
			out = errorReply(errors.New("internal error"))
		}
	}()

	if cmd.guildID == "" {
		return msgGuildOnly
	}

	var err error
	switch cmd.name {
	case "play":
		slog.Info("cmd play", "guildID", cmd.guildID, "userID", cmd.userID, "query", cmd.query)
		if strings.TrimSpace(cmd.query) == "" {
			return errorReply(errors.New("missing query"))
		}
		out, err = h.music.Play(ctx, cmd.guildID, cmd.userID, cmd.query)
	case "skip":
		slog.Info("cmd skip", "guildID", cmd.guildID, "userID", cmd.userID)
		out, err = h.music.Skip(cmd.guildID)
	case "stop":
		slog.Info("cmd stop", "guildID", cmd.guildID, "userID", cmd.userID)
		out, err = h.music.Stop(cmd.guildID)
	case "queue":
		out, err = h.music.Queue(cmd.guildID)
	default:
		slog.Debug("unknown command", "name", cmd.name, "guildID", cmd.guildID)
		return errorReply(fmt.Errorf("unknown command %q", cmd.name))
	}
	if err != nil {
		slog.Warn("command failed", "command", cmd.name, "guildID", cmd.guildID, "err", err)
		return errorReply(err)
	}
	return out
}

func errorReply(err error) string {
	return "Error: " + err.Error()
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

func focusedValue(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, o := range opts {
		if o.Focused && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return stringOption(opts, "query")
}

func userIDOf(i *discordgo.InteractionCreate) string {
	switch {
	case i == nil:
		return ""
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}
