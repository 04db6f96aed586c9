package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrNoSession = errors.New("no voice session")

// Conn is a live voice connection for one guild.
type Conn interface {
	Sender
	// ChannelID is the bound channel, empty when the binding was lost.
	ChannelID() string
	Rejoin(ctx context.Context, channelID string) error
	Disconnect() error
}

type Transport interface {
	Join(ctx context.Context, guildID, channelID string) (Conn, error)
}

// ChannelResolver finds the voice channel a member is in.
type ChannelResolver interface {
	VoiceChannel(guildID, userID string) (string, bool)
}

// Listener receives the playback events of a session.
type Listener interface {
	TrackStart(s *Session, t *Track)
	TrackEnd(s *Session, t *Track, remaining int, err error)
	// Disconnected runs after the session is removed from the manager.
	Disconnected(s *Session, removed []*Track)
}

type Session struct {
	GuildID  string
	conn     Conn
	queue    *TrackQueue
	listener Listener
}

func newSession(guildID string, conn Conn, l Listener) *Session {
	s := &Session{GuildID: guildID, conn: conn, listener: l}
	s.queue = NewTrackQueue(conn)
	s.queue.OnTrackStart(func(t *Track) { l.TrackStart(s, t) })
	s.queue.OnTrackEnd(func(t *Track, remaining int, err error) { l.TrackEnd(s, t, remaining, err) })
	return s
}

func (s *Session) ChannelID() string  { return s.conn.ChannelID() }
func (s *Session) Queue() *TrackQueue { return s.queue }

type slot struct {
	mu      sync.Mutex
	session *Session
}

// Manager owns at most one Session per guild. Work on one guild is
// serialized by that guild's slot lock; guilds do not block each other.
type Manager struct {
	transport Transport
	resolver  ChannelResolver

	mu    sync.Mutex
	slots map[string]*slot
}

func NewManager(t Transport, r ChannelResolver) *Manager {
	return &Manager{transport: t, resolver: r, slots: make(map[string]*slot)}
}

func (m *Manager) slot(guildID string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[guildID]
	if !ok {
		sl = &slot{}
		m.slots[guildID] = sl
	}
	return sl
}

func (m *Manager) ResolveVoiceChannel(guildID, userID string) (string, bool) {
	if m.resolver == nil {
		return "", false
	}
	return m.resolver.VoiceChannel(guildID, userID)
}

// Connect returns the guild's session, joining channelID when there is none.
// An existing session is only moved when its channel binding was lost.
func (m *Manager) Connect(ctx context.Context, guildID, channelID string, l Listener) (*Session, error) {
	sl := m.slot(guildID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if s := sl.session; s != nil {
		if s.ChannelID() == "" {
			slog.Info("rejoining voice channel", "guildID", guildID, "channelID", channelID)
			if err := s.conn.Rejoin(ctx, channelID); err != nil {
				return nil, fmt.Errorf("rejoin voice channel: %w", err)
			}
		}
		return s, nil
	}

	conn, err := m.transport.Join(ctx, guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}
	s := newSession(guildID, conn, l)
	sl.session = s
	slog.Info("voice session created", "guildID", guildID, "channelID", channelID)
	return s, nil
}

func (m *Manager) Get(guildID string) *Session {
	sl := m.slot(guildID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.session
}

// Leave disconnects the guild's session and tears it down.
func (m *Manager) Leave(guildID string) error {
	sl := m.slot(guildID)
	sl.mu.Lock()
	s := sl.session
	if s == nil {
		sl.mu.Unlock()
		return ErrNoSession
	}
	err := s.conn.Disconnect()
	removed := m.teardownLocked(sl)
	sl.mu.Unlock()

	s.listener.Disconnected(s, removed)
	slog.Info("left voice channel", "guildID", guildID)
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// HandleVoiceStateUpdate applies a voice state change of the bot itself. An
// empty channelID means the bot is no longer in any channel.
func (m *Manager) HandleVoiceStateUpdate(guildID, channelID string) {
	if channelID != "" {
		return
	}
	sl := m.slot(guildID)
	sl.mu.Lock()
	s := sl.session
	if s == nil {
		sl.mu.Unlock()
		return
	}
	if err := s.conn.Disconnect(); err != nil {
		slog.Debug("cleanup after external disconnect", "guildID", guildID, "err", err)
	}
	removed := m.teardownLocked(sl)
	sl.mu.Unlock()

	slog.Info("voice connection closed externally", "guildID", guildID)
	s.listener.Disconnected(s, removed)
}

func (m *Manager) teardownLocked(sl *slot) []*Track {
	s := sl.session
	sl.session = nil
	return s.queue.Stop()
}
