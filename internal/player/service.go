package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papaklement/klement/internal/cache"
	"github.com/papaklement/klement/internal/stream"
	"github.com/papaklement/klement/internal/utils"
	"github.com/papaklement/klement/internal/voice"
)

type VoiceSessions interface {
	ResolveVoiceChannel(guildID, userID string) (string, bool)
	Connect(ctx context.Context, guildID, channelID string, l voice.Listener) (*voice.Session, error)
	Get(guildID string) *voice.Session
	Leave(guildID string) error
}

type ContentCache interface {
	Lookup(ctx context.Context, query string) (*cache.Entry, error)
}

type Downloader interface {
	EnsureCachedAsync(url, query, title string, duration time.Duration)
}

type Resolver interface {
	Live(ctx context.Context, query string) (*stream.Resolved, error)
	IsPlaylist(query string) bool
	Playlist(ctx context.Context, query string) (*stream.Playlist, error)
}

type Deps struct {
	Voice      VoiceSessions
	Cache      ContentCache
	Downloads  Downloader
	Resolver   Resolver
	Scheduler  *Scheduler
	Presence   Presence
	FileSource func(path string) voice.Source
	URLSource  func(streamURL string) voice.Source
}

// Service implements the music commands on top of the voice sessions, the
// content cache and the auto-disconnect scheduler.
type Service struct {
	voice      VoiceSessions
	cache      ContentCache
	downloads  Downloader
	resolver   Resolver
	scheduler  *Scheduler
	presence   Presence
	meta       *MetadataTable
	fileSource func(path string) voice.Source
	urlSource  func(streamURL string) voice.Source
}

func NewService(d Deps) *Service {
	s := &Service{
		voice:      d.Voice,
		cache:      d.Cache,
		downloads:  d.Downloads,
		resolver:   d.Resolver,
		scheduler:  d.Scheduler,
		presence:   d.Presence,
		meta:       NewMetadataTable(),
		fileSource: d.FileSource,
		urlSource:  d.URLSource,
	}
	if s.scheduler == nil {
		s.scheduler = NewScheduler(DefaultDisconnectDelay)
	}
	if s.presence == nil {
		s.presence = nopPresence{}
	}
	if s.fileSource == nil {
		s.fileSource = func(p string) voice.Source { return stream.FileSource(p) }
	}
	if s.urlSource == nil {
		s.urlSource = func(u string) voice.Source { return stream.URLSource(u) }
	}
	return s
}

func (s *Service) Scheduler() *Scheduler    { return s.scheduler }
func (s *Service) Metadata() *MetadataTable { return s.meta }

// Play queues query in the caller's voice channel and returns the reply.
// A playlist URL queues every entry of the playlist.
func (s *Service) Play(ctx context.Context, guildID, userID, query string) (string, error) {
	channelID, ok := s.voice.ResolveVoiceChannel(guildID, userID)
	if !ok {
		slog.Debug("user not in voice", "guildID", guildID, "userID", userID)
		return MsgNotInVoice, nil
	}

	sess, err := s.voice.Connect(ctx, guildID, channelID, s)
	if err != nil {
		return "", err
	}

	req, err := s.prepare(ctx, query)
	if err != nil {
		s.armIfIdle(guildID)
		return "", err
	}
	for i, t := range req.tracks {
		s.meta.Put(t.ID, req.meta[i])
	}

	n, err := s.enqueue(ctx, guildID, channelID, sess, req.tracks)
	if err != nil {
		for _, t := range req.tracks {
			s.meta.Delete(t.ID)
		}
		s.armIfIdle(guildID)
		return "", err
	}

	title := req.meta[0].DisplayTitle()
	started := n == len(req.tracks)
	slog.Info("enqueued", "guildID", guildID, "title", title, "tracks", len(req.tracks), "position", n)
	if started {
		s.scheduler.Cancel(guildID)
		s.presence.SetPlaying(title)
	}

	switch {
	case req.playlist != "":
		return "Added to queue (playlist): " + utils.EscapeMd(req.playlist), nil
	case started:
		return "Now playing: " + utils.EscapeMd(title), nil
	}
	return "Added to queue: " + utils.EscapeMd(title), nil
}

// enqueue adds tracks to the session's queue. A session torn down while the
// request was being prepared is replaced by a fresh connection once.
func (s *Service) enqueue(ctx context.Context, guildID, channelID string, sess *voice.Session, tracks []*voice.Track) (int, error) {
	n, err := sess.Queue().Enqueue(tracks...)
	if !errors.Is(err, voice.ErrSessionClosed) {
		return n, err
	}

	slog.Info("voice session closed while queueing, reconnecting", "guildID", guildID)
	sess, err = s.voice.Connect(ctx, guildID, channelID, s)
	if err != nil {
		return 0, err
	}
	n, err = sess.Queue().Enqueue(tracks...)
	if errors.Is(err, voice.ErrSessionClosed) {
		return 0, fmt.Errorf("%w: voice session closed twice while queueing", ErrUnexpectedState)
	}
	return n, err
}

type request struct {
	tracks   []*voice.Track
	meta     []Metadata
	playlist string
}

func (r *request) add(src voice.Source, md Metadata) {
	r.tracks = append(r.tracks, voice.NewTrack(src, md.Duration))
	r.meta = append(r.meta, md)
}

// prepare turns query into tracks. Single queries are served from the cache
// when possible, otherwise resolved live and cached in the background.
func (s *Service) prepare(ctx context.Context, query string) (*request, error) {
	if s.resolver.IsPlaylist(query) {
		return s.preparePlaylist(ctx, query)
	}

	req := &request{}
	entry, err := s.cache.Lookup(ctx, query)
	if err != nil {
		slog.Warn("cache lookup failed", "query", query, "err", err)
	}
	if entry != nil {
		slog.Debug("cache hit", "query", query, "id", entry.ID)
		req.add(s.fileSource(entry.Path), Metadata{
			Title:     entry.Title,
			SourceURL: entry.SourceURL,
			Duration:  entry.Duration(),
		})
		return req, nil
	}

	res, err := s.resolver.Live(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", query, err)
	}
	if res.URL == "" {
		return nil, ErrUnknownSource
	}
	s.downloads.EnsureCachedAsync(res.URL, query, res.Title, res.Duration)

	req.add(s.urlSource(res.StreamURL), Metadata{
		Title:     res.Title,
		SourceURL: res.URL,
		Duration:  res.Duration,
	})
	return req, nil
}

// preparePlaylist queues one track per entry. Entries pick their source when
// they start playing, so the ones cached in the meantime play from disk.
func (s *Service) preparePlaylist(ctx context.Context, query string) (*request, error) {
	pl, err := s.resolver.Playlist(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("resolve playlist %q: %w", query, err)
	}

	req := &request{playlist: pl.Title}
	for _, e := range pl.Entries {
		s.downloads.EnsureCachedAsync(e.URL, e.URL, e.Title, e.Duration)
		req.add(&lazySource{svc: s, url: e.URL}, Metadata{
			Title:     e.Title,
			SourceURL: e.URL,
			Duration:  e.Duration,
			Playlist:  pl.Title,
		})
	}
	if len(req.tracks) == 0 {
		return nil, ErrUnknownSource
	}
	slog.Debug("playlist resolved", "playlist", pl.URL, "entries", len(req.tracks))
	return req, nil
}

func (s *Service) Skip(guildID string) (string, error) {
	sess := s.voice.Get(guildID)
	if sess == nil {
		return "", voice.ErrNoSession
	}
	cur, _, ok := sess.Queue().Current()
	if !ok {
		return MsgNothingToSkip, nil
	}
	title := s.title(cur)
	if err := sess.Queue().Skip(); err != nil {
		if errors.Is(err, voice.ErrQueueEmpty) {
			return MsgNothingToSkip, nil
		}
		return "", err
	}
	return "Skipping " + utils.EscapeMd(title), nil
}

// Stop leaves the voice channel. The queue is cleared by the session
// teardown.
func (s *Service) Stop(guildID string) (string, error) {
	if s.voice.Get(guildID) == nil {
		return MsgNothingToStop, nil
	}
	s.presence.Clear()
	if err := s.voice.Leave(guildID); err != nil {
		if errors.Is(err, voice.ErrNoSession) {
			return MsgNothingToStop, nil
		}
		return "", err
	}
	return MsgStopped, nil
}

func (s *Service) Queue(guildID string) (string, error) {
	sess := s.voice.Get(guildID)
	if sess == nil {
		return MsgQueueEmpty, nil
	}
	tracks, elapsed := sess.Queue().Snapshot()
	if len(tracks) == 0 {
		return MsgQueueEmpty, nil
	}

	items := make([]queueItem, 0, len(tracks))
	for _, t := range tracks {
		md, _ := s.meta.Get(t.ID)
		d := md.Duration
		if d == 0 {
			d = t.Duration
		}
		items = append(items, queueItem{Title: md.DisplayTitle(), Duration: d, Playlist: md.Playlist})
	}
	return renderQueue(items, elapsed), nil
}

func (s *Service) title(t *voice.Track) string {
	md, _ := s.meta.Get(t.ID)
	return md.DisplayTitle()
}

// armIfIdle arms the auto-disconnect for a connected guild with nothing
// queued, unless a timer is already pending.
func (s *Service) armIfIdle(guildID string) {
	sess := s.voice.Get(guildID)
	if sess == nil || !sess.Queue().IsEmpty() || s.scheduler.Armed(guildID) {
		return
	}
	s.scheduler.Arm(guildID, func() { s.leaveIfIdle(guildID) })
}

// leaveIfIdle is the auto-disconnect action.
func (s *Service) leaveIfIdle(guildID string) {
	sess := s.voice.Get(guildID)
	if sess == nil {
		return
	}
	if !sess.Queue().IsEmpty() {
		slog.Debug("auto-disconnect skipped, queue not empty", "guildID", guildID)
		return
	}
	slog.Info("leaving idle voice channel", "guildID", guildID)
	s.presence.Clear()
	if err := s.voice.Leave(guildID); err != nil && !errors.Is(err, voice.ErrNoSession) {
		slog.Warn("auto-disconnect failed", "guildID", guildID, "err", err)
	}
}

func (s *Service) TrackStart(sess *voice.Session, t *voice.Track) {
	title := s.title(t)
	slog.Info("track started", "guildID", sess.GuildID, "title", title)
	s.presence.SetPlaying(title)
}

func (s *Service) TrackEnd(sess *voice.Session, t *voice.Track, remaining int, err error) {
	s.meta.Delete(t.ID)
	if err != nil {
		slog.Error("playback failed", "guildID", sess.GuildID, "trackID", t.ID, "err", err)
	}
	if remaining > 0 || !sess.Queue().IsEmpty() {
		return
	}
	if s.voice.Get(sess.GuildID) != sess {
		// torn down or replaced
		return
	}
	s.presence.Clear()
	guildID := sess.GuildID
	s.scheduler.Arm(guildID, func() { s.leaveIfIdle(guildID) })
}

func (s *Service) Disconnected(sess *voice.Session, removed []*voice.Track) {
	for _, t := range removed {
		s.meta.Delete(t.ID)
	}
	s.scheduler.Cancel(sess.GuildID)
	s.presence.Clear()
}

var _ voice.Listener = (*Service)(nil)
