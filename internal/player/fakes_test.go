package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/papaklement/klement/internal/cache"
	"github.com/papaklement/klement/internal/repository"
	"github.com/papaklement/klement/internal/stream"
	"github.com/papaklement/klement/internal/voice"
)

type fakeConn struct {
	mu           sync.Mutex
	channelID    string
	disconnected int
}

func (c *fakeConn) Send(ctx context.Context, _ []byte) error { return ctx.Err() }
func (c *fakeConn) Speaking(bool) error                      { return nil }

func (c *fakeConn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *fakeConn) Rejoin(_ context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelID = channelID
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected++
	c.channelID = ""
	return nil
}

func (c *fakeConn) disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type fakeTransport struct {
	mu    sync.Mutex
	joins int
	conns map[string]*fakeConn
	err   error
}

func (t *fakeTransport) Join(_ context.Context, guildID, channelID string) (voice.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	t.joins++
	c := &fakeConn{channelID: channelID}
	t.conns[guildID] = c
	return c, nil
}

func (t *fakeTransport) conn(guildID string) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[guildID]
}

func (t *fakeTransport) joinCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joins
}

// channels maps guildID/userID to a voice channel.
type channels map[string]string

func (c channels) VoiceChannel(guildID, userID string) (string, bool) {
	id, ok := c[guildID+"/"+userID]
	return id, ok
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry

	// when set, Lookup signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (c *fakeCache) Lookup(ctx context.Context, q string) (*cache.Entry, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[q], nil
}

func (c *fakeCache) put(query, url, title string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = &cache.Entry{
		CacheRecord: repository.CacheRecord{
			ID:              cache.HashKey(url),
			SourceURL:       url,
			Title:           title,
			DurationSeconds: int(d / time.Second),
			PossibleQueries: []string{query},
		},
		Path: "/cache/" + cache.HashKey(url),
	}
}

type fakeResolver struct {
	mu        sync.Mutex
	results   map[string]*stream.Resolved
	playlists map[string]*stream.Playlist
	calls     []string
}

var errNoResults = errors.New("no results")

func (r *fakeResolver) Live(_ context.Context, q string) (*stream.Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, q)
	res, ok := r.results[q]
	if !ok {
		return nil, errNoResults
	}
	return res, nil
}

func (r *fakeResolver) IsPlaylist(q string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.playlists[q]
	return ok
}

func (r *fakeResolver) Playlist(_ context.Context, q string) (*stream.Playlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, q)
	pl := r.playlists[q]
	if pl == nil || len(pl.Entries) == 0 {
		return nil, errNoResults
	}
	return pl, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type download struct {
	url, query, title string
	duration          time.Duration
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []download
}

func (d *fakeDownloader) EnsureCachedAsync(url, query, title string, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, download{url, query, title, duration})
}

func (d *fakeDownloader) downloads() []download {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]download(nil), d.calls...)
}

type fakePresence struct {
	mu     sync.Mutex
	status string
}

func (p *fakePresence) SetPlaying(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = title
}

func (p *fakePresence) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = ""
}

func (p *fakePresence) get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// fakeSource plays until released or cancelled.
type fakeSource struct {
	input   string
	release chan struct{}
}

func newFakeSource(input string) *fakeSource {
	return &fakeSource{input: input, release: make(chan struct{})}
}

func (s *fakeSource) Stream(ctx context.Context, send func([]byte) error) error {
	if err := send([]byte{0xf8, 0xff, 0xfe}); err != nil {
		return err
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sources struct {
	mu    sync.Mutex
	files []*fakeSource
	urls  []*fakeSource
}

func (s *sources) file(p string) voice.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := newFakeSource(p)
	s.files = append(s.files, src)
	return src
}

func (s *sources) fileAt(i int) *fakeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.files) {
		return nil
	}
	return s.files[i]
}

func (s *sources) urlAt(i int) *fakeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.urls) {
		return nil
	}
	return s.urls[i]
}

func (s *sources) url(u string) voice.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := newFakeSource(u)
	s.urls = append(s.urls, src)
	return src
}

type harness struct {
	svc       *Service
	manager   *voice.Manager
	transport *fakeTransport
	cache     *fakeCache
	resolver  *fakeResolver
	downloads *fakeDownloader
	presence  *fakePresence
	sources   *sources
	scheduler *Scheduler
}

func newHarness(delay time.Duration) *harness {
	h := &harness{
		transport: &fakeTransport{conns: make(map[string]*fakeConn)},
		cache:     &fakeCache{entries: make(map[string]*cache.Entry)},
		resolver: &fakeResolver{
			results:   make(map[string]*stream.Resolved),
			playlists: make(map[string]*stream.Playlist),
		},
		downloads: &fakeDownloader{},
		presence:  &fakePresence{},
		sources:   &sources{},
		scheduler: NewScheduler(delay),
	}
	h.manager = voice.NewManager(h.transport, channels{
		"g1/u1": "vc1",
		"g2/u2": "vc2",
	})
	h.svc = NewService(Deps{
		Voice:      h.manager,
		Cache:      h.cache,
		Downloads:  h.downloads,
		Resolver:   h.resolver,
		Scheduler:  h.scheduler,
		Presence:   h.presence,
		FileSource: h.sources.file,
		URLSource:  h.sources.url,
	})
	return h
}

func (h *harness) live(query, url, title string, d time.Duration) {
	h.resolver.results[query] = &stream.Resolved{
		Title:     title,
		URL:       url,
		StreamURL: url + "#stream",
		Duration:  d,
	}
}

func (h *harness) playlist(url, title string, entries ...*stream.Resolved) {
	h.resolver.playlists[url] = &stream.Playlist{Title: title, URL: url, Entries: entries}
}
