package player

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metadata is what the queue shows for a track.
type Metadata struct {
	Title     string
	SourceURL string
	Duration  time.Duration
	// Playlist is the title of the playlist the track was queued from.
	Playlist string
}

func (m Metadata) DisplayTitle() string {
	switch {
	case m.Title != "":
		return m.Title
	case m.SourceURL != "":
		return m.SourceURL
	}
	return msgUnknownTitle
}

// MetadataTable maps queued tracks to their metadata.
type MetadataTable struct {
	mu sync.RWMutex
	m  map[uuid.UUID]Metadata
}

func NewMetadataTable() *MetadataTable {
	return &MetadataTable{m: make(map[uuid.UUID]Metadata)}
}

func (t *MetadataTable) Put(id uuid.UUID, md Metadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[id] = md
}

func (t *MetadataTable) Get(id uuid.UUID) (Metadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	md, ok := t.m[id]
	return md, ok
}

func (t *MetadataTable) Delete(ids ...uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		delete(t.m, id)
	}
}

func (t *MetadataTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
