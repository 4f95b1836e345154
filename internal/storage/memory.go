package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend keeps a bounded in-memory episode history
type MemoryBackend struct {
	mu        sync.RWMutex
	records   map[string]*EpisodeRecord // ID -> record
	timeIndex []string                  // IDs sorted by FinishedAt
	maxSize   uint64                    // Maximum number of records to keep
	evicted   uint64
	closed    bool
}

// NewMemoryBackend creates a new in-memory storage backend
func NewMemoryBackend(maxSize uint64) *MemoryBackend {
	return &MemoryBackend{
		records:   make(map[string]*EpisodeRecord),
		timeIndex: make([]string, 0),
		maxSize:   maxSize,
	}
}

// Store implements Backend.Store
func (m *MemoryBackend) Store(ctx context.Context, record *EpisodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	prepareRecord(record)

	if _, exists := m.records[record.ID]; exists {
		m.deleteRecord(record.ID)
	}
	m.records[record.ID] = record
	m.insertInTimeIndex(record.ID, record.FinishedAt)

	m.evictIfNeeded()
	return nil
}

// Get implements Backend.Get
func (m *MemoryBackend) Get(ctx context.Context, id string) (*EpisodeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

// List implements Backend.List
func (m *MemoryBackend) List(ctx context.Context, limit int) ([]*EpisodeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.timeIndex)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*EpisodeRecord, 0, n)
	for i := len(m.timeIndex) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.records[m.timeIndex[i]])
	}
	return out, nil
}

// GetStats implements Backend.GetStats
func (m *MemoryBackend) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		TotalEpisodes:      uint64(len(m.records)),
		EpisodesByBehavior: make(map[string]uint64),
		Evicted:            m.evicted,
	}

	var rewardSum float64
	for _, r := range m.records {
		stats.TotalSteps += uint64(r.Steps)
		stats.EpisodesByBehavior[r.Behavior]++
		rewardSum += r.MeanReward
	}
	if len(m.records) > 0 {
		stats.MeanReward = rewardSum / float64(len(m.records))
	}

	if len(m.timeIndex) > 0 {
		oldest := m.records[m.timeIndex[0]].FinishedAt
		newest := m.records[m.timeIndex[len(m.timeIndex)-1]].FinishedAt
		stats.OldestFinishedAt = &oldest
		stats.NewestFinishedAt = &newest
	}

	return stats, nil
}

// Clear implements Backend.Clear
func (m *MemoryBackend) Clear(ctx context.Context, keepLastN uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if len(m.timeIndex) <= int(keepLastN) {
		return 0, nil
	}
	toDelete := append([]string(nil), m.timeIndex[:len(m.timeIndex)-int(keepLastN)]...)
	for _, id := range toDelete {
		m.deleteRecord(id)
	}
	return uint64(len(toDelete)), nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Reads after Close see an empty store.
	m.closed = true
	m.records = make(map[string]*EpisodeRecord)
	m.timeIndex = nil

	return nil
}

// prepareRecord fills in the ID and finish time when missing.
func prepareRecord(record *EpisodeRecord) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.FinishedAt.IsZero() {
		record.FinishedAt = time.Now()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = record.FinishedAt.Add(-record.Duration)
	}
}

// Helper methods

func (m *MemoryBackend) insertInTimeIndex(id string, finishedAt time.Time) {
	// Binary search for insertion point
	idx := sort.Search(len(m.timeIndex), func(i int) bool {
		return m.records[m.timeIndex[i]].FinishedAt.After(finishedAt)
	})

	m.timeIndex = append(m.timeIndex, "")
	copy(m.timeIndex[idx+1:], m.timeIndex[idx:])
	m.timeIndex[idx] = id
}

func (m *MemoryBackend) evictIfNeeded() {
	if m.maxSize == 0 || uint64(len(m.records)) <= m.maxSize {
		return
	}

	// Remove oldest records
	toRemove := uint64(len(m.records)) - m.maxSize
	for i := uint64(0); i < toRemove && len(m.timeIndex) > 0; i++ {
		m.deleteRecord(m.timeIndex[0])
		m.evicted++
	}
}

func (m *MemoryBackend) deleteRecord(id string) {
	if _, exists := m.records[id]; !exists {
		return
	}
	delete(m.records, id)
	m.timeIndex = removeString(m.timeIndex, id)
}

func removeString(slice []string, item string) []string {
	for i, s := range slice {
		if s == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
