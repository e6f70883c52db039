package s3fifo

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wolfeidau/cursor-cache/telemetry"
)

const (
	defaultSmallQueuePercent = 10
	maxAccessCount           = 3
	ghostFloor               = 128 // minimum ghost max entries when auto-sizing
)

// Config holds S3-FIFO eviction configuration. At least one of MaxBytes or
// MaxEntries must be positive for the policy to evict anything.
type Config struct {
	// Name labels metrics and log lines (e.g. "static", "animated").
	Name string

	// MaxBytes is the maximum total cost of cached entries. 0 = unbounded.
	MaxBytes int64

	// MaxEntries is the maximum number of cached entries. 0 = unbounded.
	MaxEntries int

	// SmallQueuePercent is the fraction of the limits reserved for the small
	// (probationary) queue. Default: 10.
	SmallQueuePercent int

	// GhostMaxEntries caps the ghost queue size.
	// 0 = auto: capped at the current main queue entry count (with a floor of ghostFloor).
	GhostMaxEntries int

	// Logger for eviction events.
	Logger *slog.Logger
}

type entry struct {
	size        int64
	accessCount int
}

// Manager implements the S3-FIFO algorithm over in-memory queues. It only
// decides; the owning cache drops the keys returned by Admit.
//
// Concurrency model: all methods acquire m.mu. Admit runs eviction inline, so
// after it returns the tracked totals are within the configured limits.
type Manager struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	small   *fifo
	main    *fifo
	ghost   *fifo
	entries map[string]*entry

	smallBytes int64
	mainBytes  int64
}

// NewManager creates an empty S3-FIFO policy.
func NewManager(cfg Config) *Manager {
	if cfg.SmallQueuePercent <= 0 {
		cfg.SmallQueuePercent = defaultSmallQueuePercent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		config:  cfg,
		logger:  cfg.Logger,
		small:   newFIFO(),
		main:    newFIFO(),
		ghost:   newFIFO(),
		entries: make(map[string]*entry),
	}
}

// Admit records a newly cached entry and returns the keys that must be dropped
// to get back within the limits. The admitted key itself may be among them
// when it alone exceeds MaxBytes.
func (m *Manager) Admit(ctx context.Context, key string, size int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-admission of a tracked key replaces its cost.
	if e, ok := m.entries[key]; ok {
		if m.small.Contains(key) {
			m.smallBytes += size - e.size
		} else {
			m.mainBytes += size - e.size
		}
		e.size = size
		return m.evictLocked(ctx)
	}

	m.entries[key] = &entry{size: size}

	if m.ghost.Remove(key) {
		m.main.PushHead(key)
		m.mainBytes += size
		telemetry.RecordS3FIFOEvent(ctx, m.config.Name, QueueMain, "ghost_hit")
	} else {
		m.small.PushHead(key)
		m.smallBytes += size
		telemetry.RecordS3FIFOEvent(ctx, m.config.Name, QueueSmall, "admission")
	}

	return m.evictLocked(ctx)
}

// Access records a cache hit for key.
func (m *Manager) Access(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && e.accessCount < maxAccessCount {
		e.accessCount++
	}
}

// Remove forgets key entirely, including any ghost record.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		if m.small.Remove(key) {
			m.smallBytes -= e.size
		}
		if m.main.Remove(key) {
			m.mainBytes -= e.size
		}
		delete(m.entries, key)
	}
	m.ghost.Remove(key)
}

// Stats is a snapshot of the policy's queues.
type Stats struct {
	SmallEntries int
	MainEntries  int
	GhostEntries int
	SmallBytes   int64
	MainBytes    int64
}

// Stats returns the current queue sizes.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		SmallEntries: m.small.Len(),
		MainEntries:  m.main.Len(),
		GhostEntries: m.ghost.Len(),
		SmallBytes:   m.smallBytes,
		MainBytes:    m.mainBytes,
	}
}

// evictLocked makes eviction decisions until the totals fit the limits: evict
// or promote from the small queue while it exceeds its share, otherwise evict
// or second-chance from the main queue. Must hold m.mu.
func (m *Manager) evictLocked(ctx context.Context) []string {
	var victims []string

	for m.overLimit() {
		if m.smallOverTarget() || m.main.Len() == 0 {
			key, evicted := m.evictFromSmall(ctx)
			if evicted {
				victims = append(victims, key)
			}
			if key != "" {
				continue
			}
		}

		key, evicted := m.evictFromMain(ctx)
		if evicted {
			victims = append(victims, key)
		}
		if key == "" {
			// Both queues empty; totals are stale. Nothing left to drop.
			m.logger.Warn("s3fifo: over limit with empty queues",
				"cache", m.config.Name,
				"small_bytes", m.smallBytes,
				"main_bytes", m.mainBytes,
			)
			m.smallBytes, m.mainBytes = 0, 0
			break
		}
	}

	if len(victims) > 0 {
		m.logger.Debug("s3fifo: evicted entries",
			"cache", m.config.Name,
			"count", len(victims),
			"small_entries", m.small.Len(),
			"main_entries", m.main.Len(),
		)
	}
	return victims
}

// evictFromSmall pops the tail of the small queue and either:
//   - Promotes to main if accessCount > 0
//   - Evicts and adds to ghost if accessCount == 0 (one-hit wonder)
//
// Returns the popped key ("" when the queue was empty) and whether it was evicted.
func (m *Manager) evictFromSmall(ctx context.Context) (string, bool) {
	key, err := m.small.PopTail()
	if err != nil {
		return "", false
	}
	e := m.entries[key]
	m.smallBytes -= e.size

	if e.accessCount > 0 {
		// Passed probation. Reset so the entry is re-evaluated from scratch in main.
		e.accessCount = 0
		m.main.PushHead(key)
		m.mainBytes += e.size
		telemetry.RecordS3FIFOEvent(ctx, m.config.Name, QueueSmall, "promotion")
		return key, false
	}

	delete(m.entries, key)
	m.ghost.PushHead(key)
	m.ghost.TrimToMaxSize(m.ghostMaxEntries())
	telemetry.RecordEviction(ctx, m.config.Name, e.size)
	return key, true
}

// evictFromMain pops the tail of the main queue and either:
//   - Reinserts with decremented accessCount if accessCount > 0 (second chance)
//   - Evicts if accessCount == 0
func (m *Manager) evictFromMain(ctx context.Context) (string, bool) {
	key, err := m.main.PopTail()
	if err != nil {
		return "", false
	}
	e := m.entries[key]

	if e.accessCount > 0 {
		e.accessCount--
		m.main.PushHead(key)
		telemetry.RecordS3FIFOEvent(ctx, m.config.Name, QueueMain, "second_chance")
		return key, false
	}

	m.mainBytes -= e.size
	delete(m.entries, key)
	telemetry.RecordEviction(ctx, m.config.Name, e.size)
	return key, true
}

func (m *Manager) overLimit() bool {
	if m.config.MaxBytes > 0 && m.smallBytes+m.mainBytes > m.config.MaxBytes {
		return true
	}
	return m.config.MaxEntries > 0 && m.small.Len()+m.main.Len() > m.config.MaxEntries
}

func (m *Manager) smallOverTarget() bool {
	if m.small.Len() == 0 {
		return false
	}
	pct := int64(m.config.SmallQueuePercent)
	if m.config.MaxBytes > 0 && m.smallBytes > m.config.MaxBytes*pct/100 {
		return true
	}
	if m.config.MaxEntries > 0 {
		target := max(1, m.config.MaxEntries*m.config.SmallQueuePercent/100)
		return m.small.Len() > target
	}
	return false
}

// ghostMaxEntries returns the effective maximum ghost queue size.
// When GhostMaxEntries is 0 (auto), it mirrors the current main queue count
// with a minimum floor.
func (m *Manager) ghostMaxEntries() int {
	if m.config.GhostMaxEntries > 0 {
		return m.config.GhostMaxEntries
	}
	if n := m.main.Len(); n > ghostFloor {
		return n
	}
	return ghostFloor
}
