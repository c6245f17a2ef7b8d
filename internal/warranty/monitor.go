package warranty

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultInterval is how often Run re-evaluates every tracked window.
const DefaultInterval = time.Minute

// Clock returns the current instant. Tests substitute a fixed clock.
type Clock func() time.Time

// cacheKey identifies a memoized snapshot. A snapshot is reused only while the
// window and the minute bucket of the clock are unchanged.
type cacheKey struct {
	start  int64
	months int
	bucket int64
}

type entry struct {
	window Window
	key    cacheKey
	cached Snapshot
	valid  bool
	last   Status
}

// Monitor re-evaluates a set of warranty windows on a fixed interval and
// logs status transitions. Snapshots are memoized per minute.
type Monitor struct {
	logger   *slog.Logger
	now      Clock
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewMonitor returns a Monitor using now as its clock. A nil logger uses
// slog.Default and a non-positive interval uses DefaultInterval.
func NewMonitor(logger *slog.Logger, now Clock, interval time.Duration) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		logger:   logger,
		now:      now,
		interval: interval,
		entries:  make(map[string]*entry),
	}
}

// Track registers w under id, replacing any previous window for id.
func (m *Monitor) Track(id string, w Window) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &entry{window: w}
}

// Invalidate drops every memoized snapshot.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.valid = false
	}
}

// Snapshot returns the current state of the window tracked under id.
func (m *Monitor) Snapshot(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return m.snapshotLocked(e, m.now()), true
}

// Snapshots returns the current state of every tracked window keyed by id.
func (m *Monitor) Snapshots() map[string]Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make(map[string]Snapshot, len(m.entries))
	for id, e := range m.entries {
		out[id] = m.snapshotLocked(e, now)
	}
	return out
}

func (m *Monitor) snapshotLocked(e *entry, now time.Time) Snapshot {
	key := cacheKey{
		start:  e.window.Start().UnixNano(),
		months: e.window.Months(),
		bucket: now.Truncate(time.Minute).Unix(),
	}
	if e.valid && e.key == key {
		return e.cached
	}
	e.cached = e.window.Evaluate(now)
	e.key = key
	e.valid = true
	return e.cached
}

// Run evaluates every window immediately and then once per interval until
// ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.refresh(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Monitor) refresh(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := m.entries[id]
		snap := m.snapshotLocked(e, now)
		if e.last == snap.Status {
			continue
		}
		if e.last != "" {
			m.logger.LogAttrs(ctx, slog.LevelInfo, "warranty status changed",
				slog.String("service_id", id),
				slog.String("from", string(e.last)),
				slog.String("to", string(snap.Status)),
				slog.Int("days_remaining", snap.DaysRemaining),
			)
		}
		e.last = snap.Status
	}
}
