package store

import (
	"sync"
	"time"
)

// subscriberBuffer is the channel buffer of each subscription.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Rows are kept in render order with an index by ID. Rows with an empty ID
// are dropped and only the first row for a given ID is kept.
//
// Subscribers receive events via buffered channels (buffer size 100). Events
// are sent non-blocking; if a subscriber's buffer is full, the event is
// dropped for that subscriber to prevent blocking the poll loop.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  []Row
	index map[string]int
	now   func() time.Time

	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new empty in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:       make(map[string]int),
		now:         time.Now,
		subscribers: make(map[chan Event]struct{}),
	}
}

// SetRows replaces the rendered rows and notifies subscribers.
//
// A row passed without a status keeps the status of the previously rendered
// row with the same ID, or starts as [StatusUnknown].
func (m *MemoryStore) SetRows(rows []Row) {
	m.mu.Lock()
	next := make([]Row, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		if _, dup := index[row.ID]; dup {
			continue
		}
		if row.Status == "" {
			row.Status = StatusUnknown
			if i, ok := m.index[row.ID]; ok {
				row.Status = m.rows[i].Status
				row.UpdatedAt = m.rows[i].UpdatedAt
			}
		}
		row.Labels = copyLabels(row.Labels)
		index[row.ID] = len(next)
		next = append(next, row)
	}
	m.rows = next
	m.index = index
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.notifySubscribers(Event{Type: EventReset, Rows: snapshot})
}

// Rows returns a copy of the rendered rows in render order.
func (m *MemoryStore) Rows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// IDs returns the rendered row IDs in render order.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.rows))
	for i, row := range m.rows {
		ids[i] = row.ID
	}
	return ids
}

// Apply updates the status of every rendered row present in online.
//
// Only rows whose status actually changed are returned and published,
// in render order.
func (m *MemoryStore) Apply(online map[string]bool) []Row {
	if len(online) == 0 {
		return nil
	}

	m.mu.Lock()
	now := m.now()
	var changed []Row
	for i := range m.rows {
		isOnline, ok := online[m.rows[i].ID]
		if !ok {
			continue
		}
		status := StatusOffline
		if isOnline {
			status = StatusOnline
		}
		if m.rows[i].Status == status {
			continue
		}
		m.rows[i].Status = status
		m.rows[i].UpdatedAt = now
		changed = append(changed, cloneRow(m.rows[i]))
	}
	m.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	m.notifySubscribers(Event{Type: EventChanged, Rows: changed})
	return changed
}

// Subscribe creates a new subscription and returns a channel for receiving events.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the event to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
		}
	}
}

func (m *MemoryStore) snapshotLocked() []Row {
	rows := make([]Row, len(m.rows))
	for i, row := range m.rows {
		rows[i] = cloneRow(row)
	}
	return rows
}

func cloneRow(row Row) Row {
	row.Labels = copyLabels(row.Labels)
	return row
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	return cp
}
