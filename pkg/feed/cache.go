package feed

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

const defaultHistory = 1024

// Cache is a viewer's in-memory projection of one business's reservations.
// All mutations go through the Apply* methods, each idempotent by reservation id.
//
// Sequenced frames (Apply) follow snapshot-then-diff: change events seen before the
// first snapshot are held back, and a snapshot taken at seq S replays only the held
// events with seq > S. After that, events at or below the last applied seq are ignored.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Reservation
	synced  bool
	lastSeq uint64
	history []Envelope
	maxHist int

	onChange func()
}

type CacheOption func(*Cache)

// WithHistory bounds how many recent change events are kept for snapshot replay
func WithHistory(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.maxHist = n
		}
	}
}

// OnChange registers a callback run after every mutation, outside the lock
func OnChange(fn func()) CacheOption {
	return func(c *Cache) { c.onChange = fn }
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		records: make(map[string]Reservation),
		maxHist: defaultHistory,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ApplySnapshot replaces the whole local set
func (c *Cache) ApplySnapshot(records []Reservation) {
	c.mu.Lock()
	c.replace(records)
	c.synced = true
	c.mu.Unlock()
	c.changed()
}

// ApplyCreated inserts the record unless its id is already present
func (c *Cache) ApplyCreated(r Reservation) bool {
	c.mu.Lock()
	ok := c.created(r)
	c.mu.Unlock()
	if ok {
		c.changed()
	}
	return ok
}

// ApplyUpdated replaces the record by id; unknown ids and older versions are ignored
func (c *Cache) ApplyUpdated(r Reservation) bool {
	c.mu.Lock()
	ok := c.updated(r)
	c.mu.Unlock()
	if ok {
		c.changed()
	}
	return ok
}

// ApplyDeleted removes the record by id; unknown ids are ignored
func (c *Cache) ApplyDeleted(id string) bool {
	c.mu.Lock()
	ok := c.deleted(id)
	c.mu.Unlock()
	if ok {
		c.changed()
	}
	return ok
}

// Apply handles one server frame. Acks and unknown events are ignored.
func (c *Cache) Apply(env Envelope) error {
	switch env.Event {
	case EventReservationsData:
		var snap Snapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if !snap.Success {
			return fmt.Errorf("snapshot failed: %s", snap.Message)
		}
		c.mu.Lock()
		err := c.snapshotAt(env.Seq, snap.Reservations)
		c.mu.Unlock()
		c.changed()
		return err

	case EventReservationAdded, EventReservationUpdated, EventReservationDeleted:
		c.mu.Lock()
		c.remember(env)
		if !c.synced || (env.Seq != 0 && env.Seq <= c.lastSeq) {
			c.mu.Unlock()
			return nil
		}
		changed, err := c.applyChange(env)
		if env.Seq > c.lastSeq {
			c.lastSeq = env.Seq
		}
		c.mu.Unlock()
		if changed {
			c.changed()
		}
		return err
	}
	return nil
}

// Reset marks the cache stale, e.g. after a reconnect. Records stay readable until the
// next snapshot replaces them; sequence tracking starts over.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.synced = false
	c.lastSeq = 0
	c.history = nil
	c.mu.Unlock()
}

// Get returns one record by id
func (c *Cache) Get(id string) (Reservation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	return r, ok
}

// List returns the records ordered by creation time, then id
func (c *Cache) List() []Reservation {
	c.mu.RLock()
	out := make([]Reservation, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Synced reports whether a snapshot has been applied since the last Reset
func (c *Cache) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// LastSeq is the channel position the cache reflects
func (c *Cache) LastSeq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeq
}

// snapshotAt must be called with c.mu held
func (c *Cache) snapshotAt(seq uint64, records []Reservation) error {
	c.replace(records)
	c.synced = true
	c.lastSeq = seq

	var firstErr error
	for _, env := range c.history {
		if env.Seq <= seq {
			continue
		}
		if _, err := c.applyChange(env); err != nil && firstErr == nil {
			firstErr = err
		}
		if env.Seq > c.lastSeq {
			c.lastSeq = env.Seq
		}
	}
	c.history = c.history[:0]
	return firstErr
}

func (c *Cache) applyChange(env Envelope) (bool, error) {
	switch env.Event {
	case EventReservationAdded, EventReservationUpdated:
		var r Reservation
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return false, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if env.Event == EventReservationAdded {
			return c.created(r), nil
		}
		return c.updated(r), nil
	case EventReservationDeleted:
		var d Deleted
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return false, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return c.deleted(d.ID), nil
	}
	return false, nil
}

func (c *Cache) remember(env Envelope) {
	if env.Seq == 0 {
		return
	}
	if len(c.history) >= c.maxHist {
		c.history = append(c.history[:0], c.history[1:]...)
	}
	c.history = append(c.history, env)
}

func (c *Cache) replace(records []Reservation) {
	next := make(map[string]Reservation, len(records))
	for _, r := range records {
		next[r.ID] = r
	}
	c.records = next
}

func (c *Cache) created(r Reservation) bool {
	if _, exists := c.records[r.ID]; exists {
		return false
	}
	c.records[r.ID] = r
	return true
}

func (c *Cache) updated(r Reservation) bool {
	cur, exists := c.records[r.ID]
	if !exists || r.Version < cur.Version {
		return false
	}
	c.records[r.ID] = r
	return true
}

func (c *Cache) deleted(id string) bool {
	if _, exists := c.records[id]; !exists {
		return false
	}
	delete(c.records, id)
	return true
}

func (c *Cache) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
