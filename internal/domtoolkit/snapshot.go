package domtoolkit

import (
	"fmt"
	"sync"
	"time"
)

// rawSnapshot is the shape the in-page probe script returns: a flat
// element list plus viewport metrics, before ids are stamped.
type rawSnapshot struct {
	Elements []Element    `json:"elements"`
	Viewport ViewportInfo `json:"viewport"`
}

// snapshotEntry is one cached, id-stamped snapshot.
type snapshotEntry struct {
	id       string
	taken    time.Time
	elements []Element
	byID     map[string]Element
	viewport ViewportInfo
}

// snapshotCache holds the current snapshot plus a short history of
// superseded ones (enough to satisfy a DiffFrom/SinceSnapshotID request
// against the immediately preceding generation), invalidated by TTL
// expiry or by an explicit mutation event.
type snapshotCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	current *snapshotEntry
	history map[string]*snapshotEntry
	counter int
}

const snapshotHistoryLimit = 8

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &snapshotCache{
		ttl:     ttl,
		history: make(map[string]*snapshotEntry),
	}
}

func (c *snapshotCache) get() (*snapshotEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	if time.Since(c.current.taken) > c.ttl {
		return nil, false
	}
	return c.current, true
}

func (c *snapshotCache) getByID(id string) (*snapshotEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.id == id {
		return c.current, true
	}
	entry, ok := c.history[id]
	return entry, ok
}

func (c *snapshotCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.history[c.current.id] = c.current
		c.pruneLocked()
	}
	c.current = nil
}

func (c *snapshotCache) put(raw rawSnapshot) *snapshotEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	byID := make(map[string]Element, len(raw.Elements))
	elements := make([]Element, len(raw.Elements))
	for i, el := range raw.Elements {
		if el.ID == "" {
			el.ID = fmt.Sprintf("e%d-%d", c.counter, i)
		}
		elements[i] = el
		byID[el.ID] = el
	}

	if c.current != nil {
		c.history[c.current.id] = c.current
		c.pruneLocked()
	}

	entry := &snapshotEntry{
		id:       fmt.Sprintf("snap-%d", c.counter),
		taken:    time.Now(),
		elements: elements,
		byID:     byID,
		viewport: raw.Viewport,
	}
	c.current = entry
	return entry
}

func (c *snapshotCache) pruneLocked() {
	if len(c.history) <= snapshotHistoryLimit {
		return
	}
	var oldestID string
	var oldestTime time.Time
	for id, entry := range c.history {
		if oldestID == "" || entry.taken.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.taken
		}
	}
	delete(c.history, oldestID)
}
