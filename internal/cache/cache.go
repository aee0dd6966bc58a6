// Package cache stores what is known about command messages: a bounded LRU
// of invocation snapshots that survives the run, and a registry of the
// invocations that are still running.
package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/Hweary/cmdClient/internal/invocation"
)

// DefaultSize is the snapshot capacity used when none is configured.
const DefaultSize = 1000

type entry struct {
	snap invocation.Snapshot
	// claimed holds response IDs already handed out for deletion. It
	// survives snapshot refreshes so a response is never claimed twice.
	claimed map[string]struct{}
}

// ContextCache is safe for concurrent use.
type ContextCache struct {
	log zerolog.Logger

	mu        sync.Mutex
	snapshots *lru.Cache[string, *entry]
	live      map[string]*invocation.Invocation
}

// New creates a cache holding at most size snapshots.
func New(size int, logger zerolog.Logger) (*ContextCache, error) {
	c := &ContextCache{
		log:  logger,
		live: make(map[string]*invocation.Invocation),
	}
	snapshots, err := lru.NewWithEvict(size, func(messageID string, _ *entry) {
		c.log.Debug().Str("mid", messageID).Msg("Evicted context snapshot")
	})
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	c.snapshots = snapshots
	return c, nil
}

// Put stores snap under its message ID, evicting the least recently used
// snapshot when full. Snapshots without a message ID are ignored.
func (c *ContextCache) Put(snap invocation.Snapshot) {
	if snap.MessageID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(snap)
}

func (c *ContextCache) putLocked(snap invocation.Snapshot) {
	e, ok := c.snapshots.Peek(snap.MessageID)
	if !ok {
		e = &entry{claimed: make(map[string]struct{})}
	}
	e.snap = snap
	c.snapshots.Add(snap.MessageID, e)
}

// Get returns the snapshot for a message and marks it recently used.
// Responses already claimed by TakeResponses are left out.
func (c *ContextCache) Get(messageID string) (invocation.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.snapshots.Get(messageID)
	if !ok {
		return invocation.Snapshot{}, false
	}
	snap := e.snap
	snap.Responses = e.unclaimed(nil)
	return snap, true
}

// Contains reports whether a snapshot exists without changing recency.
func (c *ContextCache) Contains(messageID string) bool {
	return c.snapshots.Contains(messageID)
}

// Len returns the number of cached snapshots.
func (c *ContextCache) Len() int {
	return c.snapshots.Len()
}

// Keys returns cached message IDs from oldest to newest.
func (c *ContextCache) Keys() []string {
	return c.snapshots.Keys()
}

// TakeResponses claims the responses recorded for a message, plus any extra
// IDs, and returns those not claimed before. Each response ID is returned
// at most once over the lifetime of the cache entry.
func (c *ContextCache) TakeResponses(messageID string, extra ...string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.snapshots.Peek(messageID)
	if !ok {
		return dedupe(extra)
	}
	ids := e.unclaimed(extra)
	for _, id := range ids {
		e.claimed[id] = struct{}{}
	}
	return ids
}

func (e *entry) unclaimed(extra []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, ids := range [][]string{e.snap.Responses, extra} {
		for _, id := range ids {
			if _, done := e.claimed[id]; done {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Register records inv as the running invocation for its message. It
// returns the invocation it displaced, if any.
func (c *ContextCache) Register(inv *invocation.Invocation) (displaced *invocation.Invocation) {
	if inv.MessageID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.live[inv.MessageID]; ok && prev != inv {
		displaced = prev
	}
	c.live[inv.MessageID] = inv
	return displaced
}

// Unregister removes inv from the running set and reports whether it was
// still registered. It does nothing when another invocation has since been
// registered for the same message.
func (c *ContextCache) Unregister(inv *invocation.Invocation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live[inv.MessageID] != inv {
		return false
	}
	delete(c.live, inv.MessageID)
	return true
}

// Finish stores the final snapshot of inv and removes it from the running
// set in one step. An invocation that was displaced by a newer one for the
// same message changes nothing, so it never overwrites the newer snapshot.
// It reports whether inv was still registered.
func (c *ContextCache) Finish(inv *invocation.Invocation) bool {
	if inv.MessageID == "" {
		return false
	}
	snap := inv.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live[inv.MessageID] != inv {
		return false
	}
	delete(c.live, inv.MessageID)
	c.putLocked(snap)
	return true
}

// Live returns the running invocation for a message.
func (c *ContextCache) Live(messageID string) (*invocation.Invocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inv, ok := c.live[messageID]
	return inv, ok
}

// IsRegistered reports whether an invocation is running for the message.
func (c *ContextCache) IsRegistered(messageID string) bool {
	_, ok := c.Live(messageID)
	return ok
}

// Running returns the number of running invocations.
func (c *ContextCache) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}
