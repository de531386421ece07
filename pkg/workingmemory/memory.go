// Package workingmemory implements the per-robot, token-bounded working set
// described in spec.md §4.4: a mutex-guarded ordered map keyed by node id,
// following tarsy's pkg/session.Manager map+RWMutex shape, generalized to
// the hybrid importance/recency eviction and assembly rules the spec names.
package workingmemory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
)

// Strategy selects the ordering create_context uses to assemble content.
type Strategy string

const (
	StrategyRecent    Strategy = "recent"
	StrategyImportant Strategy = "important"
	StrategyBalanced  Strategy = "balanced"
)

// Entry is one node held in a robot's working memory.
type Entry struct {
	NodeID     int64
	Content    string
	TokenCount int
	Importance float64
	AddedAt    time.Time
	TouchedAt  time.Time
	FromRecall bool
}

// Memory is a single robot's token-bounded working set. Safe for concurrent
// use: every method takes mu.
type Memory struct {
	mu        sync.RWMutex
	entries   map[int64]*Entry
	order     []int64 // insertion/touch order, oldest first
	maxTokens int
	tokens    int
	now       func() time.Time
}

// New builds an empty Memory bounded at maxTokens total tokens.
func New(maxTokens int) *Memory {
	return &Memory{
		entries:   make(map[int64]*Entry),
		maxTokens: maxTokens,
		now:       time.Now,
	}
}

// Add inserts or refreshes a node's entry, evicting lowest-importance /
// oldest entries until there is room (spec.md §4.4 add contract). Returns
// the node ids evicted to make space, in eviction order.
func (m *Memory) Add(nodeID int64, content string, tokenCount int, importance float64, fromRecall bool) ([]int64, error) {
	if tokenCount < 0 {
		return nil, htmerr.NewValidationError("token_count", "must be >= 0")
	}
	if tokenCount > m.maxTokens {
		return nil, htmerr.NewValidationError("token_count", "exceeds working memory budget")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if existing, ok := m.entries[nodeID]; ok {
		m.tokens -= existing.TokenCount
		existing.Content = content
		existing.TokenCount = tokenCount
		existing.Importance = importance
		existing.TouchedAt = now
		existing.FromRecall = fromRecall
		m.removeFromOrder(nodeID)
		m.order = append(m.order, nodeID)
		m.tokens += tokenCount

		evicted := m.evictUntilFits()
		return evicted, nil
	}

	evicted := m.evictUntilFitsFor(tokenCount)

	m.entries[nodeID] = &Entry{
		NodeID:     nodeID,
		Content:    content,
		TokenCount: tokenCount,
		Importance: importance,
		AddedAt:    now,
		TouchedAt:  now,
		FromRecall: fromRecall,
	}
	m.order = append(m.order, nodeID)
	m.tokens += tokenCount

	return evicted, nil
}

// Touch moves a node to the most-recently-used position without changing
// its content.
func (m *Memory) Touch(nodeID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[nodeID]
	if !ok {
		return
	}
	e.TouchedAt = m.now()
	m.removeFromOrder(nodeID)
	m.order = append(m.order, nodeID)
}

// Remove drops a node from working memory without regard to eviction
// policy (used when a node is soft-deleted out from under a robot).
func (m *Memory) Remove(nodeID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(nodeID)
}

// Contains reports whether nodeID currently occupies working memory.
func (m *Memory) Contains(nodeID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[nodeID]
	return ok
}

// Len returns the number of entries currently held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Tokens returns the current total token count across all entries.
func (m *Memory) Tokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

// NodeIDs returns the node ids currently held, in insertion/touch order.
func (m *Memory) NodeIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, len(m.order))
	copy(out, m.order)
	return out
}

// AssembleContext joins held node contents in the order given by strategy,
// newline-separated, truncated so the running total never exceeds
// maxTokens (spec.md §4.4 assemble_context).
func (m *Memory) AssembleContext(strategy Strategy, maxTokens int) string {
	m.mu.RLock()
	entries := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	now := m.now()
	m.mu.RUnlock()

	orderEntries(entries, strategy, now)

	var b strings.Builder
	used := 0
	first := true
	for _, e := range entries {
		if used+e.TokenCount > maxTokens {
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		b.WriteString(e.Content)
		used += e.TokenCount
		first = false
	}
	return b.String()
}

func orderEntries(entries []*Entry, strategy Strategy, now time.Time) {
	switch strategy {
	case StrategyRecent:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].TouchedAt.After(entries[j].TouchedAt)
		})
	case StrategyImportant:
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Importance != entries[j].Importance {
				return entries[i].Importance > entries[j].Importance
			}
			return entries[i].TouchedAt.After(entries[j].TouchedAt)
		})
	default: // StrategyBalanced
		sort.SliceStable(entries, func(i, j int) bool {
			return balancedScore(entries[i], now) > balancedScore(entries[j], now)
		})
	}
}

// balancedScore implements spec.md §4.4: importance / (1 + hours_since_added).
func balancedScore(e *Entry, now time.Time) float64 {
	hours := now.Sub(e.AddedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return e.Importance / (1 + hours)
}

// evictUntilFitsFor evicts entries, cheapest-first (spec.md §4.4: ascending
// importance, then oldest first), until adding an entry of needed tokens
// would not exceed maxTokens. Caller holds mu.
func (m *Memory) evictUntilFitsFor(needed int) []int64 {
	var evicted []int64
	for m.tokens+needed > m.maxTokens && len(m.order) > 0 {
		victim := m.cheapestNodeID()
		m.remove(victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

// evictUntilFits re-checks the budget after an in-place update (Add on an
// existing node can grow its token_count past the limit). Caller holds mu.
func (m *Memory) evictUntilFits() []int64 {
	var evicted []int64
	for m.tokens > m.maxTokens && len(m.order) > 0 {
		victim := m.cheapestNodeID()
		m.remove(victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

// cheapestNodeID returns the eviction candidate: lowest importance first,
// oldest (by AddedAt) breaking ties. Caller holds mu.
func (m *Memory) cheapestNodeID() int64 {
	var victim int64
	var victimEntry *Entry
	for _, id := range m.order {
		e := m.entries[id]
		if victimEntry == nil ||
			e.Importance < victimEntry.Importance ||
			(e.Importance == victimEntry.Importance && e.AddedAt.Before(victimEntry.AddedAt)) {
			victim = id
			victimEntry = e
		}
	}
	return victim
}

// remove drops nodeID unconditionally. Caller holds mu.
func (m *Memory) remove(nodeID int64) {
	e, ok := m.entries[nodeID]
	if !ok {
		return
	}
	m.tokens -= e.TokenCount
	delete(m.entries, nodeID)
	m.removeFromOrder(nodeID)
}

// removeFromOrder deletes nodeID from m.order. Caller holds mu.
func (m *Memory) removeFromOrder(nodeID int64) {
	for i, id := range m.order {
		if id == nodeID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
