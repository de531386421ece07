// Package robotgroup implements cross-process shared working memory across
// a set of cooperating robots: active/passive roles, failover, and
// replication over a pub/sub channel (spec.md §4.7).
//
// Replication adapts tarsy's pkg/events/manager.go ConnectionManager
// dispatch model (channel -> subscriber fan-out) from WebSocket connections
// to per-robot workingmemory.Memory instances: Group.Remember publishes an
// "added" event, and every member's local WorkingMemory is updated in
// publish order when the event arrives. handleNotify also applies
// "removed" events; nothing in this package publishes one.
package robotgroup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/longtermmemory"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/store"
	"github.com/codeready-toolchain/htm/pkg/workingmemory"
)

// Role is a member's position in the active/passive/left state machine
// (spec.md §4.7).
type Role string

const (
	RoleActive  Role = "active"
	RolePassive Role = "passive"
	RoleLeft    Role = "left"
)

// Store is the persistence surface Group needs from pkg/store: resolving a
// member name to a robot id and mirroring working-memory membership.
type Store interface {
	UpsertRobot(ctx context.Context, name string) (*models.Robot, error)
	SetWorkingMemoryFlag(ctx context.Context, robotID, nodeID int64, inMemory bool) error
	FindByID(ctx context.Context, nodeID int64) (*models.Node, error)
}

// Memory is the longtermmemory surface Group drives on behalf of its
// members.
type Memory interface {
	Remember(ctx context.Context, robotID int64, content string, manualTags []string, metadata models.Metadata, wm *workingmemory.Memory) (int64, error)
	Hybrid(ctx context.Context, queryText string, queryTags []string, q longtermmemory.Query, weights *config.SearchWeights, now time.Time) ([]store.SearchResult, error)
}

// PubSub is the cross-process transport Group replicates over. pkg/store's
// *Store satisfies this directly via Notify/Subscribe (spec.md §9: "the
// RobotGroup must not depend on a specific transport").
type PubSub interface {
	Notify(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string, fn func(payload []byte)) error
}

// Member is one robot's participation in a Group.
type Member struct {
	Name      string
	RobotID   int64
	Role      Role
	WM        *workingmemory.Memory
	JoinedAt  time.Time
	OutOfSync bool
}

// nodeEvent is the notification channel payload (spec.md §6: "payload: JSON
// {node_id:int, op:\"added\"|\"removed\"}").
type nodeEvent struct {
	NodeID int64  `json:"node_id"`
	Op     string `json:"op"`
}

// Group is a set of robots sharing a live working-memory view (spec.md
// §4.7).
type Group struct {
	mu      sync.RWMutex
	name    string
	channel string

	members map[string]*Member
	order   []string // join order; failover promotes the first eligible passive

	memory    Memory
	pubsub    PubSub
	store     Store
	maxTokens int

	subscribed bool
}

// New builds a Group. Call Create to populate its initial membership and
// subscribe to its replication channel.
func New(name string, memory Memory, pubsub PubSub, st Store, maxTokens int) *Group {
	return &Group{
		name:      name,
		channel:   "htm.group." + name,
		members:   make(map[string]*Member),
		memory:    memory,
		pubsub:    pubsub,
		store:     st,
		maxTokens: maxTokens,
	}
}

// Create adds the initial active and passive members and subscribes the
// group's replication channel (spec.md §4.7 "create(name, initial_active,
// initial_passive, max_tokens)").
func (g *Group) Create(ctx context.Context, initialActive, initialPassive []string) error {
	g.mu.Lock()
	for _, name := range initialActive {
		if err := g.addMemberLocked(ctx, name, RoleActive); err != nil {
			g.mu.Unlock()
			return err
		}
	}
	for _, name := range initialPassive {
		if err := g.addMemberLocked(ctx, name, RolePassive); err != nil {
			g.mu.Unlock()
			return err
		}
	}
	g.mu.Unlock()

	if g.subscribed {
		return nil
	}
	if err := g.pubsub.Subscribe(ctx, g.channel, g.handleNotify); err != nil {
		return fmt.Errorf("subscribe group channel %s: %w", g.channel, err)
	}
	g.subscribed = true
	return nil
}

func (g *Group) addMemberLocked(ctx context.Context, name string, role Role) error {
	if _, exists := g.members[name]; exists {
		return htmerr.NewValidationError("name", fmt.Sprintf("%q is already a member of group %q", name, g.name))
	}
	robot, err := g.store.UpsertRobot(ctx, name)
	if err != nil {
		return err
	}
	g.members[name] = &Member{
		Name:     name,
		RobotID:  robot.ID,
		Role:     role,
		WM:       workingmemory.New(g.maxTokens),
		JoinedAt: time.Now(),
	}
	g.order = append(g.order, name)
	return nil
}

// AddActive adds name to the group as an active member (spec.md §4.7
// "add_active(name)").
func (g *Group) AddActive(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addMemberLocked(ctx, name, RoleActive)
}

// AddPassive adds name to the group as a passive member (spec.md §4.7
// "add_passive(name)").
func (g *Group) AddPassive(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addMemberLocked(ctx, name, RolePassive)
}

// Promote transitions name to active (spec.md §4.7 "promote -> active").
func (g *Group) Promote(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[name]
	if !ok {
		return htmerr.NewNotFoundError("group_member", name)
	}
	m.Role = RoleActive
	return nil
}

// Remove transitions name to left; a left member is no longer synchronized
// (spec.md §4.7 "remove -> left").
func (g *Group) Remove(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[name]
	if !ok {
		return htmerr.NewNotFoundError("group_member", name)
	}
	m.Role = RoleLeft
	return nil
}

// Failover promotes the first passive member (by join order) to active and
// returns its name. Fails if no passive member exists (spec.md §4.7
// "failover! -> promoted_name (fails if no passives)").
func (g *Group) Failover(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range g.order {
		m := g.members[name]
		if m.Role == RolePassive {
			m.Role = RoleActive
			return name, nil
		}
	}
	return "", htmerr.NewValidationError("group", fmt.Sprintf("group %q has no passive member to fail over to", g.name))
}

// Status reports the group's current membership and convergence (spec.md
// §4.7 "status").
type Status struct {
	Active              []string
	Passive             []string
	TotalMembers        int
	InSync              bool
	WorkingMemoryTokens int
	TokenUtilization    float64
}

// Status computes the group's current Status.
func (g *Group) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var st Status
	for _, name := range g.order {
		m := g.members[name]
		switch m.Role {
		case RoleActive:
			st.Active = append(st.Active, name)
			st.TotalMembers++
		case RolePassive:
			st.Passive = append(st.Passive, name)
			st.TotalMembers++
		}
		if m.Role != RoleLeft {
			st.WorkingMemoryTokens += m.WM.Tokens()
		}
	}
	if st.TotalMembers > 0 && g.maxTokens > 0 {
		st.TokenUtilization = float64(st.WorkingMemoryTokens) / float64(g.maxTokens*st.TotalMembers)
	}
	st.InSync = g.inSyncLocked()
	return st
}

// inSyncLocked reports whether every active member's working-memory set
// contains the union of every non-left member's working-memory set
// (spec.md §9 "in_sync is true iff ..."). Caller holds mu.
func (g *Group) inSyncLocked() bool {
	union := g.unionNodeIDsLocked()
	for _, name := range g.order {
		m := g.members[name]
		if m.Role != RoleActive {
			continue
		}
		for id := range union {
			if !m.WM.Contains(id) {
				return false
			}
		}
	}
	return true
}

func (g *Group) unionNodeIDsLocked() map[int64]bool {
	union := make(map[int64]bool)
	for _, name := range g.order {
		m := g.members[name]
		if m.Role == RoleLeft {
			continue
		}
		for _, id := range m.WM.NodeIDs() {
			union[id] = true
		}
	}
	return union
}

func channelPayload(ev nodeEvent) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
