package robotgroup

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/longtermmemory"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/store"
)

// Remember performs the underlying remember on behalf of originator, then
// publishes a node_added event on the group's channel so every other
// member's working memory converges (spec.md §4.7 "remember(content,
// originator, tags?, metadata?) -> node_id").
func (g *Group) Remember(ctx context.Context, originator, content string, tags []string, metadata models.Metadata) (int64, error) {
	g.mu.RLock()
	m, ok := g.members[originator]
	g.mu.RUnlock()
	if !ok || m.Role == RoleLeft {
		return 0, htmerr.NewNotFoundError("group_member", originator)
	}

	nodeID, err := g.memory.Remember(ctx, m.RobotID, content, tags, metadata, m.WM)
	if err != nil {
		return 0, err
	}

	if err := g.publish(ctx, nodeEvent{NodeID: nodeID, Op: "added"}); err != nil {
		slog.Error("group notify failed", "group", g.name, "error", err)
	}
	if err := g.store.SetWorkingMemoryFlag(ctx, m.RobotID, nodeID, true); err != nil {
		slog.Error("set working memory flag failed", "group", g.name, "robot", originator, "error", err)
	}
	return nodeID, nil
}

// Recall performs recall as the group's representative over the shared
// store; results are identical regardless of which active member asks
// (spec.md §4.7 "recall(query, ...)").
func (g *Group) Recall(ctx context.Context, queryText string, queryTags []string, q longtermmemory.Query, weights *config.SearchWeights) ([]store.SearchResult, error) {
	return g.memory.Hybrid(ctx, queryText, queryTags, q, weights, time.Now())
}

func (g *Group) publish(ctx context.Context, ev nodeEvent) error {
	payload, err := channelPayload(ev)
	if err != nil {
		return err
	}
	return g.pubsub.Notify(ctx, g.channel, payload)
}

// handleNotify is the subscriber callback registered on the group channel.
// It applies the event to every non-left member's working memory, ignoring
// duplicates (working memory is a set keyed by node id).
func (g *Group) handleNotify(payload []byte) {
	var ev nodeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		slog.Error("group notify payload malformed", "group", g.name, "error", err)
		return
	}

	ctx := context.Background()

	g.mu.RLock()
	members := make([]*Member, 0, len(g.order))
	for _, name := range g.order {
		m := g.members[name]
		if m.Role != RoleLeft {
			members = append(members, m)
		}
	}
	g.mu.RUnlock()

	switch ev.Op {
	case "added":
		node, err := g.store.FindByID(ctx, ev.NodeID)
		if err != nil {
			slog.Error("group replication: node lookup failed", "group", g.name, "node_id", ev.NodeID, "error", err)
			return
		}
		for _, m := range members {
			if m.WM.Contains(ev.NodeID) {
				continue
			}
			if _, err := m.WM.Add(ev.NodeID, node.Content, node.TokenCount, 1.0, false); err != nil {
				slog.Error("group replication: add failed", "group", g.name, "member", m.Name, "error", err)
				continue
			}
			_ = g.store.SetWorkingMemoryFlag(ctx, m.RobotID, ev.NodeID, true)
		}
	case "removed":
		for _, m := range members {
			m.WM.Remove(ev.NodeID)
			_ = g.store.SetWorkingMemoryFlag(ctx, m.RobotID, ev.NodeID, false)
		}
	}
}

// SyncAll reconciles any missed events: every non-left member's working
// memory is brought up to the union of every non-left member's currently
// held node ids (spec.md §4.7 "a periodic sync_all reconciles any missed
// events").
func (g *Group) SyncAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	union := g.unionNodeIDsLocked()

	for _, name := range g.order {
		m := g.members[name]
		if m.Role == RoleLeft {
			continue
		}
		for id := range union {
			if m.WM.Contains(id) {
				continue
			}
			node, err := g.store.FindByID(ctx, id)
			if err != nil {
				continue // node purged since the union was observed
			}
			if _, err := m.WM.Add(id, node.Content, node.TokenCount, 1.0, true); err != nil {
				continue
			}
			_ = g.store.SetWorkingMemoryFlag(ctx, m.RobotID, id, true)
		}
		m.OutOfSync = false
	}
	return nil
}
