package htm

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/filesource"
	"github.com/codeready-toolchain/htm/pkg/longtermmemory"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/store"
	"github.com/codeready-toolchain/htm/pkg/timeframe"
	"github.com/codeready-toolchain/htm/pkg/workingmemory"
)

// SearchStrategy selects which long-term memory read primitive Recall
// drives (spec.md §6 recall's strategy param).
type SearchStrategy string

const (
	StrategyVector   SearchStrategy = "vector"
	StrategyFulltext SearchStrategy = "fulltext"
	StrategyHybrid   SearchStrategy = "hybrid"
)

// confirmToken is the only value Forget accepts to authorize a permanent
// delete (spec.md §6: "permanent delete requires explicit confirm ==
// \"confirmed\"").
const confirmToken = "confirmed"

// Facade is a single robot's entry point into HTM (spec.md §4 "Facade
// (HTM)"): it pairs that robot's identity and in-process WorkingMemory
// with the Engine's shared long-term memory. Facade is reentrant for its
// own robot but, per spec.md §5, is not shared across robots — each robot
// gets its own Facade from Engine.NewRobot.
type Facade struct {
	engine *Engine
	robot  *models.Robot
	wm     *workingmemory.Memory
	loader *filesource.Loader
}

// NewRobot looks up or creates the named robot and returns a Facade with a
// fresh, empty WorkingMemory bounded at workingMemorySize tokens (0 uses
// the Engine's configured default).
func (e *Engine) NewRobot(ctx context.Context, name string, workingMemorySize int) (*Facade, error) {
	robot, err := e.store.UpsertRobot(ctx, name)
	if err != nil {
		return nil, err
	}
	if workingMemorySize <= 0 {
		workingMemorySize = e.cfg.WorkingMemorySizeTokens
	}
	return &Facade{
		engine: e,
		robot:  robot,
		wm:     workingmemory.New(workingMemorySize),
		loader: e.loader,
	}, nil
}

// Name returns the robot's name.
func (f *Facade) Name() string { return f.robot.Name }

// WorkingMemory exposes the robot's working set directly, for callers that
// need Touch/AssembleContext/NodeIDs beyond what the Facade wraps.
func (f *Facade) WorkingMemory() *workingmemory.Memory { return f.wm }

// Remember implements spec.md §6 remember: validate, dedup, persist,
// enqueue enrichment, and add to this robot's working memory.
func (f *Facade) Remember(ctx context.Context, content string, tags []string, metadata map[string]any) (int64, error) {
	return f.engine.ltm.Remember(ctx, f.robot.ID, content, tags, models.Metadata(metadata), f.wm)
}

// RecallOptions bundles recall's optional parameters (spec.md §6).
type RecallOptions struct {
	// Timeframe accepts any form in the §6 grammar: nil, time.Time,
	// timeframe.Interval, a recognized natural-language string, ":auto",
	// or a []any of those forms for OR'd ranges.
	Timeframe any
	Strategy  SearchStrategy
	Limit     int

	// QueryTags and Weights apply only to StrategyHybrid.
	QueryTags []string
	Weights   *config.SearchWeights

	MetadataFilter map[string]any
	MinSimilarity  float64

	// Promote adds every returned node back into this robot's working
	// memory (spec.md §2 data flow: "optionally promote results into
	// WorkingMemory"), marking the entry from_recall=true.
	Promote bool
}

// RecallRow is one ranked memory returned by Recall. Callers that only
// want spec.md's "list<content>" form can map Contents over the result;
// Recall itself always returns the full row so both shapes spec.md §6
// documents ("list<content> | list<row>") are reachable from one call.
type RecallRow struct {
	NodeID    int64
	Content   string
	Score     float64
	CreatedAt time.Time
	Metadata  models.Metadata
}

// Contents extracts just the content strings from a Recall result, for
// callers that want spec.md's non-raw "list<content>" form.
func Contents(rows []RecallRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Content
	}
	return out
}

// Recall implements spec.md §6 recall over the Engine's shared long-term
// memory, using the strategy named in opts (default hybrid).
func (f *Facade) Recall(ctx context.Context, query string, opts RecallOptions) ([]RecallRow, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyHybrid
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	now := time.Now()

	timeframeInput := opts.Timeframe
	queryText := query
	if s, ok := opts.Timeframe.(string); ok && s == ":auto" {
		cleaned, ranges, err := f.engine.ltm.ResolveAutoTimeframe(query, now)
		if err != nil {
			return nil, err
		}
		queryText = cleaned
		timeframeInput = storeRangesToIntervals(ranges)
	}

	q := longtermmemory.Query{
		Timeframe:      timeframeInput,
		MetadataFilter: opts.MetadataFilter,
		K:              limit,
		MinSimilarity:  opts.MinSimilarity,
	}

	var (
		results []store.SearchResult
		err     error
	)
	switch strategy {
	case StrategyVector:
		results, err = f.engine.ltm.Vector(ctx, queryText, q, now)
	case StrategyFulltext:
		results, err = f.engine.ltm.Fulltext(ctx, queryText, q, now)
	case StrategyHybrid:
		results, err = f.engine.ltm.Hybrid(ctx, queryText, opts.QueryTags, q, opts.Weights, now)
	default:
		return nil, fmt.Errorf("htm: unknown recall strategy %q", strategy)
	}
	if err != nil {
		return nil, err
	}

	rows := toRecallRows(results)
	if opts.Promote {
		f.promote(ctx, rows)
	}
	return rows, nil
}

// Topic implements spec.md §4.5 by_topic: nodes tagged with topic, exact or
// prefix matching by default, trigram-fuzzy when fuzzy is true.
func (f *Facade) Topic(ctx context.Context, topic string, fuzzy bool, opts RecallOptions) ([]RecallRow, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	q := longtermmemory.Query{
		Timeframe:      opts.Timeframe,
		MetadataFilter: opts.MetadataFilter,
		K:              limit,
		MinSimilarity:  opts.MinSimilarity,
	}
	results, err := f.engine.ltm.ByTopic(ctx, topic, fuzzy, q, time.Now())
	if err != nil {
		return nil, err
	}
	rows := toRecallRows(results)
	if opts.Promote {
		f.promote(ctx, rows)
	}
	return rows, nil
}

// SearchTags implements spec.md §4.5 search_tags: typo-tolerant tag
// auto-complete by trigram similarity.
func (f *Facade) SearchTags(ctx context.Context, query string, minSimilarity float64, limit int) ([]models.Tag, error) {
	return f.engine.ltm.SearchTags(ctx, query, minSimilarity, limit)
}

// promote adds recalled rows into this robot's working memory, mirroring
// evictions and the newly-added node both out to robot_node.working_memory
// on a best-effort basis (spec.md §9 Open Question: the flag reflects
// current in-memory state; concurrent-eviction races are not locked
// against).
func (f *Facade) promote(ctx context.Context, rows []RecallRow) {
	for _, r := range rows {
		tokenCount, err := f.engine.cfg.TokenCounter.CountTokens(r.Content)
		if err != nil {
			continue
		}
		evicted, err := f.wm.Add(r.NodeID, r.Content, tokenCount, 1.0, true)
		if err != nil {
			continue
		}
		_ = f.engine.store.SetWorkingMemoryFlag(ctx, f.robot.ID, r.NodeID, true)
		for _, evictedID := range evicted {
			_ = f.engine.store.SetWorkingMemoryFlag(ctx, f.robot.ID, evictedID, false)
		}
	}
}

// Forget implements spec.md §6 forget: soft-delete by default, permanent
// purge only when confirm == "confirmed".
func (f *Facade) Forget(ctx context.Context, nodeID int64, confirm string) error {
	f.wm.Remove(nodeID)
	_ = f.engine.store.SetWorkingMemoryFlag(ctx, f.robot.ID, nodeID, false)
	if confirm == confirmToken {
		return f.engine.ltm.Purge(ctx, nodeID)
	}
	return f.engine.ltm.Forget(ctx, nodeID)
}

// Restore implements spec.md §6 restore: clears deleted_at, failing with
// DuplicateContent if another active node now holds the same content hash.
func (f *Facade) Restore(ctx context.Context, nodeID int64) error {
	return f.engine.ltm.Restore(ctx, nodeID)
}

// CreateContext implements spec.md §6 create_context: assembles this
// robot's working memory into one string under the given strategy and
// token budget (default balanced / the robot's configured working memory
// size).
func (f *Facade) CreateContext(strategy workingmemory.Strategy, maxTokens int) string {
	if strategy == "" {
		strategy = workingmemory.StrategyBalanced
	}
	if maxTokens <= 0 {
		maxTokens = f.engine.cfg.WorkingMemorySizeTokens
	}
	return f.wm.AssembleContext(strategy, maxTokens)
}

// LoadFile implements spec.md §6 load_file. force is accepted for
// interface symmetry with load_directory; chunking always re-checks
// content hashes, so a re-load of an unchanged file is a no-op dedup, not
// a special-cased skip.
func (f *Facade) LoadFile(ctx context.Context, path string, force bool) ([]int64, error) {
	return f.loader.LoadFile(ctx, f.robot.ID, path)
}

// LoadDirectory implements spec.md §6 load_directory over a caller-supplied
// list of paths (directory traversal/pattern matching is the caller's
// concern per spec.md §1).
func (f *Facade) LoadDirectory(ctx context.Context, paths []string, force bool) (map[string][]int64, error) {
	return f.loader.LoadDirectory(ctx, f.robot.ID, paths)
}

// UnloadFile implements spec.md §6 unload_file.
func (f *Facade) UnloadFile(ctx context.Context, path string) error {
	return f.loader.UnloadFile(ctx, path)
}

func toRecallRows(results []store.SearchResult) []RecallRow {
	rows := make([]RecallRow, len(results))
	for i, r := range results {
		rows[i] = RecallRow{
			NodeID:    r.Node.ID,
			Content:   r.Node.Content,
			Score:     r.Score,
			CreatedAt: r.Node.CreatedAt,
			Metadata:  r.Node.Metadata,
		}
	}
	return rows
}

// storeRangesToIntervals adapts the store.TimeRange values ResolveAutoTimeframe
// already resolved back into the []any-of-timeframe.Interval form
// timeframe.Parse accepts, so Query.Timeframe can carry them straight
// through without re-parsing the (now-cleaned) query text.
func storeRangesToIntervals(ranges []store.TimeRange) []any {
	out := make([]any, len(ranges))
	for i, r := range ranges {
		out[i] = timeframe.Interval{Start: r.Start, End: r.End}
	}
	return out
}
