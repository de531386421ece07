package longtermmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/store"
)

// Query bundles the optional constraints every read primitive accepts
// (spec.md §4.5): a timeframe in any of the §6 grammar's forms, a metadata
// containment filter, and a result limit.
type Query struct {
	Timeframe      any
	MetadataFilter map[string]any
	K              int
	MinSimilarity  float64
}

// queryNodeID is the sentinel node id passed to EmbeddingService.Embed for
// ad hoc query text, which is never persisted as a node.
const queryNodeID = 0

// Vector ranks active nodes by cosine similarity to the embedded query
// text (spec.md §4.5 "vector").
func (m *LongTermMemory) Vector(ctx context.Context, queryText string, q Query, now time.Time) ([]store.SearchResult, error) {
	padded, _, err := m.embeddingSvc.Embed(queryNodeID, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	key := m.cacheKey("vector", queryText, q)
	if cached, ok := m.cacheGet(key); ok {
		return cached, nil
	}

	f, err := m.buildFilter(q, now)
	if err != nil {
		return nil, err
	}

	results, err := m.store.VectorSearch(ctx, padded, q.K, q.MinSimilarity, f)
	if err != nil {
		return nil, err
	}
	m.trackAccess(ctx, results)
	m.cacheSet(key, results)
	return results, nil
}

// Fulltext ranks active nodes by tokenized relevance to queryText
// (spec.md §4.5 "fulltext").
func (m *LongTermMemory) Fulltext(ctx context.Context, queryText string, q Query, now time.Time) ([]store.SearchResult, error) {
	key := m.cacheKey("fulltext", queryText, q)
	if cached, ok := m.cacheGet(key); ok {
		return cached, nil
	}

	f, err := m.buildFilter(q, now)
	if err != nil {
		return nil, err
	}

	results, err := m.store.FulltextSearch(ctx, queryText, q.K, f)
	if err != nil {
		return nil, err
	}
	m.trackAccess(ctx, results)
	m.cacheSet(key, results)
	return results, nil
}

// Hybrid combines vector and fulltext relevance via the weighted linear
// combination documented on store.Store.HybridSearch (spec.md §4.5
// "hybrid"). weights defaults to the configured search_weights when nil.
func (m *LongTermMemory) Hybrid(ctx context.Context, queryText string, queryTags []string, q Query, weights *config.SearchWeights, now time.Time) ([]store.SearchResult, error) {
	padded, _, err := m.embeddingSvc.Embed(queryNodeID, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	w := m.cfg.SearchWeights
	if weights != nil {
		w = *weights
	}

	key := m.cacheKey(fmt.Sprintf("hybrid:%v:%v", queryTags, w), queryText, q)
	if cached, ok := m.cacheGet(key); ok {
		return cached, nil
	}

	f, err := m.buildFilter(q, now)
	if err != nil {
		return nil, err
	}

	results, err := m.store.HybridSearch(ctx, padded, queryText, queryTags, q.K, m.cfg.HybridFanOut, w.Vector, w.Tag, f)
	if err != nil {
		return nil, err
	}
	m.trackAccess(ctx, results)
	m.cacheSet(key, results)
	return results, nil
}

// ByTopic returns active nodes tagged with topic (spec.md §4.5 "by_topic").
func (m *LongTermMemory) ByTopic(ctx context.Context, topic string, fuzzy bool, q Query, now time.Time) ([]store.SearchResult, error) {
	key := m.cacheKey(fmt.Sprintf("by_topic:%v", fuzzy), topic, q)
	if cached, ok := m.cacheGet(key); ok {
		return cached, nil
	}

	f, err := m.buildFilter(q, now)
	if err != nil {
		return nil, err
	}

	results, err := m.store.ByTopic(ctx, topic, fuzzy, q.MinSimilarity, q.K, f)
	if err != nil {
		return nil, err
	}
	m.trackAccess(ctx, results)
	m.cacheSet(key, results)
	return results, nil
}

// SearchTags returns tags ranked by trigram similarity to query, used for
// typo-tolerant auto-complete (spec.md §4.5 "search_tags"). Not cached: it
// is cheap and its result set (tags, not nodes) doesn't share the node
// cache's invalidation triggers.
func (m *LongTermMemory) SearchTags(ctx context.Context, query string, minSimilarity float64, k int) ([]models.Tag, error) {
	return m.store.SearchTags(ctx, query, minSimilarity, k)
}

func (m *LongTermMemory) buildFilter(q Query, now time.Time) (store.SearchFilter, error) {
	ranges, err := m.resolveTimeframe(q.Timeframe, now)
	if err != nil {
		return store.SearchFilter{}, err
	}
	return store.NewSearchFilter(ranges, q.MetadataFilter), nil
}

// trackAccess batches the access_count/last_accessed bump across a page of
// results (spec.md §4.5: "every successful lookup that returns a node").
func (m *LongTermMemory) trackAccess(ctx context.Context, results []store.SearchResult) {
	if len(results) == 0 {
		return
	}
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.Node.ID
	}
	_ = m.store.TouchAccess(ctx, ids)
}

func (m *LongTermMemory) cacheKey(strategy, query string, q Query) string {
	return fmt.Sprintf("%s|%s|%s|%d|%v", strategy, query, marshalFilterKey(q.MetadataFilter), q.K, q.Timeframe)
}

func (m *LongTermMemory) cacheGet(key string) ([]store.SearchResult, bool) {
	if m.cache == nil {
		return nil, false
	}
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	results, ok := v.([]store.SearchResult)
	return results, ok
}

func (m *LongTermMemory) cacheSet(key string, results []store.SearchResult) {
	if m.cache == nil {
		return
	}
	// Bound the cache at cfg.CacheSize entries: every entry shares one TTL,
	// so the earliest expiration is the oldest insert, and it is dropped.
	// With cache_ttl_seconds 0 entries never expire and the dropped entry
	// is an arbitrary one.
	m.cache.DeleteExpired()
	if m.cache.ItemCount() >= m.cfg.CacheSize {
		oldestKey, oldestExp := "", int64(0)
		for k, it := range m.cache.Items() {
			if oldestKey == "" || it.Expiration < oldestExp {
				oldestKey, oldestExp = k, it.Expiration
			}
		}
		m.cache.Delete(oldestKey)
	}
	m.cache.SetDefault(key, results)
}
