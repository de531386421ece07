package tagindex

import (
	"context"
	"sort"
)

// TagStats is one tag's usage summary, as reported by the store, used to
// drive ontology sampling.
type TagStats struct {
	Name       string
	UsageCount int
	LastUsedAt int64 // unix seconds; higher is more recent
}

// StatsSource supplies tag usage statistics. pkg/store implements this by
// joining tag and node_tag.
type StatsSource interface {
	ActiveTagStats(ctx context.Context) ([]TagStats, error)
}

// Sampler produces the ontology sample shown to TagSvc: a recency-weighted
// selection with a popularity tie-break, capped at a configured size.
type Sampler struct {
	source StatsSource
	size   int
}

// NewSampler builds a Sampler reading from source, capped at size names
// (spec.md default tag_ontology_sample_size = 100).
func NewSampler(source StatsSource, size int) *Sampler {
	return &Sampler{source: source, size: size}
}

// Sample returns up to size tag names, most-recently-used first with ties
// broken by usage count descending. It is recomputed on every call — no
// pinned cache — so the sample always reflects the current ontology.
func (s *Sampler) Sample(ctx context.Context) ([]string, error) {
	stats, err := s.source.ActiveTagStats(ctx)
	if err != nil {
		return nil, err
	}

	sortByRecencyThenPopularity(stats)

	limit := s.size
	if limit > len(stats) {
		limit = len(stats)
	}
	names := make([]string, limit)
	for i := 0; i < limit; i++ {
		names[i] = stats[i].Name
	}
	return names, nil
}

func sortByRecencyThenPopularity(stats []TagStats) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].LastUsedAt != stats[j].LastUsedAt {
			return stats[i].LastUsedAt > stats[j].LastUsedAt
		}
		return stats[i].UsageCount > stats[j].UsageCount
	})
}
