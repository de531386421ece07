package tagindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatsSource struct {
	stats []TagStats
}

func (f *fakeStatsSource) ActiveTagStats(ctx context.Context) ([]TagStats, error) {
	return f.stats, nil
}

func TestSampler_Sample_OrdersByRecencyThenPopularity(t *testing.T) {
	source := &fakeStatsSource{stats: []TagStats{
		{Name: "old-popular", UsageCount: 50, LastUsedAt: 1},
		{Name: "new-unpopular", UsageCount: 1, LastUsedAt: 100},
		{Name: "new-popular", UsageCount: 10, LastUsedAt: 100},
	}}
	sampler := NewSampler(source, 100)

	names, err := sampler.Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"new-popular", "new-unpopular", "old-popular"}, names)
}

func TestSampler_Sample_CapsAtSize(t *testing.T) {
	stats := make([]TagStats, 0, 10)
	for i := 0; i < 10; i++ {
		stats = append(stats, TagStats{Name: "tag", UsageCount: i, LastUsedAt: int64(i)})
	}
	sampler := NewSampler(&fakeStatsSource{stats: stats}, 3)

	names, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 3)
}
