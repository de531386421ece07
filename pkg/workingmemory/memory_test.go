package workingmemory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_FitsWithinBudget(t *testing.T) {
	m := New(100)
	evicted, err := m.Add(1, "hello", 30, 1.0, false)
	require.NoError(t, err)
	assert.Empty(t, evicted)
	assert.Equal(t, 30, m.Tokens())
	assert.Equal(t, 1, m.Len())
}

func TestAdd_RejectsOversizedNode(t *testing.T) {
	m := New(100)
	_, err := m.Add(1, "hello", 200, 1.0, false)
	require.Error(t, err)
}

// TestEvictionScenario exercises spec scenario 3: five 30-token nodes with
// importances [1,1,5,5,9], then a sixth 30-token/importance-2 node. Final
// working memory keeps the three highest-importance/most-recent entries
// (4, 5 and 6, 90 tokens) that fit the 100 token budget.
func TestEvictionScenario(t *testing.T) {
	m := New(100)

	type node struct {
		id         int64
		importance float64
	}
	nodes := []node{
		{1, 1}, {2, 1}, {3, 5}, {4, 5}, {5, 9},
	}
	for _, n := range nodes {
		_, err := m.Add(n.id, "content", 30, n.importance, false)
		require.NoError(t, err)
	}

	_, err := m.Add(6, "content", 30, 2, false)
	require.NoError(t, err)

	assert.LessOrEqual(t, m.Tokens(), 100)
	assert.False(t, m.Contains(1), "importance-1 node should be evicted")
	assert.False(t, m.Contains(2), "importance-1 node should be evicted")
	assert.False(t, m.Contains(3), "oldest importance-5 node should be evicted")
	assert.True(t, m.Contains(4), "surviving importance-5 node should remain")
	assert.True(t, m.Contains(5))
	assert.True(t, m.Contains(6))
	assert.Equal(t, 90, m.Tokens())
	assert.Equal(t, 3, m.Len())
}

func TestEvictionMonotonicity(t *testing.T) {
	m := New(90)
	_, err := m.Add(1, "a", 30, 9, false)
	require.NoError(t, err)
	_, err = m.Add(2, "b", 30, 1, false)
	require.NoError(t, err)
	_, err = m.Add(3, "c", 30, 5, false)
	require.NoError(t, err)

	evicted, err := m.Add(4, "d", 30, 3, false)
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	assert.Equal(t, int64(2), evicted[0], "lowest-importance entry evicts first")
}

func TestTouch_MovesToEndWithoutChangingContent(t *testing.T) {
	m := New(100)
	_, err := m.Add(1, "original", 10, 1, false)
	require.NoError(t, err)
	m.Touch(1)

	ids := m.NodeIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, int64(1), ids[0])
}

func TestAssembleContext_BalancedStrategyFavorsRecentHighImportance(t *testing.T) {
	m := New(1000)
	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Add(1, "old-important", 10, 9, false)
	require.NoError(t, err)

	m.now = func() time.Time { return now.Add(10 * time.Hour) }
	_, err = m.Add(2, "recent-low", 10, 1, false)
	require.NoError(t, err)

	m.now = func() time.Time { return now.Add(10 * time.Hour) }
	ctx := m.AssembleContext(StrategyBalanced, 1000)
	assert.Contains(t, ctx, "old-important")
	assert.Contains(t, ctx, "recent-low")
}

func TestAssembleContext_TruncatesToMaxTokens(t *testing.T) {
	m := New(1000)
	_, err := m.Add(1, "first", 50, 5, false)
	require.NoError(t, err)
	_, err = m.Add(2, "second", 50, 5, false)
	require.NoError(t, err)

	ctx := m.AssembleContext(StrategyImportant, 50)
	assert.NotContains(t, ctx, "\n")
}

func TestRemove(t *testing.T) {
	m := New(100)
	_, err := m.Add(1, "x", 10, 1, false)
	require.NoError(t, err)
	m.Remove(1)
	assert.False(t, m.Contains(1))
	assert.Equal(t, 0, m.Tokens())
}
