package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/models"
)

// TimeRange is a half-open [Start, End) interval applied to node.created_at.
// Search primitives OR multiple ranges together (spec.md §6 timeframe grammar).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SearchResult is one ranked row returned by a search primitive.
type SearchResult struct {
	Node  models.Node
	Score float64
}

// SearchFilter bundles the optional timeframe/metadata constraints shared by
// every primitive in this file.
type SearchFilter struct {
	Timeframes     []TimeRange
	MetadataFilter map[string]any
}

// buildFilterSQL appends timeframe and metadata-containment predicates to a
// query, starting placeholders at argOffset+1, and returns the accumulated
// args to append to the caller's parameter list.
func buildFilterSQL(f SearchFilter, argOffset int) (sqlFragment string, args []any, err error) {
	var clauses []string
	n := argOffset

	if len(f.Timeframes) > 0 {
		var ors []string
		for _, tr := range f.Timeframes {
			n++
			startArg := n
			n++
			endArg := n
			ors = append(ors, fmt.Sprintf("(node.created_at >= $%d AND node.created_at < $%d)", startArg, endArg))
			args = append(args, tr.Start, tr.End)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	if len(f.MetadataFilter) > 0 {
		metaJSON, merr := json.Marshal(f.MetadataFilter)
		if merr != nil {
			return "", nil, merr
		}
		n++
		clauses = append(clauses, fmt.Sprintf("node.metadata @> $%d", n))
		args = append(args, metaJSON)
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " AND " + strings.Join(clauses, " AND "), args, nil
}

// VectorSearch ranks active nodes by cosine similarity to query, descending,
// requiring a non-null embedding and a minimum similarity threshold.
func (s *Store) VectorSearch(ctx context.Context, query pgvector.Vector, k int, minSimilarity float64, f SearchFilter) ([]SearchResult, error) {
	filterSQL, filterArgs, err := buildFilterSQL(f, 2)
	if err != nil {
		return nil, err
	}

	queryStr := `
		SELECT ` + nodeColumns("node") + `, 1 - (node.embedding <=> $1) AS score
		FROM node
		WHERE node.deleted_at IS NULL AND node.embedding IS NOT NULL
		  AND 1 - (node.embedding <=> $1) >= $2` + filterSQL + `
		ORDER BY score DESC
		LIMIT ` + fmt.Sprintf("$%d", len(filterArgs)+3)

	args := append([]any{query, minSimilarity}, filterArgs...)
	args = append(args, k)

	return s.runSearch(ctx, queryStr, args)
}

// FulltextSearch ranks active nodes by Postgres ts_rank relevance against
// the tokenized content column.
func (s *Store) FulltextSearch(ctx context.Context, query string, k int, f SearchFilter) ([]SearchResult, error) {
	filterSQL, filterArgs, err := buildFilterSQL(f, 1)
	if err != nil {
		return nil, err
	}

	queryStr := `
		SELECT ` + nodeColumns("node") + `, ts_rank(to_tsvector('english', node.content), plainto_tsquery('english', $1)) AS score
		FROM node
		WHERE node.deleted_at IS NULL
		  AND to_tsvector('english', node.content) @@ plainto_tsquery('english', $1)` + filterSQL + `
		ORDER BY score DESC
		LIMIT ` + fmt.Sprintf("$%d", len(filterArgs)+2)

	args := append([]any{query}, filterArgs...)
	args = append(args, k)

	return s.runSearch(ctx, queryStr, args)
}

// ByTopic returns active nodes attached to tags matching topic, ordered by
// most recent. Without fuzzy, a tag matches if its name equals topic or
// begins with "topic:" (spec.md §4.5 by_topic). With fuzzy, tags whose
// trigram similarity to topic is >= minSimilarity are also included.
func (s *Store) ByTopic(ctx context.Context, topic string, fuzzy bool, minSimilarity float64, k int, f SearchFilter) ([]SearchResult, error) {
	tagPredicate := "(t.name = $1 OR t.name LIKE $1 || ':%')"
	args := []any{topic}
	nextArg := 2
	if fuzzy {
		tagPredicate += fmt.Sprintf(" OR similarity(t.name, $1) >= $%d", nextArg)
		args = append(args, minSimilarity)
		nextArg++
	}

	filterSQL, filterArgs, err := buildFilterSQL(f, nextArg-1)
	if err != nil {
		return nil, err
	}
	args = append(args, filterArgs...)

	queryStr := fmt.Sprintf(`
		SELECT DISTINCT %s, 0 AS score
		FROM node
		JOIN node_tag nt ON nt.node_id = node.id AND nt.deleted_at IS NULL
		JOIN tag t ON t.id = nt.tag_id AND t.deleted_at IS NULL
		WHERE node.deleted_at IS NULL AND (%s)%s
		ORDER BY node.created_at DESC
		LIMIT $%d
	`, nodeColumns("node"), tagPredicate, filterSQL, len(args)+1)
	args = append(args, k)

	return s.runSearch(ctx, queryStr, args)
}

// lexicalMatchFloor is added to combined for every candidate that matched
// the fulltext query, on top of weightVector*vector_similarity +
// weightTag*tag_boost. Those two terms are bounded by weightVector+weightTag
// (<=1 under the default weights), so a floor of 10 guarantees a lexical hit
// always outranks a candidate that only matched on vector/tag, however noisy
// its embedding similarity happens to be.
const lexicalMatchFloor = 10.0

// HybridSearch combines vector similarity, fulltext relevance, and tag
// overlap via weighted linear combination (spec.md §4.5 Open Question: this
// engine uses the weighted form, not Reciprocal Rank Fusion — see
// DESIGN.md):
//
//	combined = weightVector*vector_similarity + weightTag*tag_boost
//	         + (lexicalMatchFloor + ft_score) if the candidate matched the
//	           fulltext query, 0 otherwise
//
// Without the fulltext term, a candidate that only satisfies the lexical
// query but was never fetched by the vector leg (or was fetched with a weak
// vecScore) could be outranked by a semantically unrelated node whose
// embedding happens to sit close to the query vector. Folding ft_score in
// guarantees an exact lexical match surfaces regardless of embedding noise,
// while ft_score itself still orders multiple lexical matches by relevance.
//
// tag_boost is the fraction of a candidate's tags that either prefix-match
// a query-derived tag or occur textually in the query. Candidates are
// fetched from the top fanOut*k of each of vector and fulltext, merged by
// node id, scored, and truncated to k; ties break by recency.
func (s *Store) HybridSearch(ctx context.Context, query pgvector.Vector, queryText string, queryTags []string, k, fanOut int, weightVector, weightTag float64, f SearchFilter) ([]SearchResult, error) {
	fanK := fanOut * k
	if fanK < k {
		fanK = k
	}

	vecResults, err := s.VectorSearch(ctx, query, fanK, 0, f)
	if err != nil {
		return nil, err
	}
	ftResults, err := s.FulltextSearch(ctx, queryText, fanK, f)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		node     models.Node
		vecScore float64
		ftScore  float64
		hasFT    bool
	}
	merged := make(map[int64]*candidate)
	for _, r := range vecResults {
		merged[r.Node.ID] = &candidate{node: r.Node, vecScore: r.Score}
	}
	for _, r := range ftResults {
		if c, ok := merged[r.Node.ID]; ok {
			c.ftScore = r.Score
			c.hasFT = true
			continue
		}
		merged[r.Node.ID] = &candidate{node: r.Node, ftScore: r.Score, hasFT: true}
	}

	queryLower := strings.ToLower(queryText)
	results := make([]SearchResult, 0, len(merged))
	for _, c := range merged {
		tagNames, err := s.NodeTagNames(ctx, c.node.ID)
		if err != nil {
			return nil, err
		}
		boost := tagBoost(tagNames, queryTags, queryLower)
		combined := weightVector*c.vecScore + weightTag*boost
		if c.hasFT {
			combined += lexicalMatchFloor + c.ftScore
		}
		results = append(results, SearchResult{Node: c.node, Score: combined})
	}

	sortResultsDesc(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// tagBoost computes the fraction of candidateTags that are either a prefix
// match of any queryTags entry, equal to a queryTags entry, or appear
// textually within queryTextLower.
func tagBoost(candidateTags, queryTags []string, queryTextLower string) float64 {
	if len(candidateTags) == 0 {
		return 0
	}
	hits := 0
	for _, ct := range candidateTags {
		ctLower := strings.ToLower(ct)
		matched := false
		for _, qt := range queryTags {
			qtLower := strings.ToLower(qt)
			if ctLower == qtLower || strings.HasPrefix(ctLower, qtLower+":") || strings.HasPrefix(qtLower, ctLower+":") {
				matched = true
				break
			}
		}
		if !matched && strings.Contains(queryTextLower, ctLower) {
			matched = true
		}
		if matched {
			hits++
		}
	}
	return float64(hits) / float64(len(candidateTags))
}

func sortResultsDesc(results []SearchResult) {
	// Insertion sort is fine: result sets are bounded by fanOut*k, small.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0; j-- {
			if better(results[j], results[j-1]) {
				results[j], results[j-1] = results[j-1], results[j]
			} else {
				break
			}
		}
	}
}

func better(a, b SearchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Node.CreatedAt.After(b.Node.CreatedAt)
}

func nodeColumns(alias string) string {
	cols := []string{
		"id", "content", "content_hash", "token_count", "embedding", "embedding_dimension",
		"source_id", "chunk_position", "metadata", "created_at", "updated_at", "last_accessed",
		"access_count", "deleted_at",
	}
	prefixed := make([]string, len(cols))
	for i, c := range cols {
		prefixed[i] = alias + "." + c
	}
	return strings.Join(prefixed, ", ")
}

func (s *Store) runSearch(ctx context.Context, query string, args []any) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, htmerr.NewStoreError("search", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			n         models.Node
			embedding []byte
			metaJSON  []byte
			embDim    sql.NullInt64
			sourceID  sql.NullInt64
			chunkPos  sql.NullInt64
			lastAcc   sql.NullTime
			deletedAt sql.NullTime
			score     float64
		)
		if err := rows.Scan(
			&n.ID, &n.Content, &n.ContentHash, &n.TokenCount, &embedding, &embDim,
			&sourceID, &chunkPos, &metaJSON, &n.CreatedAt, &n.UpdatedAt, &lastAcc,
			&n.AccessCount, &deletedAt, &score,
		); err != nil {
			return nil, htmerr.NewStoreError("search", err)
		}

		if len(embedding) > 0 {
			vec, perr := pgvector.ParseVector(string(embedding))
			if perr != nil {
				return nil, perr
			}
			n.Embedding = &vec
		}
		if embDim.Valid {
			d := int(embDim.Int64)
			n.EmbeddingDimension = &d
		}
		if sourceID.Valid {
			n.SourceID = &sourceID.Int64
		}
		if chunkPos.Valid {
			p := int(chunkPos.Int64)
			n.ChunkPosition = &p
		}
		if lastAcc.Valid {
			n.LastAccessed = &lastAcc.Time
		}
		if deletedAt.Valid {
			n.DeletedAt = &deletedAt.Time
		}
		n.Metadata = models.NewMetadata()
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &n.Metadata); err != nil {
				return nil, err
			}
		}

		results = append(results, SearchResult{Node: n, Score: score})
	}
	return results, rows.Err()
}

// NewSearchFilter builds a SearchFilter from caller-facing timeframes and a
// metadata containment filter. Exported so pkg/longtermmemory can construct
// one without reaching into unexported fields.
func NewSearchFilter(timeframes []TimeRange, metadataFilter map[string]any) SearchFilter {
	return SearchFilter{Timeframes: timeframes, MetadataFilter: metadataFilter}
}
