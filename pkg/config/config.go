// Package config holds the explicit configuration value HTM is constructed
// with, the capability interfaces callers inject (embedding, tag
// extraction, tokenization, file reading), and the validator that checks a
// Config before it is used.
//
// There is no ambient/global configuration here by design: every subsystem
// receives the *Config value it needs at construction time, so tests never
// need a global reset between cases.
package config

import "time"

// EmbeddingGenerator embeds a single piece of text, returning a dense
// vector. Implementations should be deterministic for a given input;
// failures surface as htmerr.EmbeddingError.
type EmbeddingGenerator interface {
	Embed(text string) ([]float32, error)
}

// TagExtractor proposes hierarchical tag names for a piece of text, given a
// sample of the existing tag ontology to bias it toward consistent
// categorization. Returned names are validated against the tag grammar by
// the caller; invalid names are dropped, not treated as failures.
type TagExtractor interface {
	ExtractTags(text string, existingOntologySample []string) ([]string, error)
}

// TokenCounter counts the number of tokens a tokenizer would produce for a
// piece of text. The default implementation (pkg/tokencount) wraps a
// GPT-family BPE encoding.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// FileReader reads a single file's content plus any front-matter for the
// file-source loader. Actual filesystem and markdown-parsing concerns are
// the caller's; HTM only tracks what was loaded and chunks it into nodes.
type FileReader interface {
	ReadFile(path string) (content string, frontmatter map[string]string, modTime time.Time, err error)
}

// JobBackend names which async scheduling strategy the JobRunner uses.
type JobBackend string

const (
	// JobBackendInline runs jobs synchronously in the calling goroutine.
	JobBackendInline JobBackend = "inline"
	// JobBackendThread runs jobs on an in-process bounded worker pool.
	JobBackendThread JobBackend = "thread"
	// JobBackendExternal enqueues jobs by name onto a caller-supplied sink.
	JobBackendExternal JobBackend = "external"
)

// SearchWeights controls the hybrid-search linear combination:
// combined = Vector*vector_similarity + Tag*tag_boost.
type SearchWeights struct {
	Vector float64
	Tag    float64
}

// Config is the explicit, immutable-after-construction configuration value
// every HTM subsystem is built from.
type Config struct {
	// Capability injection points (spec.md §9 "callable configuration points").
	EmbeddingGenerator EmbeddingGenerator
	TagExtractor       TagExtractor
	TokenCounter       TokenCounter
	FileReader         FileReader

	// Content and tagging limits.
	MaxContentBytes int
	MaxManualTags   int
	MaxTagDepth     int

	// Embedding storage.
	StorageEmbeddingWidth int
	EmbeddingDimensions   int // informational only; does not constrain storage width

	// Async job scheduling.
	JobBackend     JobBackend
	JobConcurrency int

	// Tag ontology sampling.
	TagOntologySampleSize int

	// Hybrid search.
	SearchWeights   SearchWeights
	HybridFanOut    int
	CacheSize       int
	CacheTTLSeconds int

	// Working memory.
	WorkingMemorySizeTokens int

	// File-source loading (spec.md §6 load_file/load_directory).
	FileChunkTokens int

	// Timeframe parsing.
	WeekStart WeekStart

	// Timeouts (spec.md §5).
	EmbeddingTimeout     time.Duration
	TagExtractionTimeout time.Duration
	DBOperationTimeout   time.Duration

	// Database connection.
	DatabaseURL      string
	DatabasePoolSize int
}

// WeekStart names which day a "last week" timeframe expression begins on.
type WeekStart string

const (
	WeekStartSunday WeekStart = "sunday"
	WeekStartMonday WeekStart = "monday"
)

// Defaults returns a Config with every documented default from spec.md §6
// populated, except for the required capability injections and database
// URL, which the caller must still set.
func Defaults() *Config {
	return &Config{
		MaxContentBytes:         1_048_576,
		MaxManualTags:           1000,
		MaxTagDepth:             4,
		StorageEmbeddingWidth:   2000,
		JobBackend:              JobBackendInline,
		JobConcurrency:          5,
		TagOntologySampleSize:   100,
		SearchWeights:           SearchWeights{Vector: 0.7, Tag: 0.3},
		HybridFanOut:            2,
		CacheSize:               1000,
		CacheTTLSeconds:         60,
		WorkingMemorySizeTokens: 128_000,
		FileChunkTokens:         2000,
		WeekStart:               WeekStartSunday,
		EmbeddingTimeout:        120 * time.Second,
		TagExtractionTimeout:    180 * time.Second,
		DBOperationTimeout:      30 * time.Second,
		DatabasePoolSize:        10,
	}
}
