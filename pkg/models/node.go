// Package models holds the persistent entity types of the memory engine:
// Node, Tag, NodeTag, Robot, RobotNode, and FileSource, plus the Metadata
// value type.
package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Node is a single unit of remembered content.
type Node struct {
	ID          int64
	Content     string
	ContentHash string // sha256 hex, 64 chars

	TokenCount int

	// Embedding is nil until the async enrichment job runs. When present it
	// is always padded to the store's configured storage width.
	Embedding *pgvector.Vector
	// EmbeddingDimension records the original, pre-padding width of the
	// vector returned by the embedding generator.
	EmbeddingDimension *int

	SourceID      *int64 // FileSource.ID, if this node was loaded from a file
	ChunkPosition *int

	Metadata Metadata

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastAccessed *time.Time
	AccessCount  int

	DeletedAt *time.Time
}

// Active reports whether the node has not been soft-deleted.
func (n *Node) Active() bool {
	return n.DeletedAt == nil
}

// Tag is a single hierarchical label, colon-delimited root:level1:...:levelN.
type Tag struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Active reports whether the tag has not been soft-deleted.
func (t *Tag) Active() bool {
	return t.DeletedAt == nil
}

// Root returns the first colon-delimited segment of the tag name.
func (t *Tag) Root() string {
	for i := 0; i < len(t.Name); i++ {
		if t.Name[i] == ':' {
			return t.Name[:i]
		}
	}
	return t.Name
}

// Depth returns the number of colon-delimited segments in the tag name.
func (t *Tag) Depth() int {
	depth := 1
	for i := 0; i < len(t.Name); i++ {
		if t.Name[i] == ':' {
			depth++
		}
	}
	return depth
}

// NodeTag is the many-to-many association between a Node and a Tag.
type NodeTag struct {
	ID        int64
	NodeID    int64
	TagID     int64
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Robot is an agent identity that interacts with HTM.
type Robot struct {
	ID           int64
	Name         string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// RobotNode records a robot's relationship to a node.
type RobotNode struct {
	ID                int64
	RobotID           int64
	NodeID            int64
	FirstRememberedAt time.Time
	LastRememberedAt  time.Time
	RememberCount     int
	WorkingMemory     bool
}

// FileSource is the optional collaborator tracking file-loaded content.
type FileSource struct {
	ID           int64
	Path         string
	ContentHash  string
	ModTime      time.Time
	Frontmatter  map[string]string
	LastSyncedAt time.Time
}
