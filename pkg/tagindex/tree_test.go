package tagindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildTree_Text(t *testing.T) {
	tree := BuildTree([]string{"project:backend", "project:frontend", "ops"})

	text := tree.Text()
	assert.Contains(t, text, "- ops")
	assert.Contains(t, text, "- project")
	assert.Contains(t, text, "- backend")
	assert.Contains(t, text, "- frontend")
}

func TestTree_Filter(t *testing.T) {
	tree := BuildTree([]string{"project:backend", "project:frontend", "ops"})

	filtered := tree.Filter("project")
	text := filtered.Text()

	assert.Contains(t, text, "project")
	assert.NotContains(t, text, "- ops")
}

func TestTree_Mermaid(t *testing.T) {
	tree := BuildTree([]string{"project:backend"})

	mermaid := tree.Mermaid()
	assert.Contains(t, mermaid, "flowchart TD")
	assert.Contains(t, mermaid, "project")
	assert.Contains(t, mermaid, "backend")
}

func TestTree_SVG(t *testing.T) {
	tree := BuildTree([]string{"project:backend"})

	svg := tree.SVG()
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, "project")
}
