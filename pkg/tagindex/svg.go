package tagindex

import (
	"fmt"
	"strings"
)

const (
	svgLineHeight = 18
	svgIndent     = 16
)

// SVG renders the tree as a minimal SVG document: one <text> element per
// node, indented by depth. It is intended for quick visual inspection, not
// pixel-perfect layout.
func (t *Tree) SVG() string {
	var lines []string
	collectSVGLines(&lines, t.root, 0)

	var body strings.Builder
	for i, line := range lines {
		y := (i + 1) * svgLineHeight
		fmt.Fprintf(&body, `<text x="%d" y="%d" font-family="monospace" font-size="12">%s</text>`+"\n",
			line2indent(line)*svgIndent+4, y, line2text(line))
	}

	height := (len(lines) + 1) * svgLineHeight
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="400" height="%d">%s</svg>`, height, body.String())
}

func collectSVGLines(lines *[]string, n *Node, depth int) {
	for _, seg := range sortedKeys(n.Children) {
		*lines = append(*lines, fmt.Sprintf("%d\x00%s", depth, seg))
		collectSVGLines(lines, n.Children[seg], depth+1)
	}
}

func line2indent(line string) int {
	idx := strings.IndexByte(line, 0)
	var depth int
	fmt.Sscanf(line[:idx], "%d", &depth)
	return depth
}

func line2text(line string) string {
	idx := strings.IndexByte(line, 0)
	return line[idx+1:]
}
