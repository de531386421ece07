// Package tagindex implements the hierarchical, colon-delimited tag
// ontology: name validation, tree assembly for display, ontology sampling
// for TagSvc prompts, and orphan reaping.
package tagindex

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
)

// nameRE is the tag grammar: lowercase alphanumerics and hyphens per
// segment, segments joined by colons.
var nameRE = regexp.MustCompile(`^[a-z0-9-]+(:[a-z0-9-]+)*$`)

// Validator checks candidate tag names against the grammar and the
// configured maximum depth.
type Validator struct {
	maxDepth int
}

// NewValidator builds a Validator for the given max_tag_depth (spec.md
// default 4).
func NewValidator(maxDepth int) *Validator {
	return &Validator{maxDepth: maxDepth}
}

// Validate returns a *htmerr.ValidationError if name does not match the
// tag grammar or exceeds the configured depth.
func (v *Validator) Validate(name string) error {
	if !nameRE.MatchString(name) {
		return htmerr.NewValidationError("tag", fmt.Sprintf("%q does not match tag grammar", name))
	}
	if depth := strings.Count(name, ":") + 1; depth > v.maxDepth {
		return htmerr.NewValidationError("tag", fmt.Sprintf("%q has depth %d, exceeds max_tag_depth %d", name, depth, v.maxDepth))
	}
	return nil
}

// ValidateAll validates every name in names, dropping (not failing on)
// invalid ones. It returns the valid subset and the dropped names.
func (v *Validator) ValidateAll(names []string) (valid []string, dropped []string) {
	for _, n := range names {
		if err := v.Validate(n); err != nil {
			dropped = append(dropped, n)
			continue
		}
		valid = append(valid, n)
	}
	return valid, dropped
}
