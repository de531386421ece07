package llmsvc

import (
	"log/slog"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
)

// TagService extracts and validates tag names for node content.
type TagService struct {
	extractor config.TagExtractor
	validator *tagindex.Validator
}

// NewTagService builds a TagService from the given extractor and tag
// validator.
func NewTagService(extractor config.TagExtractor, validator *tagindex.Validator) *TagService {
	return &TagService{extractor: extractor, validator: validator}
}

// ExtractTags calls the injected extractor with the given ontology sample
// and drops any name that fails tag-grammar validation, logging a warning
// for each one rather than failing the call.
func (s *TagService) ExtractTags(nodeID int64, text string, ontologySample []string) ([]string, error) {
	names, err := s.extractor.ExtractTags(text, ontologySample)
	if err != nil {
		return nil, &htmerr.TagExtractionError{NodeID: nodeID, Err: err}
	}

	valid := make([]string, 0, len(names))
	for _, name := range names {
		if err := s.validator.Validate(name); err != nil {
			slog.Warn("dropping invalid extracted tag", "node_id", nodeID, "tag", name, "error", err)
			continue
		}
		valid = append(valid, name)
	}
	return valid, nil
}
