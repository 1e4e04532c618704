// Package reflection consumes the structured output of an external
// reflector model and turns its extracted patterns into skillbook update
// operations. The model call itself, its prompting, and schema validation
// all live outside this core; only the result shape is known here.
package reflection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/skilld/internal/hierarchy"
	"github.com/fyrsmithlabs/skilld/internal/skill"
	"github.com/fyrsmithlabs/skilld/internal/skillbook"
)

// Parsing errors.
var (
	ErrNoJSON       = errors.New("no JSON object found in reflection output")
	ErrMissingField = errors.New("reflection output missing required field")
)

// Report is the structured result of one reflection over a task execution.
// Patterns carry the candidate skill contents; the diagnostic fields are
// only present for failed tasks.
type Report struct {
	// ID identifies this report instance; assigned when the report is
	// parsed, not by the model.
	ID string `json:"id,omitempty"`

	Reasoning   string   `json:"reasoning"`
	KeyInsights []string `json:"keyInsights"`
	Patterns    []string `json:"patterns"`

	ErrorIdentified string `json:"errorIdentified,omitempty"`
	RootCause       string `json:"rootCause,omitempty"`
	SuggestedAction string `json:"suggestedAction,omitempty"`
}

// ParseReport extracts and decodes the JSON object embedded in raw model
// output, tolerating surrounding prose or a markdown code fence. The three
// core fields (reasoning, keyInsights, patterns) must be present.
func ParseReport(raw string) (*Report, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}

	var r Report
	if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("decoding reflection output: %w", err)
	}

	if r.Reasoning == "" {
		return nil, fmt.Errorf("%w: reasoning", ErrMissingField)
	}
	if r.KeyInsights == nil {
		return nil, fmt.Errorf("%w: keyInsights", ErrMissingField)
	}
	if r.Patterns == nil {
		return nil, fmt.Errorf("%w: patterns", ErrMissingField)
	}

	r.ID = uuid.New().String()
	return &r, nil
}

// BuildUpdate converts a report into an update batch: one ADD operation
// per non-empty pattern, placed in the success or failure section by the
// task outcome and tagged and routed from the project context.
func BuildUpdate(r *Report, success bool, pctx hierarchy.ProjectContext) skillbook.UpdateBatch {
	section := skill.SectionSuccess
	if !success {
		section = skill.SectionFailure
	}
	level := hierarchy.LevelFor(pctx)

	var ops []skillbook.Operation
	for _, pattern := range r.Patterns {
		content := strings.TrimSpace(pattern)
		if content == "" {
			continue
		}
		ops = append(ops, skillbook.Operation{
			Type:        skillbook.OpAdd,
			Section:     section,
			Content:     content,
			Language:    pctx.Language,
			Framework:   pctx.Framework,
			ProjectType: pctx.ProjectType,
			Level:       level,
		})
	}

	return skillbook.UpdateBatch{Operations: ops}
}
