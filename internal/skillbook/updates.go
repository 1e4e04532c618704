package skillbook

import "github.com/fyrsmithlabs/skilld/internal/skill"

// OpType identifies one update operation kind.
type OpType string

const (
	OpAdd    OpType = "ADD"
	OpScore  OpType = "SCORE"
	OpRemove OpType = "REMOVE"
)

// Operation is one entry in an update batch. ADD uses Section, Content,
// the context tags, and Level; SCORE uses SkillID and Vote; REMOVE uses
// SkillID.
type Operation struct {
	Type OpType `json:"type"`

	Section     string      `json:"section,omitempty"`
	Content     string      `json:"content,omitempty"`
	Language    string      `json:"language,omitempty"`
	Framework   string      `json:"framework,omitempty"`
	ProjectType string      `json:"projectType,omitempty"`
	Level       skill.Level `json:"hierarchyLevel,omitempty"`

	SkillID string     `json:"skillId,omitempty"`
	Vote    skill.Vote `json:"vote,omitempty"`
}

// UpdateBatch is an ordered list of operations produced by the reflection
// pipeline. Operations are independent: a failing operation never blocks
// its siblings.
type UpdateBatch struct {
	Operations []Operation `json:"operations"`
}

// OpResult reports the outcome of a single operation in a batch.
type OpResult struct {
	Op      Operation `json:"op"`
	SkillID string    `json:"skillId,omitempty"`
	IsNew   bool      `json:"isNew,omitempty"`
	Error   string    `json:"error,omitempty"`

	// Err carries the underlying error for programmatic inspection; Error
	// mirrors it for JSON consumers.
	Err error `json:"-"`
}

// Failed reports whether the operation did not apply.
func (r OpResult) Failed() bool {
	return r.Err != nil
}

// BatchSummary aggregates the outcome of an applied batch.
type BatchSummary struct {
	Added    int `json:"added"`
	Deduped  int `json:"deduped"`
	Scored   int `json:"scored"`
	Removed  int `json:"removed"`
	Failures int `json:"failures"`
}

// Summarize tallies a result list into a summary.
func Summarize(results []OpResult) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		if r.Failed() {
			s.Failures++
			continue
		}
		switch r.Op.Type {
		case OpAdd:
			if r.IsNew {
				s.Added++
			} else {
				s.Deduped++
			}
		case OpScore:
			s.Scored++
		case OpRemove:
			s.Removed++
		}
	}
	return s
}
