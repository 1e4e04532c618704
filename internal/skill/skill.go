// Package skill defines the skill entity: one stored, reusable textual
// lesson with vote counters and optional context tags.
package skill

import (
	"errors"
	"strings"
	"time"
)

// Common errors for skill operations.
var (
	ErrEmptyContent   = errors.New("skill content cannot be empty")
	ErrInvalidSection = errors.New("skill section cannot be empty")
	ErrInvalidVote    = errors.New("vote must be helpful, harmful, or neutral")
	ErrInvalidLevel   = errors.New("invalid hierarchy level")
	ErrInvalidDelta   = errors.New("vote delta must be positive")
)

// Conventional sections. Sections are free-form strings; these two are the
// ones the learning path writes.
const (
	SectionSuccess = "success"
	SectionFailure = "failure"
)

// Level identifies the hierarchy layer a skill belongs to.
type Level string

const (
	// LevelGlobal applies everywhere and is the default for skills without
	// an explicit level.
	LevelGlobal Level = "global"

	// LevelLanguage applies to one programming language.
	LevelLanguage Level = "language"

	// LevelFramework applies to one framework.
	LevelFramework Level = "framework"

	// LevelProject applies to a single project.
	LevelProject Level = "project"
)

// Valid reports whether l is a known hierarchy level.
func (l Level) Valid() bool {
	switch l {
	case LevelGlobal, LevelLanguage, LevelFramework, LevelProject:
		return true
	}
	return false
}

// Depth returns the narrowness of the level: 0 for global up to 3 for
// project. Promotion moves a skill to a level with a smaller depth.
func (l Level) Depth() int {
	switch l {
	case LevelLanguage:
		return 1
	case LevelFramework:
		return 2
	case LevelProject:
		return 3
	default:
		return 0
	}
}

// Vote names one of the three score counters.
type Vote string

const (
	VoteHelpful Vote = "helpful"
	VoteHarmful Vote = "harmful"
	VoteNeutral Vote = "neutral"
)

// Valid reports whether v names a known counter.
func (v Vote) Valid() bool {
	return v == VoteHelpful || v == VoteHarmful || v == VoteNeutral
}

// Skill is one stored lesson. The ID is assigned once, at creation, by the
// owning layer's section counter and is never reassigned. Content is the
// only field intentionally mutated after creation; the vote counters only
// ever increase.
type Skill struct {
	ID      string `json:"id"`
	Section string `json:"section"`
	Content string `json:"content"`

	Helpful int `json:"helpful"`
	Harmful int `json:"harmful"`
	Neutral int `json:"neutral"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Context tags, set at creation. Used for matching and routing, never
	// for identity.
	Language    string `json:"language,omitempty"`
	Framework   string `json:"framework,omitempty"`
	ProjectType string `json:"projectType,omitempty"`

	// HierarchyLevel determines which layer the skill is persisted to.
	// Absent means global.
	HierarchyLevel Level `json:"hierarchyLevel,omitempty"`

	// PromotionCount tracks how many times the skill moved to a broader
	// layer. Monitoring only.
	PromotionCount int `json:"promotionCount,omitempty"`
}

// New creates a skill with the given identity and content. Timestamps are
// set to now (UTC) and the level defaults to global.
func New(id, section, content string) (*Skill, error) {
	if section == "" {
		return nil, ErrInvalidSection
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	now := time.Now().UTC()
	return &Skill{
		ID:             id,
		Section:        section,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
		HierarchyLevel: LevelGlobal,
	}, nil
}

// Validate checks structural invariants on a skill, typically after loading
// it from disk.
func (s *Skill) Validate() error {
	if s.ID == "" {
		return errors.New("skill ID cannot be empty")
	}
	if s.Section == "" {
		return ErrInvalidSection
	}
	if strings.TrimSpace(s.Content) == "" {
		return ErrEmptyContent
	}
	if s.Helpful < 0 || s.Harmful < 0 || s.Neutral < 0 {
		return errors.New("vote counters cannot be negative")
	}
	if s.HierarchyLevel != "" && !s.HierarchyLevel.Valid() {
		return ErrInvalidLevel
	}
	return nil
}

// Touch refreshes the updated timestamp.
func (s *Skill) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Score increments the named counter by delta and refreshes UpdatedAt.
// Counters are monotonic: a non-positive delta is rejected.
func (s *Skill) Score(vote Vote, delta int) error {
	if !vote.Valid() {
		return ErrInvalidVote
	}
	if delta <= 0 {
		return ErrInvalidDelta
	}

	switch vote {
	case VoteHelpful:
		s.Helpful += delta
	case VoteHarmful:
		s.Harmful += delta
	case VoteNeutral:
		s.Neutral += delta
	}
	s.Touch()
	return nil
}

// NetScore is the ranking score: helpful minus harmful votes.
func (s *Skill) NetScore() int {
	return s.Helpful - s.Harmful
}

// TotalVotes is the total evidence collected for the skill.
func (s *Skill) TotalVotes() int {
	return s.Helpful + s.Harmful + s.Neutral
}

// MatchesContext reports whether the skill applies to the given context.
// Global skills match everything. A context tag set on both sides must
// agree case-insensitively; a tag missing on either side does not exclude.
func (s *Skill) MatchesContext(language, framework, projectType string) bool {
	if s.HierarchyLevel == "" || s.HierarchyLevel == LevelGlobal {
		return true
	}
	if s.Language != "" && language != "" && !strings.EqualFold(s.Language, language) {
		return false
	}
	if s.Framework != "" && framework != "" && !strings.EqualFold(s.Framework, framework) {
		return false
	}
	if s.ProjectType != "" && projectType != "" && !strings.EqualFold(s.ProjectType, projectType) {
		return false
	}
	return true
}

// ShouldPromote reports whether the skill has proven useful enough to move
// to a broader layer: at least minVotes total votes with a helpful share of
// at least minSuccessRate. Global skills are never promoted further.
func (s *Skill) ShouldPromote(minVotes int, minSuccessRate float64) bool {
	if s.HierarchyLevel == "" || s.HierarchyLevel == LevelGlobal {
		return false
	}

	total := s.TotalVotes()
	if total < minVotes {
		return false
	}

	return float64(s.Helpful)/float64(total) >= minSuccessRate
}

// Clone returns a deep copy. The skillbook hands out clones so callers can
// never alias its internal state.
func (s *Skill) Clone() *Skill {
	cp := *s
	return &cp
}
