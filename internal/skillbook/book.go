// Package skillbook maintains the unified in-memory view of skills merged
// from one or more hierarchy layers, and the context-aware service that
// loads, mutates, and persists them.
package skillbook

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/skilld/internal/similarity"
	"github.com/fyrsmithlabs/skilld/internal/skill"
)

// Common errors for skillbook operations.
var (
	ErrDuplicateID   = errors.New("skill id already present")
	ErrSkillNotFound = errors.New("skill not found")
	ErrNilSkill      = errors.New("skill cannot be nil")
)

// Book owns the id-to-skill mapping plus a section index kept in insertion
// order. The two indices are updated together on every insert and remove.
// Book is not safe for concurrent use; the Service serializes access.
type Book struct {
	skills   map[string]*skill.Skill
	sections map[string][]string
	order    []string
}

// NewBook creates an empty skillbook.
func NewBook() *Book {
	return &Book{
		skills:   make(map[string]*skill.Skill),
		sections: make(map[string][]string),
	}
}

// Insert adds a skill to both indices. The book stores its own copy so the
// caller cannot alias internal state. Fails with ErrDuplicateID when the id
// is already present: callers merging layers check-and-skip instead, so the
// first layer loaded wins for a colliding id.
func (b *Book) Insert(sk *skill.Skill) error {
	if sk == nil {
		return ErrNilSkill
	}
	if err := sk.Validate(); err != nil {
		return err
	}
	if _, ok := b.skills[sk.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, sk.ID)
	}

	cp := sk.Clone()
	b.skills[cp.ID] = cp
	b.sections[cp.Section] = append(b.sections[cp.Section], cp.ID)
	b.order = append(b.order, cp.ID)
	return nil
}

// Has reports whether a skill with the given id is loaded.
func (b *Book) Has(id string) bool {
	_, ok := b.skills[id]
	return ok
}

// Get returns a copy of the skill with the given id.
func (b *Book) Get(id string) (*skill.Skill, error) {
	sk, ok := b.skills[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	return sk.Clone(), nil
}

// Len returns the number of loaded skills.
func (b *Book) Len() int {
	return len(b.skills)
}

// SectionIDs returns the ids in a section, in insertion order.
func (b *Book) SectionIDs(section string) []string {
	ids := b.sections[section]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Sections returns the section names with at least one skill.
func (b *Book) Sections() []string {
	names := make([]string, 0, len(b.sections))
	for name := range b.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns copies of every loaded skill in insertion order.
func (b *Book) All() []*skill.Skill {
	out := make([]*skill.Skill, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.skills[id].Clone())
	}
	return out
}

// Score increments the named counter on a skill and refreshes its updated
// timestamp. Returns a copy of the mutated skill.
func (b *Book) Score(id string, vote skill.Vote, delta int) (*skill.Skill, error) {
	sk, ok := b.skills[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	if err := sk.Score(vote, delta); err != nil {
		return nil, err
	}
	return sk.Clone(), nil
}

// Touch refreshes a skill's updated timestamp without changing anything
// else. Used when a near-duplicate add resolves to an existing skill.
func (b *Book) Touch(id string) (*skill.Skill, error) {
	sk, ok := b.skills[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	sk.Touch()
	return sk.Clone(), nil
}

// SetLevel moves a skill to a different hierarchy level, incrementing its
// promotion count and refreshing its timestamp. Returns a copy.
func (b *Book) SetLevel(id string, level skill.Level) (*skill.Skill, error) {
	if !level.Valid() {
		return nil, skill.ErrInvalidLevel
	}
	sk, ok := b.skills[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	sk.HierarchyLevel = level
	sk.PromotionCount++
	sk.Touch()
	return sk.Clone(), nil
}

// Remove deletes a skill from both indices.
func (b *Book) Remove(id string) error {
	sk, ok := b.skills[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}

	delete(b.skills, id)
	b.sections[sk.Section] = deleteID(b.sections[sk.Section], id)
	if len(b.sections[sk.Section]) == 0 {
		delete(b.sections, sk.Section)
	}
	b.order = deleteID(b.order, id)
	return nil
}

// FindSimilar scans loaded skills in insertion order and returns a copy of
// the first one whose content similarity to content meets the threshold.
// Insertion order is load order, so on ties the broader-scope skill (global
// loads first) is preferred.
func (b *Book) FindSimilar(content string, threshold float64) (*skill.Skill, bool) {
	for _, id := range b.order {
		sk := b.skills[id]
		if similarity.Score(sk.Content, content) >= threshold {
			return sk.Clone(), true
		}
	}
	return nil, false
}

// Rank returns copies of the skills matching pred, best first: net score
// (helpful minus harmful) descending, ties broken by most recent update.
func (b *Book) Rank(pred func(*skill.Skill) bool) []*skill.Skill {
	var out []*skill.Skill
	for _, id := range b.order {
		sk := b.skills[id]
		if pred == nil || pred(sk) {
			out = append(out, sk.Clone())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NetScore() != out[j].NetScore() {
			return out[i].NetScore() > out[j].NetScore()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	return out
}

func deleteID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
