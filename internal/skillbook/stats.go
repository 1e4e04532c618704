package skillbook

import (
	"github.com/fyrsmithlabs/skilld/internal/hierarchy"
	"github.com/fyrsmithlabs/skilld/internal/skill"
)

// Stats summarizes the current in-memory view.
type Stats struct {
	TotalSkills   int `json:"totalSkills"`
	HelpfulSkills int `json:"helpfulSkills"`
	HarmfulSkills int `json:"harmfulSkills"`
	NeutralSkills int `json:"neutralSkills"`

	Sections map[string]int `json:"sections"`
	Levels   map[string]int `json:"levels"`

	LoadedSources []string                 `json:"loadedSources"`
	Context       hierarchy.ProjectContext `json:"context"`
}

// Stats computes summary statistics over the loaded skills. A skill counts
// as helpful when its helpful votes exceed its harmful votes, harmful in
// the opposite case, and neutral on a tie.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Sections: make(map[string]int),
		Levels: map[string]int{
			string(skill.LevelGlobal):    0,
			string(skill.LevelLanguage):  0,
			string(skill.LevelFramework): 0,
			string(skill.LevelProject):   0,
		},
		LoadedSources: append([]string(nil), s.sources...),
		Context:       s.pctx,
	}

	for _, sk := range s.book.All() {
		st.TotalSkills++
		st.Sections[sk.Section]++

		level := sk.HierarchyLevel
		if level == "" {
			level = skill.LevelGlobal
		}
		st.Levels[string(level)]++

		switch {
		case sk.Helpful > sk.Harmful:
			st.HelpfulSkills++
		case sk.Harmful > sk.Helpful:
			st.HarmfulSkills++
		default:
			st.NeutralSkills++
		}
	}

	return st
}
