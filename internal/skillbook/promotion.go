package skillbook

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skilld/internal/skill"
)

// Promotion thresholds: a skill qualifies once it has collected enough
// votes with a high enough helpful share.
const (
	DefaultPromotionMinVotes       = 10
	DefaultPromotionMinSuccessRate = 0.85
)

// Promotion errors.
var (
	ErrNotBroader    = errors.New("promotion target must be a broader level")
	ErrAlreadyAtTop  = errors.New("skill is already global")
	ErrDeleteOldSide = errors.New("skill promoted but old layer cleanup failed")
)

// PromotionCandidates returns copies of the loaded skills that satisfy the
// promotion predicate with the given thresholds. Promotion itself is an
// explicit maintenance operation; nothing here runs it automatically.
func (s *Service) PromotionCandidates(minVotes int, minSuccessRate float64) []*skill.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*skill.Skill
	for _, sk := range s.book.All() {
		if sk.ShouldPromote(minVotes, minSuccessRate) {
			out = append(out, sk)
		}
	}
	return out
}

// Promote relocates a skill to a broader hierarchy level, keeping its id.
// The skill is written to the new layer first and removed from the old
// layer second, so a crash in between leaves it present in both files; on
// the next load the broader layer merges first and wins, making the new
// layer the source of truth.
//
// If the old-layer cleanup fails the promotion itself has succeeded; the
// returned error wraps ErrDeleteOldSide and the stale copy is superseded
// on the next load.
func (s *Service) Promote(id string, target skill.Level) (*skill.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.book.Get(id)
	if err != nil {
		return nil, err
	}
	if cur.HierarchyLevel == skill.LevelGlobal || cur.HierarchyLevel == "" {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAtTop, id)
	}
	if !target.Valid() {
		return nil, skill.ErrInvalidLevel
	}
	if target.Depth() >= cur.HierarchyLevel.Depth() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNotBroader, cur.HierarchyLevel, target)
	}

	oldPath := s.origins[id]
	oldLevel := cur.HierarchyLevel

	updated, err := s.book.SetLevel(id, target)
	if err != nil {
		return nil, err
	}

	newPath, err := s.router.WritePath(updated, s.pctx)
	if err != nil {
		s.revertLevelLocked(id, oldLevel)
		return nil, err
	}

	if newPath == oldPath {
		if err := s.saveLayerLocked(newPath); err != nil {
			s.revertLevelLocked(id, oldLevel)
			return nil, err
		}
		return updated, nil
	}

	s.origins[id] = newPath
	if err := s.saveLayerLocked(newPath); err != nil {
		s.origins[id] = oldPath
		s.revertLevelLocked(id, oldLevel)
		return nil, err
	}

	if oldPath != "" {
		if err := s.saveLayerLocked(oldPath); err != nil {
			s.logger.Warn("promotion left a stale copy in the old layer",
				zap.String("id", id),
				zap.String("old_layer", oldPath),
				zap.Error(err))
			return updated, fmt.Errorf("%w: %v", ErrDeleteOldSide, err)
		}
	}

	s.logger.Info("promoted skill",
		zap.String("id", id),
		zap.String("from", string(oldLevel)),
		zap.String("to", string(target)),
		zap.String("layer", newPath))

	return updated, nil
}

// revertLevelLocked undoes an in-memory SetLevel after a failed persist.
func (s *Service) revertLevelLocked(id string, level skill.Level) {
	if sk, ok := s.book.skills[id]; ok {
		sk.HierarchyLevel = level
		if sk.PromotionCount > 0 {
			sk.PromotionCount--
		}
	}
}
