package skillbook

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skilld/internal/hierarchy"
	"github.com/fyrsmithlabs/skilld/internal/similarity"
	"github.com/fyrsmithlabs/skilld/internal/skill"
	"github.com/fyrsmithlabs/skilld/internal/store"
)

// Service composes the in-memory Book with the hierarchy router and the
// layer store. It loads every applicable layer into one view, routes new
// skills to the correct layer file, and writes mutations back to the layer
// a skill came from.
//
// All methods are synchronous and safe for concurrent use within one
// process. Concurrent external processes writing the same layer files are
// not synchronized beyond the store's atomic replace; last writer wins.
type Service struct {
	mu     sync.RWMutex
	book   *Book
	router *hierarchy.Router
	store  *store.Store
	logger *zap.Logger

	threshold float64
	pctx      hierarchy.ProjectContext

	// origins maps each loaded skill id to the layer file it belongs to,
	// so scores, removals, and dedup refreshes rewrite the right file.
	origins map[string]string

	// shadowed records ids skipped during a merge because an earlier layer
	// already claimed them. Their on-disk entries are preserved verbatim
	// when that layer is rewritten.
	shadowed map[string]map[string]bool

	// seqHigh tracks the highest sequence handed out per layer+section in
	// this session, so removing a skill never causes its id to be reused.
	seqHigh map[string]int

	sources []string
}

// Option configures a Service.
type Option func(*Service)

// WithThreshold overrides the dedup similarity threshold.
func WithThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// NewService creates a context-aware skillbook over the given hierarchy
// layout. A nil store is rejected; a nil config is accepted but every
// load or write then fails with hierarchy.ErrNoConfig. A nil logger is
// replaced with a no-op logger.
func NewService(cfg *hierarchy.Config, st *store.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("layer store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		book:      NewBook(),
		router:    hierarchy.NewRouter(cfg),
		store:     st,
		logger:    logger,
		threshold: similarity.DefaultThreshold,
		origins:   make(map[string]string),
		shadowed:  make(map[string]map[string]bool),
		seqHigh:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoadHierarchical replaces the in-memory view with the merged contents of
// every layer the context selects, global first. A skill id seen in an
// earlier layer shadows the same id in later layers. Returns the number of
// skills loaded.
func (s *Service) LoadHierarchical(pctx hierarchy.ProjectContext) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(pctx)
}

// Reload re-reads all layers for the current context, picking up changes
// made by external writers.
func (s *Service) Reload() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(s.pctx)
}

func (s *Service) loadLocked(pctx hierarchy.ProjectContext) (int, error) {
	paths, err := s.router.ReadPaths(pctx)
	if err != nil {
		return 0, err
	}

	book := NewBook()
	origins := make(map[string]string)
	shadowed := make(map[string]map[string]bool)
	var sources []string
	total := 0

	for _, path := range paths {
		skills, err := s.store.Load(path)
		if err != nil {
			return 0, err
		}

		loaded := 0
		for _, sk := range skills {
			if book.Has(sk.ID) {
				// First layer loaded wins; remember the loser so a rewrite
				// of its layer does not drop it.
				if shadowed[path] == nil {
					shadowed[path] = make(map[string]bool)
				}
				shadowed[path][sk.ID] = true
				s.logger.Warn("skill id collides with earlier layer, keeping first",
					zap.String("id", sk.ID),
					zap.String("layer", path))
				continue
			}
			if err := book.Insert(sk); err != nil {
				s.logger.Warn("skipping invalid skill",
					zap.String("id", sk.ID),
					zap.String("layer", path),
					zap.Error(err))
				continue
			}
			origins[sk.ID] = path
			loaded++
		}

		if loaded > 0 {
			sources = append(sources, fmt.Sprintf("%s (%d skills)", path, loaded))
		}
		total += loaded
	}

	s.book = book
	s.origins = origins
	s.shadowed = shadowed
	s.sources = sources
	s.pctx = pctx

	s.logger.Info("loaded skillbook hierarchy",
		zap.Int("skills", total),
		zap.Int("layers", len(paths)),
		zap.Int("sources", len(sources)))

	return total, nil
}

// Context returns the project context of the last load.
func (s *Service) Context() hierarchy.ProjectContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pctx
}

// Sources lists the layer files that contributed skills to the current view.
func (s *Service) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.sources))
	copy(out, s.sources)
	return out
}

// Len returns the number of skills in the current view.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Len()
}

// Get returns a copy of a loaded skill.
func (s *Service) Get(id string) (*skill.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Get(id)
}

// All returns copies of every loaded skill in merge order.
func (s *Service) All() []*skill.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.All()
}

// TopSkills returns up to k skills applicable to the current context,
// ranked best first. Callers inject these into prompts.
func (s *Service) TopSkills(k int) []*skill.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pctx := s.pctx
	ranked := s.book.Rank(func(sk *skill.Skill) bool {
		return sk.MatchesContext(pctx.Language, pctx.Framework, pctx.ProjectType)
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// AddRequest describes a candidate skill for Add.
type AddRequest struct {
	Section     string
	Content     string
	Language    string
	Framework   string
	ProjectType string

	// Level routes the skill; empty means global.
	Level skill.Level
}

// AddResult reports what Add did.
type AddResult struct {
	Skill *skill.Skill
	IsNew bool
	Path  string
}

// Add inserts a new skill or refreshes an existing near-duplicate.
//
// The content is first checked against every loaded skill; a similarity
// hit only refreshes the existing skill's updated timestamp (content and
// counters are deliberately untouched) and persists that refresh to the
// skill's own layer. A miss creates a new skill whose id comes from the
// routed layer's section counter, inserts it into the view, and saves the
// layer. If the save fails, the in-memory insert is rolled back and the
// skill is reported as unrecorded.
func (s *Service) Add(req AddRequest) (*AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(req)
}

func (s *Service) addLocked(req AddRequest) (*AddResult, error) {
	if req.Section == "" {
		return nil, skill.ErrInvalidSection
	}
	if req.Content == "" {
		return nil, skill.ErrEmptyContent
	}

	if existing, ok := s.book.FindSimilar(req.Content, s.threshold); ok {
		refreshed, err := s.book.Touch(existing.ID)
		if err != nil {
			return nil, err
		}
		origin := s.origins[existing.ID]
		if origin != "" {
			if err := s.saveLayerLocked(origin); err != nil {
				return nil, err
			}
		}
		s.logger.Debug("deduplicated skill add",
			zap.String("id", refreshed.ID),
			zap.String("layer", origin))
		return &AddResult{Skill: refreshed, IsNew: false, Path: origin}, nil
	}

	level := req.Level
	if level == "" {
		level = skill.LevelGlobal
	}
	if !level.Valid() {
		return nil, skill.ErrInvalidLevel
	}

	target, err := s.router.WritePath(&skill.Skill{HierarchyLevel: level}, s.pctx)
	if err != nil {
		return nil, err
	}

	onDisk, err := s.store.Load(target)
	if err != nil {
		return nil, err
	}

	seq := store.NextSequence(onDisk, req.Section)
	highKey := target + "\x00" + req.Section
	if seq <= s.seqHigh[highKey] {
		// A sequence number is never reissued in this session, even after
		// the skill holding it was removed.
		seq = s.seqHigh[highKey] + 1
	}
	id := store.FormatID(req.Section, seq)
	for s.book.Has(id) {
		// Ids are namespaced by layer and section, so a collision with a
		// skill from another layer is unexpected; step over it rather than
		// violate view-wide uniqueness.
		seq++
		id = store.FormatID(req.Section, seq)
	}

	sk, err := skill.New(id, req.Section, req.Content)
	if err != nil {
		return nil, err
	}
	sk.Language = req.Language
	sk.Framework = req.Framework
	sk.ProjectType = req.ProjectType
	sk.HierarchyLevel = level

	if err := s.book.Insert(sk); err != nil {
		return nil, err
	}
	s.origins[id] = target

	if err := s.saveLayerLocked(target); err != nil {
		_ = s.book.Remove(id)
		delete(s.origins, id)
		s.logger.Error("skill not recorded, layer save failed",
			zap.String("id", id),
			zap.String("layer", target),
			zap.Error(err))
		return nil, err
	}
	s.seqHigh[highKey] = seq

	s.logger.Info("added skill",
		zap.String("id", id),
		zap.String("section", req.Section),
		zap.String("level", string(level)),
		zap.String("layer", target))

	return &AddResult{Skill: sk.Clone(), IsNew: true, Path: target}, nil
}

// Score applies a vote to a skill and persists its layer.
func (s *Service) Score(id string, vote skill.Vote) (*skill.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked(id, vote)
}

func (s *Service) scoreLocked(id string, vote skill.Vote) (*skill.Skill, error) {
	sk, err := s.book.Score(id, vote, 1)
	if err != nil {
		return nil, err
	}
	if origin := s.origins[id]; origin != "" {
		if err := s.saveLayerLocked(origin); err != nil {
			return nil, err
		}
	}
	return sk, nil
}

// Remove deletes a skill from the view and from its layer file.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Service) removeLocked(id string) error {
	origin := s.origins[id]
	if err := s.book.Remove(id); err != nil {
		return err
	}
	if origin != "" {
		// The origin entry is cleared only after the save: saveLayerLocked
		// drops ids whose origin is this layer but which left the book.
		if err := s.saveLayerLocked(origin); err != nil {
			return err
		}
	}
	delete(s.origins, id)
	return nil
}

// ApplyUpdate applies an ordered batch of operations, isolating failures:
// a failing SCORE or REMOVE is reported in its result and does not abort
// the remaining operations.
func (s *Service) ApplyUpdate(batch UpdateBatch) []OpResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]OpResult, 0, len(batch.Operations))
	for _, op := range batch.Operations {
		res := OpResult{Op: op}

		switch op.Type {
		case OpAdd:
			added, err := s.addLocked(AddRequest{
				Section:     op.Section,
				Content:     op.Content,
				Language:    op.Language,
				Framework:   op.Framework,
				ProjectType: op.ProjectType,
				Level:       op.Level,
			})
			if err != nil {
				res.Err = err
			} else {
				res.SkillID = added.Skill.ID
				res.IsNew = added.IsNew
			}

		case OpScore:
			sk, err := s.scoreLocked(op.SkillID, op.Vote)
			if err != nil {
				res.Err = err
			} else {
				res.SkillID = sk.ID
			}

		case OpRemove:
			if err := s.removeLocked(op.SkillID); err != nil {
				res.Err = err
			} else {
				res.SkillID = op.SkillID
			}

		default:
			res.Err = fmt.Errorf("unknown operation type %q", op.Type)
		}

		if res.Err != nil {
			res.Error = res.Err.Error()
			s.logger.Warn("update operation failed",
				zap.String("type", string(op.Type)),
				zap.String("skill_id", op.SkillID),
				zap.Error(res.Err))
		}
		results = append(results, res)
	}

	return results
}

// saveLayerLocked rewrites one layer file from the current view. Entries
// on disk that this view does not own are preserved: ids shadowed during
// the merge keep their stored form, and ids added by external writers
// since the load survive untouched. Ids owned by this view but gone from
// the book are dropped; ids relocated to another layer are dropped here
// and written there.
func (s *Service) saveLayerLocked(path string) error {
	onDisk, err := s.store.Load(path)
	if err != nil {
		return err
	}

	merged := make([]*skill.Skill, 0, len(onDisk)+1)
	seen := make(map[string]bool, len(onDisk))

	for _, d := range onDisk {
		seen[d.ID] = true

		if s.shadowed[path][d.ID] {
			merged = append(merged, d)
			continue
		}
		if s.origins[d.ID] == path {
			if cur, err := s.book.Get(d.ID); err == nil {
				merged = append(merged, cur)
			}
			continue
		}
		if !s.book.Has(d.ID) {
			merged = append(merged, d)
		}
		// Otherwise the book holds this id under another layer: it was
		// relocated away and no longer belongs in this file.
	}

	for id, origin := range s.origins {
		if origin != path || seen[id] {
			continue
		}
		if cur, err := s.book.Get(id); err == nil {
			merged = append(merged, cur)
		}
	}

	return s.store.Save(path, merged)
}
