package skillbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/skilld/internal/skill"
	"github.com/fyrsmithlabs/skilld/internal/store"
)

func TestPromotionCandidates(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	proven := mustSkill(t, "success-00001", skill.SectionSuccess, "proven project lesson")
	proven.HierarchyLevel = skill.LevelProject
	proven.Helpful = 12

	unproven := mustSkill(t, "success-00002", skill.SectionSuccess, "unproven project lesson")
	unproven.HierarchyLevel = skill.LevelProject
	unproven.Helpful = 2

	global := mustSkill(t, "success-00003", skill.SectionSuccess, "proven global lesson")
	global.Helpful = 100

	seedLayer(t, cfg.ProjectPath("acme-api"), proven, unproven)
	seedLayer(t, cfg.GlobalPath(), global)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	cands := svc.PromotionCandidates(DefaultPromotionMinVotes, DefaultPromotionMinSuccessRate)
	require.Len(t, cands, 1)
	assert.Equal(t, "success-00001", cands[0].ID)
}

func TestPromote_MovesSkillBetweenLayers(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	sk := mustSkill(t, "success-00001", skill.SectionSuccess, "project lesson worth sharing")
	sk.HierarchyLevel = skill.LevelProject
	sk.Helpful = 12
	projPath := cfg.ProjectPath("acme-api")
	seedLayer(t, projPath, sk)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	promoted, err := svc.Promote("success-00001", skill.LevelLanguage)
	require.NoError(t, err)
	assert.Equal(t, skill.LevelLanguage, promoted.HierarchyLevel)
	assert.Equal(t, 1, promoted.PromotionCount)
	assert.Equal(t, 12, promoted.Helpful, "counters travel with the skill")

	st := store.New(nil)

	langDisk, err := st.Load(cfg.LanguagePath("python"))
	require.NoError(t, err)
	require.Len(t, langDisk, 1)
	assert.Equal(t, "success-00001", langDisk[0].ID)
	assert.Equal(t, skill.LevelLanguage, langDisk[0].HierarchyLevel)

	projDisk, err := st.Load(projPath)
	require.NoError(t, err)
	assert.Empty(t, projDisk, "old layer no longer holds the skill")

	// The view still has exactly one copy
	assert.Equal(t, 1, svc.Len())
	got, err := svc.Get("success-00001")
	require.NoError(t, err)
	assert.Equal(t, skill.LevelLanguage, got.HierarchyLevel)
}

func TestPromote_SubsequentMutationsHitNewLayer(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	sk := mustSkill(t, "success-00001", skill.SectionSuccess, "project lesson")
	sk.HierarchyLevel = skill.LevelProject
	seedLayer(t, cfg.ProjectPath("acme-api"), sk)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	_, err = svc.Promote("success-00001", skill.LevelGlobal)
	require.NoError(t, err)

	_, err = svc.Score("success-00001", skill.VoteHelpful)
	require.NoError(t, err)

	globalDisk, err := store.New(nil).Load(cfg.GlobalPath())
	require.NoError(t, err)
	require.Len(t, globalDisk, 1)
	assert.Equal(t, 1, globalDisk[0].Helpful)
}

func TestPromote_RejectsNonBroaderTarget(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	sk := mustSkill(t, "success-00001", skill.SectionSuccess, "language lesson")
	sk.HierarchyLevel = skill.LevelLanguage
	seedLayer(t, cfg.LanguagePath("python"), sk)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	_, err = svc.Promote("success-00001", skill.LevelProject)
	assert.ErrorIs(t, err, ErrNotBroader)

	_, err = svc.Promote("success-00001", skill.LevelLanguage)
	assert.ErrorIs(t, err, ErrNotBroader)

	_, err = svc.Promote("success-00001", "galaxy")
	assert.ErrorIs(t, err, skill.ErrInvalidLevel)
}

func TestPromote_RejectsGlobalSkill(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	seedLayer(t, cfg.GlobalPath(),
		mustSkill(t, "success-00001", skill.SectionSuccess, "already global"))

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	_, err = svc.Promote("success-00001", skill.LevelLanguage)
	assert.ErrorIs(t, err, ErrAlreadyAtTop)
}

func TestPromote_UnknownSkill(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	_, err = svc.Promote("success-99999", skill.LevelGlobal)
	assert.ErrorIs(t, err, ErrSkillNotFound)
}
