package skillbook

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/skilld/internal/hierarchy"
	"github.com/fyrsmithlabs/skilld/internal/skill"
	"github.com/fyrsmithlabs/skilld/internal/store"
)

func newTestService(t *testing.T) (*Service, *hierarchy.Config) {
	t.Helper()
	cfg := hierarchy.DefaultConfig(t.TempDir())
	svc, err := NewService(cfg, store.New(nil), nil)
	require.NoError(t, err)
	return svc, cfg
}

var testContext = hierarchy.ProjectContext{
	Language:    "python",
	Framework:   "django",
	ProjectType: "web_backend",
	ProjectID:   "acme-api",
}

func seedLayer(t *testing.T, path string, skills ...*skill.Skill) {
	t.Helper()
	require.NoError(t, store.New(nil).Save(path, skills))
}

func TestNewService_NilStore(t *testing.T) {
	t.Parallel()

	_, err := NewService(hierarchy.DefaultConfig(t.TempDir()), nil, nil)
	assert.Error(t, err)
}

func TestLoadHierarchical_MergesLayers(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	g := mustSkill(t, "success-00001", skill.SectionSuccess, "global lesson")
	l := mustSkill(t, "success-00002", skill.SectionSuccess, "python lesson")
	l.HierarchyLevel = skill.LevelLanguage
	p := mustSkill(t, "failure-00001", skill.SectionFailure, "project lesson")
	p.HierarchyLevel = skill.LevelProject

	seedLayer(t, cfg.GlobalPath(), g)
	seedLayer(t, cfg.LanguagePath("python"), l)
	seedLayer(t, cfg.ProjectPath("acme-api"), p)

	n, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, svc.Len())
	assert.Len(t, svc.Sources(), 3, "framework layer is absent and contributes nothing")
}

func TestLoadHierarchical_FirstLayerWinsOnCollision(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	g := mustSkill(t, "success-00001", skill.SectionSuccess, "global version")
	p := mustSkill(t, "success-00001", skill.SectionSuccess, "project version")
	p.HierarchyLevel = skill.LevelProject

	seedLayer(t, cfg.GlobalPath(), g)
	seedLayer(t, cfg.ProjectPath("acme-api"), p)

	n, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "shadowed entry does not count")

	got, err := svc.Get("success-00001")
	require.NoError(t, err)
	assert.Equal(t, "global version", got.Content)
}

func TestLoadHierarchical_ShadowedEntrySurvivesLayerRewrite(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	g := mustSkill(t, "success-00001", skill.SectionSuccess, "global version")
	shadowed := mustSkill(t, "success-00001", skill.SectionSuccess, "project version")
	shadowed.HierarchyLevel = skill.LevelProject
	owned := mustSkill(t, "failure-00001", skill.SectionFailure, "project failure")
	owned.HierarchyLevel = skill.LevelProject

	seedLayer(t, cfg.GlobalPath(), g)
	projPath := cfg.ProjectPath("acme-api")
	seedLayer(t, projPath, shadowed, owned)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	// Mutating the owned skill rewrites the project layer
	_, err = svc.Score("failure-00001", skill.VoteHelpful)
	require.NoError(t, err)

	onDisk, err := store.New(nil).Load(projPath)
	require.NoError(t, err)
	require.Len(t, onDisk, 2)

	byID := map[string]*skill.Skill{onDisk[0].ID: onDisk[0], onDisk[1].ID: onDisk[1]}
	require.NotNil(t, byID["success-00001"])
	assert.Equal(t, "project version", byID["success-00001"].Content,
		"shadowed entry keeps its stored form")
	assert.Equal(t, 1, byID["failure-00001"].Helpful)
}

func TestAdd_NewSkillRoutedAndPersisted(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	res, err := svc.Add(AddRequest{
		Section:   skill.SectionSuccess,
		Content:   "Run migrations before seeding fixtures",
		Language:  "python",
		Framework: "django",
		Level:     skill.LevelFramework,
	})
	require.NoError(t, err)
	require.True(t, res.IsNew)
	assert.Equal(t, "success-00001", res.Skill.ID)
	assert.Equal(t, cfg.FrameworkPath("django"), res.Path)

	onDisk, err := store.New(nil).Load(cfg.FrameworkPath("django"))
	require.NoError(t, err)
	require.Len(t, onDisk, 1)
	assert.Equal(t, "Run migrations before seeding fixtures", onDisk[0].Content)

	// Global layer stays untouched
	_, statErr := os.Stat(cfg.GlobalPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestAdd_DedupRefreshesExisting(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	first, err := svc.Add(AddRequest{
		Section: skill.SectionSuccess,
		Content: "Use async file I/O for large uploads",
	})
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := svc.Add(AddRequest{
		Section: skill.SectionSuccess,
		Content: "Use async file I/O for large uploads.",
	})
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Skill.ID, second.Skill.ID)
	assert.Equal(t, "Use async file I/O for large uploads", second.Skill.Content,
		"existing content is kept verbatim")
	assert.Equal(t, 1, svc.Len())
	assert.False(t, second.Skill.UpdatedAt.Before(first.Skill.UpdatedAt))
}

func TestAdd_SequenceNotReusedAfterRemove(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	res, err := svc.Add(AddRequest{Section: skill.SectionSuccess, Content: "first lesson"})
	require.NoError(t, err)
	assert.Equal(t, "success-00001", res.Skill.ID)

	require.NoError(t, svc.Remove(res.Skill.ID))

	res, err = svc.Add(AddRequest{Section: skill.SectionSuccess, Content: "second lesson"})
	require.NoError(t, err)
	assert.Equal(t, "success-00002", res.Skill.ID, "removed id is never reissued")
}

func TestAdd_SectionsCountIndependently(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	a, err := svc.Add(AddRequest{Section: skill.SectionSuccess, Content: "success lesson"})
	require.NoError(t, err)
	b, err := svc.Add(AddRequest{Section: skill.SectionFailure, Content: "failure lesson"})
	require.NoError(t, err)

	assert.Equal(t, "success-00001", a.Skill.ID)
	assert.Equal(t, "failure-00001", b.Skill.ID)
}

func TestScore_PersistsToOriginLayer(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	l := mustSkill(t, "success-00001", skill.SectionSuccess, "python lesson")
	l.HierarchyLevel = skill.LevelLanguage
	langPath := cfg.LanguagePath("python")
	seedLayer(t, langPath, l)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	got, err := svc.Score("success-00001", skill.VoteHelpful)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Helpful)

	onDisk, err := store.New(nil).Load(langPath)
	require.NoError(t, err)
	require.Len(t, onDisk, 1)
	assert.Equal(t, 1, onDisk[0].Helpful)
}

func TestScore_UnknownSkill(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	_, err = svc.Score("success-99999", skill.VoteHelpful)
	assert.ErrorIs(t, err, ErrSkillNotFound)
}

func TestRemove_PersistsToOriginLayer(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	a := mustSkill(t, "success-00001", skill.SectionSuccess, "keep me")
	b := mustSkill(t, "success-00002", skill.SectionSuccess, "remove me")
	seedLayer(t, cfg.GlobalPath(), a, b)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	require.NoError(t, svc.Remove("success-00002"))
	assert.Equal(t, 1, svc.Len())

	onDisk, err := store.New(nil).Load(cfg.GlobalPath())
	require.NoError(t, err)
	require.Len(t, onDisk, 1)
	assert.Equal(t, "success-00001", onDisk[0].ID)
}

func TestReload_PicksUpExternalChanges(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	seedLayer(t, cfg.GlobalPath(),
		mustSkill(t, "success-00001", skill.SectionSuccess, "original"))

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Len())

	// Another process rewrites the layer
	seedLayer(t, cfg.GlobalPath(),
		mustSkill(t, "success-00001", skill.SectionSuccess, "original"),
		mustSkill(t, "success-00002", skill.SectionSuccess, "added externally"))

	n, err := svc.Reload()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSaveLayer_PreservesExternalWriterEntries(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	mine := mustSkill(t, "success-00001", skill.SectionSuccess, "mine")
	seedLayer(t, cfg.GlobalPath(), mine)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	// An external writer adds a skill after our load
	theirs := mustSkill(t, "success-00002", skill.SectionSuccess, "theirs")
	seedLayer(t, cfg.GlobalPath(), mine, theirs)

	// Our mutation must not clobber the external entry
	_, err = svc.Score("success-00001", skill.VoteHelpful)
	require.NoError(t, err)

	onDisk, err := store.New(nil).Load(cfg.GlobalPath())
	require.NoError(t, err)
	assert.Len(t, onDisk, 2)
}

func TestTopSkills_FiltersAndBounds(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	match := mustSkill(t, "success-00001", skill.SectionSuccess, "python advice")
	match.HierarchyLevel = skill.LevelLanguage
	match.Language = "python"
	match.Helpful = 5

	other := mustSkill(t, "success-00002", skill.SectionSuccess, "go advice")
	other.HierarchyLevel = skill.LevelLanguage
	other.Language = "go"
	other.Helpful = 50

	global := mustSkill(t, "success-00003", skill.SectionSuccess, "portable advice")
	global.Helpful = 1

	seedLayer(t, cfg.GlobalPath(), match, other, global)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	top := svc.TopSkills(10)
	require.Len(t, top, 2, "go-tagged skill is filtered out for a python context")
	assert.Equal(t, "success-00001", top[0].ID)
	assert.Equal(t, "success-00003", top[1].ID)

	top = svc.TopSkills(1)
	require.Len(t, top, 1)
	assert.Equal(t, "success-00001", top[0].ID)
}

func TestApplyUpdate_MixedBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	seeded, err := svc.Add(AddRequest{Section: skill.SectionSuccess, Content: "seeded lesson"})
	require.NoError(t, err)

	results := svc.ApplyUpdate(UpdateBatch{Operations: []Operation{
		{Type: OpScore, SkillID: "success-99999", Vote: skill.VoteHelpful},
		{Type: OpAdd, Section: skill.SectionFailure, Content: "new failure lesson"},
		{Type: OpScore, SkillID: seeded.Skill.ID, Vote: skill.VoteHelpful},
		{Type: "UPSERT"},
	}})
	require.Len(t, results, 4)

	assert.True(t, results[0].Failed())
	assert.ErrorIs(t, results[0].Err, ErrSkillNotFound)

	assert.False(t, results[1].Failed())
	assert.True(t, results[1].IsNew)

	assert.False(t, results[2].Failed())

	assert.True(t, results[3].Failed())

	summary := Summarize(results)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Scored)
	assert.Equal(t, 2, summary.Failures)

	got, err := svc.Get(seeded.Skill.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Helpful, "operations after a failure still apply")
}

func TestApplyUpdate_DedupReported(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	results := svc.ApplyUpdate(UpdateBatch{Operations: []Operation{
		{Type: OpAdd, Section: skill.SectionSuccess, Content: "Cache template fragments aggressively"},
		{Type: OpAdd, Section: skill.SectionSuccess, Content: "Cache template fragments aggressively!"},
	}})
	require.Len(t, results, 2)
	assert.True(t, results[0].IsNew)
	assert.False(t, results[1].IsNew)
	assert.Equal(t, results[0].SkillID, results[1].SkillID)

	summary := Summarize(results)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Deduped)
}

func TestStats(t *testing.T) {
	t.Parallel()

	svc, cfg := newTestService(t)

	helpful := mustSkill(t, "success-00001", skill.SectionSuccess, "helpful one")
	helpful.Helpful = 3
	harmful := mustSkill(t, "failure-00001", skill.SectionFailure, "harmful one")
	harmful.Harmful = 2
	tied := mustSkill(t, "success-00002", skill.SectionSuccess, "tied one")
	tied.Helpful, tied.Harmful = 1, 1
	tied.HierarchyLevel = skill.LevelProject
	tied.ProjectType = "web_backend"

	seedLayer(t, cfg.GlobalPath(), helpful, harmful)
	seedLayer(t, cfg.ProjectPath("acme-api"), tied)

	_, err := svc.LoadHierarchical(testContext)
	require.NoError(t, err)

	st := svc.Stats()
	assert.Equal(t, 3, st.TotalSkills)
	assert.Equal(t, 1, st.HelpfulSkills)
	assert.Equal(t, 1, st.HarmfulSkills)
	assert.Equal(t, 1, st.NeutralSkills)
	assert.Equal(t, 2, st.Sections[skill.SectionSuccess])
	assert.Equal(t, 1, st.Sections[skill.SectionFailure])
	assert.Equal(t, 2, st.Levels[string(skill.LevelGlobal)])
	assert.Equal(t, 1, st.Levels[string(skill.LevelProject)])
	assert.Equal(t, testContext, st.Context)
	assert.Len(t, st.LoadedSources, 2)
}

func TestAdd_RequiresLoadedConfig(t *testing.T) {
	t.Parallel()

	svc, err := NewService(nil, store.New(nil), nil)
	require.NoError(t, err)

	_, err = svc.LoadHierarchical(hierarchy.ProjectContext{})
	assert.ErrorIs(t, err, hierarchy.ErrNoConfig)
}

func TestWithThreshold(t *testing.T) {
	t.Parallel()

	cfg := hierarchy.DefaultConfig(t.TempDir())

	// A permissive threshold merges contents the default would keep apart.
	svc, err := NewService(cfg, store.New(nil), nil, WithThreshold(0.3))
	require.NoError(t, err)
	_, err = svc.LoadHierarchical(hierarchy.ProjectContext{})
	require.NoError(t, err)

	first, err := svc.Add(AddRequest{Section: skill.SectionSuccess, Content: "prefer composition over inheritance"})
	require.NoError(t, err)
	second, err := svc.Add(AddRequest{Section: skill.SectionSuccess, Content: "prefer competition over interference"})
	require.NoError(t, err)

	assert.True(t, first.IsNew)
	assert.False(t, second.IsNew)
}
