// Package hierarchy computes which layer files a project context reads and
// which single file a skill is written to.
//
// Layers merge in a fixed order: global, then language, then framework,
// then project. The loader depends on this order to resolve id collisions
// (first layer loaded wins).
package hierarchy

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/skilld/internal/skill"
)

// ErrNoConfig indicates a routing attempt without a hierarchy configuration.
var ErrNoConfig = errors.New("hierarchy configuration is not set")

// Default layout names under the base directory.
const (
	DefaultGlobalFile    = "global/universal.json"
	DefaultLanguagesDir  = "languages"
	DefaultFrameworksDir = "frameworks"
	DefaultProjectsDir   = "projects"
)

// Config holds the on-disk layout of the skillbook hierarchy.
type Config struct {
	// BaseDir is the root of the skillbook tree.
	BaseDir string

	// GlobalFile is the global layer file, relative to BaseDir.
	GlobalFile string

	// LanguagesDir, FrameworksDir, and ProjectsDir hold the per-identifier
	// layer files, relative to BaseDir.
	LanguagesDir  string
	FrameworksDir string
	ProjectsDir   string
}

// DefaultConfig returns the standard layout rooted at baseDir.
func DefaultConfig(baseDir string) *Config {
	return &Config{
		BaseDir:       baseDir,
		GlobalFile:    DefaultGlobalFile,
		LanguagesDir:  DefaultLanguagesDir,
		FrameworksDir: DefaultFrameworksDir,
		ProjectsDir:   DefaultProjectsDir,
	}
}

// GlobalPath returns the global layer file path.
func (c *Config) GlobalPath() string {
	return filepath.Join(c.BaseDir, filepath.FromSlash(c.GlobalFile))
}

// LanguagePath returns the layer file for a language.
func (c *Config) LanguagePath(language string) string {
	return filepath.Join(c.BaseDir, c.LanguagesDir, Slug(language)+".json")
}

// FrameworkPath returns the layer file for a framework.
func (c *Config) FrameworkPath(framework string) string {
	return filepath.Join(c.BaseDir, c.FrameworksDir, Slug(framework)+".json")
}

// ProjectPath returns the layer file for a project.
func (c *Config) ProjectPath(projectID string) string {
	return filepath.Join(c.BaseDir, c.ProjectsDir, Slug(projectID)+".json")
}

// Slug lowercases an identifier and strips characters that are unsafe in a
// file name. An identifier that sanitizes to nothing becomes "default".
func Slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '/':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// ProjectContext describes the environment a task runs in. Detected once
// per task and immutable for its duration; all fields are best-effort.
type ProjectContext struct {
	Language         string `json:"language,omitempty"`
	Framework        string `json:"framework,omitempty"`
	ProjectType      string `json:"projectType,omitempty"`
	ProjectID        string `json:"projectId,omitempty"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
}

// Router computes read and write paths from a project context.
type Router struct {
	cfg *Config
}

// NewRouter creates a router over the given layout. A nil config is
// accepted; routing operations then fail with ErrNoConfig.
func NewRouter(cfg *Config) *Router {
	return &Router{cfg: cfg}
}

// ReadPaths returns the layer files to load for the context, in merge
// order: always global first, then language, framework, and project for
// whichever context fields are set.
func (r *Router) ReadPaths(pctx ProjectContext) ([]string, error) {
	if r.cfg == nil {
		return nil, ErrNoConfig
	}

	paths := []string{r.cfg.GlobalPath()}
	if pctx.Language != "" {
		paths = append(paths, r.cfg.LanguagePath(pctx.Language))
	}
	if pctx.Framework != "" {
		paths = append(paths, r.cfg.FrameworkPath(pctx.Framework))
	}
	if pctx.ProjectID != "" {
		paths = append(paths, r.cfg.ProjectPath(pctx.ProjectID))
	}
	return paths, nil
}

// WritePath returns the single layer file the skill should be persisted
// to, selected by its hierarchy level. When the context field a level needs
// is missing, the skill falls back to the global layer: the function is
// total and favors availability over precision.
func (r *Router) WritePath(sk *skill.Skill, pctx ProjectContext) (string, error) {
	if r.cfg == nil {
		return "", ErrNoConfig
	}

	switch sk.HierarchyLevel {
	case skill.LevelFramework:
		if pctx.Framework != "" {
			return r.cfg.FrameworkPath(pctx.Framework), nil
		}
	case skill.LevelLanguage:
		if pctx.Language != "" {
			return r.cfg.LanguagePath(pctx.Language), nil
		}
	case skill.LevelProject:
		if pctx.ProjectID != "" {
			return r.cfg.ProjectPath(pctx.ProjectID), nil
		}
	}
	return r.cfg.GlobalPath(), nil
}

// LevelFor picks the hierarchy level for a new skill that does not declare
// one, from whatever the context provides: framework first, then language,
// then project, else global.
func LevelFor(pctx ProjectContext) skill.Level {
	switch {
	case pctx.Framework != "":
		return skill.LevelFramework
	case pctx.Language != "":
		return skill.LevelLanguage
	case pctx.ProjectID != "":
		return skill.LevelProject
	default:
		return skill.LevelGlobal
	}
}
