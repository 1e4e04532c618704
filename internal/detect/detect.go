// Package detect sniffs a project tree to build the ProjectContext used
// for skill loading and routing. Detection is best-effort: every field of
// the result is optional, and repeated detection over an unchanged tree
// returns the same context.
package detect

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/fyrsmithlabs/skilld/internal/hierarchy"
)

// maxDepth bounds the directory walk; markers deeper than this are noise.
const maxDepth = 3

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	".venv":        true,
}

// Detect inspects the tree rooted at path and returns its project context.
func Detect(path string) hierarchy.ProjectContext {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	names := collectFileNames(abs)

	language := detectLanguage(names)
	framework := detectFramework(names, language)
	projectType := deriveProjectType(language, framework)

	return hierarchy.ProjectContext{
		Language:         language,
		Framework:        framework,
		ProjectType:      projectType,
		ProjectID:        detectProjectID(abs),
		WorkingDirectory: abs,
	}
}

// collectFileNames gathers base file names within maxDepth of root.
func collectFileNames(root string) map[string]bool {
	names := make(map[string]bool)

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))

		if d.IsDir() {
			if skipDirs[d.Name()] || depth >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		names[d.Name()] = true
		return nil
	})

	return names
}

func detectLanguage(names map[string]bool) string {
	hasExt := func(exts ...string) bool {
		for name := range names {
			for _, ext := range exts {
				if strings.HasSuffix(name, ext) {
					return true
				}
			}
		}
		return false
	}

	switch {
	case hasExt(".py", ".pyx", ".pyi"):
		return "python"
	case hasExt(".ts", ".tsx", ".js", ".jsx"):
		return "typescript"
	case hasExt(".go"):
		return "go"
	case hasExt(".rs"):
		return "rust"
	case hasExt(".java", ".kt", ".kts"):
		return "java"
	}
	return ""
}

func detectFramework(names map[string]bool, language string) string {
	if names["requirements.txt"] || names["pyproject.toml"] || names["setup.py"] {
		switch {
		case names["settings.py"] || names["manage.py"]:
			return "django"
		case names["main.py"]:
			return "fastapi"
		case names["app.py"]:
			return "flask"
		}
	}

	if names["package.json"] {
		switch {
		case names["next.config.js"] || names["next.config.ts"] || names["next.config.mjs"]:
			return "next.js"
		case names["vite.config.js"] || names["vite.config.ts"]:
			return "vite"
		case names["remix.config.js"]:
			return "remix"
		case names["nuxt.config.js"] || names["nuxt.config.ts"]:
			return "nuxt"
		case language == "typescript":
			return "react"
		}
	}

	return ""
}

func deriveProjectType(language, framework string) string {
	if language == "" {
		return ""
	}

	switch language {
	case "python":
		switch framework {
		case "django", "fastapi", "flask":
			return "web_backend"
		}
		return "python_project"
	case "typescript":
		switch framework {
		case "next.js", "react", "remix":
			return "web_frontend"
		case "vite":
			return "vite_project"
		}
		return "typescript_project"
	default:
		return language + "_project"
	}
}

// detectProjectID derives a stable project identifier, preferring the
// repository name from the git origin remote and falling back to the
// directory name.
func detectProjectID(path string) string {
	if name := repoNameFromGit(path); name != "" {
		return sanitizeID(name)
	}

	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return ""
	}
	return sanitizeID(base)
}

func repoNameFromGit(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return ""
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return parseRepoName(urls[0])
}

var repoNamePattern = regexp.MustCompile(`[:/]([^/:]+)/([^/]+?)(?:\.git)?/?$`)

// parseRepoName extracts "owner-repo" from an SSH or HTTPS remote URL.
func parseRepoName(url string) string {
	m := repoNamePattern.FindStringSubmatch(strings.TrimSpace(url))
	if len(m) != 3 {
		return ""
	}
	return m[1] + "-" + m[2]
}

// sanitizeID keeps only characters safe for a layer file name.
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}
