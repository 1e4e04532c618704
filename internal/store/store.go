// Package store persists one skillbook layer as a JSON document on disk.
//
// A layer file holds the schema version, a last-updated timestamp, and the
// skill collection keyed by id. A missing or unparsable file is an empty
// layer, not an error; saves replace the whole file atomically so a crash
// mid-write never leaves a truncated document behind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skilld/internal/skill"
)

// ErrStorage indicates an I/O failure other than "file absent".
var ErrStorage = errors.New("skillbook storage failure")

// FormatVersion is the persisted layer schema version.
const FormatVersion = "1.0.0"

// layerFile is the on-disk document for one hierarchy layer.
type layerFile struct {
	Version   string                  `json:"version"`
	UpdatedAt time.Time               `json:"updatedAt"`
	Skills    map[string]*skill.Skill `json:"skills"`
}

// Store loads and saves layer files.
type Store struct {
	logger *zap.Logger
}

// New creates a layer store. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// Load reads the layer at path. A missing file or a file that does not
// parse as JSON yields an empty collection; any other read failure is an
// ErrStorage. Returned skills are ordered by creation time then id so merge
// order is deterministic.
func (s *Store) Load(path string) ([]*skill.Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrStorage, path, err)
	}

	var doc layerFile
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("discarding malformed layer file",
			zap.String("path", path),
			zap.Error(err))
		return nil, nil
	}

	skills := make([]*skill.Skill, 0, len(doc.Skills))
	for id, sk := range doc.Skills {
		if sk == nil {
			continue
		}
		if sk.ID == "" {
			sk.ID = id
		}
		if sk.HierarchyLevel == "" {
			sk.HierarchyLevel = skill.LevelGlobal
		}
		skills = append(skills, sk)
	}

	sort.Slice(skills, func(i, j int) bool {
		if !skills[i].CreatedAt.Equal(skills[j].CreatedAt) {
			return skills[i].CreatedAt.Before(skills[j].CreatedAt)
		}
		return skills[i].ID < skills[j].ID
	})

	return skills, nil
}

// Save serializes the full collection to path, replacing any existing file.
// The write goes to a temp file in the target directory which is then
// renamed over the destination, so concurrent readers only ever observe a
// complete document.
func (s *Store) Save(path string, skills []*skill.Skill) error {
	doc := layerFile{
		Version:   FormatVersion,
		UpdatedAt: time.Now().UTC(),
		Skills:    make(map[string]*skill.Skill, len(skills)),
	}
	for _, sk := range skills {
		if sk == nil {
			continue
		}
		doc.Skills[sk.ID] = sk
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", ErrStorage, path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %v", ErrStorage, dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", ErrStorage, tmpName, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: setting mode on %s: %v", ErrStorage, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %v", ErrStorage, tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %v", ErrStorage, path, err)
	}

	s.logger.Debug("saved layer file",
		zap.String("path", path),
		zap.Int("skills", len(doc.Skills)))

	return nil
}

// NextSequence returns the next id sequence number for the given section:
// one past the highest numeric suffix among skills already in that section,
// starting at 1. Ids without a parsable suffix are ignored.
func NextSequence(skills []*skill.Skill, section string) int {
	next := 1
	for _, sk := range skills {
		if sk == nil || sk.Section != section {
			continue
		}
		idx := strings.LastIndex(sk.ID, "-")
		if idx < 0 {
			continue
		}
		n, err := strconv.Atoi(sk.ID[idx+1:])
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}

// FormatID builds a skill id from its section and sequence number, e.g.
// "success-00007".
func FormatID(section string, seq int) string {
	return fmt.Sprintf("%s-%05d", section, seq)
}
