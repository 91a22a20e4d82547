// Package filestore is the on-disk artifact store: one GeoJSON file per
// (storm, kind, advisory), the storm-name table, and the scratch workspace
// used while unpacking archives.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// Artifact is a recognized artifact file in the data directory.
type Artifact struct {
	Path string
	Key  domain.ArtifactKey
}

// FileName returns the artifact's base name.
func (a Artifact) FileName() string {
	return filepath.Base(a.Path)
}

// Store owns the artifact directory, the name table, and the scratch
// workspace. Ingestion is the only writer.
type Store struct {
	dataDir       string
	scratchDir    string
	nameTablePath string
	logger        *slog.Logger
}

// New creates a Store rooted at dataDir.
func New(dataDir, scratchDir, nameTablePath string, logger *slog.Logger) *Store {
	return &Store{
		dataDir:       dataDir,
		scratchDir:    scratchDir,
		nameTablePath: nameTablePath,
		logger:        logger.With("component", "filestore"),
	}
}

// DataDir returns the artifact directory.
func (s *Store) DataDir() string { return s.dataDir }

// List returns the artifacts directly under the data directory, sorted by
// file name. Names that do not decode into a (storm, kind, advisory) key are
// skipped. A missing directory yields an empty list.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var out []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := domain.ParseArtifactName(e.Name())
		if !ok {
			continue
		}
		out = append(out, Artifact{Path: filepath.Join(s.dataDir, e.Name()), Key: key})
	}
	return out, nil
}

// GeoJSONFiles returns every ".geojson" file under the data directory,
// recursively, in lexical walk order.
func (s *Store) GeoJSONFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.dataDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == domain.ArtifactExt {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data dir: %w", err)
	}
	return files, nil
}

// Save writes a feature collection for key, replacing any file for the same
// key. Advisories are monotonic per storm and kind: if a newer advisory is
// already stored the write is refused with domain.ErrStaleAdvisory. After a
// successful write, older advisories for the same storm and kind are removed,
// as are equal advisories spelled differently ("5" and "005").
func (s *Store) Save(key domain.ArtifactKey, fc *geojson.FeatureCollection) (domain.SaveResult, error) {
	existing, err := s.List()
	if err != nil {
		return domain.SaveResult{}, err
	}

	path := filepath.Join(s.dataDir, key.FileName())
	var older []Artifact
	for _, a := range existing {
		if a.Key.StormID != key.StormID || a.Key.Kind != key.Kind {
			continue
		}
		switch cmp := domain.CompareAdvisory(a.Key.Advisory, key.Advisory); {
		case cmp > 0:
			return domain.SaveResult{}, fmt.Errorf("%s advisory %s is older than stored %s: %w",
				key.Kind, key.Advisory, a.Key.Advisory, domain.ErrStaleAdvisory)
		case a.Path != path:
			older = append(older, a)
		}
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return domain.SaveResult{}, fmt.Errorf("encode %s: %w", key.FileName(), err)
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return domain.SaveResult{}, fmt.Errorf("create data dir: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return domain.SaveResult{}, err
	}

	result := domain.SaveResult{Path: path}
	for _, a := range older {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove superseded artifact failed", "file", a.FileName(), "error", err)
			continue
		}
		s.logger.Info("removed superseded artifact", "file", a.FileName(), "by", key.FileName())
		result.Superseded++
	}
	return result, nil
}

// EvictStale deletes every top-level three-token ".geojson" file whose storm
// id is not in active, whatever its kind token, and returns the deleted names.
// Other files are left alone.
func (s *Store) EvictStale(active map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var evicted []string
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := domain.ArtifactStormID(e.Name())
		if !ok {
			continue
		}
		if _, ok := active[id]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dataDir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", e.Name(), err))
			continue
		}
		evicted = append(evicted, e.Name())
	}
	sort.Strings(evicted)
	return evicted, errors.Join(errs...)
}

// writeFileAtomic writes data to a temp file beside path and renames it into
// place so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
