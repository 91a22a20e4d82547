package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
)

// SidecarExts are the files that together describe one shapefile layer.
var SidecarExts = []string{".shp", ".shx", ".dbf", ".prj"}

const maxEntryBytes = 512 << 20

// LayerRef names a forecast layer inside an archive.
type LayerRef struct {
	Kind     domain.Kind
	BaseName string // entry name without ".shp"
}

// Archive is an opened advisory zip.
type Archive struct {
	zr      *zip.ReadCloser
	entries map[string]*zip.File
	logger  *slog.Logger
}

// Open opens a downloaded archive. Failures wrap domain.ErrArchiveReadFailed.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrArchiveReadFailed, err)
	}
	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	return &Archive{zr: zr, entries: entries, logger: logger.With("component", "archive")}, nil
}

// Close releases the archive.
func (a *Archive) Close() error {
	return a.zr.Close()
}

// Names lists the archive entries in stored order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.zr.File))
	for _, f := range a.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// Layers finds the cone and track layers by exact filename suffix, in
// domain.Kinds order. When several entries match a suffix the last one in the
// archive wins. An archive with neither returns nil.
func (a *Archive) Layers() []LayerRef {
	var refs []LayerRef
	for _, kind := range domain.Kinds {
		suffix := kind.LayerSuffix()
		var base string
		for _, f := range a.zr.File {
			if strings.HasSuffix(f.Name, suffix) {
				base = strings.TrimSuffix(f.Name, ".shp")
			}
		}
		if base != "" {
			refs = append(refs, LayerRef{Kind: kind, BaseName: base})
		}
	}
	return refs
}

// ExtractLayer copies the sidecar files of base into destDir and returns the
// paths written. Missing sidecars are logged, not returned as errors. Entries
// are written by base name only.
func (a *Archive) ExtractLayer(base, destDir string) ([]string, error) {
	var written []string
	for _, ext := range SidecarExts {
		name := base + ext
		f, ok := a.entries[name]
		if !ok {
			a.logger.Warn("layer sidecar missing", "file", name)
			continue
		}
		dest := LocalPath(destDir, base, ext)
		if err := extractFile(f, dest); err != nil {
			return written, fmt.Errorf("%w: %s: %w", domain.ErrArchiveReadFailed, name, err)
		}
		written = append(written, dest)
	}
	return written, nil
}

// LocalPath returns where ExtractLayer writes base+ext inside destDir.
func LocalPath(destDir, base, ext string) string {
	return filepath.Join(destDir, filepath.Base(base)+ext)
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxEntryBytes {
		err = fmt.Errorf("entry exceeds %d bytes", maxEntryBytes)
	}
	return err
}
