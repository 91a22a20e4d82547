package filestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// ScratchDir returns a fresh, empty working directory for one storm's archive.
func (s *Store) ScratchDir(stormID string) (string, error) {
	dir := filepath.Join(s.scratchDir, stormID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("reset scratch dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// ClearScratch removes the whole scratch workspace. An absent workspace is
// not an error.
func (s *Store) ClearScratch() error {
	if err := os.RemoveAll(s.scratchDir); err != nil {
		return fmt.Errorf("clear scratch: %w", err)
	}
	return nil
}
