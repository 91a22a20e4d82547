package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/goccy/go-json"
)

// ReadNameTable loads the storm-name table with keys lowercased. Values may be
// {name, type} objects or bare names. A missing file is an empty table.
func (s *Store) ReadNameTable() (domain.NameTable, error) {
	data, err := os.ReadFile(s.nameTablePath)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NameTable{}, nil
	}
	if err != nil {
		return domain.NameTable{}, fmt.Errorf("read name table: %w", err)
	}

	var raw map[string]domain.NameEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.NameTable{}, fmt.Errorf("decode name table: %w", err)
	}

	table := make(domain.NameTable, len(raw))
	for id, entry := range raw {
		table[strings.ToLower(strings.TrimSpace(id))] = entry
	}
	return table, nil
}

// WriteNameTable replaces the name table with table. It is a rebuild: storms
// absent from table are dropped.
func (s *Store) WriteNameTable(table domain.NameTable) error {
	out := make(domain.NameTable, len(table))
	for id, entry := range table {
		out[strings.ToLower(strings.TrimSpace(id))] = entry
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode name table: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.nameTablePath), 0o755); err != nil {
		return fmt.Errorf("create name table dir: %w", err)
	}
	return writeFileAtomic(s.nameTablePath, data)
}
