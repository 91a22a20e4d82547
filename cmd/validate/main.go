// Command validate checks the artifact directory the way the read API sees it:
// which files are recognized storm artifacts, which are ignored, which fail to
// parse, and which storms have no entry in the name table. It exits 1 when any
// recognized artifact is unparseable.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data/storms
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/filestore"
	"github.com/couchcryptid/storm-tracker-service/internal/aggregate"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
)

// phase tracks findings for one validation step. Errors fail the run;
// warnings are reported only.
type phase struct {
	name     string
	errors   []string
	warnings []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", sharedcfg.EnvOrDefault("DATA_DIR", "data/storms"), "artifact directory")
	nameTable := flag.String("name-table", "", "storm-name table (default <data-dir>/storm_names.json)")
	flag.Parse()

	if *nameTable == "" {
		*nameTable = filepath.Join(*dataDir, sharedcfg.EnvOrDefault("NAME_TABLE_FILE", "storm_names.json"))
	}

	os.Exit(run(*dataDir, *nameTable, os.Stdout))
}

func run(dataDir, nameTablePath string, out io.Writer) int {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := filestore.New(dataDir, os.TempDir(), nameTablePath, logger)

	fmt.Fprintln(out, "=== Storm Artifact Validation ===")
	fmt.Fprintf(out, "Data directory: %s\n\n", dataDir)

	artifacts, err := store.List()
	if err != nil {
		fmt.Fprintf(out, "FATAL: list artifacts: %v\n", err)
		return 1
	}
	files, err := store.GeoJSONFiles()
	if err != nil {
		fmt.Fprintf(out, "FATAL: walk data directory: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateFileNames(dataDir, artifacts, files),
		validateContents(artifacts),
		validateAdvisories(artifacts),
		validateNames(store, artifacts),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		} else if len(p.warnings) > 0 {
			status = fmt.Sprintf("\033[33mWARN (%d)\033[0m", len(p.warnings))
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}

	fmt.Fprintf(out, "\nFiles: %d geojson, %d recognized artifacts\n", len(files), len(artifacts))

	for _, p := range phases {
		if len(p.errors) == 0 && len(p.warnings) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [E%d] %s\n", i+1, e)
		}
		for i, w := range p.warnings {
			fmt.Fprintf(out, "  [W%d] %s\n", i+1, w)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// validateFileNames reports .geojson files the legacy map ignores.
func validateFileNames(dataDir string, artifacts []filestore.Artifact, files []string) *phase {
	p := &phase{name: "Artifact file names"}
	recognized := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		recognized[a.Path] = true
	}
	for _, f := range files {
		if recognized[f] {
			continue
		}
		rel, err := filepath.Rel(dataDir, f)
		if err != nil {
			rel = f
		}
		p.warnf("%s: not a storm_kind_advisory artifact (included in the aggregate only)", rel)
	}
	return p
}

// validateContents parses every recognized artifact.
func validateContents(artifacts []filestore.Artifact) *phase {
	p := &phase{name: "Artifact contents"}
	for _, a := range artifacts {
		features, err := aggregate.ReadFeatures(a.Path)
		switch {
		case err != nil:
			p.errorf("%s: %v", a.FileName(), err)
		case len(features) == 0:
			p.warnf("%s: no features", a.FileName())
		}
	}
	return p
}

// validateAdvisories flags storms with more than one stored advisory per
// kind. Ingestion keeps only the newest.
func validateAdvisories(artifacts []filestore.Artifact) *phase {
	p := &phase{name: "Advisory uniqueness"}
	byKey := make(map[string][]string)
	for _, a := range artifacts {
		k := a.Key.StormID + "/" + string(a.Key.Kind)
		byKey[k] = append(byKey[k], a.Key.Advisory)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if advisories := byKey[k]; len(advisories) > 1 {
			sort.Slice(advisories, func(i, j int) bool {
				return domain.CompareAdvisory(advisories[i], advisories[j]) < 0
			})
			p.warnf("%s: %d advisories stored (%s)", k, len(advisories), strings.Join(advisories, ", "))
		}
	}
	return p
}

// validateNames reports storms whose artifacts will be served under a
// placeholder name.
func validateNames(store *filestore.Store, artifacts []filestore.Artifact) *phase {
	p := &phase{name: "Name table coverage"}
	table, err := store.ReadNameTable()
	if err != nil {
		p.warnf("name table unreadable: %v", err)
	}
	seen := make(map[string]bool)
	for _, a := range artifacts {
		id := a.Key.StormID
		if seen[id] {
			continue
		}
		seen[id] = true
		if strings.TrimSpace(table[id].Name) == "" {
			p.warnf("%s: no name-table entry, served as %q", id, aggregate.UnnamedStorm(id))
		}
	}
	return p
}
