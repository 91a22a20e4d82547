// Package shelters imports the evacuation shelter directory from a CSV export.
package shelters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

// CSV column names of the state shelter export.
const (
	colName     = "Name"
	colAddress  = "Address"
	colCity     = "City"
	colZip      = "Zip"
	colCounty   = "COUNTY"
	colLat      = "Y"
	colLon      = "X"
	colCapacity = "EHPA_Capac"
	colPets     = "Pet_Friend"
	colNotes    = "Notes"
	colType     = "SHELTER_TY"
	colStatus   = "General_Po"
)

// Store replaces the shelter table.
type Store interface {
	ReplaceAll(ctx context.Context, shelters []domain.Shelter) error
}

// RowError describes a CSV row that was not imported.
type RowError struct {
	Line int
	Name string
	Err  error
}

func (e RowError) Error() string {
	name := e.Name
	if name == "" {
		name = "[unnamed]"
	}
	return fmt.Sprintf("line %d (%s): %v", e.Line, name, e.Err)
}

// Report summarizes an import.
type Report struct {
	Imported int
	Geocoded int
	Skipped  []RowError
}

// Importer reads shelter rows, fills missing coordinates and replaces the
// stored directory.
type Importer struct {
	store    Store
	geocoder domain.Geocoder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewImporter creates an Importer. geocoder may be nil, in which case rows
// without coordinates are skipped.
func NewImporter(store Store, geocoder domain.Geocoder, logger *slog.Logger) *Importer {
	return &Importer{
		store:    store,
		geocoder: geocoder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "shelter-import"),
	}
}

// Import parses r as CSV with a header row and replaces every stored shelter
// with the valid rows. Invalid rows are reported and skipped. Nothing is
// written when the header is unusable.
func (i *Importer) Import(ctx context.Context, r io.Reader) (Report, error) {
	var report Report

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return report, fmt.Errorf("read header: %w", err)
	}
	columns := indexColumns(header)
	if _, ok := columns[colName]; !ok {
		return report, fmt.Errorf("csv header has no %q column", colName)
	}
	i.logger.Debug("csv header", "fields", header)

	var shelters []domain.Shelter
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.Skipped = append(report.Skipped, RowError{Line: parseErr.Line, Err: parseErr.Err})
				continue
			}
			return report, fmt.Errorf("read csv: %w", err)
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		line, _ := reader.FieldPos(0)

		row := rowReader{columns: columns, record: record}
		s, geocoded, err := i.shelter(ctx, row)
		if err != nil {
			report.Skipped = append(report.Skipped, RowError{Line: line, Name: s.Name, Err: err})
			i.logger.Warn("shelter row skipped", "line", line, "name", s.Name, "error", err)
			continue
		}
		if geocoded {
			report.Geocoded++
		}
		shelters = append(shelters, s)
	}

	if err := i.store.ReplaceAll(ctx, shelters); err != nil {
		return report, fmt.Errorf("store shelters: %w", err)
	}
	report.Imported = len(shelters)
	i.logger.Info("shelters imported",
		"imported", report.Imported,
		"geocoded", report.Geocoded,
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (i *Importer) shelter(ctx context.Context, row rowReader) (domain.Shelter, bool, error) {
	s := domain.Shelter{
		Name:          row.get(colName),
		Address:       row.get(colAddress),
		City:          row.get(colCity),
		ZipCode:       row.get(colZip),
		County:        row.get(colCounty),
		Capacity:      parseCapacity(row.get(colCapacity)),
		IsPetFriendly: parsePetFriendly(row.get(colPets)),
		Notes:         row.get(colNotes),
		ShelterType:   row.get(colType),
		Status:        row.get(colStatus),
	}

	lat, latErr := strconv.ParseFloat(row.get(colLat), 64)
	lon, lonErr := strconv.ParseFloat(row.get(colLon), 64)
	if latErr == nil && lonErr == nil {
		s.Latitude, s.Longitude = lat, lon
	}

	geocoded := false
	if !s.HasCoordinates() && s.Name != "" {
		var err error
		s, err = domain.GeocodeShelter(ctx, s, i.geocoder, i.logger)
		if err != nil {
			return s, false, err
		}
		geocoded = true
	}

	if err := i.validate.Struct(s); err != nil {
		return s, false, validationError(err)
	}
	return s, geocoded, nil
}

// validationError flattens validator output into "field: tag" pairs.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid shelter: %s", strings.Join(parts, "; "))
}

// parseCapacity accepts digits only; anything else is an unknown capacity.
func parseCapacity(v string) *int {
	if v == "" || strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func parsePetFriendly(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "true", "y", "1":
		return true
	}
	return false
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = idx
		}
	}
	return columns
}

type rowReader struct {
	columns map[string]int
	record  []string
}

// get returns the trimmed value of column, or "" when the column or cell is
// absent.
func (r rowReader) get(column string) string {
	idx, ok := r.columns[column]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}
