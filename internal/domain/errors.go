package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFeedUnavailable means the live active-storm feed could not be
	// reached or parsed. It aborts an ingestion run and degrades reads to
	// local data.
	ErrFeedUnavailable = errors.New("active storm feed unavailable")

	// ErrArchiveFetchFailed covers network errors and non-2xx responses while
	// downloading an advisory archive.
	ErrArchiveFetchFailed = errors.New("archive fetch failed")

	// ErrArchiveReadFailed means a downloaded archive could not be opened or
	// unpacked.
	ErrArchiveReadFailed = errors.New("archive read failed")

	// ErrLayerIncomplete means a layer is missing sidecar files, or could not
	// be read because of them.
	ErrLayerIncomplete = errors.New("layer incomplete")

	// ErrArtifactFileInvalid means a stored artifact is not valid GeoJSON.
	ErrArtifactFileInvalid = errors.New("artifact file invalid")

	// ErrStaleAdvisory means a newer advisory is already stored for the same
	// storm and kind.
	ErrStaleAdvisory = errors.New("stale advisory")

	// ErrInvalidToken means an id or advisory cannot be encoded into an
	// artifact filename.
	ErrInvalidToken = errors.New("invalid filename token")
)

// Stage names a step of per-storm processing.
type Stage string

const (
	StageValidate Stage = "validate"
	StageFetch    Stage = "fetch"
	StageExtract  Stage = "extract"
	StageConvert  Stage = "convert"
	StageStore    Stage = "store"
)

// StormError is a per-storm failure. It never aborts an ingestion run.
type StormError struct {
	StormID string
	Stage   Stage
	Kind    Kind
	Err     error
}

func (e *StormError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("storm %s: %s %s: %v", e.StormID, e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("storm %s: %s: %v", e.StormID, e.Stage, e.Err)
}

func (e *StormError) Unwrap() error { return e.Err }
