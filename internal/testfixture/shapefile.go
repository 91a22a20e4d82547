// Package testfixture builds small advisory archives for tests: real
// shapefile layers written with go-shp and packed into a zip the way the
// hurricane center publishes them.
package testfixture

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// WGS84 is the projection text shipped with advisory layers.
const WGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Cone is the clockwise outer ring written for cone layers.
var Cone = []shp.Point{{X: -80, Y: 25}, {X: -80, Y: 27}, {X: -78, Y: 27}, {X: -78, Y: 25}, {X: -80, Y: 25}}

// Track is the line written for track layers.
var Track = []shp.Point{{X: -79, Y: 24}, {X: -79.5, Y: 25.5}, {X: -80.2, Y: 27.1}}

// Attrs are the attributes written for every layer feature.
type Attrs struct {
	StormName string
	StormType string
	Advisory  string
	Period    int
}

// WriteLayer writes base.{shp,shx,dbf,prj} under dir for kind and returns the
// .shp path.
func WriteLayer(t testing.TB, dir, base string, kind domain.Kind, attrs Attrs) string {
	t.Helper()
	path := filepath.Join(dir, base+".shp")

	shapeType := shp.ShapeType(shp.POLYLINE)
	var shape shp.Shape = shp.NewPolyLine([][]shp.Point{Track})
	if kind == domain.KindCone {
		shapeType = shp.POLYGON
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{Cone}))
		shape = &poly
	}

	w, err := shp.Create(path, shapeType)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("STORMNAME", 32),
		shp.StringField("STORMTYPE", 4),
		shp.StringField("ADVISNUM", 8),
		shp.NumberField("FCSTPRD", 4),
	}))
	row := int(w.Write(shape))
	require.NoError(t, w.WriteAttribute(row, 0, attrs.StormName))
	require.NoError(t, w.WriteAttribute(row, 1, attrs.StormType))
	require.NoError(t, w.WriteAttribute(row, 2, attrs.Advisory))
	require.NoError(t, w.WriteAttribute(row, 3, attrs.Period))
	w.Close()

	// go-shp v0.1.1 names the attribute table "<base>dbf", without the dot.
	undotted := filepath.Join(dir, base+"dbf")
	if _, err := os.Stat(undotted); err == nil {
		require.NoError(t, os.Rename(undotted, filepath.Join(dir, base+".dbf")))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, base+".prj"), []byte(WGS84), 0o644))
	return path
}

// ArchiveOptions adjusts the contents of an advisory archive.
type ArchiveOptions struct {
	// Omit lists entry names (e.g. "al052025-012_5day_pgn.dbf") to leave out.
	Omit []string
	// Kinds limits which layers are included. Nil means cone and track.
	Kinds []domain.Kind
	// Dir prefixes every entry with a folder.
	Dir string
}

// LayerBase returns the base name used for a storm's layer in fixtures.
func LayerBase(stormID, advisory string, kind domain.Kind) string {
	suffix := "_5day_lin"
	if kind == domain.KindCone {
		suffix = "_5day_pgn"
	}
	return stormID + "-" + advisory + suffix
}

// BuildArchive builds an advisory zip for one storm and returns its bytes.
func BuildArchive(t testing.TB, stormID, advisory string, attrs Attrs, opts ArchiveOptions) []byte {
	t.Helper()
	work := t.TempDir()

	kinds := opts.Kinds
	if kinds == nil {
		kinds = domain.Kinds
	}
	omit := make(map[string]bool, len(opts.Omit))
	for _, name := range opts.Omit {
		omit[name] = true
	}

	zipPath := filepath.Join(work, "archive.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)

	addFile := func(entry, src string) {
		if omit[entry] {
			return
		}
		f, err := os.Open(src)
		require.NoError(t, err)
		defer f.Close()
		w, err := zw.Create(opts.Dir + entry)
		require.NoError(t, err)
		_, err = io.Copy(w, f)
		require.NoError(t, err)
	}

	for _, kind := range kinds {
		base := LayerBase(stormID, advisory, kind)
		WriteLayer(t, work, base, kind, attrs)
		for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
			addFile(base+ext, filepath.Join(work, base+ext))
		}
	}

	readme, err := zw.Create(opts.Dir + "README.txt")
	require.NoError(t, err)
	_, err = readme.Write([]byte("forecast advisory layers"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	data, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	return data
}
