// Package shapefile converts extracted forecast layers into GeoJSON feature
// collections.
package shapefile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Converter reads shapefile layers.
type Converter struct {
	logger *slog.Logger
}

// NewConverter creates a Converter.
func NewConverter(logger *slog.Logger) *Converter {
	return &Converter{logger: logger.With("component", "shapefile")}
}

// Convert reads the layer whose geometry file is shpPath and returns every
// record as a feature. A missing .shp or an unreadable geometry stream wraps
// domain.ErrLayerIncomplete. A missing .dbf yields features without
// properties.
func (c *Converter) Convert(shpPath string) (*geojson.FeatureCollection, error) {
	base := strings.TrimSuffix(shpPath, ".shp")
	if _, err := os.Stat(shpPath); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLayerIncomplete, err)
	}
	c.checkProjection(base + ".prj")

	r, err := shp.Open(shpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrLayerIncomplete, shpPath, err)
	}
	defer r.Close()

	var (
		fields []shp.Field
		rows   int
	)
	if _, err := os.Stat(base + ".dbf"); err == nil {
		fields = r.Fields()
		rows = r.AttributeCount()
	} else {
		c.logger.Warn("layer has no attribute table, writing geometry only", "file", base+".dbf")
	}

	fc := geojson.NewFeatureCollection()
	for r.Next() {
		row, shape := r.Shape()
		geom, err := geometry(shape)
		if err != nil {
			c.logger.Warn("skipping record", "file", shpPath, "row", row, "error", err)
			continue
		}
		f := geojson.NewFeature(geom)
		if row < rows {
			for i, field := range fields {
				f.Properties[field.String()] = attribute(field, r.ReadAttribute(row, i))
			}
		}
		fc.Append(f)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrLayerIncomplete, shpPath, err)
	}

	c.logger.Debug("layer converted", "file", shpPath, "features", len(fc.Features))
	return fc, nil
}

// checkProjection warns when a layer is not in geographic coordinates. Output
// coordinates are copied as-is.
func (c *Converter) checkProjection(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("layer has no projection file, assuming WGS84", "file", path)
		return
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "PROJCS") {
		c.logger.Warn("layer uses a projected coordinate system, coordinates are not reprojected", "file", path)
	}
}

var errUnsupportedShape = errors.New("unsupported shape type")

func geometry(s shp.Shape) (orb.Geometry, error) {
	switch g := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{g.X, g.Y}, nil
	case *shp.PointZ:
		return orb.Point{g.X, g.Y}, nil
	case *shp.PointM:
		return orb.Point{g.X, g.Y}, nil
	case *shp.MultiPoint:
		return multiPoint(g.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(g.Points), nil
	case *shp.MultiPointM:
		return multiPoint(g.Points), nil
	case *shp.PolyLine:
		return lines(g.Parts, g.Points), nil
	case *shp.PolyLineZ:
		return lines(g.Parts, g.Points), nil
	case *shp.PolyLineM:
		return lines(g.Parts, g.Points), nil
	case *shp.Polygon:
		return polygons(g.Parts, g.Points), nil
	case *shp.PolygonZ:
		return polygons(g.Parts, g.Points), nil
	case *shp.PolygonM:
		return polygons(g.Parts, g.Points), nil
	default:
		return nil, fmt.Errorf("%w: %T", errUnsupportedShape, s)
	}
}

func multiPoint(points []shp.Point) orb.Geometry {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// splitParts cuts a flat point list at the part offsets. Offsets past the
// point list are clamped to its end.
func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	n := int32(len(points))
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = min(parts[i+1], n)
		}
		if start < 0 || start >= end {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts []int32, points []shp.Point) orb.Geometry {
	split := splitParts(parts, points)
	switch len(split) {
	case 0:
		return nil
	case 1:
		return orb.LineString(split[0])
	}
	mls := make(orb.MultiLineString, len(split))
	for i, part := range split {
		mls[i] = orb.LineString(part)
	}
	return mls
}

// polygons groups rings the shapefile way: a clockwise ring starts a new
// polygon and each counter-clockwise ring is a hole of the polygon before it.
func polygons(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, part := range splitParts(parts, points) {
		ring := orb.Ring(part)
		if len(mp) == 0 || ring.Orientation() != orb.CCW {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}

// attribute types a raw dBASE value. Numeric columns become float64 (nil when
// blank), logical columns become bool and everything else stays text.
func attribute(field shp.Field, raw string) any {
	raw = strings.Trim(raw, " \x00")
	switch field.Fieldtype {
	case 'N', 'F':
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return decodeText(raw)
		}
		return v
	case 'L':
		switch raw {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
		return nil
	}
	return decodeText(raw)
}

// decodeText passes UTF-8 through and reads anything else as Latin-1, the
// usual encoding of legacy dBASE tables.
func decodeText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	runes := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		runes[i] = rune(s[i])
	}
	return string(runes)
}
