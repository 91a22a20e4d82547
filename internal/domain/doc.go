// Package domain models National Hurricane Center (NHC) active-storm data and
// the on-disk forecast artifacts derived from it.
//
// # Data Source
//
// The NHC publishes the set of active tropical cyclones at
// https://www.nhc.noaa.gov/CurrentStorms.json. Each entry carries an id
// (e.g. "al052025"), a display name, a free-text storm type, and a nested
// forecast-track object with the advisory number ("advNum") and the URL of a
// ZIP archive of shapefiles ("zipFile") for that advisory.
//
// Two response shapes are observed in the wild and are treated identically:
//
//	{"activeStorms": [ {...}, {...} ]}
//	[ {...}, {...} ]
//
// Only "id" is reliably present. Every other field is optional and defaults to
// the empty string.
//
// # Forecast Archives
//
// An advisory archive is a flat ZIP of shapefile layers. Two layers matter:
//
//	<base>_5day_pgn.shp  →  cone of uncertainty (polygon)
//	<base>_5day_lin.shp  →  forecast track (line)
//
// A layer is the four files sharing <base>: .shp (geometry), .shx (index),
// .dbf (attributes) and .prj (projection). A missing sidecar is tolerated; the
// layer is still converted when the geometry and attributes can be read.
//
// # Artifacts
//
// Each converted layer is stored as one GeoJSON FeatureCollection named
//
//	{stormId}_{cone|track}_{advisory}.geojson   e.g. "al052025_cone_012A.geojson"
//
// The name must split into exactly three underscore-separated tokens; any other
// file in the directory is ignored by artifact listing. Names are decoded into
// an [ArtifactKey] at the store boundary and never passed around raw.
//
// A storm-name table (storm_names.json) maps lowercase storm ids to either a
// bare display name or a {name, type} record. It is rebuilt on every ingestion
// run.
//
// # Classification
//
// A feature's display status is resolved in tiers, first match wins:
//
//	1. storm type known for the storm id (name table, then live feed)
//	2. a textual property: status, stormType, type, CLASS, Class, system, SYSTEM
//	3. an intensity code (INTENSITY or TCtype): TD, TS, HU, SS, SD, EX, PT, LO, DB;
//	   HU gains "Cat N" from SS, SAFFIR_SIMPSON, Category or category
//	4. maximum wind, first present of MAX_WIND_MPH, MAX_WIND, Vmax, V_MAX,
//	   VMAX, MAX_WIND_KTS
//
// Wind values are converted from knots to mph (×1.15078) when the key names
// knots, or when the key is "Vmax" and the value is below 120 (the range where
// a knot reading is the likelier interpretation). Saffir-Simpson thresholds:
//
//	<39 mph Tropical Depression | <74 Tropical Storm
//	<96 Cat 1 | <111 Cat 2 | <130 Cat 3 | <157 Cat 4 | ≥157 Cat 5
//
// # Advisory Ordering
//
// Advisory tokens are compared by their leading integer and then by any
// trailing suffix, so "12" < "12A" < "13". See [CompareAdvisory].
package domain
