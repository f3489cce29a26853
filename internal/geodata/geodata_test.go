package geodata

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

func TestLoadCities(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "cities.geojson"))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	cities, err := LoadCities(f)
	require.NoError(t, err)
	require.Len(t, cities, 3, "out-of-range city should be dropped")

	assert.Equal(t, "Tokyo", cities[0].Name)
	assert.Equal(t, "Japan", cities[0].Country)
	assert.InDelta(t, 37.4, cities[0].Population, 1e-9)
	assert.InDelta(t, 35.69, cities[0].Location.Lat, 1e-9)
	assert.InDelta(t, 139.69, cities[0].Location.Lon, 1e-9)

	assert.InDelta(t, 6.7, cities[1].Population, 1e-9, "string population is parsed")
	assert.Zero(t, cities[2].Population)
}

func TestLoadCities_SchemaViolation(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"country":"X"}}]}`
	_, err := LoadCities(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cities")
}

func TestLoadCities_WrongGeometry(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"LineString","coordinates":[[1,2],[3,4]]},"properties":{"name":"X"}}]}`
	_, err := LoadCities(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoadCountries(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "countries.geojson"))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	countries, err := LoadCountries(f)
	require.NoError(t, err)
	require.Len(t, countries, 2)

	assert.Equal(t, "Squareland", countries[0].Name)
	assert.Equal(t, 1, countries[0].Geometry.NumPolygons())
	assert.Equal(t, 2, countries[0].Geometry.Polygon(0).NumLinearRings())

	assert.Equal(t, "ISL", countries[1].Name, "falls back to feature id")
	assert.Equal(t, 2, countries[1].Geometry.NumPolygons())

	c := quake.NewClassifier(countries)
	name, ok := c.CountryOf(model.Location{Lat: 2, Lon: 2})
	assert.True(t, ok)
	assert.Equal(t, "Squareland", name)

	_, ok = c.CountryOf(model.Location{Lat: 5, Lon: 5})
	assert.False(t, ok, "hole is not land")

	name, ok = c.CountryOf(model.Location{Lat: 1, Lon: 31})
	assert.True(t, ok)
	assert.Equal(t, "ISL", name)
}

func TestLoadCountries_Invalid(t *testing.T) {
	_, err := LoadCountries(strings.NewReader(`{"type":"Topology"}`))
	require.Error(t, err)

	_, err = LoadCountries(strings.NewReader(`not json`))
	require.Error(t, err)
}

func writeShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "countries.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 32)}))

	// Clockwise exterior followed by a counter-clockwise hole.
	square := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4}},
	}))
	row := w.Write(&square)
	require.NoError(t, w.WriteAttribute(int(row), 0, "Squareland"))

	// Two clockwise parts make two polygons.
	islands := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 20, Y: 0}, {X: 20, Y: 2}, {X: 22, Y: 2}, {X: 22, Y: 0}, {X: 20, Y: 0}},
		{{X: 30, Y: 0}, {X: 30, Y: 2}, {X: 32, Y: 2}, {X: 32, Y: 0}, {X: 30, Y: 0}},
	}))
	row = w.Write(&islands)
	require.NoError(t, w.WriteAttribute(int(row), 0, "Islands"))

	w.Close()
	// go-shp v0.1.1 names the DBF "<base>dbf" (no dot); move it where readers expect it.
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestLoadCountriesShapefile(t *testing.T) {
	path := writeShapefile(t, t.TempDir())

	countries, err := LoadCountriesShapefile(path)
	require.NoError(t, err)
	require.Len(t, countries, 2)

	assert.Equal(t, "Squareland", countries[0].Name)
	require.Equal(t, 1, countries[0].Geometry.NumPolygons())
	assert.Equal(t, 2, countries[0].Geometry.Polygon(0).NumLinearRings())

	assert.Equal(t, "Islands", countries[1].Name)
	assert.Equal(t, 2, countries[1].Geometry.NumPolygons())
}

func TestLoadCountriesFrom_Dispatch(t *testing.T) {
	ctx := context.Background()

	shpPath := writeShapefile(t, t.TempDir())
	countries, err := LoadCountriesFrom(ctx, nil, shpPath)
	require.NoError(t, err)
	assert.Len(t, countries, 2)

	countries, err = LoadCountriesFrom(ctx, nil, filepath.Join("testdata", "countries.geojson"))
	require.NoError(t, err)
	assert.Len(t, countries, 2)

	_, err = LoadCountriesFrom(ctx, nil, filepath.Join("testdata", "missing.geojson"))
	require.Error(t, err)
}

func zipShapefile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	shpPath := writeShapefile(t, dir)
	base := strings.TrimSuffix(shpPath, ".shp")

	zipPath := filepath.Join(t.TempDir(), "countries.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	defer out.Close() //nolint:errcheck

	zw := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(base + ext)
		require.NoError(t, err)
		w, err := zw.Create("ne_countries/countries" + ext)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return zipPath
}

func TestLoadCountriesFrom_ZippedShapefile(t *testing.T) {
	countries, err := LoadCountriesFrom(context.Background(), nil, zipShapefile(t))
	require.NoError(t, err)
	require.Len(t, countries, 2)
	assert.Equal(t, "Squareland", countries[0].Name)
}

func TestLoadCountriesFrom_RemoteZipNeedsFetcher(t *testing.T) {
	_, err := LoadCountriesFrom(context.Background(), nil, "https://example.com/countries.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download countries archive")
}

func TestLoadCitiesFrom(t *testing.T) {
	cities, err := LoadCitiesFrom(context.Background(), nil, filepath.Join("testdata", "cities.geojson"))
	require.NoError(t, err)
	assert.Len(t, cities, 3)

	_, err = LoadCitiesFrom(context.Background(), nil, "https://example.com/cities.json")
	require.Error(t, err, "remote source needs a fetcher")
}
