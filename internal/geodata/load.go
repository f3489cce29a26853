package geodata

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/fetcher"
	"github.com/sells-group/quakemap/internal/model"
)

// LoadCitiesFrom reads a city GeoJSON document from a local path or URL.
func LoadCitiesFrom(ctx context.Context, f fetcher.Fetcher, source string) ([]model.City, error) {
	rc, err := fetcher.Open(ctx, f, source)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: open cities %s", source)
	}
	defer rc.Close() //nolint:errcheck

	cities, err := LoadCities(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: load cities %s", source)
	}
	zap.L().Info("geodata: loaded cities", zap.String("source", source), zap.Int("count", len(cities)))
	return cities, nil
}

// LoadCountriesFrom reads country boundaries from a shapefile, a zipped
// shapefile or a GeoJSON document. Zip and GeoJSON sources may be URLs.
func LoadCountriesFrom(ctx context.Context, f fetcher.Fetcher, source string) ([]model.Country, error) {
	var (
		countries []model.Country
		err       error
	)
	ext := strings.ToLower(filepath.Ext(source))
	switch {
	case ext == ".zip":
		countries, err = loadCountriesZIP(ctx, f, source)
	case ext == ".shp" && !fetcher.IsRemote(source):
		countries, err = LoadCountriesShapefile(source)
	default:
		rc, openErr := fetcher.Open(ctx, f, source)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "geodata: open countries %s", source)
		}
		defer rc.Close() //nolint:errcheck
		countries, err = LoadCountries(rc)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: load countries %s", source)
	}
	zap.L().Info("geodata: loaded countries", zap.String("source", source), zap.Int("count", len(countries)))
	return countries, nil
}

// loadCountriesZIP extracts a zipped shapefile into a temp dir and reads the
// first .shp inside. Remote archives are downloaded first.
func loadCountriesZIP(ctx context.Context, f fetcher.Fetcher, source string) ([]model.Country, error) {
	dir, err := os.MkdirTemp("", "quakemap-countries-*")
	if err != nil {
		return nil, eris.Wrap(err, "geodata: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	zipPath := source
	if fetcher.IsRemote(source) {
		zipPath = filepath.Join(dir, "countries.zip")
		if err := fetcher.SaveTo(ctx, f, source, zipPath); err != nil {
			return nil, eris.Wrap(err, "geodata: download countries archive")
		}
	}

	extracted, err := fetcher.ExtractZIP(zipPath, filepath.Join(dir, "shp"))
	if err != nil {
		return nil, err
	}
	shpPath, err := fetcher.FindByExt(extracted, ".shp")
	if err != nil {
		return nil, err
	}
	return LoadCountriesShapefile(shpPath)
}
