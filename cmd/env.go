package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/quakemap/internal/config"
	"github.com/sells-group/quakemap/internal/feed"
	"github.com/sells-group/quakemap/internal/fetcher"
	"github.com/sells-group/quakemap/internal/geodata"
	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
	"github.com/sells-group/quakemap/internal/resilience"
)

// newFetcher builds the HTTP fetcher used for the feed and remote geodata.
func newFetcher(c config.FetchConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.UserAgent,
		Timeout:           time.Duration(c.TimeoutSecs) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		Retry:             resilience.FromSettings(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs),
	})
}

// geoEnv holds the static inputs that do not change between feed polls.
type geoEnv struct {
	Cities     []model.City
	Classifier *quake.Classifier
}

// loadGeodata loads cities and country boundaries concurrently.
func loadGeodata(ctx context.Context, f fetcher.Fetcher, gd config.GeodataConfig) (*geoEnv, error) {
	var (
		cities    []model.City
		countries []model.Country
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cities, err = geodata.LoadCitiesFrom(gctx, f, gd.Cities)
		return err
	})
	g.Go(func() error {
		var err error
		countries, err = geodata.LoadCountriesFrom(gctx, f, gd.Countries)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &geoEnv{Cities: cities, Classifier: quake.NewClassifier(countries)}, nil
}

// mapEnv is one classified snapshot of the feed together with the cities.
type mapEnv struct {
	Source string
	Scheme string
	Raw    []byte
	Quakes []model.Quake
	Cities []model.City
}

// loadEnv fetches the feed while the geodata loads, then classifies every
// quake as land or ocean.
func loadEnv(ctx context.Context, f fetcher.Fetcher, client *feed.Client, gd config.GeodataConfig, scheme string) (*mapEnv, error) {
	var (
		snap *feed.Snapshot
		geo  *geoEnv
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = client.Fetch(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		geo, err = loadGeodata(gctx, f, gd)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	env := &mapEnv{
		Source: client.Source(),
		Scheme: scheme,
		Raw:    snap.Raw,
		Quakes: geo.Classifier.ClassifyAll(snap.Quakes),
		Cities: geo.Cities,
	}
	zap.L().Info("loaded map data",
		zap.String("source", env.Source),
		zap.Int("quakes", len(env.Quakes)),
		zap.Int("cities", len(env.Cities)),
		zap.Int("countries", geo.Classifier.Len()),
	)
	return env, nil
}

// initMapEnv validates the config and loads a snapshot for the read-only
// commands.
func initMapEnv(ctx context.Context) (*mapEnv, error) {
	if err := cfg.Validate("map"); err != nil {
		return nil, err
	}
	f := newFetcher(cfg.Fetch)
	return loadEnv(ctx, f, feed.NewClient(f, cfg.Feed.URL), cfg.Geodata, cfg.Style.Scheme)
}
