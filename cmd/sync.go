package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/archive"
	"github.com/sells-group/quakemap/internal/events"
	"github.com/sells-group/quakemap/internal/feed"
	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the feed and persist classified quakes",
	Long:  "Fetches the feed, classifies quakes, upserts them into the store, archives the raw document and publishes new quakes. With --interval it polls until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		interval, _ := cmd.Flags().GetDuration("interval")
		if !cmd.Flags().Changed("interval") {
			interval = time.Duration(cfg.Sync.IntervalSecs) * time.Second
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f := newFetcher(cfg.Fetch)
		geo, err := loadGeodata(ctx, f, cfg.Geodata)
		if err != nil {
			return err
		}

		s := &syncer{
			store:      st,
			feed:       feed.NewClient(f, cfg.Feed.URL),
			classifier: geo.Classifier,
			strict:     cfg.Sync.Strict,
			now:        time.Now,
		}

		if cfg.Archive.Enabled {
			a, err := archive.New(archive.Config{
				Endpoint:  cfg.Archive.Endpoint,
				AccessKey: cfg.Archive.AccessKey,
				SecretKey: cfg.Archive.SecretKey,
				Bucket:    cfg.Archive.Bucket,
				Region:    cfg.Archive.Region,
				Prefix:    cfg.Archive.Prefix,
				UseSSL:    cfg.Archive.UseSSL,
			})
			if err != nil {
				return err
			}
			s.archive = a
		}

		if cfg.Events.Enabled {
			p, err := events.NewKafka(events.Config{Brokers: cfg.Events.Brokers, Topic: cfg.Events.Topic})
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck
			s.events = p
		}

		if cfg.Monitoring.Enabled && interval > 0 {
			go newChecker(st).Run(ctx)
		}

		return s.loop(ctx, interval)
	},
}

func init() {
	syncCmd.Flags().Duration("interval", 0, "poll interval (e.g. 5m); 0 runs once (default from config)")
	rootCmd.AddCommand(syncCmd)
}

// syncStore is the part of store.Store used by sync.
type syncStore interface {
	UpsertQuakes(ctx context.Context, quakes []model.Quake) ([]string, error)
	CreateSyncRun(ctx context.Context, source string) (*model.SyncRun, error)
	CompleteSyncRun(ctx context.Context, run *model.SyncRun) error
}

// feedSource is satisfied by *feed.Client. Commit marks a snapshot as
// handled so later fetches may skip it.
type feedSource interface {
	Source() string
	Fetch(ctx context.Context) (*feed.Snapshot, error)
	Commit(snap *feed.Snapshot)
}

type feedArchiver interface {
	Put(ctx context.Context, runID string, t time.Time, raw []byte) (string, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, evs ...events.Event) error
}

// syncer runs fetch-classify-persist cycles. archive and events are optional
// sinks; their failures are counted on the run and only abort it in strict
// mode.
type syncer struct {
	store      syncStore
	feed       feedSource
	classifier *quake.Classifier
	archive    feedArchiver
	events     eventPublisher
	strict     bool
	now        func() time.Time
}

// loop runs one sync, then repeats every interval until ctx is cancelled.
// Failed polls are logged and retried on the next tick unless strict.
func (s *syncer) loop(ctx context.Context, interval time.Duration) error {
	if _, err := s.runOnce(ctx); err != nil {
		if interval <= 0 || s.strict {
			return err
		}
		zap.L().Error("sync failed", zap.Error(err))
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	zap.L().Info("sync: polling", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("sync: stopped")
			return nil
		case <-ticker.C:
			if _, err := s.runOnce(ctx); err != nil {
				if s.strict {
					return err
				}
				zap.L().Error("sync failed", zap.Error(err))
			}
		}
	}
}

// runOnce records one sync run. The run is completed in the store even when
// the cycle fails.
func (s *syncer) runOnce(ctx context.Context) (*model.SyncRun, error) {
	run, err := s.store.CreateSyncRun(ctx, s.feed.Source())
	if err != nil {
		return nil, eris.Wrap(err, "sync: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("source", run.Source))

	syncErr := s.process(ctx, run)
	if syncErr != nil {
		run.Error = syncErr.Error()
		run.Status = model.SyncStatusFailed
	}
	// The run is recorded even if ctx was cancelled mid-cycle.
	if err := s.store.CompleteSyncRun(context.WithoutCancel(ctx), run); err != nil {
		if syncErr == nil {
			syncErr = eris.Wrap(err, "sync: complete run")
		} else {
			log.Warn("sync: complete run failed", zap.Error(err))
		}
	}

	log.Info("sync run finished",
		zap.String("status", string(run.Status)),
		zap.Int("fetched", run.Fetched),
		zap.Int("new", run.New),
		zap.Int("land", run.LandQuakes),
		zap.Int("sink_errors", run.SinkErrors),
	)
	return run, syncErr
}

func (s *syncer) process(ctx context.Context, run *model.SyncRun) error {
	snap, err := s.feed.Fetch(ctx)
	if err != nil {
		return eris.Wrap(err, "sync: fetch feed")
	}
	if !snap.Changed {
		zap.L().Info("sync: feed unchanged", zap.String("run_id", run.ID), zap.String("etag", snap.ETag))
		return nil
	}

	quakes := snap.Quakes
	if s.classifier != nil {
		quakes = s.classifier.ClassifyAll(quakes)
	}
	run.Fetched = len(quakes)
	for _, q := range quakes {
		if q.OnLand {
			run.LandQuakes++
		}
	}

	if s.archive != nil {
		key, err := s.archive.Put(ctx, run.ID, run.StartedAt, snap.Raw)
		if err != nil {
			if err := s.sinkFailed(run, "archive", err); err != nil {
				return err
			}
		} else {
			zap.L().Debug("sync: archived feed", zap.String("run_id", run.ID), zap.String("key", key))
		}
	}

	ids, err := s.store.UpsertQuakes(ctx, quakes)
	if err != nil {
		// Without the upsert result there is no way to tell which quakes
		// are new, so nothing is published.
		return s.sinkFailed(run, "store", err)
	}
	run.New = len(ids)
	// The feed is only marked as handled once its quakes are stored, so a
	// failed upsert is retried with the same document on the next tick.
	s.feed.Commit(snap)

	if s.events != nil && len(ids) > 0 {
		evs := events.NewQuakeEvents(run.ID, selectByID(quakes, ids), s.now())
		if err := s.events.Publish(ctx, evs...); err != nil {
			return s.sinkFailed(run, "events", err)
		}
	}
	return nil
}

// sinkFailed counts a sink failure on run. It returns the error only in
// strict mode.
func (s *syncer) sinkFailed(run *model.SyncRun, sink string, err error) error {
	run.SinkErrors++
	zap.L().Warn("sync: sink failed",
		zap.String("run_id", run.ID),
		zap.String("sink", sink),
		zap.Error(err),
	)
	if s.strict {
		return eris.Wrapf(err, "sync: %s sink", sink)
	}
	return nil
}

// selectByID returns the quakes whose id is in ids, in quakes order.
func selectByID(quakes []model.Quake, ids []string) []model.Quake {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Quake
	for _, q := range quakes {
		if want[q.ID] {
			out = append(out, q)
		}
	}
	return out
}
