package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/feed"
	"github.com/sells-group/quakemap/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the map view-model over HTTP and websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		f := newFetcher(cfg.Fetch)
		geo, err := loadGeodata(ctx, f, cfg.Geodata)
		if err != nil {
			return err
		}

		srv := server.New(server.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			HitToleranceKM: cfg.Server.HitToleranceKM,
		})
		r := &refresher{srv: srv, feed: feed.NewClient(f, cfg.Feed.URL), geo: geo, scheme: cfg.Style.Scheme}
		if err := r.refresh(ctx); err != nil {
			return err
		}

		if secs := cfg.Server.RefreshSecs; secs > 0 {
			go r.run(ctx, time.Duration(secs)*time.Second)
		}
		defer srv.Hub().Close()

		return startServer(ctx, srv.Handler(), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// refresher reloads the feed into the server. Geodata is loaded once.
type refresher struct {
	srv    *server.Server
	feed   feedSource
	geo    *geoEnv
	scheme string
}

func (r *refresher) refresh(ctx context.Context) error {
	snap, err := r.feed.Fetch(ctx)
	if err != nil {
		return eris.Wrap(err, "serve: refresh feed")
	}
	if !snap.Changed {
		zap.L().Debug("serve: feed unchanged")
		return nil
	}
	fresh := r.srv.SetSnapshot(server.Snapshot{
		Source:   r.feed.Source(),
		Scheme:   r.scheme,
		Quakes:   r.geo.Classifier.ClassifyAll(snap.Quakes),
		Cities:   r.geo.Cities,
		LoadedAt: time.Now(),
	})
	r.feed.Commit(snap)
	zap.L().Info("serve: snapshot loaded",
		zap.Int("quakes", len(snap.Quakes)),
		zap.Int("new", len(fresh)),
	)
	return nil
}

// run refreshes on every tick until ctx is cancelled. Failures keep the
// previous snapshot.
func (r *refresher) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				zap.L().Warn("serve: refresh failed", zap.Error(err))
			}
		}
	}
}

// resolvePort returns the flag port when set, otherwise the config port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer listens on port until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
