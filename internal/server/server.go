// Package server exposes the quake map over HTTP and streams newly seen
// quakes to websocket clients.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/events"
	"github.com/sells-group/quakemap/internal/export"
	"github.com/sells-group/quakemap/internal/mapview"
	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

// Snapshot is the data set the server answers from.
type Snapshot struct {
	Source   string
	Scheme   string
	Quakes   []model.Quake
	Cities   []model.City
	LoadedAt time.Time
}

// Options configures a Server.
type Options struct {
	CORSOrigins    []string
	HitToleranceKM float64
}

// Server holds the current snapshot and its view-model.
type Server struct {
	opts Options
	hub  *Hub

	mu    sync.RWMutex
	snap  Snapshot
	byID  map[string]model.Quake
	view  *mapview.View
	ready bool
}

// New creates a server with an empty snapshot.
func New(opts Options) *Server {
	if opts.HitToleranceKM <= 0 {
		opts.HitToleranceKM = 25
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		opts: opts,
		hub:  NewHub(originChecker(opts.CORSOrigins)),
		byID: map[string]model.Quake{},
		view: mapview.New(nil, nil, quake.SchemeDepth),
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// SetSnapshot replaces the served data and rebuilds the view, dropping any
// selection. Quakes not present in the previous snapshot are broadcast to
// websocket clients; the first snapshot broadcasts nothing. It returns the
// newly seen quakes.
func (s *Server) SetSnapshot(snap Snapshot) []model.Quake {
	if !quake.ValidScheme(snap.Scheme) {
		snap.Scheme = quake.SchemeDepth
	}
	byID := make(map[string]model.Quake, len(snap.Quakes))
	for _, q := range snap.Quakes {
		byID[q.ID] = q
	}

	s.mu.Lock()
	var fresh []model.Quake
	if s.ready {
		for _, q := range snap.Quakes {
			if _, seen := s.byID[q.ID]; !seen {
				fresh = append(fresh, q)
			}
		}
	}
	s.snap = snap
	s.byID = byID
	s.view = mapview.New(snap.Quakes, snap.Cities, snap.Scheme)
	s.ready = true
	s.mu.Unlock()

	if len(fresh) > 0 {
		if err := s.hub.Broadcast(events.NewQuakeEvents("", fresh, time.Now())...); err != nil {
			zap.L().Warn("server: broadcast failed", zap.Error(err))
		}
	}
	return fresh
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/quakes", func(r chi.Router) {
		r.Get("/", s.handleQuakes)
		r.Get("/{id}", s.handleQuake)
		r.Get("/{id}/threatened", s.handleThreatened)
	})
	r.Route("/cities", func(r chi.Router) {
		r.Get("/", s.handleCities)
		r.Get("/{name}/threats", s.handleCityThreats)
	})
	r.Get("/summary", s.handleSummary)
	r.Get("/legend", s.handleLegend)
	r.Get("/markers", s.handleMarkers)
	r.Route("/view", func(r chi.Router) {
		r.Get("/", s.handleView)
		r.Post("/hover", s.handleHover)
		r.Post("/click", s.handleClick)
		r.Post("/reset", s.handleReset)
	})
	r.Handle("/ws", s.hub)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"quakes":    len(s.snap.Quakes),
		"cities":    len(s.snap.Cities),
		"clients":   s.hub.Len(),
		"loaded_at": s.snap.LoadedAt,
	})
}

func (s *Server) handleQuakes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := quake.Filter{Country: q.Get("country")}
	var err error
	if f.OceanOnly, err = boolParam(q.Get("ocean")); err != nil {
		writeError(w, http.StatusBadRequest, "ocean must be a boolean")
		return
	}
	if f.RecentOnly, err = boolParam(q.Get("recent")); err != nil {
		writeError(w, http.StatusBadRequest, "recent must be a boolean")
		return
	}
	if v := q.Get("min_mag"); v != "" {
		if f.MinMag, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "min_mag must be a number")
			return
		}
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	s.mu.RLock()
	out := quake.SortByMagnitude(f.Apply(s.snap.Quakes), limit)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) handleQuake(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	q, ok := s.byID[chi.URLParam(r, "id")]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "quake not found")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleThreatened(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.byID[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "quake not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quake":     q.ID,
		"threat_km": quake.ThreatCircleKM(q.Magnitude),
		"cities":    nonNil(quake.CitiesThreatenedBy(q, s.snap.Cities)),
	})
}

func (s *Server) handleCities(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, nonNil(s.snap.Cities))
}

func (s *Server) handleCityThreats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	country := r.URL.Query().Get("country")

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.snap.Cities {
		if !strings.EqualFold(c.Name, name) {
			continue
		}
		if country != "" && !strings.EqualFold(c.Country, country) {
			continue
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"city":   c,
			"quakes": nonNil(quake.SortByMagnitude(quake.QuakesThreatening(c, s.snap.Quakes), 0)),
		})
		return
	}
	writeError(w, http.StatusNotFound, "city not found")
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, quake.CountByCountry(s.snap.Quakes))
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	scheme := r.URL.Query().Get("scheme")
	if scheme == "" {
		s.mu.RLock()
		scheme = s.snap.Scheme
		s.mu.RUnlock()
	}
	if !quake.ValidScheme(scheme) {
		writeError(w, http.StatusBadRequest, "unknown scheme")
		return
	}
	writeJSON(w, http.StatusOK, mapview.Legend(scheme))
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	visibleOnly, err := boolParam(r.URL.Query().Get("visible"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "visible must be a boolean")
		return
	}

	s.mu.RLock()
	markers := s.view.Markers()
	if visibleOnly {
		markers = s.view.Visible()
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/geo+json")
	if err := export.WriteGeoJSON(w, markers); err != nil {
		zap.L().Warn("server: write markers", zap.Error(err))
	}
}

// viewRequest selects a marker by id or, when id is empty, by position.
type viewRequest struct {
	ID  string   `json:"id"`
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (s *Server) resolveMarker(req viewRequest) string {
	if req.ID != "" || req.Lat == nil || req.Lon == nil {
		return req.ID
	}
	m, ok := s.view.MarkerAt(model.Location{Lat: *req.Lat, Lon: *req.Lon}, s.opts.HitToleranceKM)
	if !ok {
		return ""
	}
	return m.ID
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	withMarkers, err := boolParam(r.URL.Query().Get("markers"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "markers must be a boolean")
		return
	}
	s.mu.RLock()
	st := s.view.State(withMarkers)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mu.Lock()
	s.view.Hover(s.resolveMarker(req))
	st := s.view.State(false)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mu.Lock()
	s.view.Click(s.resolveMarker(req))
	st := s.view.State(false)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.view.Reset()
	st := s.view.State(false)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[strings.ToLower(origin)]
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
