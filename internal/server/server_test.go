package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quakemap/internal/events"
	"github.com/sells-group/quakemap/internal/mapview"
	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

var (
	cityNear = model.City{Name: "Near", Country: "Landia", Population: 2.5, Location: model.Location{Lat: 0, Lon: 0}}
	cityFar  = model.City{Name: "Far", Country: "Farland", Population: 0.8, Location: model.Location{Lat: 0, Lon: 50}}
)

func testSnapshot() Snapshot {
	return Snapshot{
		Source: "test.atom",
		Scheme: quake.SchemeDepth,
		Quakes: []model.Quake{
			{ID: "qo", Title: "M 5.0 - offshore", Location: model.Location{Lat: 0, Lon: 0.5}, Magnitude: 5, DepthKM: 10, Age: model.AgePastDay},
			{ID: "ql", Title: "M 3.0 - inland", Location: model.Location{Lat: 0, Lon: 49.9}, Magnitude: 3, DepthKM: 100, Country: "Farland", OnLand: true},
			{ID: "q2", Title: "M 4.0 - remote", Location: model.Location{Lat: 40, Lon: 100}, Magnitude: 4, DepthKM: 400},
		},
		Cities:   []model.City{cityNear, cityFar},
		LoadedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	s := New(Options{HitToleranceKM: 5})
	s.SetSnapshot(testSnapshot())
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["quakes"])
}

func TestQuakes(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/quakes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]model.Quake](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, "qo", all[0].ID, "sorted by magnitude")

	top := decode[[]model.Quake](t, do(t, h, http.MethodGet, "/quakes?limit=2", nil))
	assert.Len(t, top, 2)

	land := decode[[]model.Quake](t, do(t, h, http.MethodGet, "/quakes?country=Farland", nil))
	require.Len(t, land, 1)
	assert.Equal(t, "ql", land[0].ID)

	ocean := decode[[]model.Quake](t, do(t, h, http.MethodGet, "/quakes?ocean=true", nil))
	assert.Len(t, ocean, 2)

	none := do(t, h, http.MethodGet, "/quakes?country=Atlantis", nil)
	assert.Equal(t, "[]\n", none.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/quakes?limit=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/quakes?ocean=maybe", nil).Code)
}

func TestQuakeByID(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/quakes/ql", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Farland", decode[model.Quake](t, rec).Country)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/quakes/missing", nil).Code)
}

func TestThreatened(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/quakes/qo/threatened", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Quake    string       `json:"quake"`
		ThreatKM float64      `json:"threat_km"`
		Cities   []model.City `json:"cities"`
	}](t, rec)
	assert.Equal(t, "qo", body.Quake)
	assert.InDelta(t, quake.ThreatCircleKM(5), body.ThreatKM, 1e-9)
	require.Len(t, body.Cities, 1)
	assert.Equal(t, "Near", body.Cities[0].Name)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/quakes/missing/threatened", nil).Code)
}

func TestCityThreats(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/cities/far/threats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		City   model.City    `json:"city"`
		Quakes []model.Quake `json:"quakes"`
	}](t, rec)
	assert.Equal(t, "Far", body.City.Name)
	require.Len(t, body.Quakes, 1)
	assert.Equal(t, "ql", body.Quakes[0].ID)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/cities/Far/threats?country=Landia", nil).Code)
	assert.Len(t, decode[[]model.City](t, do(t, h, http.MethodGet, "/cities", nil)), 2)
}

func TestSummary(t *testing.T) {
	_, h := newTestServer(t)
	s := decode[quake.Summary](t, do(t, h, http.MethodGet, "/summary", nil))
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Ocean)
	require.Len(t, s.Countries, 1)
	assert.Equal(t, quake.CountryCount{Country: "Farland", Count: 1}, s.Countries[0])
}

func TestLegend(t *testing.T) {
	_, h := newTestServer(t)

	rows := decode[[]mapview.LegendEntry](t, do(t, h, http.MethodGet, "/legend", nil))
	assert.Equal(t, mapview.Legend(quake.SchemeDepth), rows)

	rows = decode[[]mapview.LegendEntry](t, do(t, h, http.MethodGet, "/legend?scheme=magnitude", nil))
	assert.Equal(t, mapview.Legend(quake.SchemeMagnitude), rows)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/legend?scheme=rainbow", nil).Code)
}

func TestMarkers(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/markers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	fc := decode[struct {
		Features []json.RawMessage `json:"features"`
	}](t, rec)
	assert.Len(t, fc.Features, 5)

	do(t, h, http.MethodPost, "/view/click", map[string]string{"id": "q2"})
	fc = decode[struct {
		Features []json.RawMessage `json:"features"`
	}](t, do(t, h, http.MethodGet, "/markers?visible=true", nil))
	assert.Len(t, fc.Features, 1)
}

func TestViewClickAndReset(t *testing.T) {
	_, h := newTestServer(t)

	st := decode[mapview.State](t, do(t, h, http.MethodPost, "/view/click", map[string]string{"id": "qo"}))
	assert.Equal(t, "qo", st.Clicked)
	assert.Equal(t, 2, st.Visible)
	assert.Equal(t, 3, st.Hidden)
	require.Len(t, st.Lines, 1)

	st = decode[mapview.State](t, do(t, h, http.MethodGet, "/view", nil))
	assert.Equal(t, "qo", st.Clicked)

	// Second click resets.
	st = decode[mapview.State](t, do(t, h, http.MethodPost, "/view/click", map[string]string{"id": "ql"}))
	assert.Empty(t, st.Clicked)
	assert.Equal(t, 5, st.Visible)

	do(t, h, http.MethodPost, "/view/click", map[string]string{"id": "ql"})
	st = decode[mapview.State](t, do(t, h, http.MethodPost, "/view/reset", nil))
	assert.Equal(t, 0, st.Hidden)
}

func TestViewHoverByPosition(t *testing.T) {
	_, h := newTestServer(t)

	lat, lon := 0.0, 0.01
	st := decode[mapview.State](t, do(t, h, http.MethodPost, "/view/hover", map[string]any{"lat": lat, "lon": lon}))
	assert.Equal(t, cityNear.Key(), st.Selected)
	assert.Equal(t, "Near, Landia\nPop: 2.5 Million", st.Title)

	st = decode[mapview.State](t, do(t, h, http.MethodPost, "/view/hover", map[string]any{"lat": -60.0, "lon": -120.0}))
	assert.Empty(t, st.Selected)

	rec := do(t, h, http.MethodPost, "/view/hover", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetSnapshot_ReportsFreshQuakes(t *testing.T) {
	s := New(Options{})
	assert.Empty(t, s.SetSnapshot(testSnapshot()), "first snapshot is the baseline")

	next := testSnapshot()
	next.Quakes = append(next.Quakes, model.Quake{ID: "new", Title: "M 6.1", Magnitude: 6.1})
	fresh := s.SetSnapshot(next)
	require.Len(t, fresh, 1)
	assert.Equal(t, "new", fresh[0].ID)
}

func TestSetSnapshot_InvalidSchemeFallsBack(t *testing.T) {
	s := New(Options{})
	snap := testSnapshot()
	snap.Scheme = "bogus"
	s.SetSnapshot(snap)

	rows := decode[[]mapview.LegendEntry](t, do(t, s.Handler(), http.MethodGet, "/legend", nil))
	assert.Equal(t, mapview.Legend(quake.SchemeDepth), rows)
}

func TestWebsocketStream(t *testing.T) {
	s, h := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	next := testSnapshot()
	next.Quakes = append(next.Quakes, model.Quake{ID: "fresh", Title: "M 5.5 - new", Magnitude: 5.5})
	s.SetSnapshot(next)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.TypeQuakeNew, ev.Type)
	assert.Equal(t, "fresh", ev.Quake.ID)

	s.Hub().Close()
	assert.Equal(t, 0, s.Hub().Len())
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker([]string{"*"}))

	check := originChecker([]string{"https://maps.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://maps.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
