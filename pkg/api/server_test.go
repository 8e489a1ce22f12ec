package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/james-see/gangsa/pkg/clock"
	"github.com/james-see/gangsa/pkg/sequencer"
	"github.com/james-see/gangsa/pkg/timeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockBackend implements sequencer.Backend and sequencer.Auditioner for testing
type mockBackend struct {
	clk        *clock.Clock
	mu         sync.Mutex
	auditioned []string
}

func (m *mockBackend) Ready() bool                                  { return true }
func (m *mockBackend) TriggerNote(pitch string, d, at time.Duration) {}
func (m *mockBackend) Clock() *clock.Clock                          { return m.clk }
func (m *mockBackend) Audition(pitch string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditioned = append(m.auditioned, pitch)
}

type fixture struct {
	timelines *timeline.Collection
	transport *sequencer.Transport
	backend   *mockBackend
	handler   http.Handler
}

func newFixture() *fixture {
	b := &mockBackend{clk: clock.New(120)}
	tl := timeline.NewCollection()
	tr := sequencer.NewTransport(b, tl)
	srv := NewServer(tl, tr)
	return &fixture{timelines: tl, transport: tr, backend: b, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := f.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
		if body := decode[map[string]string](t, w); body["status"] != "healthy" {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestPaletteAndPresets(t *testing.T) {
	f := newFixture()
	palette := decode[map[string][]timeline.NoteDefinition](t, f.do(t, http.MethodGet, "/api/v1/palette", ""))
	if len(palette["palette"]) != 10 {
		t.Errorf("palette has %d keys, want 10", len(palette["palette"]))
	}
	presets := decode[map[string][]timeline.Preset](t, f.do(t, http.MethodGet, "/api/v1/presets", ""))
	if len(presets["presets"]) != 3 {
		t.Errorf("got %d presets, want 3", len(presets["presets"]))
	}
}

func TestPlayPaletteNote(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/api/v1/palette/D5", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("POST palette = %d %s", w.Code, w.Body)
	}
	tl := decode[timeline.Timeline](t, w)
	if tl.Len() != 1 || tl.ID != f.timelines.Active() {
		t.Errorf("active timeline = %+v", tl)
	}
	if len(f.backend.auditioned) != 1 || f.backend.auditioned[0] != "D5" {
		t.Errorf("auditioned = %v", f.backend.auditioned)
	}

	if w := f.do(t, http.MethodPost, "/api/v1/palette/F4", ""); w.Code != http.StatusBadRequest {
		t.Errorf("POST palette/F4 = %d, want 400", w.Code)
	}
}

func TestTimelineRoutes(t *testing.T) {
	f := newFixture()
	id := f.timelines.Active()
	base := "/api/v1/timelines/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"append note", http.MethodPost, base + "/items", `{"pitch":"E4"}`, http.StatusCreated},
		{"append rest", http.MethodPost, base + "/items", `{"rest":true}`, http.StatusCreated},
		{"append nothing", http.MethodPost, base + "/items", `{}`, http.StatusBadRequest},
		{"append bad pitch", http.MethodPost, base + "/items", `{"pitch":"B9"}`, http.StatusBadRequest},
		{"append to missing", http.MethodPost, "/api/v1/timelines/missing/items", `{"rest":true}`, http.StatusNotFound},
		{"remove missing item", http.MethodDelete, base + "/items/missing", "", http.StatusNotFound},
		{"move missing item", http.MethodPost, base + "/items/missing/move", `{}`, http.StatusNotFound},
		{"unknown preset", http.MethodPost, base + "/preset/kebyar", "", http.StatusBadRequest},
		{"mute", http.MethodPost, base + "/mute", "", http.StatusOK},
		{"remove last", http.MethodDelete, base + "/last", "", http.StatusOK},
		{"get", http.MethodGet, base, "", http.StatusOK},
		{"get missing", http.MethodGet, "/api/v1/timelines/missing", "", http.StatusNotFound},
		{"activate", http.MethodPut, base + "/active", "", http.StatusNoContent},
		{"clear", http.MethodPost, base + "/clear", "", http.StatusOK},
		{"delete missing", http.MethodDelete, "/api/v1/timelines/missing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, tt.method, tt.path, tt.body); w.Code != tt.status {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.status, w.Body)
			}
		})
	}
}

func TestMoveAndRemoveItem(t *testing.T) {
	f := newFixture()
	id := f.timelines.Active()
	a, _ := f.timelines.AppendNote(id, "D4")
	b, _ := f.timelines.AppendNote(id, "E4")
	base := "/api/v1/timelines/" + id

	w := f.do(t, http.MethodPost, base+"/items/"+a.ID+"/move", `{"before":""}`)
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d %s", w.Code, w.Body)
	}
	tl := decode[timeline.Timeline](t, w)
	if timeline.IDOf(tl.Items[0]) != b.ID || timeline.TimeOf(tl.Items[1]) != "0:0:1" {
		t.Errorf("after move items = %+v", tl.Items)
	}

	w = f.do(t, http.MethodDelete, base+"/items/"+b.ID, "")
	tl = decode[timeline.Timeline](t, w)
	if tl.Len() != 1 || timeline.IDOf(tl.Items[0]) != a.ID || timeline.TimeOf(tl.Items[0]) != "0:0:0" {
		t.Errorf("after remove items = %+v", tl.Items)
	}
}

func TestAddAndRemoveTimeline(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/api/v1/timelines", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("POST timelines = %d", w.Code)
	}
	added := decode[timeline.Timeline](t, w)
	if f.timelines.Active() != added.ID {
		t.Error("new timeline is not active")
	}

	list := decode[map[string]json.RawMessage](t, f.do(t, http.MethodGet, "/api/v1/timelines", ""))
	var tls []timeline.Timeline
	json.Unmarshal(list["timelines"], &tls)
	if len(tls) != 2 {
		t.Errorf("listed %d timelines, want 2", len(tls))
	}

	if w := f.do(t, http.MethodDelete, "/api/v1/timelines/"+added.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("DELETE timeline = %d", w.Code)
	}
}

func TestTransportRoutes(t *testing.T) {
	f := newFixture()
	id := f.timelines.Active()

	if w := f.do(t, http.MethodPost, "/api/v1/transport/play", ""); w.Code != http.StatusConflict {
		t.Errorf("play with no notes = %d, want 409", w.Code)
	}

	f.do(t, http.MethodPost, "/api/v1/timelines/"+id+"/preset/selisir", "")
	w := f.do(t, http.MethodPost, "/api/v1/transport/play", "")
	if w.Code != http.StatusOK {
		t.Fatalf("play = %d %s", w.Code, w.Body)
	}
	if st := decode[sequencer.PlaybackState](t, w); !st.IsPlaying || st.Length != 16 {
		t.Errorf("state after play = %+v", st)
	}

	st := decode[sequencer.PlaybackState](t, f.do(t, http.MethodPut, "/api/v1/transport/tempo", `{"bpm":500}`))
	if st.TempoBPM != sequencer.MaxTempo {
		t.Errorf("tempo = %d, want %d", st.TempoBPM, sequencer.MaxTempo)
	}
	if w := f.do(t, http.MethodPut, "/api/v1/transport/tempo", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("tempo without bpm = %d, want 400", w.Code)
	}

	st = decode[sequencer.PlaybackState](t, f.do(t, http.MethodPut, "/api/v1/transport/loop", `{"loop":true}`))
	if !st.IsLooping {
		t.Error("loop not enabled")
	}
	if w := f.do(t, http.MethodPut, "/api/v1/transport/loop", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("loop without value = %d, want 400", w.Code)
	}

	f.backend.clk.Advance(300 * time.Millisecond)
	st = decode[sequencer.PlaybackState](t, f.do(t, http.MethodGet, "/api/v1/transport", ""))
	if st.CurrentStep < 0 {
		t.Errorf("current step = %d while playing", st.CurrentStep)
	}

	st = decode[sequencer.PlaybackState](t, f.do(t, http.MethodPost, "/api/v1/transport/stop", ""))
	if st.IsPlaying || st.CurrentStep != -1 || !st.IsLooping {
		t.Errorf("state after stop = %+v", st)
	}
}

func TestExportImport(t *testing.T) {
	f := newFixture()
	f.timelines.LoadPreset(f.timelines.Active(), "gilak-penutup")
	f.transport.SetTempo(100)

	w := f.do(t, http.MethodGet, "/api/v1/export", "")
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("MThd")) {
		t.Fatalf("export = %d, %d bytes", w.Code, w.Body.Len())
	}
	if w := f.do(t, http.MethodGet, "/api/v1/export?format=xml", ""); w.Code != http.StatusBadRequest {
		t.Errorf("export xml = %d, want 400", w.Code)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "song.mid")
	part.Write(w.Body.Bytes())
	mw.Close()

	g := newFixture()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/import", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d %s", rec.Code, rec.Body)
	}
	snap := g.timelines.Snapshot()
	if len(snap) != 1 || snap[0].Len() != 16 {
		t.Errorf("imported %d timelines", len(snap))
	}
	if g.transport.Tempo() != 100 {
		t.Errorf("imported tempo = %d, want 100", g.transport.Tempo())
	}

	if w := g.do(t, http.MethodPost, "/api/v1/import", ""); w.Code != http.StatusBadRequest {
		t.Errorf("import without file = %d, want 400", w.Code)
	}
}

func TestTransportEvents(t *testing.T) {
	f := newFixture()
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/transport/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event:position") {
			return
		}
	}
	t.Errorf("no position event received: %v", scanner.Err())
}

func upload(t *testing.T, f *fixture, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", name)
	part.Write(data)
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/import", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func TestImportRejectsOversizedInput(t *testing.T) {
	f := newFixture()
	f.timelines.LoadPreset(f.timelines.Active(), "selisir")

	// one note-on far past the last step an import accepts
	longMIDI := []byte("MThd\x00\x00\x00\x06\x00\x00\x00\x01\x01\xe0" +
		"MTrk\x00\x00\x00\x0b\xbf\xff\xff\x70\x90\x3e\x64\x00\xff\x2f\x00")

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"too many steps", "long.mid", longMIDI},
		{"body too large", "big.json", bytes.Repeat([]byte(" "), maxUploadBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := upload(t, f, tt.file, tt.data)
			if w.Code < 400 || w.Code >= 500 {
				t.Errorf("import = %d, want a 4xx status", w.Code)
			}
			snap := f.timelines.Snapshot()
			if len(snap) != 1 || snap[0].Len() != 16 {
				t.Error("rejected import changed the timelines")
			}
		})
	}
}
