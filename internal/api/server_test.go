package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/castlemill/convertd/internal/adapter"
	"github.com/castlemill/convertd/internal/dispatch"
	"github.com/castlemill/convertd/internal/prefs"
	"github.com/castlemill/convertd/internal/runner"
	"github.com/castlemill/convertd/internal/store"
)

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, req dispatch.Request, opts adapter.Options, onProgress dispatch.ProgressFunc) runner.Result {
	return runner.Result{OK: true, Bytes: []byte("converted"), MIMEType: "audio/mpeg"}
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.New(stubRunner{})
	pr, err := prefs.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("prefs store: %v", err)
	}
	return NewServer(st, pr, nil), st
}

func uploadRequest(t *testing.T, filenames ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range filenames {
		fw, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		fw.Write([]byte("payload"))
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadCreatesTasksAndSkipsUnsupported(t *testing.T) {
	s, st := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, uploadRequest(t, "clip.wav", "junk.xyz"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Added   []store.Task `json:"added"`
		Skipped []string     `json:"skipped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Added) != 1 || resp.Added[0].SourceExt != "wav" {
		t.Fatalf("unexpected added set: %+v", resp.Added)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0] != "junk.xyz" {
		t.Fatalf("unexpected skipped set: %v", resp.Skipped)
	}
	if len(st.Tasks()) != 1 {
		t.Fatal("store out of sync with response")
	}
}

func TestConvertEndpointRunsTasks(t *testing.T) {
	s, st := newTestServer(t)
	added, _ := st.Add([]store.Input{{Name: "clip.wav"}})
	id := added[0].ID

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/convert", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task, _ := st.Get(id); task.Status == store.StatusComplete {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/"+id.String()+"/result", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("result status %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "converted" {
		t.Fatalf("unexpected result body: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected content type: %s", ct)
	}
}

func TestSetTargetEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	added, _ := st.Add([]store.Input{{Name: "doc.md"}})
	id := added[0].ID

	body := strings.NewReader(`{"extension":"EPUB"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+id.String()+"/target", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	task, _ := st.Get(id)
	if task.TargetExt != "epub" {
		t.Fatalf("target not set/normalized: %q", task.TargetExt)
	}
}

func TestSettingsValidation(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/settings", strings.NewReader(`{"quality_level":150}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range quality, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/settings", strings.NewReader(`{"quality_level":55,"mode":"advanced"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var got adapter.Options
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.QualityLevel != 55 || got.Mode != adapter.ModeAdvanced {
		t.Fatalf("settings not applied: %+v", got)
	}
}

func TestFormatsEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/formats?category=audio", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MP3") {
		t.Fatalf("audio listing missing MP3: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/formats/wav/targets", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "WAV\"") {
		t.Fatalf("wav must not list itself as a target: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/formats/xyz/targets", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown format, got %d", rec.Code)
	}
}

func TestPrefsEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/prefs/sess-1", strings.NewReader(`{"theme":"dark"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prefs/sess-1", nil))
	var p prefs.Preferences
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Theme != "dark" {
		t.Fatalf("prefs not persisted: %+v", p)
	}
}

func TestHistoryDisabledWithoutDatabase(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without database, got %d", rec.Code)
	}
}
