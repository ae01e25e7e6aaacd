package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/loginguard/engine/internal/adapter"
	"github.com/loginguard/engine/internal/blwl"
	"github.com/loginguard/engine/internal/metrics"
	"github.com/loginguard/engine/internal/tw"
	"github.com/loginguard/engine/internal/webhook"
)

func silentLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	reg := metrics.New()
	store := tw.New(tw.Config{
		Name: "report", WindowSize: 60, NumWindows: 10, NumShards: 2,
		V4Prefix: 32, V6Prefix: 128, SoftMaxEntries: 1000,
		Schema: map[string]tw.FieldType{"fail": tw.FieldInt},
	}, reg)
	bl := blwl.New("bl", reg)
	wl := blwl.New("wl", reg)
	hooks := webhook.NewRegistry()
	dispatcher := webhook.New(webhook.Config{NumThreads: 1, MaxQueueSize: 10, TimeoutSecs: 1}, reg, silentLogger())
	dispatcher.StartThreads()
	t.Cleanup(dispatcher.Stop)

	ad := adapter.New(store, bl, wl, hooks, dispatcher, adapter.Thresholds{Field: "fail", DenyAt: 5, TarpitAt: 3})
	return New(cfg, ad, hooks, dispatcher, reg, silentLogger())
}

func TestReportEndpointReturnsOK(t *testing.T) {
	s := newTestServer(t, Config{})
	body := []byte(`{"login":"alice","remote":"10.0.0.1"}`)
	req := httptest.NewRequest(http.MethodPost, "/?command=report", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAllowEndpointReturnsVerdict(t *testing.T) {
	s := newTestServer(t, Config{})
	body := []byte(`{"login":"bob","remote":"10.0.0.2"}`)
	req := httptest.NewRequest(http.MethodPost, "/?command=allow", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != float64(adapter.StatusAllow) {
		t.Fatalf("expected allow verdict, got %+v", resp)
	}
}

func TestUnknownCommandIsBadRequest(t *testing.T) {
	s := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/?command=bogus", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBasicAuthRejectsMissingCredentials(t *testing.T) {
	s := newTestServer(t, Config{BasicAuthPassword: "s3cret"})
	req := httptest.NewRequest(http.MethodPost, "/?command=report", bytes.NewReader([]byte(`{"login":"x"}`)))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestBasicAuthAcceptsCorrectPassword(t *testing.T) {
	s := newTestServer(t, Config{BasicAuthPassword: "s3cret"})
	req := httptest.NewRequest(http.MethodPost, "/?command=report", bytes.NewReader([]byte(`{"login":"x"}`)))
	req.SetBasicAuth("loginguard", "s3cret")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestACLRejectsNonMatchingSource(t *testing.T) {
	s := newTestServer(t, Config{ACL: []string{"192.168.0.0/24"}})
	req := httptest.NewRequest(http.MethodPost, "/?command=report", bytes.NewReader([]byte(`{"login":"x"}`)))
	req.RemoteAddr = "10.0.0.5:1234"
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestMetricsEndpointNoAuthRequired(t *testing.T) {
	s := newTestServer(t, Config{BasicAuthPassword: "s3cret"})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestBLWLAddListAndDelete(t *testing.T) {
	s := newTestServer(t, Config{})

	addBody := []byte(`{"kind":"ip","key":"9.9.9.9","ttl_seconds":60,"reason":"abuse"}`)
	req := httptest.NewRequest(http.MethodPost, "/blwl/bl", bytes.NewReader(addBody))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/blwl/bl/ip", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var entries []blwlEntryWire
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "9.9.9.9" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	req = httptest.NewRequest(http.MethodDelete, "/blwl/bl/ip/9.9.9.9", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/blwl/bl/ip", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	entries = nil
	_ = json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 0 {
		t.Fatalf("expected entry to be gone, got %+v", entries)
	}
}

func TestTWGetAndReset(t *testing.T) {
	s := newTestServer(t, Config{})
	s.adapter.ReportStore().Add(tw.StringVariant("alice"), "fail", tw.IntVariant(3), 0, false)

	req := httptest.NewRequest(http.MethodGet, "/tw/report/fail?key=alice", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["value"] != float64(3) {
		t.Fatalf("expected value 3, got %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/tw/report/reset?key=alice", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHookRegisterEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	body := []byte(`{"name":"alerts","events":["report"],"active":true,"config":{"url":"http://example.invalid/hook"}}`)
	req := httptest.NewRequest(http.MethodPost, "/hooks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := s.hooks.ByName("alerts"); !ok {
		t.Fatalf("expected hook to be registered")
	}
}

func TestCustomCommandEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestServer(t, Config{})
	_, err := s.hooks.Register(&webhook.Descriptor{Name: "mycommand", Active: true, Config: map[string]string{"url": srv.URL}})
	if err != nil {
		t.Fatalf("register hook: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/command/mycommand", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
