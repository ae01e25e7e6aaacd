package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loginguard/engine/internal/metrics"
)

func silentLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestDescriptorValidateRequiresURL(t *testing.T) {
	d := &Descriptor{Events: map[Event]bool{EventAddBL: true}, Config: map[string]string{}}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestDescriptorValidateRejectsUnknownKey(t *testing.T) {
	d := &Descriptor{Config: map[string]string{"url": "http://x", "bogus": "1"}}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for unrecognized config key")
	}
}

func TestRegistryRegisterAssignsMonotonicIDs(t *testing.T) {
	r := NewRegistry()
	id1, err := r.Register(&Descriptor{Config: map[string]string{"url": "http://x"}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id2, err := r.Register(&Descriptor{Config: map[string]string{"url": "http://y"}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("expected monotonic ids, got %d then %d", id1, id2)
	}
}

// TestRunHookDeliversSignedPOST checks that a registered hook with a secret
// produces a POST carrying X-Wforce-Signature matching
// base64(HMAC-SHA256(secret, body)).
func TestRunHookDeliversSignedPOST(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = b
		gotHeaders = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(Config{NumThreads: 1, MaxQueueSize: 10, TimeoutSecs: 2}, metrics.New(), silentLogger())
	d.StartThreads()
	defer d.Stop()

	hook := &Descriptor{ID: 1, Active: true, Events: map[Event]bool{EventAddBL: true},
		Config: map[string]string{"url": srv.URL, "secret": "s3cret"}}
	body := []byte(`{"key":"203.0.113.5/32","bl_type":"ip","reason":"abuse","expire_secs":3600}`)
	d.RunHook(hook, EventAddBL, body)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := gotBody
		mu.Unlock()
		if got != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(gotBody) != string(body) {
		t.Fatalf("got body %q", gotBody)
	}
	wantSig := signBody("s3cret", body)
	if gotHeaders.Get("X-Wforce-Signature") != wantSig {
		t.Fatalf("signature mismatch: got %q want %q", gotHeaders.Get("X-Wforce-Signature"), wantSig)
	}
	if gotHeaders.Get("X-Wforce-Event") != string(EventAddBL) {
		t.Fatalf("unexpected event header: %q", gotHeaders.Get("X-Wforce-Event"))
	}
	if gotHeaders.Get("X-Wforce-HookID") != "1" {
		t.Fatalf("unexpected hook id header: %q", gotHeaders.Get("X-Wforce-HookID"))
	}
}

func TestRunHookDropsWhenQueueFull(t *testing.T) {
	reg := metrics.New()
	d := New(Config{NumThreads: 0, MaxQueueSize: 1, TimeoutSecs: 1}, reg, silentLogger())
	hook := &Descriptor{ID: 1, Config: map[string]string{"url": "http://example.invalid"}}
	d.RunHook(hook, EventReport, []byte("{}"))
	d.RunHook(hook, EventReport, []byte("{}")) // second must be dropped, no worker draining

	if len(d.queue) != 1 {
		t.Fatalf("expected queue capped at 1, got %d", len(d.queue))
	}
}

func TestPingHookSynchronousDryRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(Config{NumThreads: 1, MaxQueueSize: 10, TimeoutSecs: 2}, metrics.New(), silentLogger())
	hook := &Descriptor{ID: 2, Config: map[string]string{"url": srv.URL}}
	if err := d.PingHook(hook); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestDeliverReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(Config{NumThreads: 1, MaxQueueSize: 10, TimeoutSecs: 2}, metrics.New(), silentLogger())
	hook := &Descriptor{ID: 3, Config: map[string]string{"url": srv.URL}}
	if err := d.PingHook(hook); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestKafkaWrapping(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = b
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(Config{NumThreads: 1, MaxQueueSize: 10, TimeoutSecs: 2}, metrics.New(), silentLogger())
	hook := &Descriptor{ID: 4, Config: map[string]string{"url": srv.URL, "kafka": "true"}}
	if err := d.PingHook(hook); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := `{"records":[{"value":{"ping":true}}]}`
	if string(gotBody) != want {
		t.Fatalf("got body %q want %q", gotBody, want)
	}
}
