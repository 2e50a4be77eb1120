package forwarder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// deviceRecorder is an httptest device that records every request.
type deviceRecorder struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
}

func (d *deviceRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.requests = append(d.requests, r.Clone(context.Background()))
	status := d.status
	d.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write([]byte(`{"status":"executed"}`)) //nolint:errcheck // test device
}

func (d *deviceRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type fakeMetrics struct {
	mu     sync.Mutex
	writes []string
}

func (m *fakeMetrics) WriteDelivery(status, action, region string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, status+"/"+action+"/"+region)
}

func newTestForwarder(t *testing.T, store Store, opts Options) *Forwarder {
	t.Helper()
	opts.Store = store
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

// createRecord inserts rec and returns its ID.
func createRecord(t *testing.T, store Store, rec *Record) string {
	t.Helper()
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rec.ID
}

func mustGet(t *testing.T, store Store, id string) *Record {
	t.Helper()
	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return rec
}

// ─── URL construction ───────────────────────────────────────────────────────

func TestCommandURL(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		action   string
		key      string
		duration int
		want     string
	}{
		{
			name: "plain", host: "https://dev.example", action: "BLINK", key: "k1", duration: 400,
			want: "https://dev.example/command?cmd=BLINK&key=k1&duration=400",
		},
		{
			name: "trailing slash", host: "https://dev.example/", action: "TURN_ON", key: "k", duration: 1000,
			want: "https://dev.example/command?cmd=TURN_ON&key=k&duration=1000",
		},
		{
			name: "escaped values", host: "http://10.0.0.5", action: "A B", key: "p&q=r", duration: 0,
			want: "http://10.0.0.5/command?cmd=A+B&key=p%26q%3Dr&duration=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommandURL(tt.host, tt.action, tt.key, tt.duration); got != tt.want {
				t.Errorf("CommandURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── Handle ─────────────────────────────────────────────────────────────────

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrStoreRequired) {
		t.Errorf("New() error = %v, want ErrStoreRequired", err)
	}
}

func TestHandle_Delivers(t *testing.T) {
	store, _ := newTestStore(t)
	dev := &deviceRecorder{}
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)

	metrics := &fakeMetrics{}
	f := newTestForwarder(t, store, Options{
		UserAgent: "relaylight-test",
		Headers:   map[string]string{"X-Extra": "1"},
		Region:    "eu-west",
		Metrics:   metrics,
	})

	id := createRecord(t, store, &Record{ESPHost: srv.URL, Action: "BLINK", Key: "k1", Duration: intPtr(400)})
	if err := f.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if dev.count() != 1 {
		t.Fatalf("device requests = %d, want 1", dev.count())
	}
	req := dev.requests[0]
	if req.Method != http.MethodGet {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if got := req.URL.RequestURI(); got != "/command?cmd=BLINK&key=k1&duration=400" {
		t.Errorf("request URI = %q", got)
	}
	wantHeaders := map[string]string{
		"ngrok-skip-browser-warning": "true",
		"Bypass-Tunnel-Reminder":     "true",
		"User-Agent":                 "relaylight-test",
		"X-Extra":                    "1",
	}
	for k, v := range wantHeaders {
		if got := req.Header.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}

	rec := mustGet(t, store, id)
	if rec.Status != StatusDone || !rec.Processed || rec.ProcessedAt == nil || rec.Error != "" {
		t.Errorf("record = %+v, want done with processedAt", rec)
	}
	if len(metrics.writes) != 1 || metrics.writes[0] != "done/BLINK/eu-west" {
		t.Errorf("metrics = %v", metrics.writes)
	}
}

func TestHandle_DefaultDuration(t *testing.T) {
	store, _ := newTestStore(t)
	dev := &deviceRecorder{}
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)

	f := newTestForwarder(t, store, Options{})
	id := createRecord(t, store, &Record{ESPHost: srv.URL, Action: "PULSE", Key: "k"})
	if err := f.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if got := dev.requests[0].URL.Query().Get("duration"); got != "1000" {
		t.Errorf("duration = %q, want 1000", got)
	}
	if got := dev.requests[0].Header.Get("User-Agent"); got != defaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", got, defaultUserAgent)
	}
}

func TestHandle_MissingFields(t *testing.T) {
	dev := &deviceRecorder{}
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		rec     Record
		wantErr string
	}{
		{name: "no key", rec: Record{ESPHost: srv.URL, Action: "TURN_ON"}, wantErr: "missing required fields: key"},
		{name: "no action", rec: Record{ESPHost: srv.URL, Key: "k"}, wantErr: "missing required fields: action"},
		{name: "no host", rec: Record{Action: "TURN_ON", Key: "k"}, wantErr: "missing required fields: espHost"},
		{name: "nothing", rec: Record{}, wantErr: "missing required fields: espHost, action, key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			f := newTestForwarder(t, store, Options{})

			rec := tt.rec
			id := createRecord(t, store, &rec)
			if err := f.Handle(context.Background(), id); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			got := mustGet(t, store, id)
			if got.Status != StatusFailed || got.Error != tt.wantErr {
				t.Errorf("record = %s %q, want failed %q", got.Status, got.Error, tt.wantErr)
			}
			if got.ProcessedAt == nil {
				t.Error("ProcessedAt not set")
			}
		})
	}

	if dev.count() != 0 {
		t.Errorf("device requests = %d, want 0", dev.count())
	}
}

func TestHandle_DeviceErrorStatus(t *testing.T) {
	store, _ := newTestStore(t)
	dev := &deviceRecorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)

	f := newTestForwarder(t, store, Options{})
	id := createRecord(t, store, &Record{ESPHost: srv.URL, Action: "TURN_ON", Key: "k"})
	if err := f.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := mustGet(t, store, id)
	if got.Status != StatusFailed || got.Error != "device responded with status 500" {
		t.Errorf("record = %s %q", got.Status, got.Error)
	}
	if dev.count() != 1 {
		t.Errorf("device requests = %d, want exactly 1 (no retry)", dev.count())
	}
}

func TestHandle_Timeout(t *testing.T) {
	store, _ := newTestStore(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	f := newTestForwarder(t, store, Options{RequestTimeout: 50 * time.Millisecond})
	id := createRecord(t, store, &Record{ESPHost: srv.URL, Action: "BLINK", Key: "secret-key"})

	start := time.Now()
	if err := f.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Handle() took %v, timeout not applied", elapsed)
	}

	got := mustGet(t, store, id)
	if got.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "Timeout") {
		t.Errorf("Error = %q, want a timeout", got.Error)
	}
	if strings.Contains(got.Error, "secret-key") {
		t.Errorf("Error leaks the key: %q", got.Error)
	}
}

func TestHandle_Unreachable(t *testing.T) {
	store, _ := newTestStore(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	f := newTestForwarder(t, store, Options{RequestTimeout: time.Second})
	id := createRecord(t, store, &Record{ESPHost: host, Action: "TURN_ON", Key: "k"})
	if err := f.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := mustGet(t, store, id)
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("record = %s %q, want failed with error text", got.Status, got.Error)
	}
}

func TestHandle_AlreadyProcessed(t *testing.T) {
	store, _ := newTestStore(t)
	dev := &deviceRecorder{}
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)

	f := newTestForwarder(t, store, Options{})
	id := createRecord(t, store, &Record{ESPHost: srv.URL, Action: "TURN_ON", Key: "k"})

	for range 2 {
		if err := f.Handle(context.Background(), id); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}
	if dev.count() != 1 {
		t.Errorf("device requests = %d, want 1 for a redelivered event", dev.count())
	}
}

func TestHandle_ConcurrentDuplicateEvents(t *testing.T) {
	store, _ := newTestStore(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	f := newTestForwarder(t, store, Options{})
	id := createRecord(t, store, &Record{ESPHost: srv.URL, Action: "TURN_ON", Key: "k"})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.Handle(context.Background(), id)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Handle() error = %v", err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("device requests = %d, want 1", n)
	}
	if rec := mustGet(t, store, id); rec.Status != StatusDone || !rec.Processed {
		t.Errorf("record = %s processed=%v, want done and processed", rec.Status, rec.Processed)
	}
}

func TestHandle_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	f := newTestForwarder(t, store, Options{})

	if err := f.Handle(context.Background(), "cmd-missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Handle() error = %v, want ErrRecordNotFound", err)
	}
}

func TestHandle_CancelledContextStillWritesOutcome(t *testing.T) {
	store, _ := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	f := newTestForwarder(t, store, Options{})
	id := createRecord(t, store, &Record{ESPHost: srv.URL, Action: "TURN_ON", Key: "k"})
	if err := f.Handle(ctx, id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := mustGet(t, store, id)
	if got.Status != StatusFailed || !got.Processed {
		t.Errorf("record = %+v, want failed and processed", got)
	}
}

// ─── Dispatch ───────────────────────────────────────────────────────────────

func TestDispatch_BoundsConcurrency(t *testing.T) {
	store, _ := newTestStore(t)

	var active, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	}))
	t.Cleanup(srv.Close)

	f := newTestForwarder(t, store, Options{MaxInstances: 2})

	var ids []string
	for range 6 {
		ids = append(ids, createRecord(t, store, &Record{ESPHost: srv.URL, Action: "TURN_ON", Key: "k"}))
	}
	for _, id := range ids {
		f.Dispatch(context.Background(), id)
	}
	f.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrent deliveries = %d, want <= 2", p)
	}
	for _, id := range ids {
		if rec := mustGet(t, store, id); rec.Status != StatusDone {
			t.Errorf("record %s status = %s, want done", id, rec.Status)
		}
	}
}

func TestRedactKey(t *testing.T) {
	msg := `Get "http://h/command?cmd=A&key=a%2Fb&duration=1": dial tcp: refused`
	got := redactKey(msg, "a/b")
	if strings.Contains(got, "a%2Fb") {
		t.Errorf("redactKey() = %q, key still present", got)
	}
	if redactKey("plain", "") != "plain" {
		t.Error("redactKey() altered a message with no key")
	}
}
