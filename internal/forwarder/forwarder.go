package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Delivery defaults.
const (
	defaultRequestTimeout = 5 * time.Second
	defaultMaxInstances   = 10
	defaultUserAgent      = "relaylight-forwarder"

	// maxDrainBytes bounds how much of a device response is read.
	maxDrainBytes = 64 << 10
)

// tunnelHeaders let requests through the tunnelling services that expose
// devices (ngrok, localtunnel) without an interstitial page.
var tunnelHeaders = map[string]string{
	"ngrok-skip-browser-warning": "true",
	"Bypass-Tunnel-Reminder":     "true",
}

// Metrics records delivery outcomes. Satisfied by *influxdb.Client.
type Metrics interface {
	WriteDelivery(status, action, region string, latency time.Duration)
}

// Logger defines the logging interface for the forwarder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Forwarder. Only Store is required.
type Options struct {
	Store Store

	// Client is used for device requests. Its Timeout is replaced by
	// RequestTimeout.
	Client         *http.Client
	RequestTimeout time.Duration
	UserAgent      string

	// Headers are sent after the tunnel headers and may override them.
	Headers map[string]string

	Region       string
	MaxInstances int

	Metrics Metrics
	Logger  Logger
	Now     func() time.Time
}

// Forwarder delivers command records to devices.
type Forwarder struct {
	store     Store
	client    *http.Client
	userAgent string
	headers   map[string]string
	region    string
	metrics   Metrics
	logger    Logger
	now       func() time.Time

	sem      *semaphore.Weighted
	inflight sync.WaitGroup

	// flights collapses concurrent Handle calls for the same record into
	// one delivery.
	flights singleflight.Group
}

// New creates a Forwarder.
func New(opts Options) (*Forwarder, error) {
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.Timeout = timeout

	maxInstances := opts.MaxInstances
	if maxInstances <= 0 {
		maxInstances = defaultMaxInstances
	}

	f := &Forwarder{
		store:     opts.Store,
		client:    client,
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		region:    opts.Region,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
		sem:       semaphore.NewWeighted(int64(maxInstances)),
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.logger == nil {
		f.logger = noopLogger{}
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f, nil
}

// Handle processes the creation event of record id: at most one device
// request, then exactly one outcome write.
//
// A record that is already processed is skipped, and a duplicate event
// arriving while the record is in flight joins that delivery, so a
// redelivered event never reaches the device twice.
func (f *Forwarder) Handle(ctx context.Context, id string) error {
	_, err, shared := f.flights.Do(id, func() (any, error) {
		return nil, f.handle(ctx, id)
	})
	if shared {
		f.logger.Debug("joined in-flight delivery", "id", id)
	}
	return err
}

func (f *Forwarder) handle(ctx context.Context, id string) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring delivery slot: %w", err)
	}
	defer f.sem.Release(1)

	rec, err := f.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading record %s: %w", id, err)
	}
	if rec.Processed {
		f.logger.Info("record already processed, skipping", "id", id, "status", rec.Status)
		return nil
	}

	start := f.now()
	outcome := f.deliver(ctx, rec)
	latency := f.now().Sub(start)

	// The outcome is written even if ctx ended during the request.
	if err := f.store.Complete(context.WithoutCancel(ctx), id, outcome); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			f.logger.Warn("record completed concurrently", "id", id)
			return nil
		}
		return fmt.Errorf("writing outcome of %s: %w", id, err)
	}

	if f.metrics != nil {
		f.metrics.WriteDelivery(string(outcome.Status), rec.Action, f.region, latency)
	}

	if outcome.Status == StatusFailed {
		f.logger.Warn("delivery failed",
			"id", id,
			"action", rec.Action,
			"host", rec.ESPHost,
			"error", outcome.Error,
			"latency_ms", latency.Milliseconds(),
		)
		return nil
	}
	f.logger.Info("delivery done",
		"id", id,
		"action", rec.Action,
		"host", rec.ESPHost,
		"latency_ms", latency.Milliseconds(),
	)
	return nil
}

// Dispatch runs Handle in the background and logs its error.
// Wait blocks until every dispatched delivery has finished.
func (f *Forwarder) Dispatch(ctx context.Context, id string) {
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		if err := f.Handle(ctx, id); err != nil {
			f.logger.Error("handling command record", "id", id, "error", err)
		}
	}()
}

// Wait blocks until all dispatched deliveries have finished.
func (f *Forwarder) Wait() {
	f.inflight.Wait()
}

// deliver performs the single device request and maps it to an outcome.
func (f *Forwarder) deliver(ctx context.Context, rec *Record) Outcome {
	if missing := rec.missingFields(); len(missing) > 0 {
		return f.failed("missing required fields: " + strings.Join(missing, ", "))
	}

	target := CommandURL(rec.ESPHost, rec.Action, rec.Key, rec.DurationMS())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return f.failed(fmt.Sprintf("building request: %v", err))
	}
	for k, v := range tunnelHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	f.logger.Debug("delivering command", "id", rec.ID, "action", rec.Action, "host", rec.ESPHost)
	resp, err := f.client.Do(req)
	if err != nil {
		return f.failed(redactKey(err.Error(), rec.Key))
	}
	defer resp.Body.Close()
	//nolint:errcheck // drained so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return f.failed(fmt.Sprintf("device responded with status %d", resp.StatusCode))
	}
	return Outcome{Status: StatusDone, ProcessedAt: f.now().UTC()}
}

func (f *Forwarder) failed(msg string) Outcome {
	return Outcome{Status: StatusFailed, Error: msg, ProcessedAt: f.now().UTC()}
}

// CommandURL builds the device request URL. Parameters are written in the
// order cmd, key, duration.
func CommandURL(host, action, key string, durationMS int) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(host, "/"))
	b.WriteString("/command?cmd=")
	b.WriteString(url.QueryEscape(action))
	b.WriteString("&key=")
	b.WriteString(url.QueryEscape(key))
	b.WriteString("&duration=")
	b.WriteString(strconv.Itoa(durationMS))
	return b.String()
}

// redactKey removes the key from transport errors, which quote the URL.
func redactKey(msg, key string) string {
	if key == "" {
		return msg
	}
	msg = strings.ReplaceAll(msg, "key="+url.QueryEscape(key), "key=REDACTED")
	return strings.ReplaceAll(msg, key, "REDACTED")
}
