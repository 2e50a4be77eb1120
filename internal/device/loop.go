package device

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/relaylight/internal/executor"
	"github.com/nerrad567/relaylight/internal/infrastructure/mqtt"
)

// Executor runs one command to completion.
type Executor interface {
	Execute(cmd executor.Command) executor.Result
}

// Publisher publishes device events as JSON at the broker's configured
// QoS. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Metrics records executed commands. Satisfied by *influxdb.Client.
type Metrics interface {
	WriteActuation(deviceID, action string, ok bool, duration, elapsed time.Duration)
}

// Logger defines the logging interface for the device loop.
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

// Options configures a Loop.
type Options struct {
	DeviceID string
	Executor Executor

	// HeartbeatInterval enables the heartbeat schedule when positive.
	HeartbeatInterval time.Duration

	// Publisher and Metrics are optional.
	Publisher Publisher
	Metrics   Metrics

	Logger Logger

	// Now overrides the clock used for uptime and heartbeat times.
	Now func() time.Time
}

type commandRequest struct {
	cmd   executor.Command
	reply chan<- executor.Result
}

// Loop is the device event loop.
type Loop struct {
	exec      Executor
	publisher Publisher
	metrics   Metrics
	logger    Logger
	now       func() time.Time
	interval  time.Duration

	state Context

	commands chan commandRequest
	health   chan chan Health
	ticks    chan struct{}
	done     chan struct{}
	running  atomic.Bool
}

// NewLoop creates a loop. Call Run to start serving.
func NewLoop(opts Options) *Loop {
	l := &Loop{
		exec:      opts.Executor,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
		interval:  opts.HeartbeatInterval,
		commands:  make(chan commandRequest),
		health:    make(chan chan Health),
		ticks:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.state = Context{
		ID:       opts.DeviceID,
		BootTime: l.now(),
	}
	return l
}

// Run serves requests until ctx is cancelled. A command in progress is
// finished before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer close(l.done)

	stop, err := l.startHeartbeat()
	if err != nil {
		return err
	}
	defer stop()

	l.logger.Info("device loop started", "device_id", l.state.ID)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("device loop stopped", "device_id", l.state.ID)
			return nil
		case req := <-l.commands:
			req.reply <- l.runCommand(req.cmd)
		case reply := <-l.health:
			reply <- l.state.snapshot(l.now())
		case <-l.ticks:
			l.heartbeat()
		}
	}
}

// Execute queues cmd behind any running command and waits for its result.
//
// If ctx ends before the loop accepts the command, nothing runs. Once
// accepted the command runs to completion even if ctx ends meanwhile.
func (l *Loop) Execute(ctx context.Context, cmd executor.Command) (executor.Result, error) {
	reply := make(chan executor.Result, 1)
	select {
	case l.commands <- commandRequest{cmd: cmd, reply: reply}:
	case <-l.done:
		return executor.Result{}, ErrLoopStopped
	case <-ctx.Done():
		return executor.Result{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return executor.Result{}, ctx.Err()
	}
}

// Health returns a snapshot of the device context. It waits for any
// running command to finish.
func (l *Loop) Health(ctx context.Context) (Health, error) {
	reply := make(chan Health, 1)
	select {
	case l.health <- reply:
	case <-l.done:
		return Health{}, ErrLoopStopped
	case <-ctx.Done():
		return Health{}, ctx.Err()
	}

	select {
	case h := <-reply:
		return h, nil
	case <-ctx.Done():
		return Health{}, ctx.Err()
	}
}

// DeviceID returns the configured device identifier.
func (l *Loop) DeviceID() string {
	return l.state.ID
}

func (l *Loop) runCommand(cmd executor.Command) executor.Result {
	l.state.Current = &cmd
	defer func() { l.state.Current = nil }()

	res := l.exec.Execute(cmd)
	if res.OK {
		l.state.Executed++
	} else {
		l.state.Failed++
	}

	if l.metrics != nil {
		l.metrics.WriteActuation(l.state.ID, cmd.Action.String(), res.OK, cmd.Duration, res.Elapsed)
	}
	l.publish(mqtt.Topics{}.DeviceActuation(l.state.ID), false, actuationEvent{
		DeviceID:   l.state.ID,
		Action:     cmd.Name,
		OK:         res.OK,
		Message:    res.Message,
		DurationMS: cmd.Duration.Milliseconds(),
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Timestamp:  l.now().UTC(),
	})
	return res
}

type actuationEvent struct {
	DeviceID   string    `json:"device_id"`
	Action     string    `json:"action"`
	OK         bool      `json:"ok"`
	Message    string    `json:"message"`
	DurationMS int64     `json:"duration_ms"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// publish sends v if a publisher is configured. Failures are logged; the
// bus never affects command execution.
func (l *Loop) publish(topic string, retained bool, v any) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishJSON(topic, v, retained); err != nil {
		l.logger.Warn("publishing device event", "topic", topic, "error", err)
	}
}
