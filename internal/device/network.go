package device

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Probe checks connectivity once.
type Probe func(ctx context.Context) error

// TCPProbe returns a Probe that dials address. An empty address yields a
// probe that always succeeds.
func TCPProbe(address string, timeout time.Duration) Probe {
	if address == "" {
		return func(context.Context) error { return nil }
	}
	return func(ctx context.Context) error {
		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// JoinNetwork runs probe up to attempts times, pausing delay between
// attempts. It returns an error wrapping ErrNetworkJoin when every attempt
// failed or ctx ended first.
func JoinNetwork(ctx context.Context, probe Probe, attempts int, delay time.Duration, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}
	if probe == nil {
		return nil
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = probe(ctx)
		if lastErr == nil {
			logger.Info("network joined", "attempt", attempt)
			return nil
		}
		logger.Warn("network join attempt failed",
			"attempt", attempt,
			"attempts", attempts,
			"error", lastErr,
		)
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrNetworkJoin, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrNetworkJoin, attempts, lastErr)
}
