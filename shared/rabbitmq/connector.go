package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultRetryInterval is the fixed delay between connection attempts
const DefaultRetryInterval = 5 * time.Second

// ErrConnection is returned when the broker stays unreachable past the maximum wait
var ErrConnection = errors.New("broker connection failed")

// State is the connection state of a Connector
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connector drives the Disconnected -> Connecting -> Connected state machine.
// Failed attempts are retried at a fixed interval with no backoff growth.
// A zero MaxWait retries forever.
type Connector struct {
	interval time.Duration
	maxWait  time.Duration
	logger   *slog.Logger
	state    atomic.Int32
}

// NewConnector creates a connector; a non-positive interval falls back to DefaultRetryInterval
func NewConnector(interval, maxWait time.Duration, logger *slog.Logger) *Connector {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &Connector{
		interval: interval,
		maxWait:  maxWait,
		logger:   logger,
	}
}

// State returns the current connection state
func (c *Connector) State() State {
	return State(c.state.Load())
}

// MarkDisconnected records that a live connection was lost or closed
func (c *Connector) MarkDisconnected() {
	c.setState(StateDisconnected)
}

func (c *Connector) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.logger.Info("Broker connection state changed",
			slog.String("from", prev.String()),
			slog.String("to", s.String()),
		)
	}
}

// Run calls attempt until it succeeds, the context is canceled, or MaxWait elapses
func (c *Connector) Run(ctx context.Context, attempt func() error) error {
	c.setState(StateConnecting)
	started := time.Now()

	for n := 1; ; n++ {
		c.logger.Info("Connecting to RabbitMQ", slog.Int("attempt", n))

		err := attempt()
		if err == nil {
			c.setState(StateConnected)
			return nil
		}

		if c.maxWait > 0 && time.Since(started)+c.interval > c.maxWait {
			c.setState(StateDisconnected)
			c.logger.Error("Giving up on RabbitMQ connection",
				slog.Int("attempts", n),
				slog.Duration("max_wait", c.maxWait),
				slog.Any("error", err),
			)
			return fmt.Errorf("%w after %d attempts: %v", ErrConnection, n, err)
		}

		c.logger.Warn("Failed to connect to RabbitMQ, retrying",
			slog.Int("attempt", n),
			slog.Duration("retry_after", c.interval),
			slog.Any("error", err),
		)

		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-timer.C:
		}
	}
}
