package worker

import (
	"context"
	"fmt"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/inference-worker/shared/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned by a second call to Start
var ErrAlreadyStarted = errors.New("worker already started")

// Broker is the connection a consumer instance exclusively owns
type Broker interface {
	Connect(ctx context.Context) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	State() rabbitmq.State
	Close() error
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	RabbitConfig *rabbitmq.Config
	Instances    int
	TagPrefix    string
	Consumer     ConsumerConfig

	// NewBroker overrides how each instance gets its broker connection
	NewBroker func(instance int) Broker
}

// Worker runs independent consumer instances that compete on the same queue.
// Each instance owns its own connection and channel.
type Worker struct {
	logger        *slog.Logger
	workerID      string
	instances     []*instance
	retryInterval time.Duration
	started       atomic.Bool
	done          chan struct{}
}

// instance is one sequential consumption loop
type instance struct {
	num      int
	tag      string
	broker   Broker
	consumer *Consumer
}

// InstanceStatus describes one consumer instance for health reporting
type InstanceStatus struct {
	ConsumerTag string        `json:"consumer_tag"`
	State       string        `json:"state"`
	Stats       ConsumerStats `json:"stats"`
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefix := cfg.TagPrefix
	if prefix == "" {
		prefix = "inference-worker"
	}

	w := &Worker{
		logger:        cfg.Logger,
		workerID:      fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8]),
		retryInterval: rabbitmq.DefaultRetryInterval,
		done:          make(chan struct{}),
	}
	if cfg.RabbitConfig != nil && cfg.RabbitConfig.RetryInterval > 0 {
		w.retryInterval = cfg.RabbitConfig.RetryInterval
	}

	newBroker := cfg.NewBroker
	if newBroker == nil {
		newBroker = func(int) Broker {
			return rabbitmq.NewClient(cfg.RabbitConfig, cfg.Logger)
		}
	}

	count := cfg.Instances
	if count <= 0 {
		count = 1
	}

	for i := 0; i < count; i++ {
		tag := fmt.Sprintf("%s-%d", w.workerID, i)

		consumerCfg := cfg.Consumer
		consumerCfg.Logger = cfg.Logger.With(slog.String("consumer_tag", tag))

		w.instances = append(w.instances, &instance{
			num:      i,
			tag:      tag,
			broker:   newBroker(i),
			consumer: NewConsumer(&consumerCfg),
		})
	}

	return w
}

// ID returns the worker identifier used as consumer tag prefix
func (w *Worker) ID() string {
	return w.workerID
}

// Start runs every instance until ctx is canceled. It returns an error only
// when an instance gives up on the broker, which also stops the others.
// A worker can be started once.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(w.done)

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("instances", len(w.instances)),
	)

	g, gctx := errgroup.WithContext(ctx)
	w.spawnInstances(gctx, g)

	err := g.Wait()
	if ctx.Err() != nil {
		w.logger.Info("Worker context canceled, stopping...")
		return nil
	}
	return err
}

// Stop waits for Start to return, even when Start has not been scheduled yet.
// Cancel the context passed to Start first.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	<-w.done
	w.logger.Info("Worker stopped")
}

// Status reports the connection state and counters of each instance
func (w *Worker) Status() []InstanceStatus {
	out := make([]InstanceStatus, len(w.instances))
	for i, inst := range w.instances {
		out[i] = InstanceStatus{
			ConsumerTag: inst.tag,
			State:       inst.broker.State().String(),
			Stats:       inst.consumer.Stats(),
		}
	}
	return out
}

// Healthy reports whether every instance is connected
func (w *Worker) Healthy() bool {
	for _, inst := range w.instances {
		if inst.broker.State() != rabbitmq.StateConnected {
			return false
		}
	}
	return true
}
