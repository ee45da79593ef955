package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/inference-worker/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the delivery channel
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// CallbackDispatcher delivers a signed payload to a callback URL
type CallbackDispatcher interface {
	Deliver(ctx context.Context, url string, payload []byte, signatureHex string) (domain.DeliveryOutcome, error)
}

// ConsumerConfig holds the collaborators of a Consumer
type ConsumerConfig struct {
	Logger         *slog.Logger
	Processor      Processor
	Dispatcher     CallbackDispatcher
	CallbackURL    string
	Secret         string
	ProcessTimeout time.Duration // zero leaves inference unbounded
}

// ConsumerStats counts terminal decisions
type ConsumerStats struct {
	Acknowledged uint64 `json:"acknowledged"`
	Rejected     uint64 `json:"rejected"`
}

// Consumer drives each delivery through processing, signing, and dispatch,
// then settles it. It handles one message at a time.
type Consumer struct {
	logger         *slog.Logger
	processor      Processor
	dispatcher     CallbackDispatcher
	callbackURL    string
	secret         string
	processTimeout time.Duration

	acknowledged atomic.Uint64
	rejected     atomic.Uint64
}

// NewConsumer creates a consumer
func NewConsumer(cfg *ConsumerConfig) *Consumer {
	return &Consumer{
		logger:         cfg.Logger,
		processor:      cfg.Processor,
		dispatcher:     cfg.Dispatcher,
		callbackURL:    cfg.CallbackURL,
		secret:         cfg.Secret,
		processTimeout: cfg.ProcessTimeout,
	}
}

// Stats returns the decision counters
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Acknowledged: c.acknowledged.Load(),
		Rejected:     c.rejected.Load(),
	}
}

// Run handles deliveries sequentially until ctx is canceled or the channel closes.
// A message already in flight when ctx is canceled is still finished and settled.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			c.Handle(context.WithoutCancel(ctx), delivery)
		}
	}
}

// Handle takes one delivery to exactly one terminal decision and settles it
// with the broker as the final step.
func (c *Consumer) Handle(ctx context.Context, delivery amqp.Delivery) domain.AckDecision {
	started := time.Now()
	logger := c.logger.With(slog.Uint64("delivery_tag", delivery.DeliveryTag))

	err := c.process(ctx, logger, delivery.Body)
	decision := decide(err)

	if err != nil {
		kind := errorKind(err)
		if kind == kindUnknown {
			logger.Warn("Unclassified error reached settlement", slog.String("error", err.Error()))
		}
		logger.Error("Job failed, rejecting message",
			slog.String("error_kind", kind),
			slog.String("error", err.Error()),
		)
	}

	c.settle(logger, delivery, decision)

	logger.Info("Message settled",
		slog.String("decision", decision.String()),
		slog.Duration("elapsed", time.Since(started)),
	)

	return decision
}

// process runs Received -> Processing -> Signing -> Delivering for one body
func (c *Consumer) process(ctx context.Context, logger *slog.Logger, body []byte) error {
	job, err := domain.ParseJob(body)
	if err != nil {
		return err
	}

	logger = logger.With(slog.String("conversation_id", job.ConversationLabel()))
	logger.Info("Received job")

	content, err := c.infer(ctx, job.Prompt)
	if err != nil {
		return err
	}

	if c.secret == "" {
		return fmt.Errorf("%w: HMAC secret is not set", domain.ErrConfig)
	}
	if c.callbackURL == "" {
		return fmt.Errorf("%w: callback URL is not set", domain.ErrConfig)
	}

	result := &domain.Result{
		ConversationID: job.ConversationID,
		AIContent:      content,
	}
	payload, err := result.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}

	signature := Sign(c.secret, payload)

	outcome, err := c.dispatcher.Deliver(ctx, c.callbackURL, payload, signature)
	if outcome != domain.Delivered {
		if err == nil {
			err = fmt.Errorf("%w: callback was not delivered", domain.ErrDelivery)
		}
		return err
	}

	logger.Info("Result delivered", slog.String("callback_url", c.callbackURL))
	return nil
}

// infer calls the processor, bounding it when a timeout is configured and
// turning panics into processing errors
func (c *Consumer) infer(ctx context.Context, prompt string) (content string, err error) {
	if c.processTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.processTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			content, err = "", fmt.Errorf("%w: processor panicked: %v", domain.ErrProcessing, r)
		}
	}()

	content, err = c.processor.Process(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	return content, nil
}

// settle issues the broker acknowledgement for a decision
func (c *Consumer) settle(logger *slog.Logger, delivery amqp.Delivery, decision domain.AckDecision) {
	switch decision {
	case domain.Acknowledge:
		c.acknowledged.Add(1)
		if err := delivery.Ack(false); err != nil {
			logger.Error("Failed to ACK message", slog.String("error", err.Error()))
		}
	default:
		c.rejected.Add(1)
		if err := delivery.Nack(false, false); err != nil {
			logger.Error("Failed to NACK message", slog.String("error", err.Error()))
		}
	}
}

// decide maps the outcome of the processing chain to an ack decision.
// No error kind requeues: a rejected message is never redelivered by this worker.
func decide(err error) domain.AckDecision {
	if err == nil {
		return domain.Acknowledge
	}
	return domain.RejectPermanently
}

const kindUnknown = "unknown"

// errorKind names the error class for log lines
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfig):
		return "config"
	case errors.Is(err, domain.ErrProcessing):
		return "processing"
	case errors.Is(err, domain.ErrDelivery):
		return "delivery"
	default:
		return kindUnknown
	}
}
