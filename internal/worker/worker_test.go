package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/inference-worker/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker hands every delivery channel it opens to the test
type fakeBroker struct {
	mu          sync.Mutex
	state       rabbitmq.State
	connects    int
	closes      int
	connectErr  error
	consumeErrs []error

	opened chan chan amqp.Delivery
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{opened: make(chan chan amqp.Delivery, 16)}
}

func (b *fakeBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if b.connectErr != nil {
		b.state = rabbitmq.StateDisconnected
		return b.connectErr
	}
	b.state = rabbitmq.StateConnected
	return nil
}

func (b *fakeBroker) Consume(string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.consumeErrs) > 0 {
		err := b.consumeErrs[0]
		b.consumeErrs = b.consumeErrs[1:]
		return nil, err
	}
	ch := make(chan amqp.Delivery)
	b.opened <- ch
	return ch, nil
}

func (b *fakeBroker) State() rabbitmq.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	b.state = rabbitmq.StateDisconnected
	return nil
}

func (b *fakeBroker) counts() (connects, closes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects, b.closes
}

func (b *fakeBroker) nextChannel(t *testing.T) chan amqp.Delivery {
	t.Helper()
	select {
	case ch := <-b.opened:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("broker channel was never opened")
		return nil
	}
}

func newTestWorker(t *testing.T, instances int, brokers ...*fakeBroker) *Worker {
	t.Helper()

	server := newCallbackServer(t, http.StatusOK, nil)

	return NewWorker(&Config{
		Logger:       discardLogger(),
		RabbitConfig: &rabbitmq.Config{RetryInterval: 10 * time.Millisecond},
		Instances:    instances,
		TagPrefix:    "test-worker",
		Consumer: ConsumerConfig{
			Processor:   echoProcessor(),
			Dispatcher:  NewDispatcher(time.Second, discardLogger()),
			CallbackURL: server.URL,
			Secret:      "s3cret",
		},
		NewBroker: func(i int) Broker {
			return brokers[i]
		},
	})
}

func startWorker(w *Worker) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
		return nil
	}
}

func TestNewWorker(t *testing.T) {
	brokers := []*fakeBroker{newFakeBroker(), newFakeBroker(), newFakeBroker()}
	w := newTestWorker(t, 3, brokers...)

	assert.Regexp(t, `^test-worker-[0-9a-f]{8}$`, w.ID())

	status := w.Status()
	require.Len(t, status, 3)
	for i, s := range status {
		assert.Equal(t, fmt.Sprintf("%s-%d", w.ID(), i), s.ConsumerTag)
		assert.Equal(t, "disconnected", s.State)
		assert.Zero(t, s.Stats.Acknowledged)
	}
	assert.False(t, w.Healthy())
}

func TestNewWorker_DefaultInstanceCount(t *testing.T) {
	w := newTestWorker(t, 0, newFakeBroker())
	assert.Len(t, w.Status(), 1)
}

func TestWorker_ProcessesAndStops(t *testing.T) {
	broker := newFakeBroker()
	w := newTestWorker(t, 1, broker)

	cancel, done := startWorker(w)
	defer cancel()

	deliveries := broker.nextChannel(t)
	require.Eventually(t, w.Healthy, time.Second, 5*time.Millisecond)

	ack := &fakeAcknowledger{}
	deliveries <- newDelivery(ack, 1, `{"conversation_id": "abc123", "prompt": "hello"}`)
	deliveries <- newDelivery(ack, 2, `not json`)

	require.Eventually(t, func() bool { return ack.settled() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 1, ack.nacks)

	stats := w.Status()[0].Stats
	assert.Equal(t, uint64(1), stats.Acknowledged)
	assert.Equal(t, uint64(1), stats.Rejected)

	cancel()
	require.NoError(t, waitDone(t, done))
	w.Stop()

	_, closes := broker.counts()
	assert.Equal(t, 1, closes)
	assert.False(t, w.Healthy())
}

func TestWorker_StopWaitsForPendingStart(t *testing.T) {
	broker := newFakeBroker()
	w := newTestWorker(t, 1, broker)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	assert.Never(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond, "Stop returned before Start ran")

	cancel, done := startWorker(w)
	broker.nextChannel(t)
	cancel()
	require.NoError(t, waitDone(t, done))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after Start finished")
	}
}

func TestWorker_StartTwice(t *testing.T) {
	broker := newFakeBroker()
	w := newTestWorker(t, 1, broker)

	cancel, done := startWorker(w)
	defer cancel()
	broker.nextChannel(t)

	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

	cancel()
	require.NoError(t, waitDone(t, done))
	w.Stop()
}

func TestWorker_ReconnectsAfterChannelLoss(t *testing.T) {
	broker := newFakeBroker()
	w := newTestWorker(t, 1, broker)

	cancel, done := startWorker(w)
	defer cancel()

	first := broker.nextChannel(t)
	close(first)

	second := broker.nextChannel(t)
	connects, _ := broker.counts()
	assert.Equal(t, 2, connects)

	ack := &fakeAcknowledger{}
	second <- newDelivery(ack, 1, `{"conversation_id": "abc123", "prompt": "hello"}`)
	require.Eventually(t, func() bool { return ack.settled() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ack.acks)

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestWorker_RetriesFailedConsume(t *testing.T) {
	broker := newFakeBroker()
	broker.consumeErrs = []error{errors.New("channel not ready")}
	w := newTestWorker(t, 1, broker)

	cancel, done := startWorker(w)
	defer cancel()

	broker.nextChannel(t)
	connects, closes := broker.counts()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 1, closes)

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestWorker_GiveUpStopsAllInstances(t *testing.T) {
	healthy := newFakeBroker()
	failing := newFakeBroker()
	failing.connectErr = fmt.Errorf("%w after 3 attempts: connection refused", rabbitmq.ErrConnection)

	w := newTestWorker(t, 2, healthy, failing)

	cancel, done := startWorker(w)
	defer cancel()

	err := waitDone(t, done)
	require.ErrorIs(t, err, rabbitmq.ErrConnection)
	w.Stop()

	_, closes := healthy.counts()
	assert.GreaterOrEqual(t, closes, 1)
}

func TestWorker_InstancesCompete(t *testing.T) {
	brokers := []*fakeBroker{newFakeBroker(), newFakeBroker()}
	w := newTestWorker(t, 2, brokers...)

	cancel, done := startWorker(w)
	defer cancel()

	a := brokers[0].nextChannel(t)
	b := brokers[1].nextChannel(t)
	require.Eventually(t, w.Healthy, time.Second, 5*time.Millisecond)

	ack := &fakeAcknowledger{}
	a <- newDelivery(ack, 1, `{"conversation_id": "one", "prompt": "hello"}`)
	b <- newDelivery(ack, 1, `{"conversation_id": "two", "prompt": "hello"}`)

	require.Eventually(t, func() bool { return ack.settled() == 2 }, time.Second, 5*time.Millisecond)

	status := w.Status()
	assert.Equal(t, uint64(1), status[0].Stats.Acknowledged)
	assert.Equal(t, uint64(1), status[1].Stats.Acknowledged)

	cancel()
	require.NoError(t, waitDone(t, done))
}
