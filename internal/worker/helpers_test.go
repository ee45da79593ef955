package worker

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAcknowledger records how a delivery was settled
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	rejects int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = f.requeue || requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects++
	f.requeue = f.requeue || requeue
	return nil
}

func (f *fakeAcknowledger) settled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks + f.nacks + f.rejects
}

func newDelivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Body:         []byte(body),
	}
}

// recordedRequest is one callback received by callbackServer
type recordedRequest struct {
	Body        []byte
	Signature   string
	ContentType string
	// settledAtArrival is how many messages were already settled when the POST arrived
	settledAtArrival int
}

// callbackServer is a test double for the originating system's callback endpoint
type callbackServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	requests []recordedRequest
	ack      *fakeAcknowledger
	block    chan struct{}
	location string
}

func newCallbackServer(t *testing.T, status int, ack *fakeAcknowledger) *callbackServer {
	t.Helper()

	cs := &callbackServer{status: status, ack: ack}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		rec := recordedRequest{
			Body:        body,
			Signature:   r.Header.Get(SignatureHeader),
			ContentType: r.Header.Get("Content-Type"),
		}
		if cs.ack != nil {
			rec.settledAtArrival = cs.ack.settled()
		}

		cs.mu.Lock()
		cs.requests = append(cs.requests, rec)
		block := cs.block
		status := cs.status
		location := cs.location
		cs.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}

		if location != "" {
			w.Header().Set("Location", location)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(func() {
		cs.mu.Lock()
		if cs.block != nil {
			close(cs.block)
			cs.block = nil
		}
		cs.mu.Unlock()
		cs.Close()
	})

	return cs
}

// hang makes the endpoint stall until the test ends
func (cs *callbackServer) hang() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.block = make(chan struct{})
}

// redirectTo answers every callback with the configured 3xx status pointing at url
func (cs *callbackServer) redirectTo(url string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.location = url
}

func (cs *callbackServer) received() []recordedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]recordedRequest(nil), cs.requests...)
}
