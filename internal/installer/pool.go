package installer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cuongbtq/inference-worker/internal/installer/domain"
	"github.com/cuongbtq/inference-worker/internal/installer/model"
	"github.com/cuongbtq/inference-worker/internal/installer/storage"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 16
)

// PoolConfig holds the collaborators and limits of a Pool
type PoolConfig struct {
	Logger    *slog.Logger
	Installer Installer
	Notifier  Notifier
	Store     storage.Store
	Workers   int
	QueueSize int
}

// Result is the terminal outcome of a task
type Result struct {
	Status        string
	Message       string
	CallbackError error
}

// Task is one submitted install. Result is valid once Done is closed.
type Task struct {
	Request domain.InstallRequest

	done   chan struct{}
	result Result
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Result() Result {
	<-t.done
	return t.result
}

// Stats is a snapshot of pool activity
type Stats struct {
	Workers   int    `json:"workers"`
	Capacity  int    `json:"queue_capacity"`
	Queued    int    `json:"queued"`
	Active    int64  `json:"active"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// Pool runs installs on a fixed number of goroutines behind a bounded queue
type Pool struct {
	logger    *slog.Logger
	installer Installer
	notifier  Notifier
	store     storage.Store
	workers   int

	mu     sync.Mutex
	closed bool
	tasks  chan *Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active    atomic.Int64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// NewPool creates a pool and starts its workers
func NewPool(cfg *PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:    cfg.Logger,
		installer: cfg.Installer,
		notifier:  cfg.Notifier,
		store:     cfg.Store,
		workers:   workers,
		tasks:     make(chan *Task, queueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.logger.Info("Install pool started",
		slog.Int("workers", workers),
		slog.Int("queue_size", queueSize),
	)

	return p
}

// Submit records the request as in progress and queues it.
// It fails fast with ErrQueueFull rather than blocking the caller.
func (p *Pool) Submit(ctx context.Context, req domain.InstallRequest) (*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, domain.ErrPoolClosed
	}
	// Submit is the only sender and holds mu, so this check cannot go stale
	if len(p.tasks) == cap(p.tasks) {
		return nil, domain.ErrQueueFull
	}

	record := &model.InstallRequest{
		RequestID:   req.RequestID,
		ModelPath:   req.ModelPath,
		CallbackURL: req.CallbackURL,
		Status:      domain.StatusInProgress,
	}
	if err := p.store.Create(ctx, record); err != nil {
		return nil, err
	}

	task := &Task{Request: req, done: make(chan struct{})}
	p.tasks <- task

	p.logger.Info("Install queued",
		slog.String("request_id", req.RequestID),
		slog.String("model_path", req.ModelPath),
	)

	return task, nil
}

// Stats returns current pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Capacity:  cap(p.tasks),
		Queued:    len(p.tasks),
		Active:    p.active.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// If ctx ends first, running installs are canceled and still reported.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Install pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("Install pool stopped before queue drained")
		return ctx.Err()
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.execute(id, task)
	}
}

func (p *Pool) execute(id int, task *Task) {
	p.active.Add(1)
	defer p.active.Add(-1)

	req := task.Request
	logger := p.logger.With(
		slog.Int("pool_worker", id),
		slog.String("request_id", req.RequestID),
		slog.String("model_path", req.ModelPath),
	)
	logger.Info("Installing model")

	result := Result{Status: domain.StatusDone}
	cb := domain.Callback{ModelPath: req.ModelPath, Status: domain.CallbackSuccess}

	msg, err := p.installer.Install(p.ctx, req.ModelPath)
	if err != nil {
		result.Status = domain.StatusFailed
		cb.Status = domain.CallbackFail
		msg = err.Error()
		logger.Error("Model install failed", slog.String("error", msg))
	}
	cb.Message = msg
	result.Message = msg

	// The requester is told even when the pool is shutting down
	notifyCtx := context.WithoutCancel(p.ctx)

	if err := p.notifier.Notify(notifyCtx, req.CallbackURL, cb); err != nil {
		result.CallbackError = err
		logger.Warn("Failed to notify requester", slog.String("error", err.Error()))
	}

	var callbackErr string
	if result.CallbackError != nil {
		callbackErr = result.CallbackError.Error()
	}
	if err := p.store.Complete(notifyCtx, req.RequestID, result.Status, result.Message, callbackErr); err != nil {
		logger.Error("Failed to record install outcome", slog.String("error", err.Error()))
	}

	if result.Status == domain.StatusDone {
		p.succeeded.Add(1)
	} else {
		p.failed.Add(1)
	}

	task.result = result
	close(task.done)

	logger.Info("Install finished",
		slog.String("status", result.Status),
		slog.Bool("callback_delivered", result.CallbackError == nil),
	)
}
