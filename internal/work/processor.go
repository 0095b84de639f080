package work

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownWorkType = errors.New("unknown work type")
	ErrQueueFull       = errors.New("work queue is full")
	ErrNotRunning      = errors.New("work processor is not running")
)

// Processor executes enqueued work items on a bounded pool of workers.
type Processor struct {
	registry   *Registry
	completion *CompletionTracker
	timeout    time.Duration
	workers    int

	queue    chan *WorkItem
	stop     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight map[string]*WorkItem
	running  bool
	mu       sync.Mutex
	log      zerolog.Logger
}

// NewProcessor creates a new work processor with default sizing.
func NewProcessor(registry *Registry, completion *CompletionTracker, log zerolog.Logger) *Processor {
	return NewProcessorWithTimeout(registry, completion, WorkTimeout, DefaultWorkers, log)
}

// NewProcessorWithTimeout creates a new work processor with a custom timeout
// and worker count.
func NewProcessorWithTimeout(registry *Registry, completion *CompletionTracker, timeout time.Duration, workers int, log zerolog.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	if completion == nil {
		completion = NewCompletionTracker()
	}
	return &Processor{
		registry:   registry,
		completion: completion,
		timeout:    timeout,
		workers:    workers,
		queue:      make(chan *WorkItem, DefaultQueueSize),
		inFlight:   make(map[string]*WorkItem),
		log:        log.With().Str("component", "work_processor").Logger(),
	}
}

// Completion returns the tracker results are recorded on.
func (p *Processor) Completion() *CompletionTracker {
	return p.completion
}

// Start launches the worker goroutines. Calling Start on a running processor
// is a no-op.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.log.Info().Int("workers", p.workers).Msg("Work processor started")
}

// Stop cancels in-flight work, waits for workers to exit and marks anything
// still queued as cancelled.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()

	for {
		select {
		case item := <-p.queue:
			p.completion.Record(Result{
				ItemID:      item.ID,
				TypeID:      item.TypeID,
				Status:      StatusCancelled,
				Retries:     item.Retries,
				CompletedAt: time.Now(),
			})
		default:
			p.log.Info().Msg("Work processor stopped")
			return
		}
	}
}

// Enqueue schedules a new item of the given type and returns its id.
// It never blocks: a full queue is reported as ErrQueueFull.
func (p *Processor) Enqueue(typeID string, payload any) (string, error) {
	wt := p.registry.Get(typeID)
	if wt == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownWorkType, typeID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return "", ErrNotRunning
	}

	item := NewWorkItem(wt, payload)
	select {
	case p.queue <- item:
		p.log.Debug().Str("work", item.ID).Str("type", typeID).Msg("Work enqueued")
		return item.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// ExecuteNow runs a work type synchronously on the caller's goroutine,
// bypassing the queue. It is used for manual triggers.
func (p *Processor) ExecuteNow(ctx context.Context, typeID string, payload any) (Result, error) {
	wt := p.registry.Get(typeID)
	if wt == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownWorkType, typeID)
	}

	item := NewWorkItem(wt, payload)
	res := p.execute(ctx, item, wt)
	p.completion.Record(res)
	if !res.Succeeded() {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// Pending returns the number of queued items not yet picked up.
func (p *Processor) Pending() int {
	return len(p.queue)
}

// InFlight returns the type ids of items currently executing, sorted.
func (p *Processor) InFlight() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.inFlight))
	for _, item := range p.inFlight {
		ids = append(ids, item.TypeID)
	}
	sort.Strings(ids)
	return ids
}

func (p *Processor) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case item := <-p.queue:
			p.processOne(item)
		}
	}
}

// processOne executes an item and either records its result or re-queues it.
func (p *Processor) processOne(item *WorkItem) {
	wt := p.registry.Get(item.TypeID)
	if wt == nil {
		p.log.Warn().Str("work", item.ID).Str("type", item.TypeID).Msg("Work type was removed, dropping item")
		return
	}

	p.mu.Lock()
	p.inFlight[item.ID] = item
	p.mu.Unlock()

	res := p.execute(p.ctx, item, wt)

	p.mu.Lock()
	delete(p.inFlight, item.ID)
	p.mu.Unlock()

	if res.Status == StatusFailed || res.Status == StatusTimedOut {
		if item.Retries < wt.MaxRetries && p.requeue(item) {
			return
		}
	}
	p.completion.Record(res)
}

func (p *Processor) requeue(item *WorkItem) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}
	item.Retries++
	select {
	case p.queue <- item:
		p.log.Warn().Str("work", item.ID).Int("retry", item.Retries).Msg("Work failed, retrying")
		return true
	default:
		item.Retries--
		return false
	}
}

// execute runs a single item under its timeout and classifies the outcome.
func (p *Processor) execute(parent context.Context, item *WorkItem, wt *WorkType) Result {
	timeout := p.timeout
	if wt.Timeout > 0 {
		timeout = wt.Timeout
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	err := p.safeExecute(ctx, item, wt)
	res := Result{
		ItemID:      item.ID,
		TypeID:      item.TypeID,
		Status:      StatusSucceeded,
		Retries:     item.Retries,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	}

	if err != nil {
		res.Error = err.Error()
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			res.Status = StatusTimedOut
			p.log.Error().Str("work", item.ID).Str("type", item.TypeID).Dur("timeout", timeout).Msg("Work timed out")
		case errors.Is(parent.Err(), context.Canceled):
			res.Status = StatusCancelled
		default:
			res.Status = StatusFailed
			p.log.Error().Err(err).Str("work", item.ID).Str("type", item.TypeID).Msg("Work failed")
		}
	}
	return res
}

func (p *Processor) safeExecute(ctx context.Context, item *WorkItem, wt *WorkType) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work panicked: %v", r)
		}
	}()
	return wt.Execute(ctx, item.Payload)
}
