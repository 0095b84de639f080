package work

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T, registry *Registry, timeout time.Duration, workers int) *Processor {
	t.Helper()
	p := NewProcessorWithTimeout(registry, NewCompletionTracker(), timeout, workers, zerolog.New(nil).Level(zerolog.Disabled))
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

// collect subscribes to results of one work type.
func collect(p *Processor, typeID string) <-chan Result {
	ch := make(chan Result, 32)
	p.Completion().OnComplete(func(r Result) {
		if r.TypeID == typeID {
			ch <- r
		}
	})
	return ch
}

func await(t *testing.T, ch <-chan Result, n int) []Result {
	t.Helper()
	var out []Result
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case r := <-ch:
			out = append(out, r)
		case <-timeout:
			t.Fatalf("timed out waiting for %d results, got %d", n, len(out))
		}
	}
	return out
}

func TestProcessor_EnqueueExecutesWithPayload(t *testing.T) {
	registry := NewRegistry()
	var got atomic.Value
	registry.Register(&WorkType{
		ID: "market:refresh",
		Execute: func(ctx context.Context, payload any) error {
			got.Store(payload)
			return nil
		},
	})

	p := newTestProcessor(t, registry, time.Second, 1)

	resultsCh := collect(p, "market:refresh")

	id, err := p.Enqueue("market:refresh", "scheduled")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	results := await(t, resultsCh, 1)
	assert.Equal(t, id, results[0].ItemID)
	assert.Equal(t, StatusSucceeded, results[0].Status)
	assert.Equal(t, "scheduled", got.Load())
}

func TestProcessor_EnqueueUnknownType(t *testing.T) {
	p := newTestProcessor(t, NewRegistry(), time.Second, 1)

	_, err := p.Enqueue("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownWorkType)
}

func TestProcessor_EnqueueWhenStopped(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "a", Execute: noop})
	p := NewProcessor(registry, nil, zerolog.New(nil).Level(zerolog.Disabled))

	_, err := p.Enqueue("a", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestProcessor_Timeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID: "slow",
		Execute: func(ctx context.Context, payload any) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	p := newTestProcessor(t, registry, 20*time.Millisecond, 1)

	resultsCh := collect(p, "slow")

	_, err := p.Enqueue("slow", nil)
	require.NoError(t, err)

	results := await(t, resultsCh, 1)
	assert.Equal(t, StatusTimedOut, results[0].Status)
}

func TestProcessor_RetriesThenFails(t *testing.T) {
	registry := NewRegistry()
	var calls atomic.Int32
	registry.Register(&WorkType{
		ID:         "flaky",
		MaxRetries: 2,
		Execute: func(ctx context.Context, payload any) error {
			calls.Add(1)
			return errors.New("upstream down")
		},
	})

	p := newTestProcessor(t, registry, time.Second, 1)

	resultsCh := collect(p, "flaky")

	_, err := p.Enqueue("flaky", nil)
	require.NoError(t, err)

	results := await(t, resultsCh, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, 2, results[0].Retries)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "upstream down", results[0].Error)
}

func TestProcessor_PanicIsRecordedAsFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{
		ID: "boom",
		Execute: func(ctx context.Context, payload any) error {
			panic("bad payload")
		},
	})

	p := newTestProcessor(t, registry, time.Second, 1)

	res, err := p.ExecuteNow(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "bad payload")
}

func TestProcessor_BoundedConcurrency(t *testing.T) {
	registry := NewRegistry()
	var current, peak atomic.Int32
	registry.Register(&WorkType{
		ID: "job",
		Execute: func(ctx context.Context, payload any) error {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return nil
		},
	})

	p := newTestProcessor(t, registry, time.Second, 2)

	resultsCh := collect(p, "job")

	for i := 0; i < 6; i++ {
		_, err := p.Enqueue("job", i)
		require.NoError(t, err)
	}

	results := await(t, resultsCh, 6)
	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestProcessor_StopCancelsRunningWork(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})
	registry.Register(&WorkType{
		ID: "long",
		Execute: func(ctx context.Context, payload any) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})

	p := NewProcessorWithTimeout(registry, nil, time.Minute, 1, zerolog.New(nil).Level(zerolog.Disabled))
	p.Start()

	var mu sync.Mutex
	var statuses []Status
	p.Completion().OnComplete(func(r Result) {
		mu.Lock()
		statuses = append(statuses, r.Status)
		mu.Unlock()
	})

	_, err := p.Enqueue("long", nil)
	require.NoError(t, err)
	<-started

	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusCancelled, statuses[0])
}
