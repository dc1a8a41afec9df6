package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type hostJob struct {
	host     string
	duration time.Duration
	fail     bool

	mu       *sync.Mutex
	inFlight map[string]int
	overlap  *atomic.Bool
}

func (j *hostJob) Host() string { return j.host }

func (j *hostJob) Execute(ctx context.Context) Result {
	j.mu.Lock()
	j.inFlight[j.host]++
	if j.inFlight[j.host] > 1 {
		j.overlap.Store(true)
	}
	j.mu.Unlock()

	time.Sleep(j.duration)

	j.mu.Lock()
	j.inFlight[j.host]--
	j.mu.Unlock()

	if j.fail {
		return &visitResult{err: errors.New("job error")}
	}
	return &visitResult{}
}

func TestBatchProcessor_OneJobPerHost(t *testing.T) {
	var mu sync.Mutex
	var overlap atomic.Bool
	inFlight := map[string]int{}

	var jobs []HostJob
	for i := 0; i < 12; i++ {
		jobs = append(jobs, &hostJob{
			host:     fmt.Sprintf("host%d.es", i%3),
			duration: 5 * time.Millisecond,
			mu:       &mu,
			inFlight: inFlight,
			overlap:  &overlap,
		})
	}

	b := NewBatchProcessor(4, nil)
	var results int
	b.Process(context.Background(), jobs, func(Result) { results++ })

	if results != 12 {
		t.Errorf("expected 12 results, got %d", results)
	}
	if overlap.Load() {
		t.Error("two jobs for the same host ran concurrently")
	}
}

func TestBatchProcessor_Errors(t *testing.T) {
	var mu sync.Mutex
	var overlap atomic.Bool
	inFlight := map[string]int{}

	jobs := []HostJob{
		&hostJob{host: "a.es", fail: true, mu: &mu, inFlight: inFlight, overlap: &overlap},
		&hostJob{host: "b.es", mu: &mu, inFlight: inFlight, overlap: &overlap},
	}

	var failed int
	NewBatchProcessor(2, NewHostGate()).Process(context.Background(), jobs, func(r Result) {
		if r.GetError() != nil {
			failed++
		}
	})
	if failed != 1 {
		t.Errorf("expected 1 failure, got %d", failed)
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	called := false
	NewBatchProcessor(2, nil).Process(context.Background(), nil, func(Result) { called = true })
	if called {
		t.Error("callback should not run for an empty batch")
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	var mu sync.Mutex
	var overlap atomic.Bool
	inFlight := map[string]int{}

	var jobs []HostJob
	for i := 0; i < 50; i++ {
		jobs = append(jobs, &hostJob{host: "same.es", duration: 20 * time.Millisecond, mu: &mu, inFlight: inFlight, overlap: &overlap})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		NewBatchProcessor(4, nil).Process(ctx, jobs, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Process did not return after cancellation")
	}
}
