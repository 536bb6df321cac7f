package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCount(t *testing.T) {
	t.Setenv(OverrideEnv, "")

	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{name: "CPU-bound task", multiplier: 1.0, minExpect: 1, maxExpect: availableCPU},
		{name: "I/O-bound task", multiplier: 2.0, minExpect: 1, maxExpect: availableCPU * 2},
		{name: "With limit lower than calculated", multiplier: 2.0, limit: 2, minExpect: 1, maxExpect: 2},
		{name: "Tiny multiplier still yields one", multiplier: 0.0001, minExpect: 1, maxExpect: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)
			if got < tt.minExpect || got > tt.maxExpect {
				t.Errorf("Count(%v, %d) = %d, want between %d and %d", tt.multiplier, tt.limit, got, tt.minExpect, tt.maxExpect)
			}
		})
	}
}

func TestCountOverride(t *testing.T) {
	t.Setenv(OverrideEnv, "7")
	if got := ForCPU(0); got != 7 {
		t.Errorf("Expected override 7, got %d", got)
	}
	if got := ForCPU(3); got != 3 {
		t.Errorf("Expected limit 3 to cap override, got %d", got)
	}

	t.Setenv(OverrideEnv, "not-a-number")
	if got := ForCPU(1); got != 1 {
		t.Errorf("Expected invalid override to be ignored, got %d", got)
	}
}

// =============================================================================
// StopFlag Tests
// =============================================================================

func TestStopFlag(t *testing.T) {
	var nilFlag *StopFlag
	if nilFlag.IsSet() {
		t.Error("nil flag should never be set")
	}

	s := NewStopFlag()
	if s.IsSet() {
		t.Fatal("new flag should be unset")
	}
	s.Set()
	s.Set()
	if !s.IsSet() {
		t.Fatal("flag should be set")
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed after Set")
	}
}

// =============================================================================
// Pool Tests
// =============================================================================

func TestPoolRunsEveryTaskWithProgressIDs(t *testing.T) {
	var mu sync.Mutex
	var ids []string

	p := New(context.Background(), Options{Name: "TestWorker", Workers: 3, QueueSize: 1},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			mu.Lock()
			ids = append(ids, taskID)
			mu.Unlock()
			return n * n, n%2 == 0, nil
		})

	inputs := make([]int, 10)
	for i := range inputs {
		inputs[i] = i + 1
	}
	results, err := p.SubmitAndWait(inputs)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(ids) != 10 {
		t.Fatalf("Expected 10 executed tasks, got %d", len(ids))
	}
	sort.Strings(ids)
	seen := make(map[string]bool)
	for _, id := range ids {
		seen[id] = true
	}
	for k := 1; k <= 10; k++ {
		if !seen[fmt.Sprintf("%d/10", k)] {
			t.Errorf("Missing task id %d/10", k)
		}
	}

	sort.Ints(results)
	want := []int{4, 16, 36, 64, 100}
	if fmt.Sprint(results) != fmt.Sprint(want) {
		t.Errorf("Expected results %v, got %v", want, results)
	}
}

func TestPoolSubmitDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	p := New(context.Background(), Options{Name: "Slow", Workers: 1, QueueSize: 1},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			<-release
			return n, true, nil
		})

	done := make(chan struct{})
	go func() {
		p.Submit(make([]int, 50))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	close(release)
	results, err := p.Wait()
	if err != nil || len(results) != 50 {
		t.Fatalf("Expected 50 results, got %d (%v)", len(results), err)
	}
}

func TestPoolInitAndTermPerWorker(t *testing.T) {
	var inits, terms atomic.Int32
	var sawState atomic.Bool

	p := New(context.Background(), Options{
		Name:    "Hooked",
		Workers: 4,
		Init: func(w *Worker) error {
			inits.Add(1)
			w.State = w.Name
			return nil
		},
		Term: func(w *Worker) {
			terms.Add(1)
		},
	}, func(w *Worker, taskID string, n int) (struct{}, bool, error) {
		if w.State == w.Name {
			sawState.Store(true)
		}
		return struct{}{}, false, nil
	})

	if _, err := p.SubmitAndWait([]int{1, 2, 3}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if inits.Load() != 4 || terms.Load() != 4 {
		t.Errorf("Expected 4 inits and 4 terms, got %d and %d", inits.Load(), terms.Load())
	}
	if !sawState.Load() {
		t.Error("Task should see state stored by Init")
	}
}

func TestPoolCancellationDrainsQueue(t *testing.T) {
	stop := NewStopFlag()
	var executed atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	const workers = 2
	p := New(context.Background(), Options{Name: "Cancel", Workers: workers, Stop: stop},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			if executed.Add(1) == 1 {
				close(started)
			}
			<-release
			return n, true, nil
		})

	p.Submit(make([]int, 100))
	<-started
	stop.Set()
	close(release)

	done := make(chan struct{})
	var results []int
	go func() {
		results, _ = p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not reach the join barrier after cancellation")
	}

	if n := executed.Load(); n > workers {
		t.Errorf("Expected at most %d executed tasks after stop, got %d", workers, n)
	}
	if len(results) != int(executed.Load()) {
		t.Errorf("Expected results only for executed tasks, got %d", len(results))
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	var completed atomic.Int32
	p := New(context.Background(), Options{Name: "Panicky", Workers: 2},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			if n == 3 {
				panic("boom")
			}
			completed.Add(1)
			return n, true, nil
		})

	results, err := p.SubmitAndWait([]int{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("Panics must not surface as pool errors, got %v", err)
	}
	if completed.Load() != 4 || len(results) != 4 {
		t.Errorf("Expected 4 completed tasks, got %d (results %d)", completed.Load(), len(results))
	}
}

func TestPoolTaskErrorsDoNotAbort(t *testing.T) {
	stop := NewStopFlag()
	p := New(context.Background(), Options{Name: "Errors", Workers: 2, Stop: stop},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			if n%2 == 0 {
				return 0, false, errors.New("bad file")
			}
			return n, true, nil
		})

	results, err := p.SubmitAndWait([]int{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("Unexpected pool error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(results))
	}
	if stop.IsSet() {
		t.Error("Non-fatal errors must not raise the stop flag")
	}
}

type fatalErr struct{}

func (fatalErr) Error() string { return "catalog write failed" }
func (fatalErr) Fatal() bool   { return true }

func TestPoolFatalErrorStopsRun(t *testing.T) {
	stop := NewStopFlag()
	var executed atomic.Int32
	p := New(context.Background(), Options{Name: "Fatal", Workers: 1, Stop: stop},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			executed.Add(1)
			if n == 2 {
				return 0, false, fmt.Errorf("upsert: %w", fatalErr{})
			}
			return n, true, nil
		})

	_, err := p.SubmitAndWait([]int{1, 2, 3, 4, 5})
	if !IsFatal(err) {
		t.Fatalf("Expected fatal error, got %v", err)
	}
	if !stop.IsSet() {
		t.Error("Fatal error should raise the stop flag")
	}
	if executed.Load() != 2 {
		t.Errorf("Expected tasks after the fatal one to be skipped, executed %d", executed.Load())
	}
}

func TestPoolInitFailure(t *testing.T) {
	stop := NewStopFlag()
	p := New(context.Background(), Options{
		Name:    "BadInit",
		Workers: 2,
		Stop:    stop,
		Init: func(w *Worker) error {
			return errors.New("cannot open catalog")
		},
	}, func(w *Worker, taskID string, n int) (int, bool, error) {
		t.Error("No task should run when init fails")
		return n, true, nil
	})

	_, err := p.SubmitAndWait([]int{1, 2, 3})
	if err == nil {
		t.Fatal("Expected init failure to be reported")
	}
	if !stop.IsSet() {
		t.Error("Init failure should raise the stop flag")
	}
}

func TestPoolContextCancelledAfterWait(t *testing.T) {
	var ctx context.Context
	p := New(context.Background(), Options{Name: "Ctx", Workers: 1},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			ctx = w.Ctx
			if ctx.Err() != nil {
				t.Error("Context must be live while tasks run")
			}
			return n, true, nil
		})

	if _, err := p.SubmitAndWait([]int{1}); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() == nil {
		t.Error("Pool context should be cancelled after Wait")
	}
}

func TestPoolWaitWithoutSubmit(t *testing.T) {
	p := New(context.Background(), Options{Name: "Empty", Workers: 3},
		func(w *Worker, taskID string, n int) (int, bool, error) {
			return n, true, nil
		})
	results, err := p.Wait()
	if err != nil || len(results) != 0 {
		t.Errorf("Expected empty results, got %v %v", results, err)
	}
}
