package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func counting(counter *atomic.Int64) Task {
	return func(context.Context) error {
		counter.Add(1)
		return nil
	}
}

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

func TestWorkerPool_Run(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	tasks := make([]Task, 100)
	for i := range tasks {
		tasks[i] = counting(&counter)
	}

	if err := pool.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
	if pool.Completed() != 100 {
		t.Errorf("Completed() = %d, want 100", pool.Completed())
	}
}

func TestWorkerPool_RunEmpty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	if err := pool.Run(context.Background(), nil); err != nil {
		t.Errorf("Run(nil) = %v", err)
	}
}

func TestWorkerPool_RunJoinsErrors(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	var counter atomic.Int64
	tasks := []Task{
		counting(&counter),
		func(context.Context) error { return errA },
		counting(&counter),
		func(context.Context) error { return errB },
	}

	err := pool.Run(context.Background(), tasks)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Run error = %v, want both task errors", err)
	}
	if counter.Load() != 2 {
		t.Errorf("successful tasks = %d, want 2", counter.Load())
	}
}

func TestWorkerPool_RunCanceled(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var counter atomic.Int64
	err := pool.Run(ctx, []Task{counting(&counter), counting(&counter)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if counter.Load() != 0 {
		t.Errorf("ran %d tasks after cancel", counter.Load())
	}
}

func TestWorkerPool_Go(t *testing.T) {
	pool := NewWorkerPool(2)

	var counter atomic.Int64
	var mu sync.Mutex
	var got []error
	onErr := func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	}
	boom := errors.New("boom")

	for range 10 {
		pool.Go(context.Background(), counting(&counter), onErr)
	}
	pool.Go(context.Background(), func(context.Context) error { return boom }, onErr)
	pool.Go(context.Background(), nil, onErr)

	// Close runs everything still queued.
	pool.Close()

	if counter.Load() != 10 {
		t.Errorf("counter = %d, want 10", counter.Load())
	}
	if len(got) != 1 || !errors.Is(got[0], boom) {
		t.Errorf("errors = %v, want [boom]", got)
	}
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
}

func TestWorkerPool_OperationsAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	var executed atomic.Bool
	task := func(context.Context) error {
		executed.Store(true)
		return nil
	}

	if err := pool.Run(context.Background(), []Task{task}); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close = %v, want ErrClosed", err)
	}
	pool.Go(context.Background(), task, nil)

	time.Sleep(20 * time.Millisecond)
	if executed.Load() {
		t.Error("Work was executed on closed pool")
	}
}

func TestWorkerPool_ConcurrentRun(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	const callers, perCaller = 10, 50

	var wg sync.WaitGroup
	wg.Add(callers)
	for range callers {
		go func() {
			defer wg.Done()
			tasks := make([]Task, perCaller)
			for i := range tasks {
				tasks[i] = counting(&counter)
			}
			if err := pool.Run(context.Background(), tasks); err != nil {
				t.Errorf("Run failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if counter.Load() != callers*perCaller {
		t.Errorf("counter = %d, want %d", counter.Load(), callers*perCaller)
	}
}

func TestWorkerPool_WorkStealing(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Worker 0 gets every slow task; the others must steal the fast ones
	// queued behind them.
	var fast atomic.Int64
	tasks := make([]Task, 40)
	for i := range tasks {
		if i%4 == 0 {
			tasks[i] = func(context.Context) error {
				time.Sleep(5 * time.Millisecond)
				return nil
			}
			continue
		}
		tasks[i] = counting(&fast)
	}

	start := time.Now()
	if err := pool.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fast.Load() != 30 {
		t.Errorf("fast tasks = %d, want 30", fast.Load())
	}
	t.Logf("uneven batch took %v", time.Since(start))
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for range 5 {
		pool := NewWorkerPool(4)
		tasks := make([]Task, 100)
		var counter atomic.Int64
		for j := range tasks {
			tasks[j] = counting(&counter)
		}
		_ = pool.Run(context.Background(), tasks)
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	final := runtime.NumGoroutine()
	if final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

func TestWorkerPool_QueuedWork(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	pool.Go(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}, nil)
	<-started

	for range 3 {
		pool.Go(context.Background(), func(context.Context) error { return nil }, nil)
	}
	if got := pool.QueuedWork(); got != 3 {
		t.Errorf("QueuedWork() = %d, want 3", got)
	}
	close(release)
}
