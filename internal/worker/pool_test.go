package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	id  int
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	executed  *int32
	onStart   func(id int)
	onDone    func()
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.onStart != nil {
		j.onStart(j.id)
	}
	if j.onDone != nil {
		defer j.onDone()
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{id: j.id, err: errors.New("job error")}
	}
	return &mockResult{id: j.id}
}

func TestNewPool(t *testing.T) {
	ctx := context.Background()

	p1 := NewPool(ctx, 5, 0)
	if p1.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p1.workers)
	}
	if cap(p1.jobQueue) != 10 {
		t.Errorf("expected default queue of 10, got %d", cap(p1.jobQueue))
	}

	p2 := NewPool(ctx, 0, 3)
	if p2.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.workers)
	}
	if cap(p2.jobQueue) != 3 {
		t.Errorf("expected queue of 3, got %d", cap(p2.jobQueue))
	}

	p3 := NewPool(ctx, -1, 0)
	if p3.workers != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.workers)
	}
}

func TestPool_Basic(t *testing.T) {
	var executed int32
	jobs := 10

	pool := NewPool(context.Background(), 3, jobs)
	pool.Start()

	for i := 0; i < jobs; i++ {
		if !pool.Submit(&mockJob{id: i, duration: 5 * time.Millisecond, executed: &executed}) {
			t.Fatalf("submit %d rejected", i)
		}
	}

	results := pool.Wait()

	if len(results) != jobs {
		t.Errorf("expected %d results, got %d", jobs, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(jobs) {
		t.Errorf("expected %d executions, got %d", jobs, executed)
	}
	for _, r := range results {
		if r.GetError() != nil {
			t.Errorf("unexpected error: %v", r.GetError())
		}
	}
}

func TestPool_Errors(t *testing.T) {
	pool := NewPool(context.Background(), 2, 4)
	pool.Start()

	pool.Submit(&mockJob{shouldErr: true})
	pool.Submit(&mockJob{shouldErr: false})
	pool.Submit(&mockJob{shouldErr: true})

	results := pool.Wait()

	errCount := 0
	for _, r := range results {
		if r.GetError() != nil {
			errCount++
		}
	}
	if errCount != 2 {
		t.Errorf("expected 2 errors, got %d", errCount)
	}
}

func TestPool_ConcurrencyCeiling(t *testing.T) {
	const workers = 2
	var running, peak int32

	pool := NewPool(context.Background(), workers, 8)
	pool.Start()

	for i := 0; i < 8; i++ {
		pool.Submit(&mockJob{
			id:       i,
			duration: 10 * time.Millisecond,
			onStart: func(int) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
			},
			onDone: func() { atomic.AddInt32(&running, -1) },
		})
	}

	pool.Wait()

	if peak > workers {
		t.Errorf("expected at most %d concurrent jobs, saw %d", workers, peak)
	}
}

func TestPool_StartsInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	pool := NewPool(context.Background(), 1, 5)
	pool.Start()

	for i := 0; i < 5; i++ {
		pool.Submit(&mockJob{id: i, onStart: func(id int) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}})
	}
	pool.Wait()

	for i, id := range order {
		if id != i {
			t.Fatalf("expected submission order, got %v", order)
		}
	}
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool(context.Background(), 1, 10)
	pool.Start()

	var executed int32
	for i := 0; i < 10; i++ {
		pool.Submit(&mockJob{duration: 100 * time.Millisecond, executed: &executed})
	}

	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	pool.Shutdown()
	if elapsed := time.Since(start); elapsed > 80*time.Millisecond {
		t.Errorf("shutdown took too long: %v", elapsed)
	}

	if n := atomic.LoadInt32(&executed); n != 1 {
		t.Errorf("expected only the running job to start, got %d", n)
	}

	if pool.Submit(&mockJob{}) {
		t.Error("expected submit after shutdown to be rejected")
	}
}

func TestPool_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 2, 4)
	pool.Start()

	pool.Submit(&mockJob{duration: time.Second})
	pool.Submit(&mockJob{duration: time.Second})

	time.Sleep(10 * time.Millisecond)
	cancel()

	results := pool.Wait()
	for _, r := range results {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", r.GetError())
		}
	}
	if pool.Context().Err() == nil {
		t.Error("expected pool context to be cancelled")
	}
}

func TestResultCollector(t *testing.T) {
	c := NewResultCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(&mockResult{id: i})
		}(i)
	}
	wg.Wait()

	if c.Len() != 50 {
		t.Errorf("expected 50 results, got %d", c.Len())
	}

	snapshot := c.Results()
	c.Add(&mockResult{})
	if len(snapshot) != 50 {
		t.Errorf("expected snapshot to be detached, got %d", len(snapshot))
	}
}
