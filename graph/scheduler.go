package graph

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"

	"github.com/riverrun/pregel-go/graph/plan"
)

// taskHeap implements heap.Interface for priority queue ordering of
// plan.Task by OrderKey, guaranteeing a deterministic drain order no matter
// what order concurrent producers enqueued in.
type taskHeap []plan.Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].OrderKey != h[j].OrderKey {
		return h[i].OrderKey < h[j].OrderKey
	}
	return h[i].ID < h[j].ID
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(plan.Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// Frontier manages the work queue for a single Pregel step's concurrent task
// execution with bounded capacity and deterministic ordering.
//
// The Frontier ensures that tasks are dequeued in deterministic order (by
// OrderKey) even when they are enqueued concurrently from multiple
// goroutines, which matters for deterministic replay.
//
// The bounded channel provides backpressure: when the queue is full,
// Enqueue blocks until capacity becomes available or the context is
// cancelled, preventing unbounded memory growth when a step's fan-out
// outruns consumption.
//
// Thread-safety: all methods are safe for concurrent use by multiple
// goroutines.
type Frontier struct {
	heap     taskHeap
	queue    chan plan.Task
	capacity int
	mu       sync.Mutex

	totalEnqueued      atomic.Int64
	totalDequeued      atomic.Int64
	backpressureEvents atomic.Int32
	peakQueueDepth     atomic.Int32
}

// NewFrontier creates a Frontier with the given queue capacity.
func NewFrontier(capacity int) *Frontier {
	f := &Frontier{
		heap:     make(taskHeap, 0),
		queue:    make(chan plan.Task, capacity),
		capacity: capacity,
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds a task to the frontier. If the queue is at capacity, Enqueue
// blocks until space frees up or ctx is cancelled, in which case it returns
// ctx.Err().
func (f *Frontier) Enqueue(ctx context.Context, task plan.Task) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.mu.Lock()
	heap.Push(&f.heap, task)
	currentDepth := int32(f.heap.Len())
	f.mu.Unlock()

	for {
		oldPeak := f.peakQueueDepth.Load()
		if currentDepth <= oldPeak || f.peakQueueDepth.CompareAndSwap(oldPeak, currentDepth) {
			break
		}
	}

	if currentDepth >= int32(f.capacity) {
		f.backpressureEvents.Add(1)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.queue <- task:
		f.totalEnqueued.Add(1)
		return nil
	}
}

// Dequeue blocks until a task is available or ctx is cancelled, then returns
// the queued task with the smallest OrderKey.
func (f *Frontier) Dequeue(ctx context.Context) (plan.Task, error) {
	var zero plan.Task

	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.queue:
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.heap.Len() == 0 {
			return zero, context.Canceled
		}

		item := heap.Pop(&f.heap).(plan.Task)
		f.totalDequeued.Add(1)
		return item, nil
	}
}

// Len returns the current number of tasks waiting in the frontier.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// SchedulerMetrics is a point-in-time snapshot of frontier and concurrency
// state. It is not exported to Prometheus; PrometheusMetrics keeps its own
// gauges and counters.
type SchedulerMetrics struct {
	ActiveNodes        int32
	QueueDepth         int32
	QueueCapacity      int32
	TotalSteps         int64
	TotalEnqueued      int64
	TotalDequeued       int64
	BackpressureEvents int32
	PeakActiveNodes    int32
	PeakQueueDepth     int32
}

// Metrics returns a snapshot of the frontier's counters. ActiveNodes,
// TotalSteps and PeakActiveNodes are always zero: the frontier does not
// track them and nothing else fills them in.
func (f *Frontier) Metrics() SchedulerMetrics {
	f.mu.Lock()
	currentQueueDepth := int32(f.heap.Len())
	f.mu.Unlock()

	return SchedulerMetrics{
		QueueDepth:         currentQueueDepth,
		QueueCapacity:      int32(f.capacity),
		TotalEnqueued:      f.totalEnqueued.Load(),
		TotalDequeued:      f.totalDequeued.Load(),
		BackpressureEvents: f.backpressureEvents.Load(),
		PeakQueueDepth:     f.peakQueueDepth.Load(),
	}
}
