package poller

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vitalybin/frappy/pkg/secop/module"
)

// Scheduler is the generic (shared) poller of spec.md §4.5: a single
// per-node goroutine holding a priority queue of (deadline, module,
// parameter) work items, bounding concurrent in-flight reads with a
// weighted semaphore the way the teacher bounds concurrent outbound
// frames in its connection pool.
type Scheduler struct {
	mu   sync.Mutex
	pq   workQueue
	sem  *semaphore.Weighted
	wake chan struct{}
}

// NewScheduler builds a Scheduler that dispatches at most maxConcurrent
// reads at once.
func NewScheduler(maxConcurrent int64) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		sem:  semaphore.NewWeighted(maxConcurrent),
		wake: make(chan struct{}, 1),
	}
}

type workItem struct {
	deadline time.Time
	m        *module.Module
	param    string
	poll     int
	index    int
}

type workQueue []*workItem

func (q workQueue) Len() int            { return len(q) }
func (q workQueue) Less(i, j int) bool  { return q[i].deadline.Before(q[j].deadline) }
func (q workQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index, q[j].index = i, j }
func (q *workQueue) Push(x any)         { it := x.(*workItem); it.index = len(*q); *q = append(*q, it) }
func (q *workQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// Register schedules every pollable parameter of m with the scheduler,
// with an immediate first deadline (mirroring the basic poller's
// pollParams(0) initial pass).
func (s *Scheduler) Register(m *module.Module) {
	now := time.Now()
	for _, pname := range m.Parameters() {
		p, ok := m.Parameter(pname)
		if !ok || p.Poll == 0 {
			continue
		}
		s.push(&workItem{deadline: now, m: m, param: pname, poll: p.Poll})
	}
}

func (s *Scheduler) push(it *workItem) {
	s.mu.Lock()
	heap.Push(&s.pq, it)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the scheduler loop until ctx is cancelled. Call it once,
// typically from a dedicated goroutine owned by the node.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		var wait time.Duration
		var empty bool
		if len(s.pq) == 0 {
			empty = true
		} else {
			wait = time.Until(s.pq[0].deadline)
		}
		s.mu.Unlock()

		if empty || wait > 0 {
			if empty {
				wait = time.Hour
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			case <-s.wake:
			}
			continue
		}

		s.mu.Lock()
		it := heap.Pop(&s.pq).(*workItem)
		s.mu.Unlock()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go s.dispatch(it)
	}
}

func (s *Scheduler) dispatch(it *workItem) {
	defer s.sem.Release(1)
	it.m.PollOneParam(it.param)

	fastpoll := false
	if _, isDrivable := it.m.Command("stop"); isDrivable && it.param != "status" {
		fastpoll = it.m.IsBusy()
	}
	it.deadline = time.Now().Add(sleepDuration(it.m, fastpoll && it.poll < 0))
	s.push(it)
}
