package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Task is executed once its due time has passed. Returning repeat=true puts the task back
// into the queue with next as its new due time.
type Task func(ctx context.Context) (next time.Time, repeat bool)

// OneShot adapts a function that runs exactly once.
func OneShot(fn func(ctx context.Context)) Task {
	return func(ctx context.Context) (time.Time, bool) {
		fn(ctx)
		return time.Time{}, false
	}
}

// Scheduler is an in-process, time ordered task queue. Tasks may be added from any goroutine.
// A single dispatch loop started with Run executes due tasks, each in its own goroutine.
type Scheduler struct {
	mu     sync.Mutex
	queue  taskQueue
	nextID uint64
	signal chan struct{}
	wg     sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		signal: make(chan struct{}, 1),
	}
}

// AddTaskAt schedules task to run at or after at. Times in the past run immediately.
func (s *Scheduler) AddTaskAt(at time.Time, name string, task Task) {
	s.mu.Lock()
	s.nextID++
	heap.Push(&s.queue, &scheduledTask{name: name, at: at, seq: s.nextID, task: task})
	s.mu.Unlock()

	log.Debugf("scheduled task %q at %s", name, at.Format(time.RFC3339))

	// coalesced wake-up, the dispatch loop recomputes its deadline
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// AddTaskNow schedules task for immediate execution.
func (s *Scheduler) AddTaskNow(name string, task Task) {
	s.AddTaskAt(time.Now(), name, task)
}

// Len returns the number of tasks waiting in the queue.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Run dispatches tasks until ctx is cancelled. It waits for running tasks before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("Scheduler started")
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		due, wait, hasNext := s.popDue(time.Now())
		for _, t := range due {
			s.dispatch(ctx, t)
		}

		var timerC <-chan time.Time
		if hasNext {
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			s.wg.Wait()
			log.Info("Scheduler stopped")
			return ctx.Err()
		case <-s.signal:
		case <-timerC:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// popDue removes all tasks due at now and reports how long to sleep until the next one.
func (s *Scheduler) popDue(now time.Time) ([]*scheduledTask, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*scheduledTask
	for s.queue.Len() > 0 && !s.queue[0].at.After(now) {
		due = append(due, heap.Pop(&s.queue).(*scheduledTask))
	}
	if s.queue.Len() == 0 {
		return due, 0, false
	}
	return due, s.queue[0].at.Sub(now), true
}

func (s *Scheduler) dispatch(ctx context.Context, t *scheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("scheduled task %q panicked: %v", t.name, r)
			}
		}()

		log.Debugf("running scheduled task %q", t.name)
		next, repeat := t.task(ctx)
		if repeat && ctx.Err() == nil {
			s.AddTaskAt(next, t.name, t.task)
		}
	}()
}
