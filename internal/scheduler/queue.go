package scheduler

import "time"

type scheduledTask struct {
	name string
	at   time.Time
	// seq keeps insertion order for tasks due at the same instant
	seq  uint64
	task Task
}

// taskQueue is a min-heap of tasks ordered by due time. It implements heap.Interface and is
// not safe for concurrent use on its own.
type taskQueue []*scheduledTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) {
	*q = append(*q, x.(*scheduledTask))
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
