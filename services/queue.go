package services

import (
	"sync"

	"fermata/types"
)

// TaskQueue is the ordered collection of pending transcode tasks. FIFO by
// default; priority batches are inserted at the head as a contiguous block.
// No two entries ever share the same identity ref.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   []types.TranscodeTask
	present map[types.EpisodeRef]bool
}

// NewTaskQueue creates an empty task queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		present: make(map[types.EpisodeRef]bool),
	}
}

// Push adds the batch to the queue, dropping tasks whose ref is already
// queued. Relative order within the batch is preserved; priority batches go
// to the head as a block, others append. Returns the count admitted.
func (q *TaskQueue) Push(batch []types.TranscodeTask, priority bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	admitted := make([]types.TranscodeTask, 0, len(batch))
	for _, task := range batch {
		if q.present[task.Ref] {
			continue
		}
		q.present[task.Ref] = true
		admitted = append(admitted, task)
	}

	if len(admitted) == 0 {
		return 0
	}

	if priority {
		q.tasks = append(admitted, q.tasks...)
	} else {
		q.tasks = append(q.tasks, admitted...)
	}

	return len(admitted)
}

// Claim removes and returns the task at the queue head. Ownership transfers
// to the caller for the duration of the encode.
func (q *TaskQueue) Claim() (types.TranscodeTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return types.TranscodeTask{}, false
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	delete(q.present, task.Ref)
	return task, true
}

// Contains reports whether a task with the given ref is queued.
func (q *TaskQueue) Contains(ref types.EpisodeRef) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.present[ref]
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Clear drops all queued tasks.
func (q *TaskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = nil
	q.present = make(map[types.EpisodeRef]bool)
}

// Preview returns the identities of up to n tasks from the queue head.
func (q *TaskQueue) Preview(n int) []types.EpisodeRef {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.tasks) {
		n = len(q.tasks)
	}
	refs := make([]types.EpisodeRef, 0, n)
	for _, task := range q.tasks[:n] {
		refs = append(refs, task.Ref)
	}
	return refs
}
