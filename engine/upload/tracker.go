package upload

import (
	"sync"

	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
)

// Tracker is the concurrency-safe table of in-flight uploads. It owns the
// tasks; consumers only ever see immutable PublishedResource values, each
// published exactly once through PollCompleted.
type Tracker struct {
	mutex     sync.Mutex
	tasks     map[core.RequestID]*UploadTask
	completed []*PublishedResource
	failed    []*UploadFailure
	cancelled []*CancelledUpload
}

func NewTracker() *Tracker {
	return &Tracker{
		tasks: make(map[core.RequestID]*UploadTask),
	}
}

// Register adds a freshly decoded task to the table.
func (t *Tracker) Register(task *UploadTask) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.tasks[task.Request.ID] = task
}

// MarkStagingCopied records that the task's bytes landed in its region.
func (t *Tracker) MarkStagingCopied(id core.RequestID, region StagingRegion) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if task, ok := t.tasks[id]; ok {
		task.State = TaskStagingCopied
		task.Region = region
	}
}

// MarkSubmitted records the queue assignment and fence of a submitted copy.
func (t *Tracker) MarkSubmitted(id core.RequestID, queue gpu.QueueKind, target gpu.ResourceHandle, fence gpu.Fence) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if task, ok := t.tasks[id]; ok {
		task.State = TaskQueueSubmitted
		task.Queue = queue
		task.Target = target
		task.Fence = fence
	}
}

// MarkDeviceComplete transitions the task to its terminal state once the
// fence signaled. If the task was cancelled post-submission, the handle is
// discarded and never becomes visible; otherwise it is atomically published.
// Returns the discarded handle (for destruction) when applicable.
func (t *Tracker) MarkDeviceComplete(id core.RequestID) (discarded gpu.ResourceHandle, wasDiscarded bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return gpu.NilResourceHandle, false
	}
	delete(t.tasks, id)

	if task.discard {
		task.State = TaskCancelled
		t.cancelled = append(t.cancelled, &CancelledUpload{
			RequestID: task.Request.ID,
			Name:      task.Request.Name,
			Kind:      task.Request.Kind,
		})
		return task.Target, true
	}

	task.State = TaskPublished
	t.completed = append(t.completed, &PublishedResource{
		RequestID: task.Request.ID,
		Name:      task.Request.Name,
		Kind:      task.Request.Kind,
		Handle:    task.Target,
		Queue:     task.Queue,
		Meta:      task.Meta,
	})
	return gpu.NilResourceHandle, false
}

// MarkFailed reports a terminal error for the task. No partial handle is
// ever published.
func (t *Tracker) MarkFailed(id core.RequestID, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return
	}
	delete(t.tasks, id)
	task.State = TaskFailed
	task.Err = err
	t.failed = append(t.failed, &UploadFailure{
		RequestID: task.Request.ID,
		Name:      task.Request.Name,
		Kind:      task.Request.Kind,
		Err:       err,
	})
}

// MarkCancelled removes a pre-submission task with zero device-side effect.
func (t *Tracker) MarkCancelled(id core.RequestID) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if task, ok := t.tasks[id]; ok {
		delete(t.tasks, id)
		task.State = TaskCancelled
		t.cancelled = append(t.cancelled, &CancelledUpload{
			RequestID: task.Request.ID,
			Name:      task.Request.Name,
			Kind:      task.Request.Kind,
		})
	}
}

// RequestDiscard flags a submitted task so its handle is dropped at
// completion instead of published. Returns false if the task is no longer
// in flight.
func (t *Tracker) RequestDiscard(id core.RequestID) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return false
	}
	task.discard = true
	return true
}

// State looks up the current state of a task still in the table.
func (t *Tracker) State(id core.RequestID) (TaskState, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return 0, false
	}
	return task.State, true
}

// InFlight reports the number of non-terminal tasks.
func (t *Tracker) InFlight() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.tasks)
}

// PollCompleted drains the uploads that reached device completion since the
// last poll. Called once per render-loop tick; each handle is returned
// exactly once, and never before its transfer finished.
func (t *Tracker) PollCompleted() []*PublishedResource {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := t.completed
	t.completed = nil
	return out
}

// PollFailed drains terminal failures for the requesters to inspect.
func (t *Tracker) PollFailed() []*UploadFailure {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := t.failed
	t.failed = nil
	return out
}

// PollCancelled drains requests that were withdrawn, including submitted
// copies whose handles were discarded at completion.
func (t *Tracker) PollCancelled() []*CancelledUpload {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := t.cancelled
	t.cancelled = nil
	return out
}
