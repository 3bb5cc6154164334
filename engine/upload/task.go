package upload

import (
	"github.com/spaghettifunk/parallax/engine/gpu"
)

// TaskState is the lifecycle of one upload. Forward-only: a task never
// revisits an earlier state, and exactly one terminal state is reached.
type TaskState uint8

const (
	// TaskDecoded: CPU buffer produced, waiting for staging space.
	TaskDecoded TaskState = iota
	// TaskStagingCopied: bytes live in a reserved staging region.
	TaskStagingCopied
	// TaskQueueSubmitted: copy command submitted to a device queue.
	TaskQueueSubmitted
	// TaskDeviceComplete: the device signaled the copy fence.
	TaskDeviceComplete
	// TaskPublished: handle visible to consumers. Terminal.
	TaskPublished
	// TaskFailed: decode/submission error, nothing published. Terminal.
	TaskFailed
	// TaskCancelled: withdrawn before any device-side effect, or discarded
	// after the in-flight copy ran out. Terminal.
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskDecoded:
		return "decoded"
	case TaskStagingCopied:
		return "staging-copied"
	case TaskQueueSubmitted:
		return "queue-submitted"
	case TaskDeviceComplete:
		return "device-complete"
	case TaskPublished:
		return "published"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskPublished || s == TaskFailed || s == TaskCancelled
}

// UploadTask maps an AssetRequest to its staging region, device target,
// queue assignment and fence. Owned by the scheduler until terminal; state
// transitions happen under the tracker's lock.
type UploadTask struct {
	Request *AssetRequest
	State   TaskState
	Region  StagingRegion
	Target  gpu.ResourceHandle
	Queue   gpu.QueueKind
	Fence   gpu.Fence
	Meta    ResourceMeta
	Err     error

	// discard is set when the request is cancelled after submission; the
	// device copy runs to completion and the handle is dropped post-hoc.
	discard bool
}
