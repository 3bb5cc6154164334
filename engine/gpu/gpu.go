package gpu

import (
	"errors"
	"time"
)

// QueueKind selects which device queue executes a copy submission.
type QueueKind uint8

const (
	QueueGraphics QueueKind = iota
	QueueTransfer
)

func (q QueueKind) String() string {
	if q == QueueTransfer {
		return "transfer"
	}
	return "graphics"
}

// QueueCapability describes the queues the device exposes. Immutable after
// device initialization; passed explicitly, never a hidden singleton.
type QueueCapability struct {
	HasDedicatedTransfer bool
	GraphicsFamilyIndex  uint32
	TransferFamilyIndex  uint32
}

// ResourceKind distinguishes device-local buffer and image destinations.
type ResourceKind uint8

const (
	ResourceBuffer ResourceKind = iota
	ResourceImage
)

// ResourceHandle is an opaque reference to a device-resident buffer or image.
// A handle must never reach a consumer before its backing transfer completed.
type ResourceHandle uint64

const NilResourceHandle ResourceHandle = 0

// TargetDesc describes the device-local destination of an upload.
type TargetDesc struct {
	Kind   ResourceKind
	Size   uint64
	Width  uint32 // images only
	Height uint32 // images only
}

// Fence is a device synchronization primitive signaled once a submitted copy
// has finished executing.
type Fence interface {
	// Wait blocks until the fence signals or the timeout expires. Returns
	// false on timeout.
	Wait(timeout time.Duration) bool
	// Done reports whether the fence has signaled, without blocking.
	Done() bool
}

var (
	// ErrDeviceLost is a device-level failure the pipeline cannot self-heal;
	// it propagates up to the application.
	ErrDeviceLost = errors.New("device lost")
	// ErrOutOfDeviceMemory reports a failed device allocation.
	ErrOutOfDeviceMemory = errors.New("out of device memory")
)

// Device is the graphics device collaborator. The upload pipeline drives all
// data movement through it and never bypasses its synchronization primitives.
//
// StagingPool returns the mapped host-visible staging memory; the staging
// allocator hands out disjoint ranges of it. SubmitCopy records and submits a
// copy from a staging range into a device-local target on the selected queue
// and returns the fence that signals completion. SubmitCopy must only be
// called from the thread holding submission rights.
type Device interface {
	Capability() QueueCapability
	StagingPool() []byte
	CreateTarget(desc TargetDesc) (ResourceHandle, error)
	SubmitCopy(queue QueueKind, stagingOffset, size uint64, target ResourceHandle) (Fence, error)
	DestroyTarget(handle ResourceHandle)
	Shutdown() error
}
