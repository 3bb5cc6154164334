package gpu

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/parallax/engine/core"
)

// MemDevice is a software device backed by plain memory. It executes copies
// asynchronously on goroutines so the pipeline observes the same completion
// semantics as with a real device. Used for headless runs and tests.
type MemDevice struct {
	capability  QueueCapability
	stagingPool []byte
	copyLatency time.Duration

	mutex       sync.Mutex
	nextHandle  ResourceHandle
	targets     map[ResourceHandle]*memTarget
	submissions map[QueueKind]int
	failNext    error
}

type memTarget struct {
	desc     TargetDesc
	contents []byte
	complete bool
}

type memFence struct {
	ch chan struct{}
}

func (f *memFence) Wait(timeout time.Duration) bool {
	select {
	case <-f.ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (f *memFence) Done() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

type MemDeviceOption func(*MemDevice)

// WithDedicatedTransferQueue toggles whether the device reports a dedicated
// transfer queue in its capability.
func WithDedicatedTransferQueue(enabled bool) MemDeviceOption {
	return func(d *MemDevice) {
		d.capability.HasDedicatedTransfer = enabled
		if enabled {
			d.capability.TransferFamilyIndex = 1
		} else {
			d.capability.TransferFamilyIndex = d.capability.GraphicsFamilyIndex
		}
	}
}

// WithCopyLatency makes every copy take at least the given time before its
// fence signals, which keeps uploads observably in flight during tests.
func WithCopyLatency(latency time.Duration) MemDeviceOption {
	return func(d *MemDevice) {
		d.copyLatency = latency
	}
}

func NewMemDevice(stagingPoolSize uint64, options ...MemDeviceOption) *MemDevice {
	d := &MemDevice{
		capability: QueueCapability{
			HasDedicatedTransfer: true,
			GraphicsFamilyIndex:  0,
			TransferFamilyIndex:  1,
		},
		stagingPool: make([]byte, stagingPoolSize),
		nextHandle:  1,
		targets:     make(map[ResourceHandle]*memTarget),
		submissions: make(map[QueueKind]int),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *MemDevice) Capability() QueueCapability {
	return d.capability
}

func (d *MemDevice) StagingPool() []byte {
	return d.stagingPool
}

func (d *MemDevice) CreateTarget(desc TargetDesc) (ResourceHandle, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	handle := d.nextHandle
	d.nextHandle++
	d.targets[handle] = &memTarget{
		desc:     desc,
		contents: make([]byte, desc.Size),
	}
	return handle, nil
}

func (d *MemDevice) SubmitCopy(queue QueueKind, stagingOffset, size uint64, target ResourceHandle) (Fence, error) {
	d.mutex.Lock()

	if d.failNext != nil {
		err := d.failNext
		d.failNext = nil
		d.mutex.Unlock()
		return nil, err
	}

	t, ok := d.targets[target]
	if !ok {
		d.mutex.Unlock()
		return nil, errors.Newf("submit copy to unknown target %d", target)
	}
	if stagingOffset+size > uint64(len(d.stagingPool)) {
		d.mutex.Unlock()
		return nil, errors.Newf("staging range [%d,%d) outside pool of %d bytes", stagingOffset, stagingOffset+size, len(d.stagingPool))
	}
	if queue == QueueTransfer && !d.capability.HasDedicatedTransfer {
		d.mutex.Unlock()
		return nil, errors.New("transfer queue submission without a dedicated transfer queue")
	}
	d.submissions[queue]++

	// Snapshot the staging bytes inside the lock; the region belongs to this
	// upload until its fence signals, but the copy itself runs async.
	src := make([]byte, size)
	copy(src, d.stagingPool[stagingOffset:stagingOffset+size])
	latency := d.copyLatency
	d.mutex.Unlock()

	fence := &memFence{ch: make(chan struct{})}
	go func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		d.mutex.Lock()
		copy(t.contents, src)
		t.complete = true
		d.mutex.Unlock()
		close(fence.ch)
	}()
	return fence, nil
}

func (d *MemDevice) DestroyTarget(handle ResourceHandle) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.targets, handle)
}

func (d *MemDevice) Shutdown() error {
	core.LogDebug("mem device shutdown, %d targets still alive", d.TargetCount())
	return nil
}

// SubmissionCount reports how many copies were submitted on the given queue.
func (d *MemDevice) SubmissionCount(queue QueueKind) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.submissions[queue]
}

// TargetCount reports how many targets are currently alive.
func (d *MemDevice) TargetCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.targets)
}

// TargetComplete reports whether the copy into the given target has executed.
func (d *MemDevice) TargetComplete(handle ResourceHandle) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	t, ok := d.targets[handle]
	return ok && t.complete
}

// TargetBytes returns a copy of the target's current contents.
func (d *MemDevice) TargetBytes(handle ResourceHandle) []byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	t, ok := d.targets[handle]
	if !ok {
		return nil
	}
	out := make([]byte, len(t.contents))
	copy(out, t.contents)
	return out
}

// FailNextSubmit makes the next SubmitCopy return the given error.
func (d *MemDevice) FailNextSubmit(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.failNext = err
}
