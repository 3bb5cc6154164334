package upload

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/parallax/engine/containers"
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
)

// ErrSchedulerClosed is returned by Enqueue after Shutdown.
var ErrSchedulerClosed = errors.New("transfer scheduler is shut down")

const fenceWaitSlice = 100 * time.Millisecond

type SchedulerConfig struct {
	// QueueDepth bounds the decoded-payload handoff channel; decoder workers
	// block once it is full.
	QueueDepth int
	// TransferInFlightLimit is the saturation point of the dedicated
	// transfer queue; beyond it submissions spill to the graphics queue.
	TransferInFlightLimit int
}

// Scheduler sequences upload submissions. Decoder workers hand decoded
// payloads over a bounded channel; a single run goroutine owns queue
// submission rights and walks each task through its state machine. Fence
// waits happen on per-task goroutines, never on the render thread.
type Scheduler struct {
	device  gpu.Device
	staging *StagingAllocator
	tracker *Tracker

	inFlightLimit int
	decoded       chan *Payload

	pendingMutex  sync.Mutex
	pendingHigh   *containers.RingQueue[*Payload]
	pendingNormal *containers.RingQueue[*Payload]
	cancelled     map[core.RequestID]struct{}

	transferInFlight atomic.Int32

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
	started atomic.Bool
}

func NewScheduler(device gpu.Device, staging *StagingAllocator, tracker *Tracker, cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.QueueDepth <= 0 {
		return nil, errors.New("scheduler queue depth must be > 0")
	}
	if cfg.TransferInFlightLimit <= 0 {
		return nil, errors.New("transfer in-flight limit must be > 0")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		device:        device,
		staging:       staging,
		tracker:       tracker,
		inFlightLimit: cfg.TransferInFlightLimit,
		decoded:       make(chan *Payload, cfg.QueueDepth),
		pendingHigh:   containers.NewRingQueue[*Payload](cfg.QueueDepth),
		pendingNormal: containers.NewRingQueue[*Payload](cfg.QueueDepth),
		cancelled:     make(map[core.RequestID]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the submission loop. Idempotent.
func (s *Scheduler) Start() {
	if s.started.Swap(true) {
		return
	}
	s.wg.Add(1)
	go s.run()
}

// Shutdown stops accepting work, cancels waiting reservations and blocks
// until in-flight completions have settled.
func (s *Scheduler) Shutdown() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	return nil
}

// Enqueue registers the decoded payload and hands it to the submission loop.
// Blocks when the handoff channel is full; safe to call from any worker.
func (s *Scheduler) Enqueue(payload *Payload) error {
	if s.closed.Load() {
		return ErrSchedulerClosed
	}

	s.tracker.Register(&UploadTask{
		Request: payload.Request,
		State:   TaskDecoded,
		Meta:    payload.Meta,
	})

	select {
	case s.decoded <- payload:
		return nil
	case <-s.ctx.Done():
		s.tracker.MarkCancelled(payload.Request.ID)
		return ErrSchedulerClosed
	}
}

// Cancel withdraws a request. Before submission the task is removed with
// zero device-side effect; after submission the copy runs to completion and
// the handle is discarded instead of published. Returns false when the task
// already reached a terminal state.
func (s *Scheduler) Cancel(id core.RequestID) bool {
	match := func(p *Payload) bool { return p.Request.ID == id }

	s.pendingMutex.Lock()
	if s.pendingHigh.Remove(match) || s.pendingNormal.Remove(match) {
		// a flag from an earlier cancel attempt has nothing left to stop
		delete(s.cancelled, id)
		s.pendingMutex.Unlock()
		s.tracker.MarkCancelled(id)
		return true
	}

	state, inFlight := s.tracker.State(id)
	if !inFlight {
		s.pendingMutex.Unlock()
		return false
	}
	if state == TaskQueueSubmitted {
		s.pendingMutex.Unlock()
		return s.tracker.RequestDiscard(id)
	}

	// still in the handoff channel or being staged; the run loop honors the
	// flag at its next checkpoint
	s.cancelled[id] = struct{}{}
	s.pendingMutex.Unlock()
	return true
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		if !s.hasPending() {
			select {
			case payload := <-s.decoded:
				s.addPending(payload)
			case <-s.ctx.Done():
				s.drainOnShutdown()
				return
			}
		}
		s.drainChannel()

		payload := s.nextPending()
		if payload == nil {
			continue
		}
		s.process(payload)
	}
}

func (s *Scheduler) hasPending() bool {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()
	return !s.pendingHigh.IsEmpty() || !s.pendingNormal.IsEmpty()
}

// drainChannel moves buffered payloads into the priority queues without
// blocking, so that cancellation can still reach them and high-priority
// work overtakes normal work.
func (s *Scheduler) drainChannel() {
	for {
		s.pendingMutex.Lock()
		full := s.pendingHigh.IsFull() || s.pendingNormal.IsFull()
		s.pendingMutex.Unlock()
		if full {
			return
		}
		select {
		case payload := <-s.decoded:
			s.addPending(payload)
		default:
			return
		}
	}
}

func (s *Scheduler) addPending(payload *Payload) {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()
	if payload.Request.Priority == PriorityHigh {
		if err := s.pendingHigh.Enqueue(payload); err != nil {
			core.LogError("pending queue overflow for %s: %s", payload.Request.Name, err.Error())
		}
		return
	}
	if err := s.pendingNormal.Enqueue(payload); err != nil {
		core.LogError("pending queue overflow for %s: %s", payload.Request.Name, err.Error())
	}
}

func (s *Scheduler) nextPending() *Payload {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()
	if payload, err := s.pendingHigh.Dequeue(); err == nil {
		return payload
	}
	if payload, err := s.pendingNormal.Dequeue(); err == nil {
		return payload
	}
	return nil
}

func (s *Scheduler) consumeCancel(id core.RequestID) bool {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()
	if _, ok := s.cancelled[id]; ok {
		delete(s.cancelled, id)
		return true
	}
	return false
}

// dropCancel discards a flag whose task reached a terminal state through
// another path, so the map cannot accumulate dead entries.
func (s *Scheduler) dropCancel(id core.RequestID) {
	s.pendingMutex.Lock()
	delete(s.cancelled, id)
	s.pendingMutex.Unlock()
}

// pickQueue prefers the dedicated transfer queue until its in-flight count
// reaches the configured limit, then spills to the graphics queue so copy
// latency stays bounded.
func (s *Scheduler) pickQueue() gpu.QueueKind {
	capability := s.device.Capability()
	if capability.HasDedicatedTransfer && int(s.transferInFlight.Load()) < s.inFlightLimit {
		return gpu.QueueTransfer
	}
	return gpu.QueueGraphics
}

func (s *Scheduler) process(payload *Payload) {
	id := payload.Request.ID
	size := uint64(len(payload.Bytes))

	if s.consumeCancel(id) {
		s.tracker.MarkCancelled(id)
		return
	}

	region, err := s.staging.ReserveWait(s.ctx, size)
	if err != nil {
		s.dropCancel(id)
		if errors.Is(err, context.Canceled) {
			s.tracker.MarkCancelled(id)
			return
		}
		s.tracker.MarkFailed(id, errors.Wrapf(err, "staging reservation for %s", payload.Request.Name))
		return
	}

	copy(s.device.StagingPool()[region.Offset:region.Offset+size], payload.Bytes)
	s.tracker.MarkStagingCopied(id, region)

	// last checkpoint with zero device-side effect
	if s.consumeCancel(id) {
		s.staging.Release(region)
		s.tracker.MarkCancelled(id)
		return
	}

	target, err := s.device.CreateTarget(payload.Desc)
	if err != nil {
		s.dropCancel(id)
		s.staging.Release(region)
		s.tracker.MarkFailed(id, errors.Wrapf(err, "target allocation for %s", payload.Request.Name))
		return
	}

	queue := s.pickQueue()
	fence, err := s.device.SubmitCopy(queue, region.Offset, size, target)
	if err != nil {
		s.dropCancel(id)
		s.staging.Release(region)
		s.device.DestroyTarget(target)
		s.tracker.MarkFailed(id, errors.Wrapf(err, "copy submission for %s", payload.Request.Name))
		return
	}
	if queue == gpu.QueueTransfer {
		s.transferInFlight.Add(1)
	}
	s.tracker.MarkSubmitted(id, queue, target, fence)
	core.LogDebug("submitted %s copy of %d bytes on %s queue", payload.Request.Kind, size, queue)

	// a cancel that raced the submission still gets exactly one terminal
	// state: the handle is discarded at completion
	if s.consumeCancel(id) {
		s.tracker.RequestDiscard(id)
	}

	s.wg.Add(1)
	go s.awaitCompletion(id, region, queue, fence)
}

// awaitCompletion waits for the device fence off the submission loop,
// releases the staging region and publishes (or discards) the handle.
func (s *Scheduler) awaitCompletion(id core.RequestID, region StagingRegion, queue gpu.QueueKind, fence gpu.Fence) {
	defer s.wg.Done()

	for !fence.Wait(fenceWaitSlice) {
		select {
		case <-s.ctx.Done():
			// shutdown: the device copy may still be running, keep the
			// region out of circulation and fail the task
			if queue == gpu.QueueTransfer {
				s.transferInFlight.Add(-1)
			}
			s.tracker.MarkFailed(id, errors.Wrap(s.ctx.Err(), "shutdown before copy completion"))
			return
		default:
		}
	}

	if queue == gpu.QueueTransfer {
		s.transferInFlight.Add(-1)
	}
	s.staging.Release(region)

	if handle, discarded := s.tracker.MarkDeviceComplete(id); discarded {
		s.device.DestroyTarget(handle)
		core.LogDebug("discarded cancelled upload target %d", handle)
	}
}

func (s *Scheduler) drainOnShutdown() {
	for {
		payload := s.nextPending()
		if payload == nil {
			break
		}
		s.tracker.MarkCancelled(payload.Request.ID)
	}
	for {
		select {
		case payload := <-s.decoded:
			s.tracker.MarkCancelled(payload.Request.ID)
		default:
			// every remaining task is terminal now; unconsumed flags have
			// nothing left to cancel
			s.pendingMutex.Lock()
			s.cancelled = make(map[core.RequestID]struct{})
			s.pendingMutex.Unlock()
			return
		}
	}
}

// TransferInFlight reports the current dedicated-queue occupancy.
func (s *Scheduler) TransferInFlight() int {
	return int(s.transferInFlight.Load())
}
