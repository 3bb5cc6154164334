package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
)

// Backend is the Vulkan device used for real uploads. Copies are recorded
// into single-use command buffers and submitted without waiting; completion
// is observed through the returned fence, and the command buffer is freed on
// the fence's first signal.
type Backend struct {
	context *VulkanContext
	staging *VulkanBuffer

	mutex      sync.Mutex
	nextHandle gpu.ResourceHandle
	targets    map[gpu.ResourceHandle]*vulkanTarget
}

type vulkanTarget struct {
	desc   gpu.TargetDesc
	buffer *VulkanBuffer
	image  *VulkanImage
}

// New creates the instance, picks a physical device and allocates the mapped
// staging pool. The Vulkan loader must already be initialized by the
// platform layer.
func New(applicationName string, stagingPoolSize uint64) (*Backend, error) {
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vulkan loader init")
	}

	applicationInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   applicationName + "\x00",
		PEngineName:        "Parallax Engine\x00",
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: applicationInfo,
	}

	context := &VulkanContext{
		Device: &VulkanDevice{
			GraphicsQueueIndex: -1,
			TransferQueueIndex: -1,
		},
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, context.Allocator, &instance); res != vk.Success {
		return nil, errors.Newf("vkCreateInstance failed with %d", res)
	}
	context.Instance = instance
	vk.InitInstance(instance)
	core.LogInfo("Vulkan instance created.")

	if err := DeviceCreate(context); err != nil {
		vk.DestroyInstance(instance, context.Allocator)
		return nil, errors.Wrap(err, "device creation")
	}

	staging, err := NewStagingBuffer(context, stagingPoolSize)
	if err != nil {
		DeviceDestroy(context)
		vk.DestroyInstance(instance, context.Allocator)
		return nil, err
	}

	return &Backend{
		context:    context,
		staging:    staging,
		nextHandle: 1,
		targets:    make(map[gpu.ResourceHandle]*vulkanTarget),
	}, nil
}

func (b *Backend) Capability() gpu.QueueCapability {
	return gpu.QueueCapability{
		HasDedicatedTransfer: b.context.Device.HasDedicatedTransfer,
		GraphicsFamilyIndex:  uint32(b.context.Device.GraphicsQueueIndex),
		TransferFamilyIndex:  uint32(b.context.Device.TransferQueueIndex),
	}
}

func (b *Backend) StagingPool() []byte {
	return b.staging.Mapped
}

func (b *Backend) CreateTarget(desc gpu.TargetDesc) (gpu.ResourceHandle, error) {
	target := &vulkanTarget{desc: desc}

	switch desc.Kind {
	case gpu.ResourceBuffer:
		buffer, err := NewDeviceLocalBuffer(b.context, desc.Size)
		if err != nil {
			return gpu.NilResourceHandle, errors.CombineErrors(gpu.ErrOutOfDeviceMemory, err)
		}
		target.buffer = buffer
	case gpu.ResourceImage:
		image, err := NewImage(b.context, desc.Width, desc.Height)
		if err != nil {
			return gpu.NilResourceHandle, errors.CombineErrors(gpu.ErrOutOfDeviceMemory, err)
		}
		target.image = image
	default:
		return gpu.NilResourceHandle, errors.Newf("unknown resource kind %d", desc.Kind)
	}

	b.mutex.Lock()
	handle := b.nextHandle
	b.nextHandle++
	b.targets[handle] = target
	b.mutex.Unlock()
	return handle, nil
}

func (b *Backend) SubmitCopy(queue gpu.QueueKind, stagingOffset, size uint64, target gpu.ResourceHandle) (gpu.Fence, error) {
	b.mutex.Lock()
	t, ok := b.targets[target]
	b.mutex.Unlock()
	if !ok {
		return nil, errors.Newf("submit copy to unknown target %d", target)
	}
	if stagingOffset+size > b.staging.Size {
		return nil, errors.Newf("staging range [%d,%d) outside pool of %d bytes", stagingOffset, stagingOffset+size, b.staging.Size)
	}

	pool := b.context.Device.GraphicsCommandPool
	vkQueue := b.context.Device.GraphicsQueue
	if queue == gpu.QueueTransfer {
		if !b.context.Device.HasDedicatedTransfer {
			return nil, errors.New("transfer queue submission without a dedicated transfer queue")
		}
		pool = b.context.Device.TransferCommandPool
		vkQueue = b.context.Device.TransferQueue
	}

	cb, err := AllocateAndBeginSingleUse(b.context, pool)
	if err != nil {
		return nil, err
	}

	switch {
	case t.buffer != nil:
		region := vk.BufferCopy{
			SrcOffset: vk.DeviceSize(stagingOffset),
			DstOffset: 0,
			Size:      vk.DeviceSize(size),
		}
		vk.CmdCopyBuffer(cb.Handle, b.staging.Handle, t.buffer.Handle, 1, []vk.BufferCopy{region})
	case t.image != nil:
		onTransfer := queue == gpu.QueueTransfer
		t.image.RecordTransition(cb, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, onTransfer)
		t.image.RecordCopyFromBuffer(cb, b.staging.Handle, stagingOffset)
		t.image.RecordTransition(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, onTransfer)
	}

	fence, err := NewFence(b.context, false)
	if err != nil {
		cb.Free(b.context)
		return nil, err
	}
	fence.onSignal = func() {
		cb.Free(b.context)
		fence.Destroy()
	}

	if err := cb.EndAndSubmit(vkQueue, fence); err != nil {
		fence.Destroy()
		cb.Free(b.context)
		return nil, errors.CombineErrors(gpu.ErrDeviceLost, err)
	}
	return fence, nil
}

func (b *Backend) DestroyTarget(handle gpu.ResourceHandle) {
	b.mutex.Lock()
	t, ok := b.targets[handle]
	delete(b.targets, handle)
	b.mutex.Unlock()
	if !ok {
		return
	}
	if t.buffer != nil {
		t.buffer.Destroy(b.context)
	}
	if t.image != nil {
		t.image.Destroy(b.context)
	}
}

// Shutdown waits for the device to go idle and releases every resource the
// backend still owns.
func (b *Backend) Shutdown() error {
	vk.DeviceWaitIdle(b.context.Device.LogicalDevice)

	b.mutex.Lock()
	targets := b.targets
	b.targets = make(map[gpu.ResourceHandle]*vulkanTarget)
	b.mutex.Unlock()

	core.LogInfo("Destroying %d remaining upload targets...", len(targets))
	for _, t := range targets {
		if t.buffer != nil {
			t.buffer.Destroy(b.context)
		}
		if t.image != nil {
			t.image.Destroy(b.context)
		}
	}

	b.staging.Destroy(b.context)
	DeviceDestroy(b.context)
	if b.context.Instance != nil {
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
	return nil
}
