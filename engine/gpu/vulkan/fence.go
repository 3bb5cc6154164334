package vulkan

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/parallax/engine/core"
)

// VulkanFence wraps a vk.Fence behind the portable fence contract. The
// onSignal callback runs exactly once after the device signals; the backend
// uses it to reclaim the submission's command buffer.
type VulkanFence struct {
	context *VulkanContext
	Handle  vk.Fence

	mutex    sync.Mutex
	signaled bool
	onSignal func()
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		err := errors.Newf("failed to create fence with %d", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanFence{
		context:  context,
		Handle:   pFence,
		signaled: createSignaled,
	}, nil
}

// Wait blocks until the fence signals or the timeout elapses.
func (vf *VulkanFence) Wait(timeout time.Duration) bool {
	vf.mutex.Lock()
	if vf.signaled {
		vf.mutex.Unlock()
		return true
	}
	vf.mutex.Unlock()

	result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		vf.markSignaled()
		return true
	case vk.Timeout:
		return false
	case vk.ErrorDeviceLost:
		core.LogError("fence wait - VK_ERROR_DEVICE_LOST")
	case vk.ErrorOutOfHostMemory:
		core.LogError("fence wait - VK_ERROR_OUT_OF_HOST_MEMORY")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("fence wait - VK_ERROR_OUT_OF_DEVICE_MEMORY")
	default:
		core.LogError("fence wait - an unknown error has occurred")
	}
	return false
}

// Done polls the fence without blocking.
func (vf *VulkanFence) Done() bool {
	vf.mutex.Lock()
	if vf.signaled {
		vf.mutex.Unlock()
		return true
	}
	vf.mutex.Unlock()

	if vk.GetFenceStatus(vf.context.Device.LogicalDevice, vf.Handle) == vk.Success {
		vf.markSignaled()
		return true
	}
	return false
}

func (vf *VulkanFence) markSignaled() {
	vf.mutex.Lock()
	if vf.signaled {
		vf.mutex.Unlock()
		return
	}
	vf.signaled = true
	callback := vf.onSignal
	vf.onSignal = nil
	vf.mutex.Unlock()

	if callback != nil {
		callback()
	}
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vk.DestroyFence(vf.context.Device.LogicalDevice, vf.Handle, vf.context.Allocator)
		vf.Handle = nil
	}
}
