package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/parallax/engine/core"
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	pool   vk.CommandPool
}

// AllocateAndBeginSingleUse allocates a primary command buffer from the given
// pool and puts it in recording state for a one-time submission.
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := errors.Newf("failed to allocate command buffer with %d", res)
		core.LogError(err.Error())
		return nil, err
	}

	cb := &VulkanCommandBuffer{Handle: handles[0], pool: pool}

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cb.Handle, &beginInfo); res != vk.Success {
		cb.Free(context)
		return nil, errors.Newf("failed to begin command buffer with %d", res)
	}
	return cb, nil
}

// EndAndSubmit finishes recording and submits on the given queue with the
// fence. It does not wait; the caller owns completion via the fence.
func (v *VulkanCommandBuffer) EndAndSubmit(queue vk.Queue, fence *VulkanFence) error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return errors.Newf("failed to end command buffer with %d", res)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
		return errors.Newf("queue submit failed with %d", res)
	}
	return nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext) {
	vk.FreeCommandBuffers(context.Device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
}
