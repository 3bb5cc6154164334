package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

// imageSharingInfo decides how the image is shared across queue families.
// With a dedicated transfer family the transfer queue writes what the
// graphics family later samples, so the image is created concurrent across
// both families; a queue family ownership transfer is then not required.
func imageSharingInfo(device *VulkanDevice) (vk.SharingMode, []uint32) {
	if device.HasDedicatedTransfer {
		return vk.SharingModeConcurrent, []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.TransferQueueIndex),
		}
	}
	return vk.SharingModeExclusive, nil
}

// NewImage creates a device-local 2D RGBA image suitable as a sampled
// transfer destination. The view is created up front so the handle is
// bindable the moment its upload completes.
func NewImage(context *VulkanContext, width, height uint32) (*VulkanImage, error) {
	sharingMode, families := imageSharingInfo(context.Device)
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:             1,
		ArrayLayers:           1,
		Format:                vk.FormatR8g8b8a8Unorm,
		Tiling:                vk.ImageTilingOptimal,
		InitialLayout:         vk.ImageLayoutUndefined,
		Usage:                 vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		Samples:               vk.SampleCount1Bit,
		SharingMode:           sharingMode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
	}

	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageInfo, context.Allocator, &handle); res != vk.Success {
		return nil, errors.Newf("image creation failed with %d", res)
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryIndex < 0 {
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, errors.New("no suitable memory type for image")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, errors.Newf("image memory allocation failed with %d", res)
	}
	if res := vk.BindImageMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, errors.Newf("image memory bind failed with %d", res)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8g8b8a8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, errors.Newf("image view creation failed with %d", res)
	}

	return &VulkanImage{
		Handle: handle,
		Memory: memory,
		View:   view,
		Width:  width,
		Height: height,
	}, nil
}

type transitionMasks struct {
	srcAccess, dstAccess vk.AccessFlags
	srcStage, dstStage   vk.PipelineStageFlags
}

// layoutTransitionMasks picks the barrier scopes for a transition. A
// transfer-only queue family cannot name shader stages, so the shader-read
// transition recorded there ends at the bottom of the pipe; the concurrently
// shared image is then read by the graphics queue, which synchronizes on the
// upload fence before sampling.
func layoutTransitionMasks(oldLayout, newLayout vk.ImageLayout, onTransferQueue bool) transitionMasks {
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		return transitionMasks{
			dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		if onTransferQueue {
			return transitionMasks{
				srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
				srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
				dstStage:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			}
		}
		return transitionMasks{
			srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		}
	default:
		return transitionMasks{
			srcStage: vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			dstStage: vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		}
	}
}

// RecordTransition records a layout transition barrier into the command
// buffer. onTransferQueue must reflect the queue family the command buffer
// will be submitted to.
func (img *VulkanImage) RecordTransition(cb *VulkanCommandBuffer, oldLayout, newLayout vk.ImageLayout, onTransferQueue bool) {
	masks := layoutTransitionMasks(oldLayout, newLayout, onTransferQueue)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SrcAccessMask:       masks.srcAccess,
		DstAccessMask:       masks.dstAccess,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	vk.CmdPipelineBarrier(cb.Handle,
		masks.srcStage, masks.dstStage, 0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier})
}

// RecordCopyFromBuffer records a full-extent copy from the staging buffer
// region into the image. The image must be in TransferDstOptimal layout.
func (img *VulkanImage) RecordCopyFromBuffer(cb *VulkanCommandBuffer, buffer vk.Buffer, offset uint64) {
	region := vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(offset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb.Handle, buffer, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (img *VulkanImage) Destroy(context *VulkanContext) {
	if img.View != nil {
		vk.DestroyImageView(context.Device.LogicalDevice, img.View, context.Allocator)
		img.View = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, img.Memory, context.Allocator)
		img.Memory = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(context.Device.LogicalDevice, img.Handle, context.Allocator)
		img.Handle = nil
	}
}
