package vulkan

import (
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
	vk "github.com/goki/vulkan"
)

func toVkFormat(f gpu.Format) vk.Format {
	return vk.Format(f)
}

func toVkUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u&gpu.ImageUsageColorAttachment != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u&gpu.ImageUsageDepthStencilAttachment != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u&gpu.ImageUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if u&gpu.ImageUsageTransferSrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	return vk.ImageUsageFlags(flags)
}

func toVkAspect(a gpu.ImageAspect) vk.ImageAspectFlags {
	var flags vk.ImageAspectFlagBits
	if a&gpu.ImageAspectColor != 0 {
		flags |= vk.ImageAspectColorBit
	}
	if a&gpu.ImageAspectDepth != 0 {
		flags |= vk.ImageAspectDepthBit
	}
	return vk.ImageAspectFlags(flags)
}

func toVkSamples(count uint32) vk.SampleCountFlagBits {
	switch count {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	default:
		return vk.SampleCount1Bit
	}
}

func fromVkMemoryProperties(flags vk.MemoryPropertyFlags) gpu.MemoryPropertyFlags {
	var out gpu.MemoryPropertyFlags
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit) != 0 {
		out |= gpu.MemoryPropertyDeviceLocal
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		out |= gpu.MemoryPropertyHostVisible
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0 {
		out |= gpu.MemoryPropertyHostCoherent
	}
	return out
}

// viewType picks a 2D array view when more than one layer is exposed.
func viewType(layers uint32) vk.ImageViewType {
	if layers > 1 {
		return vk.ImageViewType2dArray
	}
	return vk.ImageViewType2d
}
