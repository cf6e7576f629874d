package vulkan

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestFormatValuesMatchVulkan(t *testing.T) {
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, toVkFormat(gpu.FormatR8G8B8A8Unorm))
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, toVkFormat(gpu.FormatB8G8R8A8Unorm))
	assert.Equal(t, vk.FormatR8g8b8a8Srgb, toVkFormat(gpu.FormatR8G8B8A8Srgb))
	assert.Equal(t, vk.FormatD32Sfloat, toVkFormat(gpu.FormatD32Sfloat))
}

func TestToVkUsage(t *testing.T) {
	got := toVkUsage(gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageSampledBit), got)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit), toVkUsage(gpu.ImageUsageDepthStencilAttachment))
	assert.Zero(t, toVkUsage(0))
}

func TestToVkAspect(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), toVkAspect(gpu.ImageAspectColor))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), toVkAspect(gpu.ImageAspectDepth))
}

func TestToVkSamples(t *testing.T) {
	assert.Equal(t, vk.SampleCount1Bit, toVkSamples(0))
	assert.Equal(t, vk.SampleCount1Bit, toVkSamples(1))
	assert.Equal(t, vk.SampleCount4Bit, toVkSamples(4))
	assert.Equal(t, vk.SampleCount1Bit, toVkSamples(3))
}

func TestFromVkMemoryProperties(t *testing.T) {
	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	assert.Equal(t, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent, fromVkMemoryProperties(flags))
	assert.Equal(t, gpu.MemoryPropertyDeviceLocal, fromVkMemoryProperties(vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)))
}

func TestViewType(t *testing.T) {
	assert.Equal(t, vk.ImageViewType2d, viewType(1))
	assert.Equal(t, vk.ImageViewType2dArray, viewType(2))
}
