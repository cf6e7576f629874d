// Package gpu defines the graphics-device contract consumed by the headset core.
//
// The headset creates a multiview render pass,
// one shared depth image with its memory and view, and one render target per swapchain
// image. Everything else (pipelines, command recording, queue submission) belongs to the
// renderer that consumes these objects.
package gpu

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// ErrNoMemoryType is returned when no memory type satisfies both the resource's type bits and the required properties.
var ErrNoMemoryType = errors.New("no suitable memory type")

// Image, ImageView, Memory and RenderPass are opaque native handles owned by a Device implementation.
// Callers never inspect them; they are only passed back to the Device that produced them.
type (
	Image      any
	ImageView  any
	Memory     any
	RenderPass any
)

// Format is a native pixel format value as understood by both the device and the XR runtime.
// The values match the Vulkan enumeration so they can be compared against runtime-reported formats directly.
type Format int64

const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatB8G8R8A8Unorm Format = 44
	FormatR8G8B8A8Srgb  Format = 43
	FormatD32Sfloat     Format = 126
)

// MemoryPropertyFlags describes properties of a device memory type.
type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal  MemoryPropertyFlags = 1 << 0
	MemoryPropertyHostVisible  MemoryPropertyFlags = 1 << 1
	MemoryPropertyHostCoherent MemoryPropertyFlags = 1 << 2
)

// MemoryType is one entry of the device's memory type table.
type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

// MemoryRequirements reports what an image needs from device memory.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// ImageUsage is a bitmask of how an image will be used.
type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthStencilAttachment
	ImageUsageSampled
	ImageUsageTransferSrc
)

// ImageAspect selects which aspect of an image a view exposes.
type ImageAspect uint32

const (
	ImageAspectColor ImageAspect = 1 << iota
	ImageAspectDepth
)

// ImageDescriptor describes a 2D (optionally layered) image.
type ImageDescriptor struct {
	Label       string
	Extent      common.Extent2D
	ArrayLayers uint32
	Format      Format
	Usage       ImageUsage
	SampleCount uint32
}

// ImageViewDescriptor describes a 2D array view over an image.
type ImageViewDescriptor struct {
	Image       Image
	Format      Format
	Aspect      ImageAspect
	ArrayLayers uint32
}

// RenderPassDescriptor describes a single-subpass render pass with one color and one depth attachment.
// ViewMask and CorrelationMask enable multiview when non-zero: bit i renders into array layer i.
type RenderPassDescriptor struct {
	ColorFormat     Format
	DepthFormat     Format
	ViewMask        uint32
	CorrelationMask uint32
}

// RenderTargetDescriptor pairs one color image with the shared depth view for a single draw pass.
type RenderTargetDescriptor struct {
	Image       Image
	DepthView   ImageView
	Extent      common.Extent2D
	Format      Format
	RenderPass  RenderPass
	ArrayLayers uint32
}

// RenderTarget is a color image plus the shared depth view, bound to a render pass.
type RenderTarget interface {
	// Image returns the color image this target draws into.
	Image() Image

	// Extent returns the pixel size of the target.
	Extent() common.Extent2D

	// Release destroys the views and framebuffer owned by the target. The color image itself is not owned.
	Release()
}

// Binding carries the native handles an XR runtime needs to bind a session to this device.
type Binding struct {
	Instance         any
	PhysicalDevice   any
	Device           any
	QueueFamilyIndex uint32
	QueueIndex       uint32
}

// Device is the graphics device contract. Implementations are supplied by the bootstrap collaborator
// and are only ever called from the frame thread.
type Device interface {
	// Binding returns the native handles used to create an XR session.
	Binding() Binding

	// CreateRenderPass creates a render pass matching the descriptor.
	CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error)

	// DestroyRenderPass destroys a render pass created by this device.
	DestroyRenderPass(pass RenderPass)

	// CreateImage creates an image without backing memory.
	CreateImage(desc ImageDescriptor) (Image, error)

	// DestroyImage destroys an image created by this device.
	DestroyImage(image Image)

	// ImageMemoryRequirements queries the memory requirements of an image.
	ImageMemoryRequirements(image Image) MemoryRequirements

	// MemoryTypes returns the device memory type table in index order.
	MemoryTypes() []MemoryType

	// AllocateMemory allocates size bytes from the given memory type.
	AllocateMemory(size uint64, memoryTypeIndex uint32) (Memory, error)

	// FreeMemory frees memory allocated by this device.
	FreeMemory(memory Memory)

	// BindImageMemory binds memory to an image at offset zero.
	BindImageMemory(image Image, memory Memory) error

	// CreateImageView creates a view over an image.
	CreateImageView(desc ImageViewDescriptor) (ImageView, error)

	// DestroyImageView destroys a view created by this device.
	DestroyImageView(view ImageView)

	// CreateRenderTarget creates a render target over a color image.
	CreateRenderTarget(desc RenderTargetDescriptor) (RenderTarget, error)
}

// FindMemoryType returns the index of the first memory type whose bit is set in typeBits
// and whose property flags include every flag in required.
//
// Parameters:
//   - typeBits: the MemoryTypeBits of a resource's memory requirements
//   - types: the device memory type table
//   - required: the property flags the memory type must carry
//
// Returns:
//   - uint32: the memory type index
//   - error: ErrNoMemoryType if no entry qualifies
func FindMemoryType(typeBits uint32, types []MemoryType, required MemoryPropertyFlags) (uint32, error) {
	for i := range types {
		if i >= 32 {
			break
		}
		if typeBits&(1<<uint(i)) != 0 && types[i].PropertyFlags&required == required {
			return uint32(i), nil
		}
	}
	return 0, ErrNoMemoryType
}
