package xr

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
)

const (
	// ColorFormat is the swapchain color format the headset requires from the runtime.
	ColorFormat = gpu.FormatR8G8B8A8Unorm
	// DepthFormat is the format of the shared depth image.
	DepthFormat = gpu.FormatD32Sfloat

	// stereoLayers is the layer count of the depth image and the multiview render pass.
	stereoLayers = 2
	// multiviewMask renders into both layers in one pass; the two views are correlated.
	multiviewMask = 0b11
)

// swapchainSet is the runtime swapchain, the shared depth buffer and one render target per swapchain image.
type swapchainSet struct {
	swapchain   Swapchain
	extent      common.Extent2D
	depthImage  gpu.Image
	depthMemory gpu.Memory
	depthView   gpu.ImageView
	targets     []gpu.RenderTarget
}

// createRenderPass creates the multiview render pass shared by every render target.
func createRenderPass(device gpu.Device, stack *releaseStack) (gpu.RenderPass, error) {
	pass, err := device.CreateRenderPass(gpu.RenderPassDescriptor{
		ColorFormat:     ColorFormat,
		DepthFormat:     DepthFormat,
		ViewMask:        multiviewMask,
		CorrelationMask: multiviewMask,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render pass: %w", err)
	}
	stack.pushFunc("render pass", func() { device.DestroyRenderPass(pass) })
	return pass, nil
}

// createSwapchainSet verifies the color format, allocates the depth buffer, creates the swapchain
// and wraps each of its images in a render target. Every acquired resource is pushed onto stack.
//
// Parameters:
//   - runtime: the XR runtime
//   - device: the graphics device
//   - session: the session the swapchain belongs to
//   - pass: the multiview render pass
//   - view: the recommended parameters of the first view; all views share them
//   - eyeCount: number of views, one swapchain array layer each
//   - stack: release stack receiving every created resource
//
// Returns:
//   - *swapchainSet: the created resources
//   - error: ErrFormatUnsupported, gpu.ErrNoMemoryType or a wrapped runtime or device error
func createSwapchainSet(runtime Runtime, device gpu.Device, session Session, pass gpu.RenderPass, view ViewConfigurationView, eyeCount uint32, stack *releaseStack) (*swapchainSet, error) {
	formats, err := runtime.EnumerateSwapchainFormats(session)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate swapchain formats: %w", err)
	}
	if !slices.Contains(formats, ColorFormat) {
		return nil, fmt.Errorf("%w: want format %d, runtime offers %v", ErrFormatUnsupported, ColorFormat, formats)
	}

	s := &swapchainSet{extent: view.RecommendedExtent}
	if err := s.createDepth(device, view, stack); err != nil {
		return nil, err
	}

	swapchain, err := runtime.CreateSwapchain(session, SwapchainCreateInfo{
		Usage:       gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled,
		Format:      ColorFormat,
		SampleCount: view.RecommendedSampleCount,
		Extent:      view.RecommendedExtent,
		FaceCount:   1,
		ArraySize:   eyeCount,
		MipCount:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create swapchain: %w", err)
	}
	s.swapchain = swapchain
	stack.push("swapchain", func() error { return runtime.DestroySwapchain(swapchain) })

	images, err := runtime.EnumerateSwapchainImages(swapchain)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate swapchain images: %w", err)
	}

	s.targets = make([]gpu.RenderTarget, 0, len(images))
	for i, image := range images {
		target, err := device.CreateRenderTarget(gpu.RenderTargetDescriptor{
			Image:       image,
			DepthView:   s.depthView,
			Extent:      s.extent,
			Format:      ColorFormat,
			RenderPass:  pass,
			ArrayLayers: stereoLayers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create render target %d: %w", i, err)
		}
		s.targets = append(s.targets, target)
		stack.pushFunc(fmt.Sprintf("render target %d", i), target.Release)
	}
	return s, nil
}

func (s *swapchainSet) createDepth(device gpu.Device, view ViewConfigurationView, stack *releaseStack) error {
	image, err := device.CreateImage(gpu.ImageDescriptor{
		Label:       "xr depth",
		Extent:      view.RecommendedExtent,
		ArrayLayers: stereoLayers,
		Format:      DepthFormat,
		Usage:       gpu.ImageUsageDepthStencilAttachment,
		SampleCount: view.RecommendedSampleCount,
	})
	if err != nil {
		return fmt.Errorf("failed to create depth image: %w", err)
	}
	s.depthImage = image
	stack.pushFunc("depth image", func() { device.DestroyImage(image) })

	reqs := device.ImageMemoryRequirements(image)
	typeIndex, err := gpu.FindMemoryType(reqs.MemoryTypeBits, device.MemoryTypes(), gpu.MemoryPropertyDeviceLocal)
	if err != nil {
		return fmt.Errorf("failed to select depth memory: %w", err)
	}

	memory, err := device.AllocateMemory(reqs.Size, typeIndex)
	if err != nil {
		return fmt.Errorf("failed to allocate depth memory: %w", err)
	}
	s.depthMemory = memory
	stack.pushFunc("depth memory", func() { device.FreeMemory(memory) })

	if err := device.BindImageMemory(image, memory); err != nil {
		return fmt.Errorf("failed to bind depth memory: %w", err)
	}

	depthView, err := device.CreateImageView(gpu.ImageViewDescriptor{
		Image:       image,
		Format:      DepthFormat,
		Aspect:      gpu.ImageAspectDepth,
		ArrayLayers: stereoLayers,
	})
	if err != nil {
		return fmt.Errorf("failed to create depth view: %w", err)
	}
	s.depthView = depthView
	stack.pushFunc("depth view", func() { device.DestroyImageView(depthView) })
	return nil
}
