// Package vulkan implements gpu.Device on a native Vulkan 1.1 device with multiview enabled.
package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
	vk "github.com/goki/vulkan"
	"go.uber.org/zap"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var (
	ErrNoPhysicalDevice = errors.New("vulkan: no device with a graphics queue")
	ErrHandleType       = errors.New("vulkan: handle was not created by this device")

	loaderOnce sync.Once
	loaderErr  error
)

// Device is a gpu.Device backed by Vulkan. Close destroys the logical device and instance;
// every object created through the device must be destroyed first.
type Device interface {
	gpu.Device

	// Close destroys the logical device and the instance.
	Close()
}

type device struct {
	logger     *zap.Logger
	appName    string
	validation bool

	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queue          vk.Queue
	queueFamily    uint32
	memoryTypes    []gpu.MemoryType
}

var _ Device = &device{}

type renderTarget struct {
	device      vk.Device
	image       vk.Image
	colorView   vk.ImageView
	framebuffer vk.Framebuffer
	extent      common.Extent2D
}

// NewDevice loads the Vulkan loader, creates an instance and opens the first physical device
// that exposes a graphics queue.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - Device: the opened device
//   - error: error if Vulkan is unavailable or no device qualifies
func NewDevice(options ...DeviceBuilderOption) (Device, error) {
	d := &device{
		logger:  zap.NewNop(),
		appName: "oxy-xr",
	}
	for _, opt := range options {
		opt(d)
	}

	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("failed to load Vulkan library: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("failed to initialize Vulkan loader: %w", err)
		}
	})
	if loaderErr != nil {
		return nil, loaderErr
	}

	if err := d.createInstance(); err != nil {
		return nil, err
	}
	if err := d.selectPhysicalDevice(); err != nil {
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}
	if err := d.createDevice(); err != nil {
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}

	d.logger.Info("vulkan device opened",
		zap.Uint32("queue_family", d.queueFamily),
		zap.Int("memory_types", len(d.memoryTypes)),
		zap.Bool("validation", d.validation),
	)
	return d, nil
}

func (d *device) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   cstr(d.appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        cstr("oxy-xr"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	if d.validation {
		createInfo.EnabledLayerCount = 1
		createInfo.PpEnabledLayerNames = []string{cstr(validationLayer)}
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %d", res)
	}
	vk.InitInstance(instance)
	d.instance = instance
	return nil
}

func (d *device) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(d.instance, &count, nil)
	if count == 0 {
		return ErrNoPhysicalDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	for _, pd := range devices {
		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				d.physicalDevice = pd
				d.queueFamily = uint32(i)
				d.memoryTypes = memoryTypes(pd)
				return nil
			}
		}
	}
	return ErrNoPhysicalDevice
}

func (d *device) createDevice() error {
	multiview := vk.PhysicalDeviceMultiviewFeatures{
		SType:     vk.StructureTypePhysicalDeviceMultiviewFeatures,
		Multiview: vk.True,
	}
	multiviewRef, _ := multiview.PassRef()

	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		PNext:                unsafe.Pointer(multiviewRef),
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}

	var dev vk.Device
	if res := vk.CreateDevice(d.physicalDevice, &createInfo, nil, &dev); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %d", res)
	}
	d.device = dev

	var queue vk.Queue
	vk.GetDeviceQueue(dev, d.queueFamily, 0, &queue)
	d.queue = queue
	return nil
}

func memoryTypes(pd vk.PhysicalDevice) []gpu.MemoryType {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &props)
	props.Deref()

	types := make([]gpu.MemoryType, 0, props.MemoryTypeCount)
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		props.MemoryTypes[i].Deref()
		types = append(types, gpu.MemoryType{
			PropertyFlags: fromVkMemoryProperties(props.MemoryTypes[i].PropertyFlags),
			HeapIndex:     props.MemoryTypes[i].HeapIndex,
		})
	}
	return types
}

func (d *device) Binding() gpu.Binding {
	return gpu.Binding{
		Instance:         d.instance,
		PhysicalDevice:   d.physicalDevice,
		Device:           d.device,
		QueueFamilyIndex: d.queueFamily,
	}
}

func (d *device) CreateRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	attachments := []vk.AttachmentDescription{
		{
			Format:         toVkFormat(desc.ColorFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		},
		{
			Format:         toVkFormat(desc.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	depthRef := vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{
			{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal},
		},
		PDepthStencilAttachment: &depthRef,
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	if desc.ViewMask != 0 {
		multiview := vk.RenderPassMultiviewCreateInfo{
			SType:                vk.StructureTypeRenderPassMultiviewCreateInfo,
			SubpassCount:         1,
			PViewMasks:           []uint32{desc.ViewMask},
			CorrelationMaskCount: 1,
			PCorrelationMasks:    []uint32{desc.CorrelationMask},
		}
		multiviewRef, _ := multiview.PassRef()
		createInfo.PNext = unsafe.Pointer(multiviewRef)
	}

	var pass vk.RenderPass
	if res := vk.CreateRenderPass(d.device, &createInfo, nil, &pass); res != vk.Success {
		return nil, fmt.Errorf("vkCreateRenderPass failed: %d", res)
	}
	return pass, nil
}

func (d *device) DestroyRenderPass(pass gpu.RenderPass) {
	if p, ok := pass.(vk.RenderPass); ok {
		vk.DestroyRenderPass(d.device, p, nil)
	}
}

func (d *device) CreateImage(desc gpu.ImageDescriptor) (gpu.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    toVkFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   max(desc.ArrayLayers, 1),
		Samples:       toVkSamples(desc.SampleCount),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toVkUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if res := vk.CreateImage(d.device, &createInfo, nil, &image); res != vk.Success {
		return nil, fmt.Errorf("vkCreateImage (%s) failed: %d", desc.Label, res)
	}
	return image, nil
}

func (d *device) DestroyImage(image gpu.Image) {
	if i, ok := image.(vk.Image); ok {
		vk.DestroyImage(d.device, i, nil)
	}
}

func (d *device) ImageMemoryRequirements(image gpu.Image) gpu.MemoryRequirements {
	i, ok := image.(vk.Image)
	if !ok {
		return gpu.MemoryRequirements{}
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, i, &reqs)
	reqs.Deref()
	return gpu.MemoryRequirements{
		Size:           uint64(reqs.Size),
		Alignment:      uint64(reqs.Alignment),
		MemoryTypeBits: reqs.MemoryTypeBits,
	}
}

func (d *device) MemoryTypes() []gpu.MemoryType {
	return append([]gpu.MemoryType(nil), d.memoryTypes...)
}

func (d *device) AllocateMemory(size uint64, memoryTypeIndex uint32) (gpu.Memory, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryTypeIndex,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &memory); res != vk.Success {
		return nil, fmt.Errorf("vkAllocateMemory failed: %d", res)
	}
	return memory, nil
}

func (d *device) FreeMemory(memory gpu.Memory) {
	if m, ok := memory.(vk.DeviceMemory); ok {
		vk.FreeMemory(d.device, m, nil)
	}
}

func (d *device) BindImageMemory(image gpu.Image, memory gpu.Memory) error {
	i, ok := image.(vk.Image)
	if !ok {
		return ErrHandleType
	}
	m, ok := memory.(vk.DeviceMemory)
	if !ok {
		return ErrHandleType
	}
	if res := vk.BindImageMemory(d.device, i, m, 0); res != vk.Success {
		return fmt.Errorf("vkBindImageMemory failed: %d", res)
	}
	return nil
}

func (d *device) CreateImageView(desc gpu.ImageViewDescriptor) (gpu.ImageView, error) {
	image, ok := desc.Image.(vk.Image)
	if !ok {
		return nil, ErrHandleType
	}
	view, err := d.createView(image, desc.Format, desc.Aspect, max(desc.ArrayLayers, 1))
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (d *device) createView(image vk.Image, format gpu.Format, aspect gpu.ImageAspect, layers uint32) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType(layers),
		Format:   toVkFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: toVkAspect(aspect),
			LevelCount: 1,
			LayerCount: layers,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.device, &createInfo, nil, &view); res != vk.Success {
		return view, fmt.Errorf("vkCreateImageView failed: %d", res)
	}
	return view, nil
}

func (d *device) DestroyImageView(view gpu.ImageView) {
	if v, ok := view.(vk.ImageView); ok {
		vk.DestroyImageView(d.device, v, nil)
	}
}

func (d *device) CreateRenderTarget(desc gpu.RenderTargetDescriptor) (gpu.RenderTarget, error) {
	image, ok := desc.Image.(vk.Image)
	if !ok {
		return nil, ErrHandleType
	}
	depthView, ok := desc.DepthView.(vk.ImageView)
	if !ok {
		return nil, ErrHandleType
	}
	pass, ok := desc.RenderPass.(vk.RenderPass)
	if !ok {
		return nil, ErrHandleType
	}

	colorView, err := d.createView(image, desc.Format, gpu.ImageAspectColor, max(desc.ArrayLayers, 1))
	if err != nil {
		return nil, err
	}

	attachments := []vk.ImageView{colorView, depthView}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(d.device, &createInfo, nil, &framebuffer); res != vk.Success {
		vk.DestroyImageView(d.device, colorView, nil)
		return nil, fmt.Errorf("vkCreateFramebuffer failed: %d", res)
	}

	return &renderTarget{
		device:      d.device,
		image:       image,
		colorView:   colorView,
		framebuffer: framebuffer,
		extent:      desc.Extent,
	}, nil
}

func (d *device) Close() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

func (t *renderTarget) Image() gpu.Image        { return t.image }
func (t *renderTarget) Extent() common.Extent2D { return t.extent }

func (t *renderTarget) Release() {
	vk.DestroyFramebuffer(t.device, t.framebuffer, nil)
	vk.DestroyImageView(t.device, t.colorView, nil)
}

// cstr returns s null-terminated, as the loader expects.
func cstr(s string) string {
	return s + "\x00"
}
