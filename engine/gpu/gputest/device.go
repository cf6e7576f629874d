// Package gputest provides an in-memory gpu.Device that records every call, for tests.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("gputest: injected failure")

// Handle is the concrete type behind every opaque handle the fake hands out.
type Handle struct {
	Kind string
	ID   int
}

// Target is the fake render target.
type Target struct {
	Desc     gpu.RenderTargetDescriptor
	Released bool
}

func (t *Target) Image() gpu.Image        { return t.Desc.Image }
func (t *Target) Extent() common.Extent2D { return t.Desc.Extent }
func (t *Target) Release()                { t.Released = true }

// Device is a recording gpu.Device. The zero value is not usable; call NewDevice.
type Device struct {
	mu sync.Mutex

	// Types is returned from MemoryTypes.
	Types []gpu.MemoryType
	// TypeBits is reported as the MemoryTypeBits of every image.
	TypeBits uint32
	// FailOn names calls that return ErrInjected (e.g. "CreateRenderPass", "CreateRenderTarget#2").
	FailOn map[string]bool

	calls   []string
	nextID  int
	targets []*Target
	images  []gpu.ImageDescriptor
	views   []gpu.ImageViewDescriptor
	passes  []gpu.RenderPassDescriptor
	live    map[Handle]bool
}

var _ gpu.Device = &Device{}

// NewDevice creates a fake device with one host-visible and one device-local memory type.
//
// Returns:
//   - *Device: the fake device
func NewDevice() *Device {
	return &Device{
		Types: []gpu.MemoryType{
			{PropertyFlags: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent},
			{PropertyFlags: gpu.MemoryPropertyDeviceLocal},
		},
		TypeBits: 0b11,
		FailOn:   map[string]bool{},
		live:     map[Handle]bool{},
	}
}

// Calls returns the ordered list of recorded calls.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Count returns how many times the named call was recorded.
func (d *Device) Count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Live returns the number of handles created and not yet destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Targets returns every render target created so far.
func (d *Device) Targets() []*Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Target(nil), d.targets...)
}

// Images returns the descriptors of every image created so far.
func (d *Device) Images() []gpu.ImageDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.ImageDescriptor(nil), d.images...)
}

// Views returns the descriptors of every image view created so far.
func (d *Device) Views() []gpu.ImageViewDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.ImageViewDescriptor(nil), d.views...)
}

// RenderPasses returns the descriptors of every render pass created so far.
func (d *Device) RenderPasses() []gpu.RenderPassDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.RenderPassDescriptor(nil), d.passes...)
}

// record appends a call and reports whether it should fail. Caller must hold the mutex.
func (d *Device) record(name string) bool {
	d.calls = append(d.calls, name)
	n := 0
	for _, c := range d.calls {
		if c == name {
			n++
		}
	}
	return d.FailOn[name] || d.FailOn[fmt.Sprintf("%s#%d", name, n)]
}

func (d *Device) newHandle(kind string) Handle {
	d.nextID++
	h := Handle{Kind: kind, ID: d.nextID}
	d.live[h] = true
	return h
}

func (d *Device) release(name string, h any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, name)
	if handle, ok := h.(Handle); ok {
		delete(d.live, handle)
	}
}

func (d *Device) Binding() gpu.Binding {
	return gpu.Binding{Instance: "instance", PhysicalDevice: "physical", Device: "device"}
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.record("CreateRenderPass") {
		return nil, ErrInjected
	}
	d.passes = append(d.passes, desc)
	return d.newHandle("renderpass"), nil
}

func (d *Device) DestroyRenderPass(pass gpu.RenderPass) { d.release("DestroyRenderPass", pass) }

func (d *Device) CreateImage(desc gpu.ImageDescriptor) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.record("CreateImage") {
		return nil, ErrInjected
	}
	d.images = append(d.images, desc)
	return d.newHandle("image"), nil
}

func (d *Device) DestroyImage(image gpu.Image) { d.release("DestroyImage", image) }

func (d *Device) ImageMemoryRequirements(image gpu.Image) gpu.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "ImageMemoryRequirements")
	return gpu.MemoryRequirements{Size: 1 << 20, Alignment: 256, MemoryTypeBits: d.TypeBits}
}

func (d *Device) MemoryTypes() []gpu.MemoryType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.MemoryType(nil), d.Types...)
}

func (d *Device) AllocateMemory(size uint64, memoryTypeIndex uint32) (gpu.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.record("AllocateMemory") {
		return nil, ErrInjected
	}
	return d.newHandle(fmt.Sprintf("memory:%d", memoryTypeIndex)), nil
}

func (d *Device) FreeMemory(memory gpu.Memory) { d.release("FreeMemory", memory) }

func (d *Device) BindImageMemory(image gpu.Image, memory gpu.Memory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.record("BindImageMemory") {
		return ErrInjected
	}
	return nil
}

func (d *Device) CreateImageView(desc gpu.ImageViewDescriptor) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.record("CreateImageView") {
		return nil, ErrInjected
	}
	d.views = append(d.views, desc)
	return d.newHandle("view"), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) { d.release("DestroyImageView", view) }

func (d *Device) CreateRenderTarget(desc gpu.RenderTargetDescriptor) (gpu.RenderTarget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.record("CreateRenderTarget") {
		return nil, ErrInjected
	}
	t := &Target{Desc: desc}
	d.targets = append(d.targets, t)
	return t, nil
}
