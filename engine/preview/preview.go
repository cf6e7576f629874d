// Package preview clears a desktop window to a color that tracks the headset session state,
// so the demo shows at a glance whether the session is idle, visible, focused or stopping.
package preview

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

var ErrNoSurface = errors.New("preview: window has no surface")

// Preview is a clear-only WebGPU surface.
type Preview interface {
	// Present clears the surface to the color of the given state and presents it.
	//
	// Parameters:
	//   - state: the current session state
	//
	// Returns:
	//   - error: error if the surface texture cannot be acquired or the pass cannot be submitted
	Present(state xr.SessionState) error

	// Resize reconfigures the surface. Non-positive sizes are ignored.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// Release frees the device, adapter, surface and instance.
	Release()
}

type preview struct {
	mu     sync.Mutex
	logger *zap.Logger

	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	format    wgpu.TextureFormat
	alphaMode wgpu.CompositeAlphaMode
	width     int
	height    int
}

var _ Preview = &preview{}

// NewPreview creates a WebGPU surface over the window's surface descriptor and configures it
// for FIFO presentation.
//
// Parameters:
//   - descriptor: the window surface descriptor
//   - width: the initial width in pixels
//   - height: the initial height in pixels
//   - logger: the logger (nil discards)
//
// Returns:
//   - Preview: the configured preview
//   - error: error if no adapter or device is available
func NewPreview(descriptor *wgpu.SurfaceDescriptor, width, height int, logger *zap.Logger) (Preview, error) {
	if descriptor == nil {
		return nil, ErrNoSurface
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runtime.LockOSThread()

	p := &preview{
		logger:   logger,
		instance: wgpu.CreateInstance(nil),
	}
	p.surface = p.instance.CreateSurface(descriptor)

	adapter, err := p.instance.RequestAdapter(&wgpu.RequestAdapterOptions{CompatibleSurface: p.surface})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	p.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "Preview Device"})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	p.device = device
	p.queue = device.GetQueue()

	capabilities := p.surface.GetCapabilities(adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		p.Release()
		return nil, ErrNoSurface
	}
	p.format = capabilities.Formats[0]
	p.alphaMode = capabilities.AlphaModes[0]
	p.Resize(width, height)
	return p, nil
}

func (p *preview) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.width, p.height = width, height
	p.surface.Configure(p.adapter, p.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      p.format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   p.alphaMode,
	})
}

func (p *preview) Present(state xr.SessionState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	surfaceTexture, err := p.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := p.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: StateColor(state),
		}},
	})
	pass.End()
	pass.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer commandBuffer.Release()

	p.queue.Submit(commandBuffer)
	p.surface.Present()
	return nil
}

func (p *preview) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue != nil {
		p.queue.Release()
		p.queue = nil
	}
	if p.device != nil {
		p.device.Release()
		p.device = nil
	}
	if p.adapter != nil {
		p.adapter.Release()
		p.adapter = nil
	}
	if p.surface != nil {
		p.surface.Release()
		p.surface = nil
	}
	if p.instance != nil {
		p.instance.Release()
		p.instance = nil
	}
}

// StateColor returns the clear color shown for a session state.
//
// Parameters:
//   - state: the session state
//
// Returns:
//   - wgpu.Color: the clear color
func StateColor(state xr.SessionState) wgpu.Color {
	switch state {
	case xr.SessionStateIdle, xr.SessionStateReady:
		return wgpu.Color{R: 0.2, G: 0.2, B: 0.2, A: 1}
	case xr.SessionStateSynchronized:
		return wgpu.Color{R: 0.1, G: 0.1, B: 0.4, A: 1}
	case xr.SessionStateVisible:
		return wgpu.Color{R: 0.4, G: 0.4, B: 0.1, A: 1}
	case xr.SessionStateFocused:
		return wgpu.Color{R: 0.1, G: 0.4, B: 0.1, A: 1}
	case xr.SessionStateStopping, xr.SessionStateLossPending, xr.SessionStateExiting:
		return wgpu.Color{R: 0.5, G: 0.1, B: 0.1, A: 1}
	default:
		return wgpu.Color{A: 1}
	}
}
