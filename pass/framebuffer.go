package pass

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/resource"
)

// Framebuffer binds one texture view to every slot of a RenderPass
type Framebuffer struct {
	native     backend.Framebuffer
	pass       *RenderPass
	resolution core1_0.Extent2D
	layers     int
	views      []*resource.TextureView
}

// CreateFramebuffer binds views to pass. views holds the color and resolve slots in
// slot order; depthView fills the depth/stencil slot and must be nil when the pass has
// none. Every view must match its slot's format and sample count, cover exactly
// resolution at its base mip level, and have exactly layers layers. Any mismatch panics.
func (b *Builder) CreateFramebuffer(pass *RenderPass, resolution core1_0.Extent2D, layers int, views []*resource.TextureView, depthView *resource.TextureView) (*Framebuffer, error) {
	limits := b.backend.Capabilities().Limits
	if resolution.Width < 1 || resolution.Height < 1 || resolution.Width > limits.MaxFramebufferWidth || resolution.Height > limits.MaxFramebufferHeight {
		gpuerr.Precondition("framebuffer resolution %dx%d is outside [1x1, %dx%d]",
			resolution.Width, resolution.Height, limits.MaxFramebufferWidth, limits.MaxFramebufferHeight)
	}
	if layers < 1 || layers > limits.MaxFramebufferLayers {
		gpuerr.Precondition("framebuffer layer count %d is outside [1, %d]", layers, limits.MaxFramebufferLayers)
	}

	colorSlots := len(pass.slots)
	if pass.depth != nil {
		colorSlots--
	}
	if len(views) != colorSlots {
		gpuerr.Precondition("render pass has %d color and resolve slots, but %d views were given", colorSlots, len(views))
	}
	if (depthView != nil) != (pass.depth != nil) {
		gpuerr.Precondition("depth/stencil view presence (%t) does not match the render pass (%t)", depthView != nil, pass.depth != nil)
	}

	bound := make([]*resource.TextureView, 0, len(pass.slots))
	bound = append(bound, views...)
	if depthView != nil {
		bound = append(bound, depthView)
	}

	natives := make([]backend.ImageView, len(bound))
	for i, view := range bound {
		slot := pass.slots[i]
		if view == nil {
			gpuerr.Precondition("slot %d has no view", i)
		}
		if view.Format() != slot.Format {
			gpuerr.Precondition("slot %d expects format %v, but the view has %v", i, slot.Format, view.Format())
		}
		if view.Samples() != slot.Samples {
			gpuerr.Precondition("slot %d expects %d samples, but the view has %d", i, slot.Samples, view.Samples())
		}
		if extent := view.Extent(); extent != resolution {
			gpuerr.Precondition("slot %d view is %dx%d, but the framebuffer is %dx%d", i, extent.Width, extent.Height, resolution.Width, resolution.Height)
		}
		if view.Layers().Count != layers {
			gpuerr.Precondition("slot %d view has %d layers, but the framebuffer has %d", i, view.Layers().Count, layers)
		}
		natives[i] = view.Native()
	}

	native, err := b.backend.CreateFramebuffer(backend.FramebufferInfo{
		RenderPass: pass.native,
		Views:      natives,
		Width:      resolution.Width,
		Height:     resolution.Height,
		Layers:     layers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create framebuffer")
	}

	b.logger.Debug("Builder::CreateFramebuffer",
		slog.Int("Width", resolution.Width),
		slog.Int("Height", resolution.Height),
		slog.Int("Layers", layers),
		slog.Int("Views", len(bound)),
	)

	return &Framebuffer{
		native:     native,
		pass:       pass,
		resolution: resolution,
		layers:     layers,
		views:      bound,
	}, nil
}

func (f *Framebuffer) Native() backend.Framebuffer { return f.native }

func (f *Framebuffer) RenderPass() *RenderPass { return f.pass }

func (f *Framebuffer) Resolution() core1_0.Extent2D { return f.resolution }

func (f *Framebuffer) Layers() int { return f.layers }

// Views returns the bound views in slot order
func (f *Framebuffer) Views() []*resource.TextureView {
	return append([]*resource.TextureView(nil), f.views...)
}

// Destroy releases the native framebuffer. The views are left alone.
func (f *Framebuffer) Destroy() {
	f.native.Destroy()
}
