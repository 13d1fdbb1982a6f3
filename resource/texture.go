package resource

import (
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/access"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/memory"
)

// Texture is a native image bound to a range of a Heap, or a swapchain image when it
// has no heap
type Texture struct {
	logger     *slog.Logger
	backend    backend.Backend
	native     backend.Image
	heap       *memory.Heap
	allocation memory.Allocation
	state      TextureState
	usage      core1_0.ImageUsageFlags
	aspects    core1_0.ImageAspectFlags

	liveViews   atomic.Int32
	initialized atomic.Bool
	destroyed   atomic.Bool
}

func newTexture(logger *slog.Logger, b backend.Backend, native backend.Image, heap *memory.Heap, alloc memory.Allocation, state TextureState, usage core1_0.ImageUsageFlags) *Texture {
	return &Texture{
		logger:     logger,
		backend:    b,
		native:     native,
		heap:       heap,
		allocation: alloc,
		state:      state,
		usage:      usage,
		aspects:    access.AspectMask(state.Format),
	}
}

// Native returns the backend image object
func (t *Texture) Native() backend.Image { return t.native }

// Heap is nil for presentable textures
func (t *Texture) Heap() *memory.Heap { return t.heap }

// Allocation is the texture's range within its heap. It is zero for presentable textures.
func (t *Texture) Allocation() memory.Allocation { return t.allocation }

// State is the description the texture was created from, with defaults filled in
func (t *Texture) State() TextureState { return t.state }

// Format is the texture's pixel format
func (t *Texture) Format() core1_0.Format { return t.state.Format }

// Samples converts the texture's sample count to native flags
func (t *Texture) Samples() core1_0.SampleCountFlags {
	return core1_0.SampleCountFlags(t.state.Samples)
}

// NativeUsage is the usage the native image was created with
func (t *Texture) NativeUsage() core1_0.ImageUsageFlags { return t.usage }

// Aspects is the aspect mask derived from the format
func (t *Texture) Aspects() core1_0.ImageAspectFlags { return t.aspects }

// IsPresentable reports whether the texture wraps a swapchain image
func (t *Texture) IsPresentable() bool { return t.heap == nil }

// FullRange covers every aspect, mip level and layer of the texture
func (t *Texture) FullRange() core1_0.ImageSubresourceRange {
	return core1_0.ImageSubresourceRange{
		AspectMask:     t.aspects,
		BaseMipLevel:   0,
		LevelCount:     t.state.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     t.state.ArrayLayers,
	}
}

// CheckRange panics if r names aspects, mip levels or layers the texture does not have
func (t *Texture) CheckRange(r core1_0.ImageSubresourceRange) {
	if r.AspectMask == 0 || r.AspectMask&^t.aspects != 0 {
		gpuerr.Precondition("aspects %s are not a subset of the texture's %s", r.AspectMask, t.aspects)
	}
	if r.BaseMipLevel < 0 || r.LevelCount < 1 || r.BaseMipLevel+r.LevelCount > t.state.MipLevels {
		gpuerr.Precondition("mip levels [%d,%d) are outside a texture with %d levels", r.BaseMipLevel, r.BaseMipLevel+r.LevelCount, t.state.MipLevels)
	}
	if r.BaseArrayLayer < 0 || r.LayerCount < 1 || r.BaseArrayLayer+r.LayerCount > t.state.ArrayLayers {
		gpuerr.Precondition("layers [%d,%d) are outside a texture with %d layers", r.BaseArrayLayer, r.BaseArrayLayer+r.LayerCount, t.state.ArrayLayers)
	}
}

// MarkInitialized records that the texture's first barrier has been emitted. It returns
// false if that already happened.
func (t *Texture) MarkInitialized() bool {
	return t.initialized.CompareAndSwap(false, true)
}

// LiveViews returns the number of views not yet destroyed
func (t *Texture) LiveViews() int {
	return int(t.liveViews.Load())
}

// View creates a view over mips and layers of the texture. A Count of 0 in either
// range extends it to the end. format may be FormatUndefined to use the texture's
// format; any other format requires UsageMultipleViews.
func (t *Texture) View(typ TextureType, format core1_0.Format, mips Range, layers Range) (*TextureView, error) {
	if t.destroyed.Load() {
		gpuerr.Precondition("cannot create a view of a destroyed texture")
	}
	if format == core1_0.FormatUndefined {
		format = t.state.Format
	}
	if format != t.state.Format && t.state.Usage&UsageMultipleViews == 0 {
		gpuerr.Precondition("a view format of %v requires a texture created with MultipleViews", format)
	}
	if mips.Count == 0 {
		mips.Count = t.state.MipLevels - mips.Base
	}
	if layers.Count == 0 {
		layers.Count = t.state.ArrayLayers - layers.Base
	}

	subresources := core1_0.ImageSubresourceRange{
		AspectMask:     t.aspects,
		BaseMipLevel:   mips.Base,
		LevelCount:     mips.Count,
		BaseArrayLayer: layers.Base,
		LayerCount:     layers.Count,
	}
	t.CheckRange(subresources)

	native, err := t.backend.CreateImageView(t.native, backend.ImageViewInfo{
		Type:   typ.viewType(),
		Format: format,
		Range:  subresources,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create image view")
	}

	t.liveViews.Add(1)
	return &TextureView{
		parent: t,
		native: native,
		typ:    typ,
		format: format,
		mips:   mips,
		layers: layers,
	}, nil
}

// Destroy releases the native image and then returns its range to the heap. Every view
// must have been destroyed first. Presentable textures only drop their wrapper.
func (t *Texture) Destroy() error {
	if views := t.liveViews.Load(); views > 0 {
		gpuerr.Precondition("texture destroyed with %d live views", views)
	}
	if !t.destroyed.CompareAndSwap(false, true) {
		gpuerr.Precondition("texture destroyed twice")
	}

	if t.heap == nil {
		return nil
	}

	t.native.Destroy()
	err := t.heap.Deallocate(t.allocation)
	if err != nil {
		return errors.Wrap(err, "failed to return texture memory")
	}

	t.logger.Debug("Texture::Destroy",
		slog.Int("Width", t.state.Width),
		slog.Int("Height", t.state.Height),
		slog.Uint64("Heap", t.heap.ID()),
	)
	return nil
}

// TextureView is a view over a sub-range of a Texture. The texture must outlive it.
type TextureView struct {
	parent    *Texture
	native    backend.ImageView
	typ       TextureType
	format    core1_0.Format
	mips      Range
	layers    Range
	destroyed bool
}

// Texture is the view's parent
func (v *TextureView) Texture() *Texture { return v.parent }

func (v *TextureView) Native() backend.ImageView { return v.native }

func (v *TextureView) Type() TextureType { return v.typ }

func (v *TextureView) Format() core1_0.Format { return v.format }

func (v *TextureView) Samples() core1_0.SampleCountFlags { return v.parent.Samples() }

func (v *TextureView) Mips() Range { return v.mips }

func (v *TextureView) Layers() Range { return v.layers }

// Extent is the size of the view's base mip level
func (v *TextureView) Extent() core1_0.Extent2D {
	return core1_0.Extent2D{
		Width:  max(v.parent.state.Width>>v.mips.Base, 1),
		Height: max(v.parent.state.Height>>v.mips.Base, 1),
	}
}

// Destroy destroys the native view and releases the parent's view count
func (v *TextureView) Destroy() {
	if v.destroyed {
		gpuerr.Precondition("texture view destroyed twice")
	}
	v.destroyed = true

	v.native.Destroy()
	v.parent.liveViews.Add(-1)
}
