// Package resource creates buffers and textures whose memory is sub-allocated from a
// memory.Heap, and the lightweight views over them.
package resource

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/access"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/memory"
)

// Factory binds native buffers and images to heap memory
type Factory struct {
	logger  *slog.Logger
	backend backend.Backend
}

// NewFactory creates a Factory that builds resources through b and logs to logger
func NewFactory(logger *slog.Logger, b backend.Backend) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger, backend: b}
}

// unbound is the part of backend.Buffer and backend.Image that binding needs
type unbound interface {
	MemoryRequirements() core1_0.MemoryRequirements
	BindMemory(memory backend.Memory, offset int) error
	Destroy()
}

// bind sub-allocates a range of heap for native and binds it there. On failure the
// native object has been destroyed and nothing is left allocated.
func (f *Factory) bind(native unbound, heap *memory.Heap) (memory.Allocation, error) {
	reqs := native.MemoryRequirements()

	if reqs.MemoryTypeBits&(1<<uint(heap.MemoryTypeIndex())) == 0 {
		native.Destroy()
		return memory.Allocation{}, gpuerr.Unsupported("resource may only live in memory types %#b, but heap %d uses type %d",
			reqs.MemoryTypeBits, heap.ID(), heap.MemoryTypeIndex())
	}

	alignment := uint(max(reqs.Alignment, 1))
	alloc, err := heap.Suballocate(reqs.Size, alignment)
	if err != nil {
		native.Destroy()
		return memory.Allocation{}, errors.Wrapf(err, "failed to place %d bytes in heap %d", reqs.Size, heap.ID())
	}

	err = native.BindMemory(heap.Memory(), alloc.Offset())
	if err != nil {
		deallocErr := heap.Deallocate(alloc)
		native.Destroy()
		return memory.Allocation{}, errors.CombineErrors(errors.Wrap(err, "failed to bind memory"), deallocErr)
	}

	return alloc, nil
}

// CreateBuffer creates a buffer of size bytes inside heap
func (f *Factory) CreateBuffer(heap *memory.Heap, typ BufferType, size int) (*Buffer, error) {
	if heap == nil {
		gpuerr.Precondition("a buffer needs a heap")
	}
	if size <= 0 {
		gpuerr.Precondition("buffer size must be positive, got %d", size)
	}
	if typ == 0 || typ&^allBufferTypes != 0 {
		gpuerr.Precondition("invalid buffer type %#x", int32(typ))
	}

	native, err := f.backend.CreateBuffer(backend.BufferInfo{
		Size:  size,
		Usage: typ.nativeUsage(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create buffer")
	}

	alloc, err := f.bind(native, heap)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Factory::CreateBuffer",
		slog.String("Type", typ.String()),
		slog.Int("Size", size),
		slog.Uint64("Heap", heap.ID()),
		slog.Int("Offset", alloc.Offset()),
	)

	return &Buffer{
		logger:     f.logger,
		native:     native,
		heap:       heap,
		allocation: alloc,
		typ:        typ,
		size:       size,
	}, nil
}

// CreateTexture creates a texture described by state inside heap
func (f *Factory) CreateTexture(heap *memory.Heap, state TextureState) (*Texture, error) {
	if heap == nil {
		gpuerr.Precondition("a texture needs a heap, use WrapPresentable for swapchain images")
	}
	state = state.withDefaults()
	state.validate()

	info, err := f.imageInfo(state, heap.LazilyAllocated())
	if err != nil {
		return nil, err
	}

	native, err := f.backend.CreateImage(info)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create image")
	}

	alloc, err := f.bind(native, heap)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Factory::CreateTexture",
		slog.String("Type", state.Type.String()),
		slog.Int("Width", state.Width),
		slog.Int("Height", state.Height),
		slog.String("Usage", state.Usage.String()),
		slog.Uint64("Heap", heap.ID()),
		slog.Int("Offset", alloc.Offset()),
	)

	return newTexture(f.logger, f.backend, native, heap, alloc, state, info.Usage), nil
}

// WrapPresentable adopts a swapchain image. The texture has no heap and destroying it
// leaves the native image alone. The swapchain fixes the image's usage, so a zero Usage
// is taken as UsageRenderTarget.
func (f *Factory) WrapPresentable(native backend.Image, state TextureState) *Texture {
	if state.Usage == 0 {
		state.Usage = UsageRenderTarget
	}
	state = state.withDefaults()
	state.validate()

	return newTexture(f.logger, f.backend, native, nil, memory.Allocation{}, state, core1_0.ImageUsageColorAttachment|core1_0.ImageUsageTransferDst)
}

func (f *Factory) imageInfo(state TextureState, lazy bool) (backend.ImageInfo, error) {
	support := f.backend.FormatSupport(state.Format)
	depth := access.IsDepthFormat(state.Format)

	var usage core1_0.ImageUsageFlags
	var flags core1_0.ImageCreateFlags

	if state.Usage&UsageRead != 0 {
		if !support.Sampled {
			return backend.ImageInfo{}, gpuerr.Unsupported("format %v cannot be sampled", state.Format)
		}
		usage |= core1_0.ImageUsageSampled
	}
	if state.Usage&(UsageWrite|UsageAtomic) != 0 {
		if !support.Storage {
			return backend.ImageInfo{}, gpuerr.Unsupported("format %v cannot be used for storage", state.Format)
		}
		if state.Usage&UsageAtomic != 0 && !support.StorageAtomic {
			return backend.ImageInfo{}, gpuerr.Unsupported("format %v does not support atomic storage", state.Format)
		}
		usage |= core1_0.ImageUsageStorage
	}
	if state.Usage&UsageRenderTarget != 0 {
		switch {
		case depth && support.DepthStencil:
			usage |= core1_0.ImageUsageDepthStencilAttachment
		case !depth && support.ColorAttachment:
			usage |= core1_0.ImageUsageColorAttachment
		default:
			return backend.ImageInfo{}, gpuerr.Unsupported("format %v cannot be rendered to", state.Format)
		}
	}
	if state.Usage&UsageSparse != 0 {
		if !f.backend.Capabilities().SparseResidency {
			return backend.ImageInfo{}, gpuerr.Unsupported("sparse textures are not supported")
		}
		flags |= core1_0.ImageCreateSparseBinding | core1_0.ImageCreateSparseResidency
	}
	if state.Usage&UsageMultipleViews != 0 {
		flags |= core1_0.ImageCreateMutableFormat
	}

	// Attachments that are never read back can stay in tile memory
	if state.Usage&^UsageMultipleViews == UsageRenderTarget && lazy {
		usage |= core1_0.ImageUsageTransientAttachment
	} else {
		if support.TransferSrc {
			usage |= core1_0.ImageUsageTransferSrc
		}
		if support.TransferDst {
			usage |= core1_0.ImageUsageTransferDst
		}
	}

	if usage == 0 {
		return backend.ImageInfo{}, gpuerr.Unsupported("format %v supports none of the requested usage %s", state.Format, state.Usage)
	}

	imageType := core1_0.ImageType2D
	switch state.Type {
	case Texture1D:
		imageType = core1_0.ImageType1D
	case Texture3D:
		imageType = core1_0.ImageType3D
	case TextureCube, TextureCubeArray:
		flags |= core1_0.ImageCreateCubeCompatible
	}

	return backend.ImageInfo{
		Type:   imageType,
		Format: state.Format,
		Extent: core1_0.Extent3D{
			Width:  state.Width,
			Height: state.Height,
			Depth:  state.Depth,
		},
		MipLevels:   state.MipLevels,
		ArrayLayers: state.ArrayLayers,
		Samples:     core1_0.SampleCountFlags(state.Samples),
		Usage:       usage,
		Flags:       flags,
	}, nil
}
