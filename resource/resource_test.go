package resource

import (
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/backend/fake"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/memory"
)

type fixture struct {
	backend   *fake.Backend
	allocator *memory.Allocator
	factory   *Factory
}

func newFixture(t *testing.T) *fixture {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	b := fake.New(fake.DefaultCapabilities())

	allocator, err := memory.NewAllocator(logger, b, memory.CreateOptions{})
	require.NoError(t, err)

	return &fixture{
		backend:   b,
		allocator: allocator,
		factory:   NewFactory(logger, b),
	}
}

func (f *fixture) heap(t *testing.T, usage memory.UsageClass, size int) *memory.Heap {
	heap, err := f.allocator.AllocateHeap(usage, size)
	require.NoError(t, err)
	return heap
}

func requirePrecondition(t *testing.T, contains string, f func()) {
	t.Helper()

	defer func() {
		t.Helper()
		err, ok := recover().(error)
		require.True(t, ok, "expected a panic with an error")
		require.True(t, errors.HasAssertionFailure(err))
		require.Contains(t, err.Error(), contains)
	}()

	f()
	t.Fatal("expected a panic")
}

func colorState() TextureState {
	return TextureState{
		Format: core1_0.FormatR8G8B8A8UnsignedNormalized,
		Width:  64,
		Height: 64,
		Usage:  UsageRead | UsageRenderTarget,
	}
}

func TestFreedRangeIsReused(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 16<<20)

	first, err := f.factory.CreateBuffer(heap, BufferVertex, 1<<20)
	require.NoError(t, err)
	second, err := f.factory.CreateBuffer(heap, BufferVertex, 1<<20)
	require.NoError(t, err)

	require.Equal(t, 0, first.Allocation().Offset())
	require.Equal(t, 1<<20, second.Allocation().Offset())

	require.NoError(t, first.Destroy())

	third, err := f.factory.CreateBuffer(heap, BufferVertex, 512*1024)
	require.NoError(t, err)
	require.GreaterOrEqual(t, third.Allocation().Offset(), 0)
	require.Less(t, third.Allocation().Offset(), 1<<20)
	require.LessOrEqual(t, third.Allocation().Offset()+third.Allocation().Size(), 1<<20)

	native := third.Native().(*fake.Buffer)
	require.Same(t, heap.Memory(), native.Memory)
	require.Equal(t, third.Allocation().Offset(), native.Offset)
	require.NotZero(t, native.Info.Usage&core1_0.BufferUsageVertexBuffer)

	require.NoError(t, second.Destroy())
	require.NoError(t, third.Destroy())
	require.NoError(t, heap.Destroy())
	require.Equal(t, 0, f.backend.LiveTotal())
}

func TestExcludedMemoryTypeLeavesNoNativeObject(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 1<<20)
	require.Equal(t, fake.TypeDeviceLocal, heap.MemoryTypeIndex())

	f.backend.MemoryTypeBits = 1 << fake.TypeHostVisible

	buffer, err := f.factory.CreateBuffer(heap, BufferUniform, 4096)
	require.Nil(t, buffer)
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))

	texture, err := f.factory.CreateTexture(heap, colorState())
	require.Nil(t, texture)
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))

	require.Equal(t, 1, f.backend.Created(fake.KindBuffer))
	require.Equal(t, 1, f.backend.Created(fake.KindImage))
	require.Equal(t, 0, f.backend.Live(fake.KindBuffer))
	require.Equal(t, 0, f.backend.Live(fake.KindImage))
	require.Equal(t, 0, heap.AllocationCount())
}

func TestExhaustedHeapLeavesNoNativeObject(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 64*1024)

	_, err := f.factory.CreateBuffer(heap, BufferStorage, 128*1024)
	require.True(t, errors.Is(err, gpuerr.ErrResourceExhausted))
	require.Equal(t, 0, f.backend.Live(fake.KindBuffer))
	require.Equal(t, 0, heap.AllocationCount())
}

func TestBindFailureReturnsRange(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 1<<20)
	f.backend.FailBind = errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")

	_, err := f.factory.CreateBuffer(heap, BufferIndex, 4096)
	require.ErrorContains(t, err, "VK_ERROR_OUT_OF_DEVICE_MEMORY")
	require.Equal(t, 0, f.backend.Live(fake.KindBuffer))
	require.Equal(t, 0, heap.AllocationCount())
	require.Equal(t, heap.Size(), heap.FreeBytes())
}

func TestCreateTextureDerivesNativeUsage(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 8<<20)

	testCases := []struct {
		name  string
		state TextureState
		usage core1_0.ImageUsageFlags
		flags core1_0.ImageCreateFlags
	}{
		{
			name:  "SampledColor",
			state: TextureState{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Width: 16, Height: 16, Usage: UsageRead},
			usage: core1_0.ImageUsageSampled | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst,
		},
		{
			name:  "DepthTarget",
			state: TextureState{Format: core1_0.FormatD32SignedFloat, Width: 16, Height: 16, Usage: UsageRenderTarget},
			usage: core1_0.ImageUsageDepthStencilAttachment | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst,
		},
		{
			name:  "StorageWithViews",
			state: TextureState{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Width: 16, Height: 16, Usage: UsageWrite | UsageAtomic | UsageMultipleViews},
			usage: core1_0.ImageUsageStorage | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst,
			flags: core1_0.ImageCreateMutableFormat,
		},
		{
			name:  "Cube",
			state: TextureState{Type: TextureCube, Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Width: 16, Height: 16, ArrayLayers: 6, Usage: UsageRead},
			usage: core1_0.ImageUsageSampled | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst,
			flags: core1_0.ImageCreateCubeCompatible,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			texture, err := f.factory.CreateTexture(heap, testCase.state)
			require.NoError(t, err)

			info := texture.Native().(*fake.Image).Info
			require.Equal(t, testCase.usage, info.Usage)
			require.Equal(t, testCase.flags, info.Flags)
			require.Equal(t, 1, info.MipLevels)
			require.Equal(t, core1_0.Samples1, info.Samples)

			require.NoError(t, texture.Destroy())
		})
	}
}

func TestRenderTargetOnLazyHeapIsTransient(t *testing.T) {
	f := newFixture(t)
	lazy, err := f.allocator.AllocateTransientHeap(8 << 20)
	require.NoError(t, err)
	require.True(t, lazy.LazilyAllocated())

	texture, err := f.factory.CreateTexture(lazy, TextureState{
		Type:    Texture2DMultisample,
		Format:  core1_0.FormatR8G8B8A8UnsignedNormalized,
		Width:   64,
		Height:  64,
		Samples: 4,
		Usage:   UsageRenderTarget,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.ImageUsageColorAttachment|core1_0.ImageUsageTransientAttachment, texture.NativeUsage())
	require.Equal(t, core1_0.Samples4, texture.Samples())
	require.NoError(t, texture.Destroy())

	// Sampled targets are read back, so they keep real backing
	sampled, err := f.factory.CreateTexture(lazy, colorState())
	require.NoError(t, err)
	require.Zero(t, sampled.NativeUsage()&core1_0.ImageUsageTransientAttachment)
	require.NoError(t, sampled.Destroy())
}

func TestUnsupportedFormatUsage(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 1<<20)
	f.backend.Formats = map[core1_0.Format]backend.FormatSupport{
		core1_0.FormatR8G8B8A8UnsignedNormalized: {Sampled: true, Storage: true},
	}

	_, err := f.factory.CreateTexture(heap, colorState())
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))

	_, err = f.factory.CreateTexture(heap, TextureState{
		Format: core1_0.FormatR8G8B8A8UnsignedNormalized,
		Width:  8,
		Height: 8,
		Usage:  UsageAtomic,
	})
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))

	_, err = f.factory.CreateTexture(heap, TextureState{
		Format: core1_0.FormatR8G8B8A8UnsignedNormalized,
		Width:  8,
		Height: 8,
		Usage:  UsageRead | UsageSparse,
	})
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))

	require.Equal(t, 0, f.backend.Created(fake.KindImage))
}

func TestTextureStatePreconditions(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 1<<20)

	requirePrecondition(t, "extent", func() {
		_, _ = f.factory.CreateTexture(heap, TextureState{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Usage: UsageRead})
	})
	requirePrecondition(t, "power of two", func() {
		_, _ = f.factory.CreateTexture(heap, TextureState{Type: Texture2DMultisample, Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Width: 4, Height: 4, Samples: 3, Usage: UsageRenderTarget})
	})
	requirePrecondition(t, "cube", func() {
		_, _ = f.factory.CreateTexture(heap, TextureState{Type: TextureCube, Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Width: 4, Height: 4, ArrayLayers: 4, Usage: UsageRead})
	})
	requirePrecondition(t, "usage", func() {
		_, _ = f.factory.CreateTexture(heap, TextureState{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Width: 4, Height: 4})
	})
}

func TestViewsShareOwnership(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 8<<20)

	texture, err := f.factory.CreateTexture(heap, TextureState{
		Type:        Texture2DArray,
		Format:      core1_0.FormatR8G8B8A8UnsignedNormalized,
		Width:       64,
		Height:      64,
		MipLevels:   4,
		ArrayLayers: 3,
		Usage:       UsageRead,
	})
	require.NoError(t, err)

	whole, err := texture.View(Texture2DArray, core1_0.FormatUndefined, Range{}, Range{})
	require.NoError(t, err)
	require.Equal(t, Range{Base: 0, Count: 4}, whole.Mips())
	require.Equal(t, Range{Base: 0, Count: 3}, whole.Layers())

	mip, err := texture.View(Texture2D, core1_0.FormatUndefined, Range{Base: 2, Count: 1}, Range{Base: 1, Count: 1})
	require.NoError(t, err)
	require.Equal(t, core1_0.Extent2D{Width: 16, Height: 16}, mip.Extent())

	info := mip.Native().(*fake.ImageView).Info
	require.Equal(t, core1_0.ImageViewType2D, info.Type)
	require.Equal(t, 2, info.Range.BaseMipLevel)
	require.Equal(t, 1, info.Range.BaseArrayLayer)
	require.Equal(t, 2, texture.LiveViews())

	requirePrecondition(t, "live views", func() { _ = texture.Destroy() })
	requirePrecondition(t, "outside", func() {
		_, _ = texture.View(Texture2D, core1_0.FormatUndefined, Range{Base: 3, Count: 2}, Range{})
	})
	requirePrecondition(t, "MultipleViews", func() {
		_, _ = texture.View(Texture2D, core1_0.FormatB8G8R8A8UnsignedNormalized, Range{}, Range{})
	})

	whole.Destroy()
	mip.Destroy()
	require.Equal(t, 0, f.backend.Live(fake.KindImageView))
	require.NoError(t, texture.Destroy())
	require.Equal(t, 0, f.backend.Live(fake.KindImage))
}

func TestPresentableTextureSkipsHeap(t *testing.T) {
	f := newFixture(t)
	native := fake.NewPresentable(core1_0.FormatB8G8R8A8UnsignedNormalized, 800, 600)

	texture := f.factory.WrapPresentable(native, TextureState{
		Format: core1_0.FormatB8G8R8A8UnsignedNormalized,
		Width:  800,
		Height: 600,
		Usage:  UsageRenderTarget,
	})
	require.True(t, texture.IsPresentable())
	require.Nil(t, texture.Heap())

	view, err := texture.View(Texture2D, core1_0.FormatUndefined, Range{}, Range{})
	require.NoError(t, err)
	view.Destroy()

	require.NoError(t, texture.Destroy())
	require.Equal(t, 0, f.backend.LiveTotal())
}

func TestPresentableTextureDefaultsToRenderTarget(t *testing.T) {
	f := newFixture(t)
	native := fake.NewPresentable(core1_0.FormatB8G8R8A8UnsignedNormalized, 320, 240)

	texture := f.factory.WrapPresentable(native, TextureState{
		Format: core1_0.FormatB8G8R8A8UnsignedNormalized,
		Width:  320,
		Height: 240,
	})
	require.Equal(t, UsageRenderTarget, texture.State().Usage)
	require.True(t, texture.IsPresentable())

	requirePrecondition(t, "invalid texture usage", func() {
		f.factory.WrapPresentable(native, TextureState{
			Format: core1_0.FormatB8G8R8A8UnsignedNormalized,
			Width:  320,
			Height: 240,
			Usage:  1 << 20,
		})
	})

	require.NoError(t, texture.Destroy())
}

func TestBufferMapIsSlicedToBuffer(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageImmediate, 1<<20)

	first, err := f.factory.CreateBuffer(heap, BufferUniform, 1000)
	require.NoError(t, err)
	second, err := f.factory.CreateBuffer(heap, BufferStaging, 300)
	require.NoError(t, err)

	data, err := second.Map()
	require.NoError(t, err)
	require.Len(t, data, 300)
	data[0] = 7
	second.Unmap()

	whole, err := heap.Map()
	require.NoError(t, err)
	require.Equal(t, byte(7), whole[second.Allocation().Offset()])
	heap.Unmap()

	require.Equal(t, ByteRange{Offset: 100, Size: 900}, first.ResolveRange(ByteRange{Offset: 100, Size: -1}))
	requirePrecondition(t, "outside", func() { first.ResolveRange(ByteRange{Offset: 900, Size: 200}) })

	require.NoError(t, first.Destroy())
	require.NoError(t, second.Destroy())
	requirePrecondition(t, "destroyed twice", func() { _ = second.Destroy() })
}

func TestStaticBufferCannotMap(t *testing.T) {
	f := newFixture(t)
	heap := f.heap(t, memory.UsageStatic, 1<<20)

	buffer, err := f.factory.CreateBuffer(heap, BufferVertex, 256)
	require.NoError(t, err)

	_, err = buffer.Map()
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))
	require.NoError(t, buffer.Destroy())
}
