package resource

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/gpuerr"
)

// BufferType declares what a buffer will be bound as. Types may be combined.
type BufferType int32

var bufferTypeMapping = common.NewFlagStringMapping[BufferType]()

func (t BufferType) Register(str string) {
	bufferTypeMapping.Register(t, str)
}

func (t BufferType) String() string {
	return bufferTypeMapping.FlagsToString(t)
}

const (
	BufferVertex BufferType = 1 << iota
	BufferIndex
	BufferUniform
	BufferStorage
	BufferIndirect
	BufferUniformTexel
	// BufferStaging is a host-side source or destination of copies and nothing else
	BufferStaging

	allBufferTypes = BufferStaging<<1 - 1
)

func init() {
	BufferVertex.Register("Vertex")
	BufferIndex.Register("Index")
	BufferUniform.Register("Uniform")
	BufferStorage.Register("Storage")
	BufferIndirect.Register("Indirect")
	BufferUniformTexel.Register("UniformTexel")
	BufferStaging.Register("Staging")
}

// Every buffer may take part in copies
func (t BufferType) nativeUsage() core1_0.BufferUsageFlags {
	usage := core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst

	if t&BufferVertex != 0 {
		usage |= core1_0.BufferUsageVertexBuffer
	}
	if t&BufferIndex != 0 {
		usage |= core1_0.BufferUsageIndexBuffer
	}
	if t&BufferUniform != 0 {
		usage |= core1_0.BufferUsageUniformBuffer
	}
	if t&BufferStorage != 0 {
		usage |= core1_0.BufferUsageStorageBuffer
	}
	if t&BufferIndirect != 0 {
		usage |= core1_0.BufferUsageIndirectBuffer
	}
	if t&BufferUniformTexel != 0 {
		usage |= core1_0.BufferUsageUniformTexelBuffer
	}

	return usage
}

// TextureUsage declares how a texture will be used over its lifetime
type TextureUsage int32

var textureUsageMapping = common.NewFlagStringMapping[TextureUsage]()

func (u TextureUsage) Register(str string) {
	textureUsageMapping.Register(u, str)
}

func (u TextureUsage) String() string {
	return textureUsageMapping.FlagsToString(u)
}

const (
	UsageRead TextureUsage = 1 << iota
	UsageWrite
	UsageRenderTarget
	UsageAtomic
	UsageSparse
	// UsageMultipleViews allows views whose format differs from the texture's
	UsageMultipleViews

	allTextureUsages = UsageMultipleViews<<1 - 1
)

func init() {
	UsageRead.Register("Read")
	UsageWrite.Register("Write")
	UsageRenderTarget.Register("RenderTarget")
	UsageAtomic.Register("Atomic")
	UsageSparse.Register("Sparse")
	UsageMultipleViews.Register("MultipleViews")
}

// TextureType is the dimensionality of a texture or a view
type TextureType int

const (
	Texture2D TextureType = iota
	Texture1D
	Texture2DArray
	Texture3D
	TextureCube
	TextureCubeArray
	Texture2DMultisample
)

var textureTypeNames = map[TextureType]string{
	Texture2D:            "2D",
	Texture1D:            "1D",
	Texture2DArray:       "2DArray",
	Texture3D:            "3D",
	TextureCube:          "Cube",
	TextureCubeArray:     "CubeArray",
	Texture2DMultisample: "2DMultisample",
}

func (t TextureType) String() string {
	name, ok := textureTypeNames[t]
	if !ok {
		return "Unknown"
	}
	return name
}

func (t TextureType) viewType() core1_0.ImageViewType {
	switch t {
	case Texture1D:
		return core1_0.ImageViewType1D
	case Texture2DArray:
		return core1_0.ImageViewType2DArray
	case Texture3D:
		return core1_0.ImageViewType3D
	case TextureCube:
		return core1_0.ImageViewTypeCube
	case TextureCubeArray:
		return core1_0.ImageViewTypeCubeArray
	}
	return core1_0.ImageViewType2D
}

// TextureState describes a texture to create. Zero Depth, MipLevels, ArrayLayers and
// Samples mean 1.
type TextureState struct {
	Type        TextureType
	Format      core1_0.Format
	Width       int
	Height      int
	Depth       int
	MipLevels   int
	ArrayLayers int
	Samples     int
	Usage       TextureUsage
}

func (s TextureState) withDefaults() TextureState {
	if s.Height == 0 && s.Type == Texture1D {
		s.Height = 1
	}
	if s.Depth == 0 {
		s.Depth = 1
	}
	if s.MipLevels == 0 {
		s.MipLevels = 1
	}
	if s.ArrayLayers == 0 {
		s.ArrayLayers = 1
	}
	if s.Samples == 0 {
		s.Samples = 1
	}
	return s
}

func (s TextureState) validate() {
	if _, ok := textureTypeNames[s.Type]; !ok {
		gpuerr.Precondition("unknown texture type %d", int(s.Type))
	}
	if s.Format == core1_0.FormatUndefined {
		gpuerr.Precondition("a texture needs a format")
	}
	if s.Width <= 0 || s.Height <= 0 || s.Depth <= 0 {
		gpuerr.Precondition("texture extent %dx%dx%d must be positive", s.Width, s.Height, s.Depth)
	}
	if s.Depth > 1 && s.Type != Texture3D {
		gpuerr.Precondition("only 3D textures have depth, got %d for %s", s.Depth, s.Type)
	}
	if s.MipLevels < 1 || s.ArrayLayers < 1 {
		gpuerr.Precondition("texture needs at least one mip level and layer")
	}
	if s.Samples < 1 || s.Samples > 64 || s.Samples&(s.Samples-1) != 0 {
		gpuerr.Precondition("sample count %d must be a power of two no larger than 64", s.Samples)
	}
	if s.Samples > 1 && (s.Type != Texture2DMultisample || s.MipLevels > 1) {
		gpuerr.Precondition("only single-mip 2DMultisample textures may have %d samples", s.Samples)
	}
	if (s.Type == TextureCube || s.Type == TextureCubeArray) && (s.ArrayLayers%6 != 0 || s.Width != s.Height) {
		gpuerr.Precondition("cube textures must be square with a multiple of 6 layers")
	}
	if s.Usage == 0 || s.Usage&^allTextureUsages != 0 {
		gpuerr.Precondition("invalid texture usage %#x", int32(s.Usage))
	}
}

// Range is a contiguous run of mip levels or array layers
type Range struct {
	Base  int
	Count int
}

// ByteRange is a sub-range of a buffer. A Size of -1 extends to the end of the buffer.
type ByteRange struct {
	Offset int
	Size   int
}
