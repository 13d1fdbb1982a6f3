// Package access translates abstract resource access intents into the native access
// mask, image layout and pipeline stage triples used to build barriers.
package access

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Intent declares how a resource will be used next, independent of any backend.
// Intents may be combined.
type Intent int32

var intentMapping = common.NewFlagStringMapping[Intent]()

func (i Intent) Register(str string) {
	intentMapping.Register(i, str)
}

func (i Intent) String() string {
	return intentMapping.FlagsToString(i)
}

const (
	// Read is a shader read: sampling, uniform, vertex, index or indirect argument fetch
	Read Intent = 1 << iota
	// Write is a shader storage write
	Write
	// RenderTargetRead is a read of a color or depth/stencil attachment, such as blending or depth testing
	RenderTargetRead
	// RenderTargetWrite is a write to a color or depth/stencil attachment
	RenderTargetWrite
	// TransferSource is a host-visible resource read back to the CPU
	TransferSource
	// TransferDestination is a host-visible resource written by the CPU
	TransferDestination
	// CopySource is the source of a device-side copy or blit
	CopySource
	// CopyDestination is the destination of a device-side copy or blit
	CopyDestination
	// ResolveSource is a multisampled attachment being resolved
	ResolveSource
	// ResolveDestination is the single-sampled target of a resolve
	ResolveDestination
	// Present hands a texture to the presentation engine. It cannot be combined.
	Present

	allIntents = Present<<1 - 1
)

func init() {
	Read.Register("Read")
	Write.Register("Write")
	RenderTargetRead.Register("RenderTargetRead")
	RenderTargetWrite.Register("RenderTargetWrite")
	TransferSource.Register("TransferSource")
	TransferDestination.Register("TransferDestination")
	CopySource.Register("CopySource")
	CopyDestination.Register("CopyDestination")
	ResolveSource.Register("ResolveSource")
	ResolveDestination.Register("ResolveDestination")
	Present.Register("Present")
}

// ResourceKind selects the translation table
type ResourceKind int

const (
	KindBuffer ResourceKind = iota
	KindTexture
)

func (k ResourceKind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindTexture:
		return "Texture"
	}
	return "Unknown"
}

// Native is the translated form of an Intent. Layout is ImageLayoutUndefined for buffers.
type Native struct {
	Access core1_0.AccessFlags
	Layout core1_0.ImageLayout
	Stages core1_0.PipelineStageFlags
}

// IsDepthFormat reports whether format has a depth or stencil aspect
func IsDepthFormat(format core1_0.Format) bool {
	switch format {
	case core1_0.FormatD16UnsignedNormalized,
		core1_0.FormatD24X8UnsignedNormalizedPacked,
		core1_0.FormatD32SignedFloat,
		core1_0.FormatS8UnsignedInt,
		core1_0.FormatD16UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD32SignedFloatS8UnsignedInt:
		return true
	}
	return false
}

// HasStencil reports whether format has a stencil aspect
func HasStencil(format core1_0.Format) bool {
	switch format {
	case core1_0.FormatS8UnsignedInt,
		core1_0.FormatD16UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD32SignedFloatS8UnsignedInt:
		return true
	}
	return false
}

// AspectMask returns every aspect of format
func AspectMask(format core1_0.Format) core1_0.ImageAspectFlags {
	if !IsDepthFormat(format) {
		return core1_0.ImageAspectColor
	}

	var aspects core1_0.ImageAspectFlags
	if format != core1_0.FormatS8UnsignedInt {
		aspects |= core1_0.ImageAspectDepth
	}
	if HasStencil(format) {
		aspects |= core1_0.ImageAspectStencil
	}
	return aspects
}
