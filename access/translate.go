package access

import (
	"math/bits"

	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"github.com/vkngwrapper/substrate/gpuerr"
)

const intentCount = 11

const (
	shaderStages = core1_0.PipelineStageVertexShader | core1_0.PipelineStageFragmentShader | core1_0.PipelineStageComputeShader
	depthStages  = core1_0.PipelineStageEarlyFragmentTests | core1_0.PipelineStageLateFragmentTests
	hostTransfer = core1_0.PipelineStageHost | core1_0.PipelineStageTransfer
)

// One row per intent bit, in bit order. A zero row means the intent is not valid for the kind.
var bufferTable = [intentCount]Native{
	// Read
	{
		Access: core1_0.AccessIndirectCommandRead | core1_0.AccessIndexRead | core1_0.AccessVertexAttributeRead |
			core1_0.AccessUniformRead | core1_0.AccessShaderRead,
		Stages: core1_0.PipelineStageDrawIndirect | core1_0.PipelineStageVertexInput | shaderStages,
	},
	// Write
	{Access: core1_0.AccessShaderWrite, Stages: shaderStages},
	{},
	{},
	// TransferSource
	{Access: core1_0.AccessHostRead | core1_0.AccessTransferRead, Stages: hostTransfer},
	// TransferDestination
	{Access: core1_0.AccessHostWrite | core1_0.AccessTransferWrite, Stages: hostTransfer},
	// CopySource
	{Access: core1_0.AccessTransferRead, Stages: core1_0.PipelineStageTransfer},
	// CopyDestination
	{Access: core1_0.AccessTransferWrite, Stages: core1_0.PipelineStageTransfer},
	{},
	{},
	{},
}

var colorTable = [intentCount]Native{
	{
		Access: core1_0.AccessShaderRead | core1_0.AccessInputAttachmentRead,
		Layout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		Stages: shaderStages,
	},
	{Access: core1_0.AccessShaderWrite, Layout: core1_0.ImageLayoutGeneral, Stages: shaderStages},
	{
		Access: core1_0.AccessColorAttachmentRead,
		Layout: core1_0.ImageLayoutColorAttachmentOptimal,
		Stages: core1_0.PipelineStageColorAttachmentOutput,
	},
	{
		Access: core1_0.AccessColorAttachmentWrite,
		Layout: core1_0.ImageLayoutColorAttachmentOptimal,
		Stages: core1_0.PipelineStageColorAttachmentOutput,
	},
	{
		Access: core1_0.AccessHostRead | core1_0.AccessTransferRead,
		Layout: core1_0.ImageLayoutTransferSrcOptimal,
		Stages: hostTransfer,
	},
	{
		Access: core1_0.AccessHostWrite | core1_0.AccessTransferWrite,
		Layout: core1_0.ImageLayoutTransferDstOptimal,
		Stages: hostTransfer,
	},
	{
		Access: core1_0.AccessTransferRead,
		Layout: core1_0.ImageLayoutTransferSrcOptimal,
		Stages: core1_0.PipelineStageTransfer,
	},
	{
		Access: core1_0.AccessTransferWrite,
		Layout: core1_0.ImageLayoutTransferDstOptimal,
		Stages: core1_0.PipelineStageTransfer,
	},
	// Resolves happen at the end of a subpass, as attachment accesses
	{
		Access: core1_0.AccessColorAttachmentRead,
		Layout: core1_0.ImageLayoutColorAttachmentOptimal,
		Stages: core1_0.PipelineStageColorAttachmentOutput,
	},
	{
		Access: core1_0.AccessColorAttachmentWrite,
		Layout: core1_0.ImageLayoutColorAttachmentOptimal,
		Stages: core1_0.PipelineStageColorAttachmentOutput,
	},
	// Present
	{
		Layout: khr_swapchain.ImageLayoutPresentSrc,
		Stages: core1_0.PipelineStageBottomOfPipe,
	},
}

var depthTable = [intentCount]Native{
	{
		Access: core1_0.AccessShaderRead | core1_0.AccessInputAttachmentRead,
		Layout: core1_0.ImageLayoutDepthStencilReadOnlyOptimal,
		Stages: shaderStages,
	},
	{Access: core1_0.AccessShaderWrite, Layout: core1_0.ImageLayoutGeneral, Stages: shaderStages},
	{
		Access: core1_0.AccessDepthStencilAttachmentRead,
		Layout: core1_0.ImageLayoutDepthStencilReadOnlyOptimal,
		Stages: depthStages,
	},
	{
		Access: core1_0.AccessDepthStencilAttachmentRead | core1_0.AccessDepthStencilAttachmentWrite,
		Layout: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		Stages: depthStages,
	},
	{
		Access: core1_0.AccessHostRead | core1_0.AccessTransferRead,
		Layout: core1_0.ImageLayoutTransferSrcOptimal,
		Stages: hostTransfer,
	},
	{
		Access: core1_0.AccessHostWrite | core1_0.AccessTransferWrite,
		Layout: core1_0.ImageLayoutTransferDstOptimal,
		Stages: hostTransfer,
	},
	{
		Access: core1_0.AccessTransferRead,
		Layout: core1_0.ImageLayoutTransferSrcOptimal,
		Stages: core1_0.PipelineStageTransfer,
	},
	{
		Access: core1_0.AccessTransferWrite,
		Layout: core1_0.ImageLayoutTransferDstOptimal,
		Stages: core1_0.PipelineStageTransfer,
	},
	{
		Access: core1_0.AccessDepthStencilAttachmentRead,
		Layout: core1_0.ImageLayoutDepthStencilReadOnlyOptimal,
		Stages: depthStages,
	},
	{
		Access: core1_0.AccessDepthStencilAttachmentWrite,
		Layout: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		Stages: depthStages,
	},
	{},
}

// Translate maps intent to the native access mask, layout and stages for a resource
// of the given kind. format is only consulted for textures. Translate is pure: the same
// arguments always produce the same result.
//
// Translate panics when intent is empty, carries unknown bits, combines Present with
// anything else, or names a usage the resource kind cannot have.
func Translate(intent Intent, kind ResourceKind, format core1_0.Format) Native {
	if intent == 0 {
		gpuerr.Precondition("an empty intent cannot be translated")
	}
	if intent&^allIntents != 0 {
		gpuerr.Precondition("intent %#x carries unknown bits", int32(intent))
	}
	if intent&Present != 0 && intent != Present {
		gpuerr.Precondition("Present cannot be combined with other intents, got %s", intent)
	}

	table := tableFor(kind, format)

	var result Native
	layoutCount := 0
	var layouts [2]core1_0.ImageLayout

	for remaining := uint32(intent); remaining != 0; remaining &= remaining - 1 {
		bit := bits.TrailingZeros32(remaining)
		row := table[bit]
		if row.Stages == 0 {
			gpuerr.Precondition("intent %s is not valid for a %s with format %v", Intent(1<<bit), kind, format)
		}

		result.Access |= row.Access
		result.Stages |= row.Stages

		if kind != KindTexture {
			continue
		}
		switch {
		case layoutCount == 0:
			layouts[0] = row.Layout
			layoutCount = 1
		case row.Layout == layouts[0] || (layoutCount == 2 && row.Layout == layouts[1]):
		case layoutCount == 1:
			layouts[1] = row.Layout
			layoutCount = 2
		default:
			layoutCount = 3
		}
	}

	if kind == KindTexture {
		result.Layout = combineLayouts(intent, layouts, layoutCount)
	}
	return result
}

func tableFor(kind ResourceKind, format core1_0.Format) *[intentCount]Native {
	switch kind {
	case KindBuffer:
		return &bufferTable
	case KindTexture:
		if IsDepthFormat(format) {
			return &depthTable
		}
		return &colorTable
	}

	gpuerr.Precondition("unknown resource kind %d", int(kind))
	return nil
}

// combineLayouts settles on a single layout when several intents disagree. Attachment
// reads and writes of a depth texture share the writable attachment layout; every
// other disagreement falls back to General.
func combineLayouts(intent Intent, layouts [2]core1_0.ImageLayout, count int) core1_0.ImageLayout {
	if count == 1 {
		return layouts[0]
	}

	if count == 2 && intent&(Read|Write) == 0 {
		pair := [2]core1_0.ImageLayout{layouts[0], layouts[1]}
		if pair == [2]core1_0.ImageLayout{core1_0.ImageLayoutDepthStencilReadOnlyOptimal, core1_0.ImageLayoutDepthStencilAttachmentOptimal} ||
			pair == [2]core1_0.ImageLayout{core1_0.ImageLayoutDepthStencilAttachmentOptimal, core1_0.ImageLayoutDepthStencilReadOnlyOptimal} {
			return core1_0.ImageLayoutDepthStencilAttachmentOptimal
		}
	}

	return core1_0.ImageLayoutGeneral
}

// IsWrite reports whether intent includes any access that modifies the resource
func IsWrite(intent Intent) bool {
	return intent&(Write|RenderTargetWrite|TransferDestination|CopyDestination|ResolveDestination) != 0
}
