package access

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

func requirePrecondition(t *testing.T, f func()) {
	t.Helper()

	defer func() {
		t.Helper()
		err, ok := recover().(error)
		require.True(t, ok, "expected a panic with an error")
		require.True(t, errors.HasAssertionFailure(err))
	}()

	f()
	t.Fatal("expected a panic")
}

func validIntent(rng *rand.Rand, kind ResourceKind, format core1_0.Format) Intent {
	for {
		intent := Intent(rng.Int31n(int32(Present)))
		if intent == 0 {
			continue
		}

		valid := true
		table := tableFor(kind, format)
		for bit := 0; bit < intentCount; bit++ {
			if intent&(1<<bit) != 0 && table[bit].Stages == 0 {
				valid = false
			}
		}
		if valid {
			return intent
		}
	}
}

func TestTranslateIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	formats := []core1_0.Format{
		core1_0.FormatR8G8B8A8UnsignedNormalized,
		core1_0.FormatD32SignedFloat,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	}

	for i := 0; i < 500; i++ {
		kind := ResourceKind(rng.Intn(2))
		format := formats[rng.Intn(len(formats))]
		intent := validIntent(rng, kind, format)

		first := Translate(intent, kind, format)
		second := Translate(intent, kind, format)
		require.Equal(t, first, second, "intent %s", intent)
		require.NotZero(t, first.Stages)
		if kind == KindBuffer {
			require.Equal(t, core1_0.ImageLayoutUndefined, first.Layout)
		} else {
			require.NotEqual(t, core1_0.ImageLayoutUndefined, first.Layout)
		}
	}
}

func TestTranslateBuffers(t *testing.T) {
	testCases := []struct {
		intent Intent
		access core1_0.AccessFlags
		stages core1_0.PipelineStageFlags
	}{
		{
			intent: CopySource,
			access: core1_0.AccessTransferRead,
			stages: core1_0.PipelineStageTransfer,
		},
		{
			intent: CopyDestination,
			access: core1_0.AccessTransferWrite,
			stages: core1_0.PipelineStageTransfer,
		},
		{
			intent: TransferDestination,
			access: core1_0.AccessHostWrite | core1_0.AccessTransferWrite,
			stages: core1_0.PipelineStageHost | core1_0.PipelineStageTransfer,
		},
		{
			intent: Write | CopySource,
			access: core1_0.AccessShaderWrite | core1_0.AccessTransferRead,
			stages: shaderStages | core1_0.PipelineStageTransfer,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.intent.String(), func(t *testing.T) {
			native := Translate(testCase.intent, KindBuffer, core1_0.FormatUndefined)
			require.Equal(t, testCase.access, native.Access)
			require.Equal(t, testCase.stages, native.Stages)
			require.Equal(t, core1_0.ImageLayoutUndefined, native.Layout)
		})
	}

	read := Translate(Read, KindBuffer, core1_0.FormatUndefined)
	require.NotZero(t, read.Access&core1_0.AccessIndirectCommandRead)
	require.NotZero(t, read.Stages&core1_0.PipelineStageDrawIndirect)
}

func TestTranslateColorTextures(t *testing.T) {
	format := core1_0.FormatR8G8B8A8UnsignedNormalized
	testCases := []struct {
		name   string
		intent Intent
		layout core1_0.ImageLayout
	}{
		{name: "Sampled", intent: Read, layout: core1_0.ImageLayoutShaderReadOnlyOptimal},
		{name: "Storage", intent: Read | Write, layout: core1_0.ImageLayoutGeneral},
		{name: "Attachment", intent: RenderTargetWrite, layout: core1_0.ImageLayoutColorAttachmentOptimal},
		{name: "Blend", intent: RenderTargetRead | RenderTargetWrite, layout: core1_0.ImageLayoutColorAttachmentOptimal},
		{name: "CopySource", intent: CopySource, layout: core1_0.ImageLayoutTransferSrcOptimal},
		{name: "CopyDestination", intent: CopyDestination, layout: core1_0.ImageLayoutTransferDstOptimal},
		{name: "CopyBothWays", intent: CopySource | CopyDestination, layout: core1_0.ImageLayoutGeneral},
		{name: "ResolveDestination", intent: ResolveDestination, layout: core1_0.ImageLayoutColorAttachmentOptimal},
		{name: "SampledAndAttachment", intent: Read | RenderTargetWrite, layout: core1_0.ImageLayoutGeneral},
		{name: "Present", intent: Present, layout: khr_swapchain.ImageLayoutPresentSrc},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			native := Translate(testCase.intent, KindTexture, format)
			require.Equal(t, testCase.layout, native.Layout)
		})
	}

	present := Translate(Present, KindTexture, format)
	require.Zero(t, present.Access)
	require.Equal(t, core1_0.PipelineStageBottomOfPipe, present.Stages)

	resolve := Translate(ResolveSource, KindTexture, format)
	require.Equal(t, core1_0.AccessColorAttachmentRead, resolve.Access)
	require.Equal(t, core1_0.PipelineStageColorAttachmentOutput, resolve.Stages)
}

func TestTranslateDepthTextures(t *testing.T) {
	for _, format := range []core1_0.Format{
		core1_0.FormatD16UnsignedNormalized,
		core1_0.FormatD24X8UnsignedNormalizedPacked,
		core1_0.FormatD32SignedFloat,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	} {
		readOnly := Translate(RenderTargetRead, KindTexture, format)
		require.Equal(t, core1_0.ImageLayoutDepthStencilReadOnlyOptimal, readOnly.Layout)
		require.Equal(t, core1_0.AccessDepthStencilAttachmentRead, readOnly.Access)
		require.Equal(t, depthStages, readOnly.Stages)

		readWrite := Translate(RenderTargetRead|RenderTargetWrite, KindTexture, format)
		require.Equal(t, core1_0.ImageLayoutDepthStencilAttachmentOptimal, readWrite.Layout)
		require.NotZero(t, readWrite.Access&core1_0.AccessDepthStencilAttachmentWrite)

		sampled := Translate(Read|RenderTargetRead, KindTexture, format)
		require.Equal(t, core1_0.ImageLayoutDepthStencilReadOnlyOptimal, sampled.Layout)

		feedback := Translate(Read|RenderTargetWrite, KindTexture, format)
		require.Equal(t, core1_0.ImageLayoutGeneral, feedback.Layout)
	}
}

func TestTranslateRejectsInvalidIntents(t *testing.T) {
	color := core1_0.FormatR8G8B8A8UnsignedNormalized

	requirePrecondition(t, func() { Translate(0, KindBuffer, core1_0.FormatUndefined) })
	requirePrecondition(t, func() { Translate(Present<<3, KindTexture, color) })
	requirePrecondition(t, func() { Translate(Present|Read, KindTexture, color) })
	requirePrecondition(t, func() { Translate(Present, KindBuffer, core1_0.FormatUndefined) })
	requirePrecondition(t, func() { Translate(RenderTargetWrite, KindBuffer, core1_0.FormatUndefined) })
	requirePrecondition(t, func() { Translate(ResolveSource, KindBuffer, core1_0.FormatUndefined) })
	requirePrecondition(t, func() { Translate(Present, KindTexture, core1_0.FormatD32SignedFloat) })
	requirePrecondition(t, func() { Translate(Read, ResourceKind(5), color) })
}

func TestAspectMask(t *testing.T) {
	require.Equal(t, core1_0.ImageAspectColor, AspectMask(core1_0.FormatB8G8R8A8UnsignedNormalized))
	require.Equal(t, core1_0.ImageAspectDepth, AspectMask(core1_0.FormatD32SignedFloat))
	require.Equal(t, core1_0.ImageAspectDepth, AspectMask(core1_0.FormatD24X8UnsignedNormalizedPacked))
	require.False(t, HasStencil(core1_0.FormatD24X8UnsignedNormalizedPacked))

	packed := Translate(RenderTargetWrite, KindTexture, core1_0.FormatD24X8UnsignedNormalizedPacked)
	require.Equal(t, core1_0.ImageLayoutDepthStencilAttachmentOptimal, packed.Layout)
	require.NotZero(t, packed.Access&core1_0.AccessDepthStencilAttachmentWrite)
	require.Equal(t, core1_0.ImageAspectStencil, AspectMask(core1_0.FormatS8UnsignedInt))
	require.Equal(t, core1_0.ImageAspectDepth|core1_0.ImageAspectStencil, AspectMask(core1_0.FormatD24UnsignedNormalizedS8UnsignedInt))
}

func TestIntentString(t *testing.T) {
	str := (Read | CopyDestination).String()
	require.Contains(t, str, "Read")
	require.Contains(t, str, "CopyDestination")
	require.NotContains(t, str, "Present")
	require.True(t, IsWrite(Read|CopyDestination))
	require.False(t, IsWrite(Read|CopySource|Present))
}
