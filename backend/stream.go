package backend

import "github.com/vkngwrapper/core/v2/core1_0"

// BufferBarrier is a memory dependency over a byte range of one buffer
type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	Offset    int
	Size      int
}

// ImageBarrier is a memory dependency and layout transition over a subresource range of one image
type ImageBarrier struct {
	Image     Image
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	Range     core1_0.ImageSubresourceRange
}

// CommandStream is a native command buffer. Commands are only encoded, never
// validated: callers are responsible for issuing them in a legal order.
type CommandStream interface {
	Begin() error
	End() error
	Reset() error

	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, area core1_0.Rect2D, clearValues []core1_0.ClearValue)
	EndRenderPass()

	BindPipeline(pipeline Pipeline)
	BindVertexBuffers(firstBinding int, buffers []Buffer, offsets []int)
	BindIndexBuffer(buffer Buffer, offset int, indexType core1_0.IndexType)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance int)
	DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int)
	DrawIndirect(buffer Buffer, offset int, drawCount int, stride int)
	DrawIndexedIndirect(buffer Buffer, offset int, drawCount int, stride int)

	CopyBuffer(src Buffer, dst Buffer, regions []core1_0.BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, dstLayout core1_0.ImageLayout, regions []core1_0.BufferImageCopy)
	CopyImageToBuffer(src Image, srcLayout core1_0.ImageLayout, dst Buffer, regions []core1_0.BufferImageCopy)
	CopyImage(src Image, srcLayout core1_0.ImageLayout, dst Image, dstLayout core1_0.ImageLayout, regions []core1_0.ImageCopy)

	PipelineBarrier(srcStages, dstStages core1_0.PipelineStageFlags, buffers []BufferBarrier, images []ImageBarrier)

	SetEvent(event Event, stages core1_0.PipelineStageFlags)
	ResetEvent(event Event, stages core1_0.PipelineStageFlags)
	WaitEvents(events []Event, srcStages, dstStages core1_0.PipelineStageFlags)
}
