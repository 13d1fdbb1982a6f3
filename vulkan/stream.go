package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
)

// queueFamilyIgnored reaches the driver as VK_QUEUE_FAMILY_IGNORED
const queueFamilyIgnored = -1

// Pipeline adapts a pipeline compiled outside substrate so recorders can bind it
type Pipeline struct {
	Native core1_0.Pipeline
	Point  core1_0.PipelineBindPoint
}

func (p Pipeline) BindPoint() core1_0.PipelineBindPoint {
	return p.Point
}

type commandPool struct {
	device core1_0.Device
	native core1_0.CommandPool
}

func (b *Backend) CreateCommandPool(queueFamily int) (backend.CommandPool, error) {
	native, res, err := b.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: queueFamily,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return nil, classify(res, err, "creating command pool")
	}
	return &commandPool{device: b.device, native: native}, nil
}

func (p *commandPool) AllocateStream() (backend.CommandStream, error) {
	buffers, res, err := p.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.native,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, classify(res, err, "allocating command buffer")
	}
	return &commandStream{native: buffers[0]}, nil
}

func (p *commandPool) FreeStream(stream backend.CommandStream) {
	p.device.FreeCommandBuffers([]core1_0.CommandBuffer{nativeStream(stream).native})
}

func (p *commandPool) Destroy() {
	p.native.Destroy(nil)
}

// commandStream encodes into one primary command buffer. The Cmd calls only fail when
// their arguments cannot be marshalled; the first such failure is held and returned by End.
type commandStream struct {
	native core1_0.CommandBuffer
	err    error
}

func nativeStream(stream backend.CommandStream) *commandStream {
	vkStream, ok := stream.(*commandStream)
	if !ok {
		gpuerr.Precondition("command stream %T was not allocated by the vulkan backend", stream)
	}
	return vkStream
}

func (s *commandStream) record(err error, command string) {
	if err != nil && s.err == nil {
		s.err = errors.Wrapf(err, "encoding %s", command)
	}
}

func (s *commandStream) Begin() error {
	s.err = nil
	res, err := s.native.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return classify(res, err, "beginning command buffer")
}

func (s *commandStream) End() error {
	res, err := s.native.End()
	if err != nil {
		return classify(res, err, "ending command buffer")
	}
	return s.err
}

func (s *commandStream) Reset() error {
	s.err = nil
	res, err := s.native.Reset(0)
	return classify(res, err, "resetting command buffer")
}

func (s *commandStream) BeginRenderPass(pass backend.RenderPass, fb backend.Framebuffer, area core1_0.Rect2D, clearValues []core1_0.ClearValue) {
	err := s.native.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  pass.(*renderPass).native,
		Framebuffer: fb.(*framebuffer).native,
		RenderArea:  area,
		ClearValues: clearValues,
	})
	s.record(err, "BeginRenderPass")
}

func (s *commandStream) EndRenderPass() {
	s.native.CmdEndRenderPass()
}

func (s *commandStream) BindPipeline(pipeline backend.Pipeline) {
	vkPipeline, ok := pipeline.(Pipeline)
	if !ok {
		gpuerr.Precondition("pipeline %T is not a vulkan.Pipeline", pipeline)
	}
	s.native.CmdBindPipeline(vkPipeline.Point, vkPipeline.Native)
}

func (s *commandStream) BindVertexBuffers(firstBinding int, buffers []backend.Buffer, offsets []int) {
	natives := make([]core1_0.Buffer, 0, len(buffers))
	for _, buf := range buffers {
		natives = append(natives, nativeBuffer(buf))
	}
	s.native.CmdBindVertexBuffers(firstBinding, natives, offsets)
}

func (s *commandStream) BindIndexBuffer(buf backend.Buffer, offset int, indexType core1_0.IndexType) {
	s.native.CmdBindIndexBuffer(nativeBuffer(buf), offset, indexType)
}

func (s *commandStream) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) {
	s.native.CmdDraw(vertexCount, instanceCount, uint32(firstVertex), uint32(firstInstance))
}

func (s *commandStream) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	s.native.CmdDrawIndexed(indexCount, instanceCount, uint32(firstIndex), vertexOffset, uint32(firstInstance))
}

func (s *commandStream) DrawIndirect(buf backend.Buffer, offset int, drawCount int, stride int) {
	s.native.CmdDrawIndirect(nativeBuffer(buf), offset, drawCount, stride)
}

func (s *commandStream) DrawIndexedIndirect(buf backend.Buffer, offset int, drawCount int, stride int) {
	s.native.CmdDrawIndexedIndirect(nativeBuffer(buf), offset, drawCount, stride)
}

func (s *commandStream) CopyBuffer(src backend.Buffer, dst backend.Buffer, regions []core1_0.BufferCopy) {
	s.record(s.native.CmdCopyBuffer(nativeBuffer(src), nativeBuffer(dst), regions), "CopyBuffer")
}

func (s *commandStream) CopyBufferToImage(src backend.Buffer, dst backend.Image, dstLayout core1_0.ImageLayout, regions []core1_0.BufferImageCopy) {
	s.record(s.native.CmdCopyBufferToImage(nativeBuffer(src), nativeImage(dst), dstLayout, regions), "CopyBufferToImage")
}

func (s *commandStream) CopyImageToBuffer(src backend.Image, srcLayout core1_0.ImageLayout, dst backend.Buffer, regions []core1_0.BufferImageCopy) {
	s.record(s.native.CmdCopyImageToBuffer(nativeImage(src), srcLayout, nativeBuffer(dst), regions), "CopyImageToBuffer")
}

func (s *commandStream) CopyImage(src backend.Image, srcLayout core1_0.ImageLayout, dst backend.Image, dstLayout core1_0.ImageLayout, regions []core1_0.ImageCopy) {
	s.record(s.native.CmdCopyImage(nativeImage(src), srcLayout, nativeImage(dst), dstLayout, regions), "CopyImage")
}

func bufferBarriers(barriers []backend.BufferBarrier) []core1_0.BufferMemoryBarrier {
	if len(barriers) == 0 {
		return nil
	}

	natives := make([]core1_0.BufferMemoryBarrier, 0, len(barriers))
	for _, barrier := range barriers {
		natives = append(natives, core1_0.BufferMemoryBarrier{
			SrcAccessMask:       barrier.SrcAccess,
			DstAccessMask:       barrier.DstAccess,
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Buffer:              nativeBuffer(barrier.Buffer),
			Offset:              barrier.Offset,
			Size:                barrier.Size,
		})
	}
	return natives
}

func imageBarriers(barriers []backend.ImageBarrier) []core1_0.ImageMemoryBarrier {
	if len(barriers) == 0 {
		return nil
	}

	natives := make([]core1_0.ImageMemoryBarrier, 0, len(barriers))
	for _, barrier := range barriers {
		natives = append(natives, core1_0.ImageMemoryBarrier{
			SrcAccessMask:       barrier.SrcAccess,
			DstAccessMask:       barrier.DstAccess,
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Image:               nativeImage(barrier.Image),
			SubresourceRange:    barrier.Range,
		})
	}
	return natives
}

func (s *commandStream) PipelineBarrier(srcStages, dstStages core1_0.PipelineStageFlags, buffers []backend.BufferBarrier, images []backend.ImageBarrier) {
	err := s.native.CmdPipelineBarrier(srcStages, dstStages, 0, nil, bufferBarriers(buffers), imageBarriers(images))
	s.record(err, "PipelineBarrier")
}

func (s *commandStream) SetEvent(ev backend.Event, stages core1_0.PipelineStageFlags) {
	s.native.CmdSetEvent(nativeEvent(ev), stages)
}

func (s *commandStream) ResetEvent(ev backend.Event, stages core1_0.PipelineStageFlags) {
	s.native.CmdResetEvent(nativeEvent(ev), stages)
}

func (s *commandStream) WaitEvents(events []backend.Event, srcStages, dstStages core1_0.PipelineStageFlags) {
	natives := make([]core1_0.Event, 0, len(events))
	for _, ev := range events {
		natives = append(natives, nativeEvent(ev))
	}
	err := s.native.CmdWaitEvents(natives, srcStages, dstStages, nil, nil, nil)
	s.record(err, "WaitEvents")
}
