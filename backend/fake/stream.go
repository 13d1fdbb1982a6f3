package fake

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
)

// Barrier is one recorded PipelineBarrier call
type Barrier struct {
	SrcStages core1_0.PipelineStageFlags
	DstStages core1_0.PipelineStageFlags
	Buffers   []backend.BufferBarrier
	Images    []backend.ImageBarrier
}

// Indirect is one recorded DrawIndirect or DrawIndexedIndirect call
type Indirect struct {
	Buffer    backend.Buffer
	Offset    int
	DrawCount int
	Stride    int
}

// Stream records the name of every command encoded into it, plus the arguments of
// the commands tests care about
type Stream struct {
	Commands  []string
	Barriers  []Barrier
	Indirects []Indirect
	Resets    int
	recording bool
}

var _ backend.CommandStream = &Stream{}

func (s *Stream) record(name string) {
	s.Commands = append(s.Commands, name)
}

func (s *Stream) Begin() error {
	if s.recording {
		return errors.New("stream is already recording")
	}
	s.recording = true
	s.record("Begin")
	return nil
}

func (s *Stream) End() error {
	if !s.recording {
		return errors.New("stream is not recording")
	}
	s.recording = false
	s.record("End")
	return nil
}

func (s *Stream) Reset() error {
	s.Commands = nil
	s.Barriers = nil
	s.Indirects = nil
	s.recording = false
	s.Resets++
	return nil
}

func (s *Stream) BeginRenderPass(pass backend.RenderPass, framebuffer backend.Framebuffer, area core1_0.Rect2D, clearValues []core1_0.ClearValue) {
	s.record("BeginRenderPass")
}

func (s *Stream) EndRenderPass() {
	s.record("EndRenderPass")
}

func (s *Stream) BindPipeline(pipeline backend.Pipeline) {
	s.record("BindPipeline")
}

func (s *Stream) BindVertexBuffers(firstBinding int, buffers []backend.Buffer, offsets []int) {
	s.record("BindVertexBuffers")
}

func (s *Stream) BindIndexBuffer(buffer backend.Buffer, offset int, indexType core1_0.IndexType) {
	s.record("BindIndexBuffer")
}

func (s *Stream) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) {
	s.record("Draw")
}

func (s *Stream) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	s.record("DrawIndexed")
}

func (s *Stream) DrawIndirect(buffer backend.Buffer, offset int, drawCount int, stride int) {
	s.record("DrawIndirect")
	s.Indirects = append(s.Indirects, Indirect{Buffer: buffer, Offset: offset, DrawCount: drawCount, Stride: stride})
}

func (s *Stream) DrawIndexedIndirect(buffer backend.Buffer, offset int, drawCount int, stride int) {
	s.record("DrawIndexedIndirect")
	s.Indirects = append(s.Indirects, Indirect{Buffer: buffer, Offset: offset, DrawCount: drawCount, Stride: stride})
}

func (s *Stream) CopyBuffer(src backend.Buffer, dst backend.Buffer, regions []core1_0.BufferCopy) {
	s.record("CopyBuffer")
}

func (s *Stream) CopyBufferToImage(src backend.Buffer, dst backend.Image, dstLayout core1_0.ImageLayout, regions []core1_0.BufferImageCopy) {
	s.record("CopyBufferToImage")
}

func (s *Stream) CopyImageToBuffer(src backend.Image, srcLayout core1_0.ImageLayout, dst backend.Buffer, regions []core1_0.BufferImageCopy) {
	s.record("CopyImageToBuffer")
}

func (s *Stream) CopyImage(src backend.Image, srcLayout core1_0.ImageLayout, dst backend.Image, dstLayout core1_0.ImageLayout, regions []core1_0.ImageCopy) {
	s.record("CopyImage")
}

func (s *Stream) PipelineBarrier(srcStages, dstStages core1_0.PipelineStageFlags, buffers []backend.BufferBarrier, images []backend.ImageBarrier) {
	s.record("PipelineBarrier")
	s.Barriers = append(s.Barriers, Barrier{
		SrcStages: srcStages,
		DstStages: dstStages,
		Buffers:   buffers,
		Images:    images,
	})
}

func (s *Stream) SetEvent(event backend.Event, stages core1_0.PipelineStageFlags) {
	s.record("SetEvent")
}

func (s *Stream) ResetEvent(event backend.Event, stages core1_0.PipelineStageFlags) {
	s.record("ResetEvent")
}

func (s *Stream) WaitEvents(events []backend.Event, srcStages, dstStages core1_0.PipelineStageFlags) {
	s.record("WaitEvents")
}
