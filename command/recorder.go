package command

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/access"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/gpusync"
	"github.com/vkngwrapper/substrate/pass"
	"github.com/vkngwrapper/substrate/resource"
)

// State is a Recorder's position in its lifecycle
type State int

const (
	// StateIdle recorders have not been started
	StateIdle State = iota
	// StateStarted recorders accept transfer, barrier and event commands
	StateStarted
	// StateEncoding recorders are inside a render pass and accept draw commands
	StateEncoding
	// StateCommitted recorders have been submitted and accept nothing further
	StateCommitted
)

var stateNames = map[State]string{
	StateIdle:      "Idle",
	StateStarted:   "Started",
	StateEncoding:  "Encoding",
	StateCommitted: "Committed",
}

func (s State) String() string {
	return stateNames[s]
}

const (
	// DrawIndirectStride is the size of one non-indexed indirect draw entry
	DrawIndirectStride = 16
	// DrawIndexedIndirectStride is the size of one indexed indirect draw entry
	DrawIndexedIndirectStride = 20
	// AllRemaining as an indirect draw count consumes every entry up to the end of the
	// argument buffer
	AllRemaining = -1
)

// SemaphoreWait delays a submission's stages until a semaphore is signaled
type SemaphoreWait struct {
	Semaphore *gpusync.Semaphore
	Stages    core1_0.PipelineStageFlags
}

// CommitOptions lists the semaphores a submission waits on and signals
type CommitOptions struct {
	Wait   []SemaphoreWait
	Signal []*gpusync.Semaphore
}

// Recorder encodes commands into one native stream. Commands issued in the wrong state
// return an error marked gpuerr.ErrInvalidState and encode nothing.
//
// Resource state is tracked by the caller: every barrier names both the intent the
// resource was last used with and the intent it is about to be used with.
type Recorder struct {
	pool  *Pool
	slot  *slot
	state State

	pass      *pass.RenderPass
	destroyed bool
}

func newRecorder(pool *Pool, s *slot) *Recorder {
	return &Recorder{
		pool: pool,
		slot: s,
	}
}

// State is the recorder's current position in Idle, Started, Encoding, Committed
func (r *Recorder) State() State { return r.state }

func (r *Recorder) Native() backend.CommandStream { return r.slot.stream }

func (r *Recorder) require(op string, states ...State) error {
	if r.destroyed {
		gpuerr.Precondition("%s called on a destroyed recorder", op)
	}
	for _, state := range states {
		if r.state == state {
			return nil
		}
	}
	return gpuerr.InvalidState("%s is not allowed while the recorder is %s", op, r.state)
}

// Start opens the native stream for recording
func (r *Recorder) Start() error {
	err := r.require("Start", StateIdle)
	if err != nil {
		return err
	}

	err = r.slot.stream.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin command stream")
	}

	r.state = StateStarted
	return nil
}

// BeginRenderPass starts rendering into framebuffer, which must have been built for
// renderPass. The render area is the whole framebuffer.
func (r *Recorder) BeginRenderPass(renderPass *pass.RenderPass, framebuffer *pass.Framebuffer, clear pass.Clear) error {
	err := r.require("BeginRenderPass", StateStarted)
	if err != nil {
		return err
	}

	if framebuffer.RenderPass() != renderPass {
		gpuerr.Precondition("framebuffer was not built for this render pass")
	}

	clearValues := renderPass.ClearValues(clear)
	area := core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: framebuffer.Resolution(),
	}

	r.slot.stream.BeginRenderPass(renderPass.Native(), framebuffer.Native(), area, clearValues)
	r.pass = renderPass
	r.state = StateEncoding
	return nil
}

// EndRenderPass closes the open render pass, returning the recorder to Started
func (r *Recorder) EndRenderPass() error {
	err := r.require("EndRenderPass", StateEncoding)
	if err != nil {
		return err
	}

	r.slot.stream.EndRenderPass()
	r.pass = nil
	r.state = StateStarted
	return nil
}

// BindPipeline binds a compiled pipeline. Graphics pipelines may only be bound inside a
// render pass and compute pipelines only outside one.
func (r *Recorder) BindPipeline(pipeline backend.Pipeline) error {
	state := StateStarted
	if pipeline.BindPoint() == core1_0.PipelineBindPointGraphics {
		state = StateEncoding
	}

	err := r.require("BindPipeline", state)
	if err != nil {
		return err
	}

	r.slot.stream.BindPipeline(pipeline)
	return nil
}

func (r *Recorder) BindVertexBuffers(firstBinding int, buffers []*resource.Buffer, offsets []int) error {
	err := r.require("BindVertexBuffers", StateEncoding)
	if err != nil {
		return err
	}

	if len(buffers) != len(offsets) {
		gpuerr.Precondition("%d vertex buffers were given with %d offsets", len(buffers), len(offsets))
	}

	natives := make([]backend.Buffer, len(buffers))
	for i, buffer := range buffers {
		if buffer.Type()&resource.BufferVertex == 0 {
			gpuerr.Precondition("vertex buffer %d has type %s", i, buffer.Type())
		}
		if offsets[i] < 0 || offsets[i] >= buffer.Size() {
			gpuerr.Precondition("vertex buffer %d offset %d is outside a buffer of %d bytes", i, offsets[i], buffer.Size())
		}
		natives[i] = buffer.Native()
	}

	r.slot.stream.BindVertexBuffers(firstBinding, natives, offsets)
	return nil
}

func (r *Recorder) BindIndexBuffer(buffer *resource.Buffer, offset int, indexType core1_0.IndexType) error {
	err := r.require("BindIndexBuffer", StateEncoding)
	if err != nil {
		return err
	}

	if buffer.Type()&resource.BufferIndex == 0 {
		gpuerr.Precondition("index buffer has type %s", buffer.Type())
	}
	if offset < 0 || offset >= buffer.Size() {
		gpuerr.Precondition("index buffer offset %d is outside a buffer of %d bytes", offset, buffer.Size())
	}

	r.slot.stream.BindIndexBuffer(buffer.Native(), offset, indexType)
	return nil
}

// Draw records a non-indexed draw. Valid only inside a render pass.
func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) error {
	err := r.require("Draw", StateEncoding)
	if err != nil {
		return err
	}

	r.slot.stream.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

// DrawIndexed records an indexed draw from the bound index buffer. Valid only inside a
// render pass.
func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) error {
	err := r.require("DrawIndexed", StateEncoding)
	if err != nil {
		return err
	}

	r.slot.stream.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	return nil
}

// DrawIndirect issues count draws whose arguments are read from buffer, starting at
// entry firstEntry. A count of AllRemaining draws every entry up to the end of buffer.
func (r *Recorder) DrawIndirect(buffer *resource.Buffer, firstEntry int, count int) error {
	err := r.require("DrawIndirect", StateEncoding)
	if err != nil {
		return err
	}

	offset, count := indirectRange(buffer, firstEntry, count, DrawIndirectStride)
	r.slot.stream.DrawIndirect(buffer.Native(), offset, count, DrawIndirectStride)
	return nil
}

// DrawIndexedIndirect is DrawIndirect for indexed draws
func (r *Recorder) DrawIndexedIndirect(buffer *resource.Buffer, firstEntry int, count int) error {
	err := r.require("DrawIndexedIndirect", StateEncoding)
	if err != nil {
		return err
	}

	offset, count := indirectRange(buffer, firstEntry, count, DrawIndexedIndirectStride)
	r.slot.stream.DrawIndexedIndirect(buffer.Native(), offset, count, DrawIndexedIndirectStride)
	return nil
}

func indirectRange(buffer *resource.Buffer, firstEntry, count, stride int) (int, int) {
	if buffer.Type()&resource.BufferIndirect == 0 {
		gpuerr.Precondition("indirect argument buffer has type %s", buffer.Type())
	}
	if firstEntry < 0 {
		gpuerr.Precondition("indirect entry %d is negative", firstEntry)
	}

	offset := firstEntry * stride
	available := (buffer.Size() - offset) / stride
	if offset > buffer.Size() {
		available = 0
	}

	if count == AllRemaining {
		count = available
	}
	if count < 1 || count > available {
		gpuerr.Precondition("%d indirect entries from entry %d do not fit a buffer of %d bytes", count, firstEntry, buffer.Size())
	}
	return offset, count
}

// CopyBuffer copies byte regions between buffers. src must be in its CopySource state
// and dst in its CopyDestination state.
func (r *Recorder) CopyBuffer(src, dst *resource.Buffer, regions []core1_0.BufferCopy) error {
	err := r.require("CopyBuffer", StateStarted)
	if err != nil {
		return err
	}

	for _, region := range regions {
		src.ResolveRange(resource.ByteRange{Offset: region.SrcOffset, Size: region.Size})
		dst.ResolveRange(resource.ByteRange{Offset: region.DstOffset, Size: region.Size})
	}

	r.slot.stream.CopyBuffer(src.Native(), dst.Native(), regions)
	return nil
}

// CopyBufferToTexture uploads buffer contents into dst, which must be in its
// CopyDestination state
func (r *Recorder) CopyBufferToTexture(src *resource.Buffer, dst *resource.Texture, regions []core1_0.BufferImageCopy) error {
	err := r.require("CopyBufferToTexture", StateStarted)
	if err != nil {
		return err
	}

	layout := access.Translate(access.CopyDestination, access.KindTexture, dst.Format()).Layout
	r.slot.stream.CopyBufferToImage(src.Native(), dst.Native(), layout, regions)
	return nil
}

// CopyTextureToBuffer reads src, which must be in its CopySource state, back into a buffer
func (r *Recorder) CopyTextureToBuffer(src *resource.Texture, dst *resource.Buffer, regions []core1_0.BufferImageCopy) error {
	err := r.require("CopyTextureToBuffer", StateStarted)
	if err != nil {
		return err
	}

	layout := access.Translate(access.CopySource, access.KindTexture, src.Format()).Layout
	r.slot.stream.CopyImageToBuffer(src.Native(), layout, dst.Native(), regions)
	return nil
}

func (r *Recorder) CopyTexture(src, dst *resource.Texture, regions []core1_0.ImageCopy) error {
	err := r.require("CopyTexture", StateStarted)
	if err != nil {
		return err
	}

	srcLayout := access.Translate(access.CopySource, access.KindTexture, src.Format()).Layout
	dstLayout := access.Translate(access.CopyDestination, access.KindTexture, dst.Format()).Layout
	r.slot.stream.CopyImage(src.Native(), srcLayout, dst.Native(), dstLayout, regions)
	return nil
}

// BufferBarrier makes work done on buffer with intent from visible to work done with
// intent to. byteRange limits the barrier to part of the buffer; nil covers all of it.
func (r *Recorder) BufferBarrier(buffer *resource.Buffer, from, to access.Intent, byteRange *resource.ByteRange) error {
	err := r.require("BufferBarrier", StateStarted)
	if err != nil {
		return err
	}

	src := access.Translate(from, access.KindBuffer, core1_0.FormatUndefined)
	dst := access.Translate(to, access.KindBuffer, core1_0.FormatUndefined)
	r.bufferBarrier(buffer, src.Access, dst.Access, src.Stages, dst.Stages, byteRange)
	return nil
}

// InitialBufferBarrier is the first barrier of a freshly created buffer. It panics if the
// buffer already had one.
func (r *Recorder) InitialBufferBarrier(buffer *resource.Buffer, to access.Intent) error {
	err := r.require("InitialBufferBarrier", StateStarted)
	if err != nil {
		return err
	}

	dst := access.Translate(to, access.KindBuffer, core1_0.FormatUndefined)
	if !buffer.MarkInitialized() {
		gpuerr.Precondition("buffer already received its initial barrier")
	}
	r.bufferBarrier(buffer, 0, dst.Access, core1_0.PipelineStageTopOfPipe, dst.Stages, nil)
	return nil
}

func (r *Recorder) bufferBarrier(buffer *resource.Buffer, srcAccess, dstAccess core1_0.AccessFlags, srcStages, dstStages core1_0.PipelineStageFlags, byteRange *resource.ByteRange) {
	full := resource.ByteRange{Offset: 0, Size: -1}
	if byteRange != nil {
		full = *byteRange
	}
	resolved := buffer.ResolveRange(full)

	r.slot.stream.PipelineBarrier(srcStages, dstStages, []backend.BufferBarrier{
		{
			Buffer:    buffer.Native(),
			SrcAccess: srcAccess,
			DstAccess: dstAccess,
			Offset:    resolved.Offset,
			Size:      resolved.Size,
		},
	}, nil)
}

// TextureBarrier moves texture from its from-intent state to its to-intent state,
// transitioning its layout if the two differ. subresources limits the barrier to part
// of the texture; nil covers all of it.
func (r *Recorder) TextureBarrier(texture *resource.Texture, from, to access.Intent, subresources *core1_0.ImageSubresourceRange) error {
	err := r.require("TextureBarrier", StateStarted)
	if err != nil {
		return err
	}

	src := access.Translate(from, access.KindTexture, texture.Format())
	dst := access.Translate(to, access.KindTexture, texture.Format())
	r.textureBarrier(texture, src, dst, subresources)
	return nil
}

// InitialTextureBarrier is the first barrier of a freshly created texture. Prior
// contents are discarded. It panics if the texture already had one.
func (r *Recorder) InitialTextureBarrier(texture *resource.Texture, to access.Intent) error {
	err := r.require("InitialTextureBarrier", StateStarted)
	if err != nil {
		return err
	}

	dst := access.Translate(to, access.KindTexture, texture.Format())
	if !texture.MarkInitialized() {
		gpuerr.Precondition("texture already received its initial barrier")
	}

	src := access.Native{
		Access: 0,
		Layout: core1_0.ImageLayoutUndefined,
		Stages: core1_0.PipelineStageTopOfPipe,
	}
	r.textureBarrier(texture, src, dst, nil)
	return nil
}

func (r *Recorder) textureBarrier(texture *resource.Texture, src, dst access.Native, subresources *core1_0.ImageSubresourceRange) {
	subresourceRange := texture.FullRange()
	if subresources != nil {
		texture.CheckRange(*subresources)
		subresourceRange = *subresources
	}

	r.slot.stream.PipelineBarrier(src.Stages, dst.Stages, nil, []backend.ImageBarrier{
		{
			Image:     texture.Native(),
			SrcAccess: src.Access,
			DstAccess: dst.Access,
			OldLayout: src.Layout,
			NewLayout: dst.Layout,
			Range:     subresourceRange,
		},
	})
}

func (r *Recorder) SetEvent(event *gpusync.Event, stages core1_0.PipelineStageFlags) error {
	err := r.require("SetEvent", StateStarted)
	if err != nil {
		return err
	}

	r.slot.stream.SetEvent(event.Native(), stages)
	return nil
}

func (r *Recorder) ResetEvent(event *gpusync.Event, stages core1_0.PipelineStageFlags) error {
	err := r.require("ResetEvent", StateStarted)
	if err != nil {
		return err
	}

	r.slot.stream.ResetEvent(event.Native(), stages)
	return nil
}

// WaitEvents holds dstStages of later commands until every event is set by srcStages
func (r *Recorder) WaitEvents(events []*gpusync.Event, srcStages, dstStages core1_0.PipelineStageFlags) error {
	err := r.require("WaitEvents", StateStarted)
	if err != nil {
		return err
	}

	natives := make([]backend.Event, len(events))
	for i, event := range events {
		natives[i] = event.Native()
	}

	r.slot.stream.WaitEvents(natives, srcStages, dstStages)
	return nil
}

// Commit closes the stream and submits it to the pool's queue. It succeeds at most once.
// A render pass must be ended first.
func (r *Recorder) Commit(options CommitOptions) error {
	err := r.require("Commit", StateStarted)
	if err != nil {
		return err
	}

	err = r.slot.stream.End()
	if err != nil {
		return errors.Wrap(err, "failed to end command stream")
	}
	r.state = StateCommitted

	submission := backend.Submission{
		Streams: []backend.CommandStream{r.slot.stream},
	}
	for _, wait := range options.Wait {
		submission.Wait = append(submission.Wait, backend.SemaphoreWait{
			Semaphore: wait.Semaphore.Native(),
			Stages:    wait.Stages,
		})
	}
	for _, signal := range options.Signal {
		submission.Signal = append(submission.Signal, signal.Native())
	}

	err = r.pool.queue.Submit(submission, r.slot.fence)
	if err != nil {
		return err
	}

	r.slot.submitted = true
	return nil
}

// WaitUntilCompleted blocks until the committed work has finished on the GPU. Waiting
// longer than the pool's WaitTimeout reports gpuerr.ErrDeviceHang.
func (r *Recorder) WaitUntilCompleted() error {
	err := r.require("WaitUntilCompleted", StateCommitted)
	if err != nil {
		return err
	}
	if !r.slot.submitted {
		return gpuerr.InvalidState("recorder was committed but its submission failed")
	}

	return r.slot.fence.Wait(r.pool.options.WaitTimeout)
}

// Destroy hands the recorder's stream back to its pool. A recorder that was started but
// not committed is committed first, ending any open render pass. The stream is only
// reused once the queue has finished with it.
func (r *Recorder) Destroy() error {
	if r.destroyed {
		gpuerr.Precondition("recorder destroyed twice")
	}

	var commitErr error
	if r.state == StateEncoding {
		commitErr = r.EndRenderPass()
	}
	if r.state == StateStarted {
		commitErr = r.Commit(CommitOptions{})
	}
	if commitErr != nil {
		r.pool.logger.Error("Recorder::Destroy failed to commit", slog.Any("error", commitErr))
	}

	r.destroyed = true
	return errors.CombineErrors(commitErr, r.pool.release(r.slot))
}
