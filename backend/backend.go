// Package backend declares the native capabilities substrate needs from a graphics API.
//
// Every substrate component is a concrete type that holds a Backend, resolved once when
// the device is created. The vocabulary (memory property flags, access masks, image
// layouts, pipeline stages) is Vulkan's, as exposed by vkngwrapper core1_0, since that is
// the most explicit of the native APIs and the others can be mapped onto it.
package backend

//go:generate mockgen -destination=mocks/stream.go -package=mocks github.com/vkngwrapper/substrate/backend CommandStream
//go:generate mockgen -destination=mocks/pool.go -package=mocks github.com/vkngwrapper/substrate/backend CommandPool

import (
	"time"
	"unsafe"

	"github.com/vkngwrapper/core/v2/core1_0"
)

// QueueType classifies a queue family by the work it accepts
type QueueType int

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
)

var queueTypeNames = map[QueueType]string{
	QueueGraphics: "Graphics",
	QueueCompute:  "Compute",
	QueueTransfer: "Transfer",
}

func (t QueueType) String() string {
	return queueTypeNames[t]
}

// QueueFamily is one entry of the device's queue-family to queue-type mapping
type QueueFamily struct {
	Index int
	Type  QueueType
}

// Limits are the device limits substrate consults
type Limits struct {
	MaxMemoryAllocationCount int
	NonCoherentAtomSize      int
	BufferImageGranularity   int
	MaxFramebufferWidth      int
	MaxFramebufferHeight     int
	MaxFramebufferLayers     int
}

// FormatSupport describes what a format can be used for with optimal tiling
type FormatSupport struct {
	Sampled         bool
	Storage         bool
	StorageAtomic   bool
	ColorAttachment bool
	DepthStencil    bool
	TransferSrc     bool
	TransferDst     bool
}

// Capabilities is the read-only device description supplied once at device creation
type Capabilities struct {
	MemoryProperties core1_0.PhysicalDeviceMemoryProperties
	Limits           Limits
	QueueFamilies    []QueueFamily
	// CombinedDepthStencilOps is set when the backend cannot give depth and stencil
	// separate load and store operations
	CombinedDepthStencilOps bool
	// SparseResidency is set when textures can be created with sparse backing
	SparseResidency bool
}

// Backend creates native objects. Implementations must be safe for concurrent use.
type Backend interface {
	Capabilities() *Capabilities
	FormatSupport(format core1_0.Format) FormatSupport

	AllocateMemory(memoryTypeIndex int, size int) (Memory, error)

	CreateBuffer(info BufferInfo) (Buffer, error)
	CreateImage(info ImageInfo) (Image, error)
	CreateImageView(image Image, info ImageViewInfo) (ImageView, error)

	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateEvent() (Event, error)

	CreateCommandPool(queueFamily int) (CommandPool, error)
	Queue(queueFamily int) (Queue, error)
	WaitIdle() error
}

// Memory is one native device memory allocation
type Memory interface {
	Map(offset int, size int) (unsafe.Pointer, error)
	Unmap()
	Flush(offset int, size int) error
	Invalidate(offset int, size int) error
	Free()
}

// Buffer is a native buffer object. It is created unbound.
type Buffer interface {
	MemoryRequirements() core1_0.MemoryRequirements
	BindMemory(memory Memory, offset int) error
	Destroy()
}

// Image is a native image object. It is created unbound, except for presentable
// images which are owned by the swapchain.
type Image interface {
	MemoryRequirements() core1_0.MemoryRequirements
	BindMemory(memory Memory, offset int) error
	Destroy()
}

// ImageView is a native view over an image
type ImageView interface {
	Destroy()
}

// RenderPass is a native single-subpass render pass
type RenderPass interface {
	Destroy()
}

// Framebuffer is a native framebuffer
type Framebuffer interface {
	Destroy()
}

// Pipeline is a compiled graphics or compute pipeline. Pipelines are built outside
// substrate and only bound through it.
type Pipeline interface {
	BindPoint() core1_0.PipelineBindPoint
}

// Fence is a GPU to CPU signal
type Fence interface {
	// Wait blocks until the fence is signaled or the timeout expires. It returns false
	// with no error on timeout.
	Wait(timeout time.Duration) (bool, error)
	Status() (bool, error)
	Reset() error
	Destroy()
}

// Semaphore is a GPU to GPU ordering primitive
type Semaphore interface {
	Destroy()
}

// Event can be set and reset from either the CPU or a command stream
type Event interface {
	Set() error
	Reset() error
	Status() (bool, error)
	Destroy()
}

// CommandPool allocates command streams for a single queue family. Pools are not safe
// for concurrent use.
type CommandPool interface {
	AllocateStream() (CommandStream, error)
	FreeStream(stream CommandStream)
	Destroy()
}

// Queue accepts submissions. Submissions to one Queue must be externally synchronized.
type Queue interface {
	Submit(submission Submission, fence Fence) error
	WaitIdle() error
}

// SemaphoreWait is a semaphore a submission waits on, scoped to the stages that need it
type SemaphoreWait struct {
	Semaphore Semaphore
	Stages    core1_0.PipelineStageFlags
}

// Submission is a batch of command streams submitted together
type Submission struct {
	Streams []CommandStream
	Wait    []SemaphoreWait
	Signal  []Semaphore
}
