// Package fake provides an in-memory backend.Backend that counts every native object it
// hands out. It is used by tests to check that substrate never leaks a native handle
// and to control what the "device" reports.
package fake

import (
	"sync"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/memutils"
)

// Kind names a class of native object for live counting
type Kind string

const (
	KindMemory      Kind = "Memory"
	KindBuffer      Kind = "Buffer"
	KindImage       Kind = "Image"
	KindImageView   Kind = "ImageView"
	KindRenderPass  Kind = "RenderPass"
	KindFramebuffer Kind = "Framebuffer"
	KindFence       Kind = "Fence"
	KindSemaphore   Kind = "Semaphore"
	KindEvent       Kind = "Event"
	KindCommandPool Kind = "CommandPool"
	KindStream      Kind = "Stream"
)

const (
	TypeDeviceLocal = iota
	TypeHostVisible
	TypeHostCached
	TypeLazy
)

// DefaultCapabilities describes a discrete GPU with a 256MB device-local heap, a 64MB
// host heap and a lazily-allocated type
func DefaultCapabilities() backend.Capabilities {
	return backend.Capabilities{
		MemoryProperties: core1_0.PhysicalDeviceMemoryProperties{
			MemoryTypes: []core1_0.MemoryType{
				{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
				{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
				{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached, HeapIndex: 1},
				{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyLazilyAllocated, HeapIndex: 0},
			},
			MemoryHeaps: []core1_0.MemoryHeap{
				{Size: 256 * 1024 * 1024, Flags: core1_0.MemoryHeapDeviceLocal},
				{Size: 64 * 1024 * 1024},
			},
		},
		Limits: backend.Limits{
			MaxMemoryAllocationCount: 4096,
			NonCoherentAtomSize:      64,
			BufferImageGranularity:   1,
			MaxFramebufferWidth:      16384,
			MaxFramebufferHeight:     16384,
			MaxFramebufferLayers:     2048,
		},
		QueueFamilies: []backend.QueueFamily{
			{Index: 0, Type: backend.QueueGraphics},
			{Index: 1, Type: backend.QueueTransfer},
		},
	}
}

var allFormatSupport = backend.FormatSupport{
	Sampled:         true,
	Storage:         true,
	StorageAtomic:   true,
	ColorAttachment: true,
	DepthStencil:    true,
	TransferSrc:     true,
	TransferDst:     true,
}

// Backend is a counting in-memory backend. The exported fields may be changed between
// calls but not concurrently with them.
type Backend struct {
	caps backend.Capabilities

	// Formats overrides the support reported for a format. Formats not present are
	// fully supported.
	Formats map[core1_0.Format]backend.FormatSupport
	// MemoryTypeBits is reported in every buffer and image's memory requirements.
	// Zero means every memory type is allowed.
	MemoryTypeBits uint32
	// Alignment is reported in every buffer and image's memory requirements
	Alignment int
	// FailMemoryTypes makes AllocateMemory fail with the mapped error for those memory types
	FailMemoryTypes map[int]error
	// FailBind makes every BindMemory call fail
	FailBind error

	lock        sync.Mutex
	live        map[Kind]int
	created     map[Kind]int
	allocations []int
	queues      map[int]*Queue
}

var _ backend.Backend = &Backend{}

func New(caps backend.Capabilities) *Backend {
	return &Backend{
		caps:      caps,
		Alignment: 256,
		live:      make(map[Kind]int),
		created:   make(map[Kind]int),
		queues:    make(map[int]*Queue),
	}
}

func (b *Backend) track(kind Kind) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.live[kind]++
	b.created[kind]++
}

func (b *Backend) release(kind Kind) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.live[kind] == 0 {
		panic(errors.AssertionFailedf("released more %s objects than were created", kind))
	}
	b.live[kind]--
}

// Live returns how many objects of kind exist right now
func (b *Backend) Live(kind Kind) int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.live[kind]
}

// Created returns how many objects of kind were ever created
func (b *Backend) Created(kind Kind) int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.created[kind]
}

// LiveTotal returns how many objects of any kind exist right now
func (b *Backend) LiveTotal() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	var total int
	for _, count := range b.live {
		total += count
	}
	return total
}

// MemoryAllocations returns the memory type index of every successful AllocateMemory
// call, in call order
func (b *Backend) MemoryAllocations() []int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return append([]int(nil), b.allocations...)
}

func (b *Backend) Capabilities() *backend.Capabilities {
	return &b.caps
}

func (b *Backend) FormatSupport(format core1_0.Format) backend.FormatSupport {
	support, ok := b.Formats[format]
	if !ok {
		return allFormatSupport
	}
	return support
}

func (b *Backend) AllocateMemory(memoryTypeIndex int, size int) (backend.Memory, error) {
	if err, fail := b.FailMemoryTypes[memoryTypeIndex]; fail {
		return nil, err
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(b.caps.MemoryProperties.MemoryTypes) {
		return nil, errors.Newf("memory type %d does not exist", memoryTypeIndex)
	}

	heapIndex := b.caps.MemoryProperties.MemoryTypes[memoryTypeIndex].HeapIndex
	if size > b.caps.MemoryProperties.MemoryHeaps[heapIndex].Size {
		return nil, gpuerr.Exhausted(nil, "out of device memory")
	}

	b.track(KindMemory)

	b.lock.Lock()
	b.allocations = append(b.allocations, memoryTypeIndex)
	b.lock.Unlock()

	return &Memory{
		backend:   b,
		TypeIndex: memoryTypeIndex,
		data:      make([]byte, size),
	}, nil
}

func (b *Backend) requirements(size int) core1_0.MemoryRequirements {
	typeBits := b.MemoryTypeBits
	if typeBits == 0 {
		typeBits = uint32(1)<<len(b.caps.MemoryProperties.MemoryTypes) - 1
	}

	return core1_0.MemoryRequirements{
		Size:           memutils.AlignUp(size, uint(b.Alignment)),
		Alignment:      b.Alignment,
		MemoryTypeBits: typeBits,
	}
}

func (b *Backend) CreateBuffer(info backend.BufferInfo) (backend.Buffer, error) {
	if info.Size <= 0 {
		return nil, errors.Newf("invalid buffer size %d", info.Size)
	}

	b.track(KindBuffer)
	return &Buffer{backend: b, Info: info}, nil
}

func (b *Backend) CreateImage(info backend.ImageInfo) (backend.Image, error) {
	b.track(KindImage)
	return &Image{backend: b, Info: info}, nil
}

func (b *Backend) CreateImageView(image backend.Image, info backend.ImageViewInfo) (backend.ImageView, error) {
	b.track(KindImageView)
	return &ImageView{backend: b, Image: image, Info: info}, nil
}

func (b *Backend) CreateRenderPass(info backend.RenderPassInfo) (backend.RenderPass, error) {
	b.track(KindRenderPass)
	return &RenderPass{backend: b, Info: info}, nil
}

func (b *Backend) CreateFramebuffer(info backend.FramebufferInfo) (backend.Framebuffer, error) {
	b.track(KindFramebuffer)
	return &Framebuffer{backend: b, Info: info}, nil
}

func (b *Backend) CreateFence(signaled bool) (backend.Fence, error) {
	b.track(KindFence)
	return &Fence{backend: b, signaled: signaled}, nil
}

func (b *Backend) CreateSemaphore() (backend.Semaphore, error) {
	b.track(KindSemaphore)
	return &Semaphore{backend: b}, nil
}

func (b *Backend) CreateEvent() (backend.Event, error) {
	b.track(KindEvent)
	return &Event{backend: b}, nil
}

func (b *Backend) CreateCommandPool(queueFamily int) (backend.CommandPool, error) {
	if _, err := b.Queue(queueFamily); err != nil {
		return nil, err
	}

	b.track(KindCommandPool)
	return &CommandPool{backend: b, QueueFamily: queueFamily}, nil
}

func (b *Backend) Queue(queueFamily int) (backend.Queue, error) {
	return b.FakeQueue(queueFamily)
}

// FakeQueue returns the fake queue for a family so tests can control completion
func (b *Backend) FakeQueue(queueFamily int) (*Queue, error) {
	found := false
	for _, family := range b.caps.QueueFamilies {
		if family.Index == queueFamily {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Newf("queue family %d does not exist", queueFamily)
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	queue, ok := b.queues[queueFamily]
	if !ok {
		queue = &Queue{}
		b.queues[queueFamily] = queue
	}
	return queue, nil
}

func (b *Backend) WaitIdle() error {
	b.lock.Lock()
	queues := make([]*Queue, 0, len(b.queues))
	for _, queue := range b.queues {
		queues = append(queues, queue)
	}
	b.lock.Unlock()

	for _, queue := range queues {
		queue.Complete()
	}
	return nil
}

// Memory is backed by a Go byte slice
type Memory struct {
	backend   *Backend
	TypeIndex int
	data      []byte

	lock       sync.Mutex
	MapCalls   int
	UnmapCalls int
	Flushes    [][2]int
	mapped     bool
	freed      bool
}

func (m *Memory) Map(offset int, size int) (unsafe.Pointer, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.mapped {
		return nil, errors.New("memory is already mapped")
	}
	if offset < 0 || offset+size > len(m.data) {
		return nil, errors.Newf("map range [%d,%d) is outside the allocation", offset, offset+size)
	}

	m.mapped = true
	m.MapCalls++
	return unsafe.Pointer(&m.data[offset]), nil
}

func (m *Memory) Unmap() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.mapped {
		panic(errors.AssertionFailedf("memory unmapped while not mapped"))
	}
	m.mapped = false
	m.UnmapCalls++
}

func (m *Memory) Flush(offset int, size int) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.Flushes = append(m.Flushes, [2]int{offset, size})
	return nil
}

func (m *Memory) Invalidate(offset int, size int) error {
	return nil
}

// Mapped reports whether the memory is currently mapped
func (m *Memory) Mapped() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.mapped
}

func (m *Memory) Free() {
	m.lock.Lock()
	if m.freed {
		m.lock.Unlock()
		panic(errors.AssertionFailedf("memory freed twice"))
	}
	m.freed = true
	m.lock.Unlock()

	m.backend.release(KindMemory)
}

type Buffer struct {
	backend *Backend
	Info    backend.BufferInfo

	Memory    backend.Memory
	Offset    int
	destroyed bool
}

func (b *Buffer) MemoryRequirements() core1_0.MemoryRequirements {
	return b.backend.requirements(b.Info.Size)
}

func (b *Buffer) BindMemory(memory backend.Memory, offset int) error {
	if b.backend.FailBind != nil {
		return b.backend.FailBind
	}
	b.Memory = memory
	b.Offset = offset
	return nil
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		panic(errors.AssertionFailedf("buffer destroyed twice"))
	}
	b.destroyed = true
	b.backend.release(KindBuffer)
}

type Image struct {
	backend *Backend
	Info    backend.ImageInfo

	Memory    backend.Memory
	Offset    int
	destroyed bool
}

func (i *Image) MemoryRequirements() core1_0.MemoryRequirements {
	size := i.Info.Extent.Width * i.Info.Extent.Height * i.Info.Extent.Depth * i.Info.ArrayLayers * 4
	samples := int(i.Info.Samples)
	if samples > 1 {
		size *= samples
	}
	// Mip chain fits in a third of the base level
	if i.Info.MipLevels > 1 {
		size += size / 3
	}
	return i.backend.requirements(size)
}

func (i *Image) BindMemory(memory backend.Memory, offset int) error {
	if i.backend.FailBind != nil {
		return i.backend.FailBind
	}
	i.Memory = memory
	i.Offset = offset
	return nil
}

func (i *Image) Destroy() {
	if i.destroyed {
		panic(errors.AssertionFailedf("image destroyed twice"))
	}
	i.destroyed = true
	i.backend.release(KindImage)
}

// NewPresentable returns an image owned by a swapchain. It is not counted and must not
// be destroyed by substrate.
func NewPresentable(format core1_0.Format, width, height int) *Image {
	return &Image{
		Info: backend.ImageInfo{
			Type:        core1_0.ImageType2D,
			Format:      format,
			Extent:      core1_0.Extent3D{Width: width, Height: height, Depth: 1},
			MipLevels:   1,
			ArrayLayers: 1,
			Samples:     core1_0.Samples1,
			Usage:       core1_0.ImageUsageColorAttachment,
		},
	}
}

type ImageView struct {
	backend *Backend
	Image   backend.Image
	Info    backend.ImageViewInfo
}

func (v *ImageView) Destroy() {
	v.backend.release(KindImageView)
}

type RenderPass struct {
	backend *Backend
	Info    backend.RenderPassInfo
}

func (p *RenderPass) Destroy() {
	p.backend.release(KindRenderPass)
}

type Framebuffer struct {
	backend *Backend
	Info    backend.FramebufferInfo
}

func (f *Framebuffer) Destroy() {
	f.backend.release(KindFramebuffer)
}

// Pipeline stands in for a pipeline compiled outside substrate
type Pipeline struct {
	Point core1_0.PipelineBindPoint
}

func (p Pipeline) BindPoint() core1_0.PipelineBindPoint {
	return p.Point
}

type Fence struct {
	backend *Backend

	lock     sync.Mutex
	signaled bool
	// Lost makes every wait and status call report a lost device
	Lost bool
}

// Signal marks the fence as signaled, as the GPU would on completing a submission
func (f *Fence) Signal() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.signaled = true
}

// Wait never blocks: an unsignaled fence is reported as an expired timeout
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	return f.Status()
}

func (f *Fence) Status() (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.Lost {
		return false, gpuerr.DeviceLost(errors.New("VK_ERROR_DEVICE_LOST"), "fence status")
	}
	return f.signaled, nil
}

func (f *Fence) Reset() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.signaled = false
	return nil
}

func (f *Fence) Destroy() {
	f.backend.release(KindFence)
}

type Semaphore struct {
	backend *Backend
}

func (s *Semaphore) Destroy() {
	s.backend.release(KindSemaphore)
}

type Event struct {
	backend *Backend

	lock sync.Mutex
	set  bool
}

func (e *Event) Set() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.set = true
	return nil
}

func (e *Event) Reset() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.set = false
	return nil
}

func (e *Event) Status() (bool, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.set, nil
}

func (e *Event) Destroy() {
	e.backend.release(KindEvent)
}

type CommandPool struct {
	backend     *Backend
	QueueFamily int
}

func (p *CommandPool) AllocateStream() (backend.CommandStream, error) {
	p.backend.track(KindStream)
	return &Stream{}, nil
}

func (p *CommandPool) FreeStream(stream backend.CommandStream) {
	p.backend.release(KindStream)
}

func (p *CommandPool) Destroy() {
	p.backend.release(KindCommandPool)
}

// Queue records submissions. Fences are signaled on submit unless Hold is set, in which
// case they stay pending until Complete is called.
type Queue struct {
	lock        sync.Mutex
	Hold        bool
	Submissions []backend.Submission
	pending     []*Fence
	// FailSubmit makes the next Submit call fail
	FailSubmit error
}

func (q *Queue) Submit(submission backend.Submission, fence backend.Fence) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.FailSubmit != nil {
		err := q.FailSubmit
		q.FailSubmit = nil
		return err
	}

	q.Submissions = append(q.Submissions, submission)
	if fence == nil {
		return nil
	}

	f := fence.(*Fence)
	if q.Hold {
		q.pending = append(q.pending, f)
	} else {
		f.Signal()
	}
	return nil
}

// Complete signals every pending fence
func (q *Queue) Complete() {
	q.lock.Lock()
	defer q.lock.Unlock()

	for _, fence := range q.pending {
		fence.Signal()
	}
	q.pending = nil
}

// SubmissionCount returns the number of accepted submissions
func (q *Queue) SubmissionCount() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.Submissions)
}

func (q *Queue) WaitIdle() error {
	q.Complete()
	return nil
}
