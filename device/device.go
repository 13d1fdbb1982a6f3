// Package device ties the substrate components to one backend. A Device resolves the
// backend's capabilities once and hands every component it creates the same logger,
// backend and configuration.
package device

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/command"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/gpusync"
	"github.com/vkngwrapper/substrate/memory"
	"github.com/vkngwrapper/substrate/pass"
	"github.com/vkngwrapper/substrate/resource"
	"golang.org/x/sync/errgroup"
)

// Device owns the allocator, queues and builders for one backend
type Device struct {
	id      uuid.UUID
	logger  *slog.Logger
	backend backend.Backend
	config  Config

	allocator *memory.Allocator
	factory   *resource.Factory
	builder   *pass.Builder

	// one queue per family, in the order the backend reported them
	queues    []*command.Queue
	destroyed bool
}

// New creates a Device over b. Zero fields of config take their DefaultConfig values.
func New(logger *slog.Logger, b backend.Backend, config Config) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = defaults.WaitTimeout
	}
	if config.RecycleLimit <= 0 {
		config.RecycleLimit = defaults.RecycleLimit
	}

	id := uuid.New()
	logger = logger.With(slog.String("Device", id.String()))

	caps := b.Capabilities()
	if len(caps.QueueFamilies) == 0 {
		return nil, gpuerr.Unsupported("the backend reported no queue families")
	}

	allocator, err := memory.NewAllocator(logger, b, config.allocatorOptions())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create memory allocator")
	}

	queues := make([]*command.Queue, 0, len(caps.QueueFamilies))
	for _, family := range caps.QueueFamilies {
		queue, err := command.NewQueue(logger, b, family)
		if err != nil {
			return nil, err
		}
		queues = append(queues, queue)
	}

	logger.Debug("Device::New",
		slog.Int("QueueFamilies", len(queues)),
		slog.Int("MemoryTypes", allocator.Selector().TypeCount()),
		slog.Duration("WaitTimeout", config.WaitTimeout),
	)

	return &Device{
		id:        id,
		logger:    logger,
		backend:   b,
		config:    config,
		allocator: allocator,
		factory:   resource.NewFactory(logger, b),
		builder:   pass.NewBuilder(logger, b),
		queues:    queues,
	}, nil
}

// ID is the device's identity in logs and stats
func (d *Device) ID() uuid.UUID { return d.id }

// Config is the configuration the device was opened with, defaults applied
func (d *Device) Config() Config { return d.config }

func (d *Device) Backend() backend.Backend { return d.backend }

func (d *Device) Allocator() *memory.Allocator { return d.allocator }

// Queue returns the first queue of the given type
func (d *Device) Queue(queueType backend.QueueType) (*command.Queue, error) {
	for _, queue := range d.queues {
		if queue.Family().Type == queueType {
			return queue, nil
		}
	}
	return nil, gpuerr.Unsupported("the device has no %s queue", queueType)
}

// CreateHeap allocates a heap of size bytes for usage
func (d *Device) CreateHeap(usage memory.UsageClass, size int) (*memory.Heap, error) {
	return d.allocator.AllocateHeap(usage, size)
}

// CreateTransientHeap allocates from lazily-allocated memory if the device has any
func (d *Device) CreateTransientHeap(size int) (*memory.Heap, error) {
	return d.allocator.AllocateTransientHeap(size)
}

// CreateBuffer suballocates a buffer of typ from heap
func (d *Device) CreateBuffer(heap *memory.Heap, typ resource.BufferType, size int) (*resource.Buffer, error) {
	return d.factory.CreateBuffer(heap, typ, size)
}

// CreateTexture suballocates a texture from heap
func (d *Device) CreateTexture(heap *memory.Heap, state resource.TextureState) (*resource.Texture, error) {
	return d.factory.CreateTexture(heap, state)
}

// CreateView creates a view of texture. FormatUndefined keeps the texture's format and
// a zero Count in mips or layers extends the range to the end.
func (d *Device) CreateView(texture *resource.Texture, typ resource.TextureType, format core1_0.Format, mips, layers resource.Range) (*resource.TextureView, error) {
	return texture.View(typ, format, mips, layers)
}

// WrapPresentable adopts a swapchain image
func (d *Device) WrapPresentable(native backend.Image, state resource.TextureState) *resource.Texture {
	return d.factory.WrapPresentable(native, state)
}

func (d *Device) CreateRenderPass(colors []pass.ColorAttachment, depth *pass.DepthStencilAttachment) (*pass.RenderPass, error) {
	return d.builder.CreateRenderPass(colors, depth)
}

// CreateFramebuffer binds views, in color slot order, to renderPass
func (d *Device) CreateFramebuffer(renderPass *pass.RenderPass, resolution core1_0.Extent2D, layers int, views []*resource.TextureView, depthView *resource.TextureView) (*pass.Framebuffer, error) {
	return d.builder.CreateFramebuffer(renderPass, resolution, layers, views, depthView)
}

// CreateCommandPool creates a pool for the first queue of the given type. The pool
// belongs to the calling goroutine.
func (d *Device) CreateCommandPool(queueType backend.QueueType) (*command.Pool, error) {
	queue, err := d.Queue(queueType)
	if err != nil {
		return nil, err
	}
	return command.NewPool(d.logger, d.backend, queue, d.config.poolOptions())
}

// CreateCommandRecorder returns an idle recorder from pool
func (d *Device) CreateCommandRecorder(pool *command.Pool) (*command.Recorder, error) {
	return pool.NewRecorder()
}

func (d *Device) CreateFence(signaled bool) (*gpusync.Fence, error) {
	return gpusync.NewFence(d.logger, d.backend, signaled)
}

func (d *Device) CreateSemaphore() (*gpusync.Semaphore, error) {
	return gpusync.NewSemaphore(d.backend)
}

func (d *Device) CreateEvent() (*gpusync.Event, error) {
	return gpusync.NewEvent(d.backend)
}

// WaitIdle waits for every queue to drain
func (d *Device) WaitIdle() error {
	var group errgroup.Group
	for _, queue := range d.queues {
		queue := queue
		group.Go(queue.WaitIdle)
	}
	return group.Wait()
}

// StatsJSON describes the device's queues and memory as a json document. When
// detailedMap is true every heap's sub-allocations are listed.
func (d *Device) StatsJSON(detailedMap bool) (string, error) {
	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Device").String(d.id.String())

	queuesArr := obj.Name("Queues").Array()
	for _, queue := range d.queues {
		queueObj := queuesArr.Object()
		queueObj.Name("Family").Int(queue.Family().Index)
		queueObj.Name("Type").String(queue.Family().Type.String())
		queueObj.Name("Submissions").Int(queue.Submissions())
		queueObj.End()
	}
	queuesArr.End()

	budgetsArr := obj.Name("Budgets").Array()
	for _, budget := range d.allocator.HeapBudgets() {
		budgetObj := budgetsArr.Object()
		budgetObj.Name("Heap").Int(budget.HeapIndex)
		budgetObj.Name("BlockCount").Int(budget.BlockCount)
		budgetObj.Name("BlockBytes").Int(budget.BlockBytes)
		budgetObj.Name("Budget").Int(budget.Budget)
		budgetObj.End()
	}
	budgetsArr.End()

	memoryObj := obj.Name("Memory").Object()
	d.allocator.BuildStatsJSON(&memoryObj, detailedMap)
	memoryObj.End()

	obj.End()

	err := writer.Error()
	if err != nil {
		return "", errors.Wrap(err, "failed to build device stats")
	}
	return string(writer.Bytes()), nil
}

// Destroy waits for the device to go idle. Every heap must already have been destroyed;
// if any remain the device is left usable and an error marked gpuerr.ErrInvalidState is
// returned.
func (d *Device) Destroy() error {
	if d.destroyed {
		gpuerr.Precondition("device destroyed twice")
	}

	err := d.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "failed to wait for device idle")
	}

	remaining := d.allocator.AllocationCount()
	if remaining > 0 {
		d.logger.Error("Device::Destroy with live heaps", slog.Int("Heaps", remaining))
		return gpuerr.InvalidState("device destroyed with %d live heaps", remaining)
	}

	d.destroyed = true
	d.logger.Debug("Device::Destroy")
	return nil
}
