// Package vulkan implements backend.Backend on vkngwrapper's core 1.0 API.
package vulkan

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
)

// CreateOptions describes the logical device the backend wraps
type CreateOptions struct {
	// QueueFamilies lists the queue family indices the logical device was created with.
	// Queue 0 of each family is used.
	QueueFamilies []int
}

// Backend implements backend.Backend on a vkngwrapper logical device
type Backend struct {
	logger         *slog.Logger
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	caps           backend.Capabilities

	formatLock sync.Mutex
	formats    *swiss.Map[core1_0.Format, backend.FormatSupport]

	queueLock sync.Mutex
	queues    map[int]*Queue
}

var _ backend.Backend = &Backend{}

// New wraps device, which must have been created from physicalDevice with the queue
// families listed in options. Capabilities are read once.
func New(logger *slog.Logger, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, options CreateOptions) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	properties, err := physicalDevice.Properties()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read physical device properties")
	}

	familyProperties := physicalDevice.QueueFamilyProperties()
	families := make([]backend.QueueFamily, 0, len(options.QueueFamilies))
	for _, index := range options.QueueFamilies {
		if index < 0 || index >= len(familyProperties) {
			return nil, errors.Newf("queue family %d does not exist, the device has %d", index, len(familyProperties))
		}
		families = append(families, backend.QueueFamily{
			Index: index,
			Type:  queueType(familyProperties[index].QueueFlags),
		})
	}

	features := physicalDevice.Features()

	b := &Backend{
		logger:         logger,
		physicalDevice: physicalDevice,
		device:         device,
		caps: backend.Capabilities{
			MemoryProperties: *physicalDevice.MemoryProperties(),
			Limits: backend.Limits{
				MaxMemoryAllocationCount: properties.Limits.MaxMemoryAllocationCount,
				NonCoherentAtomSize:      properties.Limits.NonCoherentAtomSize,
				BufferImageGranularity:   properties.Limits.BufferImageGranularity,
				MaxFramebufferWidth:      properties.Limits.MaxFramebufferWidth,
				MaxFramebufferHeight:     properties.Limits.MaxFramebufferHeight,
				MaxFramebufferLayers:     properties.Limits.MaxFramebufferLayers,
			},
			QueueFamilies:   families,
			SparseResidency: features.SparseBinding && features.SparseResidencyImage2D,
		},
		formats: swiss.NewMap[core1_0.Format, backend.FormatSupport](32),
		queues:  make(map[int]*Queue),
	}

	logger.Debug("Backend::New",
		slog.String("Driver", properties.DriverName),
		slog.Int("MemoryTypes", len(b.caps.MemoryProperties.MemoryTypes)),
		slog.Int("QueueFamilies", len(families)),
	)
	return b, nil
}

// queueType picks the most capable type a family's flags allow
func queueType(flags core1_0.QueueFlags) backend.QueueType {
	switch {
	case flags&core1_0.QueueGraphics != 0:
		return backend.QueueGraphics
	case flags&core1_0.QueueCompute != 0:
		return backend.QueueCompute
	default:
		return backend.QueueTransfer
	}
}

// Capabilities returns the limits, memory properties and queue families read in New
func (b *Backend) Capabilities() *backend.Capabilities {
	return &b.caps
}

// FormatSupport reports optimal-tiling support. Core 1.0 images of any format can be
// transfer sources and destinations.
func (b *Backend) FormatSupport(format core1_0.Format) backend.FormatSupport {
	b.formatLock.Lock()
	defer b.formatLock.Unlock()

	support, ok := b.formats.Get(format)
	if ok {
		return support
	}

	features := b.physicalDevice.FormatProperties(format).OptimalTilingFeatures
	support = backend.FormatSupport{
		Sampled:         features&core1_0.FormatFeatureSampledImage != 0,
		Storage:         features&core1_0.FormatFeatureStorageImage != 0,
		StorageAtomic:   features&core1_0.FormatFeatureStorageImageAtomic != 0,
		ColorAttachment: features&core1_0.FormatFeatureColorAttachment != 0,
		DepthStencil:    features&core1_0.FormatFeatureDepthStencilAttachment != 0,
		TransferSrc:     features != 0,
		TransferDst:     features != 0,
	}
	b.formats.Put(format, support)
	return support
}

// Queue returns queue 0 of queueFamily. The family must have been requested when the
// device was created.
func (b *Backend) Queue(queueFamily int) (backend.Queue, error) {
	b.queueLock.Lock()
	defer b.queueLock.Unlock()

	queue, ok := b.queues[queueFamily]
	if ok {
		return queue, nil
	}

	found := false
	for _, family := range b.caps.QueueFamilies {
		if family.Index == queueFamily {
			found = true
			break
		}
	}
	if !found {
		return nil, gpuerr.Unsupported("queue family %d was not created with the device", queueFamily)
	}

	queue = &Queue{native: b.device.GetQueue(queueFamily, 0)}
	b.queues[queueFamily] = queue
	return queue, nil
}

// WaitIdle blocks until the device has finished all submitted work
func (b *Backend) WaitIdle() error {
	res, err := b.device.WaitIdle()
	return classify(res, err, "waiting for device idle")
}

// classify marks a failed driver call with the substrate error kind its result implies
func classify(res common.VkResult, err error, action string) error {
	if err == nil {
		return nil
	}

	switch res {
	case core1_0.VKErrorDeviceLost:
		return gpuerr.DeviceLost(err, "%s", action)
	case core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorTooManyObjects:
		return gpuerr.Exhausted(err, "%s", action)
	case core1_0.VKErrorFormatNotSupported, core1_0.VKErrorFeatureNotPresent, core1_0.VKErrorExtensionNotPresent:
		return errors.Mark(errors.Wrap(err, action), gpuerr.ErrUnsupported)
	}
	return errors.Wrap(err, action)
}
