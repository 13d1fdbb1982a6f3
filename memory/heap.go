package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/memutils"
	"github.com/vkngwrapper/substrate/memutils/metadata"
)

// Allocation identifies a byte range handed out by a Heap. It holds a slot index and a
// copy of that slot's generation, so an Allocation that outlives its range is detected
// rather than freeing someone else's memory. The zero value is never live.
type Allocation struct {
	heapID     uint64
	slot       int
	generation uint32
	offset     int
	size       int
}

// Offset is the allocation's offset in bytes from the start of the heap
func (a Allocation) Offset() int { return a.offset }

// Size is the allocation's size in bytes
func (a Allocation) Size() int { return a.size }

// String formats the allocation's range for logs
func (a Allocation) String() string {
	return fmt.Sprintf("Allocation{heap: %d, slot: %d, gen: %d, range: [%d,%d)}", a.heapID, a.slot, a.generation, a.offset, a.offset+a.size)
}

type allocationSlot struct {
	handle     metadata.BlockAllocationHandle
	generation uint32
	live       bool
}

// Heap is one native memory allocation subdivided among resources. Suballocate,
// Deallocate, Map and Unmap are safe for concurrent use.
type Heap struct {
	id              uint64
	logger          *slog.Logger
	allocator       *Allocator
	memory          backend.Memory
	usage           UsageClass
	memoryTypeIndex int
	properties      core1_0.MemoryPropertyFlags
	size            int
	lazy            bool
	minAlignment    uint
	atomSize        int
	strategy        metadata.AllocationStrategy

	allocLock sync.Mutex
	metadata  *metadata.TLSF
	slots     []allocationSlot
	freeSlots []int
	destroyed bool

	mapLock       sync.Mutex
	mapReferences int
	mapData       unsafe.Pointer
}

func (a *Allocator) newHeap(memory backend.Memory, usage UsageClass, memoryTypeIndex int, properties core1_0.MemoryPropertyFlags, size int, lazy bool) *Heap {
	md := metadata.NewTLSF()
	md.Init(size)

	// Linear and optimal resources may share a heap, so every range starts on a
	// granularity boundary. Non-coherent memory also rounds to the atom size so
	// flushes never touch a neighbor.
	minAlignment := uint(max(a.limits.BufferImageGranularity, 1))
	if properties&(core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent) == core1_0.MemoryPropertyHostVisible {
		minAlignment = max(minAlignment, uint(a.limits.NonCoherentAtomSize))
	}

	return &Heap{
		id:              atomic.AddUint64(&a.nextHeapID, 1),
		logger:          a.logger,
		allocator:       a,
		memory:          memory,
		usage:           usage,
		memoryTypeIndex: memoryTypeIndex,
		properties:      properties,
		size:            size,
		lazy:            lazy,
		minAlignment:    minAlignment,
		atomSize:        max(a.limits.NonCoherentAtomSize, 1),
		strategy:        a.strategy,
		metadata:        md,
	}
}

// ID identifies the heap within its allocator. IDs are never reused.
func (h *Heap) ID() uint64 { return h.id }

// Usage is the usage class the heap was allocated for
func (h *Heap) Usage() UsageClass { return h.usage }

// MemoryTypeIndex is the native memory type backing the heap
func (h *Heap) MemoryTypeIndex() int { return h.memoryTypeIndex }

// Properties are the property flags of the heap's memory type
func (h *Heap) Properties() core1_0.MemoryPropertyFlags { return h.properties }

// Size is the total size of the heap in bytes
func (h *Heap) Size() int { return h.size }

// LazilyAllocated reports whether the heap is backed by memory that only exists in tile
// storage. Only transient attachments may be placed in it.
func (h *Heap) LazilyAllocated() bool { return h.lazy }

// Memory is the native allocation backing the heap
func (h *Heap) Memory() backend.Memory { return h.memory }

// IsHostVisible reports whether the heap can be mapped
func (h *Heap) IsHostVisible() bool {
	return h.properties&core1_0.MemoryPropertyHostVisible != 0
}

// IsHostCoherent reports whether mapped writes need no Flush or Invalidate
func (h *Heap) IsHostCoherent() bool {
	return h.properties&core1_0.MemoryPropertyHostCoherent != 0
}

// Suballocate reserves size bytes aligned to alignment. alignment must be a power of
// two. If there is no room the returned error is marked gpuerr.ErrResourceExhausted.
func (h *Heap) Suballocate(size int, alignment uint) (Allocation, error) {
	if size <= 0 {
		gpuerr.Precondition("sub-allocation size must be positive, but was %d", size)
	}
	if err := memutils.CheckPow2(alignment, "alignment"); err != nil {
		gpuerr.Precondition("invalid sub-allocation alignment: %v", err)
	}

	alignment = max(alignment, h.minAlignment)

	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	if h.destroyed {
		gpuerr.Precondition("heap %d was used after it was destroyed", h.id)
	}

	ok, request, err := h.metadata.CreateAllocationRequest(size, alignment, h.strategy)
	if err != nil {
		return Allocation{}, err
	}
	if !ok {
		return Allocation{}, gpuerr.Exhausted(nil, "heap %d has no free range of %d bytes aligned to %d (%d of %d bytes free)", h.id, size, alignment, h.metadata.SumFreeSize(), h.size)
	}

	slotIndex := h.acquireSlot()
	err = h.metadata.Alloc(request, slotIndex)
	if err != nil {
		h.freeSlots = append(h.freeSlots, slotIndex)
		return Allocation{}, err
	}

	slot := &h.slots[slotIndex]
	slot.handle = request.BlockAllocationHandle
	slot.live = true
	h.debugValidate()

	return Allocation{
		heapID:     h.id,
		slot:       slotIndex,
		generation: slot.generation,
		offset:     request.Offset,
		size:       request.Size,
	}, nil
}

func (h *Heap) acquireSlot() int {
	if len(h.freeSlots) > 0 {
		slotIndex := h.freeSlots[len(h.freeSlots)-1]
		h.freeSlots = h.freeSlots[:len(h.freeSlots)-1]
		return slotIndex
	}

	h.slots = append(h.slots, allocationSlot{generation: 1})
	return len(h.slots) - 1
}

func (h *Heap) liveSlot(alloc Allocation) (*allocationSlot, bool) {
	if alloc.heapID != h.id || alloc.slot < 0 || alloc.slot >= len(h.slots) {
		return nil, false
	}

	slot := &h.slots[alloc.slot]
	if !slot.live || slot.generation != alloc.generation {
		return nil, false
	}
	return slot, true
}

// IsLive reports whether alloc still refers to a range of this heap
func (h *Heap) IsLive(alloc Allocation) bool {
	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	_, live := h.liveSlot(alloc)
	return live
}

// Deallocate returns alloc's range to the heap. An allocation that was already returned,
// or that came from another heap, is reported with an error marked gpuerr.ErrStaleHandle
// and the heap is left untouched.
func (h *Heap) Deallocate(alloc Allocation) error {
	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	slot, live := h.liveSlot(alloc)
	if !live {
		return gpuerr.Stale("%s does not refer to a live range of heap %d", alloc, h.id)
	}

	err := h.metadata.Free(slot.handle)
	if err != nil {
		return err
	}

	slot.live = false
	slot.handle = metadata.NoAllocation
	slot.generation++
	h.freeSlots = append(h.freeSlots, alloc.slot)
	h.debugValidate()
	return nil
}

// AllocationCount returns the number of live sub-allocations
func (h *Heap) AllocationCount() int {
	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	return h.metadata.AllocationCount()
}

// FreeBytes returns the number of bytes not covered by a live sub-allocation
func (h *Heap) FreeBytes() int {
	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	return h.metadata.SumFreeSize()
}

// Map maps the whole heap into host memory. Calls nest: only the first performs the
// native map and every call must be paired with Unmap.
func (h *Heap) Map() ([]byte, error) {
	if !h.IsHostVisible() {
		return nil, gpuerr.Unsupported("heap %d is in memory type %d, which is not host visible", h.id, h.memoryTypeIndex)
	}

	h.mapLock.Lock()
	defer h.mapLock.Unlock()

	if h.mapReferences > 0 {
		if h.mapData == nil {
			return nil, errors.AssertionFailedf("heap %d is showing existing memory mapping references, but no mapped memory", h.id)
		}

		h.mapReferences++
		return unsafe.Slice((*byte)(h.mapData), h.size), nil
	}

	data, err := h.memory.Map(0, h.size)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping heap %d", h.id)
	}

	h.mapData = data
	h.mapReferences = 1
	return unsafe.Slice((*byte)(h.mapData), h.size), nil
}

// Unmap releases one Map reference, unmapping the native memory when none remain.
// Unmapping more times than Map was called is a logic error and panics.
func (h *Heap) Unmap() {
	h.mapLock.Lock()
	defer h.mapLock.Unlock()

	if h.mapReferences == 0 {
		gpuerr.Precondition("heap %d has more references being unmapped than are currently mapped", h.id)
	}

	h.mapReferences--
	if h.mapReferences == 0 {
		h.memory.Unmap()
		h.mapData = nil
	}
}

// MapReferences returns the number of outstanding Map calls
func (h *Heap) MapReferences() int {
	h.mapLock.Lock()
	defer h.mapLock.Unlock()

	return h.mapReferences
}

// Flush makes host writes to [offset, offset+size) visible to the device. It is a no-op
// for coherent memory. A size of -1 flushes to the end of the heap.
func (h *Heap) Flush(offset, size int) error {
	start, length, needed := h.cacheRange(offset, size)
	if !needed {
		return nil
	}
	return h.memory.Flush(start, length)
}

// Invalidate makes device writes to [offset, offset+size) visible to the host. It is a
// no-op for coherent memory. A size of -1 invalidates to the end of the heap.
func (h *Heap) Invalidate(offset, size int) error {
	start, length, needed := h.cacheRange(offset, size)
	if !needed {
		return nil
	}
	return h.memory.Invalidate(start, length)
}

func (h *Heap) cacheRange(offset, size int) (int, int, bool) {
	if !h.IsHostVisible() || h.IsHostCoherent() || size == 0 {
		return 0, 0, false
	}
	if size == -1 {
		size = h.size - offset
	}
	if offset < 0 || size < 0 || offset+size > h.size {
		gpuerr.Precondition("range [%d,%d) is outside heap %d of size %d", offset, offset+size, h.id, h.size)
	}

	start := memutils.AlignDown(offset, uint(h.atomSize))
	end := memutils.AlignUp(offset+size, uint(h.atomSize))
	if end > h.size {
		end = h.size
	}
	return start, end - start, true
}

// Destroy frees the heap's native memory. It fails without freeing anything if live
// sub-allocations remain.
func (h *Heap) Destroy() error {
	h.logger.Debug("Heap::Destroy", slog.Uint64("HeapID", h.id))

	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	if h.destroyed {
		gpuerr.Precondition("heap %d was destroyed twice", h.id)
	}

	if !h.metadata.IsEmpty() {
		_ = h.metadata.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			if !free {
				h.logger.Error("heap destroyed with live allocation",
					slog.Uint64("HeapID", h.id),
					slog.Int("Offset", offset),
					slog.Int("Size", size),
				)
			}
			return nil
		})
		return gpuerr.InvalidState("heap %d still has %d live allocations", h.id, h.metadata.AllocationCount())
	}

	h.mapLock.Lock()
	if h.mapReferences > 0 {
		h.logger.Warn("heap destroyed while mapped",
			slog.Uint64("HeapID", h.id),
			slog.Int("MapReferences", h.mapReferences),
		)
		h.memory.Unmap()
		h.mapReferences = 0
		h.mapData = nil
	}
	h.mapLock.Unlock()

	h.destroyed = true
	h.allocator.freeHeap(h)
	return nil
}

// Validate checks the heap's sub-allocator for internal consistency
func (h *Heap) Validate() error {
	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	return h.validate()
}

func (h *Heap) debugValidate() {
	if !memutils.DebugEnabled {
		return
	}
	if err := h.validate(); err != nil {
		panic(err)
	}
}

func (h *Heap) validate() error {
	err := h.metadata.Validate()
	if err != nil {
		return err
	}

	liveSlots := 0
	for slotIndex, slot := range h.slots {
		if !slot.live {
			continue
		}
		liveSlots++

		data, err := h.metadata.AllocationUserData(slot.handle)
		if err != nil {
			return errors.Wrapf(err, "slot %d", slotIndex)
		}
		if data.(int) != slotIndex {
			return errors.Newf("slot %d points at the allocation for slot %d", slotIndex, data)
		}
	}

	if liveSlots != h.metadata.AllocationCount() {
		return errors.Newf("heap has %d live slots but %d allocations", liveSlots, h.metadata.AllocationCount())
	}
	return nil
}

// AddDetailedStatistics sums this heap's statistics into stats
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	h.metadata.AddDetailedStatistics(stats)
}

func (h *Heap) printDetailedMap(json *jwriter.ObjectState) {
	h.allocLock.Lock()
	defer h.allocLock.Unlock()

	json.Name("Usage").String(h.usage.String())
	json.Name("MemoryTypeIndex").Int(h.memoryTypeIndex)
	json.Name("MapReferences").Int(h.MapReferences())
	h.metadata.BlockJsonData(json)

	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	_ = h.metadata.VisitAllRegions(
		func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			obj := arrayState.Object()
			defer obj.End()

			obj.Name("Offset").Int(offset)
			obj.Name("Size").Int(size)
			if free {
				obj.Name("Type").String("Free")
			} else {
				obj.Name("Type").String("Allocation")
				obj.Name("Generation").Int(int(h.slots[userData.(int)].generation))
			}
			return nil
		})
}
