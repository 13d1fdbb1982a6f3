package memory

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/memutils"
	"github.com/vkngwrapper/substrate/memutils/metadata"
)

// CreateOptions contains optional settings when creating an Allocator
type CreateOptions struct {
	// Ranking overrides DefaultIdealRanking. Usage classes missing from it cannot be
	// allocated.
	Ranking IdealRanking

	// HeapSizeLimits can be left empty. If it is provided, it must have one entry per
	// native memory heap. Each entry is the maximum number of bytes that may be
	// allocated from that heap, or 0 for no limit beyond the heap's own size.
	HeapSizeLimits []int

	// Strategy is the placement strategy heaps use for sub-allocation
	Strategy metadata.AllocationStrategy
}

// Allocator allocates heaps from native device memory and keeps per-native-heap
// accounting of what has been allocated
type Allocator struct {
	logger   *slog.Logger
	backend  backend.Backend
	limits   backend.Limits
	selector *TypeSelector
	strategy metadata.AllocationStrategy

	// Number of native allocations across all heaps, checked against MaxMemoryAllocationCount
	memoryCount uint32
	blockCount  [common.MaxMemoryHeaps]int32
	blockBytes  [common.MaxMemoryHeaps]int64
	heapLimits  []int

	nextHeapID uint64
	heapsLock  sync.RWMutex
	heaps      *swiss.Map[uint64, *Heap]
}

// NewAllocator ranks the backend's memory types and prepares per-heap budgets. It
// fails if the device limits are malformed or HeapSizeLimits does not match the heap count.
func NewAllocator(logger *slog.Logger, b backend.Backend, options CreateOptions) (*Allocator, error) {
	caps := b.Capabilities()

	ranking := options.Ranking
	if ranking == nil {
		ranking = DefaultIdealRanking()
	}

	selector, err := NewTypeSelector(caps.MemoryProperties, ranking)
	if err != nil {
		return nil, err
	}

	err = memutils.CheckPow2(caps.Limits.NonCoherentAtomSize, "device nonCoherentAtomSize")
	if err != nil {
		return nil, err
	}
	err = memutils.CheckPow2(caps.Limits.BufferImageGranularity, "device bufferImageGranularity")
	if err != nil {
		return nil, err
	}

	heapCount := selector.HeapCount()
	if heapCount > common.MaxMemoryHeaps {
		return nil, errors.Newf("the device reported %d memory heaps, but at most %d are supported", heapCount, common.MaxMemoryHeaps)
	}

	heapLimits := options.HeapSizeLimits
	if len(heapLimits) > 0 && len(heapLimits) != heapCount {
		return nil, errors.New("memory.CreateOptions.HeapSizeLimits was provided, but the length does not equal the number of device memory heaps")
	}
	if len(heapLimits) == 0 {
		heapLimits = make([]int, heapCount)
	}
	for heapIndex, limit := range heapLimits {
		if limit < 0 {
			return nil, errors.Newf("heap size limit %d for heap %d is negative", limit, heapIndex)
		}
	}

	logger.Debug("Allocator::NewAllocator",
		slog.Int("MemoryTypes", selector.TypeCount()),
		slog.Int("MemoryHeaps", heapCount),
		slog.String("Strategy", options.Strategy.String()),
	)

	return &Allocator{
		logger:     logger,
		backend:    b,
		limits:     caps.Limits,
		selector:   selector,
		strategy:   options.Strategy,
		heapLimits: heapLimits,
		heaps:      swiss.NewMap[uint64, *Heap](16),
	}, nil
}

// Selector returns the memory type ranking the allocator draws candidates from
func (a *Allocator) Selector() *TypeSelector {
	return a.selector
}

// AllocateHeap allocates a heap of size bytes for a usage class. Memory types are tried
// in ranked order and the first native allocation that succeeds wins. If no memory type
// serves the usage class the error is marked gpuerr.ErrUnsupported. If every candidate
// fails the error is marked gpuerr.ErrResourceExhausted and wraps the last failure.
func (a *Allocator) AllocateHeap(usage UsageClass, size int) (*Heap, error) {
	a.logger.Debug("Allocator::AllocateHeap", slog.String("Usage", usage.String()), slog.Int("Size", size))

	if size <= 0 {
		gpuerr.Precondition("heap size must be positive, but was %d", size)
	}

	candidates := a.selector.RankTypes(usage)
	if len(candidates) == 0 {
		return nil, gpuerr.Unsupported("no memory type on this device serves usage class %s", usage)
	}

	return a.allocateFromCandidates(usage, candidates, size, false)
}

// AllocateTransientHeap allocates a heap for render-target-only textures. It prefers
// lazily-allocated memory and falls back silently to the Static ranking when the device
// has none, or none with room.
func (a *Allocator) AllocateTransientHeap(size int) (*Heap, error) {
	a.logger.Debug("Allocator::AllocateTransientHeap", slog.Int("Size", size))

	if size <= 0 {
		gpuerr.Precondition("heap size must be positive, but was %d", size)
	}

	lazyTypes := a.selector.LazyTypes()
	if len(lazyTypes) > 0 {
		heap, err := a.allocateFromCandidates(UsageStatic, lazyTypes, size, true)
		if err == nil || gpuerr.IsFatal(err) {
			return heap, err
		}

		a.logger.Debug("  lazily allocated memory unavailable, falling back", slog.Any("Error", err))
	}

	return a.AllocateHeap(UsageStatic, size)
}

func (a *Allocator) allocateFromCandidates(usage UsageClass, candidates []int, size int, lazy bool) (*Heap, error) {
	var lastErr error
	for _, memoryTypeIndex := range candidates {
		heap, err := a.allocateHeapOfType(usage, memoryTypeIndex, size, lazy)
		if err == nil {
			return heap, nil
		}
		if gpuerr.IsFatal(err) {
			return nil, err
		}

		a.logger.Debug("  Allocator::allocateHeapOfType FAILED",
			slog.Int("MemoryTypeIndex", memoryTypeIndex),
			slog.Any("Error", err),
		)
		lastErr = err
	}

	return nil, gpuerr.Exhausted(lastErr, "no memory type could allocate a %d-byte %s heap", size, usage)
}

func (a *Allocator) allocateHeapOfType(usage UsageClass, memoryTypeIndex int, size int, lazy bool) (heap *Heap, err error) {
	newMemoryCount := atomic.AddUint32(&a.memoryCount, 1)
	defer func() {
		// If we failed out, roll back the allocation count
		if err != nil {
			atomic.AddUint32(&a.memoryCount, ^uint32(0))
		}
	}()

	if a.limits.MaxMemoryAllocationCount > 0 && int(newMemoryCount) > a.limits.MaxMemoryAllocationCount {
		return nil, errors.Newf("the device allows at most %d native memory allocations", a.limits.MaxMemoryAllocationCount)
	}

	memType := a.selector.MemoryType(memoryTypeIndex)
	heapIndex := memType.HeapIndex
	err = a.addBlockAllocationWithBudget(heapIndex, size)
	if err != nil {
		return nil, err
	}
	defer func() {
		// If we failed out, roll back the block allocation
		if err != nil {
			a.removeBlockAllocation(heapIndex, size)
		}
	}()

	memory, err := a.backend.AllocateMemory(memoryTypeIndex, size)
	if err != nil {
		return nil, err
	}

	heap = a.newHeap(memory, usage, memoryTypeIndex, memType.PropertyFlags, size, lazy)

	a.heapsLock.Lock()
	a.heaps.Put(heap.id, heap)
	a.heapsLock.Unlock()

	a.logger.Debug("  Allocated heap",
		slog.Uint64("HeapID", heap.id),
		slog.Int("MemoryTypeIndex", memoryTypeIndex),
		slog.Int("Size", size),
	)
	return heap, nil
}

func (a *Allocator) heapBudget(heapIndex int) int64 {
	heapSize := a.selector.Heap(heapIndex).Size
	limit := a.heapLimits[heapIndex]
	if limit == 0 || limit > heapSize {
		return int64(heapSize)
	}
	return int64(limit)
}

func (a *Allocator) addBlockAllocationWithBudget(heapIndex int, size int) error {
	maxAllocatable := a.heapBudget(heapIndex)

	for {
		currentVal := atomic.LoadInt64(&a.blockBytes[heapIndex])
		targetVal := currentVal + int64(size)

		if targetVal > maxAllocatable {
			return errors.Newf("heap %d budget of %d bytes would be exceeded: %d bytes already allocated", heapIndex, maxAllocatable, currentVal)
		}

		if atomic.CompareAndSwapInt64(&a.blockBytes[heapIndex], currentVal, targetVal) {
			break
		}
	}

	atomic.AddInt32(&a.blockCount[heapIndex], 1)
	return nil
}

func (a *Allocator) removeBlockAllocation(heapIndex int, size int) {
	newVal := atomic.AddInt64(&a.blockBytes[heapIndex], int64(-size))
	if newVal < 0 {
		panic(errors.AssertionFailedf("block bytes budget for heap %d went negative", heapIndex))
	}

	newCountVal := atomic.AddInt32(&a.blockCount[heapIndex], -1)
	if newCountVal < 0 {
		panic(errors.AssertionFailedf("block count budget for heap %d went negative", heapIndex))
	}
}

func (a *Allocator) freeHeap(heap *Heap) {
	a.heapsLock.Lock()
	a.heaps.Delete(heap.id)
	a.heapsLock.Unlock()

	heap.memory.Free()

	a.removeBlockAllocation(a.selector.MemoryType(heap.memoryTypeIndex).HeapIndex, heap.size)
	atomic.AddUint32(&a.memoryCount, ^uint32(0))
}

// Budget describes what has been allocated from one native memory heap
type Budget struct {
	HeapIndex int
	// BlockCount is the number of live heaps allocated from the native heap
	BlockCount int
	// BlockBytes is the total size of those heaps
	BlockBytes int
	// Budget is the maximum BlockBytes may reach
	Budget int
}

// HeapBudgets returns the accounting for every native memory heap
func (a *Allocator) HeapBudgets() []Budget {
	budgets := make([]Budget, a.selector.HeapCount())
	for heapIndex := range budgets {
		budgets[heapIndex] = Budget{
			HeapIndex:  heapIndex,
			BlockCount: int(atomic.LoadInt32(&a.blockCount[heapIndex])),
			BlockBytes: int(atomic.LoadInt64(&a.blockBytes[heapIndex])),
			Budget:     int(a.heapBudget(heapIndex)),
		}
	}
	return budgets
}

// AllocationCount returns the number of live native memory allocations
func (a *Allocator) AllocationCount() int {
	return int(atomic.LoadUint32(&a.memoryCount))
}

func (a *Allocator) liveHeaps() []*Heap {
	a.heapsLock.RLock()
	defer a.heapsLock.RUnlock()

	heaps := make([]*Heap, 0, a.heaps.Count())
	a.heaps.Iter(func(id uint64, heap *Heap) bool {
		heaps = append(heaps, heap)
		return false
	})
	return heaps
}

// CalculateStatistics sums detailed statistics for every live heap, per memory type,
// per native heap and in total
func (a *Allocator) CalculateStatistics(stats *AllocatorStatistics) {
	stats.Total.Clear()
	stats.MemoryTypes = make([]memutils.DetailedStatistics, a.selector.TypeCount())
	stats.MemoryHeaps = make([]memutils.DetailedStatistics, a.selector.HeapCount())
	for i := range stats.MemoryTypes {
		stats.MemoryTypes[i].Clear()
	}
	for i := range stats.MemoryHeaps {
		stats.MemoryHeaps[i].Clear()
	}

	for _, heap := range a.liveHeaps() {
		heap.AddDetailedStatistics(&stats.MemoryTypes[heap.memoryTypeIndex])
	}

	for typeIndex := range stats.MemoryTypes {
		heapIndex := a.selector.MemoryType(typeIndex).HeapIndex
		stats.MemoryHeaps[heapIndex].AddDetailedStatistics(&stats.MemoryTypes[typeIndex])
	}
	for heapIndex := range stats.MemoryHeaps {
		stats.Total.AddDetailedStatistics(&stats.MemoryHeaps[heapIndex])
	}
}

// AllocatorStatistics is populated by Allocator.CalculateStatistics
type AllocatorStatistics struct {
	MemoryTypes []memutils.DetailedStatistics
	MemoryHeaps []memutils.DetailedStatistics
	Total       memutils.DetailedStatistics
}

// BuildStatsJSON writes the allocator's statistics as a json object. When detailedMap
// is true, every heap's sub-allocations are listed as well.
func (a *Allocator) BuildStatsJSON(json *jwriter.ObjectState, detailedMap bool) {
	var stats AllocatorStatistics
	a.CalculateStatistics(&stats)

	totalObj := json.Name("Total").Object()
	stats.Total.WriteJSON(&totalObj)
	totalObj.End()

	heapsObj := json.Name("MemoryHeaps").Object()
	for heapIndex, heapStats := range stats.MemoryHeaps {
		heapProps := a.selector.Heap(heapIndex)

		heapObj := heapsObj.Name("Heap " + strconv.Itoa(heapIndex)).Object()
		heapObj.Name("Size").Int(heapProps.Size)
		heapObj.Name("DeviceLocal").Bool(heapProps.Flags&core1_0.MemoryHeapDeviceLocal != 0)
		heapObj.Name("Budget").Int(int(a.heapBudget(heapIndex)))

		statsObj := heapObj.Name("Stats").Object()
		heapStats.WriteJSON(&statsObj)
		statsObj.End()

		typesObj := heapObj.Name("MemoryTypes").Object()
		for typeIndex, typeStats := range stats.MemoryTypes {
			memType := a.selector.MemoryType(typeIndex)
			if memType.HeapIndex != heapIndex {
				continue
			}

			typeObj := typesObj.Name("Type " + strconv.Itoa(typeIndex)).Object()
			typeObj.Name("Flags").String(memType.PropertyFlags.String())
			typeStatsObj := typeObj.Name("Stats").Object()
			typeStats.WriteJSON(&typeStatsObj)
			typeStatsObj.End()
			typeObj.End()
		}
		typesObj.End()

		heapObj.End()
	}
	heapsObj.End()

	if detailedMap {
		mapObj := json.Name("DetailedMap").Object()
		for _, heap := range a.liveHeaps() {
			heapObj := mapObj.Name(strconv.FormatUint(heap.id, 10)).Object()
			heap.printDetailedMap(&heapObj)
			heapObj.End()
		}
		mapObj.End()
	}
}
