package memory

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/substrate/backend/fake"
	"github.com/vkngwrapper/substrate/gpuerr"
)

func TestAllocateHeapFallsBackThroughRanking(t *testing.T) {
	allocator, b := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{})
	b.FailMemoryTypes = map[int]error{
		fake.TypeDeviceLocal: gpuerr.Exhausted(nil, "out of device memory"),
	}

	heap, err := allocator.AllocateHeap(UsageStatic, 1<<20)
	require.NoError(t, err)
	require.Equal(t, fake.TypeHostVisible, heap.MemoryTypeIndex())
	require.Equal(t, []int{fake.TypeHostVisible}, b.MemoryAllocations())

	budgets := allocator.HeapBudgets()
	require.Equal(t, 0, budgets[0].BlockBytes)
	require.Equal(t, 1<<20, budgets[1].BlockBytes)
	require.Equal(t, 1, budgets[1].BlockCount)

	require.NoError(t, heap.Destroy())
}

func TestAllocateHeapExhaustingEveryCandidate(t *testing.T) {
	allocator, b := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{})
	b.FailMemoryTypes = map[int]error{
		fake.TypeDeviceLocal: gpuerr.Exhausted(nil, "out of device memory"),
		fake.TypeHostVisible: errors.New("out of host memory"),
	}

	heap, err := allocator.AllocateHeap(UsageStatic, 1<<20)
	require.Nil(t, heap)
	require.Error(t, err)
	require.True(t, errors.Is(err, gpuerr.ErrResourceExhausted))
	require.Contains(t, err.Error(), "out of host memory")

	require.Equal(t, 0, allocator.AllocationCount())
	for _, budget := range allocator.HeapBudgets() {
		require.Equal(t, 0, budget.BlockBytes)
		require.Equal(t, 0, budget.BlockCount)
	}
	require.Equal(t, 0, b.Live(fake.KindMemory))
}

func TestAllocateHeapStopsOnDeviceLoss(t *testing.T) {
	allocator, b := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{})
	b.FailMemoryTypes = map[int]error{
		fake.TypeDeviceLocal: gpuerr.DeviceLost(errors.New("VK_ERROR_DEVICE_LOST"), "allocating"),
	}

	_, err := allocator.AllocateHeap(UsageStatic, 1<<20)
	require.True(t, gpuerr.IsFatal(err))
	require.Empty(t, b.MemoryAllocations())
}

func TestAllocateHeapWithEmptyRanking(t *testing.T) {
	allocator, b := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{
		Ranking: IdealRanking{
			UsageStatic: {core1_0.MemoryPropertyDeviceLocal},
			// The device has no host-visible device-local type, so this class ranks empty
			UsageStreamed: {core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
	})

	_, err := allocator.AllocateHeap(UsageStreamed, 4096)
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))
	_, err = allocator.AllocateHeap(UsageImmediate, 4096)
	require.True(t, errors.Is(err, gpuerr.ErrUnsupported))
	require.Empty(t, b.MemoryAllocations())
}

func TestHeapSizeLimitsAreEnforcedAndRolledBack(t *testing.T) {
	allocator, _ := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{
		HeapSizeLimits: []int{1 << 20, 0},
	})

	first, err := allocator.AllocateHeap(UsageStatic, 768*1024)
	require.NoError(t, err)
	require.Equal(t, fake.TypeDeviceLocal, first.MemoryTypeIndex())

	// The device-local heap's limit is reached, so the next heap lands in host memory
	second, err := allocator.AllocateHeap(UsageStatic, 512*1024)
	require.NoError(t, err)
	require.Equal(t, fake.TypeHostVisible, second.MemoryTypeIndex())

	budgets := allocator.HeapBudgets()
	require.Equal(t, 1<<20, budgets[0].Budget)
	require.Equal(t, 768*1024, budgets[0].BlockBytes)
	require.Equal(t, 512*1024, budgets[1].BlockBytes)
	require.Equal(t, 2, allocator.AllocationCount())

	require.NoError(t, first.Destroy())
	third, err := allocator.AllocateHeap(UsageStatic, 512*1024)
	require.NoError(t, err)
	require.Equal(t, fake.TypeDeviceLocal, third.MemoryTypeIndex())

	require.NoError(t, second.Destroy())
	require.NoError(t, third.Destroy())
	for _, budget := range allocator.HeapBudgets() {
		require.Equal(t, 0, budget.BlockBytes)
	}
}

func TestHeapSizeLimitsMustMatchHeapCount(t *testing.T) {
	_, err := NewAllocator(nil, fake.New(fake.DefaultCapabilities()), CreateOptions{
		HeapSizeLimits: []int{1 << 20},
	})
	require.Error(t, err)
}

func TestMaxMemoryAllocationCount(t *testing.T) {
	caps := fake.DefaultCapabilities()
	caps.Limits.MaxMemoryAllocationCount = 1
	allocator, _ := readyAllocator(t, caps, CreateOptions{})

	heap, err := allocator.AllocateHeap(UsageStatic, 4096)
	require.NoError(t, err)

	_, err = allocator.AllocateHeap(UsageStatic, 4096)
	require.True(t, errors.Is(err, gpuerr.ErrResourceExhausted))
	require.Equal(t, 1, allocator.AllocationCount())

	require.NoError(t, heap.Destroy())
	require.Equal(t, 0, allocator.AllocationCount())

	heap, err = allocator.AllocateHeap(UsageStatic, 4096)
	require.NoError(t, err)
	require.NoError(t, heap.Destroy())
}

func TestTransientHeapPrefersLazyMemory(t *testing.T) {
	allocator, _ := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{})

	heap, err := allocator.AllocateTransientHeap(1 << 20)
	require.NoError(t, err)
	require.Equal(t, fake.TypeLazy, heap.MemoryTypeIndex())
	require.True(t, heap.LazilyAllocated())
	require.NoError(t, heap.Destroy())
}

func TestTransientHeapFallsBackSilently(t *testing.T) {
	t.Run("NoLazyTypes", func(t *testing.T) {
		caps := fake.DefaultCapabilities()
		caps.MemoryProperties.MemoryTypes = caps.MemoryProperties.MemoryTypes[:fake.TypeLazy]
		allocator, _ := readyAllocator(t, caps, CreateOptions{})

		heap, err := allocator.AllocateTransientHeap(1 << 20)
		require.NoError(t, err)
		require.Equal(t, fake.TypeDeviceLocal, heap.MemoryTypeIndex())
		require.False(t, heap.LazilyAllocated())
	})

	t.Run("LazyAllocationFails", func(t *testing.T) {
		allocator, b := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{})
		b.FailMemoryTypes = map[int]error{fake.TypeLazy: errors.New("no tile memory")}

		heap, err := allocator.AllocateTransientHeap(1 << 20)
		require.NoError(t, err)
		require.Equal(t, fake.TypeDeviceLocal, heap.MemoryTypeIndex())
		require.Equal(t, UsageStatic, heap.Usage())
	})
}

func TestBuildStatsJSON(t *testing.T) {
	allocator, _ := readyAllocator(t, fake.DefaultCapabilities(), CreateOptions{})

	heap, err := allocator.AllocateHeap(UsageStatic, 1<<20)
	require.NoError(t, err)
	_, err = heap.Suballocate(4096, 256)
	require.NoError(t, err)
	_, err = heap.Suballocate(1024, 256)
	require.NoError(t, err)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	allocator.BuildStatsJSON(&obj, true)
	obj.End()
	require.NoError(t, writer.Error())

	var stats struct {
		Total struct {
			BlockCount        int
			BlockBytes        int
			AllocationCount   int
			AllocationBytes   int
			AllocationSizeMin int
			AllocationSizeMax int
		}
		MemoryHeaps map[string]struct {
			Size int
		}
		DetailedMap map[string]struct {
			Usage          string
			Suballocations []struct {
				Offset int
				Size   int
				Type   string
			}
		}
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &stats))

	require.Equal(t, 1, stats.Total.BlockCount)
	require.Equal(t, 1<<20, stats.Total.BlockBytes)
	require.Equal(t, 2, stats.Total.AllocationCount)
	require.Equal(t, 5120, stats.Total.AllocationBytes)
	require.Equal(t, 1024, stats.Total.AllocationSizeMin)
	require.Equal(t, 4096, stats.Total.AllocationSizeMax)
	require.Len(t, stats.MemoryHeaps, 2)
	require.Equal(t, 256*1024*1024, stats.MemoryHeaps["Heap 0"].Size)

	require.Len(t, stats.DetailedMap, 1)
	for _, heapMap := range stats.DetailedMap {
		require.Equal(t, "Static", heapMap.Usage)
		require.Len(t, heapMap.Suballocations, 3)
		require.Equal(t, "Allocation", heapMap.Suballocations[0].Type)
		require.Equal(t, 0, heapMap.Suballocations[0].Offset)
		require.Equal(t, "Free", heapMap.Suballocations[2].Type)
	}
}
