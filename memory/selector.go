package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// UsageClass is the semantic intent a heap is allocated for
type UsageClass int

const (
	// UsageStatic is written once (usually through a staging copy) and read by the GPU many times
	UsageStatic UsageClass = iota
	// UsageStreamed is rewritten by the CPU every few frames and read by the GPU
	UsageStreamed
	// UsageImmediate is written by the CPU and consumed by the GPU within the same frame
	UsageImmediate
	// UsageTemporary is short-lived staging or readback memory
	UsageTemporary

	usageClassCount
)

var usageClassNames = map[UsageClass]string{
	UsageStatic:    "Static",
	UsageStreamed:  "Streamed",
	UsageImmediate: "Immediate",
	UsageTemporary: "Temporary",
}

// String returns the name ParseUsageClass accepts
func (u UsageClass) String() string {
	name, ok := usageClassNames[u]
	if !ok {
		return "Unknown"
	}
	return name
}

// ParseUsageClass is the inverse of UsageClass.String
func ParseUsageClass(name string) (UsageClass, error) {
	for usage, usageName := range usageClassNames {
		if usageName == name {
			return usage, nil
		}
	}
	return 0, errors.Newf("unknown usage class %q", name)
}

// IdealRanking is the engine's preferred order of memory property flag combinations for
// each usage class, most preferred first
type IdealRanking map[UsageClass][]core1_0.MemoryPropertyFlags

const (
	deviceLocal  = core1_0.MemoryPropertyDeviceLocal
	hostVisible  = core1_0.MemoryPropertyHostVisible
	hostCoherent = core1_0.MemoryPropertyHostCoherent
	hostCached   = core1_0.MemoryPropertyHostCached
)

// DefaultIdealRanking is used when no ranking is configured
func DefaultIdealRanking() IdealRanking {
	return IdealRanking{
		UsageStatic: {
			deviceLocal,
			deviceLocal | hostVisible | hostCoherent,
			deviceLocal | hostVisible | hostCoherent | hostCached,
			hostVisible | hostCoherent,
		},
		UsageStreamed: {
			deviceLocal | hostVisible | hostCoherent,
			hostVisible | hostCoherent,
			hostVisible | hostCoherent | hostCached,
		},
		UsageImmediate: {
			hostVisible | hostCoherent,
			deviceLocal | hostVisible | hostCoherent,
			hostVisible | hostCoherent | hostCached,
		},
		UsageTemporary: {
			hostVisible | hostCoherent | hostCached,
			hostVisible | hostCoherent,
			hostVisible | hostCached,
		},
	}
}

// TypeSelector ranks the device's memory types for each usage class. It is built once
// at device creation and is read-only afterwards.
type TypeSelector struct {
	properties core1_0.PhysicalDeviceMemoryProperties
	rankings   [usageClassCount][]int
	lazyTypes  []int
}

// NewTypeSelector intersects the ideal ranking with the memory types the device reports.
// Intersection is by exact property flag match. Device types sharing one flag
// combination are listed in device order.
func NewTypeSelector(properties core1_0.PhysicalDeviceMemoryProperties, ideal IdealRanking) (*TypeSelector, error) {
	if len(properties.MemoryTypes) == 0 {
		return nil, errors.New("the device reported no memory types")
	}
	if len(properties.MemoryTypes) > 32 {
		return nil, errors.Newf("the device reported %d memory types, but memory type bitmasks are 32 bits", len(properties.MemoryTypes))
	}
	for typeIndex, memType := range properties.MemoryTypes {
		if memType.HeapIndex < 0 || memType.HeapIndex >= len(properties.MemoryHeaps) {
			return nil, errors.Newf("memory type %d refers to heap %d, but the device reported %d heaps", typeIndex, memType.HeapIndex, len(properties.MemoryHeaps))
		}
	}

	selector := &TypeSelector{properties: properties}

	for usage, flagList := range ideal {
		if usage < 0 || usage >= usageClassCount {
			return nil, errors.Newf("ideal ranking contains unknown usage class %d", usage)
		}

		var ranked []int
		var seen uint32
		for _, flags := range flagList {
			for typeIndex, memType := range properties.MemoryTypes {
				typeBit := uint32(1) << typeIndex
				if memType.PropertyFlags != flags || seen&typeBit != 0 {
					continue
				}

				seen |= typeBit
				ranked = append(ranked, typeIndex)
			}
		}

		selector.rankings[usage] = ranked
	}

	for typeIndex, memType := range properties.MemoryTypes {
		if memType.PropertyFlags&core1_0.MemoryPropertyLazilyAllocated != 0 {
			selector.lazyTypes = append(selector.lazyTypes, typeIndex)
		}
	}

	return selector, nil
}

// RankTypes returns the memory type indices to try for a usage class, most preferred
// first. The result may be empty, in which case no heap can be allocated for the class.
func (s *TypeSelector) RankTypes(usage UsageClass) []int {
	if usage < 0 || usage >= usageClassCount {
		return nil
	}

	return append([]int(nil), s.rankings[usage]...)
}

// LazyTypes returns the lazily-allocated memory types, which only back transient
// attachments that never leave tile memory
func (s *TypeSelector) LazyTypes() []int {
	return append([]int(nil), s.lazyTypes...)
}

// TypeCount is the number of memory types the device reported
func (s *TypeSelector) TypeCount() int {
	return len(s.properties.MemoryTypes)
}

// MemoryType returns the device's description of a memory type
func (s *TypeSelector) MemoryType(typeIndex int) core1_0.MemoryType {
	return s.properties.MemoryTypes[typeIndex]
}

// HeapCount is the number of native memory heaps the device reported
func (s *TypeSelector) HeapCount() int {
	return len(s.properties.MemoryHeaps)
}

// Heap returns the device's description of a native memory heap
func (s *TypeSelector) Heap(heapIndex int) core1_0.MemoryHeap {
	return s.properties.MemoryHeaps[heapIndex]
}
