// Package metadata tracks which byte ranges of a single native memory allocation are
// handed out. It knows nothing about GPU memory itself: consumers apply the offsets it
// produces to whatever they are sub-allocating.
package metadata

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/substrate/memutils"
)

// BlockAllocationHandle is a numeric handle identifying a region within a BlockMetadata.
// Handles are never reused by a single BlockMetadata.
type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

// BlockMetadata manages suballocations within one block of memory, allowing ranges to
// be requested, freed, enumerated and queried.
//
// BlockMetadata implementations are not safe for concurrent use. The owner of the block
// is expected to hold a lock around every call.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. size is the size in bytes of the
	// block of memory being managed.
	Init(size int)
	// Size retrieves the size in bytes that the block was initialized with
	Size() int

	// Validate performs internal consistency checks on the metadata. These checks may be
	// expensive. A correctly-functioning implementation never returns an error.
	Validate() error
	// AllocationCount returns the number of live suballocations
	AllocationCount() int
	// FreeRegionsCount returns the number of distinct free ranges in the block
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes in the block
	SumFreeSize() int
	// IsEmpty will return true if this block has no live suballocations
	IsEmpty() bool

	// VisitAllRegions calls the provided callback once for each allocation and free region
	// in the block, in ascending offset order. The first error returned by the callback
	// stops the walk and is returned.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error

	// AllocationOffset returns the offset in bytes of a live region
	AllocationOffset(allocHandle BlockAllocationHandle) (int, error)
	// AllocationSize returns the size in bytes of a live region
	AllocationSize(allocHandle BlockAllocationHandle) (int, error)
	// AllocationUserData returns the value passed to Alloc for a live allocation
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)

	// AddDetailedStatistics sums this block's allocation statistics into stats
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's allocation statistics into stats
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData populates a json object with summary information about this block
	BlockJsonData(json *jwriter.ObjectState)

	// CreateAllocationRequest finds where the implementation would place an allocation of
	// allocSize bytes aligned to allocAlignment. It returns false with no error when the
	// block cannot fit the allocation. The request can then be committed with Alloc.
	CreateAllocationRequest(allocSize int, allocAlignment uint, strategy AllocationStrategy) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest. It returns an error if the request no longer
	// describes a free region large enough for it.
	Alloc(request AllocationRequest, userData any) error
	// Free frees a suballocation, merging it with neighboring free regions
	Free(allocHandle BlockAllocationHandle) error
}

// BlockMetadataBase provides the size bookkeeping shared by BlockMetadata implementations
type BlockMetadataBase struct {
	size int
}

// Init prepares this structure for allocations and sizes the block in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

func (m *BlockMetadataBase) writeSummary(json *jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.size)
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
