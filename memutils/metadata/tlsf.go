package metadata

import (
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/substrate/memutils"
)

const (
	SmallBufferSize        = 256
	SecondLevelIndex uint8 = 5
	MemoryClassShift       = 7
	MaxMemoryClasses       = 65 - MemoryClassShift

	smallSizeStep = SmallBufferSize / 4
)

var regionPool = sync.Pool{
	New: func() any {
		return &tlsfRegion{}
	},
}

// tlsfRegion is one physically contiguous range of the block, either allocated or free.
// Free regions other than the null region are also linked into a segregated free list.
type tlsfRegion struct {
	offset       int
	size         int
	prevPhysical *tlsfRegion
	nextPhysical *tlsfRegion

	prevFree *tlsfRegion
	nextFree *tlsfRegion

	userData any
	handle   BlockAllocationHandle
}

func (r *tlsfRegion) markFree() {
	r.prevFree = nil
}

// A taken region points prevFree at itself, which can never happen for a free one
func (r *tlsfRegion) markTaken() {
	r.prevFree = r
}

func (r *tlsfRegion) isFree() bool {
	return r.prevFree != r
}

// TLSF is a BlockMetadata implementing the two-level segregated fit algorithm. Free
// regions are bucketed by the position of their most significant bit (the memory class)
// and then by the next SecondLevelIndex bits, and two levels of bitmaps make finding a
// non-empty bucket constant time.
//
// The tail of the block that has never been allocated is held in a "null region" that
// lives outside the free lists and absorbs any neighbor freed next to it.
type TLSF struct {
	BlockMetadataBase

	allocCount        int
	freeRegionCount   int
	freeRegionBytes   int
	isFreeBitmap      uint32
	memoryClasses     int
	innerIsFreeBitmap [MaxMemoryClasses]uint32

	nextHandle BlockAllocationHandle
	handles    *swiss.Map[BlockAllocationHandle, *tlsfRegion]
	freeList   []*tlsfRegion
	nullRegion *tlsfRegion
	// firstRegion is the region at offset 0
	firstRegion *tlsfRegion
}

var _ BlockMetadata = &TLSF{}

func NewTLSF() *TLSF {
	return &TLSF{}
}

func (m *TLSF) newRegion() *tlsfRegion {
	r := regionPool.Get().(*tlsfRegion)
	*r = tlsfRegion{}
	m.nextHandle++
	r.handle = m.nextHandle
	m.handles.Put(r.handle, r)
	return r
}

func (m *TLSF) releaseRegion(r *tlsfRegion) {
	m.handles.Delete(r.handle)
	regionPool.Put(r)
}

func (m *TLSF) region(handle BlockAllocationHandle) (*tlsfRegion, error) {
	r, ok := m.handles.Get(handle)
	if !ok {
		return nil, errors.Newf("handle %d does not refer to a live region of this block", handle)
	}
	return r, nil
}

func (m *TLSF) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.handles = swiss.NewMap[BlockAllocationHandle, *tlsfRegion](42)

	m.nullRegion = m.newRegion()
	m.nullRegion.size = size
	m.nullRegion.markFree()
	m.firstRegion = m.nullRegion

	memoryClass := m.sizeToMemoryClass(size)
	secondIndex := m.sizeToSecondIndex(size, memoryClass)

	listSize := 1
	if memoryClass != 0 {
		listSize = int(memoryClass-1)*(1<<SecondLevelIndex) + int(secondIndex+1)
	}
	listSize += 4

	m.memoryClasses = int(memoryClass + 2)
	m.freeList = make([]*tlsfRegion, listSize)
}

func (m *TLSF) Validate() error {
	if m.SumFreeSize() > m.Size() {
		return errors.New("invalid metadata free size")
	}

	var freeListCount int
	for listIndex, head := range m.freeList {
		if head == nil {
			continue
		}

		if head.prevFree != nil {
			return errors.Newf("region at offset %d is the head of free list %d but has a previous region", head.offset, listIndex)
		}

		for r := head; r != nil; r = r.nextFree {
			if !r.isFree() {
				return errors.Newf("region at offset %d is in free list %d but is not free", r.offset, listIndex)
			}
			if r.nextFree != nil && r.nextFree.prevFree != r {
				return errors.Newf("region at offset %d lists the region at offset %d as its next free region, but the reverse reference is broken", r.offset, r.nextFree.offset)
			}
			if m.listIndexForSize(r.size) != listIndex {
				return errors.Newf("region at offset %d with size %d is in the wrong free list %d", r.offset, r.size, listIndex)
			}
			freeListCount++
		}
	}

	if m.nullRegion.nextPhysical != nil {
		return errors.New("null region must be the tail of the physical region chain")
	}

	if m.firstRegion.prevPhysical != nil {
		return errors.New("first region has a physical region before it")
	}

	var allocCount, freeCount int
	calculatedSize := 0
	calculatedFreeSize := 0
	nextOffset := 0

	for r := m.firstRegion; r != nil; r = r.nextPhysical {
		if r.offset != nextOffset {
			return errors.Newf("physical region at offset %d does not start at the previous region's end offset %d", r.offset, nextOffset)
		}
		if r.nextPhysical != nil && r.nextPhysical.prevPhysical != r {
			return errors.Newf("region at offset %d has a next physical region, but the reverse reference is broken", r.offset)
		}

		nextOffset = r.offset + r.size
		calculatedSize += r.size

		switch {
		case r == m.nullRegion:
			calculatedFreeSize += r.size
		case r.isFree():
			if r.nextPhysical != nil && r.nextPhysical.isFree() && r.nextPhysical != m.nullRegion {
				return errors.Newf("free regions at offsets %d and %d were not merged", r.offset, r.nextPhysical.offset)
			}
			freeCount++
			calculatedFreeSize += r.size
		default:
			allocCount++
		}
	}

	if freeListCount != freeCount {
		return errors.Newf("the number of free regions in the physical chain and the free lists do not match! free lists: %d, physical chain: %d", freeListCount, freeCount)
	}

	if calculatedSize != m.size {
		return errors.Newf("the full size of the metadata is %d, but the regions only added up to %d", m.size, calculatedSize)
	}

	if calculatedFreeSize != m.SumFreeSize() {
		return errors.Newf("the free size of the metadata is %d, but the free regions added up to %d", m.SumFreeSize(), calculatedFreeSize)
	}

	if allocCount != m.allocCount {
		return errors.Newf("the allocation count of the metadata is %d, but the taken regions added up to %d", m.allocCount, allocCount)
	}

	if freeCount != m.freeRegionCount {
		return errors.Newf("the free region count of the metadata is %d, but there were %d free regions", m.freeRegionCount, freeCount)
	}

	return nil
}

func (m *TLSF) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size

	for r := m.firstRegion; r != nil; r = r.nextPhysical {
		switch {
		case r.isFree() && r.size > 0:
			stats.AddUnusedRange(r.size)
		case !r.isFree():
			stats.AddAllocation(r.size)
		}
	}
}

func (m *TLSF) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.size
	stats.AllocationBytes += m.size - m.SumFreeSize()
}

func (m *TLSF) AllocationCount() int {
	return m.allocCount
}

func (m *TLSF) FreeRegionsCount() int {
	if m.nullRegion.size > 0 {
		return m.freeRegionCount + 1
	}
	return m.freeRegionCount
}

func (m *TLSF) SumFreeSize() int {
	return m.freeRegionBytes + m.nullRegion.size
}

func (m *TLSF) IsEmpty() bool {
	return m.nullRegion.offset == 0
}

func (m *TLSF) sizeToMemoryClass(size int) uint8 {
	if size > SmallBufferSize {
		mostSignificantBit := uint8(63 - bits.LeadingZeros64(uint64(size)))
		return mostSignificantBit - MemoryClassShift
	}

	return 0
}

func (m *TLSF) sizeToSecondIndex(size int, memoryClass uint8) uint16 {
	if memoryClass != 0 {
		mask := uint(1) << SecondLevelIndex
		indexVal := uint(size) >> (memoryClass + MemoryClassShift - SecondLevelIndex)
		return uint16(indexVal ^ mask)
	}

	return uint16((size - 1) / smallSizeStep)
}

func (m *TLSF) listIndex(memoryClass uint8, secondIndex uint16) int {
	if memoryClass == 0 {
		return int(secondIndex)
	}

	return int(memoryClass-1)*(1<<SecondLevelIndex) + int(secondIndex) + 4
}

func (m *TLSF) listIndexForSize(size int) int {
	memoryClass := m.sizeToMemoryClass(size)
	return m.listIndex(memoryClass, m.sizeToSecondIndex(size, memoryClass))
}

func (m *TLSF) CreateAllocationRequest(allocSize int, allocAlignment uint, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	var request AllocationRequest

	if allocSize < 1 {
		return false, request, errors.Newf("invalid allocation size: %d", allocSize)
	}
	if err := memutils.CheckPow2(allocAlignment, "allocation alignment"); err != nil {
		return false, request, err
	}

	memutils.DebugValidate(m)

	if allocSize > m.SumFreeSize() {
		return false, request, nil
	}

	if m.freeRegionCount == 0 {
		return m.checkRegion(m.nullRegion, len(m.freeList), allocSize, allocAlignment, &request), request, nil
	}

	// Searching from the next list up guarantees any region found is large enough
	// before alignment is taken into account
	sizeForNextList := allocSize
	if allocSize > SmallBufferSize {
		mostSignificantBit := 63 - bits.LeadingZeros64(uint64(allocSize))
		sizeForNextList += 1 << (mostSignificantBit - int(SecondLevelIndex))
	} else if allocSize > SmallBufferSize-smallSizeStep {
		sizeForNextList = SmallBufferSize + 1
	} else {
		sizeForNextList += smallSizeStep
	}

	var nextListIndex int
	var nextListRegion *tlsfRegion
	fullSearch := false

	switch {
	case strategy&AllocationStrategyMinTime != 0:
		nextListRegion, nextListIndex = m.findFreeRegion(sizeForNextList)
		if nextListRegion != nil {
			fullSearch = true
			if m.checkRegion(nextListRegion, nextListIndex, allocSize, allocAlignment, &request) {
				return true, request, nil
			}
		}

		if m.checkRegion(m.nullRegion, len(m.freeList), allocSize, allocAlignment, &request) {
			return true, request, nil
		}

		if m.scanFreeList(nextListRegion, nextListIndex, allocSize, allocAlignment, &request) {
			return true, request, nil
		}

		prevListRegion, prevListIndex := m.findFreeRegion(allocSize)
		if m.scanFreeList(prevListRegion, prevListIndex, allocSize, allocAlignment, &request) {
			return true, request, nil
		}

	case strategy&AllocationStrategyMinMemory != 0:
		prevListRegion, prevListIndex := m.findFreeRegion(allocSize)
		if m.scanFreeList(prevListRegion, prevListIndex, allocSize, allocAlignment, &request) {
			return true, request, nil
		}

		if m.checkRegion(m.nullRegion, len(m.freeList), allocSize, allocAlignment, &request) {
			return true, request, nil
		}

		nextListRegion, nextListIndex = m.findFreeRegion(sizeForNextList)
		fullSearch = nextListRegion != nil
		if m.scanFreeList(nextListRegion, nextListIndex, allocSize, allocAlignment, &request) {
			return true, request, nil
		}

	case strategy&AllocationStrategyMinOffset != 0:
		for r := m.firstRegion; r != m.nullRegion; r = r.nextPhysical {
			if r.isFree() && r.size >= allocSize &&
				m.checkRegion(r, m.listIndexForSize(r.size), allocSize, allocAlignment, &request) {
				return true, request, nil
			}
		}

		// Whole range searched, null region is the last chance
		return m.checkRegion(m.nullRegion, len(m.freeList), allocSize, allocAlignment, &request), request, nil

	default:
		nextListRegion, nextListIndex = m.findFreeRegion(sizeForNextList)
		fullSearch = nextListRegion != nil
		if m.scanFreeList(nextListRegion, nextListIndex, allocSize, allocAlignment, &request) {
			return true, request, nil
		}

		if m.checkRegion(m.nullRegion, len(m.freeList), allocSize, allocAlignment, &request) {
			return true, request, nil
		}

		prevListRegion, prevListIndex := m.findFreeRegion(allocSize)
		if m.scanFreeList(prevListRegion, prevListIndex, allocSize, allocAlignment, &request) {
			return true, request, nil
		}
	}

	if !fullSearch {
		return false, request, nil
	}

	// Worst case, every larger list has to be walked
	for nextListIndex++; nextListIndex < len(m.freeList); nextListIndex++ {
		if m.scanFreeList(m.freeList[nextListIndex], nextListIndex, allocSize, allocAlignment, &request) {
			return true, request, nil
		}
	}

	return false, request, nil
}

func (m *TLSF) scanFreeList(r *tlsfRegion, listIndex int, allocSize int, allocAlignment uint, request *AllocationRequest) bool {
	for ; r != nil; r = r.nextFree {
		if m.checkRegion(r, listIndex, allocSize, allocAlignment, request) {
			return true
		}
	}

	return false
}

func (m *TLSF) checkRegion(r *tlsfRegion, listIndex int, allocSize int, allocAlignment uint, request *AllocationRequest) bool {
	if !r.isFree() {
		panic(fmt.Sprintf("region at offset %d is already taken", r.offset))
	}

	alignedOffset := memutils.AlignUp(r.offset, allocAlignment)
	if r.size < allocSize+alignedOffset-r.offset {
		return false
	}

	request.BlockAllocationHandle = r.handle
	request.Offset = alignedOffset
	request.Size = allocSize

	// Move the region to the head of its list so the next search finds it first
	if listIndex != len(m.freeList) && r.prevFree != nil {
		r.prevFree.nextFree = r.nextFree
		if r.nextFree != nil {
			r.nextFree.prevFree = r.prevFree
		}

		r.prevFree = nil
		r.nextFree = m.freeList[listIndex]
		m.freeList[listIndex] = r
		if r.nextFree != nil {
			r.nextFree.prevFree = r
		}
	}

	return true
}

func (m *TLSF) findFreeRegion(size int) (*tlsfRegion, int) {
	memoryClass := m.sizeToMemoryClass(size)
	innerFreeMap := m.innerIsFreeBitmap[memoryClass] & (uint32(math.MaxUint32) << m.sizeToSecondIndex(size, memoryClass))

	if innerFreeMap == 0 {
		// Check higher memory classes for available regions
		freeMap := m.isFreeBitmap & (uint32(math.MaxUint32) << (memoryClass + 1))
		if freeMap == 0 {
			return nil, 0
		}

		memoryClass = uint8(bits.TrailingZeros32(freeMap))
		innerFreeMap = m.innerIsFreeBitmap[memoryClass]
		if innerFreeMap == 0 {
			panic("free bitmap is in an invalid state")
		}
	}

	listIndex := m.listIndex(memoryClass, uint16(bits.TrailingZeros32(innerFreeMap)))
	if m.freeList[listIndex] == nil {
		panic(fmt.Sprintf("free list index %d was listed as having free regions, but no regions were in the free list", listIndex))
	}

	return m.freeList[listIndex], listIndex
}

func (m *TLSF) Alloc(request AllocationRequest, userData any) error {
	current, err := m.region(request.BlockAllocationHandle)
	if err != nil {
		return err
	}
	if !current.isFree() {
		return errors.New("allocation request refers to a region that is no longer free")
	}
	if current.offset > request.Offset {
		return errors.Newf("allocation request offset %d precedes its region at offset %d", request.Offset, current.offset)
	}

	if current != m.nullRegion {
		m.removeFreeRegion(current)
	}

	// The alignment padding goes to the previous region if it is free, or becomes a
	// free region of its own
	missingAlignment := request.Offset - current.offset
	if missingAlignment != 0 {
		prev := current.prevPhysical
		if prev == nil {
			return errors.New("missing alignment at offset 0")
		}

		if prev.isFree() {
			oldListIndex := m.listIndexForSize(prev.size)
			if oldListIndex != m.listIndexForSize(prev.size+missingAlignment) {
				m.removeFreeRegion(prev)
				prev.size += missingAlignment
				m.insertFreeRegion(prev)
			} else {
				prev.size += missingAlignment
				m.freeRegionBytes += missingAlignment
			}
		} else {
			padding := m.newRegion()
			current.prevPhysical = padding
			prev.nextPhysical = padding
			padding.prevPhysical = prev
			padding.nextPhysical = current
			padding.size = missingAlignment
			padding.offset = current.offset
			padding.markTaken()

			m.insertFreeRegion(padding)
		}

		current.size -= missingAlignment
		current.offset += missingAlignment
	}

	size := request.Size
	switch {
	case current.size < size:
		return errors.New("allocation request is too large for its region")
	case current.size == size:
		if current == m.nullRegion {
			m.nullRegion = m.newRegion()
			m.nullRegion.offset = current.offset + size
			m.nullRegion.prevPhysical = current
			m.nullRegion.markFree()
			current.nextPhysical = m.nullRegion
		}
		current.markTaken()
	default:
		remainder := m.newRegion()
		remainder.size = current.size - size
		remainder.offset = current.offset + size
		remainder.prevPhysical = current
		remainder.nextPhysical = current.nextPhysical
		current.nextPhysical = remainder
		current.size = size
		current.markTaken()

		if current == m.nullRegion {
			m.nullRegion = remainder
			m.nullRegion.markFree()
		} else {
			remainder.nextPhysical.prevPhysical = remainder
			remainder.markTaken()
			m.insertFreeRegion(remainder)
		}
	}

	current.userData = userData
	m.allocCount++

	memutils.DebugValidate(m)
	return nil
}

func (m *TLSF) Free(allocHandle BlockAllocationHandle) error {
	r, err := m.region(allocHandle)
	if err != nil {
		return err
	}
	if r.isFree() {
		return errors.Newf("region at offset %d is already free", r.offset)
	}

	next := r.nextPhysical
	m.allocCount--
	r.userData = nil

	prev := r.prevPhysical
	if prev != nil && prev.isFree() {
		m.removeFreeRegion(prev)
		m.mergeRegion(r, prev)
	}

	switch {
	case !next.isFree():
		m.insertFreeRegion(r)
	case next == m.nullRegion:
		m.mergeRegion(m.nullRegion, r)
	default:
		m.removeFreeRegion(next)
		m.mergeRegion(next, r)
		m.insertFreeRegion(next)
	}

	memutils.DebugValidate(m)
	return nil
}

func (m *TLSF) removeFreeRegion(r *tlsfRegion) {
	if r == m.nullRegion {
		panic("cannot remove the null region")
	}
	if !r.isFree() {
		panic("provided region is not free")
	}

	if r.nextFree != nil {
		r.nextFree.prevFree = r.prevFree
	}
	if r.prevFree != nil {
		r.prevFree.nextFree = r.nextFree
	} else {
		memClass := m.sizeToMemoryClass(r.size)
		secondIndex := m.sizeToSecondIndex(r.size, memClass)
		index := m.listIndex(memClass, secondIndex)

		if m.freeList[index] != r {
			panic("region was not in the free list at the expected location")
		}
		m.freeList[index] = r.nextFree
		if r.nextFree == nil {
			m.innerIsFreeBitmap[memClass] &= ^(uint32(1) << secondIndex)
			if m.innerIsFreeBitmap[memClass] == 0 {
				m.isFreeBitmap &= ^(uint32(1) << memClass)
			}
		}
	}

	r.nextFree = nil
	r.markTaken()
	m.freeRegionCount--
	m.freeRegionBytes -= r.size
}

func (m *TLSF) insertFreeRegion(r *tlsfRegion) {
	if r == m.nullRegion {
		panic("cannot insert the null region")
	}
	if r.isFree() {
		panic("region is already free")
	}

	memClass := m.sizeToMemoryClass(r.size)
	secondIndex := m.sizeToSecondIndex(r.size, memClass)
	index := m.listIndex(memClass, secondIndex)

	if index >= len(m.freeList) {
		panic("invalid free list index found for region")
	}

	r.prevFree = nil
	r.nextFree = m.freeList[index]
	m.freeList[index] = r
	if r.nextFree != nil {
		r.nextFree.prevFree = r
	} else {
		m.innerIsFreeBitmap[memClass] |= uint32(1) << secondIndex
		m.isFreeBitmap |= uint32(1) << memClass
	}
	m.freeRegionCount++
	m.freeRegionBytes += r.size
}

// mergeRegion folds prev, which must physically precede r and be taken, into r
func (m *TLSF) mergeRegion(r *tlsfRegion, prev *tlsfRegion) {
	if r.prevPhysical != prev {
		panic("cannot merge separate physical regions")
	}
	if prev.isFree() {
		panic("cannot merge a region that belongs to the free list")
	}

	r.offset = prev.offset
	r.size += prev.size
	r.prevPhysical = prev.prevPhysical
	if r.prevPhysical != nil {
		r.prevPhysical.nextPhysical = r
	} else {
		m.firstRegion = r
	}

	m.releaseRegion(prev)
}

func (m *TLSF) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for r := m.firstRegion; r != nil; r = r.nextPhysical {
		if r == m.nullRegion && r.size == 0 {
			break
		}

		err := handleBlock(r.handle, r.offset, r.size, r.userData, r.isFree())
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *TLSF) Clear() {
	for r := m.firstRegion; r != m.nullRegion; {
		next := r.nextPhysical
		m.releaseRegion(r)
		r = next
	}

	m.allocCount = 0
	m.freeRegionCount = 0
	m.freeRegionBytes = 0
	m.isFreeBitmap = 0
	m.innerIsFreeBitmap = [MaxMemoryClasses]uint32{}
	clear(m.freeList)

	m.nullRegion.offset = 0
	m.nullRegion.size = m.size
	m.nullRegion.prevPhysical = nil
	m.firstRegion = m.nullRegion
}

func (m *TLSF) BlockJsonData(json *jwriter.ObjectState) {
	m.writeSummary(json, m.SumFreeSize(), m.allocCount, m.FreeRegionsCount())
}

func (m *TLSF) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	r, err := m.region(allocHandle)
	if err != nil {
		return 0, err
	}

	return r.offset, nil
}

func (m *TLSF) AllocationSize(allocHandle BlockAllocationHandle) (int, error) {
	r, err := m.region(allocHandle)
	if err != nil {
		return 0, err
	}

	return r.size, nil
}

func (m *TLSF) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	r, err := m.region(allocHandle)
	if err != nil {
		return nil, err
	}

	if r.isFree() {
		return nil, errors.New("user data cannot be retrieved for a free region")
	}

	return r.userData, nil
}
