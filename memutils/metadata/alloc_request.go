package metadata

// AllocationRequest is returned from BlockMetadata.CreateAllocationRequest and indicates
// where the metadata intends to place a new allocation. It is committed with
// BlockMetadata.Alloc, and stays valid only until the metadata is next modified.
type AllocationRequest struct {
	// BlockAllocationHandle identifies the free region the allocation will be carved
	// from. Once committed, it identifies the allocation itself.
	BlockAllocationHandle BlockAllocationHandle
	// Offset is the aligned offset of the allocation within the block
	Offset int
	// Size is the size of the allocation in bytes
	Size int
}
