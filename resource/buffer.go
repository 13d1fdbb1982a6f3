package resource

import (
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/substrate/backend"
	"github.com/vkngwrapper/substrate/gpuerr"
	"github.com/vkngwrapper/substrate/memory"
)

// Buffer is a native buffer bound to a range of a Heap
type Buffer struct {
	logger     *slog.Logger
	native     backend.Buffer
	heap       *memory.Heap
	allocation memory.Allocation
	typ        BufferType
	size       int

	initialized atomic.Bool
	destroyed   atomic.Bool
}

// Native returns the backend buffer object
func (b *Buffer) Native() backend.Buffer { return b.native }

// Heap is the heap the buffer is bound to
func (b *Buffer) Heap() *memory.Heap { return b.heap }

// Allocation is the buffer's range within its heap
func (b *Buffer) Allocation() memory.Allocation { return b.allocation }

// Type is the kind the buffer was created as
func (b *Buffer) Type() BufferType { return b.typ }

// Size is the size the buffer was created with. The heap range backing it may be larger.
func (b *Buffer) Size() int { return b.size }

// MarkInitialized records that the buffer's first barrier has been emitted. It returns
// false if that already happened.
func (b *Buffer) MarkInitialized() bool {
	return b.initialized.CompareAndSwap(false, true)
}

// Map returns the buffer's bytes in host memory. Every successful Map must be paired
// with an Unmap.
func (b *Buffer) Map() ([]byte, error) {
	data, err := b.heap.Map()
	if err != nil {
		return nil, errors.Wrap(err, "failed to map buffer")
	}

	offset := b.allocation.Offset()
	return data[offset : offset+b.size : offset+b.size], nil
}

// Unmap releases one reference taken by Map
func (b *Buffer) Unmap() {
	b.heap.Unmap()
}

// Flush makes host writes to [offset, offset+size) visible to the device. A size of -1
// flushes to the end of the buffer.
func (b *Buffer) Flush(offset, size int) error {
	offset, size = b.clampRange(offset, size)
	return b.heap.Flush(b.allocation.Offset()+offset, size)
}

// Invalidate makes device writes to [offset, offset+size) visible to the host
func (b *Buffer) Invalidate(offset, size int) error {
	offset, size = b.clampRange(offset, size)
	return b.heap.Invalidate(b.allocation.Offset()+offset, size)
}

// ResolveRange returns r with a Size of -1 replaced by the remainder of the buffer. It
// panics if r falls outside the buffer.
func (b *Buffer) ResolveRange(r ByteRange) ByteRange {
	r.Offset, r.Size = b.clampRange(r.Offset, r.Size)
	return r
}

func (b *Buffer) clampRange(offset, size int) (int, int) {
	if size == -1 {
		size = b.size - offset
	}
	if offset < 0 || size <= 0 || offset+size > b.size {
		gpuerr.Precondition("range [%d,%d) is outside a buffer of %d bytes", offset, offset+size, b.size)
	}
	return offset, size
}

// Destroy releases the native buffer and then returns its range to the heap
func (b *Buffer) Destroy() error {
	if !b.destroyed.CompareAndSwap(false, true) {
		gpuerr.Precondition("buffer destroyed twice")
	}

	b.native.Destroy()
	err := b.heap.Deallocate(b.allocation)
	if err != nil {
		return errors.Wrap(err, "failed to return buffer memory")
	}

	b.logger.Debug("Buffer::Destroy", slog.Int("Size", b.size), slog.Uint64("Heap", b.heap.ID()))
	return nil
}
