package memory

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Block is a device allocation shared by one or more tensors (a tensor and
// its views). It returns to the pool when its reference count reaches zero.
type Block struct {
	alloc  *Allocator
	device DeviceID
	ptr    Ptr
	size   int
	refs   int
}

// Device returns the device holding the block.
func (b *Block) Device() DeviceID {
	return b.device
}

// Ptr returns the device pointer.
func (b *Block) Ptr() Ptr {
	return b.ptr
}

// Size returns the block size in bytes.
func (b *Block) Size() int {
	return b.size
}

// Refs returns the current reference count.
func (b *Block) Refs() int {
	return b.refs
}

// Ref is one owning reference to a Block.
//
// Release must be called on the goroutine that owns the allocator. Defer may
// be called from anywhere (it is what GC cleanups call for tensors dropped
// without Release); the reference is then dropped by the next collection pass.
type Ref struct {
	block *Block
	done  atomic.Bool
}

// Block returns the referenced block.
func (r *Ref) Block() *Block {
	return r.block
}

// Retain returns a new reference to the same block. A released reference
// cannot be retained: its block may already be pooled.
func (r *Ref) Retain() (*Ref, error) {
	if r.done.Load() {
		return nil, errors.Wrapf(ErrReleasedRef, "block %#x on %v", uint64(r.block.ptr), r.block.device)
	}
	r.block.refs++
	return &Ref{block: r.block}, nil
}

// Released reports whether this reference has been dropped.
func (r *Ref) Released() bool {
	return r.done.Load()
}

// Release drops the reference immediately. Releasing twice is a no-op.
func (r *Ref) Release() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	r.block.alloc.drop(r.block)
}

// Defer queues the reference to be dropped by the next collection pass.
func (r *Ref) Defer() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	r.block.alloc.deferDrop(r.block)
}
