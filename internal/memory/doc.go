// Package memory implements the device memory allocator used by tensors.
//
// Device allocations are slow compared to the kernels that consume them, so
// blocks are never handed back to the device when their last tensor goes
// away. Instead the block's pointer is parked in a per-device pool keyed by
// exact byte size and handed out again on the next request of that size.
//
// Allocation order:
//  1. exact-size pool lookup
//  2. fresh device allocation
//  3. collection pass (GC + sweep of deferred releases), then pool lookup
//  4. flush of the device's pool back to the driver, then device allocation
//  5. ErrAllocationFailure
//
// The pool is single-owner state. Only the deferred-release queue, which is
// fed by GC cleanups, is safe to touch from another goroutine.
package memory
