// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides device-resident tensors backed by pooled memory.
//
// # Overview
//
// A Tensor is a handle to a block of device memory plus shape, dtype and
// layout. Blocks come from a per-device pool keyed by exact byte size, so a
// released tensor's pointer is handed to the next request of the same size
// without touching the device allocator.
//
// # Basic Usage
//
//	ctx := tensor.NewSimContext(0, memory.DefaultConfig())
//
//	x, err := tensor.ToDevice(ctx, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	if err != nil {
//	    return err
//	}
//	defer x.Release()
//
//	row, _ := x.Slice(0, 1, 2)   // contiguous: a view sharing x's memory
//	col, _ := x.Slice(1, 0, 1)   // strided: a copy
//	host, _ := tensor.ToHost[float32](row)
//
// # Devices
//
// A Context tracks the active device. New tensors are allocated there and
// kernels refuse operands that live elsewhere (ErrDeviceMismatch). Switching
// the active device keeps the memory of tensors on other devices.
//
// # Memory Management
//
// Call Release when a tensor is no longer needed; its block returns to the
// pool once no view references it. Tensors dropped without Release are
// reclaimed by the allocator's collection pass, which runs automatically
// when an allocation would otherwise fail.
package tensor
