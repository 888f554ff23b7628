// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package memory provides the pooled device memory allocator behind tensors.
//
// Each device has a pool of free blocks keyed by exact byte size. An
// allocation tries, in order: the pool, the device driver, a collection pass
// that reclaims unreachable tensors, a flush of the pool back to the driver
// followed by another driver allocation. If all fail it returns
// ErrAllocationFailure.
//
// Example:
//
//	alloc := memory.NewAllocator(memory.DefaultConfig())
//	if err := alloc.AddDevice(0, memory.NewSimDevice("sim0", 1<<30)); err != nil {
//	    return err
//	}
//	ctx, err := tensor.NewContext(alloc, 0)
package memory

import (
	"github.com/born-ml/gradtape/internal/memory"
)

// DeviceID identifies a device registered with an Allocator.
type DeviceID = memory.DeviceID

// Ptr is an opaque device pointer.
type Ptr = memory.Ptr

// Driver allocates and moves raw device memory.
type Driver = memory.Driver

// Allocator owns the per-device pools.
type Allocator = memory.Allocator

// Config controls allocator behavior.
type Config = memory.Config

// Stats summarizes allocator activity on one device.
type Stats = memory.Stats

// Event describes one attempted allocation step.
type Event = memory.Event

// Step is one stage of the allocation sequence.
type Step = memory.Step

// Allocation steps.
const (
	StepPoolLookup  = memory.StepPoolLookup
	StepDeviceAlloc = memory.StepDeviceAlloc
	StepCollect     = memory.StepCollect
	StepFlush       = memory.StepFlush
	StepFail        = memory.StepFail
)

// SimDevice is a host-memory driver with a fixed capacity.
type SimDevice = memory.SimDevice

// Errors.
var (
	ErrAllocationFailure = memory.ErrAllocationFailure
	ErrOutOfMemory       = memory.ErrOutOfMemory
	ErrUnknownDevice     = memory.ErrUnknownDevice
	ErrInvalidPointer    = memory.ErrInvalidPointer
	ErrReleasedRef       = memory.ErrReleasedRef
)

// DefaultConfig returns the standard allocator configuration.
func DefaultConfig() Config {
	return memory.DefaultConfig()
}

// NewAllocator creates an allocator with no devices.
func NewAllocator(cfg Config) *Allocator {
	return memory.NewAllocator(cfg)
}

// NewSimDevice creates a simulated device (capacity 0 = unlimited).
func NewSimDevice(name string, capacity int) *SimDevice {
	return memory.NewSimDevice(name, capacity)
}
