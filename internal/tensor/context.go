package tensor

import (
	"github.com/born-ml/gradtape/internal/memory"
	"github.com/pkg/errors"
)

// Context carries the allocator and the active device. Every tensor keeps
// the context it was created in; kernels allocate results on the active
// device and refuse tensors living elsewhere.
type Context struct {
	alloc  *memory.Allocator
	active memory.DeviceID
}

// NewContext creates a context over alloc with active as the active device.
func NewContext(alloc *memory.Allocator, active memory.DeviceID) (*Context, error) {
	if !alloc.HasDevice(active) {
		return nil, errors.Wrapf(memory.ErrUnknownDevice, "%v", active)
	}
	return &Context{alloc: alloc, active: active}, nil
}

// NewSimContext creates a context with one simulated device (id 0) of the
// given capacity in bytes (0 = unlimited).
func NewSimContext(capacity int, cfg memory.Config) *Context {
	alloc := memory.NewAllocator(cfg)
	if err := alloc.AddDevice(0, memory.NewSimDevice("sim0", capacity)); err != nil {
		panic(err) // fresh allocator
	}
	return &Context{alloc: alloc, active: 0}
}

// Allocator returns the context's allocator.
func (c *Context) Allocator() *memory.Allocator {
	return c.alloc
}

// ActiveDevice returns the device new tensors are allocated on.
func (c *Context) ActiveDevice() memory.DeviceID {
	return c.active
}

// SetActiveDevice switches the active device. Tensors on other devices keep
// their memory but cannot be used by kernels until their device is active again.
func (c *Context) SetActiveDevice(id memory.DeviceID) error {
	if !c.alloc.HasDevice(id) {
		return errors.Wrapf(memory.ErrUnknownDevice, "%v", id)
	}
	c.active = id
	return nil
}

// ForceReclaim returns every pooled block of device id to its driver.
func (c *Context) ForceReclaim(id memory.DeviceID) error {
	return c.alloc.ForceReclaim(id)
}

func (c *Context) driver() memory.Driver {
	d, err := c.alloc.Driver(c.active)
	if err != nil {
		panic(err) // active is validated on every change
	}
	return d
}

// checkActive verifies that every tensor lives on the active device of c.
func (c *Context) checkActive(op string, ts ...*Tensor) error {
	for i, t := range ts {
		if t.ref.Released() {
			return errors.Wrapf(ErrReleased, "%s: operand %d", op, i)
		}
		if t.ctx != c {
			return errors.Wrapf(ErrDeviceMismatch, "%s: operand %d belongs to another context", op, i)
		}
		if t.device != c.active {
			return errors.Wrapf(ErrDeviceMismatch, "%s: operand %d on %v, active device is %v",
				op, i, t.device, c.active)
		}
	}
	return nil
}
