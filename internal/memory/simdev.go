package memory

import (
	"github.com/pkg/errors"
)

// SimDevice is a host-backed Driver with a fixed byte capacity.
//
// It behaves like a device allocator from the pool's point of view: pointers
// are never reused by the device itself, allocations beyond capacity fail
// with ErrOutOfMemory, and memory is only reachable through Read/Write/Copy.
type SimDevice struct {
	name     string
	capacity int
	used     int
	next     Ptr
	blocks   map[Ptr][]byte

	allocs int
	frees  int
}

// NewSimDevice creates a simulated device with capacity bytes.
// A capacity <= 0 means unlimited.
func NewSimDevice(name string, capacity int) *SimDevice {
	return &SimDevice{
		name:     name,
		capacity: capacity,
		blocks:   make(map[Ptr][]byte),
	}
}

// Name returns the device name.
func (d *SimDevice) Name() string {
	return d.name
}

// Alloc reserves size bytes.
func (d *SimDevice) Alloc(size int) (Ptr, error) {
	if size <= 0 {
		return 0, errors.Errorf("%s: invalid allocation size %d", d.name, size)
	}
	if d.capacity > 0 && d.used+size > d.capacity {
		return 0, errors.Wrapf(ErrOutOfMemory, "%s: requested %d bytes, %d of %d in use",
			d.name, size, d.used, d.capacity)
	}
	d.next++
	d.blocks[d.next] = make([]byte, size)
	d.used += size
	d.allocs++
	return d.next, nil
}

// Free releases p.
func (d *SimDevice) Free(p Ptr) error {
	buf, ok := d.blocks[p]
	if !ok {
		return errors.Wrapf(ErrInvalidPointer, "%s: free of %#x", d.name, uint64(p))
	}
	d.used -= len(buf)
	d.frees++
	delete(d.blocks, p)
	return nil
}

// Write copies src into dst at offset.
func (d *SimDevice) Write(dst Ptr, offset int, src []byte) error {
	buf, err := d.span(dst, offset, len(src))
	if err != nil {
		return err
	}
	copy(buf, src)
	return nil
}

// Read copies len(dst) bytes from src at offset.
func (d *SimDevice) Read(dst []byte, src Ptr, offset int) error {
	buf, err := d.span(src, offset, len(dst))
	if err != nil {
		return err
	}
	copy(dst, buf)
	return nil
}

// Copy copies n bytes between device allocations.
func (d *SimDevice) Copy(dst Ptr, dstOffset int, src Ptr, srcOffset, n int) error {
	from, err := d.span(src, srcOffset, n)
	if err != nil {
		return err
	}
	to, err := d.span(dst, dstOffset, n)
	if err != nil {
		return err
	}
	copy(to, from)
	return nil
}

// Used returns the number of bytes currently allocated on the device.
func (d *SimDevice) Used() int {
	return d.used
}

// Capacity returns the device capacity in bytes (0 = unlimited).
func (d *SimDevice) Capacity() int {
	return d.capacity
}

// Counts returns how many device allocations and frees have happened.
func (d *SimDevice) Counts() (allocs, frees int) {
	return d.allocs, d.frees
}

func (d *SimDevice) span(p Ptr, offset, n int) ([]byte, error) {
	buf, ok := d.blocks[p]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidPointer, "%s: access to %#x", d.name, uint64(p))
	}
	if offset < 0 || n < 0 || offset+n > len(buf) {
		return nil, errors.Errorf("%s: range [%d,%d) outside block of %d bytes",
			d.name, offset, offset+n, len(buf))
	}
	return buf[offset : offset+n], nil
}
