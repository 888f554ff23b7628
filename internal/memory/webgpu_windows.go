//go:build windows

package memory

import (
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

// WebGPUDevice is a Driver backed by WebGPU storage buffers.
//
// Offsets and sizes passed to Write/Read/Copy must be multiples of 4, which
// holds for every supported dtype.
type WebGPUDevice struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	capacity int
	used     int
	next     Ptr
	buffers  map[Ptr]*gpuBuffer
}

type gpuBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// NewWebGPUDevice opens the default adapter. capacity bounds the bytes the
// driver will hand out (0 = unlimited) since WebGPU does not report
// out-of-memory synchronously.
func NewWebGPUDevice(capacity int) (dev *WebGPUDevice, err error) {
	// wgpu panics when the native library is missing.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, errors.Wrap(err, "webgpu: create instance")
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request adapter")
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(err, "webgpu: request device")
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: no queue")
	}

	return &WebGPUDevice{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		capacity: capacity,
		buffers:  make(map[Ptr]*gpuBuffer),
	}, nil
}

// Name returns the driver name.
func (d *WebGPUDevice) Name() string {
	return "webgpu"
}

// Alloc creates a storage buffer of size bytes (rounded up to 4).
func (d *WebGPUDevice) Alloc(size int) (Ptr, error) {
	if size <= 0 {
		return 0, errors.Errorf("webgpu: invalid allocation size %d", size)
	}
	aligned := (uint64(size) + 3) &^ 3
	if d.capacity > 0 && d.used+int(aligned) > d.capacity {
		return 0, errors.Wrapf(ErrOutOfMemory, "webgpu: requested %d bytes, %d of %d in use",
			size, d.used, d.capacity)
	}
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  aligned,
	})
	if buf == nil {
		return 0, errors.Wrapf(ErrOutOfMemory, "webgpu: CreateBuffer(%d) returned nil", aligned)
	}
	d.next++
	d.buffers[d.next] = &gpuBuffer{buf: buf, size: aligned}
	d.used += int(aligned)
	return d.next, nil
}

// Free releases the buffer behind p.
func (d *WebGPUDevice) Free(p Ptr) error {
	gb, ok := d.buffers[p]
	if !ok {
		return errors.Wrapf(ErrInvalidPointer, "webgpu: free of %#x", uint64(p))
	}
	gb.buf.Release()
	d.used -= int(gb.size)
	delete(d.buffers, p)
	return nil
}

// Write uploads src through a mapped staging buffer.
func (d *WebGPUDevice) Write(dst Ptr, offset int, src []byte) error {
	gb, err := d.lookup(dst, offset, len(src))
	if err != nil {
		return err
	}
	size := uint64(len(src))
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageMapWrite | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()

	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // mapped range is exactly size bytes
	copy(unsafe.Slice((*byte)(mapped), size), src)
	staging.Unmap()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, gb.buf, uint64(offset), size)
	d.queue.Submit(encoder.Finish(nil))
	return nil
}

// Read downloads into dst through a staging buffer.
func (d *WebGPUDevice) Read(dst []byte, src Ptr, offset int) error {
	gb, err := d.lookup(src, offset, len(dst))
	if err != nil {
		return err
	}
	size := uint64(len(dst))
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(gb.buf, uint64(offset), staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return errors.Wrap(err, "webgpu: map staging buffer")
	}
	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // mapped range is exactly size bytes
	copy(dst, unsafe.Slice((*byte)(mapped), size))
	staging.Unmap()
	return nil
}

// Copy copies n bytes between buffers on the device.
func (d *WebGPUDevice) Copy(dst Ptr, dstOffset int, src Ptr, srcOffset, n int) error {
	from, err := d.lookup(src, srcOffset, n)
	if err != nil {
		return err
	}
	to, err := d.lookup(dst, dstOffset, n)
	if err != nil {
		return err
	}
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(from.buf, uint64(srcOffset), to.buf, uint64(dstOffset), uint64(n))
	d.queue.Submit(encoder.Finish(nil))
	return nil
}

// Release frees every buffer and the device.
func (d *WebGPUDevice) Release() {
	for p, gb := range d.buffers {
		gb.buf.Release()
		delete(d.buffers, p)
	}
	d.used = 0
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

func (d *WebGPUDevice) lookup(p Ptr, offset, n int) (*gpuBuffer, error) {
	gb, ok := d.buffers[p]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidPointer, "webgpu: access to %#x", uint64(p))
	}
	if offset < 0 || n < 0 || uint64(offset+n) > gb.size {
		return nil, errors.Errorf("webgpu: range [%d,%d) outside buffer of %d bytes",
			offset, offset+n, gb.size)
	}
	if offset%4 != 0 || n%4 != 0 {
		return nil, errors.Errorf("webgpu: unaligned access offset=%d size=%d", offset, n)
	}
	return gb, nil
}
