package memory

import "fmt"

// DeviceID identifies a device registered with an Allocator.
type DeviceID int

// String returns a human-readable device name.
func (d DeviceID) String() string {
	return fmt.Sprintf("device:%d", int(d))
}

// Ptr is an opaque device address issued by a Driver.
// Zero is never a valid pointer.
type Ptr uint64

// Driver is the device side of the allocator: raw allocation plus the copy
// engine between host and device memory.
//
// Implementations:
//   - SimDevice: host-backed device with a fixed capacity
//   - WebGPUDevice: GPU buffers through go-webgpu (windows builds)
type Driver interface {
	// Name returns the driver name.
	Name() string

	// Alloc reserves size bytes. It returns an error wrapping ErrOutOfMemory
	// when the device cannot satisfy the request.
	Alloc(size int) (Ptr, error)

	// Free returns p to the device.
	Free(p Ptr) error

	// Write copies src into dst starting at byte offset.
	Write(dst Ptr, offset int, src []byte) error

	// Read copies len(dst) bytes from src starting at byte offset.
	Read(dst []byte, src Ptr, offset int) error

	// Copy copies n bytes between two device allocations.
	Copy(dst Ptr, dstOffset int, src Ptr, srcOffset, n int) error
}
