package memory

import (
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Step identifies one stage of the allocation algorithm.
type Step int

// Allocation steps, in the order they are attempted.
const (
	StepPoolLookup Step = iota + 1
	StepDeviceAlloc
	StepCollect
	StepFlush
	StepFail
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepPoolLookup:
		return "pool-lookup"
	case StepDeviceAlloc:
		return "device-alloc"
	case StepCollect:
		return "collect"
	case StepFlush:
		return "flush"
	case StepFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Event describes one attempted allocation step.
type Event struct {
	Device DeviceID
	Size   int
	Step   Step
	OK     bool
}

// Config controls allocator behavior.
type Config struct {
	Logger klog.Logger

	// Observer, if set, is called for every allocation step.
	Observer func(Event)

	// CollectOnPressure enables step 3 (collection pass).
	CollectOnPressure bool

	// FlushOnPressure enables step 4 (pool flush).
	FlushOnPressure bool
}

// DefaultConfig returns the standard allocator configuration.
func DefaultConfig() Config {
	return Config{
		Logger:            klog.Background().WithName("memory"),
		CollectOnPressure: true,
		FlushOnPressure:   true,
	}
}

// Stats summarizes allocator activity on one device.
type Stats struct {
	Hits         int64 // requests served from the pool
	Misses       int64 // requests that went past the pool
	DeviceAllocs int64 // successful driver allocations
	DeviceFrees  int64 // pointers returned to the driver
	Collections  int64 // collection passes
	Flushes      int64 // pool flushes (pressure or ForceReclaim)
	Failures     int64 // allocations that failed every step
	FreeFailures int64 // flushed pointers the driver refused to free
	PooledBlocks int
	PooledBytes  int
	LiveBlocks   int
	LiveBytes    int
}

type deviceState struct {
	driver Driver
	pool   *Pool
	stats  Stats
}

// Allocator owns the per-device pools.
type Allocator struct {
	cfg     Config
	log     klog.Logger
	devices map[DeviceID]*deviceState

	mu       sync.Mutex
	deferred []*Block
}

// NewAllocator creates an allocator with no devices.
func NewAllocator(cfg Config) *Allocator {
	return &Allocator{
		cfg:     cfg,
		log:     cfg.Logger,
		devices: make(map[DeviceID]*deviceState),
	}
}

// AddDevice registers a driver under id.
func (a *Allocator) AddDevice(id DeviceID, d Driver) error {
	if _, ok := a.devices[id]; ok {
		return errors.Errorf("device %v already registered", id)
	}
	a.devices[id] = &deviceState{driver: d, pool: NewPool()}
	a.log.V(1).Info("registered device", "device", id, "driver", d.Name())
	return nil
}

// Devices returns the registered device ids in ascending order.
func (a *Allocator) Devices() []DeviceID {
	ids := make([]DeviceID, 0, len(a.devices))
	for id := range a.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasDevice reports whether id is registered.
func (a *Allocator) HasDevice(id DeviceID) bool {
	_, ok := a.devices[id]
	return ok
}

// Driver returns the driver registered under id.
func (a *Allocator) Driver(id DeviceID) (Driver, error) {
	st, err := a.device(id)
	if err != nil {
		return nil, err
	}
	return st.driver, nil
}

// Alloc returns a reference to a block of exactly size bytes on device id.
func (a *Allocator) Alloc(id DeviceID, size int) (*Ref, error) {
	st, err := a.device(id)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.Errorf("alloc: invalid size %d", size)
	}

	if ptr, ok := a.fromPool(st, id, size); ok {
		return a.newRef(st, id, ptr, size), nil
	}
	st.stats.Misses++

	ptr, devErr := a.fromDevice(st, id, size)
	if devErr == nil {
		return a.newRef(st, id, ptr, size), nil
	}

	if a.cfg.CollectOnPressure {
		a.emit(Event{Device: id, Size: size, Step: StepCollect, OK: true})
		a.collect()
		if ptr, ok := a.fromPool(st, id, size); ok {
			return a.newRef(st, id, ptr, size), nil
		}
	}

	if a.cfg.FlushOnPressure {
		a.emit(Event{Device: id, Size: size, Step: StepFlush, OK: true})
		if err := a.flush(st, id); err != nil {
			a.log.Error(err, "pool flush incomplete", "device", id)
		}
		ptr, devErr = a.fromDevice(st, id, size)
		if devErr == nil {
			return a.newRef(st, id, ptr, size), nil
		}
	}

	st.stats.Failures++
	a.emit(Event{Device: id, Size: size, Step: StepFail})
	a.log.Error(devErr, "allocation failed", "device", id, "bytes", size,
		"live", st.stats.LiveBytes)
	return nil, errors.Wrapf(ErrAllocationFailure, "%d bytes on %v: %v", size, id, devErr)
}

// Collect runs a collection pass and returns how many blocks reached the pool.
func (a *Allocator) Collect() int {
	return a.collect()
}

// ForceReclaim drains the pool of device id back to its driver.
func (a *Allocator) ForceReclaim(id DeviceID) error {
	st, err := a.device(id)
	if err != nil {
		return err
	}
	a.sweep()
	return a.flush(st, id)
}

// Stats returns a snapshot of the counters for device id.
func (a *Allocator) Stats(id DeviceID) (Stats, error) {
	st, err := a.device(id)
	if err != nil {
		return Stats{}, err
	}
	s := st.stats
	s.PooledBlocks = st.pool.Len()
	s.PooledBytes = st.pool.Bytes()
	return s, nil
}

// Pooled reports whether ptr is parked in the pool of device id.
func (a *Allocator) Pooled(id DeviceID, ptr Ptr) bool {
	st, ok := a.devices[id]
	return ok && st.pool.Contains(ptr)
}

// PendingDeferred returns the number of queued deferred releases.
func (a *Allocator) PendingDeferred() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.deferred)
}

func (a *Allocator) device(id DeviceID) (*deviceState, error) {
	st, ok := a.devices[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDevice, "%v", id)
	}
	return st, nil
}

func (a *Allocator) fromPool(st *deviceState, id DeviceID, size int) (Ptr, bool) {
	ptr, ok := st.pool.Get(size)
	a.emit(Event{Device: id, Size: size, Step: StepPoolLookup, OK: ok})
	if ok {
		st.stats.Hits++
		a.log.V(4).Info("pool hit", "device", id, "bytes", size, "ptr", ptr)
	}
	return ptr, ok
}

func (a *Allocator) fromDevice(st *deviceState, id DeviceID, size int) (Ptr, error) {
	ptr, err := st.driver.Alloc(size)
	a.emit(Event{Device: id, Size: size, Step: StepDeviceAlloc, OK: err == nil})
	if err != nil {
		a.log.V(4).Info("device allocation failed", "device", id, "bytes", size, "err", err)
		return 0, err
	}
	st.stats.DeviceAllocs++
	a.log.V(4).Info("device allocation", "device", id, "bytes", size, "ptr", ptr)
	return ptr, nil
}

func (a *Allocator) newRef(st *deviceState, id DeviceID, ptr Ptr, size int) *Ref {
	st.stats.LiveBlocks++
	st.stats.LiveBytes += size
	b := &Block{alloc: a, device: id, ptr: ptr, size: size, refs: 1}
	return &Ref{block: b}
}

// drop decrements the block's reference count and pools it at zero.
func (a *Allocator) drop(b *Block) {
	b.refs--
	if b.refs > 0 {
		return
	}
	st := a.devices[b.device]
	st.stats.LiveBlocks--
	st.stats.LiveBytes -= b.size
	st.pool.Put(b.size, b.ptr)
	a.log.V(4).Info("block pooled", "device", b.device, "bytes", b.size, "ptr", b.ptr)
}

func (a *Allocator) deferDrop(b *Block) {
	a.mu.Lock()
	a.deferred = append(a.deferred, b)
	a.mu.Unlock()
}

// collect gives the runtime a chance to run tensor cleanups and then sweeps
// whatever they queued.
func (a *Allocator) collect() int {
	for _, st := range a.devices {
		st.stats.Collections++
	}
	runtime.GC()
	// Cleanups run on their own goroutine once GC has found the tensors.
	runtime.Gosched()
	n := a.sweep()
	a.log.V(1).Info("collection pass", "released", n)
	return n
}

// sweep applies queued deferred releases and returns how many blocks were pooled.
func (a *Allocator) sweep() int {
	a.mu.Lock()
	queued := a.deferred
	a.deferred = nil
	a.mu.Unlock()

	pooled := 0
	for _, b := range queued {
		a.drop(b)
		if b.refs == 0 {
			pooled++
		}
	}
	return pooled
}

func (a *Allocator) flush(st *deviceState, id DeviceID) error {
	st.stats.Flushes++
	var firstErr error
	type pooled struct {
		size int
		ptr  Ptr
	}
	var kept []pooled
	n, bytes := st.pool.Len(), st.pool.Bytes()
	st.pool.Drain(func(size int, ptr Ptr) {
		if err := st.driver.Free(ptr); err != nil {
			if firstErr == nil {
				firstErr = errors.WithMessagef(err, "freeing %d bytes on %v", size, id)
			}
			st.stats.FreeFailures++
			kept = append(kept, pooled{size, ptr})
			return
		}
		st.stats.DeviceFrees++
	})
	// Pointers the driver refused stay pooled.
	for _, b := range kept {
		st.pool.Put(b.size, b.ptr)
	}
	a.log.V(1).Info("pool flushed", "device", id, "blocks", n-len(kept), "bytes", bytes-st.pool.Bytes())
	return firstErr
}

func (a *Allocator) emit(ev Event) {
	if a.cfg.Observer != nil {
		a.cfg.Observer(ev)
	}
}
