package memory

// Pool holds device pointers that no live tensor references, keyed by the
// exact byte size they were allocated with.
//
// Pointers are handed out LIFO so that a release followed by a same-size
// request returns the same pointer.
type Pool struct {
	free  map[int][]Ptr
	count int
	bytes int
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{free: make(map[int][]Ptr)}
}

// Get removes and returns a pointer of exactly size bytes.
func (p *Pool) Get(size int) (Ptr, bool) {
	ptrs := p.free[size]
	if len(ptrs) == 0 {
		return 0, false
	}
	ptr := ptrs[len(ptrs)-1]
	if len(ptrs) == 1 {
		delete(p.free, size)
	} else {
		p.free[size] = ptrs[:len(ptrs)-1]
	}
	p.count--
	p.bytes -= size
	return ptr, true
}

// Put parks ptr for reuse by requests of size bytes.
func (p *Pool) Put(size int, ptr Ptr) {
	p.free[size] = append(p.free[size], ptr)
	p.count++
	p.bytes += size
}

// Len returns the number of pooled pointers.
func (p *Pool) Len() int {
	return p.count
}

// Bytes returns the total size of pooled pointers.
func (p *Pool) Bytes() int {
	return p.bytes
}

// Contains reports whether ptr is currently pooled.
func (p *Pool) Contains(ptr Ptr) bool {
	for _, ptrs := range p.free {
		for _, q := range ptrs {
			if q == ptr {
				return true
			}
		}
	}
	return false
}

// Drain empties the pool and calls fn for every pointer it held.
func (p *Pool) Drain(fn func(size int, ptr Ptr)) {
	for size, ptrs := range p.free {
		for _, ptr := range ptrs {
			fn(size, ptr)
		}
		delete(p.free, size)
	}
	p.count = 0
	p.bytes = 0
}
