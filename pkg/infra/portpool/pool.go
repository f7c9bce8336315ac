package portpool

import (
	"errors"
	"fmt"
	"sync"
)

var ErrExhausted = errors.New("port pool exhausted")

// Pool tracks which ports of a fixed range are bound. Acquire and
// Release are linearizable across all callers; Release is a no-op on
// a free port.
type Pool struct {
	mu     sync.Mutex
	start  int
	end    int
	bound  []bool
	inUse  int
	cursor int
}

func New(start, end int) (*Pool, error) {
	if start <= 0 || end > 65535 || end < start {
		return nil, fmt.Errorf("unusable port range [%d, %d]", start, end)
	}
	return &Pool{
		start: start,
		end:   end,
		bound: make([]bool, end-start+1),
	}, nil
}

// Acquire returns a free port or ErrExhausted. The scan starts at a
// rotating cursor so a just-released port is not immediately rebound.
func (p *Pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := len(p.bound)
	if p.inUse == size {
		return 0, ErrExhausted
	}
	for i := 0; i < size; i++ {
		idx := (p.cursor + i) % size
		if !p.bound[idx] {
			p.bound[idx] = true
			p.inUse++
			p.cursor = (idx + 1) % size
			return p.start + idx, nil
		}
	}
	return 0, ErrExhausted
}

// Release frees a port. Releasing an already-free or out-of-range
// port is a no-op.
func (p *Pool) Release(port int) {
	if port < p.start || port > p.end {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := port - p.start
	if p.bound[idx] {
		p.bound[idx] = false
		p.inUse--
	}
}

func (p *Pool) IsBound(port int) bool {
	if port < p.start || port > p.end {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bound[port-p.start]
}

func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

func (p *Pool) Size() int {
	return len(p.bound)
}
