package pool

import (
	"fmt"
	"sync"

	"github.com/sarchlab/radarctl/hooking"
)

// An IndexPool hands out indices of a fixed set of identical hardware
// channels, such as DMA channels, accelerator parameter sets, or trigger
// sources. Indices are handed out in increasing order and never wrap.
type IndexPool struct {
	hooking.HookableBase

	lock      sync.Mutex
	name      string
	capacity  int
	next      int
	highWater int
}

// NewIndexPool creates an index pool that manages capacity channels.
func NewIndexPool(name string, capacity int) *IndexPool {
	if capacity < 0 {
		panic("capacity must not be negative")
	}

	return &IndexPool{
		name:     name,
		capacity: capacity,
	}
}

// Name returns the name of the pool.
func (p *IndexPool) Name() string {
	return p.name
}

// Capacity returns the number of channels managed by the pool.
func (p *IndexPool) Capacity() int {
	return p.capacity
}

// Allocated returns the number of channels currently handed out.
func (p *IndexPool) Allocated() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.next
}

// HighWater returns the largest number of channels ever handed out at once.
func (p *IndexPool) HighWater() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.highWater
}

// Reset makes every channel available again.
func (p *IndexPool) Reset() {
	p.lock.Lock()
	p.next = 0
	p.lock.Unlock()

	p.invoke(HookPosReset, Allocation{Pool: p.name})
}

// AllocOne returns the next free channel index.
func (p *IndexPool) AllocOne() (int, error) {
	return p.AllocRange(1)
}

// AllocRange reserves n consecutive channels and returns the first index.
func (p *IndexPool) AllocRange(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%s: invalid channel count %d", p.name, n)
	}

	p.lock.Lock()

	if n > p.capacity-p.next {
		free := p.capacity - p.next
		p.lock.Unlock()

		p.invoke(HookPosExhausted, Allocation{Pool: p.name, Size: uint64(n)})

		return 0, exhausted(p.name, uint64(n), uint64(free), "channels")
	}

	start := p.next
	p.next += n

	if p.next > p.highWater {
		p.highWater = p.next
	}
	p.lock.Unlock()

	p.invoke(HookPosAlloc, Allocation{
		Pool:   p.name,
		Offset: uint64(start),
		Size:   uint64(n),
	})

	return start, nil
}

// Usage returns a snapshot of the pool usage.
func (p *IndexPool) Usage() Usage {
	p.lock.Lock()
	defer p.lock.Unlock()

	return Usage{
		Name:      p.name,
		Kind:      "index",
		Used:      uint64(p.next),
		Capacity:  uint64(p.capacity),
		HighWater: uint64(p.highWater),
	}
}

func (p *IndexPool) invoke(pos *hooking.HookPos, item Allocation) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(hooking.HookCtx{Domain: p, Pos: pos, Item: item})
}
