package pool

import (
	"fmt"
	"sync"

	"github.com/sarchlab/radarctl/hooking"
)

// A WindowPool places coefficient tables, such as FFT windows and steering
// vectors, in a hardware scratch window without overlap. It is denominated in
// elements. In ping/pong mode every table starts on an even element so that
// the two halves of a double-buffered table stay symmetric.
type WindowPool struct {
	hooking.HookableBase

	lock      sync.Mutex
	name      string
	capacity  uint32
	cursor    uint32
	highWater uint32
	pingPong  bool
}

// NewWindowPool creates a window pool of capacity elements.
func NewWindowPool(name string, capacity uint32, pingPong bool) *WindowPool {
	return &WindowPool{
		name:     name,
		capacity: capacity,
		pingPong: pingPong,
	}
}

// Name returns the name of the pool.
func (p *WindowPool) Name() string {
	return p.name
}

// Capacity returns the number of elements in the window.
func (p *WindowPool) Capacity() uint32 {
	return p.capacity
}

// Cursor returns the offset where the next table will be searched from.
func (p *WindowPool) Cursor() uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.cursor
}

// HighWater returns the largest cursor ever reached.
func (p *WindowPool) HighWater() uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.highWater
}

// Reset frees the whole window.
func (p *WindowPool) Reset() {
	p.lock.Lock()
	p.cursor = 0
	p.lock.Unlock()

	p.invoke(HookPosReset, Allocation{Pool: p.name})
}

// AllocWindow reserves count elements and returns the offset of the first
// one.
func (p *WindowPool) AllocWindow(count uint32) (uint32, error) {
	if count == 0 {
		return 0, fmt.Errorf("%s: invalid element count 0", p.name)
	}

	p.lock.Lock()

	start := p.cursor
	if p.pingPong && start%2 != 0 {
		start++
	}

	end := uint64(start) + uint64(count)
	if end > uint64(p.capacity) {
		free := p.capacity - p.cursor
		p.lock.Unlock()

		p.invoke(HookPosExhausted, Allocation{Pool: p.name, Size: uint64(count)})

		return 0, exhausted(p.name, uint64(count), uint64(free), "elements")
	}

	p.cursor = uint32(end)
	if p.cursor > p.highWater {
		p.highWater = p.cursor
	}
	p.lock.Unlock()

	p.invoke(HookPosAlloc, Allocation{
		Pool:   p.name,
		Offset: uint64(start),
		Size:   uint64(count),
	})

	return start, nil
}

// Usage returns a snapshot of the pool usage.
func (p *WindowPool) Usage() Usage {
	p.lock.Lock()
	defer p.lock.Unlock()

	return Usage{
		Name:      p.name,
		Kind:      "window",
		Used:      uint64(p.cursor),
		Capacity:  uint64(p.capacity),
		HighWater: uint64(p.highWater),
	}
}

func (p *WindowPool) invoke(pos *hooking.HookPos, item Allocation) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(hooking.HookCtx{Domain: p, Pos: pos, Item: item})
}
