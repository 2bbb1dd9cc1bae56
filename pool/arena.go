package pool

import (
	"fmt"
	"sync"

	"github.com/sarchlab/radarctl/hooking"
)

// Addr is an address in a device memory map.
type Addr uint64

// ArenaBuilder builds ArenaPools.
type ArenaBuilder struct {
	base Addr
	size uint64
}

// MakeArenaBuilder creates an ArenaBuilder with default parameters.
func MakeArenaBuilder() ArenaBuilder {
	return ArenaBuilder{}
}

// WithBase sets the device address of the first byte of the arena.
func (b ArenaBuilder) WithBase(base Addr) ArenaBuilder {
	b.base = base
	return b
}

// WithSize sets the size of the arena in bytes. A backing buffer of this size
// is allocated at build time.
func (b ArenaBuilder) WithSize(size uint64) ArenaBuilder {
	b.size = size
	return b
}

// Build creates the arena.
func (b ArenaBuilder) Build(name string) *ArenaPool {
	return &ArenaPool{
		name:      name,
		base:      b.base,
		size:      b.size,
		cursor:    b.base,
		highWater: b.base,
		mem:       make([]byte, b.size),
	}
}

// An ArenaPool is a bump allocator over a fixed backing buffer.
//
// Invariants: base <= cursor <= base+size, and highWater >= cursor.
type ArenaPool struct {
	hooking.HookableBase

	lock      sync.Mutex
	name      string
	base      Addr
	size      uint64
	cursor    Addr
	highWater Addr
	mem       []byte
}

// Name returns the name of the arena.
func (a *ArenaPool) Name() string {
	return a.name
}

// Base returns the address of the first byte of the arena.
func (a *ArenaPool) Base() Addr {
	return a.base
}

// Size returns the total number of bytes managed by the arena.
func (a *ArenaPool) Size() uint64 {
	return a.size
}

// Cursor returns the address where the next allocation starts searching.
func (a *ArenaPool) Cursor() Addr {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.cursor
}

// Used returns the number of bytes between the base and the cursor.
func (a *ArenaPool) Used() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()

	return uint64(a.cursor - a.base)
}

// MaxUsage returns the largest number of bytes ever in use. It survives
// resets.
func (a *ArenaPool) MaxUsage() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()

	return uint64(a.highWater - a.base)
}

// Reset moves the cursor back to the base of the arena.
func (a *ArenaPool) Reset() {
	a.lock.Lock()
	a.cursor = a.base
	a.lock.Unlock()

	a.invoke(HookPosReset, Allocation{Pool: a.name})
}

// ResetTo rewinds the cursor to an address saved earlier with Cursor. It
// undoes every allocation made after the address was saved.
func (a *ArenaPool) ResetTo(addr Addr) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if addr < a.base || addr > a.cursor {
		return fmt.Errorf("%s: cannot rewind to 0x%x, valid range [0x%x, 0x%x]",
			a.name, uint64(addr), uint64(a.base), uint64(a.cursor))
	}

	a.cursor = addr

	return nil
}

// Alloc reserves size bytes aligned to align and returns the address of the
// first byte. An align of 0 means no alignment. If the aligned block does not
// fit, the arena is not changed and the error wraps ErrExhausted.
func (a *ArenaPool) Alloc(size, align uint64) (Addr, error) {
	if align == 0 {
		align = 1
	}

	if align&(align-1) != 0 {
		return 0, fmt.Errorf("%s: alignment %d is not a power of two",
			a.name, align)
	}

	a.lock.Lock()

	limit := uint64(a.base) + a.size
	aligned := (uint64(a.cursor) + align - 1) &^ (align - 1)
	end := aligned + size

	if aligned < uint64(a.cursor) || end < aligned || end > limit {
		free := limit - uint64(a.cursor)
		a.lock.Unlock()

		a.invoke(HookPosExhausted, Allocation{Pool: a.name, Size: size})

		return 0, exhausted(a.name, size, free, "bytes")
	}

	a.cursor = Addr(end)
	if a.cursor > a.highWater {
		a.highWater = a.cursor
	}
	a.lock.Unlock()

	a.invoke(HookPosAlloc, Allocation{
		Pool:   a.name,
		Offset: aligned - uint64(a.base),
		Size:   size,
	})

	return Addr(aligned), nil
}

// Bytes returns a view of the backing memory for a block returned by Alloc.
func (a *ArenaPool) Bytes(addr Addr, size uint64) []byte {
	if addr < a.base || uint64(addr-a.base) > a.size ||
		size > a.size-uint64(addr-a.base) {
		panic(fmt.Sprintf("%s: block 0x%x+%d is outside the arena",
			a.name, uint64(addr), size))
	}

	off := uint64(addr - a.base)

	return a.mem[off : off+size : off+size]
}

// Usage returns a snapshot of the arena usage.
func (a *ArenaPool) Usage() Usage {
	a.lock.Lock()
	defer a.lock.Unlock()

	return Usage{
		Name:      a.name,
		Kind:      "arena",
		Used:      uint64(a.cursor - a.base),
		Capacity:  a.size,
		HighWater: uint64(a.highWater - a.base),
	}
}

func (a *ArenaPool) invoke(pos *hooking.HookPos, item Allocation) {
	if a.NumHooks() == 0 {
		return
	}

	a.InvokeHook(hooking.HookCtx{
		Domain: a,
		Pos:    pos,
		Item:   item,
	})
}
