// Package pool provides the allocators that hand out scarce hardware
// resources while a processing mode is being configured.
//
// All pools are bump allocators. Nothing is ever freed individually; a pool
// is reclaimed as a whole by Reset at the start of every configuration pass.
// Allocation failures leave the pool untouched.
package pool

import (
	"fmt"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hooking"
)

// ErrExhausted is returned when a request does not fit in the remaining
// capacity of a pool.
var ErrExhausted = fmt.Errorf("pool: %w", fault.ErrResourceExhausted)

// HookPosAlloc marks a successful allocation.
var HookPosAlloc = &hooking.HookPos{Name: "Pool Alloc"}

// HookPosExhausted marks an allocation that failed for lack of capacity.
var HookPosExhausted = &hooking.HookPos{Name: "Pool Exhausted"}

// HookPosReset marks a pool reset.
var HookPosReset = &hooking.HookPos{Name: "Pool Reset"}

// Allocation describes one granted or refused request. It is the item carried
// by the pool hooks.
type Allocation struct {
	Pool   string
	Offset uint64
	Size   uint64
}

// Usage is a snapshot of how much of a pool is in use.
type Usage struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Used      uint64 `json:"used"`
	Capacity  uint64 `json:"capacity"`
	HighWater uint64 `json:"high_water"`
}

func exhausted(name string, want, free uint64, unit string) error {
	return fmt.Errorf("%s: requested %d %s, %d free: %w",
		name, want, unit, free, ErrExhausted)
}
