package pool

import (
	"fmt"
	"sort"

	"github.com/sarchlab/radarctl/hooking"
)

// ArenaKind names one of the scratch memories.
type ArenaKind int

// The scratch memories of the platform.
const (
	FastScratch ArenaKind = iota
	LargeScratch
)

func (k ArenaKind) String() string {
	switch k {
	case FastScratch:
		return "fast-scratch"
	case LargeScratch:
		return "large-scratch"
	default:
		return fmt.Sprintf("arena-%d", int(k))
	}
}

// ChannelClass names a class of identical hardware channels.
type ChannelClass int

// The channel classes of the platform.
const (
	DMAChannel ChannelClass = iota
	ParamSet
	TriggerSource
)

func (c ChannelClass) String() string {
	switch c {
	case DMAChannel:
		return "dma-channel"
	case ParamSet:
		return "param-set"
	case TriggerSource:
		return "trigger-source"
	default:
		return fmt.Sprintf("channel-%d", int(c))
	}
}

// A Set owns every pool that a configuration pass allocates from. All the
// pools in a set are reset together.
type Set struct {
	arenas  map[ArenaKind]*ArenaPool
	indexes map[ChannelClass]*IndexPool
	window  *WindowPool
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		arenas:  make(map[ArenaKind]*ArenaPool),
		indexes: make(map[ChannelClass]*IndexPool),
	}
}

// AddArena registers the arena that serves a scratch memory kind.
func (s *Set) AddArena(kind ArenaKind, a *ArenaPool) *Set {
	s.arenas[kind] = a
	return s
}

// AddIndexPool registers the pool that serves a channel class.
func (s *Set) AddIndexPool(class ChannelClass, p *IndexPool) *Set {
	s.indexes[class] = p
	return s
}

// SetWindowPool registers the coefficient window pool.
func (s *Set) SetWindowPool(p *WindowPool) *Set {
	s.window = p
	return s
}

// Arena returns the arena of a kind, or nil if the platform has none.
func (s *Set) Arena(kind ArenaKind) *ArenaPool {
	return s.arenas[kind]
}

// IndexPool returns the pool of a channel class, or nil if the platform has
// none.
func (s *Set) IndexPool(class ChannelClass) *IndexPool {
	return s.indexes[class]
}

// WindowPool returns the coefficient window pool, or nil.
func (s *Set) WindowPool() *WindowPool {
	return s.window
}

// ResetAll resets every pool in the set.
func (s *Set) ResetAll() {
	for _, a := range s.arenas {
		a.Reset()
	}

	for _, p := range s.indexes {
		p.Reset()
	}

	if s.window != nil {
		s.window.Reset()
	}
}

// AllocScratch allocates from the arena of the given kind. A missing arena is
// treated as an arena of size zero.
func (s *Set) AllocScratch(kind ArenaKind, size, align uint64) (Addr, error) {
	a := s.arenas[kind]
	if a == nil {
		return 0, exhausted(kind.String(), size, 0, "bytes")
	}

	return a.Alloc(size, align)
}

// AllocChannels allocates n consecutive channels of a class.
func (s *Set) AllocChannels(class ChannelClass, n int) (int, error) {
	p := s.indexes[class]
	if p == nil {
		return 0, exhausted(class.String(), uint64(n), 0, "channels")
	}

	return p.AllocRange(n)
}

// AllocWindow places a coefficient table of count elements.
func (s *Set) AllocWindow(count uint32) (uint32, error) {
	if s.window == nil {
		return 0, exhausted("window", uint64(count), 0, "elements")
	}

	return s.window.AllocWindow(count)
}

// Usage returns the usage of every pool, sorted by name.
func (s *Set) Usage() []Usage {
	usages := make([]Usage, 0, len(s.arenas)+len(s.indexes)+1)

	for _, a := range s.arenas {
		usages = append(usages, a.Usage())
	}

	for _, p := range s.indexes {
		usages = append(usages, p.Usage())
	}

	if s.window != nil {
		usages = append(usages, s.window.Usage())
	}

	sort.Slice(usages, func(i, j int) bool {
		return usages[i].Name < usages[j].Name
	})

	return usages
}

// HighWaters returns the high-water mark of every pool keyed by pool name.
func (s *Set) HighWaters() map[string]uint64 {
	marks := make(map[string]uint64)
	for _, u := range s.Usage() {
		marks[u.Name] = u.HighWater
	}

	return marks
}

// AcceptHook registers a hook on every pool in the set.
func (s *Set) AcceptHook(hook hooking.Hook) {
	for _, a := range s.arenas {
		a.AcceptHook(hook)
	}

	for _, p := range s.indexes {
		p.AcceptHook(hook)
	}

	if s.window != nil {
		s.window.AcceptHook(hook)
	}
}
