package stage

import (
	"sync"
	"time"
)

// Output is what a stage produces for one frame. Data is a view of one of
// the stage's ping/pong buffers; the stage will not write that buffer again
// until Release is called.
type Output struct {
	Stage   string
	Frame   uint64
	Data    []byte
	Metrics Metrics

	slot *slot
	once sync.Once
}

// Release hands the buffer back to the stage that wrote it. Calling Release
// more than once has no further effect.
func (o *Output) Release() {
	if o == nil || o.slot == nil {
		return
	}

	o.once.Do(o.slot.release)
}

// slot is one half of a ping/pong buffer pair. The free channel holds one
// token while nobody owns the slot.
type slot struct {
	data []byte
	free chan struct{}
}

func newSlot(data []byte) *slot {
	s := &slot{
		data: data,
		free: make(chan struct{}, 1),
	}
	s.free <- struct{}{}

	return s
}

func (s *slot) release() {
	select {
	case s.free <- struct{}{}:
	default:
		panic("ping/pong slot released twice")
	}
}

// pingPong alternates between two slots. The writer takes the next slot in
// order and stalls until its previous content has been drained.
type pingPong struct {
	slots [2]*slot
	next  int
}

func newPingPong(ping, pong []byte) *pingPong {
	return &pingPong{
		slots: [2]*slot{newSlot(ping), newSlot(pong)},
	}
}

// tryAcquire takes the next slot if it is free.
func (p *pingPong) tryAcquire() (*slot, bool) {
	s := p.slots[p.next]

	select {
	case <-s.free:
		p.next = 1 - p.next
		return s, true
	default:
		return nil, false
	}
}

// acquire takes the next slot, waiting up to timeout for it to be drained.
func (p *pingPong) acquire(timeout time.Duration) (*slot, bool) {
	s := p.slots[p.next]

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.free:
		p.next = 1 - p.next
		return s, true
	case <-timer.C:
		return nil, false
	}
}

// drain waits up to timeout until nobody owns either slot. The slots stay
// free afterwards.
func (p *pingPong) drain(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, s := range p.slots {
		select {
		case <-s.free:
			s.free <- struct{}{}
		case <-timer.C:
			return false
		}
	}

	return true
}
