package protocol

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/radarctl/pipeline"
	"github.com/sarchlab/radarctl/stage"
)

// SlotResult is a frame result copied into the shared result window.
type SlotResult struct {
	Frame   uint64                   `json:"frame"`
	Mode    string                   `json:"mode"`
	Stage   string                   `json:"stage"`
	Data    []byte                   `json:"-"`
	Start   time.Time                `json:"start"`
	Timing  []pipeline.StageTiming   `json:"timing"`
	Metrics map[string]stage.Metrics `json:"metrics"`
}

// Shared is the memory both cores can see: the configuration blob written
// by the control core, the sliding window of results written by the compute
// core, and the count of configuration requests in flight.
type Shared struct {
	mu       sync.Mutex
	config   []byte
	slots    []*SlotResult
	next     int
	inFlight atomic.Int64
}

// NewShared creates shared memory with a result window of the given length.
func NewShared(window int) *Shared {
	if window <= 0 {
		panic("result window must not be empty")
	}

	return &Shared{slots: make([]*SlotResult, window)}
}

// PutConfig stores a copy of the configuration blob.
func (s *Shared) PutConfig(blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = append(s.config[:0], blob...)
}

// Config returns a copy of the configuration blob.
func (s *Shared) Config() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]byte(nil), s.config...)
}

// Window returns the length of the result window.
func (s *Shared) Window() int {
	return len(s.slots)
}

// Store copies a result into the next window slot, hands the result's
// buffers back, and returns the slot token. The window counter advances
// modulo the window length.
func (s *Shared) Store(r *pipeline.Result) uint32 {
	slot := &SlotResult{
		Frame:   r.Frame,
		Mode:    r.Mode,
		Start:   r.Start,
		Timing:  r.Timing,
		Metrics: r.Metrics,
	}

	if r.Output != nil {
		slot.Stage = r.Output.Stage
		slot.Data = append([]byte(nil), r.Output.Data...)
	}

	r.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.next
	s.slots[token] = slot
	s.next = (s.next + 1) % len(s.slots)

	return uint32(token)
}

// Load returns the result in a window slot.
func (s *Shared) Load(token uint32) (*SlotResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(token) >= len(s.slots) || s.slots[token] == nil {
		return nil, fmt.Errorf("no result in slot %d", token)
	}

	return s.slots[token], nil
}

// Cursor returns the slot the next result goes to.
func (s *Shared) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.next
}

// InFlight returns the number of configuration requests not yet applied.
func (s *Shared) InFlight() int64 {
	return s.inFlight.Load()
}
