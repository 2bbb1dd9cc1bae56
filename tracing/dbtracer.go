package tracing

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/sarchlab/radarctl/datarecording"
)

const taskTable = "trace"

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

// DBTracer is a tracer that stores finished tasks into a data recorder.
// Times are stored as seconds since the tracer was created.
type DBTracer struct {
	mu           sync.Mutex
	clock        clock.Clock
	origin       int64
	backend      datarecording.DataRecorder
	tracingTasks map[string]Task
}

// NewDBTracer creates a DBTracer that writes into backend.
func NewDBTracer(
	clk clock.Clock,
	backend datarecording.DataRecorder,
) *DBTracer {
	backend.CreateTable(taskTable, taskTableEntry{})

	return &DBTracer{
		clock:        clk,
		origin:       clk.Now().UnixNano(),
		backend:      backend,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	task.StartTime = t.clock.Now()

	t.mu.Lock()
	t.tracingTasks[task.ID] = task
	t.mu.Unlock()
}

// StepTask records a milestone on a started task.
func (t *DBTracer) StepTask(task Task) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	for _, step := range task.Steps {
		step.Time = now
		original.Steps = append(original.Steps, step)
	}

	t.tracingTasks[task.ID] = original
}

// EndTask marks the end of a task and writes it to the backend.
func (t *DBTracer) EndTask(task Task) {
	now := t.clock.Now()

	t.mu.Lock()
	original, ok := t.tracingTasks[task.ID]
	if !ok {
		t.mu.Unlock()
		return
	}

	delete(t.tracingTasks, task.ID)
	t.mu.Unlock()

	original.EndTime = now

	t.backend.InsertData(taskTable, taskTableEntry{
		ID:        original.ID,
		ParentID:  original.ParentID,
		Kind:      original.Kind,
		What:      original.What,
		Location:  original.Where,
		StartTime: t.seconds(original.StartTime.UnixNano()),
		EndTime:   t.seconds(original.EndTime.UnixNano()),
	})
}

func (t *DBTracer) seconds(ns int64) float64 {
	return float64(ns-t.origin) / 1e9
}
