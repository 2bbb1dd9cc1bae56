package tracing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TotalTimeTracer can collect the total time of executing a certain type of
// task, grouped by the task's What field. If the execution of two tasks
// overlaps, this tracer will simply add the two task processing time
// together.
type TotalTimeTracer struct {
	clock         clock.Clock
	filter        TaskFilter
	lock          sync.Mutex
	totalTime     map[string]time.Duration
	count         map[string]uint64
	inflightTasks map[string]Task
}

// NewTotalTimeTracer creates a new TotalTimeTracer.
func NewTotalTimeTracer(
	clk clock.Clock,
	filter TaskFilter,
) *TotalTimeTracer {
	return &TotalTimeTracer{
		clock:         clk,
		filter:        filter,
		totalTime:     make(map[string]time.Duration),
		count:         make(map[string]uint64),
		inflightTasks: make(map[string]Task),
	}
}

// TotalTime returns the total time spent on the tasks of one What.
func (t *TotalTimeTracer) TotalTime(what string) time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime[what]
}

// AverageTime returns the average time spent on the tasks of one What.
func (t *TotalTimeTracer) AverageTime(what string) time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.count[what] == 0 {
		return 0
	}

	return t.totalTime[what] / time.Duration(t.count[what])
}

// StartTask records the task start time.
func (t *TotalTimeTracer) StartTask(task Task) {
	task.StartTime = t.clock.Now()

	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing.
func (t *TotalTimeTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask records the end of the task.
func (t *TotalTimeTracer) EndTask(task Task) {
	now := t.clock.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	t.totalTime[original.What] += now.Sub(original.StartTime)
	t.count[original.What]++
	delete(t.inflightTasks, task.ID)
}
