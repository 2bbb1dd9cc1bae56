package frametask

import (
	"context"
	"log"

	"github.com/sarchlab/radarctl/datarecording"
	"github.com/sarchlab/radarctl/pipeline"
)

// Sink is the output collaborator. It formats and transports one result.
// The result's buffers are only valid until Emit returns.
type Sink interface {
	Emit(ctx context.Context, result *pipeline.Result) error
}

// LogSink prints a one-line summary of every frame.
type LogSink struct {
	Logger *log.Logger
}

// Emit prints the result.
func (s LogSink) Emit(_ context.Context, r *pipeline.Result) error {
	n := 0
	if r.Output != nil {
		n = len(r.Output.Data)
	}

	s.Logger.Printf("frame %d mode=%s bytes=%d took=%v",
		r.Frame, r.Mode, n, r.Duration)

	return nil
}

// The tables written by a RecorderSink.
const (
	FrameTable       = "frame_records"
	StageTimingTable = "stage_timing"
)

// FrameRecord is one row of the frame table.
type FrameRecord struct {
	Frame       uint64
	Mode        string
	StartNs     int64
	DurationUs  float64
	OutputStage string
	OutputBytes int
}

// StageTimingRecord is one row of the stage timing table.
type StageTimingRecord struct {
	Frame      uint64
	Stage      string
	StartNs    int64
	DurationUs float64
}

// RecorderSink writes every result into a data recorder.
type RecorderSink struct {
	recorder datarecording.DataRecorder
}

// NewRecorderSink creates the tables it writes to.
func NewRecorderSink(recorder datarecording.DataRecorder) *RecorderSink {
	recorder.CreateTable(FrameTable, FrameRecord{})
	recorder.CreateTable(StageTimingTable, StageTimingRecord{})

	return &RecorderSink{recorder: recorder}
}

// Emit records the frame and the timing of each of its stages.
func (s *RecorderSink) Emit(_ context.Context, r *pipeline.Result) error {
	entry := FrameRecord{
		Frame:      r.Frame,
		Mode:       r.Mode,
		StartNs:    r.Start.UnixNano(),
		DurationUs: float64(r.Duration.Nanoseconds()) / 1e3,
	}

	if r.Output != nil {
		entry.OutputStage = r.Output.Stage
		entry.OutputBytes = len(r.Output.Data)
	}

	s.recorder.InsertData(FrameTable, entry)

	for _, t := range r.Timing {
		s.recorder.InsertData(StageTimingTable, StageTimingRecord{
			Frame:      r.Frame,
			Stage:      t.Stage,
			StartNs:    t.Start.UnixNano(),
			DurationUs: float64(t.Duration.Nanoseconds()) / 1e3,
		})
	}

	return nil
}

// Flush writes the buffered records.
func (s *RecorderSink) Flush() {
	s.recorder.Flush()
}

// MultiSink emits to every sink in order and returns the first error.
type MultiSink []Sink

// Emit calls every sink.
func (m MultiSink) Emit(ctx context.Context, r *pipeline.Result) error {
	var first error

	for _, s := range m {
		err := s.Emit(ctx, r)
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}
