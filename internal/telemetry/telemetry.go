// Package telemetry exports panel state transitions and sensor samples.
package telemetry

// Measurements written by the recorders.
const (
	MeasurementTransition = "panel_transition"
	MeasurementPosition   = "panel_position"
)

// Recorder receives panel telemetry. Implementations must not block the caller.
type Recorder interface {
	RecordTransition(kind string, fields map[string]any)
	RecordPosition(latitude, longitude float64)
	Close()
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordTransition(string, map[string]any) {}
func (Nop) RecordPosition(float64, float64)         {}
func (Nop) Close()                                  {}
