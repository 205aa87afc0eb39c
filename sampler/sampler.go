package sampler

import (
	"time"

	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/model"
)

// Sampler wraps a hal.Scale, producing monotonically time-ordered
// readings. It fails soft on timeout so callers (the Control task) can
// interleave input polling rather than blocking forever.
type Sampler struct {
	scale hal.Scale
}

func New(scale hal.Scale) *Sampler {
	return &Sampler{scale: scale}
}

// Poll waits up to timeoutMS for a new reading. It returns ok=false on
// timeout rather than an error, matching the Scale capability contract.
// TimestampTick is a millisecond wall-clock tick, the same unit the PD
// loop's dt math expects.
func (s *Sampler) Poll(timeoutMS int) (model.ScaleReading, bool) {
	mass, ok := s.scale.BlockWaitForNextMeasurement(timeoutMS)
	if !ok {
		return model.ScaleReading{}, false
	}
	return model.ScaleReading{TimestampTick: NowMS(), Mass: mass}, true
}

// ForceZero requests the scale tare asynchronously.
func (s *Sampler) ForceZero() { s.scale.ForceZero() }

// NowMS is the tick source the PD loop and Charge State Machine use for
// dt/elapsed-time math, kept separate from Poll's logical sample ticks.
func NowMS() int64 { return time.Now().UnixMilli() }
