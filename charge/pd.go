// Package charge implements the PD Actuator Loop (C2) and the Charge
// State Machine (C3).
package charge

import "github.com/opentrickler/trickler-core/model"

// PDState is the per-motor bookkeeping the PD formula carries between
// iterations: previous error, previous tick, and accumulated integral.
type PDState struct {
	PrevError float64
	PrevTick  int64
	Integral  float64
}

// Reset zeroes the integral at the start of each DISPENSE call.
func (s *PDState) Reset(nowTick int64, target, measured float64) {
	s.PrevError = target - measured
	s.PrevTick = nowTick
	s.Integral = 0
}

// Command is one PD loop iteration's output.
type Command struct {
	SpeedRPS float64
	NewState PDState
}

// ComputePD implements one PD iteration:
//
//	e = target - measured
//	dt_ms = now - prevTick (derivative term 0 if dt_ms <= 0)
//	speed_raw = Kp*e + Ki*integral + Kd*(e-prevError)/dt_ms
//	speed = clamp(speed_raw, bounds)
//
// Integral is accumulated by e every call even though Ki is 0 in
// practice.
func ComputePD(target, measured float64, nowTick int64, gains model.Gains, ki float64, bounds model.SpeedBounds, st PDState) Command {
	e := target - measured
	dtMS := nowTick - st.PrevTick

	integral := st.Integral + e

	var derivative float64
	if dtMS > 0 {
		derivative = gains.Kd * (e - st.PrevError) / float64(dtMS)
	}

	speedRaw := gains.Kp*e + ki*integral + derivative
	speed := bounds.Clamp(speedRaw)

	return Command{
		SpeedRPS: speed,
		NewState: PDState{PrevError: e, PrevTick: nowTick, Integral: integral},
	}
}

// Decision is what the state machine should do after an iteration.
type Decision int

const (
	DecisionProceed Decision = iota
	DecisionSwitchPhase
	DecisionFinish
)

// StopReached uses a strict comparison against the threshold, so
// stopping occurs as soon as the measured weight is within (or over)
// the threshold of target.
func StopReached(target, measured, threshold float64) bool {
	e := target - measured
	return e < threshold
}
