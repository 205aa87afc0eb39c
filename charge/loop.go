package charge

import (
	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/model"
)

// subPhase is the PD loop's internal coarse/fine split, distinct from the
// Charge State Machine's higher-level Phase enum.
type subPhase int

const (
	subPhaseCoarse subPhase = iota
	subPhaseFine
)

// Gains bundles the four PD gains a drop uses, matching model.AppliedGains
// but kept as model.Gains pairs for ComputePD's signature.
type Gains struct {
	Coarse model.Gains
	Fine   model.Gains
}

// Loop drives exactly one motor at a time to land measured on target,
// running the COARSE_ONLY / FINE_ONLY / NORMAL mode selection.
// Construct a fresh Loop per DISPENSE call; PDState.Reset happens
// internally so the integral never survives across drops.
type Loop struct {
	mode  model.MotorMode
	sub   subPhase
	motor hal.Motor

	coarse PDState
	fine   PDState

	coarseStop float64
	fineStop   float64

	coarseBounds model.SpeedBounds
	fineBounds   model.SpeedBounds
	coarseGains  model.Gains
	fineGains    model.Gains
	fineKi       float64
	coarseKi     float64

	startTick       int64
	coarseStartTick int64
	fineStartTick   int64
	switchTick      int64
	haveSwitched    bool
}

// NewLoop starts a DISPENSE run. target/measured0/startTick seed the
// initial PDState.Reset for whichever motor runs first.
func NewLoop(mode model.MotorMode, motor hal.Motor, gains Gains, coarseKi, fineKi float64, coarseBounds, fineBounds model.SpeedBounds, coarseStop, fineStop float64, startTick int64, target, measured0 float64) *Loop {
	l := &Loop{
		mode: mode, motor: motor,
		coarseGains: gains.Coarse, fineGains: gains.Fine,
		coarseKi: coarseKi, fineKi: fineKi,
		coarseBounds: coarseBounds, fineBounds: fineBounds,
		coarseStop: coarseStop, fineStop: fineStop,
		startTick: startTick, coarseStartTick: startTick,
	}
	l.coarse.Reset(startTick, target, measured0)
	l.fine.Reset(startTick, target, measured0)

	if mode == model.MotorModeFineOnly {
		l.sub = subPhaseCoarse // pre-fill sub-phase, uses coarse motor+gains
	}
	return l
}

// Step runs one PD iteration and returns whether the drop is finished.
func (l *Loop) Step(target, measured float64, nowTick int64) (finished bool) {
	switch l.mode {
	case model.MotorModeCoarseOnly:
		return l.stepCoarseOnly(target, measured, nowTick)
	case model.MotorModeFineOnly:
		return l.stepFineOnly(target, measured, nowTick)
	default:
		return l.stepNormal(target, measured, nowTick)
	}
}

func (l *Loop) stepCoarseOnly(target, measured float64, nowTick int64) bool {
	if StopReached(target, measured, l.coarseStop) {
		l.motor.SetSpeed(hal.MotorCoarse, 0)
		l.motor.SetSpeed(hal.MotorFine, 0)
		return true
	}
	cmd := ComputePD(target, measured, nowTick, l.coarseGains, l.coarseKi, l.coarseBounds, l.coarse)
	l.coarse = cmd.NewState
	l.motor.SetSpeed(hal.MotorCoarse, cmd.SpeedRPS)
	l.motor.SetSpeed(hal.MotorFine, 0)
	return false
}

func (l *Loop) stepFineOnly(target, measured float64, nowTick int64) bool {
	if l.sub == subPhaseCoarse {
		if StopReached(target, measured, l.coarseStop) {
			l.motor.SetSpeed(hal.MotorCoarse, 0)
			l.sub = subPhaseFine
			l.fineStartTick = nowTick
			l.fine.Reset(nowTick, target, measured)
			// fall through to fine step below using the now-current sample
		} else {
			cmd := ComputePD(target, measured, nowTick, l.coarseGains, l.coarseKi, l.coarseBounds, l.coarse)
			l.coarse = cmd.NewState
			l.motor.SetSpeed(hal.MotorCoarse, cmd.SpeedRPS)
			l.motor.SetSpeed(hal.MotorFine, 0)
			return false
		}
	}

	if StopReached(target, measured, l.fineStop) {
		l.motor.SetSpeed(hal.MotorFine, 0)
		l.motor.SetSpeed(hal.MotorCoarse, 0)
		return true
	}
	cmd := ComputePD(target, measured, nowTick, l.fineGains, l.fineKi, l.fineBounds, l.fine)
	l.fine = cmd.NewState
	l.motor.SetSpeed(hal.MotorFine, cmd.SpeedRPS)
	l.motor.SetSpeed(hal.MotorCoarse, 0)
	return false
}

func (l *Loop) stepNormal(target, measured float64, nowTick int64) bool {
	if l.sub == subPhaseCoarse {
		if StopReached(target, measured, l.coarseStop) {
			l.sub = subPhaseFine
			l.switchTick = nowTick
			l.haveSwitched = true
			l.fineStartTick = nowTick
			l.fine.Reset(nowTick, target, measured)
			// continue straight into the fine step using this sample
		} else {
			cmd := ComputePD(target, measured, nowTick, l.coarseGains, l.coarseKi, l.coarseBounds, l.coarse)
			l.coarse = cmd.NewState
			l.motor.SetSpeed(hal.MotorCoarse, cmd.SpeedRPS)
			l.motor.SetSpeed(hal.MotorFine, 0)
			return false
		}
	}

	if StopReached(target, measured, l.fineStop) {
		l.motor.SetSpeed(hal.MotorFine, 0)
		l.motor.SetSpeed(hal.MotorCoarse, 0)
		return true
	}
	cmd := ComputePD(target, measured, nowTick, l.fineGains, l.fineKi, l.fineBounds, l.fine)
	l.fine = cmd.NewState
	l.motor.SetSpeed(hal.MotorFine, cmd.SpeedRPS)
	l.motor.SetSpeed(hal.MotorCoarse, 0)
	return false
}

// Times apportions elapsed time between coarse and fine sub-phases for
// telemetry, from the tracked sub-phase ticks.
func (l *Loop) Times(endTick int64) (coarseMS, fineMS int64) {
	switch l.mode {
	case model.MotorModeCoarseOnly:
		return endTick - l.coarseStartTick, 0
	case model.MotorModeFineOnly:
		return l.fineStartTick - l.coarseStartTick, endTick - l.fineStartTick
	default:
		if !l.haveSwitched {
			return endTick - l.coarseStartTick, 0
		}
		return l.switchTick - l.coarseStartTick, endTick - l.switchTick
	}
}
