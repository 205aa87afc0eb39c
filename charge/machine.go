package charge

import (
	"time"

	"github.com/opentrickler/trickler-core/core"
	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/model"
	"github.com/opentrickler/trickler-core/sampler"
)

// TunerHook is the slice of the Auto-Tuner (C4) the Charge State Machine
// needs, kept as a small interface here so charge does not import tuner.
type TunerHook interface {
	Active() bool
	NextGains() (model.AppliedGains, model.MotorMode)
	Record(model.Telemetry)
}

// HistorySink receives a LearningEntry for every drop that is not
// currently being tuned; entries land in a bounded ring that the Render
// task persists to configuration storage.
type HistorySink interface {
	Record(model.LearningEntry)
}

// Machine is the Charge State Machine (C3): wait-for-zero -> dispense ->
// wait-for-removal -> wait-for-return -> zero, looping until a user abort
// sends it to EXIT.
type Machine struct {
	Sampler *sampler.Sampler
	Motor   hal.Motor
	Gate    hal.Gate
	LED     hal.LED
	Input   hal.Input

	Tuner   TunerHook
	History HistorySink

	// ErrorLog records rejected requests (typed per core.Kind) for the
	// REST layer to read back. Nil is valid -- Run simply does not
	// record when no log is wired.
	ErrorLog *core.Log

	Profile      model.Profile
	ProfileIndex int
	Config       model.ChargeConfig

	dropIndex int
	window    *sampler.Window
}

func New(s *sampler.Sampler, motor hal.Motor, gate hal.Gate, led hal.LED, input hal.Input, tuner TunerHook, history HistorySink, errorLog *core.Log) *Machine {
	return &Machine{
		Sampler: s, Motor: motor, Gate: gate, LED: led, Input: input,
		Tuner: tuner, History: history, ErrorLog: errorLog,
		window: sampler.NewWindow(10),
	}
}

// pollTimeoutMS is the scale poll timeout: on timeout the sample is
// skipped and the input queue is re-polled.
const pollTimeoutMS = 200

// Run executes phases until EXIT, honoring a user abort at any point.
// targetMass is the charge target for this drop. A non-positive target
// is rejected outright -- a typed input-validation error, not a drop:
// state is never touched and no phase runs.
func (m *Machine) Run(targetMass float64) model.Phase {
	if targetMass <= 0 {
		if m.ErrorLog != nil {
			m.ErrorLog.Record(core.KindInputValidation, "target mass must be > 0", sampler.NowMS())
		}
		return model.PhaseExit
	}

	phase := model.PhaseWaitForZero

	for phase != model.PhaseExit {
		if m.abortRequested() {
			phase = model.PhaseExit
			continue
		}

		switch phase {
		case model.PhaseWaitForZero:
			phase = m.waitForZero()
		case model.PhaseDispense:
			phase = m.dispense(targetMass)
		case model.PhaseWaitForCupRemoval:
			phase = m.waitForCupRemoval(targetMass)
		case model.PhaseWaitForCupReturn:
			phase = m.waitForCupReturn()
		}
	}

	m.exit()
	return model.PhaseExit
}

func (m *Machine) abortRequested() bool {
	e, ok := m.Input.Poll(0)
	if !ok {
		return false
	}
	return e == hal.InputResetPress
}

// waitForZero repeatedly polls the scale, feeding a capacity-10 rolling
// window, until the stability predicate holds. A tare request mid-wait is
// honored immediately.
func (m *Machine) waitForZero() model.Phase {
	m.LED.SetColour(1, hal.ColourIdle, hal.ColourIdle, true)
	m.window.Reset()

	for {
		if e, ok := m.Input.Poll(10 * time.Millisecond); ok {
			switch e {
			case hal.InputResetPress:
				return model.PhaseExit
			case hal.InputEncoderPress:
				m.Sampler.ForceZero()
			}
		}

		reading, ok := m.Sampler.Poll(pollTimeoutMS)
		if !ok {
			continue
		}
		if !reading.Present() {
			continue
		}
		m.window.Enqueue(reading.Mass)

		if sampler.Stable(m.window, sampler.WaitForZeroRequiredCount, m.Config.SDMargin, m.Config.MeanMargin) {
			return model.PhaseDispense
		}
	}
}

// dispense arms both motors via Loop, runs it to completion, applies the
// optional pre-charge nudge, and emits telemetry.
func (m *Machine) dispense(target float64) model.Phase {
	if m.Gate != nil {
		if err := m.Gate.SetState(hal.GateOpen, true); err != nil {
			if m.ErrorLog != nil {
				m.ErrorLog.Record(core.KindMotorCommandFailure, "gate open failed: "+err.Error(), sampler.NowMS())
			}
			return model.PhaseExit
		}
	}

	gains, mode := m.activeGains()

	startTick := sampler.NowMS()
	reading, ok := m.Sampler.Poll(pollTimeoutMS)
	measured := 0.0
	if ok {
		measured = reading.Mass
	}

	coarseBounds := model.Combine(model.SpeedBounds{MinRPS: m.Motor.MinSpeed(hal.MotorCoarse), MaxRPS: m.Motor.MaxSpeed(hal.MotorCoarse)}, m.Profile.CoarseBounds)
	fineBounds := model.Combine(model.SpeedBounds{MinRPS: m.Motor.MinSpeed(hal.MotorFine), MaxRPS: m.Motor.MaxSpeed(hal.MotorFine)}, m.Profile.FineBounds)

	loop := NewLoop(mode, m.Motor,
		Gains{Coarse: model.Gains{Kp: gains.CoarseKp, Kd: gains.CoarseKd}, Fine: model.Gains{Kp: gains.FineKp, Kd: gains.FineKd}},
		m.Profile.CoarseKi, m.Profile.FineKi,
		coarseBounds, fineBounds,
		m.Config.CoarseStop, m.Config.FineStop,
		startTick, target, measured,
	)

	m.Motor.Enable(hal.MotorCoarse, true)
	m.Motor.Enable(hal.MotorFine, true)

	finished := false
	aborted := false
	for !finished && !aborted {
		if e, ok := m.Input.Poll(0); ok && e == hal.InputResetPress {
			aborted = true
			continue
		}
		reading, ok := m.Sampler.Poll(pollTimeoutMS)
		if !ok {
			continue
		}
		if !reading.Present() {
			continue
		}
		measured = reading.Mass
		finished = loop.Step(target, measured, reading.TimestampTick)
	}

	m.Motor.SetSpeed(hal.MotorCoarse, 0)
	m.Motor.SetSpeed(hal.MotorFine, 0)
	m.Motor.Enable(hal.MotorCoarse, false)
	m.Motor.Enable(hal.MotorFine, false)

	if m.Gate != nil {
		_ = m.Gate.SetState(hal.GateClosed, false)
	}

	if aborted {
		return model.PhaseExit
	}

	if m.Config.PreCharge.Enable {
		time.Sleep(500 * time.Millisecond)
		m.Motor.Enable(hal.MotorCoarse, true)
		m.Motor.SetSpeed(hal.MotorCoarse, m.Config.PreCharge.SpeedRPS)
		time.Sleep(time.Duration(m.Config.PreCharge.DurationMS) * time.Millisecond)
		m.Motor.SetSpeed(hal.MotorCoarse, 0)
		m.Motor.Enable(hal.MotorCoarse, false)
	}

	endTick := sampler.NowMS()
	coarseMS, fineMS := loop.Times(endTick)
	totalMS := endTick - startTick

	t := model.Telemetry{
		DropIndex:    m.dropIndex,
		CoarseTimeMS: coarseMS,
		FineTimeMS:   fineMS,
		TotalTimeMS:  totalMS,
		FinalMass:    measured,
		TargetMass:   target,
		GainsUsed:    gains,
		ProfileIndex: m.ProfileIndex,
	}
	m.dropIndex++

	if m.Tuner != nil && m.Tuner.Active() {
		m.Tuner.Record(t)
	} else if m.History != nil {
		m.History.Record(model.LearningEntry{
			ProfileIndex: m.ProfileIndex,
			Gains:        gains,
			Overthrow:    t.Overthrow(),
			CoarseTimeMS: coarseMS,
			FineTimeMS:   fineMS,
			TotalTimeMS:  totalMS,
		})
	}

	return model.PhaseWaitForCupRemoval
}

func (m *Machine) activeGains() (model.AppliedGains, model.MotorMode) {
	if m.Tuner != nil && m.Tuner.Active() {
		return m.Tuner.NextGains()
	}
	return model.AppliedGains{
		CoarseKp: m.Profile.CoarseKp, CoarseKd: m.Profile.CoarseKd,
		FineKp: m.Profile.FineKp, FineKd: m.Profile.FineKd,
	}, model.MotorModeNormal
}

// waitForCupRemoval settles for 1s, classifies the error band for the
// status LED, then waits for a 5-sample stable window.
func (m *Machine) waitForCupRemoval(target float64) model.Phase {
	time.Sleep(1 * time.Second)

	reading, ok := m.Sampler.Poll(pollTimeoutMS)
	if ok && reading.Present() {
		band := model.ClassifyErrorBand(target-reading.Mass, m.Config.FineStop)
		colour := hal.ColourNormal
		switch band {
		case model.ErrorBandOver:
			colour = hal.ColourOver
		case model.ErrorBandUnder:
			colour = hal.ColourUnder
		}
		m.LED.SetColour(1, colour, colour, true)
	}

	window := sampler.NewWindow(5)
	for {
		if e, ok := m.Input.Poll(10 * time.Millisecond); ok && e == hal.InputResetPress {
			return model.PhaseExit
		}
		reading, ok := m.Sampler.Poll(pollTimeoutMS)
		if !ok || !reading.Present() {
			continue
		}
		window.Enqueue(reading.Mass)
		if sampler.Stable(window, 5, m.Config.SDMargin, m.Config.MeanMargin) {
			return model.PhaseWaitForCupReturn
		}
	}
}

// waitForCupReturn waits for a non-removed (>= 0) reading, i.e. the pan
// has been placed back, honoring tare requests meanwhile.
func (m *Machine) waitForCupReturn() model.Phase {
	for {
		if e, ok := m.Input.Poll(10 * time.Millisecond); ok {
			switch e {
			case hal.InputResetPress:
				return model.PhaseExit
			case hal.InputEncoderPress:
				m.Sampler.ForceZero()
			}
		}
		reading, ok := m.Sampler.Poll(pollTimeoutMS)
		if !ok {
			continue
		}
		if reading.Mass >= 0 {
			return model.PhaseWaitForZero
		}
	}
}

func (m *Machine) exit() {
	m.LED.SetColour(0, 0, 0, true)
	m.Motor.Enable(hal.MotorCoarse, false)
	m.Motor.Enable(hal.MotorFine, false)
}
