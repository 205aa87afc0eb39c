// Package tuner implements the Auto-Tuner: adaptive step-halving
// bracketing followed by Gaussian-Process/UCB refinement, across the
// coarse and fine motor ranges in turn. Adaptive search converges fast
// to a "good" region in a handful of drops; GP refinement then finds
// the true Kp x Kd optimum by modeling their interaction, keeping a
// full tuning session well under the 30-drop hard cap.
package tuner

import (
	"math"

	"github.com/opentrickler/trickler-core/model"
)

// Session drives one tuning run from seed gains to a recommendation.
type Session struct {
	phase        model.TunerPhase
	coarse       *adaptiveTuner
	fine         *adaptiveTuner
	history      *History
	profileIndex int

	coarseStop          float64
	maxOverthrowPercent float64

	dropIndex int

	recommended model.AppliedGains
}

// Coarse/fine parameter ranges, sharing their hard bounds
// with model.CoarseGainMin/Max and model.FineGainMin/Max so a caller
// validating an applied session's gains checks against the same bounds
// the search itself is clamped to.
var (
	coarseKpRange = axisRange{min: model.CoarseGainMin, max: model.CoarseGainMax, minStep: 0.02}
	coarseKdRange = axisRange{min: model.CoarseGainMin, max: model.CoarseGainMax, minStep: 0.02}
	fineKpRange   = axisRange{min: model.FineGainMin, max: model.FineGainMax, minStep: 0.2}
	fineKdRange   = axisRange{min: model.FineGainMin, max: model.FineGainMax, minStep: 0.2}
)

func NewSession(history *History) *Session {
	return &Session{phase: model.TunerIdle, history: history}
}

// Start initializes the session, clears the GP, and seeds starting
// gains from the per-profile learning history. coarseStop is the charge
// config's coarse stop threshold, in the same mass unit the scale
// reports; phase 1 counts a drop as overthrown only past it.
func (s *Session) Start(profileIndex int, targets model.TunerTargets, coarseStop float64) {
	seed := s.history.SeedGains(profileIndex)
	s.profileIndex = profileIndex
	s.dropIndex = 0
	s.coarseStop = coarseStop
	s.maxOverthrowPercent = targets.MaxOverthrowFraction * 100

	s.coarse = newAdaptiveTuner(coarseKpRange, coarseKdRange,
		phaseTargets{scoreOverthrowPercent: s.maxOverthrowPercent, timeTargetMS: int64(targets.CoarseTimeTargetMS)},
		seed.CoarseKp, seed.CoarseKd)
	s.fine = newAdaptiveTuner(fineKpRange, fineKdRange,
		phaseTargets{scoreOverthrowPercent: s.maxOverthrowPercent, timeTargetMS: int64(targets.TotalTimeTargetMS)},
		seed.FineKp, seed.FineKd)

	s.phase = model.TunerPhase1Coarse
}

// State returns the session's current phase.
func (s *Session) State() model.TunerPhase { return s.phase }

// Active reports whether a tuning session is currently driving drops.
func (s *Session) Active() bool {
	return s.phase == model.TunerPhase1Coarse || s.phase == model.TunerPhase2Fine
}

// NextGains is called by the dispense loop before each drop.
func (s *Session) NextGains() (model.AppliedGains, model.MotorMode) {
	switch s.phase {
	case model.TunerPhase1Coarse:
		kp, kd := s.coarse.Gains()
		return model.AppliedGains{CoarseKp: kp, CoarseKd: kd}, model.MotorModeCoarseOnly
	case model.TunerPhase2Fine:
		kp, kd := s.fine.Gains()
		coarseKp, coarseKd := s.coarse.Gains()
		return model.AppliedGains{CoarseKp: coarseKp, CoarseKd: coarseKd, FineKp: kp, FineKd: kd}, model.MotorModeFineOnly
	default:
		return s.recommended, model.MotorModeNormal
	}
}

// MotorMode is read by the state machine to decide which motor(s) run
// this drop.
func (s *Session) MotorMode() model.MotorMode {
	_, mode := s.NextGains()
	return mode
}

// Record is consumed synchronously after each drop and advances the
// internal phase.
func (s *Session) Record(t model.Telemetry) {
	s.history.Record(model.LearningEntry{
		ProfileIndex: s.profileIndex, Gains: t.GainsUsed, Overthrow: t.Overthrow(),
		CoarseTimeMS: t.CoarseTimeMS, FineTimeMS: t.FineTimeMS, TotalTimeMS: t.TotalTimeMS,
	})

	s.dropIndex++
	if s.dropIndex > model.MaxTuningDrops {
		s.phase = model.TunerError
		s.recommended = s.currentBest()
		return
	}

	overthrowPercent := t.OverthrowFraction() * 100

	switch s.phase {
	case model.TunerPhase1Coarse:
		// The coarse motor alone only has to land within the coarse stop
		// threshold of target, so its gate compares raw mass overthrow
		// against that threshold, not a fraction of target.
		overthrew := t.Overthrow() > s.coarseStop
		s.coarse.Record(overthrew, !overthrew, overthrowPercent, t.CoarseTimeMS)
		if s.coarse.Done() {
			s.phase = model.TunerPhase2Fine
		}
	case model.TunerPhase2Fine:
		gateMet := math.Abs(overthrowPercent) <= s.maxOverthrowPercent
		s.fine.Record(t.Overthrow() > 0, gateMet, overthrowPercent, t.TotalTimeMS)
		if s.fine.Done() {
			s.phase = model.TunerComplete
			s.recommended = s.currentBest()
		}
	}
}

func (s *Session) currentBest() model.AppliedGains {
	coarseKp, coarseKd := s.coarse.Gains()
	fineKp, fineKd := s.fine.Gains()
	return model.AppliedGains{CoarseKp: coarseKp, CoarseKd: coarseKd, FineKp: fineKp, FineKd: fineKd}
}

// RecommendedGains returns the session's current best recommendation,
// valid once State() is COMPLETE or ERROR.
func (s *Session) RecommendedGains() model.AppliedGains { return s.recommended }

// Apply writes the recommended gains into profile; a restarted session
// then seeds at 70% of the just-applied means once the history holds
// three or more drops.
func (s *Session) Apply(profile *model.Profile) {
	g := s.recommended
	profile.CoarseKp, profile.CoarseKd = g.CoarseKp, g.CoarseKd
	profile.FineKp, profile.FineKd = g.FineKp, g.FineKd
}

// Cancel abandons the session, returning it to IDLE without recording a
// recommendation.
func (s *Session) Cancel() {
	s.phase = model.TunerIdle
	s.coarse = nil
	s.fine = nil
}
