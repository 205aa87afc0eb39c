package tuner

import "github.com/opentrickler/trickler-core/model"

// axisRange bounds the adaptive search range and step-halving minimum for
// one axis (Kp or Kd) of one phase.
type axisRange struct {
	min, max, minStep float64
}

// phaseTargets are the per-phase time goal plus the overthrow-fraction
// threshold the GP scoring bonus uses. The pass/fail overthrow gate
// itself differs between phases in both value and unit (raw mass
// against the coarse stop threshold in phase 1, overthrow-fraction
// percent against the configured maximum in phase 2), so Session judges
// it and hands Record the verdict.
type phaseTargets struct {
	scoreOverthrowPercent float64
	timeTargetMS          int64
}

// adaptiveTuner runs the step-halving Kp/Kd search for one phase (coarse
// or fine), then hands off to a GPModel for refinement.
type adaptiveTuner struct {
	kpRange axisRange
	kdRange axisRange
	targets phaseTargets

	substep model.AdaptiveSubstep
	kp, kd  float64
	kpStep  float64
	kdStep  float64

	gp               *GPModel
	gpDropsRemaining int

	done bool
}

func newAdaptiveTuner(kpRange, kdRange axisRange, targets phaseTargets, seedKp, seedKd float64) *adaptiveTuner {
	return &adaptiveTuner{
		kpRange: kpRange, kdRange: kdRange, targets: targets,
		kp: seedKp, kd: seedKd,
		kpStep: (kpRange.max - kpRange.min) * 0.2,
		kdStep: (kdRange.max - kdRange.min) * 0.2,
		gp:     NewGPModel([2]float64{kpRange.min, kpRange.max}, [2]float64{kdRange.min, kdRange.max}),
	}
}

// Gains returns the (kp, kd) the next drop should use.
func (a *adaptiveTuner) Gains() (float64, float64) { return a.kp, a.kd }

// Record advances the substep state machine from one drop's outcome.
// overthrew drives adaptive-Kp's back-off and gateMet is the phase's
// convergence gate, both judged by the caller in the phase's own units;
// overthrowFractionPercent and timeMS feed the GP scoring function.
func (a *adaptiveTuner) Record(overthrew, gateMet bool, overthrowFractionPercent float64, timeMS int64) {
	timeGoalMet := timeMS <= a.targets.timeTargetMS

	// Every drop is an observation, so GP refinement starts from the
	// adaptive search's history rather than a flat prior.
	a.gp.Add(a.kp, a.kd, Score(overthrowFractionPercent, float64(timeMS)/float64(a.targets.timeTargetMS), a.targets.scoreOverthrowPercent))

	switch a.substep {
	case model.SubstepKp:
		if overthrew {
			a.kp -= a.kpStep
			if a.kp < a.kpRange.min {
				a.kp = a.kpRange.min
			}
			a.kpStep /= 2
			if a.kpStep < a.kpRange.minStep {
				a.substep = model.SubstepKd
				a.kd += a.kdStep
				if a.kd > a.kdRange.max {
					a.kd = a.kdRange.max
				}
			}
		} else {
			a.kp += a.kpStep
			if a.kp >= a.kpRange.max {
				a.kp = a.kpRange.max
				a.substep = model.SubstepKd
			}
		}

	case model.SubstepKd:
		if !gateMet {
			a.kd += a.kdStep
			if a.kd >= a.kdRange.max {
				// Kd exhausted without clearing the gate; let the GP
				// search the whole plane instead.
				a.kd = a.kdRange.max
				a.startGP()
			}
			return
		}
		if timeGoalMet {
			a.startGP()
			return
		}
		a.kp += a.kpRange.minStep
		if a.kp > a.kpRange.max {
			a.kp = a.kpRange.max
		}

	case model.SubstepGP:
		a.gpDropsRemaining--
		if a.gpDropsRemaining <= 0 {
			bestKp, bestKd, _, ok := a.gp.Best()
			if ok {
				a.kp, a.kd = bestKp, bestKd
			}
			a.done = true
			return
		}
		a.kp, a.kd = a.gp.NextCandidate()
	}
}

// startGP switches to GP refinement and proposes the first candidate
// immediately, so every one of the GPDropsPerPhase drops runs
// GP-suggested gains.
func (a *adaptiveTuner) startGP() {
	a.substep = model.SubstepGP
	a.gpDropsRemaining = model.GPDropsPerPhase
	a.kp, a.kd = a.gp.NextCandidate()
}

// Done reports whether this phase's gates are satisfied (adaptive
// converged through GP refinement).
func (a *adaptiveTuner) Done() bool { return a.done }
