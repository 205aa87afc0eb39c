package tuner

import (
	"math"

	"github.com/opentrickler/trickler-core/model"
	"gonum.org/v1/gonum/mat"
)

// gpSigmaF2 and gpSigmaN2 are the squared-exponential kernel's fixed
// signal and noise variances.
const (
	gpSigmaF2 = 100.0
	gpSigmaN2 = 5.0
	gpBeta    = 2.0
)

// GPModel is the on-device Gaussian-Process regressor over (kp, kd) ->
// score, used for UCB-guided refinement once a phase's adaptive substeps
// converge. It keeps at most model.MaxGPObservations points and
// recomputes its Cholesky factor and alpha vector on every Add, which is
// cheap at N <= 20.
type GPModel struct {
	kpRange [2]float64
	kdRange [2]float64
	ell     float64

	obs   []model.GPObservation
	chol  *mat.Cholesky
	alpha *mat.VecDense
}

func NewGPModel(kpRange, kdRange [2]float64) *GPModel {
	span := kpRange[1] - kpRange[0]
	if d := kdRange[1] - kdRange[0]; d > span {
		span = d
	}
	return &GPModel{kpRange: kpRange, kdRange: kdRange, ell: 0.15 * span}
}

func (g *GPModel) kernel(kp1, kd1, kp2, kd2 float64) float64 {
	dkp := kp1 - kp2
	dkd := kd1 - kd2
	sq := dkp*dkp + dkd*dkd
	return gpSigmaF2 * math.Exp(-0.5*sq/(g.ell*g.ell))
}

// Add records a new observation and rebuilds the posterior. Once
// model.MaxGPObservations is reached, the oldest observation is evicted
// to make room.
func (g *GPModel) Add(kp, kd, score float64) {
	if len(g.obs) >= model.MaxGPObservations {
		g.obs = g.obs[1:]
	}
	g.obs = append(g.obs, model.GPObservation{Kp: kp, Kd: kd, Score: score})
	g.rebuild()
}

func (g *GPModel) rebuild() {
	n := len(g.obs)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := g.kernel(g.obs[i].Kp, g.obs[i].Kd, g.obs[j].Kp, g.obs[j].Kd)
			if i == j {
				v += gpSigmaN2
			}
			k.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	ok := chol.Factorize(k)
	jitters := []float64{1e-6, 1e-4}
	for _, jitter := range jitters {
		if ok {
			break
		}
		for i := 0; i < n; i++ {
			k.SetSym(i, i, k.At(i, i)+jitter)
		}
		ok = chol.Factorize(k)
	}
	g.chol = &chol

	y := mat.NewVecDense(n, nil)
	for i, o := range g.obs {
		y.SetVec(i, o.Score)
	}
	var alpha mat.VecDense
	if ok {
		_ = chol.SolveVecTo(&alpha, y)
	} else {
		alpha.ReuseAsVec(n)
	}
	g.alpha = &alpha
}

// Predict returns the posterior mean and variance at (kp, kd). With zero
// observations it returns the flat prior: mean 50 (midpoint of the 0-100
// score range), variance sigma_f^2.
func (g *GPModel) Predict(kp, kd float64) (mean, variance float64) {
	n := len(g.obs)
	if n == 0 {
		return 50, gpSigmaF2
	}

	kStar := mat.NewVecDense(n, nil)
	for i, o := range g.obs {
		kStar.SetVec(i, g.kernel(kp, kd, o.Kp, o.Kd))
	}

	mean = mat.Dot(kStar, g.alpha)

	var l mat.TriDense
	g.chol.LTo(&l)
	var v mat.VecDense
	_ = v.SolveVec(&l, kStar)

	variance = g.kernel(kp, kd, kp, kd) - mat.Dot(&v, &v)
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

// UCB is the upper-confidence-bound acquisition value at (kp, kd).
func (g *GPModel) UCB(kp, kd float64) float64 {
	mean, variance := g.Predict(kp, kd)
	return mean + gpBeta*math.Sqrt(variance)
}

// NextCandidate searches a coarse 10x10 grid over the axis-aligned
// rectangle, then a 5x5 local refinement at half the grid's step size
// around the grid optimum, returning the point with the highest UCB.
func (g *GPModel) NextCandidate() (kp, kd float64) {
	const gridN = 10
	bestKp, bestKd, bestUCB := g.kpRange[0], g.kdRange[0], math.Inf(-1)

	kpStep := (g.kpRange[1] - g.kpRange[0]) / float64(gridN-1)
	kdStep := (g.kdRange[1] - g.kdRange[0]) / float64(gridN-1)

	for i := 0; i < gridN; i++ {
		cKp := g.kpRange[0] + float64(i)*kpStep
		for j := 0; j < gridN; j++ {
			cKd := g.kdRange[0] + float64(j)*kdStep
			if u := g.UCB(cKp, cKd); u > bestUCB {
				bestUCB, bestKp, bestKd = u, cKp, cKd
			}
		}
	}

	const refineN = 5
	halfKp := kpStep / 2
	halfKd := kdStep / 2
	for i := -refineN / 2; i <= refineN/2; i++ {
		cKp := clamp(bestKp+float64(i)*halfKp/float64(refineN/2+1), g.kpRange[0], g.kpRange[1])
		for j := -refineN / 2; j <= refineN/2; j++ {
			cKd := clamp(bestKd+float64(j)*halfKd/float64(refineN/2+1), g.kdRange[0], g.kdRange[1])
			if u := g.UCB(cKp, cKd); u > bestUCB {
				bestUCB, bestKp, bestKd = u, cKp, cKd
			}
		}
	}

	return clamp(bestKp, g.kpRange[0], g.kpRange[1]), clamp(bestKd, g.kdRange[0], g.kdRange[1])
}

// Best returns the observation with the highest recorded score.
func (g *GPModel) Best() (kp, kd, score float64, ok bool) {
	if len(g.obs) == 0 {
		return 0, 0, 0, false
	}
	best := g.obs[0]
	for _, o := range g.obs[1:] {
		if o.Score > best.Score {
			best = o
		}
	}
	return best.Kp, best.Kd, best.Score, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
