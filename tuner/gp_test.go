package tuner

import "testing"

func TestGPModelPriorWithNoObservations(t *testing.T) {
	g := NewGPModel([2]float64{0, 1}, [2]float64{0, 1})
	mean, variance := g.Predict(0.5, 0.5)
	if mean != 50 {
		t.Fatalf("Predict() mean = %v, want 50", mean)
	}
	if variance != gpSigmaF2 {
		t.Fatalf("Predict() variance = %v, want %v", variance, gpSigmaF2)
	}
}

func TestGPModelNextCandidateBeatsObservedPoints(t *testing.T) {
	g := NewGPModel([2]float64{0, 1}, [2]float64{0, 1})
	g.Add(0.3, 0.2, 60)
	g.Add(0.7, 0.1, 75)
	g.Add(0.5, 0.3, 82)

	kp, kd := g.NextCandidate()

	if kp < 0 || kp > 1 || kd < 0 || kd > 1 {
		t.Fatalf("NextCandidate() = (%v, %v), want inside [0,1]^2", kp, kd)
	}

	nextUCB := g.UCB(kp, kd)
	for _, o := range g.obs {
		if observedUCB := g.UCB(o.Kp, o.Kd); nextUCB < observedUCB-1e-9 {
			t.Fatalf("NextCandidate UCB %v is worse than observed point (%v,%v) UCB %v", nextUCB, o.Kp, o.Kd, observedUCB)
		}
	}
}

func TestGPModelBestTracksHighestScore(t *testing.T) {
	g := NewGPModel([2]float64{0, 1}, [2]float64{0, 1})
	g.Add(0.1, 0.1, 10)
	g.Add(0.5, 0.5, 90)
	g.Add(0.9, 0.9, 40)

	kp, kd, score, ok := g.Best()
	if !ok || kp != 0.5 || kd != 0.5 || score != 90 {
		t.Fatalf("Best() = (%v,%v,%v,%v), want (0.5,0.5,90,true)", kp, kd, score, ok)
	}
}

func TestGPModelCapsObservationsAtTwenty(t *testing.T) {
	g := NewGPModel([2]float64{0, 1}, [2]float64{0, 1})
	for i := 0; i < 25; i++ {
		g.Add(float64(i)/25, 0.1, float64(i))
	}
	if len(g.obs) != 20 {
		t.Fatalf("len(obs) = %d, want 20", len(g.obs))
	}
	// The oldest five observations (scores 0-4) should have been evicted.
	for _, o := range g.obs {
		if o.Score < 5 {
			t.Fatalf("found evicted-range score %v still present", o.Score)
		}
	}
}
