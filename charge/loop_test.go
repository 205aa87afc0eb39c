package charge

import (
	"testing"

	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/model"
)

// fakeMotor records commanded speeds and enforces the "exactly one motor
// nonzero at any instant" invariant.
type fakeMotor struct {
	coarse, fine float64
	violations   int
}

func (m *fakeMotor) SetSpeed(id hal.MotorID, rps float64) {
	if id == hal.MotorCoarse {
		m.coarse = rps
	} else {
		m.fine = rps
	}
	if m.coarse != 0 && m.fine != 0 {
		m.violations++
	}
}
func (m *fakeMotor) Enable(hal.MotorID, bool)     {}
func (m *fakeMotor) MinSpeed(hal.MotorID) float64 { return 0 }
func (m *fakeMotor) MaxSpeed(hal.MotorID) float64 { return 100 }

func TestLoopNormalModeNeverCommandsBothMotors(t *testing.T) {
	motor := &fakeMotor{}
	bounds := model.SpeedBounds{MinRPS: 0, MaxRPS: 50}
	gains := Gains{Coarse: model.Gains{Kp: 0.5}, Fine: model.Gains{Kp: 2}}

	loop := NewLoop(model.MotorModeNormal, motor, gains, 0, 0, bounds, bounds, 0.5, 0.02, 0, 20, 0)

	measured := 0.0
	tick := int64(0)
	finished := false
	for i := 0; i < 10000 && !finished; i++ {
		tick += 10
		measured += 0.01 // crude monotonic approach to target
		finished = loop.Step(20, measured, tick)
	}

	if !finished {
		t.Fatal("loop never finished")
	}
	if motor.violations != 0 {
		t.Fatalf("both motors nonzero simultaneously %d times", motor.violations)
	}
}

func TestLoopCoarseOnlyNeverRunsFine(t *testing.T) {
	motor := &fakeMotor{}
	bounds := model.SpeedBounds{MinRPS: 0, MaxRPS: 50}
	gains := Gains{Coarse: model.Gains{Kp: 0.5}}

	loop := NewLoop(model.MotorModeCoarseOnly, motor, gains, 0, 0, bounds, bounds, 0.5, 0.02, 0, 20, 0)

	measured := 0.0
	tick := int64(0)
	for i := 0; i < 10000; i++ {
		tick += 10
		measured += 0.02
		if loop.Step(20, measured, tick) {
			break
		}
	}
	if motor.fine != 0 {
		t.Fatalf("fine motor moved in COARSE_ONLY mode: %v", motor.fine)
	}
}

func TestLoopTimesApportionsAroundSwitchover(t *testing.T) {
	motor := &fakeMotor{}
	bounds := model.SpeedBounds{MinRPS: 0, MaxRPS: 50}
	gains := Gains{Coarse: model.Gains{Kp: 0.5}, Fine: model.Gains{Kp: 2}}

	loop := NewLoop(model.MotorModeNormal, motor, gains, 0, 0, bounds, bounds, 1.0, 0.02, 0, 20, 0)

	// Step once still in coarse sub-phase.
	loop.Step(20, 10, 100)
	coarseMS, fineMS := loop.Times(100)
	if fineMS != 0 || coarseMS != 100 {
		t.Fatalf("before switch: coarseMS=%d fineMS=%d, want 100,0", coarseMS, fineMS)
	}

	// Cross the coarse stop threshold to switch into fine sub-phase.
	loop.Step(20, 19.5, 9000)
	coarseMS, fineMS = loop.Times(9500)
	if coarseMS != 9000 {
		t.Fatalf("coarseMS after switch = %d, want 9000", coarseMS)
	}
	if fineMS != 500 {
		t.Fatalf("fineMS after switch = %d, want 500", fineMS)
	}
}
