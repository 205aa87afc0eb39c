package hal

import (
	"machine"
	"sync"
	"time"
)

// stepSequence is the 4-step full-step drive sequence for a unipolar
// stepper.
var stepSequence = [4][4]bool{
	{true, false, false, false},
	{false, true, false, false},
	{false, false, true, false},
	{false, false, false, true},
}

// TricklerMotor drives one stepper trickler at a continuously-commanded
// speed; the PD loop commands rps, not step counts.
type TricklerMotor struct {
	pins     [4]machine.Pin
	minRPS   float64
	maxRPS   float64
	stepsRev uint32

	mu      sync.Mutex
	enabled bool
	rps     float64
	idx     int
	stop    chan struct{}
}

func NewTricklerMotor(pins [4]machine.Pin, stepsPerRev uint32, minRPS, maxRPS float64) *TricklerMotor {
	for _, p := range pins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	return &TricklerMotor{pins: pins, stepsRev: stepsPerRev, minRPS: minRPS, maxRPS: maxRPS}
}

func (m *TricklerMotor) MinSpeed() float64 { return m.minRPS }
func (m *TricklerMotor) MaxSpeed() float64 { return m.maxRPS }

// SetSpeed updates the commanded speed. A zero or negative speed stops
// stepping without disabling the driver outputs.
func (m *TricklerMotor) SetSpeed(rps float64) {
	m.mu.Lock()
	m.rps = rps
	m.mu.Unlock()
}

// Enable starts or stops the background stepping goroutine. TinyGo
// supports goroutines on the targeted boards, so the continuous step
// clock runs as its own task rather than inside an interrupt handler.
func (m *TricklerMotor) Enable(on bool) {
	m.mu.Lock()
	already := m.enabled
	m.enabled = on
	m.mu.Unlock()

	if on && !already {
		m.stop = make(chan struct{})
		go m.run(m.stop)
	} else if !on && already {
		close(m.stop)
	}
}

func (m *TricklerMotor) run(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		m.mu.Lock()
		rps := m.rps
		m.mu.Unlock()

		if rps <= 0 {
			time.Sleep(2 * time.Millisecond)
			continue
		}

		stepsPerSec := rps * float64(m.stepsRev)
		delay := time.Duration(float64(time.Second) / stepsPerSec)
		m.step()
		time.Sleep(delay)
	}
}

func (m *TricklerMotor) step() {
	m.idx = (m.idx + 1) % len(stepSequence)
	seq := stepSequence[m.idx]
	for i, p := range m.pins {
		p.Set(seq[i])
	}
}

// TricklerPair bundles the coarse and fine trickler motors behind the
// Motor capability; at most one of the two is ever commanded nonzero at
// a time.
type TricklerPair struct {
	Coarse *TricklerMotor
	Fine   *TricklerMotor
}

func (p *TricklerPair) motor(id MotorID) *TricklerMotor {
	if id == MotorCoarse {
		return p.Coarse
	}
	return p.Fine
}

func (p *TricklerPair) SetSpeed(id MotorID, rps float64) { p.motor(id).SetSpeed(rps) }
func (p *TricklerPair) Enable(id MotorID, on bool)       { p.motor(id).Enable(on) }
func (p *TricklerPair) MinSpeed(id MotorID) float64      { return p.motor(id).MinSpeed() }
func (p *TricklerPair) MaxSpeed(id MotorID) float64      { return p.motor(id).MaxSpeed() }
