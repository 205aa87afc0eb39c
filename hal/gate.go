package hal

import (
	"errors"
	"machine"
	"time"

	"tinygo.org/x/drivers/servo"
)

// ServoGate drives the optional powder gate: move the horn to the open
// or closed angle and optionally wait for it to settle.
type ServoGate struct {
	s       servo.Servo
	present bool

	openAngle   uint
	closedAngle uint
	settleDelay time.Duration

	state GateState
}

func NewServoGate(pwm servo.PWM, pin machine.Pin, openAngle, closedAngle uint, settleDelay time.Duration) (*ServoGate, error) {
	s, err := servo.New(pwm, pin)
	if err != nil {
		return nil, errors.New("error creating servo: " + err.Error())
	}
	g := &ServoGate{
		s: s, present: true,
		openAngle: openAngle, closedAngle: closedAngle,
		settleDelay: settleDelay,
		state:       GateClosed,
	}
	if err := g.s.SetAngle(closedAngle); err != nil {
		return nil, errors.New("error setting initial gate angle: " + err.Error())
	}
	return g, nil
}

// NoGate is the DISABLED servo-gate capability for installs with no
// physical gate.
type NoGate struct{}

func (NoGate) State() GateState               { return GateDisabled }
func (NoGate) SetState(GateState, bool) error { return nil }

func (g *ServoGate) State() GateState { return g.state }

func (g *ServoGate) SetState(s GateState, waitForCompletion bool) error {
	if !g.present {
		return nil
	}

	angle := g.closedAngle
	if s == GateOpen {
		angle = g.openAngle
	}

	if err := g.s.SetAngle(angle); err != nil {
		return errors.New("error setting gate angle: " + err.Error())
	}
	g.state = s

	if waitForCompletion {
		time.Sleep(g.settleDelay)
	}
	return nil
}
