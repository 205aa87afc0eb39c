package hal

import "machine"

// PWM is the slice of a hardware PWM group the LED driver needs; the
// rp2040's machine.PWM0..PWM7 all satisfy it.
type PWM interface {
	Set(channel uint8, value uint32)
}

// RGBStatusLED drives a backlight pin plus two RGB status LEDs. Colours
// are packed 0xRRGGBB; only the PWM duty needed to reproduce them is
// computed here.
type RGBStatusLED struct {
	backlight machine.Pin
	led1      [3]PWM
	led2      [3]PWM
	ch1       [3]uint8
	ch2       [3]uint8
}

func NewRGBStatusLED(backlight machine.Pin, led1, led2 [3]PWM, ch1, ch2 [3]uint8) *RGBStatusLED {
	backlight.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &RGBStatusLED{backlight: backlight, led1: led1, led2: led2, ch1: ch1, ch2: ch2}
}

func (l *RGBStatusLED) SetColour(backlight, led1, led2 uint32, applyImmediately bool) {
	l.backlight.Set(backlight != 0)
	setRGB(l.led1, l.ch1, led1)
	setRGB(l.led2, l.ch2, led2)
	_ = applyImmediately // PWM writes below take effect on the next period regardless
}

func setRGB(pwms [3]PWM, channels [3]uint8, colour uint32) {
	r := uint8(colour >> 16)
	g := uint8(colour >> 8)
	b := uint8(colour)
	for i, c := range [3]uint8{r, g, b} {
		pwms[i].Set(channels[i], scale8to16(c))
	}
}

func scale8to16(v uint8) uint32 { return uint32(v) * 0x101 }

// Status colours used by the Charge State Machine's error-band
// classification.
const (
	ColourNormal uint32 = 0x00FF00
	ColourOver   uint32 = 0xFF0000
	ColourUnder  uint32 = 0xFFFF00
	ColourIdle   uint32 = 0x0000FF
)
