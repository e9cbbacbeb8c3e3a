// services/display/animations.go
package display

import (
	"image/color"
	"time"

	"sensorjig-go/x/mathx"
)

// LedBuffer is one frame for the status LED string.
type LedBuffer []color.RGBA

// Animation produces LED frames, one per tick. Next returns false when the
// animation has expired; an animation with no expiry is interruptable and may
// be replaced by the next queued one at any tick.
type Animation interface {
	Next() (LedBuffer, bool)
	Interruptable() bool
}

// xorshift32 is a tiny PRNG; good enough for sparkle brightness and free of
// the math/rand global state.
type xorshift32 uint32

func (s *xorshift32) next() uint32 {
	x := uint32(*s)
	if x == 0 {
		x = 0x9E3779B9
	}
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*s = xorshift32(x)
	return x
}

// scale applies brightness b (0..255) to one 8-bit component with a quadratic
// gamma so low levels look even on WS2812-class LEDs.
func scale(v, b uint8) uint8 {
	g := uint16(v) * uint16(v) / 255
	return uint8(mathx.MapU16(g, 0, 255, 0, uint16(b)))
}

func shade(c color.RGBA, b uint8) color.RGBA {
	return color.RGBA{R: scale(c.R, b), G: scale(c.G, b), B: scale(c.B, b), A: 255}
}

// SparkleAnimation renders random brightness variations of a single colour.
// With a TTL it runs uninterrupted until expiry; without one it runs forever
// but yields to queued animations.
type SparkleAnimation struct {
	colour  color.RGBA
	leds    int
	max     uint8
	expires time.Time
	hasTTL  bool
	rng     xorshift32
}

func NewSparkle(colour color.RGBA, leds int, maxBrightness uint8, ttl time.Duration) *SparkleAnimation {
	a := &SparkleAnimation{
		colour: colour,
		leds:   leds,
		max:    maxBrightness,
		rng:    xorshift32(time.Now().UnixNano()),
	}
	if ttl > 0 {
		a.expires = time.Now().Add(ttl)
		a.hasTTL = true
	}
	return a
}

func (a *SparkleAnimation) Interruptable() bool { return !a.hasTTL }

func (a *SparkleAnimation) Next() (LedBuffer, bool) {
	if a.hasTTL && time.Now().After(a.expires) {
		return nil, false
	}
	buf := make(LedBuffer, a.leds)
	for i := range buf {
		b := uint8(a.rng.next())
		buf[i] = shade(a.colour, mathx.Min(b, a.max))
	}
	return buf, true
}

// SolidAnimation holds one colour at a fixed brightness indefinitely.
type SolidAnimation struct {
	colour color.RGBA
	leds   int
	level  uint8
}

func NewSolid(colour color.RGBA, leds int, brightness uint8) *SolidAnimation {
	return &SolidAnimation{colour: colour, leds: leds, level: brightness}
}

func (a *SolidAnimation) Interruptable() bool { return true }

func (a *SolidAnimation) Next() (LedBuffer, bool) {
	buf := make(LedBuffer, a.leds)
	for i := range buf {
		buf[i] = shade(a.colour, a.level)
	}
	return buf, true
}

// BreatheAnimation ramps brightness up and down through the colour.
type BreatheAnimation struct {
	colour color.RGBA
	leds   int
	max    uint8
	phase  uint8
	up     bool
}

func NewBreathe(colour color.RGBA, leds int, maxBrightness uint8) *BreatheAnimation {
	return &BreatheAnimation{colour: colour, leds: leds, max: maxBrightness, up: true}
}

func (a *BreatheAnimation) Interruptable() bool { return true }

func (a *BreatheAnimation) Next() (LedBuffer, bool) {
	const step = 16
	if a.up {
		if a.phase >= 255-step {
			a.phase, a.up = 255, false
		} else {
			a.phase += step
		}
	} else {
		if a.phase <= step {
			a.phase, a.up = 0, true
		} else {
			a.phase -= step
		}
	}
	level := mathx.LerpU8(0, a.max, a.phase)
	buf := make(LedBuffer, a.leds)
	for i := range buf {
		buf[i] = shade(a.colour, level)
	}
	return buf, true
}
