// services/display/display.go
package display

import (
	"context"
	"image/color"
	"time"

	"sensorjig-go/bus"
	"sensorjig-go/x/conv"
	"sensorjig-go/x/mathx"
)

// The animation frame interval.
const AnimationUpdate = 250 * time.Millisecond

// Colour palette for run states.
var (
	ColourIdle = color.RGBA{G: 255, A: 255} // green, the jig's resting colour
	ColourBusy = color.RGBA{B: 255, A: 255}
	ColourGood = color.RGBA{G: 255, A: 255}
	ColourBad  = color.RGBA{R: 255, A: 255}
	colourAll  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const maxPendingAnimations = 8

// Screen is a line-oriented status sink: an OLED, a UART console, a test
// recorder. Implementations overwrite the whole surface on every call.
type Screen interface {
	ShowLines(lines ...string) error
}

// LedWriter pushes one frame to the status LED string. ws2812.Device
// satisfies this directly.
type LedWriter interface {
	WriteColors(buf []color.RGBA) error
}

// Deps are the render targets. Either may be nil.
type Deps struct {
	Screen   Screen
	Leds     LedWriter
	LedCount int
}

// Run consumes jig progress off the message bus and keeps the operator
// surfaces current. It owns all display state; nothing else may touch the
// screen or LEDs while it runs.
func Run(ctx context.Context, conn *bus.Connection, deps Deps) {
	if deps.LedCount <= 0 {
		deps.LedCount = 1
	}
	s := &service{
		conn:       conn,
		deps:       deps,
		brightness: 10,
		current:    NewSparkle(ColourIdle, deps.LedCount, 10, 0),
	}
	s.loop(ctx)
}

type service struct {
	conn *bus.Connection
	deps Deps

	brightness uint8
	torch      bool

	current Animation
	queue   []Animation
}

func (s *service) loop(ctx context.Context) {
	jigSub := s.conn.Subscribe(bus.T("jig", "#"))
	ctrlSub := s.conn.Subscribe(bus.T("display", "control", "+"))
	defer s.conn.Unsubscribe(jigSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.show("Press button", "to start")

	tick := time.NewTicker(AnimationUpdate)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.ledsOff()
			return

		case <-tick.C:
			if s.torch {
				continue
			}
			s.advanceAnimation()

		case msg := <-jigSub.Channel():
			s.handleJig(msg)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)
		}
	}
}

// -----------------------------------------------------------------------------
// Jig message handling
// -----------------------------------------------------------------------------

func (s *service) handleJig(msg *bus.Message) {
	p, ok := msg.Payload.(map[string]any)
	if !ok {
		return
	}
	switch {
	case msg.Topic.Equal(bus.T("jig", "state")):
		if level, _ := p["level"].(string); level == "idle" || level == "ready" {
			s.show("Press button", "to start")
			s.enqueue(NewSparkle(ColourIdle, s.deps.LedCount, s.brightness, 0))
		}

	case msg.Topic.Equal(bus.T("jig", "progress")):
		ch, _ := asInt(p["channel"])
		addr, _ := asInt(p["addr"])
		s.show("Position: "+conv.ItoaStr(int64(ch)), "Address: "+conv.Hex8(byte(addr)))
		s.enqueue(NewSparkle(ColourBusy, s.deps.LedCount, s.brightness, 0))

	case msg.Topic.Equal(bus.T("jig", "report")):
		good, _ := asInt(p["programmed"])
		total, _ := asInt(p["total"])
		s.show("Done", conv.ItoaStr(int64(good))+"/"+conv.ItoaStr(int64(total))+" ok")
		colour := ColourGood
		if good != total {
			colour = ColourBad
		}
		// Hold the result uninterrupted for a moment, then keep it steady.
		s.enqueue(NewSparkle(colour, s.deps.LedCount, s.brightness, 2*time.Second))
		s.enqueue(NewSolid(colour, s.deps.LedCount, s.brightness))
	}
}

// -----------------------------------------------------------------------------
// Operator controls
// -----------------------------------------------------------------------------

func (s *service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 3 {
		return
	}
	switch msg.Topic[2] {
	case "torch":
		on, _ := msg.Payload.(bool)
		s.torch = on
		if on {
			s.writeLeds(solidFrame(colourAll, s.deps.LedCount, s.brightness))
		} else {
			s.ledsOff()
		}
	case "brightness":
		if b, ok := asInt(msg.Payload); ok {
			s.brightness = uint8(mathx.Clamp(b, 0, 255))
			if s.torch {
				s.writeLeds(solidFrame(colourAll, s.deps.LedCount, s.brightness))
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Animation scheduling
// -----------------------------------------------------------------------------

// enqueue appends an animation; interruptable current animations are replaced
// on the next tick, uninterruptable ones finish first.
func (s *service) enqueue(a Animation) {
	if len(s.queue) >= maxPendingAnimations {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, a)
}

func (s *service) advanceAnimation() {
	if len(s.queue) > 0 && (s.current == nil || s.current.Interruptable()) {
		s.current = s.queue[0]
		s.queue = s.queue[1:]
	}
	if s.current == nil {
		return
	}
	buf, ok := s.current.Next()
	if !ok {
		s.current = nil
		if len(s.queue) > 0 {
			s.current = s.queue[0]
			s.queue = s.queue[1:]
			buf, ok = s.current.Next()
		}
		if !ok {
			s.ledsOff()
			return
		}
	}
	s.writeLeds(buf)
}

// -----------------------------------------------------------------------------
// Render targets
// -----------------------------------------------------------------------------

func (s *service) show(lines ...string) {
	if s.deps.Screen != nil {
		_ = s.deps.Screen.ShowLines(lines...)
	}
}

func (s *service) writeLeds(buf LedBuffer) {
	if s.deps.Leds != nil && len(buf) > 0 {
		_ = s.deps.Leds.WriteColors(buf)
	}
}

func (s *service) ledsOff() {
	s.writeLeds(make(LedBuffer, s.deps.LedCount))
}

func solidFrame(c color.RGBA, leds int, brightness uint8) LedBuffer {
	buf := make(LedBuffer, leds)
	for i := range buf {
		buf[i] = shade(c, brightness)
	}
	return buf
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}
