//go:build rp2040

// Jig firmware for the RP2040 build of the programming rig: shared I2C bus to
// the TCA9548A and the OLED, ws2812 status LED, two buttons (torch toggle,
// start run), UART console for the report.
package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers/ws2812"

	"sensorjig-go/bus"
	"sensorjig-go/services/display"
	"sensorjig-go/services/jig"
	"sensorjig-go/x/conv"
)

const (
	pinSDA       = machine.GP4
	pinSCL       = machine.GP5
	pinLED       = machine.GP2
	pinButtonA   = machine.GP9 // torch toggle
	pinButtonB   = machine.GP3 // start programming
	pinConsoleTX = machine.GP0
	pinConsoleRX = machine.GP1
	buttonSettle = 100 * time.Millisecond
	consoleBaud  = 115200
	i2cBusFreqHz = 400_000
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		SDA:       pinSDA,
		SCL:       pinSCL,
		Frequency: i2cBusFreqHz,
	}); err != nil {
		println("i2c configure failed")
		return
	}

	console := uartx.UART0
	_ = console.Configure(uartx.UARTConfig{
		BaudRate: consoleBaud,
		TX:       pinConsoleTX,
		RX:       pinConsoleRX,
	})

	pinLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	leds := ws2812.New(pinLED)

	ctx := context.Background()
	b := bus.NewBus(16)

	println("[main] starting jig service")
	go jig.Run(ctx, b.NewConnection("jig"), jig.Deps{Bus: i2c})

	println("[main] starting display service")
	go display.Run(ctx, b.NewConnection("display"), display.Deps{
		Screen:   display.NewOLED(i2c),
		Leds:     &leds,
		LedCount: 1,
	})

	uiConn := b.NewConnection("ui")

	// Mirror jig traffic onto the console UART for bench diagnostics.
	mon := b.NewConnection("mon").Subscribe(bus.T("jig", "#"))
	go func() {
		for m := range mon.Channel() {
			line := append([]byte(m.Topic.String()), ' ')
			line = appendPayload(line, m.Payload)
			line = append(line, '\r', '\n')
			_, _ = console.Write(line)
		}
	}()

	// Publish the startup configuration: defaults plus the bench table
	// (positions 0..7 land at 0x08..0x0F).
	uiConn.Publish(uiConn.NewMessage(bus.T("config", "jig"), map[string]any{
		"version": 1,
	}, true))

	btnA := pinButtonA
	btnB := pinButtonB
	btnA.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	btnB.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	println("[main] ready, waiting for button")
	torch := false
	for {
		switch {
		case !btnA.Get(): // active low
			torch = !torch
			uiConn.Publish(uiConn.NewMessage(bus.T("display", "control", "torch"), torch, false))
			waitRelease(btnA)
		case !btnB.Get():
			println("[main] starting device programming")
			uiConn.Publish(uiConn.NewMessage(bus.T("jig", "control", "start"), nil, false))
			waitRelease(btnB)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitRelease debounces and blocks until the button is let go.
func waitRelease(p machine.Pin) {
	time.Sleep(buttonSettle)
	for !p.Get() {
		time.Sleep(10 * time.Millisecond)
	}
}

// appendPayload renders the few payload shapes we publish without pulling fmt
// into the MCU image.
func appendPayload(dst []byte, p any) []byte {
	switch v := p.(type) {
	case nil:
		return append(dst, "<nil>"...)
	case string:
		return append(dst, v...)
	case bool:
		if v {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case map[string]any:
		first := true
		for k, mv := range v {
			if !first {
				dst = append(dst, ' ')
			}
			first = false
			dst = append(dst, k...)
			dst = append(dst, '=')
			switch x := mv.(type) {
			case string:
				dst = append(dst, x...)
			case int:
				dst = append(dst, conv.ItoaStr(int64(x))...)
			case int64:
				dst = append(dst, conv.ItoaStr(x)...)
			case bool:
				if x {
					dst = append(dst, "true"...)
				} else {
					dst = append(dst, "false"...)
				}
			default:
				dst = append(dst, '?')
			}
		}
		return dst
	default:
		return append(dst, '?')
	}
}
