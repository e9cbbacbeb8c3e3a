// services/display/oled.go
//go:build rp2040

package display

import (
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freemono"
)

// OLEDAddress is the usual SSD1306 module address.
const OLEDAddress = 0x3C

var (
	oledOn = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	// First baseline and line pitch for the 9pt font on a 128x64 panel.
	oledFirstLine  = int16(18)
	oledLinePitch  = int16(20)
	oledLeftMargin = int16(2)
)

// OLED renders status lines on a 128x64 SSD1306 sitting on the root bus
// segment, upstream of the mux, so it stays reachable whatever channel is
// selected.
type OLED struct {
	dev ssd1306.Device
}

// NewOLED configures the panel. The I2C bus must already be set up.
func NewOLED(bus drivers.I2C) *OLED {
	dev := ssd1306.NewI2C(bus)
	dev.Configure(ssd1306.Config{
		Width:   128,
		Height:  64,
		Address: OLEDAddress,
	})
	dev.ClearDisplay()
	return &OLED{dev: dev}
}

// ShowLines replaces the whole panel with the given lines.
func (o *OLED) ShowLines(lines ...string) error {
	o.dev.ClearBuffer()
	y := oledFirstLine
	for _, ln := range lines {
		tinyfont.WriteLine(&o.dev, &freemono.Regular9pt7b, oledLeftMargin, y, ln, oledOn)
		y += oledLinePitch
	}
	return o.dev.Display()
}
