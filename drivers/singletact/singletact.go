// Package singletact provides a driver for SingleTact capacitive force
// sensors. All modules ship answering the same factory address, so the main
// job here beyond reading force frames is moving a sensor to a new I2C
// address and proving the move took effect.
//
// Wire format (vendor command framing): a read is a 3-byte command
// {0x01, offset, n} followed by an n-byte read under repeated start; a write
// is {0x02, offset, n, data...}. Settings live at low offsets (offset 0 is
// the 7-bit I2C address, committed to NVM); measurement frames start at
// offset 128. Source the exact opcodes, offsets and settle timing from the
// vendor datasheet before trusting this against new silicon.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when
// both w and r are provided, without releasing the bus.
package singletact

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Factory default I2C address shared by every unprogrammed module.
const DefaultAddress = 0x04

// Command opcodes and register offsets.
const (
	cmdRead  = 0x01
	cmdWrite = 0x02

	regI2CAddress = 0x00
	regSensorData = 0x80

	dataFrameLen = 6
)

// Assignable 7-bit address window. The low reserved addresses and the
// 10-bit/reserved high range are rejected.
const (
	MinAddress = 0x04
	MaxAddress = 0x77
)

// Errors returned by the driver.
var (
	// ErrNoResponse: nothing ACKed where a sensor was expected. With a
	// healthy mux this means the channel is empty or the module was already
	// moved off the address being talked to.
	ErrNoResponse = errors.New("singletact: no response")
	ErrAddress    = errors.New("singletact: address out of range")
	ErrProtocol   = errors.New("singletact: protocol error")
)

// VerifyError reports a sensor that answered at the new address but returned
// the wrong identity marker on readback.
type VerifyError struct {
	Expected byte
	Actual   byte
}

func (e *VerifyError) Error() string { return "singletact: verification mismatch" }

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address the sensor currently answers at. Defaults to DefaultAddress.
	Address uint16
	// SettleTime is the fixed wait after an address-change command while the
	// sensor commits the new address to NVM. There is no status register to
	// poll. Default 150 ms.
	SettleTime time.Duration
}

// Device wraps an I2C connection to one SingleTact module. The handle is only
// meaningful while the module is electrically reachable (i.e. while its mux
// channel is selected).
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	buf [8]byte
}

// New creates a new SingleTact connection at the factory address. The I2C bus
// must already be configured. This function only creates the Device object;
// it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: DefaultAddress,
	}
}

// Configure applies optional config. It may be called with no cfg.
func (d *Device) Configure(cfgs ...Config) {
	c := Config{}
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.SettleTime <= 0 {
		c.SettleTime = 150 * time.Millisecond
	}
	d.cfg = c
}

// ValidAddress reports whether a is an assignable 7-bit sensor address.
func ValidAddress(a uint16) bool {
	return a >= MinAddress && a <= MaxAddress
}

// SettleTime returns the configured NVM commit wait.
func (d *Device) SettleTime() time.Duration {
	if d.cfg.SettleTime > 0 {
		return d.cfg.SettleTime
	}
	return 150 * time.Millisecond
}

// SetAddress sends the address-change command to whatever currently answers
// at d.Address. It does not wait and does not verify; most callers want
// ProgramAndVerify.
func (d *Device) SetAddress(target uint16) error {
	if !ValidAddress(target) {
		return ErrAddress
	}
	d.buf[0] = cmdWrite
	d.buf[1] = regI2CAddress
	d.buf[2] = 1
	d.buf[3] = byte(target)
	if err := d.bus.Tx(d.Address, d.buf[:4], nil); err != nil {
		return ErrNoResponse
	}
	return nil
}

// ReadAddress fetches the address register from the module currently at
// d.Address.
func (d *Device) ReadAddress() (byte, error) {
	d.buf[0] = cmdRead
	d.buf[1] = regI2CAddress
	d.buf[2] = 1
	var r [1]byte
	if err := d.bus.Tx(d.Address, d.buf[:3], r[:]); err != nil {
		return 0, ErrNoResponse
	}
	return r[0], nil
}

// ProgramAndVerify moves the sensor at d.Address to target and confirms the
// move: command write, fixed settle wait, then a readback of the address
// register at the new address. An unverified write is indistinguishable from
// an absent sensor, so verification is not optional.
//
// Returns nil on a confirmed move (d.Address is updated to target),
// ErrNoResponse if either the command write or the verify read NACKs, or a
// *VerifyError when the readback disagrees. A module already moved off
// d.Address simply never ACKs the command and is reported ErrNoResponse; it
// is never re-written.
func (d *Device) ProgramAndVerify(target uint16) error {
	if err := d.SetAddress(target); err != nil {
		return err
	}

	time.Sleep(d.SettleTime())

	d.buf[0] = cmdRead
	d.buf[1] = regI2CAddress
	d.buf[2] = 1
	var r [1]byte
	if err := d.bus.Tx(target, d.buf[:3], r[:]); err != nil {
		return ErrNoResponse
	}
	if r[0] != byte(target) {
		return &VerifyError{Expected: byte(target), Actual: r[0]}
	}
	d.Address = target
	return nil
}

// Sample holds one measurement frame.
type Sample struct {
	FrameIndex uint16
	Timestamp  uint16
	Raw        uint16
}

// ReadSample fetches the 6-byte measurement frame (big-endian words: frame
// index, timestamp, sensor data) from the module currently at d.Address.
func (d *Device) ReadSample(out *Sample) error {
	d.buf[0] = cmdRead
	d.buf[1] = regSensorData
	d.buf[2] = dataFrameLen
	var r [dataFrameLen]byte
	if err := d.bus.Tx(d.Address, d.buf[:3], r[:]); err != nil {
		return ErrNoResponse
	}
	if out != nil {
		out.FrameIndex = uint16(r[0])<<8 | uint16(r[1])
		out.Timestamp = uint16(r[2])<<8 | uint16(r[3])
		out.Raw = uint16(r[4])<<8 | uint16(r[5])
	}
	return nil
}

// fullScale is the nominal top of the sensor data range.
const fullScale = 511

// DeciPercent returns the force reading in tenths of percent of span.
func (s Sample) DeciPercent() int32 {
	return (int32(s.Raw) * 1000) / fullScale
}
