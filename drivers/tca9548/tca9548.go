// Package tca9548 provides a driver for the TCA9548A 8-channel I2C
// multiplexer. The device has a single control register: writing a one-hot
// byte enables exactly one downstream channel and disables the other seven in
// the same transaction, so at most one channel is ever reachable.
//
// The driver issues single transactions and never retries; retry policy
// belongs to the caller.
package tca9548

import (
	"tinygo.org/x/drivers"
)

// I2C control address (A0..A2 low).
const Address = 0x70

// Channels is the fixed channel count of the part.
const Channels = 8

// Device wraps an I2C connection to a TCA9548A.
type Device struct {
	bus     drivers.I2C
	Address uint16
	buf     [1]byte
}

// New creates a new TCA9548A connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not touch
// the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// Select enables channel ch (0..7) and disables all others. After it returns,
// a sensor reachable before the call may no longer be addressable.
//
// An out-of-range channel is a caller contract violation and panics; it is
// not a bus condition.
func (d *Device) Select(ch uint8) error {
	if ch >= Channels {
		panic("tca9548: channel out of range")
	}
	d.buf[0] = 1 << ch
	return d.bus.Tx(d.Address, d.buf[:1], nil)
}

// DisableAll disconnects every downstream channel.
func (d *Device) DisableAll() error {
	d.buf[0] = 0
	return d.bus.Tx(d.Address, d.buf[:1], nil)
}

// Selected reads back the control register and reports the enabled channel.
// ok is false when no channel is enabled. More than one bit set means
// something other than this driver wrote the register; the lowest enabled
// channel is reported.
func (d *Device) Selected() (ch uint8, ok bool, err error) {
	var r [1]byte
	if err := d.bus.Tx(d.Address, nil, r[:]); err != nil {
		return 0, false, err
	}
	if r[0] == 0 {
		return 0, false, nil
	}
	for i := uint8(0); i < Channels; i++ {
		if r[0]&(1<<i) != 0 {
			return i, true, nil
		}
	}
	return 0, false, nil
}
