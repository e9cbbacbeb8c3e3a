// services/jig/fabric_test.go
package jig

import (
	"errors"
	"testing"
	"time"

	"sensorjig-go/drivers/singletact"
	"sensorjig-go/drivers/tca9548"

	"tinygo.org/x/drivers"
)

// Compile-time check.
var _ drivers.I2C = (*fabric)(nil)

// fabric models the whole jig wiring on one bus: the mux control register and
// up to one sensor per downstream channel. Only the sensor on the enabled
// channel is reachable, exactly like the physical one-hot switch.
type fabric struct {
	muxAddr byte
	muxDead bool
	control byte
	sensors [tca9548.Channels]*simSensor
}

type simSensor struct {
	addr   byte // address the module currently ACKs
	stored byte // address register content
	lie    byte // if nonzero, readback returns this
}

func newFabric(present ...uint8) *fabric {
	f := &fabric{muxAddr: tca9548.Address}
	for _, ch := range present {
		f.sensors[ch] = &simSensor{addr: singletact.DefaultAddress, stored: singletact.DefaultAddress}
	}
	return f
}

func (f *fabric) Tx(addr uint16, w, r []byte) error {
	if byte(addr) == f.muxAddr {
		if f.muxDead {
			return errors.New("mux: no ack")
		}
		if len(w) == 1 {
			f.control = w[0]
		}
		if len(r) == 1 {
			r[0] = f.control
		}
		return nil
	}

	// Route to the sensor on the enabled channel, if any.
	for ch := 0; ch < tca9548.Channels; ch++ {
		if f.control&(1<<ch) == 0 {
			continue
		}
		s := f.sensors[ch]
		if s == nil || s.addr != byte(addr) {
			continue
		}
		switch {
		case len(w) >= 4 && w[0] == 0x02 && w[1] == 0x00:
			s.stored = w[3]
			s.addr = w[3]
			return nil
		case len(w) == 3 && w[0] == 0x01 && w[1] == 0x00 && len(r) == 1:
			if s.lie != 0 {
				r[0] = s.lie
			} else {
				r[0] = s.stored
			}
			return nil
		}
		return errors.New("sensor: bad command")
	}
	return errors.New("no ack")
}

func fabricSequencer(f *fabric) *Sequencer {
	mux := tca9548.New(f)
	prog := NewProgrammer(f, singletact.DefaultAddress, time.Millisecond)
	return NewSequencer(&mux, prog)
}

func TestFabric_EndToEndHealthy(t *testing.T) {
	f := newFabric(0, 1, 2, 3, 4, 5, 6, 7)
	report := fabricSequencer(f).Run(table8())

	for i, o := range report {
		if o.Kind != Programmed || o.Target != uint16(0x10+i) {
			t.Fatalf("channel %d = %+v", i, o)
		}
		if f.sensors[i].addr != byte(0x10+i) {
			t.Fatalf("sensor %d ended at %#02x", i, f.sensors[i].addr)
		}
	}
}

func TestFabric_SelectExclusivity(t *testing.T) {
	f := newFabric(0, 1, 2, 3, 4, 5, 6, 7)
	// Pre-place each sensor at a distinct address so reachability is
	// attributable to a specific module.
	for ch := 0; ch < tca9548.Channels; ch++ {
		f.sensors[ch].addr = byte(0x20 + ch)
		f.sensors[ch].stored = byte(0x20 + ch)
	}

	mux := tca9548.New(f)
	for i := uint8(0); i < tca9548.Channels; i++ {
		if err := mux.Select(i); err != nil {
			t.Fatal(err)
		}
		for j := 0; j < tca9548.Channels; j++ {
			d := singletact.New(f)
			d.Configure(singletact.Config{Address: uint16(0x20 + j), SettleTime: time.Millisecond})
			_, err := d.ReadAddress()
			if j == int(i) && err != nil {
				t.Fatalf("select %d: own sensor unreachable: %v", i, err)
			}
			if j != int(i) && err == nil {
				t.Fatalf("select %d: sensor %d reachable across disabled channel", i, j)
			}
		}
	}
}

func TestFabric_EmptyChannels(t *testing.T) {
	f := newFabric(0, 2, 3, 4, 5, 7) // channels 1 and 6 empty
	report := fabricSequencer(f).Run(table8())

	for i, o := range report {
		want := Programmed
		if i == 1 || i == 6 {
			want = NoResponse
		}
		if o.Kind != want {
			t.Fatalf("channel %d = %v, want %v", i, o.Kind, want)
		}
	}
}

func TestFabric_RerunReportsNoResponse(t *testing.T) {
	// After a successful run every module is off the default address, so a
	// second pass must report NoResponse everywhere and corrupt nothing.
	f := newFabric(0, 1, 2, 3, 4, 5, 6, 7)
	seq := fabricSequencer(f)
	seq.Run(table8())

	second := fabricSequencer(f).Run(table8())
	for i, o := range second {
		if o.Kind != NoResponse {
			t.Fatalf("rerun channel %d = %v, want NoResponse", i, o.Kind)
		}
		if f.sensors[i].addr != byte(0x10+i) {
			t.Fatalf("rerun moved sensor %d to %#02x", i, f.sensors[i].addr)
		}
	}
}

func TestFabric_VerifyMismatch(t *testing.T) {
	f := newFabric(0, 1, 2, 3, 4, 5, 6, 7)
	f.sensors[5].lie = 0x7F

	report := fabricSequencer(f).Run(table8())
	if report[5].Kind != VerifyMismatch || report[5].Expected != 0x15 || report[5].Actual != 0x7F {
		t.Fatalf("channel 5 = %+v", report[5])
	}
	for i, o := range report {
		if i != 5 && o.Kind != Programmed {
			t.Fatalf("channel %d affected by channel 5 mismatch: %v", i, o.Kind)
		}
	}
}

func TestFabric_MuxDeadYieldsFullBusErrorReport(t *testing.T) {
	f := newFabric(0, 1, 2, 3, 4, 5, 6, 7)
	f.muxDead = true

	report := fabricSequencer(f).Run(table8())
	if len(report) != tca9548.Channels {
		t.Fatalf("report length = %d", len(report))
	}
	for i, o := range report {
		if o.Kind != BusError {
			t.Fatalf("channel %d = %v, want BusError", i, o.Kind)
		}
	}
}
