// services/jig/types.go
package jig

import (
	"time"

	"sensorjig-go/errcode"

	"tinygo.org/x/drivers"
)

// Assignment maps one mux channel to the address its sensor should end up at.
type Assignment struct {
	Channel uint8
	Target  uint16
}

// OutcomeKind classifies one channel's programming attempt.
type OutcomeKind uint8

const (
	// Programmed: the sensor answered at the new address with the right marker.
	Programmed OutcomeKind = iota
	// NoResponse: nothing ACKed where a sensor was expected. Ambiguous between
	// an empty channel and a module already moved off the default address.
	NoResponse
	// VerifyMismatch: a device answered at the new address but the identity
	// readback disagreed. Needs operator attention.
	VerifyMismatch
	// BusError: transport-level fault, typically the mux itself not ACKing the
	// channel select.
	BusError
)

func (k OutcomeKind) String() string {
	switch k {
	case Programmed:
		return "programmed"
	case NoResponse:
		return "no_response"
	case VerifyMismatch:
		return "verify_mismatch"
	case BusError:
		return "bus_error"
	}
	return "unknown"
}

// Code maps the outcome to its stable bus-facing error code.
func (k OutcomeKind) Code() errcode.Code {
	switch k {
	case Programmed:
		return errcode.OK
	case NoResponse:
		return errcode.NoResponse
	case VerifyMismatch:
		return errcode.VerifyMismatch
	case BusError:
		return errcode.BusError
	}
	return errcode.Error
}

// Outcome is one channel's immutable result. Expected/Actual are only
// meaningful for VerifyMismatch, Err only for BusError.
type Outcome struct {
	Channel  uint8
	Target   uint16
	Kind     OutcomeKind
	Expected byte
	Actual   byte
	Err      error
}

// Report is the ordered per-channel result of one full run.
type Report []Outcome

// ProgrammedCount returns how many channels verified successfully.
func (r Report) ProgrammedCount() int {
	n := 0
	for _, o := range r {
		if o.Kind == Programmed {
			n++
		}
	}
	return n
}

// AllProgrammed reports a fully healthy run.
func (r Report) AllProgrammed() bool { return r.ProgrammedCount() == len(r) }

// Selector enables exactly one downstream mux channel at a time.
type Selector interface {
	Select(ch uint8) error
}

// Programmer moves whatever module currently answers at the default address
// to target and verifies the move. Implementations must be channel-agnostic:
// they talk to whichever sensor the Selector has made reachable.
type Programmer interface {
	ProgramAndVerify(target uint16) error
}

// Deps are the platform collaborators the jig service needs. Bus is the one
// shared I2C handle; it is passed by reference into Selector and Programmer
// and never held globally.
type Deps struct {
	Bus drivers.I2C

	// Optional constructor overrides, used by tests to substitute doubles.
	NewSelector   func(bus drivers.I2C, addr uint16) Selector
	NewProgrammer func(bus drivers.I2C, defaultAddr uint16, settle time.Duration) Programmer
}
