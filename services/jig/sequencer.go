// services/jig/sequencer.go
package jig

import (
	"errors"
	"time"

	"sensorjig-go/drivers/singletact"

	"tinygo.org/x/drivers"
)

// State is one step of the per-channel programming walk.
type State uint8

const (
	StateIdle State = iota
	StateSelecting
	StateProgramming
	StateVerified
	StateFailed
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateProgramming:
		return "programming"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// StepEvent is delivered to the observer on every state transition. Outcome
// is non-nil when entering StateVerified or StateFailed.
type StepEvent struct {
	State   State
	Channel uint8
	Target  uint16
	Outcome *Outcome
}

// Sequencer walks an assignment table in strictly ascending channel order:
// select the channel, program and verify its sensor, record the outcome,
// advance. A failure is local to its channel; the run always completes and
// returns one outcome per assignment.
//
// There is no per-channel retry and no mid-run cancellation: the jig is
// dedicated to this sequence and every step is bounded by the bus primitive's
// transaction timeout plus the fixed settle wait, so a run cannot block
// indefinitely. Retries, if wanted, are a re-run of the whole sequence.
type Sequencer struct {
	sel     Selector
	prog    Programmer
	observe func(StepEvent)
}

// NewSequencer builds a sequencer over a channel selector and a programmer.
func NewSequencer(sel Selector, prog Programmer) *Sequencer {
	return &Sequencer{sel: sel, prog: prog}
}

// Observe installs a state-transition hook. Pass nil to remove it. The hook
// runs on the sequencer's goroutine and must not block.
func (s *Sequencer) Observe(fn func(StepEvent)) { s.observe = fn }

func (s *Sequencer) emit(ev StepEvent) {
	if s.observe != nil {
		s.observe(ev)
	}
}

// Run executes one full pass over the assignments and returns the complete
// report, one entry per assignment in input order. It never panics on bus
// conditions; a mux that never ACKs simply yields BusError on every entry.
func (s *Sequencer) Run(assignments []Assignment) Report {
	report := make(Report, 0, len(assignments))
	s.emit(StepEvent{State: StateIdle})

	for _, a := range assignments {
		s.emit(StepEvent{State: StateSelecting, Channel: a.Channel, Target: a.Target})
		if err := s.sel.Select(a.Channel); err != nil {
			out := Outcome{Channel: a.Channel, Target: a.Target, Kind: BusError, Err: err}
			report = append(report, out)
			s.emit(StepEvent{State: StateFailed, Channel: a.Channel, Target: a.Target, Outcome: &out})
			continue
		}

		s.emit(StepEvent{State: StateProgramming, Channel: a.Channel, Target: a.Target})
		out := classify(a, s.prog.ProgramAndVerify(a.Target))
		report = append(report, out)

		st := StateVerified
		if out.Kind != Programmed {
			st = StateFailed
		}
		s.emit(StepEvent{State: st, Channel: a.Channel, Target: a.Target, Outcome: &out})
	}

	s.emit(StepEvent{State: StateDone})
	return report
}

// classify maps a programmer error onto the outcome taxonomy.
func classify(a Assignment, err error) Outcome {
	out := Outcome{Channel: a.Channel, Target: a.Target}
	var ve *singletact.VerifyError
	switch {
	case err == nil:
		out.Kind = Programmed
	case errors.As(err, &ve):
		out.Kind = VerifyMismatch
		out.Expected = ve.Expected
		out.Actual = ve.Actual
	case errors.Is(err, singletact.ErrNoResponse):
		out.Kind = NoResponse
	default:
		out.Kind = BusError
		out.Err = err
	}
	return out
}

// sensorProgrammer is the hardware Programmer: a fresh transient sensor
// handle per attempt, valid only inside the channel's selection window.
type sensorProgrammer struct {
	bus         drivers.I2C
	defaultAddr uint16
	settle      time.Duration
}

// NewProgrammer returns a Programmer speaking the SingleTact vendor protocol
// against the given shared bus handle.
func NewProgrammer(bus drivers.I2C, defaultAddr uint16, settle time.Duration) Programmer {
	if defaultAddr == 0 {
		defaultAddr = singletact.DefaultAddress
	}
	return &sensorProgrammer{bus: bus, defaultAddr: defaultAddr, settle: settle}
}

func (p *sensorProgrammer) ProgramAndVerify(target uint16) error {
	d := singletact.New(p.bus)
	d.Configure(singletact.Config{Address: p.defaultAddr, SettleTime: p.settle})
	return d.ProgramAndVerify(target)
}
