// services/jig/jig.go
package jig

import (
	"context"
	"encoding/json"
	"time"

	"sensorjig-go/bus"
	"sensorjig-go/drivers/tca9548"
	"sensorjig-go/errcode"
	"sensorjig-go/x/conv"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run starts the jig service loop. It owns the programming sequence end to
// end: config intake on config/jig (retained JSON), start requests on
// jig/control/start, progress and outcomes published back out for whatever
// presentation layer is listening.
func Run(ctx context.Context, conn *bus.Connection, deps Deps) {
	s := &service{conn: conn, deps: deps}
	s.loop(ctx)
}

type service struct {
	conn *bus.Connection
	deps Deps

	cfg     Config
	table   []Assignment
	haveCfg bool
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "jig"))
	ctrlSub := s.conn.Subscribe(bus.T("jig", "control", "+"))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg Config
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			table, err := cfg.Table()
			if err != nil {
				s.publishState("error", "config_invalid", err)
				continue
			}
			s.cfg, s.table, s.haveCfg = cfg, table, true
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			// jig/control/<method>
			if len(msg.Topic) < 3 {
				continue
			}
			switch msg.Topic[2] {
			case "start":
				if !s.haveCfg {
					s.replyErr(msg, errcode.InvalidConfig)
					continue
				}
				s.replyOK(msg, map[string]any{"channels": len(s.table)})
				s.runOnce()
			default:
				s.replyErr(msg, errcode.InvalidTopic)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// One programming run
// -----------------------------------------------------------------------------

// runOnce executes a full pass over the table. The loop is single-threaded by
// design: nothing else may touch the shared bus while a run is in flight, and
// queued control messages are handled once the run completes.
func (s *service) runOnce() {
	// Stale per-channel outcomes from a previous run must not survive into
	// this one.
	for ch := 0; ch < tca9548.Channels; ch++ {
		s.pubRet(chTopic(uint8(ch), "outcome"), nil)
	}
	s.publishState("programming", "run_started", nil)

	seq := NewSequencer(s.selector(), s.programmer())
	seq.Observe(func(ev StepEvent) {
		switch ev.State {
		case StateSelecting, StateProgramming:
			s.conn.Publish(s.conn.NewMessage(bus.T("jig", "progress"), map[string]any{
				"state":   ev.State.String(),
				"channel": int(ev.Channel),
				"addr":    int(ev.Target),
				"ts_ms":   time.Now().UnixMilli(),
			}, false))
		case StateVerified, StateFailed:
			s.pubRet(chTopic(ev.Channel, "outcome"), outcomePayload(*ev.Outcome))
		}
	})

	report := seq.Run(s.table)

	outs := make([]map[string]any, 0, len(report))
	for _, o := range report {
		outs = append(outs, outcomePayload(o))
	}
	s.pubRet(bus.T("jig", "report"), map[string]any{
		"outcomes":   outs,
		"programmed": report.ProgrammedCount(),
		"total":      len(report),
		"ts_ms":      time.Now().UnixMilli(),
	})
	s.publishState("done", "run_complete", nil)
}

func (s *service) selector() Selector {
	if s.deps.NewSelector != nil {
		return s.deps.NewSelector(s.deps.Bus, uint16(s.cfg.MuxAddr))
	}
	d := tca9548.New(s.deps.Bus)
	d.Address = uint16(s.cfg.MuxAddr)
	return &d
}

func (s *service) programmer() Programmer {
	settle := time.Duration(s.cfg.SettleMS) * time.Millisecond
	if s.deps.NewProgrammer != nil {
		return s.deps.NewProgrammer(s.deps.Bus, uint16(s.cfg.DefaultAddr), settle)
	}
	return NewProgrammer(s.deps.Bus, uint16(s.cfg.DefaultAddr), settle)
}

// -----------------------------------------------------------------------------
// Payloads and helpers
// -----------------------------------------------------------------------------

func outcomePayload(o Outcome) map[string]any {
	m := map[string]any{
		"channel": int(o.Channel),
		"addr":    int(o.Target),
		"code":    string(o.Kind.Code()),
	}
	if o.Kind == VerifyMismatch {
		m["expected"] = int(o.Expected)
		m["actual"] = int(o.Actual)
	}
	if o.Err != nil {
		m["error"] = o.Err.Error()
	}
	return m
}

func chTopic(ch uint8, rest ...string) bus.Topic {
	t := bus.T("jig", "channel", conv.ItoaStr(int64(ch)))
	return append(t, rest...)
}

func (s *service) pubRet(t bus.Topic, payload any) {
	s.conn.Publish(s.conn.NewMessage(t, payload, true))
}

func (s *service) publishState(level, status string, err error) {
	payload := map[string]any{"level": level, "status": status, "ts_ms": time.Now().UnixMilli()}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(bus.T("jig", "state"), payload, true))
}

func (s *service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *bus.Message, c errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "error": string(c)}, false)
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
