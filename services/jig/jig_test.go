// services/jig/jig_test.go
package jig

import (
	"context"
	"testing"
	"time"

	"sensorjig-go/bus"

	"tinygo.org/x/drivers"
)

// startService runs the jig service against a scripted harness and returns a
// client connection.
func startService(t *testing.T, h *harness) *bus.Connection {
	t.Helper()
	b := bus.NewBus(32)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deps := Deps{
		NewSelector:   func(drivers.I2C, uint16) Selector { return h },
		NewProgrammer: func(drivers.I2C, uint16, time.Duration) Programmer { return h },
	}
	go Run(ctx, b.NewConnection("jig"), deps)
	return b.NewConnection("client")
}

func waitState(t *testing.T, sub *bus.Subscription, level string) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-sub.Channel():
			p, ok := m.Payload.(map[string]any)
			if ok && p["level"] == level {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %q", level)
		}
	}
}

func TestService_StartWithoutConfigRefused(t *testing.T) {
	client := startService(t, newHarness())

	stateSub := client.Subscribe(bus.T("jig", "state"))
	waitState(t, stateSub, "idle")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := client.RequestWait(ctx, client.NewMessage(bus.T("jig", "control", "start"), nil, false))
	if err != nil {
		t.Fatal(err)
	}
	p := reply.Payload.(map[string]any)
	if p["ok"] != false || p["error"] != "invalid_config" {
		t.Fatalf("reply = %v", p)
	}
}

func TestService_FullRun(t *testing.T) {
	h := newHarness()
	client := startService(t, h)

	stateSub := client.Subscribe(bus.T("jig", "state"))
	waitState(t, stateSub, "idle")

	reportSub := client.Subscribe(bus.T("jig", "report"))
	outcomeSub := client.Subscribe(bus.T("jig", "channel", "+", "outcome"))

	client.Publish(client.NewMessage(bus.T("config", "jig"), map[string]any{
		"version": 1, "base_addr": 0x10, "settle_ms": 1,
	}, true))
	waitState(t, stateSub, "ready")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := client.RequestWait(ctx, client.NewMessage(bus.T("jig", "control", "start"), nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if p := reply.Payload.(map[string]any); p["ok"] != true {
		t.Fatalf("start reply = %v", p)
	}

	waitState(t, stateSub, "done")

	select {
	case m := <-reportSub.Channel():
		p := m.Payload.(map[string]any)
		if p["programmed"] != 8 || p["total"] != 8 {
			t.Fatalf("report = %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no report published")
	}

	// Per-channel retained outcomes: first the 8 clears, then 8 results.
	got := 0
	deadline := time.After(time.Second)
	for got < 8 {
		select {
		case m := <-outcomeSub.Channel():
			if m.Payload == nil {
				continue // pre-run clear
			}
			p := m.Payload.(map[string]any)
			if p["code"] != "ok" {
				t.Fatalf("outcome = %v", p)
			}
			got++
		case <-deadline:
			t.Fatalf("saw %d outcomes, want 8", got)
		}
	}
}

func TestService_ReportsFailures(t *testing.T) {
	h := newHarness()
	h.selectFail[2] = errTest("nack")
	client := startService(t, h)

	stateSub := client.Subscribe(bus.T("jig", "state"))
	waitState(t, stateSub, "idle")
	reportSub := client.Subscribe(bus.T("jig", "report"))

	client.Publish(client.NewMessage(bus.T("config", "jig"), map[string]any{"settle_ms": 1}, true))
	waitState(t, stateSub, "ready")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.RequestWait(ctx, client.NewMessage(bus.T("jig", "control", "start"), nil, false)); err != nil {
		t.Fatal(err)
	}
	waitState(t, stateSub, "done")

	select {
	case m := <-reportSub.Channel():
		p := m.Payload.(map[string]any)
		if p["programmed"] != 7 {
			t.Fatalf("programmed = %v, want 7", p["programmed"])
		}
		outs := p["outcomes"].([]map[string]any)
		if outs[2]["code"] != "bus_error" {
			t.Fatalf("channel 2 outcome = %v", outs[2])
		}
	case <-time.After(time.Second):
		t.Fatal("no report published")
	}
}

func TestService_InvalidConfigRejected(t *testing.T) {
	client := startService(t, newHarness())

	stateSub := client.Subscribe(bus.T("jig", "state"))
	waitState(t, stateSub, "idle")

	client.Publish(client.NewMessage(bus.T("config", "jig"), map[string]any{"base_addr": 0x04}, true))
	waitState(t, stateSub, "error")
}

type errTest string

func (e errTest) Error() string { return string(e) }
