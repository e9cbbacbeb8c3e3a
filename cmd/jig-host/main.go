// Host-side harness for the programming sequence: runs the jig service against
// a simulated mux-and-sensor fabric so the flow can be exercised without
// hardware. Fabric shape (which positions are populated, faulty modules) comes
// from a YAML file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/dikkadev/prettyslog"
	"gopkg.in/yaml.v2"
	"tinygo.org/x/drivers"

	"sensorjig-go/bus"
	"sensorjig-go/drivers/singletact"
	"sensorjig-go/drivers/tca9548"
	"sensorjig-go/services/display"
	"sensorjig-go/services/jig"
	"sensorjig-go/x/conv"
)

func main() {
	cfgPath := flag.String("config", "", "YAML bench description (optional)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall run deadline")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(prettyslog.NewPrettyslogHandler("jig", prettyslog.WithLevel(level))))

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(2)
	}

	report, err := run(cfg, *timeout)
	if err != nil {
		slog.Error("run", "err", err)
		os.Exit(2)
	}

	good := 0
	for _, o := range report {
		attrs := []any{"channel", o.Channel, "addr", conv.Hex8(byte(o.Addr))}
		if o.Code == "ok" {
			good++
			slog.Info("programmed", attrs...)
			continue
		}
		attrs = append(attrs, "code", o.Code)
		if o.Error != "" {
			attrs = append(attrs, "err", o.Error)
		}
		slog.Warn("failed", attrs...)
	}
	slog.Info("report", "programmed", good, "total", len(report))
	if good != len(report) {
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------
// Wiring
// -----------------------------------------------------------------------------

func run(cfg *benchConfig, timeout time.Duration) ([]outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b := bus.NewBus(32)
	fab := newSimFabric(cfg)

	go jig.Run(ctx, b.NewConnection("jig"), jig.Deps{Bus: fab})
	go display.Run(ctx, b.NewConnection("display"), display.Deps{
		Screen: display.NewConsole(os.Stdout),
	})

	ui := b.NewConnection("ui")
	defer ui.Disconnect()
	stateSub := ui.Subscribe(bus.T("jig", "state"))
	reportSub := ui.Subscribe(bus.T("jig", "report"))

	slog.Debug("publishing config", "mux_addr", conv.Hex8(byte(cfg.Jig.MuxAddr)))
	ui.Publish(ui.NewMessage(bus.T("config", "jig"), cfg.Jig, true))

	if err := waitLevel(ctx, stateSub, "ready"); err != nil {
		return nil, err
	}

	slog.Info("starting device programming")
	if _, err := ui.RequestWait(ctx, ui.NewMessage(bus.T("jig", "control", "start"), nil, false)); err != nil {
		return nil, err
	}

	select {
	case msg := <-reportSub.Channel():
		var rep struct {
			Outcomes []outcome `json:"outcomes"`
		}
		if err := decode(msg.Payload, &rep); err != nil {
			return nil, err
		}
		return rep.Outcomes, nil
	case <-ctx.Done():
		return nil, errors.New("timed out waiting for report")
	}
}

type outcome struct {
	Channel int    `json:"channel"`
	Addr    int    `json:"addr"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

func waitLevel(ctx context.Context, sub *bus.Subscription, want string) error {
	for {
		select {
		case msg := <-sub.Channel():
			var st struct {
				Level  string `json:"level"`
				Status string `json:"status"`
				Error  string `json:"error"`
			}
			if err := decode(msg.Payload, &st); err != nil {
				return err
			}
			slog.Debug("jig state", "level", st.Level, "status", st.Status)
			switch st.Level {
			case want:
				return nil
			case "error":
				return errors.New("jig rejected config: " + st.Error)
			}
		case <-ctx.Done():
			return errors.New("timed out waiting for jig state " + want)
		}
	}
}

// decode bridges the in-process bus payloads (maps) into typed structs.
func decode(payload any, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

type benchConfig struct {
	Jig jig.Config `yaml:"-"`

	JigYAML struct {
		MuxAddr     int `yaml:"mux_addr"`
		DefaultAddr int `yaml:"default_addr"`
		BaseAddr    int `yaml:"base_addr"`
		SettleMS    int `yaml:"settle_ms"`
		Assignments []struct {
			Channel int `yaml:"channel"`
			Addr    int `yaml:"addr"`
		} `yaml:"assignments"`
	} `yaml:"jig"`

	Sim struct {
		MuxDead  bool `yaml:"mux_dead"`
		Channels []struct {
			Channel  int  `yaml:"channel"`
			Present  bool `yaml:"present"`
			Mismatch int  `yaml:"mismatch"` // nonzero: readback lies with this value
		} `yaml:"channels"`
	} `yaml:"sim"`
}

// loadConfig reads the bench description. With no file every position is
// populated and healthy and the jig defaults apply.
func loadConfig(path string) (*benchConfig, error) {
	cfg := &benchConfig{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	} else {
		for ch := 0; ch < tca9548.Channels; ch++ {
			cfg.Sim.Channels = append(cfg.Sim.Channels, struct {
				Channel  int  `yaml:"channel"`
				Present  bool `yaml:"present"`
				Mismatch int  `yaml:"mismatch"`
			}{Channel: ch, Present: true})
		}
	}

	cfg.Jig = jig.Config{
		Version:     1,
		MuxAddr:     cfg.JigYAML.MuxAddr,
		DefaultAddr: cfg.JigYAML.DefaultAddr,
		BaseAddr:    cfg.JigYAML.BaseAddr,
		SettleMS:    cfg.JigYAML.SettleMS,
	}
	for _, a := range cfg.JigYAML.Assignments {
		cfg.Jig.Assignments = append(cfg.Jig.Assignments, jig.AsgCfg{Channel: a.Channel, Addr: a.Addr})
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Simulated fabric
// -----------------------------------------------------------------------------

var _ drivers.I2C = (*simFabric)(nil)

// simFabric models the bench wiring on one bus: the mux control register plus
// at most one sensor per downstream channel. Only the sensor behind the
// enabled channel is reachable.
type simFabric struct {
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

func newSimFabric(cfg *benchConfig) *simFabric {
	muxAddr := byte(tca9548.Address)
	if cfg.JigYAML.MuxAddr != 0 {
		muxAddr = byte(cfg.JigYAML.MuxAddr)
	}
	factory := byte(singletact.DefaultAddress)
	if cfg.JigYAML.DefaultAddr != 0 {
		factory = byte(cfg.JigYAML.DefaultAddr)
	}

	f := &simFabric{muxAddr: muxAddr, muxDead: cfg.Sim.MuxDead}
	for _, c := range cfg.Sim.Channels {
		if !c.Present || c.Channel < 0 || c.Channel >= tca9548.Channels {
			continue
		}
		f.sensors[c.Channel] = &simSensor{addr: factory, stored: factory, lie: byte(c.Mismatch)}
	}
	return f
}

func (f *simFabric) Tx(addr uint16, w, r []byte) error {
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
