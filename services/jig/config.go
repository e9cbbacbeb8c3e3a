// services/jig/config.go
package jig

// Minimal JSON config structures, published retained on config/jig.

import (
	"sensorjig-go/drivers/singletact"
	"sensorjig-go/drivers/tca9548"
	"sensorjig-go/errcode"
)

type Config struct {
	Version     int  `json:"version"`
	MuxAddr     int  `json:"mux_addr,omitempty"`     // default 0x70
	DefaultAddr int  `json:"default_addr,omitempty"` // factory address, default 0x04
	BaseAddr    int  `json:"base_addr,omitempty"`    // target = base + channel, default 0x08
	SettleMS    int  `json:"settle_ms,omitempty"`    // NVM commit wait, default 150
	Assignments []AsgCfg `json:"assignments,omitempty"` // explicit table, overrides base_addr
}

// AsgCfg is one explicit channel→address entry.
type AsgCfg struct {
	Channel int `json:"channel"`
	Addr    int `json:"addr"`
}

func (c *Config) applyDefaults() {
	if c.MuxAddr == 0 {
		c.MuxAddr = tca9548.Address
	}
	if c.DefaultAddr == 0 {
		c.DefaultAddr = singletact.DefaultAddress
	}
	if c.BaseAddr == 0 {
		c.BaseAddr = 0x08
	}
	if c.SettleMS <= 0 {
		c.SettleMS = 150
	}
}

// Table validates the config and returns the full assignment table, one entry
// per mux channel in ascending order. Invariants enforced: every channel 0..7
// exactly once, targets pairwise distinct, each target in the assignable
// sensor range, and no target colliding with the mux control address or the
// factory default address.
func (c *Config) Table() ([]Assignment, error) {
	c.applyDefaults()

	table := make([]Assignment, tca9548.Channels)
	if len(c.Assignments) == 0 {
		for i := range table {
			table[i] = Assignment{Channel: uint8(i), Target: uint16(c.BaseAddr + i)}
		}
	} else {
		if len(c.Assignments) != tca9548.Channels {
			return nil, &errcode.E{C: errcode.InvalidConfig, Msg: "need one assignment per channel"}
		}
		seen := [tca9548.Channels]bool{}
		for _, a := range c.Assignments {
			if a.Channel < 0 || a.Channel >= tca9548.Channels {
				return nil, &errcode.E{C: errcode.InvalidConfig, Msg: "channel out of range"}
			}
			if seen[a.Channel] {
				return nil, &errcode.E{C: errcode.InvalidConfig, Msg: "duplicate channel"}
			}
			seen[a.Channel] = true
			table[a.Channel] = Assignment{Channel: uint8(a.Channel), Target: uint16(a.Addr)}
		}
	}

	used := map[uint16]bool{}
	for _, a := range table {
		switch {
		case !singletact.ValidAddress(a.Target):
			return nil, &errcode.E{C: errcode.InvalidConfig, Msg: "target address out of range"}
		case int(a.Target) == c.MuxAddr:
			return nil, &errcode.E{C: errcode.InvalidConfig, Msg: "target collides with mux address"}
		case int(a.Target) == c.DefaultAddr:
			return nil, &errcode.E{C: errcode.InvalidConfig, Msg: "target collides with factory address"}
		case used[a.Target]:
			return nil, &errcode.E{C: errcode.InvalidConfig, Msg: "duplicate target address"}
		}
		used[a.Target] = true
	}
	return table, nil
}
