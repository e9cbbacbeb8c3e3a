// services/jig/config_test.go
package jig

import (
	"errors"
	"testing"

	"sensorjig-go/errcode"
)

func TestConfig_DefaultTable(t *testing.T) {
	var c Config
	table, err := c.Table()
	if err != nil {
		t.Fatal(err)
	}
	if len(table) != 8 {
		t.Fatalf("table length = %d", len(table))
	}
	for i, a := range table {
		if a.Channel != uint8(i) || a.Target != uint16(0x08+i) {
			t.Fatalf("entry %d = %+v", i, a)
		}
	}
	if c.MuxAddr != 0x70 || c.DefaultAddr != 0x04 || c.SettleMS != 150 {
		t.Fatalf("defaults = %+v", c)
	}
}

func TestConfig_ExplicitAssignments(t *testing.T) {
	c := Config{}
	for ch := 7; ch >= 0; ch-- { // deliberately unordered input
		c.Assignments = append(c.Assignments, AsgCfg{Channel: ch, Addr: 0x30 + ch})
	}
	table, err := c.Table()
	if err != nil {
		t.Fatal(err)
	}
	for i, a := range table {
		if a.Channel != uint8(i) || a.Target != uint16(0x30+i) {
			t.Fatalf("entry %d = %+v, want ascending channel order", i, a)
		}
	}
}

func TestConfig_Invalid(t *testing.T) {
	cases := map[string]Config{
		"short table": {Assignments: []AsgCfg{{Channel: 0, Addr: 0x10}}},
		"channel out of range": {Assignments: []AsgCfg{
			{0, 0x10}, {1, 0x11}, {2, 0x12}, {3, 0x13}, {4, 0x14}, {5, 0x15}, {6, 0x16}, {8, 0x17},
		}},
		"duplicate channel": {Assignments: []AsgCfg{
			{0, 0x10}, {0, 0x11}, {2, 0x12}, {3, 0x13}, {4, 0x14}, {5, 0x15}, {6, 0x16}, {7, 0x17},
		}},
		"duplicate target": {Assignments: []AsgCfg{
			{0, 0x10}, {1, 0x10}, {2, 0x12}, {3, 0x13}, {4, 0x14}, {5, 0x15}, {6, 0x16}, {7, 0x17},
		}},
		"target is mux address":     {BaseAddr: 0x70 - 3},
		"target is factory address": {BaseAddr: 0x04},
		"target out of range":       {BaseAddr: 0x75},
	}
	for name, c := range cases {
		if _, err := c.Table(); err == nil {
			t.Errorf("%s: no error", name)
		} else if errcode.Of(err) != errcode.InvalidConfig {
			t.Errorf("%s: code = %v", name, errcode.Of(err))
		}
	}
}

func TestConfig_ErrcodeUnwrap(t *testing.T) {
	c := Config{BaseAddr: 0x04}
	_, err := c.Table()
	var e *errcode.E
	if !errors.As(err, &e) {
		t.Fatalf("err = %T", err)
	}
	if e.C != errcode.InvalidConfig {
		t.Fatalf("code = %v", e.C)
	}
}
