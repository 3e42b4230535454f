/*
NAME
  multiplex.go

DESCRIPTION
  multiplex.go provides the tuning parameter set of a multiplex and parsing
  of key/value tuning descriptions.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dtv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const paramAuto = "auto"

// Errors returned by ParseTuningParams.
var (
	ErrNoFrequency   = errors.New("frequency missing or zero")
	ErrNoSymbolRate  = errors.New("symbol rate missing or zero")
	ErrBadPolarity   = errors.New("polarity must be one of h, v, l or r")
	ErrBadTunerType  = errors.New("tuner type cannot be tuned by parameters")
	ErrNotDelivery   = errors.New("descriptor is not a delivery system descriptor")
	ErrDeliveryMatch = errors.New("delivery system does not match tuner type")
)

// Multiplex holds the tuning parameters of one transport. String valued
// parameters use the lower case names stored in the multiplex table,
// e.g. "qam_64", "3/4", "auto".
type Multiplex struct {
	Frequency     uint64 `yaml:"frequency"`
	SymbolRate    uint64 `yaml:"symbolrate,omitempty"`
	Inversion     string `yaml:"inversion,omitempty"`
	Bandwidth     string `yaml:"bandwidth,omitempty"`
	HPCodeRate    string `yaml:"coderate_hp,omitempty"`
	LPCodeRate    string `yaml:"coderate_lp,omitempty"`
	Modulation    string `yaml:"modulation,omitempty"`
	TransMode     string `yaml:"trans_mode,omitempty"`
	GuardInterval string `yaml:"guard_interval,omitempty"`
	Hierarchy     string `yaml:"hierarchy,omitempty"`
	Polarity      string `yaml:"polarity,omitempty"`
	FEC           string `yaml:"fec,omitempty"`
	ModSys        string `yaml:"mod_sys,omitempty"`
	Rolloff       string `yaml:"rolloff,omitempty"`
	SIStandard    string `yaml:"sistandard,omitempty"`
	TransportID   uint16 `yaml:"transportid,omitempty"`
	NetworkID     uint16 `yaml:"networkid,omitempty"`
}

// String returns a short description of m for logging.
func (m Multiplex) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", m.Frequency)
	for _, s := range []string{m.Modulation, m.Polarity, m.Bandwidth, m.ModSys} {
		if s != "" && s != paramAuto {
			b.WriteString(" " + s)
		}
	}
	if m.SymbolRate != 0 {
		fmt.Fprintf(&b, " %d", m.SymbolRate)
	}
	return b.String()
}

// Valid reports whether m holds enough to tune a front end of type t.
func (m Multiplex) Valid(t TunerType) bool {
	if m.Frequency == 0 {
		return false
	}
	switch t {
	case TunerTypeDVBC, TunerTypeDVBS1, TunerTypeDVBS2:
		return m.SymbolRate != 0
	}
	return true
}

// ParseTuningParams builds a Multiplex for a tuner of type t from a key/value
// tuning description such as one line of a transport list. Keys follow the
// multiplex table column names; unset optional parameters default to "auto".
func ParseTuningParams(t TunerType, p map[string]string) (Multiplex, error) {
	var m Multiplex
	freq, err := strconv.ParseUint(strings.TrimSpace(p["frequency"]), 10, 64)
	if err != nil || freq == 0 {
		return m, ErrNoFrequency
	}
	m.Frequency = freq
	m.Inversion = orAuto(p["inversion"])

	switch t {
	case TunerTypeDVBT, TunerTypeDVBT2:
		m.Bandwidth = orAuto(p["bandwidth"])
		m.HPCodeRate = orAuto(p["coderate_hp"])
		m.LPCodeRate = orAuto(p["coderate_lp"])
		m.Modulation = orAuto(first(p["constellation"], p["modulation"]))
		m.TransMode = orAuto(p["trans_mode"])
		m.GuardInterval = orAuto(p["guard_interval"])
		m.Hierarchy = orAuto(p["hierarchy"])
		m.ModSys = first(p["mod_sys"], ModSysDVBT)
		if t == TunerTypeDVBT2 && p["mod_sys"] == "" {
			m.ModSys = ModSysDVBT2
		}
	case TunerTypeDVBC:
		if m.SymbolRate, err = parseSymbolRate(p["symbolrate"]); err != nil {
			return m, err
		}
		m.FEC = orAuto(p["fec"])
		m.Modulation = orAuto(p["modulation"])
		m.ModSys = first(p["mod_sys"], ModSysDVBC)
	case TunerTypeDVBS1, TunerTypeDVBS2:
		if m.SymbolRate, err = parseSymbolRate(p["symbolrate"]); err != nil {
			return m, err
		}
		m.Polarity = strings.ToLower(p["polarity"])
		switch m.Polarity {
		case "h", "v", "l", "r":
		default:
			return m, ErrBadPolarity
		}
		m.FEC = orAuto(p["fec"])
		m.Modulation = first(p["modulation"], "qpsk")
		m.Rolloff = first(p["rolloff"], "0.35")
		m.ModSys = ModSysDVBS
		if t == TunerTypeDVBS2 {
			m.ModSys = ModSysDVBS2
		}
		if s := p["mod_sys"]; s != "" {
			m.ModSys = s
		}
	case TunerTypeATSC:
		m.Modulation = first(p["modulation"], "8vsb")
		m.ModSys = ModSysATSC
	default:
		return m, fmt.Errorf("%w: %v", ErrBadTunerType, t)
	}
	return m, nil
}

func parseSymbolRate(s string) (uint64, error) {
	sr, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || sr == 0 {
		return 0, ErrNoSymbolRate
	}
	return sr, nil
}

func orAuto(s string) string {
	if s == "" {
		return paramAuto
	}
	return strings.ToLower(s)
}

func first(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
