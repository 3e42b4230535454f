/*
NAME
  tuner.go

DESCRIPTION
  tuner.go provides tuner types, service information standard tags and
  modulation system names.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package dtv provides digital television tuning parameters and the types
// shared by the scanner and its collaborators.
package dtv

import "strings"

// TunerType identifies the delivery system a tuner front end supports.
type TunerType int

// Tuner types.
const (
	TunerTypeUnknown TunerType = iota
	TunerTypeATSC
	TunerTypeDVBT
	TunerTypeDVBT2
	TunerTypeDVBC
	TunerTypeDVBS1
	TunerTypeDVBS2
	TunerTypeASI
	TunerTypeIPTV
	TunerTypeAnalog
)

var tunerTypeNames = map[TunerType]string{
	TunerTypeUnknown: "Unknown",
	TunerTypeATSC:    "ATSC",
	TunerTypeDVBT:    "DVB-T",
	TunerTypeDVBT2:   "DVB-T2",
	TunerTypeDVBC:    "DVB-C",
	TunerTypeDVBS1:   "DVB-S",
	TunerTypeDVBS2:   "DVB-S2",
	TunerTypeASI:     "ASI",
	TunerTypeIPTV:    "IPTV",
	TunerTypeAnalog:  "Analog",
}

// String implements fmt.Stringer.
func (t TunerType) String() string {
	if s, ok := tunerTypeNames[t]; ok {
		return s
	}
	return tunerTypeNames[TunerTypeUnknown]
}

// ParseTunerType returns the tuner type named by s. Both display names
// ("DVB-T") and card type names ("ofdm", "dvbt") are accepted.
func ParseTunerType(s string) TunerType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "atsc", "8vsb":
		return TunerTypeATSC
	case "dvb-t", "dvbt", "ofdm":
		return TunerTypeDVBT
	case "dvb-t2", "dvbt2":
		return TunerTypeDVBT2
	case "dvb-c", "dvbc", "qam":
		return TunerTypeDVBC
	case "dvb-s", "dvbs", "dvbs1", "qpsk":
		return TunerTypeDVBS1
	case "dvb-s2", "dvbs2":
		return TunerTypeDVBS2
	case "asi":
		return TunerTypeASI
	case "iptv", "freebox":
		return TunerTypeIPTV
	case "analog", "v4l", "ntsc", "pal":
		return TunerTypeAnalog
	}
	return TunerTypeUnknown
}

// IsSatellite reports whether t is a satellite delivery system.
func (t TunerType) IsSatellite() bool {
	return t == TunerTypeDVBS1 || t == TunerTypeDVBS2
}

// Service information standard tags. A transport is tagged with the
// standard whose tables it is expected to carry; channels are tagged with
// the standard of the tables they were last described by.
const (
	SIStandardATSC      = "atsc"
	SIStandardDVB       = "dvb"
	SIStandardMPEG      = "mpeg"
	SIStandardNTSC      = "ntsc"
	SIStandardSCTE      = "scte"
	SIStandardOpenCable = "opencable"
	SIStandardAnalog    = "analog"
	SIStandardIPTV      = "iptv"
	SIStandardMPTS      = "mpts"
)

// SIStandardFor returns the SI standard tag used for transports of the
// given frequency table standard, e.g. "dvbt" → "dvb".
func SIStandardFor(std string) string {
	switch strings.ToLower(std) {
	case "atsc":
		return SIStandardATSC
	case "analog", "ntsc", "pal":
		return SIStandardAnalog
	case "mpeg", "iptv":
		return SIStandardMPEG
	}
	return SIStandardDVB
}

// Modulation systems.
const (
	ModSysATSC  = "ATSC"
	ModSysDVBT  = "DVB-T"
	ModSysDVBT2 = "DVB-T2"
	ModSysDVBC  = "DVB-C/A"
	ModSysDVBS  = "DVB-S"
	ModSysDVBS2 = "DVB-S2"
)
