/*
NAME
  freqtable.go

DESCRIPTION
  freqtable.go provides broadcast frequency tables by standard, modulation
  and country, from which candidate transports for a scan are generated.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package freqtable provides broadcast frequency tables.
package freqtable

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// CountryAll matches tables for any country.
const CountryAll = "all"

// Table is a run of equally spaced channels.
type Table struct {
	Standard   string // "atsc", "dvbt", "dvbc", ...
	Modulation string // "8vsb", "ofdm", "qam_256", ...
	Country    string // ISO 3166 code in lower case, or CountryAll.

	NameFormat string // Channel name; "%d" is replaced by the channel number.
	NameOffset int    // Number of the first channel.

	Start, End, Step uint64 // Centre frequencies in Hz.

	// Offsets are alternative frequency offsets in Hz also tried for each
	// channel, for transmitters that are not on the nominal frequency.
	Offsets []int64

	Bandwidth  string
	SymbolRate uint64
}

// Channel is one channel of a Table.
type Channel struct {
	Name      string
	Number    int
	Frequency uint64
}

// Channels returns every channel of t in frequency order.
func (t Table) Channels() []Channel {
	var chans []Channel
	num := t.NameOffset
	for f := t.Start; f <= t.End; f += t.Step {
		chans = append(chans, Channel{Name: t.name(num), Number: num, Frequency: f})
		num++
		if t.Step == 0 {
			break
		}
	}
	return chans
}

func (t Table) name(num int) string {
	if strings.Contains(t.NameFormat, "%") {
		return fmt.Sprintf(t.NameFormat, num)
	}
	return t.NameFormat
}

// tables is ordered so that the tables of one standard, modulation and
// country are in frequency order.
var tables = []Table{
	// ATSC, United States broadcast.
	{Standard: "atsc", Modulation: "8vsb", Country: "us", NameFormat: "ATSC Channel %d", NameOffset: 2, Start: 57000000, End: 69000000, Step: 6000000},
	{Standard: "atsc", Modulation: "8vsb", Country: "us", NameFormat: "ATSC Channel %d", NameOffset: 5, Start: 79000000, End: 85000000, Step: 6000000},
	{Standard: "atsc", Modulation: "8vsb", Country: "us", NameFormat: "ATSC Channel %d", NameOffset: 7, Start: 177000000, End: 213000000, Step: 6000000},
	{Standard: "atsc", Modulation: "8vsb", Country: "us", NameFormat: "ATSC Channel %d", NameOffset: 14, Start: 473000000, End: 695000000, Step: 6000000},

	// DVB-T, United Kingdom.
	{Standard: "dvbt", Modulation: "ofdm", Country: "gb", NameFormat: "UHF %d", NameOffset: 21, Start: 474000000, End: 698000000, Step: 8000000, Offsets: []int64{-166670, 166670}, Bandwidth: "8"},

	// DVB-T, Germany.
	{Standard: "dvbt", Modulation: "ofdm", Country: "de", NameFormat: "VHF %d", NameOffset: 5, Start: 177500000, End: 226500000, Step: 7000000, Bandwidth: "7"},
	{Standard: "dvbt", Modulation: "ofdm", Country: "de", NameFormat: "UHF %d", NameOffset: 21, Start: 474000000, End: 698000000, Step: 8000000, Bandwidth: "8"},

	// DVB-T, Australia.
	{Standard: "dvbt", Modulation: "ofdm", Country: "au", NameFormat: "VHF %d", NameOffset: 6, Start: 177500000, End: 226500000, Step: 7000000, Offsets: []int64{125000}, Bandwidth: "7"},
	{Standard: "dvbt", Modulation: "ofdm", Country: "au", NameFormat: "UHF %d", NameOffset: 28, Start: 529500000, End: 816500000, Step: 7000000, Offsets: []int64{125000}, Bandwidth: "7"},

	// DVB-C, any country.
	{Standard: "dvbc", Modulation: "qam_64", Country: CountryAll, NameFormat: "Cable %d", NameOffset: 1, Start: 114000000, End: 858000000, Step: 8000000, SymbolRate: 6900000},
	{Standard: "dvbc", Modulation: "qam_256", Country: CountryAll, NameFormat: "Cable %d", NameOffset: 1, Start: 114000000, End: 858000000, Step: 8000000, SymbolRate: 6900000},
}

// Matching returns the tables for a standard, modulation and country.
// Matching is case insensitive; tables for CountryAll match any country.
func Matching(std, modulation, country string) []Table {
	std, modulation, country = strings.ToLower(std), strings.ToLower(modulation), strings.ToLower(country)
	if country == "uk" {
		country = "gb"
	}
	var out []Table
	for _, t := range tables {
		if t.Standard != std || t.Modulation != modulation {
			continue
		}
		if t.Country != country && t.Country != CountryAll {
			continue
		}
		out = append(out, t)
	}
	return out
}

// atscTolerance is how far from a channel's centre a frequency may be and
// still be named after it.
const atscTolerance = 200000

// ATSCChannel returns the United States broadcast channel number of the
// 8VSB transport at frequency f in Hz.
func ATSCChannel(f uint64) (int, bool) {
	for _, t := range Matching("atsc", "8vsb", "us") {
		for _, c := range t.Channels() {
			if c.Frequency+atscTolerance >= f && f+atscTolerance >= c.Frequency {
				return c.Number, true
			}
		}
	}
	return 0, false
}

// ATSCName returns the friendly name of the 8VSB transport at frequency f,
// e.g. "ATSC Channel 14", or "<f> Hz" when f is not a broadcast channel.
func ATSCName(f uint64) string {
	if n, ok := ATSCChannel(f); ok {
		return "ATSC Channel " + strconv.Itoa(n)
	}
	return fmt.Sprintf("ATSC Channel %d Hz", f)
}

// Frequency returns f in Hz in human readable form, e.g. "474 MHz".
func Frequency(f uint64) string {
	return humanize.SIWithDigits(float64(f), 3, "Hz")
}
