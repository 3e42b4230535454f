/*
NAME
  entry.go

DESCRIPTION
  entry.go provides the ways of starting a scan, each of which builds the
  transport list from a different source.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/freqtable"
)

// prepare readies a new session unless a scan is running. It must be
// called with the lock held.
func (s *Scanner) prepare(ctx context.Context, sourceID uint, op string) bool {
	if s.scanning {
		s.log.Warning("scan already in progress", "operation", op)
		return false
	}
	s.resetSession(ctx, sourceID)
	return true
}

// ScanExistingTransports scans the multiplexes stored for a video source.
// With followNIT, transports named in NITs are scanned too. It fails if any
// multiplex of the source cannot be read.
func (s *Scanner) ScanExistingTransports(ctx context.Context, sourceID uint, followNIT bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepare(ctx, sourceID, "existing transports") {
		return false
	}

	ids, err := s.db.MplexIDs(ctx, sourceID)
	if err != nil {
		s.log.Error("could not read multiplexes", "source", sourceID, "error", err.Error())
		return false
	}
	if len(ids) == 0 {
		s.log.Error("unable to find any transports", "source", sourceID)
		return false
	}

	items := make([]*TransportScanItem, 0, len(ids))
	for _, id := range ids {
		item, ok := s.multiplexItem(ctx, id)
		if !ok {
			return false
		}
		items = append(items, item)
	}
	s.list.Append(items...)
	return s.begin(followNIT)
}

// ScanTransports scans the channels of the frequency tables matching std,
// modulation and country. When start or end name a channel, the scan
// starts or ends with it.
func (s *Scanner) ScanTransports(ctx context.Context, sourceID uint, std, modulation, country, start, end string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepare(ctx, sourceID, "frequency table") {
		return false
	}

	tables := freqtable.Matching(std, modulation, country)
	if len(tables) == 0 {
		msg := fmt.Sprintf("No freq table for (%s, %s, %s) found", std, modulation, country)
		s.ui.ScanAppendTextToLog(msg)
		s.log.Warning(msg)
	}
	s.log.Info("looked up frequency tables", "standard", std, "modulation", modulation, "country", country, "tables", len(tables))

	siStd := dtv.SIStandardFor(std)
list:
	for _, t := range tables {
		for _, c := range t.Channels() {
			if start == "" || c.Name == start {
				start = ""
				item := &TransportScanItem{
					SourceID:     sourceID,
					FriendlyName: c.Name,
					FriendlyNum:  c.Number,
					Tuning: dtv.Multiplex{
						Frequency:  c.Frequency,
						SymbolRate: t.SymbolRate,
						Bandwidth:  t.Bandwidth,
						Modulation: t.Modulation,
						SIStandard: siStd,
					},
					TuneTimeout: s.signalTimeout,
					Offsets:     t.Offsets,
				}
				s.list.Append(item)
				s.log.Debug("adding transport", "transport", item.String())
			}
			if end != "" && c.Name == end {
				break list
			}
		}
	}
	return s.begin(true)
}

// ScanForChannels scans an explicit list of transports, each with the
// channels it should carry. The tuner type named by cardType fills in the
// modulation system of transports that give none.
func (s *Scanner) ScanForChannels(ctx context.Context, sourceID uint, std, cardType string, transports []dtv.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepare(ctx, sourceID, "channel list") {
		return false
	}

	tt := dtv.ParseTunerType(cardType)
	for i, t := range transports {
		m := t.Multiplex
		m.SIStandard = std
		if m.ModSys == "" {
			m.ModSys = modSysFor(tt)
		}
		item := &TransportScanItem{
			SourceID:         sourceID,
			FriendlyName:     strconv.Itoa(i),
			Tuning:           m,
			ExpectedChannels: t.Channels,
			TuneTimeout:      s.signalTimeout,
		}
		s.list.Append(item)
		s.log.Debug("adding transport", "transport", item.String())
	}
	if s.list.Len() == 0 {
		s.log.Error("no transports to scan for channels")
		return false
	}
	return s.begin(false)
}

func modSysFor(t dtv.TunerType) string {
	switch t {
	case dtv.TunerTypeATSC:
		return dtv.ModSysATSC
	case dtv.TunerTypeDVBT:
		return dtv.ModSysDVBT
	case dtv.TunerTypeDVBT2:
		return dtv.ModSysDVBT2
	case dtv.TunerTypeDVBC:
		return dtv.ModSysDVBC
	case dtv.TunerTypeDVBS1:
		return dtv.ModSysDVBS
	case dtv.TunerTypeDVBS2:
		return dtv.ModSysDVBS2
	}
	return ""
}

// ScanIPTVChannels scans the streams of an IPTV channel map, in channel
// number order.
func (s *Scanner) ScanIPTVChannels(ctx context.Context, sourceID uint, channels map[string]dtv.IPTVChannel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepare(ctx, sourceID, "iptv") {
		return false
	}

	keys := make([]string, 0, len(channels))
	for k := range channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		c := channels[k]
		item := &TransportScanItem{
			SourceID:     sourceID,
			FriendlyName: strconv.Itoa(i),
			Tuning:       dtv.Multiplex{SIStandard: dtv.SIStandardIPTV},
			IPTVTuning:   c.Tuning,
			IPTVChannel:  k,
			TuneTimeout:  s.signalTimeout,
		}
		if c.ProgramNumber != 0 {
			item.ExpectedChannels = []dtv.ChannelInfo{{Name: c.Name, ServiceID: c.ProgramNumber}}
		}
		s.list.Append(item)
		s.log.Debug("adding iptv channel", "channel", k, "url", c.Tuning.DataURL)
	}
	if s.list.Len() == 0 {
		s.log.Error("no iptv channels to scan")
		return false
	}
	return s.begin(false)
}

// ScanTransportsStartingOn scans the transport described by start, and
// every transport its NIT leads to. start must hold the keys "std" and
// "type" along with the tuning parameters of the tuner type.
func (s *Scanner) ScanTransportsStartingOn(ctx context.Context, sourceID uint, start map[string]string) bool {
	std, ok := start["std"]
	if !ok {
		return false
	}
	typ, ok := start["type"]
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepare(ctx, sourceID, "starting transport") {
		return false
	}

	siStd := dtv.SIStandardDVB
	if strings.EqualFold(std, dtv.SIStandardATSC) {
		siStd = dtv.SIStandardATSC
	}

	tt := dtv.ParseTunerType(typ)
	m, err := dtv.ParseTuningParams(tt, start)
	if err != nil {
		s.log.Error("could not parse starting transport", "type", typ, "error", err.Error())
		return false
	}
	m.SIStandard = siStd

	s.list.Append(&TransportScanItem{
		SourceID:     sourceID,
		FriendlyName: "Frequency " + start["frequency"],
		Tuning:       m,
		TuneTimeout:  s.signalTimeout,
	})
	return s.begin(true)
}

// ScanTransport scans one stored multiplex.
func (s *Scanner) ScanTransport(ctx context.Context, mplexID uint, followNIT bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		s.log.Warning("scan already in progress", "operation", "transport")
		return false
	}

	src, _, err := s.db.Multiplex(ctx, mplexID)
	if err != nil {
		s.log.Error("could not read multiplex", "mplexid", mplexID, "error", err.Error())
		return false
	}
	s.resetSession(ctx, src)

	item, ok := s.multiplexItem(ctx, mplexID)
	if !ok {
		return false
	}
	s.list.Append(item)
	return s.begin(followNIT)
}

// tunedChannel is a Channel that can report what it is tuned to.
type tunedChannel interface {
	Tuned() (dtv.Multiplex, bool)
}

// ScanCurrentTransport scans the transport the tuner is already on,
// waiting longer than usual for a signal.
func (s *Scanner) ScanCurrentTransport(ctx context.Context, sourceID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepare(ctx, sourceID, "current transport") {
		return false
	}

	s.signalTimeout = currentTransportTimeout
	item := &TransportScanItem{
		SourceID:    sourceID,
		TuneTimeout: s.signalTimeout,
	}
	if tc, ok := s.ch.(tunedChannel); ok {
		if m, ok := tc.Tuned(); ok {
			item.Tuning = m
		}
	}
	item.Tuning.SIStandard = s.ch.SIStandard()
	s.list.Append(item)
	return s.begin(false)
}

// multiplexItem returns the transport of a stored multiplex. It must be
// called with the lock held.
func (s *Scanner) multiplexItem(ctx context.Context, mplexID uint) (*TransportScanItem, bool) {
	src, m, err := s.db.Multiplex(ctx, mplexID)
	if err != nil {
		s.log.Error("failed to locate multiplex", "mplexid", mplexID, "error", err.Error())
		return nil, false
	}

	name := fmt.Sprintf("Multiplex #%d", mplexID)
	if m.TransportID != 0 {
		name = fmt.Sprintf("Transport ID %d", m.TransportID)
	}
	tt := dtv.TunerTypeUnknown
	if strings.EqualFold(m.Modulation, "8vsb") {
		name = freqtable.ATSCName(m.Frequency)
		tt = dtv.TunerTypeATSC
	}
	tt = s.guessTunerType(tt)

	if !m.Valid(tt) {
		s.log.Warning("not adding incomplete transport", "name", name, "tunertype", tt.String())
		return nil, false
	}
	s.log.Info("adding transport", "name", name, "mplexid", mplexID)
	return &TransportScanItem{
		SourceID:     src,
		MplexID:      mplexID,
		FriendlyName: name,
		Tuning:       m,
		TuneTimeout:  s.signalTimeout,
	}, true
}
