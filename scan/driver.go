/*
NAME
  driver.go

DESCRIPTION
  driver.go provides the scan driver: a goroutine that polls the scanner,
  moving it through the transport list as each transport completes or
  times out, and the tuning of each transport.

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
	"strings"
	"time"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/store"
)

// StartScanner starts the scan driver. A driver that is already running
// is stopped first.
func (s *Scanner) StartScanner() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.stopDriver()
	s.exit = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.exit, s.done)
}

// StopScanner stops the scan driver, waiting for it at most the configured
// grace period, and then stops the signal monitor. An unfinished scan is
// abandoned, so a new one may be started.
func (s *Scanner) StopScanner() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.log.Info("stopping scanner")
	s.stopDriver()
	s.mon.Stop()

	s.mu.Lock()
	s.scanning = false
	s.waiting = false
	s.mu.Unlock()
}

// stopDriver must be called with runMu held.
func (s *Scanner) stopDriver() {
	if s.exit == nil {
		return
	}
	close(s.exit)
	select {
	case <-s.done:
	case <-time.After(s.stopGrace):
		s.log.Warning("scan driver did not stop in time", "grace", s.stopGrace)
	}
	s.exit, s.done = nil, nil
}

func (s *Scanner) run(exit, done chan struct{}) {
	defer close(done)
	s.log.Debug("scan driver started", "interval", s.pollInterval)

	t := time.NewTicker(s.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-exit:
			s.log.Debug("scan driver stopped")
			return
		case <-t.C:
			s.handleActiveScan()
		}
	}
}

// handleActiveScan moves the scan on once the current transport is done
// with. It is called on every tick of the scan driver.
func (s *Scanner) handleActiveScan() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		return
	}

	if s.waiting {
		s.updateChannelInfo(true)
	}
	if s.analogWait && s.mon.HasSignalLock() {
		s.handleAllGood(s.ctx)
	}

	doPost := s.waiting
	if !s.hasTimedOut() {
		return
	}

	if s.next.Offset() == 0 && s.next.IsBegin() {
		s.channelList = nil
		s.channelsFound = 0
		s.dvbt2Tried = true
	}

	// Retry a DVB-T transport once as DVB-T2.
	if s.tunerType == dtv.TunerTypeDVBT2 && !s.dvbt2Tried {
		s.dvbt2Tried = true
		s.scanTransport(s.current)
		return
	}

	if s.next.Offset() == 0 && !s.next.IsBegin() {
		if doPost && !s.updateChannelInfo(false) {
			return
		}
		s.mu.Unlock()
		s.mon.Stop()
		s.mu.Lock()
	}

	s.current = s.next
	s.dvbt2Tried = false

	switch {
	case !s.current.IsEnd():
		s.scanTransport(s.current)
		s.next = s.current.Next()

	case len(s.extension) != 0:
		s.current = s.current.Prev()
		s.spliceExtension()
		s.next = s.current.NextTransport()

	default:
		s.log.Info("scan complete", "session", s.id.String(), "transports", s.transportsScanned, "channels", s.channelsFound)
		s.ui.ScanComplete()
		s.scanning = false
		s.current = s.list.End()
		s.next = s.list.End()
	}
}

// spliceExtension appends the transports staged from NITs that have not
// been scanned. It must be called with the lock held.
func (s *Scanner) spliceExtension() {
	ids := make([]uint32, 0, len(s.extension))
	for id := range s.extension {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if s.tsScanned[id] {
			continue
		}
		item := &TransportScanItem{
			SourceID:     s.sourceID,
			FriendlyName: fmt.Sprintf("TransportID %d", id&0xffff),
			Tuning:       s.extension[id],
			TuneTimeout:  s.signalTimeout,
		}
		s.log.Info("adding transport found in nit", "name", item.FriendlyName, "tuning", item.Tuning.String())
		s.list.Append(item)
		s.tsScanned[id] = true
	}
	s.extension = make(map[uint32]dtv.Multiplex)
}

// scanTransport tunes the transport at c and starts waiting for its
// tables. The lock is released while tuning and starting the signal
// monitor. It must be called with the lock held.
func (s *Scanner) scanTransport(c Cursor) {
	item := c.Item()
	if item == nil {
		return
	}
	name := cursorName(c)

	if c.Offset() != 0 && item.FrequencyAt(c.Offset()) == item.FrequencyAt(0) {
		s.waiting = false
		s.analogWait = false
		return
	}

	if s.channelsFound != 0 {
		s.ui.ScanUpdateStatusTitleText(fmt.Sprintf("Found %d", s.channelsFound))
	}
	s.ui.ScanUpdateStatusText(name)
	s.log.Info("tuning transport", "name", name, "mplexid", item.MplexID, "frequency", item.FrequencyAt(c.Offset()))

	s.waiting = false
	s.analogWait = false
	tune := s.tuner(c)
	s.mu.Unlock()
	ok := tune()
	s.mu.Lock()
	if !ok {
		s.updatePercent()
		s.log.Error("failed to tune transport", "name", item.FriendlyName, "mplexid", item.MplexID, "offset", c.Offset())
		return
	}

	s.sd.Reset()
	s.restartTimer()
	s.waiting = item.Tuning.SIStandard != dtv.SIStandardAnalog
	s.analogWait = s.analog && !s.waiting

	s.mu.Unlock()
	s.mon.Start()
	s.mu.Lock()
}

// tuner returns a function that tunes the channel to the transport at c.
// It must be called with the lock held; the returned function must be
// called without it.
func (s *Scanner) tuner(c Cursor) func() bool {
	item := c.Item()
	ch := s.ch
	rotor := func() {
		if r := ch.Rotor(); r != nil {
			r.SetTarget(1.0)
		}
	}

	switch {
	case item.MplexID > 0 && c.Offset() == 0:
		id, input := item.MplexID, s.inputName
		return func() bool {
			rotor()
			return ch.TuneMultiplex(id, input)
		}
	case item.Tuning.SIStandard == dtv.SIStandardIPTV:
		t := item.IPTVTuning
		return func() bool {
			rotor()
			return ch.TuneIPTV(t)
		}
	}

	m := item.Tuning
	m.Frequency = item.FrequencyAt(c.Offset())
	switch s.tunerType {
	case dtv.TunerTypeDVBT:
		m.ModSys = dtv.ModSysDVBT
	case dtv.TunerTypeDVBT2:
		if s.dvbt2Tried {
			m.ModSys = dtv.ModSysDVBT2
		} else {
			m.ModSys = dtv.ModSysDVBT
		}
	}
	return func() bool {
		rotor()
		return ch.Tune(m)
	}
}

// SetAnalog sets whether signal lock on an analog transport is taken as a
// channel found.
func (s *Scanner) SetAnalog(analog bool) {
	s.mu.Lock()
	s.analog = analog
	s.mu.Unlock()
}

// HandleAllGood records a channel for the current analog transport, whose
// signal and picture are good, unless the source already has one with its
// channel number.
func (s *Scanner) HandleAllGood(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleAllGood(ctx)
}

func (s *Scanner) handleAllGood(ctx context.Context) {
	item := s.current.Item()
	if item == nil {
		return
	}
	s.analogWait = false

	// The channel number is the second word of names like "Channel 21".
	name := item.FriendlyName
	freqid := name
	if f := strings.Fields(name); len(f) >= 2 {
		freqid = f[1]
	}

	msg := "Updated Channel " + name
	found, err := s.db.FindChannel(ctx, s.sourceID, freqid)
	if err != nil {
		s.log.Error("could not look up channel", "channum", freqid, "error", err.Error())
	}
	if !found && err == nil {
		id, err := s.db.CreateChannel(ctx, store.Channel{
			SourceID: s.sourceID,
			ChanNum:  freqid,
			Callsign: "unknown-" + freqid,
			FreqID:   freqid,
		})
		if err != nil {
			s.log.Error("could not create channel", "channum", freqid, "error", err.Error())
			msg = "Failed to add channel " + name
		} else {
			s.log.Info("created analog channel", "chanid", id, "channum", freqid)
			msg = "Added Channel " + name
		}
	}
	s.ui.ScanAppendTextToLog(msg)

	if s.scanning {
		s.updatePercent()
		s.waiting = false
		s.next = s.current.NextTransport()
		s.dvbt2Tried = true
	}
}
