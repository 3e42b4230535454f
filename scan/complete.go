/*
NAME
  complete.go

DESCRIPTION
  complete.go decides when the tables of the transport being scanned are
  complete and, once they are, files them in the channel list and moves the
  scan on.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import (
	"fmt"
	"sort"

	"github.com/ausocean/dtvscan/dtv"
)

// updateChannelInfo collects the tables cached for the current transport
// and reports whether the transport is done with. When wait is false the
// tables are taken as they are and the transport is treated as complete,
// unless a decryption test is still to run. It must be called with the
// lock held.
func (s *Scanner) updateChannelInfo(wait bool) bool {
	if s.current.IsEnd() {
		return true
	}
	if wait && !s.waiting {
		return true
	}
	if wait && s.testing {
		return false
	}

	if s.info == nil {
		s.info = newScannedChannelInfo()
	}
	info := s.info
	sd := s.sd

	complete := true

	// MPEG.
	pats := sd.CachedPATs()
	checked := make(map[uint16]bool)
	for _, pat := range pats {
		if checked[pat.TSID] {
			continue
		}
		checked[pat.TSID] = true
		if _, ok := info.PATs[pat.TSID]; ok {
			continue
		}
		if !wait || sd.HasCachedAllPAT(pat.TSID) {
			info.PATs[pat.TSID] = sd.CachedPATSections(pat.TSID)
			// A new PAT may name programs whose PMTs were not yet in.
			info.PMTs = nil
		} else {
			complete = false
		}
	}
	complete = complete && len(pats) != 0

	if (!wait || sd.HasCachedAllPMTs()) && len(info.PMTs) == 0 {
		info.PMTs = sd.CachedPMTs()
	}

	// ATSC.
	if info.MGT == nil && sd.HasCachedMGT() {
		info.MGT = sd.CachedMGT()
	}
	if (!wait || sd.HasCachedAllCVCTs()) && len(info.CVCTs) == 0 {
		info.CVCTs = sd.CachedCVCTs()
	}
	if (!wait || sd.HasCachedAllTVCTs()) && len(info.TVCTs) == 0 {
		info.TVCTs = sd.CachedTVCTs()
	}

	// DVB. The NIT and BAT are taken again while other tables may still
	// be coming round.
	if (!wait || sd.HasCachedAllNIT()) && (len(info.NITs) == 0 || s.elapsed() > s.otherTableTime) {
		info.NITs = sd.CachedNIT()
	}
	checked = make(map[uint16]bool)
	for _, sdt := range sd.CachedSDTs() {
		if checked[sdt.TSID] {
			continue
		}
		checked[sdt.TSID] = true
		if _, ok := info.SDTs[sdt.TSID]; ok {
			continue
		}
		if !wait || sd.HasCachedAllSDT(sdt.TSID) {
			info.SDTs[sdt.TSID] = sd.CachedSDTSections(sdt.TSID)
		}
	}
	if (!wait || sd.HasCachedAllBATs()) && (len(info.BATs) == 0 || s.elapsed() > s.otherTableTime) {
		info.BATs = sd.CachedBATs()
	}

	if complete {
		complete = len(info.PMTs) != 0
		if sd.HasCachedMGT() || sd.HasCachedAnyVCTs() {
			complete = complete && sd.HasCachedMGT() && (len(info.TVCTs) != 0 || len(info.CVCTs) != 0)
		}
		if sd.HasCachedAnyNIT() || sd.HasCachedAnySDTs() {
			complete = complete && len(info.NITs) != 0 && len(info.SDTs) != 0
		}
		if sd.HasCachedAnyBATs() {
			complete = complete && len(info.BATs) != 0
		}
		// With additional SI on, the other tables come round on a carousel
		// and each arrival extends the wait.
		if s.setOtherTables && s.elapsed() <= s.otherTableTime {
			complete = false
		}
	}
	if !wait {
		complete = true
	}
	if !complete {
		return false
	}
	s.log.Debug("transport tables complete", "transport", s.currentName(), "wait", wait,
		"pmts", len(info.PMTs), "nits", len(info.NITs), "sdts", len(info.SDTs), "bats", len(info.BATs))

	if len(s.encStatus) != 0 {
		if s.testNextProgramEncryption() {
			return false
		}
		for _, pnum := range sortedPrograms(s.encStatus) {
			st := s.encStatus[pnum]
			info.EncryptionStatus[pnum] = st
			if s.testDecryption {
				s.ui.ScanAppendTextToLog(fmt.Sprintf("Program %d, %s", pnum, st))
			}
			s.log.Info("program decryption status", "program", pnum, "status", st.String())
		}
	}

	if s.extend && len(info.NITs) != 0 {
		for _, nit := range info.NITs {
			s.updateScanTransports(nit)
		}
	}

	name, count := s.currentTransportInfo()
	s.channelsFound += count

	if !info.IsEmpty() {
		item := s.current.Item()
		s.log.Info("adding transport to channel list", "transport", item.Tuning.String(), "offset", s.current.Offset())

		// Keep the frequency that worked.
		item.Tuning.Frequency = item.FrequencyAt(s.current.Offset())
		if s.tunerType == dtv.TunerTypeDVBT2 {
			if s.dvbt2Tried {
				item.Tuning.ModSys = dtv.ModSysDVBT2
			} else {
				item.Tuning.ModSys = dtv.ModSysDVBT
			}
		}
		s.channelList = append(s.channelList, ChannelListItem{Transport: *item, Offset: s.current.Offset(), Info: info})
	}
	s.info = nil

	var msg string
	switch {
	case s.hasTimedOut():
		if count != 0 {
			msg = fmt.Sprintf("%s -- Timed out, %d possible channels", name, count)
		} else {
			msg = fmt.Sprintf("%s -- Timed out, no channels", name)
		}
	case s.elapsed() > s.current.Item().TuneTimeout && !s.mon.HasSignalLock():
		msg = fmt.Sprintf("%s -- Timed out, no signal", name)
	default:
		msg = fmt.Sprintf("%s -- Found %d probable channels", name, count)
	}
	s.ui.ScanAppendTextToLog(msg)
	s.log.Info(msg)

	s.encStatus = make(map[uint16]EncryptionStatus)
	s.encChecked = make(map[uint16]bool)
	s.setOtherTables = false
	s.otherTableTime = 0

	if s.scanning {
		s.transportsScanned++
		s.updatePercent()
		s.waiting = false
		s.next = s.current.NextTransport()
		s.dvbt2Tried = true
	} else {
		s.ui.ScanPercentComplete(100)
		s.ui.ScanComplete()
	}
	return true
}

// hasTimedOut reports whether the scanner should stop waiting on the
// current transport. It must be called with the lock held.
func (s *Scanner) hasTimedOut() bool {
	if s.testing && s.elapsed() > decryptionTimeout {
		s.testing = false
		return true
	}
	if !s.waiting {
		// An analog transport is given until its tune timeout to lock.
		if item := s.current.Item(); s.analogWait && item != nil {
			return s.elapsed() > item.TuneTimeout
		}
		return true
	}

	// Wait for a moving rotor to stop before timing the tables.
	if s.ch != nil && s.ch.Rotor() != nil {
		if rm := s.mon.Rotor(); rm != nil {
			was, is := rm.RotorStatus()
			if was && !is {
				s.restartTimer()
				return false
			}
		}
	}

	el := s.elapsed()
	if el > s.channelTimeout {
		// The channel timeout alone holds only until some tables are seen.
		sd := s.sd
		switch {
		case sd.HasCachedAnyNIT() || sd.HasCachedAnySDTs():
			return el > dvbTableTimeout
		case sd.HasCachedMGT() || sd.HasCachedAnyVCTs():
			return el > atscTableTimeout
		case sd.HasCachedAnyPAT() || sd.HasCachedAnyPMTs():
			return el > mpegTableTimeout
		}
		return true
	}

	item := s.current.Item()
	if item != nil && el > item.TuneTimeout && !s.mon.HasSignalLock() {
		// Signal lost after tables were seen is not a time out.
		return !s.seenAnyTables()
	}
	return false
}

func (s *Scanner) seenAnyTables() bool {
	sd := s.sd
	return sd.HasCachedAnyPAT() || sd.HasCachedAnyPMTs() || sd.HasCachedMGT() ||
		sd.HasCachedAnyVCTs() || sd.HasCachedAnyNIT() || sd.HasCachedAnySDTs()
}

// currentTransportInfo returns the name of the current transport and the
// number of services seen on it so far.
func (s *Scanner) currentTransportInfo() (string, int) {
	if s.current.IsEnd() {
		return "", 0
	}
	var n int
	if s.info != nil {
		for _, c := range s.buildChannels(s.current.Item(), s.info) {
			if c.InPAT || c.InPMT || c.InSDT || c.InVCT {
				n++
			}
		}
	}
	return s.currentName(), n
}

// CurrentTransportInfo returns the name of the transport being scanned and
// the number of services seen on it so far.
func (s *Scanner) CurrentTransportInfo() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTransportInfo()
}

// currentName returns the friendly name of the current transport and
// offset, or "" at End.
func (s *Scanner) currentName() string {
	return cursorName(s.current)
}

func cursorName(c Cursor) string {
	item := c.Item()
	if item == nil {
		return ""
	}
	if c.Offset() != 0 {
		return fmt.Sprintf("%s offset %d", item.FriendlyName, c.Offset())
	}
	return item.FriendlyName
}

func sortedPrograms[T any](m map[uint16]T) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
