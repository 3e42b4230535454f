/*
NAME
  handlers.go

DESCRIPTION
  handlers.go implements si.Listener for Scanner, taking note of each table
  as it arrives and checking whether the current transport is complete.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import (
	"github.com/ausocean/dtvscan/si"
)

// HandlePAT listens for the PMTs the PAT names.
func (s *Scanner) HandlePAT(pat *si.PAT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got program association table", "transport", s.currentName(), "tsid", pat.TSID, "section", pat.Section)
	for _, p := range pat.Programs {
		if p.Number != 0 && p.PID != 0 {
			s.sd.AddListeningPID(p.PID)
		}
	}
}

// HandlePMT notes encrypted programs for decryption testing.
func (s *Scanner) HandlePMT(pmt *si.PMT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got program map table", "transport", s.currentName(), "program", pmt.ProgramNumber)
	if !s.testing && pmt.IsEncrypted() {
		s.markUnknown(pmt.ProgramNumber)
	}
}

func (s *Scanner) HandleMGT(mgt *si.MGT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got master guide table", "transport", s.currentName(), "tables", len(mgt.Tables))
	s.updateChannelInfo(true)
}

func (s *Scanner) HandleVCT(pid uint16, vct *si.VCT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got virtual channel table", "transport", s.currentName(), "pid", pid, "cable", vct.Cable, "channels", len(vct.Channels))
	for _, c := range vct.Channels {
		if s.testing {
			break
		}
		if c.AccessControlled {
			s.markUnknown(c.ProgramNumber)
		}
	}
	s.updateChannelInfo(true)
}

func (s *Scanner) HandleNIT(nit *si.NIT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got network information table", "transport", s.currentName(), "network", nit.NetworkID, "section", nit.Section, "last", nit.LastSection)
	s.updateChannelInfo(true)
}

// HandleSDT notes the transport as scanned and, on the Astra 28.2E
// platforms, starts looking for the Freesat BAT and SDT other tables.
func (s *Scanner) HandleSDT(tsid uint16, sdt *si.SDT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got service description table", "transport", s.currentName(), "tsid", sdt.TSID, "section", sdt.Section, "last", sdt.LastSection)

	if !s.setOtherTables && (sdt.ONID == si.NetworkSES2 || sdt.ONID == si.NetworkBBC) {
		s.sd.SetFreesatAdditionalSI(true)
		s.setOtherTables = true
		s.otherTableTime = s.elapsed() + otherTableTimeout
		s.log.Info("looking for additional freesat service information", "onid", sdt.ONID)
	}

	// Until the other tables have come round, have the SDT delivered again.
	if s.elapsed() < s.otherTableTime {
		s.sd.SetVersionSDT(sdt.TSID, -1)
	}

	s.tsScanned[uint32(sdt.ONID)<<16|uint32(sdt.TSID)] = true

	for _, svc := range sdt.Services {
		if s.testing {
			break
		}
		if svc.FreeCAMode {
			s.markUnknown(svc.ServiceID)
		}
	}
	s.updateChannelInfo(true)
}

// HandleSDTOther records default authorities of services on other
// transports.
func (s *Scanner) HandleSDTOther(tsid uint16, sdt *si.SDT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got service description table for other transport", "tsid", tsid, "section", sdt.Section, "last", sdt.LastSection)
	if s.setOtherTables {
		s.otherTableTime = s.elapsed() + otherTableTimeout
	}

	for _, svc := range sdt.Services {
		da, ok := si.Find(svc.Descriptors, si.TagDefaultAuthority).(si.DefaultAuthority)
		if !ok {
			continue
		}
		s.log.Debug("found default authority in other sdt", "authority", da.Authority, "onid", sdt.ONID, "tsid", tsid, "sid", svc.ServiceID)
		s.defAuthorities[authorityKey(sdt.ONID, tsid, svc.ServiceID)] = da.Authority
	}
}

// HandleBAT records default authorities given for whole transports. These
// do not replace authorities already known.
func (s *Scanner) HandleBAT(bat *si.BAT) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("got bouquet association table", "transport", s.currentName(), "bouquet", bat.BouquetID, "section", bat.Section, "last", bat.LastSection)
	if s.setOtherTables {
		s.otherTableTime = s.elapsed() + otherTableTimeout
	}

	for _, t := range bat.Transports {
		da, ok := si.Find(t.Descriptors, si.TagDefaultAuthority).(si.DefaultAuthority)
		if !ok {
			continue
		}
		sl, ok := si.Find(t.Descriptors, si.TagServiceList).(si.ServiceList)
		if !ok {
			continue
		}
		s.log.Debug("found default authority in bat", "authority", da.Authority, "onid", t.ONID, "tsid", t.TSID)
		for _, svc := range sl.Services {
			k := authorityKey(t.ONID, t.TSID, svc.ServiceID)
			if _, ok := s.defAuthorities[k]; !ok {
				s.defAuthorities[k] = da.Authority
			}
		}
	}
	s.updateChannelInfo(true)
}

// HandleEncryptionStatus records the result of a decryption test. A
// program found to be decrypted ends the test early.
func (s *Scanner) HandleEncryptionStatus(program uint16, encrypted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := EncryptionDecrypted
	if encrypted {
		st = EncryptionEncrypted
	}
	s.encStatus[program] = st
	if st == EncryptionDecrypted {
		s.testing = false
	}
	s.updateChannelInfo(true)
}

// markUnknown queues program for decryption testing unless it has already
// been tested on this transport.
func (s *Scanner) markUnknown(program uint16) {
	if s.encChecked[program] {
		return
	}
	s.encStatus[program] = EncryptionUnknown
}

func authorityKey(onid, tsid, sid uint16) uint64 {
	return uint64(onid)<<32 | uint64(tsid)<<16 | uint64(sid)
}
