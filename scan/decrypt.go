/*
NAME
  decrypt.go

DESCRIPTION
  decrypt.go tests, one program at a time, whether the encrypted programs
  of a transport can be descrambled.

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

	"github.com/ausocean/dtvscan/si"
)

// testNextProgramEncryption starts the decryption test of the lowest
// numbered program not yet tested on this transport. It returns true while
// a test is running, and false once every program has been dealt with.
// With decryption testing off, programs are marked encrypted untested. It
// must be called with the lock held.
func (s *Scanner) testNextProgramEncryption() bool {
	if s.info == nil || len(s.info.PMTs) == 0 {
		s.log.Warning("cannot test decryption, no pmts", "transport", s.currentName())
		s.testing = false
		return false
	}

	for _, pnum := range sortedPrograms(s.encStatus) {
		if s.encChecked[pnum] {
			continue
		}
		s.encChecked[pnum] = true

		if !s.testDecryption {
			s.encStatus[pnum] = EncryptionEncrypted
			continue
		}

		pmt := findPMT(s.info.PMTs, pnum)
		if pmt == nil {
			s.log.Info("cannot test decryption, no pmt", "program", pnum)
			continue
		}

		msg := fmt.Sprintf("%s -- Testing decryption of program %d", s.currentName(), pnum)
		s.ui.ScanAppendTextToLog(msg)
		s.log.Info(msg)

		if sink := s.ch.PMTSink(); sink != nil {
			sink.SetPMT(pmt)
		}
		s.sd.TestDecryption(pmt)
		s.testing = true
		s.restartTimer()
		return true
	}

	s.testing = false
	return false
}

func findPMT(pmts []*si.PMT, program uint16) *si.PMT {
	for _, p := range pmts {
		if p.ProgramNumber == program {
			return p
		}
	}
	return nil
}
