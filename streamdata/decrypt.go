/*
NAME
  decrypt.go

DESCRIPTION
  decrypt.go provides the decryption test of Cache, which watches the
  transport scrambling control bits of a program's elementary streams.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package streamdata

import (
	"github.com/ausocean/dtvscan/container/mts"
	"github.com/ausocean/dtvscan/si"
)

// scrambledLimit is the number of scrambled payloads seen before a program
// is reported encrypted.
const scrambledLimit = 10

type decryptTest struct {
	program   uint16
	pids      map[uint16]bool
	scrambled int
	reported  bool // Encrypted has been reported.
}

// TestDecryption starts watching the elementary streams of pmt. The first
// clear payload reports the program decrypted and ends the test. After
// repeated scrambled payloads the program is reported encrypted once, and
// watching continues in case descrambling starts late.
func (c *Cache) TestDecryption(pmt *si.PMT) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &decryptTest{program: pmt.ProgramNumber, pids: make(map[uint16]bool)}
	for _, pid := range pmt.PIDs() {
		t.pids[pid] = true
	}
	c.dec = t
}

// StopTestingDecryption ends any running decryption test.
func (c *Cache) StopTestingDecryption() {
	c.mu.Lock()
	c.dec = nil
	c.mu.Unlock()
}

// packet inspects an elementary stream packet and returns the listener
// event it causes, if any, and whether the test is over.
func (t *decryptTest) packet(pkt []byte) (func(si.Listener), bool) {
	if _, err := mts.Payload(pkt); err != nil {
		return nil, false
	}
	prog := t.program
	if !mts.Scrambled(pkt) {
		return func(l si.Listener) { l.HandleEncryptionStatus(prog, false) }, true
	}
	t.scrambled++
	if t.scrambled < scrambledLimit || t.reported {
		return nil, false
	}
	t.reported = true
	return func(l si.Listener) { l.HandleEncryptionStatus(prog, true) }, false
}
