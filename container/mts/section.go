/*
NAME
  section.go

DESCRIPTION
  section.go provides reassembly of PSI sections that span one or more
  MPEG-TS packets.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import "github.com/ausocean/dtvscan/container/mts/psi"

// Assembler collects the payloads of packets on PSI PIDs and returns
// complete sections. A discontinuity in a PID's continuity counter discards
// the partial section being collected on that PID.
type Assembler struct {
	parts map[uint16][]byte // Partial sections, by PID.
	expCC map[uint16]int    // Expected continuity counter, by PID.
}

// NewAssembler returns a new Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		parts: make(map[uint16][]byte),
		expCC: make(map[uint16]int),
	}
}

// Reset discards all partial sections and continuity state.
func (a *Assembler) Reset() {
	a.parts = make(map[uint16][]byte)
	a.expCC = make(map[uint16]int)
}

// Push adds a packet and returns the sections it completes. Each returned
// section is prefixed with a zero pointer field so that it can be handed to
// the psi package and gots decoders directly.
func (a *Assembler) Push(p []byte) ([][]byte, error) {
	pid, err := PID(p)
	if err != nil {
		return nil, err
	}
	payload, err := Payload(p)
	if err != nil {
		return nil, nil
	}

	cc := int(CC(p))
	if exp, ok := a.expCC[pid]; ok && exp != cc {
		delete(a.parts, pid)
	}
	a.expCC[pid] = (cc + 1) & 0x0f

	var done [][]byte
	if !PUSI(p) {
		part, ok := a.parts[pid]
		if !ok {
			return nil, nil
		}
		part = append(part, payload...)
		if s, ok := complete(part); ok {
			done = append(done, s)
			delete(a.parts, pid)
		} else {
			a.parts[pid] = part
		}
		return done, nil
	}

	ptr := int(payload[0])
	if 1+ptr > len(payload) {
		delete(a.parts, pid)
		return nil, nil
	}
	if part, ok := a.parts[pid]; ok {
		part = append(part, payload[1:1+ptr]...)
		if s, ok := complete(part); ok {
			done = append(done, s)
		}
		delete(a.parts, pid)
	}

	rest := payload[1+ptr:]
	for len(rest) >= psi.PSIDefLen && rest[0] != 0xff {
		l := int(rest[1]&psi.SyntaxSecLenMask1)<<8 | int(rest[2])
		if l > psi.MaxSectionLen {
			// Corrupt header; nothing after it can be trusted.
			break
		}
		n := psi.PSIDefLen + l
		if n > len(rest) {
			a.parts[pid] = append([]byte{0}, rest...)
			break
		}
		done = append(done, append([]byte{0}, rest[:n]...))
		rest = rest[n:]
	}
	return done, nil
}

// complete returns the section held in part, which begins with a pointer
// field, if all of it has arrived.
func complete(part []byte) ([]byte, bool) {
	if len(part) < 1+psi.PSIDefLen {
		return nil, false
	}
	n := 1 + psi.PSIDefLen + (int(part[2]&psi.SyntaxSecLenMask1)<<8 | int(part[3]))
	if len(part) < n {
		return nil, false
	}
	return part[:n], true
}
