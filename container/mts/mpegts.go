/*
NAME
  mpegts.go - provides a data structure intended to encapsulate the properties
  of an MPEG-TS packet and also functions to read the fields of raw packets.

DESCRIPTION
  See Readme.md

AUTHORS
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mts provides MPEG-TS (mts) packet access, PSI section reassembly
// and packetisation.
package mts

import (
	"fmt"

	gotspsi "github.com/Comcast/gots/psi"
	"github.com/pkg/errors"
)

const PacketSize = 188

// SyncByte starts every MPEG-TS packet.
const SyncByte = 0x47

// Standard program IDs for program specific and service information.
const (
	PatPid  = 0x0000
	CatPid  = 0x0001
	NitPid  = 0x0010
	SdtPid  = 0x0011 // Also carries the BAT.
	NullPid = 0x1fff
)

// HeadSize is the size of an MPEG-TS packet header.
const HeadSize = 4

// Adaptation field control values.
const (
	HasPayload         = 0x1
	HasAdaptationField = 0x2
)

// Errors used by packet accessors.
var (
	ErrInvalidLen = errors.New("MPEG-TS data not of valid length")
	ErrNoSync     = errors.New("packet does not start with sync byte")
	ErrNoPayload  = errors.New("no payload")
)

/*
Packet encapsulates the fields of an MPEG-TS packet needed to carry
sections and scrambled payloads. Below is the formatting of the packet header
for reference!

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | sync byte (0x47)                                              |
----------------------------------------------------------------------------
| octet 1  | TEI   | PUSI  | Prior | PID                                   |
----------------------------------------------------------------------------
| octet 2  | PID cont.                                                     |
----------------------------------------------------------------------------
| octet 3  | TSC           | AFC           | CC                            |
----------------------------------------------------------------------------
| octet 4  | AFL                                                           |
----------------------------------------------------------------------------
| optional | Payload (variable length)                                     |
----------------------------------------------------------------------------
*/
type Packet struct {
	PUSI    bool   // Payload Unit Start Indicator
	PID     uint16 // Packet identifier
	TSC     byte   // Transport Scrambling Control
	AFC     byte   // Adaption Field Control
	CC      byte   // Continuity Counter
	Payload []byte // Mpeg ts Payload
}

// Bytes interprets the fields of the ts packet instance and outputs a
// corresponding byte slice. A payload shorter than the packet is preceded by
// adaptation field stuffing.
func (p *Packet) Bytes(buf []byte) []byte {
	if buf == nil || cap(buf) < PacketSize {
		buf = make([]byte, PacketSize)
	}
	buf = buf[:HeadSize]
	buf[0] = SyncByte
	buf[1] = asByte(p.PUSI)<<6 | byte((p.PID&0x1f00)>>8)
	buf[2] = byte(p.PID & 0x00ff)

	afc := p.AFC
	stuffingLen := PacketSize - HeadSize - len(p.Payload)
	if stuffingLen > 0 {
		afc |= HasAdaptationField
	}
	buf[3] = p.TSC<<6 | afc<<4 | p.CC&0x0f

	if afc&HasAdaptationField != 0 {
		// Adaptation field length excludes the length byte itself.
		buf = append(buf, byte(stuffingLen-1))
		if stuffingLen > 1 {
			buf = append(buf, 0x00)
		}
		for i := 2; i < stuffingLen; i++ {
			buf = append(buf, 0xff)
		}
	}
	return append(buf, p.Payload...)
}

func asByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// PID returns the packet identifier for the given packet.
func PID(p []byte) (uint16, error) {
	if len(p) < PacketSize {
		return 0, ErrInvalidLen
	}
	return uint16(p[1]&0x1f)<<8 | uint16(p[2]), nil
}

// PUSI reports whether the packet starts a payload unit.
func PUSI(p []byte) bool { return p[1]&0x40 != 0 }

// CC returns the continuity counter of the packet.
func CC(p []byte) byte { return p[3] & 0x0f }

// Scrambled reports whether the transport scrambling control bits of the
// packet are set.
func Scrambled(p []byte) bool { return p[3]&0xc0 != 0 }

// Payload returns the payload of an MPEG-TS packet p.
// NB: this is not a copy of the payload in the interests of performance.
func Payload(p []byte) ([]byte, error) {
	if len(p) < PacketSize {
		return nil, ErrInvalidLen
	}
	if p[3]&0x10 == 0 {
		return nil, ErrNoPayload
	}

	// Check if there is an adaptation field.
	off := HeadSize
	if p[3]&0x20 != 0 {
		off += 1 + int(p[4])
	}
	if off >= PacketSize {
		return nil, ErrNoPayload
	}
	return p[off:PacketSize], nil
}

// FindPid will take a clip of MPEG-TS and try to find a packet with given PID - if one
// is found, then it is returned along with its index, otherwise nil, -1 and an error is returned.
func FindPid(d []byte, pid uint16) (pkt []byte, i int, err error) {
	if len(d) < PacketSize {
		return nil, -1, ErrInvalidLen
	}
	for i = 0; i+PacketSize <= len(d); i += PacketSize {
		p := (uint16(d[i+1]&0x1f) << 8) | uint16(d[i+2])
		if p == pid {
			pkt = d[i : i+PacketSize]
			return
		}
	}
	return nil, -1, fmt.Errorf("could not find packet with PID %d", pid)
}

// Programs returns a map of program numbers and corresponding PMT PIDs for a
// given PAT section, which must include its pointer field.
func Programs(section []byte) (map[uint16]uint16, error) {
	pat, err := gotspsi.NewPAT(section)
	if err != nil {
		return nil, err
	}
	// Convert to map[uint16]uint16.
	m := make(map[uint16]uint16)
	for k, v := range pat.ProgramMap() {
		m[uint16(k)] = uint16(v)
	}
	return m, nil
}

// Streams returns elementary streams defined in a given PMT section, which
// must include its pointer field.
func Streams(section []byte) ([]gotspsi.PmtElementaryStream, error) {
	pmt, err := gotspsi.NewPMT(section)
	if err != nil {
		return nil, err
	}
	return pmt.ElementaryStreams(), nil
}

// Packetize splits a section, beginning with its pointer field, into
// MPEG-TS packets on the given PID. cc holds the PID's continuity counter and
// is advanced for each packet.
func Packetize(pid uint16, section []byte, cc *byte) [][]byte {
	const max = PacketSize - HeadSize
	var pkts [][]byte
	for i := 0; i < len(section); i += max {
		end := i + max
		if end > len(section) {
			end = len(section)
		}
		p := Packet{
			PUSI:    i == 0,
			PID:     pid,
			AFC:     HasPayload,
			CC:      *cc,
			Payload: section[i:end],
		}
		pkts = append(pkts, p.Bytes(nil))
		*cc = (*cc + 1) & 0x0f
	}
	return pkts
}
