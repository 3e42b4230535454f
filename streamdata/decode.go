/*
NAME
  decode.go

DESCRIPTION
  decode.go provides the MPEG-TS input side of Cache: packets are split by
  PID, PAT and PMT sections are reassembled and decoded, and elementary
  stream packets feed any running decryption test.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package streamdata

import (
	"encoding/binary"
	"fmt"

	"github.com/ausocean/dtvscan/container/mts"
	"github.com/ausocean/dtvscan/container/mts/psi"
	"github.com/ausocean/dtvscan/si"
)

// Write implements io.Writer. p holds MPEG-TS packets; a packet split
// across calls is joined with the next call. Data before a sync byte is
// skipped. Write never returns an error for malformed sections, which are
// logged and dropped.
func (c *Cache) Write(p []byte) (int, error) {
	var events []func(si.Listener)

	c.mu.Lock()
	d := p
	if len(c.rem) != 0 {
		d = append(c.rem, p...)
		c.rem = nil
	}
	for len(d) >= mts.PacketSize {
		if d[0] != mts.SyncByte {
			d = d[1:]
			continue
		}
		events = append(events, c.packet(d[:mts.PacketSize])...)
		d = d[mts.PacketSize:]
	}
	if len(d) != 0 {
		c.rem = append([]byte(nil), d...)
	}
	c.mu.Unlock()

	for _, e := range events {
		c.notify(e)
	}
	return len(p), nil
}

// packet handles one packet and returns the listener events it causes.
// It must be called with the lock held.
func (c *Cache) packet(pkt []byte) []func(si.Listener) {
	pid, err := mts.PID(pkt)
	if err != nil {
		return nil
	}

	if c.dec != nil && c.dec.pids[pid] {
		e, done := c.dec.packet(pkt)
		if done {
			c.dec = nil
		}
		if e != nil {
			return []func(si.Listener){e}
		}
		return nil
	}

	if pid != mts.PatPid && !c.listening[pid] {
		return nil
	}
	secs, err := c.asm.Push(pkt)
	if err != nil {
		c.log.Debug("could not reassemble section", "pid", pid, "error", err.Error())
		return nil
	}

	var events []func(si.Listener)
	for _, s := range secs {
		e, err := c.section(pid, s)
		if err != nil {
			c.log.Debug("dropping section", "pid", pid, "error", err.Error())
			continue
		}
		if e != nil {
			events = append(events, e)
		}
	}
	return events
}

// section decodes and caches one section. It returns the listener event for
// a new table, or nil for a repeat.
func (c *Cache) section(pid uint16, s []byte) (func(si.Listener), error) {
	b := psi.PSIBytes(s)
	if err := b.Check(); err != nil {
		return nil, err
	}
	switch {
	case pid == mts.PatPid && b.TableID() == psi.PATID:
		pat, err := decodePAT(b)
		if err != nil {
			return nil, err
		}
		if !add(c.pats, pat.TSID, pat.Version, pat.Section, pat.LastSection, pat) {
			return nil, nil
		}
		return func(l si.Listener) { l.HandlePAT(pat) }, nil

	case b.TableID() == psi.PMTID:
		pmt, err := decodePMT(b)
		if err != nil {
			return nil, err
		}
		if old, ok := c.pmts[pmt.ProgramNumber]; ok && old.Version == pmt.Version {
			return nil, nil
		}
		c.pmts[pmt.ProgramNumber] = pmt
		return func(l si.Listener) { l.HandlePMT(pmt) }, nil

	default:
		return nil, fmt.Errorf("unexpected table id %#x", b.TableID())
	}
}

// decodePAT decodes a PAT section, which begins with its pointer field.
func decodePAT(b psi.PSIBytes) (*si.PAT, error) {
	progs, err := mts.Programs(b)
	if err != nil {
		return nil, fmt.Errorf("could not decode pat: %w", err)
	}
	pat := &si.PAT{
		TSID:        b.TableIDExt(),
		Version:     b.Version(),
		Section:     b.Section(),
		LastSection: b.LastSection(),
	}
	for _, n := range sortedKeys(progs) {
		if n == 0 {
			continue
		}
		pat.Programs = append(pat.Programs, si.Program{Number: n, PID: progs[n]})
	}

	// Program 0 is taken from the section itself; OpenCable uses it as a hint.
	body := b[psi.TableIDExtIdx+psi.TSSDefLen : 1+psi.PSIDefLen+b.SectionLen()-4]
	for i := 0; i+psi.PATLen <= len(body); i += psi.PATLen {
		if binary.BigEndian.Uint16(body[i:]) == 0 {
			pid := binary.BigEndian.Uint16(body[i+2:]) & 0x1fff
			pat.Programs = append([]si.Program{{Number: 0, PID: pid}}, pat.Programs...)
			break
		}
	}
	return pat, nil
}

// decodePMT decodes a PMT section, which begins with its pointer field.
// CA and registration descriptors are decoded; others are kept raw.
func decodePMT(b psi.PSIBytes) (*si.PMT, error) {
	streams, err := mts.Streams(b)
	if err != nil {
		return nil, fmt.Errorf("could not decode pmt: %w", err)
	}
	descs, err := b.Descriptors()
	if err != nil {
		return nil, fmt.Errorf("could not decode pmt descriptors: %w", err)
	}
	pmt := &si.PMT{
		ProgramNumber: b.TableIDExt(),
		Version:       b.Version(),
		PCRPID:        b.PCRPID(),
	}
	for _, d := range descs {
		pmt.Descriptors = append(pmt.Descriptors, descriptor(d))
	}
	for _, es := range streams {
		st := si.Stream{Type: byte(es.StreamType()), PID: uint16(es.ElementaryPid())}
		for _, d := range es.Descriptors() {
			st.Descriptors = append(st.Descriptors, si.Raw{ID: byte(d.Tag())})
		}
		pmt.Streams = append(pmt.Streams, st)
	}
	return pmt, nil
}

func descriptor(d psi.Descriptor) si.Descriptor {
	switch {
	case d.Tag == si.TagCA && len(d.Data) >= 4:
		return si.CA{
			SystemID: binary.BigEndian.Uint16(d.Data),
			PID:      binary.BigEndian.Uint16(d.Data[2:]) & 0x1fff,
		}
	case d.Tag == si.TagRegistration && len(d.Data) >= 4:
		return si.Registration{Format: string(d.Data[:4])}
	default:
		return si.Raw{ID: d.Tag, Data: d.Data}
	}
}
