/*
NAME
  psi.go

DESCRIPTION
  psi.go provides encoding of program specific information sections and
  access to the fields of encoded sections.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi provides encoding and decoding of MPEG-TS program specific
// information sections.
package psi

import (
	"errors"

	"github.com/Comcast/gots/psi"
)

// MaxSectionLen is the largest section_length of a private section.
const MaxSectionLen = 4093

// Lengths of section definitions.
const (
	ESSDataLen = 5
	DescDefLen = 2
	PMTDefLen  = 4
	PATLen     = 4
	TSSDefLen  = 5
	PSIDefLen  = 3
)

// Table Type IDs.
const (
	PATID = 0x00
	PMTID = 0x02
)

// CRC hash size.
const crcSize = 4

// Consts relating to syntax section.
const (
	SyntaxSecLenIdx1  = 2
	SyntaxSecLenIdx2  = 3
	SyntaxSecLenMask1 = 0x0f
	TableIDExtIdx     = 4
	VersionIdx        = 6
	SectionIdx        = 7
	LastSectionIdx    = 8
)

// Consts relating to PMT fields, as indices into a PSI with its pointer field.
const (
	PCRPIDIdx           = 9
	ProgramInfoLenIdx1  = 11
	ProgramInfoLenIdx2  = 12
	ProgramInfoLenMask1 = 0x03
)

// DescriptorsIdx is the index that the descriptors start at.
const DescriptorsIdx = ProgramInfoLenIdx2 + 1

// Errors returned when decoding sections.
var (
	ErrShortSection = errors.New("section shorter than its header")
	ErrNotPMT       = errors.New("section is not a pmt")
	ErrBadCRC       = errors.New("section crc mismatch")
)

// NewPATPSI returns a PAT PSI with the given transport stream ID and programs.
func NewPATPSI(tsid uint16, version byte, programs ...PATEntry) *PSI {
	return &PSI{
		TableID:         PATID,
		SyntaxIndicator: true,
		SyntaxSection: &SyntaxSection{
			TableIDExt:   tsid,
			Version:      version,
			CurrentNext:  true,
			SpecificData: &PAT{Programs: programs},
		},
	}
}

// NewPMTPSI returns a PMT PSI for the given program.
func NewPMTPSI(program uint16, version byte, pmt *PMT) *PSI {
	return &PSI{
		TableID:         PMTID,
		SyntaxIndicator: true,
		SyntaxSection: &SyntaxSection{
			TableIDExt:   program,
			Version:      version,
			CurrentNext:  true,
			SpecificData: pmt,
		},
	}
}

// PSIBytes is an encoded section, beginning with its pointer field.
type PSIBytes []byte

// Program specific information. The section length is derived from the
// syntax section when encoding.
type PSI struct {
	PointerField    byte           // Point field
	TableID         byte           // Table ID
	SyntaxIndicator bool           // Section syntax indicator (1 for PAT, PMT, CAT)
	PrivateBit      bool           // Private bit (0 for PAT, PMT, CAT)
	SyntaxSection   *SyntaxSection // Table syntax section
}

// Table syntax section
type SyntaxSection struct {
	TableIDExt   uint16       // Table ID extension
	Version      byte         // Version number
	CurrentNext  bool         // Current/next indicator
	Section      byte         // Section number
	LastSection  byte         // Last section number
	SpecificData SpecificData // Specific data PAT/PMT
}

// Specific Data, (could be PAT or PMT)
type SpecificData interface {
	Bytes() []byte
}

// PATEntry is one program of a PAT.
type PATEntry struct {
	Program       uint16 // Program Number
	ProgramMapPID uint16 // Program map PID
}

// Program association table, implements SpecificData
type PAT struct {
	Programs []PATEntry
}

// Program mapping table, implements SpecificData
type PMT struct {
	ProgramClockPID uint16               // Program clock reference PID.
	Descriptors     []Descriptor         // Program descriptors.
	Streams         []StreamSpecificData // Elementary stream specific data.
}

// Elementary stream specific data
type StreamSpecificData struct {
	StreamType  byte         // Stream type.
	PID         uint16       // Elementary PID.
	Descriptors []Descriptor // Elementary stream desriptors
}

// Descriptor
type Descriptor struct {
	Tag  byte   // Descriptor tag
	Data []byte // Descriptor data
}

// Bytes outputs a byte slice representation of the PSI, including the
// pointer field and CRC.
func (p *PSI) Bytes() []byte {
	if p.PointerField != 0 {
		panic("No support for pointer filler bytes")
	}
	syn := p.SyntaxSection.Bytes()
	secLen := len(syn) + crcSize
	out := make([]byte, 4, 4+secLen)
	out[0] = p.PointerField
	out[1] = p.TableID
	out[2] = asByte(p.SyntaxIndicator)<<7 | asByte(p.PrivateBit)<<6 | 0x30 | (SyntaxSecLenMask1 & byte(secLen>>8))
	out[3] = byte(secLen)
	out = append(out, syn...)
	return AddCRC(out)
}

// Bytes outputs a byte slice representation of the SyntaxSection
func (t *SyntaxSection) Bytes() []byte {
	out := make([]byte, TSSDefLen)
	out[0] = byte(t.TableIDExt >> 8)
	out[1] = byte(t.TableIDExt)
	out[2] = 0xc0 | (0x3e & (t.Version << 1)) | (0x01 & asByte(t.CurrentNext))
	out[3] = t.Section
	out[4] = t.LastSection
	out = append(out, t.SpecificData.Bytes()...)
	return out
}

// Bytes outputs a byte slice representation of the PAT
func (p *PAT) Bytes() []byte {
	out := make([]byte, 0, PATLen*len(p.Programs))
	for _, e := range p.Programs {
		out = append(out,
			byte(e.Program>>8),
			byte(e.Program),
			0xe0|(0x1f&byte(e.ProgramMapPID>>8)),
			byte(e.ProgramMapPID),
		)
	}
	return out
}

// Bytes outputs a byte slice representation of the PMT
func (p *PMT) Bytes() []byte {
	descs := descriptorBytes(p.Descriptors)
	out := make([]byte, PMTDefLen)
	out[0] = 0xe0 | (0x1f & byte(p.ProgramClockPID>>8))
	out[1] = byte(p.ProgramClockPID)
	out[2] = 0xf0 | (ProgramInfoLenMask1 & byte(len(descs)>>8))
	out[3] = byte(len(descs))
	out = append(out, descs...)
	for i := range p.Streams {
		out = append(out, p.Streams[i].Bytes()...)
	}
	return out
}

// Bytes outputs a byte slice representation of the Desc
func (d *Descriptor) Bytes() []byte {
	out := make([]byte, DescDefLen, DescDefLen+len(d.Data))
	out[0] = d.Tag
	out[1] = byte(len(d.Data))
	return append(out, d.Data...)
}

// Bytes outputs a byte slice representation of the StreamSpecificData
func (e *StreamSpecificData) Bytes() []byte {
	descs := descriptorBytes(e.Descriptors)
	out := make([]byte, ESSDataLen)
	out[0] = e.StreamType
	out[1] = 0xe0 | (0x1f & byte(e.PID>>8))
	out[2] = byte(e.PID)
	out[3] = 0xf0 | (0x03 & byte(len(descs)>>8))
	out[4] = byte(len(descs))
	return append(out, descs...)
}

func descriptorBytes(descs []Descriptor) []byte {
	var out []byte
	for i := range descs {
		out = append(out, descs[i].Bytes()...)
	}
	return out
}

func asByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}

// TableID returns the table ID of the section.
func (p PSIBytes) TableID() byte { return byte(psi.TableID(p)) }

// SectionLen returns the section length of the section.
func (p PSIBytes) SectionLen() int { return int(psi.SectionLength(p)) }

// TableIDExt returns the table ID extension, i.e. the transport stream ID of a
// PAT or the program number of a PMT.
func (p PSIBytes) TableIDExt() uint16 {
	return uint16(p[TableIDExtIdx])<<8 | uint16(p[TableIDExtIdx+1])
}

// Version returns the version number of the section.
func (p PSIBytes) Version() byte { return (p[VersionIdx] >> 1) & 0x1f }

// Section returns the section number.
func (p PSIBytes) Section() byte { return p[SectionIdx] }

// LastSection returns the last section number.
func (p PSIBytes) LastSection() byte { return p[LastSectionIdx] }

// Check returns an error if p is too short for its header or its section
// length, or if its CRC does not match.
func (p PSIBytes) Check() error {
	if len(p) < DescriptorsIdx-4 || len(p) < 1+PSIDefLen+p.SectionLen() {
		return ErrShortSection
	}
	if !CheckCRC(p[1 : 1+PSIDefLen+p.SectionLen()]) {
		return ErrBadCRC
	}
	return nil
}

// PCRPID returns the PCR PID of a PMT.
func (p PSIBytes) PCRPID() uint16 {
	return uint16(p[PCRPIDIdx]&0x1f)<<8 | uint16(p[PCRPIDIdx+1])
}

// Descriptors returns the program descriptors of a PMT.
func (p PSIBytes) Descriptors() ([]Descriptor, error) {
	if p.TableID() != PMTID {
		return nil, ErrNotPMT
	}
	b := p.descriptors()
	var descs []Descriptor
	for i := 0; i+DescDefLen <= len(b); i += DescDefLen + int(b[i+1]) {
		end := i + DescDefLen + int(b[i+1])
		if end > len(b) {
			return descs, ErrShortSection
		}
		descs = append(descs, Descriptor{Tag: b[i], Data: b[i+DescDefLen : end]})
	}
	return descs, nil
}

// descriptors returns the descriptors in a psi if they exist, otherwise
// a nil slice is returned.
func (p *PSIBytes) descriptors() []byte {
	end := DescriptorsIdx + p.ProgramInfoLen()
	if len(*p) < end || p.ProgramInfoLen() == 0 {
		return nil
	}
	return (*p)[DescriptorsIdx:end]
}

// ProgramInfoLen returns the program info length of a PSI.
func (p *PSIBytes) ProgramInfoLen() int {
	if len(*p) < DescriptorsIdx {
		return 0
	}
	return int((*p)[ProgramInfoLenIdx1]&ProgramInfoLenMask1)<<8 | int((*p)[ProgramInfoLenIdx2])
}
