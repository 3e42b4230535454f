/*
NAME
  tables.go

DESCRIPTION
  tables.go provides decoded MPEG-2, ATSC and DVB service information tables
  as delivered by a stream table decoder.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package si provides decoded broadcast service information tables and
// descriptors, and the interface used to deliver them.
package si

// Well known PIDs.
const (
	PIDPAT = 0x0000
	PIDNIT = 0x0010
	PIDSDT = 0x0011

	// PIDFreesatSI carries the Freesat BAT and SDT other tables.
	PIDFreesatSI = 0x0f01

	// PIDATSCBase carries the ATSC MGT and VCTs.
	PIDATSCBase = 0x1ffb

	// PIDSCTEHint is the PID program 0 of an OpenCable PAT points to.
	PIDSCTEHint = 0x1ffc
)

// Stream types of interest.
const (
	StreamOpenCableVideo = 0x80
)

// ATSC modulation modes and service types.
const (
	ModulationAnalog = 0x01

	ATSCServiceAnalogTV  = 0x01
	ATSCServiceDigitalTV = 0x02
	ATSCServiceAudio     = 0x03
	ATSCServiceData      = 0x04
)

// Program is a program entry of a PAT.
type Program struct {
	Number uint16
	PID    uint16
}

// PAT is one section of a program association table.
type PAT struct {
	TSID        uint16
	Version     byte
	Section     byte
	LastSection byte
	Programs    []Program
}

// Stream is an elementary stream entry of a PMT.
type Stream struct {
	Type        byte
	PID         uint16
	Descriptors []Descriptor
}

// PMT is a program map table.
type PMT struct {
	ProgramNumber uint16
	Version       byte
	PCRPID        uint16
	Descriptors   []Descriptor
	Streams       []Stream
}

// IsEncrypted reports whether the program or any of its streams carries a
// conditional access descriptor.
func (p *PMT) IsEncrypted() bool {
	if Find(p.Descriptors, TagCA) != nil {
		return true
	}
	for _, s := range p.Streams {
		if Find(s.Descriptors, TagCA) != nil {
			return true
		}
	}
	return false
}

// Registrations returns the format identifiers of the program level
// registration descriptors.
func (p *PMT) Registrations() []string {
	var r []string
	for _, d := range p.Descriptors {
		if reg, ok := d.(Registration); ok {
			r = append(r, reg.Format)
		}
	}
	return r
}

// PIDs returns the elementary stream PIDs of the program.
func (p *PMT) PIDs() []uint16 {
	pids := make([]uint16, 0, len(p.Streams))
	for _, s := range p.Streams {
		pids = append(pids, s.PID)
	}
	return pids
}

// MGT table types naming the virtual channel tables in force.
const (
	MGTTypeTVCT = 0x0000
	MGTTypeCVCT = 0x0002
)

// MGTTable is one table entry of an ATSC master guide table.
type MGTTable struct {
	Type    uint16
	PID     uint16
	Version byte
}

// MGT is an ATSC master guide table.
type MGT struct {
	Version byte
	Tables  []MGTTable
}

// VirtualChannel is a channel entry of an ATSC virtual channel table.
type VirtualChannel struct {
	ShortName        string
	ExtendedName     string
	Major            uint16
	Minor            uint16
	ModulationMode   byte
	ProgramNumber    uint16
	ChannelTSID      uint16
	AccessControlled bool
	Hidden           bool
	HiddenInGuide    bool
	ServiceType      byte
	SourceID         uint16
}

// VCT is one section of an ATSC cable or terrestrial virtual channel table.
type VCT struct {
	Cable       bool
	TSID        uint16
	Version     byte
	Section     byte
	LastSection byte
	Channels    []VirtualChannel
}

// NITTransport is a transport stream entry of a NIT.
type NITTransport struct {
	TSID        uint16
	ONID        uint16
	Descriptors []Descriptor
}

// NIT is one section of a DVB network information table.
type NIT struct {
	NetworkID   uint16
	Version     byte
	Section     byte
	LastSection byte
	Descriptors []Descriptor
	Transports  []NITTransport
}

// SDTService is a service entry of an SDT.
type SDTService struct {
	ServiceID           uint16
	EITSchedule         bool
	EITPresentFollowing bool
	RunningStatus       byte
	FreeCAMode          bool
	Descriptors         []Descriptor
}

// Service returns the service descriptor of s, if present.
func (s SDTService) Service() (Service, bool) {
	d, ok := Find(s.Descriptors, TagService).(Service)
	return d, ok
}

// SDT is one section of a DVB service description table.
type SDT struct {
	TSID        uint16
	ONID        uint16
	Version     byte
	Section     byte
	LastSection byte
	Services    []SDTService
}

// BATTransport is a transport stream entry of a BAT.
type BATTransport struct {
	TSID        uint16
	ONID        uint16
	Descriptors []Descriptor
}

// BAT is one section of a DVB bouquet association table.
type BAT struct {
	BouquetID   uint16
	Version     byte
	Section     byte
	LastSection byte
	Descriptors []Descriptor
	Transports  []BATTransport
}

// Listener receives tables as a stream table decoder sees them. Calls may
// arrive from any goroutine.
type Listener interface {
	HandlePAT(pat *PAT)
	HandlePMT(pmt *PMT)
	HandleMGT(mgt *MGT)
	HandleVCT(pid uint16, vct *VCT)
	HandleNIT(nit *NIT)
	HandleSDT(tsid uint16, sdt *SDT)
	HandleSDTOther(tsid uint16, sdt *SDT)
	HandleBAT(bat *BAT)
	HandleEncryptionStatus(program uint16, encrypted bool)
}
