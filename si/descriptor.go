/*
NAME
  descriptor.go

DESCRIPTION
  descriptor.go provides decoded MPEG, ATSC and DVB descriptors carried in
  broadcast service information tables.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package si

import "strings"

// Descriptor tags.
const (
	TagRegistration         = 0x05
	TagCA                   = 0x09
	TagServiceList          = 0x41
	TagSatelliteDelivery    = 0x43
	TagCableDelivery        = 0x44
	TagService              = 0x48
	TagTerrestrialDelivery  = 0x5a
	TagPrivateDataSpecifier = 0x5f
	TagDefaultAuthority     = 0x73

	// Private descriptors, only meaningful after the right private data specifier.
	TagLogicalChannel = 0x83
	TagHDSimulcast    = 0x88
	TagSkyLCN         = 0xb1
	TagFreesatLCN     = 0xd3
)

// Private data specifier values.
const (
	PrivateDataBSB1 = 0x00000002
	PrivateDataFSAT = 0x46534154
)

// Original network IDs that get special treatment during a scan.
const (
	NetworkSES2    = 0x0002
	NetworkBBC     = 0x003b
	NetworkTelenor = 0x0046
	NetworkNozema  = 0x2210
	NetworkERT     = 65330
)

// RegionUndefined is the region ID of Freesat and Sky channel numbers that
// apply to every region.
const RegionUndefined = 0xffff

// DVB service types.
const (
	ServiceTypeDigitalTV        = 0x01
	ServiceTypeDigitalRadio     = 0x02
	ServiceTypeAdvancedRadio    = 0x0a
	ServiceTypeMPEG2HD          = 0x11
	ServiceTypeAdvancedSD       = 0x16
	ServiceTypeAdvancedHD       = 0x19
	ServiceTypeHEVC             = 0x1f
	ServiceTypeDataBroadcast    = 0x0c
	ServiceTypeNVODTimeShifted  = 0x05
	ServiceTypeNVODReference    = 0x04
	ServiceTypeMosaic           = 0x06
	ServiceTypeAdvancedMosaicSD = 0x17
)

// Descriptor is a decoded descriptor.
type Descriptor interface {
	Tag() byte
}

// Raw is a descriptor that has not been decoded further.
type Raw struct {
	ID   byte
	Data []byte
}

func (d Raw) Tag() byte { return d.ID }

// CA is a conditional access descriptor.
type CA struct {
	SystemID uint16
	PID      uint16
}

func (CA) Tag() byte { return TagCA }

// Registration is a registration descriptor holding a format identifier,
// e.g. "CUEI" or "SCTE".
type Registration struct {
	Format string
}

func (Registration) Tag() byte { return TagRegistration }

// Service is a DVB service descriptor.
type Service struct {
	Type      byte
	Provider  string
	Name      string
	ShortName string
}

func (Service) Tag() byte { return TagService }

// Callsign returns the short form of the service name, or the full name
// when no short form is broadcast.
func (s Service) Callsign() string {
	if strings.TrimSpace(s.ShortName) != "" {
		return s.ShortName
	}
	return s.Name
}

// IsDTV reports whether the service carries television.
func (s Service) IsDTV() bool {
	switch s.Type {
	case ServiceTypeDigitalTV, ServiceTypeMPEG2HD, ServiceTypeAdvancedSD,
		ServiceTypeAdvancedHD, ServiceTypeHEVC, ServiceTypeNVODTimeShifted,
		ServiceTypeNVODReference, ServiceTypeMosaic, ServiceTypeAdvancedMosaicSD:
		return true
	}
	return false
}

// IsDigitalAudio reports whether the service is a radio service.
func (s Service) IsDigitalAudio() bool {
	return s.Type == ServiceTypeDigitalRadio || s.Type == ServiceTypeAdvancedRadio
}

// DefaultAuthority is a TV-Anytime default authority descriptor.
type DefaultAuthority struct {
	Authority string
}

func (DefaultAuthority) Tag() byte { return TagDefaultAuthority }

// ListedService is one entry of a service list descriptor.
type ListedService struct {
	ServiceID uint16
	Type      byte
}

// ServiceList is a service list descriptor.
type ServiceList struct {
	Services []ListedService
}

func (ServiceList) Tag() byte { return TagServiceList }

// LCNEntry maps a service to a logical channel number.
type LCNEntry struct {
	ServiceID uint16
	LCN       uint16
	Visible   bool
}

// LogicalChannel is the UK/EACEM logical channel descriptor.
type LogicalChannel struct {
	Entries []LCNEntry
}

func (LogicalChannel) Tag() byte { return TagLogicalChannel }

// HDSimulcast is the HD simulcast logical channel descriptor.
type HDSimulcast struct {
	Entries []LCNEntry
}

func (HDSimulcast) Tag() byte { return TagHDSimulcast }

// PrivateDataSpecifier scopes the private descriptors that follow it.
type PrivateDataSpecifier struct {
	Specifier uint32
}

func (PrivateDataSpecifier) Tag() byte { return TagPrivateDataSpecifier }

// RegionLCN is a logical channel number valid in one region.
type RegionLCN struct {
	RegionID uint16
	LCN      uint16
}

// FreesatService lists the channel numbers of one Freesat service.
type FreesatService struct {
	ServiceID uint16
	Channels  []RegionLCN
}

// FreesatLCN is the Freesat logical channel number table descriptor.
type FreesatLCN struct {
	Services []FreesatService
}

func (FreesatLCN) Tag() byte { return TagFreesatLCN }

// SkyService is one service of a Sky channel number descriptor.
type SkyService struct {
	ServiceID uint16
	LCN       uint16
}

// SkyLCN is the BSkyB logical channel number descriptor. All of its entries
// belong to one region.
type SkyLCN struct {
	RegionID uint16
	Services []SkyService
}

func (SkyLCN) Tag() byte { return TagSkyLCN }

// TerrestrialDelivery is a DVB-T terrestrial delivery system descriptor.
type TerrestrialDelivery struct {
	Frequency        uint64 // Hz.
	Bandwidth        string // "8", "7", "6" or "5" (MHz).
	Constellation    string // "qpsk", "qam_16" or "qam_64".
	Hierarchy        string
	CodeRateHP       string
	CodeRateLP       string
	GuardInterval    string
	TransmissionMode string
}

func (TerrestrialDelivery) Tag() byte { return TagTerrestrialDelivery }

// CableDelivery is a DVB-C cable delivery system descriptor.
type CableDelivery struct {
	Frequency  uint64 // Hz.
	Modulation string
	SymbolRate uint64
	FECInner   string
}

func (CableDelivery) Tag() byte { return TagCableDelivery }

// SatelliteDelivery is a DVB-S satellite delivery system descriptor.
type SatelliteDelivery struct {
	Frequency    uint64 // Hz.
	Polarization string // "h", "v", "l" or "r".
	Modulation   string
	ModSys       string // "DVB-S" or "DVB-S2".
	Rolloff      string
	SymbolRate   uint64
	FECInner     string
}

func (SatelliteDelivery) Tag() byte { return TagSatelliteDelivery }

// Find returns the first descriptor in descs with the given tag, or nil.
func Find(descs []Descriptor, tag byte) Descriptor {
	for _, d := range descs {
		if d.Tag() == tag {
			return d
		}
	}
	return nil
}

// FindPrivate returns every descriptor with the given tag that is in the
// scope of the given private data specifier.
func FindPrivate(descs []Descriptor, tag byte, specifier uint32) []Descriptor {
	var (
		pds uint32
		out []Descriptor
	)
	for _, d := range descs {
		if p, ok := d.(PrivateDataSpecifier); ok {
			pds = p.Specifier
			continue
		}
		if d.Tag() == tag && pds == specifier {
			out = append(out, d)
		}
	}
	return out
}
