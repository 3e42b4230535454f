/*
NAME
  info.go

DESCRIPTION
  info.go provides the tables collected for the transport being scanned and
  the channel records built from them.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import (
	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/si"
)

// EncryptionStatus is the result of testing whether a program can be
// descrambled.
type EncryptionStatus int

const (
	EncryptionUnknown EncryptionStatus = iota
	EncryptionDecrypted
	EncryptionEncrypted
)

func (e EncryptionStatus) String() string {
	switch e {
	case EncryptionDecrypted:
		return "Decrypted"
	case EncryptionEncrypted:
		return "Encrypted"
	}
	return "Unknown decryption status"
}

// MarshalYAML implements yaml.Marshaler.
func (e EncryptionStatus) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

// ScannedChannelInfo holds the tables collected on one transport.
type ScannedChannelInfo struct {
	PATs  map[uint16][]*si.PAT // By TSID.
	PMTs  []*si.PMT
	MGT   *si.MGT
	CVCTs []*si.VCT
	TVCTs []*si.VCT
	NITs  []*si.NIT
	SDTs  map[uint16][]*si.SDT // By TSID.
	BATs  []*si.BAT

	// EncryptionStatus holds the decryption test result by program number.
	EncryptionStatus map[uint16]EncryptionStatus
}

func newScannedChannelInfo() *ScannedChannelInfo {
	return &ScannedChannelInfo{
		PATs:             make(map[uint16][]*si.PAT),
		SDTs:             make(map[uint16][]*si.SDT),
		EncryptionStatus: make(map[uint16]EncryptionStatus),
	}
}

// IsEmpty reports whether no tables have been collected.
func (i *ScannedChannelInfo) IsEmpty() bool {
	return len(i.PATs) == 0 && len(i.PMTs) == 0 && i.MGT == nil &&
		len(i.CVCTs) == 0 && len(i.TVCTs) == 0 && len(i.NITs) == 0 &&
		len(i.SDTs) == 0 && len(i.BATs) == 0
}

// ChannelListItem is a transport that finished scanning with its tables.
type ChannelListItem struct {
	Transport TransportScanItem // Copy made when the transport finished.
	Offset    int
	Info      *ScannedChannelInfo
}

// ChannelInsertInfo is everything learned about one service, ready to be
// stored as a channel.
type ChannelInsertInfo struct {
	SourceID    uint   `yaml:"sourceid"`
	MplexID     uint   `yaml:"mplexid,omitempty"`
	ServiceID   uint16 `yaml:"serviceid"`
	SIStandard  string `yaml:"sistandard"`
	Format      string `yaml:"format,omitempty"`
	Callsign    string `yaml:"callsign"`
	ServiceName string `yaml:"name"`
	ChanNum     string `yaml:"channum"`
	FreqID      string `yaml:"freqid,omitempty"`
	ServiceType byte   `yaml:"servicetype,omitempty"`

	ATSCMajor uint16 `yaml:"atsc_major,omitempty"`
	ATSCMinor uint16 `yaml:"atsc_minor,omitempty"`

	UseOnAirGuide bool `yaml:"useonairguide"`
	Hidden        bool `yaml:"hidden"`
	HiddenInGuide bool `yaml:"hidden_in_guide"`

	PATTSID     uint16 `yaml:"pat_tsid,omitempty"`
	VCTTSID     uint16 `yaml:"vct_tsid,omitempty"`
	VCTChanTSID uint16 `yaml:"vct_chan_tsid,omitempty"`
	SDTTSID     uint16 `yaml:"sdt_tsid,omitempty"`
	OrigNetID   uint16 `yaml:"orig_netid,omitempty"`
	NetID       uint16 `yaml:"netid,omitempty"`

	DefaultAuthority string `yaml:"default_authority,omitempty"`

	IsEncrypted      bool             `yaml:"encrypted"`
	IsDataService    bool             `yaml:"data,omitempty"`
	IsAudioService   bool             `yaml:"audio,omitempty"`
	DecryptionStatus EncryptionStatus `yaml:"decryption"`
	CouldBeOpenCable bool             `yaml:"opencable,omitempty"`

	InChannelsConf bool `yaml:"in_channels_conf,omitempty"`
	InPAT          bool `yaml:"in_pat,omitempty"`
	InPMT          bool `yaml:"in_pmt,omitempty"`
	InVCT          bool `yaml:"in_vct,omitempty"`
	InNIT          bool `yaml:"in_nit,omitempty"`
	InSDT          bool `yaml:"in_sdt,omitempty"`
}

// ScanDTVTransport is a scanned transport and the channels found on it.
type ScanDTVTransport struct {
	Tuning     dtv.Multiplex       `yaml:"tuning"`
	TunerType  dtv.TunerType       `yaml:"-"`
	IPTVTuning dtv.IPTVTuning      `yaml:"iptv,omitempty"`
	MplexID    uint                `yaml:"mplexid,omitempty"`
	Channels   []ChannelInsertInfo `yaml:"channels"`
}
