/*
NAME
  builder.go

DESCRIPTION
  builder.go merges the tables collected on a transport into one channel
  record per service, resolving names, channel numbers and flags from the
  competing sources.

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
	"sort"
	"strconv"
	"strings"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/si"
)

// Registration formats that mark a program as OpenCable.
var openCableFormats = map[string]bool{"CUEI": true, "SCTE": true}

// channelBuilder merges tables into channel records keyed by program
// number.
type channelBuilder struct {
	s      *Scanner
	item   *TransportScanItem
	freqid string
	chans  map[uint16]*ChannelInsertInfo
}

// init returns the record for program pnum, creating it if need be, and
// tags it with standard.
func (b *channelBuilder) init(pnum uint16, standard string) *ChannelInsertInfo {
	c, ok := b.chans[pnum]
	if !ok {
		c = &ChannelInsertInfo{}
		b.chans[pnum] = c
	}
	c.MplexID = b.item.MplexID
	c.SourceID = b.s.sourceID
	c.ServiceID = pnum
	c.FreqID = b.freqid
	c.SIStandard = standard
	return c
}

// buildChannels returns the channel records described by the tables in
// info, which were collected on item. It must be called with the lock
// held.
func (s *Scanner) buildChannels(item *TransportScanItem, info *ScannedChannelInfo) map[uint16]*ChannelInsertInfo {
	b := &channelBuilder{s: s, item: item, chans: make(map[uint16]*ChannelInsertInfo)}
	if item.FriendlyNum != 0 {
		b.freqid = strconv.Itoa(item.FriendlyNum)
	}

	for _, e := range item.ExpectedChannels {
		c := b.init(e.ServiceID, dtv.SIStandardMPEG)
		c.ServiceName = e.Name
		c.InChannelsConf = true
	}

	for _, tsid := range sortedPrograms(info.PATs) {
		for _, pat := range info.PATs[tsid] {
			var openCable bool
			for _, p := range pat.Programs {
				if p.Number == 0 && p.PID == si.PIDSCTEHint {
					openCable = true
				}
			}
			for _, p := range pat.Programs {
				if p.Number == 0 {
					continue
				}
				c := b.init(p.Number, dtv.SIStandardMPEG)
				c.PATTSID = pat.TSID
				c.CouldBeOpenCable = openCable
				c.InPAT = true
			}
		}
	}

	for _, pmt := range info.PMTs {
		c := b.init(pmt.ProgramNumber, dtv.SIStandardMPEG)
		for _, st := range pmt.Streams {
			if st.Type == si.StreamOpenCableVideo {
				c.CouldBeOpenCable = true
			}
		}
		for _, f := range pmt.Registrations() {
			if openCableFormats[f] {
				c.CouldBeOpenCable = true
			}
		}
		c.IsEncrypted = c.IsEncrypted || pmt.IsEncrypted()
		c.InPMT = true
	}

	for _, vcts := range [][]*si.VCT{info.CVCTs, info.TVCTs} {
		for _, vct := range vcts {
			for _, vc := range vct.Channels {
				updateFromVCT(b.init(vc.ProgramNumber, dtv.SIStandardATSC), vct, vc)
			}
		}
	}

	for _, tsid := range sortedPrograms(info.SDTs) {
		for _, sdt := range info.SDTs[tsid] {
			for _, svc := range sdt.Services {
				s.updateFromSDT(b.init(svc.ServiceID, dtv.SIStandardDVB), sdt, svc)
			}
		}
	}

	pnums := sortedPrograms(b.chans)

	// NIT: network IDs and terrestrial channel numbers, by onid<<32|sid.
	ukLCN := make(map[uint64]uint16)
	hdLCN := make(map[uint64]uint16)
	for _, pnum := range pnums {
		c := b.chans[pnum]
		for _, nit := range info.NITs {
			for _, t := range nit.Transports {
				if t.TSID != c.SDTTSID || t.ONID != c.OrigNetID {
					continue
				}
				c.NetID = nit.NetworkID
				c.InNIT = true

				if lc, ok := si.Find(t.Descriptors, si.TagLogicalChannel).(si.LogicalChannel); ok {
					for _, e := range lc.Entries {
						ukLCN[lcnKey(c.OrigNetID, e.ServiceID)] = e.LCN
					}
				}
				if hd, ok := si.Find(t.Descriptors, si.TagHDSimulcast).(si.HDSimulcast); ok {
					for _, e := range hd.Entries {
						hdLCN[lcnKey(c.OrigNetID, e.ServiceID)] = e.LCN
					}
				}
			}
		}
	}

	sidLCN := s.satelliteLCNs(info.BATs)

	for _, pnum := range pnums {
		c := b.chans[pnum]
		if c.ChanNum != "" || item.IPTVChannel == "" {
			continue
		}
		c.ChanNum = item.IPTVChannel
		if c.ServiceID != 0 {
			c.ChanNum += "-" + strconv.Itoa(int(c.ServiceID))
		}
	}

	for _, pnum := range pnums {
		c := b.chans[pnum]
		if c.ChanNum != "" {
			continue
		}
		k := lcnKey(c.OrigNetID, c.ServiceID)
		if n, ok := hdLCN[k]; ok {
			c.ChanNum = strconv.Itoa(int(n))
		} else if n, ok := ukLCN[k]; ok {
			c.ChanNum = strconv.Itoa(int(n))
		} else if n, ok := sidLCN[k]; ok {
			c.ChanNum = strconv.Itoa(int(n))
		}
		s.log.Debug("channel number", "service", c.ServiceID, "channum", c.ChanNum, "callsign", c.Callsign)
	}

	for _, pnum := range pnums {
		c := b.chans[pnum]
		if c.ChanNum != "" {
			continue
		}
		switch c.SIStandard {
		case dtv.SIStandardMPEG, dtv.SIStandardSCTE, dtv.SIStandardOpenCable:
			if c.FreqID == "" {
				c.ChanNum = fmt.Sprintf("%d-%d", c.SourceID, c.ServiceID)
			} else {
				c.ChanNum = fmt.Sprintf("%s-%d", c.FreqID, c.ServiceID)
			}
		}
	}

	for pnum, c := range b.chans {
		c.DecryptionStatus = info.EncryptionStatus[pnum]
	}
	return b.chans
}

func lcnKey(onid, sid uint16) uint64 {
	return uint64(onid)<<32 | uint64(sid)
}

// satelliteLCNs returns the Freesat and Sky channel numbers of the
// selected bouquet and region, by onid<<32|sid. A number given for the
// selected region replaces one given for all regions. When two services
// are given the same number, the last one seen keeps it; a service with
// more than one number gets the lowest.
func (s *Scanner) satelliteLCNs(bats []*si.BAT) map[uint64]uint16 {
	lcnSID := make(map[uint16]uint64)
	set := func(region, lcn uint16, key uint64) {
		switch region {
		case s.regionID:
			lcnSID[lcn] = key
		case si.RegionUndefined:
			if lcnSID[lcn] == 0 {
				lcnSID[lcn] = key
			}
		}
	}

	for _, bat := range bats {
		if bat.BouquetID != s.bouquetID {
			continue
		}
		for _, t := range bat.Transports {
			if t.ONID != si.NetworkSES2 && t.ONID != si.NetworkBBC {
				continue
			}
			for _, d := range si.FindPrivate(t.Descriptors, si.TagFreesatLCN, si.PrivateDataFSAT) {
				fs, ok := d.(si.FreesatLCN)
				if !ok {
					continue
				}
				for _, svc := range fs.Services {
					for _, rl := range svc.Channels {
						set(rl.RegionID, rl.LCN, lcnKey(t.ONID, svc.ServiceID))
					}
				}
			}
			for _, d := range si.FindPrivate(t.Descriptors, si.TagSkyLCN, si.PrivateDataBSB1) {
				sky, ok := d.(si.SkyLCN)
				if !ok {
					continue
				}
				for _, svc := range sky.Services {
					set(sky.RegionID, svc.LCN, lcnKey(t.ONID, svc.ServiceID))
				}
			}
		}
	}

	lcns := make([]uint16, 0, len(lcnSID))
	for lcn := range lcnSID {
		lcns = append(lcns, lcn)
	}
	sort.Slice(lcns, func(i, j int) bool { return lcns[i] > lcns[j] })
	sidLCN := make(map[uint64]uint16)
	for _, lcn := range lcns {
		sidLCN[lcnSID[lcn]] = lcn
	}
	return sidLCN
}

func updateFromVCT(c *ChannelInsertInfo, vct *si.VCT, vc si.VirtualChannel) {
	if vc.ModulationMode == si.ModulationAnalog || vc.ServiceType == si.ATSCServiceAnalogTV {
		c.SIStandard = dtv.SIStandardNTSC
		c.Format = dtv.SIStandardNTSC
	}

	c.Callsign = vc.ShortName
	c.ServiceName = vc.ExtendedName
	if c.ServiceName == "" {
		c.ServiceName = vc.ShortName
	}
	c.ChanNum = ""

	c.ServiceID = vc.ProgramNumber
	c.ATSCMajor = vc.Major
	c.ATSCMinor = vc.Minor

	c.UseOnAirGuide = !vc.Hidden || !vc.HiddenInGuide
	c.Hidden = vc.Hidden
	c.HiddenInGuide = vc.HiddenInGuide

	c.VCTTSID = vct.TSID
	c.VCTChanTSID = vc.ChannelTSID
	c.IsEncrypted = c.IsEncrypted || vc.AccessControlled
	c.IsDataService = vc.ServiceType == si.ATSCServiceData
	c.IsAudioService = vc.ServiceType == si.ATSCServiceAudio

	c.InVCT = true
}

// Networks known to omit the EIT flags of their services.
var forceGuideNetworks = map[uint16]bool{
	si.NetworkTelenor: true,
	si.NetworkERT:     true,
	si.NetworkNozema:  true,
}

func (s *Scanner) updateFromSDT(c *ChannelInsertInfo, sdt *si.SDT, svc si.SDTService) {
	var callsign, name string
	if desc, ok := svc.Service(); ok {
		callsign = desc.ShortName
		if strings.TrimSpace(callsign) == "" {
			callsign = fmt.Sprintf("unknown-%d-%d", sdt.TSID, svc.ServiceID)
		}
		name = desc.Name
		if strings.TrimSpace(name) == "" {
			name = ""
		}
		c.ServiceType = desc.Type
		c.IsDataService = !desc.IsDTV() && !desc.IsDigitalAudio()
		c.IsAudioService = desc.IsDigitalAudio()
	} else {
		s.log.Info("no service descriptor", "onid", sdt.ONID, "tsid", sdt.TSID, "sid", svc.ServiceID)
	}

	if c.Callsign == "" {
		c.Callsign = callsign
	}
	if c.ServiceName == "" {
		c.ServiceName = name
	}

	c.UseOnAirGuide = svc.EITPresentFollowing || svc.EITSchedule || forceGuideNetworks[sdt.ONID]
	c.Hidden = false
	c.HiddenInGuide = false
	c.ServiceID = svc.ServiceID
	c.SDTTSID = sdt.TSID
	c.OrigNetID = sdt.ONID
	c.InSDT = true

	if da, ok := si.Find(svc.Descriptors, si.TagDefaultAuthority).(si.DefaultAuthority); ok {
		s.log.Debug("found default authority in sdt", "authority", da.Authority, "onid", sdt.ONID, "tsid", sdt.TSID, "sid", svc.ServiceID)
		c.DefaultAuthority = da.Authority
		return
	}
	if a, ok := s.defAuthorities[authorityKey(c.OrigNetID, c.SDTTSID, c.ServiceID)]; ok {
		c.DefaultAuthority = a
	}
}

// ChannelList returns the channels found on each scanned transport, in
// program number order. With addFullTS, each transport also gets an MPTS
// channel for recording the whole transport stream.
func (s *Scanner) ChannelList(addFullTS bool) []ScanDTVTransport {
	s.mu.Lock()
	defer s.mu.Unlock()

	tt := s.guessTunerType(dtv.TunerTypeATSC)

	var list []ScanDTVTransport
	for i := range s.channelList {
		it := &s.channelList[i]
		chans := s.buildChannels(&it.Transport, it.Info)
		if len(chans) == 0 {
			continue
		}

		t := ScanDTVTransport{
			Tuning:     it.Transport.Tuning,
			TunerType:  tt,
			IPTVTuning: it.Transport.IPTVTuning,
			MplexID:    it.Transport.MplexID,
		}
		for _, pnum := range sortedPrograms(chans) {
			t.Channels = append(t.Channels, *chans[pnum])
		}
		if addFullTS {
			t.Channels = append(t.Channels, s.mptsChannel(tt, t.Channels[0]))
		}
		list = append(list, t)
	}
	return list
}

// mptsChannel returns a channel for recording a whole transport, made from
// the first channel c of the transport.
func (s *Scanner) mptsChannel(tt dtv.TunerType, c ChannelInsertInfo) ChannelInsertInfo {
	// The transport stream ID stands in for the service ID.
	c.ServiceID = c.SDTTSID
	if c.ServiceID == 0 {
		c.ServiceID = c.PATTSID
	}

	switch {
	case tt == dtv.TunerTypeASI:
		c.Callsign = "MPTS_" + s.ch.Device()
	case c.SIStandard == dtv.SIStandardMPEG || c.SIStandard == dtv.SIStandardSCTE || c.SIStandard == dtv.SIStandardOpenCable:
		c.Callsign = "MPTS_" + c.FreqID
	case c.ATSCMajor > 0:
		c.Callsign = fmt.Sprintf("MPTS_%d", c.ATSCMajor)
	case c.ServiceID > 0:
		c.Callsign = fmt.Sprintf("MPTS_%d", c.ServiceID)
	case c.ChanNum != "":
		c.Callsign = "MPTS_" + c.ChanNum
	default:
		c.Callsign = "MPTS_UNKNOWN"
	}

	c.ServiceName = c.Callsign
	c.ATSCMinor = 0
	c.Format = "MPTS"
	c.UseOnAirGuide = false
	c.IsEncrypted = false
	return c
}

// CheckImportedList reports whether the program serviceID is one of the
// expected channels, and returns the name the list gives it. Every program
// is accepted when nothing is expected.
func (s *Scanner) CheckImportedList(expected []dtv.ChannelInfo, serviceID uint16) (string, bool) {
	if len(expected) == 0 {
		return "", true
	}
	var (
		name  string
		found bool
	)
	for _, e := range expected {
		if e.ServiceID != serviceID {
			continue
		}
		found = true
		if e.Name != "" {
			name = e.Name
		}
	}
	if !found {
		s.ui.ScanAppendTextToLog(fmt.Sprintf("Skipping %d, not in imported channel map", serviceID))
	}
	return name, found
}
