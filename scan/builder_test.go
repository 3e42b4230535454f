/*
NAME
  builder_test.go

DESCRIPTION
  builder_test.go provides testing for turning scanned tables into channel
  records.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/scan/config"
	"github.com/ausocean/dtvscan/si"
)

func build(r *rig, item *TransportScanItem, info *ScannedChannelInfo) map[uint16]*ChannelInsertInfo {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.buildChannels(item, info)
}

func chanNums(chans map[uint16]*ChannelInsertInfo) map[uint16]string {
	m := make(map[uint16]string)
	for pnum, c := range chans {
		m[pnum] = c.ChanNum
	}
	return m
}

func TestChannelNumbers(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	r.s.sourceID = 7

	info := newScannedChannelInfo()
	info.PATs[testTSID] = []*si.PAT{testPAT(testTSID, 1, 2, 3, 4)}
	info.SDTs[testTSID] = []*si.SDT{testSDT(testONID,
		tvService(1, "One", "ONE"),
		tvService(2, "Two", "TWO"),
		tvService(3, "Three", "THREE"),
	)}
	info.NITs = []*si.NIT{testNIT(si.NITTransport{
		TSID: testTSID,
		ONID: testONID,
		Descriptors: []si.Descriptor{
			si.LogicalChannel{Entries: []si.LCNEntry{{ServiceID: 1, LCN: 1, Visible: true}, {ServiceID: 2, LCN: 2, Visible: true}}},
			si.HDSimulcast{Entries: []si.LCNEntry{{ServiceID: 1, LCN: 101, Visible: true}}},
		},
	})}

	tests := []struct {
		name string
		item *TransportScanItem
		want map[uint16]string
	}{
		{
			name: "frequency table",
			item: &TransportScanItem{FriendlyName: "UHF 21", FriendlyNum: 21},
			want: map[uint16]string{1: "101", 2: "2", 3: "", 4: "21-4"},
		},
		{
			name: "no channel number",
			item: &TransportScanItem{FriendlyName: "0"},
			want: map[uint16]string{1: "101", 2: "2", 3: "", 4: "7-4"},
		},
	}
	for _, test := range tests {
		got := chanNums(build(r, test.item, info))
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("unexpected channel numbers for %s (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestSatelliteChannelNumbers(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	r.s.bouquetID = 0x1000
	r.s.regionID = 0x0101

	freesat := si.FreesatLCN{Services: []si.FreesatService{
		{ServiceID: 10, Channels: []si.RegionLCN{{RegionID: si.RegionUndefined, LCN: 101}, {RegionID: 0x0101, LCN: 105}}},
		{ServiceID: 11, Channels: []si.RegionLCN{{RegionID: 0x0101, LCN: 101}}},
		{ServiceID: 12, Channels: []si.RegionLCN{{RegionID: 0x0202, LCN: 102}}},
		{ServiceID: 13, Channels: []si.RegionLCN{{RegionID: 0x0101, LCN: 110}, {RegionID: 0x0101, LCN: 107}}},
	}}
	sky := si.SkyLCN{RegionID: 0x0101, Services: []si.SkyService{{ServiceID: 20, LCN: 120}}}
	bats := []*si.BAT{
		{
			BouquetID: 0x1000,
			Transports: []si.BATTransport{
				{TSID: 2000, ONID: si.NetworkSES2, Descriptors: []si.Descriptor{
					si.PrivateDataSpecifier{Specifier: si.PrivateDataFSAT}, freesat,
					si.PrivateDataSpecifier{Specifier: si.PrivateDataBSB1}, sky,
				}},
				// Neither Astra nor BBC.
				{TSID: 2001, ONID: testONID, Descriptors: []si.Descriptor{
					si.PrivateDataSpecifier{Specifier: si.PrivateDataBSB1},
					si.SkyLCN{RegionID: 0x0101, Services: []si.SkyService{{ServiceID: 30, LCN: 130}}},
				}},
				// Out of the scope of its private data specifier.
				{TSID: 2002, ONID: si.NetworkBBC, Descriptors: []si.Descriptor{
					si.SkyLCN{RegionID: 0x0101, Services: []si.SkyService{{ServiceID: 40, LCN: 140}}},
				}},
			},
		},
		{
			BouquetID: 0x2000,
			Transports: []si.BATTransport{
				{TSID: 2000, ONID: si.NetworkSES2, Descriptors: []si.Descriptor{
					si.PrivateDataSpecifier{Specifier: si.PrivateDataBSB1},
					si.SkyLCN{RegionID: 0x0101, Services: []si.SkyService{{ServiceID: 50, LCN: 150}}},
				}},
			},
		},
	}

	r.s.mu.Lock()
	got := r.s.satelliteLCNs(bats)
	r.s.mu.Unlock()

	// Service 11 takes 101 from service 10 in the selected region, and
	// service 13 keeps the lower of its two numbers.
	want := map[uint64]uint16{
		lcnKey(si.NetworkSES2, 10): 105,
		lcnKey(si.NetworkSES2, 11): 101,
		lcnKey(si.NetworkSES2, 13): 107,
		lcnKey(si.NetworkSES2, 20): 120,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected channel numbers (-want +got):\n%s", diff)
	}
}

func TestExpectedAndIPTVChannels(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	r.s.sourceID = 1

	item := &TransportScanItem{
		FriendlyName:     "1",
		IPTVChannel:      "2",
		ExpectedChannels: []dtv.ChannelInfo{{Name: "Two", ServiceID: 5}},
	}
	info := newScannedChannelInfo()
	info.PATs[1] = []*si.PAT{testPAT(1, 5)}

	got := build(r, item, info)
	want := map[uint16]*ChannelInsertInfo{
		5: {SourceID: 1, ServiceID: 5, SIStandard: dtv.SIStandardMPEG, ServiceName: "Two", ChanNum: "2-5", PATTSID: 1, InChannelsConf: true, InPAT: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected channels (-want +got):\n%s", diff)
	}
}

func TestOpenCable(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)

	info := newScannedChannelInfo()
	info.PATs[5] = []*si.PAT{{TSID: 5, Programs: []si.Program{{Number: 0, PID: si.PIDSCTEHint}, {Number: 1, PID: 0x100}}}}
	info.PMTs = []*si.PMT{
		{ProgramNumber: 2, Streams: []si.Stream{{Type: si.StreamOpenCableVideo, PID: 0x201}}},
		{ProgramNumber: 3, Descriptors: []si.Descriptor{si.Registration{Format: "CUEI"}}, Streams: []si.Stream{{Type: 0x02, PID: 0x301}}},
		{ProgramNumber: 4, Streams: []si.Stream{{Type: 0x02, PID: 0x401}}},
	}

	got := make(map[uint16]bool)
	for pnum, c := range build(r, &TransportScanItem{FriendlyNum: 3}, info) {
		got[pnum] = c.CouldBeOpenCable
	}
	want := map[uint16]bool{1: true, 2: true, 3: true, 4: false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected opencable flags (-want +got):\n%s", diff)
	}
}

func TestDefaultAuthority(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)

	da := func(a string) si.Descriptor { return si.DefaultAuthority{Authority: a} }
	r.s.HandleSDTOther(testTSID, &si.SDT{TSID: testTSID, ONID: testONID, Services: []si.SDTService{
		{ServiceID: 1, Descriptors: []si.Descriptor{da("other.example")}},
	}})
	r.s.HandleBAT(&si.BAT{BouquetID: 0x1000, Transports: []si.BATTransport{
		{TSID: testTSID, ONID: testONID, Descriptors: []si.Descriptor{
			da("bouquet.example"),
			si.ServiceList{Services: []si.ListedService{{ServiceID: 1, Type: 1}, {ServiceID: 2, Type: 1}}},
		}},
		// Without a service list the authority applies to nothing.
		{TSID: testTSID + 1, ONID: testONID, Descriptors: []si.Descriptor{da("unused.example")}},
	}})

	own := tvService(3, "Three", "THREE")
	own.Descriptors = append(own.Descriptors, da("service.example"))
	info := newScannedChannelInfo()
	info.SDTs[testTSID] = []*si.SDT{testSDT(testONID, tvService(1, "One", "ONE"), tvService(2, "Two", "TWO"), own, tvService(4, "Four", "FOUR"))}

	got := make(map[uint16]string)
	for pnum, c := range build(r, &TransportScanItem{}, info) {
		got[pnum] = c.DefaultAuthority
	}
	want := map[uint16]string{1: "other.example", 2: "bouquet.example", 3: "service.example", 4: ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected default authorities (-want +got):\n%s", diff)
	}
}

func TestMPTSChannel(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)

	tests := []struct {
		tt       dtv.TunerType
		in       ChannelInsertInfo
		callsign string
		sid      uint16
	}{
		{dtv.TunerTypeASI, ChannelInsertInfo{SIStandard: dtv.SIStandardDVB, SDTTSID: 100}, "MPTS_fake0", 100},
		{dtv.TunerTypeDVBT, ChannelInsertInfo{SIStandard: dtv.SIStandardMPEG, FreqID: "21", PATTSID: 9}, "MPTS_21", 9},
		{dtv.TunerTypeATSC, ChannelInsertInfo{SIStandard: dtv.SIStandardATSC, ATSCMajor: 14, ATSCMinor: 1, PATTSID: 0x801}, "MPTS_14", 0x801},
		{dtv.TunerTypeDVBT, ChannelInsertInfo{SIStandard: dtv.SIStandardDVB, SDTTSID: 100, ServiceID: 1}, "MPTS_100", 100},
		{dtv.TunerTypeDVBT, ChannelInsertInfo{SIStandard: dtv.SIStandardDVB, ChanNum: "5"}, "MPTS_5", 0},
		{dtv.TunerTypeDVBT, ChannelInsertInfo{SIStandard: dtv.SIStandardDVB}, "MPTS_UNKNOWN", 0},
	}
	for i, test := range tests {
		test.in.UseOnAirGuide = true
		test.in.IsEncrypted = true
		got := r.s.mptsChannel(test.tt, test.in)
		if got.Callsign != test.callsign || got.ServiceName != test.callsign {
			t.Errorf("did not get expected callsign for test %d, got: %q, want: %q", i, got.Callsign, test.callsign)
		}
		if got.ServiceID != test.sid {
			t.Errorf("did not get expected service id for test %d, got: %d, want: %d", i, got.ServiceID, test.sid)
		}
		if got.Format != "MPTS" || got.ATSCMinor != 0 || got.UseOnAirGuide || got.IsEncrypted {
			t.Errorf("unexpected full transport channel for test %d: %+v", i, got)
		}
	}
}

func TestCheckImportedList(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	expected := []dtv.ChannelInfo{{Name: "One", ServiceID: 1}, {ServiceID: 2}}

	tests := []struct {
		expected []dtv.ChannelInfo
		sid      uint16
		name     string
		ok       bool
	}{
		{expected, 1, "One", true},
		{expected, 2, "", true},
		{expected, 3, "", false},
		{nil, 3, "", true},
	}
	for i, test := range tests {
		name, ok := r.s.CheckImportedList(test.expected, test.sid)
		if name != test.name || ok != test.ok {
			t.Errorf("did not get expected result for test %d, got: %q, %v, want: %q, %v", i, name, ok, test.name, test.ok)
		}
	}
	if !r.ui.logged("Skipping 3, not in imported channel map") {
		t.Errorf("expected skipped program message, got: %v", r.ui.logs)
	}
}
