/*
NAME
  descriptor_test.go

DESCRIPTION
  descriptor_test.go provides testing for descriptor lookup and table helpers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package si

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFindPrivate(t *testing.T) {
	fsat := FreesatLCN{Services: []FreesatService{{ServiceID: 1}}}
	sky := SkyLCN{RegionID: 3}
	descs := []Descriptor{
		FreesatLCN{Services: []FreesatService{{ServiceID: 9}}}, // Out of scope, no specifier yet.
		PrivateDataSpecifier{Specifier: PrivateDataFSAT},
		fsat,
		PrivateDataSpecifier{Specifier: PrivateDataBSB1},
		sky,
		FreesatLCN{Services: []FreesatService{{ServiceID: 7}}},
	}

	tests := []struct {
		tag  byte
		pds  uint32
		want []Descriptor
	}{
		{tag: TagFreesatLCN, pds: PrivateDataFSAT, want: []Descriptor{fsat}},
		{tag: TagSkyLCN, pds: PrivateDataBSB1, want: []Descriptor{sky}},
		{tag: TagSkyLCN, pds: PrivateDataFSAT, want: nil},
	}
	for i, test := range tests {
		got := FindPrivate(descs, test.tag, test.pds)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("did not get expected result for test %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestPMTIsEncrypted(t *testing.T) {
	tests := []struct {
		pmt  PMT
		want bool
	}{
		{pmt: PMT{Streams: []Stream{{Type: 0x02, PID: 0x100}}}, want: false},
		{pmt: PMT{Descriptors: []Descriptor{CA{SystemID: 0x0500}}}, want: true},
		{pmt: PMT{Streams: []Stream{{PID: 0x101, Descriptors: []Descriptor{CA{SystemID: 0x0100}}}}}, want: true},
		{pmt: PMT{Descriptors: []Descriptor{Registration{Format: "CUEI"}}}, want: false},
	}
	for i, test := range tests {
		if got := test.pmt.IsEncrypted(); got != test.want {
			t.Errorf("unexpected encryption flag for test %d, got: %v, want: %v", i, got, test.want)
		}
	}
}

func TestServiceCallsign(t *testing.T) {
	tests := []struct {
		svc  Service
		want string
	}{
		{svc: Service{Name: "BBC ONE Lon", ShortName: "BBC ONE"}, want: "BBC ONE"},
		{svc: Service{Name: "ITV1"}, want: "ITV1"},
		{svc: Service{Name: "Channel 4", ShortName: "  "}, want: "Channel 4"},
	}
	for _, test := range tests {
		if got := test.svc.Callsign(); got != test.want {
			t.Errorf("unexpected callsign, got: %q, want: %q", got, test.want)
		}
	}
}
