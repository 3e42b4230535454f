/*
NAME
  multiplex_test.go

DESCRIPTION
  multiplex_test.go provides testing for tuning parameter parsing and
  delivery descriptor conversion.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dtv

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/dtvscan/si"
)

func TestParseTuningParams(t *testing.T) {
	tests := []struct {
		name    string
		tt      TunerType
		params  map[string]string
		want    Multiplex
		wantErr error
	}{
		{
			name:   "dvbt defaults",
			tt:     TunerTypeDVBT,
			params: map[string]string{"frequency": "474000000", "bandwidth": "8"},
			want: Multiplex{
				Frequency:     474000000,
				Inversion:     "auto",
				Bandwidth:     "8",
				HPCodeRate:    "auto",
				LPCodeRate:    "auto",
				Modulation:    "auto",
				TransMode:     "auto",
				GuardInterval: "auto",
				Hierarchy:     "auto",
				ModSys:        ModSysDVBT,
			},
		},
		{
			name:   "dvbt2 mod sys",
			tt:     TunerTypeDVBT2,
			params: map[string]string{"frequency": "530000000", "constellation": "QAM_256"},
			want: Multiplex{
				Frequency:     530000000,
				Inversion:     "auto",
				Bandwidth:     "auto",
				HPCodeRate:    "auto",
				LPCodeRate:    "auto",
				Modulation:    "qam_256",
				TransMode:     "auto",
				GuardInterval: "auto",
				Hierarchy:     "auto",
				ModSys:        ModSysDVBT2,
			},
		},
		{
			name:   "dvbs2",
			tt:     TunerTypeDVBS2,
			params: map[string]string{"frequency": "11778000", "symbolrate": "27500000", "polarity": "V", "modulation": "8psk"},
			want: Multiplex{
				Frequency:  11778000,
				SymbolRate: 27500000,
				Inversion:  "auto",
				Polarity:   "v",
				FEC:        "auto",
				Modulation: "8psk",
				Rolloff:    "0.35",
				ModSys:     ModSysDVBS2,
			},
		},
		{
			name:   "atsc",
			tt:     TunerTypeATSC,
			params: map[string]string{"frequency": "521000000"},
			want:   Multiplex{Frequency: 521000000, Inversion: "auto", Modulation: "8vsb", ModSys: ModSysATSC},
		},
		{
			name:    "missing frequency",
			tt:      TunerTypeDVBT,
			params:  map[string]string{"bandwidth": "8"},
			wantErr: ErrNoFrequency,
		},
		{
			name:    "cable without symbol rate",
			tt:      TunerTypeDVBC,
			params:  map[string]string{"frequency": "330000000"},
			wantErr: ErrNoSymbolRate,
		},
		{
			name:    "bad polarity",
			tt:      TunerTypeDVBS1,
			params:  map[string]string{"frequency": "11778000", "symbolrate": "27500000", "polarity": "x"},
			wantErr: ErrBadPolarity,
		},
		{
			name:    "iptv",
			tt:      TunerTypeIPTV,
			params:  map[string]string{"frequency": "1"},
			wantErr: ErrBadTunerType,
		},
	}

	for _, test := range tests {
		got, err := ParseTuningParams(test.tt, test.params)
		if !errors.Is(err, test.wantErr) {
			t.Errorf("%s: unexpected error, got: %v, want: %v", test.name, err, test.wantErr)
			continue
		}
		if test.wantErr != nil {
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("%s: unexpected multiplex (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestFromDelivery(t *testing.T) {
	tests := []struct {
		tt      TunerType
		desc    si.Descriptor
		want    Multiplex
		wantErr bool
	}{
		{
			tt:   TunerTypeDVBC,
			desc: si.CableDelivery{Frequency: 346000000, Modulation: "qam_256", SymbolRate: 6900000, FECInner: "auto"},
			want: Multiplex{
				Frequency:  346000000,
				Inversion:  "auto",
				SymbolRate: 6900000,
				FEC:        "auto",
				Modulation: "qam_256",
				ModSys:     ModSysDVBC,
				SIStandard: SIStandardDVB,
			},
		},
		{
			tt:      TunerTypeDVBT,
			desc:    si.CableDelivery{Frequency: 346000000, SymbolRate: 6900000},
			wantErr: true,
		},
		{
			tt:      TunerTypeDVBT,
			desc:    si.Service{Name: "not delivery"},
			wantErr: true,
		},
		{
			tt:      TunerTypeDVBS1,
			desc:    si.SatelliteDelivery{Frequency: 11778000000, Polarization: "v"},
			wantErr: true, // No symbol rate.
		},
	}
	for i, test := range tests {
		got, err := FromDelivery(test.tt, test.desc)
		if (err != nil) != test.wantErr {
			t.Errorf("unexpected error for test %d: %v", i, err)
			continue
		}
		if test.wantErr {
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("unexpected multiplex for test %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestParseTunerType(t *testing.T) {
	tests := map[string]TunerType{
		"DVB-T":  TunerTypeDVBT,
		"ofdm":   TunerTypeDVBT,
		"dvbt2":  TunerTypeDVBT2,
		"QAM":    TunerTypeDVBC,
		"DVB-S2": TunerTypeDVBS2,
		"atsc":   TunerTypeATSC,
		"bogus":  TunerTypeUnknown,
	}
	for in, want := range tests {
		if got := ParseTunerType(in); got != want {
			t.Errorf("ParseTunerType(%q) = %v, want %v", in, got, want)
		}
	}
}
