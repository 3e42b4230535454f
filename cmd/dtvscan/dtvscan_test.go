/*
NAME
  dtvscan_test.go

DESCRIPTION
  dtvscan_test.go provides testing for recording generation and for scans
  run by dtvscan over generated recordings.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/scan/config"
	"github.com/ausocean/dtvscan/si"
	"github.com/ausocean/dtvscan/store"
	"github.com/ausocean/dtvscan/streamdata"
	"github.com/ausocean/utils/logging"
)

func TestRecordingBytes(t *testing.T) {
	r := recording{
		Frequency: 474000000,
		TSID:      4100,
		Programs:  []uint16{1, 2},
		Encrypted: map[uint16]bool{2: true},
	}
	b, err := r.bytes()
	if err != nil {
		t.Fatalf("could not build recording: %v", err)
	}

	c := streamdata.New((*logging.TestLogger)(t))
	if _, err := c.Write(b); err != nil {
		t.Fatalf("could not decode recording: %v", err)
	}
	pats := c.CachedPATs()
	if len(pats) != 1 || pats[0].TSID != 4100 {
		t.Fatalf("did not get expected pat, got: %+v", pats)
	}
	if !c.HasCachedAllPMTs() {
		t.Fatal("expected all pmts to be cached")
	}

	pmts := c.CachedPMTs()
	if len(pmts) != 2 {
		t.Fatalf("did not get expected number of pmts, got: %d, want: 2", len(pmts))
	}
	for _, pmt := range pmts {
		var ca bool
		for _, d := range pmt.Descriptors {
			if _, ok := d.(si.CA); ok {
				ca = true
			}
		}
		if want := pmt.ProgramNumber == 2; ca != want {
			t.Errorf("unexpected ca descriptor for program %d, got: %v, want: %v", pmt.ProgramNumber, ca, want)
		}
		if len(pmt.Streams) != 2 {
			t.Errorf("did not get expected streams for program %d, got: %d, want: 2", pmt.ProgramNumber, len(pmt.Streams))
		}
	}
}

func TestRecordingBadProgram(t *testing.T) {
	for _, p := range []uint16{0, maxProgram + 1} {
		if _, err := (recording{Programs: []uint16{p}}).bytes(); err == nil {
			t.Errorf("expected error for program %d", p)
		}
	}
}

func TestKeyValues(t *testing.T) {
	got, err := keyValues([]string{"std=dvb", "Type=dvbt", "frequency=474000000"})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := map[string]string{"std": "dvb", "type": "dvbt", "frequency": "474000000"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected parameters (-want +got):\n%s", diff)
	}
	if _, err := keyValues([]string{"frequency"}); err == nil {
		t.Error("expected error for parameter without value")
	}
}

func TestReadTransports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transports.yaml")
	const list = `
- frequency: 474000000
  bandwidth: "8"
  channels:
    - name: One
      serviceid: 1
- frequency: 482000000
`
	if err := os.WriteFile(path, []byte(list), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := readTransports(path)
	if err != nil {
		t.Fatalf("could not read transports: %v", err)
	}
	want := []dtv.Transport{
		{
			Multiplex: dtv.Multiplex{Frequency: 474000000, Bandwidth: "8"},
			Channels:  []dtv.ChannelInfo{{Name: "One", ServiceID: 1}},
		},
		{Multiplex: dtv.Multiplex{Frequency: 482000000}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected transports (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(path, []byte("- bandwidth: \"8\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readTransports(path); err == nil {
		t.Error("expected error for transport without frequency")
	}
}

func TestScanConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set(keyScan+"."+config.KeySignalTimeout, "250")
	viper.Set(keyScan+"."+config.KeyTestDecryption, "true")
	viper.Set(keyLogLevel, "Debug")

	cfg := scanConfig((*logging.TestLogger)(t))
	if cfg.SignalTimeout != 250*time.Millisecond {
		t.Errorf("did not get expected signal timeout, got: %v, want: %v", cfg.SignalTimeout, 250*time.Millisecond)
	}
	if !cfg.TestDecryption {
		t.Error("expected decryption testing to be enabled")
	}
	if cfg.LogLevel != logging.Debug {
		t.Errorf("did not get expected log level, got: %d, want: %d", cfg.LogLevel, logging.Debug)
	}
}

// scanResult is the part of the printed channel list checked by tests.
type scanResult struct {
	Tuning struct {
		Frequency uint64 `yaml:"frequency"`
	} `yaml:"tuning"`
	MplexID  uint `yaml:"mplexid"`
	Channels []struct {
		ServiceID uint16 `yaml:"serviceid"`
	} `yaml:"channels"`
}

func TestScanRecordings(t *testing.T) {
	dir := t.TempDir()
	for _, r := range []recording{
		{Frequency: 474000000, TSID: 4100, Programs: []uint16{1, 2}},
		{Frequency: 482000000, TSID: 4200, Programs: []uint16{5}},
	} {
		if _, err := r.write(dir); err != nil {
			t.Fatalf("could not write recording: %v", err)
		}
	}
	// 490 MHz has no recording and fails to tune.
	transports := []dtv.Transport{
		{Multiplex: dtv.Multiplex{Frequency: 474000000}},
		{Multiplex: dtv.Multiplex{Frequency: 490000000}},
		{Multiplex: dtv.Multiplex{Frequency: 482000000}},
	}

	log := (*logging.TestLogger)(t)
	dbPath := filepath.Join(dir, "channels.db")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	scanOnce := func() []scanResult {
		var out, ui bytes.Buffer
		ss, err := newSession(ctx, log, settings{
			dbPath: dbPath,
			source: "test",
			dir:    dir,
			std:    dtv.SIStandardDVB,
			types:  []string{"dvbt"},
			cfg: config.Config{
				SignalTimeout:  time.Second,
				ChannelTimeout: 3 * time.Second,
				PollInterval:   10 * time.Millisecond,
			},
			ui:  &consoleMonitor{w: &ui},
			out: &out,
		})
		if err != nil {
			t.Fatalf("could not open session: %v", err)
		}
		defer ss.close()

		err = ss.run(ctx, func() bool {
			return ss.scanner.ScanForChannels(ctx, ss.sourceID, dtv.SIStandardDVB, "dvbt", transports)
		})
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		if !bytes.Contains(ui.Bytes(), []byte("scan complete")) {
			t.Errorf("expected completion to be shown, got: %s", ui.String())
		}

		var res []scanResult
		if err := yaml.Unmarshal(out.Bytes(), &res); err != nil {
			t.Fatalf("could not parse channel list: %v\n%s", err, out.String())
		}
		return res
	}

	res := scanOnce()
	if len(res) != 2 {
		t.Fatalf("did not get expected number of transports, got: %d, want: 2", len(res))
	}
	var freqs []uint64
	var sids []uint16
	for _, r := range res {
		freqs = append(freqs, r.Tuning.Frequency)
		if r.MplexID == 0 {
			t.Errorf("expected transport %d to be stored", r.Tuning.Frequency)
		}
		for _, c := range r.Channels {
			sids = append(sids, c.ServiceID)
		}
	}
	if diff := cmp.Diff([]uint64{474000000, 482000000}, freqs); diff != "" {
		t.Errorf("unexpected transports (-want +got):\n%s", diff)
	}
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })
	if diff := cmp.Diff([]uint16{1, 2, 5}, sids); diff != "" {
		t.Errorf("unexpected services (-want +got):\n%s", diff)
	}

	// A second scan replaces the channels rather than adding to them.
	scanOnce()

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open database: %v", err)
	}
	defer db.Close()
	src, err := db.SourceID(ctx, "test")
	if err != nil {
		t.Fatalf("could not find source: %v", err)
	}
	chans, err := db.Channels(ctx, src)
	if err != nil {
		t.Fatalf("could not read channels: %v", err)
	}
	if len(chans) != 3 {
		t.Errorf("did not get expected number of channels, got: %d, want: 3", len(chans))
	}
	scans, err := db.Scans(ctx, src)
	if err != nil {
		t.Fatalf("could not read scans: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("did not get expected number of scans, got: %d, want: 2", len(scans))
	}
	if scans[0].Transports != 2 || scans[0].Channels != 3 {
		t.Errorf("unexpected scan record: %+v", scans[0])
	}

	var listing bytes.Buffer
	if err := list(ctx, db, src, &listing); err != nil {
		t.Fatalf("could not list channels: %v", err)
	}
	if !bytes.Contains(listing.Bytes(), []byte(scans[0].ID.String())) {
		t.Errorf("expected scan to be listed, got:\n%s", listing.String())
	}
}
