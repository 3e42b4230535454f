/*
NAME
  scanner_test.go

DESCRIPTION
  scanner_test.go provides testing for the scan state machine, driven one
  tick at a time against a fake tuner and a fake clock.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/dtvscan/device"
	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/scan/config"
	"github.com/ausocean/dtvscan/si"
	"github.com/ausocean/dtvscan/store"
	"github.com/ausocean/dtvscan/streamdata"
	"github.com/ausocean/utils/logging"
)

// fakeChannel is a device.Channel that records what it is tuned to.
type fakeChannel struct {
	mu      sync.Mutex
	types   []dtv.TunerType
	fail    bool
	tuned   []dtv.Multiplex
	mplexes []uint
	iptv    []dtv.IPTVTuning
	sink    *fakeSink
	current *dtv.Multiplex
}

func (c *fakeChannel) Device() string              { return "fake0" }
func (c *fakeChannel) SIStandard() string          { return dtv.SIStandardDVB }
func (c *fakeChannel) TunerTypes() []dtv.TunerType { return c.types }
func (c *fakeChannel) Rotor() device.RotorControl  { return nil }

func (c *fakeChannel) Tune(m dtv.Multiplex) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tuned = append(c.tuned, m)
	return !c.fail
}

func (c *fakeChannel) TuneMultiplex(id uint, input string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mplexes = append(c.mplexes, id)
	return !c.fail
}

func (c *fakeChannel) TuneIPTV(t dtv.IPTVTuning) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iptv = append(c.iptv, t)
	return !c.fail
}

func (c *fakeChannel) PMTSink() device.PMTSink {
	if c.sink == nil {
		return nil
	}
	return c.sink
}

func (c *fakeChannel) Tuned() (dtv.Multiplex, bool) {
	if c.current == nil {
		return dtv.Multiplex{}, false
	}
	return *c.current, true
}

func (c *fakeChannel) frequencies() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var f []uint64
	for _, m := range c.tuned {
		f = append(f, m.Frequency)
	}
	return f
}

func (c *fakeChannel) tunes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tuned) + len(c.mplexes) + len(c.iptv)
}

type fakeSink struct {
	programs []uint16
}

func (s *fakeSink) SetPMT(pmt *si.PMT) { s.programs = append(s.programs, pmt.ProgramNumber) }

// fakeMonitor is a device.SignalMonitor with a settable lock.
type fakeMonitor struct {
	mu     sync.Mutex
	lock   bool
	starts int
	stops  int
}

func (m *fakeMonitor) Start() {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
}

func (m *fakeMonitor) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

func (m *fakeMonitor) HasSignalLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lock
}

func (m *fakeMonitor) Rotor() device.RotorMonitor { return nil }

// fakeUI is a Monitor that records what it is told.
type fakeUI struct {
	mu       sync.Mutex
	logs     []string
	status   string
	percent  int
	complete int
}

func (u *fakeUI) ScanPercentComplete(pct int) {
	u.mu.Lock()
	u.percent = pct
	u.mu.Unlock()
}

func (u *fakeUI) ScanAppendTextToLog(text string) {
	u.mu.Lock()
	u.logs = append(u.logs, text)
	u.mu.Unlock()
}

func (u *fakeUI) ScanUpdateStatusText(text string) {
	u.mu.Lock()
	u.status = text
	u.mu.Unlock()
}

func (u *fakeUI) ScanUpdateStatusTitleText(text string) {}

func (u *fakeUI) ScanComplete() {
	u.mu.Lock()
	u.complete++
	u.mu.Unlock()
}

func (u *fakeUI) logged(substr string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, l := range u.logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// probeCache is a table cache that records the programs whose decryption
// is tested.
type probeCache struct {
	*streamdata.Cache
	probed []uint16
}

func (c *probeCache) TestDecryption(pmt *si.PMT) {
	c.probed = append(c.probed, pmt.ProgramNumber)
	c.Cache.TestDecryption(pmt)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// rig holds a scanner and its fakes.
type rig struct {
	s   *Scanner
	ch  *fakeChannel
	mon *fakeMonitor
	sd  *probeCache
	ui  *fakeUI
	clk *clock
}

func newRig(t *testing.T, cfg config.Config, ch *fakeChannel, db Store) *rig {
	t.Helper()
	cfg.Logger = (*logging.TestLogger)(t)
	r := &rig{
		ch:  ch,
		mon: &fakeMonitor{},
		sd:  &probeCache{Cache: streamdata.New(cfg.Logger)},
		ui:  &fakeUI{},
		clk: &clock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	r.s = New(cfg, ch, r.mon, r.sd, db, r.ui)
	r.s.now = r.clk.now
	t.Cleanup(r.s.Close)
	return r
}

// tick advances the clock by d and runs the scan driver once.
func (r *rig) tick(d time.Duration) {
	r.clk.advance(d)
	r.s.handleActiveScan()
}

func (r *rig) channelListLen() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.channelList)
}

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "scan.db"))
	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

const (
	testONID  = 0x233a
	testNetID = 0x3001
	testTSID  = 100
)

func dvbtChannel() *fakeChannel {
	return &fakeChannel{types: []dtv.TunerType{dtv.TunerTypeDVBT}}
}

func oneTransport(freq uint64) []dtv.Transport {
	return []dtv.Transport{{Multiplex: dtv.Multiplex{Frequency: freq, Bandwidth: "8"}}}
}

func testPAT(tsid uint16, programs ...uint16) *si.PAT {
	pat := &si.PAT{TSID: tsid}
	for _, p := range programs {
		pat.Programs = append(pat.Programs, si.Program{Number: p, PID: 0x100 * p})
	}
	return pat
}

func testPMT(program uint16, encrypted bool) *si.PMT {
	pid := 0x100*program + 1
	pmt := &si.PMT{
		ProgramNumber: program,
		PCRPID:        pid,
		Streams: []si.Stream{
			{Type: 0x02, PID: pid},
			{Type: 0x04, PID: pid + 1},
		},
	}
	if encrypted {
		pmt.Descriptors = []si.Descriptor{si.CA{SystemID: 0x0963, PID: 0x1234}}
	}
	return pmt
}

func testNIT(ts ...si.NITTransport) *si.NIT {
	return &si.NIT{NetworkID: testNetID, Transports: ts}
}

func testSDT(onid uint16, svcs ...si.SDTService) *si.SDT {
	return &si.SDT{TSID: testTSID, ONID: onid, Services: svcs}
}

func tvService(sid uint16, name, short string) si.SDTService {
	return si.SDTService{
		ServiceID:           sid,
		EITPresentFollowing: true,
		Descriptors:         []si.Descriptor{si.Service{Type: si.ServiceTypeDigitalTV, Name: name, ShortName: short}},
	}
}

func TestScanDVBTransport(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{SourceID: 1}, dvbtChannel(), nil)
	r.mon.lock = true

	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardDVB, "dvbt", oneTransport(474000000)) {
		t.Fatal("could not start scan")
	}

	r.tick(100 * time.Millisecond)
	want := []dtv.Multiplex{{Frequency: 474000000, Bandwidth: "8", ModSys: dtv.ModSysDVBT, SIStandard: dtv.SIStandardDVB}}
	if diff := cmp.Diff(want, r.ch.tuned); diff != "" {
		t.Errorf("unexpected tuning (-want +got):\n%s", diff)
	}
	if r.mon.starts != 1 {
		t.Errorf("did not get expected monitor starts, got: %d, want: 1", r.mon.starts)
	}

	r.sd.AddNIT(testNIT(si.NITTransport{TSID: testTSID, ONID: testONID}))
	r.sd.AddSDT(testSDT(testONID,
		tvService(1, "One", "ONE"),
		si.SDTService{ServiceID: 2, Descriptors: []si.Descriptor{si.Service{Type: si.ServiceTypeDigitalRadio, Name: "Radio", ShortName: "RAD"}}},
	))
	r.sd.AddPAT(testPAT(testTSID, 1, 2))

	r.tick(100 * time.Millisecond)
	if n := r.channelListLen(); n != 0 {
		t.Fatalf("did not expect transport to complete without pmts, got: %d entries", n)
	}
	if name, n := r.s.CurrentTransportInfo(); name == "" || n != 2 {
		t.Errorf("unexpected current transport info, got: %q with %d services, want 2 services", name, n)
	}

	r.sd.AddPMT(testPMT(1, false))
	r.sd.AddPMT(testPMT(2, false))

	r.tick(100 * time.Millisecond)
	if n := r.channelListLen(); n != 1 {
		t.Fatalf("did not get expected channel list length, got: %d, want: 1", n)
	}
	if r.s.Scanning() {
		t.Error("expected scan to be complete")
	}
	if r.ui.complete != 1 || r.ui.percent != 100 {
		t.Errorf("unexpected completion, got: %d at %d%%", r.ui.complete, r.ui.percent)
	}
	if !r.ui.logged("0 -- Found 2 probable channels") {
		t.Errorf("expected channels found message, got: %v", r.ui.logs)
	}

	// Completion is idempotent.
	r.s.mu.Lock()
	done := r.s.updateChannelInfo(true)
	r.s.mu.Unlock()
	if !done || r.channelListLen() != 1 {
		t.Errorf("did not expect a completed transport to be filed again, got: %v with %d entries", done, r.channelListLen())
	}

	list := r.s.ChannelList(false)
	if len(list) != 1 {
		t.Fatalf("did not get expected transports, got: %d, want: 1", len(list))
	}
	wantChans := []ChannelInsertInfo{
		{
			SourceID: 1, ServiceID: 1, SIStandard: dtv.SIStandardDVB,
			Callsign: "ONE", ServiceName: "One", ServiceType: si.ServiceTypeDigitalTV,
			UseOnAirGuide: true, PATTSID: testTSID, SDTTSID: testTSID, OrigNetID: testONID, NetID: testNetID,
			InPAT: true, InPMT: true, InNIT: true, InSDT: true,
		},
		{
			SourceID: 1, ServiceID: 2, SIStandard: dtv.SIStandardDVB,
			Callsign: "RAD", ServiceName: "Radio", ServiceType: si.ServiceTypeDigitalRadio, IsAudioService: true,
			PATTSID: testTSID, SDTTSID: testTSID, OrigNetID: testONID, NetID: testNetID,
			InPAT: true, InPMT: true, InNIT: true, InSDT: true,
		},
	}
	if diff := cmp.Diff(wantChans, list[0].Channels); diff != "" {
		t.Errorf("unexpected channels (-want +got):\n%s", diff)
	}
	if list[0].Tuning.Frequency != 474000000 || list[0].TunerType != dtv.TunerTypeDVBT {
		t.Errorf("unexpected transport tuning, got: %v as %v", list[0].Tuning, list[0].TunerType)
	}

	full := r.s.ChannelList(true)
	if n := len(full[0].Channels); n != 3 {
		t.Fatalf("did not get expected channels with full transport, got: %d, want: 3", n)
	}
	mpts := full[0].Channels[2]
	if mpts.Callsign != "MPTS_100" || mpts.ServiceID != testTSID || mpts.Format != "MPTS" || mpts.UseOnAirGuide {
		t.Errorf("unexpected full transport channel: %+v", mpts)
	}
}

func TestScanNoSignal(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{}, dvbtChannel(), nil)

	transports := append(oneTransport(474000000), oneTransport(482000000)...)
	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardDVB, "dvbt", transports) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)

	r.tick(500 * time.Millisecond)
	if n := r.ch.tunes(); n != 1 {
		t.Fatalf("did not expect to move on before timing out, got: %d tunes", n)
	}

	r.tick(3 * time.Second)
	r.s.mu.Lock()
	timedOut := r.s.hasTimedOut()
	r.s.mu.Unlock()
	if timedOut {
		t.Error("did not expect the next transport to have timed out yet")
	}
	if diff := cmp.Diff([]uint64{474000000, 482000000}, r.ch.frequencies()); diff != "" {
		t.Errorf("unexpected tuning (-want +got):\n%s", diff)
	}
	if !r.ui.logged("0 -- Timed out, no channels") {
		t.Errorf("expected time out message, got: %v", r.ui.logs)
	}

	r.tick(3 * time.Second)
	if r.s.Scanning() {
		t.Error("expected scan to be complete")
	}
	if n := r.channelListLen(); n != 0 {
		t.Errorf("did not expect channel list entries, got: %d", n)
	}
	if p := r.s.Progress(); p.TransportsScanned != 2 || p.ChannelsFound != 0 {
		t.Errorf("unexpected progress: %+v", p)
	}
	if r.mon.stops != 2 {
		t.Errorf("did not get expected monitor stops, got: %d, want: 2", r.mon.stops)
	}
}

func TestScanATSCTransport(t *testing.T) {
	ctx := context.Background()
	ch := &fakeChannel{types: []dtv.TunerType{dtv.TunerTypeATSC}}
	r := newRig(t, config.Config{}, ch, nil)
	r.mon.lock = true

	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardATSC, "atsc", oneTransport(473000000)) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)

	r.sd.AddMGT(&si.MGT{Tables: []si.MGTTable{{Type: si.MGTTypeTVCT, PID: si.PIDATSCBase}}})
	r.sd.AddVCT(si.PIDATSCBase, &si.VCT{TSID: 0x0801, Channels: []si.VirtualChannel{
		{ShortName: "KAAA", Major: 14, Minor: 1, ProgramNumber: 1, ChannelTSID: 0x0801, ServiceType: si.ATSCServiceDigitalTV},
		{ShortName: "KAAA-2", Major: 14, Minor: 2, ProgramNumber: 2, ChannelTSID: 0x0801, ServiceType: si.ATSCServiceDigitalTV},
		{ShortName: "KAAA-D", Major: 14, Minor: 3, ProgramNumber: 3, ChannelTSID: 0x0801, ServiceType: si.ATSCServiceData, Hidden: true, HiddenInGuide: true},
	}})
	r.sd.AddPAT(testPAT(0x0801, 1, 2, 3))
	for p := uint16(1); p <= 3; p++ {
		r.sd.AddPMT(testPMT(p, false))
	}
	r.tick(100 * time.Millisecond)

	list := r.s.ChannelList(false)
	if len(list) != 1 {
		t.Fatalf("did not get expected transports, got: %d, want: 1", len(list))
	}
	type flags struct {
		Callsign              string
		Major, Minor          uint16
		Hidden, UseOnAirGuide bool
		InVCT                 bool
		SIStandard            string
	}
	var got []flags
	for _, c := range list[0].Channels {
		got = append(got, flags{c.Callsign, c.ATSCMajor, c.ATSCMinor, c.Hidden, c.UseOnAirGuide, c.InVCT, c.SIStandard})
	}
	want := []flags{
		{"KAAA", 14, 1, false, true, true, dtv.SIStandardATSC},
		{"KAAA-2", 14, 2, false, true, true, dtv.SIStandardATSC},
		{"KAAA-D", 14, 3, true, false, true, dtv.SIStandardATSC},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected channels (-want +got):\n%s", diff)
	}
	if !list[0].Channels[2].IsDataService {
		t.Error("expected hidden channel to be a data service")
	}
}

func TestScanFrequencyTable(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{}, dvbtChannel(), nil)

	if !r.s.ScanTransports(ctx, 1, "dvbt", "ofdm", "gb", "UHF 22", "UHF 23") {
		t.Fatal("could not start scan")
	}
	items := r.s.list.Items()
	if len(items) != 2 || items[0].FriendlyName != "UHF 22" || items[1].FriendlyNum != 23 {
		t.Fatalf("unexpected transports: %v", items)
	}

	r.tick(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		r.tick(1100 * time.Millisecond)
	}
	want := []uint64{482000000, 481833330, 482166670, 490000000}
	if diff := cmp.Diff(want, r.ch.frequencies()); diff != "" {
		t.Errorf("unexpected tuning (-want +got):\n%s", diff)
	}
	if p := r.s.Progress(); p.TransportsScanned != 1 || p.Percent != 50 || p.Current != "UHF 23" {
		t.Errorf("unexpected progress: %+v", p)
	}

	if r.s.ScanTransports(ctx, 1, "dvbt", "ofdm", "gb", "", "") {
		t.Error("did not expect a scan to start while scanning")
	}
	if n := r.s.list.Len(); n != 2 {
		t.Errorf("did not expect the transport list to change, got: %d transports", n)
	}
}

func TestScanNoFrequencyTable(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	if r.s.ScanTransports(context.Background(), 1, "dvbt", "ofdm", "xx", "", "") {
		t.Error("did not expect scan to start without transports")
	}
	if !r.ui.logged("No freq table for (dvbt, ofdm, xx) found") {
		t.Errorf("expected missing table message, got: %v", r.ui.logs)
	}
}

func TestScanDVBT2Retry(t *testing.T) {
	ctx := context.Background()
	ch := &fakeChannel{types: []dtv.TunerType{dtv.TunerTypeDVBT2}}
	r := newRig(t, config.Config{}, ch, nil)

	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardDVB, "dvbt2", oneTransport(474000000)) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)
	r.tick(1100 * time.Millisecond)
	r.tick(1100 * time.Millisecond)

	var got []string
	for _, m := range ch.tuned {
		got = append(got, m.ModSys)
	}
	if diff := cmp.Diff([]string{dtv.ModSysDVBT, dtv.ModSysDVBT2}, got); diff != "" {
		t.Errorf("unexpected delivery systems tried (-want +got):\n%s", diff)
	}
	if r.s.Scanning() {
		t.Error("expected scan to be complete")
	}
}

func TestScanFollowsNIT(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	r.mon.lock = true

	start := map[string]string{"std": "dvb", "type": "dvbt", "frequency": "474000000", "bandwidth": "8"}
	if !r.s.ScanTransportsStartingOn(ctx, 1, start) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)

	terrestrial := func(f uint64) []si.Descriptor {
		return []si.Descriptor{si.TerrestrialDelivery{Frequency: f, Bandwidth: "8", Constellation: "qam_64"}}
	}
	r.sd.AddPAT(testPAT(testTSID, 1))
	r.sd.AddPMT(testPMT(1, false))
	r.sd.AddNIT(testNIT(
		si.NITTransport{TSID: testTSID, ONID: testONID, Descriptors: terrestrial(474000000)},
		si.NITTransport{TSID: 101, ONID: testONID, Descriptors: terrestrial(482000000)},
	))
	r.sd.AddSDT(testSDT(testONID, tvService(1, "One", "ONE")))
	if n := r.channelListLen(); n != 1 {
		t.Fatalf("expected transport to complete on sdt, got: %d entries", n)
	}

	r.tick(100 * time.Millisecond)
	items := r.s.list.Items()
	if len(items) != 2 {
		t.Fatalf("did not get expected transports after nit, got: %d, want: 2", len(items))
	}
	if got := items[1]; got.FriendlyName != "TransportID 101" || got.Tuning.TransportID != 101 || got.Tuning.NetworkID != testONID {
		t.Errorf("unexpected transport from nit: %v", got)
	}

	r.tick(100 * time.Millisecond)
	if diff := cmp.Diff([]uint64{474000000, 482000000}, r.ch.frequencies()); diff != "" {
		t.Errorf("unexpected tuning (-want +got):\n%s", diff)
	}

	// The second transport carries the same NIT, which adds nothing new.
	r.sd.AddPAT(testPAT(101, 2))
	r.sd.AddPMT(testPMT(2, false))
	r.sd.AddNIT(testNIT(
		si.NITTransport{TSID: testTSID, ONID: testONID, Descriptors: terrestrial(474000000)},
		si.NITTransport{TSID: 101, ONID: testONID, Descriptors: terrestrial(482000000)},
	))
	r.sd.AddSDT(&si.SDT{TSID: 101, ONID: testONID, Services: []si.SDTService{tvService(2, "Two", "TWO")}})
	r.tick(100 * time.Millisecond)
	r.tick(100 * time.Millisecond)

	if r.s.Scanning() {
		t.Error("expected scan to be complete")
	}
	if n := r.s.list.Len(); n != 2 {
		t.Errorf("did not expect more transports, got: %d", n)
	}
	if n := len(r.s.ChannelList(false)); n != 2 {
		t.Errorf("did not get expected transports with channels, got: %d, want: 2", n)
	}
}

func TestFreesatOtherTables(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	r.mon.lock = true

	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardDVB, "dvbt", oneTransport(474000000)) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)

	r.sd.AddPAT(testPAT(testTSID, 1))
	r.sd.AddPMT(testPMT(1, false))
	r.sd.AddNIT(testNIT(si.NITTransport{TSID: testTSID, ONID: si.NetworkSES2}))
	r.sd.AddSDT(testSDT(si.NetworkSES2, tvService(1, "One", "ONE")))
	if n := r.channelListLen(); n != 0 {
		t.Fatalf("did not expect completion while other tables may arrive, got: %d entries", n)
	}

	// A BAT on the Freesat PID is accepted now and extends the wait.
	r.clk.advance(8 * time.Second)
	r.sd.AddBAT(si.PIDFreesatSI, &si.BAT{BouquetID: 0x1000})
	if !r.sd.HasCachedAnyBATs() {
		t.Fatal("expected freesat bat to be accepted")
	}

	r.tick(4 * time.Second)
	if n := r.channelListLen(); n != 0 {
		t.Fatalf("did not expect completion within extended wait, got: %d entries", n)
	}

	r.tick(7 * time.Second)
	if n := r.channelListLen(); n != 1 {
		t.Errorf("expected completion after other tables, got: %d entries", n)
	}
}

func TestFreesatRepeatedOtherSDT(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	r.mon.lock = true

	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardDVB, "dvbt", oneTransport(474000000)) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)

	r.sd.AddPAT(testPAT(testTSID, 1))
	r.sd.AddPMT(testPMT(1, false))
	r.sd.AddNIT(testNIT(si.NITTransport{TSID: testTSID, ONID: si.NetworkSES2}))
	r.sd.AddSDT(testSDT(si.NetworkSES2, tvService(1, "One", "ONE")))

	// The same other SDT comes round the carousel every 5s. Only its first
	// arrival extends the wait, to 15s.
	other := &si.SDT{TSID: testTSID + 1, ONID: si.NetworkSES2, Services: []si.SDTService{tvService(7, "Seven", "SVN")}}
	for i := 1; i <= 3; i++ {
		r.clk.advance(5 * time.Second)
		r.sd.AddSDTOther(si.PIDFreesatSI, other)
		r.s.handleActiveScan()
		if n := r.channelListLen(); n != 0 {
			t.Fatalf("did not expect completion at %ds, got: %d entries", 5*i, n)
		}
	}

	r.clk.advance(5 * time.Second)
	r.sd.AddSDTOther(si.PIDFreesatSI, other)
	r.s.handleActiveScan()
	if n := r.channelListLen(); n != 1 {
		t.Fatalf("expected completion once other tables stopped changing, got: %d entries", n)
	}
	if r.ui.logged("Timed out") {
		t.Errorf("did not expect transport to time out, got: %v", r.ui.logs)
	}
	if !r.ui.logged("Found 1 probable channels") {
		t.Errorf("expected channels found message, got: %v", r.ui.logs)
	}
}

func TestOtherTablesOutsideFreesat(t *testing.T) {
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	if !r.s.ScanForChannels(context.Background(), 1, dtv.SIStandardDVB, "dvbt", oneTransport(474000000)) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)

	r.s.HandleSDTOther(testTSID+1, &si.SDT{TSID: testTSID + 1, ONID: testONID})
	r.s.HandleBAT(&si.BAT{BouquetID: 1})

	r.s.mu.Lock()
	got := r.s.otherTableTime
	r.s.mu.Unlock()
	if got != 0 {
		t.Errorf("did not expect other table wait without freesat, got: %v", got)
	}
}

func TestStopScannerAbandonsScan(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{}, dvbtChannel(), nil)
	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardDVB, "dvbt", oneTransport(474000000)) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)
	r.sd.AddSDT(testSDT(si.NetworkSES2, tvService(1, "One", "ONE")))

	r.s.mu.Lock()
	armed := r.s.setOtherTables
	r.s.mu.Unlock()
	if !armed {
		t.Fatal("expected freesat tables to be looked for")
	}

	r.s.StopScanner()
	if r.s.Scanning() {
		t.Error("did not expect scanning after stop")
	}
	if !r.s.ScanForChannels(ctx, 1, dtv.SIStandardDVB, "dvbt", oneTransport(482000000)) {
		t.Fatal("could not start scan after stop")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.setOtherTables || r.s.otherTableTime != 0 || r.s.dvbt2Tried || r.s.waiting {
		t.Errorf("unexpected state carried into new session, setOtherTables: %v, otherTableTime: %v, dvbt2Tried: %v, waiting: %v",
			r.s.setOtherTables, r.s.otherTableTime, r.s.dvbt2Tried, r.s.waiting)
	}
}

func TestScanExistingTransports(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	src, err := db.AddSource(ctx, "antenna", store.SourceSI{NITID: -1})
	if err != nil {
		t.Fatalf("could not add source: %v", err)
	}
	first, err := db.InsertMultiplex(ctx, src, dtv.Multiplex{Frequency: 474000000, SIStandard: dtv.SIStandardDVB, TransportID: 0x1004, NetworkID: testONID})
	if err != nil {
		t.Fatalf("could not insert multiplex: %v", err)
	}
	second, err := db.InsertMultiplex(ctx, src, dtv.Multiplex{Frequency: 482000000, SIStandard: dtv.SIStandardDVB})
	if err != nil {
		t.Fatalf("could not insert multiplex: %v", err)
	}

	r := newRig(t, config.Config{InputName: "DVBInput"}, dvbtChannel(), db)
	if !r.s.ScanExistingTransports(ctx, src, false) {
		t.Fatal("could not start scan")
	}
	var names []string
	for _, it := range r.s.list.Items() {
		names = append(names, it.FriendlyName)
	}
	want := []string{"Transport ID 4100", fmt.Sprintf("Multiplex #%d", second)}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("unexpected transport names (-want +got):\n%s", diff)
	}

	r.tick(100 * time.Millisecond)
	if diff := cmp.Diff([]uint{first}, r.ch.mplexes); diff != "" {
		t.Errorf("unexpected multiplexes tuned (-want +got):\n%s", diff)
	}

	empty, err := db.AddSource(ctx, "empty", store.SourceSI{NITID: -1})
	if err != nil {
		t.Fatalf("could not add source: %v", err)
	}
	r.s.StopScanner()
	if r.s.ScanExistingTransports(ctx, empty, false) {
		t.Error("did not expect scan to start for source without multiplexes")
	}
}

func TestScanTransport(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	src, err := db.AddSource(ctx, "antenna", store.SourceSI{NITID: -1, BouquetID: 0x1000, RegionID: 0x0101})
	if err != nil {
		t.Fatalf("could not add source: %v", err)
	}
	id, err := db.InsertMultiplex(ctx, src, dtv.Multiplex{Frequency: 177000000, Modulation: "8vsb", SIStandard: dtv.SIStandardATSC})
	if err != nil {
		t.Fatalf("could not insert multiplex: %v", err)
	}

	ch := &fakeChannel{types: []dtv.TunerType{dtv.TunerTypeATSC}}
	r := newRig(t, config.Config{}, ch, db)
	if r.s.ScanTransport(ctx, id+1, false) {
		t.Fatal("did not expect scan of missing multiplex to start")
	}
	if !r.s.ScanTransport(ctx, id, false) {
		t.Fatal("could not start scan")
	}
	items := r.s.list.Items()
	if len(items) != 1 || items[0].FriendlyName != "ATSC Channel 7" || items[0].SourceID != src {
		t.Errorf("unexpected transports: %v", items)
	}
	if r.s.bouquetID != 0x1000 || r.s.regionID != 0x0101 {
		t.Errorf("did not get expected bouquet and region, got: %#x, %#x", r.s.bouquetID, r.s.regionID)
	}
	if r.s.ScanTransport(ctx, id, false) {
		t.Error("did not expect a scan to start while scanning")
	}
}

func TestScanCurrentTransport(t *testing.T) {
	ch := dvbtChannel()
	ch.current = &dtv.Multiplex{Frequency: 506000000, Bandwidth: "8"}
	r := newRig(t, config.Config{}, ch, nil)

	if !r.s.ScanCurrentTransport(context.Background(), 1) {
		t.Fatal("could not start scan")
	}
	item := r.s.list.Items()[0]
	if item.TuneTimeout != currentTransportTimeout || item.Tuning.SIStandard != dtv.SIStandardDVB {
		t.Errorf("unexpected transport: %v, timeout %v", item, item.TuneTimeout)
	}

	r.tick(100 * time.Millisecond)
	r.tick(3 * time.Second)
	if n := ch.tunes(); n != 1 || !r.s.Scanning() {
		t.Errorf("expected current transport to be waited on, got: %d tunes", n)
	}
	r.tick(30 * time.Second)
	if r.s.Scanning() {
		t.Error("expected scan to be complete after tune timeout")
	}
}

func TestScanIPTVChannels(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, config.Config{}, dvbtChannel(), nil)

	chans := map[string]dtv.IPTVChannel{
		"2": {Name: "Two", ProgramNumber: 5, Tuning: dtv.IPTVTuning{DataURL: "udp://239.0.0.2:1234"}},
		"1": {Name: "One", Tuning: dtv.IPTVTuning{DataURL: "udp://239.0.0.1:1234"}},
	}
	if !r.s.ScanIPTVChannels(ctx, 1, chans) {
		t.Fatal("could not start scan")
	}
	items := r.s.list.Items()
	if len(items) != 2 || items[0].IPTVChannel != "1" || items[1].IPTVChannel != "2" {
		t.Fatalf("unexpected transports: %v", items)
	}
	if diff := cmp.Diff([]dtv.ChannelInfo{{Name: "Two", ServiceID: 5}}, items[1].ExpectedChannels); diff != "" {
		t.Errorf("unexpected expected channels (-want +got):\n%s", diff)
	}

	r.tick(100 * time.Millisecond)
	if diff := cmp.Diff([]dtv.IPTVTuning{{DataURL: "udp://239.0.0.1:1234"}}, r.ch.iptv); diff != "" {
		t.Errorf("unexpected streams tuned (-want +got):\n%s", diff)
	}
}

func TestScanAnalog(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	src, err := db.AddSource(ctx, "analog", store.SourceSI{NITID: -1})
	if err != nil {
		t.Fatalf("could not add source: %v", err)
	}

	ch := &fakeChannel{types: []dtv.TunerType{dtv.TunerTypeAnalog}}
	r := newRig(t, config.Config{}, ch, db)
	r.s.SetAnalog(true)

	if !r.s.ScanForChannels(ctx, src, dtv.SIStandardAnalog, "analog", oneTransport(55250000)) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)
	r.tick(100 * time.Millisecond)
	if !r.s.Scanning() {
		t.Fatal("expected scan to wait for analog lock")
	}

	r.mon.lock = true
	r.tick(100 * time.Millisecond)
	if r.s.Scanning() {
		t.Error("expected scan to be complete")
	}
	if !r.ui.logged("Added Channel 0") {
		t.Errorf("expected channel added message, got: %v", r.ui.logs)
	}
	got, err := db.Channels(ctx, src)
	if err != nil {
		t.Fatalf("could not get channels: %v", err)
	}
	if len(got) != 1 || got[0].ChanNum != "0" || got[0].Callsign != "unknown-0" {
		t.Errorf("unexpected channels: %+v", got)
	}
}

func TestTuneFailure(t *testing.T) {
	ch := dvbtChannel()
	ch.fail = true
	r := newRig(t, config.Config{}, ch, nil)

	transports := append(oneTransport(474000000), oneTransport(482000000)...)
	if !r.s.ScanForChannels(context.Background(), 1, dtv.SIStandardDVB, "dvbt", transports) {
		t.Fatal("could not start scan")
	}
	r.tick(100 * time.Millisecond)
	r.tick(100 * time.Millisecond)
	r.tick(100 * time.Millisecond)
	if diff := cmp.Diff([]uint64{474000000, 482000000}, ch.frequencies()); diff != "" {
		t.Errorf("unexpected tuning (-want +got):\n%s", diff)
	}
	if r.s.Scanning() {
		t.Error("expected scan to be complete")
	}
	if r.mon.starts != 0 {
		t.Errorf("did not expect monitor to start, got: %d starts", r.mon.starts)
	}
}

func TestDriver(t *testing.T) {
	r := newRig(t, config.Config{PollInterval: 5 * time.Millisecond}, dvbtChannel(), nil)
	if !r.s.ScanForChannels(context.Background(), 1, dtv.SIStandardDVB, "dvbt", oneTransport(474000000)) {
		t.Fatal("could not start scan")
	}

	r.s.StartScanner()
	deadline := time.Now().Add(2 * time.Second)
	for r.ch.tunes() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scan driver did not tune")
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.s.StopScanner()

	r.mon.mu.Lock()
	stops := r.mon.stops
	r.mon.mu.Unlock()
	if stops == 0 {
		t.Error("expected monitor to be stopped with scanner")
	}
	if n := r.ch.tunes(); n != 1 {
		t.Errorf("did not get expected tunes, got: %d, want: 1", n)
	}
}
