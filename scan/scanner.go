/*
NAME
  scanner.go

DESCRIPTION
  scanner.go provides Scanner, the channel scan state machine, which tunes a
  list of transports in turn, collects the broadcast tables found on each
  and builds the channel list from them.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package scan provides a channel scanner for digital television tuners.
//
// A Scanner walks a TransportList, tuning each transport and waiting for
// its PAT, PMT, ATSC and DVB tables to arrive through the StreamData cache.
// Once the tables of a transport are complete, or it times out, the tables
// are kept and the next transport is tuned. DVB NITs can extend the list
// with transports not yet scanned. ChannelList turns the collected tables
// into channel records.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ausocean/dtvscan/device"
	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/scan/config"
	"github.com/ausocean/dtvscan/si"
	"github.com/ausocean/dtvscan/store"
	"github.com/ausocean/utils/logging"
)

// Minimum time to wait for the tables of each family once some have been
// seen, and for a decryption test.
const (
	dvbTableTimeout   = 30 * time.Second
	atscTableTimeout  = 10 * time.Second
	mpegTableTimeout  = 15 * time.Second
	decryptionTimeout = 4250 * time.Millisecond

	// otherTableTimeout is how long the Freesat BAT and SDT other carousel
	// takes to come round.
	otherTableTimeout = 10 * time.Second

	// currentTransportTimeout is the signal timeout used when scanning the
	// transport the tuner is already on.
	currentTransportTimeout = 30 * time.Second
)

// StreamData is the table cache fed by the signal monitor.
type StreamData interface {
	Reset()
	AddListener(l si.Listener)
	RemoveListener(l si.Listener)
	AddListeningPID(pid uint16)
	SetFreesatAdditionalSI(on bool)
	SetVersionSDT(tsid uint16, version int)

	HasCachedAnyPAT() bool
	HasCachedAllPAT(tsid uint16) bool
	CachedPATs() []*si.PAT
	CachedPATSections(tsid uint16) []*si.PAT

	HasCachedAnyPMTs() bool
	HasCachedAllPMTs() bool
	CachedPMTs() []*si.PMT

	HasCachedMGT() bool
	CachedMGT() *si.MGT
	HasCachedAnyVCTs() bool
	HasCachedAllCVCTs() bool
	HasCachedAllTVCTs() bool
	CachedCVCTs() []*si.VCT
	CachedTVCTs() []*si.VCT

	HasCachedAnyNIT() bool
	HasCachedAllNIT() bool
	CachedNIT() []*si.NIT
	HasCachedAnySDTs() bool
	HasCachedAllSDT(tsid uint16) bool
	CachedSDTs() []*si.SDT
	CachedSDTSections(tsid uint16) []*si.SDT
	HasCachedAnyBATs() bool
	HasCachedAllBATs() bool
	CachedBATs() []*si.BAT

	TestDecryption(pmt *si.PMT)
	StopTestingDecryption()
}

// Store is the configuration store queried while scanning.
type Store interface {
	MplexIDs(ctx context.Context, sourceID uint) ([]uint, error)
	Multiplex(ctx context.Context, mplexID uint) (uint, dtv.Multiplex, error)
	FindMplexID(ctx context.Context, sourceID uint, freq uint64, tsid, netid uint16) (uint, error)
	SourceSI(ctx context.Context, sourceID uint) (store.SourceSI, error)
	FindChannel(ctx context.Context, sourceID uint, channum string) (bool, error)
	CreateChannel(ctx context.Context, c store.Channel) (uint, error)
}

// Progress is a snapshot of how far a scan has got.
type Progress struct {
	Percent           int
	TransportsScanned int
	ChannelsFound     int
	Current           string
}

// Scanner is the channel scan state machine. Table callbacks and the scan
// driver share a single lock; the Scanner is safe for concurrent use.
type Scanner struct {
	log logging.Logger
	ch  device.Channel
	mon device.SignalMonitor
	sd  StreamData
	db  Store
	ui  Monitor
	now func() time.Time

	// Fixed by configuration.
	inputName      string
	tuneTimeout    time.Duration
	channelTimeout time.Duration
	testDecryption bool
	pollInterval   time.Duration
	stopGrace      time.Duration

	// Driver goroutine.
	runMu sync.Mutex
	exit  chan struct{}
	done  chan struct{}

	mu sync.Mutex

	id            uuid.UUID
	sourceID      uint
	signalTimeout time.Duration
	tunerType     dtv.TunerType // Overrides the guessed tuner type when known.
	ctx           context.Context

	list    TransportList
	current Cursor
	next    Cursor

	scanning          bool
	waiting           bool // Waiting for the tables of current.
	analog            bool // Signal lock on analog transports adds channels.
	analogWait        bool // Waiting for lock on an analog transport.
	transportsScanned int
	channelsFound     int
	started           time.Time // Timer for the current transport.

	info        *ScannedChannelInfo
	channelList []ChannelListItem

	// Decryption testing of the current transport.
	testing    bool
	encStatus  map[uint16]EncryptionStatus
	encChecked map[uint16]bool

	// NIT transport discovery.
	extend    bool
	extension map[uint32]dtv.Multiplex // By onid<<16|tsid.
	tsScanned map[uint32]bool          // By onid<<16|tsid.

	// Freesat additional SI.
	setOtherTables bool
	otherTableTime time.Duration // Elapsed time before which other tables may still arrive.

	defAuthorities map[uint64]string // By onid<<32|tsid<<16|sid.
	bouquetID      uint16
	regionID       uint16

	dvbt2Tried bool
}

// New returns a Scanner for ch, watched by mon, whose tables arrive through
// sd. The scanner registers itself as a listener of sd. If ui is nil,
// progress is logged.
func New(cfg config.Config, ch device.Channel, mon device.SignalMonitor, sd StreamData, db Store, ui Monitor) *Scanner {
	cfg.Validate()
	if ui == nil {
		ui = &LogMonitor{Log: cfg.Logger}
	}
	s := &Scanner{
		log:            cfg.Logger,
		ch:             ch,
		mon:            mon,
		sd:             sd,
		db:             db,
		ui:             ui,
		now:            time.Now,
		inputName:      cfg.InputName,
		tuneTimeout:    cfg.SignalTimeout,
		channelTimeout: cfg.ChannelTimeout,
		testDecryption: cfg.TestDecryption,
		pollInterval:   cfg.PollInterval,
		stopGrace:      cfg.StopGrace,
		id:             uuid.New(),
		sourceID:       cfg.SourceID,
		signalTimeout:  cfg.SignalTimeout,
		tunerType:      cfg.TunerType,
		ctx:            context.Background(),
		encStatus:      make(map[uint16]EncryptionStatus),
		encChecked:     make(map[uint16]bool),
		extension:      make(map[uint32]dtv.Multiplex),
		tsScanned:      make(map[uint32]bool),
		defAuthorities: make(map[uint64]string),
	}
	s.current = s.list.End()
	s.next = s.list.End()
	if s.tunerType == dtv.TunerTypeUnknown {
		s.tunerType = s.guessTunerType(dtv.TunerTypeUnknown)
	}
	sd.AddListener(s)
	return s
}

// Close unregisters the scanner from its stream data.
func (s *Scanner) Close() {
	s.sd.RemoveListener(s)
}

// SessionID returns the ID of the current scan session.
func (s *Scanner) SessionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Scanning reports whether a scan is in progress.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Progress returns how far the scan has got.
func (s *Scanner) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, _ := s.currentTransportInfo()
	return Progress{
		Percent:           s.percent(),
		TransportsScanned: s.transportsScanned,
		ChannelsFound:     s.channelsFound,
		Current:           name,
	}
}

// elapsed returns the time since the transport timer was started.
func (s *Scanner) elapsed() time.Duration {
	return s.now().Sub(s.started)
}

func (s *Scanner) restartTimer() {
	s.started = s.now()
}

func (s *Scanner) percent() int {
	n := s.list.Len()
	if n == 0 {
		return 0
	}
	p := s.transportsScanned * 100 / n
	if p > 100 {
		p = 100
	}
	return p
}

func (s *Scanner) updatePercent() {
	s.ui.ScanPercentComplete(s.percent())
}

// guessTunerType returns t if the channel supports it, else the channel's
// preferred tuner type. A configured tuner type replaces t.
func (s *Scanner) guessTunerType(t dtv.TunerType) dtv.TunerType {
	if s.tunerType != dtv.TunerTypeUnknown {
		t = s.tunerType
	}
	if s.ch == nil {
		return t
	}
	types := s.ch.TunerTypes()
	for _, tt := range types {
		if tt == t {
			return t
		}
	}
	if len(types) != 0 {
		return types[0]
	}
	return t
}

// resetSession readies the scanner for a new transport list. It must be
// called with the lock held.
func (s *Scanner) resetSession(ctx context.Context, sourceID uint) {
	s.id = uuid.New()
	s.ctx = ctx
	s.sourceID = sourceID
	s.signalTimeout = s.tuneTimeout
	s.list.Clear()
	s.info = nil
	s.testing = false
	s.waiting = false
	s.dvbt2Tried = false
	s.setOtherTables = false
	s.otherTableTime = 0
	s.encStatus = make(map[uint16]EncryptionStatus)
	s.encChecked = make(map[uint16]bool)
	s.current = s.list.End()
	s.next = s.list.End()
	s.defAuthorities = make(map[uint64]string)
	s.tsScanned = make(map[uint32]bool)
	s.extension = make(map[uint32]dtv.Multiplex)
	s.bouquetID, s.regionID = 0, 0
	if s.db == nil {
		return
	}
	src, err := s.db.SourceSI(ctx, sourceID)
	if err != nil {
		s.log.Debug("no source service information settings", "source", sourceID, "error", err.Error())
		return
	}
	s.bouquetID, s.regionID = src.BouquetID, src.RegionID
}

// begin starts scanning the freshly built list. It must be called with
// the lock held.
func (s *Scanner) begin(extend bool) bool {
	if s.list.Len() == 0 {
		return false
	}
	s.extend = extend
	s.restartTimer()
	s.waiting = false
	s.transportsScanned = 0
	s.next = s.list.Begin()
	s.scanning = true
	s.log.Info("scan starting", "session", s.id.String(), "source", s.sourceID, "transports", s.list.Len())
	return true
}
