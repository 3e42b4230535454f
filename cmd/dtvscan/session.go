/*
NAME
  session.go

DESCRIPTION
  session.go wires a scanner to a recording tuner, its table cache and the
  channel database, runs a scan to completion and stores what it found.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ausocean/dtvscan/device/file"
	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/freqtable"
	"github.com/ausocean/dtvscan/scan"
	"github.com/ausocean/dtvscan/scan/config"
	"github.com/ausocean/dtvscan/store"
	"github.com/ausocean/dtvscan/streamdata"
	"github.com/ausocean/utils/logging"
)

// waitInterval is how often a running scan is checked for completion.
const waitInterval = 100 * time.Millisecond

// errNotStarted is returned when the scanner refuses a scan.
var errNotStarted = errors.New("scan could not be started, see log")

// session is one scan of a video source over a directory of recordings.
type session struct {
	log      logging.Logger
	db       *store.DB
	sourceID uint
	fullTS   bool
	tuner    *file.Tuner
	scanner  *scan.Scanner
	out      io.Writer

	// keep, if set, selects the channels of a transport that are saved.
	keep func(t *scan.ScanDTVTransport, c *scan.ChannelInsertInfo) bool
}

// settings are what a session is built from.
type settings struct {
	dbPath string
	source string
	dir    string
	std    string
	types  []string
	fullTS bool
	cfg    config.Config
	ui     scan.Monitor
	out    io.Writer
}

// settingsFromConfig collects session settings from flags, the config file
// and the environment.
func settingsFromConfig(log logging.Logger) (settings, error) {
	path, err := dataPath(keyDB, dbFile)
	if err != nil {
		return settings{}, err
	}
	return settings{
		dbPath: path,
		source: sourceName(),
		dir:    viper.GetString(keyDir),
		std:    viper.GetString(keyStandard),
		types:  viper.GetStringSlice(keyTypes),
		fullTS: viper.GetBool(keyFullTS),
		cfg:    scanConfig(log),
		ui:     &consoleMonitor{w: os.Stderr},
		out:    os.Stdout,
	}, nil
}

// newSession opens the channel database, creating the video source if it
// does not yet exist, and builds a scanner over the recordings.
func newSession(ctx context.Context, log logging.Logger, st settings) (*session, error) {
	db, err := store.Open(st.dbPath)
	if err != nil {
		return nil, err
	}
	src, err := db.SourceID(ctx, st.source)
	if errors.Is(err, store.ErrNotFound) {
		src, err = db.AddSource(ctx, st.source, store.SourceSI{NITID: -1})
		if err == nil {
			log.Info("created video source", "name", st.source, "sourceid", src)
		}
	}
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "could not find video source %q", st.source)
	}

	var types []dtv.TunerType
	for _, t := range st.types {
		types = append(types, dtv.ParseTunerType(t))
	}
	lookup := func(id uint) (dtv.Multiplex, error) {
		_, m, err := db.Multiplex(ctx, id)
		return m, err
	}

	tuner := file.NewTuner(log, st.dir, dtv.SIStandardFor(st.std), types, lookup)
	if err := tuner.Check(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "bad tuner setup")
	}
	cache := streamdata.New(log)
	mon := file.NewMonitor(log, tuner, cache, 0, 0)

	cfg := st.cfg
	cfg.Logger = log
	cfg.SourceID = src
	return &session{
		log:      log,
		db:       db,
		sourceID: src,
		fullTS:   st.fullTS,
		tuner:    tuner,
		scanner:  scan.New(cfg, tuner, mon, cache, db, st.ui),
		out:      st.out,
	}, nil
}

func (ss *session) close() {
	ss.scanner.Close()
	if err := ss.db.Close(); err != nil {
		ss.log.Warning("could not close database", "error", err.Error())
	}
}

// run starts the scan begun by start, waits for it to finish, or for ctx
// to be cancelled, and then stores and prints what was found.
func (ss *session) run(ctx context.Context, start func() bool) error {
	started := time.Now()
	if !start() {
		return errNotStarted
	}
	ss.scanner.StartScanner()

	t := time.NewTicker(waitInterval)
	defer t.Stop()
	for ss.scanner.Scanning() {
		select {
		case <-ctx.Done():
			ss.scanner.StopScanner()
			return ctx.Err()
		case <-t.C:
		}
	}
	ss.scanner.StopScanner()
	return ss.save(ctx, started)
}

// save stores the scanned transports and their channels, records the scan
// and writes the channel list as YAML.
func (ss *session) save(ctx context.Context, started time.Time) error {
	list := ss.scanner.ChannelList(ss.fullTS)
	var n int
	for i := range list {
		t := &list[i]
		if t.MplexID == 0 && t.Tuning.Frequency != 0 {
			id, err := ss.db.InsertMultiplex(ctx, ss.sourceID, t.Tuning)
			if err != nil {
				return err
			}
			t.MplexID = id
		}
		if ss.keep != nil {
			var kept []scan.ChannelInsertInfo
			for j := range t.Channels {
				if ss.keep(t, &t.Channels[j]) {
					kept = append(kept, t.Channels[j])
				}
			}
			t.Channels = kept
		}
		for j := range t.Channels {
			c := &t.Channels[j]
			c.MplexID = t.MplexID
			if _, err := ss.db.SaveChannel(ctx, storeChannel(ss.sourceID, c)); err != nil {
				return err
			}
			n++
		}
		ss.log.Info("saved transport", "frequency", freqtable.Frequency(t.Tuning.Frequency),
			"mplexid", t.MplexID, "channels", len(t.Channels))
	}

	err := ss.db.SaveScan(ctx, store.Scan{
		ID:         ss.scanner.SessionID(),
		SourceID:   ss.sourceID,
		Started:    started,
		Transports: len(list),
		Channels:   n,
	})
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(ss.out)
	enc.SetIndent(2)
	if err := enc.Encode(list); err != nil {
		return errors.Wrap(err, "could not write channel list")
	}
	return enc.Close()
}

func storeChannel(sourceID uint, c *scan.ChannelInsertInfo) store.Channel {
	return store.Channel{
		SourceID:         sourceID,
		MplexID:          c.MplexID,
		ChanNum:          c.ChanNum,
		Callsign:         c.Callsign,
		Name:             c.ServiceName,
		ServiceID:        c.ServiceID,
		ATSCMajor:        c.ATSCMajor,
		ATSCMinor:        c.ATSCMinor,
		UseOnAirGuide:    c.UseOnAirGuide,
		Hidden:           c.Hidden,
		HiddenInGuide:    c.HiddenInGuide,
		FreqID:           c.FreqID,
		DefaultAuthority: c.DefaultAuthority,
	}
}

// consoleMonitor writes scan progress to a terminal.
type consoleMonitor struct {
	w io.Writer

	mu  sync.Mutex
	pct int
}

func (m *consoleMonitor) ScanPercentComplete(pct int) {
	m.mu.Lock()
	m.pct = pct
	m.mu.Unlock()
}

func (m *consoleMonitor) ScanAppendTextToLog(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.w, "[%3d%%] %s\n", m.pct, text)
}

func (m *consoleMonitor) ScanUpdateStatusText(string) {}

func (m *consoleMonitor) ScanUpdateStatusTitleText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.w, text)
}

func (m *consoleMonitor) ScanComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.w, "scan complete")
}
