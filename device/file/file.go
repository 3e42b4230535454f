/*
DESCRIPTION
  file.go provides Tuner, an implementation of device.Channel for a
  directory of MPEG-TS recordings, and the looping reader its Monitor
  plays recordings through.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides a tuner and signal monitor backed by MPEG-TS
// recordings.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ausocean/dtvscan/device"
	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/utils/logging"
)

// Ext is the extension of recordings.
const Ext = ".ts"

// Lookup returns the stored tuning parameters of a multiplex.
type Lookup func(mplexID uint) (dtv.Multiplex, error)

// Tuner is a device.Channel over a directory of recordings. The transport
// at a frequency is the file <dir>/<frequency>.ts; tuning to a frequency
// with no recording fails.
type Tuner struct {
	log    logging.Logger
	dir    string
	std    string
	types  []dtv.TunerType
	lookup Lookup

	mu    sync.Mutex
	path  string // Recording of the tuned transport.
	tuned dtv.Multiplex
	ok    bool
}

// NewTuner returns a new Tuner reading recordings from dir. std is the SI
// standard of the input and types the delivery systems it claims. lookup
// may be nil, in which case TuneMultiplex always fails.
func NewTuner(l logging.Logger, dir, std string, types []dtv.TunerType, lookup Lookup) *Tuner {
	return &Tuner{log: l, dir: dir, std: std, types: types, lookup: lookup}
}

// Check reports problems with the setup of t: a recording directory that
// does not exist and a tuner claiming no delivery systems.
func (t *Tuner) Check() error {
	var errs device.MultiError
	fi, err := os.Stat(t.dir)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("bad recording directory: %w", err))
	case !fi.IsDir():
		errs = append(errs, fmt.Errorf("recording directory %s is not a directory", t.dir))
	}
	if len(t.types) == 0 {
		errs = append(errs, errors.New("no delivery systems"))
	}
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Path returns the recording for frequency f in dir.
func Path(dir string, f uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", f, Ext))
}

// Device returns the recording directory.
func (t *Tuner) Device() string { return t.dir }

// SIStandard returns the SI standard of the input.
func (t *Tuner) SIStandard() string { return t.std }

// TunerTypes returns the delivery systems the tuner claims.
func (t *Tuner) TunerTypes() []dtv.TunerType { return t.types }

// Tune selects the recording for the frequency of m.
func (t *Tuner) Tune(m dtv.Multiplex) bool {
	return t.tune(Path(t.dir, m.Frequency), m)
}

// TuneMultiplex looks up a stored multiplex and tunes to it.
func (t *Tuner) TuneMultiplex(mplexID uint, inputName string) bool {
	if t.lookup == nil {
		t.log.Warning("no multiplex lookup, cannot tune", "mplexid", mplexID)
		return false
	}
	m, err := t.lookup(mplexID)
	if err != nil {
		t.log.Warning("could not look up multiplex", "mplexid", mplexID, "input", inputName, "error", err.Error())
		return false
	}
	return t.Tune(m)
}

// TuneIPTV selects the recording named by a file URL or path.
func (t *Tuner) TuneIPTV(it dtv.IPTVTuning) bool {
	p := strings.TrimPrefix(it.DataURL, "file://")
	if strings.Contains(p, "://") {
		t.log.Warning("only file urls can be tuned", "url", it.DataURL)
		return false
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(t.dir, p)
	}
	return t.tune(p, dtv.Multiplex{SIStandard: dtv.SIStandardIPTV})
}

func (t *Tuner) tune(path string, m dtv.Multiplex) bool {
	_, err := os.Stat(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.log.Debug("no recording for transport", "path", path)
		t.path, t.ok = "", false
		return false
	}
	t.path, t.tuned, t.ok = path, m, true
	return true
}

// Tuned returns the parameters last tuned successfully.
func (t *Tuner) Tuned() (dtv.Multiplex, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tuned, t.ok
}

func (t *Tuner) recording() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Rotor returns nil; recordings have no positioner.
func (t *Tuner) Rotor() device.RotorControl { return nil }

// PMTSink returns nil; recordings have no conditional access module.
func (t *Tuner) PMTSink() device.PMTSink { return nil }

// loopFile is a recording opened for reading, optionally looping back to
// the start at the end of the file.
type loopFile struct {
	f    *os.File
	loop bool
	log  logging.Logger
}

func openLoop(l logging.Logger, path string, loop bool) (*loopFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open recording: %w", err)
	}
	return &loopFile{f: f, loop: loop, log: l}, nil
}

// Read implements io.Reader.
func (m *loopFile) Read(p []byte) (int, error) {
	if m.f == nil {
		return 0, errors.New("recording is closed")
	}

	n, err := m.f.Read(p)
	if err != nil && err != io.EOF {
		return n, err
	}

	if (n < len(p) || err == io.EOF) && m.loop {
		m.log.Debug("looping recording")
		// At end of file seek to the start and keep reading from there.
		_, err = m.f.Seek(0, io.SeekStart)
		if err != nil {
			return n, fmt.Errorf("could not seek to start of recording for loop: %w", err)
		}
		if n != 0 {
			return n, nil
		}
		n, err = m.f.Read(p)
		if err != nil {
			return n, fmt.Errorf("could not read after start seek: %w", err)
		}
	}
	return n, err
}

func (m *loopFile) Close() error {
	err := m.f.Close()
	m.f = nil
	return err
}
