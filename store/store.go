/*
NAME
  store.go

DESCRIPTION
  store.go provides DB, the configuration store holding video sources,
  multiplexes, channels and scan records in an SQLite database.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package store provides the SQLite configuration store of video sources,
// multiplexes and channels.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ausocean/dtvscan/dtv"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS videosource (
  sourceid   INTEGER PRIMARY KEY,
  name       TEXT NOT NULL UNIQUE,
  dvb_nit_id INTEGER NOT NULL DEFAULT -1,
  bouquet_id INTEGER NOT NULL DEFAULT 0,
  region_id  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS dtv_multiplex (
  mplexid           INTEGER PRIMARY KEY,
  sourceid          INTEGER NOT NULL REFERENCES videosource(sourceid),
  transportid       INTEGER NOT NULL DEFAULT 0,
  networkid         INTEGER NOT NULL DEFAULT 0,
  frequency         INTEGER NOT NULL,
  symbolrate        INTEGER NOT NULL DEFAULT 0,
  inversion         TEXT NOT NULL DEFAULT '',
  bandwidth         TEXT NOT NULL DEFAULT '',
  hp_code_rate      TEXT NOT NULL DEFAULT '',
  lp_code_rate      TEXT NOT NULL DEFAULT '',
  modulation        TEXT NOT NULL DEFAULT '',
  transmission_mode TEXT NOT NULL DEFAULT '',
  guard_interval    TEXT NOT NULL DEFAULT '',
  hierarchy         TEXT NOT NULL DEFAULT '',
  polarity          TEXT NOT NULL DEFAULT '',
  fec               TEXT NOT NULL DEFAULT '',
  mod_sys           TEXT NOT NULL DEFAULT '',
  rolloff           TEXT NOT NULL DEFAULT '',
  sistandard        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_mplex_source ON dtv_multiplex(sourceid, frequency);
CREATE TABLE IF NOT EXISTS channel (
  chanid            INTEGER PRIMARY KEY,
  sourceid          INTEGER NOT NULL REFERENCES videosource(sourceid),
  mplexid           INTEGER NOT NULL DEFAULT 0,
  channum           TEXT NOT NULL,
  callsign          TEXT NOT NULL DEFAULT '',
  name              TEXT NOT NULL DEFAULT '',
  serviceid         INTEGER NOT NULL DEFAULT 0,
  atsc_major_chan   INTEGER NOT NULL DEFAULT 0,
  atsc_minor_chan   INTEGER NOT NULL DEFAULT 0,
  useonairguide     INTEGER NOT NULL DEFAULT 0 CHECK (useonairguide IN (0,1)),
  hidden            INTEGER NOT NULL DEFAULT 0 CHECK (hidden IN (0,1)),
  hidden_in_guide   INTEGER NOT NULL DEFAULT 0 CHECK (hidden_in_guide IN (0,1)),
  freqid            TEXT NOT NULL DEFAULT '',
  default_authority TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_channel_num ON channel(sourceid, channum);
CREATE TABLE IF NOT EXISTS scan (
  scanid     TEXT PRIMARY KEY,
  sourceid   INTEGER NOT NULL,
  started_at DATETIME NOT NULL,
  transports INTEGER NOT NULL,
  channels   INTEGER NOT NULL
);
`

// DB is the configuration store.
type DB struct {
	sql *sql.DB
}

// Open opens, creating if needed, the database at path.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "could not reach database")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "could not create schema")
	}
	return &DB{sql: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SourceSI holds the service information settings of a video source.
type SourceSI struct {
	NITID     int // Network ID to use the NIT of; -1 for the actual network.
	BouquetID uint16
	RegionID  uint16
}

// AddSource creates a video source and returns its ID.
func (d *DB) AddSource(ctx context.Context, name string, s SourceSI) (uint, error) {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO videosource(name, dvb_nit_id, bouquet_id, region_id) VALUES(?,?,?,?)`,
		name, s.NITID, s.BouquetID, s.RegionID)
	if err != nil {
		return 0, errors.Wrapf(err, "could not add source %q", name)
	}
	return lastID(res)
}

// SourceID returns the ID of the named video source.
func (d *DB) SourceID(ctx context.Context, name string) (uint, error) {
	var id uint
	err := d.sql.QueryRowContext(ctx, `SELECT sourceid FROM videosource WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "could not query source")
	}
	return id, nil
}

// SourceSI returns the service information settings of a video source.
func (d *DB) SourceSI(ctx context.Context, sourceID uint) (SourceSI, error) {
	var s SourceSI
	err := d.sql.QueryRowContext(ctx,
		`SELECT dvb_nit_id, bouquet_id, region_id FROM videosource WHERE sourceid = ?`, sourceID,
	).Scan(&s.NITID, &s.BouquetID, &s.RegionID)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, errors.Wrap(err, "could not query source")
	}
	return s, nil
}

// MplexIDs returns the IDs of the multiplexes of a video source in
// ascending order.
func (d *DB) MplexIDs(ctx context.Context, sourceID uint) ([]uint, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT mplexid FROM dtv_multiplex WHERE sourceid = ? ORDER BY mplexid`, sourceID)
	if err != nil {
		return nil, errors.Wrap(err, "could not query multiplexes")
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "could not scan multiplex id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "could not read multiplexes")
}

const mplexColumns = `sourceid, transportid, networkid, frequency, symbolrate, inversion, bandwidth,
  hp_code_rate, lp_code_rate, modulation, transmission_mode, guard_interval, hierarchy,
  polarity, fec, mod_sys, rolloff, sistandard`

// Multiplex returns the video source and tuning parameters of a multiplex.
func (d *DB) Multiplex(ctx context.Context, mplexID uint) (uint, dtv.Multiplex, error) {
	var (
		src uint
		m   dtv.Multiplex
	)
	err := d.sql.QueryRowContext(ctx, `SELECT `+mplexColumns+` FROM dtv_multiplex WHERE mplexid = ?`, mplexID).Scan(
		&src, &m.TransportID, &m.NetworkID, &m.Frequency, &m.SymbolRate, &m.Inversion, &m.Bandwidth,
		&m.HPCodeRate, &m.LPCodeRate, &m.Modulation, &m.TransMode, &m.GuardInterval, &m.Hierarchy,
		&m.Polarity, &m.FEC, &m.ModSys, &m.Rolloff, &m.SIStandard,
	)
	if err == sql.ErrNoRows {
		return 0, m, ErrNotFound
	}
	if err != nil {
		return 0, m, errors.Wrapf(err, "could not query multiplex %d", mplexID)
	}
	return src, m, nil
}

// FindMplexID returns the ID of the multiplex of a video source with the
// given frequency, transport stream ID and network ID, or 0 if there is
// none.
func (d *DB) FindMplexID(ctx context.Context, sourceID uint, freq uint64, tsid, netid uint16) (uint, error) {
	var id uint
	err := d.sql.QueryRowContext(ctx,
		`SELECT mplexid FROM dtv_multiplex WHERE sourceid = ? AND frequency = ? AND transportid = ? AND networkid = ?`,
		sourceID, freq, tsid, netid,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "could not query multiplex")
	}
	return id, nil
}

// InsertMultiplex stores m for a video source and returns its ID. An
// existing multiplex with the same frequency, transport stream ID and
// network ID is updated instead.
func (d *DB) InsertMultiplex(ctx context.Context, sourceID uint, m dtv.Multiplex) (uint, error) {
	id, err := d.FindMplexID(ctx, sourceID, m.Frequency, m.TransportID, m.NetworkID)
	if err != nil {
		return 0, err
	}
	args := []interface{}{
		sourceID, m.TransportID, m.NetworkID, m.Frequency, m.SymbolRate, m.Inversion, m.Bandwidth,
		m.HPCodeRate, m.LPCodeRate, m.Modulation, m.TransMode, m.GuardInterval, m.Hierarchy,
		m.Polarity, m.FEC, m.ModSys, m.Rolloff, m.SIStandard,
	}
	if id != 0 {
		_, err = d.sql.ExecContext(ctx, `UPDATE dtv_multiplex SET (`+mplexColumns+`) = (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?) WHERE mplexid = ?`,
			append(args, id)...)
		return id, errors.Wrapf(err, "could not update multiplex %d", id)
	}
	res, err := d.sql.ExecContext(ctx, `INSERT INTO dtv_multiplex(`+mplexColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return 0, errors.Wrap(err, "could not insert multiplex")
	}
	return lastID(res)
}

// Channel is a channel record.
type Channel struct {
	ID               uint
	SourceID         uint
	MplexID          uint
	ChanNum          string
	Callsign         string
	Name             string
	ServiceID        uint16
	ATSCMajor        uint16
	ATSCMinor        uint16
	UseOnAirGuide    bool
	Hidden           bool
	HiddenInGuide    bool
	FreqID           string
	DefaultAuthority string
}

// FindChannel reports whether a video source has a channel with the given
// channel number.
func (d *DB) FindChannel(ctx context.Context, sourceID uint, channum string) (bool, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM channel WHERE sourceid = ? AND channum = ?`, sourceID, channum).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "could not query channel")
	}
	return n != 0, nil
}

// CreateChannel inserts c and returns its ID.
func (d *DB) CreateChannel(ctx context.Context, c Channel) (uint, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO channel(
  sourceid, mplexid, channum, callsign, name, serviceid, atsc_major_chan, atsc_minor_chan,
  useonairguide, hidden, hidden_in_guide, freqid, default_authority) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.SourceID, c.MplexID, c.ChanNum, c.Callsign, c.Name, c.ServiceID, c.ATSCMajor, c.ATSCMinor,
		boolToInt(c.UseOnAirGuide), boolToInt(c.Hidden), boolToInt(c.HiddenInGuide), c.FreqID, c.DefaultAuthority)
	if err != nil {
		return 0, errors.Wrapf(err, "could not create channel %q", c.ChanNum)
	}
	return lastID(res)
}

// SaveChannel stores c, replacing the channel of the same multiplex and
// service ID if there is one, and returns its ID.
func (d *DB) SaveChannel(ctx context.Context, c Channel) (uint, error) {
	var id uint
	err := d.sql.QueryRowContext(ctx,
		`SELECT chanid FROM channel WHERE sourceid = ? AND mplexid = ? AND serviceid = ?`,
		c.SourceID, c.MplexID, c.ServiceID,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		return d.CreateChannel(ctx, c)
	case err != nil:
		return 0, errors.Wrap(err, "could not query channel")
	}
	_, err = d.sql.ExecContext(ctx, `UPDATE channel SET
  channum = ?, callsign = ?, name = ?, atsc_major_chan = ?, atsc_minor_chan = ?, useonairguide = ?,
  hidden = ?, hidden_in_guide = ?, freqid = ?, default_authority = ? WHERE chanid = ?`,
		c.ChanNum, c.Callsign, c.Name, c.ATSCMajor, c.ATSCMinor, boolToInt(c.UseOnAirGuide),
		boolToInt(c.Hidden), boolToInt(c.HiddenInGuide), c.FreqID, c.DefaultAuthority, id)
	return id, errors.Wrapf(err, "could not update channel %d", id)
}

// Channels returns the channels of a video source ordered by ID.
func (d *DB) Channels(ctx context.Context, sourceID uint) ([]Channel, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT chanid, sourceid, mplexid, channum, callsign, name, serviceid,
  atsc_major_chan, atsc_minor_chan, useonairguide, hidden, hidden_in_guide, freqid, default_authority
  FROM channel WHERE sourceid = ? ORDER BY chanid`, sourceID)
	if err != nil {
		return nil, errors.Wrap(err, "could not query channels")
	}
	defer rows.Close()

	var chans []Channel
	for rows.Next() {
		var (
			c                     Channel
			guide, hidden, hidGde int
		)
		err := rows.Scan(&c.ID, &c.SourceID, &c.MplexID, &c.ChanNum, &c.Callsign, &c.Name, &c.ServiceID,
			&c.ATSCMajor, &c.ATSCMinor, &guide, &hidden, &hidGde, &c.FreqID, &c.DefaultAuthority)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan channel")
		}
		c.UseOnAirGuide, c.Hidden, c.HiddenInGuide = guide == 1, hidden == 1, hidGde == 1
		chans = append(chans, c)
	}
	return chans, errors.Wrap(rows.Err(), "could not read channels")
}

// Scan is the record of one scan session.
type Scan struct {
	ID         uuid.UUID
	SourceID   uint
	Started    time.Time
	Transports int
	Channels   int
}

// SaveScan stores the record of a scan session.
func (d *DB) SaveScan(ctx context.Context, s Scan) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT OR REPLACE INTO scan(scanid, sourceid, started_at, transports, channels) VALUES(?,?,?,?,?)`,
		s.ID.String(), s.SourceID, s.Started.UTC(), s.Transports, s.Channels)
	return errors.Wrap(err, "could not save scan")
}

// Scans returns the scan records of a video source, newest first.
func (d *DB) Scans(ctx context.Context, sourceID uint) ([]Scan, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT scanid, sourceid, started_at, transports, channels FROM scan WHERE sourceid = ? ORDER BY started_at DESC`, sourceID)
	if err != nil {
		return nil, errors.Wrap(err, "could not query scans")
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var (
			s  Scan
			id string
		)
		if err := rows.Scan(&id, &s.SourceID, &s.Started, &s.Transports, &s.Channels); err != nil {
			return nil, errors.Wrap(err, "could not scan scan record")
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrapf(err, "bad scan id %q", id)
		}
		scans = append(scans, s)
	}
	return scans, errors.Wrap(rows.Err(), "could not read scans")
}

func lastID(res sql.Result) (uint, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "could not get inserted id")
	}
	return uint(id), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
