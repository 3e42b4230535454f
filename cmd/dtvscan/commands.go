/*
NAME
  commands.go

DESCRIPTION
  commands.go provides the scan subcommands of dtvscan, one for each way a
  scan can be started, and the list subcommand showing stored results.

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
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/iptv"
	"github.com/ausocean/dtvscan/scan"
	"github.com/ausocean/dtvscan/store"
	"github.com/ausocean/utils/logging"
)

// scanWith opens a session from the configuration and runs the scan begun
// by start.
func scanWith(cmd *cobra.Command, start startFunc) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	return scanWithLog(cmd, log, start)
}

// startFunc begins the scan of a session.
type startFunc func(ctx context.Context, ss *session) bool

func scanWithLog(cmd *cobra.Command, log logging.Logger, start startFunc) error {
	ctx := cmd.Context()
	st, err := settingsFromConfig(log)
	if err != nil {
		return err
	}
	ss, err := newSession(ctx, log, st)
	if err != nil {
		return err
	}
	defer ss.close()
	return ss.run(ctx, func() bool { return start(ctx, ss) })
}

var existingCmd = &cobra.Command{
	Use:   "existing",
	Short: "Rescan the transports stored for the video source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		return scanWith(cmd, func(ctx context.Context, ss *session) bool {
			return ss.scanner.ScanExistingTransports(ctx, ss.sourceID, follow)
		})
	},
}

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Scan the channels of a frequency table",
	Long: `Scan the channels of the frequency table matching a standard, modulation
and country, optionally limited to the channels from start to end by name.`,
	Example: "  dtvscan table --std dvbt --mod ofdm --country gb --start 'UHF 21' --end 'UHF 30'",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		std, _ := f.GetString("std")
		mod, _ := f.GetString("mod")
		country, _ := f.GetString("country")
		start, _ := f.GetString("start")
		end, _ := f.GetString("end")
		return scanWith(cmd, func(ctx context.Context, ss *session) bool {
			return ss.scanner.ScanTransports(ctx, ss.sourceID, std, mod, country, start, end)
		})
	},
}

var channelsCmd = &cobra.Command{
	Use:   "channels FILE",
	Short: "Scan a YAML list of transports and the channels expected on them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := readTransports(args[0])
		if err != nil {
			return err
		}
		card, _ := cmd.Flags().GetString("card")
		std, _ := cmd.Flags().GetString("std")
		only, _ := cmd.Flags().GetBool("expected-only")
		return scanWith(cmd, func(ctx context.Context, ss *session) bool {
			if only {
				ss.keep = expectedOnly(ss.scanner, ts)
			}
			return ss.scanner.ScanForChannels(ctx, ss.sourceID, std, card, ts)
		})
	},
}

// readTransports reads a YAML sequence of transports.
func readTransports(path string) ([]dtv.Transport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read transport list")
	}
	var ts []dtv.Transport
	if err := yaml.Unmarshal(b, &ts); err != nil {
		return nil, errors.Wrapf(err, "could not parse transport list %s", path)
	}
	for i, t := range ts {
		if t.Frequency == 0 {
			return nil, errors.Errorf("transport %d of %s has no frequency", i, path)
		}
	}
	return ts, nil
}

// expectedOnly returns a filter keeping only the channels listed for their
// transport in ts.
func expectedOnly(s *scan.Scanner, ts []dtv.Transport) func(*scan.ScanDTVTransport, *scan.ChannelInsertInfo) bool {
	expected := make(map[uint64][]dtv.ChannelInfo)
	for _, t := range ts {
		expected[t.Frequency] = append(expected[t.Frequency], t.Channels...)
	}
	return func(t *scan.ScanDTVTransport, c *scan.ChannelInsertInfo) bool {
		_, ok := s.CheckImportedList(expected[t.Tuning.Frequency], c.ServiceID)
		return ok
	}
}

var iptvCmd = &cobra.Command{
	Use:   "iptv URL|FILE",
	Short: "Scan the channels of an M3U playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		chans, err := readPlaylist(cmd.Context(), log, args[0])
		if err != nil {
			return err
		}
		return scanWithLog(cmd, log, func(ctx context.Context, ss *session) bool {
			return ss.scanner.ScanIPTVChannels(ctx, ss.sourceID, chans)
		})
	},
}

// readPlaylist fetches a playlist over HTTP, or reads it from a file.
func readPlaylist(ctx context.Context, log logging.Logger, loc string) (map[string]dtv.IPTVChannel, error) {
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return iptv.Fetch(ctx, log, loc)
	}
	f, err := os.Open(loc)
	if err != nil {
		return nil, errors.Wrap(err, "could not open playlist")
	}
	defer f.Close()
	return iptv.Parse(f)
}

var startCmd = &cobra.Command{
	Use:   "start KEY=VALUE...",
	Short: "Scan from one transport, following its network information",
	Long: `Scan from the transport described by the given tuning parameters and
follow the network information table to the other transports of the
network. The keys std, type and frequency are required.`,
	Example: "  dtvscan start std=dvb type=dvbt frequency=474000000 bandwidth=8",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := keyValues(args)
		if err != nil {
			return err
		}
		return scanWith(cmd, func(ctx context.Context, ss *session) bool {
			return ss.scanner.ScanTransportsStartingOn(ctx, ss.sourceID, params)
		})
	},
}

func keyValues(args []string) (map[string]string, error) {
	m := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("bad tuning parameter %q, want key=value", a)
		}
		m[strings.ToLower(k)] = v
	}
	return m, nil
}

var mplexCmd = &cobra.Command{
	Use:   "mplex ID",
	Short: "Scan one stored multiplex",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return errors.Wrap(err, "bad multiplex id")
		}
		follow, _ := cmd.Flags().GetBool("follow")
		return scanWith(cmd, func(ctx context.Context, ss *session) bool {
			return ss.scanner.ScanTransport(ctx, uint(id), follow)
		})
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Scan the transport the tuner is on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		freq, _ := cmd.Flags().GetUint64("frequency")
		return scanWith(cmd, func(ctx context.Context, ss *session) bool {
			if freq != 0 && !ss.tuner.Tune(dtv.Multiplex{Frequency: freq}) {
				ss.log.Error("could not tune", "frequency", freq)
				return false
			}
			return ss.scanner.ScanCurrentTransport(ctx, ss.sourceID)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored channels and scans of the video source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := dataPath(keyDB, dbFile)
		if err != nil {
			return err
		}
		db, err := store.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()
		src, err := db.SourceID(cmd.Context(), sourceName())
		if err != nil {
			return errors.Wrapf(err, "could not find video source %q", sourceName())
		}
		return list(cmd.Context(), db, src, cmd.OutOrStdout())
	},
}

func sourceName() string { return viper.GetString(keySource) }

// list writes the channels and scans of a video source as tables.
func list(ctx context.Context, db *store.DB, src uint, w io.Writer) error {
	chans, err := db.Channels(ctx, src)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tSERVICE\tNAME\tCALLSIGN\tMULTIPLEX\tFLAGS")
	for _, c := range chans {
		var flags []string
		if c.Hidden {
			flags = append(flags, "hidden")
		}
		if c.UseOnAirGuide {
			flags = append(flags, "guide")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n", c.ChanNum, c.ServiceID, c.Name, c.Callsign, c.MplexID, strings.Join(flags, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	scans, err := db.Scans(ctx, src)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SCAN\tSTARTED\tTRANSPORTS\tCHANNELS")
	for _, s := range scans {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.ID, humanize.Time(s.Started), s.Transports, s.Channels)
	}
	return tw.Flush()
}

func init() {
	existingCmd.Flags().Bool("follow", false, "also scan transports found in network information")
	mplexCmd.Flags().Bool("follow", false, "also scan transports found in network information")
	currentCmd.Flags().Uint64("frequency", 0, "frequency to tune to before scanning, in Hz")

	tf := tableCmd.Flags()
	tf.String("std", "dvbt", "broadcast standard of the table")
	tf.String("mod", "ofdm", "modulation of the table")
	tf.String("country", "gb", "country of the table")
	tf.String("start", "", "name of the first channel to scan")
	tf.String("end", "", "name of the last channel to scan")

	channelsCmd.Flags().String("card", "dvbt", "tuner type supplying missing modulation systems")
	channelsCmd.Flags().String("std", dtv.SIStandardDVB, "SI standard of the transports")
	channelsCmd.Flags().Bool("expected-only", false, "save only the channels listed for each transport")

	rootCmd.AddCommand(existingCmd, tableCmd, channelsCmd, iptvCmd, startCmd, mplexCmd, currentCmd, listCmd)
}
