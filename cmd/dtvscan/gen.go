/*
NAME
  gen.go

DESCRIPTION
  gen.go provides the gen subcommand, which writes synthetic transport
  recordings carrying a PAT and a PMT per program.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ausocean/dtvscan/container/mts"
	"github.com/ausocean/dtvscan/container/mts/psi"
	"github.com/ausocean/dtvscan/device/file"
	"github.com/ausocean/dtvscan/freqtable"
	"github.com/ausocean/dtvscan/si"
)

// Stream types of generated programs.
const (
	streamVideo = 0x02 // MPEG-2 video.
	streamAudio = 0x04 // MPEG-2 audio.
)

// maxProgram keeps generated PIDs below the null PID.
const maxProgram = 0x1f0

// caSystem is the CA system ID given to encrypted programs.
const caSystem = 0x0b00

// recording describes a generated transport.
type recording struct {
	Frequency uint64
	TSID      uint16
	Programs  []uint16
	Encrypted map[uint16]bool
}

// pmtPID returns the PMT PID of program p; its streams follow it.
func pmtPID(p uint16) uint16 { return 0x20 + p<<4 }

// bytes returns one cycle of the transport: the PAT then each PMT.
func (r recording) bytes() ([]byte, error) {
	var pat []psi.PATEntry
	for _, p := range r.Programs {
		if p == 0 || p > maxProgram {
			return nil, errors.Errorf("program number %d out of range", p)
		}
		pat = append(pat, psi.PATEntry{Program: p, ProgramMapPID: pmtPID(p)})
	}

	var (
		out []byte
		cc  = make(map[uint16]*byte)
	)
	put := func(pid uint16, section []byte) {
		if cc[pid] == nil {
			cc[pid] = new(byte)
		}
		for _, pkt := range mts.Packetize(pid, section, cc[pid]) {
			out = append(out, pkt...)
		}
	}

	put(mts.PatPid, psi.NewPATPSI(r.TSID, 0, pat...).Bytes())
	for _, p := range r.Programs {
		pid := pmtPID(p)
		pmt := &psi.PMT{
			ProgramClockPID: pid + 1,
			Streams: []psi.StreamSpecificData{
				{StreamType: streamVideo, PID: pid + 1},
				{StreamType: streamAudio, PID: pid + 2},
			},
		}
		if r.Encrypted[p] {
			data := make([]byte, 4)
			binary.BigEndian.PutUint16(data, caSystem)
			binary.BigEndian.PutUint16(data[2:], 0xe000|(pid+3))
			pmt.Descriptors = append(pmt.Descriptors, psi.Descriptor{Tag: si.TagCA, Data: data})
		}
		put(pid, psi.NewPMTPSI(p, 0, pmt).Bytes())
	}
	return out, nil
}

// write writes the recording into dir and returns its path.
func (r recording) write(dir string) (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	path := file.Path(dir, r.Frequency)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", errors.Wrap(err, "could not write recording")
	}
	return path, nil
}

var genCmd = &cobra.Command{
	Use:     "gen FREQUENCY",
	Short:   "Write a synthetic transport recording for testing",
	Example: "  dtvscan gen 474000000 --tsid 4100 --programs 1,2,3 --encrypted 3",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		freq, _, err := humanize.ParseSI(args[0])
		if err != nil || freq <= 0 {
			return errors.Errorf("bad frequency %q", args[0])
		}
		f := cmd.Flags()
		tsid, _ := f.GetUint16("tsid")
		progs, _ := f.GetUintSlice("programs")
		enc, _ := f.GetUintSlice("encrypted")

		r := recording{Frequency: uint64(freq), TSID: tsid, Encrypted: make(map[uint16]bool)}
		for _, p := range progs {
			r.Programs = append(r.Programs, uint16(p))
		}
		for _, p := range enc {
			r.Encrypted[uint16(p)] = true
		}
		path, err := r.write(viper.GetString(keyDir))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d programs)\n", path, freqtable.Frequency(r.Frequency), len(r.Programs))
		return nil
	},
}

func init() {
	f := genCmd.Flags()
	f.Uint16("tsid", 1, "transport stream ID")
	f.UintSlice("programs", []uint{1}, "program numbers")
	f.UintSlice("encrypted", nil, "program numbers to mark as encrypted")
	rootCmd.AddCommand(genCmd)
}
