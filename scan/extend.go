/*
NAME
  extend.go

DESCRIPTION
  extend.go stages transports named in a network information table for
  scanning once the transport list is exhausted.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import (
	"fmt"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/si"
)

// updateScanTransports stages each transport of nit that is neither
// scanned nor already staged, using the first delivery system descriptor
// that yields a tuning. It must be called with the lock held.
func (s *Scanner) updateScanTransports(nit *si.NIT) {
	for _, t := range nit.Transports {
		id := uint32(t.ONID)<<16 | uint32(t.TSID)
		if s.tsScanned[id] {
			continue
		}
		if _, ok := s.extension[id]; ok {
			continue
		}

		for _, d := range t.Descriptors {
			var (
				freq uint64
				tt   dtv.TunerType
			)
			switch d := d.(type) {
			case si.TerrestrialDelivery:
				freq, tt = d.Frequency, dtv.TunerTypeDVBT
			case si.SatelliteDelivery:
				// Satellite multiplexes are stored in kHz.
				freq, tt = d.Frequency/1000, dtv.TunerTypeDVBS1
			case si.CableDelivery:
				freq, tt = d.Frequency, dtv.TunerTypeDVBC
			default:
				s.log.Debug("not a delivery system descriptor", "tag", fmt.Sprintf("%#02x", d.Tag()), "tsid", t.TSID)
				continue
			}

			tt = s.guessTunerType(tt)
			m, ok := s.stagedTuning(d, tt, freq, t.TSID, t.ONID)
			if !ok {
				continue
			}
			s.log.Debug("staging transport from nit", "onid", t.ONID, "tsid", t.TSID, "tuning", m.String())
			s.extension[id] = m
			break
		}
	}
}

// stagedTuning returns the tuning of a transport found in a NIT, from the
// store if the multiplex is known there, else from its descriptor.
func (s *Scanner) stagedTuning(d si.Descriptor, tt dtv.TunerType, freq uint64, tsid, onid uint16) (dtv.Multiplex, bool) {
	var mplexID uint
	if s.db != nil {
		id, err := s.db.FindMplexID(s.ctx, s.sourceID, freq, tsid, onid)
		if err != nil {
			s.log.Warning("could not look up multiplex", "error", err.Error())
		}
		mplexID = id
	}

	if mplexID != 0 {
		_, m, err := s.db.Multiplex(s.ctx, mplexID)
		if err != nil {
			s.log.Warning("could not read multiplex", "mplexid", mplexID, "error", err.Error())
			return m, false
		}
		return m, true
	}

	m, err := dtv.FromDelivery(tt, d)
	if err != nil {
		s.log.Debug("could not use delivery system descriptor", "tsid", tsid, "error", err.Error())
		return m, false
	}
	if _, ok := d.(si.SatelliteDelivery); ok {
		m.Frequency = freq
	}
	m.TransportID, m.NetworkID = tsid, onid
	return m, true
}
