/*
NAME
  delivery.go

DESCRIPTION
  delivery.go converts DVB delivery system descriptors found in network
  information tables into tuning parameters.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dtv

import (
	"fmt"

	"github.com/ausocean/dtvscan/si"
)

// FromDelivery returns the tuning described by a delivery system descriptor
// for a front end of type t. The descriptor frequency is used as is; callers
// that store satellite frequencies in kHz scale it themselves.
func FromDelivery(t TunerType, d si.Descriptor) (Multiplex, error) {
	var m Multiplex
	switch d := d.(type) {
	case si.TerrestrialDelivery:
		if t != TunerTypeDVBT && t != TunerTypeDVBT2 {
			return m, fmt.Errorf("%w: terrestrial for %v", ErrDeliveryMatch, t)
		}
		m = Multiplex{
			Frequency:     d.Frequency,
			Inversion:     paramAuto,
			Bandwidth:     orAuto(d.Bandwidth),
			HPCodeRate:    orAuto(d.CodeRateHP),
			LPCodeRate:    orAuto(d.CodeRateLP),
			Modulation:    orAuto(d.Constellation),
			TransMode:     orAuto(d.TransmissionMode),
			GuardInterval: orAuto(d.GuardInterval),
			Hierarchy:     orAuto(d.Hierarchy),
			ModSys:        ModSysDVBT,
		}
		if t == TunerTypeDVBT2 {
			m.ModSys = ModSysDVBT2
		}
	case si.CableDelivery:
		if t != TunerTypeDVBC {
			return m, fmt.Errorf("%w: cable for %v", ErrDeliveryMatch, t)
		}
		m = Multiplex{
			Frequency:  d.Frequency,
			Inversion:  paramAuto,
			SymbolRate: d.SymbolRate,
			FEC:        orAuto(d.FECInner),
			Modulation: orAuto(d.Modulation),
			ModSys:     ModSysDVBC,
		}
	case si.SatelliteDelivery:
		if !t.IsSatellite() {
			return m, fmt.Errorf("%w: satellite for %v", ErrDeliveryMatch, t)
		}
		m = Multiplex{
			Frequency:  d.Frequency,
			Inversion:  paramAuto,
			SymbolRate: d.SymbolRate,
			Polarity:   d.Polarization,
			FEC:        orAuto(d.FECInner),
			Modulation: first(d.Modulation, "qpsk"),
			ModSys:     first(d.ModSys, ModSysDVBS),
			Rolloff:    first(d.Rolloff, "0.35"),
		}
	default:
		return m, ErrNotDelivery
	}
	m.SIStandard = SIStandardDVB
	if !m.Valid(t) {
		return m, fmt.Errorf("incomplete tuning from delivery descriptor 0x%02x", d.Tag())
	}
	return m, nil
}
