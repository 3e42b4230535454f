/*
DESCRIPTION
  device.go provides Channel and SignalMonitor, the interfaces of a tuner
  and of the component that watches its signal, along with the optional
  capabilities some hardware has.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides the interfaces of tuner devices and their signal
// monitors, and implementations of them.
package device

import (
	"fmt"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/si"
)

// Channel describes a tuner. Tune calls may block for as long as the
// hardware takes to accept the parameters, but not for a signal lock.
type Channel interface {
	// Device returns a name for the tuner, e.g. "/dev/dvb/adapter0".
	Device() string

	// SIStandard returns the service information standard the input is
	// configured for, e.g. "dvb" or "atsc".
	SIStandard() string

	// TunerTypes returns the delivery systems the tuner supports, the
	// preferred one first.
	TunerTypes() []dtv.TunerType

	// Tune tunes to the given parameters.
	Tune(m dtv.Multiplex) bool

	// TuneMultiplex tunes to a multiplex stored in the configuration
	// store, using the given input.
	TuneMultiplex(mplexID uint, inputName string) bool

	// TuneIPTV starts reception of an IPTV stream.
	TuneIPTV(t dtv.IPTVTuning) bool

	// Rotor returns the dish positioner, or nil if there is none.
	Rotor() RotorControl

	// PMTSink returns the conditional access module interface, or nil if
	// the hardware has none.
	PMTSink() PMTSink
}

// RotorControl is a satellite dish positioner.
type RotorControl interface {
	// SetTarget sets how far through its move the rotor must be before a
	// signal lock is reported, from 0 to 1.
	SetTarget(progress float64)
}

// PMTSink takes the PMT of the program to be descrambled.
type PMTSink interface {
	SetPMT(pmt *si.PMT)
}

// SignalMonitor watches the signal of a tuned Channel and feeds the received
// stream into a table cache.
type SignalMonitor interface {
	Start()
	Stop()
	HasSignalLock() bool

	// Rotor returns rotor status, or nil unless the tuner drives a
	// positioner.
	Rotor() RotorMonitor
}

// RotorMonitor reports positioner motion.
type RotorMonitor interface {
	// RotorStatus reports whether the rotor was moving at the previous
	// check and whether it is moving now.
	RotorStatus() (wasMoving, isMoving bool)
}

// MultiError implements the built in error interface. MultiError is used
// to collect multiple errors during validation of configuration parameters.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}
