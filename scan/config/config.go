/*
NAME
  config.go

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for the channel
// scanner.
package config

import (
	"time"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/utils/logging"
)

// Config provides parameters relevant to a scanner. A new config must be
// passed to the constructor. Default values for these fields are defined as
// consts in variables.go.
type Config struct {
	// SourceID is the video source scanned channels belong to.
	SourceID uint

	// InputName names the tuner input, passed on when tuning by multiplex id.
	InputName string

	// SignalTimeout is how long to wait for signal lock on a transport before
	// giving up on it, when no tables have arrived.
	SignalTimeout time.Duration

	// ChannelTimeout is how long to wait for tables on a transport. The wait
	// is extended to the minimum for the family of tables seen, so this
	// mostly matters for transports that carry nothing recognisable.
	ChannelTimeout time.Duration

	// TestDecryption enables probing whether encrypted services can be
	// descrambled. When false, encrypted services are assumed undecryptable.
	TestDecryption bool

	// TunerType overrides the tuner type guessed from the channel.
	TunerType dtv.TunerType

	PollInterval time.Duration // Interval between scan driver ticks.
	StopGrace    time.Duration // How long StopScanner waits for the driver.

	// Logger holds an implementation of the Logger interface. This must be
	// set for the scanner to work correctly.
	Logger logging.Logger

	// LogLevel is the scanner logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	Suppress bool // Holds logger suppression state.
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
