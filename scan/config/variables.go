/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/utils/logging"
)

// Config map Keys.
const (
	KeyChannelTimeout = "ChannelTimeout"
	KeyInputName      = "InputName"
	KeyLogging        = "logging"
	KeyPollInterval   = "PollInterval"
	KeySignalTimeout  = "SignalTimeout"
	KeySourceID       = "SourceID"
	KeyStopGrace      = "StopGrace"
	KeySuppress       = "Suppress"
	KeyTestDecryption = "TestDecryption"
	KeyTunerType      = "TunerType"
)

// Config map parameter types.
const (
	typeString = "string"
	typeUint   = "uint"
	typeBool   = "bool"
)

// Default variable values.
const (
	defaultVerbosity      = logging.Info
	defaultSignalTimeout  = 1000 * time.Millisecond
	defaultChannelTimeout = 3000 * time.Millisecond
	defaultPollInterval   = 10 * time.Millisecond
	defaultStopGrace      = 1000 * time.Millisecond
)

// Variables describes the variables that can be used for scanner control.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyChannelTimeout,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.ChannelTimeout = parseMillis(KeyChannelTimeout, v, c) },
		Validate: func(c *Config) {
			c.ChannelTimeout = lessThanOrEqual(KeyChannelTimeout, c.ChannelTimeout, 0, c, defaultChannelTimeout)
		},
	},
	{
		Name:   KeyInputName,
		Type:   typeString,
		Update: func(c *Config, v string) { c.InputName = v },
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name:   KeyPollInterval,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.PollInterval = parseMillis(KeyPollInterval, v, c) },
		Validate: func(c *Config) {
			c.PollInterval = lessThanOrEqual(KeyPollInterval, c.PollInterval, 0, c, defaultPollInterval)
		},
	},
	{
		Name:   KeySignalTimeout,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.SignalTimeout = parseMillis(KeySignalTimeout, v, c) },
		Validate: func(c *Config) {
			c.SignalTimeout = lessThanOrEqual(KeySignalTimeout, c.SignalTimeout, 0, c, defaultSignalTimeout)
		},
	},
	{
		Name:   KeySourceID,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.SourceID = parseUint(KeySourceID, v, c) },
	},
	{
		Name:   KeyStopGrace,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.StopGrace = parseMillis(KeyStopGrace, v, c) },
		Validate: func(c *Config) {
			c.StopGrace = lessThanOrEqual(KeyStopGrace, c.StopGrace, 0, c, defaultStopGrace)
		},
	},
	{
		Name:   KeySuppress,
		Type:   typeBool,
		Update: func(c *Config, v string) {
			c.Suppress = parseBool(KeySuppress, v, c)
			if l, ok := c.Logger.(*logging.JSONLogger); ok {
				l.SetSuppress(c.Suppress)
			}
		},
	},
	{
		Name:   KeyTestDecryption,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.TestDecryption = parseBool(KeyTestDecryption, v, c) },
	},
	{
		Name: KeyTunerType,
		Type: "enum:Unknown,ATSC,DVB-T,DVB-T2,DVB-C,DVB-S,DVB-S2,ASI,IPTV,Analog",
		Update: func(c *Config, v string) {
			c.TunerType = dtv.ParseTunerType(v)
			if c.TunerType == dtv.TunerTypeUnknown && !strings.EqualFold(v, "unknown") {
				c.Logger.Warning("invalid TunerType param", "value", v)
			}
		},
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

// parseMillis parses v as a whole number of milliseconds.
func parseMillis(n, v string, c *Config) time.Duration {
	return time.Duration(parseUint(n, v, c)) * time.Millisecond
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

func lessThanOrEqual(n string, v, cmp time.Duration, c *Config, def time.Duration) time.Duration {
	if v <= cmp {
		c.LogInvalidField(n, def)
		return def
	}
	return v
}
