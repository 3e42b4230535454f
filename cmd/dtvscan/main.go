/*
NAME
  main.go

DESCRIPTION
  dtvscan is a command line channel scanner. It tunes through digital TV
  transports, collects their service information and stores the channels
  it finds in a channel database.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// dtvscan is a command line client of the scan package.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/dtvscan/scan/config"
	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.3.0"

// Logging configuration.
const (
	logFile      = "dtvscan.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logSuppress  = true
)

// Configuration keys, shared by flags, the config file and the environment.
const (
	keyDir      = "dir"
	keyDB       = "db"
	keySource   = "source"
	keyStandard = "standard"
	keyTypes    = "types"
	keyFullTS   = "fullts"
	keyLogLevel = "loglevel"
	keyLogPath  = "logpath"
	keyScan     = "scan" // Section of scanner variables, see scan/config.
)

// Files kept under the user's home directory.
const (
	dataDir  = ".dtvscan"
	confName = ".dtvscan"
	dbFile   = "channels.db"
)

var cfgFile string

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dtvscan",
	Short: "Scan digital TV transports for channels.",
	Long: `dtvscan tunes through digital TV transports, collects the service
information tables carried on each and stores the channels it finds.

Transports are read from recordings named <frequency>.ts in the recording
directory; dtvscan gen writes such recordings for testing.`,
	Version:      version,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dtvscan.yaml)")
	pf.StringP(keyLogLevel, "l", "Info", "log level: Debug, Info, Warning, Error or Fatal")
	pf.String(keyLogPath, "", "log file (default is $HOME/.dtvscan/dtvscan.log)")
	pf.StringP(keyDir, "d", ".", "directory of transport recordings")
	pf.String(keyDB, "", "channel database (default is $HOME/.dtvscan/channels.db)")
	pf.StringP(keySource, "s", "default", "video source the channels belong to")
	pf.String(keyStandard, dtv.SIStandardDVB, "SI standard of the input: dvb, atsc, mpeg or analog")
	pf.StringSlice(keyTypes, []string{"dvbt"}, "delivery systems of the tuner")
	pf.Bool(keyFullTS, false, "also store a channel for each whole transport")

	for _, k := range []string{keyLogLevel, keyLogPath, keyDir, keyDB, keySource, keyStandard, keyTypes, keyFullTS} {
		viper.BindPFlag(k, pf.Lookup(k))
	}
}

// initConfig reads in the config file and environment variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(confName)
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("dtvscan")
	viper.AutomaticEnv()

	// A missing default config file is fine; flags and defaults apply.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "could not read config:", err)
			os.Exit(1)
		}
	}
}

// dataPath returns the path configured under key, or name in the data
// directory under the user's home, which is created if needed.
func dataPath(key, name string) (string, error) {
	if p := viper.GetString(key); p != "" {
		return homedir.Expand(p)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "could not find home directory")
	}
	dir := filepath.Join(home, dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "could not create data directory")
	}
	return filepath.Join(dir, name), nil
}

// newLogger returns a logger writing to a rolled log file.
func newLogger() (logging.Logger, error) {
	path, err := dataPath(keyLogPath, logFile)
	if err != nil {
		return nil, err
	}
	fileLog := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	return logging.New(logging.Info, fileLog, logSuppress), nil
}

// scanConfig returns the scanner configuration from the scan section of
// the config file, and sets the level of log to the configured one.
func scanConfig(log logging.Logger) config.Config {
	cfg := config.Config{Logger: log, LogLevel: logging.Info}
	vars := make(map[string]string)
	for _, v := range config.Variables {
		k := keyScan + "." + v.Name
		if viper.IsSet(k) {
			vars[v.Name] = viper.GetString(k)
		}
	}
	vars[config.KeyLogging] = viper.GetString(keyLogLevel)
	cfg.Update(vars)
	log.SetLevel(cfg.LogLevel)
	return cfg
}
