/*
NAME
  monitor.go

DESCRIPTION
  monitor.go provides the interface through which a Scanner reports
  progress, and LogMonitor, which reports it to a logger.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scan

import "github.com/ausocean/utils/logging"

// Monitor receives scan progress. Calls are made with the scanner lock
// held and must not call back into the Scanner.
type Monitor interface {
	ScanPercentComplete(pct int)
	ScanAppendTextToLog(text string)
	ScanUpdateStatusText(text string)
	ScanUpdateStatusTitleText(text string)
	ScanComplete()
}

// LogMonitor is a Monitor that logs progress.
type LogMonitor struct {
	Log logging.Logger
}

func (m *LogMonitor) ScanPercentComplete(pct int) { m.Log.Debug("scan progress", "percent", pct) }
func (m *LogMonitor) ScanAppendTextToLog(text string) { m.Log.Info(text) }
func (m *LogMonitor) ScanUpdateStatusText(text string) {
	m.Log.Debug("scan status", "status", text)
}
func (m *LogMonitor) ScanUpdateStatusTitleText(text string) {
	m.Log.Debug("scan status title", "title", text)
}
func (m *LogMonitor) ScanComplete() { m.Log.Info("scan complete") }
