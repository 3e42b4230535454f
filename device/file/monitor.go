/*
DESCRIPTION
  monitor.go provides Monitor, a device.SignalMonitor that plays the
  recording a Tuner is tuned to into a stream consumer.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package file

import (
	"io"
	"sync"
	"time"

	"github.com/ausocean/dtvscan/container/mts"
	"github.com/ausocean/dtvscan/device"
	"github.com/ausocean/utils/logging"
)

// Default playback settings.
const (
	DefaultChunk    = 64 // Packets per write.
	DefaultInterval = 5 * time.Millisecond
)

// Monitor plays the tuned recording of a Tuner into dst, looping at the
// end of the file, while started. The signal is reported locked once a PAT
// packet has been played.
type Monitor struct {
	log      logging.Logger
	tuner    *Tuner
	dst      io.Writer
	chunk    int
	interval time.Duration

	mu      sync.Mutex
	running bool
	locked  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor returns a Monitor for t writing to dst. chunk is the number
// of packets written at a time and interval the pause between writes; zero
// values select the defaults.
func NewMonitor(l logging.Logger, t *Tuner, dst io.Writer, chunk int, interval time.Duration) *Monitor {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{log: l, tuner: t, dst: dst, chunk: chunk, interval: interval}
}

// Start begins playback of the tuned recording, restarting it if already
// playing. If nothing is tuned the monitor runs without ever locking.
func (m *Monitor) Start() {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.locked = false
	m.done = make(chan struct{})

	path := m.tuner.recording()
	if path == "" {
		m.log.Debug("no recording tuned, monitor idle")
		return
	}
	f, err := openLoop(m.log, path, true)
	if err != nil {
		m.log.Warning("could not start playback", "error", err.Error())
		return
	}
	m.wg.Add(1)
	go m.play(f, m.done)
}

// Stop ends playback and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()
	m.wg.Wait()
}

// HasSignalLock reports whether a PAT has been played since Start.
func (m *Monitor) HasSignalLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Rotor returns nil; recordings have no positioner.
func (m *Monitor) Rotor() device.RotorMonitor { return nil }

func (m *Monitor) play(f *loopFile, done chan struct{}) {
	defer m.wg.Done()
	defer f.Close()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	buf := make([]byte, m.chunk*mts.PacketSize)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(f, buf)
		if err != nil && n == 0 {
			m.log.Warning("could not read recording", "error", err.Error())
			return
		}
		if _, _, err := mts.FindPid(buf[:n], mts.PatPid); err == nil {
			m.mu.Lock()
			m.locked = true
			m.mu.Unlock()
		}
		if _, err := m.dst.Write(buf[:n]); err != nil {
			m.log.Warning("could not write stream", "error", err.Error())
		}
	}
}
