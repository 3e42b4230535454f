/*
NAME
  transport.go

DESCRIPTION
  transport.go provides the transport scan list and the cursor used to walk
  it, one frequency offset at a time.

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
	"strings"
	"time"

	"github.com/ausocean/dtvscan/dtv"
)

// TransportScanItem is one transport to scan.
type TransportScanItem struct {
	SourceID     uint
	MplexID      uint   // Multiplex in the store, or 0.
	FriendlyName string // e.g. "UHF 21" or "Transport ID 4100".
	FriendlyNum  int    // Channel number within a frequency table, or 0.

	Tuning     dtv.Multiplex
	IPTVTuning dtv.IPTVTuning

	// IPTVChannel is the channel number of an IPTV channel map entry.
	IPTVChannel string

	// ExpectedChannels are the channels a transport list said to expect.
	ExpectedChannels []dtv.ChannelInfo

	// TuneTimeout is how long to wait for signal lock before giving up on
	// a transport that has shown no tables.
	TuneTimeout time.Duration

	// Offsets are the frequency offsets in Hz tried after the nominal
	// frequency fails.
	Offsets []int64
}

// OffsetCount returns the number of frequencies to try for t, including
// the nominal frequency.
func (t *TransportScanItem) OffsetCount() int {
	return len(t.Offsets) + 1
}

// FrequencyAt returns the frequency to tune at offset index off; index 0
// is the nominal frequency.
func (t *TransportScanItem) FrequencyAt(off int) uint64 {
	if off <= 0 || off > len(t.Offsets) {
		return t.Tuning.Frequency
	}
	return uint64(int64(t.Tuning.Frequency) + t.Offsets[off-1])
}

func (t *TransportScanItem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s mplexid(%d) %s", t.FriendlyName, t.MplexID, t.Tuning)
	if t.IPTVTuning.DataURL != "" {
		fmt.Fprintf(&b, " url(%s)", t.IPTVTuning.DataURL)
	}
	for _, o := range t.Offsets {
		fmt.Fprintf(&b, " %+d", o)
	}
	return b.String()
}

// TransportList is the ordered list of transports of a scan.
type TransportList struct {
	items []*TransportScanItem
}

// Len returns the number of transports in l.
func (l *TransportList) Len() int { return len(l.items) }

// Append adds items to the end of l.
func (l *TransportList) Append(items ...*TransportScanItem) {
	l.items = append(l.items, items...)
}

// Clear empties l. Cursors into l become End.
func (l *TransportList) Clear() { l.items = nil }

// Items returns the transports of l.
func (l *TransportList) Items() []*TransportScanItem { return l.items }

// Begin returns a cursor at the nominal frequency of the first transport,
// or End if l is empty.
func (l *TransportList) Begin() Cursor {
	if len(l.items) == 0 {
		return l.End()
	}
	return Cursor{list: l}
}

// End returns the cursor past the last transport.
func (l *TransportList) End() Cursor {
	return Cursor{list: l, idx: -1}
}

// Cursor addresses one frequency offset of one transport of a
// TransportList. A Cursor that has passed the last transport is End, and
// stays End when transports are appended.
type Cursor struct {
	list *TransportList
	idx  int
	off  int
}

// IsEnd reports whether c is past the last transport.
func (c Cursor) IsEnd() bool {
	return c.list == nil || c.idx < 0 || c.idx >= len(c.list.items)
}

// Item returns the transport c is at, or nil at End.
func (c Cursor) Item() *TransportScanItem {
	if c.IsEnd() {
		return nil
	}
	return c.list.items[c.idx]
}

// Index returns the index of the transport c is at, or -1 at End.
func (c Cursor) Index() int {
	if c.IsEnd() {
		return -1
	}
	return c.idx
}

// Offset returns the offset index c is at.
func (c Cursor) Offset() int { return c.off }

// Frequency returns the frequency c addresses.
func (c Cursor) Frequency() uint64 {
	if c.IsEnd() {
		return 0
	}
	return c.Item().FrequencyAt(c.off)
}

// Next returns the cursor at the next offset of the same transport if it
// has one, else at the next transport. Next of End is End.
func (c Cursor) Next() Cursor {
	if c.IsEnd() {
		return c.list.End()
	}
	if c.off+1 < c.Item().OffsetCount() {
		return Cursor{list: c.list, idx: c.idx, off: c.off + 1}
	}
	return c.NextTransport()
}

// NextTransport returns the cursor at the nominal frequency of the next
// transport, skipping any remaining offsets of this one.
func (c Cursor) NextTransport() Cursor {
	if c.IsEnd() || c.idx+1 >= len(c.list.items) {
		return c.list.End()
	}
	return Cursor{list: c.list, idx: c.idx + 1}
}

// Prev returns the cursor at the nominal frequency of the previous
// transport. Prev of End is the last transport.
func (c Cursor) Prev() Cursor {
	n := len(c.list.items)
	switch {
	case n == 0:
		return c.list.End()
	case c.IsEnd():
		return Cursor{list: c.list, idx: n - 1}
	case c.idx == 0:
		return c.list.End()
	}
	return Cursor{list: c.list, idx: c.idx - 1}
}

// Equal reports whether c and d address the same position.
func (c Cursor) Equal(d Cursor) bool {
	if c.IsEnd() || d.IsEnd() {
		return c.IsEnd() && d.IsEnd()
	}
	return c.list == d.list && c.idx == d.idx && c.off == d.off
}

// IsBegin reports whether c is at the nominal frequency of the first
// transport.
func (c Cursor) IsBegin() bool {
	return !c.IsEnd() && c.idx == 0 && c.off == 0
}
