/*
NAME
  cache.go

DESCRIPTION
  cache.go provides Cache, a store of the service information tables seen
  on the currently tuned transport, with predicates reporting whether all
  sections of each table have arrived.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package streamdata provides a cache of broadcast tables fed from an
// MPEG-TS stream and from external table decoders.
package streamdata

import (
	"sort"
	"sync"

	"github.com/ausocean/dtvscan/container/mts"
	"github.com/ausocean/dtvscan/si"
	"github.com/ausocean/utils/logging"
)

// sections holds the sections of one table, by section number.
type sections[T any] struct {
	version int
	last    byte
	secs    map[byte]T
}

func newSections[T any](version, last byte) *sections[T] {
	return &sections[T]{version: int(version), last: last, secs: make(map[byte]T)}
}

func (s *sections[T]) complete() bool {
	for i := 0; i <= int(s.last); i++ {
		if _, ok := s.secs[byte(i)]; !ok {
			return false
		}
	}
	return true
}

func (s *sections[T]) ordered() []T {
	keys := make([]int, 0, len(s.secs))
	for k := range s.secs {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.secs[byte(k)])
	}
	return out
}

// add stores sec and reports whether it is new. A section with a version
// different from the one held replaces all held sections.
func add[K comparable, T any](m map[K]*sections[T], key K, version, section, last byte, sec T) bool {
	s, ok := m[key]
	if !ok || s.version != int(version) {
		s = newSections[T](version, last)
		m[key] = s
	}
	if _, dup := s.secs[section]; dup {
		return false
	}
	s.secs[section] = sec
	return true
}

// Cache holds the tables of one transport. It implements io.Writer for
// MPEG-TS packets, from which it decodes the PAT and the PMTs of listened
// PIDs; other tables are handed to it with the Add methods. Listeners are
// told of each new table after the cache lock is released.
type Cache struct {
	log logging.Logger

	mu        sync.Mutex
	listeners []si.Listener
	asm       *mts.Assembler
	rem       []byte          // Trailing partial packet from the last Write.
	listening map[uint16]bool // PMT PIDs to decode.
	freesatSI bool

	pats  map[uint16]*sections[*si.PAT] // By TSID.
	pmts  map[uint16]*si.PMT            // By program number.
	mgt   *si.MGT
	cvcts map[uint16]*sections[*si.VCT] // By PID.
	tvcts map[uint16]*sections[*si.VCT] // By PID.
	nit   map[uint16]*sections[*si.NIT] // By network ID.
	sdts  map[uint16]*sections[*si.SDT] // By TSID.
	bats  map[uint16]*sections[*si.BAT] // By bouquet ID.
	sdtos map[uint32]*sections[*si.SDT] // Other transports, by ONID and TSID.

	dec *decryptTest
}

// New returns a new empty Cache.
func New(l logging.Logger) *Cache {
	c := &Cache{log: l}
	c.reset()
	return c
}

// Reset discards every cached table and all decoding state, ready for a
// new transport.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
}

func (c *Cache) reset() {
	c.asm = mts.NewAssembler()
	c.rem = nil
	c.listening = make(map[uint16]bool)
	c.freesatSI = false
	c.pats = make(map[uint16]*sections[*si.PAT])
	c.pmts = make(map[uint16]*si.PMT)
	c.mgt = nil
	c.cvcts = make(map[uint16]*sections[*si.VCT])
	c.tvcts = make(map[uint16]*sections[*si.VCT])
	c.nit = make(map[uint16]*sections[*si.NIT])
	c.sdts = make(map[uint16]*sections[*si.SDT])
	c.bats = make(map[uint16]*sections[*si.BAT])
	c.sdtos = make(map[uint32]*sections[*si.SDT])
	c.dec = nil
}

// AddListener adds l to the listeners told of new tables.
func (c *Cache) AddListener(l si.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.listeners {
		if e == l {
			return
		}
	}
	c.listeners = append(c.listeners, l)
}

// RemoveListener removes l from the listeners.
func (c *Cache) RemoveListener(l si.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.listeners {
		if e == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// notify calls f for each listener. It must be called without the lock.
func (c *Cache) notify(f func(si.Listener)) {
	c.mu.Lock()
	ls := append([]si.Listener(nil), c.listeners...)
	c.mu.Unlock()
	for _, l := range ls {
		f(l)
	}
}

// AddListeningPID asks the cache to decode PMT sections carried on pid.
func (c *Cache) AddListeningPID(pid uint16) {
	c.mu.Lock()
	c.listening[pid] = true
	c.mu.Unlock()
}

// SetFreesatAdditionalSI sets whether BAT and SDT other tables carried on
// the Freesat PID are accepted.
func (c *Cache) SetFreesatAdditionalSI(on bool) {
	c.mu.Lock()
	c.freesatSI = on
	c.mu.Unlock()
}

// SetVersionSDT sets the version held for the SDT of tsid. A negative
// version makes the next arrival of any section be delivered again.
func (c *Cache) SetVersionSDT(tsid uint16, version int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sdts[tsid]; ok {
		s.version = version
	}
}

// AddPAT caches a PAT section and tells listeners if it is new.
func (c *Cache) AddPAT(pat *si.PAT) {
	c.mu.Lock()
	isNew := add(c.pats, pat.TSID, pat.Version, pat.Section, pat.LastSection, pat)
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandlePAT(pat) })
	}
}

// AddPMT caches a PMT and tells listeners if it is new.
func (c *Cache) AddPMT(pmt *si.PMT) {
	c.mu.Lock()
	old, ok := c.pmts[pmt.ProgramNumber]
	isNew := !ok || old.Version != pmt.Version
	if isNew {
		c.pmts[pmt.ProgramNumber] = pmt
	}
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandlePMT(pmt) })
	}
}

// AddMGT caches the MGT and tells listeners if it is new.
func (c *Cache) AddMGT(mgt *si.MGT) {
	c.mu.Lock()
	isNew := c.mgt == nil || c.mgt.Version != mgt.Version
	if isNew {
		c.mgt = mgt
	}
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandleMGT(mgt) })
	}
}

// AddVCT caches a cable or terrestrial VCT section seen on pid.
func (c *Cache) AddVCT(pid uint16, vct *si.VCT) {
	c.mu.Lock()
	m := c.tvcts
	if vct.Cable {
		m = c.cvcts
	}
	isNew := add(m, pid, vct.Version, vct.Section, vct.LastSection, vct)
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandleVCT(pid, vct) })
	}
}

// AddNIT caches a NIT section.
func (c *Cache) AddNIT(nit *si.NIT) {
	c.mu.Lock()
	isNew := add(c.nit, nit.NetworkID, nit.Version, nit.Section, nit.LastSection, nit)
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandleNIT(nit) })
	}
}

// AddSDT caches an SDT section of the tuned transport.
func (c *Cache) AddSDT(sdt *si.SDT) {
	c.mu.Lock()
	isNew := add(c.sdts, sdt.TSID, sdt.Version, sdt.Section, sdt.LastSection, sdt)
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandleSDT(sdt.TSID, sdt) })
	}
}

// AddSDTOther caches an SDT section describing another transport. Those
// carried on the Freesat PID are dropped unless additional Freesat SI is
// enabled. Listeners are told only of new sections.
func (c *Cache) AddSDTOther(pid uint16, sdt *si.SDT) {
	if !c.accept(pid) {
		return
	}
	c.mu.Lock()
	isNew := add(c.sdtos, uint32(sdt.ONID)<<16|uint32(sdt.TSID), sdt.Version, sdt.Section, sdt.LastSection, sdt)
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandleSDTOther(sdt.TSID, sdt) })
	}
}

// AddBAT caches a BAT section, subject to the same PID rule as AddSDTOther.
func (c *Cache) AddBAT(pid uint16, bat *si.BAT) {
	if !c.accept(pid) {
		return
	}
	c.mu.Lock()
	isNew := add(c.bats, bat.BouquetID, bat.Version, bat.Section, bat.LastSection, bat)
	c.mu.Unlock()
	if isNew {
		c.notify(func(l si.Listener) { l.HandleBAT(bat) })
	}
}

func (c *Cache) accept(pid uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pid != si.PIDFreesatSI || c.freesatSI
}

// HasCachedAnyPAT reports whether any PAT section has been cached.
func (c *Cache) HasCachedAnyPAT() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pats) != 0
}

// HasCachedAllPAT reports whether every section of the PAT of tsid has
// been cached.
func (c *Cache) HasCachedAllPAT(tsid uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.pats[tsid]
	return ok && s.complete()
}

// CachedPATs returns every cached PAT section, ordered by TSID and section.
func (c *Cache) CachedPATs() []*si.PAT {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*si.PAT
	for _, k := range sortedKeys(c.pats) {
		out = append(out, c.pats[k].ordered()...)
	}
	return out
}

// CachedPATSections returns the cached sections of the PAT of tsid.
func (c *Cache) CachedPATSections(tsid uint16) []*si.PAT {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.pats[tsid]; ok {
		return s.ordered()
	}
	return nil
}

// HasCachedAnyPMTs reports whether any PMT has been cached.
func (c *Cache) HasCachedAnyPMTs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pmts) != 0
}

// HasCachedAllPMTs reports whether a PMT has been cached for every program
// named by the cached PATs. It is false until a PAT has been cached.
func (c *Cache) HasCachedAllPMTs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pats) == 0 {
		return false
	}
	for _, s := range c.pats {
		for _, pat := range s.secs {
			for _, p := range pat.Programs {
				if p.Number == 0 {
					continue
				}
				if _, ok := c.pmts[p.Number]; !ok {
					return false
				}
			}
		}
	}
	return true
}

// CachedPMTs returns the cached PMTs ordered by program number.
func (c *Cache) CachedPMTs() []*si.PMT {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*si.PMT, 0, len(c.pmts))
	for _, k := range sortedKeys(c.pmts) {
		out = append(out, c.pmts[k])
	}
	return out
}

// HasCachedMGT reports whether the MGT has been cached.
func (c *Cache) HasCachedMGT() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mgt != nil
}

// CachedMGT returns the cached MGT, or nil.
func (c *Cache) CachedMGT() *si.MGT {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mgt
}

// HasCachedAnyVCTs reports whether any cable or terrestrial VCT has been
// cached.
func (c *Cache) HasCachedAnyVCTs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cvcts) != 0 || len(c.tvcts) != 0
}

// HasCachedAllCVCTs reports whether every cable VCT the MGT names has been
// cached in full.
func (c *Cache) HasCachedAllCVCTs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allVCTs(si.MGTTypeCVCT, c.cvcts)
}

// HasCachedAllTVCTs reports whether every terrestrial VCT the MGT names has
// been cached in full.
func (c *Cache) HasCachedAllTVCTs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allVCTs(si.MGTTypeTVCT, c.tvcts)
}

func (c *Cache) allVCTs(typ uint16, m map[uint16]*sections[*si.VCT]) bool {
	if c.mgt == nil {
		return false
	}
	for _, t := range c.mgt.Tables {
		if t.Type != typ {
			continue
		}
		s, ok := m[t.PID]
		if !ok || !s.complete() {
			return false
		}
	}
	return true
}

// CachedCVCTs returns the cached cable VCT sections.
func (c *Cache) CachedCVCTs() []*si.VCT {
	c.mu.Lock()
	defer c.mu.Unlock()
	return flatten(c.cvcts)
}

// CachedTVCTs returns the cached terrestrial VCT sections.
func (c *Cache) CachedTVCTs() []*si.VCT {
	c.mu.Lock()
	defer c.mu.Unlock()
	return flatten(c.tvcts)
}

// HasCachedAnyNIT reports whether any NIT section has been cached.
func (c *Cache) HasCachedAnyNIT() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nit) != 0
}

// HasCachedAllNIT reports whether every section of each cached NIT has
// arrived. It is false until a NIT section has been cached.
func (c *Cache) HasCachedAllNIT() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return allComplete(c.nit)
}

// CachedNIT returns the cached NIT sections.
func (c *Cache) CachedNIT() []*si.NIT {
	c.mu.Lock()
	defer c.mu.Unlock()
	return flatten(c.nit)
}

// HasCachedAnySDTs reports whether any SDT section has been cached.
func (c *Cache) HasCachedAnySDTs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sdts) != 0
}

// HasCachedAllSDT reports whether every section of the SDT of tsid has
// been cached.
func (c *Cache) HasCachedAllSDT(tsid uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sdts[tsid]
	return ok && len(s.secs) != 0 && s.complete()
}

// CachedSDTs returns every cached SDT section.
func (c *Cache) CachedSDTs() []*si.SDT {
	c.mu.Lock()
	defer c.mu.Unlock()
	return flatten(c.sdts)
}

// CachedSDTSections returns the cached sections of the SDT of tsid.
func (c *Cache) CachedSDTSections(tsid uint16) []*si.SDT {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sdts[tsid]; ok {
		return s.ordered()
	}
	return nil
}

// HasCachedAnyBATs reports whether any BAT section has been cached.
func (c *Cache) HasCachedAnyBATs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bats) != 0
}

// HasCachedAllBATs reports whether every cached bouquet is complete. It is
// false until a BAT section has been cached.
func (c *Cache) HasCachedAllBATs() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return allComplete(c.bats)
}

// CachedBATs returns the cached BAT sections ordered by bouquet and section.
func (c *Cache) CachedBATs() []*si.BAT {
	c.mu.Lock()
	defer c.mu.Unlock()
	return flatten(c.bats)
}

func sortedKeys[T any](m map[uint16]T) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func flatten[T any](m map[uint16]*sections[T]) []T {
	var out []T
	for _, k := range sortedKeys(m) {
		out = append(out, m[k].ordered()...)
	}
	return out
}

func allComplete[T any](m map[uint16]*sections[T]) bool {
	if len(m) == 0 {
		return false
	}
	for _, s := range m {
		if !s.complete() {
			return false
		}
	}
	return true
}
