package store

import (
	"sync"

	"github.com/opentrickler/trickler-core/hal"
)

// Layout is the fixed absolute flash offset of each config region, kept
// outside the updater's two bank ranges and stable across flash sizes.
type Layout struct {
	WiFiOffset          uint32
	ProfilesOffset      uint32
	ChargeConfigOffset  uint32
	TuningHistoryOffset uint32
	DisplayOffset       uint32
	RegionSize          uint32
}

// Store owns every persistent config region behind the one flash mutex
// shared with the updater's bank writes.
type Store struct {
	flash  hal.Flash
	layout Layout
	mu     *sync.Mutex
}

func New(flash hal.Flash, layout Layout, mu *sync.Mutex) *Store {
	return &Store{flash: flash, layout: layout, mu: mu}
}

func (s *Store) region(offset uint32) region {
	return region{flash: &lockedFlash{flash: s.flash, mu: s.mu}, offset: offset, size: s.layout.RegionSize}
}

func (s *Store) wifiRegion() region {
	r := s.region(s.layout.WiFiOffset)
	r.csum = wifiChecksum
	return r
}
func (s *Store) profilesRegion() region      { return s.region(s.layout.ProfilesOffset) }
func (s *Store) chargeConfigRegion() region  { return s.region(s.layout.ChargeConfigOffset) }
func (s *Store) tuningHistoryRegion() region { return s.region(s.layout.TuningHistoryOffset) }
func (s *Store) displayRegion() region       { return s.region(s.layout.DisplayOffset) }

// lockedFlash serializes every region read/write through the shared flash
// mutex, so the config store and the updater's bank writes never race.
type lockedFlash struct {
	flash hal.Flash
	mu    *sync.Mutex
}

func (l *lockedFlash) ReadAt(offset uint32, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flash.ReadAt(offset, buf)
}

func (l *lockedFlash) WriteAt(offset uint32, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flash.WriteAt(offset, data)
}

func (l *lockedFlash) EraseSector(offset, size uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flash.EraseSector(offset, size)
}

func (l *lockedFlash) SectorSize() uint32 { return l.flash.SectorSize() }
