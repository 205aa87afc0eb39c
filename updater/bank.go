package updater

import (
	"errors"
	"sync"

	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/model"
)

var (
	// ErrBankWriteFailed surfaces any flash write/erase failure during an
	// update; the caller must invalidate the target bank on receiving it.
	ErrBankWriteFailed = errors.New("updater: bank write/erase failed")
	ErrBankTooLarge    = errors.New("updater: image exceeds bank capacity")
)

// Layout describes the fixed absolute flash offsets of the two banks
// and their metadata sectors. Offsets are chosen by the board-specific
// cmd/bootloader and cmd/trickler entry points; updater itself is
// offset-agnostic.
type Layout struct {
	BankBase     [2]uint32 // indexed by model.Bank
	BankCapacity uint32
	MetaSectorA  uint32
	MetaSectorB  uint32
}

// BankStore owns the flash mutex guarding both firmware banks and their
// metadata sectors; no other task may touch flash while a write/erase
// is in progress.
type BankStore struct {
	flash  hal.Flash
	layout Layout
	mu     *sync.Mutex
}

func NewBankStore(flash hal.Flash, layout Layout, mu *sync.Mutex) *BankStore {
	return &BankStore{flash: flash, layout: layout, mu: mu}
}

// ValidateBank implements the bank validation rule, including
// the trusted-first-boot special case: size==0 and crc==0 skips the CRC
// read entirely so a freshly monolithic-flashed image can initialize its
// own metadata on first run.
func (s *BankStore) ValidateBank(b model.Bank, meta model.BankMetadata) bool {
	if meta.Size == 0 && meta.CRC32 == 0 {
		return true
	}
	if meta.Valid != model.BankValid {
		return false
	}
	if meta.Size == 0 || meta.Size > s.layout.BankCapacity {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, meta.Size)
	if err := s.flash.ReadAt(s.layout.BankBase[b], buf); err != nil {
		return false
	}
	return CRC32(buf) == meta.CRC32
}

// EraseBank erases the full capacity of bank b so a new image can be
// streamed in from offset 0.
func (s *BankStore) EraseBank(b model.Bank) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flash.EraseSector(s.layout.BankBase[b], s.layout.BankCapacity); err != nil {
		return ErrBankWriteFailed
	}
	return nil
}

// WriteBankChunk writes data at offset bytes into bank b.
func (s *BankStore) WriteBankChunk(b model.Bank, offset uint32, data []byte) error {
	if offset+uint32(len(data)) > s.layout.BankCapacity {
		return ErrBankTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flash.WriteAt(s.layout.BankBase[b]+offset, data); err != nil {
		return ErrBankWriteFailed
	}
	return nil
}

// ReadBank reads back size bytes from bank b's base, used by Finalize's
// "re-verify by reading the flash bank back and recomputing" step.
func (s *BankStore) ReadBank(b model.Bank, size uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, size)
	if err := s.flash.ReadAt(s.layout.BankBase[b], buf); err != nil {
		return nil, ErrBankWriteFailed
	}
	return buf, nil
}

// LoadMetadata scans both metadata sectors and returns the latest valid
// record, per PickLatest.
func (s *BankStore) LoadMetadata() (model.FirmwareMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secSize := s.flash.SectorSize()
	bufA := make([]byte, secSize)
	bufB := make([]byte, secSize)
	_ = s.flash.ReadAt(s.layout.MetaSectorA, bufA)
	_ = s.flash.ReadAt(s.layout.MetaSectorB, bufB)

	return PickLatest(bufA, bufB)
}

// SaveMetadata writes the next sequence-numbered copy to whichever sector
// currently holds the older (or invalid) record, so a torn write on this
// write always leaves the other sector's prior copy intact.
func (s *BankStore) SaveMetadata(m model.FirmwareMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secSize := s.flash.SectorSize()
	bufA := make([]byte, secSize)
	bufB := make([]byte, secSize)
	_ = s.flash.ReadAt(s.layout.MetaSectorA, bufA)
	_ = s.flash.ReadAt(s.layout.MetaSectorB, bufB)
	mA, okA := decodeSector(bufA)
	mB, okB := decodeSector(bufB)

	// Overwrite whichever sector holds the older (or torn) copy, so the
	// latest prior generation survives a torn write here.
	target := s.layout.MetaSectorA
	if okA && (!okB || mA.SequenceNumber >= mB.SequenceNumber) {
		target = s.layout.MetaSectorB
	}

	raw, _ := WithSelfCRC32(EncodeMetadata(m))

	// A metadata write failure is retried once before it is reported
	// fatal; the prior generation in the other sector stays intact either
	// way.
	if err := s.writeSector(target, secSize, raw); err != nil {
		if err = s.writeSector(target, secSize, raw); err != nil {
			return ErrBankWriteFailed
		}
	}
	return nil
}

func (s *BankStore) writeSector(offset, secSize uint32, raw []byte) error {
	if err := s.flash.EraseSector(offset, secSize); err != nil {
		return err
	}
	return s.flash.WriteAt(offset, raw)
}
