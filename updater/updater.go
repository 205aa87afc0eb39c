package updater

import (
	"errors"

	"github.com/opentrickler/trickler-core/model"
)

var (
	ErrUpdateInProgress  = errors.New("updater: update already in progress")
	ErrNoUpdateActive    = errors.New("updater: no update in progress")
	ErrCRCMismatch       = errors.New("updater: finalize CRC mismatch")
	ErrTargetInvalid     = errors.New("updater: target bank failed post-write validation")
	ErrOppositeInvalid   = errors.New("updater: opposite bank is not valid, cannot roll back")
	ErrChunkNotAligned   = errors.New("updater: write_chunk offset/length not 256-byte aligned")
	ErrWritePastDeclared = errors.New("updater: write_chunk would write past declared size")
)

// writePageSize is the flash page granularity WriteChunk aligns to:
// writes must be 256-byte aligned except the final chunk, which is
// padded with 0xFF to the next page.
const writePageSize = 256

// Rebooter abstracts the actual reset, so tests can observe reboot intent
// without tearing down the process. cmd/bootloader and cmd/trickler wire
// machine.CPUReset (or equivalent) here.
type Rebooter interface {
	Reboot()
}

// Updater implements the application-side update protocol:
// Start/WriteChunk/Finalize/ActivateAndReboot/RollbackAndReboot/Cancel,
// plus ConfirmBoot. One Updater instance owns one BankStore.
type Updater struct {
	banks    *BankStore
	reboot   Rebooter
	seqNext  uint32
	meta     model.FirmwareMetadata
	streamed *StreamingCRC32
	written  uint32
	expectSz uint32
}

func NewUpdater(banks *BankStore, reboot Rebooter) (*Updater, error) {
	u := &Updater{banks: banks, reboot: reboot}
	meta, ok := banks.LoadMetadata()
	if !ok {
		return nil, errors.New("updater: no valid metadata found")
	}
	u.meta = meta
	u.seqNext = meta.SequenceNumber + 1
	return u, nil
}

// Start erases the opposite ("target") bank and begins a streaming CRC
// over the incoming image.
func (u *Updater) Start(size uint32, version string) error {
	if u.meta.UpdateState == model.UpdateInProgress {
		return ErrUpdateInProgress
	}
	target := u.meta.ActiveBank.Opposite()

	if err := u.banks.EraseBank(target); err != nil {
		return err
	}

	u.meta.UpdateState = model.UpdateInProgress
	u.meta.UpdateTarget = target
	u.streamed = NewStreamingCRC32()
	u.written = 0
	u.expectSz = size

	bm := u.meta.Bank(target)
	bm.Valid = model.BankInvalid
	bm.Size = 0
	bm.CRC32 = 0
	bm.Version = version
	u.meta.SetBank(target, bm)

	return u.persist()
}

// WriteChunk appends one chunk of the in-flight image at its current
// write offset. Every chunk but the last must start and
// end on a 256-byte page boundary; the final chunk (the one that reaches
// expectSz) is padded with 0xFF up to the next page before it is written
// to flash, but only its logical bytes are absorbed into the streaming
// CRC. Writing past the declared size is rejected outright.
func (u *Updater) WriteChunk(data []byte) error {
	if u.meta.UpdateState != model.UpdateInProgress {
		return ErrNoUpdateActive
	}
	if u.written%writePageSize != 0 {
		return ErrChunkNotAligned
	}
	if u.written+uint32(len(data)) > u.expectSz {
		return ErrWritePastDeclared
	}

	target := u.meta.UpdateTarget
	final := u.written+uint32(len(data)) == u.expectSz

	toWrite := data
	if final {
		if rem := len(data) % writePageSize; rem != 0 {
			padded := make([]byte, len(data)+(writePageSize-rem))
			copy(padded, data)
			for i := len(data); i < len(padded); i++ {
				padded[i] = 0xFF
			}
			toWrite = padded
		}
	} else if len(data)%writePageSize != 0 {
		return ErrChunkNotAligned
	}

	if err := u.banks.WriteBankChunk(target, u.written, toWrite); err != nil {
		u.invalidateTarget()
		return err
	}
	u.streamed.Absorb(data)
	u.written += uint32(len(data))
	return nil
}

// Finalize verifies the streaming CRC, re-reads the bank from flash to
// recompute the CRC independently (catching any write that silently
// corrupted flash), and marks the target bank valid.
func (u *Updater) Finalize(expectedCRC32 uint32) error {
	if u.meta.UpdateState != model.UpdateInProgress {
		return ErrNoUpdateActive
	}
	target := u.meta.UpdateTarget

	if u.streamed.Sum() != expectedCRC32 {
		u.invalidateTarget()
		return ErrCRCMismatch
	}

	raw, err := u.banks.ReadBank(target, u.written)
	if err != nil {
		u.invalidateTarget()
		return err
	}
	if CRC32(raw) != expectedCRC32 {
		u.invalidateTarget()
		return ErrCRCMismatch
	}

	bm := u.meta.Bank(target)
	bm.CRC32 = expectedCRC32
	bm.Size = u.written
	bm.BootCount = 0
	bm.Valid = model.BankValid
	u.meta.SetBank(target, bm)
	u.meta.UpdateState = model.UpdateNone

	if !u.banks.ValidateBank(target, bm) {
		u.invalidateTarget()
		return ErrTargetInvalid
	}

	return u.persist()
}

// ActivateAndReboot switches the metadata's active bank to the
// already-finalized target and reboots into it.
func (u *Updater) ActivateAndReboot() error {
	target := u.meta.UpdateTarget
	bm := u.meta.Bank(target)
	if bm.Valid != model.BankValid {
		return ErrTargetInvalid
	}

	u.meta.ActiveBank = target
	u.meta.UpdateTarget = target // left as last-known target, harmless once UpdateState == NONE
	if err := u.persist(); err != nil {
		return err
	}
	u.reboot.Reboot()
	return nil
}

// RollbackAndReboot swaps the active bank to the opposite bank, provided
// it is still valid, and reboots into it.
func (u *Updater) RollbackAndReboot() error {
	opposite := u.meta.ActiveBank.Opposite()
	bm := u.meta.Bank(opposite)
	if !u.banks.ValidateBank(opposite, bm) {
		return ErrOppositeInvalid
	}

	bm.BootCount = 0
	u.meta.SetBank(opposite, bm)
	u.meta.ActiveBank = opposite
	u.meta.RollbackOccurred = true
	if err := u.persist(); err != nil {
		return err
	}
	u.reboot.Reboot()
	return nil
}

// Cancel aborts an in-flight update after any written prefix, leaving
// the update state cleared and the target bank invalid.
func (u *Updater) Cancel() error {
	if u.meta.UpdateState != model.UpdateInProgress {
		return ErrNoUpdateActive
	}
	u.invalidateTarget()
	return u.persist()
}

// ConfirmBoot resets the active bank's boot count to zero; called by
// the application once it has reached a healthy steady state.
func (u *Updater) ConfirmBoot() error {
	bm := u.meta.Bank(u.meta.ActiveBank)
	bm.BootCount = 0
	u.meta.SetBank(u.meta.ActiveBank, bm)
	return u.persist()
}

func (u *Updater) invalidateTarget() {
	target := u.meta.UpdateTarget
	bm := u.meta.Bank(target)
	bm.Valid = model.BankInvalid
	u.meta.SetBank(target, bm)
	u.meta.UpdateState = model.UpdateNone
}

func (u *Updater) persist() error {
	u.meta.SequenceNumber = u.seqNext
	u.seqNext++
	return u.banks.SaveMetadata(u.meta)
}

// Status mirrors the REST status verb's payload.
type Status struct {
	State         model.UpdateState
	BytesReceived uint32
	BytesTotal    uint32
	Percent       float64
}

func (u *Updater) Status() Status {
	pct := 0.0
	if u.expectSz > 0 {
		pct = 100 * float64(u.written) / float64(u.expectSz)
	}
	return Status{
		State:         u.meta.UpdateState,
		BytesReceived: u.written,
		BytesTotal:    u.expectSz,
		Percent:       pct,
	}
}
