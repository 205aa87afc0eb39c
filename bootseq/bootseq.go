// Package bootseq implements the bootloader's five-step boot decision:
// load metadata, check boot-count rollback, validate
// the active bank (swap-and-revalidate on failure), increment and
// persist the boot count, then hand off to the chosen bank's image.
package bootseq

import (
	"github.com/opentrickler/trickler-core/model"
	"github.com/opentrickler/trickler-core/updater"
)

// Jumper hands control to the firmware image at the start of bank b.
// The actual jump (vector-table relocation + branch) is board-specific
// assembly outside what Go/TinyGo can express portably; cmd/bootloader
// supplies the real implementation for its target.
type Jumper interface {
	JumpTo(b model.Bank)
}

// ErrBothBanksInvalid is returned when neither bank validates; the
// caller must halt with a visible error signal.
type ErrBothBanksInvalid struct{}

func (ErrBothBanksInvalid) Error() string { return "bootseq: both banks invalid, halting" }

// Decide runs the five-step sequence and returns the bank to jump to.
// It persists metadata for steps 2 and 4's mutations before returning.
func Decide(banks *updater.BankStore) (model.Bank, error) {
	meta, ok := banks.LoadMetadata()
	if !ok {
		return 0, ErrBothBanksInvalid{}
	}

	active := meta.ActiveBank

	// Step 2: boot-count rollback.
	activeMeta := meta.Bank(active)
	if activeMeta.BootCount >= model.MaxBootAttempts {
		opposite := active.Opposite()
		oppMeta := meta.Bank(opposite)
		oppMeta.BootCount = 0
		meta.SetBank(opposite, oppMeta)
		meta.ActiveBank = opposite
		meta.RollbackOccurred = true
		active = opposite
	}

	// Step 3: validate, swap-and-revalidate on failure.
	if !banks.ValidateBank(active, meta.Bank(active)) {
		other := active.Opposite()
		if !banks.ValidateBank(other, meta.Bank(other)) {
			return 0, ErrBothBanksInvalid{}
		}
		active = other
		meta.ActiveBank = active
	}

	// Step 4: increment and persist boot count.
	bm := meta.Bank(active)
	bm.BootCount++
	meta.SetBank(active, bm)
	meta.SequenceNumber++

	if err := banks.SaveMetadata(meta); err != nil {
		return 0, err
	}

	return active, nil
}
