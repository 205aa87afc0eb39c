package updater

import (
	"sync"
	"testing"

	"github.com/opentrickler/trickler-core/model"
)

// bootstrapFlash seeds a trusted-first-boot metadata record (both banks
// size=0/crc=0) so NewUpdater has something to load, mirroring a freshly
// monolithic-flashed board's first run.
func bootstrapFlash(t *testing.T) (*fakeFlash, *BankStore) {
	t.Helper()
	flash := newFakeFlash(16384, 256)
	store := NewBankStore(flash, testLayout(), &sync.Mutex{})

	var m model.FirmwareMetadata
	m.ActiveBank = model.BankA
	m.SetBank(model.BankA, model.BankMetadata{Valid: model.BankValid})
	m.SetBank(model.BankB, model.BankMetadata{})
	if err := store.SaveMetadata(m); err != nil {
		t.Fatalf("bootstrap SaveMetadata: %v", err)
	}
	return flash, store
}

// fullPages repeats s until it is an exact multiple of writePageSize,
// for building non-final chunks that satisfy the 256-byte alignment rule.
func fullPages(s string, pages int) []byte {
	out := make([]byte, pages*writePageSize)
	for i := range out {
		out[i] = s[i%len(s)]
	}
	return out
}

func TestStartWriteFinalizeActivateHappyPath(t *testing.T) {
	_, store := bootstrapFlash(t)
	reboot := &fakeRebooter{}
	u, err := NewUpdater(store, reboot)
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	// First chunk is a full, 256-byte-aligned page; the second is a short
	// final chunk that WriteChunk must pad with 0xFF to the next page
	// boundary without folding the padding into the streaming CRC.
	first := fullPages("new firmware image contents", 1)
	last := []byte("tail bytes after the aligned page")
	image := append(append([]byte{}, first...), last...)

	if err := u.Start(uint32(len(image)), "2.0.0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := u.WriteChunk(first); err != nil {
		t.Fatalf("WriteChunk #1: %v", err)
	}
	if err := u.WriteChunk(last); err != nil {
		t.Fatalf("WriteChunk #2: %v", err)
	}

	want := CRC32(image)
	if err := u.Finalize(want); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if u.meta.UpdateState != model.UpdateNone {
		t.Fatalf("UpdateState after finalize = %v, want UpdateNone", u.meta.UpdateState)
	}

	if err := u.ActivateAndReboot(); err != nil {
		t.Fatalf("ActivateAndReboot: %v", err)
	}
	if !reboot.rebooted {
		t.Fatal("ActivateAndReboot did not call Reboot()")
	}
	if u.meta.ActiveBank != model.BankB {
		t.Fatalf("ActiveBank after activate = %v, want BankB", u.meta.ActiveBank)
	}
	if u.meta.Bank(model.BankB).BootCount != 0 {
		t.Fatal("newly activated bank should have boot_count == 0")
	}
}

func TestFinalizeRejectsCRCMismatch(t *testing.T) {
	_, store := bootstrapFlash(t)
	u, err := NewUpdater(store, &fakeRebooter{})
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	image := []byte("some image bytes")
	_ = u.Start(uint32(len(image)), "2.0.0")
	_ = u.WriteChunk(image)

	if err := u.Finalize(0xFFFFFFFF); err != ErrCRCMismatch {
		t.Fatalf("Finalize with wrong CRC = %v, want ErrCRCMismatch", err)
	}
	if u.meta.Bank(model.BankB).Valid != model.BankInvalid {
		t.Fatal("target bank should be invalidated after CRC mismatch")
	}
	if u.meta.UpdateState != model.UpdateNone {
		t.Fatal("update_in_progress should clear after a failed finalize")
	}
}

func TestWriteChunkRejectsWritePastDeclaredSize(t *testing.T) {
	_, store := bootstrapFlash(t)
	u, err := NewUpdater(store, &fakeRebooter{})
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	_ = u.Start(writePageSize, "2.0.0")
	if err := u.WriteChunk(fullPages("one page exactly", 1)); err != nil {
		t.Fatalf("WriteChunk #1: %v", err)
	}
	if err := u.WriteChunk([]byte("one more byte past the declared size")); err != ErrWritePastDeclared {
		t.Fatalf("WriteChunk past declared size = %v, want ErrWritePastDeclared", err)
	}
}

func TestWriteChunkRejectsUnalignedNonFinalChunk(t *testing.T) {
	_, store := bootstrapFlash(t)
	u, err := NewUpdater(store, &fakeRebooter{})
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	_ = u.Start(2*writePageSize, "2.0.0")
	if err := u.WriteChunk([]byte("not a multiple of 256 bytes")); err != ErrChunkNotAligned {
		t.Fatalf("WriteChunk with unaligned non-final chunk = %v, want ErrChunkNotAligned", err)
	}
}

func TestWriteChunkPadsFinalChunkWithoutAffectingCRC(t *testing.T) {
	_, store := bootstrapFlash(t)
	u, err := NewUpdater(store, &fakeRebooter{})
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	image := []byte("short final image, shorter than one page")
	_ = u.Start(uint32(len(image)), "2.0.0")
	if err := u.WriteChunk(image); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if got, want := u.streamed.Sum(), CRC32(image); got != want {
		t.Fatalf("streamed CRC = %x, want %x (padding must not be absorbed)", got, want)
	}
	if u.written != uint32(len(image)) {
		t.Fatalf("written = %d, want %d (padding must not advance the logical offset)", u.written, len(image))
	}
}

func TestCancelAfterPartialWriteClearsInProgressAndInvalidatesTarget(t *testing.T) {
	_, store := bootstrapFlash(t)
	u, err := NewUpdater(store, &fakeRebooter{})
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	_ = u.Start(1000, "2.0.0")
	if err := u.WriteChunk(fullPages("partial chunk only", 1)); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	if err := u.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if u.meta.UpdateState != model.UpdateNone {
		t.Fatal("update_in_progress should be NONE after cancel")
	}
	if u.meta.Bank(model.BankB).Valid != model.BankInvalid {
		t.Fatal("target bank should be invalid after cancel")
	}
}

func TestRollbackAndRebootRequiresOppositeBankValid(t *testing.T) {
	_, store := bootstrapFlash(t)
	u, err := NewUpdater(store, &fakeRebooter{})
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	// Give the opposite bank a nonzero size/crc that doesn't match flash
	// contents, so it genuinely fails CRC validation rather than hitting
	// the trusted-first-boot (size==0 && crc==0) special case.
	bm := u.meta.Bank(model.BankB)
	bm.Size = 64
	bm.CRC32 = 0xDEADBEEF
	bm.Valid = model.BankValid
	u.meta.SetBank(model.BankB, bm)

	if err := u.RollbackAndReboot(); err != ErrOppositeInvalid {
		t.Fatalf("RollbackAndReboot with invalid opposite = %v, want ErrOppositeInvalid", err)
	}
}

func TestConfirmBootResetsActiveBootCount(t *testing.T) {
	_, store := bootstrapFlash(t)
	u, err := NewUpdater(store, &fakeRebooter{})
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}

	bm := u.meta.Bank(model.BankA)
	bm.BootCount = 2
	u.meta.SetBank(model.BankA, bm)

	if err := u.ConfirmBoot(); err != nil {
		t.Fatalf("ConfirmBoot: %v", err)
	}
	if u.meta.Bank(model.BankA).BootCount != 0 {
		t.Fatal("ConfirmBoot should reset active bank's boot_count to 0")
	}
}
