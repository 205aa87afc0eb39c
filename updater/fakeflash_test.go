package updater

import "errors"

// fakeFlash is an in-memory hal.Flash for exercising BankStore/Updater
// without real hardware.
type fakeFlash struct {
	mem        []byte
	sectorSize uint32
	failWrite  bool
	// failWritesLeft makes the next N writes fail, then recover,
	// simulating a transient flash fault.
	failWritesLeft int
}

func newFakeFlash(size int, sectorSize uint32) *fakeFlash {
	return &fakeFlash{mem: make([]byte, size), sectorSize: sectorSize}
}

func (f *fakeFlash) ReadAt(offset uint32, buf []byte) error {
	if int(offset)+len(buf) > len(f.mem) {
		return errors.New("fakeFlash: read out of range")
	}
	copy(buf, f.mem[offset:])
	return nil
}

func (f *fakeFlash) WriteAt(offset uint32, data []byte) error {
	if f.failWrite {
		return errors.New("fakeFlash: forced write failure")
	}
	if f.failWritesLeft > 0 {
		f.failWritesLeft--
		return errors.New("fakeFlash: transient write failure")
	}
	if int(offset)+len(data) > len(f.mem) {
		return errors.New("fakeFlash: write out of range")
	}
	copy(f.mem[offset:], data)
	return nil
}

func (f *fakeFlash) EraseSector(offset uint32, size uint32) error {
	if int(offset)+int(size) > len(f.mem) {
		return errors.New("fakeFlash: erase out of range")
	}
	for i := offset; i < offset+size; i++ {
		f.mem[i] = 0xFF
	}
	return nil
}

func (f *fakeFlash) SectorSize() uint32 { return f.sectorSize }

type fakeRebooter struct {
	rebooted bool
}

func (r *fakeRebooter) Reboot() { r.rebooted = true }
