// Package store implements the persistent configuration store: a small
// raw-flash region scheme with magic-word + checksum integrity, where
// every load falls back to defaults when its region does not validate.
package store

import (
	"encoding/binary"

	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/model"
)

// region is one fixed-offset, fixed-size flash sector holding a single
// config record: magic word, body, trailing 32-bit checksum. The
// checksum is the unsigned 32-bit sum of the magic word and every body
// byte -- deliberately not a CRC, so it is computed directly rather
// than reusing updater's CRC32. csum overrides this for regions whose
// on-flash formula differs (the WiFi region); nil means the generic
// byte-sum formula.
type region struct {
	flash  hal.Flash
	offset uint32
	size   uint32
	csum   func(magic uint32, body []byte) uint32
}

func checksum(magic uint32, body []byte) uint32 {
	var sum uint32
	sum += magic
	for _, b := range body {
		sum += uint32(b)
	}
	return sum
}

func (r region) checksumOf(body []byte) uint32 {
	if r.csum != nil {
		return r.csum(model.ConfigMagic, body)
	}
	return checksum(model.ConfigMagic, body)
}

// load reads the region and returns its body if the magic word and
// checksum both check out. On any mismatch it returns ok=false so the
// caller treats the region as absent and falls back to defaults.
func (r region) load(bodyLen int) ([]byte, bool) {
	buf := make([]byte, r.size)
	if err := r.flash.ReadAt(r.offset, buf); err != nil {
		return nil, false
	}
	if len(buf) < 4+bodyLen+4 {
		return nil, false
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != model.ConfigMagic {
		return nil, false
	}
	body := buf[4 : 4+bodyLen]
	want := binary.LittleEndian.Uint32(buf[4+bodyLen : 4+bodyLen+4])
	if r.checksumOf(body) != want {
		return nil, false
	}
	return body, true
}

// loadVersioned is load plus a leading revision word that must match
// wantRev, so a format change re-initializes the region to defaults
// rather than misinterpreting old bytes.
func (r region) loadVersioned(bodyLen int, wantRev uint32) ([]byte, bool) {
	body, ok := r.load(4 + bodyLen)
	if !ok || binary.LittleEndian.Uint32(body[0:4]) != wantRev {
		return nil, false
	}
	return body[4:], true
}

func (r region) saveVersioned(body []byte, rev uint32) error {
	versioned := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(versioned[0:4], rev)
	copy(versioned[4:], body)
	return r.save(versioned)
}

// save writes magic + body + checksum, erasing the sector first.
func (r region) save(body []byte) error {
	buf := make([]byte, 4+len(body)+4)
	binary.LittleEndian.PutUint32(buf[0:4], model.ConfigMagic)
	copy(buf[4:4+len(body)], body)
	binary.LittleEndian.PutUint32(buf[4+len(body):], r.checksumOf(body))

	if err := r.flash.EraseSector(r.offset, r.size); err != nil {
		return err
	}
	return r.flash.WriteAt(r.offset, buf)
}
