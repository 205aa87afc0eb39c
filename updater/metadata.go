package updater

import (
	"encoding/binary"

	"github.com/opentrickler/trickler-core/model"
)

// metadataRecordSize is the fixed-layout size of one serialized
// FirmwareMetadata record, excluding its trailing self-CRC. Versioned by
// dataRev so the bootloader can tolerate unknown trailing bytes added by
// a newer application image.
const (
	dataRev            = 1
	metadataVersionLen = 32
	metadataRecordSize = 4 + 1 + 2*(4+4+4+metadataVersionLen+1) + 1 + 1 + 1 + 4
)

// EncodeMetadata serializes m into a bit-exact record. Version strings
// longer than metadataVersionLen are truncated.
func EncodeMetadata(m model.FirmwareMetadata) []byte {
	buf := make([]byte, metadataRecordSize)
	i := 0

	binary.LittleEndian.PutUint32(buf[i:], dataRev)
	i += 4
	buf[i] = byte(m.ActiveBank)
	i++

	for _, b := range []model.Bank{model.BankA, model.BankB} {
		bm := m.Bank(b)
		binary.LittleEndian.PutUint32(buf[i:], bm.CRC32)
		i += 4
		binary.LittleEndian.PutUint32(buf[i:], bm.Size)
		i += 4
		binary.LittleEndian.PutUint32(buf[i:], bm.BootCount)
		i += 4
		copy(buf[i:i+metadataVersionLen], bm.Version)
		i += metadataVersionLen
		buf[i] = byte(bm.Valid)
		i++
	}

	buf[i] = byte(m.UpdateState)
	i++
	buf[i] = byte(m.UpdateTarget)
	i++
	if m.RollbackOccurred {
		buf[i] = 1
	}
	i++
	binary.LittleEndian.PutUint32(buf[i:], m.SequenceNumber)
	i += 4

	return buf
}

// DecodeMetadata parses a record produced by EncodeMetadata. Trailing
// bytes beyond metadataRecordSize (from a newer data_rev) are ignored, so
// the bootloader tolerates forward-incompatible additions.
func DecodeMetadata(buf []byte) (model.FirmwareMetadata, bool) {
	if len(buf) < metadataRecordSize {
		return model.FirmwareMetadata{}, false
	}
	var m model.FirmwareMetadata
	i := 4 // skip dataRev
	m.ActiveBank = model.Bank(buf[i])
	i++

	for _, b := range []model.Bank{model.BankA, model.BankB} {
		var bm model.BankMetadata
		bm.CRC32 = binary.LittleEndian.Uint32(buf[i:])
		i += 4
		bm.Size = binary.LittleEndian.Uint32(buf[i:])
		i += 4
		bm.BootCount = binary.LittleEndian.Uint32(buf[i:])
		i += 4
		bm.Version = trimNulls(buf[i : i+metadataVersionLen])
		i += metadataVersionLen
		bm.Valid = model.ValidFlag(buf[i])
		i++
		m.SetBank(b, bm)
	}

	m.UpdateState = model.UpdateState(buf[i])
	i++
	m.UpdateTarget = model.Bank(buf[i])
	i++
	m.RollbackOccurred = buf[i] != 0
	i++
	m.SequenceNumber = binary.LittleEndian.Uint32(buf[i:])

	return m, true
}

func trimNulls(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// WithSelfCRC32 returns buf with a trailing CRC32 of the preceding bytes
// appended, and the value itself.
func WithSelfCRC32(buf []byte) ([]byte, uint32) {
	c := CRC32(buf)
	out := make([]byte, len(buf)+4)
	copy(out, buf)
	binary.LittleEndian.PutUint32(out[len(buf):], c)
	return out, c
}

// VerifySelfCRC32 checks the trailing CRC32 of a sector's raw bytes,
// returning the decoded metadata payload (without the trailing CRC) on
// success.
func VerifySelfCRC32(raw []byte) ([]byte, bool) {
	if len(raw) < 4 {
		return nil, false
	}
	body := raw[:len(raw)-4]
	want := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	return body, CRC32(body) == want
}

// PickLatest implements the metadata selection rule: of the two
// sector copies, the one with the higher sequence number AND a valid
// self-CRC wins. A torn write on one copy leaves the other intact, so at
// least one candidate is expected to validate in practice.
func PickLatest(sectorA, sectorB []byte) (model.FirmwareMetadata, bool) {
	mA, okA := decodeSector(sectorA)
	mB, okB := decodeSector(sectorB)

	switch {
	case okA && okB:
		if mB.SequenceNumber > mA.SequenceNumber {
			return mB, true
		}
		return mA, true
	case okA:
		return mA, true
	case okB:
		return mB, true
	default:
		return model.FirmwareMetadata{}, false
	}
}

func decodeSector(raw []byte) (model.FirmwareMetadata, bool) {
	// SaveMetadata writes the record and its CRC at the sector start; the
	// rest of a sector-sized read is erased-flash fill and is not covered
	// by the checksum.
	if len(raw) > metadataRecordSize+4 {
		raw = raw[:metadataRecordSize+4]
	}
	body, ok := VerifySelfCRC32(raw)
	if !ok {
		return model.FirmwareMetadata{}, false
	}
	return DecodeMetadata(body)
}
