package updater

import "testing"

func TestStreamingCRC32MatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	want := CRC32(data)

	s := NewStreamingCRC32()
	s.Absorb(data[:10])
	s.Absorb(data[10:])

	if got := s.Sum(); got != want {
		t.Fatalf("streaming CRC = %x, want %x", got, want)
	}
}

func TestCRC32KnownVector(t *testing.T) {
	// Standard CRC-32/ISO-HDLC check value for the ASCII bytes "123456789".
	got := CRC32([]byte("123456789"))
	want := uint32(0xCBF43926)
	if got != want {
		t.Fatalf("CRC32 = %x, want %x", got, want)
	}
}
