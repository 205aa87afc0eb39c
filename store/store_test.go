package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/opentrickler/trickler-core/model"
)

type fakeFlash struct {
	mem        []byte
	sectorSize uint32
}

func newFakeFlash(size int, sectorSize uint32) *fakeFlash {
	return &fakeFlash{mem: make([]byte, size), sectorSize: sectorSize}
}

func (f *fakeFlash) ReadAt(offset uint32, buf []byte) error {
	if int(offset)+len(buf) > len(f.mem) {
		return errors.New("fakeFlash: out of range")
	}
	copy(buf, f.mem[offset:])
	return nil
}

func (f *fakeFlash) WriteAt(offset uint32, data []byte) error {
	if int(offset)+len(data) > len(f.mem) {
		return errors.New("fakeFlash: out of range")
	}
	copy(f.mem[offset:], data)
	return nil
}

func (f *fakeFlash) EraseSector(offset, size uint32) error {
	for i := offset; i < offset+size; i++ {
		f.mem[i] = 0xFF
	}
	return nil
}

func (f *fakeFlash) SectorSize() uint32 { return f.sectorSize }

func testStore() *Store {
	flash := newFakeFlash(1<<16, 4096)
	layout := Layout{
		WiFiOffset:          0,
		ProfilesOffset:      4096,
		ChargeConfigOffset:  8192,
		TuningHistoryOffset: 12288,
		DisplayOffset:       16384,
		RegionSize:          4096,
	}
	return New(flash, layout, &sync.Mutex{})
}

func TestWiFiConfigRoundTrip(t *testing.T) {
	s := testStore()
	want := model.WiFiConfig{HomeSSID: "mynetwork", HomePassword: "secretpw", TimeoutMS: 5000, Enabled: true}
	if err := s.SaveWiFiConfig(want); err != nil {
		t.Fatalf("SaveWiFiConfig: %v", err)
	}
	got := s.LoadWiFiConfig()
	if got.HomeSSID != want.HomeSSID || got.HomePassword != want.HomePassword || !got.Enabled {
		t.Fatalf("LoadWiFiConfig() = %+v, want %+v", got, want)
	}
}

// The WiFi region's checksum differs from every other region's byte-sum:
// auth_method and timeout_ms contribute as whole 32-bit values and
// enabled contributes only 0 or 1.
func TestWiFiChecksumFieldContributions(t *testing.T) {
	c := model.WiFiConfig{HomeSSID: "net", HomePassword: "pw", AuthMethod: 2, TimeoutMS: 30000, Enabled: true}
	body := encodeWiFiConfig(c)

	var want uint32 = model.ConfigMagic
	for _, b := range []byte(c.HomeSSID) {
		want += uint32(b)
	}
	for _, b := range []byte(c.HomePassword) {
		want += uint32(b)
	}
	want += uint32(c.AuthMethod) + c.TimeoutMS + 1

	if got := wifiChecksum(model.ConfigMagic, body); got != want {
		t.Fatalf("wifiChecksum = %d, want %d", got, want)
	}
}

func TestWiFiConfigFallsBackWhenAbsent(t *testing.T) {
	s := testStore()
	got := s.LoadWiFiConfig()
	if got.TimeoutMS != 10000 {
		t.Fatalf("fallback TimeoutMS = %v, want 10000 default", got.TimeoutMS)
	}
}

func TestProfilesRoundTrip(t *testing.T) {
	s := testStore()
	var profiles [model.MaxProfiles]model.Profile
	profiles[0] = model.Profile{Name: "smokeless powder", Selected: true, CoarseKp: 0.5, FineKp: 3.2}
	if err := s.SaveProfiles(profiles); err != nil {
		t.Fatalf("SaveProfiles: %v", err)
	}
	got := s.LoadProfiles()
	if got[0].Name != "smokeless powder" || !got[0].Selected || got[0].FineKp != 3.2 {
		t.Fatalf("LoadProfiles()[0] = %+v, want name/selected/fineKp preserved", got[0])
	}
}

func TestChargeConfigRoundTrip(t *testing.T) {
	s := testStore()
	want := model.ChargeConfig{DecimalResolution: 3, CoarseStop: 1.5, FineStop: 0.01, SDMargin: 0.02, MeanMargin: 0.015}
	if err := s.SaveChargeConfig(want); err != nil {
		t.Fatalf("SaveChargeConfig: %v", err)
	}
	got := s.LoadChargeConfig()
	if got.DecimalResolution != 3 || got.CoarseStop != 1.5 || got.FineStop != 0.01 {
		t.Fatalf("LoadChargeConfig() = %+v, want %+v", got, want)
	}
}

func TestChargeConfigChecksumMismatchFallsBackToDefaults(t *testing.T) {
	s := testStore()
	_ = s.SaveChargeConfig(model.ChargeConfig{DecimalResolution: 3, CoarseStop: 1.5})

	// Corrupt one body byte in place without touching the checksum.
	raw := make([]byte, s.layout.RegionSize)
	_ = s.flash.ReadAt(s.layout.ChargeConfigOffset, raw)
	raw[10] ^= 0xFF
	_ = s.flash.WriteAt(s.layout.ChargeConfigOffset, raw)

	got := s.LoadChargeConfig()
	if got.DecimalResolution != 2 {
		t.Fatalf("corrupted region should fall back to default DecimalResolution=2, got %v", got.DecimalResolution)
	}
}

func TestTuningHistoryRoundTrip(t *testing.T) {
	s := testStore()
	var entries [model.LearningHistoryCapacity]model.LearningEntry
	entries[2] = model.LearningEntry{ProfileIndex: 1, Gains: model.AppliedGains{CoarseKp: 0.4}, Overthrow: 0.05, CoarseTimeMS: 1200}
	if err := s.SaveTuningHistory(entries); err != nil {
		t.Fatalf("SaveTuningHistory: %v", err)
	}
	got := s.LoadTuningHistory()
	if got[2].ProfileIndex != 1 || got[2].Gains.CoarseKp != 0.4 || got[2].CoarseTimeMS != 1200 {
		t.Fatalf("LoadTuningHistory()[2] = %+v", got[2])
	}
}

func TestDisplayConfigRoundTrip(t *testing.T) {
	s := testStore()
	want := model.DisplayConfig{Type: 1, RotationDeg: 180, Brightness: 200}
	if err := s.SaveDisplayConfig(want); err != nil {
		t.Fatalf("SaveDisplayConfig: %v", err)
	}
	got := s.LoadDisplayConfig()
	if got != want {
		t.Fatalf("LoadDisplayConfig() = %+v, want %+v", got, want)
	}
}
