package store

import (
	"encoding/binary"

	"github.com/opentrickler/trickler-core/model"
)

const (
	wifiSSIDLen = 33
	wifiPassLen = 64
	wifiBodyLen = wifiSSIDLen + wifiPassLen + 4 + 4 + 1
)

// LoadWiFiConfig returns the persisted WiFi region, or fallback
// defaults if the magic/checksum don't validate.
func (s *Store) LoadWiFiConfig() model.WiFiConfig {
	body, ok := s.wifiRegion().load(wifiBodyLen)
	if !ok {
		return model.WiFiConfig{TimeoutMS: 10000}
	}
	return decodeWiFiConfig(body)
}

func (s *Store) SaveWiFiConfig(c model.WiFiConfig) error {
	return s.wifiRegion().save(encodeWiFiConfig(c))
}

func encodeWiFiConfig(c model.WiFiConfig) []byte {
	buf := make([]byte, wifiBodyLen)
	i := 0
	putFixedString(buf[i:i+wifiSSIDLen], c.HomeSSID)
	i += wifiSSIDLen
	putFixedString(buf[i:i+wifiPassLen], c.HomePassword)
	i += wifiPassLen
	binary.LittleEndian.PutUint32(buf[i:], uint32(c.AuthMethod))
	i += 4
	binary.LittleEndian.PutUint32(buf[i:], c.TimeoutMS)
	i += 4
	if c.Enabled {
		buf[i] = 1
	}
	return buf
}

// wifiChecksum is the WiFi region's own formula, not the generic "sum
// every body byte" rule: the SSID and password are summed byte-by-byte,
// but auth_method and timeout_ms enter as whole 32-bit values and
// enabled contributes only 0 or 1 -- never the bytes of its own
// storage. Readers written against the historical layout depend on
// exactly this.
func wifiChecksum(magic uint32, body []byte) uint32 {
	sum := magic
	i := 0
	for _, b := range body[i : i+wifiSSIDLen] {
		sum += uint32(b)
	}
	i += wifiSSIDLen
	for _, b := range body[i : i+wifiPassLen] {
		sum += uint32(b)
	}
	i += wifiPassLen
	sum += binary.LittleEndian.Uint32(body[i:])
	i += 4
	sum += binary.LittleEndian.Uint32(body[i:])
	i += 4
	if body[i] != 0 {
		sum++
	}
	return sum
}

func decodeWiFiConfig(buf []byte) model.WiFiConfig {
	var c model.WiFiConfig
	i := 0
	c.HomeSSID = trimNulls(buf[i : i+wifiSSIDLen])
	i += wifiSSIDLen
	c.HomePassword = trimNulls(buf[i : i+wifiPassLen])
	i += wifiPassLen
	c.AuthMethod = model.WiFiAuthMethod(binary.LittleEndian.Uint32(buf[i:]))
	i += 4
	c.TimeoutMS = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	c.Enabled = buf[i] != 0
	return c
}

func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for ; n < len(dst); n++ {
		dst[n] = 0
	}
}

func trimNulls(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
