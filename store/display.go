package store

import (
	"encoding/binary"

	"github.com/opentrickler/trickler-core/model"
)

const (
	displayRevision uint32 = 1
	displayBodyLen         = 4 * 3
)

// LoadDisplayConfig and SaveDisplayConfig cover the display
// type/rotation/brightness region, which reuses the same region codec
// as every other store region.
func (s *Store) LoadDisplayConfig() model.DisplayConfig {
	body, ok := s.displayRegion().loadVersioned(displayBodyLen, displayRevision)
	if !ok {
		return model.DisplayConfig{Brightness: 128}
	}
	return model.DisplayConfig{
		Type:        binary.LittleEndian.Uint32(body[0:4]),
		RotationDeg: binary.LittleEndian.Uint32(body[4:8]),
		Brightness:  binary.LittleEndian.Uint32(body[8:12]),
	}
}

func (s *Store) SaveDisplayConfig(c model.DisplayConfig) error {
	buf := make([]byte, displayBodyLen)
	binary.LittleEndian.PutUint32(buf[0:4], c.Type)
	binary.LittleEndian.PutUint32(buf[4:8], c.RotationDeg)
	binary.LittleEndian.PutUint32(buf[8:12], c.Brightness)
	return s.displayRegion().saveVersioned(buf, displayRevision)
}
