package store

import (
	"encoding/binary"
	"math"

	"github.com/opentrickler/trickler-core/model"
)

const (
	chargeConfigRevision uint32 = 1
	chargeConfigBodyLen         = 4 + 8*4 + 1 + 4 + 8 + 4 + 4 + 8
)

func (s *Store) LoadChargeConfig() model.ChargeConfig {
	body, ok := s.chargeConfigRegion().loadVersioned(chargeConfigBodyLen, chargeConfigRevision)
	if !ok {
		return model.ChargeConfig{
			DecimalResolution: 2,
			CoarseStop:        2.0,
			FineStop:          0.02,
			SDMargin:          0.01,
			MeanMargin:        0.01,
		}
	}
	return decodeChargeConfig(body)
}

func (s *Store) SaveChargeConfig(c model.ChargeConfig) error {
	return s.chargeConfigRegion().saveVersioned(encodeChargeConfig(c), chargeConfigRevision)
}

func encodeChargeConfig(c model.ChargeConfig) []byte {
	buf := make([]byte, chargeConfigBodyLen)
	i := 0
	binary.LittleEndian.PutUint32(buf[i:], uint32(c.DecimalResolution))
	i += 4
	for _, f := range []float64{c.CoarseStop, c.FineStop, c.SDMargin, c.MeanMargin} {
		binary.LittleEndian.PutUint64(buf[i:], math.Float64bits(f))
		i += 8
	}
	if c.PreCharge.Enable {
		buf[i] = 1
	}
	i++
	binary.LittleEndian.PutUint32(buf[i:], c.PreCharge.DurationMS)
	i += 4
	binary.LittleEndian.PutUint64(buf[i:], math.Float64bits(c.PreCharge.SpeedRPS))
	i += 8
	binary.LittleEndian.PutUint32(buf[i:], c.TunerTargets.CoarseTimeTargetMS)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:], c.TunerTargets.TotalTimeTargetMS)
	i += 4
	binary.LittleEndian.PutUint64(buf[i:], math.Float64bits(c.TunerTargets.MaxOverthrowFraction))
	return buf
}

func decodeChargeConfig(buf []byte) model.ChargeConfig {
	var c model.ChargeConfig
	i := 0
	c.DecimalResolution = int(binary.LittleEndian.Uint32(buf[i:]))
	i += 4
	vals := make([]float64, 4)
	for k := range vals {
		vals[k] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i:]))
		i += 8
	}
	c.CoarseStop, c.FineStop, c.SDMargin, c.MeanMargin = vals[0], vals[1], vals[2], vals[3]
	c.PreCharge.Enable = buf[i] != 0
	i++
	c.PreCharge.DurationMS = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	c.PreCharge.SpeedRPS = math.Float64frombits(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	c.TunerTargets.CoarseTimeTargetMS = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	c.TunerTargets.TotalTimeTargetMS = binary.LittleEndian.Uint32(buf[i:])
	i += 4
	c.TunerTargets.MaxOverthrowFraction = math.Float64frombits(binary.LittleEndian.Uint64(buf[i:]))
	return c
}
