package store

import (
	"encoding/binary"
	"math"

	"github.com/opentrickler/trickler-core/model"
)

const (
	profilesRevision uint32 = 1
	profileNameLen          = 32
	profileRecordLen        = profileNameLen + 1 + 8*8 // name, selected, 8 float64 fields
	profilesBodyLen         = model.MaxProfiles * profileRecordLen
)

func (s *Store) LoadProfiles() [model.MaxProfiles]model.Profile {
	body, ok := s.profilesRegion().loadVersioned(profilesBodyLen, profilesRevision)
	if !ok {
		return [model.MaxProfiles]model.Profile{}
	}
	var out [model.MaxProfiles]model.Profile
	for i := range out {
		out[i] = decodeProfile(body[i*profileRecordLen : (i+1)*profileRecordLen])
	}
	return out
}

func (s *Store) SaveProfiles(profiles [model.MaxProfiles]model.Profile) error {
	body := make([]byte, profilesBodyLen)
	for i, p := range profiles {
		encodeProfileInto(body[i*profileRecordLen:(i+1)*profileRecordLen], p)
	}
	return s.profilesRegion().saveVersioned(body, profilesRevision)
}

func encodeProfileInto(dst []byte, p model.Profile) {
	i := 0
	putFixedString(dst[i:i+profileNameLen], p.Name)
	i += profileNameLen
	if p.Selected {
		dst[i] = 1
	}
	i++
	for _, f := range []float64{
		p.CoarseKp, p.CoarseKd, p.FineKp, p.FineKd,
		p.CoarseBounds.MinRPS, p.CoarseBounds.MaxRPS,
		p.FineBounds.MinRPS, p.FineBounds.MaxRPS,
	} {
		binary.LittleEndian.PutUint64(dst[i:], math.Float64bits(f))
		i += 8
	}
}

func decodeProfile(src []byte) model.Profile {
	var p model.Profile
	i := 0
	p.Name = trimNulls(src[i : i+profileNameLen])
	i += profileNameLen
	p.Selected = src[i] != 0
	i++
	vals := make([]float64, 8)
	for k := range vals {
		vals[k] = math.Float64frombits(binary.LittleEndian.Uint64(src[i:]))
		i += 8
	}
	p.CoarseKp, p.CoarseKd, p.FineKp, p.FineKd = vals[0], vals[1], vals[2], vals[3]
	p.CoarseBounds = model.SpeedBounds{MinRPS: vals[4], MaxRPS: vals[5]}
	p.FineBounds = model.SpeedBounds{MinRPS: vals[6], MaxRPS: vals[7]}
	return p
}
