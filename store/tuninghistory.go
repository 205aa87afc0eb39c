package store

import (
	"encoding/binary"
	"math"

	"github.com/opentrickler/trickler-core/model"
)

const (
	tuningHistoryRevision uint32 = 1
	learningEntryLen             = 4 + 8*4 + 8 + 8 + 8 + 8
	historyBodyLen               = model.LearningHistoryCapacity * learningEntryLen
)

// LoadTuningHistory returns the persisted learning-history ring, or an
// all-zero-valued ring if absent; callers distinguish "never recorded"
// entries via the tuner package's own count bookkeeping, not this layer.
func (s *Store) LoadTuningHistory() [model.LearningHistoryCapacity]model.LearningEntry {
	body, ok := s.tuningHistoryRegion().loadVersioned(historyBodyLen, tuningHistoryRevision)
	if !ok {
		return [model.LearningHistoryCapacity]model.LearningEntry{}
	}
	var out [model.LearningHistoryCapacity]model.LearningEntry
	for i := range out {
		out[i] = decodeLearningEntry(body[i*learningEntryLen : (i+1)*learningEntryLen])
	}
	return out
}

func (s *Store) SaveTuningHistory(entries [model.LearningHistoryCapacity]model.LearningEntry) error {
	body := make([]byte, historyBodyLen)
	for i, e := range entries {
		encodeLearningEntryInto(body[i*learningEntryLen:(i+1)*learningEntryLen], e)
	}
	return s.tuningHistoryRegion().saveVersioned(body, tuningHistoryRevision)
}

func encodeLearningEntryInto(dst []byte, e model.LearningEntry) {
	i := 0
	binary.LittleEndian.PutUint32(dst[i:], uint32(e.ProfileIndex))
	i += 4
	for _, f := range []float64{e.Gains.CoarseKp, e.Gains.CoarseKd, e.Gains.FineKp, e.Gains.FineKd} {
		binary.LittleEndian.PutUint64(dst[i:], math.Float64bits(f))
		i += 8
	}
	binary.LittleEndian.PutUint64(dst[i:], math.Float64bits(e.Overthrow))
	i += 8
	binary.LittleEndian.PutUint64(dst[i:], uint64(e.CoarseTimeMS))
	i += 8
	binary.LittleEndian.PutUint64(dst[i:], uint64(e.FineTimeMS))
	i += 8
	binary.LittleEndian.PutUint64(dst[i:], uint64(e.TotalTimeMS))
}

func decodeLearningEntry(src []byte) model.LearningEntry {
	var e model.LearningEntry
	i := 0
	e.ProfileIndex = int(binary.LittleEndian.Uint32(src[i:]))
	i += 4
	vals := make([]float64, 4)
	for k := range vals {
		vals[k] = math.Float64frombits(binary.LittleEndian.Uint64(src[i:]))
		i += 8
	}
	e.Gains = model.AppliedGains{CoarseKp: vals[0], CoarseKd: vals[1], FineKp: vals[2], FineKd: vals[3]}
	e.Overthrow = math.Float64frombits(binary.LittleEndian.Uint64(src[i:]))
	i += 8
	e.CoarseTimeMS = int64(binary.LittleEndian.Uint64(src[i:]))
	i += 8
	e.FineTimeMS = int64(binary.LittleEndian.Uint64(src[i:]))
	i += 8
	e.TotalTimeMS = int64(binary.LittleEndian.Uint64(src[i:]))
	return e
}
