package tuner

import "github.com/opentrickler/trickler-core/model"

// History is the bounded per-profile learning-history ring: every drop,
// tuned or untuned, is appended here; once it holds enough samples,
// suggestions bias the next session's seeding.
type History struct {
	entries [model.LearningHistoryCapacity]model.LearningEntry
	head    int
	count   int
}

func NewHistory() *History { return &History{} }

func (h *History) Record(e model.LearningEntry) {
	h.entries[h.head] = e
	h.head = (h.head + 1) % model.LearningHistoryCapacity
	if h.count < model.LearningHistoryCapacity {
		h.count++
	}
}

// forProfile returns the stored entries for a profile index, oldest
// first.
func (h *History) forProfile(profileIndex int) []model.LearningEntry {
	var out []model.LearningEntry
	start := h.head - h.count
	if start < 0 {
		start += model.LearningHistoryCapacity
	}
	for i := 0; i < h.count; i++ {
		e := h.entries[(start+i)%model.LearningHistoryCapacity]
		if e.ProfileIndex == profileIndex {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many history entries exist for a profile.
func (h *History) Count(profileIndex int) int { return len(h.forProfile(profileIndex)) }

// Entries returns the raw ring, oldest first, for persistence -- unlike
// forProfile it is not filtered by profile index.
func (h *History) Entries() [model.LearningHistoryCapacity]model.LearningEntry {
	var out [model.LearningHistoryCapacity]model.LearningEntry
	start := h.head - h.count
	if start < 0 {
		start += model.LearningHistoryCapacity
	}
	for i := 0; i < h.count; i++ {
		out[i] = h.entries[(start+i)%model.LearningHistoryCapacity]
	}
	return out
}

// SeedGains picks a session's starting point: if >= 3 historical
// drops exist for this profile, start at 70% of the per-profile
// historical means; otherwise start at 0.
func (h *History) SeedGains(profileIndex int) model.AppliedGains {
	entries := h.forProfile(profileIndex)
	if len(entries) < 3 {
		return model.AppliedGains{}
	}
	var sum model.AppliedGains
	for _, e := range entries {
		sum.CoarseKp += e.Gains.CoarseKp
		sum.CoarseKd += e.Gains.CoarseKd
		sum.FineKp += e.Gains.FineKp
		sum.FineKd += e.Gains.FineKd
	}
	n := float64(len(entries))
	return model.AppliedGains{
		CoarseKp: 0.7 * sum.CoarseKp / n,
		CoarseKd: 0.7 * sum.CoarseKd / n,
		FineKp:   0.7 * sum.FineKp / n,
		FineKd:   0.7 * sum.FineKd / n,
	}
}

// Suggestion bias step sizes, scaled to each range (coarse 0..1, fine
// 0..10). Left as package-level vars, not consts: the
// monotonic-response assumption behind the bias direction is not
// guaranteed, so deployments may want to zero these.
var (
	coarseSuggestionDelta = 0.01
	fineSuggestionDelta   = 0.1
)

// Suggestions computes the per-profile gain means plus a small bias based
// on average overthrow sign/magnitude: positive overthrow bumps Kd,
// negative bumps Kp. Returns ok=false below 3 samples.
func (h *History) Suggestions(profileIndex int) (model.AppliedGains, bool) {
	entries := h.forProfile(profileIndex)
	if len(entries) < 3 {
		return model.AppliedGains{}, false
	}

	var sum model.AppliedGains
	var overthrowSum float64
	for _, e := range entries {
		sum.CoarseKp += e.Gains.CoarseKp
		sum.CoarseKd += e.Gains.CoarseKd
		sum.FineKp += e.Gains.FineKp
		sum.FineKd += e.Gains.FineKd
		overthrowSum += e.Overthrow
	}
	n := float64(len(entries))
	mean := model.AppliedGains{
		CoarseKp: sum.CoarseKp / n, CoarseKd: sum.CoarseKd / n,
		FineKp: sum.FineKp / n, FineKd: sum.FineKd / n,
	}
	avgOverthrow := overthrowSum / n

	if avgOverthrow > 0 {
		mean.CoarseKd += coarseSuggestionDelta
		mean.FineKd += fineSuggestionDelta
	} else if avgOverthrow < 0 {
		mean.CoarseKp += coarseSuggestionDelta
		mean.FineKp += fineSuggestionDelta
	}
	return mean, true
}
