// Package resolver turns a ranked candidate list into an activation set.
// A decisive top score wins outright; near-ties are activated together only
// when their matched keyword sets are disjoint (complementary domains), and
// near-duplicates covering the same ground are suppressed.
package resolver

import (
	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/matcher"
)

// Config holds the conflict resolution knobs.
type Config struct {
	// MarginRatio is the decisive-win ratio: when the top score is at least
	// MarginRatio times a candidate's score, that candidate is out of
	// contention.
	MarginRatio float64
	// ActivationCap is the hard limit on skills activated for one query.
	ActivationCap int
}

// DefaultConfig returns the standard resolution configuration.
func DefaultConfig() Config {
	return Config{
		MarginRatio:   1.5,
		ActivationCap: 4,
	}
}

// Activation is the resolver's decision for one query.
type Activation struct {
	// Activated candidates, in activation order (best first).
	Activated []matcher.Candidate
	// Suppressed candidates, kept for diagnostics but never loaded.
	Suppressed []matcher.Candidate
	// Truncated is set when more skills than the activation cap qualified
	// and the lowest-scoring excess was dropped.
	Truncated bool
}

// Skills returns the activated entries in activation order.
func (a Activation) Skills() []*catalog.SkillEntry {
	out := make([]*catalog.SkillEntry, 0, len(a.Activated))
	for _, cand := range a.Activated {
		out = append(out, cand.Skill)
	}
	return out
}

// Resolve decides which of the threshold-clearing candidates to activate.
// Candidates must already be sorted descending by score.
func Resolve(candidates []matcher.Candidate, cfg Config) Activation {
	if len(candidates) == 0 {
		return Activation{}
	}

	top := candidates[0]
	act := Activation{Activated: []matcher.Candidate{top}}

	for _, cand := range candidates[1:] {
		if top.Score >= cfg.MarginRatio*cand.Score {
			// Decisively below the top candidate.
			act.Suppressed = append(act.Suppressed, cand)
			continue
		}
		if overlapsAny(act.Activated, cand) {
			// Near-tie covering the same ground as something already
			// activated: likely a duplicate skill, keep the higher scorer.
			act.Suppressed = append(act.Suppressed, cand)
			continue
		}
		act.Activated = append(act.Activated, cand)
	}

	if cfg.ActivationCap > 0 && len(act.Activated) > cfg.ActivationCap {
		act.Suppressed = append(act.Suppressed, act.Activated[cfg.ActivationCap:]...)
		act.Activated = act.Activated[:cfg.ActivationCap]
		act.Truncated = true
	}

	return act
}

func overlapsAny(activated []matcher.Candidate, cand matcher.Candidate) bool {
	for _, a := range activated {
		if matcher.Overlaps(a, cand) {
			return true
		}
	}
	return false
}
