// Package matcher scores catalog entries against a query string. Scoring is
// a weighted sum of exact keyword hits, description term hits, and
// error-signature hits, with fully deterministic ordering so the same query
// always produces the same ranked candidate list.
package matcher

import (
	"sort"
	"strings"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
)

// Config holds the matcher's scoring weights and threshold.
type Config struct {
	// MinScore is the relevance threshold. Candidates scoring below it are
	// discarded entirely, not just ranked low.
	MinScore float64
	// KeywordWeight is applied per exact keyword hit (case-insensitive,
	// word-boundary match against the query).
	KeywordWeight float64
	// DescriptionWeight is applied per distinct query term found in the
	// skill's description.
	DescriptionWeight float64
	// ErrorSignatureWeight is applied per error-signature hit. Higher than
	// KeywordWeight: a user pasting an error message signals strong intent.
	ErrorSignatureWeight float64
}

// DefaultConfig returns the standard scoring configuration. A single keyword
// hit clears the threshold; description hits alone do not.
func DefaultConfig() Config {
	return Config{
		MinScore:             5,
		KeywordWeight:        10,
		DescriptionWeight:    3,
		ErrorSignatureWeight: 15,
	}
}

// Candidate is one skill's match result for a query. Candidates are
// ephemeral: created per query and discarded once the plan is emitted.
type Candidate struct {
	Skill   *catalog.SkillEntry `json:"skill"`
	Score   float64             `json:"score"`
	Matched []string            `json:"matched"` // keywords and signatures that hit, sorted
}

// Match returns candidates scoring at or above the threshold, sorted
// descending by score. An empty result is the "no applicable skill" terminal
// state, not an error.
func Match(query string, snap *catalog.Snapshot, cfg Config) []Candidate {
	all := MatchAll(query, snap, cfg)
	var out []Candidate
	for _, cand := range all {
		if cand.Score >= cfg.MinScore {
			out = append(out, cand)
		}
	}
	return out
}

// MatchAll scores every skill with any signal at all, including those below
// the threshold. Used by the diagnostics interface to explain why a skill
// was not selected.
func MatchAll(query string, snap *catalog.Snapshot, cfg Config) []Candidate {
	q := strings.ToLower(query)
	terms := queryTerms(q)

	var out []Candidate
	for _, skill := range snap.Skills() {
		cand := score(q, terms, skill, cfg)
		if cand.Score > 0 {
			out = append(out, cand)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[j], out[i])
	})
	return out
}

func score(q string, terms []string, skill *catalog.SkillEntry, cfg Config) Candidate {
	var total float64
	var matched []string

	for _, kw := range skill.Keywords {
		if containsPhrase(q, strings.ToLower(kw)) {
			total += cfg.KeywordWeight
			matched = append(matched, kw)
		}
	}
	for _, sig := range skill.ErrorSignatures {
		if containsPhrase(q, strings.ToLower(sig)) {
			total += cfg.ErrorSignatureWeight
			matched = append(matched, sig)
		}
	}

	desc := strings.ToLower(skill.Description)
	for _, term := range terms {
		if containsPhrase(desc, term) {
			total += cfg.DescriptionWeight
		}
	}

	sort.Strings(matched)
	return Candidate{Skill: skill, Score: total, Matched: matched}
}

// less orders candidates for ranking: higher score first, then more distinct
// keyword hits, then shorter description (narrow skills beat broad ones),
// then name. Never insertion order or map iteration.
func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if len(a.Matched) != len(b.Matched) {
		return len(a.Matched) < len(b.Matched)
	}
	if len(a.Skill.Description) != len(b.Skill.Description) {
		return len(a.Skill.Description) > len(b.Skill.Description)
	}
	return a.Skill.Name > b.Skill.Name
}

// Overlaps reports whether two candidates share a matched keyword,
// case-insensitively. Used by the conflict resolver to tell complementary
// skills apart from near-duplicates.
func Overlaps(a, b Candidate) bool {
	seen := make(map[string]bool, len(a.Matched))
	for _, kw := range a.Matched {
		seen[strings.ToLower(kw)] = true
	}
	for _, kw := range b.Matched {
		if seen[strings.ToLower(kw)] {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"and": true, "are": true, "can": true, "for": true, "how": true,
	"not": true, "the": true, "this": true, "that": true, "what": true,
	"when": true, "why": true, "with": true, "you": true, "your": true,
}

// queryTerms splits a lowercased query into distinct terms worth matching
// against descriptions, dropping short tokens and stopwords.
func queryTerms(q string) []string {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		return !isWordRune(r)
	})

	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// ContainsPhrase reports whether phrase occurs in s on word boundaries.
// Both arguments must already be lowercased.
func ContainsPhrase(s, phrase string) bool {
	return containsPhrase(s, phrase)
}

func containsPhrase(s, phrase string) bool {
	if phrase == "" {
		return false
	}
	for i := 0; i+len(phrase) <= len(s); {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		startOK := start == 0 || !isWordByte(s[start-1])
		endOK := end == len(s) || !isWordByte(s[end])
		if startOK && endOK {
			return true
		}
		i = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
