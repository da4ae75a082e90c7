package identity

import (
	"sort"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/helmsman-ai/concierge/pkg/common"
)

const (
	// maxMatchesPerAlgorithm bounds how many candidates each scoring
	// algorithm contributes before the scores are combined.
	maxMatchesPerAlgorithm = 10

	tokenSortWeight = 0.7
	partialWeight   = 0.3
)

// Matcher scores candidate entity names against a query name using a
// weighted blend of token-sort and partial ratio similarity.
type Matcher struct {
	threshold int
}

// NewMatcher returns a matcher with the given score cutoff on the
// 0-100 similarity scale. A non-positive threshold defaults to 85.
func NewMatcher(threshold int) *Matcher {
	if threshold <= 0 {
		threshold = 85
	}
	return &Matcher{threshold: threshold}
}

type componentScores struct {
	tokenSort int
	partial   int
}

// MatchEntities ranks entities whose canonical name resembles the
// query name. A component score only counts toward the combined score
// when it clears the matcher threshold on its own. Results are ordered
// by combined score, ties broken by entity ID.
func (m *Matcher) MatchEntities(name string, entities []common.Entity) []common.MatchCandidate {
	scores := map[string]componentScores{}
	byID := map[string]common.Entity{}

	type scored struct {
		id    string
		score int
	}
	var tokenSort, partial []scored
	for _, entity := range entities {
		if entity.CanonicalName == "" {
			continue
		}
		byID[entity.ID] = entity
		if s := fuzzy.TokenSortRatio(name, entity.CanonicalName); s >= m.threshold {
			tokenSort = append(tokenSort, scored{entity.ID, s})
		}
		if s := fuzzy.PartialRatio(name, entity.CanonicalName); s >= m.threshold {
			partial = append(partial, scored{entity.ID, s})
		}
	}

	sort.Slice(tokenSort, func(i, j int) bool { return tokenSort[i].score > tokenSort[j].score })
	sort.Slice(partial, func(i, j int) bool { return partial[i].score > partial[j].score })
	if len(tokenSort) > maxMatchesPerAlgorithm {
		tokenSort = tokenSort[:maxMatchesPerAlgorithm]
	}
	if len(partial) > maxMatchesPerAlgorithm {
		partial = partial[:maxMatchesPerAlgorithm]
	}

	for _, s := range tokenSort {
		current := scores[s.id]
		if s.score > current.tokenSort {
			current.tokenSort = s.score
		}
		scores[s.id] = current
	}
	for _, s := range partial {
		current := scores[s.id]
		if s.score > current.partial {
			current.partial = s.score
		}
		scores[s.id] = current
	}

	candidates := make([]common.MatchCandidate, 0, len(scores))
	for id, components := range scores {
		combined := tokenSortWeight*float64(components.tokenSort) + partialWeight*float64(components.partial)
		candidates = append(candidates, common.MatchCandidate{
			Entity:     byID[id],
			Score:      combined,
			Confidence: m.ScoreToConfidence(combined),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Entity.ID < candidates[j].Entity.ID
	})

	return candidates
}

// NameMatch pairs a candidate name with its token-sort score.
type NameMatch struct {
	Name  string
	Score float64
}

// MatchName scores the query against plain candidate names with the
// order-insensitive ratio alone, returning up to ten matches at or
// above the matcher threshold, best first.
func (m *Matcher) MatchName(name string, candidates []string) []NameMatch {
	matches := make([]NameMatch, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if s := fuzzy.TokenSortRatio(name, candidate); s >= m.threshold {
			matches = append(matches, NameMatch{Name: candidate, Score: float64(s)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxMatchesPerAlgorithm {
		matches = matches[:maxMatchesPerAlgorithm]
	}
	return matches
}

// IsSimilar reports whether two names clear the given threshold on the
// order-insensitive ratio, along with the score itself.
func (m *Matcher) IsSimilar(a, b string, threshold int) (bool, float64) {
	if threshold <= 0 {
		threshold = m.threshold
	}
	score := float64(fuzzy.TokenSortRatio(a, b))
	return score >= float64(threshold), score
}

// ScoreToConfidence maps a 0-100 similarity score onto the confidence
// scale used by resolution. Fuzzy matches never reach full confidence;
// the result is clamped to [0.5, 0.9].
func (m *Matcher) ScoreToConfidence(score float64) float64 {
	n := score / 100

	var confidence float64
	switch {
	case score >= 95:
		confidence = 0.85 + (n-0.95)*2
	case score >= 90:
		confidence = 0.80 + (n - 0.90)
	case score >= 85:
		confidence = 0.75 + (n - 0.85)
	default:
		confidence = 0.70 + (n-float64(m.threshold)/100)*0.5
	}

	if confidence < 0.5 {
		return 0.5
	}
	if confidence > 0.9 {
		return 0.9
	}
	return confidence
}
