// Package scoring implements the per-candidate score components: the
// travel-time base score, the semantic content score, and the learned
// policy scorer used for off-policy correction. All scorers are pure
// functions of already-computed inputs and safe to run in parallel.
package scoring

import (
	"math"

	"github.com/carelink/medirank/plugin/recommend"
)

// Epsilon guards the importance-weight division against near-zero policy
// probabilities. The weight is bounded by 1/Epsilon.
const Epsilon = 1e-8

// BaseScore derives the location score from travel time: 1/(1+seconds),
// monotonically decreasing in travel time. A nil leg means the provider had
// no data; the score falls back to the zero-travel-time maximum and is
// flagged degraded so callers can surface it instead of silently assuming
// the facility is adjacent.
func BaseScore(leg *recommend.TravelLeg) recommend.Score {
	if leg == nil {
		return recommend.Score{Value: 1.0, Degraded: true}
	}
	seconds := leg.Seconds
	if seconds < 0 {
		seconds = 0
	}
	return recommend.Score{Value: 1.0 / (1.0 + float64(seconds))}
}

// ContentScore rescales cosine similarity between the user-profile vector
// and a candidate vector from [-1,1] to [0,1]. An empty or zero vector on
// either side yields a degraded zero score (the zero-vector fallback used
// during bulk indexing makes such entries maximally dissimilar).
func ContentScore(user, candidate []float32) recommend.Score {
	if len(user) == 0 || len(candidate) == 0 || len(user) != len(candidate) {
		return recommend.Score{Value: 0, Degraded: true}
	}

	var dot, normU, normC float64
	for i := range user {
		dot += float64(user[i]) * float64(candidate[i])
		normU += float64(user[i]) * float64(user[i])
		normC += float64(candidate[i]) * float64(candidate[i])
	}
	if normU == 0 || normC == 0 {
		return recommend.Score{Value: 0, Degraded: true}
	}

	cos := dot / (math.Sqrt(normU) * math.Sqrt(normC))
	scaled := (cos + 1) / 2
	if scaled < 0 {
		scaled = 0
	} else if scaled > 1 {
		scaled = 1
	}
	return recommend.Score{Value: scaled}
}

// ImportanceWeight is the top-K off-policy correction weight: the inverse
// of the current policy's probability for the candidate. Finite for all
// probabilities, including zero.
func ImportanceWeight(policyProb float64) float64 {
	return 1.0 / (policyProb + Epsilon)
}

// EmbeddingState builds the policy-network input for embedding domains:
// the elementwise difference between the user-profile vector and a
// candidate vector.
func EmbeddingState(user, candidate []float32) []float64 {
	n := len(user)
	if len(candidate) < n {
		n = len(candidate)
	}
	state := make([]float64, n)
	for i := 0; i < n; i++ {
		state[i] = float64(user[i]) - float64(candidate[i])
	}
	return state
}

// TravelState builds the 2-feature policy input for travel-time domains:
// [normalizedTravelTime, baseScore].
func TravelState(base recommend.Score) []float64 {
	return []float64{1.0 / (1.0 + base.Value), base.Value}
}
