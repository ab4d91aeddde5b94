package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/medirank/plugin/recommend"
)

func TestBaseScore(t *testing.T) {
	tests := []struct {
		name     string
		leg      *recommend.TravelLeg
		want     float64
		degraded bool
	}{
		{"zero travel time", &recommend.TravelLeg{Seconds: 0}, 1.0, false},
		{"one second", &recommend.TravelLeg{Seconds: 1}, 0.5, false},
		{"ten minutes", &recommend.TravelLeg{Seconds: 600}, 1.0 / 601.0, false},
		{"missing leg degrades to maximum", nil, 1.0, true},
		{"negative clamped", &recommend.TravelLeg{Seconds: -5}, 1.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BaseScore(tt.leg)
			assert.InDelta(t, tt.want, got.Value, 1e-12)
			assert.Equal(t, tt.degraded, got.Degraded)
		})
	}
}

func TestBaseScoreMonotonicity(t *testing.T) {
	prev := BaseScore(&recommend.TravelLeg{Seconds: 0}).Value
	for _, seconds := range []int64{1, 10, 60, 600, 3600, 86400} {
		cur := BaseScore(&recommend.TravelLeg{Seconds: seconds}).Value
		assert.Less(t, cur, prev, "base score must strictly decrease with travel time")
		prev = cur
	}
}

func TestContentScore(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}
	opposite := []float32{-1, 0}
	orthogonal := []float32{0, 1}

	assert.InDelta(t, 1.0, ContentScore(a, b).Value, 1e-6)
	assert.InDelta(t, 0.0, ContentScore(a, opposite).Value, 1e-6)
	assert.InDelta(t, 0.5, ContentScore(a, orthogonal).Value, 1e-6)
}

func TestContentScoreDegraded(t *testing.T) {
	zero := []float32{0, 0}
	v := []float32{1, 0}

	got := ContentScore(v, zero)
	assert.True(t, got.Degraded)
	assert.Equal(t, 0.0, got.Value)

	got = ContentScore(nil, v)
	assert.True(t, got.Degraded)

	got = ContentScore([]float32{1}, []float32{1, 0})
	assert.True(t, got.Degraded)
}

func TestContentScoreBounds(t *testing.T) {
	vectors := [][]float32{
		{0.3, -0.7, 0.2},
		{-0.5, 0.5, 0.5},
		{1, 1, 1},
	}
	for _, u := range vectors {
		for _, c := range vectors {
			s := ContentScore(u, c)
			assert.GreaterOrEqual(t, s.Value, 0.0)
			assert.LessOrEqual(t, s.Value, 1.0)
		}
	}
}

func TestImportanceWeightFinite(t *testing.T) {
	w := ImportanceWeight(0)
	assert.False(t, math.IsInf(w, 0))
	assert.False(t, math.IsNaN(w))
	assert.InDelta(t, 1.0/Epsilon, w, 1)

	assert.InDelta(t, 2.0, ImportanceWeight(0.5), 1e-6)
}

func TestEmbeddingState(t *testing.T) {
	state := EmbeddingState([]float32{1, 2, 3}, []float32{0.5, 1, 4})
	assert.Equal(t, []float64{0.5, 1, -1}, state)
}

func TestTravelState(t *testing.T) {
	base := recommend.Score{Value: 0.5}
	state := TravelState(base)
	require.Len(t, state, 2)
	assert.InDelta(t, 1.0/1.5, state[0], 1e-9)
	assert.Equal(t, 0.5, state[1])
}

func TestPolicyForwardBounds(t *testing.T) {
	params := NewParameters(4, 8, 42)
	states := [][]float64{
		{0, 0, 0, 0},
		{1, -1, 2, -2},
		{100, 100, 100, 100},
		{-100, -100, -100, -100},
	}
	for _, s := range states {
		p := params.Forward(s)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}
}

func TestPolicyForwardDeterministic(t *testing.T) {
	a := NewParameters(4, 8, 7)
	b := NewParameters(4, 8, 7)
	state := []float64{0.1, -0.2, 0.3, -0.4}
	assert.Equal(t, a.Forward(state), b.Forward(state))

	c := NewParameters(4, 8, 8)
	assert.NotEqual(t, a.Forward(state), c.Forward(state))
}

func TestPolicySnapshotIsolation(t *testing.T) {
	initial := NewParameters(2, 4, 1)
	policy := NewPolicy(initial)

	snapshot := policy.Snapshot()
	require.Equal(t, uint64(1), snapshot.Version)

	next := initial.Clone()
	policy.Swap(next)

	// The earlier snapshot is untouched by the swap.
	assert.Equal(t, uint64(1), snapshot.Version)
	assert.Equal(t, uint64(2), policy.Snapshot().Version)
}

func TestReinforceIncreasesSelectedProbability(t *testing.T) {
	params := NewParameters(2, 16, 3)
	state := []float64{0.8, 0.4}
	before := params.Forward(state)

	samples := []Sample{{State: state, Reward: 1.0}}
	next := params
	var err error
	for i := 0; i < 50; i++ {
		next, _, err = Reinforce(next, samples, 0.1)
		require.NoError(t, err)
	}

	after := next.Forward(state)
	assert.Greater(t, after, before, "gradient steps should increase the selected action's probability")
}

func TestReinforceSkipsZeroRewardSamples(t *testing.T) {
	params := NewParameters(2, 8, 5)
	next, loss, err := Reinforce(params, []Sample{
		{State: []float64{1, 1}, Reward: 0},
		{State: []float64{1, 0}, Reward: -0.5},
	}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
	// No usable samples: parameters unchanged, same version.
	assert.Equal(t, params.Version, next.Version)
}

func TestReinforceBumpsVersion(t *testing.T) {
	params := NewParameters(2, 8, 5)
	next, loss, err := Reinforce(params, []Sample{
		{State: []float64{1, 0}, Reward: 0.2},
	}, 0.05)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
	assert.Equal(t, params.Version+1, next.Version)
}

func TestReinforceRejectsBadLearningRate(t *testing.T) {
	params := NewParameters(2, 8, 5)
	_, _, err := Reinforce(params, nil, 0)
	assert.Error(t, err)
}
