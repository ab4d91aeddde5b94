package ranker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/feedback"
	"github.com/carelink/medirank/plugin/recommend/scoring"
	"github.com/carelink/medirank/store"
)

func newTestRanker(config Config) *Ranker {
	params := scoring.NewParameters(2, scoring.TravelHiddenDim, 7)
	return New(scoring.NewPolicy(params), nil, config)
}

func facility(id string, travelSeconds int64, content float64) *recommend.Candidate {
	return &recommend.Candidate{
		Entry:        &recommend.CatalogEntry{ID: id, Latitude: 35.0, Longitude: 139.0},
		Travel:       &recommend.TravelLeg{Seconds: travelSeconds},
		ContentScore: recommend.Score{Value: content},
	}
}

func TestRankHospitalBlendsBaseAndContent(t *testing.T) {
	r := newTestRanker(Config{})

	candidates := []*recommend.Candidate{
		facility("h-far-good-fit", 3600, 0.9),
		facility("h-near-poor-fit", 60, 0.1),
	}
	result, err := r.Rank(&Request{
		Profile:    &recommend.UserProfile{UserID: "u1"},
		Domain:     recommend.DomainHospital,
		Candidates: candidates,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	for _, c := range result.Candidates {
		wantImmediate := FacilityBaseWeight*c.BaseScore.Value + FacilityContentWeight*c.ContentScore.Value
		require.InDelta(t, wantImmediate, c.Reward, 1e-9, c.Entry.ID)
		require.InDelta(t, c.Reward*c.ImportanceWeight, c.FinalScore, 1e-9)
		require.Greater(t, c.PolicyProb, 0.0)
		require.Less(t, c.PolicyProb, 1.0)
	}
	require.NotZero(t, result.PolicyVersion)
}

func TestRankPharmacyUsesAvailability(t *testing.T) {
	// 2026-08-31 10:00 is a Monday morning.
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	r := newTestRanker(Config{Now: func() time.Time { return now }})

	open := facility("p-open", 600, 0)
	open.Entry.Hours = map[time.Weekday]recommend.HoursWindow{
		time.Monday: {Open: "0900", Close: "2100"},
	}
	closed := facility("p-closed", 600, 0)
	closed.Entry.Hours = map[time.Weekday]recommend.HoursWindow{
		time.Monday: {Open: "2200", Close: "2359"},
	}

	result, err := r.Rank(&Request{
		Profile:    &recommend.UserProfile{UserID: "u1"},
		Domain:     recommend.DomainPharmacy,
		Candidates: []*recommend.Candidate{closed, open},
	})
	require.NoError(t, err)

	require.Equal(t, "p-open", result.Candidates[0].Entry.ID)
	require.Equal(t, feedback.AvailabilityBonusValue, open.AvailabilityBonus)
	require.Zero(t, closed.AvailabilityBonus)
	require.InDelta(t, PharmacyBaseWeight*open.BaseScore.Value+feedback.AvailabilityBonusValue, open.Reward, 1e-9)
}

func TestRankHistoryAddsFlatAndDiscountedRecency(t *testing.T) {
	now := time.Now()
	r := newTestRanker(Config{Now: func() time.Time { return now }})

	build := func() []*recommend.Candidate {
		return []*recommend.Candidate{facility("h-1", 600, 0.5)}
	}

	without, err := r.Rank(&Request{
		Profile:    &recommend.UserProfile{UserID: "u1"},
		Domain:     recommend.DomainHospital,
		Candidates: build(),
	})
	require.NoError(t, err)

	with, err := r.Rank(&Request{
		Profile: &recommend.UserProfile{UserID: "u1"},
		Domain:  recommend.DomainHospital,
		History: []*store.FeedbackRecord{
			{EntryID: "h-1", SelectedAt: now.Add(-24 * time.Hour)},
		},
		Candidates: build(),
	})
	require.NoError(t, err)

	// The flat recency bonus stacks on the discounted long-term term.
	scored := with.Candidates[0]
	immediate := FacilityBaseWeight*scored.BaseScore.Value + FacilityContentWeight*scored.ContentScore.Value
	require.InDelta(t,
		immediate+feedback.RecencyBonusValue+LongTermDiscount*feedback.RecencyBonusValue,
		scored.Reward, 1e-9)

	gain := scored.Reward - without.Candidates[0].Reward
	require.InDelta(t, feedback.RecencyBonusValue+LongTermDiscount*feedback.RecencyBonusValue, gain, 1e-9)
	require.Equal(t, feedback.RecencyBonusValue, scored.RecencyBonus)
	require.Zero(t, without.Candidates[0].RecencyBonus)
}

func TestRankHospitalPolicyUsesEmbeddingState(t *testing.T) {
	r := newTestRanker(Config{})

	vectors := map[string][]float32{
		"h-close": {1, 0},
		"h-far":   {0, 1},
	}
	rank := func() *Result {
		result, err := r.Rank(&Request{
			Profile: &recommend.UserProfile{UserID: "u1", Vector: []float32{1, 0}},
			Domain:  recommend.DomainHospital,
			Candidates: []*recommend.Candidate{
				facility("h-close", 600, 0.5),
				facility("h-far", 600, 0.5),
			},
			CandidateVector: func(id string) ([]float32, bool) {
				v, ok := vectors[id]
				return v, ok
			},
		})
		require.NoError(t, err)
		return result
	}

	result := rank()
	byID := map[string]*recommend.Candidate{}
	for _, c := range result.Candidates {
		byID[c.Entry.ID] = c
	}

	// Identical travel but different candidate embeddings must reach the
	// policy as different states. The travel state could not tell these
	// two apart.
	require.NotEqual(t, byID["h-close"].PolicyProb, byID["h-far"].PolicyProb)
}

func TestRankLongTermRewardClamped(t *testing.T) {
	now := time.Now()

	// A model that reports an out-of-range long-term reward.
	model := rewardFunc(func([]*store.FeedbackRecord, string, time.Time) float64 { return 5.0 })
	params := scoring.NewParameters(2, scoring.TravelHiddenDim, 7)
	r := New(scoring.NewPolicy(params), model, Config{Now: func() time.Time { return now }})

	result, err := r.Rank(&Request{
		Profile: &recommend.UserProfile{UserID: "u1"},
		Domain:  recommend.DomainHospital,
		History: []*store.FeedbackRecord{{EntryID: "other", SelectedAt: now}},
		Candidates: []*recommend.Candidate{
			facility("h-1", 600, 0.5),
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Candidates[0].LongTermReward)
}

type rewardFunc func([]*store.FeedbackRecord, string, time.Time) float64

func (f rewardFunc) LongTermReward(h []*store.FeedbackRecord, id string, now time.Time) float64 {
	return f(h, id, now)
}

func TestRankTruncatesToTopK(t *testing.T) {
	r := newTestRanker(Config{})

	candidates := make([]*recommend.Candidate, 20)
	for i := range candidates {
		candidates[i] = facility(fmt.Sprintf("h-%02d", i), int64(60*(i+1)), 0.5)
	}
	result, err := r.Rank(&Request{
		Profile:    &recommend.UserProfile{UserID: "u1"},
		Domain:     recommend.DomainHospital,
		Candidates: candidates,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, TopK)
}

func TestRankDeterministicTieBreak(t *testing.T) {
	r := newTestRanker(Config{})

	// Identical travel and content means identical scores; order falls back
	// to entry ID.
	candidates := []*recommend.Candidate{
		facility("h-b", 600, 0.5),
		facility("h-a", 600, 0.5),
		facility("h-c", 600, 0.5),
	}
	result, err := r.Rank(&Request{
		Profile:    &recommend.UserProfile{UserID: "u1"},
		Domain:     recommend.DomainHospital,
		Candidates: candidates,
	})
	require.NoError(t, err)
	require.Equal(t, "h-a", result.Candidates[0].Entry.ID)
	require.Equal(t, "h-b", result.Candidates[1].Entry.ID)
	require.Equal(t, "h-c", result.Candidates[2].Entry.ID)
}

func TestRankMissingTravelDegradesBase(t *testing.T) {
	r := newTestRanker(Config{})

	candidate := facility("h-1", 0, 0.5)
	candidate.Travel = nil
	result, err := r.Rank(&Request{
		Profile:    &recommend.UserProfile{UserID: "u1"},
		Domain:     recommend.DomainHospital,
		Candidates: []*recommend.Candidate{candidate},
	})
	require.NoError(t, err)
	require.True(t, result.Candidates[0].BaseScore.Degraded)
	require.Equal(t, 1.0, result.Candidates[0].BaseScore.Value)
}

func TestRankEmbeddingDomainUsesContent(t *testing.T) {
	params := scoring.NewParameters(2, 8, 7)
	r := New(scoring.NewPolicy(params), nil, Config{})

	vectors := map[string][]float32{
		"d-good": {1, 0},
		"d-bad":  {0, 1},
	}
	candidates := []*recommend.Candidate{
		{Entry: &recommend.CatalogEntry{ID: "d-bad"}, ContentScore: recommend.Score{Value: 0.2}},
		{Entry: &recommend.CatalogEntry{ID: "d-good"}, ContentScore: recommend.Score{Value: 0.9}},
	}
	result, err := r.Rank(&Request{
		Profile:    &recommend.UserProfile{UserID: "u1", Vector: []float32{1, 0}},
		Domain:     recommend.DomainDrug,
		Candidates: candidates,
		CandidateVector: func(id string) ([]float32, bool) {
			v, ok := vectors[id]
			return v, ok
		},
	})
	require.NoError(t, err)
	for _, c := range result.Candidates {
		require.InDelta(t, c.ContentScore.Value, c.Reward, 1e-9)
	}
}

func TestRankDistanceOnlyMode(t *testing.T) {
	r := newTestRanker(Config{Mode: ModeDistanceOnly})

	candidates := []*recommend.Candidate{
		facility("h-far", 3600, 0.9),
		facility("h-near", 60, 0.1),
	}
	result, err := r.Rank(&Request{
		Domain:     recommend.DomainHospital,
		Candidates: candidates,
	})
	require.NoError(t, err)
	require.Equal(t, "h-near", result.Candidates[0].Entry.ID)
	require.Zero(t, result.PolicyVersion)
}

func TestRankNoCandidates(t *testing.T) {
	r := newTestRanker(Config{})
	_, err := r.Rank(&Request{Domain: recommend.DomainHospital})
	require.Error(t, err)
}
