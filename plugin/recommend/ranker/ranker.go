// Package ranker composes the score components into a final ordering:
// immediate reward per domain, long-term bonus from the feedback window,
// and top-K off-policy correction against the current policy snapshot.
package ranker

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/feedback"
	"github.com/carelink/medirank/plugin/recommend/scoring"
	"github.com/carelink/medirank/store"
)

const (
	// TopK is the result list length after correction.
	TopK = 15

	// Facility immediate reward blends travel and semantic fit.
	FacilityBaseWeight    = 0.4
	FacilityContentWeight = 0.6

	// Pharmacy immediate reward leans on travel plus the open-now bonus.
	PharmacyBaseWeight = 0.7

	// LongTermDiscount scales the bootstrapped long-term reward.
	LongTermDiscount = 0.99
)

// Mode selects the ranking strategy.
type Mode int

const (
	// ModePolicy is the full pipeline: rewards weighted by the inverse
	// policy probability.
	ModePolicy Mode = iota
	// ModeDistanceOnly ranks facilities by base score alone, bypassing the
	// policy and feedback entirely. Selected explicitly by the caller.
	ModeDistanceOnly
)

// Config holds the ranker knobs.
type Config struct {
	Mode Mode
	TopK int
	// Now is injectable for hours/recency tests; defaults to time.Now.
	Now func() time.Time
}

// Request is one ranking request: candidates with retrieval scores filled
// in, plus the lookups the ranker needs.
type Request struct {
	Profile    *recommend.UserProfile
	Domain     recommend.Domain
	Candidates []*recommend.Candidate

	// History is the user's selection window for the domain.
	History []*store.FeedbackRecord

	// CandidateVector resolves indexed vectors for the embedding-state
	// domains. Unused for pharmacies.
	CandidateVector func(id string) ([]float32, bool)
}

// Result is the ranked list plus the policy version that scored it.
type Result struct {
	Candidates    []*recommend.Candidate
	PolicyVersion uint64
}

// Ranker scores and orders candidates.
type Ranker struct {
	policy *scoring.Policy
	model  feedback.RewardModel
	config Config
}

// New creates a ranker. A nil model falls back to the recency model.
func New(policy *scoring.Policy, model feedback.RewardModel, config Config) *Ranker {
	if model == nil {
		model = feedback.RecencyModel{}
	}
	if config.TopK <= 0 {
		config.TopK = TopK
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Ranker{policy: policy, model: model, config: config}
}

// Rank scores every candidate and returns the corrected top-K ordering.
// One policy snapshot is taken for the whole request.
func (r *Ranker) Rank(req *Request) (*Result, error) {
	if req == nil || len(req.Candidates) == 0 {
		return nil, errors.New("no candidates to rank")
	}

	if r.config.Mode == ModeDistanceOnly {
		return r.rankByDistance(req), nil
	}

	params := r.policy.Snapshot()
	if params == nil {
		return nil, errors.New("policy parameters not initialized")
	}
	now := r.config.Now()

	for _, candidate := range req.Candidates {
		r.scoreCandidate(req, candidate, params, now)
	}

	ordered := orderByFinalScore(req.Candidates, r.config.TopK)
	return &Result{Candidates: ordered, PolicyVersion: params.Version}, nil
}

func (r *Ranker) scoreCandidate(req *Request, candidate *recommend.Candidate, params *scoring.Parameters, now time.Time) {
	candidate.BaseScore = scoring.BaseScore(candidate.Travel)

	immediate := r.immediateReward(req, candidate, now)

	// The recency bonus is a flat additive term, outside the discounted
	// long-term bootstrap.
	candidate.RecencyBonus = feedback.RecencyBonus(req.History, candidate.Entry.ID, now)
	reward := immediate + candidate.RecencyBonus
	if len(req.History) > 0 {
		longTerm := r.model.LongTermReward(req.History, candidate.Entry.ID, now)
		if longTerm > 1.0 {
			longTerm = 1.0
		}
		candidate.LongTermReward = longTerm
		reward += LongTermDiscount * longTerm
	}
	candidate.Reward = reward

	candidate.PolicyProb = params.Forward(r.policyState(req, candidate))
	candidate.ImportanceWeight = scoring.ImportanceWeight(candidate.PolicyProb)
	candidate.FinalScore = reward * candidate.ImportanceWeight
}

func (r *Ranker) immediateReward(req *Request, candidate *recommend.Candidate, now time.Time) float64 {
	switch req.Domain {
	case recommend.DomainHospital:
		return FacilityBaseWeight*candidate.BaseScore.Value +
			FacilityContentWeight*candidate.ContentScore.Value
	case recommend.DomainPharmacy:
		candidate.AvailabilityBonus = feedback.AvailabilityBonus(candidate.Entry, now)
		return PharmacyBaseWeight*candidate.BaseScore.Value + candidate.AvailabilityBonus
	default:
		// Embedding domains rank on semantic fit alone.
		return candidate.ContentScore.Value
	}
}

// policyState builds the state the policy scores: the 2-feature travel
// state for pharmacies, the profile/candidate embedding difference for
// every other domain. Hospitals carry embeddings, so they go through the
// wide net like drugs and conditions.
func (r *Ranker) policyState(req *Request, candidate *recommend.Candidate) []float64 {
	switch req.Domain {
	case recommend.DomainPharmacy:
		return scoring.TravelState(candidate.BaseScore)
	default:
		var entryVector []float32
		if req.CandidateVector != nil {
			entryVector, _ = req.CandidateVector(candidate.Entry.ID)
		}
		return scoring.EmbeddingState(req.Profile.Vector, entryVector)
	}
}

func (r *Ranker) rankByDistance(req *Request) *Result {
	for _, candidate := range req.Candidates {
		candidate.BaseScore = scoring.BaseScore(candidate.Travel)
		candidate.FinalScore = candidate.BaseScore.Value
	}
	return &Result{Candidates: orderByFinalScore(req.Candidates, r.config.TopK)}
}

// orderByFinalScore sorts score-descending with ID-ascending tiebreak and
// truncates to k. Ordering is total, so identical requests produce
// identical lists.
func orderByFinalScore(candidates []*recommend.Candidate, k int) []*recommend.Candidate {
	ordered := append([]*recommend.Candidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].FinalScore != ordered[j].FinalScore {
			return ordered[i].FinalScore > ordered[j].FinalScore
		}
		return ordered[i].Entry.ID < ordered[j].Entry.ID
	})
	if k < len(ordered) {
		ordered = ordered[:k]
	}
	return ordered
}
