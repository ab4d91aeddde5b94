// Package ranking is the request-facing recommendation service: it wires
// retrieval, travel resolution, feedback history, and the ranker into one
// Recommend operation, and records selections back into the loop.
package ranking

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/feedback"
	"github.com/carelink/medirank/plugin/recommend/ranker"
	"github.com/carelink/medirank/plugin/recommend/retriever"
	"github.com/carelink/medirank/plugin/recommend/scoring"
	"github.com/carelink/medirank/plugin/recommend/travel"
	enginerrors "github.com/carelink/medirank/server/internal/errors"
	"github.com/carelink/medirank/server/internal/observability"
	"github.com/carelink/medirank/store"
)

// retrieveK is how many candidates retrieval hands the ranker; wider than
// the final list so the off-policy correction has room to reorder.
const retrieveK = 30

// DomainRuntime is one domain's serving state: its loaded index behind a
// retriever and its policy.
type DomainRuntime struct {
	Retriever *retriever.Retriever
	Policy    *scoring.Policy
}

// Service serves recommendations across the configured domains.
type Service struct {
	logger   *slog.Logger
	domains  map[recommend.Domain]*DomainRuntime
	feedback *feedback.Store
	travel   travel.Provider
}

// NewService wires the recommendation service. travel may be nil; base
// scores then degrade.
func NewService(logger *slog.Logger, domains map[recommend.Domain]*DomainRuntime, fs *feedback.Store, provider travel.Provider) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:   logger,
		domains:  domains,
		feedback: fs,
		travel:   provider,
	}
}

// Request is one recommendation request.
type Request struct {
	Profile *recommend.UserProfile
	Domain  recommend.Domain
	// TopK caps the result list; zero means the default.
	TopK int
	// DistanceOnly ranks a facility domain by travel time alone, bypassing
	// retrieval scoring, feedback, and the policy.
	DistanceOnly bool
}

// Recommend runs the full pipeline and returns the ranked list.
func (s *Service) Recommend(ctx context.Context, req *Request) (*ranker.Result, error) {
	if req == nil || req.Profile == nil {
		return nil, errors.New("request requires a user profile")
	}
	runtime, ok := s.domains[req.Domain]
	if !ok {
		return nil, errors.Errorf("unsupported domain: %s", req.Domain)
	}

	rc := observability.NewRequestContext(s.logger, string(req.Domain), req.Profile.UserID)

	mode := ranker.ModePolicy
	var candidates []*recommend.Candidate
	var err error
	if req.DistanceOnly {
		if !travelDomain(req.Domain) {
			return nil, errors.Errorf("distance-only ranking is not available for domain %s", req.Domain)
		}
		mode = ranker.ModeDistanceOnly
		candidates, err = runtime.Retriever.AllCandidates()
	} else {
		candidates, err = runtime.Retriever.Retrieve(ctx, req.Profile, retrieveK)
	}
	if err != nil {
		rc.Error("retrieval failed", err,
			slog.String("error_code", string(enginerrors.Classify(err))))
		return nil, err
	}

	if travelDomain(req.Domain) {
		travel.Resolve(ctx, s.travel, req.Profile.Location, candidates, 0)
	}

	var history []*store.FeedbackRecord
	if s.feedback != nil {
		history = s.feedback.History(ctx, req.Profile.UserID, req.Domain)
	}

	var model feedback.RewardModel
	if s.feedback != nil {
		model = s.feedback.Model()
	}
	r := ranker.New(runtime.Policy, model, ranker.Config{Mode: mode, TopK: req.TopK})
	result, err := r.Rank(&ranker.Request{
		Profile:         req.Profile,
		Domain:          req.Domain,
		Candidates:      candidates,
		History:         history,
		CandidateVector: runtime.Retriever.CandidateVector,
	})
	if err != nil {
		rc.Error("ranking failed", err,
			slog.String("error_code", string(enginerrors.Classify(err))))
		return nil, err
	}

	rc.Info("recommendation served",
		slog.Int(observability.LogFieldCandidates, len(result.Candidates)),
		slog.Int(observability.LogFieldDegraded, degradedCount(result.Candidates)),
		slog.Uint64(observability.LogFieldPolicyVersion, result.PolicyVersion),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
	return result, nil
}

// RecordSelection persists that the user acted on a recommended entry. The
// snapshot carries whatever state the domain's policy scores on, so the
// updater never re-embeds.
func (s *Service) RecordSelection(ctx context.Context, profile *recommend.UserProfile, domain recommend.Domain, selected *recommend.Candidate) error {
	if s.feedback == nil {
		return errors.New("feedback store not configured")
	}
	if profile == nil || selected == nil || selected.Entry == nil {
		return errors.New("selection requires a profile and a candidate")
	}

	record := &store.FeedbackRecord{
		UserID:      profile.UserID,
		EntryID:     selected.Entry.ID,
		Domain:      string(domain),
		DisplayName: selected.Entry.DisplayName,
	}

	if travelDomain(domain) {
		if selected.Travel != nil {
			seconds := selected.Travel.Seconds
			record.TravelSeconds = &seconds
		}
	}
	// Every embedding-state domain snapshots the vector pair; hospitals
	// need both the travel leg and the vectors.
	if domain != recommend.DomainPharmacy {
		record.UserVector = profile.Vector
		if runtime, ok := s.domains[domain]; ok {
			if vector, ok := runtime.Retriever.CandidateVector(selected.Entry.ID); ok {
				record.EntryVector = vector
			}
		}
	}

	_, err := s.feedback.RecordSelection(ctx, record)
	return err
}

func travelDomain(domain recommend.Domain) bool {
	return domain == recommend.DomainHospital || domain == recommend.DomainPharmacy
}

func degradedCount(candidates []*recommend.Candidate) int {
	var n int
	for _, c := range candidates {
		if c.BaseScore.Degraded || c.ContentScore.Degraded {
			n++
		}
	}
	return n
}
