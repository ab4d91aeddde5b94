// Package policyupdate trains the policy networks from observed selections.
// A background runner periodically folds new feedback into the per-domain
// policies with one REINFORCE step per user, then publishes the new
// parameter versions for serving.
package policyupdate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/feedback"
	"github.com/carelink/medirank/plugin/recommend/ranker"
	"github.com/carelink/medirank/plugin/recommend/scoring"
	"github.com/carelink/medirank/store"
)

const (
	defaultInterval     = 10 * time.Minute
	defaultLearningRate = 0.01
)

// Runner folds feedback into the policies on a fixed interval.
type Runner struct {
	store        *store.Store
	policies     map[recommend.Domain]*scoring.Policy
	interval     time.Duration
	learningRate float64

	// mu makes the runner the single policy writer: manual triggers and
	// the ticker never interleave gradient steps.
	mu      sync.Mutex
	lastRun time.Time
}

// NewRunner creates a policy update runner over the given per-domain
// policies.
func NewRunner(st *store.Store, policies map[recommend.Domain]*scoring.Policy) *Runner {
	return &Runner{
		store:        st,
		policies:     policies,
		interval:     defaultInterval,
		learningRate: defaultLearningRate,
		// First pass covers the whole feedback window.
		lastRun: time.Now().Add(-feedback.Window),
	}
}

// SetInterval overrides the tick interval, for tests and manual tuning.
func (r *Runner) SetInterval(interval time.Duration) {
	if interval > 0 {
		r.interval = interval
	}
}

// SetLearningRate overrides the gradient step size.
func (r *Runner) SetLearningRate(rate float64) {
	if rate > 0 {
		r.learningRate = rate
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	// Process once on startup
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("policy update runner stopped")
			return
		}
	}
}

// RunOnce processes new feedback once (for manual trigger). Each user's
// selections update the policy in an isolated gradient step, so one user's
// behavior never mixes into another user's batch.
func (r *Runner) RunOnce(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.lastRun
	cycleStart := time.Now()

	users, err := r.store.ListUsersWithFeedbackSince(ctx, since)
	if err != nil {
		slog.Error("failed to list users with feedback", "error", err)
		return
	}
	if len(users) == 0 {
		r.lastRun = cycleStart
		return
	}

	var steps int
	for domain, policy := range r.policies {
		for _, userID := range users {
			select {
			case <-ctx.Done():
				slog.Info("policy update cancelled", "steps", steps)
				return
			default:
			}

			if r.updateUser(ctx, domain, policy, userID, since) {
				steps++
			}
		}
	}

	r.lastRun = cycleStart
	if steps > 0 {
		slog.Info("policy update complete",
			"users", len(users), "steps", steps, "elapsed", time.Since(cycleStart))
	}
}

// updateUser applies one gradient step from a single user's new feedback.
// Returns true when a step was taken.
func (r *Runner) updateUser(ctx context.Context, domain recommend.Domain, policy *scoring.Policy, userID string, since time.Time) bool {
	domainStr := string(domain)
	records, err := r.store.ListFeedback(ctx, &store.FindFeedback{
		UserID: &userID,
		Domain: &domainStr,
		Since:  &since,
	})
	if err != nil {
		slog.Error("failed to list feedback", "user_id", userID, "domain", domain, "error", err)
		return false
	}

	samples := buildSamples(domain, records)
	if len(samples) == 0 {
		return false
	}

	params := policy.Snapshot()
	next, loss, err := scoring.Reinforce(params, samples, r.learningRate)
	if err != nil {
		slog.Error("gradient step failed", "user_id", userID, "domain", domain, "error", err)
		return false
	}
	if next == params {
		return false
	}

	policy.Swap(next)
	slog.Debug("policy updated",
		"user_id", userID,
		"domain", domain,
		"samples", len(samples),
		"loss", loss,
		"version", next.Version)
	return true
}

// buildSamples reconstructs the state each selection was scored under from
// the record snapshot, with the immediate reward as the learning signal.
func buildSamples(domain recommend.Domain, records []*store.FeedbackRecord) []scoring.Sample {
	samples := make([]scoring.Sample, 0, len(records))
	for _, record := range records {
		var state []float64
		var reward float64

		switch domain {
		case recommend.DomainHospital:
			// Hospitals score through the embedding-difference state; a
			// record without its vector snapshot carries no usable state.
			if len(record.UserVector) == 0 || len(record.EntryVector) == 0 {
				continue
			}
			base := scoring.BaseScore(travelLeg(record))
			content := scoring.ContentScore(record.UserVector, record.EntryVector)
			state = scoring.EmbeddingState(record.UserVector, record.EntryVector)
			reward = ranker.FacilityBaseWeight*base.Value + ranker.FacilityContentWeight*content.Value
		case recommend.DomainPharmacy:
			base := scoring.BaseScore(travelLeg(record))
			state = scoring.TravelState(base)
			reward = ranker.PharmacyBaseWeight * base.Value
		default:
			if len(record.UserVector) == 0 || len(record.EntryVector) == 0 {
				continue
			}
			state = scoring.EmbeddingState(record.UserVector, record.EntryVector)
			reward = scoring.ContentScore(record.UserVector, record.EntryVector).Value
		}

		if reward <= 0 {
			continue
		}
		samples = append(samples, scoring.Sample{State: state, Reward: reward})
	}
	return samples
}

func travelLeg(record *store.FeedbackRecord) *recommend.TravelLeg {
	if record.TravelSeconds == nil {
		return nil
	}
	return &recommend.TravelLeg{Seconds: *record.TravelSeconds}
}
