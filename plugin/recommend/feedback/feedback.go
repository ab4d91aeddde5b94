// Package feedback keeps the sliding window of selection events and derives
// the reward bonuses the ranker adds on top of the immediate reward.
package feedback

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/store"
	"github.com/carelink/medirank/store/cache"
)

const (
	// Window is how long a selection event stays visible to scoring.
	Window = 7 * 24 * time.Hour

	// RecencyBonusValue is added when the user already selected the entry
	// inside the window.
	RecencyBonusValue = 0.2

	// AvailabilityBonusValue is added when a pharmacy is open right now.
	AvailabilityBonusValue = 0.3
)

// RewardModel derives the long-term reward for an entry from the user's
// selection history. The default model only looks at recency; richer
// models can weigh repeat visits or travel outcomes.
type RewardModel interface {
	LongTermReward(history []*store.FeedbackRecord, entryID string, now time.Time) float64
}

// RecencyModel is the default RewardModel: a flat bonus when the entry was
// selected inside the window, zero otherwise.
type RecencyModel struct{}

func (RecencyModel) LongTermReward(history []*store.FeedbackRecord, entryID string, now time.Time) float64 {
	return RecencyBonus(history, entryID, now)
}

// Store serves selection history through the tiered cache and records new
// selections. History reads degrade to empty rather than failing a request.
type Store struct {
	store *store.Store
	cache *cache.TieredCache
	model RewardModel
}

// NewStore wires the feedback store. A nil model falls back to RecencyModel.
func NewStore(st *store.Store, tiered *cache.TieredCache, model RewardModel) *Store {
	if model == nil {
		model = RecencyModel{}
	}
	return &Store{store: st, cache: tiered, model: model}
}

func (s *Store) Model() RewardModel {
	return s.model
}

// History returns the user's selection events inside the window for one
// domain, most recent first. Store failures log and return an empty
// history so ranking can proceed without long-term signal.
func (s *Store) History(ctx context.Context, userID string, domain recommend.Domain) []*store.FeedbackRecord {
	key := historyKey(userID, domain)

	if s.cache != nil {
		if value, found := s.cache.Get(ctx, key, decodeHistory); found {
			if history, ok := value.([]*store.FeedbackRecord); ok {
				return history
			}
		}
	}

	history, err := s.load(ctx, userID, domain)
	if err != nil {
		slog.Warn("feedback history unavailable, ranking without long-term signal",
			"user_id", userID, "domain", domain, "error", err)
		return nil
	}

	if s.cache != nil {
		s.cache.SetWithTTL(ctx, key, history, Window)
	}
	return history
}

// RecordSelection persists a selection event and drops the user's cached
// history so the next request observes it.
func (s *Store) RecordSelection(ctx context.Context, record *store.FeedbackRecord) (*store.FeedbackRecord, error) {
	if record == nil {
		return nil, errors.New("feedback record is nil")
	}
	if record.UserID == "" || record.EntryID == "" {
		return nil, errors.New("feedback record requires user and entry")
	}
	if record.SelectedAt.IsZero() {
		record.SelectedAt = time.Now()
	}

	created, err := s.store.CreateFeedback(ctx, record)
	if err != nil {
		return nil, errors.Wrap(err, "failed to record selection")
	}

	if s.cache != nil {
		s.cache.DeletePrefix(ctx, userKeyPrefix(record.UserID))
	}
	return created, nil
}

// PruneExpired deletes events older than the window from the store.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteFeedbackBefore(ctx, time.Now().Add(-Window))
}

func (s *Store) load(ctx context.Context, userID string, domain recommend.Domain) ([]*store.FeedbackRecord, error) {
	since := time.Now().Add(-Window)
	domainStr := string(domain)
	return s.store.ListFeedback(ctx, &store.FindFeedback{
		UserID: &userID,
		Domain: &domainStr,
		Since:  &since,
	})
}

func historyKey(userID string, domain recommend.Domain) string {
	return userKeyPrefix(userID) + string(domain)
}

func userKeyPrefix(userID string) string {
	return "feedback:" + userID + ":"
}

func decodeHistory(data []byte) (any, error) {
	var history []*store.FeedbackRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, errors.Wrap(err, "failed to decode cached history")
	}
	return history, nil
}

// RecencyBonus returns the flat bonus when entryID appears in the history
// inside the window, zero otherwise.
func RecencyBonus(history []*store.FeedbackRecord, entryID string, now time.Time) float64 {
	cutoff := now.Add(-Window)
	for _, record := range history {
		if record.EntryID == entryID && record.SelectedAt.After(cutoff) {
			return RecencyBonusValue
		}
	}
	return 0
}

// AvailabilityBonus returns the flat bonus when the entry is open at the
// given time. Entries with no hours for the weekday, or with malformed
// times, get no bonus.
func AvailabilityBonus(entry *recommend.CatalogEntry, now time.Time) float64 {
	if entry == nil || len(entry.Hours) == 0 {
		return 0
	}
	window, ok := entry.Hours[now.Weekday()]
	if !ok {
		return 0
	}

	open, err := parseHHMM(window.Open)
	if err != nil {
		return 0
	}
	close, err := parseHHMM(window.Close)
	if err != nil {
		return 0
	}

	minute := now.Hour()*60 + now.Minute()
	if minute >= open && minute <= close {
		return AvailabilityBonusValue
	}
	return 0
}

// parseHHMM converts an "HHMM" string to minutes since midnight.
func parseHHMM(s string) (int, error) {
	if len(s) != 4 {
		return 0, errors.Errorf("invalid HHMM time: %q", s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("invalid HHMM time: %q", s)
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[2]-'0')*10 + int(s[3]-'0')
	if hour > 23 || minute > 59 {
		return 0, errors.Errorf("invalid HHMM time: %q", s)
	}
	return hour*60 + minute, nil
}
