// Package recommend defines the shared data model for the retrieval-and-rank
// recommendation engine: catalog entries, request-scoped candidates, and the
// user profile. Subpackages implement indexing, scoring, feedback, and ranking.
package recommend

import "time"

// Domain identifies which catalog a request targets.
type Domain string

const (
	DomainHospital  Domain = "hospital"
	DomainPharmacy  Domain = "pharmacy"
	DomainDrug      Domain = "drug"
	DomainCondition Domain = "condition"
)

// HoursWindow is a single open/close window, times as HHMM strings.
type HoursWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// CatalogEntry is one indexable item. Immutable once indexed; rebuilt
// wholesale from the catalog snapshot, never partially mutated.
type CatalogEntry struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Attributes  map[string]string `json:"attributes,omitempty"`

	// Latitude/Longitude are set for facilities, zero for drugs/conditions.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	// Hours holds per-weekday operating windows for time-gated entries.
	Hours map[time.Weekday]HoursWindow `json:"hours,omitempty"`

	// Embedding is populated at index-build time and omitted from the
	// metadata artifact (vectors live in the index blob, row-aligned).
	Embedding []float32 `json:"-"`
}

// Score is one score component with an explicit degradation marker, so
// fallback paths are assertable instead of being inferred from zeros.
type Score struct {
	Value    float64 `json:"value"`
	Degraded bool    `json:"degraded,omitempty"`
}

// TravelLeg is the travel-time provider result for one origin/destination
// pair. A nil leg means the provider had no route.
type TravelLeg struct {
	Seconds    int64   `json:"seconds"`
	DistanceKm float64 `json:"distance_km"`
}

// Candidate is a catalog entry plus the per-request derived scores.
// Created fresh per request and discarded after the response.
type Candidate struct {
	Entry *CatalogEntry

	// Travel is nil when the provider had no data; base score then degrades.
	Travel *TravelLeg

	BaseScore    Score
	ContentScore Score

	PolicyProb       float64
	ImportanceWeight float64

	RecencyBonus      float64
	LongTermReward    float64
	AvailabilityBonus float64

	Reward     float64
	FinalScore float64
}

// LatLng is a geographic coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UserProfile is the request-scoped user state. Never persisted by the
// engine; callers construct it per request.
type UserProfile struct {
	UserID string

	Gender             string
	Age                int
	Allergies          string
	Medications        string
	PastHistory        string
	FamilyHistory      string
	Department         string
	SuspectedCondition string

	Location *LatLng

	// Vector is the embedded profile text, set by the retriever.
	Vector []float32
}

// ProfileText flattens the structured facts into the text that gets embedded.
func (p *UserProfile) ProfileText() string {
	return "suspected condition: " + orUnknown(p.SuspectedCondition) +
		", department: " + orUnknown(p.Department) +
		", family history: " + orUnknown(p.FamilyHistory) +
		", gender: " + orUnknown(p.Gender) +
		", past history: " + orUnknown(p.PastHistory) +
		", medications: " + orUnknown(p.Medications)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
