package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/feedback"
	"github.com/carelink/medirank/server/service/ranking"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank recommendations for a user profile in one domain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		domain, err := parseDomain(mustString(cmd, "domain"))
		if err != nil {
			return err
		}
		userProfile, err := profileFromFlags(cmd)
		if err != nil {
			return err
		}

		embedder, err := newEmbedder(p)
		if err != nil {
			return err
		}
		runtime, err := loadDomainRuntime(p, embedder, domain)
		if err != nil {
			return err
		}

		st, err := openStore(cmd, p)
		if err != nil {
			return err
		}
		defer st.Close()

		tiered, err := newTieredCache(p)
		if err != nil {
			return err
		}
		defer tiered.Close()

		provider, err := newTravelProvider(p)
		if err != nil {
			return err
		}

		svc := ranking.NewService(nil,
			map[recommend.Domain]*ranking.DomainRuntime{domain: runtime},
			feedback.NewStore(st, tiered, nil),
			provider)

		topK, _ := cmd.Flags().GetInt("top-k")
		distanceOnly, _ := cmd.Flags().GetBool("distance-only")
		result, err := svc.Recommend(cmd.Context(), &ranking.Request{
			Profile:      userProfile,
			Domain:       domain,
			TopK:         topK,
			DistanceOnly: distanceOnly,
		})
		if err != nil {
			return err
		}

		return printResult(result.Candidates, result.PolicyVersion)
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record that the user selected a recommended entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		domain, err := parseDomain(mustString(cmd, "domain"))
		if err != nil {
			return err
		}
		userProfile, err := profileFromFlags(cmd)
		if err != nil {
			return err
		}

		embedder, err := newEmbedder(p)
		if err != nil {
			return err
		}
		runtime, err := loadDomainRuntime(p, embedder, domain)
		if err != nil {
			return err
		}

		entryID := mustString(cmd, "entry")
		entry, ok := runtime.Retriever.Entry(entryID)
		if !ok {
			return errors.Errorf("entry %q is not in the %s catalog", entryID, domain)
		}

		selected := &recommend.Candidate{Entry: entry}
		if seconds, err := cmd.Flags().GetInt64("travel-seconds"); err == nil && seconds >= 0 {
			selected.Travel = &recommend.TravelLeg{Seconds: seconds}
		}

		// Every embedding-state domain snapshots the state vectors with
		// the selection; only pharmacies are travel-only.
		if domain != recommend.DomainPharmacy {
			vector, err := embedder.Embed(cmd.Context(), userProfile.ProfileText())
			if err != nil {
				return errors.Wrap(err, "failed to embed user profile")
			}
			userProfile.Vector = vector
		}

		st, err := openStore(cmd, p)
		if err != nil {
			return err
		}
		defer st.Close()

		tiered, err := newTieredCache(p)
		if err != nil {
			return err
		}
		defer tiered.Close()

		svc := ranking.NewService(nil,
			map[recommend.Domain]*ranking.DomainRuntime{domain: runtime},
			feedback.NewStore(st, tiered, nil),
			nil)
		return svc.RecordSelection(cmd.Context(), userProfile, domain, selected)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{rankCmd, recordCmd} {
		flags := cmd.Flags()
		flags.String("domain", "", "recommendation domain")
		flags.String("user", "", "user identifier")
		flags.String("gender", "", "user gender")
		flags.Int("age", 0, "user age")
		flags.String("condition", "", "suspected condition")
		flags.String("department", "", "department")
		flags.String("allergies", "", "known allergies")
		flags.String("medications", "", "current medications")
		flags.String("past-history", "", "past medical history")
		flags.String("family-history", "", "family medical history")
		flags.Float64("lat", 0, "user latitude")
		flags.Float64("lon", 0, "user longitude")
		_ = cmd.MarkFlagRequired("domain")
		_ = cmd.MarkFlagRequired("user")
	}
	rankCmd.Flags().Int("top-k", 0, "result list length (default 15)")
	rankCmd.Flags().Bool("distance-only", false, "rank facilities by travel time alone")
	recordCmd.Flags().String("entry", "", "selected entry ID")
	recordCmd.Flags().Int64("travel-seconds", -1, "travel time shown to the user")
	_ = recordCmd.MarkFlagRequired("entry")
}

func profileFromFlags(cmd *cobra.Command) (*recommend.UserProfile, error) {
	userID := mustString(cmd, "user")
	if userID == "" {
		return nil, errors.New("user is required")
	}

	age, _ := cmd.Flags().GetInt("age")
	p := &recommend.UserProfile{
		UserID:             userID,
		Gender:             mustString(cmd, "gender"),
		Age:                age,
		Allergies:          mustString(cmd, "allergies"),
		Medications:        mustString(cmd, "medications"),
		PastHistory:        mustString(cmd, "past-history"),
		FamilyHistory:      mustString(cmd, "family-history"),
		Department:         mustString(cmd, "department"),
		SuspectedCondition: mustString(cmd, "condition"),
	}

	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	if lat != 0 || lon != 0 {
		p.Location = &recommend.LatLng{Latitude: lat, Longitude: lon}
	}
	return p, nil
}

// rankedEntry is the CLI output row.
type rankedEntry struct {
	Rank          int     `json:"rank"`
	ID            string  `json:"id"`
	DisplayName   string  `json:"display_name"`
	FinalScore    float64 `json:"final_score"`
	Reward        float64 `json:"reward"`
	BaseScore     float64 `json:"base_score"`
	ContentScore  float64 `json:"content_score"`
	PolicyProb    float64 `json:"policy_prob"`
	TravelSeconds *int64  `json:"travel_seconds,omitempty"`
	Degraded      bool    `json:"degraded,omitempty"`
}

func printResult(candidates []*recommend.Candidate, policyVersion uint64) error {
	out := struct {
		PolicyVersion uint64        `json:"policy_version"`
		Results       []rankedEntry `json:"results"`
	}{PolicyVersion: policyVersion}

	for i, c := range candidates {
		row := rankedEntry{
			Rank:         i + 1,
			ID:           c.Entry.ID,
			DisplayName:  c.Entry.DisplayName,
			FinalScore:   c.FinalScore,
			Reward:       c.Reward,
			BaseScore:    c.BaseScore.Value,
			ContentScore: c.ContentScore.Value,
			PolicyProb:   c.PolicyProb,
			Degraded:     c.BaseScore.Degraded || c.ContentScore.Degraded,
		}
		if c.Travel != nil {
			seconds := c.Travel.Seconds
			row.TravelSeconds = &seconds
		}
		out.Results = append(out.Results, row)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
