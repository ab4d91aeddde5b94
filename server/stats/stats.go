// Package stats provides simple local usage statistics for the
// recommendation engine. This is a lightweight alternative to enterprise
// monitoring solutions.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/store"
)

// Stats represents feedback-loop usage statistics.
type Stats struct {
	// Selection stats
	TotalSelections     int64
	SelectionsLastWeek  int64
	SelectionsLastMonth int64

	// Per-domain selection counts over the feedback window.
	SelectionsByDomain map[recommend.Domain]int64

	// Activity stats
	ActiveUsers      int64 // Users with a selection in the last 7 days
	LastSelectionAt  time.Time
	TravelDataShare  float64 // Fraction of facility selections with a travel leg
	LastUpdated      time.Time
}

// Collector collects and manages usage statistics.
type Collector struct {
	store    *store.Store
	stats    *Stats
	mu       sync.Mutex
	tickStop chan struct{}
}

// NewCollector creates a new statistics collector.
func NewCollector(st *store.Store) *Collector {
	return &Collector{
		store: st,
		stats: &Stats{
			SelectionsByDomain: make(map[recommend.Domain]int64),
			LastUpdated:        time.Now(),
		},
		tickStop: make(chan struct{}),
	}
}

// Start begins periodic statistics collection. Updates every hour.
func (c *Collector) Start(ctx context.Context) {
	c.Collect(ctx)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Collect(ctx)
			case <-ctx.Done():
				c.Stop()
				return
			case <-c.tickStop:
				return
			}
		}
	}()
}

// Stop stops the statistics collector.
func (c *Collector) Stop() {
	select {
	case <-c.tickStop:
		// Already closed
	default:
		close(c.tickStop)
	}
}

// GetStats returns a copy of current statistics.
func (c *Collector) GetStats() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byDomain := make(map[recommend.Domain]int64, len(c.stats.SelectionsByDomain))
	for domain, count := range c.stats.SelectionsByDomain {
		byDomain[domain] = count
	}
	copied := *c.stats
	copied.SelectionsByDomain = byDomain
	return &copied
}

// Collect gathers current statistics from the store.
func (c *Collector) Collect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	records, err := c.store.ListFeedback(ctx, &store.FindFeedback{})
	if err != nil {
		return
	}

	byDomain := make(map[recommend.Domain]int64)
	var weekCount, monthCount int64
	var lastSelection time.Time
	var facilityTotal, facilityWithTravel int64
	activeUsers := map[string]bool{}

	for _, r := range records {
		domain := recommend.Domain(r.Domain)
		byDomain[domain]++
		if !r.SelectedAt.Before(weekAgo) {
			weekCount++
			activeUsers[r.UserID] = true
		}
		if !r.SelectedAt.Before(monthAgo) {
			monthCount++
		}
		if r.SelectedAt.After(lastSelection) {
			lastSelection = r.SelectedAt
		}
		if domain == recommend.DomainHospital || domain == recommend.DomainPharmacy {
			facilityTotal++
			if r.TravelSeconds != nil {
				facilityWithTravel++
			}
		}
	}

	c.stats.TotalSelections = int64(len(records))
	c.stats.SelectionsLastWeek = weekCount
	c.stats.SelectionsLastMonth = monthCount
	c.stats.SelectionsByDomain = byDomain
	c.stats.ActiveUsers = int64(len(activeUsers))
	c.stats.LastSelectionAt = lastSelection
	if facilityTotal > 0 {
		c.stats.TravelDataShare = float64(facilityWithTravel) / float64(facilityTotal)
	} else {
		c.stats.TravelDataShare = 0
	}
	c.stats.LastUpdated = now
}
