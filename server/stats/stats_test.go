package stats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/store"
)

type fakeDriver struct {
	records []*store.FeedbackRecord
}

func (f *fakeDriver) GetDB() *sql.DB                    { return nil }
func (f *fakeDriver) Close() error                      { return nil }
func (f *fakeDriver) Migrate(ctx context.Context) error { return nil }

func (f *fakeDriver) CreateFeedback(_ context.Context, create *store.FeedbackRecord) (*store.FeedbackRecord, error) {
	f.records = append(f.records, create)
	return create, nil
}

func (f *fakeDriver) ListFeedback(_ context.Context, _ *store.FindFeedback) ([]*store.FeedbackRecord, error) {
	return f.records, nil
}

func (f *fakeDriver) DeleteFeedbackBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeDriver) ListUsersWithFeedbackSince(_ context.Context, _ time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeDriver) UpsertCatalogEmbedding(_ context.Context, upsert *store.CatalogEmbedding) (*store.CatalogEmbedding, error) {
	return upsert, nil
}

func (f *fakeDriver) ListCatalogEmbeddings(_ context.Context, _ *store.FindCatalogEmbedding) ([]*store.CatalogEmbedding, error) {
	return nil, nil
}

func (f *fakeDriver) DeleteCatalogEmbeddings(_ context.Context, _ string) error { return nil }

func seconds(s int64) *int64 { return &s }

func TestCollect(t *testing.T) {
	now := time.Now()
	driver := &fakeDriver{records: []*store.FeedbackRecord{
		{UserID: "u1", EntryID: "h-1", Domain: "hospital", SelectedAt: now.Add(-time.Hour), TravelSeconds: seconds(300)},
		{UserID: "u1", EntryID: "p-1", Domain: "pharmacy", SelectedAt: now.Add(-2 * 24 * time.Hour)},
		{UserID: "u2", EntryID: "d-1", Domain: "drug", SelectedAt: now.Add(-20 * 24 * time.Hour)},
	}}

	collector := NewCollector(store.New(driver, nil))
	collector.Collect(context.Background())
	stats := collector.GetStats()

	require.Equal(t, int64(3), stats.TotalSelections)
	require.Equal(t, int64(2), stats.SelectionsLastWeek)
	require.Equal(t, int64(3), stats.SelectionsLastMonth)
	require.Equal(t, int64(1), stats.ActiveUsers)
	require.Equal(t, int64(1), stats.SelectionsByDomain[recommend.DomainHospital])
	require.Equal(t, int64(1), stats.SelectionsByDomain[recommend.DomainPharmacy])
	require.InDelta(t, 0.5, stats.TravelDataShare, 1e-9)
	require.WithinDuration(t, now.Add(-time.Hour), stats.LastSelectionAt, time.Second)
}

func TestGetStatsReturnsCopy(t *testing.T) {
	driver := &fakeDriver{records: []*store.FeedbackRecord{
		{UserID: "u1", Domain: "drug", SelectedAt: time.Now()},
	}}
	collector := NewCollector(store.New(driver, nil))
	collector.Collect(context.Background())

	first := collector.GetStats()
	first.SelectionsByDomain[recommend.DomainDrug] = 99

	second := collector.GetStats()
	require.Equal(t, int64(1), second.SelectionsByDomain[recommend.DomainDrug])
}

func TestStartStop(t *testing.T) {
	collector := NewCollector(store.New(&fakeDriver{}, nil))
	ctx, cancel := context.WithCancel(context.Background())
	collector.Start(ctx)
	cancel()
	collector.Stop()
}
