// Package indexer builds the per-domain index artifacts from a catalog
// snapshot: embed every entry, normalize, and persist the flat index (plus
// the clustered index for the large embedding catalogs) with its metadata.
// Rebuilds are wholesale; a build never mutates a live artifact in place.
package indexer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/carelink/medirank/plugin/ai"
	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/vecindex"
	"github.com/carelink/medirank/store"
)

const (
	defaultBatchSize   = 64
	defaultMaxInFlight = 10
)

// Config holds the index build knobs.
type Config struct {
	// DataDir is where index artifacts live.
	DataDir string
	// BatchSize is the number of texts per embedding call.
	BatchSize int
	// MaxInFlight bounds concurrent embedding batches.
	MaxInFlight int64
	// EntryText overrides how an entry is flattened to embeddable text.
	EntryText func(*recommend.CatalogEntry) string
	// Model labels archived embeddings with the producing model.
	Model string
}

// Indexer builds and persists domain indexes. The store is optional; when
// present, built embeddings are archived so a rebuild can skip re-embedding
// unchanged catalogs.
type Indexer struct {
	embedder ai.EmbeddingService
	archive  *store.Store
	config   Config
}

// New creates an indexer. archive may be nil.
func New(embedder ai.EmbeddingService, archive *store.Store, config Config) *Indexer {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = defaultMaxInFlight
	}
	if config.EntryText == nil {
		config.EntryText = EntryText
	}
	return &Indexer{embedder: embedder, archive: archive, config: config}
}

// EntryText is the default flattening: display name plus attributes in
// key order, so identical entries always embed identical text.
func EntryText(entry *recommend.CatalogEntry) string {
	text := entry.DisplayName
	keys := make([]string, 0, len(entry.Attributes))
	for key := range entry.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		text += ", " + key + ": " + entry.Attributes[key]
	}
	return text
}

// Paths returns the artifact paths for a domain.
func Paths(dataDir string, domain recommend.Domain) (flatPath, ivfPath, metaPath string) {
	base := filepath.Join(dataDir, string(domain))
	return base + ".flat.idx", base + ".ivf.idx", base + ".meta.json"
}

// BuildResult summarizes one index build.
type BuildResult struct {
	Domain        recommend.Domain
	Entries       int
	FailedBatches int
	Nlist         int // zero when no clustered index was built
	Elapsed       time.Duration
}

// Build embeds the whole catalog and writes fresh artifacts. Embedding
// batches that fail are logged and their entries indexed as zero vectors,
// which score as maximally dissimilar; the build keeps going.
func (ix *Indexer) Build(ctx context.Context, domain recommend.Domain, entries []*recommend.CatalogEntry) (*BuildResult, error) {
	if len(entries) == 0 {
		return nil, errors.New("cannot build index from empty catalog")
	}
	start := time.Now()

	vectors, failedBatches := ix.embedAll(ctx, entries)
	dim := ix.embedder.Dimensions()
	for i := range vectors {
		if len(vectors[i]) == 0 {
			vectors[i] = make([]float32, dim)
		}
		vectors[i] = vecindex.Normalize(vectors[i])
		entries[i].Embedding = vectors[i]
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}

	flatPath, ivfPath, metaPath := Paths(ix.config.DataDir, domain)

	flat := vecindex.NewFlat(dim)
	if err := flat.Add(ids, vectors); err != nil {
		return nil, err
	}
	if err := vecindex.WriteMetadata(entries, metaPath); err != nil {
		return nil, err
	}
	if err := vecindex.Save(flat, flatPath); err != nil {
		return nil, err
	}

	result := &BuildResult{
		Domain:        domain,
		Entries:       len(entries),
		FailedBatches: failedBatches,
	}

	if nlist := clusterCount(domain, len(entries)); nlist > 0 && len(entries) >= nlist {
		ivf, err := vecindex.NewIVF(dim, nlist)
		if err != nil {
			return nil, err
		}
		if err := ivf.Train(vectors); err != nil {
			return nil, err
		}
		if err := ivf.Add(ids, vectors); err != nil {
			return nil, err
		}
		if err := vecindex.Save(ivf, ivfPath); err != nil {
			return nil, err
		}
		result.Nlist = nlist
	}

	ix.archiveEmbeddings(ctx, domain, entries)

	result.Elapsed = time.Since(start)
	slog.Info("index build complete",
		"domain", domain,
		"entries", result.Entries,
		"failed_batches", result.FailedBatches,
		"nlist", result.Nlist,
		"elapsed", result.Elapsed)
	return result, nil
}

// clusterCount returns the nlist for domains that get a clustered index.
// Facility catalogs stay flat; they are small and travel-dominated.
func clusterCount(domain recommend.Domain, catalogSize int) int {
	switch domain {
	case recommend.DomainDrug:
		return vecindex.DrugNlist(catalogSize)
	case recommend.DomainCondition:
		return vecindex.ConditionNlist(catalogSize)
	default:
		return 0
	}
}

// embedAll embeds every entry with bounded batch parallelism. A failed
// batch leaves nil vectors for its rows.
func (ix *Indexer) embedAll(ctx context.Context, entries []*recommend.CatalogEntry) ([][]float32, int) {
	vectors := make([][]float32, len(entries))
	sem := semaphore.NewWeighted(ix.config.MaxInFlight)

	var wg sync.WaitGroup
	var mu sync.Mutex
	failedBatches := 0

	for offset := 0; offset < len(entries); offset += ix.config.BatchSize {
		end := offset + ix.config.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			failedBatches++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(offset, end int) {
			defer wg.Done()
			defer sem.Release(1)

			texts := make([]string, end-offset)
			for i := offset; i < end; i++ {
				texts[i-offset] = ix.config.EntryText(entries[i])
			}

			batch, err := ix.embedder.EmbedBatch(ctx, texts)
			if err != nil || len(batch) != len(texts) {
				slog.Warn("embedding batch failed, indexing zero vectors",
					"offset", offset, "size", end-offset, "error", err)
				mu.Lock()
				failedBatches++
				mu.Unlock()
				return
			}
			for i := range batch {
				vectors[offset+i] = batch[i]
			}
		}(offset, end)
	}

	wg.Wait()
	return vectors, failedBatches
}

// archiveEmbeddings snapshots built vectors into the store. Best effort:
// archive failures never fail a build.
func (ix *Indexer) archiveEmbeddings(ctx context.Context, domain recommend.Domain, entries []*recommend.CatalogEntry) {
	if ix.archive == nil {
		return
	}

	if err := ix.archive.DeleteCatalogEmbeddings(ctx, string(domain)); err != nil {
		slog.Warn("failed to clear archived embeddings", "domain", domain, "error", err)
		return
	}
	model := ix.config.Model
	if model == "" {
		model = "dim-" + strconv.Itoa(ix.embedder.Dimensions())
	}
	for _, entry := range entries {
		_, err := ix.archive.UpsertCatalogEmbedding(ctx, &store.CatalogEmbedding{
			EntryID:   entry.ID,
			Domain:    string(domain),
			Model:     model,
			Embedding: entry.Embedding,
		})
		if err != nil {
			slog.Warn("failed to archive embedding", "domain", domain, "entry", entry.ID, "error", err)
			return
		}
	}
}
