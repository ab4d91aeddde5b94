// Package retriever turns a user profile into a candidate set: embed the
// profile text, search the domain's vector index, and join hits back to
// catalog metadata.
package retriever

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/plugin/ai"
	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/vecindex"
)

// ErrNoCandidates reports an empty retrieval result for a well-formed
// request. Callers surface it distinctly from infrastructure failures.
var ErrNoCandidates = errors.New("no candidates retrieved")

// VectorSource exposes the indexed vector for an entry. Both index
// variants implement it; candidates carry their vectors forward so the
// policy scorer never re-embeds.
type VectorSource interface {
	Vector(id string) ([]float32, bool)
}

// Retriever searches one domain's index.
type Retriever struct {
	embedder ai.EmbeddingService
	index    vecindex.Index
	entries  map[string]*recommend.CatalogEntry
}

// New builds a retriever over a loaded index and its metadata list.
func New(embedder ai.EmbeddingService, index vecindex.Index, entries []*recommend.CatalogEntry) *Retriever {
	byID := make(map[string]*recommend.CatalogEntry, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		entries:  byID,
	}
}

// Retrieve embeds the profile text and returns the top-k candidates with
// content scores filled in. The profile's Vector field is set as a side
// effect so downstream scoring reuses the embedding. An embedding failure
// aborts retrieval; recommendations never run on a fabricated profile
// vector.
func (r *Retriever) Retrieve(ctx context.Context, profile *recommend.UserProfile, k int) ([]*recommend.Candidate, error) {
	if profile == nil {
		return nil, errors.New("user profile is nil")
	}
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	if len(profile.Vector) == 0 {
		vector, err := r.embedder.Embed(ctx, profile.ProfileText())
		if err != nil {
			return nil, errors.Wrap(err, "failed to embed user profile")
		}
		profile.Vector = vecindex.Normalize(vector)
	}

	hits, err := r.index.Search(profile.Vector, k)
	if err != nil {
		return nil, err
	}
	return r.join(hits)
}

// RetrieveQueries embeds each distinct query once, searches per query, and
// merges the hit sets keeping each entry's best score.
func (r *Retriever) RetrieveQueries(ctx context.Context, queries []string, k int) ([]*recommend.Candidate, error) {
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	distinct := make([]string, 0, len(queries))
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		distinct = append(distinct, q)
	}
	if len(distinct) == 0 {
		return nil, errors.New("no queries given")
	}

	vectors, err := r.embedder.EmbedBatch(ctx, distinct)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed queries")
	}

	best := map[string]vecindex.Hit{}
	for _, vector := range vectors {
		hits, err := r.index.Search(vecindex.Normalize(vector), k)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if prev, ok := best[hit.ID]; !ok || hit.Score > prev.Score {
				best[hit.ID] = hit
			}
		}
	}

	merged := make([]vecindex.Hit, 0, len(best))
	for _, hit := range best {
		merged = append(merged, hit)
	}
	return r.join(topHits(merged, k))
}

// AllCandidates returns every catalog entry as an unscored candidate in
// ID order. Serves distance-only ranking on facility catalogs, which are
// small enough to scan.
func (r *Retriever) AllCandidates() ([]*recommend.Candidate, error) {
	if len(r.entries) == 0 {
		return nil, ErrNoCandidates
	}
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	candidates := make([]*recommend.Candidate, len(ids))
	for i, id := range ids {
		candidates[i] = &recommend.Candidate{
			Entry:        r.entries[id],
			ContentScore: recommend.Score{Degraded: true},
		}
	}
	return candidates, nil
}

// Entry returns the metadata entry for id.
func (r *Retriever) Entry(id string) (*recommend.CatalogEntry, bool) {
	entry, ok := r.entries[id]
	return entry, ok
}

// CandidateVector returns the indexed vector for id when the index exposes
// vectors.
func (r *Retriever) CandidateVector(id string) ([]float32, bool) {
	source, ok := r.index.(VectorSource)
	if !ok {
		return nil, false
	}
	return source.Vector(id)
}

func (r *Retriever) join(hits []vecindex.Hit) ([]*recommend.Candidate, error) {
	candidates := make([]*recommend.Candidate, 0, len(hits))
	for _, hit := range hits {
		entry, ok := r.entries[hit.ID]
		if !ok {
			// Index row without metadata means the artifact pair is torn.
			return nil, errors.Wrapf(vecindex.ErrIndexCorrupt, "hit %s has no metadata entry", hit.ID)
		}
		candidates = append(candidates, &recommend.Candidate{
			Entry:        entry,
			ContentScore: contentFromSimilarity(hit.Score),
		})
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return candidates, nil
}

// contentFromSimilarity rescales the index's inner-product score (cosine on
// normalized vectors) from [-1,1] to [0,1].
func contentFromSimilarity(cos float32) recommend.Score {
	scaled := (float64(cos) + 1) / 2
	if scaled < 0 {
		scaled = 0
	} else if scaled > 1 {
		scaled = 1
	}
	return recommend.Score{Value: scaled}
}

func topHits(hits []vecindex.Hit, k int) []vecindex.Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
