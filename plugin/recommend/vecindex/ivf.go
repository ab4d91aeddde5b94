package vecindex

import (
	"sort"

	"github.com/pkg/errors"
)

// ivfState tracks the index lifecycle: Untrained -> Trained -> Populated.
type ivfState int

const (
	ivfUntrained ivfState = iota
	ivfTrained
	ivfPopulated
)

const (
	// defaultNprobe is the number of clusters probed per query. A small
	// fraction of nlist: a latency/recall tradeoff, not an accuracy
	// guarantee.
	defaultNprobe = 8
	// kmeansIterations bounds the Lloyd iterations during training.
	kmeansIterations = 25
)

// IVF is the clustered (inverted-file) index. Vectors are partitioned into
// nlist clusters by a k-means quantizer; a query probes the nprobe nearest
// clusters only.
type IVF struct {
	dim    int
	nlist  int
	nprobe int
	state  ivfState

	centroids [][]float32
	// lists[c] holds the rows assigned to centroid c.
	lists [][]int

	ids     []string
	vectors [][]float32
	rows    map[string]int
}

// DrugNlist returns the cluster count for drug-scale catalogs:
// catalogSize/10 clamped to [10, 100].
func DrugNlist(catalogSize int) int {
	return clamp(catalogSize/10, 10, 100)
}

// ConditionNlist returns the cluster count for smaller condition catalogs:
// catalogSize/20 clamped to [5, 50].
func ConditionNlist(catalogSize int) int {
	return clamp(catalogSize/20, 5, 50)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewIVF creates an untrained clustered index.
func NewIVF(dim, nlist int) (*IVF, error) {
	if nlist <= 0 {
		return nil, errors.New("nlist must be positive")
	}
	return &IVF{
		dim:    dim,
		nlist:  nlist,
		nprobe: min(defaultNprobe, nlist),
		rows:   map[string]int{},
	}, nil
}

func (x *IVF) Dimension() int { return x.dim }
func (x *IVF) Count() int     { return len(x.ids) }
func (x *IVF) Nlist() int     { return x.nlist }
func (x *IVF) Nprobe() int    { return x.nprobe }

// SetNprobe adjusts the probed cluster count, capped at nlist.
// nprobe == nlist makes the search exhaustive.
func (x *IVF) SetNprobe(nprobe int) {
	if nprobe < 1 {
		nprobe = 1
	}
	x.nprobe = min(nprobe, x.nlist)
}

// Train fits the quantizer centroids. Requires at least nlist vectors.
// Initial centroids are evenly spaced samples, so training is deterministic
// for identical input.
func (x *IVF) Train(vectors [][]float32) error {
	if x.state != ivfUntrained {
		return errors.New("index already trained; rebuild to retrain")
	}
	if len(vectors) < x.nlist {
		return errors.Errorf("training requires at least nlist=%d vectors, got %d", x.nlist, len(vectors))
	}
	for _, v := range vectors {
		if len(v) != x.dim {
			return errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(v), x.dim)
		}
	}

	centroids := make([][]float32, x.nlist)
	for c := range centroids {
		src := vectors[c*len(vectors)/x.nlist]
		centroids[c] = append([]float32(nil), src...)
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(centroids, v)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids as normalized means. Empty clusters keep
		// their previous centroid.
		sums := make([][]float64, x.nlist)
		counts := make([]int, x.nlist)
		for c := range sums {
			sums[c] = make([]float64, x.dim)
		}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d, val := range v {
				sums[c][d] += float64(val)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			mean := make([]float32, x.dim)
			for d := range mean {
				mean[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = Normalize(mean)
		}
	}

	x.centroids = centroids
	x.lists = make([][]int, x.nlist)
	x.state = ivfTrained
	return nil
}

func (x *IVF) Add(ids []string, vectors [][]float32) error {
	if x.state == ivfUntrained {
		return errors.Wrap(ErrIndexNotReady, "train before adding vectors")
	}
	if len(ids) != len(vectors) {
		return errors.New("ids and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != x.dim {
			return errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(v), x.dim)
		}
	}

	for i, v := range vectors {
		row := len(x.ids)
		x.ids = append(x.ids, ids[i])
		x.vectors = append(x.vectors, v)
		x.rows[ids[i]] = row
		c := nearestCentroid(x.centroids, v)
		x.lists[c] = append(x.lists[c], row)
	}
	x.state = ivfPopulated
	return nil
}

// Vector returns the stored vector for id. Rows are mapped at Add time, so
// the per-candidate lookups during ranking stay O(1).
func (x *IVF) Vector(id string) ([]float32, bool) {
	row, ok := x.rows[id]
	if !ok {
		return nil, false
	}
	return x.vectors[row], true
}

func (x *IVF) Search(query []float32, k int) ([]Hit, error) {
	if x.state != ivfPopulated {
		return nil, ErrIndexNotReady
	}
	if len(query) != x.dim {
		return nil, errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(query), x.dim)
	}
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	// Rank centroids by inner product and probe the nearest nprobe lists.
	type centroidScore struct {
		c     int
		score float32
	}
	ranked := make([]centroidScore, len(x.centroids))
	for c, centroid := range x.centroids {
		ranked[c] = centroidScore{c: c, score: InnerProduct(query, centroid)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].c < ranked[j].c
	})

	var hits []Hit
	for p := 0; p < x.nprobe && p < len(ranked); p++ {
		for _, row := range x.lists[ranked[p].c] {
			hits = append(hits, Hit{ID: x.ids[row], Score: InnerProduct(query, x.vectors[row])})
		}
	}
	return topK(hits, k), nil
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best := 0
	bestScore := InnerProduct(centroids[0], v)
	for c := 1; c < len(centroids); c++ {
		if s := InnerProduct(centroids[c], v); s > bestScore {
			best = c
			bestScore = s
		}
	}
	return best
}
