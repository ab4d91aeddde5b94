package scoring

import (
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Hidden-layer sizes mirror the two deployed network shapes: the wide net
// scores embedding-difference states, the narrow one travel-feature states.
const (
	EmbeddingHiddenDim = 256
	TravelHiddenDim    = 64
)

// Parameters holds the weights of the small feed-forward policy scorer:
// prob = sigmoid(W2·relu(W1·x + b1) + b2). Treated as immutable once
// published; the updater produces a new version rather than mutating in
// place, so in-flight requests keep a consistent snapshot.
type Parameters struct {
	Version   uint64
	InputDim  int
	HiddenDim int

	W1 [][]float64 // HiddenDim x InputDim
	B1 []float64   // HiddenDim
	W2 []float64   // HiddenDim
	B2 float64
}

// NewParameters initializes a network with small deterministic weights
// derived from the seed.
func NewParameters(inputDim, hiddenDim int, seed int64) *Parameters {
	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / math.Sqrt(float64(inputDim))

	p := &Parameters{
		Version:   1,
		InputDim:  inputDim,
		HiddenDim: hiddenDim,
		W1:        make([][]float64, hiddenDim),
		B1:        make([]float64, hiddenDim),
		W2:        make([]float64, hiddenDim),
	}
	for j := range p.W1 {
		row := make([]float64, inputDim)
		for i := range row {
			row[i] = (rng.Float64()*2 - 1) * scale
		}
		p.W1[j] = row
		p.W2[j] = (rng.Float64()*2 - 1) / math.Sqrt(float64(hiddenDim))
	}
	return p
}

// Forward evaluates the policy probability for a state vector. Output is
// strictly inside (0,1).
func (p *Parameters) Forward(x []float64) float64 {
	var out float64
	for j := 0; j < p.HiddenDim; j++ {
		z := p.B1[j]
		row := p.W1[j]
		for i := range x {
			if i >= p.InputDim {
				break
			}
			z += row[i] * x[i]
		}
		if z > 0 { // relu
			out += p.W2[j] * z
		}
	}
	return sigmoid(out + p.B2)
}

// Clone returns a deep copy with the version bumped, ready for a gradient
// step.
func (p *Parameters) Clone() *Parameters {
	next := &Parameters{
		Version:   p.Version + 1,
		InputDim:  p.InputDim,
		HiddenDim: p.HiddenDim,
		W1:        make([][]float64, p.HiddenDim),
		B1:        append([]float64(nil), p.B1...),
		W2:        append([]float64(nil), p.W2...),
		B2:        p.B2,
	}
	for j := range p.W1 {
		next.W1[j] = append([]float64(nil), p.W1[j]...)
	}
	return next
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// Policy publishes the current Parameters. Ranking requests take one
// snapshot at request start; only the policy updater swaps in new versions.
type Policy struct {
	current atomic.Pointer[Parameters]
}

// NewPolicy creates a policy holding the given initial parameters.
func NewPolicy(params *Parameters) *Policy {
	p := &Policy{}
	p.current.Store(params)
	return p
}

// Snapshot returns the current parameters. Callers must treat the result
// as read-only.
func (p *Policy) Snapshot() *Parameters {
	return p.current.Load()
}

// Swap atomically publishes new parameters.
func (p *Policy) Swap(next *Parameters) {
	p.current.Store(next)
}

// Sample is one observed selection: the state vector the policy saw and
// the reward attributed to the selection.
type Sample struct {
	State  []float64
	Reward float64
}

// Reinforce applies one REINFORCE-style gradient-descent step:
// loss = -log(prob(state)) * reward, averaged over the batch. Returns the
// updated parameters (a new version) and the average loss. Samples with
// non-positive reward are skipped, matching the observed-selection
// semantics (only rewarded selections carry signal).
func Reinforce(params *Parameters, samples []Sample, learningRate float64) (*Parameters, float64, error) {
	if learningRate <= 0 {
		return nil, 0, errors.New("learning rate must be positive")
	}

	next := params.Clone()

	gradW1 := make([][]float64, params.HiddenDim)
	for j := range gradW1 {
		gradW1[j] = make([]float64, params.InputDim)
	}
	gradB1 := make([]float64, params.HiddenDim)
	gradW2 := make([]float64, params.HiddenDim)
	var gradB2, totalLoss float64

	var used int
	for _, s := range samples {
		if s.Reward <= 0 {
			continue
		}
		used++

		// Forward pass keeping the hidden pre-activations.
		z1 := make([]float64, params.HiddenDim)
		var z2 float64
		for j := 0; j < params.HiddenDim; j++ {
			z := params.B1[j]
			row := params.W1[j]
			for i := range s.State {
				if i >= params.InputDim {
					break
				}
				z += row[i] * s.State[i]
			}
			z1[j] = z
			if z > 0 {
				z2 += params.W2[j] * z
			}
		}
		prob := sigmoid(z2 + params.B2)
		totalLoss += -math.Log(prob+Epsilon) * s.Reward

		// d(-log sigmoid(z2))/dz2 = -(1-prob); scaled by reward.
		dz2 := -(1 - prob) * s.Reward
		gradB2 += dz2
		for j := 0; j < params.HiddenDim; j++ {
			if z1[j] <= 0 {
				continue
			}
			gradW2[j] += dz2 * z1[j]
			dz1 := dz2 * params.W2[j]
			gradB1[j] += dz1
			for i := range s.State {
				if i >= params.InputDim {
					break
				}
				gradW1[j][i] += dz1 * s.State[i]
			}
		}
	}

	if used == 0 {
		return params, 0, nil
	}

	scale := learningRate / float64(used)
	for j := 0; j < params.HiddenDim; j++ {
		for i := 0; i < params.InputDim; i++ {
			next.W1[j][i] -= scale * gradW1[j][i]
		}
		next.B1[j] -= scale * gradB1[j]
		next.W2[j] -= scale * gradW2[j]
	}
	next.B2 -= scale * gradB2

	return next, totalLoss / float64(used), nil
}
