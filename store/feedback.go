package store

import (
	"encoding/binary"
	"math"
	"time"
)

// FeedbackRecord is one observed selection event: the user acted on a
// recommended entry. State-vector snapshots are kept so the policy updater
// can reconstruct what the policy saw without re-embedding.
type FeedbackRecord struct {
	ID          int64
	UserID      string
	EntryID     string
	Domain      string
	DisplayName string
	SelectedAt  time.Time

	// UserVector/EntryVector snapshot the embedding state at selection
	// time. Empty for travel-feature domains.
	UserVector  []float32
	EntryVector []float32

	// TravelSeconds snapshots the travel time shown to the user, nil when
	// the provider had no data.
	TravelSeconds *int64
}

// FindFeedback filters feedback queries.
type FindFeedback struct {
	UserID *string
	Domain *string
	Since  *time.Time
	Limit  *int
}

// EncodeVector packs a float32 vector into a little-endian byte blob for
// drivers without a native vector type.
func EncodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
