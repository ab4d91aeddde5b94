package vecindex

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/plugin/recommend"
)

// Index artifacts come in pairs: a binary vector blob and an ordered JSON
// metadata list where metadata[i] corresponds to vector row i. Loading
// requires both; a count mismatch is fatal.

var indexMagic = [4]byte{'M', 'R', 'V', 'I'}

const indexFormatVersion uint32 = 1

const (
	kindFlat uint8 = 0
	kindIVF  uint8 = 1
)

type indexHeader struct {
	Magic   [4]byte
	Version uint32
	Kind    uint8
	_       [3]byte
	Dim     uint32
	Count   uint32
}

// Save serializes the index vectors to path. The write is atomic
// (temp file + rename) so a crashed build never leaves a torn artifact.
func Save(idx Index, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp index file")
	}
	defer os.Remove(tmp.Name())

	if err := writeIndex(tmp, idx); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp index file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "failed to move index file into place")
}

func writeIndex(w io.Writer, idx Index) error {
	hdr := indexHeader{
		Magic:   indexMagic,
		Version: indexFormatVersion,
		Dim:     uint32(idx.Dimension()),
		Count:   uint32(idx.Count()),
	}

	var vectors [][]float32
	var ivf *IVF
	switch v := idx.(type) {
	case *Flat:
		hdr.Kind = kindFlat
		vectors = v.vectors
	case *IVF:
		hdr.Kind = kindIVF
		vectors = v.vectors
		ivf = v
	default:
		return errors.New("unsupported index type")
	}

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "failed to write index header")
	}

	if ivf != nil {
		if err := binary.Write(w, binary.LittleEndian, uint32(ivf.nlist)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(ivf.nprobe)); err != nil {
			return err
		}
		for _, c := range ivf.centroids {
			if err := writeVector(w, c); err != nil {
				return err
			}
		}
	}

	for _, v := range vectors {
		if err := writeVector(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeVector(w io.Writer, v []float32) error {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	_, err := w.Write(buf)
	return err
}

func readVector(r io.Reader, dim int) ([]float32, error) {
	buf := make([]byte, 4*dim)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// WriteMetadata writes the ordered metadata list beside an index blob.
// Entry embeddings are not serialized; the blob is the vector store.
func WriteMetadata(entries []*recommend.CatalogEntry, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".meta-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp metadata file")
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(entries); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to encode metadata")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp metadata file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "failed to move metadata file into place")
}

// ReadMetadata reads the ordered metadata list.
func ReadMetadata(path string) ([]*recommend.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []*recommend.CatalogEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, errors.Wrap(ErrIndexCorrupt, err.Error())
	}
	return entries, nil
}

// Load reads an index blob and its metadata list. Vector rows are labeled
// with the metadata entry IDs in order; a count mismatch between the two
// artifacts is reported as ErrIndexCorrupt.
func Load(indexPath, metaPath string) (Index, []*recommend.CatalogEntry, error) {
	entries, err := ReadMetadata(metaPath)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var hdr indexHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, errors.Wrap(ErrIndexCorrupt, err.Error())
	}
	if hdr.Magic != indexMagic {
		return nil, nil, errors.Wrap(ErrIndexCorrupt, "bad magic")
	}
	if hdr.Version != indexFormatVersion {
		return nil, nil, errors.Wrapf(ErrIndexCorrupt, "unsupported format version %d", hdr.Version)
	}
	if int(hdr.Count) != len(entries) {
		return nil, nil, errors.Wrapf(ErrIndexCorrupt, "index holds %d vectors but metadata lists %d entries", hdr.Count, len(entries))
	}

	dim := int(hdr.Dim)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	switch hdr.Kind {
	case kindFlat:
		idx := NewFlat(dim)
		vectors, err := readVectors(f, int(hdr.Count), dim)
		if err != nil {
			return nil, nil, err
		}
		if err := idx.Add(ids, vectors); err != nil {
			return nil, nil, err
		}
		return idx, entries, nil

	case kindIVF:
		var nlist, nprobe uint32
		if err := binary.Read(f, binary.LittleEndian, &nlist); err != nil {
			return nil, nil, errors.Wrap(ErrIndexCorrupt, err.Error())
		}
		if err := binary.Read(f, binary.LittleEndian, &nprobe); err != nil {
			return nil, nil, errors.Wrap(ErrIndexCorrupt, err.Error())
		}
		idx, err := NewIVF(dim, int(nlist))
		if err != nil {
			return nil, nil, err
		}
		centroids := make([][]float32, nlist)
		for c := range centroids {
			if centroids[c], err = readVector(f, dim); err != nil {
				return nil, nil, errors.Wrap(ErrIndexCorrupt, err.Error())
			}
		}
		idx.centroids = centroids
		idx.lists = make([][]int, nlist)
		idx.state = ivfTrained
		idx.SetNprobe(int(nprobe))

		vectors, err := readVectors(f, int(hdr.Count), dim)
		if err != nil {
			return nil, nil, err
		}
		if err := idx.Add(ids, vectors); err != nil {
			return nil, nil, err
		}
		return idx, entries, nil

	default:
		return nil, nil, errors.Wrapf(ErrIndexCorrupt, "unknown index kind %d", hdr.Kind)
	}
}

func readVectors(r io.Reader, count, dim int) ([][]float32, error) {
	vectors := make([][]float32, count)
	for i := range vectors {
		v, err := readVector(r, dim)
		if err != nil {
			return nil, errors.Wrap(ErrIndexCorrupt, err.Error())
		}
		vectors[i] = v
	}
	return vectors, nil
}

// LoadAny loads the clustered index if its artifact exists and is sound,
// falling back to the flat artifact otherwise. When neither loads, the
// caller gets ErrIndexNotReady and must skip retrieval.
func LoadAny(ivfPath, flatPath, metaPath string) (Index, []*recommend.CatalogEntry, error) {
	if _, err := os.Stat(ivfPath); err == nil {
		idx, entries, err := Load(ivfPath, metaPath)
		if err == nil {
			return idx, entries, nil
		}
	}
	if _, err := os.Stat(flatPath); err == nil {
		idx, entries, err := Load(flatPath, metaPath)
		if err == nil {
			return idx, entries, nil
		}
	}
	return nil, nil, ErrIndexNotReady
}
