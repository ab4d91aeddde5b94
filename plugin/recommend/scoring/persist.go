package scoring

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// SaveParameters writes a parameter snapshot as JSON. Atomic via temp file
// plus rename, matching the index artifact discipline.
func SaveParameters(params *Parameters, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".policy-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp policy file")
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(params); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to encode policy parameters")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp policy file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "failed to move policy file into place")
}

// LoadParameters reads a parameter snapshot written by SaveParameters.
func LoadParameters(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var params Parameters
	if err := json.NewDecoder(f).Decode(&params); err != nil {
		return nil, errors.Wrap(err, "failed to decode policy parameters")
	}
	if params.InputDim <= 0 || params.HiddenDim <= 0 ||
		len(params.W1) != params.HiddenDim || len(params.B1) != params.HiddenDim || len(params.W2) != params.HiddenDim {
		return nil, errors.New("policy parameter file is inconsistent")
	}
	return &params, nil
}

// LoadOrInitParameters loads the snapshot at path, initializing (and
// persisting) fresh parameters when none exists.
func LoadOrInitParameters(path string, inputDim, hiddenDim int, seed int64) (*Parameters, error) {
	params, err := LoadParameters(path)
	if err == nil {
		return params, nil
	}
	if !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}

	params = NewParameters(inputDim, hiddenDim, seed)
	if err := SaveParameters(params, path); err != nil {
		return nil, err
	}
	return params, nil
}
