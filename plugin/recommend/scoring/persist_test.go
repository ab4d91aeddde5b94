package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadParametersRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	params := NewParameters(2, 8, 42)

	require.NoError(t, SaveParameters(params, path))
	loaded, err := LoadParameters(path)
	require.NoError(t, err)

	require.Equal(t, params.Version, loaded.Version)
	require.Equal(t, params.InputDim, loaded.InputDim)
	require.Equal(t, params.W1, loaded.W1)
	require.Equal(t, params.B2, loaded.B2)

	// Same state means same predictions.
	state := []float64{0.3, 0.7}
	require.Equal(t, params.Forward(state), loaded.Forward(state))
}

func TestLoadParametersInconsistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"InputDim": 2, "HiddenDim": 4, "W1": []}`), 0o644))

	_, err := LoadParameters(path)
	require.Error(t, err)
}

func TestLoadOrInitParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")

	first, err := LoadOrInitParameters(path, 2, 8, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Version)

	// Second call loads the persisted snapshot instead of reinitializing.
	second, err := LoadOrInitParameters(path, 2, 8, 99)
	require.NoError(t, err)
	require.Equal(t, first.W1, second.W1)
}
