package checkpointer

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/distlearn/policy"
)

func TestNStepCheckpointsEveryN(t *testing.T) {
	dir := t.TempDir()
	n, err := NewNStep(2, FileVersion(filepath.Join(dir, "sub", "ckpt"), ".bin"))
	require.NoError(t, err)

	states := map[string]policy.State{
		"P": {Kind: "linear", Params: json.RawMessage(`{"rows":1}`)},
	}
	for v, want := range map[int64]bool{0: false, 1: false, 2: true, 3: false,
		4: true} {
		saved, err := n.Checkpoint(v, states)
		require.NoError(t, err)
		assert.Equal(t, want, saved, "version %v", v)
	}

	c, err := Load(filepath.Join(dir, "sub", "ckpt-v4.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Version)
	assert.Equal(t, "linear", c.States["P"].Kind)
	assert.JSONEq(t, `{"rows":1}`, string(c.States["P"].Params))

	_, err = Load(filepath.Join(dir, "sub", "ckpt-v3.bin"))
	assert.Error(t, err)
}

func TestNewNStepValidation(t *testing.T) {
	_, err := NewNStep(0, FileTimer("a", ".bin"))
	assert.Error(t, err)
	_, err = NewNStep(1, nil)
	assert.Error(t, err)
}

func TestFilenameEnumerator(t *testing.T) {
	next := FilenameEnumerator(0, "ckpt", ".bin")
	assert.Equal(t, "ckpt1.bin", next(7))
	assert.Equal(t, "ckpt2.bin", next(9))
}
