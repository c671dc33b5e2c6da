package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localConfig = `
logging:
  level: error
server:
  checkpoint_every: 1
  checkpoint_dir: %DIR%
actor:
  num_episodes: 2
  num_steps: 5
policies:
  - name: P
    kind: linear
    params:
      features: 4
      actions: 3
      epsilon: 0.2
      learning_rate: 0.01
agents:
  agent: P
environment:
  episode_steps: 20
`

func execute(t *testing.T, out *bytes.Buffer, args ...string) error {
	t.Helper()
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if out != nil {
		cmd.SetOut(out)
	}
	return cmd.ExecuteContext(context.Background())
}

func TestLocalRunWritesCheckpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := bytes.ReplaceAll([]byte(localConfig), []byte("%DIR%"),
		[]byte(filepath.Join(dir, "ckpt")))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	require.NoError(t, execute(t, nil, "--config", path, "local", "-n", "2"))

	file := filepath.Join(dir, "ckpt", "policies-v1.bin")
	var out bytes.Buffer
	require.NoError(t, execute(t, &out, "checkpoint", file))

	var c struct {
		Version int64
		States  map[string]json.RawMessage
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &c))
	assert.Equal(t, int64(1), c.Version)
	assert.Contains(t, c.States, "P")
}

func TestCommandErrors(t *testing.T) {
	assert.Error(t, execute(t, nil, "checkpoint"))
	assert.Error(t, execute(t, nil, "--config", "missing.yaml", "server"))
	assert.Error(t, execute(t, nil, "unknown"))
}
