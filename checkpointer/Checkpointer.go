// Package checkpointer saves the policy states published by the policy
// authority so that a run can be inspected or resumed
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/distlearn/policy"
)

// Checkpoint is a point-in-time copy of every policy state
type Checkpoint struct {
	Version int64
	States  map[string]policy.State
}

// Checkpointer checkpoints policy states based on the policy version
// they were published under
type Checkpointer interface {
	Checkpoint(version int64, states map[string]policy.State) (bool, error)
}

// Save writes c to filename with gob, creating parent directories
func Save(filename string, c Checkpoint) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return file.Close()
}

// Load reads a checkpoint written by Save
func Load(filename string) (Checkpoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	defer file.Close()

	var c Checkpoint
	if err := gob.NewDecoder(file).Decode(&c); err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint %v: %w", filename, err)
	}
	return c, nil
}
