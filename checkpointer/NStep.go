package checkpointer

import (
	"fmt"

	"github.com/samuelfneumann/distlearn/policy"
)

// NStep checkpoints every N policy versions
type NStep struct {
	interval int64

	// filename returns the name of the file to save the next
	// checkpoint in.
	//
	// If each checkpoint should be saved in a separate file with an
	// incremented number as a suffix (e.g. ckpt1.bin, ckpt2.bin, ...),
	// use FilenameEnumerator. If the filename does not matter, use
	// FileTimer:
	//
	//	n := NewNStep(10, FileTimer("ckpt", ".bin"))
	filename func(version int64) string
}

// NewNStep returns a checkpointer that checkpoints every n versions
func NewNStep(n int, filename func(version int64) string) (*NStep, error) {
	if n <= 0 {
		return nil, fmt.Errorf("new n-step checkpointer: n must be > 0, "+
			"have %v", n)
	}
	if filename == nil {
		return nil, fmt.Errorf("new n-step checkpointer: filename " +
			"function cannot be nil")
	}
	return &NStep{interval: int64(n), filename: filename}, nil
}

// Checkpoint saves states if version is a multiple of the interval and
// returns whether it did
func (n *NStep) Checkpoint(version int64,
	states map[string]policy.State) (bool, error) {
	if version <= 0 || version%n.interval != 0 {
		return false, nil
	}
	if err := Save(n.filename(version), Checkpoint{
		Version: version,
		States:  states,
	}); err != nil {
		return false, err
	}
	return true, nil
}
