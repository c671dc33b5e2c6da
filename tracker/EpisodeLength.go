package tracker

import (
	ts "github.com/samuelfneumann/distlearn/timestep"
)

// EpisodeLength tracks the lengths of episodes. An episode must finish
// for this Tracker to record its length.
type EpisodeLength struct {
	episodeLengths []int
}

// NewEpisodeLength returns a new EpisodeLength Tracker
func NewEpisodeLength() *EpisodeLength {
	return &EpisodeLength{}
}

// Track records the episode length when t is the last timestep of an
// episode
func (e *EpisodeLength) Track(t ts.TimeStep) error {
	if t.Last() {
		e.episodeLengths = append(e.episodeLengths, t.Number)
	}
	return nil
}

// Lengths returns a copy of the lengths of every finished episode
func (e *EpisodeLength) Lengths() []int {
	out := make([]int, len(e.episodeLengths))
	copy(out, e.episodeLengths)
	return out
}

// Save saves the episode lengths to filename
func (e *EpisodeLength) Save(filename string) error {
	return save(filename, e.episodeLengths)
}
