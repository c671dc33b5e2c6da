package manager

// Stage is the update lifecycle stage of a single policy
type Stage int

const (
	// Cold policies buffer no records
	Cold Stage = iota

	// Warming policies buffer fewer records than their warmup threshold
	Warming

	// Ready policies are past warmup and wait for enough new records
	Ready

	// Updated policies were updated by the most recent Submit
	Updated
)

func (s Stage) String() string {
	switch s {
	case Warming:
		return "Warming"
	case Ready:
		return "Ready"
	case Updated:
		return "Updated"
	default:
		return "Cold"
	}
}
