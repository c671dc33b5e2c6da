package experience

import "errors"

// MemoryError implements errors unique to an experience memory
type MemoryError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *MemoryError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *MemoryError) Unwrap() error {
	return e.Err
}

var errEmptyMemory = errors.New("memory empty")

var errInsufficientSamples = errors.New("minimum size not yet reached")

// IsInsufficientSamples returns whether or not an error reports that
// there are too few records in a memory to sample a batch from it
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}

// IsEmptyMemory returns whether or not an error reports that a memory
// is empty
func IsEmptyMemory(err error) bool {
	return errors.Is(err, errEmptyMemory)
}
