// Package tracker implements Trackers, which track per-episode data
// of an environment and save it to disk
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/samuelfneumann/distlearn/timestep"
)

// Tracker keeps track of episode data and saves the data after an
// actor has finished
type Tracker interface {
	Track(t ts.TimeStep) error
	Save(filename string) error
}

// save encodes data with gob into filename
func save(filename string, data interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not open save file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return fmt.Errorf("could not encode data: %w", err)
	}
	return file.Close()
}

// SaveData saves data in the format of the Return Tracker
func SaveData(filename string, data []float64) error {
	return save(filename, data)
}

// LoadData loads and returns the data saved by a Return Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open data file: %w", err)
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("could not decode data: %w", err)
	}
	return data, nil
}
