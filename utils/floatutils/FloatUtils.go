// Package floatutils provides utilities for keeping floats inside
// closed intervals
package floatutils

import (
	"gonum.org/v1/gonum/spatial/r1"
)

// Clip returns the value of bounds nearest to v
func Clip(v float64, bounds r1.Interval) float64 {
	switch {
	case v < bounds.Min:
		return bounds.Min
	case v > bounds.Max:
		return bounds.Max
	}
	return v
}

// Within returns whether v lies in the closed interval bounds
func Within(v float64, bounds r1.Interval) bool {
	return v >= bounds.Min && v <= bounds.Max
}

// OnBoundary returns whether v has reached or passed either end of
// bounds
func OnBoundary(v float64, bounds r1.Interval) bool {
	return v <= bounds.Min || v >= bounds.Max
}
