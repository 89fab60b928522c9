package waveform

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PeakToPeak returns max(v) - min(v)
func PeakToPeak(v []float64) (float64, error) {
	if len(v) == 0 {
		return 0, ErrEmptyWaveform
	}
	return floats.Max(v) - floats.Min(v), nil
}

// RMS returns sqrt(mean(v^2))
func RMS(v []float64) (float64, error) {
	if len(v) == 0 {
		return 0, ErrEmptyWaveform
	}
	squares := make([]float64, len(v))
	floats.MulTo(squares, v, v)
	return math.Sqrt(stat.Mean(squares, nil)), nil
}
