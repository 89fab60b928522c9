package models

// Preamble carries the scaling constants reported by the oscilloscope
type Preamble struct {
	Format     int
	Type       int
	Points     int
	Count      int
	XIncrement float64
	XOrigin    float64
	XReference float64
	YIncrement float64
	YOrigin    float64
	YReference float64
}

// Waveform is a scaled capture, one time/voltage pair per sample
type Waveform struct {
	Preamble Preamble
	Time     []float64
	Voltage  []float64
}

// Len returns the number of samples
func (w *Waveform) Len() int {
	return len(w.Voltage)
}
