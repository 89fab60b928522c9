package waveform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/RMahshie/powersweep/pkg/models"
)

// ErrEmptyWaveform is returned when a capture holds no samples
var ErrEmptyWaveform = errors.New("empty waveform")

const preambleFields = 10

// ParsePreamble parses the comma-separated response of a preamble query:
// format,type,points,count,xinc,xorig,xref,yinc,yorig,yref
func ParsePreamble(s string) (models.Preamble, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < preambleFields {
		return models.Preamble{}, fmt.Errorf("preamble has %d fields, want %d", len(parts), preambleFields)
	}

	ints := make([]int, 4)
	for i := range ints {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return models.Preamble{}, fmt.Errorf("preamble field %d: %w", i, err)
		}
		ints[i] = int(v)
	}

	floats := make([]float64, preambleFields-4)
	for i := range floats {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+4]), 64)
		if err != nil {
			return models.Preamble{}, fmt.Errorf("preamble field %d: %w", i+4, err)
		}
		floats[i] = v
	}

	return models.Preamble{
		Format:     ints[0],
		Type:       ints[1],
		Points:     ints[2],
		Count:      ints[3],
		XIncrement: floats[0],
		XOrigin:    floats[1],
		XReference: floats[2],
		YIncrement: floats[3],
		YOrigin:    floats[4],
		YReference: floats[5],
	}, nil
}

// Scale converts raw unsigned byte samples into time and voltage values
// using the preamble's calibration constants.
func Scale(raw []byte, pre models.Preamble) (*models.Waveform, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyWaveform
	}

	w := &models.Waveform{
		Preamble: pre,
		Time:     make([]float64, len(raw)),
		Voltage:  make([]float64, len(raw)),
	}
	for i, b := range raw {
		w.Time[i] = float64(i)*pre.XIncrement + pre.XOrigin
		w.Voltage[i] = (float64(b)-pre.YReference)*pre.YIncrement + pre.YOrigin
	}
	return w, nil
}
