package summary

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/RMahshie/powersweep/internal/repository"
	"github.com/RMahshie/powersweep/pkg/models"
)

// FileName is the summary file written under the output directory
const FileName = "power_sweep_results.csv"

var header = []string{"TX Power (dBm)", "Peak-to-Peak (V)", "RMS (V)", "Waveform File"}

// CSVRecorder keeps one summary row per captured step
type CSVRecorder struct {
	path string
}

// NewCSVRecorder creates a recorder writing to <outputDir>/power_sweep_results.csv
func NewCSVRecorder(outputDir string) repository.Recorder {
	return &CSVRecorder{path: filepath.Join(outputDir, FileName)}
}

// Path returns the summary file path
func (r *CSVRecorder) Path() string {
	return r.path
}

// StartRun truncates the summary file and writes its header
func (r *CSVRecorder) StartRun(ctx context.Context, run *models.Run) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()

	return writeRow(f, header)
}

// RecordStep appends a row when the step produced a capture
func (r *CSVRecorder) RecordStep(ctx context.Context, step *models.StepResult) error {
	if step.Capture == nil {
		return nil
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open summary file: %w", err)
	}
	defer f.Close()

	c := step.Capture
	return writeRow(f, []string{
		strconv.Itoa(c.TxPower),
		strconv.FormatFloat(c.PeakToPeak, 'f', 6, 64),
		strconv.FormatFloat(c.RMS, 'f', 6, 64),
		c.WaveformFile,
	})
}

// FinishRun has nothing to flush; rows are written as they arrive
func (r *CSVRecorder) FinishRun(ctx context.Context, run *models.Run) error {
	return nil
}

func writeRow(f *os.File, row []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write summary row: %w", err)
	}
	return nil
}
