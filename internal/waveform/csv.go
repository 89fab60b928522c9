package waveform

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/RMahshie/powersweep/pkg/models"
)

// FileName builds the waveform file path for a capture
func FileName(dir string, channel, txPower int, at time.Time) string {
	name := fmt.Sprintf("waveform_ch%d_power%ddBm_%s.csv", channel, txPower, at.Format("20060102_150405"))
	return filepath.Join(dir, name)
}

// WriteCSV persists a waveform as "Time(s),Voltage(V)" rows, one per sample
func WriteCSV(path string, w *models.Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create waveform file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"Time(s)", "Voltage(V)"}); err != nil {
		return err
	}
	for i := range w.Voltage {
		row := []string{
			strconv.FormatFloat(w.Time[i], 'e', 9, 64),
			strconv.FormatFloat(w.Voltage[i], 'e', 6, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write waveform file: %w", err)
	}
	return f.Close()
}
