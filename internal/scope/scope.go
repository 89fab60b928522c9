package scope

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/RMahshie/powersweep/internal/instrument"
	"github.com/RMahshie/powersweep/internal/waveform"
	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/rs/zerolog/log"
)

// Capturer captures and persists one triggered waveform
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) (*models.CaptureResult, error)
}

// CaptureRequest names what to capture and how to label the result.
// TxPower is only used for the file name and the returned result.
type CaptureRequest struct {
	Channel   int
	TxPower   int
	OutputDir string
}

// Settings holds the front-panel values applied by Configure
type Settings struct {
	VoltsPerDiv   float64
	TriggerLevel  float64
	Timebase      float64
	ResetSettle   time.Duration
	TriggerSettle time.Duration
}

// DefaultSettings returns 0.1 V/div, a 0.1 V trigger and 1 ms/div
func DefaultSettings() Settings {
	return Settings{
		VoltsPerDiv:   0.1,
		TriggerLevel:  0.1,
		Timebase:      0.001,
		ResetSettle:   time.Second,
		TriggerSettle: 500 * time.Millisecond,
	}
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Scope drives an oscilloscope over an instrument session
type Scope struct {
	session  instrument.Session
	settings Settings
	sleep    Sleeper
	now      func() time.Time
}

// New creates a Scope on an open session
func New(session instrument.Session, settings Settings, sleep Sleeper) *Scope {
	return &Scope{
		session:  session,
		settings: settings,
		sleep:    sleep,
		now:      time.Now,
	}
}

// Close ends the instrument session
func (s *Scope) Close() error {
	return s.session.Close()
}

// Identify queries the instrument identification string
func (s *Scope) Identify() (string, error) {
	idn, err := s.session.Query("*IDN?")
	if err != nil {
		return "", fmt.Errorf("failed to identify oscilloscope: %w", err)
	}
	return idn, nil
}

// Configure resets the scope and sets up channel, edge trigger and timebase
func (s *Scope) Configure(ctx context.Context, channel int) error {
	if err := s.session.Write("*RST"); err != nil {
		return fmt.Errorf("failed to reset oscilloscope: %w", err)
	}
	if err := s.sleep(ctx, s.settings.ResetSettle); err != nil {
		return err
	}

	cmds := []string{
		fmt.Sprintf(":CHAN%d:DISP ON", channel),
		fmt.Sprintf(":CHAN%d:COUP DC", channel),
		fmt.Sprintf(":CHAN%d:SCAL %g", channel, s.settings.VoltsPerDiv),
		":TRIG:MODE EDGE",
		fmt.Sprintf(":TRIG:EDGE:SOUR CHAN%d", channel),
		":TRIG:EDGE:SLOP POS",
		fmt.Sprintf(":TRIG:EDGE:LEV %g", s.settings.TriggerLevel),
		fmt.Sprintf(":TIM:SCAL %g", s.settings.Timebase),
	}
	for _, cmd := range cmds {
		if err := s.session.Write(cmd); err != nil {
			return fmt.Errorf("failed to configure oscilloscope: %w", err)
		}
	}

	log.Info().Int("channel", channel).Msg("Oscilloscope channel configured")
	return nil
}

// Capture forces a trigger, transfers the waveform, scales it, writes the
// waveform CSV and restarts acquisition.
func (s *Scope) Capture(ctx context.Context, req CaptureRequest) (*models.CaptureResult, error) {
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := s.session.Write(":TRIG:FORC"); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, s.settings.TriggerSettle); err != nil {
		return nil, err
	}

	for _, cmd := range []string{
		":STOP",
		fmt.Sprintf(":WAV:SOUR CHAN%d", req.Channel),
		":WAV:MODE RAW",
		":WAV:FORM BYTE",
	} {
		if err := s.session.Write(cmd); err != nil {
			return nil, err
		}
	}

	preString, err := s.session.Query(":WAV:PRE?")
	if err != nil {
		return nil, err
	}
	pre, err := waveform.ParsePreamble(preString)
	if err != nil {
		return nil, err
	}

	if err := s.session.Write(":WAV:DATA?"); err != nil {
		return nil, err
	}
	raw, err := s.session.ReadBlock()
	if err != nil {
		return nil, err
	}
	data, err := waveform.DecodeBlock(raw)
	if err != nil {
		return nil, err
	}

	w, err := waveform.Scale(data, pre)
	if err != nil {
		return nil, err
	}

	filename := waveform.FileName(req.OutputDir, req.Channel, req.TxPower, s.now())
	if err := waveform.WriteCSV(filename, w); err != nil {
		return nil, err
	}

	pp, err := waveform.PeakToPeak(w.Voltage)
	if err != nil {
		return nil, err
	}
	rms, err := waveform.RMS(w.Voltage)
	if err != nil {
		return nil, err
	}

	log.Info().Str("file", filename).Int("samples", w.Len()).Msg("Waveform captured and saved")
	log.Info().Float64("peak_to_peak", pp).Float64("rms", rms).Msg("Waveform measurements")

	if err := s.session.Write(":RUN"); err != nil {
		return nil, err
	}

	return &models.CaptureResult{
		TxPower:      req.TxPower,
		PeakToPeak:   pp,
		RMS:          rms,
		WaveformFile: filename,
	}, nil
}
