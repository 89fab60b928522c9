package models

import (
	"time"
)

// Variant identifies which sweep flavour produced a run
type Variant string

const (
	VariantBasic Variant = "basic"
	VariantScope Variant = "scope"
)

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
	RunFailed    = "failed"
)

// Step statuses
const (
	StepSetFailed     = "set_failed"
	StepVerifyFailed  = "verify_failed"
	StepMismatch      = "mismatch"
	StepMessageFailed = "message_failed"
	StepCaptureFailed = "capture_failed"
	StepOK            = "ok"
)

// SweepParams is the immutable configuration of a single sweep run
type SweepParams struct {
	Variant      Variant       `json:"variant" enum:"basic,scope" doc:"Sweep variant"`
	Port         string        `json:"port" doc:"Serial port of the radio device"`
	MinPower     int           `json:"min_power" doc:"Minimum TX power in dBm"`
	MaxPower     int           `json:"max_power" doc:"Maximum TX power in dBm"`
	Step         int           `json:"step" doc:"TX power increment in dBm"`
	Delay        time.Duration `json:"delay" doc:"Delay between steps in nanoseconds"`
	Destination  string        `json:"destination,omitempty" doc:"Destination node ID"`
	Message      string        `json:"message,omitempty" doc:"Custom test message"`
	VisaResource string        `json:"visa_resource,omitempty" doc:"Instrument resource string"`
	Channel      int           `json:"channel,omitempty" doc:"Oscilloscope channel"`
	OutputDir    string        `json:"output_dir,omitempty" doc:"Directory for waveform and summary files"`
}

// Run represents one execution of a sweep (for internal use)
type Run struct {
	ID          string      `json:"id"`
	Params      SweepParams `json:"params"`
	Status      string      `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// StepResult is the outcome of a single power level within a run
type StepResult struct {
	RunID          string         `json:"run_id"`
	Index          int            `json:"index"`
	TargetPower    int            `json:"target_power"`
	ConfirmedPower *int           `json:"confirmed_power,omitempty"`
	Status         string         `json:"status"`
	MessageSent    bool           `json:"message_sent"`
	Capture        *CaptureResult `json:"capture,omitempty"`
	ArtifactKey    *string        `json:"artifact_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CaptureResult holds the measurements taken from one waveform capture
type CaptureResult struct {
	TxPower      int     `json:"tx_power" doc:"Confirmed TX power in dBm"`
	PeakToPeak   float64 `json:"peak_to_peak" doc:"Peak-to-peak voltage in volts"`
	RMS          float64 `json:"rms" doc:"RMS voltage in volts"`
	WaveformFile string  `json:"waveform_file" doc:"Path of the waveform CSV"`
}
