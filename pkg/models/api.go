package models

import (
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// ListRunsRequest represents a request to list recorded runs
type ListRunsRequest struct {
	Limit int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Maximum number of runs to return"`
}

// RunBody is a run as exposed over the API
type RunBody struct {
	ID          string      `json:"id" doc:"Run unique identifier"`
	Params      SweepParams `json:"params" doc:"Sweep parameters"`
	Status      string      `json:"status" enum:"running,completed,aborted,failed" doc:"Run status"`
	StartedAt   time.Time   `json:"started_at" doc:"When the run started"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" doc:"When the run finished"`
}

// ListRunsResponse represents the list of recorded runs
type ListRunsResponse struct {
	Body struct {
		Runs []RunBody `json:"runs" doc:"Runs, most recent first"`
	}
}

// GetRunRequest represents a request for one run
type GetRunRequest struct {
	ID string `path:"id" doc:"Run ID"`
}

// GetRunResponse represents one run
type GetRunResponse struct {
	Body RunBody
}

// GetRunStepsRequest represents a request for the steps of a run
type GetRunStepsRequest struct {
	ID string `path:"id" doc:"Run ID"`
}

// StepBody is a step result as exposed over the API
type StepBody struct {
	Index          int            `json:"index" doc:"Position of the step in the sweep"`
	TargetPower    int            `json:"target_power" doc:"Requested TX power in dBm"`
	ConfirmedPower *int           `json:"confirmed_power,omitempty" doc:"TX power read back from the device"`
	Status         string         `json:"status" enum:"set_failed,verify_failed,mismatch,message_failed,capture_failed,ok" doc:"Step outcome"`
	MessageSent    bool           `json:"message_sent" doc:"Whether the test message was sent"`
	Capture        *CaptureResult `json:"capture,omitempty" doc:"Waveform measurements"`
	DownloadURL    *string        `json:"download_url,omitempty" doc:"Pre-signed URL of the archived waveform"`
	CreatedAt      time.Time      `json:"created_at" doc:"When the step was recorded"`
}

// GetRunStepsResponse represents the steps of a run
type GetRunStepsResponse struct {
	Body struct {
		RunID string     `json:"run_id" doc:"Run ID"`
		Steps []StepBody `json:"steps" doc:"Steps in sweep order"`
	}
}

// NewRunBody converts a run into its API representation
func NewRunBody(run *Run) RunBody {
	return RunBody{
		ID:          run.ID,
		Params:      run.Params,
		Status:      run.Status,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}
