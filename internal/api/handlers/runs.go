package handlers

import (
	"context"
	"errors"

	"github.com/RMahshie/powersweep/internal/repository"
	"github.com/RMahshie/powersweep/internal/storage"
	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunHandler serves recorded sweep runs
type RunHandler struct {
	repo    repository.Reader
	archive storage.ArtifactStore
}

// NewRunHandler creates a run handler. archive may be nil, in which case
// steps are returned without download links.
func NewRunHandler(repo repository.Reader, archive storage.ArtifactStore) *RunHandler {
	return &RunHandler{
		repo:    repo,
		archive: archive,
	}
}

// ListRuns returns the most recent runs
func (h *RunHandler) ListRuns(ctx context.Context, req *models.ListRunsRequest) (*models.ListRunsResponse, error) {
	runs, err := h.repo.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list runs", err)
	}

	resp := &models.ListRunsResponse{}
	resp.Body.Runs = make([]models.RunBody, 0, len(runs))
	for _, run := range runs {
		resp.Body.Runs = append(resp.Body.Runs, models.NewRunBody(run))
	}
	return resp, nil
}

// GetRun returns a single run
func (h *RunHandler) GetRun(ctx context.Context, req *models.GetRunRequest) (*models.GetRunResponse, error) {
	runID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid run ID", err)
	}

	run, err := h.lookup(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &models.GetRunResponse{Body: models.NewRunBody(run)}, nil
}

// GetRunSteps returns the steps of a run in sweep order
func (h *RunHandler) GetRunSteps(ctx context.Context, req *models.GetRunStepsRequest) (*models.GetRunStepsResponse, error) {
	runID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid run ID", err)
	}

	if _, err := h.lookup(ctx, runID); err != nil {
		return nil, err
	}

	steps, err := h.repo.GetSteps(ctx, runID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get steps", err)
	}

	resp := &models.GetRunStepsResponse{}
	resp.Body.RunID = runID.String()
	resp.Body.Steps = make([]models.StepBody, 0, len(steps))
	for _, step := range steps {
		resp.Body.Steps = append(resp.Body.Steps, h.stepBody(ctx, step))
	}
	return resp, nil
}

func (h *RunHandler) lookup(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	run, err := h.repo.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, huma.Error404NotFound("Run not found", err)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get run", err)
	}
	return run, nil
}

func (h *RunHandler) stepBody(ctx context.Context, step *models.StepResult) models.StepBody {
	body := models.StepBody{
		Index:          step.Index,
		TargetPower:    step.TargetPower,
		ConfirmedPower: step.ConfirmedPower,
		Status:         step.Status,
		MessageSent:    step.MessageSent,
		Capture:        step.Capture,
		CreatedAt:      step.CreatedAt,
	}

	if h.archive == nil || step.ArtifactKey == nil {
		return body
	}
	url, err := h.archive.GenerateDownloadURL(ctx, *step.ArtifactKey)
	if err != nil {
		// the step is still useful without a link
		log.Warn().Err(err).Str("key", *step.ArtifactKey).Msg("Failed to presign waveform download")
		return body
	}
	body.DownloadURL = &url
	return body
}
