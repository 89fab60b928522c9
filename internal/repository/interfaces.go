package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// Recorder defines the interface for persisting a sweep as it runs
type Recorder interface {
	StartRun(ctx context.Context, run *models.Run) error
	RecordStep(ctx context.Context, step *models.StepResult) error
	FinishRun(ctx context.Context, run *models.Run) error
}

// Reader defines the interface for querying recorded sweeps
type Reader interface {
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	GetSteps(ctx context.Context, runID uuid.UUID) ([]*models.StepResult, error)
}
