package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/powersweep/pkg/models"
)

// multiRecorder fans every call out to all recorders
type multiRecorder struct {
	recorders []Recorder
}

// Multi combines recorders. Every recorder is called even when an earlier
// one fails; the errors are joined.
func Multi(recorders ...Recorder) Recorder {
	var rs []Recorder
	for _, r := range recorders {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return &multiRecorder{recorders: rs}
}

func (m *multiRecorder) StartRun(ctx context.Context, run *models.Run) error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.StartRun(ctx, run))
	}
	return errors.Join(errs...)
}

func (m *multiRecorder) RecordStep(ctx context.Context, step *models.StepResult) error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.RecordStep(ctx, step))
	}
	return errors.Join(errs...)
}

func (m *multiRecorder) FinishRun(ctx context.Context, run *models.Run) error {
	var errs []error
	for _, r := range m.recorders {
		errs = append(errs, r.FinishRun(ctx, run))
	}
	return errors.Join(errs...)
}
