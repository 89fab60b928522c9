package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RMahshie/powersweep/internal/repository"
	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/google/uuid"
)

//go:embed schema.sql
var schema string

// PostgresRunRepository implements Recorder and Reader for PostgreSQL
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository creates a new PostgreSQL run repository
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// EnsureSchema creates the run tables when they are missing
func (r *PostgresRunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// StartRun inserts a new run record
func (r *PostgresRunRepository) StartRun(ctx context.Context, run *models.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal sweep params: %w", err)
	}

	query := `
		INSERT INTO sweep_runs (id, params, status, started_at)
		VALUES ($1, $2, $3, $4)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		string(params),
		run.Status,
		run.StartedAt)

	return err
}

// RecordStep inserts one step of a run
func (r *PostgresRunRepository) RecordStep(ctx context.Context, step *models.StepResult) error {
	var pp, rms sql.NullFloat64
	var waveformFile sql.NullString
	if step.Capture != nil {
		pp = sql.NullFloat64{Float64: step.Capture.PeakToPeak, Valid: true}
		rms = sql.NullFloat64{Float64: step.Capture.RMS, Valid: true}
		waveformFile = sql.NullString{String: step.Capture.WaveformFile, Valid: true}
	}

	query := `
		INSERT INTO sweep_steps (run_id, idx, target_power, confirmed_power, status, message_sent, peak_to_peak, rms, waveform_file, artifact_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		step.RunID,
		step.Index,
		step.TargetPower,
		step.ConfirmedPower,
		step.Status,
		step.MessageSent,
		pp,
		rms,
		waveformFile,
		step.ArtifactKey,
		step.CreatedAt)

	return err
}

// FinishRun stores the final status of a run
func (r *PostgresRunRepository) FinishRun(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE sweep_runs
		SET status = $1, completed_at = $2
		WHERE id = $3`

	_, err := r.db.ExecContext(ctx, query, run.Status, run.CompletedAt, run.ID)
	return err
}

// ListRuns returns the most recent runs first
func (r *PostgresRunRepository) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, params, status, started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun retrieves a run by ID
func (r *PostgresRunRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `
		SELECT id, params, status, started_at, completed_at
		FROM sweep_runs
		WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return run, err
}

// GetSteps retrieves the steps of a run in sweep order
func (r *PostgresRunRepository) GetSteps(ctx context.Context, runID uuid.UUID) ([]*models.StepResult, error) {
	query := `
		SELECT run_id, idx, target_power, confirmed_power, status, message_sent, peak_to_peak, rms, waveform_file, artifact_key, created_at
		FROM sweep_steps
		WHERE run_id = $1
		ORDER BY idx`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.StepResult
	for rows.Next() {
		var step models.StepResult
		var confirmed sql.NullInt64
		var pp, rms sql.NullFloat64
		var waveformFile, artifactKey sql.NullString

		err := rows.Scan(
			&step.RunID,
			&step.Index,
			&step.TargetPower,
			&confirmed,
			&step.Status,
			&step.MessageSent,
			&pp,
			&rms,
			&waveformFile,
			&artifactKey,
			&step.CreatedAt)
		if err != nil {
			return nil, err
		}

		if confirmed.Valid {
			v := int(confirmed.Int64)
			step.ConfirmedPower = &v
		}
		if waveformFile.Valid {
			step.Capture = &models.CaptureResult{
				PeakToPeak:   pp.Float64,
				RMS:          rms.Float64,
				WaveformFile: waveformFile.String,
			}
			if step.ConfirmedPower != nil {
				step.Capture.TxPower = *step.ConfirmedPower
			}
		}
		if artifactKey.Valid {
			step.ArtifactKey = &artifactKey.String
		}

		steps = append(steps, &step)
	}

	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var params []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&params,
		&run.Status,
		&run.StartedAt,
		&completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &run.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sweep params: %w", err)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}
