package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RMahshie/powersweep/internal/device"
	"github.com/RMahshie/powersweep/internal/repository"
	"github.com/RMahshie/powersweep/internal/scope"
	"github.com/RMahshie/powersweep/internal/storage"
	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrDeviceUnreachable is returned when the initial device check fails
var ErrDeviceUnreachable = errors.New("could not get device info")

type SweepService interface {
	Run(ctx context.Context, params models.SweepParams) (*models.Run, error)
}

// Timing holds the fixed settling delays inside a step
type Timing struct {
	Settle        time.Duration // after setting power
	MessageSettle time.Duration // after sending, before capture
}

// DefaultTiming returns one second for both settling delays
func DefaultTiming() Timing {
	return Timing{
		Settle:        time.Second,
		MessageSettle: time.Second,
	}
}

// Dependencies wires a sweep service. Capturer and Archive are optional;
// without a Capturer the sweep never triggers the scope. A zero Timing
// means DefaultTiming.
type Dependencies struct {
	Device   device.Controller
	Capturer scope.Capturer
	Recorder repository.Recorder
	Archive  storage.ArtifactStore
	Timing   Timing
	Sleep    func(ctx context.Context, d time.Duration) error
}

type sweepService struct {
	device   device.Controller
	capturer scope.Capturer
	recorder repository.Recorder
	archive  storage.ArtifactStore
	timing   Timing
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	newID    func() string
}

func NewSweepService(deps Dependencies) SweepService {
	s := &sweepService{
		device:   deps.Device,
		capturer: deps.Capturer,
		recorder: deps.Recorder,
		archive:  deps.Archive,
		timing:   deps.Timing,
		sleep:    deps.Sleep,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	if s.timing == (Timing{}) {
		s.timing = DefaultTiming()
	}
	if s.sleep == nil {
		s.sleep = Sleep
	}
	if s.recorder == nil {
		s.recorder = repository.Multi()
	}
	return s
}

// Run performs the sweep. Only a failed device check or an unrecordable run
// start is fatal; step failures are logged and the sweep moves on. A run in
// which no level got its message out is marked failed. A cancelled context
// ends the run as aborted and returns the context error.
func (s *sweepService) Run(ctx context.Context, params models.SweepParams) (*models.Run, error) {
	levels, err := PowerLevels(params.MinPower, params.MaxPower, params.Step)
	if err != nil {
		return nil, err
	}

	log.Info().Str("port", params.Port).Msg("Checking device")
	if _, err := s.device.TxPower(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}

	run := &models.Run{
		ID:        s.newID(),
		Params:    params,
		Status:    models.RunRunning,
		StartedAt: s.now(),
	}
	if err := s.recorder.StartRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	log.Info().Str("runID", run.ID).Int("min", params.MinPower).Int("max", params.MaxPower).Int("step", params.Step).Msg("Starting power sweep")

	sent := 0
	for i, level := range levels {
		step, err := s.runStep(ctx, run, i, level)
		if err != nil {
			return s.finish(ctx, run, err)
		}
		if step.MessageSent {
			sent++
		}
		if err := s.recorder.RecordStep(ctx, step); err != nil {
			log.Error().Err(err).Int("power", level).Msg("Failed to record step")
			s.dropArtifact(ctx, step)
		}

		log.Info().Dur("delay", params.Delay).Msg("Waiting before next test")
		if err := s.sleep(ctx, params.Delay); err != nil {
			return s.finish(ctx, run, err)
		}
	}

	if len(levels) > 0 && sent == 0 {
		run.Status = models.RunFailed
	}
	return s.finish(ctx, run, nil)
}

// runStep drives one power level. The returned error is only ever a
// context error; everything else is folded into the step status.
func (s *sweepService) runStep(ctx context.Context, run *models.Run, index, level int) (*models.StepResult, error) {
	params := run.Params
	step := &models.StepResult{
		RunID:       run.ID,
		Index:       index,
		TargetPower: level,
		CreatedAt:   s.now(),
	}

	log.Info().Int("power", level).Msg("Setting transmit power")
	if err := s.device.SetTxPower(ctx, level); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Int("power", level).Msg("Error setting tx_power")
		step.Status = models.StepSetFailed
		return step, nil
	}

	if err := s.sleep(ctx, s.timing.Settle); err != nil {
		return nil, err
	}

	confirmed, err := s.device.TxPower(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Int("power", level).Msg("Could not verify power setting")
		step.Status = models.StepVerifyFailed
		return step, nil
	}
	step.ConfirmedPower = &confirmed
	step.Status = models.StepOK
	log.Info().Int("power", confirmed).Msg("Confirmed power level")

	if confirmed != level {
		log.Warn().Int("target", level).Int("confirmed", confirmed).Msg("Device reports a different power level than requested")
		step.Status = models.StepMismatch
	}

	message := params.Message
	if message == "" {
		message = fmt.Sprintf("Test message at power level: %d", confirmed)
	}
	if err := s.device.SendText(ctx, params.Destination, message); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Int("power", confirmed).Msg("Failed to send test message")
		step.Status = models.StepMessageFailed
		return step, nil
	}
	step.MessageSent = true
	log.Info().Int("power", confirmed).Msg("Test message sent")

	if s.capturer == nil {
		return step, nil
	}

	// let the transmission reach the scope's trigger
	if err := s.sleep(ctx, s.timing.MessageSettle); err != nil {
		return nil, err
	}

	result, err := s.capturer.Capture(ctx, scope.CaptureRequest{
		Channel:   params.Channel,
		TxPower:   confirmed,
		OutputDir: params.OutputDir,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Int("power", confirmed).Msg("Error capturing waveform")
		step.Status = models.StepCaptureFailed
		return step, nil
	}
	step.Capture = result

	if s.archive != nil {
		key := storage.ArtifactKey(run.ID, result.WaveformFile)
		if err := s.archive.UploadFile(ctx, key, result.WaveformFile); err != nil {
			log.Warn().Err(err).Str("file", result.WaveformFile).Msg("Failed to archive waveform")
		} else {
			step.ArtifactKey = &key
		}
	}

	return step, nil
}

// dropArtifact removes an archived waveform no recorded step points to
func (s *sweepService) dropArtifact(ctx context.Context, step *models.StepResult) {
	if s.archive == nil || step.ArtifactKey == nil {
		return
	}
	key := *step.ArtifactKey
	if err := s.archive.DeleteFile(context.WithoutCancel(ctx), key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to remove orphaned waveform")
		return
	}
	step.ArtifactKey = nil
}

func (s *sweepService) finish(ctx context.Context, run *models.Run, cause error) (*models.Run, error) {
	completed := s.now()
	run.CompletedAt = &completed
	switch {
	case cause != nil:
		run.Status = models.RunAborted
	case run.Status == models.RunRunning:
		run.Status = models.RunCompleted
	}

	// the run context may already be cancelled
	if err := s.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Str("runID", run.ID).Msg("Failed to record run completion")
	}

	if cause != nil {
		log.Warn().Err(cause).Str("runID", run.ID).Msg("Power sweep aborted")
		return run, cause
	}
	if run.Status == models.RunFailed {
		log.Error().Str("runID", run.ID).Msg("Power sweep finished without reaching any power level")
		return run, nil
	}
	log.Info().Str("runID", run.ID).Msg("Power sweep completed")
	return run, nil
}
