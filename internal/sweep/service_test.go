package sweep

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/RMahshie/powersweep/internal/scope"
	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockController struct {
	mock.Mock
}

func (m *MockController) SetTxPower(ctx context.Context, level int) error {
	args := m.Called(ctx, level)
	return args.Error(0)
}

func (m *MockController) TxPower(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockController) SendText(ctx context.Context, dest, message string) error {
	args := m.Called(ctx, dest, message)
	return args.Error(0)
}

type MockCapturer struct {
	mock.Mock
}

func (m *MockCapturer) Capture(ctx context.Context, req scope.CaptureRequest) (*models.CaptureResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CaptureResult), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
	steps []*models.StepResult
}

func (m *MockRecorder) StartRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRecorder) RecordStep(ctx context.Context, step *models.StepResult) error {
	m.steps = append(m.steps, step)
	args := m.Called(ctx, step)
	return args.Error(0)
}

func (m *MockRecorder) FinishRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) UploadFile(ctx context.Context, key string, path string) error {
	args := m.Called(ctx, key, path)
	return args.Error(0)
}

func (m *MockArtifactStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockArtifactStore) DeleteFile(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// sleepRecorder records requested delays without waiting
type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

var testTiming = Timing{Settle: time.Second, MessageSettle: 2 * time.Second}

func newRecorder() *MockRecorder {
	rec := new(MockRecorder)
	rec.On("StartRun", mock.Anything, mock.Anything).Return(nil)
	rec.On("RecordStep", mock.Anything, mock.Anything).Return(nil)
	rec.On("FinishRun", mock.Anything, mock.Anything).Return(nil)
	return rec
}

func newTestService(dev *MockController, capturer scope.Capturer, rec *MockRecorder, sl *sleepRecorder) *sweepService {
	svc := NewSweepService(Dependencies{
		Device:   dev,
		Capturer: capturer,
		Recorder: rec,
		Timing:   testTiming,
		Sleep:    sl.sleep,
	}).(*sweepService)
	svc.newID = func() string { return "run-1" }
	return svc
}

func basicParams(min, max, step int) models.SweepParams {
	return models.SweepParams{
		Variant:  models.VariantBasic,
		Port:     "/dev/ttyUSB0",
		MinPower: min,
		MaxPower: max,
		Step:     step,
		Delay:    5 * time.Second,
		Channel:  1,
	}
}

func TestPowerLevels(t *testing.T) {
	tests := []struct {
		name    string
		min     int
		max     int
		step    int
		want    []int
		wantErr bool
	}{
		{name: "inclusive bounds", min: 0, max: 10, step: 5, want: []int{0, 5, 10}},
		{name: "max not on step", min: 0, max: 7, step: 3, want: []int{0, 3, 6}},
		{name: "single level", min: 4, max: 4, step: 1, want: []int{4}},
		{name: "min above max", min: 10, max: 0, step: 1, want: []int{}},
		{name: "negative levels", min: -2, max: 0, step: 1, want: []int{-2, -1, 0}},
		{name: "zero step", min: 0, max: 10, step: 0, wantErr: true},
		{name: "negative step", min: 0, max: 10, step: -1, wantErr: true},
		{name: "top of int range", min: math.MaxInt - 2, max: math.MaxInt, step: 2, want: []int{math.MaxInt - 2, math.MaxInt}},
		{name: "step past int range", min: math.MaxInt - 1, max: math.MaxInt, step: 5, want: []int{math.MaxInt - 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PowerLevels(tt.min, tt.max, tt.step)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSleep(t *testing.T) {
	t.Run("waits", func(t *testing.T) {
		assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		err := Sleep(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestRun_BasicSweep(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, nil).Once()
	for _, level := range []int{0, 5, 10} {
		dev.On("SetTxPower", mock.Anything, level).Return(nil).Once()
		dev.On("TxPower", mock.Anything).Return(level, nil).Once()
	}
	dev.On("SendText", mock.Anything, "", "Test message at power level: 0").Return(nil).Once()
	dev.On("SendText", mock.Anything, "", "Test message at power level: 5").Return(nil).Once()
	dev.On("SendText", mock.Anything, "", "Test message at power level: 10").Return(nil).Once()

	rec := newRecorder()
	sl := &sleepRecorder{}
	svc := newTestService(dev, nil, rec, sl)

	run, err := svc.Run(context.Background(), basicParams(0, 10, 5))

	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, models.RunCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)

	require.Len(t, rec.steps, 3)
	for i, step := range rec.steps {
		assert.Equal(t, i, step.Index)
		assert.Equal(t, models.StepOK, step.Status)
		assert.True(t, step.MessageSent)
		assert.Nil(t, step.Capture)
		require.NotNil(t, step.ConfirmedPower)
		assert.Equal(t, step.TargetPower, *step.ConfirmedPower)
	}

	// settle then delay per step, including after the last one
	assert.Equal(t, []time.Duration{
		time.Second, 5 * time.Second,
		time.Second, 5 * time.Second,
		time.Second, 5 * time.Second,
	}, sl.delays)

	dev.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestRun_CustomMessageAndDestination(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(20, nil)
	dev.On("SetTxPower", mock.Anything, 20).Return(nil)
	dev.On("SendText", mock.Anything, "!abcd1234", "ping").Return(nil)

	rec := newRecorder()
	svc := newTestService(dev, nil, rec, &sleepRecorder{})

	params := basicParams(20, 20, 1)
	params.Destination = "!abcd1234"
	params.Message = "ping"

	_, err := svc.Run(context.Background(), params)

	require.NoError(t, err)
	dev.AssertExpectations(t)
}

func TestRun_DeviceUnreachable(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, errors.New("no such port"))

	rec := new(MockRecorder)
	svc := newTestService(dev, nil, rec, &sleepRecorder{})

	run, err := svc.Run(context.Background(), basicParams(0, 10, 5))

	assert.Nil(t, run)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
	rec.AssertNotCalled(t, "StartRun", mock.Anything, mock.Anything)
	dev.AssertNotCalled(t, "SetTxPower", mock.Anything, mock.Anything)
}

func TestRun_ZeroPowerPassesCheck(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, nil)
	dev.On("SetTxPower", mock.Anything, 0).Return(nil)
	dev.On("SendText", mock.Anything, "", mock.Anything).Return(nil)

	rec := newRecorder()
	svc := newTestService(dev, nil, rec, &sleepRecorder{})

	run, err := svc.Run(context.Background(), basicParams(0, 0, 1))

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
}

func TestRun_InvalidStep(t *testing.T) {
	dev := new(MockController)
	svc := newTestService(dev, nil, new(MockRecorder), &sleepRecorder{})

	_, err := svc.Run(context.Background(), basicParams(0, 10, 0))

	assert.Error(t, err)
	dev.AssertNotCalled(t, "TxPower", mock.Anything)
}

func TestRun_StepFailures(t *testing.T) {
	t.Run("set failure skips the level", func(t *testing.T) {
		dev := new(MockController)
		dev.On("TxPower", mock.Anything).Return(0, nil).Once()
		dev.On("SetTxPower", mock.Anything, 0).Return(errors.New("exit status 1")).Once()
		dev.On("SetTxPower", mock.Anything, 1).Return(nil).Once()
		dev.On("TxPower", mock.Anything).Return(1, nil).Once()
		dev.On("SendText", mock.Anything, "", mock.Anything).Return(nil).Once()

		rec := newRecorder()
		sl := &sleepRecorder{}
		svc := newTestService(dev, nil, rec, sl)

		run, err := svc.Run(context.Background(), basicParams(0, 1, 1))

		require.NoError(t, err)
		assert.Equal(t, models.RunCompleted, run.Status)
		require.Len(t, rec.steps, 2)
		assert.Equal(t, models.StepSetFailed, rec.steps[0].Status)
		assert.Nil(t, rec.steps[0].ConfirmedPower)
		assert.Equal(t, models.StepOK, rec.steps[1].Status)
		// no settle for the failed level, only its delay
		assert.Equal(t, []time.Duration{5 * time.Second, time.Second, 5 * time.Second}, sl.delays)
	})

	t.Run("read-back failure skips message and capture", func(t *testing.T) {
		dev := new(MockController)
		dev.On("TxPower", mock.Anything).Return(0, nil).Once()
		dev.On("SetTxPower", mock.Anything, 5).Return(nil)
		dev.On("TxPower", mock.Anything).Return(0, errors.New("tx_power not found")).Once()

		capturer := new(MockCapturer)
		rec := newRecorder()
		svc := newTestService(dev, capturer, rec, &sleepRecorder{})

		_, err := svc.Run(context.Background(), basicParams(5, 5, 1))

		require.NoError(t, err)
		require.Len(t, rec.steps, 1)
		assert.Equal(t, models.StepVerifyFailed, rec.steps[0].Status)
		assert.False(t, rec.steps[0].MessageSent)
		dev.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
		capturer.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
	})

	t.Run("message failure skips capture", func(t *testing.T) {
		dev := new(MockController)
		dev.On("TxPower", mock.Anything).Return(5, nil)
		dev.On("SetTxPower", mock.Anything, 5).Return(nil)
		dev.On("SendText", mock.Anything, "", mock.Anything).Return(errors.New("exit status 1"))

		capturer := new(MockCapturer)
		rec := newRecorder()
		svc := newTestService(dev, capturer, rec, &sleepRecorder{})

		_, err := svc.Run(context.Background(), basicParams(5, 5, 1))

		require.NoError(t, err)
		require.Len(t, rec.steps, 1)
		assert.Equal(t, models.StepMessageFailed, rec.steps[0].Status)
		assert.False(t, rec.steps[0].MessageSent)
		require.NotNil(t, rec.steps[0].ConfirmedPower)
		capturer.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
	})

	t.Run("recording failure does not stop the sweep", func(t *testing.T) {
		dev := new(MockController)
		dev.On("TxPower", mock.Anything).Return(3, nil)
		dev.On("SetTxPower", mock.Anything, mock.Anything).Return(nil)
		dev.On("SendText", mock.Anything, "", mock.Anything).Return(nil)

		rec := new(MockRecorder)
		rec.On("StartRun", mock.Anything, mock.Anything).Return(nil)
		rec.On("RecordStep", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		rec.On("FinishRun", mock.Anything, mock.Anything).Return(nil)
		svc := newTestService(dev, nil, rec, &sleepRecorder{})

		run, err := svc.Run(context.Background(), basicParams(3, 4, 1))

		require.NoError(t, err)
		assert.Equal(t, models.RunCompleted, run.Status)
		assert.Len(t, rec.steps, 2)
	})
}

func TestRun_ScopeSweep(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, nil).Once()
	dev.On("SetTxPower", mock.Anything, 10).Return(nil).Once()
	dev.On("TxPower", mock.Anything).Return(10, nil).Once()
	dev.On("SetTxPower", mock.Anything, 20).Return(nil).Once()
	dev.On("TxPower", mock.Anything).Return(20, nil).Once()
	dev.On("SendText", mock.Anything, "", mock.Anything).Return(nil)

	capturer := new(MockCapturer)
	capturer.On("Capture", mock.Anything, scope.CaptureRequest{Channel: 2, TxPower: 10, OutputDir: "out"}).
		Return(nil, errors.New("timeout")).Once()
	capturer.On("Capture", mock.Anything, scope.CaptureRequest{Channel: 2, TxPower: 20, OutputDir: "out"}).
		Return(&models.CaptureResult{TxPower: 20, PeakToPeak: 0.8, RMS: 0.2, WaveformFile: "out/w.csv"}, nil).Once()

	rec := newRecorder()
	sl := &sleepRecorder{}
	svc := newTestService(dev, capturer, rec, sl)

	params := basicParams(10, 20, 10)
	params.Variant = models.VariantScope
	params.Channel = 2
	params.OutputDir = "out"

	run, err := svc.Run(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	require.Len(t, rec.steps, 2)
	assert.Equal(t, models.StepCaptureFailed, rec.steps[0].Status)
	assert.Nil(t, rec.steps[0].Capture)
	assert.Equal(t, models.StepOK, rec.steps[1].Status)
	require.NotNil(t, rec.steps[1].Capture)
	assert.Equal(t, 0.8, rec.steps[1].Capture.PeakToPeak)
	assert.Nil(t, rec.steps[1].ArtifactKey)

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 5 * time.Second,
		time.Second, 2 * time.Second, 5 * time.Second,
	}, sl.delays)

	capturer.AssertExpectations(t)
}

func TestRun_MismatchUsesConfirmedPower(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, nil).Once()
	dev.On("SetTxPower", mock.Anything, 30).Return(nil)
	dev.On("TxPower", mock.Anything).Return(27, nil).Once()
	dev.On("SendText", mock.Anything, "", "Test message at power level: 27").Return(nil)

	capturer := new(MockCapturer)
	capturer.On("Capture", mock.Anything, scope.CaptureRequest{Channel: 1, TxPower: 27}).
		Return(&models.CaptureResult{TxPower: 27, WaveformFile: "w.csv"}, nil)

	rec := newRecorder()
	svc := newTestService(dev, capturer, rec, &sleepRecorder{})

	_, err := svc.Run(context.Background(), basicParams(30, 30, 1))

	require.NoError(t, err)
	require.Len(t, rec.steps, 1)
	assert.Equal(t, models.StepMismatch, rec.steps[0].Status)
	assert.Equal(t, 30, rec.steps[0].TargetPower)
	assert.Equal(t, 27, *rec.steps[0].ConfirmedPower)
	dev.AssertExpectations(t)
	capturer.AssertExpectations(t)
}

func TestRun_ArchivesWaveforms(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(7, nil)
	dev.On("SetTxPower", mock.Anything, 7).Return(nil)
	dev.On("SendText", mock.Anything, "", mock.Anything).Return(nil)

	capturer := new(MockCapturer)
	capturer.On("Capture", mock.Anything, mock.Anything).
		Return(&models.CaptureResult{TxPower: 7, WaveformFile: "waveforms/w7.csv"}, nil)

	archive := new(MockArtifactStore)
	archive.On("UploadFile", mock.Anything, "runs/run-1/w7.csv", "waveforms/w7.csv").Return(nil)

	rec := newRecorder()
	svc := newTestService(dev, capturer, rec, &sleepRecorder{})
	svc.archive = archive

	_, err := svc.Run(context.Background(), basicParams(7, 7, 1))

	require.NoError(t, err)
	require.Len(t, rec.steps, 1)
	require.NotNil(t, rec.steps[0].ArtifactKey)
	assert.Equal(t, "runs/run-1/w7.csv", *rec.steps[0].ArtifactKey)
	archive.AssertExpectations(t)

	t.Run("upload failure keeps the step", func(t *testing.T) {
		failing := new(MockArtifactStore)
		failing.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))

		rec := newRecorder()
		svc := newTestService(dev, capturer, rec, &sleepRecorder{})
		svc.archive = failing

		_, err := svc.Run(context.Background(), basicParams(7, 7, 1))

		require.NoError(t, err)
		require.Len(t, rec.steps, 1)
		assert.Equal(t, models.StepOK, rec.steps[0].Status)
		assert.Nil(t, rec.steps[0].ArtifactKey)
	})
}

func TestRun_CancelAborts(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, nil)
	dev.On("SetTxPower", mock.Anything, mock.Anything).Return(nil)
	dev.On("SendText", mock.Anything, "", mock.Anything).Return(nil)

	var finished *models.Run
	rec := new(MockRecorder)
	rec.On("StartRun", mock.Anything, mock.Anything).Return(nil)
	rec.On("RecordStep", mock.Anything, mock.Anything).Return(nil)
	rec.On("FinishRun", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		assert.NoError(t, args.Get(0).(context.Context).Err())
		finished = args.Get(1).(*models.Run)
	}).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newTestService(dev, nil, rec, &sleepRecorder{})
	// interrupt during the first inter-step delay
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		if d == 5*time.Second {
			cancel()
		}
		return ctx.Err()
	}

	run, err := svc.Run(ctx, basicParams(0, 10, 5))

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	assert.Equal(t, models.RunAborted, run.Status)
	require.NotNil(t, finished)
	assert.Equal(t, models.RunAborted, finished.Status)
	assert.Len(t, rec.steps, 1)
	dev.AssertNumberOfCalls(t, "SetTxPower", 1)
}

func TestRun_NoLevelReachedIsFailed(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, nil)
	dev.On("SetTxPower", mock.Anything, mock.Anything).Return(errors.New("exit status 1"))

	rec := newRecorder()
	svc := newTestService(dev, nil, rec, &sleepRecorder{})

	run, err := svc.Run(context.Background(), basicParams(0, 2, 1))

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Len(t, rec.steps, 3)
	rec.AssertCalled(t, "FinishRun", mock.Anything, run)
}

func TestRun_EmptyRangeCompletes(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(0, nil)

	rec := newRecorder()
	svc := newTestService(dev, nil, rec, &sleepRecorder{})

	run, err := svc.Run(context.Background(), basicParams(10, 0, 1))

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Empty(t, rec.steps)
	dev.AssertNotCalled(t, "SetTxPower", mock.Anything, mock.Anything)
}

func TestRun_RecordFailureDropsArchivedWaveform(t *testing.T) {
	dev := new(MockController)
	dev.On("TxPower", mock.Anything).Return(7, nil)
	dev.On("SetTxPower", mock.Anything, 7).Return(nil)
	dev.On("SendText", mock.Anything, "", mock.Anything).Return(nil)

	capturer := new(MockCapturer)
	capturer.On("Capture", mock.Anything, mock.Anything).
		Return(&models.CaptureResult{TxPower: 7, WaveformFile: "waveforms/w7.csv"}, nil)

	archive := new(MockArtifactStore)
	archive.On("UploadFile", mock.Anything, "runs/run-1/w7.csv", "waveforms/w7.csv").Return(nil)
	archive.On("DeleteFile", mock.Anything, "runs/run-1/w7.csv").Return(nil)

	rec := new(MockRecorder)
	rec.On("StartRun", mock.Anything, mock.Anything).Return(nil)
	rec.On("RecordStep", mock.Anything, mock.Anything).Return(errors.New("database gone"))
	rec.On("FinishRun", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(dev, capturer, rec, &sleepRecorder{})
	svc.archive = archive

	_, err := svc.Run(context.Background(), basicParams(7, 7, 1))

	require.NoError(t, err)
	archive.AssertExpectations(t)
	require.Len(t, rec.steps, 1)
	assert.Nil(t, rec.steps[0].ArtifactKey)

	t.Run("recorded steps keep their waveform", func(t *testing.T) {
		archive := new(MockArtifactStore)
		archive.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		svc := newTestService(dev, capturer, newRecorder(), &sleepRecorder{})
		svc.archive = archive

		_, err := svc.Run(context.Background(), basicParams(7, 7, 1))

		require.NoError(t, err)
		archive.AssertNotCalled(t, "DeleteFile", mock.Anything, mock.Anything)
	})
}

func TestNewSweepService_ZeroTimingUsesDefaults(t *testing.T) {
	svc := NewSweepService(Dependencies{Device: new(MockController)}).(*sweepService)
	assert.Equal(t, DefaultTiming(), svc.timing)

	custom := Timing{Settle: 3 * time.Second}
	svc = NewSweepService(Dependencies{Device: new(MockController), Timing: custom}).(*sweepService)
	assert.Equal(t, custom, svc.timing)
}
