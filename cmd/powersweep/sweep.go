package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/RMahshie/powersweep/internal/config"
	"github.com/RMahshie/powersweep/internal/device"
	"github.com/RMahshie/powersweep/internal/instrument"
	"github.com/RMahshie/powersweep/internal/repository"
	"github.com/RMahshie/powersweep/internal/repository/postgres"
	"github.com/RMahshie/powersweep/internal/repository/summary"
	"github.com/RMahshie/powersweep/internal/scope"
	"github.com/RMahshie/powersweep/internal/storage"
	"github.com/RMahshie/powersweep/internal/sweep"
	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep TX power and send a test message at each level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, models.VariantBasic)
		},
	}
	config.AddSweepFlags(cmd.Flags())
	return cmd
}

func newScopeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Sweep TX power and capture the transmission on an oscilloscope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, models.VariantScope)
		},
	}
	config.AddSweepFlags(cmd.Flags())
	config.AddScopeFlags(cmd.Flags())
	return cmd
}

func runSweep(cmd *cobra.Command, variant models.Variant) error {
	mode := config.ModeSweep
	if variant == models.VariantScope {
		mode = config.ModeScope
	}
	cfg, err := loadConfig(cmd, mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := sweep.Dependencies{
		Device: device.NewCLIController(cfg.Device.CLI, cfg.Device.Port, device.ExecRunner{}),
		Timing: sweep.Timing{
			Settle:        cfg.Sweep.Settle,
			MessageSettle: cfg.Sweep.MessageSettle,
		},
		Sleep: sweep.Sleep,
	}

	var recorders []repository.Recorder
	if variant == models.VariantScope {
		sc, err := connectScope(ctx, cfg)
		if err != nil {
			return err
		}
		defer sc.Close()
		deps.Capturer = sc
		recorders = append(recorders, summary.NewCSVRecorder(cfg.Scope.OutputDir))
	}

	if cfg.Database.URL != "" {
		db, repo, err := openRunRepository(ctx, cfg.Database.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Run history database unavailable, continuing without it")
		} else {
			defer db.Close()
			recorders = append(recorders, repo)
		}
	}
	deps.Recorder = repository.Multi(recorders...)

	if cfg.AWS.S3Bucket != "" {
		archive, err := storage.NewS3Service(s3Config(cfg))
		if err != nil {
			log.Warn().Err(err).Msg("Waveform archive unavailable, continuing without it")
		} else {
			deps.Archive = archive
		}
	}

	run, err := sweep.NewSweepService(deps).Run(ctx, cfg.SweepParams(variant))
	if err != nil {
		if run != nil && errors.Is(err, context.Canceled) {
			return fmt.Errorf("sweep %s interrupted", run.ID)
		}
		return err
	}

	if variant == models.VariantScope {
		log.Info().
			Str("summary", filepath.Join(cfg.Scope.OutputDir, summary.FileName)).
			Str("waveforms", cfg.Scope.OutputDir).
			Msg("Results saved")
	}
	return nil
}

// connectScope opens, identifies and configures the oscilloscope
func connectScope(ctx context.Context, cfg *config.Config) (*scope.Scope, error) {
	session, err := instrument.Open(ctx, cfg.Scope.Resource, instrument.Options{
		Timeout:  cfg.Scope.ReadTimeout,
		BaudRate: cfg.Scope.BaudRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to oscilloscope: %w", err)
	}

	sc := scope.New(session, scope.Settings{
		VoltsPerDiv:   cfg.Scope.VoltsPerDiv,
		TriggerLevel:  cfg.Scope.TriggerLevel,
		Timebase:      cfg.Scope.Timebase,
		ResetSettle:   cfg.Scope.ResetSettle,
		TriggerSettle: cfg.Scope.TriggerSettle,
	}, sweep.Sleep)

	idn, err := sc.Identify()
	if err != nil {
		sc.Close()
		return nil, err
	}
	log.Info().Str("idn", idn).Str("resource", cfg.Scope.Resource).Msg("Connected to oscilloscope")

	if err := sc.Configure(ctx, cfg.Scope.Channel); err != nil {
		sc.Close()
		return nil, err
	}
	return sc, nil
}

func openRunRepository(ctx context.Context, url string) (*sql.DB, *postgres.PostgresRunRepository, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := postgres.NewPostgresRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, repo, nil
}

func s3Config(cfg *config.Config) storage.S3Config {
	return storage.S3Config{
		Bucket:    cfg.AWS.S3Bucket,
		Endpoint:  cfg.AWS.S3Endpoint,
		Region:    cfg.AWS.Region,
		AccessKey: cfg.AWS.AccessKeyID,
		SecretKey: cfg.AWS.SecretAccessKey,
	}
}
