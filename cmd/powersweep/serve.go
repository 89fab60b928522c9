package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RMahshie/powersweep/internal/api"
	"github.com/RMahshie/powersweep/internal/config"
	"github.com/RMahshie/powersweep/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded sweep runs over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	config.AddServeFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, config.ModeServe)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repo, err := openRunRepository(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	var archive storage.ArtifactStore
	if cfg.AWS.S3Bucket != "" {
		archive, err = storage.NewS3Service(s3Config(cfg))
		if err != nil {
			log.Warn().Err(err).Msg("Waveform archive unavailable, download links disabled")
			archive = nil
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(cfg.Server.AllowedOrigins, repo, archive),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting power sweep API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("Server exited")
	return nil
}
