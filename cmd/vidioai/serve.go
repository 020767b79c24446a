package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/chicogong/vidioai/pkg/api"
	"github.com/chicogong/vidioai/pkg/artifact"
	"github.com/chicogong/vidioai/pkg/logging"
	"github.com/chicogong/vidioai/pkg/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "Listen host (overrides server.host)")
	cmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	cmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.cfg

	host := cfg.Server.Host
	if h, _ := cmd.Flags().GetString("host"); h != "" {
		host = h
	}
	port := cfg.Server.Port
	if p, _ := cmd.Flags().GetInt("port"); p > 0 {
		port = p
	}

	authMiddleware, err := newAuth(cfg.Auth)
	if err != nil {
		return err
	}

	input, output := a.newSpeech()
	policy := artifact.UploadPolicy{
		AcceptedTypes: cfg.Upload.AcceptedTypes,
		MaxSizeMB:     cfg.Upload.MaxSizeMB,
	}

	opts := []api.Option{
		api.WithOCR(a.newOCR),
		api.WithQuiz(a.newQuiz()),
		api.WithLibrary(a.library),
		api.WithVoice(input, output),
		api.WithStorage(a.storage),
		api.WithValidator(a.validator),
		api.WithUploads(policy, cfg.Storage.UploadRoot),
		api.WithExportRoot(cfg.Storage.ExportRoot),
		api.WithMetrics(a.metrics),
		api.WithLogger(logging.WithComponent("api")),
	}
	if authMiddleware != nil {
		opts = append(opts, api.WithAuth(authMiddleware))
	}

	server := api.NewServer(store.NewMemoryStore(), a.newSession, opts...)
	defer server.Close()

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", addr).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	timeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("server forced to shutdown")
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
