package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ligustah/gitgrab/internal/config"
	grabhttp "github.com/ligustah/gitgrab/internal/http"
	"github.com/ligustah/gitgrab/internal/inventory"
	"github.com/ligustah/gitgrab/internal/logging"
	"github.com/ligustah/gitgrab/internal/telemetry"
)

// session holds what one command invocation shares: the run logger, the
// authenticated client and telemetry.
type session struct {
	cfg      config.Config
	runID    string
	logger   *slog.Logger
	client   *grabhttp.Client
	tel      *telemetry.Telemetry
	closeLog func() error
}

func openSession(ctx context.Context, cfg config.Config, stderr io.Writer) (*session, error) {
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Output: stderr,
	})
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		closeLog()
		return nil, err
	}

	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	logger.Info("parameters",
		slog.String("repo", cfg.RepoURL),
		slog.String("token", config.MaskToken(cfg.Token)),
		slog.Any("paths", cfg.Paths),
		slog.String("version", cfg.Version),
		slog.String("versionType", cfg.VersionType),
		slog.String("dest", cfg.Dest),
		slog.Int("parallel", cfg.Parallel))

	return &session{
		cfg:      cfg,
		runID:    runID,
		logger:   logger,
		client:   grabhttp.NewClient(cfg.Token, httpOptions(cfg)),
		tel:      tel,
		closeLog: closeLog,
	}, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tel.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown failed", slog.Any("error", err))
	}
	s.closeLog()
}

// resolve fetches the inventory and maps failures to exit codes.
func (s *session) resolve(ctx context.Context) (inventory.Inventory, error) {
	key, _ := inventory.ParseIdentityKey(s.cfg.DedupeBy)
	resolver := inventory.NewResolver(s.client, s.cfg.RepoURL,
		inventory.WithIdentityKey(key),
		inventory.WithLogger(s.logger))

	inv, err := resolver.Resolve(ctx, inventoryRequest(s.cfg))
	if err == nil {
		return inv, nil
	}

	s.logger.Error("inventory failed", slog.Any("error", err))

	var decodeErr *inventory.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return nil, exitWith(ExitInventoryDecode, err)
	case errors.Is(err, context.Canceled):
		return nil, exitWith(ExitGeneralError, fmt.Errorf("interrupted: %w", err))
	default:
		return nil, exitWith(ExitInventoryFailed, err)
	}
}
