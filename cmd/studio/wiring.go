package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/gallery"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/jobrunner"
	"studio/internal/storage"
)

// services is the dependency set shared by serve and generate.
type services struct {
	cfg     *infra.Config
	logger  infra.Logger
	catalog *domain.StyleCatalog
	client  *backend.Client
	runner  *jobrunner.Runner
	store   *storage.FileStore
	gallery gallery.Store
	pool    *pgxpool.Pool
}

func (s *services) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func loadServices(ctx context.Context) (*services, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	s := &services{cfg: cfg, logger: logger}

	s.catalog = domain.DefaultStyleCatalog()
	if cfg.StyleCatalogPath != "" {
		if s.catalog, err = domain.LoadStyleCatalog(cfg.StyleCatalogPath); err != nil {
			return nil, fmt.Errorf("load style catalog: %w", err)
		}
	}

	apiKey := cfg.BackendAPIKey
	if cfg.GalleryEnabled() {
		if s.pool, err = infra.NewDBPool(ctx, cfg); err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(s.pool, logger)
		if apiKey == "" {
			creds := credentials.NewStore(runner)
			if err := creds.EnsureSchema(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("credentials schema: %w", err)
			}
			if apiKey, err = creds.BackendAPIKey(ctx); err != nil {
				logger.Warn().Err(err).Msg("credentials: backend key lookup failed")
			}
		}
		pg := gallery.NewPostgresStore(runner)
		if err := pg.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("gallery schema: %w", err)
		}
		s.gallery = pg
	} else {
		logger.Info().Msg("DATABASE_URL not set; gallery kept in memory")
		s.gallery = gallery.NewMemoryStore()
	}

	s.client, err = backend.NewClient(backend.Options{
		BaseURL:        cfg.BackendBaseURL,
		APIKey:         apiKey,
		Logger:         &s.logger,
		RequestTimeout: cfg.BackendTimeout,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.runner = jobrunner.New(s.client, jobrunner.Options{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.JobTimeout,
		Logger:       &s.logger,
	})
	if s.store, err = storage.NewFileStore(cfg.StoragePath); err != nil {
		s.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	return s, nil
}
