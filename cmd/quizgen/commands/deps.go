package commands

import (
	"context"
	"fmt"

	"github.com/spherical/quizgen/internal/artifact"
	"github.com/spherical/quizgen/internal/cache"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/equation"
	"github.com/spherical/quizgen/internal/failsafe"
	"github.com/spherical/quizgen/internal/llm"
	"github.com/spherical/quizgen/internal/pdf"
	"github.com/spherical/quizgen/internal/render"
	"github.com/spherical/quizgen/internal/storage"
	"github.com/spherical/quizgen/internal/worker"
)

// openCache builds the configured cache client.
func openCache() (cache.Client, error) {
	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, domain.ConfigError("cache", err)
	}
	return c, nil
}

// newRenderer builds the document renderer. Without pandoc every equation
// is rendered as its source text.
func newRenderer(c cache.Client) *render.Renderer {
	var converter domain.EquationConverter
	pandoc := equation.NewPandocConverter(cfg.Equation, logger)
	if pandoc.Available() {
		converter = equation.NewCachedConverter(pandoc, c, cfg.Cache.TTL, logger)
	} else {
		logger.Warn().Str("pandoc_path", cfg.Equation.PandocPath).Msg("pandoc not found, equations will be rendered as text")
	}
	return render.New(converter, render.Options{Bilingual: cfg.Render.Bilingual}, logger)
}

// newChainParts builds the renderer and store shared by the worker service
// and the offline render command.
func newChainParts(c cache.Client) (*render.Renderer, *artifact.Store) {
	return newRenderer(c), artifact.NewStore(cfg.Output, logger)
}

// newWorkerService builds the service that executes one task.
func newWorkerService(c cache.Client) *worker.Service {
	renderer, store := newChainParts(c)
	client := llm.NewClient(cfg.AI, logger)
	svc := worker.NewService(
		pdf.NewLoader(nil, logger),
		client,
		renderer,
		store,
		cfg.AI,
		failsafe.Options{DebugJSON: cfg.Output.DebugJSON},
		logger,
	)
	if cfg.Render.Images {
		svc.WithImages(func(apiKey string) domain.ImageGenerator { return client.Images(apiKey) })
	}
	return svc
}

// openLedger opens the batch ledger, or returns nil when it is disabled.
func openLedger(ctx context.Context) (*storage.Ledger, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil
	}
	l, err := storage.Open(ctx, cfg.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}
