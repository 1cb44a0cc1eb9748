// Package worker runs one task end to end: load documents, call the AI
// collaborator, then hand the reply to the fail-safe chain.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/failsafe"
	"github.com/spherical/quizgen/internal/observability"
	"github.com/spherical/quizgen/internal/questions"
	"github.com/spherical/quizgen/internal/render"
)

// DocumentLoader reads a task's source documents.
type DocumentLoader interface {
	Load(ctx context.Context, paths []string) ([]domain.Document, error)
}

// Runner runs a single job. stop is closed when the user asks to stop;
// it is checked cooperatively, never while the AI call is in flight.
type Runner interface {
	Run(ctx context.Context, job Job, stop <-chan struct{}, emit func(Message)) domain.TaskResult
}

// Service is the Runner used by both in-process and OS-process workers.
type Service struct {
	loader    DocumentLoader
	generator domain.Generator
	renderer  *render.Renderer
	images    func(apiKey string) domain.ImageGenerator
	store     failsafe.Persister
	ai        config.AIConfig
	opts      failsafe.Options
	logger    *observability.Logger
}

// NewService wires a worker service.
func NewService(loader DocumentLoader, generator domain.Generator, renderer *render.Renderer, store failsafe.Persister, ai config.AIConfig, opts failsafe.Options, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		loader:    loader,
		generator: generator,
		renderer:  renderer,
		store:     store,
		ai:        ai,
		opts:      opts,
		logger:    logger.WithOperation("worker"),
	}
}

// WithImages sets the source of per-job image generators. The function
// receives the job's leased API key.
func (s *Service) WithImages(images func(apiKey string) domain.ImageGenerator) *Service {
	s.images = images
	return s
}

// Run implements Runner. It always returns exactly one result.
func (s *Service) Run(ctx context.Context, job Job, stop <-chan struct{}, emit func(Message)) domain.TaskResult {
	task := job.Task
	logger := s.logger.WithTask(task.ID, task.OutputName)
	logf := func(format string, args ...any) {
		emit(LogMessage(task.ID, fmt.Sprintf(format, args...)))
	}

	if stopped(stop) {
		logf("Stopped before start")
		return domain.CancelledResult(task)
	}

	// The repair and image requests reuse the leased key, so the chain is
	// per job.
	repairer := stopAwareRepairer{
		inner: questions.NewAIRepairer(s.generator, s.ai.RepairModel, job.APIKey, s.ai.RepairTimeout),
		stop:  stop,
	}
	renderer := s.renderer
	if s.images != nil {
		renderer = renderer.WithImages(s.images(job.APIKey))
	}
	chain := failsafe.NewChain(questions.NewParser(repairer, logger), renderer, s.store, s.opts, logger)

	start := time.Now()
	logf("Loading %d document(s)", len(task.DocumentPaths))
	docs, err := s.loader.Load(ctx, task.DocumentPaths)
	if err != nil {
		logf("Could not load documents: %v", err)
		return chain.ProduceInputFailure(ctx, task, err)
	}

	if stopped(stop) {
		logf("Stopped before AI call")
		return domain.CancelledResult(task)
	}

	logf("Calling AI (%s)", task.Kind.Label())
	reply, err := s.generate(ctx, job, docs)
	if err != nil {
		logf("AI call failed: %v", err)
		return chain.ProduceTransportFailure(ctx, task, err)
	}
	logger.Info().Int("chars", len(reply)).Dur("elapsed", time.Since(start)).Msg("AI reply received")
	logf("AI reply received (%d chars), building document", len(reply))

	result := chain.Produce(ctx, task, reply)
	if result.Succeeded() {
		logf("Saved %s", result.ArtifactPath)
	} else if result.ArtifactPath != "" {
		logf("Saved fallback %s: %s", result.ArtifactPath, result.ErrorMessage)
	} else {
		logf("No artifact: %s", result.ErrorMessage)
	}
	return result
}

func (s *Service) generate(ctx context.Context, job Job, docs []domain.Document) (string, error) {
	if s.ai.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ai.Timeout)
		defer cancel()
	}

	req := domain.GenerateRequest{
		Prompt:          questions.WrapPrompt(job.Task.PromptText, job.Task.Kind),
		Documents:       docs,
		Model:           s.ai.Model,
		APIKey:          job.APIKey,
		MaxOutputTokens: s.ai.MaxOutputTokens,
		Temperature:     s.ai.Temperature,
		TopP:            s.ai.TopP,
	}
	if s.ai.UseSchema {
		req.SchemaHint = questions.SchemaHint(job.Task.Kind)
	}
	return s.generator.Generate(ctx, req)
}

// stopAwareRepairer skips the repair AI call once a stop was requested.
type stopAwareRepairer struct {
	inner questions.Repairer
	stop  <-chan struct{}
}

func (r stopAwareRepairer) Repair(ctx context.Context, broken string) (string, error) {
	if stopped(r.stop) {
		return "", domain.CancelledError("stop requested, repair skipped", nil)
	}
	return r.inner.Repair(ctx, broken)
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
