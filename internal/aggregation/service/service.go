package service

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upagg/internal/aggregation/config"
	"upagg/internal/aggregation/metrics"
	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

// Source loads the input dataset of a run.
type Source interface {
	Load(ctx context.Context) (*models.Dataset, error)
}

// Sink durably stores a finished run.
type Sink interface {
	SaveRun(ctx context.Context, report *models.Report) error
}

// Cache holds final rows for fast lookup.
type Cache interface {
	PutResults(ctx context.Context, results []models.Result) error
}

// Publisher streams a finished run to downstream consumers.
type Publisher interface {
	PublishRun(ctx context.Context, report *models.Report) error
}

// Service runs the aggregation pipeline and publishes its report.
type Service struct {
	source    Source
	policy    *config.Policy
	sink      Sink
	cache     Cache
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	workers   int
	now       func() time.Time
}

type Option func(*Service)

func WithSink(sink Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithWorkers bounds per-stage parallelism. Values below one use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.workers = n
	}
}

// WithClock overrides the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(source Source, policy *config.Policy, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("dataset source is required")
	}
	if policy == nil {
		return nil, dErrors.New(dErrors.CodeConfig, "aggregation policy is required")
	}
	s := &Service{
		source: source,
		policy: policy,
		tracer: otel.Tracer("upagg/aggregation"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	return s, nil
}

// Run loads the dataset, resolves it and publishes the report. Nothing is
// published unless every stage succeeded.
func (s *Service) Run(ctx context.Context) (*models.Report, error) {
	ctx, span := s.tracer.Start(ctx, "aggregation.run")
	defer span.End()

	ds, err := s.source.Load(ctx)
	if err != nil {
		s.fail(ctx, span, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dataset")
	}
	report, err := s.Resolve(ctx, ds)
	if err != nil {
		s.fail(ctx, span, err)
		return nil, err
	}
	if err := s.publish(ctx, report); err != nil {
		s.fail(ctx, span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("run_id", report.RunID.String()),
		attribute.Int("results", len(report.Results)),
	)
	s.metrics.IncrementRun("ok")
	return report, nil
}

// Resolve runs every stage over ds and returns the final report.
func (s *Service) Resolve(ctx context.Context, ds *models.Dataset) (*models.Report, error) {
	if ds == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "dataset is required")
	}
	report := &models.Report{
		RunID:       uuid.New(),
		StartedAt:   s.now(),
		Diagnostics: models.NewDiagnostics(),
	}
	r := &run{svc: s, ds: ds, policy: s.policy, diag: &report.Diagnostics}

	s.logInfo(ctx, "aggregation run started",
		"run_id", report.RunID,
		"issuers", len(ds.Issuers),
	)
	for _, st := range r.stages() {
		if err := s.stage(ctx, report.RunID, st.name, st.fn); err != nil {
			s.logError(ctx, "aggregation stage failed",
				"run_id", report.RunID,
				"stage", st.name,
				"error", err,
			)
			return nil, err
		}
	}

	report.Results = r.results
	report.FinishedAt = s.now()
	s.metrics.RecordReport(report)
	s.logInfo(ctx, "aggregation run finished",
		"run_id", report.RunID,
		"results", len(report.Results),
		"rescued", report.Diagnostics.Rescued,
		"dropped_cyclic", report.Diagnostics.DroppedCyclic,
		"overrides_applied", report.Diagnostics.OverridesApplied,
	)
	return report, nil
}

func (s *Service) stage(ctx context.Context, runID uuid.UUID, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "aggregation."+name, trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.String("stage", name),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) publish(ctx context.Context, report *models.Report) error {
	if s.sink != nil {
		if err := s.sink.SaveRun(ctx, report); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store run")
		}
	}
	if s.cache != nil {
		if err := s.cache.PutResults(ctx, report.Results); err != nil {
			s.logWarn(ctx, "result cache refresh failed",
				"run_id", report.RunID,
				"error", err,
			)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRun(ctx, report); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish run")
		}
	}
	return nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.IncrementRun("failed")
	s.logError(ctx, "aggregation run failed", "error", err)
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, args...)
	}
}
