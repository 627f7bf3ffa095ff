package sourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// Repository persists criteria, the schedule flag and the run ledger.
type Repository interface {
	LoadCriteria(ctx context.Context) (FilterCriteria, bool, error)
	SaveCriteria(ctx context.Context, criteria FilterCriteria) error
	LoadSchedule(ctx context.Context) (Schedule, bool, error)
	SaveSchedule(ctx context.Context, schedule Schedule) error
	CreateRun(ctx context.Context, run SourcingRun) error
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	FinishRun(ctx context.Context, run SourcingRun) error
	GetRun(ctx context.Context, id uuid.UUID) (SourcingRun, error)
	ListRuns(ctx context.Context, limit int) ([]SourcingRun, error)
}

// Service orchestrates search, evaluation and import for one run at a time
// per caller.
type Service struct {
	repo      Repository
	search    SearchClient
	evaluator *Evaluator
	executor  *ImportExecutor
	metrics   *Metrics
	validate  *validator.Validate
	logger    *slog.Logger
	pageSize  int
	now       func() time.Time
}

// ServiceConfig bundles the collaborators of Service.
type ServiceConfig struct {
	Repo      Repository
	Search    SearchClient
	Evaluator *Evaluator
	Executor  *ImportExecutor
	Metrics   *Metrics
	Logger    *slog.Logger
	PageSize  int
}

// NewService constructs the sourcing service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      cfg.Repo,
		search:    cfg.Search,
		evaluator: cfg.Evaluator,
		executor:  cfg.Executor,
		metrics:   cfg.Metrics,
		validate:  httpx.NewValidator(),
		logger:    logger,
		pageSize:  cfg.PageSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Criteria returns the active filter criteria, or the defaults when none
// were saved.
func (s *Service) Criteria(ctx context.Context) (FilterCriteria, error) {
	criteria, found, err := s.repo.LoadCriteria(ctx)
	if err != nil {
		return FilterCriteria{}, err
	}
	if !found {
		return DefaultCriteria(), nil
	}
	if criteria.ExcludedBrands == nil {
		criteria.ExcludedBrands = []string{}
	}
	return criteria, nil
}

// SaveCriteria validates and replaces the active criteria.
func (s *Service) SaveCriteria(ctx context.Context, criteria FilterCriteria) (FilterCriteria, error) {
	if criteria.ExcludedBrands == nil {
		criteria.ExcludedBrands = []string{}
	}
	if err := httpx.Validate(s.validate, criteria); err != nil {
		return FilterCriteria{}, err
	}
	if err := s.repo.SaveCriteria(ctx, criteria); err != nil {
		return FilterCriteria{}, err
	}
	return criteria, nil
}

// Schedule returns the scheduled-run flag; disabled when never saved.
func (s *Service) Schedule(ctx context.Context) (Schedule, error) {
	schedule, _, err := s.repo.LoadSchedule(ctx)
	return schedule, err
}

// SetSchedule toggles scheduled runs.
func (s *Service) SetSchedule(ctx context.Context, enabled bool) (Schedule, error) {
	schedule := Schedule{Enabled: enabled, UpdatedAt: s.now()}
	if err := s.repo.SaveSchedule(ctx, schedule); err != nil {
		return Schedule{}, err
	}
	return schedule, nil
}

// Preview searches and evaluates with the given criteria without importing.
// A nil criteria uses the active ones.
func (s *Service) Preview(ctx context.Context, override *FilterCriteria) (Preview, error) {
	var criteria FilterCriteria
	if override != nil {
		criteria = *override
		if criteria.ExcludedBrands == nil {
			criteria.ExcludedBrands = []string{}
		}
	} else {
		active, err := s.Criteria(ctx)
		if err != nil {
			return Preview{}, err
		}
		criteria = active
	}
	if err := httpx.Validate(s.validate, criteria); err != nil {
		return Preview{}, err
	}
	candidates, err := s.search.Search(ctx, criteria, PageSize(s.pageSize, criteria))
	if err != nil {
		return Preview{}, err
	}
	accepted, rejected := s.evaluator.EvaluateAll(candidates, criteria)
	return Preview{Criteria: criteria, Accepted: accepted, Rejected: rejected}, nil
}

// Run executes one sourcing invocation and records it in the ledger. A search
// failure finalises the run as failed and is returned; once imports begin the
// run always completes, with per-item failures reported in the result.
func (s *Service) Run(ctx context.Context, trigger Trigger) (RunResult, error) {
	if trigger == TriggerScheduled {
		schedule, err := s.Schedule(ctx)
		if err != nil {
			return RunResult{}, err
		}
		if !schedule.Enabled {
			return RunResult{}, ErrScheduleDisabled
		}
	}
	criteria, err := s.Criteria(ctx)
	if err != nil {
		return RunResult{}, err
	}
	if err := httpx.Validate(s.validate, criteria); err != nil {
		return RunResult{}, fmt.Errorf("sourcing: active criteria: %w", err)
	}

	run := SourcingRun{ID: uuid.New(), Trigger: trigger, Status: RunStatusPending, CreatedAt: s.now()}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return RunResult{}, err
	}
	logger := s.logger.With(slog.String("run_id", run.ID.String()), slog.String("trigger", string(trigger)))
	// The ledger row is finalised even if the caller goes away mid-run.
	finishCtx := context.WithoutCancel(ctx)

	started := s.now()
	if err := s.repo.MarkRunning(ctx, run.ID, started); err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
		s.finish(finishCtx, logger, &run)
		return RunResult{Run: run, Imports: []ItemResult{}, Rejected: []Rejection{}}, err
	}
	run.Status = RunStatusRunning
	run.StartedAt = &started
	logger.Info("sourcing run started")

	candidates, err := s.search.Search(ctx, criteria, PageSize(s.pageSize, criteria))
	if err != nil {
		if !errors.Is(err, ErrSearchFailed) {
			err = fmt.Errorf("%w: %w", ErrSearchFailed, err)
		}
		run.Status = RunStatusFailed
		run.Error = err.Error()
		s.finish(finishCtx, logger, &run)
		return RunResult{Run: run, Imports: []ItemResult{}, Rejected: []Rejection{}}, err
	}

	accepted, rejected := s.evaluator.EvaluateAll(candidates, criteria)
	s.metrics.ObserveEvaluation(len(candidates), rejected)

	summary := s.executor.Execute(ctx, run.ID, accepted)

	run.Status = RunStatusCompleted
	run.TotalFound = len(candidates)
	run.TotalAccepted = len(accepted)
	run.TotalImported = summary.Imported
	run.ImportFailed = summary.Failed
	run.TotalRejected = len(rejected) + summary.Failed
	s.finish(finishCtx, logger, &run)

	return RunResult{Run: run, Imports: summary.Items, Rejected: rejected}, nil
}

func (s *Service) finish(ctx context.Context, logger *slog.Logger, run *SourcingRun) {
	completed := s.now()
	run.CompletedAt = &completed
	if err := s.repo.FinishRun(ctx, *run); err != nil {
		logger.Error("finalise sourcing run", slog.Any("error", err))
	}
	s.metrics.ObserveRun(*run)
	logger.Info("sourcing run finished",
		slog.String("status", string(run.Status)),
		slog.Int("found", run.TotalFound),
		slog.Int("imported", run.TotalImported),
		slog.Int("rejected", run.TotalRejected),
	)
}

// GetRun returns a ledger row.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (SourcingRun, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns the most recent runs first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]SourcingRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRuns(ctx, limit)
}
