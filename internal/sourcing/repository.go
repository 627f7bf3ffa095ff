package sourcing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropship-ops/opsdash/internal/platform/db"
	"github.com/dropship-ops/opsdash/internal/settings"
)

// PgRepository implements Repository on Postgres.
type PgRepository struct {
	pool     *pgxpool.Pool
	settings *settings.Store
}

// NewRepository constructs the Postgres repository.
func NewRepository(pool *pgxpool.Pool, store *settings.Store) *PgRepository {
	return &PgRepository{pool: pool, settings: store}
}

const runColumns = `id, trigger, status, created_at, started_at, completed_at,
	total_found, total_accepted, total_imported, total_rejected, import_failed, error`

// LoadCriteria reads the saved criteria.
func (r *PgRepository) LoadCriteria(ctx context.Context) (FilterCriteria, bool, error) {
	var criteria FilterCriteria
	found, err := r.settings.Load(ctx, settings.KeyFilterCriteria, &criteria)
	return criteria, found, err
}

// SaveCriteria replaces the saved criteria.
func (r *PgRepository) SaveCriteria(ctx context.Context, criteria FilterCriteria) error {
	return r.settings.Save(ctx, settings.KeyFilterCriteria, criteria)
}

// LoadSchedule reads the schedule flag.
func (r *PgRepository) LoadSchedule(ctx context.Context) (Schedule, bool, error) {
	var schedule Schedule
	found, err := r.settings.Load(ctx, settings.KeySourcingSchedule, &schedule)
	return schedule, found, err
}

// SaveSchedule writes the schedule flag.
func (r *PgRepository) SaveSchedule(ctx context.Context, schedule Schedule) error {
	return r.settings.Save(ctx, settings.KeySourcingSchedule, schedule)
}

// CreateRun inserts a pending ledger row.
func (r *PgRepository) CreateRun(ctx context.Context, run SourcingRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sourcing_runs (id, trigger, status, created_at)
		VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Trigger), string(run.Status), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("sourcing: create run: %w", err)
	}
	return nil
}

// MarkRunning moves a pending run to running.
func (r *PgRepository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sourcing_runs SET status = 'running', started_at = $2
		WHERE id = $1 AND status = 'pending'`, id, startedAt)
	if err != nil {
		return fmt.Errorf("sourcing: mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// FinishRun writes the terminal state. Rows already terminal are left alone.
func (r *PgRepository) FinishRun(ctx context.Context, run SourcingRun) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sourcing_runs SET
			status = $2, completed_at = $3,
			total_found = $4, total_accepted = $5, total_imported = $6,
			total_rejected = $7, import_failed = $8, error = $9
		WHERE id = $1 AND status IN ('pending', 'running')`,
		run.ID, string(run.Status), run.CompletedAt,
		run.TotalFound, run.TotalAccepted, run.TotalImported,
		run.TotalRejected, run.ImportFailed, run.Error)
	if err != nil {
		return fmt.Errorf("sourcing: finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, run.ID)
	}
	return nil
}

func (r *PgRepository) transitionError(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetRun(ctx, id); err != nil {
		return err
	}
	return ErrRunFinalised
}

// GetRun fetches one ledger row.
func (r *PgRepository) GetRun(ctx context.Context, id uuid.UUID) (SourcingRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM sourcing_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if db.IsNoRows(err) {
			return SourcingRun{}, ErrRunNotFound
		}
		return SourcingRun{}, fmt.Errorf("sourcing: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs first.
func (r *PgRepository) ListRuns(ctx context.Context, limit int) ([]SourcingRun, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM sourcing_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("sourcing: list runs: %w", err)
	}
	defer rows.Close()
	runs := make([]SourcingRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sourcing: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (SourcingRun, error) {
	var (
		run     SourcingRun
		trigger string
		status  string
	)
	err := row.Scan(&run.ID, &trigger, &status, &run.CreatedAt, &run.StartedAt, &run.CompletedAt,
		&run.TotalFound, &run.TotalAccepted, &run.TotalImported, &run.TotalRejected, &run.ImportFailed, &run.Error)
	if err != nil {
		return SourcingRun{}, err
	}
	run.Trigger = Trigger(trigger)
	run.Status = RunStatus(status)
	return run, nil
}
