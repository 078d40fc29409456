package stage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flattener/internal/constants"
	apperrors "flattener/pkg/errors"
	"flattener/pkg/metrics"
)

// Repository stores stage configs. Get returns an ErrNotFound application
// error when the stage has no stored config. Save upserts and bumps Version.
type Repository interface {
	Get(ctx context.Context, stage string) (*StageConfig, error)
	Save(ctx context.Context, cfg *StageConfig) error
}

func notFound(stage string) error {
	return apperrors.ErrNotFound.
		WithDetail("message", fmt.Sprintf("no transform config stored for stage %q", stage)).
		WithDetail("stage", stage)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, stage string) (*StageConfig, error) {
	start := time.Now()
	query := `
		SELECT stage, field_name, enabled, version, COALESCE(updated_by, ''), created_at, updated_at
		FROM ` + constants.StageConfigTableName + `
		WHERE stage = $1
	`

	var cfg StageConfig
	err := r.db.QueryRowContext(ctx, query, stage).Scan(
		&cfg.Stage,
		&cfg.FieldName,
		&cfg.Enabled,
		&cfg.Version,
		&cfg.UpdatedBy,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	observeQuery("postgres", "get", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(stage)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stage config: %w", err)
	}

	return &cfg, nil
}

func (r *PostgresRepository) Save(ctx context.Context, cfg *StageConfig) error {
	start := time.Now()
	query := `
		INSERT INTO ` + constants.StageConfigTableName + ` (stage, field_name, enabled, version, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, NOW(), NOW())
		ON CONFLICT (stage) DO UPDATE SET
			field_name = EXCLUDED.field_name,
			enabled = EXCLUDED.enabled,
			version = ` + constants.StageConfigTableName + `.version + 1,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
		RETURNING version, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, cfg.Stage, cfg.FieldName, cfg.Enabled, cfg.UpdatedBy).
		Scan(&cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt)
	observeQuery("postgres", "save", start, err)
	if err != nil {
		return fmt.Errorf("failed to save stage config: %w", err)
	}
	return nil
}

func observeQuery(database, operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, database, operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, database, operation, time.Since(start))
}
