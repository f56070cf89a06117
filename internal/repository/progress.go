package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type ProgressRecord struct {
	ID                         uuid.UUID       `db:"id"`
	UserID                     int64           `db:"user_id"`
	MilestoneDefinitionID      uuid.UUID       `db:"milestone_definition_id"`
	MilestoneType              string          `db:"milestone_type"`
	MilestoneTargetValue       decimal.Decimal `db:"milestone_target_value"`
	RewardAmountValue          decimal.Decimal `db:"reward_amount_value"`
	TimeLimitDaysValue         int             `db:"time_limit_days_value"`
	TrackingPeriodStart        time.Time       `db:"tracking_period_start"`
	TrackingPeriodEnd          time.Time       `db:"tracking_period_end"`
	CurrentAccumulatedValue    decimal.Decimal `db:"current_accumulated_value"`
	LastDataPointDateProcessed *time.Time      `db:"last_data_point_date_processed"`
	Status                     string          `db:"status"`
	CompletedAt                *time.Time      `db:"completed_at"`
	CreatedAt                  time.Time       `db:"created_at"`
	UpdatedAt                  time.Time       `db:"updated_at"`
}

var progressColumns = []string{
	"id",
	"user_id",
	"milestone_definition_id",
	"milestone_type",
	"milestone_target_value",
	"reward_amount_value",
	"time_limit_days_value",
	"tracking_period_start",
	"tracking_period_end",
	"current_accumulated_value",
	"last_data_point_date_processed",
	"status",
	"completed_at",
	"created_at",
	"updated_at",
}

func (p *ProgressRecord) toModel() model.ProgressRecord {
	return model.ProgressRecord{
		ID:                         p.ID,
		UserID:                     p.UserID,
		MilestoneDefinitionID:      p.MilestoneDefinitionID,
		MilestoneType:              model.MilestoneType(p.MilestoneType),
		MilestoneTargetValue:       p.MilestoneTargetValue,
		RewardAmountValue:          p.RewardAmountValue,
		TimeLimitDaysValue:         p.TimeLimitDaysValue,
		TrackingPeriodStart:        p.TrackingPeriodStart.UTC(),
		TrackingPeriodEnd:          p.TrackingPeriodEnd.UTC(),
		CurrentAccumulatedValue:    p.CurrentAccumulatedValue,
		LastDataPointDateProcessed: p.LastDataPointDateProcessed,
		Status:                     model.ProgressStatus(p.Status),
		CompletedAt:                p.CompletedAt,
		CreatedAt:                  p.CreatedAt,
		UpdatedAt:                  p.UpdatedAt,
	}
}

func (t *Tx) GetOpenProgress(ctx context.Context, userID int64, definitionID uuid.UUID) (*model.ProgressRecord, error) {
	return t.getProgress(ctx, squirrel.Eq{
		"user_id":                 userID,
		"milestone_definition_id": definitionID,
		"status":                  string(model.ProgressOpen),
	}, "created_at DESC")
}

// GetLatestTerminalProgress returns the completed or expired window with the
// latest end for the pair.
func (t *Tx) GetLatestTerminalProgress(ctx context.Context, userID int64, definitionID uuid.UUID) (*model.ProgressRecord, error) {
	return t.getProgress(ctx, squirrel.Eq{
		"user_id":                 userID,
		"milestone_definition_id": definitionID,
		"status":                  []string{string(model.ProgressCompleted), string(model.ProgressExpired)},
	}, "tracking_period_end DESC")
}

// HasCompletedProgress reports whether the pair has ever completed a window.
func (t *Tx) HasCompletedProgress(ctx context.Context, userID int64, definitionID uuid.UUID) (bool, error) {
	_, err := t.getProgress(ctx, squirrel.Eq{
		"user_id":                 userID,
		"milestone_definition_id": definitionID,
		"status":                  string(model.ProgressCompleted),
	}, "created_at DESC")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *Tx) getProgress(ctx context.Context, where squirrel.Eq, orderBy string) (*model.ProgressRecord, error) {
	query, args, err := squirrel.
		Select(progressColumns...).
		From("progress_records").
		Where(where).
		OrderBy(orderBy).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build progress query: %w", err)
	}

	var row ProgressRecord
	err = t.tx.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progress record: %w", err)
	}

	record := row.toModel()
	return &record, nil
}

// ListOpenProgress returns every open record.
func (t *Tx) ListOpenProgress(ctx context.Context) ([]model.ProgressRecord, error) {
	return listProgress(ctx, t.tx, squirrel.Eq{"status": string(model.ProgressOpen)})
}

func listProgress(ctx context.Context, q sqlx.QueryerContext, where squirrel.Eq) ([]model.ProgressRecord, error) {
	query, args, err := squirrel.
		Select(progressColumns...).
		From("progress_records").
		Where(where).
		OrderBy("user_id", "milestone_type", "milestone_target_value", "tracking_period_start").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build progress list query: %w", err)
	}

	var rows []ProgressRecord
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list progress records: %w", err)
	}

	records := make([]model.ProgressRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toModel()
	}

	return records, nil
}

func (t *Tx) CreateProgress(ctx context.Context, p *model.ProgressRecord) error {
	query, args, err := squirrel.
		Insert("progress_records").
		SetMap(map[string]interface{}{
			"id":                             p.ID,
			"user_id":                        p.UserID,
			"milestone_definition_id":        p.MilestoneDefinitionID,
			"milestone_type":                 string(p.MilestoneType),
			"milestone_target_value":         p.MilestoneTargetValue,
			"reward_amount_value":            p.RewardAmountValue,
			"time_limit_days_value":          p.TimeLimitDaysValue,
			"tracking_period_start":          p.TrackingPeriodStart,
			"tracking_period_end":            p.TrackingPeriodEnd,
			"current_accumulated_value":      p.CurrentAccumulatedValue,
			"last_data_point_date_processed": p.LastDataPointDateProcessed,
			"status":                         string(p.Status),
			"created_at":                     p.CreatedAt,
			"updated_at":                     p.UpdatedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build progress insert query: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert progress record: %w", err)
	}

	return nil
}

// UpdateProgressAccumulation stores a new accumulated value and watermark on an
// open record. The value may only grow.
func (t *Tx) UpdateProgressAccumulation(ctx context.Context, id uuid.UUID, value decimal.Decimal, watermark *time.Time, at time.Time) error {
	query, args, err := squirrel.
		Update("progress_records").
		SetMap(map[string]interface{}{
			"current_accumulated_value":      value,
			"last_data_point_date_processed": watermark,
			"updated_at":                     at,
		}).
		Where(squirrel.Eq{
			"id":     id,
			"status": string(model.ProgressOpen),
		}).
		Where(squirrel.LtOrEq{"current_accumulated_value": value}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build progress update query: %w", err)
	}

	return t.execGuarded(ctx, query, args)
}

// CompleteProgress flips an open record that has reached its target to
// completed. It fails with ErrStaleProgress when the record was already flipped.
func (t *Tx) CompleteProgress(ctx context.Context, id uuid.UUID, at time.Time) error {
	query, args, err := squirrel.
		Update("progress_records").
		SetMap(map[string]interface{}{
			"status":       string(model.ProgressCompleted),
			"completed_at": at,
			"updated_at":   at,
		}).
		Where(squirrel.Eq{
			"id":     id,
			"status": string(model.ProgressOpen),
		}).
		Where("current_accumulated_value >= milestone_target_value").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build progress complete query: %w", err)
	}

	return t.execGuarded(ctx, query, args)
}

func (t *Tx) ExpireProgress(ctx context.Context, id uuid.UUID, at time.Time) error {
	query, args, err := squirrel.
		Update("progress_records").
		SetMap(map[string]interface{}{
			"status":     string(model.ProgressExpired),
			"updated_at": at,
		}).
		Where(squirrel.Eq{
			"id":     id,
			"status": string(model.ProgressOpen),
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build progress expire query: %w", err)
	}

	return t.execGuarded(ctx, query, args)
}

func (t *Tx) execGuarded(ctx context.Context, query string, args []interface{}) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update progress record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleProgress
	}

	return nil
}

// ListProgressByUser returns every window of a user, open and terminal.
func (r *Repository) ListProgressByUser(ctx context.Context, userID int64) ([]model.ProgressRecord, error) {
	return listProgress(ctx, r.db, squirrel.Eq{"user_id": userID})
}
