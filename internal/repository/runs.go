package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MilestoneRun struct {
	ID                 uuid.UUID       `db:"id"`
	StartedAt          time.Time       `db:"started_at"`
	FinishedAt         time.Time       `db:"finished_at"`
	UsersEvaluated     int             `db:"users_evaluated"`
	RecordsOpened      int             `db:"records_opened"`
	RecordsExpired     int             `db:"records_expired"`
	Credits            int             `db:"credits"`
	TotalCredited      decimal.Decimal `db:"total_credited"`
	ConfigurationSkips int             `db:"configuration_skips"`
	Summary            []byte          `db:"summary"`
}

type runSummary struct {
	CreditsByType map[model.MilestoneType]int `json:"credits_by_type"`
}

// InsertRun records a pass in the same transaction as its effects.
func (t *Tx) InsertRun(ctx context.Context, run *model.MilestoneRun) error {
	summary, err := json.Marshal(runSummary{CreditsByType: run.CreditsByType})
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	query, args, err := squirrel.
		Insert("milestone_runs").
		SetMap(map[string]interface{}{
			"id":                  run.ID,
			"started_at":          run.StartedAt,
			"finished_at":         run.FinishedAt,
			"users_evaluated":     run.UsersEvaluated,
			"records_opened":      run.RecordsOpened,
			"records_expired":     run.RecordsExpired,
			"credits":             run.Credits,
			"total_credited":      run.TotalCredited,
			"configuration_skips": run.ConfigurationSkips,
			"summary":             string(summary),
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run insert query: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert milestone run: %w", err)
	}

	return nil
}

func (r *Repository) GetLatestRun(ctx context.Context) (*model.MilestoneRun, error) {
	query, args, err := squirrel.
		Select("id", "started_at", "finished_at", "users_evaluated", "records_opened", "records_expired",
			"credits", "total_credited", "configuration_skips", "summary").
		From("milestone_runs").
		OrderBy("started_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row MilestoneRun
	err = r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	var summary runSummary
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
		}
	}

	return &model.MilestoneRun{
		ID:                 row.ID,
		StartedAt:          row.StartedAt,
		FinishedAt:         row.FinishedAt,
		UsersEvaluated:     row.UsersEvaluated,
		RecordsOpened:      row.RecordsOpened,
		RecordsExpired:     row.RecordsExpired,
		Credits:            row.Credits,
		TotalCredited:      row.TotalCredited,
		ConfigurationSkips: row.ConfigurationSkips,
		CreditsByType:      summary.CreditsByType,
	}, nil
}
