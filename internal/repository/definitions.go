package repository

import (
	"context"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MilestoneDefinition struct {
	ID            uuid.UUID       `db:"id"`
	Type          string          `db:"type"`
	TargetValue   decimal.Decimal `db:"target_value"`
	RewardAmount  decimal.Decimal `db:"reward_amount"`
	TimeLimitDays int             `db:"time_limit_days"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
}

// ListActiveDefinitions returns the active definitions of one type, lowest
// target first.
func (t *Tx) ListActiveDefinitions(ctx context.Context, milestoneType model.MilestoneType) ([]model.MilestoneDefinition, error) {
	query, args, err := squirrel.
		Select("id", "type", "target_value", "reward_amount", "time_limit_days", "status", "created_at").
		From("milestone_definitions").
		Where(squirrel.Eq{
			"type":   string(milestoneType),
			"status": string(model.DefinitionActive),
		}).
		OrderBy("target_value ASC", "id ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build definitions query: %w", err)
	}

	var rows []MilestoneDefinition
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list active definitions: %w", err)
	}

	defs := make([]model.MilestoneDefinition, len(rows))
	for i, d := range rows {
		defs[i] = model.MilestoneDefinition{
			ID:            d.ID,
			Type:          model.MilestoneType(d.Type),
			TargetValue:   d.TargetValue,
			RewardAmount:  d.RewardAmount,
			TimeLimitDays: d.TimeLimitDays,
			Status:        model.DefinitionStatus(d.Status),
			CreatedAt:     d.CreatedAt,
		}
	}

	return defs, nil
}
