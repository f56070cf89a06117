package repository

import (
	"context"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type delta struct {
	Value      decimal.Decimal `db:"value"`
	LatestDate *time.Time      `db:"latest_date"`
}

// SumCompletedOrders sums delivered, paid orders of users placed in (from, to].
func (t *Tx) SumCompletedOrders(ctx context.Context, userIDs []int64, from, to time.Time) (model.Delta, error) {
	if len(userIDs) == 0 {
		return model.Delta{Value: decimal.Zero}, nil
	}

	return t.delta(ctx, squirrel.
		Select("COALESCE(SUM(total_amount), 0) AS value", "MAX(created_at) AS latest_date").
		From("orders").
		Where(squirrel.Expr("user_id = ANY(?)", pq.Array(userIDs))).
		Where(squirrel.Eq{
			"status":         model.OrderStatusDelivered,
			"payment_status": model.PaymentStatusCompleted,
		}).
		Where(squirrel.Gt{"created_at": from}).
		Where(squirrel.LtOrEq{"created_at": to}))
}

// CountReferredMemberships counts completed memberships in (from, to] bought
// by users referred by parentID.
func (t *Tx) CountReferredMemberships(ctx context.Context, parentID int64, from, to time.Time) (model.Delta, error) {
	return t.delta(ctx, squirrel.
		Select("COUNT(*) AS value", "MAX(purchased_at) AS latest_date").
		From("memberships").
		Where(squirrel.Eq{
			"referring_parent_id": parentID,
			"completed":           true,
		}).
		Where(squirrel.Gt{"purchased_at": from}).
		Where(squirrel.LtOrEq{"purchased_at": to}))
}

// SumCompletedMemberships sums amounts paid for completed memberships of users
// in (from, to].
func (t *Tx) SumCompletedMemberships(ctx context.Context, userIDs []int64, from, to time.Time) (model.Delta, error) {
	if len(userIDs) == 0 {
		return model.Delta{Value: decimal.Zero}, nil
	}

	return t.delta(ctx, squirrel.
		Select("COALESCE(SUM(amount_paid), 0) AS value", "MAX(purchased_at) AS latest_date").
		From("memberships").
		Where(squirrel.Expr("user_id = ANY(?)", pq.Array(userIDs))).
		Where(squirrel.Eq{"completed": true}).
		Where(squirrel.Gt{"purchased_at": from}).
		Where(squirrel.LtOrEq{"purchased_at": to}))
}

func (t *Tx) delta(ctx context.Context, builder squirrel.SelectBuilder) (model.Delta, error) {
	query, args, err := builder.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return model.Delta{}, fmt.Errorf("failed to build delta query: %w", err)
	}

	var row delta
	if err := t.tx.GetContext(ctx, &row, query, args...); err != nil {
		return model.Delta{}, fmt.Errorf("failed to compute delta: %w", err)
	}

	return model.Delta{
		Value:      row.Value,
		LatestDate: row.LatestDate,
	}, nil
}
