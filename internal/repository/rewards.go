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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type RewardLog struct {
	ID                    uuid.UUID       `db:"id"`
	UserID                int64           `db:"user_id"`
	Type                  string          `db:"type"`
	Amount                decimal.Decimal `db:"amount"`
	WalletField           string          `db:"wallet_field"`
	MilestoneDefinitionID uuid.UUID       `db:"milestone_definition_id"`
	ProgressRecordID      uuid.UUID       `db:"progress_record_id"`
	MilestoneValue        decimal.Decimal `db:"milestone_value"`
	CreatedAt             time.Time       `db:"created_at"`
}

type Wallet struct {
	UserID             int64           `db:"user_id"`
	PurchaseWallet     decimal.Decimal `db:"purchase_wallet"`
	WithdrawableWallet decimal.Decimal `db:"withdrawable_wallet"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// AppendRewardLog inserts an audit row. reward_logs has no update or delete
// path; a second row for the same progress record fails with ErrDuplicateReward.
func (t *Tx) AppendRewardLog(ctx context.Context, entry *model.RewardLogEntry) error {
	query, args, err := squirrel.
		Insert("reward_logs").
		SetMap(map[string]interface{}{
			"id":                      entry.ID,
			"user_id":                 entry.UserID,
			"type":                    string(entry.Type),
			"amount":                  entry.Amount,
			"wallet_field":            string(entry.WalletField),
			"milestone_definition_id": entry.MilestoneDefinitionID,
			"progress_record_id":      entry.ProgressRecordID,
			"milestone_value":         entry.MilestoneValue,
			"created_at":              entry.CreatedAt,
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build reward log insert query: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateReward
		}
		return fmt.Errorf("failed to insert reward log: %w", err)
	}

	return nil
}

// IncrementWallet adds amount to one wallet field, creating the wallet row on
// first credit.
func (t *Tx) IncrementWallet(ctx context.Context, userID int64, field model.WalletField, amount decimal.Decimal, at time.Time) error {
	if !field.Valid() {
		return fmt.Errorf("unknown wallet field %q", field)
	}

	column := string(field)
	values := map[string]interface{}{
		"user_id":    userID,
		"updated_at": at,
	}
	values[string(model.PurchaseWallet)] = decimal.Zero
	values[string(model.WithdrawableWallet)] = decimal.Zero
	values[column] = amount

	query, args, err := squirrel.
		Insert("wallets").
		SetMap(values).
		Suffix(fmt.Sprintf(
			"ON CONFLICT (user_id) DO UPDATE SET %[1]s = wallets.%[1]s + EXCLUDED.%[1]s, updated_at = EXCLUDED.updated_at",
			column,
		)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build wallet increment query: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to increment wallet: %w", err)
	}

	return nil
}

func (r *Repository) ListRewardLogsByUser(ctx context.Context, userID int64) ([]model.RewardLogEntry, error) {
	query, args, err := squirrel.
		Select("id", "user_id", "type", "amount", "wallet_field", "milestone_definition_id",
			"progress_record_id", "milestone_value", "created_at").
		From("reward_logs").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build reward logs query: %w", err)
	}

	var rows []RewardLog
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reward logs: %w", err)
	}

	entries := make([]model.RewardLogEntry, len(rows))
	for i, l := range rows {
		entries[i] = model.RewardLogEntry{
			ID:                    l.ID,
			UserID:                l.UserID,
			Type:                  model.MilestoneType(l.Type),
			Amount:                l.Amount,
			WalletField:           model.WalletField(l.WalletField),
			MilestoneDefinitionID: l.MilestoneDefinitionID,
			ProgressRecordID:      l.ProgressRecordID,
			MilestoneValue:        l.MilestoneValue,
			CreatedAt:             l.CreatedAt,
		}
	}

	return entries, nil
}

func (r *Repository) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	query, args, err := squirrel.
		Select("user_id", "purchase_wallet", "withdrawable_wallet", "updated_at").
		From("wallets").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var w Wallet
	err = r.db.GetContext(ctx, &w, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &model.Wallet{
		UserID:             w.UserID,
		PurchaseWallet:     w.PurchaseWallet,
		WithdrawableWallet: w.WithdrawableWallet,
		UpdatedAt:          w.UpdatedAt,
	}, nil
}
