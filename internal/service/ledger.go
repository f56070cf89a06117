package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RewardCredit struct {
	UserID           int64
	Type             model.MilestoneType
	Amount           decimal.Decimal
	WalletField      model.WalletField
	DefinitionID     uuid.UUID
	ProgressRecordID uuid.UUID
	MilestoneValue   decimal.Decimal
}

// RewardLedger issues credits. Every credit is one reward_logs row plus one
// wallet increment written through the caller's transaction.
type RewardLedger struct {
	newID func() uuid.UUID
}

func NewRewardLedger() *RewardLedger {
	return &RewardLedger{newID: uuid.New}
}

func (l *RewardLedger) Credit(ctx context.Context, store RewardStore, c RewardCredit, at time.Time) (*model.RewardLogEntry, error) {
	if !c.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit amount %s for user %d must be positive", ErrInvariantViolation, c.Amount, c.UserID)
	}
	if !c.WalletField.Valid() {
		return nil, fmt.Errorf("%w: unknown wallet field %q", ErrInvariantViolation, c.WalletField)
	}

	entry := &model.RewardLogEntry{
		ID:                    l.newID(),
		UserID:                c.UserID,
		Type:                  c.Type,
		Amount:                c.Amount,
		WalletField:           c.WalletField,
		MilestoneDefinitionID: c.DefinitionID,
		ProgressRecordID:      c.ProgressRecordID,
		MilestoneValue:        c.MilestoneValue,
		CreatedAt:             at,
	}

	if err := store.AppendRewardLog(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateReward) {
			return nil, fmt.Errorf("%w: progress record %s already credited", ErrInvariantViolation, c.ProgressRecordID)
		}
		return nil, fmt.Errorf("failed to append reward log: %w", err)
	}

	if err := store.IncrementWallet(ctx, c.UserID, c.WalletField, c.Amount, at); err != nil {
		return nil, fmt.Errorf("failed to credit %s of user %d: %w", c.WalletField, c.UserID, err)
	}

	return entry, nil
}
