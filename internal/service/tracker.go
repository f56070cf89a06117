package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/internal/repository"
	"UD_milestone_rewards/pkg/clock"
	"UD_milestone_rewards/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Window bounds of unbounded definitions.
var (
	UnboundedWindowStart = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	UnboundedWindowEnd   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

type StepOutcome string

const (
	// StepSkipped: nothing to evaluate, e.g. an unbounded definition that was
	// already completed.
	StepSkipped StepOutcome = "skipped"
	// StepNotStarted: the open window starts after today.
	StepNotStarted  StepOutcome = "not_started"
	StepAccumulated StepOutcome = "accumulated"
	StepCompleted   StepOutcome = "completed"
	StepExpired     StepOutcome = "expired"
)

type StepResult struct {
	Outcome StepOutcome
	Opened  bool
	Delta   decimal.Decimal
	Record  *model.ProgressRecord
	Credit  *model.RewardLogEntry
}

// ProgressTracker advances the progress of one (user, definition) pair per pass:
// open a window, accumulate source deltas past the watermark, then complete
// and credit or expire.
type ProgressTracker struct {
	sources Sources
	ledger  *RewardLedger
	wallets map[model.MilestoneType]model.WalletField
	newID   func() uuid.UUID
}

func NewProgressTracker(sources Sources, ledger *RewardLedger, wallets map[model.MilestoneType]model.WalletField) (*ProgressTracker, error) {
	if len(wallets) == 0 {
		wallets = model.DefaultWalletFields
	}
	for _, t := range model.MilestoneTypes {
		field, ok := wallets[t]
		if !ok || !field.Valid() {
			return nil, fmt.Errorf("%w: no valid wallet field for %s", ErrConfiguration, t)
		}
	}

	return &ProgressTracker{
		sources: sources,
		ledger:  ledger,
		wallets: wallets,
		newID:   uuid.New,
	}, nil
}

func (t *ProgressTracker) Step(ctx context.Context, store TrackerStore, user model.User, def model.MilestoneDefinition, now time.Time) (StepResult, error) {
	today := clock.StartOfDay(now)

	record, err := store.GetOpenProgress(ctx, user.ID, def.ID)
	opened := false
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return StepResult{}, fmt.Errorf("failed to get open progress: %w", err)
		}

		record, err = t.openWindow(ctx, store, user, def, now)
		if err != nil {
			return StepResult{}, err
		}
		if record == nil {
			return StepResult{Outcome: StepSkipped}, nil
		}
		opened = true
	}

	result := StepResult{Opened: opened, Record: record, Delta: decimal.Zero}

	if record.TrackingPeriodStart.After(today) {
		result.Outcome = StepNotStarted
		return result, nil
	}

	bounded := record.TimeLimitDaysValue > 0

	// Accumulate before the expiry check. Data dated inside the window but
	// picked up after its end still counts, and accumulate never reads past
	// the last day, so an expired window cannot take later data.
	delta, err := t.accumulate(ctx, store, record, now)
	if err != nil {
		return StepResult{}, err
	}
	result.Delta = delta
	result.Outcome = StepAccumulated

	if record.Reached() {
		entry, err := t.complete(ctx, store, record, now)
		if err != nil {
			return StepResult{}, err
		}
		result.Outcome = StepCompleted
		result.Credit = entry
		return result, nil
	}

	if bounded && today.After(record.TrackingPeriodEnd) {
		if err := store.ExpireProgress(ctx, record.ID, now); err != nil {
			return StepResult{}, t.guardError(err, record, "expire")
		}
		record.Status = model.ProgressExpired
		record.UpdatedAt = now
		result.Outcome = StepExpired

		logger.Logger().Info("milestone window expired",
			zap.Int64("user_id", record.UserID),
			zap.String("definition_id", record.MilestoneDefinitionID.String()),
			zap.String("accumulated", record.CurrentAccumulatedValue.String()),
			zap.String("target", record.MilestoneTargetValue.String()),
		)
	}

	return result, nil
}

// openWindow creates the next window of the pair. It returns nil when an
// unbounded definition was already completed, since those reward once.
func (t *ProgressTracker) openWindow(ctx context.Context, store TrackerStore, user model.User, def model.MilestoneDefinition, now time.Time) (*model.ProgressRecord, error) {
	var start, end time.Time

	if def.Bounded() {
		last, err := store.GetLatestTerminalProgress(ctx, user.ID, def.ID)
		switch {
		case err == nil:
			start = clock.StartOfDay(last.TrackingPeriodEnd).AddDate(0, 0, 1)
		case errors.Is(err, repository.ErrNotFound):
			start = clock.StartOfDay(user.JoinedAt)
		default:
			return nil, fmt.Errorf("failed to get latest window: %w", err)
		}
		end = start.AddDate(0, 0, def.TimeLimitDays)
	} else {
		done, err := store.HasCompletedProgress(ctx, user.ID, def.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check completed progress: %w", err)
		}
		if done {
			return nil, nil
		}
		start, end = UnboundedWindowStart, UnboundedWindowEnd
	}

	record := &model.ProgressRecord{
		ID:                      t.newID(),
		UserID:                  user.ID,
		MilestoneDefinitionID:   def.ID,
		MilestoneType:           def.Type,
		MilestoneTargetValue:    def.TargetValue,
		RewardAmountValue:       def.RewardAmount,
		TimeLimitDaysValue:      def.TimeLimitDays,
		TrackingPeriodStart:     start,
		TrackingPeriodEnd:       end,
		CurrentAccumulatedValue: decimal.Zero,
		Status:                  model.ProgressOpen,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := store.CreateProgress(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to open progress window: %w", err)
	}

	return record, nil
}

// accumulate adds the delta since the watermark. The window end is a calendar
// day, so data is read up to the close of that day and no further.
func (t *ProgressTracker) accumulate(ctx context.Context, store TrackerStore, record *model.ProgressRecord, now time.Time) (decimal.Decimal, error) {
	asOf := now
	if cutoff := clock.StartOfDay(record.TrackingPeriodEnd).AddDate(0, 0, 1); cutoff.Before(asOf) {
		asOf = cutoff
	}

	from := rangeStart(record.TrackingPeriodStart, record.LastDataPointDateProcessed)
	if !asOf.After(from) {
		return decimal.Zero, nil
	}

	source, err := t.sources.For(record.MilestoneType)
	if err != nil {
		return decimal.Zero, err
	}

	delta, err := source.ComputeDelta(ctx, store, record.UserID, record.TrackingPeriodStart, record.LastDataPointDateProcessed, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if delta.Value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative delta %s for progress record %s", ErrInvariantViolation, delta.Value, record.ID)
	}

	watermark := model.Later(record.LastDataPointDateProcessed, delta.LatestDate)
	if delta.Value.IsZero() && watermark == record.LastDataPointDateProcessed {
		return decimal.Zero, nil
	}

	value := record.CurrentAccumulatedValue.Add(delta.Value)
	if err := store.UpdateProgressAccumulation(ctx, record.ID, value, watermark, now); err != nil {
		return decimal.Zero, t.guardError(err, record, "accumulate")
	}

	record.CurrentAccumulatedValue = value
	record.LastDataPointDateProcessed = watermark
	record.UpdatedAt = now

	return delta.Value, nil
}

// complete flips the record and credits the reward. Both writes go through the
// pass transaction, so they become visible together or not at all.
func (t *ProgressTracker) complete(ctx context.Context, store TrackerStore, record *model.ProgressRecord, now time.Time) (*model.RewardLogEntry, error) {
	if err := store.CompleteProgress(ctx, record.ID, now); err != nil {
		return nil, t.guardError(err, record, "complete")
	}
	record.Status = model.ProgressCompleted
	record.CompletedAt = &now
	record.UpdatedAt = now

	entry, err := t.ledger.Credit(ctx, store, RewardCredit{
		UserID:           record.UserID,
		Type:             record.MilestoneType,
		Amount:           record.RewardAmountValue,
		WalletField:      t.wallets[record.MilestoneType],
		DefinitionID:     record.MilestoneDefinitionID,
		ProgressRecordID: record.ID,
		MilestoneValue:   record.MilestoneTargetValue,
	}, now)
	if err != nil {
		return nil, err
	}

	logger.Logger().Info("milestone completed",
		zap.Int64("user_id", record.UserID),
		zap.String("type", string(record.MilestoneType)),
		zap.String("definition_id", record.MilestoneDefinitionID.String()),
		zap.String("amount", entry.Amount.String()),
		zap.String("wallet_field", string(entry.WalletField)),
	)

	return entry, nil
}

func (t *ProgressTracker) guardError(err error, record *model.ProgressRecord, op string) error {
	if errors.Is(err, repository.ErrStaleProgress) {
		return fmt.Errorf("%w: %s progress record %s: %w", ErrInvariantViolation, op, record.ID, err)
	}
	return fmt.Errorf("failed to %s progress record %s: %w", op, record.ID, err)
}
