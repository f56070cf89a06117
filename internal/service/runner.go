package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/metrics"
	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/internal/repository"
	"UD_milestone_rewards/pkg/clock"
	"UD_milestone_rewards/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SchedulerRunner evaluates every user against every active definition in one
// transaction. Any error rolls back the whole pass.
type SchedulerRunner struct {
	transactor PassTransactor
	tracker    *ProgressTracker
	clock      clock.Clock
	metrics    *metrics.Metrics
}

func NewSchedulerRunner(transactor PassTransactor, tracker *ProgressTracker, clk clock.Clock, m *metrics.Metrics) *SchedulerRunner {
	return &SchedulerRunner{
		transactor: transactor,
		tracker:    tracker,
		clock:      clk,
		metrics:    m,
	}
}

type passTally struct {
	amountByType  map[model.MilestoneType]decimal.Decimal
	expiredByType map[model.MilestoneType]int
}

func (r *SchedulerRunner) RunPass(ctx context.Context) (*model.MilestoneRun, error) {
	log := logger.Logger()
	now := r.clock.Now()

	var (
		run   *model.MilestoneRun
		tally passTally
	)

	err := r.transactor.InPassTransaction(ctx, func(store PassStore) error {
		run = &model.MilestoneRun{
			ID:            uuid.New(),
			StartedAt:     now,
			TotalCredited: decimal.Zero,
			CreditsByType: make(map[model.MilestoneType]int),
		}
		tally = passTally{
			amountByType:  make(map[model.MilestoneType]decimal.Decimal),
			expiredByType: make(map[model.MilestoneType]int),
		}
		return r.pass(ctx, store, run, &tally, now)
	})

	finishedAt := r.clock.Now()
	duration := finishedAt.Sub(now)

	if err != nil {
		r.metrics.ObservePass(metrics.OutcomeRolledBack, duration, finishedAt)
		log.Error("milestone pass rolled back",
			zap.Error(err),
			zap.Bool("data_source_error", errors.Is(err, ErrDataSource)),
			zap.Bool("invariant_violation", errors.Is(err, ErrInvariantViolation)),
			zap.Duration("duration", duration),
		)
		return nil, err
	}

	r.metrics.ObservePass(metrics.OutcomeCommitted, duration, finishedAt)
	r.metrics.AddConfigurationSkips(run.ConfigurationSkips)
	for _, t := range model.MilestoneTypes {
		amount, _ := tally.amountByType[t].Float64()
		r.metrics.AddCredits(string(t), run.CreditsByType[t], amount)
		r.metrics.AddExpirations(string(t), tally.expiredByType[t])
	}

	log.Info("milestone pass committed",
		zap.String("run_id", run.ID.String()),
		zap.Int("users", run.UsersEvaluated),
		zap.Int("opened", run.RecordsOpened),
		zap.Int("expired", run.RecordsExpired),
		zap.Int("credits", run.Credits),
		zap.String("total_credited", run.TotalCredited.String()),
		zap.Int("configuration_skips", run.ConfigurationSkips),
		zap.Duration("duration", duration),
	)

	return run, nil
}

func (r *SchedulerRunner) pass(ctx context.Context, store PassStore, run *model.MilestoneRun, tally *passTally, now time.Time) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	definitions := make(map[model.MilestoneType][]model.MilestoneDefinition, len(model.MilestoneTypes))
	active := make(map[uuid.UUID]struct{})
	for _, t := range model.MilestoneTypes {
		defs, err := store.ListActiveDefinitions(ctx, t)
		if err != nil {
			return fmt.Errorf("failed to list %s definitions: %w", t, err)
		}
		definitions[t] = defs
		for _, d := range defs {
			active[d.ID] = struct{}{}
		}
	}

	if err := r.reportOrphans(ctx, store, active, run); err != nil {
		return err
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		run.UsersEvaluated++

		for _, t := range model.MilestoneTypes {
			defs := definitions[t]
			if len(defs) == 0 {
				continue
			}

			ok, err := r.applicable(ctx, store, user, t)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			for _, def := range defs {
				res, err := r.tracker.Step(ctx, store, user, def, now)
				if err != nil {
					return fmt.Errorf("user %d definition %s: %w", user.ID, def.ID, err)
				}
				if res.Opened {
					run.RecordsOpened++
				}
				switch res.Outcome {
				case StepExpired:
					run.RecordsExpired++
					tally.expiredByType[t]++
				case StepCompleted:
					run.Credits++
					run.CreditsByType[t]++
					run.TotalCredited = run.TotalCredited.Add(res.Credit.Amount)
					tally.amountByType[t] = tally.amountByType[t].Add(res.Credit.Amount)
				}
			}
		}
	}

	run.FinishedAt = r.clock.Now()
	if err := store.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	return nil
}

// reportOrphans logs open records whose definition is no longer active. They
// are left untouched and never evaluated.
func (r *SchedulerRunner) reportOrphans(ctx context.Context, store PassStore, active map[uuid.UUID]struct{}, run *model.MilestoneRun) error {
	open, err := store.ListOpenProgress(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open progress: %w", err)
	}

	for _, p := range open {
		if _, ok := active[p.MilestoneDefinitionID]; ok {
			continue
		}
		run.ConfigurationSkips++
		logger.Logger().Warn("skipping progress record",
			zap.Error(fmt.Errorf("%w: definition %s is inactive or deleted", ErrConfiguration, p.MilestoneDefinitionID)),
			zap.String("progress_id", p.ID.String()),
			zap.Int64("user_id", p.UserID),
		)
	}

	return nil
}

// applicable reports whether t is evaluated for user. Franchise milestones
// need the franchise admin role and a franchise owned by the user.
func (r *SchedulerRunner) applicable(ctx context.Context, store PassStore, user model.User, t model.MilestoneType) (bool, error) {
	if t != model.FranchiseMilestone {
		return true, nil
	}
	if !user.HasRole(model.RoleFranchiseAdmin) {
		return false, nil
	}

	_, err := store.GetFranchiseByAdmin(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: franchise lookup for user %d: %w", ErrDataSource, user.ID, err)
	}
	return true, nil
}
