package service

import (
	"context"
	"errors"
	"time"

	"UD_milestone_rewards/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrDataSource wraps failures of a milestone data source. The pass is
	// rolled back and retried on the next schedule.
	ErrDataSource = errors.New("milestone data source failed")

	// ErrInvariantViolation marks a write that would break a progress or
	// ledger invariant, such as crediting a record twice.
	ErrInvariantViolation = errors.New("milestone invariant violation")

	// ErrConfiguration marks a progress record or definition that cannot be
	// evaluated as configured.
	ErrConfiguration = errors.New("milestone configuration error")

	ErrPassInProgress = errors.New("milestone pass already in progress")
	ErrRunNotFound    = errors.New("no milestone run recorded")
)

// LedgerReader is the read-only view of the order, membership and franchise
// ledgers used by data sources.
type LedgerReader interface {
	SumCompletedOrders(ctx context.Context, userIDs []int64, from, to time.Time) (model.Delta, error)
	CountReferredMemberships(ctx context.Context, parentID int64, from, to time.Time) (model.Delta, error)
	SumCompletedMemberships(ctx context.Context, userIDs []int64, from, to time.Time) (model.Delta, error)
	GetFranchiseByAdmin(ctx context.Context, adminID int64) (*model.Franchise, error)
	ListFranchiseMembers(ctx context.Context, franchiseID int64) ([]int64, error)
}

type ProgressStore interface {
	GetOpenProgress(ctx context.Context, userID int64, definitionID uuid.UUID) (*model.ProgressRecord, error)
	GetLatestTerminalProgress(ctx context.Context, userID int64, definitionID uuid.UUID) (*model.ProgressRecord, error)
	HasCompletedProgress(ctx context.Context, userID int64, definitionID uuid.UUID) (bool, error)
	CreateProgress(ctx context.Context, p *model.ProgressRecord) error
	UpdateProgressAccumulation(ctx context.Context, id uuid.UUID, value decimal.Decimal, watermark *time.Time, at time.Time) error
	CompleteProgress(ctx context.Context, id uuid.UUID, at time.Time) error
	ExpireProgress(ctx context.Context, id uuid.UUID, at time.Time) error
}

type RewardStore interface {
	AppendRewardLog(ctx context.Context, entry *model.RewardLogEntry) error
	IncrementWallet(ctx context.Context, userID int64, field model.WalletField, amount decimal.Decimal, at time.Time) error
}

// TrackerStore is everything one tracker step touches.
type TrackerStore interface {
	LedgerReader
	ProgressStore
	RewardStore
}

// PassStore is bound to the single transaction of a pass.
type PassStore interface {
	TrackerStore
	ListUsers(ctx context.Context) ([]model.User, error)
	ListActiveDefinitions(ctx context.Context, milestoneType model.MilestoneType) ([]model.MilestoneDefinition, error)
	ListOpenProgress(ctx context.Context) ([]model.ProgressRecord, error)
	InsertRun(ctx context.Context, run *model.MilestoneRun) error
}

// PassTransactor runs fn inside one snapshot transaction. fn returning an
// error rolls back every write made through store.
type PassTransactor interface {
	InPassTransaction(ctx context.Context, fn func(store PassStore) error) error
}

type PassRunner interface {
	RunPass(ctx context.Context) (*model.MilestoneRun, error)
}

type MilestoneQueryServiceI interface {
	GetUserProgress(ctx context.Context, userID int64) ([]model.ProgressRecord, error)
	GetUserRewards(ctx context.Context, userID int64) ([]model.RewardLogEntry, error)
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	GetLatestRun(ctx context.Context) (*model.MilestoneRun, error)
}

type MilestoneQueryRepository interface {
	ListProgressByUser(ctx context.Context, userID int64) ([]model.ProgressRecord, error)
	ListRewardLogsByUser(ctx context.Context, userID int64) ([]model.RewardLogEntry, error)
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	GetLatestRun(ctx context.Context) (*model.MilestoneRun, error)
}
