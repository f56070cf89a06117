package mocks

import (
	"context"

	"UD_milestone_rewards/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockMilestoneQueryRepository struct {
	mock.Mock
}

func (m *MockMilestoneQueryRepository) ListProgressByUser(ctx context.Context, userID int64) ([]model.ProgressRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProgressRecord), args.Error(1)
}

func (m *MockMilestoneQueryRepository) ListRewardLogsByUser(ctx context.Context, userID int64) ([]model.RewardLogEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RewardLogEntry), args.Error(1)
}

func (m *MockMilestoneQueryRepository) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockMilestoneQueryRepository) GetLatestRun(ctx context.Context) (*model.MilestoneRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MilestoneRun), args.Error(1)
}

// MockMilestoneQueryService has the same method set as the repository mock,
// with service semantics.
type MockMilestoneQueryService struct {
	mock.Mock
}

func (m *MockMilestoneQueryService) GetUserProgress(ctx context.Context, userID int64) ([]model.ProgressRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProgressRecord), args.Error(1)
}

func (m *MockMilestoneQueryService) GetUserRewards(ctx context.Context, userID int64) ([]model.RewardLogEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RewardLogEntry), args.Error(1)
}

func (m *MockMilestoneQueryService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockMilestoneQueryService) GetLatestRun(ctx context.Context) (*model.MilestoneRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MilestoneRun), args.Error(1)
}

type MockPassRunner struct {
	mock.Mock
}

func (m *MockPassRunner) RunPass(ctx context.Context) (*model.MilestoneRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MilestoneRun), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

// Acquire hands back ctx itself as the lease context.
func (m *MockLocker) Acquire(ctx context.Context) (context.Context, func(), error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, nil, args.Error(1)
	}
	return ctx, args.Get(0).(func()), args.Error(1)
}
