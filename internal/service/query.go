package service

import (
	"context"
	"errors"
	"fmt"

	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/internal/repository"

	"github.com/shopspring/decimal"
)

// MilestoneQueryService serves the read side: progress, credits, wallets and
// pass history. It never writes.
type MilestoneQueryService struct {
	repo MilestoneQueryRepository
}

func NewMilestoneQueryService(repo MilestoneQueryRepository) *MilestoneQueryService {
	return &MilestoneQueryService{repo: repo}
}

func (s *MilestoneQueryService) GetUserProgress(ctx context.Context, userID int64) ([]model.ProgressRecord, error) {
	records, err := s.repo.ListProgressByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	return records, nil
}

func (s *MilestoneQueryService) GetUserRewards(ctx context.Context, userID int64) ([]model.RewardLogEntry, error) {
	entries, err := s.repo.ListRewardLogsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return entries, nil
}

// GetWallet returns a zero wallet for users that were never credited.
func (s *MilestoneQueryService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	wallet, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.Wallet{
				UserID:             userID,
				PurchaseWallet:     decimal.Zero,
				WithdrawableWallet: decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return wallet, nil
}

func (s *MilestoneQueryService) GetLatestRun(ctx context.Context) (*model.MilestoneRun, error) {
	run, err := s.repo.GetLatestRun(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}
