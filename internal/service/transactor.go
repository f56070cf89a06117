package service

import (
	"context"

	"UD_milestone_rewards/internal/repository"
)

type RepositoryTransactor struct {
	repo *repository.Repository
}

func NewRepositoryTransactor(repo *repository.Repository) *RepositoryTransactor {
	return &RepositoryTransactor{repo: repo}
}

func (t *RepositoryTransactor) InPassTransaction(ctx context.Context, fn func(store PassStore) error) error {
	return t.repo.SnapshotTransaction(ctx, func(tx *repository.Tx) error {
		return fn(tx)
	})
}
