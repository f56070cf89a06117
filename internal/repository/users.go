package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

type User struct {
	ID       int64          `db:"id"`
	ParentID *int64         `db:"parent_id"`
	Roles    pq.StringArray `db:"roles"`
	JoinedAt time.Time      `db:"joined_at"`
}

type franchise struct {
	ID      int64  `db:"id"`
	AdminID int64  `db:"admin_id"`
	Name    string `db:"name"`
}

// ListUsers returns the user directory ordered by id.
func (t *Tx) ListUsers(ctx context.Context) ([]model.User, error) {
	query, args, err := squirrel.
		Select("id", "parent_id", "roles", "joined_at").
		From("users").
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build users query: %w", err)
	}

	var rows []User
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]model.User, len(rows))
	for i, u := range rows {
		users[i] = model.User{
			ID:       u.ID,
			ParentID: u.ParentID,
			Roles:    []string(u.Roles),
			JoinedAt: u.JoinedAt.UTC(),
		}
	}

	return users, nil
}

func (t *Tx) GetFranchiseByAdmin(ctx context.Context, adminID int64) (*model.Franchise, error) {
	query, args, err := squirrel.
		Select("id", "admin_id", "name").
		From("franchises").
		Where(squirrel.Eq{"admin_id": adminID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var f franchise
	err = t.tx.GetContext(ctx, &f, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get franchise: %w", err)
	}

	return &model.Franchise{
		ID:      f.ID,
		AdminID: f.AdminID,
		Name:    f.Name,
	}, nil
}

// ListFranchiseMembers returns the member roster of a franchise ordered by user id.
func (t *Tx) ListFranchiseMembers(ctx context.Context, franchiseID int64) ([]int64, error) {
	query, args, err := squirrel.
		Select("user_id").
		From("franchise_members").
		Where(squirrel.Eq{"franchise_id": franchiseID}).
		OrderBy("user_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var members []int64
	if err := t.tx.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list franchise members: %w", err)
	}

	return members, nil
}
