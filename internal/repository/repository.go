package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"UD_milestone_rewards/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrStaleProgress is returned when a progress record is no longer open
	// (or no longer satisfies the guard) at write time.
	ErrStaleProgress = errors.New("progress record is not open")

	ErrDuplicateReward = errors.New("reward already logged for progress record")
)

type Repository struct {
	db *sqlx.DB
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SnapshotTransaction runs t at REPEATABLE READ, which PostgreSQL implements as
// snapshot isolation. Concurrent writes made by the live application after the
// first statement are invisible to t.
func (r *Repository) SnapshotTransaction(ctx context.Context, t func(tx *Tx) error) error {
	return r.transaction(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead}, func(tx *sqlx.Tx) error {
		return t(&Tx{tx: tx})
	})
}

func (r *Repository) transaction(ctx context.Context, opts *sql.TxOptions, t func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	err = t(tx)
	if err != nil {
		txErr := tx.Rollback()
		if txErr != nil {
			return errors.Wrapf(err, "rollback error: %v", txErr)
		}
		return err
	}
	return tx.Commit()
}

// Tx exposes the queries of a milestone pass bound to one transaction.
type Tx struct {
	tx *sqlx.Tx
}

type Config struct {
	Host           string        `json:"host"`
	Port           string        `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	Name           string        `json:"name"`
	MaxOpenConns   int           `json:"maxOpenConns"`
	ConnectRetries uint64        `json:"connectRetries"`
	ConnectTimeout time.Duration `json:"connectTimeout"`
}

func New(cfg Config) (*Repository, error) {
	url := cfg.GetDatabaseURL()
	db, err := sqlx.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retries := cfg.ConnectRetries
	if retries == 0 {
		retries = 5
	}

	err = backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.Logger().Warn("database ping failed, retrying", zap.Error(err))
			return err
		}
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Logger().Info("Connected to database successfully")

	return &Repository{
		db: db,
	}, nil
}

// NewWithDB wraps an already opened connection pool.
func NewWithDB(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}
