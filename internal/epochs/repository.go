package epochs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Latest(ctx context.Context) (Epoch, error)
	Get(ctx context.Context, id uint64) (Epoch, error)
	Insert(ctx context.Context, epoch Epoch) (Epoch, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Latest(ctx context.Context) (Epoch, error) {
	var epoch Epoch
	err := r.db.QueryRow(ctx, `SELECT id, ends_at, created_at FROM epochs ORDER BY id DESC LIMIT 1`).
		Scan(&epoch.ID, &epoch.EndsAt, &epoch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Epoch{}, ErrNoActiveEpoch
		}
		return Epoch{}, fmt.Errorf("epochs: latest: %w", err)
	}
	return epoch, nil
}

func (r *repository) Get(ctx context.Context, id uint64) (Epoch, error) {
	var epoch Epoch
	err := r.db.QueryRow(ctx, `SELECT id, ends_at, created_at FROM epochs WHERE id = $1`, id).
		Scan(&epoch.ID, &epoch.EndsAt, &epoch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Epoch{}, ErrNoActiveEpoch
		}
		return Epoch{}, fmt.Errorf("epochs: get: %w", err)
	}
	return epoch, nil
}

func (r *repository) Insert(ctx context.Context, epoch Epoch) (Epoch, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO epochs (ends_at) VALUES ($1) RETURNING id, ends_at, created_at`, epoch.EndsAt).
		Scan(&epoch.ID, &epoch.EndsAt, &epoch.CreatedAt)
	if err != nil {
		return Epoch{}, fmt.Errorf("epochs: insert: %w", err)
	}
	return epoch, nil
}
