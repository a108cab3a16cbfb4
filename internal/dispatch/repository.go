package dispatch

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the dispatcher config.
type Repository interface {
	GetConfig(ctx context.Context) (Config, error)
	SetConfig(ctx context.Context, cfg Config) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the postgres-backed config store.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetConfig(ctx context.Context) (Config, error) {
	var cfg Config
	err := r.db.QueryRow(ctx, `SELECT paused, max_gas_priority_bps FROM dispatch_config WHERE id = 1`).
		Scan(&cfg.Paused, &cfg.MaxGasPriorityBps)
	return cfg, err
}

func (r *repository) SetConfig(ctx context.Context, cfg Config) error {
	_, err := r.db.Exec(ctx, `INSERT INTO dispatch_config (id, paused, max_gas_priority_bps) VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET paused = EXCLUDED.paused, max_gas_priority_bps = EXCLUDED.max_gas_priority_bps`,
		cfg.Paused, cfg.MaxGasPriorityBps)
	return err
}
