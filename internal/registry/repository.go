package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists hook bindings.
type Repository interface {
	// Get returns the binding for key, or a zero binding with Defined=false
	// when the key was never registered.
	Get(ctx context.Context, key BindingKey) (HookBinding, error)
	Insert(ctx context.Context, binding HookBinding) error
	Delete(ctx context.Context, key BindingKey) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the postgres-backed binding store.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, key BindingKey) (HookBinding, error) {
	var before, after []byte
	err := r.db.QueryRow(ctx, `SELECT before_hook, after_hook FROM hook_bindings
WHERE operator=$1 AND target=$2 AND operation=$3 AND selector=$4`,
		key.Operator.Bytes(), key.Target.Bytes(), int16(key.Operation), key.Selector[:]).
		Scan(&before, &after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HookBinding{BindingKey: key}, nil
		}
		return HookBinding{}, err
	}
	binding := HookBinding{BindingKey: key, Defined: true}
	copy(binding.Before[:], before)
	copy(binding.After[:], after)
	return binding, nil
}

func (r *repository) Insert(ctx context.Context, binding HookBinding) error {
	_, err := r.db.Exec(ctx, `INSERT INTO hook_bindings (operator, target, operation, selector, before_hook, after_hook)
VALUES ($1, $2, $3, $4, $5, $6)`,
		binding.Operator.Bytes(), binding.Target.Bytes(), int16(binding.Operation), binding.Selector[:],
		binding.Before.Bytes(), binding.After.Bytes())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyDefined
	}
	return err
}

func (r *repository) Delete(ctx context.Context, key BindingKey) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM hook_bindings
WHERE operator=$1 AND target=$2 AND operation=$3 AND selector=$4`,
		key.Operator.Bytes(), key.Target.Bytes(), int16(key.Operation), key.Selector[:])
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDefined
	}
	return nil
}
