package assets

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Get(ctx context.Context, asset common.Address) (Policy, error)
	Upsert(ctx context.Context, policy Policy) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, asset common.Address) (Policy, error) {
	policy := Policy{Asset: asset}
	var minDeposit, minWithdrawal string
	err := r.db.QueryRow(ctx, `SELECT enabled, can_deposit, can_withdraw, permissioned, min_nominal_deposit, min_nominal_withdrawal
FROM asset_policies WHERE asset = $1`, asset.Hex()).
		Scan(&policy.Enabled, &policy.CanDeposit, &policy.CanWithdraw, &policy.Permissioned, &minDeposit, &minWithdrawal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, ErrAssetNotFound
		}
		return Policy{}, fmt.Errorf("assets: get: %w", err)
	}
	policy.MinNominalDeposit, _ = new(big.Int).SetString(minDeposit, 10)
	policy.MinNominalWithdrawal, _ = new(big.Int).SetString(minWithdrawal, 10)
	return policy, nil
}

func (r *repository) Upsert(ctx context.Context, policy Policy) error {
	_, err := r.db.Exec(ctx, `INSERT INTO asset_policies (asset, enabled, can_deposit, can_withdraw, permissioned, min_nominal_deposit, min_nominal_withdrawal)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (asset) DO UPDATE SET
	enabled = EXCLUDED.enabled,
	can_deposit = EXCLUDED.can_deposit,
	can_withdraw = EXCLUDED.can_withdraw,
	permissioned = EXCLUDED.permissioned,
	min_nominal_deposit = EXCLUDED.min_nominal_deposit,
	min_nominal_withdrawal = EXCLUDED.min_nominal_withdrawal,
	updated_at = NOW()`,
		policy.Asset.Hex(), policy.Enabled, policy.CanDeposit, policy.CanWithdraw, policy.Permissioned,
		policy.MinNominalDeposit.String(), policy.MinNominalWithdrawal.String())
	if err != nil {
		return fmt.Errorf("assets: upsert: %w", err)
	}
	return nil
}
