package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultgate-labs/vaultgate/internal/platform/db"
)

// TxRepository exposes the ledger operations used inside one transaction.
// Balances and supply are NUMERIC(78,0) rows scanned through strings so the
// full uint256 range survives the round trip.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, addr common.Address) (Account, error)
	InsertAccount(ctx context.Context, account Account) error
	UpdateAccount(ctx context.Context, account Account) error
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	SetBalance(ctx context.Context, addr common.Address, shares *big.Int) error
	Supply(ctx context.Context) (*big.Int, error)
	SetSupply(ctx context.Context, supply *big.Int) error
}

// Repository persists the share ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction; any error rolls
// the whole ledger mutation back.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// GetAccount reads an account outside a transaction.
func (r *Repository) GetAccount(ctx context.Context, addr common.Address) (Account, error) {
	return scanAccount(ctx, r.pool, addr, "")
}

// Supply reads the current total share supply.
func (r *Repository) Supply(ctx context.Context) (*big.Int, error) {
	return scanNumeric(ctx, r.pool, `SELECT total FROM share_supply WHERE id = 1`)
}

// SumBalances totals every account's shares; used by the integrity job.
func (r *Repository) SumBalances(ctx context.Context) (*big.Int, error) {
	return scanNumeric(ctx, r.pool, `SELECT COALESCE(SUM(shares), 0) FROM share_balances`)
}

// pgx.Tx and pgxpool.Pool both satisfy rowQuerier, so the scan helpers work
// inside and outside a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanAccount(ctx context.Context, q rowQuerier, addr common.Address, suffix string) (Account, error) {
	account := Account{Address: addr}
	var role, status uint8
	var depositValue string
	err := q.QueryRow(ctx, `SELECT role, status, nonce, deposit_value, current_epoch FROM vault_accounts WHERE address = $1`+suffix, addr.Hex()).
		Scan(&role, &status, &account.Nonce, &depositValue, &account.CurrentEpoch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{Address: addr, Status: StatusNull, DepositValue: new(big.Int)}, nil
		}
		return Account{}, fmt.Errorf("vault: get account: %w", err)
	}
	account.Role = Role(role)
	account.Status = Status(status)
	account.DepositValue, _ = new(big.Int).SetString(depositValue, 10)
	return account, nil
}

func scanNumeric(ctx context.Context, q rowQuerier, sql string, args ...any) (*big.Int, error) {
	var raw string
	if err := q.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("vault: scan numeric: %w", err)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("vault: malformed numeric %q", raw)
	}
	return value, nil
}

type txRepo struct {
	q pgx.Tx
}

func (r *txRepo) GetAccountForUpdate(ctx context.Context, addr common.Address) (Account, error) {
	return scanAccount(ctx, r.q, addr, ` FOR UPDATE`)
}

func (r *txRepo) InsertAccount(ctx context.Context, account Account) error {
	_, err := r.q.Exec(ctx, `INSERT INTO vault_accounts (address, role, status, nonce, deposit_value, current_epoch)
VALUES ($1, $2, $3, $4, $5, $6)`,
		account.Address.Hex(), uint8(account.Role), uint8(account.Status), account.Nonce,
		account.DepositValue.String(), account.CurrentEpoch)
	if err != nil {
		return fmt.Errorf("vault: insert account: %w", err)
	}
	return nil
}

func (r *txRepo) UpdateAccount(ctx context.Context, account Account) error {
	tag, err := r.q.Exec(ctx, `UPDATE vault_accounts SET role = $2, status = $3, nonce = $4, deposit_value = $5, current_epoch = $6, updated_at = NOW()
WHERE address = $1`,
		account.Address.Hex(), uint8(account.Role), uint8(account.Status), account.Nonce,
		account.DepositValue.String(), account.CurrentEpoch)
	if err != nil {
		return fmt.Errorf("vault: update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNull
	}
	return nil
}

func (r *txRepo) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return scanNumeric(ctx, r.q, `SELECT shares FROM share_balances WHERE address = $1`, addr.Hex())
}

func (r *txRepo) SetBalance(ctx context.Context, addr common.Address, shares *big.Int) error {
	_, err := r.q.Exec(ctx, `INSERT INTO share_balances (address, shares) VALUES ($1, $2)
ON CONFLICT (address) DO UPDATE SET shares = EXCLUDED.shares, updated_at = NOW()`, addr.Hex(), shares.String())
	if err != nil {
		return fmt.Errorf("vault: set balance: %w", err)
	}
	return nil
}

func (r *txRepo) Supply(ctx context.Context) (*big.Int, error) {
	return scanNumeric(ctx, r.q, `SELECT total FROM share_supply WHERE id = 1`)
}

func (r *txRepo) SetSupply(ctx context.Context, supply *big.Int) error {
	_, err := r.q.Exec(ctx, `INSERT INTO share_supply (id, total) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET total = EXCLUDED.total, updated_at = NOW()`, supply.String())
	if err != nil {
		return fmt.Errorf("vault: set supply: %w", err)
	}
	return nil
}
