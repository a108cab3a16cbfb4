package vault

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate-labs/vaultgate/internal/assets"
	"github.com/vaultgate-labs/vaultgate/internal/epochs"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
)

var (
	fund         = common.HexToAddress("0x1000000000000000000000000000000000000001")
	feeRecipient = common.HexToAddress("0x2000000000000000000000000000000000000002")
	usdc         = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

// memLedger is an in-memory LedgerRepository with commit/rollback semantics:
// the transactional closure runs on a copy that only replaces the live state
// when it returns nil.
type memLedger struct {
	accounts map[common.Address]Account
	balances map[common.Address]*big.Int
	supply   *big.Int
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts: make(map[common.Address]Account),
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

func (l *memLedger) clone() *memLedger {
	next := newMemLedger()
	for addr, account := range l.accounts {
		account.DepositValue = new(big.Int).Set(account.DepositValue)
		next.accounts[addr] = account
	}
	for addr, shares := range l.balances {
		next.balances[addr] = new(big.Int).Set(shares)
	}
	next.supply = new(big.Int).Set(l.supply)
	return next
}

func (l *memLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := l.clone()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	l.accounts = tx.accounts
	l.balances = tx.balances
	l.supply = tx.supply
	return nil
}

func (l *memLedger) GetAccount(_ context.Context, addr common.Address) (Account, error) {
	return l.account(addr), nil
}

func (l *memLedger) account(addr common.Address) Account {
	account, ok := l.accounts[addr]
	if !ok {
		return Account{Address: addr, Status: StatusNull, DepositValue: new(big.Int)}
	}
	return account
}

func (l *memLedger) Supply(context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.supply), nil
}

func (l *memLedger) SumBalances(context.Context) (*big.Int, error) {
	sum := new(big.Int)
	for _, shares := range l.balances {
		sum.Add(sum, shares)
	}
	return sum, nil
}

func (l *memLedger) GetAccountForUpdate(_ context.Context, addr common.Address) (Account, error) {
	return l.account(addr), nil
}

func (l *memLedger) InsertAccount(_ context.Context, account Account) error {
	l.accounts[account.Address] = account
	return nil
}

func (l *memLedger) UpdateAccount(_ context.Context, account Account) error {
	if _, ok := l.accounts[account.Address]; !ok {
		return ErrAccountNull
	}
	l.accounts[account.Address] = account
	return nil
}

func (l *memLedger) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	shares, ok := l.balances[addr]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(shares), nil
}

func (l *memLedger) SetBalance(_ context.Context, addr common.Address, shares *big.Int) error {
	l.balances[addr] = new(big.Int).Set(shares)
	return nil
}

func (l *memLedger) SetSupply(_ context.Context, supply *big.Int) error {
	l.supply = new(big.Int).Set(supply)
	return nil
}

// stubOracle returns fixed valuation data; tests mutate tvl between
// operations to simulate gains.
type stubOracle struct {
	tvl      *big.Int
	decimals uint8
	price    *big.Int
}

func (o *stubOracle) Valuation(context.Context) (*big.Int, time.Time, error) {
	return new(big.Int).Set(o.tvl), time.Now(), nil
}

func (o *stubOracle) Decimals(context.Context) (uint8, error) { return o.decimals, nil }

func (o *stubOracle) AssetPrice(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(o.price), nil
}

type stubPolicies struct {
	policy assets.Policy
}

func (p *stubPolicies) Get(context.Context, common.Address) (assets.Policy, error) {
	return p.policy, nil
}

// stubExecutor records the settlement calls the ledger routes through the
// module.
type stubExecutor struct {
	calls []safe.Call
	err   error
}

func (e *stubExecutor) Exec(_ context.Context, call safe.Call) (safe.Result, error) {
	if e.err != nil {
		return safe.Result{}, e.err
	}
	e.calls = append(e.calls, call)
	return safe.Result{}, nil
}

func (e *stubExecutor) Snapshot(context.Context) (string, error) { return "", nil }

func (e *stubExecutor) Revert(context.Context, string) error { return nil }

type stubEpochs struct {
	active epochs.Epoch
}

func (e *stubEpochs) Active(context.Context) (epochs.Epoch, error) { return e.active, nil }

func (e *stubEpochs) Get(_ context.Context, id uint64) (epochs.Epoch, error) {
	return epochs.Epoch{ID: id, EndsAt: e.active.EndsAt}, nil
}

type vaultFixture struct {
	svc      *Service
	ledger   *memLedger
	oracle   *stubOracle
	policies *stubPolicies
	epochs   *stubEpochs
	exec     *stubExecutor
	key      *ecdsa.PrivateKey
	user     common.Address
}

func newVaultFixture(t *testing.T, feeRateBps uint32) *vaultFixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &vaultFixture{
		ledger: newMemLedger(),
		oracle: &stubOracle{tvl: new(big.Int), decimals: 0, price: big.NewInt(1)},
		policies: &stubPolicies{policy: assets.Policy{
			Asset:                usdc,
			Enabled:              true,
			CanDeposit:           true,
			CanWithdraw:          true,
			MinNominalDeposit:    new(big.Int),
			MinNominalWithdrawal: new(big.Int),
		}},
		epochs: &stubEpochs{active: epochs.Epoch{ID: 1, EndsAt: time.Now().Add(time.Hour)}},
		exec:   &stubExecutor{},
		key:    key,
		user:   crypto.PubkeyToAddress(key.PublicKey),
	}
	f.svc = NewService(ServiceConfig{
		Repo:         f.ledger,
		Assets:       f.policies,
		Epochs:       f.epochs,
		Oracle:       f.oracle,
		Executor:     f.exec,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Fund:         fund,
		FeeRecipient: feeRecipient,
		FeeRateBps:   feeRateBps,
		ChainID:      big.NewInt(1),
	})
	return f
}

func (f *vaultFixture) intent(t *testing.T, kind IntentKind, amount int64, nonce uint64) Intent {
	t.Helper()
	intent := Intent{
		Kind:     kind,
		User:     f.user,
		Asset:    usdc,
		Amount:   big.NewInt(amount),
		Nonce:    nonce,
		Deadline: time.Now().Add(time.Hour),
	}
	sig, err := crypto.Sign(intent.Digest(f.svc.DomainSeparator()).Bytes(), f.key)
	require.NoError(t, err)
	intent.Signature = sig
	return intent
}

func (f *vaultFixture) open(t *testing.T, role Role) {
	t.Helper()
	require.NoError(t, f.svc.OpenAccount(context.Background(), fund, f.user, role))
}

func TestOpenAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)

	require.ErrorIs(t, f.svc.OpenAccount(ctx, f.user, f.user, RoleUser), ErrOnlyFund)

	f.open(t, RoleUser)
	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, StatusActive, account.Status)
	require.Equal(t, uint64(1), account.CurrentEpoch)

	require.ErrorIs(t, f.svc.OpenAccount(ctx, fund, f.user, RoleUser), ErrAccountExists)

	require.NoError(t, f.svc.PauseAccount(ctx, fund, f.user))
	require.ErrorIs(t, f.svc.PauseAccount(ctx, fund, f.user), ErrAccountNotActive)
	require.NoError(t, f.svc.UnpauseAccount(ctx, fund, f.user))

	require.ErrorIs(t, f.svc.PauseAccount(ctx, fund, common.HexToAddress("0x99")), ErrAccountNull)
}

func TestDepositMintsShares(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)

	minted, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)
	require.Zero(t, minted.Cmp(big.NewInt(1000)))

	supply, err := f.ledger.Supply(ctx)
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(big.NewInt(1000)))

	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, uint64(1), account.Nonce)
	require.Zero(t, account.DepositValue.Cmp(big.NewInt(1000)))

	// The asset leg was pulled into the fund through the module.
	require.Equal(t, []safe.Call{safe.ERC20TransferFromCall(usdc, f.user, fund, big.NewInt(1000))}, f.exec.calls)
}

func TestDepositIntentValidationOrder(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)

	// A mismatched user fails on signature before anything else.
	bad := f.intent(t, IntentDeposit, 1000, 0)
	bad.User = fund
	_, err := f.svc.Deposit(ctx, bad)
	require.ErrorIs(t, err, ErrBadSignature)

	// Nonce replay.
	first := f.intent(t, IntentDeposit, 1000, 0)
	_, err = f.svc.Deposit(ctx, first)
	require.NoError(t, err)
	_, err = f.svc.Deposit(ctx, first)
	require.ErrorIs(t, err, ErrBadNonce)

	// Expired deadline fails and leaves the nonce untouched.
	expired := Intent{User: f.user, Asset: usdc, Amount: big.NewInt(1), Nonce: 1, Deadline: time.Now().Add(-time.Minute)}
	sig, serr := crypto.Sign(expired.Digest(f.svc.DomainSeparator()).Bytes(), f.key)
	require.NoError(t, serr)
	expired.Signature = sig
	_, err = f.svc.Deposit(ctx, expired)
	require.ErrorIs(t, err, ErrDeadlineExpired)
	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, uint64(1), account.Nonce)

	// Zero amount.
	_, err = f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 0, 1))
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestDepositAccountAndPolicyGates(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)

	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.ErrorIs(t, err, ErrAccountNull)

	f.open(t, RoleUser)
	require.NoError(t, f.svc.PauseAccount(ctx, fund, f.user))
	_, err = f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.ErrorIs(t, err, ErrAccountNotActive)
	require.NoError(t, f.svc.UnpauseAccount(ctx, fund, f.user))

	f.policies.policy.Permissioned = true
	_, err = f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.ErrorIs(t, err, ErrPermissioned)
	f.policies.policy.Permissioned = false

	f.policies.policy.CanDeposit = false
	_, err = f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.ErrorIs(t, err, ErrDepositsDisabled)
	f.policies.policy.CanDeposit = true

	f.policies.policy.MinNominalDeposit = big.NewInt(5000)
	_, err = f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.ErrorIs(t, err, ErrBelowMinimum)
	f.policies.policy.MinNominalDeposit = new(big.Int)

	// All gates pass once the policy is restored.
	_, err = f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)
}

func TestDisabledAssetWinsOverPermissioned(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)

	// Policy gates run in order: a disabled permissioned asset reports the
	// disable, not the missing role.
	f.policies.policy.Permissioned = true
	f.policies.policy.CanDeposit = false
	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.ErrorIs(t, err, ErrDepositsDisabled)

	f.policies.policy.CanWithdraw = false
	_, err = f.svc.Withdraw(ctx, f.intent(t, IntentWithdraw, 1000, 0))
	require.ErrorIs(t, err, ErrWithdrawalsDisabled)
}

func TestPermissionedAssetAdmitsSuperUser(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleSuperUser)
	f.policies.policy.Permissioned = true

	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)
}

func TestDepositSlippageLimit(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)

	intent := Intent{
		Kind: IntentDeposit, User: f.user, Asset: usdc,
		Amount: big.NewInt(1000), Nonce: 0,
		Deadline: time.Now().Add(time.Hour),
		Limit:    big.NewInt(1001), // minSharesOut above the achievable mint
	}
	sig, err := crypto.Sign(intent.Digest(f.svc.DomainSeparator()).Bytes(), f.key)
	require.NoError(t, err)
	intent.Signature = sig

	_, err = f.svc.Deposit(ctx, intent)
	require.ErrorIs(t, err, ErrSlippage)
}

func TestWithdrawBurnsAndShrinksCostBasis(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)

	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)
	f.oracle.tvl = big.NewInt(1000)

	// Withdraw 400 of value: burn rounds up against the user.
	burned, err := f.svc.Withdraw(ctx, f.intent(t, IntentWithdraw, 400, 1))
	require.NoError(t, err)
	require.Positive(t, burned.Sign())

	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.True(t, account.DepositValue.Cmp(big.NewInt(1000)) < 0)
	require.Equal(t, uint64(2), account.Nonce)

	balance, err := f.ledger.Balance(ctx, f.user)
	require.NoError(t, err)
	supply, err := f.ledger.Supply(ctx)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(supply))

	// The payout leg went out through the module.
	last := f.exec.calls[len(f.exec.calls)-1]
	require.Equal(t, safe.ERC20TransferCall(usdc, f.user, big.NewInt(400)), last)

	// More value than the balance covers.
	_, err = f.svc.Withdraw(ctx, f.intent(t, IntentWithdraw, 5000, 2))
	require.ErrorIs(t, err, ErrInsufficient)
}

func TestSettlementTransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)
	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)
	f.oracle.tvl = big.NewInt(1000)

	f.exec.err = errors.New("execution reverted")
	_, err = f.svc.Withdraw(ctx, f.intent(t, IntentWithdraw, 400, 1))
	require.ErrorIs(t, err, ErrTransferFailed)

	// Shares, supply and the nonce are all untouched.
	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, uint64(1), account.Nonce)
	balance, err := f.ledger.Balance(ctx, f.user)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(1000)))
	supply, err := f.ledger.Supply(ctx)
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(big.NewInt(1000)))
}

func TestWithdrawSlippageLimit(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)
	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)
	f.oracle.tvl = big.NewInt(1000)

	intent := Intent{
		Kind: IntentWithdraw, User: f.user, Asset: usdc,
		Amount: big.NewInt(400), Nonce: 1,
		Deadline: time.Now().Add(time.Hour),
		Limit:    big.NewInt(1), // maxSharesIn below the required burn
	}
	sig, err := crypto.Sign(intent.Digest(f.svc.DomainSeparator()).Bytes(), f.key)
	require.NoError(t, err)
	intent.Signature = sig

	_, err = f.svc.Withdraw(ctx, intent)
	require.ErrorIs(t, err, ErrSlippage)
}

func TestCollectEpochFees(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 1000) // 10% performance fee
	f.open(t, RoleUser)

	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)

	// The vault doubled; close the epoch.
	f.oracle.tvl = big.NewInt(2001)
	f.epochs.active.EndsAt = time.Now().Add(-time.Minute)

	_, err = f.svc.CollectEpochFees(ctx, f.user, 1, []common.Address{f.user})
	require.ErrorIs(t, err, ErrOnlyFeeRecipient)

	total, err := f.svc.CollectEpochFees(ctx, feeRecipient, 1, []common.Address{f.user})
	require.NoError(t, err)
	// balanceValue 2000 against a 1000 cost basis at 10% is a 100 fee.
	require.Zero(t, total.Cmp(big.NewInt(100)))

	feeShares, err := f.ledger.Balance(ctx, feeRecipient)
	require.NoError(t, err)
	require.Positive(t, feeShares.Sign())

	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, uint64(2), account.CurrentEpoch)
	// Cost basis reset to the post-dilution claim.
	require.True(t, account.DepositValue.Cmp(big.NewInt(1000)) > 0)
	require.True(t, account.DepositValue.Cmp(big.NewInt(2000)) < 0)

	require.NoError(t, f.svc.VerifySupply(ctx))

	// A second pass over the same epoch charges nothing.
	total, err = f.svc.CollectEpochFees(ctx, feeRecipient, 1, []common.Address{f.user})
	require.NoError(t, err)
	require.Zero(t, total.Sign())
}

func TestCollectEpochFeesRequiresEndedEpoch(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 1000)
	f.epochs.active.EndsAt = time.Now().Add(time.Hour)

	_, err := f.svc.CollectEpochFees(ctx, feeRecipient, 1, nil)
	require.ErrorIs(t, err, ErrEpochNotEnded)
}

func TestCollectEpochFeesZeroOnLoss(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 1000)
	f.open(t, RoleUser)

	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)

	// The vault lost value; no fee, the pointer advances, and the cost
	// basis must stay where it was.
	f.oracle.tvl = big.NewInt(500)
	f.epochs.active.EndsAt = time.Now().Add(-time.Minute)

	total, err := f.svc.CollectEpochFees(ctx, feeRecipient, 1, []common.Address{f.user})
	require.NoError(t, err)
	require.Zero(t, total.Sign())

	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, uint64(2), account.CurrentEpoch)
	require.Zero(t, account.DepositValue.Cmp(big.NewInt(1000)))
}

func TestRecoveryToCostBasisIsNotAGain(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 1000)
	f.open(t, RoleUser)

	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)
	f.epochs.active.EndsAt = time.Now().Add(-time.Minute)

	// Epoch 1 closes at a loss.
	f.oracle.tvl = big.NewInt(500)
	total, err := f.svc.CollectEpochFees(ctx, feeRecipient, 1, []common.Address{f.user})
	require.NoError(t, err)
	require.Zero(t, total.Sign())

	// Epoch 2 closes with the vault merely back at the user's basis:
	// still no gain, still no fee.
	f.oracle.tvl = big.NewInt(1000)
	total, err = f.svc.CollectEpochFees(ctx, feeRecipient, 2, []common.Address{f.user})
	require.NoError(t, err)
	require.Zero(t, total.Sign())

	account, err := f.svc.Account(ctx, f.user)
	require.NoError(t, err)
	require.Equal(t, uint64(3), account.CurrentEpoch)
	require.Zero(t, account.DepositValue.Cmp(big.NewInt(1000)))
}

func TestWithdrawFee(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	require.NoError(t, f.ledger.SetBalance(ctx, feeRecipient, big.NewInt(100)))
	require.NoError(t, f.ledger.SetSupply(ctx, big.NewInt(100)))
	f.oracle.tvl = big.NewInt(100)

	_, err := f.svc.WithdrawFee(ctx, f.user, usdc, big.NewInt(10), nil)
	require.ErrorIs(t, err, ErrOnlyFeeRecipient)

	_, err = f.svc.WithdrawFee(ctx, feeRecipient, usdc, new(big.Int), nil)
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.svc.WithdrawFee(ctx, feeRecipient, usdc, big.NewInt(10), big.NewInt(5))
	require.ErrorIs(t, err, ErrSlippage)

	burned, err := f.svc.WithdrawFee(ctx, feeRecipient, usdc, big.NewInt(10), nil)
	require.NoError(t, err)
	require.Zero(t, burned.Cmp(big.NewInt(10)))

	supply, err := f.ledger.Supply(ctx)
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(big.NewInt(90)))
}

func TestConversionPreviews(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	require.NoError(t, f.ledger.SetSupply(ctx, big.NewInt(999)))
	f.oracle.tvl = big.NewInt(1999)

	shares, err := f.svc.ConvertToShares(ctx, big.NewInt(100))
	require.NoError(t, err)
	require.Zero(t, shares.Cmp(big.NewInt(50)))

	value, err := f.svc.ConvertToAssets(ctx, big.NewInt(50))
	require.NoError(t, err)
	require.Zero(t, value.Cmp(big.NewInt(100)))
}

func TestVerifySupply(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, 0)
	f.open(t, RoleUser)
	_, err := f.svc.Deposit(ctx, f.intent(t, IntentDeposit, 1000, 0))
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifySupply(ctx))

	require.NoError(t, f.ledger.SetSupply(ctx, big.NewInt(999)))
	require.ErrorIs(t, f.svc.VerifySupply(ctx), ErrSupplyInvariant)
}
