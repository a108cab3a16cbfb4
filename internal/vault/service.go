package vault

import (
	"context"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/assets"
	"github.com/vaultgate-labs/vaultgate/internal/epochs"
	"github.com/vaultgate-labs/vaultgate/internal/observability"
	"github.com/vaultgate-labs/vaultgate/internal/oracle"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// LedgerRepository is the persistence surface the service needs. *Repository
// satisfies it; tests substitute an in-memory fake.
type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, addr common.Address) (Account, error)
	Supply(ctx context.Context) (*big.Int, error)
	SumBalances(ctx context.Context) (*big.Int, error)
}

// AssetPolicyPort resolves per-asset deposit/withdraw policy.
type AssetPolicyPort interface {
	Get(ctx context.Context, asset common.Address) (assets.Policy, error)
}

// EpochPort resolves the fee epochs the ledger charges against.
type EpochPort interface {
	Active(ctx context.Context) (epochs.Epoch, error)
	Get(ctx context.Context, id uint64) (epochs.Epoch, error)
}

// AuditPort records admin and ledger mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig wires the service's collaborators and deployment constants.
type ServiceConfig struct {
	Repo           LedgerRepository
	Assets         AssetPolicyPort
	Epochs         EpochPort
	Oracle         oracle.Oracle
	Executor       safe.Executor
	Audit          AuditPort
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	Fund           common.Address
	FeeRecipient   common.Address
	FeeRateBps     uint32
	DecimalsOffset uint8
	ChainID        *big.Int
}

// Service is the share-accounting engine: account lifecycle, signed
// deposit/withdraw intents, conversion previews and epoch performance fees.
type Service struct {
	repo         LedgerRepository
	assets       AssetPolicyPort
	epochs       EpochPort
	oracle       oracle.Oracle
	executor     safe.Executor
	audit        AuditPort
	metrics      *observability.Metrics
	logger       *slog.Logger
	fund         common.Address
	feeRecipient common.Address
	feeRateBps   uint32
	offset       uint8
	domain       common.Hash
	now          func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:         cfg.Repo,
		assets:       cfg.Assets,
		epochs:       cfg.Epochs,
		oracle:       cfg.Oracle,
		executor:     cfg.Executor,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		fund:         cfg.Fund,
		feeRecipient: cfg.FeeRecipient,
		feeRateBps:   cfg.FeeRateBps,
		offset:       cfg.DecimalsOffset,
		domain:       DomainSeparator(cfg.ChainID, cfg.Fund),
		now:          time.Now,
	}
}

// DomainSeparator exposes the digest domain so clients can sign intents.
func (s *Service) DomainSeparator() common.Hash {
	return s.domain
}

// OpenAccount activates a new account. Fund-only, and an epoch must already
// be running so the fee pointer has somewhere to start.
func (s *Service) OpenAccount(ctx context.Context, caller, user common.Address, role Role) error {
	if caller != s.fund {
		return ErrOnlyFund
	}
	epoch, err := s.epochs.Active(ctx)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, user)
		if err != nil {
			return err
		}
		if account.Status != StatusNull {
			return ErrAccountExists
		}
		return tx.InsertAccount(ctx, Account{
			Address:      user,
			Role:         role,
			Status:       StatusActive,
			DepositValue: new(big.Int),
			CurrentEpoch: epoch.ID,
		})
	})
	if err != nil {
		return err
	}
	s.record(ctx, caller, "vault.open_account", user.Hex(), map[string]any{"role": uint8(role)})
	return nil
}

// PauseAccount moves an active account to paused.
func (s *Service) PauseAccount(ctx context.Context, caller, user common.Address) error {
	return s.setStatus(ctx, caller, user, StatusActive, StatusPaused, "vault.pause_account")
}

// UnpauseAccount moves a paused account back to active.
func (s *Service) UnpauseAccount(ctx context.Context, caller, user common.Address) error {
	return s.setStatus(ctx, caller, user, StatusPaused, StatusActive, "vault.unpause_account")
}

func (s *Service) setStatus(ctx context.Context, caller, user common.Address, from, to Status, action string) error {
	if caller != s.fund {
		return ErrOnlyFund
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, user)
		if err != nil {
			return err
		}
		if account.Status == StatusNull {
			return ErrAccountNull
		}
		if account.Status != from {
			return ErrAccountNotActive
		}
		account.Status = to
		return tx.UpdateAccount(ctx, account)
	})
	if err != nil {
		return err
	}
	s.record(ctx, caller, action, user.Hex(), nil)
	return nil
}

// Deposit settles a signed deposit intent: mints shares against the fresh
// valuation, rounding the mint down so the fund never over-issues.
func (s *Service) Deposit(ctx context.Context, intent Intent) (*big.Int, error) {
	intent.Kind = IntentDeposit
	minted := new(big.Int)
	err := s.settleIntent(ctx, intent, func(ctx context.Context, tx TxRepository, account *Account, policy assets.Policy, val valuation) error {
		value := nominalValue(intent.Amount, val.price, val.decimals)
		if value.Cmp(policy.MinNominalDeposit) < 0 {
			return ErrBelowMinimum
		}
		supply, err := tx.Supply(ctx)
		if err != nil {
			return err
		}
		shares := sharesForValue(value, supply, val.tvl, s.offset, roundDown)
		if intent.Limit != nil && shares.Cmp(intent.Limit) < 0 {
			return ErrSlippage
		}
		balance, err := tx.Balance(ctx, intent.User)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, intent.User, new(big.Int).Add(balance, shares)); err != nil {
			return err
		}
		if err := tx.SetSupply(ctx, new(big.Int).Add(supply, shares)); err != nil {
			return err
		}
		account.DepositValue = new(big.Int).Add(account.DepositValue, value)
		minted.Set(shares)
		// Pull the asset leg in through the module; a failed transfer
		// unwinds the whole ledger transaction.
		return s.settleTransfer(ctx, safe.ERC20TransferFromCall(intent.Asset, intent.User, s.fund, intent.Amount))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ShareOperation("deposit")
	s.record(ctx, intent.User, "vault.deposit", intent.Asset.Hex(), map[string]any{
		"amount": intent.Amount.String(),
		"shares": minted.String(),
	})
	return minted, nil
}

// Withdraw settles a signed withdraw intent: burns shares against the fresh
// valuation, rounding the burn up so the fund never under-collects.
func (s *Service) Withdraw(ctx context.Context, intent Intent) (*big.Int, error) {
	intent.Kind = IntentWithdraw
	burned := new(big.Int)
	err := s.settleIntent(ctx, intent, func(ctx context.Context, tx TxRepository, account *Account, policy assets.Policy, val valuation) error {
		value := nominalValue(intent.Amount, val.price, val.decimals)
		if value.Cmp(policy.MinNominalWithdrawal) < 0 {
			return ErrBelowMinimum
		}
		supply, err := tx.Supply(ctx)
		if err != nil {
			return err
		}
		shares := sharesForValue(value, supply, val.tvl, s.offset, roundUp)
		if intent.Limit != nil && shares.Cmp(intent.Limit) > 0 {
			return ErrSlippage
		}
		balance, err := tx.Balance(ctx, intent.User)
		if err != nil {
			return err
		}
		if balance.Cmp(shares) < 0 {
			return ErrInsufficient
		}
		remaining := new(big.Int).Sub(balance, shares)
		if err := tx.SetBalance(ctx, intent.User, remaining); err != nil {
			return err
		}
		if err := tx.SetSupply(ctx, new(big.Int).Sub(supply, shares)); err != nil {
			return err
		}
		// Cost basis shrinks pro rata with the burned shares.
		account.DepositValue = mulDiv(account.DepositValue, remaining, balance, roundDown)
		burned.Set(shares)
		return s.settleTransfer(ctx, safe.ERC20TransferCall(intent.Asset, intent.User, intent.Amount))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ShareOperation("withdraw")
	s.record(ctx, intent.User, "vault.withdraw", intent.Asset.Hex(), map[string]any{
		"amount": intent.Amount.String(),
		"shares": burned.String(),
	})
	return burned, nil
}

// settleIntent runs the shared validation pipeline in its fixed order:
// signature, exact nonce, deadline, amount, account status, asset policy.
// Only then does the kind-specific settlement run; any failure rolls the
// whole transaction back, nonce included.
func (s *Service) settleIntent(ctx context.Context, intent Intent, settle func(context.Context, TxRepository, *Account, assets.Policy, valuation) error) error {
	signer, err := intent.RecoverSigner(s.domain)
	if err != nil {
		return err
	}
	if signer != intent.User {
		return ErrBadSignature
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, intent.User)
		if err != nil {
			return err
		}
		if intent.Nonce != account.Nonce {
			return ErrBadNonce
		}
		account.Nonce++
		if s.now().After(intent.Deadline) {
			return ErrDeadlineExpired
		}
		if bigOrZero(intent.Amount).Sign() <= 0 {
			return ErrZeroAmount
		}
		switch account.Status {
		case StatusNull:
			return ErrAccountNull
		case StatusActive:
		default:
			return ErrAccountNotActive
		}
		policy, err := s.assets.Get(ctx, intent.Asset)
		if err != nil {
			return err
		}
		switch intent.Kind {
		case IntentWithdraw:
			if !policy.WithdrawAllowed() {
				return ErrWithdrawalsDisabled
			}
		default:
			if !policy.DepositAllowed() {
				return ErrDepositsDisabled
			}
		}
		if policy.Permissioned && account.Role != RoleSuperUser {
			return ErrPermissioned
		}
		val, err := s.freshValuation(ctx, intent.Asset)
		if err != nil {
			return err
		}
		if err := settle(ctx, tx, &account, policy, val); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, account)
	})
}

// CollectEpochFees charges the performance fee for one ended epoch across the
// supplied users. Fees dilute: fee shares are minted to the fee recipient.
// Each charged account's cost basis resets to its post-dilution claim and its
// epoch pointer advances, so the same gain is never charged twice.
func (s *Service) CollectEpochFees(ctx context.Context, caller common.Address, epochID uint64, users []common.Address) (*big.Int, error) {
	if caller != s.feeRecipient {
		return nil, ErrOnlyFeeRecipient
	}
	epoch, err := s.epochs.Get(ctx, epochID)
	if err != nil {
		return nil, err
	}
	if !epoch.Ended(s.now()) {
		return nil, ErrEpochNotEnded
	}
	tvl, _, err := s.oracle.Valuation(ctx)
	if err != nil {
		return nil, err
	}
	decimals, err := s.oracle.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	totalFee := new(big.Int)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supply, err := tx.Supply(ctx)
		if err != nil {
			return err
		}
		expected := new(big.Int).Set(supply)
		for _, user := range users {
			account, err := tx.GetAccountForUpdate(ctx, user)
			if err != nil {
				return err
			}
			if account.Status == StatusNull || account.CurrentEpoch > epochID {
				continue
			}
			balance, err := tx.Balance(ctx, user)
			if err != nil {
				return err
			}
			balanceValue := valueForShares(balance, supply, tvl, s.offset, roundDown)
			fee := performanceFee(balanceValue, account.DepositValue, s.feeRateBps, decimals)
			if fee.Sign() > 0 {
				feeShares := sharesForValue(fee, supply, tvl, s.offset, roundDown)
				feeBalance, err := tx.Balance(ctx, s.feeRecipient)
				if err != nil {
					return err
				}
				if err := tx.SetBalance(ctx, s.feeRecipient, new(big.Int).Add(feeBalance, feeShares)); err != nil {
					return err
				}
				supply = new(big.Int).Add(supply, feeShares)
				if err := tx.SetSupply(ctx, supply); err != nil {
					return err
				}
				expected.Add(expected, feeShares)
				totalFee.Add(totalFee, fee)
				// Reset the cost basis to the post-dilution claim only
				// when a fee was actually charged: a loss epoch must not
				// write the basis down, or the recovery back to it would
				// be billed as a gain.
				account.DepositValue = valueForShares(balance, supply, tvl, s.offset, roundDown)
			}
			account.CurrentEpoch = epochID + 1
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return err
			}
		}
		final, err := tx.Supply(ctx)
		if err != nil {
			return err
		}
		if final.Cmp(expected) != 0 {
			return ErrSupplyInvariant
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.FeeCollectionCompleted()
	s.record(ctx, caller, "vault.collect_fees", strconv.FormatUint(epochID, 10), map[string]any{
		"users":    len(users),
		"feeValue": totalFee.String(),
	})
	return totalFee, nil
}

// WithdrawFee burns fee-recipient shares in exchange for amount of asset.
func (s *Service) WithdrawFee(ctx context.Context, caller, asset common.Address, amount, maxSharesIn *big.Int) (*big.Int, error) {
	if caller != s.feeRecipient {
		return nil, ErrOnlyFeeRecipient
	}
	if bigOrZero(amount).Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	val, err := s.freshValuation(ctx, asset)
	if err != nil {
		return nil, err
	}
	burned := new(big.Int)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supply, err := tx.Supply(ctx)
		if err != nil {
			return err
		}
		value := nominalValue(amount, val.price, val.decimals)
		shares := sharesForValue(value, supply, val.tvl, s.offset, roundUp)
		if maxSharesIn != nil && maxSharesIn.Sign() > 0 && shares.Cmp(maxSharesIn) > 0 {
			return ErrSlippage
		}
		balance, err := tx.Balance(ctx, s.feeRecipient)
		if err != nil {
			return err
		}
		if balance.Cmp(shares) < 0 {
			return ErrInsufficient
		}
		if err := tx.SetBalance(ctx, s.feeRecipient, new(big.Int).Sub(balance, shares)); err != nil {
			return err
		}
		if err := tx.SetSupply(ctx, new(big.Int).Sub(supply, shares)); err != nil {
			return err
		}
		burned.Set(shares)
		return s.settleTransfer(ctx, safe.ERC20TransferCall(asset, s.feeRecipient, amount))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ShareOperation("fee_withdraw")
	s.record(ctx, caller, "vault.withdraw_fee", asset.Hex(), map[string]any{
		"amount": amount.String(),
		"shares": burned.String(),
	})
	return burned, nil
}

// ConvertToShares previews how many shares value buys at the live ratio.
func (s *Service) ConvertToShares(ctx context.Context, value *big.Int) (*big.Int, error) {
	tvl, supply, err := s.ratio(ctx)
	if err != nil {
		return nil, err
	}
	return sharesForValue(value, supply, tvl, s.offset, roundDown), nil
}

// ConvertToAssets previews the value of shares at the live ratio.
func (s *Service) ConvertToAssets(ctx context.Context, shares *big.Int) (*big.Int, error) {
	tvl, supply, err := s.ratio(ctx)
	if err != nil {
		return nil, err
	}
	return valueForShares(shares, supply, tvl, s.offset, roundDown), nil
}

// VerifySupply asserts the minted supply equals the sum of balances.
func (s *Service) VerifySupply(ctx context.Context) error {
	supply, err := s.repo.Supply(ctx)
	if err != nil {
		return err
	}
	sum, err := s.repo.SumBalances(ctx)
	if err != nil {
		return err
	}
	if supply.Cmp(sum) != 0 {
		s.logger.Error("supply invariant broken",
			slog.String("supply", supply.String()),
			slog.String("balances", sum.String()))
		return ErrSupplyInvariant
	}
	return nil
}

// Account returns the ledger view of one address.
func (s *Service) Account(ctx context.Context, addr common.Address) (Account, error) {
	return s.repo.GetAccount(ctx, addr)
}

// settleTransfer runs one settlement leg through the module. The ledger write
// and the asset movement commit or fail together.
func (s *Service) settleTransfer(ctx context.Context, call safe.Call) error {
	if _, err := s.executor.Exec(ctx, call); err != nil {
		s.logger.Warn("asset settlement", slog.Any("error", err))
		return ErrTransferFailed
	}
	return nil
}

type valuation struct {
	tvl      *big.Int
	price    *big.Int
	decimals uint8
}

// freshValuation pulls TVL, oracle precision and the asset price for this
// operation. Nothing here is cached between operations.
func (s *Service) freshValuation(ctx context.Context, asset common.Address) (valuation, error) {
	tvl, _, err := s.oracle.Valuation(ctx)
	if err != nil {
		return valuation{}, err
	}
	decimals, err := s.oracle.Decimals(ctx)
	if err != nil {
		return valuation{}, err
	}
	price, err := s.oracle.AssetPrice(ctx, asset)
	if err != nil {
		return valuation{}, err
	}
	return valuation{tvl: tvl, price: price, decimals: decimals}, nil
}

func (s *Service) ratio(ctx context.Context) (tvl, supply *big.Int, err error) {
	tvl, _, err = s.oracle.Valuation(ctx)
	if err != nil {
		return nil, nil, err
	}
	supply, err = s.repo.Supply(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tvl, supply, nil
}

// nominalValue prices amount of an asset in the oracle's base unit. Prices
// are quoted per asset base unit at the oracle's precision.
func nominalValue(amount, price *big.Int, decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return mulDiv(amount, price, scale, roundDown)
}

func (s *Service) record(ctx context.Context, actor common.Address, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor.Hex(),
		Action:   action,
		Entity:   "vault",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
