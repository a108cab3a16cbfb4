package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Role ranks an account for permissioned assets.
type Role uint8

const (
	RoleNone Role = iota
	RoleUser
	RoleSuperUser
)

// Status is the account lifecycle. Accounts start at StatusNull (no row),
// move to Active exactly once, and then toggle Active/Paused. There is no way
// back to Null.
type Status uint8

const (
	StatusNull Status = iota
	StatusActive
	StatusPaused
)

// Account is one depositor's ledger entry. DepositValue is the cost basis in
// the oracle's base unit; CurrentEpoch is the next epoch a performance fee
// may be charged for.
type Account struct {
	Address      common.Address
	Role         Role
	Status       Status
	Nonce        uint64
	DepositValue *big.Int
	CurrentEpoch uint64
}

var (
	ErrOnlyFund         = shared.Authorization("vault: only the fund may administer accounts")
	ErrOnlyFeeRecipient = shared.Authorization("vault: only the fee recipient may act here")
	ErrBadSignature     = shared.Authorization("vault: intent signature does not match user")
	ErrPermissioned     = shared.Policy("vault: asset requires a super user")
	ErrBelowMinimum     = shared.Policy("vault: amount below the asset's nominal minimum")
	ErrAccountExists    = shared.State("vault: account already opened")
	ErrAccountNotActive = shared.State("vault: account is not active")
	ErrAccountNull      = shared.State("vault: account has not been opened")
	ErrEpochNotEnded    = shared.State("vault: epoch has not ended")
	ErrSlippage         = shared.State("vault: conversion moved past the intent limit")
	ErrInsufficient     = shared.State("vault: share balance too low")
	ErrTransferFailed   = shared.State("vault: asset settlement transfer failed")
	ErrBadNonce         = shared.Intent("vault: intent nonce is not the account nonce")
	ErrDeadlineExpired  = shared.Intent("vault: intent deadline has passed")
	ErrZeroAmount       = shared.Intent("vault: amount must be positive")
	ErrSupplyInvariant  = shared.Integrity("vault: share supply does not match balances")
)

var (
	ErrDepositsDisabled    = shared.Policy("vault: asset does not accept deposits")
	ErrWithdrawalsDisabled = shared.Policy("vault: asset does not accept withdrawals")
)
