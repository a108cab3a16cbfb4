package vault

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// IntentKind distinguishes the two signed operations.
type IntentKind uint8

const (
	IntentDeposit IntentKind = iota
	IntentWithdraw
)

// Intent is a user-signed deposit or withdraw order, relayed by anyone.
// Limit is minSharesOut for deposits and maxSharesIn for withdrawals.
type Intent struct {
	Kind       IntentKind
	User       common.Address
	Asset      common.Address
	Amount     *big.Int
	Nonce      uint64
	Deadline   time.Time
	Limit      *big.Int
	RelayerTip *big.Int
	Signature  []byte
}

var (
	depositTypehash  = crypto.Keccak256Hash([]byte("Deposit(address user,address asset,uint256 amount,uint256 nonce,uint256 deadline,uint256 minSharesOut,uint256 relayerTip)"))
	withdrawTypehash = crypto.Keccak256Hash([]byte("Withdraw(address user,address asset,uint256 amount,uint256 nonce,uint256 deadline,uint256 maxSharesIn,uint256 relayerTip)"))
	domainTypehash   = crypto.Keccak256Hash([]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"))

	typeBytes32, _ = abi.NewType("bytes32", "", nil)
	typeAddress, _ = abi.NewType("address", "", nil)
	typeUint256, _ = abi.NewType("uint256", "", nil)

	domainArgs = abi.Arguments{{Type: typeBytes32}, {Type: typeBytes32}, {Type: typeUint256}, {Type: typeAddress}}
	structArgs = abi.Arguments{
		{Type: typeBytes32}, {Type: typeAddress}, {Type: typeAddress}, {Type: typeUint256},
		{Type: typeUint256}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeUint256},
	}
)

// DomainSeparator binds intent signatures to one deployment.
func DomainSeparator(chainID *big.Int, fund common.Address) common.Hash {
	enc, err := domainArgs.Pack(domainTypehash, crypto.Keccak256Hash([]byte("VaultGate")), chainID, fund)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// Digest produces the signable hash of the intent under domain.
func (i Intent) Digest(domain common.Hash) common.Hash {
	typehash := depositTypehash
	if i.Kind == IntentWithdraw {
		typehash = withdrawTypehash
	}
	enc, err := structArgs.Pack(
		typehash, i.User, i.Asset, bigOrZero(i.Amount),
		new(big.Int).SetUint64(i.Nonce), big.NewInt(i.Deadline.Unix()),
		bigOrZero(i.Limit), bigOrZero(i.RelayerTip),
	)
	if err != nil {
		panic(err)
	}
	structHash := crypto.Keccak256Hash(enc)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), structHash.Bytes())
}

// RecoverSigner returns the address that signed the intent.
func (i Intent) RecoverSigner(domain common.Hash) (common.Address, error) {
	sig := i.Signature
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	if v := sig[crypto.RecoveryIDOffset]; v >= 27 {
		sig = append([]byte{}, sig...)
		sig[crypto.RecoveryIDOffset] = v - 27
	}
	pub, err := crypto.SigToPub(i.Digest(domain).Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrBadSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
