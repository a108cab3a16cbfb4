package safe

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Wallet module interface consumed by VaultGate. Only the return-data variant
// is used so revert reasons can be surfaced verbatim.
const moduleABIJSON = `[
  {"type":"function","name":"execTransactionFromModuleReturnData","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"}],
   "outputs":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}
]`

// ErrExecutionReverted wraps the module reporting an unsuccessful inner call
// with no decodable reason.
var ErrExecutionReverted = errors.New("safe: execution reverted")

// ModuleExecutor drives the fund's wallet module over JSON-RPC. Snapshot and
// Revert rely on the evm_snapshot/evm_revert methods of a dev or forked node;
// production deployments put an equivalent bundler in front.
type ModuleExecutor struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	module  common.Address
	key     *ecdsa.PrivateKey
	sender  common.Address
	chainID *big.Int
	abi     abi.ABI
	logger  *slog.Logger

	receiptPoll time.Duration
}

// NewModuleExecutor dials the node and prepares the module binding.
func NewModuleExecutor(ctx context.Context, rawurl string, module common.Address, keyHex string, logger *slog.Logger) (*ModuleExecutor, error) {
	parsed, err := abi.JSON(strings.NewReader(moduleABIJSON))
	if err != nil {
		return nil, fmt.Errorf("safe: parse module abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("safe: parse relayer key: %w", err)
	}
	client, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("safe: dial %s: %w", rawurl, err)
	}
	eth := ethclient.NewClient(client)
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("safe: chain id: %w", err)
	}
	return &ModuleExecutor{
		rpc:         client,
		eth:         eth,
		module:      module,
		key:         key,
		sender:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:     chainID,
		abi:         parsed,
		logger:      logger,
		receiptPoll: 250 * time.Millisecond,
	}, nil
}

// Exec submits one call through the module and waits for inclusion.
func (e *ModuleExecutor) Exec(ctx context.Context, call Call) (Result, error) {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	input, err := e.abi.Pack("execTransactionFromModuleReturnData",
		call.Target, value, call.Calldata(), uint8(call.Operation))
	if err != nil {
		return Result{}, fmt.Errorf("safe: pack call: %w", err)
	}

	tx, err := e.send(ctx, input)
	if err != nil {
		return Result{}, err
	}
	receipt, err := e.waitMined(ctx, tx.Hash())
	if err != nil {
		return Result{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Result{}, fmt.Errorf("safe: module transaction %s reverted", tx.Hash())
	}

	// The module swallows inner reverts into (success, returnData); replay
	// the same input as a call to read them out.
	raw, err := e.eth.CallContract(ctx, callMsg(e.sender, e.module, input), receipt.BlockNumber)
	if err != nil {
		return Result{}, fmt.Errorf("safe: read return data: %w", err)
	}
	out, err := e.abi.Unpack("execTransactionFromModuleReturnData", raw)
	if err != nil {
		return Result{}, fmt.Errorf("safe: unpack return data: %w", err)
	}
	success := out[0].(bool)
	ret := out[1].([]byte)
	if !success {
		if reason, uerr := abi.UnpackRevert(ret); uerr == nil && reason != "" {
			return Result{}, fmt.Errorf("safe: %s", reason)
		}
		return Result{}, ErrExecutionReverted
	}
	return Result{Return: ret, GasUsed: receipt.GasUsed}, nil
}

// Snapshot captures node state via evm_snapshot.
func (e *ModuleExecutor) Snapshot(ctx context.Context) (string, error) {
	var id string
	if err := e.rpc.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", fmt.Errorf("safe: evm_snapshot: %w", err)
	}
	return id, nil
}

// Revert restores a snapshot taken earlier in the same batch.
func (e *ModuleExecutor) Revert(ctx context.Context, id string) error {
	var ok bool
	if err := e.rpc.CallContext(ctx, &ok, "evm_revert", id); err != nil {
		return fmt.Errorf("safe: evm_revert: %w", err)
	}
	if !ok {
		return fmt.Errorf("safe: snapshot %s no longer available", id)
	}
	return nil
}

func (e *ModuleExecutor) send(ctx context.Context, input []byte) (*types.Transaction, error) {
	nonce, err := e.eth.PendingNonceAt(ctx, e.sender)
	if err != nil {
		return nil, fmt.Errorf("safe: pending nonce: %w", err)
	}
	tip, err := e.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("safe: gas tip: %w", err)
	}
	head, err := e.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("safe: head: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	gas, err := e.eth.EstimateGas(ctx, callMsg(e.sender, e.module, input))
	if err != nil {
		return nil, fmt.Errorf("safe: estimate gas: %w", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &e.module,
		Data:      input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return nil, fmt.Errorf("safe: sign tx: %w", err)
	}
	if err := e.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("safe: send tx: %w", err)
	}
	return signed, nil
}

func (e *ModuleExecutor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(e.receiptPoll)
	defer ticker.Stop()
	for {
		receipt, err := e.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			e.logger.Debug("receipt poll", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func callMsg(from, to common.Address, input []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &to, Data: input}
}
