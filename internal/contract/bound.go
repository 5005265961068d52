package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hashenkooleh/Votes-system/internal/ethereum"
)

// ErrNoCode is returned when a call returns no data, which means there is no
// contract at the address.
var ErrNoCode = errors.New("no contract code at given address")

// Bound binds a deployed contract to a node backend.
type Bound struct {
	address      common.Address
	abi          abi.ABI
	backend      ethereum.Backend
	pollInterval time.Duration
}

// Bind creates a binding for a deployed contract.
func Bind(deployed *Deployed, backend ethereum.Backend, pollInterval time.Duration) *Bound {
	return &Bound{
		address:      deployed.Address,
		abi:          deployed.ABI,
		backend:      backend,
		pollInterval: pollInterval,
	}
}

// Address returns the contract address.
func (b *Bound) Address() common.Address {
	return b.address
}

// Call invokes a read-only method and returns its decoded outputs.
func (b *Bound) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := b.address
	output, err := b.backend.CallContract(ctx, geth.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("call %s: %w", method, ErrNoCode)
	}

	values, err := b.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// Transact sends a state-changing call from the given account and waits for
// the transaction to be mined. A reverted transaction returns its receipt
// together with ethereum.ErrReverted.
func (b *Bound) Transact(ctx context.Context, from common.Address, method string, args ...any) (*types.Receipt, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := b.address
	txHash, err := b.backend.SendTransaction(ctx, ethereum.TransactionArgs{
		From: from,
		To:   &to,
		Data: ethereum.NewBytes(input),
	})
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	receipt, err := ethereum.WaitForReceipt(ctx, b.backend, txHash, b.pollInterval)
	if err != nil {
		return nil, fmt.Errorf("wait for %s receipt %s: %w", method, txHash.Hex(), err)
	}
	if err := ethereum.CheckStatus(receipt); err != nil {
		return receipt, fmt.Errorf("%s %s: %w", method, txHash.Hex(), err)
	}
	return receipt, nil
}

// ToUint64 converts a decoded unsigned integer output to uint64.
func ToUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case *big.Int:
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0, fmt.Errorf("value %v does not fit in uint64", n)
		}
		return n.Uint64(), nil
	default:
		return 0, fmt.Errorf("unexpected output type %T", v)
	}
}
