package fakechain

import (
	"context"
	"errors"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/hashenkooleh/Votes-system/internal/ethereum"
)

// ChainID is reported by eth_chainId.
const ChainID = 1337

// NewRPCServer serves the chain over JSON-RPC under the eth namespace.
func NewRPCServer(c *Chain) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &ethAPI{chain: c}); err != nil {
		return nil, err
	}
	return srv, nil
}

type ethAPI struct {
	chain *Chain
}

// CallArgs are eth_call and eth_estimateGas parameters. Clients send the
// payload as either "data" or "input".
type CallArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (a CallArgs) msg() geth.CallMsg {
	msg := geth.CallMsg{To: a.To}
	if a.From != nil {
		msg.From = *a.From
	}
	if a.Gas != nil {
		msg.Gas = uint64(*a.Gas)
	}
	if a.Value != nil {
		msg.Value = a.Value.ToInt()
	}
	if a.Input != nil {
		msg.Data = *a.Input
	} else if a.Data != nil {
		msg.Data = *a.Data
	}
	return msg
}

func (api *ethAPI) Accounts(ctx context.Context) ([]common.Address, error) {
	return api.chain.Accounts(ctx)
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(ChainID))
}

func (api *ethAPI) EstimateGas(ctx context.Context, args CallArgs, block *string) (hexutil.Uint64, error) {
	gas, err := api.chain.EstimateGas(ctx, args.msg())
	return hexutil.Uint64(gas), err
}

func (api *ethAPI) Call(ctx context.Context, args CallArgs, block *string) (hexutil.Bytes, error) {
	return api.chain.CallContract(ctx, args.msg(), nil)
}

func (api *ethAPI) SendTransaction(ctx context.Context, args ethereum.TransactionArgs) (common.Hash, error) {
	return api.chain.SendTransaction(ctx, args)
}

// GetTransactionReceipt returns null for pending transactions.
func (api *ethAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := api.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, geth.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := *receipt
	if r.Logs == nil {
		r.Logs = []*types.Log{}
	}
	return &r, nil
}
