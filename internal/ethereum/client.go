package ethereum

import (
	"context"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend is the subset of the node RPC surface the deployer needs.
type Backend interface {
	// Accounts lists the node-managed accounts (eth_accounts).
	Accounts(ctx context.Context) ([]common.Address, error)
	// EstimateGas estimates the gas needed for a transaction.
	EstimateGas(ctx context.Context, call geth.CallMsg) (uint64, error)
	// SendTransaction submits a transaction signed by the node (eth_sendTransaction).
	SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error)
	// CallContract executes a read-only call against the latest block.
	CallContract(ctx context.Context, call geth.CallMsg, blockNumber *big.Int) ([]byte, error)
	// TransactionReceipt returns the receipt of a mined transaction, or geth.NotFound.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client implements Backend on top of go-ethereum's ethclient.
type Client struct {
	*ethclient.Client
	rpc *rpc.Client
}

var _ Backend = (*Client)(nil)

// Dial connects to an Ethereum RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewClient(rpcClient), nil
}

// NewClient wraps an existing RPC client.
func NewClient(c *rpc.Client) *Client {
	return &Client{Client: ethclient.NewClient(c), rpc: c}
}

// Accounts returns the accounts the node can sign for.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SendTransaction hands an unsigned transaction to the node for signing and broadcast.
// It shadows ethclient's raw-transaction variant on purpose.
func (c *Client) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if err := args.Validate(); err != nil {
		return common.Hash{}, err
	}
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}
