// Package fakechain is an in-memory node that executes the voting contract,
// for tests of the deployment pipeline.
package fakechain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hashenkooleh/Votes-system/internal/ethereum"
)

// Default gas figures. The estimate deliberately undercounts execution so a
// deployment without a safety margin runs out of gas.
const (
	DefaultEstimatedGas = 420_000
	DefaultDeployGas    = 450_000
	DefaultVoteGas      = 43_000
)

// Chain is a single-node chain that mines a transaction the first time its
// receipt is requested after ConfirmAfter unsuccessful polls.
type Chain struct {
	mu sync.Mutex

	abi       abi.ABI
	bytecode  []byte
	accounts  []common.Address
	nonces    map[common.Address]uint64
	contracts map[common.Address]*ballot
	deployed  []common.Address
	txs       map[common.Hash]*pendingTx
	events    []string
	height    int64
	votes     int
	calls     int

	EstimatedGas uint64
	DeployGas    uint64
	VoteGas      uint64
	ConfirmAfter int

	// Fault injection.
	AccountsErr     error
	EstimateErr     error
	SendErr         error
	RevertDeploy    bool
	RevertVote      map[int]bool  // keyed by 1-based vote number
	CallErr         map[int]error // keyed by 1-based call number
	GasUsedOverride uint64
}

type pendingTx struct {
	hash    common.Hash
	from    common.Address
	nonce   uint64
	to      *common.Address
	gas     uint64
	data    []byte
	polls   int
	receipt *types.Receipt
}

type ballot struct {
	valid map[[32]byte]bool
	tally map[[32]byte]uint64
}

var _ ethereum.Backend = (*Chain)(nil)

// New creates a chain that runs the voting contract described by abiJSON.
func New(abiJSON string, bytecode []byte, accounts ...common.Address) (*Chain, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &Chain{
		abi:          parsed,
		bytecode:     bytecode,
		accounts:     accounts,
		nonces:       make(map[common.Address]uint64),
		contracts:    make(map[common.Address]*ballot),
		txs:          make(map[common.Hash]*pendingTx),
		EstimatedGas: DefaultEstimatedGas,
		DeployGas:    DefaultDeployGas,
		VoteGas:      DefaultVoteGas,
		RevertVote:   make(map[int]bool),
		CallErr:      make(map[int]error),
	}, nil
}

// NewVoting creates a chain for VotingABI and VotingBytecode with the given
// node accounts.
func NewVoting(accounts ...common.Address) *Chain {
	c, err := New(VotingABI, VotingBytecode, accounts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Events returns the ordered log of RPC operations served so far.
func (c *Chain) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

// Deployments returns the addresses of every contract created, in order.
func (c *Chain) Deployments() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.deployed...)
}

// Tally returns the confirmed vote count for a candidate.
func (c *Chain) Tally(addr common.Address, name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.contracts[addr]
	if !ok {
		return 0
	}
	var key [32]byte
	copy(key[:], name)
	return b.tally[key]
}

// Accounts implements ethereum.Backend.
func (c *Chain) Accounts(ctx context.Context) ([]common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "eth_accounts")
	if c.AccountsErr != nil {
		return nil, c.AccountsErr
	}
	return append([]common.Address(nil), c.accounts...), nil
}

// EstimateGas implements ethereum.Backend.
func (c *Chain) EstimateGas(ctx context.Context, call geth.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "eth_estimateGas")
	if c.EstimateErr != nil {
		return 0, c.EstimateErr
	}
	if call.To != nil {
		return c.VoteGas, nil
	}
	if call.Gas != 0 && c.EstimatedGas > call.Gas {
		return 0, fmt.Errorf("gas required exceeds allowance (%d)", call.Gas)
	}
	return c.EstimatedGas, nil
}

// SendTransaction implements ethereum.Backend. The transaction stays pending
// until its receipt is polled.
func (c *Chain) SendTransaction(ctx context.Context, args ethereum.TransactionArgs) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "eth_sendTransaction "+c.describe(args.To, args.GetData()))
	if c.SendErr != nil {
		return common.Hash{}, c.SendErr
	}
	if !c.isAccount(args.From) {
		return common.Hash{}, fmt.Errorf("unknown account %s", args.From.Hex())
	}

	nonce := c.nonces[args.From]
	c.nonces[args.From] = nonce + 1

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	hash := crypto.Keccak256Hash(args.From.Bytes(), nonceBytes[:])

	gas := uint64(0)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	c.txs[hash] = &pendingTx{
		hash:  hash,
		from:  args.From,
		nonce: nonce,
		to:    args.To,
		gas:   gas,
		data:  args.GetData(),
	}
	return hash, nil
}

// TransactionReceipt implements ethereum.Backend.
func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "eth_getTransactionReceipt")
	tx, ok := c.txs[txHash]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txHash.Hex())
	}
	if tx.receipt != nil {
		return tx.receipt, nil
	}
	tx.polls++
	if tx.polls <= c.ConfirmAfter {
		return nil, geth.NotFound
	}
	c.mine(tx)
	c.events = append(c.events, "mined "+c.describe(tx.to, tx.data))
	return tx.receipt, nil
}

// CallContract implements ethereum.Backend.
func (c *Chain) CallContract(ctx context.Context, call geth.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.events = append(c.events, "eth_call "+c.describe(call.To, call.Data))
	if err := c.CallErr[c.calls]; err != nil {
		return nil, err
	}
	if call.To == nil {
		return nil, errors.New("call without target")
	}
	b, ok := c.contracts[*call.To]
	if !ok {
		return nil, nil
	}

	method, args, err := c.decode(call.Data)
	if err != nil {
		return nil, err
	}
	candidate := args[0].([32]byte)
	switch method.Name {
	case "totalVotesFor", "votesReceived":
		if method.Name == "totalVotesFor" && !b.valid[candidate] {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(new(big.Int).SetUint64(b.tally[candidate]))
	case "validCandidate":
		return method.Outputs.Pack(b.valid[candidate])
	default:
		return nil, fmt.Errorf("method %s not callable", method.Name)
	}
}

func (c *Chain) mine(tx *pendingTx) {
	c.height++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.hash,
		BlockNumber: big.NewInt(c.height),
	}
	tx.receipt = receipt

	if tx.to == nil {
		receipt.GasUsed = c.DeployGas
		if c.GasUsedOverride != 0 {
			receipt.GasUsed = c.GasUsedOverride
		}
		if c.RevertDeploy || tx.gas < c.DeployGas || !c.createBallot(tx) {
			receipt.Status = types.ReceiptStatusFailed
			return
		}
		receipt.ContractAddress = crypto.CreateAddress(tx.from, tx.nonce)
		return
	}

	receipt.GasUsed = c.VoteGas
	b, ok := c.contracts[*tx.to]
	if !ok {
		return
	}
	method, args, err := c.decode(tx.data)
	if err != nil || method.Name != "voteForCandidate" {
		receipt.Status = types.ReceiptStatusFailed
		return
	}
	c.votes++
	candidate := args[0].([32]byte)
	if c.RevertVote[c.votes] || !b.valid[candidate] {
		receipt.Status = types.ReceiptStatusFailed
		return
	}
	b.tally[candidate]++
}

func (c *Chain) createBallot(tx *pendingTx) bool {
	if len(tx.data) < len(c.bytecode) || string(tx.data[:len(c.bytecode)]) != string(c.bytecode) {
		return false
	}
	args, err := c.abi.Constructor.Inputs.Unpack(tx.data[len(c.bytecode):])
	if err != nil || len(args) != 1 {
		return false
	}
	names, ok := args[0].([][32]byte)
	if !ok {
		return false
	}
	b := &ballot{
		valid: make(map[[32]byte]bool, len(names)),
		tally: make(map[[32]byte]uint64, len(names)),
	}
	for _, name := range names {
		b.valid[name] = true
	}
	addr := crypto.CreateAddress(tx.from, tx.nonce)
	c.contracts[addr] = b
	c.deployed = append(c.deployed, addr)
	return true
}

func (c *Chain) decode(data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("calldata too short")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

func (c *Chain) describe(to *common.Address, data []byte) string {
	if to == nil {
		return "create"
	}
	if len(data) >= 4 {
		if method, err := c.abi.MethodById(data[:4]); err == nil {
			return method.Name
		}
	}
	return "unknown"
}

func (c *Chain) isAccount(addr common.Address) bool {
	for _, a := range c.accounts {
		if a == addr {
			return true
		}
	}
	return false
}
