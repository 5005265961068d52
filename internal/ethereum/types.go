// Package ethereum provides the node RPC surface used by the deployer.
package ethereum

import (
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TransactionArgs represents the arguments for eth_sendTransaction.
// The node signs with one of its own unlocked accounts, so nonce, fees and
// chain ID are left for the node to fill in.
type TransactionArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  *hexutil.Bytes  `json:"data,omitempty"`
}

// GetData returns the transaction data.
func (args *TransactionArgs) GetData() []byte {
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

// IsCreation returns true if the transaction creates a contract.
func (args *TransactionArgs) IsCreation() bool {
	return args.To == nil
}

// Validate checks if the transaction args can be submitted.
func (args *TransactionArgs) Validate() error {
	if args.From == (common.Address{}) {
		return fmt.Errorf("from address is required")
	}
	if args.IsCreation() && len(args.GetData()) == 0 {
		return fmt.Errorf("contract creation requires bytecode")
	}
	return nil
}

// CallMsg converts the args into a call message for eth_call and eth_estimateGas.
func (args *TransactionArgs) CallMsg() geth.CallMsg {
	msg := geth.CallMsg{
		From: args.From,
		To:   args.To,
		Data: args.GetData(),
	}
	if args.Gas != nil {
		msg.Gas = uint64(*args.Gas)
	}
	if args.Value != nil {
		msg.Value = args.Value.ToInt()
	}
	return msg
}

// NewUint64 creates a hexutil.Uint64 from uint64.
func NewUint64(u uint64) *hexutil.Uint64 {
	v := hexutil.Uint64(u)
	return &v
}

// NewBig creates a hexutil.Big from *big.Int.
func NewBig(i *big.Int) *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(i))
}

// NewBytes creates hexutil.Bytes from []byte.
func NewBytes(b []byte) *hexutil.Bytes {
	v := hexutil.Bytes(b)
	return &v
}
