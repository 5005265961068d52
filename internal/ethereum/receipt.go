package ethereum

import (
	"context"
	"errors"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultReceiptPollInterval is how often WaitForReceipt queries the node.
const DefaultReceiptPollInterval = time.Second

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// ReceiptFetcher fetches transaction receipts.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt blocks until the transaction is mined and returns its receipt.
// Only geth.NotFound keeps the wait going; any other error ends it, as does ctx.
func WaitForReceipt(ctx context.Context, b ReceiptFetcher, txHash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = DefaultReceiptPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, geth.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CheckStatus returns ErrReverted if the receipt reports a failed execution.
func CheckStatus(receipt *types.Receipt) error {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrReverted
	}
	return nil
}
