// Package deploy resolves the deployer account and creates the voting
// contract on chain.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hashenkooleh/Votes-system/internal/contract"
	"github.com/hashenkooleh/Votes-system/internal/ethereum"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
)

// Gas defaults.
const (
	DefaultEstimateGasCeiling uint64 = 4_700_000
	DefaultGasMargin          uint64 = 100_000
)

// Config holds deployment settings.
type Config struct {
	// EstimateGasCeiling caps gas during eth_estimateGas.
	EstimateGasCeiling uint64
	// GasMargin is added to the estimate for the submitted gas limit.
	GasMargin uint64
	// PollInterval between receipt queries.
	PollInterval time.Duration
}

// DefaultConfig returns the default deployment settings.
func DefaultConfig() Config {
	return Config{
		EstimateGasCeiling: DefaultEstimateGasCeiling,
		GasMargin:          DefaultGasMargin,
		PollInterval:       ethereum.DefaultReceiptPollInterval,
	}
}

// Request is a contract-creation transaction.
type Request struct {
	Bytecode        []byte
	ConstructorArgs [][32]byte
	GasLimit        uint64
	From            common.Address
}

// Result describes a confirmed deployment.
type Result struct {
	Deployed     *contract.Deployed
	EstimatedGas uint64
	GasLimit     uint64
	Receipt      *types.Receipt
}

// Deployer creates contract instances through the node's unlocked accounts.
type Deployer struct {
	backend ethereum.Backend
	config  Config
	logger  *slog.Logger
}

// NewDeployer creates a Deployer. Zero config fields take their defaults.
func NewDeployer(backend ethereum.Backend, cfg Config, logger *slog.Logger) *Deployer {
	defaults := DefaultConfig()
	if cfg.EstimateGasCeiling == 0 {
		cfg.EstimateGasCeiling = defaults.EstimateGasCeiling
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{backend: backend, config: cfg, logger: logger}
}

// SubmissionGas returns estimate plus margin, failing on overflow.
func SubmissionGas(estimate, margin uint64) (uint64, error) {
	if estimate > math.MaxUint64-margin {
		return 0, fmt.Errorf("gas estimate %d plus margin %d overflows", estimate, margin)
	}
	return estimate + margin, nil
}

// NewRequest encodes candidates in order as constructor arguments.
func NewRequest(compiled *contract.Compiled, candidates []contract.Candidate, from common.Address, gasLimit uint64) (*Request, error) {
	encoded, err := contract.EncodeCandidates(candidates)
	if err != nil {
		return nil, err
	}
	return &Request{
		Bytecode:        compiled.Bytecode,
		ConstructorArgs: encoded,
		GasLimit:        gasLimit,
		From:            from,
	}, nil
}

// Deploy creates one contract instance. Every call creates a new instance.
func (d *Deployer) Deploy(ctx context.Context, compiled *contract.Compiled, candidates []contract.Candidate, from common.Address) (*Result, error) {
	req, err := NewRequest(compiled, candidates, from, d.config.EstimateGasCeiling)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeployment, "encode candidates: %w", err)
	}
	data, err := compiled.DeployData(req.ConstructorArgs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeployment, "%w", err)
	}

	args := ethereum.TransactionArgs{
		From: req.From,
		Gas:  ethereum.NewUint64(req.GasLimit),
		Data: ethereum.NewBytes(data),
	}
	estimate, err := d.backend.EstimateGas(ctx, args.CallMsg())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrGasEstimation, "estimate %s deployment: %w", compiled.Name, err)
	}

	gasLimit, err := SubmissionGas(estimate, d.config.GasMargin)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeployment, "%w", err)
	}
	req.GasLimit = gasLimit
	args.Gas = ethereum.NewUint64(gasLimit)

	d.logger.Info("sending deployment transaction",
		slog.String("contract", compiled.Name),
		slog.String("from", from.Hex()),
		slog.Uint64("estimated_gas", estimate),
		slog.Uint64("gas_limit", gasLimit),
		slog.Int("candidates", len(candidates)),
	)

	txHash, err := d.backend.SendTransaction(ctx, args)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeployment, "send transaction: %w", err)
	}

	d.logger.Info("transaction submitted, waiting for confirmation",
		slog.String("tx_hash", txHash.Hex()),
	)

	receipt, err := ethereum.WaitForReceipt(ctx, d.backend, txHash, d.config.PollInterval)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDeployment, "wait for receipt %s: %w", txHash.Hex(), err)
	}

	result := &Result{EstimatedGas: estimate, GasLimit: gasLimit, Receipt: receipt}
	if err := checkReceipt(receipt, gasLimit); err != nil {
		return result, apperrors.Wrap(apperrors.ErrDeployment, "transaction %s: %w", txHash.Hex(), err)
	}

	result.Deployed = &contract.Deployed{
		Name:    compiled.Name,
		Address: receipt.ContractAddress,
		TxHash:  txHash,
		ABI:     compiled.ABI,
		RawABI:  compiled.RawABI,
	}

	d.logger.Info("contract deployed",
		slog.String("address", receipt.ContractAddress.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return result, nil
}

func checkReceipt(receipt *types.Receipt, gasLimit uint64) error {
	if err := ethereum.CheckStatus(receipt); err != nil {
		return err
	}
	if receipt.ContractAddress == (common.Address{}) {
		return fmt.Errorf("receipt has no contract address")
	}
	if receipt.GasUsed > gasLimit {
		return fmt.Errorf("gas used %d exceeds limit %d", receipt.GasUsed, gasLimit)
	}
	return nil
}
