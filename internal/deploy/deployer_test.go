package deploy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashenkooleh/Votes-system/internal/contract"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
	"github.com/hashenkooleh/Votes-system/internal/testutil/fakechain"
)

func testCompiled(t *testing.T) *contract.Compiled {
	t.Helper()
	compiled, err := contract.NewCompiled("Voting", fakechain.VotingBytecode, []byte(fakechain.VotingABI))
	require.NoError(t, err)
	return compiled
}

func testCandidates(t *testing.T) []contract.Candidate {
	t.Helper()
	candidates, err := contract.NewCandidates([]string{"Nick", "Edward", "John"})
	require.NoError(t, err)
	return candidates
}

func testConfig() Config {
	return Config{
		EstimateGasCeiling: DefaultEstimateGasCeiling,
		GasMargin:          DefaultGasMargin,
		PollInterval:       time.Millisecond,
	}
}

func TestSubmissionGas(t *testing.T) {
	gas, err := SubmissionGas(420_000, 100_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(520_000), gas)

	_, err = SubmissionGas(math.MaxUint64, 1)
	assert.Error(t, err)

	gas, err = SubmissionGas(math.MaxUint64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), gas)
}

func TestNewDeployer_Defaults(t *testing.T) {
	d := NewDeployer(fakechain.NewVoting(fakechain.Account0), Config{}, nil)
	assert.Equal(t, DefaultEstimateGasCeiling, d.config.EstimateGasCeiling)
	assert.Equal(t, uint64(0), d.config.GasMargin)
	assert.Greater(t, d.config.PollInterval, time.Duration(0))
}

func TestDeployer_Deploy(t *testing.T) {
	chain := fakechain.NewVoting(fakechain.Account0)
	chain.ConfirmAfter = 2

	result, err := NewDeployer(chain, testConfig(), nil).Deploy(context.Background(), testCompiled(t), testCandidates(t), fakechain.Account0)
	require.NoError(t, err)

	assert.Equal(t, uint64(fakechain.DefaultEstimatedGas), result.EstimatedGas)
	assert.Equal(t, uint64(fakechain.DefaultEstimatedGas)+DefaultGasMargin, result.GasLimit)
	assert.Equal(t, crypto.CreateAddress(fakechain.Account0, 0), result.Deployed.Address)
	assert.Equal(t, result.Receipt.TxHash, result.Deployed.TxHash)
	assert.LessOrEqual(t, result.Receipt.GasUsed, result.GasLimit)
	assert.Equal(t, []common.Address{result.Deployed.Address}, chain.Deployments())

	assert.Equal(t, []string{
		"eth_estimateGas",
		"eth_sendTransaction create",
		"eth_getTransactionReceipt",
		"eth_getTransactionReceipt",
		"eth_getTransactionReceipt",
		"mined create",
	}, chain.Events())
}

func TestDeployer_DeployTwiceCreatesTwoInstances(t *testing.T) {
	chain := fakechain.NewVoting(fakechain.Account0)
	d := NewDeployer(chain, testConfig(), nil)

	first, err := d.Deploy(context.Background(), testCompiled(t), testCandidates(t), fakechain.Account0)
	require.NoError(t, err)
	second, err := d.Deploy(context.Background(), testCompiled(t), testCandidates(t), fakechain.Account0)
	require.NoError(t, err)

	assert.NotEqual(t, first.Deployed.Address, second.Deployed.Address)
	assert.Len(t, chain.Deployments(), 2)
}

func TestDeployer_DeployFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *fakechain.Chain, cfg *Config)
		from     common.Address
		sentinel error
		contains string
	}{
		{
			name:     "estimate fails",
			setup:    func(c *fakechain.Chain, _ *Config) { c.EstimateErr = errors.New("execution reverted") },
			sentinel: apperrors.ErrGasEstimation,
			contains: "execution reverted",
		},
		{
			name:     "estimate above ceiling",
			setup:    func(_ *fakechain.Chain, cfg *Config) { cfg.EstimateGasCeiling = 100_000 },
			sentinel: apperrors.ErrGasEstimation,
			contains: "exceeds allowance",
		},
		{
			name:     "no margin runs out of gas",
			setup:    func(_ *fakechain.Chain, cfg *Config) { cfg.GasMargin = 0 },
			sentinel: apperrors.ErrDeployment,
			contains: "reverted",
		},
		{
			name:     "margin overflows",
			setup:    func(_ *fakechain.Chain, cfg *Config) { cfg.GasMargin = math.MaxUint64 },
			sentinel: apperrors.ErrDeployment,
			contains: "overflows",
		},
		{
			name:     "send rejected",
			setup:    func(c *fakechain.Chain, _ *Config) { c.SendErr = errors.New("authentication needed") },
			sentinel: apperrors.ErrDeployment,
			contains: "authentication needed",
		},
		{
			name:     "unknown sender",
			setup:    func(*fakechain.Chain, *Config) {},
			from:     fakechain.Account1,
			sentinel: apperrors.ErrDeployment,
			contains: "unknown account",
		},
		{
			name:     "constructor reverts",
			setup:    func(c *fakechain.Chain, _ *Config) { c.RevertDeploy = true },
			sentinel: apperrors.ErrDeployment,
			contains: "reverted",
		},
		{
			name:     "gas used above limit",
			setup:    func(c *fakechain.Chain, _ *Config) { c.GasUsedOverride = 10_000_000 },
			sentinel: apperrors.ErrDeployment,
			contains: "exceeds limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := fakechain.NewVoting(fakechain.Account0)
			cfg := testConfig()
			tt.setup(chain, &cfg)
			from := fakechain.Account0
			if tt.from != (common.Address{}) {
				from = tt.from
			}

			result, err := NewDeployer(chain, cfg, nil).Deploy(context.Background(), testCompiled(t), testCandidates(t), from)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), tt.contains)
			if result != nil {
				assert.Nil(t, result.Deployed)
			}
		})
	}
}

func TestDeployer_DeployCancelled(t *testing.T) {
	chain := fakechain.NewVoting(fakechain.Account0)
	chain.ConfirmAfter = math.MaxInt32

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewDeployer(chain, testConfig(), nil).Deploy(ctx, testCompiled(t), testCandidates(t), fakechain.Account0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDeployment)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
