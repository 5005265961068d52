package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashenkooleh/Votes-system/internal/artifact"
	"github.com/hashenkooleh/Votes-system/internal/contract"
	"github.com/hashenkooleh/Votes-system/internal/deploy"
	"github.com/hashenkooleh/Votes-system/internal/metrics"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
	"github.com/hashenkooleh/Votes-system/internal/testutil/fakechain"
	"github.com/hashenkooleh/Votes-system/internal/verify"
)

type stubSource struct {
	abi string
	err error
}

func (s *stubSource) Compile(ctx context.Context) (*contract.Compiled, error) {
	if s.err != nil {
		return nil, s.err
	}
	abiJSON := s.abi
	if abiJSON == "" {
		abiJSON = fakechain.VotingABI
	}
	return contract.NewCompiled("Voting", fakechain.VotingBytecode, []byte(abiJSON))
}

func (s *stubSource) Describe() string {
	return "contracts/Voting.sol"
}

type harness struct {
	chain    *fakechain.Chain
	source   *stubSource
	path     string
	out      bytes.Buffer
	recorder *metrics.Recorder
	config   Config
	stages   []apperrors.Stage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		chain:    fakechain.NewVoting(fakechain.Account0, fakechain.Account1),
		source:   &stubSource{},
		path:     filepath.Join(t.TempDir(), "contractDetails.js"),
		recorder: metrics.NewRecorder(),
	}
	deployCfg := deploy.DefaultConfig()
	deployCfg.PollInterval = time.Millisecond
	verifyCfg := verify.DefaultConfig()
	verifyCfg.PollInterval = time.Millisecond

	h.config = Config{
		Out:           &h.out,
		Candidates:    []string{"Nick", "Edward", "John"},
		Deploy:        deployCfg,
		VerifyEnabled: true,
		Verify:        verifyCfg,
		Metrics:       h.recorder,
	}
	return h
}

func (h *harness) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	writer, err := artifact.NewWriter(h.path, artifact.FormatJS, nil)
	require.NoError(t, err)
	return NewOrchestrator(h.chain, h.source, writer, h.config)
}

func (h *harness) run(t *testing.T) (*Result, error) {
	t.Helper()
	return h.orchestrator(t).Run(context.Background(), func(stage apperrors.Stage, _ float64, _ string) {
		h.stages = append(h.stages, stage)
	})
}

func countEvents(c *fakechain.Chain, prefix string) int {
	n := 0
	for _, e := range c.Events() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func assertStage(t *testing.T, err error, want apperrors.Stage) {
	t.Helper()
	stage, ok := apperrors.StageOf(err)
	require.True(t, ok, "error has no stage: %v", err)
	assert.Equal(t, want, stage)
}

func TestOrchestrator_Run(t *testing.T) {
	h := newHarness(t)
	h.chain.ConfirmAfter = 1

	result, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, []apperrors.Stage{
		apperrors.StageCompile,
		apperrors.StageAccounts,
		apperrors.StageDeploy,
		apperrors.StageArtifact,
		apperrors.StageVerify,
		StageComplete,
	}, h.stages)

	deployed := result.Deployed()
	require.NotNil(t, deployed)
	assert.Equal(t, fakechain.Account0, result.Deployer)
	assert.Equal(t, []common.Address{fakechain.Account0, fakechain.Account1}, result.Accounts)
	assert.Equal(t, h.path, result.ArtifactPath)
	assert.Empty(t, result.FallbackPath)
	assert.Equal(t, verify.Done, result.Report.State)
	assert.Equal(t, uint64(2), h.chain.Tally(deployed.Address, "Nick"))

	data, err := os.ReadFile(h.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `window.contractAddress="`+deployed.Address.Hex()+`";`)
	assert.Contains(t, string(data), `window.testAccount="`+fakechain.Account0.Hex()+`";`)
	assert.Contains(t, string(data), result.RunID.String())

	out := h.out.String()
	assert.Contains(t, out, "Deployer: "+fakechain.Account0.Hex())
	assert.Contains(t, out, "Contract address: "+deployed.Address.Hex())
	assert.Contains(t, out, "[Check0] Total votes for Nick: 0")
	assert.Contains(t, out, "[Check2] Total votes for Nick: 2")
	assert.NotContains(t, out, "expected")

	count, err := testutil.GatherAndCount(h.recorder.Registry(), "votes_deploy_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, float64(2), gatherValue(t, h.recorder, "votes_deploy_votes_total"))
	assert.Equal(t, float64(2), gatherValue(t, h.recorder, "votes_deploy_tally"))
	assert.Equal(t, float64(1), gatherValue(t, h.recorder, "votes_deploy_run_success"))
}

// gatherValue returns the value of the first series of a counter or gauge.
func gatherValue(t *testing.T, r *metrics.Recorder, name string) float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.NotEmpty(t, mf.GetMetric())
		m := mf.GetMetric()[0]
		if m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestOrchestrator_FailureStages(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		stage     apperrors.Stage
		sentinel  error
		deployed  bool
		noRPC     bool
		noEvent   string
		artifacts bool
	}{
		{
			name:     "compile fails before any RPC",
			setup:    func(h *harness) { h.source.err = apperrors.Wrap(apperrors.ErrCompile, "solc: exit status 1") },
			stage:    apperrors.StageCompile,
			sentinel: apperrors.ErrCompile,
			noRPC:    true,
		},
		{
			name: "contract lacks voting methods",
			setup: func(h *harness) {
				h.source.abi = `[{"inputs":[],"stateMutability":"nonpayable","type":"constructor"}]`
			},
			stage:    apperrors.StageCompile,
			sentinel: apperrors.ErrCompile,
			noRPC:    true,
		},
		{
			name: "node has no accounts",
			setup: func(h *harness) {
				h.chain = fakechain.NewVoting()
			},
			stage:    apperrors.StageAccounts,
			sentinel: apperrors.ErrAccountResolution,
			noEvent:  "eth_estimateGas",
		},
		{
			name:     "accounts rpc fails",
			setup:    func(h *harness) { h.chain.AccountsErr = errors.New("connection refused") },
			stage:    apperrors.StageAccounts,
			sentinel: apperrors.ErrAccountResolution,
			noEvent:  "eth_estimateGas",
		},
		{
			name:     "estimation fails",
			setup:    func(h *harness) { h.chain.EstimateErr = errors.New("execution reverted") },
			stage:    apperrors.StageDeploy,
			sentinel: apperrors.ErrGasEstimation,
			noEvent:  "eth_sendTransaction",
		},
		{
			name:     "deployment reverts",
			setup:    func(h *harness) { h.chain.RevertDeploy = true },
			stage:    apperrors.StageDeploy,
			sentinel: apperrors.ErrDeployment,
			noEvent:  "eth_call",
		},
		{
			name:      "vote reverts",
			setup:     func(h *harness) { h.chain.RevertVote[1] = true },
			stage:     apperrors.StageVerify,
			sentinel:  apperrors.ErrVerification,
			deployed:  true,
			artifacts: true,
		},
		{
			name:      "tally read fails",
			setup:     func(h *harness) { h.chain.CallErr[1] = errors.New("connection reset") },
			stage:     apperrors.StageVerify,
			sentinel:  apperrors.ErrVerification,
			deployed:  true,
			artifacts: true,
			noEvent:   "eth_sendTransaction voteForCandidate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			result, err := h.run(t)
			require.Error(t, err)
			assertStage(t, err, tt.stage)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.stage, result.Stage)

			if tt.deployed {
				require.NotNil(t, result.Deployed())
			} else {
				assert.Nil(t, result.Deployed())
			}
			if tt.noRPC {
				assert.Empty(t, h.chain.Events())
			}
			if tt.noEvent != "" {
				assert.Zero(t, countEvents(h.chain, tt.noEvent))
			}
			_, statErr := os.Stat(h.path)
			assert.Equal(t, tt.artifacts, statErr == nil)
			assert.Equal(t, float64(0), gatherValue(t, h.recorder, "votes_deploy_run_success"))
		})
	}
}

func TestOrchestrator_ArtifactWriteFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Mkdir(h.path, 0o755))

	result, err := h.run(t)
	require.Error(t, err)
	assertStage(t, err, apperrors.StageArtifact)
	assert.ErrorIs(t, err, apperrors.ErrArtifactWrite)

	deployed := result.Deployed()
	require.NotNil(t, deployed)
	assert.Contains(t, err.Error(), deployed.Address.Hex())
	assert.Equal(t, h.path+artifact.AddressOnlySuffix, result.FallbackPath)
	assert.Contains(t, h.out.String(), deployed.Address.Hex())

	data, err := os.ReadFile(result.FallbackPath)
	require.NoError(t, err)
	assert.Equal(t, deployed.Address.Hex()+"\n", string(data))

	assert.Nil(t, result.Report)
	assert.Zero(t, countEvents(h.chain, "eth_call"))
}

func TestOrchestrator_VerifyDisabled(t *testing.T) {
	h := newHarness(t)
	h.config.VerifyEnabled = false

	result, err := h.run(t)
	require.NoError(t, err)
	assert.Nil(t, result.Report)
	assert.Equal(t, StageComplete, h.stages[len(h.stages)-1])
	assert.NotContains(t, h.stages, apperrors.StageVerify)
	assert.Zero(t, countEvents(h.chain, "eth_call"))
	assert.Contains(t, h.out.String(), "Verification skipped")
}

func TestOrchestrator_ConfiguredDeployer(t *testing.T) {
	h := newHarness(t)
	account := fakechain.Account1
	h.config.DeployerAccount = &account

	result, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, fakechain.Account1, result.Deployer)
}

func TestOrchestrator_InvalidCandidates(t *testing.T) {
	h := newHarness(t)
	h.config.Candidates = []string{"Nick", "Nick"}

	result, err := h.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCandidates)
	assertStage(t, err, apperrors.StageValidate)
	assert.Equal(t, apperrors.StageValidate, result.Stage)
	assert.Empty(t, h.chain.Events())
}

func TestOrchestrator_RunTwice(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)

	first, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Deployed().Address, second.Deployed().Address)
	assert.NotEqual(t, first.RunID, second.RunID)

	data, err := os.ReadFile(h.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), second.Deployed().Address.Hex())
	assert.NotContains(t, string(data), first.Deployed().Address.Hex())
}

func TestOrchestrator_VerifyExisting(t *testing.T) {
	h := newHarness(t)
	h.config.VerifyEnabled = false
	first, err := h.run(t)
	require.NoError(t, err)

	h.out.Reset()
	h.config.VerifyEnabled = true
	result, err := h.orchestrator(t).VerifyExisting(context.Background(), first.Deployed().Address)
	require.NoError(t, err)
	assert.Equal(t, verify.Done, result.Report.State)
	assert.Equal(t, uint64(2), h.chain.Tally(first.Deployed().Address, "Nick"))
	assert.Contains(t, h.out.String(), "[Vote2] Voted for Nick")

	// A second pass sees the earlier votes and reports the difference.
	result, err = h.orchestrator(t).VerifyExisting(context.Background(), first.Deployed().Address)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Report.Mismatches())
	assert.Contains(t, h.out.String(), "(expected 0)")
}

func TestOrchestrator_VerifyExistingNoContract(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator(t).VerifyExisting(context.Background(), common.HexToAddress("0x01"))
	require.Error(t, err)
	assertStage(t, err, apperrors.StageVerify)
	assert.ErrorIs(t, err, contract.ErrNoCode)
}
