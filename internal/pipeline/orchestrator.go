// Package pipeline runs a deployment from compilation to verification.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/hashenkooleh/Votes-system/internal/artifact"
	"github.com/hashenkooleh/Votes-system/internal/compiler"
	"github.com/hashenkooleh/Votes-system/internal/contract"
	"github.com/hashenkooleh/Votes-system/internal/deploy"
	"github.com/hashenkooleh/Votes-system/internal/ethereum"
	"github.com/hashenkooleh/Votes-system/internal/metrics"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
	"github.com/hashenkooleh/Votes-system/internal/verify"
)

// StageComplete is reported once every stage has finished.
const StageComplete apperrors.Stage = "complete"

// ProgressCallback is called during a run to report progress.
type ProgressCallback func(stage apperrors.Stage, progress float64, message string)

// Config contains configuration for the orchestrator.
type Config struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Out receives operator narration. Nil discards it.
	Out io.Writer

	// Candidates passed to the contract constructor, in order.
	Candidates []string

	// DeployerAccount, when set, must be one of the node's accounts.
	DeployerAccount *common.Address

	Deploy deploy.Config

	// VerifyEnabled runs the interaction sequence after the artifact is written.
	VerifyEnabled bool
	Verify        verify.Config

	// Metrics is optional.
	Metrics *metrics.Recorder
}

// Result holds what a run produced. On failure it still carries everything
// completed before the failing stage.
type Result struct {
	RunID        uuid.UUID
	Stage        apperrors.Stage
	Accounts     []common.Address
	Deployer     common.Address
	Compiled     *contract.Compiled
	Deployment   *deploy.Result
	ArtifactPath string
	// FallbackPath is set when the artifact could not be written but the
	// address-only record could.
	FallbackPath string
	Report       *verify.Report
	Duration     time.Duration
}

// Deployed returns the deployed contract, or nil if deployment did not finish.
func (r *Result) Deployed() *contract.Deployed {
	if r == nil || r.Deployment == nil {
		return nil
	}
	return r.Deployment.Deployed
}

// Orchestrator coordinates a single deployment run.
type Orchestrator struct {
	backend ethereum.Backend
	source  compiler.Source
	writer  *artifact.Writer
	config  Config
	logger  *slog.Logger
	out     io.Writer
}

// NewOrchestrator creates a new deployment orchestrator.
func NewOrchestrator(backend ethereum.Backend, source compiler.Source, writer *artifact.Writer, config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := config.Out
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		backend: backend,
		source:  source,
		writer:  writer,
		config:  config,
		logger:  logger,
		out:     out,
	}
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}

// Run executes compile, account resolution, deployment, artifact write and
// verification, in that order. Nothing is retried; the first failure ends
// the run with an error tagged by its stage.
func (o *Orchestrator) Run(ctx context.Context, onProgress ProgressCallback) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.New()}

	err := o.run(ctx, result, onProgress)
	result.Duration = time.Since(start)
	if o.config.Metrics != nil {
		o.config.Metrics.ObserveRun(err)
	}
	if err != nil {
		stage, _ := apperrors.StageOf(err)
		o.logger.Error("deployment run failed",
			slog.String("run_id", result.RunID.String()),
			slog.String("stage", stage.String()),
			slog.String("error", err.Error()),
		)
		return result, err
	}

	o.logger.Info("deployment run complete",
		slog.String("run_id", result.RunID.String()),
		slog.String("address", result.Deployed().Address.Hex()),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, result *Result, onProgress ProgressCallback) error {
	progress := func(stage apperrors.Stage, pct float64, msg string) {
		result.Stage = stage
		if onProgress != nil {
			onProgress(stage, pct, msg)
		}
	}

	o.logger.Info("starting deployment run",
		slog.String("run_id", result.RunID.String()),
		slog.String("contract_source", o.source.Describe()),
	)

	candidates, err := contract.NewCandidates(o.config.Candidates)
	if err != nil {
		result.Stage = apperrors.StageValidate
		return apperrors.WrapStage(apperrors.StageValidate, apperrors.Wrap(apperrors.ErrInvalidCandidates, "%w", err))
	}

	// Stage 1: compile
	progress(apperrors.StageCompile, 0.0, "Compiling contract")
	o.printf("1. Compiling %s...\n", o.source.Describe())
	if err := o.stage(apperrors.StageCompile, func() error {
		return o.compile(ctx, result)
	}); err != nil {
		return err
	}
	o.printf("   Compiled %s (%d bytes)\n\n", result.Compiled.Name, len(result.Compiled.Bytecode))

	// Stage 2: resolve the deployer account
	progress(apperrors.StageAccounts, 0.2, "Resolving deployer account")
	o.printf("2. Resolving deployer account...\n")
	resolver := deploy.NewAccountResolver(o.backend, o.config.DeployerAccount, o.logger)
	if err := o.stage(apperrors.StageAccounts, func() error {
		accounts, err := resolver.Accounts(ctx)
		if err != nil {
			return err
		}
		result.Accounts = accounts
		deployer, err := resolver.Select(accounts)
		if err != nil {
			return err
		}
		result.Deployer = deployer
		return nil
	}); err != nil {
		return err
	}
	o.printf("   Accounts: %s\n", joinAddresses(result.Accounts))
	o.printf("   Deployer: %s\n\n", result.Deployer.Hex())

	// Stage 3: deploy
	progress(apperrors.StageDeploy, 0.4, "Deploying contract")
	o.printf("3. Deploying %s with candidates %s...\n", result.Compiled.Name, strings.Join(contract.Names(candidates), ", "))
	deployer := deploy.NewDeployer(o.backend, o.config.Deploy, o.logger)
	if err := o.stage(apperrors.StageDeploy, func() error {
		deployment, err := deployer.Deploy(ctx, result.Compiled, candidates, result.Deployer)
		if deployment != nil && deployment.Deployed != nil {
			result.Deployment = deployment
		}
		if err != nil {
			return err
		}
		if o.config.Metrics != nil {
			o.config.Metrics.ObserveDeployment(deployment.EstimatedGas, deployment.Receipt.GasUsed)
		}
		return nil
	}); err != nil {
		return err
	}
	deployed := result.Deployed()
	o.printf("   Estimated gas: %d (limit %d)\n", result.Deployment.EstimatedGas, result.Deployment.GasLimit)
	o.printf("   Transaction: %s\n", deployed.TxHash.Hex())
	o.printf("   Contract address: %s\n\n", deployed.Address.Hex())

	// Stage 4: write artifact
	progress(apperrors.StageArtifact, 0.6, "Writing artifact")
	o.printf("4. Writing %s artifact to %s...\n", o.writer.Format(), o.writer.Path())
	record := artifact.New(result.RunID.String(), deployed, candidates, result.Deployer)
	if err := o.stage(apperrors.StageArtifact, func() error {
		return o.writer.Write(record)
	}); err != nil {
		o.writeFallback(result, deployed.Address)
		return err
	}
	result.ArtifactPath = o.writer.Path()
	o.printf("   Written\n\n")

	// Stage 5: verify
	if !o.config.VerifyEnabled {
		progress(StageComplete, 1.0, "Deployment complete, verification skipped")
		o.printf("5. Verification skipped\n")
		return nil
	}
	progress(apperrors.StageVerify, 0.8, "Verifying contract interaction")
	o.printf("5. Verifying contract interaction...\n")
	if err := o.stage(apperrors.StageVerify, func() error {
		return o.runVerifier(ctx, result, candidates, deployed)
	}); err != nil {
		return err
	}
	if n := result.Report.Mismatches(); n > 0 {
		o.printf("   %d tally check(s) did not match the expected count\n", n)
	}

	progress(StageComplete, 1.0, "Deployment complete")
	return nil
}

// VerifyExisting runs the verification sequence against a contract deployed
// by an earlier run. Expected tallies assume no votes were cast since then.
func (o *Orchestrator) VerifyExisting(ctx context.Context, address common.Address) (*Result, error) {
	result := &Result{RunID: uuid.New()}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	candidates, err := contract.NewCandidates(o.config.Candidates)
	if err != nil {
		result.Stage = apperrors.StageValidate
		return result, apperrors.WrapStage(apperrors.StageValidate, apperrors.Wrap(apperrors.ErrInvalidCandidates, "%w", err))
	}

	if err := o.stage(apperrors.StageCompile, func() error {
		return o.compile(ctx, result)
	}); err != nil {
		return result, err
	}

	resolver := deploy.NewAccountResolver(o.backend, o.config.DeployerAccount, o.logger)
	if err := o.stage(apperrors.StageAccounts, func() error {
		deployer, err := resolver.ResolveDeployer(ctx)
		result.Deployer = deployer
		return err
	}); err != nil {
		return result, err
	}

	deployed := &contract.Deployed{
		Name:    result.Compiled.Name,
		Address: address,
		ABI:     result.Compiled.ABI,
		RawABI:  result.Compiled.RawABI,
	}
	result.Stage = apperrors.StageVerify
	o.printf("Verifying %s at %s from %s...\n", deployed.Name, address.Hex(), result.Deployer.Hex())
	err = o.stage(apperrors.StageVerify, func() error {
		return o.runVerifier(ctx, result, candidates, deployed)
	})
	if o.config.Metrics != nil {
		o.config.Metrics.ObserveRun(err)
	}
	return result, err
}

func (o *Orchestrator) compile(ctx context.Context, result *Result) error {
	compiled, err := o.source.Compile(ctx)
	if err != nil {
		return err
	}
	if err := compiled.RequireMethods(contract.MethodTotalVotesFor, contract.MethodVoteForCandidate); err != nil {
		return apperrors.Wrap(apperrors.ErrCompile, "%w", err)
	}
	result.Compiled = compiled
	return nil
}

func (o *Orchestrator) runVerifier(ctx context.Context, result *Result, candidates []contract.Candidate, deployed *contract.Deployed) error {
	verifier, err := verify.NewVerifier(o.backend, candidates, o.config.Verify, o.logger)
	if err != nil {
		return &verify.StepError{Step: "Check0", Err: err}
	}
	report, err := verifier.Run(ctx, deployed, result.Deployer, o.narrateStep(verifier.Candidate().Name))
	result.Report = report
	return err
}

// stage runs fn, records its duration and tags any error with the stage.
func (o *Orchestrator) stage(stage apperrors.Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	if o.config.Metrics != nil {
		o.config.Metrics.ObserveStage(stage.String(), time.Since(start), err)
	}
	return apperrors.WrapStage(stage, err)
}

func (o *Orchestrator) writeFallback(result *Result, address common.Address) {
	path, err := o.writer.WriteAddressOnly(address)
	if err != nil {
		o.logger.Error("failed to write address-only record",
			slog.String("address", address.Hex()),
			slog.String("error", err.Error()),
		)
		o.printf("   Artifact not written. Contract address: %s\n", address.Hex())
		return
	}
	result.FallbackPath = path
	o.printf("   Artifact not written. Contract address %s saved to %s\n", address.Hex(), path)
}

func (o *Orchestrator) narrateStep(candidate string) verify.StepCallback {
	return func(obs verify.Observation) {
		switch obs.Kind {
		case verify.KindCheck:
			o.printf("   [%s] Total votes for %s: %d", obs.Step, candidate, obs.Observed)
			if !obs.Matched {
				o.printf(" (expected %d)", obs.Expected)
			}
			o.printf("\n")
			if o.config.Metrics != nil {
				o.config.Metrics.ObserveTally(candidate, obs.Observed, obs.Matched)
			}
		case verify.KindVote:
			o.printf("   [%s] Voted for %s: tx %s, gas used %d\n", obs.Step, candidate, obs.TxHash.Hex(), obs.GasUsed)
			if o.config.Metrics != nil {
				o.config.Metrics.ObserveVote(obs.GasUsed)
			}
		}
	}
}

func joinAddresses(addrs []common.Address) string {
	hexes := make([]string, len(addrs))
	for i, a := range addrs {
		hexes[i] = a.Hex()
	}
	return strings.Join(hexes, ", ")
}
