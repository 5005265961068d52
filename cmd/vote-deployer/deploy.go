package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashenkooleh/Votes-system/internal/artifact"
	"github.com/hashenkooleh/Votes-system/internal/config"
	"github.com/hashenkooleh/Votes-system/internal/ethereum"
	"github.com/hashenkooleh/Votes-system/internal/metrics"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
	"github.com/hashenkooleh/Votes-system/internal/pipeline"
)

func newDeployCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Compile, deploy, write the artifact and verify",
		Long: `Run the full pipeline once: compile, resolve the deployer account, deploy,
write the artifact and run the verification sequence. Every run deploys a new
instance.

Examples:
  vote-deployer deploy --rpc-url http://localhost:7545
  vote-deployer deploy --candidates Alice,Bob --artifact-format json --artifact ./build/voting.json
  vote-deployer deploy --verify=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeploy(cmd.Context(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("deployer", "", "deployer account (default: the node's first account)")
	flags.Uint64("estimate-gas-ceiling", 4_700_000, "gas cap for eth_estimateGas")
	flags.Uint64("gas-margin", 100_000, "gas added to the estimate for the deployment")
	flags.Duration("poll-interval", time.Second, "receipt polling interval")
	flags.String("artifact", artifact.DefaultPath, "artifact output path")
	flags.String("artifact-format", "js", "artifact format (js, json, yaml)")
	flags.Bool("verify", true, "run the verification sequence after deploying")
	addVerifyFlags(cmd)
	flags.String("pushgateway-url", "", "Prometheus pushgateway to push run metrics to")

	keys := map[string]string{
		"deployer.account":             "deployer",
		"deploy.estimate_gas_ceiling":  "estimate-gas-ceiling",
		"deploy.gas_margin":            "gas-margin",
		"deploy.receipt_poll_interval": "poll-interval",
		"artifact.path":                "artifact",
		"artifact.format":              "artifact-format",
		"verify.enabled":               "verify",
		"verify.candidate_index":       "candidate-index",
		"verify.rounds":                "rounds",
		"verify.strict":                "strict",
		"metrics.pushgateway_url":      "pushgateway-url",
	}
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return a.bind(cmd.Flags(), keys)
	}
	return cmd
}

func addVerifyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("candidate-index", 0, "index of the candidate to vote for")
	flags.Int("rounds", 2, "number of votes to cast")
	flags.Bool("strict", false, "fail when a tally differs from the expected count")
}

func (a *app) runDeploy(ctx context.Context, out io.Writer) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg, out)

	client, err := connect(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer client.Close()

	writer, err := artifact.NewWriter(cfg.Artifact.Path, artifact.Format(cfg.Artifact.Format), logger)
	if err != nil {
		return err
	}
	deployer, err := cfg.DeployerAddress()
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	orch := pipeline.NewOrchestrator(client, newSource(cfg, logger), writer, pipeline.Config{
		Logger:          logger,
		Out:             out,
		Candidates:      cfg.Candidates,
		DeployerAccount: deployer,
		Deploy:          cfg.DeploySettings(),
		VerifyEnabled:   cfg.Verify.Enabled,
		Verify:          cfg.VerifySettings(),
		Metrics:         recorder,
	})

	result, runErr := orch.Run(ctx, func(stage apperrors.Stage, progress float64, message string) {
		logger.Debug(message, slog.String("stage", stage.String()), slog.Float64("progress", progress))
	})
	pushMetrics(ctx, cfg, recorder, result, logger)

	if runErr != nil {
		return printFailure(out, result, runErr)
	}
	printSummary(out, result)
	return nil
}

func connect(ctx context.Context, cfg *config.Config, out io.Writer) (*ethereum.Client, error) {
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintln(out, "Voting Contract Deployment")
	fmt.Fprintf(out, "Node: %s\n", cfg.Node.RPCURL)
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintln(out)

	client, err := ethereum.Dial(ctx, cfg.Node.RPCURL)
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID from %s: %w", cfg.Node.RPCURL, err)
	}
	fmt.Fprintf(out, "Connected! Chain ID: %s\n\n", chainID)
	return client, nil
}

func pushMetrics(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder, result *pipeline.Result, logger *slog.Logger) {
	if cfg.Metrics.PushgatewayURL == "" || result == nil {
		return
	}
	// Push even when ctx was cancelled so failed runs are recorded.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := recorder.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, result.RunID.String()); err != nil {
		logger.Warn("failed to push metrics", slog.String("error", err.Error()))
	}
}

func printSummary(out io.Writer, result *pipeline.Result) {
	deployed := result.Deployed()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintln(out, "DEPLOYMENT SUCCESSFUL")
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintf(out, "Run ID:   %s\n", result.RunID)
	fmt.Fprintf(out, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Contract: %s\n", deployed.Address.Hex())
	fmt.Fprintf(out, "Artifact: %s\n", result.ArtifactPath)
	if result.Report != nil {
		final, _ := result.Report.FinalTally()
		fmt.Fprintf(out, "Votes for %s: %d\n", result.Report.Candidate, final)
	}
}

// reportedError marks an error whose failure report is already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// reportError prints err unless printFailure already did.
func reportError(w io.Writer, err error) {
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// printFailure prints the failure report and returns err marked as reported.
func printFailure(out io.Writer, result *pipeline.Result, err error) error {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintln(out, "DEPLOYMENT FAILED")
	fmt.Fprintln(out, "===========================================")
	if stage, ok := apperrors.StageOf(err); ok {
		fmt.Fprintf(out, "Stage: %s\n", stage)
	}
	fmt.Fprintf(out, "Error: %v\n", err)
	if result != nil {
		if deployed := result.Deployed(); deployed != nil {
			fmt.Fprintf(out, "Contract was deployed at %s\n", deployed.Address.Hex())
		}
		if result.FallbackPath != "" {
			fmt.Fprintf(out, "Address saved to %s\n", result.FallbackPath)
		}
		if errors.Is(err, apperrors.ErrVerification) && result.ArtifactPath != "" {
			fmt.Fprintf(out, "Artifact %s was written before verification failed\n", result.ArtifactPath)
		}
	}
	return &reportedError{err: err}
}
