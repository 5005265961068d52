package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/hashenkooleh/Votes-system/internal/pipeline"
)

func newVerifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <address>",
		Short: "Run the verification sequence against an existing contract",
		Long: `Run check -> vote -> check ... against a contract deployed earlier. Expected
tallies assume a fresh contract; differences are reported, and fail the
command only with --strict.

Examples:
  vote-deployer verify 0xe78A0F7E598Cc8b0Bb87894B0F60dD2a88d6a8Ab --rounds 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid contract address %q", args[0])
			}
			address := common.HexToAddress(args[0])

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			logger := newLogger(cfg, out)

			client, err := connect(cmd.Context(), cfg, out)
			if err != nil {
				return err
			}
			defer client.Close()

			deployer, err := cfg.DeployerAddress()
			if err != nil {
				return err
			}
			orch := pipeline.NewOrchestrator(client, newSource(cfg, logger), nil, pipeline.Config{
				Logger:          logger,
				Out:             out,
				Candidates:      cfg.Candidates,
				DeployerAccount: deployer,
				Deploy:          cfg.DeploySettings(),
				VerifyEnabled:   true,
				Verify:          cfg.VerifySettings(),
			})

			result, err := orch.VerifyExisting(cmd.Context(), address)
			if err != nil {
				return printFailure(out, result, err)
			}
			if n := result.Report.Mismatches(); n > 0 {
				fmt.Fprintf(out, "\n%d tally check(s) differed from the expected count\n", n)
			}
			fmt.Fprintf(out, "\nVerification of %s complete\n", address.Hex())
			return nil
		},
	}

	cmd.Flags().String("deployer", "", "voting account (default: the node's first account)")
	cmd.Flags().Duration("poll-interval", time.Second, "receipt polling interval")
	addVerifyFlags(cmd)

	keys := map[string]string{
		"deployer.account":             "deployer",
		"deploy.receipt_poll_interval": "poll-interval",
		"verify.candidate_index":       "candidate-index",
		"verify.rounds":                "rounds",
		"verify.strict":                "strict",
	}
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return a.bind(cmd.Flags(), keys)
	}
	return cmd
}
