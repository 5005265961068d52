package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashenkooleh/Votes-system/internal/contract"
)

func newCompileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the contract and print its ABI",
		Long: `Compile the contract (or load --artifact-in) without contacting a node,
check that it exposes the voting methods and print its ABI.

Examples:
  vote-deployer compile --source contracts/Voting.sol
  vote-deployer compile --artifact-in out/Voting.sol/Voting.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.OutOrStdout())
			source := newSource(cfg, logger)

			compiled, err := source.Compile(cmd.Context())
			if err != nil {
				return err
			}
			if err := compiled.RequireMethods(contract.MethodTotalVotesFor, contract.MethodVoteForCandidate); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Contract: %s (%s)\n", compiled.Name, source.Describe())
			fmt.Fprintf(out, "Bytecode: %d bytes\n", len(compiled.Bytecode))
			fmt.Fprintf(out, "ABI: %s\n", compiled.RawABI)
			return nil
		},
	}
}
