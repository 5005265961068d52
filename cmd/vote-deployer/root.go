package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hashenkooleh/Votes-system/internal/compiler"
	"github.com/hashenkooleh/Votes-system/internal/config"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "vote-deployer",
		Short: "Deploy and exercise the Voting contract",
		Long: `Compile the Voting contract, deploy it from an account managed by the node,
write the contract handle for the browser client and verify it with a
check -> vote -> check -> vote -> check sequence.

Transactions are signed by the node (eth_sendTransaction), so point --rpc-url
at a development node with unlocked accounts such as Ganache or Anvil.

Every flag can also be set in vote-deployer.yaml or through VOTES_* environment
variables, e.g. VOTES_NODE_RPC_URL or VOTES_CANDIDATES=Nick,Edward,John.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./vote-deployer.yaml)")

	// Node and contract
	flags.String("rpc-url", "http://localhost:8545", "node JSON-RPC endpoint")
	flags.String("source", "contracts/Voting.sol", "Solidity source file")
	flags.String("contract", "Voting", "contract name")
	flags.String("artifact-in", "", "pre-built contract JSON to use instead of compiling")
	flags.String("solc", "solc", "solc binary")
	flags.StringSlice("candidates", []string{"Nick", "Edward", "John"}, "candidate names, in order")

	// Logging
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	if err := a.bind(flags, map[string]string{
		"node.rpc_url":      "rpc-url",
		"contract.source":   "source",
		"contract.name":     "contract",
		"contract.artifact": "artifact-in",
		"contract.solc":     "solc",
		"candidates":        "candidates",
		"log.level":         "log-level",
		"log.format":        "log-format",
	}); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		newDeployCmd(a),
		newCompileCmd(a),
		newVerifyCmd(a),
	)
	return rootCmd
}

// bind attaches flags to config keys so an explicitly set flag overrides the
// file and environment. Subcommands bind in PreRunE because several of them
// share keys.
func (a *app) bind(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	return config.Load(a.v, a.cfgFile)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newSource(cfg *config.Config, logger *slog.Logger) compiler.Source {
	if cfg.Contract.Artifact != "" {
		return &compiler.ArtifactSource{Path: cfg.Contract.Artifact, ContractName: cfg.Contract.Name}
	}
	return &compiler.SolcSource{
		Solc:         compiler.NewSolc(cfg.Contract.Solc, logger),
		Path:         cfg.Contract.Source,
		ContractName: cfg.Contract.Name,
	}
}
