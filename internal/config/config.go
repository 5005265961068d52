// Package config provides configuration management for the vote deployer.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/hashenkooleh/Votes-system/internal/artifact"
	"github.com/hashenkooleh/Votes-system/internal/contract"
	"github.com/hashenkooleh/Votes-system/internal/deploy"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
	"github.com/hashenkooleh/Votes-system/internal/verify"
)

// EnvPrefix prefixes every environment variable, e.g. VOTES_NODE_RPC_URL.
const EnvPrefix = "VOTES"

// Config holds all configuration for a deployment run.
type Config struct {
	Node       NodeConfig     `mapstructure:"node"`
	Contract   ContractConfig `mapstructure:"contract"`
	Candidates []string       `mapstructure:"candidates"`
	Deployer   DeployerConfig `mapstructure:"deployer"`
	Deploy     DeployConfig   `mapstructure:"deploy"`
	Artifact   ArtifactConfig `mapstructure:"artifact"`
	Verify     VerifyConfig   `mapstructure:"verify"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
	Log        LogConfig      `mapstructure:"log"`
}

// NodeConfig holds the node connection settings.
type NodeConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

// ContractConfig selects the contract to deploy.
type ContractConfig struct {
	Source   string `mapstructure:"source"`
	Name     string `mapstructure:"name" validate:"required"`
	Artifact string `mapstructure:"artifact"` // pre-built JSON, used instead of Source when set
	Solc     string `mapstructure:"solc"`
}

// DeployerConfig holds the deployer account selection.
type DeployerConfig struct {
	Account string `mapstructure:"account" validate:"omitempty,eth_addr"` // empty selects the node's first account
}

// DeployConfig holds gas and receipt settings.
type DeployConfig struct {
	EstimateGasCeiling  uint64        `mapstructure:"estimate_gas_ceiling" validate:"gt=0"`
	GasMargin           uint64        `mapstructure:"gas_margin"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval" validate:"gt=0s"`
}

// ArtifactConfig holds the artifact output settings.
type ArtifactConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=js json yaml yml"`
}

// VerifyConfig holds the interaction check settings.
type VerifyConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	CandidateIndex int  `mapstructure:"candidate_index" validate:"gte=0"`
	Rounds         int  `mapstructure:"rounds" validate:"gte=0"`
	Strict         bool `mapstructure:"strict"`
}

// MetricsConfig holds the pushgateway settings.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"` // empty disables pushing
	Job            string `mapstructure:"job" validate:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// NewViper returns a viper instance with defaults and environment binding set up.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load reads configuration from path, or from vote-deployer.yaml in the
// usual locations when path is empty. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vote-deployer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Node defaults
	v.SetDefault("node.rpc_url", "http://localhost:8545")

	// Contract defaults
	v.SetDefault("contract.source", "contracts/Voting.sol")
	v.SetDefault("contract.name", "Voting")
	v.SetDefault("contract.artifact", "")
	v.SetDefault("contract.solc", "solc")

	v.SetDefault("candidates", []string{"Nick", "Edward", "John"})
	v.SetDefault("deployer.account", "")

	// Deploy defaults
	v.SetDefault("deploy.estimate_gas_ceiling", deploy.DefaultEstimateGasCeiling)
	v.SetDefault("deploy.gas_margin", deploy.DefaultGasMargin)
	v.SetDefault("deploy.receipt_poll_interval", "1s")

	// Artifact defaults
	v.SetDefault("artifact.path", artifact.DefaultPath)
	v.SetDefault("artifact.format", string(artifact.FormatJS))

	// Verification defaults
	v.SetDefault("verify.enabled", true)
	v.SetDefault("verify.candidate_index", 0)
	v.SetDefault("verify.rounds", verify.DefaultRounds)
	v.SetDefault("verify.strict", false)

	// Metrics defaults
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "vote_deployer")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks the configuration for a full deployment run.
func (c *Config) Validate() error {
	if c.Node.RPCURL == "" {
		return apperrors.ErrMissingRPCURL
	}
	if c.Contract.Source == "" && c.Contract.Artifact == "" {
		return apperrors.ErrMissingContract
	}
	if _, err := contract.NewCandidates(c.Candidates); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidCandidates, "%w", err)
	}
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Verify.CandidateIndex >= len(c.Candidates) {
		return apperrors.NewValidationError("verify.candidate_index",
			fmt.Sprintf("%d is out of range for %d candidates", c.Verify.CandidateIndex, len(c.Candidates)))
	}
	if _, err := c.SlogLevel(); err != nil {
		return apperrors.NewValidationError("log.level", err.Error())
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their config key.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct applies the validate tags and reports the first failing
// field as a ValidationError keyed by its config path.
func validateStruct(c *Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	msg := "failed " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return apperrors.NewValidationError(key, fmt.Sprintf("%s (got %v)", msg, fe.Value()))
}

// DeployerAddress returns the configured deployer account, or nil when the
// node's first account should be used.
func (c *Config) DeployerAddress() (*common.Address, error) {
	if c.Deployer.Account == "" {
		return nil, nil
	}
	if !common.IsHexAddress(c.Deployer.Account) {
		return nil, apperrors.NewValidationError("deployer.account", fmt.Sprintf("%q is not a hex address", c.Deployer.Account))
	}
	addr := common.HexToAddress(c.Deployer.Account)
	return &addr, nil
}

// DeploySettings converts the deploy section for the deployer.
func (c *Config) DeploySettings() deploy.Config {
	return deploy.Config{
		EstimateGasCeiling: c.Deploy.EstimateGasCeiling,
		GasMargin:          c.Deploy.GasMargin,
		PollInterval:       c.Deploy.ReceiptPollInterval,
	}
}

// VerifySettings converts the verify section for the verifier.
func (c *Config) VerifySettings() verify.Config {
	return verify.Config{
		CandidateIndex: c.Verify.CandidateIndex,
		Rounds:         c.Verify.Rounds,
		Strict:         c.Verify.Strict,
		PollInterval:   c.Deploy.ReceiptPollInterval,
	}
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
