// Package compiler turns Solidity sources or pre-built artifacts into
// deployable contracts.
package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	gethcompiler "github.com/ethereum/go-ethereum/common/compiler"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/hashenkooleh/Votes-system/internal/contract"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
)

// DefaultSolc is the compiler binary looked up on PATH.
const DefaultSolc = "solc"

// Solc compiles contracts by shelling out to the solc binary.
type Solc struct {
	path   string
	logger *slog.Logger
}

// NewSolc creates a compiler using the solc binary at path.
func NewSolc(path string, logger *slog.Logger) *Solc {
	if path == "" {
		path = DefaultSolc
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Solc{path: path, logger: logger}
}

// Compile compiles the source file and returns the named contract.
func (s *Solc) Compile(ctx context.Context, sourcePath, contractName string) (*contract.Compiled, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "read source: %w", err)
	}

	s.logger.Debug("compiling contract",
		slog.String("source", sourcePath),
		slog.String("contract", contractName),
		slog.String("solc", s.path),
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.path, "--combined-json", "abi,bin", sourcePath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "%s %s: %w\n%s", s.path, sourcePath, err, strings.TrimSpace(stderr.String()))
	}

	return ParseCombinedOutput(stdout.Bytes(), sourcePath, contractName)
}

// ParseCombinedOutput extracts the named contract from solc --combined-json
// output. sourcePath is only used to disambiguate same-named contracts.
func ParseCombinedOutput(output []byte, sourcePath, contractName string) (*contract.Compiled, error) {
	contracts, err := gethcompiler.ParseCombinedJSON(output, "", "", "", "")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "parse solc output: %w", err)
	}

	found, err := pick(contracts, sourcePath, contractName)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "%w", err)
	}

	bytecode, err := hexutil.Decode(found.Code)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "decode bytecode of %s: %w", contractName, err)
	}
	rawABI, err := json.Marshal(found.Info.AbiDefinition)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "encode abi of %s: %w", contractName, err)
	}

	compiled, err := contract.NewCompiled(contractName, bytecode, rawABI)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "%w", err)
	}
	return compiled, nil
}

// pick finds a contract by bare name; solc keys contracts as "<source>:<Name>".
func pick(contracts map[string]*gethcompiler.Contract, sourcePath, name string) (*gethcompiler.Contract, error) {
	if c, ok := contracts[name]; ok {
		return c, nil
	}
	if c, ok := contracts[sourcePath+":"+name]; ok {
		return c, nil
	}
	var matches []string
	for key := range contracts {
		if strings.HasSuffix(key, ":"+name) {
			matches = append(matches, key)
		}
	}
	sort.Strings(matches)
	switch len(matches) {
	case 0:
		available := make([]string, 0, len(contracts))
		for key := range contracts {
			available = append(available, key)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("contract %s not found in solc output (have %s)", name, strings.Join(available, ", "))
	case 1:
		return contracts[matches[0]], nil
	default:
		return nil, fmt.Errorf("contract %s is ambiguous: %s", name, strings.Join(matches, ", "))
	}
}
