package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashenkooleh/Votes-system/internal/contract"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
	"github.com/hashenkooleh/Votes-system/internal/testutil/fakechain"
)

func readCombined(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "combined.json"))
	require.NoError(t, err)
	return data
}

func TestParseCombinedOutput(t *testing.T) {
	output := readCombined(t)

	t.Run("finds contract by name", func(t *testing.T) {
		compiled, err := ParseCombinedOutput(output, "contracts/Voting.sol", "Voting")
		require.NoError(t, err)
		assert.Equal(t, "Voting", compiled.Name)
		assert.Equal(t, fakechain.VotingBytecode, compiled.Bytecode)
		assert.NoError(t, compiled.RequireMethods(contract.MethodTotalVotesFor, contract.MethodVoteForCandidate))
		assert.Len(t, compiled.ABI.Constructor.Inputs, 1)
	})

	tests := []struct {
		name     string
		output   []byte
		contract string
		contains string
	}{
		{"interface has no bytecode", output, "IVoting", "no bytecode"},
		{"missing contract", output, "Ballot", "not found"},
		{"garbage output", []byte("Error: ParserError"), "Voting", "parse solc output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCombinedOutput(tt.output, "contracts/Voting.sol", tt.contract)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrCompile))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "solc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestSolc_Compile(t *testing.T) {
	source := filepath.Join(t.TempDir(), "Voting.sol")
	require.NoError(t, os.WriteFile(source, []byte("pragma solidity ^0.8.0;"), 0o644))

	combined, err := filepath.Abs(filepath.Join("testdata", "combined.json"))
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		solc := NewSolc(writeScript(t, "cat "+combined), nil)
		compiled, err := solc.Compile(context.Background(), source, "Voting")
		require.NoError(t, err)
		assert.Equal(t, fakechain.VotingBytecode, compiled.Bytecode)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		solc := NewSolc(writeScript(t, "echo 'ParserError: Expected pragma' >&2; exit 1"), nil)
		_, err := solc.Compile(context.Background(), source, "Voting")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrCompile))
		assert.Contains(t, err.Error(), "ParserError")
	})

	t.Run("solc missing", func(t *testing.T) {
		solc := NewSolc(filepath.Join(t.TempDir(), "no-such-solc"), nil)
		_, err := solc.Compile(context.Background(), source, "Voting")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrCompile))
	})

	t.Run("source missing", func(t *testing.T) {
		solc := NewSolc("", nil)
		_, err := solc.Compile(context.Background(), filepath.Join(t.TempDir(), "Nope.sol"), "Voting")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrCompile))
		assert.Contains(t, err.Error(), "read source")
	})
}
