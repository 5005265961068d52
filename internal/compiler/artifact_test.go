package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
	"github.com/hashenkooleh/Votes-system/internal/testutil/fakechain"
)

const votingHex = "0x608060405234801561001057600080fd5b50604051610400380380610400833981810160405281019061003291906101f5565b"

func TestBytecode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"string", `"0x6080"`, "0x6080", false},
		{"object", `{"object":"0x6080","sourceMap":""}`, "0x6080", false},
		{"number", `42`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Bytecode
			err := json.Unmarshal([]byte(tt.input), &b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.String())
		})
	}
}

func TestBytecode_Bytes(t *testing.T) {
	b := Bytecode{hex: "6080"}
	data, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, data)

	_, err = Bytecode{hex: "0x6080__$lib$__"}.Bytes()
	assert.Error(t, err)
}

func TestParseArtifact(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
		contains string
	}{
		{
			name:     "foundry",
			artifact: `{"abi":` + fakechain.VotingABI + `,"bytecode":{"object":"` + votingHex + `"}}`,
		},
		{
			name:     "hardhat",
			artifact: `{"contractName":"Voting","abi":` + fakechain.VotingABI + `,"bytecode":"` + votingHex + `"}`,
		},
		{
			name:     "other contract",
			artifact: `{"contractName":"Ballot","abi":` + fakechain.VotingABI + `,"bytecode":"` + votingHex + `"}`,
			contains: "artifact holds Ballot",
		},
		{
			name:     "no abi",
			artifact: `{"bytecode":"` + votingHex + `"}`,
			contains: "no abi",
		},
		{
			name:     "empty bytecode",
			artifact: `{"abi":` + fakechain.VotingABI + `,"bytecode":"0x"}`,
			contains: "no bytecode",
		},
		{
			name:     "not json",
			artifact: `abi: []`,
			contains: "decode artifact",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := ParseArtifact([]byte(tt.artifact), "Voting")
			if tt.contains != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrCompile))
				assert.Contains(t, err.Error(), tt.contains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fakechain.VotingBytecode, compiled.Bytecode)
			assert.Contains(t, compiled.ABI.Methods, "voteForCandidate")
		})
	}
}

func TestArtifactSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Voting.json")
	body := `{"abi":` + fakechain.VotingABI + `,"bytecode":"` + votingHex + `"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	src := &ArtifactSource{Path: path, ContractName: "Voting"}
	assert.Equal(t, path, src.Describe())
	compiled, err := src.Compile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Voting", compiled.Name)

	missing := &ArtifactSource{Path: filepath.Join(t.TempDir(), "missing.json"), ContractName: "Voting"}
	_, err = missing.Compile(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrCompile))
}
