package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/hashenkooleh/Votes-system/internal/contract"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
)

// ContractArtifact represents a pre-built Solidity contract with ABI and bytecode,
// as written by Foundry, Hardhat or Truffle.
type ContractArtifact struct {
	ABI          json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`
	ContractName string          `json:"contractName,omitempty"`
}

// Bytecode contains the contract creation code.
// It handles both formats:
// - Simple string: "0x608060..."
// - Object with "object" field: {"object": "0x608060..."}
type Bytecode struct {
	hex string
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode hex string.
func (b Bytecode) String() string {
	return b.hex
}

// Bytes decodes the bytecode. Unlinked library placeholders are rejected.
func (b Bytecode) Bytes() ([]byte, error) {
	h := b.hex
	if !strings.HasPrefix(h, "0x") && !strings.HasPrefix(h, "0X") {
		h = "0x" + h
	}
	if strings.Contains(h, "__") {
		return nil, fmt.Errorf("bytecode has unlinked library references")
	}
	if h == "0x" {
		return nil, nil
	}
	return hexutil.Decode(h)
}

// LoadArtifact reads a pre-built artifact file for the named contract.
func LoadArtifact(path, name string) (*contract.Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "read artifact %s: %w", path, err)
	}
	return ParseArtifact(data, name)
}

// ParseArtifact decodes artifact JSON for the named contract.
func ParseArtifact(data []byte, name string) (*contract.Compiled, error) {
	var artifact ContractArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "decode artifact: %w", err)
	}
	if artifact.ContractName != "" && artifact.ContractName != name {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "artifact holds %s, want %s", artifact.ContractName, name)
	}
	if len(artifact.ABI) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "artifact for %s has no abi", name)
	}

	bytecode, err := artifact.Bytecode.Bytes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "decode bytecode of %s: %w", name, err)
	}
	compiled, err := contract.NewCompiled(name, bytecode, artifact.ABI)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompile, "%w", err)
	}
	return compiled, nil
}
