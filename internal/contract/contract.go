// Package contract models the voting contract: its compiled form, the deployed
// handle, candidate encoding and a thin call/transact binding.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Method names of the voting contract.
const (
	MethodTotalVotesFor    = "totalVotesFor"
	MethodVoteForCandidate = "voteForCandidate"
)

// Compiled is the output of compiling one named contract.
type Compiled struct {
	Name     string
	Bytecode []byte
	ABI      abi.ABI
	RawABI   json.RawMessage
}

// NewCompiled validates bytecode and parses the ABI definition.
func NewCompiled(name string, bytecode []byte, rawABI []byte) (*Compiled, error) {
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("contract %s has no bytecode (abstract or interface?)", name)
	}
	parsed, err := abi.JSON(bytes.NewReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI of %s: %w", name, err)
	}
	return &Compiled{
		Name:     name,
		Bytecode: bytecode,
		ABI:      parsed,
		RawABI:   json.RawMessage(rawABI),
	}, nil
}

// RequireMethods checks that the ABI exposes every named method.
func (c *Compiled) RequireMethods(names ...string) error {
	for _, name := range names {
		if _, ok := c.ABI.Methods[name]; !ok {
			return fmt.Errorf("contract %s has no method %s", c.Name, name)
		}
	}
	return nil
}

// DeployData returns the creation payload: bytecode followed by the packed
// constructor arguments.
func (c *Compiled) DeployData(args ...any) ([]byte, error) {
	packed, err := c.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("pack constructor arguments: %w", err)
	}
	data := make([]byte, 0, len(c.Bytecode)+len(packed))
	data = append(data, c.Bytecode...)
	return append(data, packed...), nil
}

// Deployed is the handle of a contract instance confirmed on chain.
type Deployed struct {
	Name    string
	Address common.Address
	TxHash  common.Hash
	ABI     abi.ABI
	RawABI  json.RawMessage
}
