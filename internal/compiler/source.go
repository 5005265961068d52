package compiler

import (
	"context"

	"github.com/hashenkooleh/Votes-system/internal/contract"
)

// Source produces the compiled contract for a run.
type Source interface {
	Compile(ctx context.Context) (*contract.Compiled, error)
	// Describe names where the contract comes from, for operator output.
	Describe() string
}

// SolcSource compiles a Solidity file with solc.
type SolcSource struct {
	Solc         *Solc
	Path         string
	ContractName string
}

// Compile implements Source.
func (s *SolcSource) Compile(ctx context.Context) (*contract.Compiled, error) {
	return s.Solc.Compile(ctx, s.Path, s.ContractName)
}

// Describe implements Source.
func (s *SolcSource) Describe() string {
	return s.Path
}

// ArtifactSource loads a pre-built artifact.
type ArtifactSource struct {
	Path         string
	ContractName string
}

// Compile implements Source.
func (s *ArtifactSource) Compile(ctx context.Context) (*contract.Compiled, error) {
	return LoadArtifact(s.Path, s.ContractName)
}

// Describe implements Source.
func (s *ArtifactSource) Describe() string {
	return s.Path
}
