package contract

import (
	"bytes"
	"fmt"
)

// CandidateSize is the on-chain width of an encoded candidate name (bytes32).
const CandidateSize = 32

// Candidate is a ballot option. Its position in the deployment candidate list
// becomes its on-chain index.
type Candidate struct {
	Name string
}

// Encode returns the name as a left-aligned, zero-padded bytes32 value.
func (c Candidate) Encode() ([CandidateSize]byte, error) {
	var out [CandidateSize]byte
	if c.Name == "" {
		return out, fmt.Errorf("candidate name is empty")
	}
	if len(c.Name) > CandidateSize {
		return out, fmt.Errorf("candidate %q is %d bytes, at most %d fit in bytes32", c.Name, len(c.Name), CandidateSize)
	}
	copy(out[:], c.Name)
	return out, nil
}

// DecodeCandidate reverses Encode.
func DecodeCandidate(b [CandidateSize]byte) Candidate {
	return Candidate{Name: string(bytes.TrimRight(b[:], "\x00"))}
}

// NewCandidates builds a candidate list from names, keeping their order.
// Names must be non-empty, fit in bytes32 and be unique once encoded, so
// names differing only by trailing NUL bytes collide.
func NewCandidates(names []string) ([]Candidate, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one candidate is required")
	}
	seen := make(map[[CandidateSize]byte]string, len(names))
	candidates := make([]Candidate, 0, len(names))
	for _, name := range names {
		c := Candidate{Name: name}
		enc, err := c.Encode()
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[enc]; dup {
			if prev == name {
				return nil, fmt.Errorf("duplicate candidate %q", name)
			}
			return nil, fmt.Errorf("duplicate candidate %q encodes the same as %q", name, prev)
		}
		seen[enc] = name
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// EncodeCandidates encodes every candidate, preserving order.
func EncodeCandidates(candidates []Candidate) ([][CandidateSize]byte, error) {
	out := make([][CandidateSize]byte, len(candidates))
	for i, c := range candidates {
		enc, err := c.Encode()
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Names returns the candidate names in order.
func Names(candidates []Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}
