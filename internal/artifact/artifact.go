// Package artifact persists the deployed contract handle for the browser
// client and other consumers.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hashenkooleh/Votes-system/internal/contract"
)

// Format selects the on-disk encoding of an artifact.
type Format string

const (
	// FormatJS assigns the handle to window globals for a <script> include.
	FormatJS   Format = "js"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name. The empty string selects FormatJS.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJS:
		return FormatJS, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown artifact format %q (want js, json or yaml)", s)
	}
}

// Artifact is the record of one deployment run.
type Artifact struct {
	RunID           string
	ContractName    string
	Address         common.Address
	ABI             json.RawMessage
	Candidates      []string
	DeployerAccount common.Address
	TxHash          common.Hash
	GeneratedAt     time.Time
}

// New builds the artifact for a deployed contract.
func New(runID string, deployed *contract.Deployed, candidates []contract.Candidate, deployer common.Address) *Artifact {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Artifact{
		RunID:           runID,
		ContractName:    deployed.Name,
		Address:         deployed.Address,
		ABI:             deployed.RawABI,
		Candidates:      contract.Names(candidates),
		DeployerAccount: deployer,
		TxHash:          deployed.TxHash,
		GeneratedAt:     time.Now().UTC(),
	}
}

// document is the serialized shape shared by the JSON and YAML formats.
type document struct {
	RunID           string    `json:"runId" yaml:"run_id"`
	Contract        string    `json:"contract,omitempty" yaml:"contract,omitempty"`
	Address         string    `json:"contractAddress" yaml:"contract_address"`
	ABI             any       `json:"contractABI" yaml:"contract_abi"`
	Candidates      []string  `json:"candidates" yaml:"candidates"`
	DeployerAccount string    `json:"testAccount" yaml:"test_account"`
	TxHash          string    `json:"transactionHash" yaml:"transaction_hash"`
	GeneratedAt     time.Time `json:"generatedAt" yaml:"generated_at"`
}

func (a *Artifact) document() (*document, error) {
	var abiDef any
	if len(a.ABI) > 0 {
		if err := json.Unmarshal(a.ABI, &abiDef); err != nil {
			return nil, fmt.Errorf("decode ABI: %w", err)
		}
	}
	candidates := a.Candidates
	if candidates == nil {
		candidates = []string{}
	}
	return &document{
		RunID:           a.RunID,
		Contract:        a.ContractName,
		Address:         a.Address.Hex(),
		ABI:             abiDef,
		Candidates:      candidates,
		DeployerAccount: a.DeployerAccount.Hex(),
		TxHash:          a.TxHash.Hex(),
		GeneratedAt:     a.GeneratedAt,
	}, nil
}

// Render encodes the artifact in the given format.
func Render(a *Artifact, format Format) ([]byte, error) {
	doc, err := a.document()
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJS:
		return renderJS(doc)
	default:
		return nil, fmt.Errorf("unknown artifact format %q", format)
	}
}

func renderJS(doc *document) ([]byte, error) {
	abiJSON, err := json.Marshal(doc.ABI)
	if err != nil {
		return nil, fmt.Errorf("encode ABI: %w", err)
	}
	candidatesJSON, err := json.Marshal(doc.Candidates)
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// run %s tx %s generated %s\n", doc.RunID, doc.TxHash, doc.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "window.contractAddress=%q;\n", doc.Address)
	fmt.Fprintf(&buf, "window.contractABI=%s;\n", abiJSON)
	fmt.Fprintf(&buf, "window.candidates=%s;\n", candidatesJSON)
	fmt.Fprintf(&buf, "window.testAccount=%q;\n", doc.DeployerAccount)
	return buf.Bytes(), nil
}
