package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
)

// DefaultPath is where the browser client expects the handle.
const DefaultPath = "client/votingContractData.js"

// AddressOnlySuffix is appended to the artifact path for the fallback record.
const AddressOnlySuffix = ".address"

// Writer writes the artifact of a run to a single file.
type Writer struct {
	path   string
	format Format
	logger *slog.Logger
}

// NewWriter creates a Writer for path in the given format.
func NewWriter(path string, format Format, logger *slog.Logger) (*Writer, error) {
	if path == "" {
		path = DefaultPath
	}
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{path: path, format: format, logger: logger}, nil
}

// Path returns the artifact file path.
func (w *Writer) Path() string {
	return w.path
}

// Format returns the artifact encoding.
func (w *Writer) Format() Format {
	return w.format
}

// Write replaces the artifact file with a. Readers never observe a partial file.
func (w *Writer) Write(a *Artifact) error {
	data, err := Render(a, w.format)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrArtifactWrite, "render artifact for %s: %w", a.Address.Hex(), err)
	}
	if err := writeFile(w.path, data); err != nil {
		return apperrors.Wrap(apperrors.ErrArtifactWrite, "contract deployed at %s: %w", a.Address.Hex(), err)
	}

	w.logger.Info("artifact written",
		slog.String("path", w.path),
		slog.String("format", string(w.format)),
		slog.String("address", a.Address.Hex()),
	)
	return nil
}

// WriteAddressOnly records just the contract address next to the artifact
// path. It is the fallback when Write fails.
func (w *Writer) WriteAddressOnly(address common.Address) (string, error) {
	path := w.path + AddressOnlySuffix
	if err := writeFile(path, []byte(address.Hex()+"\n")); err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(destPath string, data []byte) error {
	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
