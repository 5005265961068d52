// Package errors defines the fatal error taxonomy of a deployment run.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors - one per pipeline failure class. None of them is retried.
var (
	ErrCompile           = errors.New("votes: contract compilation failed")
	ErrAccountResolution = errors.New("votes: no deployer account available")
	ErrGasEstimation     = errors.New("votes: gas estimation failed")
	ErrDeployment        = errors.New("votes: deployment failed")
	ErrArtifactWrite     = errors.New("votes: artifact write failed")
	ErrVerification      = errors.New("votes: verification failed")
)

// Sentinel errors - Configuration
var (
	ErrMissingRPCURL     = errors.New("votes: node RPC URL is required")
	ErrMissingContract   = errors.New("votes: contract source or artifact is required")
	ErrInvalidCandidates = errors.New("votes: invalid candidate list")
)

// Stage names the pipeline stage an error happened in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageCompile  Stage = "compile"
	StageAccounts Stage = "resolve_account"
	StageDeploy   Stage = "deploy"
	StageArtifact Stage = "write_artifact"
	StageVerify   Stage = "verify"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *StageError) Unwrap() error {
	return e.Err
}

// WrapStage wraps err with stage context.
// Returns nil if the provided error is nil.
func WrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err's chain, if any.
func StageOf(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

// Wrap joins a sentinel with the underlying cause so that both
// errors.Is(err, sentinel) and errors.Is(err, cause) hold.
func Wrap(sentinel error, format string, args ...any) error {
	return &classified{sentinel: sentinel, err: fmt.Errorf(format, args...)}
}

type classified struct {
	sentinel error
	err      error
}

func (c *classified) Error() string {
	return fmt.Sprintf("%v: %v", c.sentinel, c.err)
}

func (c *classified) Unwrap() []error {
	return []error{c.sentinel, c.err}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError with the given field and message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
