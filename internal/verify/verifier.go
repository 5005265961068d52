// Package verify exercises a freshly deployed voting contract with an
// alternating sequence of tally reads and votes.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hashenkooleh/Votes-system/internal/contract"
	"github.com/hashenkooleh/Votes-system/internal/ethereum"
	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
)

// StepError reports the verification step that failed.
type StepError struct {
	Step string
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("verification step %s: %v", e.Step, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Is reports every StepError as a verification failure.
func (e *StepError) Is(target error) bool {
	return target == apperrors.ErrVerification
}

// Config holds verification settings.
type Config struct {
	// CandidateIndex selects the candidate voted for.
	CandidateIndex int
	Rounds         int
	// Strict turns a tally mismatch into a failure.
	Strict       bool
	PollInterval time.Duration
}

// DefaultConfig returns the default verification settings.
func DefaultConfig() Config {
	return Config{
		Rounds:       DefaultRounds,
		PollInterval: ethereum.DefaultReceiptPollInterval,
	}
}

// Observation is the outcome of one step.
type Observation struct {
	Step     string
	Kind     Kind
	Expected uint64
	Observed uint64
	Matched  bool
	TxHash   common.Hash
	GasUsed  uint64
	Duration time.Duration
}

// Report summarizes a verification run.
type Report struct {
	Candidate    string
	Observations []Observation
	// State is the last state reached; Done on success.
	State string
}

// Mismatches counts checks whose tally differed from the expected value.
func (r *Report) Mismatches() int {
	n := 0
	for _, o := range r.Observations {
		if o.Kind == KindCheck && !o.Matched {
			n++
		}
	}
	return n
}

// FinalTally returns the tally read by the last check.
func (r *Report) FinalTally() (uint64, bool) {
	for i := len(r.Observations) - 1; i >= 0; i-- {
		if r.Observations[i].Kind == KindCheck {
			return r.Observations[i].Observed, true
		}
	}
	return 0, false
}

// StepCallback is called after each completed step.
type StepCallback func(Observation)

// Verifier runs the verification sequence.
type Verifier struct {
	backend   ethereum.Backend
	candidate contract.Candidate
	config    Config
	logger    *slog.Logger
}

// NewVerifier creates a Verifier voting for candidates[cfg.CandidateIndex].
func NewVerifier(backend ethereum.Backend, candidates []contract.Candidate, cfg Config, logger *slog.Logger) (*Verifier, error) {
	if cfg.CandidateIndex < 0 || cfg.CandidateIndex >= len(candidates) {
		return nil, fmt.Errorf("candidate index %d out of range for %d candidates", cfg.CandidateIndex, len(candidates))
	}
	if cfg.Rounds < 0 {
		return nil, fmt.Errorf("rounds must not be negative, got %d", cfg.Rounds)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = ethereum.DefaultReceiptPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		backend:   backend,
		candidate: candidates[cfg.CandidateIndex],
		config:    cfg,
		logger:    logger,
	}, nil
}

// Candidate returns the candidate being voted for.
func (v *Verifier) Candidate() contract.Candidate {
	return v.candidate
}

// Run executes every step in order, each one only after the previous step
// completed. The first failure stops the run; the partial report is returned
// with the error.
func (v *Verifier) Run(ctx context.Context, deployed *contract.Deployed, from common.Address, onStep StepCallback) (*Report, error) {
	report := &Report{Candidate: v.candidate.Name}

	encoded, err := v.candidate.Encode()
	if err != nil {
		return report, &StepError{Step: "Check0", Err: err}
	}
	bound := contract.Bind(deployed, v.backend, v.config.PollInterval)

	for _, step := range Plan(v.config.Rounds) {
		report.State = step.Name
		start := time.Now()

		var obs Observation
		switch step.Kind {
		case KindCheck:
			obs, err = v.check(ctx, bound, step, encoded)
		case KindVote:
			obs, err = v.vote(ctx, bound, step, encoded, from)
		}
		if err != nil {
			return report, &StepError{Step: step.Name, Err: err}
		}
		obs.Duration = time.Since(start)
		report.Observations = append(report.Observations, obs)
		if onStep != nil {
			onStep(obs)
		}

		if step.Kind == KindCheck && !obs.Matched && v.config.Strict {
			return report, &StepError{
				Step: step.Name,
				Err:  fmt.Errorf("tally for %s is %d, expected %d", v.candidate.Name, obs.Observed, obs.Expected),
			}
		}
	}

	report.State = Done
	return report, nil
}

func (v *Verifier) check(ctx context.Context, bound *contract.Bound, step Step, candidate [contract.CandidateSize]byte) (Observation, error) {
	out, err := bound.Call(ctx, contract.MethodTotalVotesFor, candidate)
	if err != nil {
		return Observation{}, err
	}
	if len(out) != 1 {
		return Observation{}, fmt.Errorf("%s returned %d values", contract.MethodTotalVotesFor, len(out))
	}
	tally, err := contract.ToUint64(out[0])
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{
		Step:     step.Name,
		Kind:     KindCheck,
		Expected: step.Expected,
		Observed: tally,
		Matched:  tally == step.Expected,
	}
	if obs.Matched {
		v.logger.Info("tally checked",
			slog.String("step", step.Name),
			slog.String("candidate", v.candidate.Name),
			slog.Uint64("tally", tally),
		)
	} else {
		v.logger.Warn("tally mismatch",
			slog.String("step", step.Name),
			slog.String("candidate", v.candidate.Name),
			slog.Uint64("tally", tally),
			slog.Uint64("expected", step.Expected),
		)
	}
	return obs, nil
}

func (v *Verifier) vote(ctx context.Context, bound *contract.Bound, step Step, candidate [contract.CandidateSize]byte, from common.Address) (Observation, error) {
	receipt, err := bound.Transact(ctx, from, contract.MethodVoteForCandidate, candidate)
	if err != nil {
		if receipt != nil && errors.Is(err, ethereum.ErrReverted) {
			v.logger.Error("vote reverted",
				slog.String("step", step.Name),
				slog.String("tx_hash", receipt.TxHash.Hex()),
			)
		}
		return Observation{}, err
	}

	v.logger.Info("vote confirmed",
		slog.String("step", step.Name),
		slog.String("candidate", v.candidate.Name),
		slog.String("tx_hash", receipt.TxHash.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return Observation{
		Step:    step.Name,
		Kind:    KindVote,
		Matched: true,
		TxHash:  receipt.TxHash,
		GasUsed: receipt.GasUsed,
	}, nil
}
