package verify

import "fmt"

// DefaultRounds is the number of votes cast by a verification run.
const DefaultRounds = 2

// Done is the terminal state of a successful run.
const Done = "Done"

// Kind distinguishes reads from writes.
type Kind string

const (
	KindCheck Kind = "check"
	KindVote  Kind = "vote"
)

// Step is one state of the verification sequence.
type Step struct {
	Name string
	Kind Kind
	// Expected is the tally a check should observe on a fresh contract.
	Expected uint64
}

// Plan returns the states for the given number of rounds:
// Check0, Vote1, Check1, ..., Vote<rounds>, Check<rounds>.
func Plan(rounds int) []Step {
	if rounds < 0 {
		rounds = 0
	}
	steps := make([]Step, 0, 2*rounds+1)
	steps = append(steps, Step{Name: "Check0", Kind: KindCheck})
	for i := 1; i <= rounds; i++ {
		steps = append(steps,
			Step{Name: fmt.Sprintf("Vote%d", i), Kind: KindVote},
			Step{Name: fmt.Sprintf("Check%d", i), Kind: KindCheck, Expected: uint64(i)},
		)
	}
	return steps
}
