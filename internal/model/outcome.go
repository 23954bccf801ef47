package model

// Outcome classifies one input record against the directory.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeSkipped   Outcome = "skipped"
)

// Position is a zero-based index into the output record sequence.
type Position int

// Classification records how one input record was resolved and where its
// output rows landed.
type Classification struct {
	InputIndex int        `json:"input_index"`
	Name       string     `json:"name"`
	Outcome    Outcome    `json:"outcome"`
	Positions  []Position `json:"positions,omitempty"`
	Error      string     `json:"error,omitempty"`
}
