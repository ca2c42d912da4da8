// Package fridge implements the visual-similarity inventory
// reconciliation engine: similarity search over stored image
// embeddings, and the state machine that turns a search result into a
// ledger mutation or a staged pending update.
package fridge

// Similarity thresholds per call site. These are policy, not tuning
// knobs scattered inline: every search names the threshold it runs at.
const (
	// IntakeThreshold gates new-item deduplication: a score at or above
	// it means the intake photo shows something we have seen before.
	IntakeThreshold float32 = 0.75

	// OuttakeThreshold gates removal matching. Slightly looser than
	// intake: removal photos tend to be worse (motion, partial views).
	OuttakeThreshold float32 = 0.70

	// SuggestionThreshold gates display-only similar-item suggestions.
	// Strictest of the three since suggestions carry no confirmation
	// step.
	SuggestionThreshold float32 = 0.85
)

// candidatePool is the number of candidates requested from the managed
// index so threshold filtering has enough to work with.
const candidatePool = 100
