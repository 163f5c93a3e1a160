// Package generation holds the domain model of a molecule generation round
// trip: the request built from user input, the normalization of the service
// response into candidates, and the history record persisted per user.
package generation

import (
	"strings"

	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// Form defaults mirror what the generation form is pre-filled with.
const (
	DefaultSeedStructure = "CCN(CC)C(=O)[C@@]1(C)Nc2c(ccc3ccccc23)C[C@H]1N(C)C"
	DefaultNumMolecules  = "10"
	DefaultMinSimilarity = "0.3"
	DefaultParticles     = "30"
	DefaultIterations    = "10"
)

// Form is the raw, unvalidated text of the generation form.
type Form struct {
	Seed          string
	NumMolecules  string
	MinSimilarity string
	Particles     string
	Iterations    string
}

// DefaultForm returns a Form pre-filled with the default values.
func DefaultForm() Form {
	return Form{
		Seed:          DefaultSeedStructure,
		NumMolecules:  DefaultNumMolecules,
		MinSimilarity: DefaultMinSimilarity,
		Particles:     DefaultParticles,
		Iterations:    DefaultIterations,
	}
}

// Request is a GenerationRequest: the coerced form.  Numbers are never range
// checked; malformed input becomes NaN and travels as-is.
type Request struct {
	SeedStructure  string
	NumCandidates  gentypes.Number
	MinSimilarity  gentypes.Number
	ParticleCount  gentypes.Number
	IterationCount gentypes.Number
}

// NewRequest coerces a Form into a Request.  The seed is kept exactly as
// typed; only the payload sent upstream is trimmed.
func NewRequest(f Form) Request {
	return Request{
		SeedStructure:  f.Seed,
		NumCandidates:  gentypes.ParseNumber(f.NumMolecules),
		MinSimilarity:  gentypes.ParseNumber(f.MinSimilarity),
		ParticleCount:  gentypes.ParseNumber(f.Particles),
		IterationCount: gentypes.ParseNumber(f.Iterations),
	}
}

// Payload renders the body sent to the generation proxy with the fixed
// algorithm and objective.
func (r Request) Payload() gentypes.Payload {
	return gentypes.Payload{
		Algorithm:     gentypes.AlgorithmCMAES,
		NumMolecules:  r.NumCandidates,
		PropertyName:  gentypes.PropertyQED,
		Minimize:      false,
		MinSimilarity: r.MinSimilarity,
		Particles:     r.ParticleCount,
		Iterations:    r.IterationCount,
		SMI:           strings.TrimSpace(r.SeedStructure),
	}
}
