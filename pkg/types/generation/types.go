// Package generation defines the wire-level Data Transfer Objects shared by
// the HTTP interface, the Go SDK and the CLI: the generation payload sent to
// the molecule generation service, its response, generated candidates and
// history records.  No domain logic lives here, only plain data types that
// are safe to import from any layer.
package generation

import (
	"encoding/json"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixed generation settings
// ─────────────────────────────────────────────────────────────────────────────

const (
	// AlgorithmCMAES is the sampling algorithm requested from the service.
	AlgorithmCMAES = "CMA-ES"

	// PropertyQED is the scoring property optimised by the service
	// (quantitative estimate of drug-likeness).
	PropertyQED = "QED"
)

// ─────────────────────────────────────────────────────────────────────────────
// Payload: body of POST /api/generate-molecules
// ─────────────────────────────────────────────────────────────────────────────

// Payload is the request body forwarded verbatim to the generation service.
type Payload struct {
	Algorithm     string `json:"algorithm"`
	NumMolecules  Number `json:"num_molecules"`
	PropertyName  string `json:"property_name"`
	Minimize      bool   `json:"minimize"`
	MinSimilarity Number `json:"min_similarity"`
	Particles     Number `json:"particles"`
	Iterations    Number `json:"iterations"`
	SMI           string `json:"smi"`
}

// GenerateResponse is the success body of the generation service.  Molecules
// is kept raw: the service encodes it as a JSON string that itself holds a
// JSON array, and decoding it is the job of a single normalization step.
type GenerateResponse struct {
	Molecules json.RawMessage `json:"molecules"`
}

// RawMolecule is one element of the decoded molecules array.  Both fields are
// optional on the wire.
type RawMolecule struct {
	Sample *string `json:"sample,omitempty"`
	Score  *Number `json:"score,omitempty"`
}

// ProxyError is the error body returned by the generation proxy.
type ProxyError struct {
	Error string `json:"error"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Candidate
// ─────────────────────────────────────────────────────────────────────────────

// Candidate is one normalized generated structure.  ID is unique within the
// batch that produced it and carries no meaning outside of it.
type Candidate struct {
	ID        string `json:"id"`
	Structure string `json:"structure"`
	Score     Number `json:"score"`
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

// HistoryRecord is a persisted snapshot of one generation request and its
// normalized candidates.
type HistoryRecord struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"userId"`
	Smiles             string      `json:"smiles"`
	NumMolecules       Number      `json:"numMolecules"`
	MinSimilarity      Number      `json:"minSimilarity"`
	Particles          Number      `json:"particles"`
	Iterations         Number      `json:"iterations"`
	GeneratedMolecules []Candidate `json:"generatedMolecules"`
	CreatedAt          time.Time   `json:"createdAt"`
}

// CreateHistoryRequest is the body of POST /api/v1/history.  The owner is
// taken from the authenticated request, never from the body.
type CreateHistoryRequest struct {
	Smiles             string      `json:"smiles"`
	NumMolecules       Number      `json:"numMolecules"`
	MinSimilarity      Number      `json:"minSimilarity"`
	Particles          Number      `json:"particles"`
	Iterations         Number      `json:"iterations"`
	GeneratedMolecules []Candidate `json:"generatedMolecules"`
}

// HistoryList is the body of GET /api/v1/history, newest record first.
type HistoryList struct {
	Items []HistoryRecord `json:"items"`
	Total int             `json:"total"`
}

// ExportResponse points at an archived snapshot of a history record.
type ExportResponse struct {
	RecordID  string    `json:"recordId"`
	ObjectKey string    `json:"objectKey"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
