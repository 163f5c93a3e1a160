package generation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// IDGenerator yields candidate ids.  Ids need only be unique within a batch.
type IDGenerator func() string

// UUIDGenerator returns random UUIDv4 strings.
func UUIDGenerator() string { return uuid.NewString() }

// NormalizeMolecules turns the raw "molecules" field of a generation response
// into candidates.  The field is normally a JSON string wrapping a JSON array
// (double encoding); a bare array is accepted as well, so a change of the
// response schema is absorbed here and nowhere else.
//
// Each sample is trimmed and records without a sample are dropped, so the
// result never has more entries than the input.  Order is preserved.
func NormalizeMolecules(raw json.RawMessage, newID IDGenerator) ([]gentypes.Candidate, error) {
	if newID == nil {
		newID = UUIDGenerator
	}

	items, err := decodeMolecules(raw)
	if err != nil {
		return nil, err
	}

	out := make([]gentypes.Candidate, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Sample == nil {
			continue
		}
		structure := strings.TrimSpace(*item.Sample)
		if structure == "" {
			continue
		}
		score := gentypes.NaN()
		if item.Score != nil {
			score = *item.Score
		}

		id := newID()
		for _, dup := seen[id]; dup; _, dup = seen[id] {
			id = newID()
		}
		seen[id] = struct{}{}

		out = append(out, gentypes.Candidate{ID: id, Structure: structure, Score: score})
	}
	return out, nil
}

func decodeMolecules(raw json.RawMessage) ([]gentypes.RawMolecule, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New(errors.ErrCodeGenerationMalformed, "response has no molecules field")
	}

	payload := trimmed
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeGenerationMalformed, "molecules is not a valid JSON string")
		}
		payload = []byte(inner)
	}

	var items []gentypes.RawMolecule
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGenerationMalformed, "molecules does not hold a JSON array")
	}
	return items, nil
}
