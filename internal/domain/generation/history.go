package generation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// ─────────────────────────────────────────────────────────────────────────────
// Domain Events
// ─────────────────────────────────────────────────────────────────────────────

// DomainEvent is a marker interface for generation-related domain events.
type DomainEvent interface {
	EventType() string
}

// EventHistoryCreated is the event type emitted after a history record has
// been stored.
const EventHistoryCreated = "generation.history.created"

// HistoryCreatedEvent is published once per persisted HistoryRecord.
type HistoryCreatedEvent struct {
	RecordID  uuid.UUID `json:"record_id"`
	UserID    string    `json:"user_id"`
	Count     int       `json:"candidate_count"`
	CreatedAt time.Time `json:"created_at"`
}

func (e HistoryCreatedEvent) EventType() string { return EventHistoryCreated }

// ─────────────────────────────────────────────────────────────────────────────
// HistoryRecord aggregate
// ─────────────────────────────────────────────────────────────────────────────

// HistoryRecord is a snapshot of one generation request and the candidates it
// produced.  Records are owned by exactly one user and never mutated after
// creation.
type HistoryRecord struct {
	ID         uuid.UUID
	UserID     string
	Params     Request
	Candidates []gentypes.Candidate
	CreatedAt  time.Time
}

// NewHistoryRecord builds a record for userID.  The candidate slice is copied
// so later changes to the caller's view cannot leak into the snapshot.
func NewHistoryRecord(userID string, params Request, candidates []gentypes.Candidate) (*HistoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New(errors.ErrCodeHistoryInvalid, "history record requires an owning user")
	}
	snapshot := make([]gentypes.Candidate, len(candidates))
	copy(snapshot, candidates)

	return &HistoryRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Params:     params,
		Candidates: snapshot,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// CreatedEvent returns the event announcing this record.
func (r *HistoryRecord) CreatedEvent() HistoryCreatedEvent {
	return HistoryCreatedEvent{
		RecordID:  r.ID,
		UserID:    r.UserID,
		Count:     len(r.Candidates),
		CreatedAt: r.CreatedAt,
	}
}

// ToDTO converts the aggregate into its wire representation.
func (r *HistoryRecord) ToDTO() gentypes.HistoryRecord {
	candidates := r.Candidates
	if candidates == nil {
		candidates = []gentypes.Candidate{}
	}
	return gentypes.HistoryRecord{
		ID:                 r.ID.String(),
		UserID:             r.UserID,
		Smiles:             r.Params.SeedStructure,
		NumMolecules:       r.Params.NumCandidates,
		MinSimilarity:      r.Params.MinSimilarity,
		Particles:          r.Params.ParticleCount,
		Iterations:         r.Params.IterationCount,
		GeneratedMolecules: candidates,
		CreatedAt:          r.CreatedAt,
	}
}

// HistoryRecordFromDTO rebuilds the aggregate from its wire representation.
func HistoryRecordFromDTO(dto gentypes.HistoryRecord) (*HistoryRecord, error) {
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeHistoryInvalid, "history record id is not a UUID")
	}
	if dto.UserID == "" {
		return nil, errors.New(errors.ErrCodeHistoryInvalid, "history record requires an owning user")
	}
	return &HistoryRecord{
		ID:     id,
		UserID: dto.UserID,
		Params: Request{
			SeedStructure:  dto.Smiles,
			NumCandidates:  dto.NumMolecules,
			MinSimilarity:  dto.MinSimilarity,
			ParticleCount:  dto.Particles,
			IterationCount: dto.Iterations,
		},
		Candidates: dto.GeneratedMolecules,
		CreatedAt:  dto.CreatedAt,
	}, nil
}

// RequestFromCreate maps the HTTP create body onto request parameters.
func RequestFromCreate(in gentypes.CreateHistoryRequest) Request {
	return Request{
		SeedStructure:  in.Smiles,
		NumCandidates:  in.NumMolecules,
		MinSimilarity:  in.MinSimilarity,
		ParticleCount:  in.Particles,
		IterationCount: in.Iterations,
	}
}
