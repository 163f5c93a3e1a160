package generation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

func sampleCandidates() []gentypes.Candidate {
	return []gentypes.Candidate{
		{ID: "a", Structure: "CCO", Score: 0.8},
		{ID: "b", Structure: "CCN", Score: 0.5},
	}
}

func TestNewHistoryRecord(t *testing.T) {
	cands := sampleCandidates()
	rec, err := NewHistoryRecord("user-1", NewRequest(DefaultForm()), cands)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, cands, rec.Candidates)
	assert.False(t, rec.CreatedAt.IsZero())

	cands[0].Structure = "mutated"
	assert.Equal(t, "CCO", rec.Candidates[0].Structure)
}

func TestNewHistoryRecord_RequiresUser(t *testing.T) {
	_, err := NewHistoryRecord("  ", NewRequest(DefaultForm()), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeHistoryInvalid))
}

func TestHistoryRecord_DTORoundTrip(t *testing.T) {
	f := DefaultForm()
	f.Seed = " CCO "
	rec, err := NewHistoryRecord("user-1", NewRequest(f), sampleCandidates())
	require.NoError(t, err)

	dto := rec.ToDTO()
	assert.Equal(t, rec.ID.String(), dto.ID)
	assert.Equal(t, " CCO ", dto.Smiles)
	assert.Equal(t, gentypes.Number(10), dto.NumMolecules)
	assert.Equal(t, gentypes.Number(0.3), dto.MinSimilarity)

	back, err := HistoryRecordFromDTO(dto)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, rec.Params, back.Params)
	assert.Equal(t, rec.Candidates, back.Candidates)
}

func TestHistoryRecord_ToDTO_NilCandidates(t *testing.T) {
	rec := &HistoryRecord{ID: uuid.New(), UserID: "u"}
	assert.NotNil(t, rec.ToDTO().GeneratedMolecules)
}

func TestHistoryRecordFromDTO_Invalid(t *testing.T) {
	_, err := HistoryRecordFromDTO(gentypes.HistoryRecord{ID: "nope", UserID: "u"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeHistoryInvalid))

	_, err = HistoryRecordFromDTO(gentypes.HistoryRecord{ID: uuid.NewString()})
	assert.True(t, errors.IsCode(err, errors.ErrCodeHistoryInvalid))
}

func TestHistoryRecord_CreatedEvent(t *testing.T) {
	rec, err := NewHistoryRecord("user-1", NewRequest(DefaultForm()), sampleCandidates())
	require.NoError(t, err)

	ev := rec.CreatedEvent()
	assert.Equal(t, EventHistoryCreated, ev.EventType())
	assert.Equal(t, rec.ID, ev.RecordID)
	assert.Equal(t, 2, ev.Count)
}

func TestRequestFromCreate(t *testing.T) {
	req := RequestFromCreate(gentypes.CreateHistoryRequest{Smiles: "C", NumMolecules: 3, Particles: 30})
	assert.Equal(t, "C", req.SeedStructure)
	assert.Equal(t, gentypes.Number(3), req.NumCandidates)
	assert.Equal(t, gentypes.Number(30), req.ParticleCount)
}
