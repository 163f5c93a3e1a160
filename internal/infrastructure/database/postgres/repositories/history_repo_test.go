package repositories

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/MolForge/internal/domain/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/database/postgres"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

type HistoryRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo generation.HistoryRepository
}

func (s *HistoryRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	log := logging.NewNopLogger()
	s.repo = NewPostgresHistoryRepo(postgres.NewConnectionWithDB(s.db, log), log)
}

func (s *HistoryRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func historyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "smiles", "num_molecules", "min_similarity", "particles", "iterations",
		"generated_molecules", "created_at",
	})
}

func (s *HistoryRepoTestSuite) TestCreate_Success() {
	rec, err := generation.NewHistoryRecord("user-1", generation.NewRequest(generation.DefaultForm()),
		[]gentypes.Candidate{{ID: "a", Structure: "CCO", Score: 0.8}})
	s.Require().NoError(err)

	s.mock.ExpectExec("INSERT INTO generation_history").
		WithArgs(rec.ID.String(), "user-1", generation.DefaultSeedStructure,
			10.0, 0.3, 30.0, 10.0,
			[]byte(`[{"id":"a","structure":"CCO","score":0.8}]`), rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Create(context.Background(), rec))
}

func (s *HistoryRepoTestSuite) TestCreate_AssignsIDAndEmptyCandidates() {
	rec := &generation.HistoryRecord{UserID: "user-1", CreatedAt: time.Now()}

	s.mock.ExpectExec("INSERT INTO generation_history").
		WithArgs(sqlmock.AnyArg(), "user-1", "", 0.0, 0.0, 0.0, 0.0, []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Create(context.Background(), rec))
	s.NotEqual(uuid.Nil, rec.ID)
}

func (s *HistoryRepoTestSuite) TestCreate_Failure() {
	rec := &generation.HistoryRecord{ID: uuid.New(), UserID: "user-1"}
	s.mock.ExpectExec("INSERT INTO generation_history").WillReturnError(errors.New("disk full"))

	err := s.repo.Create(context.Background(), rec)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeHistoryPersistFailed))
}

func (s *HistoryRepoTestSuite) TestListByUser_NewestFirst() {
	newer, older := uuid.New(), uuid.New()
	now := time.Now().UTC()

	s.mock.ExpectQuery(`SELECT .* FROM generation_history WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(historyRows().
			AddRow(newer.String(), "user-1", "CCO", 10.0, 0.3, 30.0, 10.0,
				[]byte(`[{"id":"x","structure":"CCO","score":null}]`), now).
			AddRow(older.String(), "user-1", "CCN", 5.0, 0.5, 20.0, 3.0, []byte(`[]`), now.Add(-time.Hour)))

	got, err := s.repo.ListByUser(context.Background(), "user-1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(newer, got[0].ID)
	s.Equal(older, got[1].ID)
	s.Equal(gentypes.Number(0.3), got[0].Params.MinSimilarity)
	s.Require().Len(got[0].Candidates, 1)
	s.True(math.IsNaN(got[0].Candidates[0].Score.Float64()))
	s.Empty(got[1].Candidates)
}

func (s *HistoryRepoTestSuite) TestListByUser_Empty() {
	s.mock.ExpectQuery("SELECT .* FROM generation_history").
		WithArgs("nobody").
		WillReturnRows(historyRows())

	got, err := s.repo.ListByUser(context.Background(), "nobody")
	s.NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func (s *HistoryRepoTestSuite) TestListByUser_QueryError() {
	s.mock.ExpectQuery("SELECT .* FROM generation_history").WillReturnError(errors.New("conn reset"))

	_, err := s.repo.ListByUser(context.Background(), "user-1")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *HistoryRepoTestSuite) TestListByUser_CorruptCandidates() {
	s.mock.ExpectQuery("SELECT .* FROM generation_history").
		WillReturnRows(historyRows().
			AddRow(uuid.NewString(), "user-1", "C", 1.0, 1.0, 1.0, 1.0, []byte(`{`), time.Now()))

	_, err := s.repo.ListByUser(context.Background(), "user-1")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *HistoryRepoTestSuite) TestGetByID_Found() {
	id := uuid.New()
	s.mock.ExpectQuery(`SELECT .* FROM generation_history WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(historyRows().
			AddRow(id.String(), "user-1", "CCO", 10.0, 0.3, 30.0, 10.0, []byte(`[]`), time.Now()))

	rec, err := s.repo.GetByID(context.Background(), id)
	s.Require().NoError(err)
	s.Equal(id, rec.ID)
	s.Equal("user-1", rec.UserID)
}

func (s *HistoryRepoTestSuite) TestGetByID_NotFound() {
	id := uuid.New()
	s.mock.ExpectQuery("SELECT .* FROM generation_history WHERE id").
		WithArgs(id.String()).
		WillReturnRows(historyRows())

	_, err := s.repo.GetByID(context.Background(), id)
	s.True(pkgerrors.IsNotFound(err))
}

func TestHistoryRepoTestSuite(t *testing.T) {
	suite.Run(t, new(HistoryRepoTestSuite))
}
