package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/turtacn/MolForge/internal/domain/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/database/postgres"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

const historyColumns = `id, user_id, smiles, num_molecules, min_similarity, particles, iterations, generated_molecules, created_at`

type postgresHistoryRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresHistoryRepo returns a HistoryRepository storing candidates as
// JSONB next to the request parameters.
func NewPostgresHistoryRepo(conn *postgres.Connection, log logging.Logger) generation.HistoryRepository {
	return &postgresHistoryRepo{
		conn:     conn,
		log:      log.Named("history_repo"),
		executor: conn.DB(),
	}
}

func (r *postgresHistoryRepo) Create(ctx context.Context, rec *generation.HistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	candidates := rec.Candidates
	if candidates == nil {
		candidates = []gentypes.Candidate{}
	}
	payload, err := json.Marshal(candidates)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode generated molecules")
	}

	query := `
		INSERT INTO generation_history (
			id, user_id, smiles, num_molecules, min_similarity, particles, iterations, generated_molecules, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.executor.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Params.SeedStructure,
		rec.Params.NumCandidates.Float64(), rec.Params.MinSimilarity.Float64(),
		rec.Params.ParticleCount.Float64(), rec.Params.IterationCount.Float64(),
		payload, rec.CreatedAt,
	)
	if err != nil {
		r.log.Error("insert history record failed", logging.String("record_id", rec.ID.String()), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeHistoryPersistFailed, "failed to create history record")
	}
	return nil
}

func (r *postgresHistoryRepo) ListByUser(ctx context.Context, userID string) ([]*generation.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM generation_history WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list history records")
	}
	defer rows.Close()

	out := make([]*generation.HistoryRecord, 0)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate history records")
	}
	return out, nil
}

func (r *postgresHistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*generation.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM generation_history WHERE id = $1`
	rec, err := scanHistory(r.executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeHistoryNotFound, "history record not found").WithDetail(id.String())
		}
		return nil, err
	}
	return rec, nil
}

func scanHistory(row scanner) (*generation.HistoryRecord, error) {
	var (
		rec                                    generation.HistoryRecord
		num, similarity, particles, iterations float64
		payload                                []byte
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Params.SeedStructure,
		&num, &similarity, &particles, &iterations, &payload, &rec.CreatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan history record")
	}

	rec.Params.NumCandidates = gentypes.Number(num)
	rec.Params.MinSimilarity = gentypes.Number(similarity)
	rec.Params.ParticleCount = gentypes.Number(particles)
	rec.Params.IterationCount = gentypes.Number(iterations)

	if err := json.Unmarshal(payload, &rec.Candidates); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode generated molecules")
	}
	return &rec, nil
}
