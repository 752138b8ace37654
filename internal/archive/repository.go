// Package archive persists completed analyses. The Postgres implementation
// is the production path; the in-memory repository backs local development
// and tests.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/chesslens/chesslens/internal/domain"
)

var ErrDuplicateAnalysis = errors.New("archive: analysis already exists")

type Repository interface {
	InsertAnalysis(ctx context.Context, a *domain.Analysis) (int64, error)
	GetRecentAnalyses(ctx context.Context, limit int) ([]*domain.Analysis, error)
	GetAnalysisBySession(ctx context.Context, sessionUUID string) (*domain.Analysis, error)
}

type repository struct {
	db *sql.DB
}

// NewRepository opens a Postgres-backed repository.
func NewRepository(databaseURL string) (Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &repository{db: db}, nil
}

func (r *repository) InsertAnalysis(ctx context.Context, a *domain.Analysis) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("nil analysis payload")
	}

	movesUCI, err := json.Marshal(a.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(a.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO analyses (
			session_uuid,
			source,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			final_fen,
			frames,
			rejected,
			unresolved,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		a.SessionUUID,
		a.Source,
		a.Result,
		a.ResultMethod,
		movesUCI,
		movesSAN,
		a.PGN,
		a.FinalFEN,
		a.Frames,
		a.Rejected,
		a.Unresolved,
		a.StartedAt,
		a.EndedAt,
		a.Duration.Milliseconds(),
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateAnalysis
	}
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetRecentAnalyses(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			id,
			session_uuid,
			source,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			final_fen,
			frames,
			rejected,
			unresolved,
			started_at,
			ended_at,
			duration_ms
		FROM analyses
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select analyses: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Analysis, 0, limit)
	for rows.Next() {
		a, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) GetAnalysisBySession(ctx context.Context, sessionUUID string) (*domain.Analysis, error) {
	const query = `
		SELECT
			id,
			session_uuid,
			source,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			final_fen,
			frames,
			rejected,
			unresolved,
			started_at,
			ended_at,
			duration_ms
		FROM analyses
		WHERE session_uuid = $1
		ORDER BY ended_at DESC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, sessionUUID)
	a, err := scanAnalysis(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAnalysis(scan func(dest ...any) error) (*domain.Analysis, error) {
	var (
		a            domain.Analysis
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
	)
	if err := scan(
		&a.ID,
		&a.SessionUUID,
		&a.Source,
		&a.Result,
		&a.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&a.PGN,
		&a.FinalFEN,
		&a.Frames,
		&a.Rejected,
		&a.Unresolved,
		&a.StartedAt,
		&a.EndedAt,
		&durationMS,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	if durationMS.Valid {
		a.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &a.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &a.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &a, nil
}
