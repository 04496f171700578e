// Package archive keeps completed sessions in Postgres.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-duet/pkg/chessdto"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a completed session. Sessions that are not complete are ignored.
func (r *Repository) SaveResult(ctx context.Context, doc *chessdto.GameSession) error {
	if r == nil || r.db == nil || doc == nil || doc.Status != chessdto.StatusComplete {
		return nil
	}
	result := normalizeResult(doc.Outcome)
	movesRaw, err := json.Marshal(doc.MoveHistory)
	if err != nil {
		return fmt.Errorf("encode moves: %w", err)
	}
	duration := doc.UpdatedAt.Sub(doc.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO duet_games (
        session_id, white_id, black_id, mode, difficulty,
        initial_position, final_position, result, result_method,
        moves_san, pgn, version, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
      ) ON CONFLICT (session_id) DO UPDATE SET
        white_id=EXCLUDED.white_id,
        black_id=EXCLUDED.black_id,
        mode=EXCLUDED.mode,
        difficulty=EXCLUDED.difficulty,
        initial_position=EXCLUDED.initial_position,
        final_position=EXCLUDED.final_position,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        version=EXCLUDED.version,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms
      WHERE duet_games.version <= EXCLUDED.version`

	_, err = r.db.ExecContext(ctx, q,
		doc.ID,
		doc.Participants.Player1ID, doc.Participants.Player2ID,
		string(doc.Mode), string(doc.Difficulty),
		doc.Start(), doc.Position,
		result, strings.TrimSpace(doc.Method),
		string(movesRaw), BuildPGN(doc),
		int64(doc.Version), doc.CreatedAt, doc.UpdatedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", doc.ID, err)
	}
	return nil
}
