package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/yahya159/mobileApp/internal/model"
)

// PgStore is the pgvector-backed retrieval source, an alternative to the
// in-memory index for corpora that outgrow a single process. It implements
// the same Search contract the chat service consumes.
type PgStore struct {
	db        *sql.DB
	dimension int
}

func NewPgStore(conn string, dimension int) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(db, dimension); err != nil {
		db.Close()
		return nil, err
	}
	return &PgStore{db: db, dimension: dimension}, nil
}

// Replace swaps the stored corpus for a new chunk set in one transaction,
// so concurrent searches see either the old corpus or the new one, never a
// partial mix.
func (s *PgStore) Replace(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("store: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, text, source_offset, length, embedding)
		VALUES ($1, $2, $3, $4, $5::vector)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range chunks {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("store: chunk %d has dimension %d, want %d", c.ID, len(vectors[i]), s.dimension)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Text, c.Offset, c.Length, floatsToPgVectorLiteral(vectors[i])); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search returns up to k chunks ranked by cosine similarity to q. The <=>
// operator yields cosine distance, so similarity is 1 - distance. Ties are
// broken by ascending chunk id to keep result order deterministic.
func (s *PgStore) Search(ctx context.Context, q []float32, k int) ([]model.ScoredChunk, error) {
	if len(q) != s.dimension {
		return nil, fmt.Errorf("store: query has dimension %d, want %d", len(q), s.dimension)
	}
	vec := floatsToPgVectorLiteral(q)
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, text, source_offset, length, 1 - (embedding <=> $1::vector) AS score
		FROM chunks
		ORDER BY embedding <=> $1::vector, chunk_id
		LIMIT $2
	`, vec, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.ScoredChunk
	for rows.Next() {
		var sc model.ScoredChunk
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.Text, &sc.Chunk.Offset, &sc.Chunk.Length, &sc.Score); err != nil {
			return nil, err
		}
		res = append(res, sc)
	}
	return res, rows.Err()
}

func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (s *PgStore) Close() error {
	return s.db.Close()
}

func floatsToPgVectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range v {
		sb.WriteString(fmt.Sprintf("%.6f", float64(f)))
		if i < len(v)-1 {
			sb.WriteString(",")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
