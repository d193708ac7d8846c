package semindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/pkg/models"
)

// PgvectorDriver stores tool vectors in PostgreSQL with the pgvector
// extension. The table and index are created on startup if missing.
type PgvectorDriver struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorDriver connects to PostgreSQL and runs the schema migration.
func NewPgvectorDriver(ctx context.Context, connURL string, dimensions int) (*PgvectorDriver, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	d := &PgvectorDriver{pool: pool, dimensions: dimensions}
	if err := d.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector tool index initialized")
	return d, nil
}

func (d *PgvectorDriver) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS tiller_tool_vectors (
			name       TEXT PRIMARY KEY,
			pack       TEXT NOT NULL DEFAULT '',
			vector     vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_tiller_tool_vectors_pack ON tiller_tool_vectors (pack);
	`, d.dimensions)

	_, err := d.pool.Exec(ctx, ddl)
	return err
}

func (d *PgvectorDriver) Kind() string { return "pgvector" }

func (d *PgvectorDriver) Upsert(ctx context.Context, tv ToolVector) error {
	if len(tv.Vector) != d.dimensions {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(tv.Vector), d.dimensions)
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO tiller_tool_vectors (name, pack, vector, updated_at)
		VALUES ($1, $2, $3::vector, NOW())
		ON CONFLICT (name) DO UPDATE
		SET pack = EXCLUDED.pack, vector = EXCLUDED.vector, updated_at = NOW()
	`, tv.Name, string(tv.Pack), vectorLiteral(tv.Vector))
	if err != nil {
		return fmt.Errorf("pgvector upsert %s: %w", tv.Name, err)
	}
	return nil
}

func (d *PgvectorDriver) Search(ctx context.Context, vector []float64, topK int, minScore float64, pack models.CapabilityPack) ([]models.ToolMatch, error) {
	// Cosine distance operator <=>; similarity = 1 - distance.
	query := `
		SELECT name, 1 - (vector <=> $1::vector) AS score
		FROM tiller_tool_vectors
		WHERE ($2 = '' OR pack = $2)
		  AND 1 - (vector <=> $1::vector) >= $3
		ORDER BY score DESC, name ASC
		LIMIT $4
	`
	rows, err := d.pool.Query(ctx, query, vectorLiteral(vector), string(pack), minScore, topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var matches []models.ToolMatch
	for rows.Next() {
		var m models.ToolMatch
		if err := rows.Scan(&m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (d *PgvectorDriver) Count(ctx context.Context) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tiller_tool_vectors`).Scan(&n)
	return n, err
}

func (d *PgvectorDriver) HealthCheck(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases the connection pool.
func (d *PgvectorDriver) Close() {
	d.pool.Close()
}

// vectorLiteral renders a float slice in pgvector's text format: [1,2,3].
func vectorLiteral(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}
