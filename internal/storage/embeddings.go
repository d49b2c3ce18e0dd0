package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// StoredEmbedding is one persisted vector row, in normalized-article id
// order when loaded in bulk.
type StoredEmbedding struct {
	NormalizedID int
	Vector       []float32
	Model        string
}

// SaveEmbedding upserts the embedding for a normalized article.
func (db *DB) SaveEmbedding(ctx context.Context, normalizedID int, vector []float32, model string) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO vectors (normalized_id, embedding, model, dim)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (normalized_id) DO UPDATE
		SET embedding = EXCLUDED.embedding, model = EXCLUDED.model, dim = EXCLUDED.dim
	`, normalizedID, pgvector.NewVector(vector), model, len(vector)); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}

	return nil
}

// LoadAllEmbeddings returns every stored embedding in ascending
// normalized id order, for index warm-up. Rows written by a different
// model are skipped; they will be re-embedded on the next pass.
func (db *DB) LoadAllEmbeddings(ctx context.Context, model string) ([]StoredEmbedding, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT normalized_id, embedding, model
		FROM vectors
		WHERE model = $1
		ORDER BY normalized_id ASC
	`, model)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []StoredEmbedding

	for rows.Next() {
		var (
			e   StoredEmbedding
			vec pgvector.Vector
		)

		if err := rows.Scan(&e.NormalizedID, &vec, &e.Model); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}

		e.Vector = vec.Slice()
		embeddings = append(embeddings, e)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", rows.Err())
	}

	return embeddings, nil
}
