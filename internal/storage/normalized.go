package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// NormalizedArticle is a cleaned, language-tagged, quality-scored
// article suitable for embedding and clustering.
type NormalizedArticle struct {
	ID           int
	OriginalID   int
	Title        string
	Content      string
	Link         string
	Source       string
	PublishedAt  time.Time
	LanguageCode string
	Entities     []string
	QualityScore float32
	WordCount    int
	CreatedAt    time.Time
}

// BatchLog records the outcome of one normalization batch.
type BatchLog struct {
	BatchID   string
	Total     int
	Processed int
	Filtered  int
	Errors    int
	Elapsed   time.Duration
}

// InsertNormalized stores a normalized article and returns its id.
func (db *DB) InsertNormalized(ctx context.Context, a NormalizedArticle) (int, error) {
	entities, err := json.Marshal(a.Entities)
	if err != nil {
		return 0, fmt.Errorf("marshal entities: %w", err)
	}

	row := db.Pool.QueryRow(ctx, `
		INSERT INTO normalized_articles
			(original_id, title, content, link, source, published_at, language_code,
			 entities, quality_score, word_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, a.OriginalID, a.Title, a.Content, toText(a.Link), toText(a.Source),
		toTimestamptz(a.PublishedAt), toText(a.LanguageCode), entities,
		toFloat4(a.QualityScore), a.WordCount)

	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert normalized: %w", err)
	}

	return id, nil
}

// NextUnvectorized returns normalized articles with id greater than
// lastVectorizedID, in ascending id order.
func (db *DB) NextUnvectorized(ctx context.Context, lastVectorizedID int) ([]NormalizedArticle, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, original_id, title, content, link, source, published_at, language_code
		FROM normalized_articles
		WHERE id > $1
		ORDER BY id ASC
	`, lastVectorizedID)
	if err != nil {
		return nil, fmt.Errorf("next unvectorized: %w", err)
	}
	defer rows.Close()

	var articles []NormalizedArticle

	for rows.Next() {
		a, err := scanNormalized(rows)
		if err != nil {
			return nil, err
		}

		articles = append(articles, a)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate normalized articles: %w", rows.Err())
	}

	return articles, nil
}

// NormalizedMeta returns the language code and publication time of a
// normalized article, for the story-merge guard.
func (db *DB) NormalizedMeta(ctx context.Context, id int) (string, time.Time, error) {
	var (
		lang      pgtype.Text
		published pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT language_code, published_at FROM normalized_articles WHERE id = $1
	`, id).Scan(&lang, &published)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, nil
		}

		return "", time.Time{}, fmt.Errorf("normalized meta: %w", err)
	}

	return fromText(lang), fromTimestamptz(published), nil
}

// InsertBatchLog records a normalization batch outcome.
func (db *DB) InsertBatchLog(ctx context.Context, b BatchLog) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO normalization_batches (batch_id, total, processed, filtered, errors, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.BatchID, b.Total, b.Processed, b.Filtered, b.Errors, b.Elapsed.Milliseconds()); err != nil {
		return fmt.Errorf("insert batch log: %w", err)
	}

	return nil
}

func scanNormalized(rows pgx.Rows) (NormalizedArticle, error) {
	var (
		a         NormalizedArticle
		link      pgtype.Text
		source    pgtype.Text
		published pgtype.Timestamptz
		lang      pgtype.Text
	)

	if err := rows.Scan(&a.ID, &a.OriginalID, &a.Title, &a.Content, &link, &source, &published, &lang); err != nil {
		return NormalizedArticle{}, fmt.Errorf("scan normalized article: %w", err)
	}

	a.Link = fromText(link)
	a.Source = fromText(source)
	a.PublishedAt = fromTimestamptz(published)
	a.LanguageCode = fromText(lang)

	return a, nil
}
