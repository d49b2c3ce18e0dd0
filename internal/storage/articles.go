package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RawArticle is an ingested news item as first persisted, before any
// normalization. Created by ingestion, never modified by the pipeline.
type RawArticle struct {
	ID          int
	Title       string
	Link        string
	Published   time.Time
	Summary     string
	Source      string
	FeedURL     string
	Content     string
	Author      string
	Category    string
	ImageURL    string
	WordCount   int
	ReadingTime int
	CreatedAt   time.Time
}

// InsertRawArticle appends a raw article. Duplicate titles are ignored
// and reported as ok=false.
func (db *DB) InsertRawArticle(ctx context.Context, a RawArticle) (int, bool, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO articles (title, link, published, summary, source, feed_url, content,
		                      author, category, image_url, word_count, reading_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (title) DO NOTHING
		RETURNING id
	`, a.Title, toText(a.Link), toTimestamptz(a.Published), toText(a.Summary), toText(a.Source),
		toText(a.FeedURL), toText(a.Content), toText(a.Author), toText(a.Category),
		toText(a.ImageURL), a.WordCount, a.ReadingTime)

	var id int
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("insert raw article: %w", err)
	}

	return id, true, nil
}

// NextUnnormalized returns raw articles with id greater than
// maxOriginalID, in ascending id order.
func (db *DB) NextUnnormalized(ctx context.Context, maxOriginalID, limit int) ([]RawArticle, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, title, link, published, summary, source, feed_url, content, created_at
		FROM articles
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, maxOriginalID, limit)
	if err != nil {
		return nil, fmt.Errorf("next unnormalized: %w", err)
	}
	defer rows.Close()

	var articles []RawArticle

	for rows.Next() {
		var (
			a         RawArticle
			link      pgtype.Text
			published pgtype.Timestamptz
			summary   pgtype.Text
			source    pgtype.Text
			feedURL   pgtype.Text
			content   pgtype.Text
			createdAt pgtype.Timestamptz
		)

		if err := rows.Scan(&a.ID, &a.Title, &link, &published, &summary, &source, &feedURL, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan raw article: %w", err)
		}

		a.Link = fromText(link)
		a.Published = fromTimestamptz(published)
		a.Summary = fromText(summary)
		a.Source = fromText(source)
		a.FeedURL = fromText(feedURL)
		a.Content = fromText(content)
		a.CreatedAt = fromTimestamptz(createdAt)

		articles = append(articles, a)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate raw articles: %w", rows.Err())
	}

	return articles, nil
}

// MaxNormalizedOriginalID returns the normalizer's high-water mark: the
// largest articles.id that has a normalized row. Zero when none exist.
func (db *DB) MaxNormalizedOriginalID(ctx context.Context) (int, error) {
	var id pgtype.Int4

	if err := db.Pool.QueryRow(ctx, `SELECT MAX(original_id) FROM normalized_articles`).Scan(&id); err != nil {
		return 0, fmt.Errorf("max normalized original id: %w", err)
	}

	if !id.Valid {
		return 0, nil
	}

	return int(id.Int32), nil
}
