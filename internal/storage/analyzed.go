package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// AnalyzedNews is the LLM-generated analytical card attached to a
// story cluster; at most one row exists per cluster.
type AnalyzedNews struct {
	ID            int
	NormalizedID  int
	ClusterID     int
	Headline      string
	Content       string
	HeadlineEN    string
	ContentEN     string
	URLs          []string
	PublishedTime time.Time
	AIHotness     float32
	Tickers       []string
	Reasoning     string
	CreatedAt     time.Time

	// Cluster aggregates carried along for rendering.
	DocCount  int
	FirstTime time.Time
	LastTime  time.Time
}

const analyzedColumns = `
	lan.id, lan.id_old, lan.id_cluster, lan.headline, lan.content,
	lan.headline_en, lan.content_en, lan.urls_json, lan.published_time,
	lan.ai_hotness, lan.tickers_json, lan.reasoning, lan.created_at,
	sc.doc_count, sc.first_time, sc.last_time
`

// InsertAnalyzed stores an analyzed row. The unique constraint on
// id_cluster makes the insert idempotent: ok=false means another
// worker already analyzed the cluster, which callers count as skipped.
func (db *DB) InsertAnalyzed(ctx context.Context, a AnalyzedNews) (int, bool, error) {
	urlsJSON, err := json.Marshal(a.URLs)
	if err != nil {
		return 0, false, fmt.Errorf("marshal urls: %w", err)
	}

	tickersJSON, err := json.Marshal(a.Tickers)
	if err != nil {
		return 0, false, fmt.Errorf("marshal tickers: %w", err)
	}

	row := db.Pool.QueryRow(ctx, `
		INSERT INTO llm_analyzed_news
			(id_old, id_cluster, headline, content, headline_en, content_en,
			 urls_json, published_time, ai_hotness, tickers_json, reasoning)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id_cluster) DO NOTHING
		RETURNING id
	`, a.NormalizedID, a.ClusterID, a.Headline, toText(a.Content), toText(a.HeadlineEN),
		toText(a.ContentEN), urlsJSON, toTimestamptz(a.PublishedTime),
		toFloat4(a.AIHotness), tickersJSON, toText(a.Reasoning))

	var id int
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("insert analyzed: %w", err)
	}

	return id, true, nil
}

// HasAnalyzed reports whether a cluster already carries an analyzed
// row. Used by the enricher to avoid paying for an LLM call another
// worker already made.
func (db *DB) HasAnalyzed(ctx context.Context, clusterID int) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM llm_analyzed_news WHERE id_cluster = $1)
	`, clusterID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has analyzed: %w", err)
	}

	return exists, nil
}

// TopAnalyzed returns analyzed news published in the last `hours`,
// hottest first.
func (db *DB) TopAnalyzed(ctx context.Context, limit, hours int) ([]AnalyzedNews, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+analyzedColumns+`
		FROM llm_analyzed_news lan
		JOIN story_clusters sc ON lan.id_cluster = sc.id
		WHERE lan.published_time >= now() - make_interval(hours => $2)
		ORDER BY lan.ai_hotness DESC, lan.published_time DESC
		LIMIT $1
	`, limit, hours)
	if err != nil {
		return nil, fmt.Errorf("top analyzed: %w", err)
	}

	return collectAnalyzed(rows)
}

// LatestAnalyzed returns the most recently created analyzed rows.
func (db *DB) LatestAnalyzed(ctx context.Context, limit int) ([]AnalyzedNews, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+analyzedColumns+`
		FROM llm_analyzed_news lan
		JOIN story_clusters sc ON lan.id_cluster = sc.id
		ORDER BY lan.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest analyzed: %w", err)
	}

	return collectAnalyzed(rows)
}

// searchPatterns escapes keywords for the ~* operator so input like
// "c++" matches literally instead of failing as a malformed regex.
func searchPatterns(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = regexp.QuoteMeta(kw)
	}

	return out
}

// SearchAnalyzed matches any of the keywords case-insensitively across
// the headline, content and their English renderings.
func (db *DB) SearchAnalyzed(ctx context.Context, keywords []string, limit int) ([]AnalyzedNews, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var (
		conds []string
		args  []any
	)

	for _, kw := range searchPatterns(keywords) {
		args = append(args, kw)
		p := fmt.Sprintf("$%d", len(args))
		conds = append(conds, fmt.Sprintf(
			"(lan.headline ~* %[1]s OR lan.content ~* %[1]s OR lan.headline_en ~* %[1]s OR lan.content_en ~* %[1]s)", p))
	}

	args = append(args, limit)

	query := `
		SELECT ` + analyzedColumns + `
		FROM llm_analyzed_news lan
		JOIN story_clusters sc ON lan.id_cluster = sc.id
		WHERE ` + strings.Join(conds, " OR ") + `
		ORDER BY lan.published_time DESC
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search analyzed: %w", err)
	}

	return collectAnalyzed(rows)
}

// AnalyzedByID returns a single analyzed row, or nil when not found.
func (db *DB) AnalyzedByID(ctx context.Context, id int) (*AnalyzedNews, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+analyzedColumns+`
		FROM llm_analyzed_news lan
		JOIN story_clusters sc ON lan.id_cluster = sc.id
		WHERE lan.id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("analyzed by id: %w", err)
	}

	list, err := collectAnalyzed(rows)
	if err != nil {
		return nil, err
	}

	if len(list) == 0 {
		return nil, nil
	}

	return &list[0], nil
}

// HotNewSince returns analyzed rows created within the window whose
// hotness meets the threshold, newest first. The created_at filter
// bounds how far back a restarted monitor can resend alerts.
func (db *DB) HotNewSince(ctx context.Context, threshold float32, window time.Duration) ([]AnalyzedNews, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+analyzedColumns+`
		FROM llm_analyzed_news lan
		JOIN story_clusters sc ON lan.id_cluster = sc.id
		WHERE lan.ai_hotness >= $1 AND lan.created_at >= now() - $2::interval
		ORDER BY lan.created_at DESC
	`, toFloat4(threshold), window)
	if err != nil {
		return nil, fmt.Errorf("hot new since: %w", err)
	}

	return collectAnalyzed(rows)
}

func collectAnalyzed(rows pgx.Rows) ([]AnalyzedNews, error) {
	defer rows.Close()

	var list []AnalyzedNews

	for rows.Next() {
		var (
			a           AnalyzedNews
			content     pgtype.Text
			headlineEN  pgtype.Text
			contentEN   pgtype.Text
			urlsJSON    []byte
			published   pgtype.Timestamptz
			hotness     pgtype.Float4
			tickersJSON []byte
			reasoning   pgtype.Text
			createdAt   pgtype.Timestamptz
			first, last pgtype.Timestamptz
		)

		if err := rows.Scan(&a.ID, &a.NormalizedID, &a.ClusterID, &a.Headline, &content,
			&headlineEN, &contentEN, &urlsJSON, &published, &hotness, &tickersJSON,
			&reasoning, &createdAt, &a.DocCount, &first, &last); err != nil {
			return nil, fmt.Errorf("scan analyzed: %w", err)
		}

		a.Content = fromText(content)
		a.HeadlineEN = fromText(headlineEN)
		a.ContentEN = fromText(contentEN)
		a.PublishedTime = fromTimestamptz(published)
		a.AIHotness = fromFloat4(hotness)
		a.Reasoning = fromText(reasoning)
		a.CreatedAt = fromTimestamptz(createdAt)
		a.FirstTime = fromTimestamptz(first)
		a.LastTime = fromTimestamptz(last)

		if len(urlsJSON) > 0 {
			if err := json.Unmarshal(urlsJSON, &a.URLs); err != nil {
				return nil, fmt.Errorf("unmarshal analyzed urls: %w", err)
			}
		}

		if len(tickersJSON) > 0 {
			if err := json.Unmarshal(tickersJSON, &a.Tickers); err != nil {
				return nil, fmt.Errorf("unmarshal analyzed tickers: %w", err)
			}
		}

		list = append(list, a)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate analyzed: %w", rows.Err())
	}

	return list, nil
}
