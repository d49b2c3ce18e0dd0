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

// StoryCluster is a set of normalized articles judged to describe the
// same event, with aggregates maintained on every added member.
type StoryCluster struct {
	ID              int
	Headline        string
	Lang            string
	FirstTime       time.Time
	LastTime        time.Time
	Domains         map[string]int
	URLs            []string
	DocCount        int
	StrongestDomain string
	EarliestURL     string
	LatestURL       string
	Factors         map[string]float64
	Hotness         float32
	UpdatedAt       time.Time
}

// ClusterMember is one document's membership in a story cluster.
// Immutable after insert.
type ClusterMember struct {
	ClusterID    int
	NormalizedID int
	URL          string
	Site         string
	TimeUTC      time.Time
}

// MemberUpdate carries everything needed to attach a document to a
// cluster and refresh the cluster's aggregates in one transaction.
type MemberUpdate struct {
	ClusterID    int
	NormalizedID int
	URL          string
	Site         string
	TimeUTC      time.Time

	// Weight returns the source weight for a domain; used to pick the
	// strongest member link.
	Weight func(domain string) float64

	// Score recomputes the hotness factors from the refreshed
	// aggregates.
	Score func(firstTime time.Time, domains map[string]int) (map[string]float64, float64)
}

// ClusterOf returns the cluster containing the given normalized
// article, or 0 when it belongs to none.
func (db *DB) ClusterOf(ctx context.Context, normalizedID int) (int, error) {
	var id int

	err := db.Pool.QueryRow(ctx, `
		SELECT cluster_id FROM cluster_members WHERE normalized_id = $1
	`, normalizedID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}

		return 0, fmt.Errorf("cluster of: %w", err)
	}

	return id, nil
}

// CreateCluster seeds a new story cluster. Aggregates start empty; the
// seeding document is attached through AddMemberAndScore so that
// doc_count always equals the member count.
func (db *DB) CreateCluster(ctx context.Context, headline, lang string, t time.Time) (int, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO story_clusters (headline, lang, first_time, last_time)
		VALUES ($1, $2, $3, $3)
		RETURNING id
	`, headline, toText(lang), toTimestamptz(t))

	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("create cluster: %w", err)
	}

	return id, nil
}

// AddMemberAndScore runs the full member-attachment unit inside one
// transaction: member upsert, aggregate refresh, summary links,
// hotness recompute, and the pipeline high-water mark advance. Any
// failure rolls the whole unit back so the document is retried.
func (db *DB) AddMemberAndScore(ctx context.Context, u MemberUpdate) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin member tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO cluster_members (cluster_id, normalized_id, url, site, time_utc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cluster_id, normalized_id) DO UPDATE
		SET url = EXCLUDED.url, site = EXCLUDED.site, time_utc = EXCLUDED.time_utc
	`, u.ClusterID, u.NormalizedID, toText(u.URL), toText(u.Site), toTimestamptz(u.TimeUTC)); err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}

	domains, urls, firstTime, lastTime, err := lockClusterAggregates(ctx, tx, u.ClusterID)
	if err != nil {
		return err
	}

	domains[u.Site]++

	if u.URL != "" && !containsString(urls, u.URL) {
		urls = append(urls, u.URL)
	}

	if firstTime.IsZero() || u.TimeUTC.Before(firstTime) {
		firstTime = u.TimeUTC
	}

	if lastTime.IsZero() || u.TimeUTC.After(lastTime) {
		lastTime = u.TimeUTC
	}

	domainsJSON, err := json.Marshal(domains)
	if err != nil {
		return fmt.Errorf("marshal domains: %w", err)
	}

	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE story_clusters
		SET domains_json = $1, urls_json = $2, first_time = $3, last_time = $4,
		    doc_count = doc_count + 1, updated_at = now()
		WHERE id = $5
	`, domainsJSON, urlsJSON, toTimestamptz(firstTime), toTimestamptz(lastTime), u.ClusterID); err != nil {
		return fmt.Errorf("update cluster aggregates: %w", err)
	}

	if err := updateSummaryLinks(ctx, tx, u.ClusterID, u.Weight); err != nil {
		return err
	}

	factors, hotness := u.Score(firstTime, domains)

	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE story_clusters
		SET factors_json = $1, hotness = $2, updated_at = now()
		WHERE id = $3
	`, factorsJSON, toFloat4(float32(hotness)), u.ClusterID); err != nil {
		return fmt.Errorf("update cluster score: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE pipeline_state SET last_vectorized_id = $1 WHERE id = 1
	`, u.NormalizedID); err != nil {
		return fmt.Errorf("advance pipeline state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit member tx: %w", err)
	}

	return nil
}

func lockClusterAggregates(ctx context.Context, tx pgx.Tx, clusterID int) (map[string]int, []string, time.Time, time.Time, error) {
	var (
		domainsJSON []byte
		urlsJSON    []byte
		first       pgtype.Timestamptz
		last        pgtype.Timestamptz
	)

	err := tx.QueryRow(ctx, `
		SELECT domains_json, urls_json, first_time, last_time
		FROM story_clusters WHERE id = $1
		FOR UPDATE
	`, clusterID).Scan(&domainsJSON, &urlsJSON, &first, &last)
	if err != nil {
		return nil, nil, time.Time{}, time.Time{}, fmt.Errorf("lock cluster aggregates: %w", err)
	}

	domains := map[string]int{}
	if len(domainsJSON) > 0 {
		if err := json.Unmarshal(domainsJSON, &domains); err != nil {
			return nil, nil, time.Time{}, time.Time{}, fmt.Errorf("unmarshal domains: %w", err)
		}
	}

	var urls []string
	if len(urlsJSON) > 0 {
		if err := json.Unmarshal(urlsJSON, &urls); err != nil {
			return nil, nil, time.Time{}, time.Time{}, fmt.Errorf("unmarshal urls: %w", err)
		}
	}

	return domains, urls, fromTimestamptz(first), fromTimestamptz(last), nil
}

// updateSummaryLinks recomputes earliest_url, latest_url and
// strongest_domain from the member list. Weight ties break toward the
// most recent member.
func updateSummaryLinks(ctx context.Context, tx pgx.Tx, clusterID int, weight func(string) float64) error {
	rows, err := tx.Query(ctx, `
		SELECT url, site, time_utc FROM cluster_members
		WHERE cluster_id = $1
		ORDER BY time_utc ASC
	`, clusterID)
	if err != nil {
		return fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var (
		earliestURL, latestURL string
		strongestSite          string
		strongestWeight        = -1.0
		seen                   bool
	)

	for rows.Next() {
		var (
			url  pgtype.Text
			site pgtype.Text
			t    pgtype.Timestamptz
		)

		if err := rows.Scan(&url, &site, &t); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}

		if !seen {
			earliestURL = fromText(url)
			seen = true
		}

		latestURL = fromText(url)

		if w := weight(fromText(site)); w >= strongestWeight {
			strongestWeight = w
			strongestSite = fromText(site)
		}
	}

	if rows.Err() != nil {
		return fmt.Errorf("iterate members: %w", rows.Err())
	}

	if !seen {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE story_clusters
		SET earliest_url = $1, latest_url = $2, strongest_domain = $3
		WHERE id = $4
	`, toText(earliestURL), toText(latestURL), toText(strongestSite), clusterID); err != nil {
		return fmt.Errorf("update summary links: %w", err)
	}

	return nil
}

// UnprocessedClusters returns clusters with no analyzed row yet,
// newest first. NOT EXISTS is deliberate: a LEFT JOIN can match rows
// inserted by a concurrent worker between the query and the insert.
func (db *DB) UnprocessedClusters(ctx context.Context, limit int) ([]StoryCluster, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT sc.id, sc.headline, sc.first_time, sc.last_time, sc.doc_count, sc.urls_json, sc.hotness
		FROM story_clusters sc
		WHERE NOT EXISTS (
			SELECT 1 FROM llm_analyzed_news lan WHERE lan.id_cluster = sc.id
		)
		ORDER BY sc.first_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("unprocessed clusters: %w", err)
	}
	defer rows.Close()

	var clusters []StoryCluster

	for rows.Next() {
		var (
			c        StoryCluster
			first    pgtype.Timestamptz
			last     pgtype.Timestamptz
			urlsJSON []byte
			hotness  pgtype.Float4
		)

		if err := rows.Scan(&c.ID, &c.Headline, &first, &last, &c.DocCount, &urlsJSON, &hotness); err != nil {
			return nil, fmt.Errorf("scan unprocessed cluster: %w", err)
		}

		c.FirstTime = fromTimestamptz(first)
		c.LastTime = fromTimestamptz(last)
		c.Hotness = fromFloat4(hotness)

		if len(urlsJSON) > 0 {
			if err := json.Unmarshal(urlsJSON, &c.URLs); err != nil {
				return nil, fmt.Errorf("unmarshal cluster urls: %w", err)
			}
		}

		clusters = append(clusters, c)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate unprocessed clusters: %w", rows.Err())
	}

	return clusters, nil
}

// RepresentativeArticle returns the earliest member of a cluster by
// publication time, joined back to its normalized article. Returns nil
// when the cluster has no members.
func (db *DB) RepresentativeArticle(ctx context.Context, clusterID int) (*NormalizedArticle, error) {
	var (
		a         NormalizedArticle
		link      pgtype.Text
		source    pgtype.Text
		published pgtype.Timestamptz
		lang      pgtype.Text
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT na.id, na.original_id, na.title, na.content, cm.url, na.source, na.published_at, na.language_code
		FROM cluster_members cm
		JOIN normalized_articles na ON cm.normalized_id = na.id
		WHERE cm.cluster_id = $1
		ORDER BY cm.time_utc ASC
		LIMIT 1
	`, clusterID).Scan(&a.ID, &a.OriginalID, &a.Title, &a.Content, &link, &source, &published, &lang)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("representative article: %w", err)
	}

	a.Link = fromText(link)
	a.Source = fromText(source)
	a.PublishedAt = fromTimestamptz(published)
	a.LanguageCode = fromText(lang)

	return &a, nil
}

// TopClusters returns the hottest clusters seen in the last
// windowHours, for the snapshot export.
func (db *DB) TopClusters(ctx context.Context, topK, windowHours int) ([]StoryCluster, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, headline, lang, first_time, last_time, domains_json, urls_json,
		       doc_count, strongest_domain, earliest_url, latest_url, factors_json, hotness, updated_at
		FROM story_clusters
		WHERE last_time >= now() - make_interval(hours => $2)
		ORDER BY hotness DESC, last_time DESC
		LIMIT $1
	`, topK, windowHours)
	if err != nil {
		return nil, fmt.Errorf("top clusters: %w", err)
	}
	defer rows.Close()

	var clusters []StoryCluster

	for rows.Next() {
		var (
			c           StoryCluster
			lang        pgtype.Text
			first, last pgtype.Timestamptz
			domainsJSON []byte
			urlsJSON    []byte
			strongest   pgtype.Text
			earliest    pgtype.Text
			latest      pgtype.Text
			factorsJSON []byte
			hotness     pgtype.Float4
			updatedAt   pgtype.Timestamptz
		)

		if err := rows.Scan(&c.ID, &c.Headline, &lang, &first, &last, &domainsJSON, &urlsJSON,
			&c.DocCount, &strongest, &earliest, &latest, &factorsJSON, &hotness, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}

		c.Lang = fromText(lang)
		c.FirstTime = fromTimestamptz(first)
		c.LastTime = fromTimestamptz(last)
		c.StrongestDomain = fromText(strongest)
		c.EarliestURL = fromText(earliest)
		c.LatestURL = fromText(latest)
		c.Hotness = fromFloat4(hotness)
		c.UpdatedAt = fromTimestamptz(updatedAt)

		if len(domainsJSON) > 0 {
			if err := json.Unmarshal(domainsJSON, &c.Domains); err != nil {
				return nil, fmt.Errorf("unmarshal cluster domains: %w", err)
			}
		}

		if len(urlsJSON) > 0 {
			if err := json.Unmarshal(urlsJSON, &c.URLs); err != nil {
				return nil, fmt.Errorf("unmarshal cluster urls: %w", err)
			}
		}

		if len(factorsJSON) > 0 {
			if err := json.Unmarshal(factorsJSON, &c.Factors); err != nil {
				return nil, fmt.Errorf("unmarshal cluster factors: %w", err)
			}
		}

		clusters = append(clusters, c)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate clusters: %w", rows.Err())
	}

	return clusters, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
