// Package export writes the cluster snapshot: a JSON file with the
// hottest story clusters of a time window, for downstream dashboards
// and offline analysis.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/storage"
)

// Store is the exporter's view of the store.
type Store interface {
	TopClusters(ctx context.Context, topK, windowHours int) ([]storage.StoryCluster, error)
}

type Meta struct {
	GeneratedAt time.Time `json:"generated_at"`
	TopK        int       `json:"top_k"`
	WindowHours int       `json:"window_hours"`
}

type Source struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Timeline tracks a story's life: first report, latest update, and the
// moment a second independent domain confirmed it (absent for
// single-domain stories).
type Timeline struct {
	First   time.Time  `json:"first"`
	Update  *time.Time `json:"update,omitempty"`
	Confirm *time.Time `json:"confirm,omitempty"`
}

type Cluster struct {
	DedupGroup int                `json:"dedup_group"`
	Headline   string             `json:"headline"`
	Hotness    float32            `json:"hotness"`
	Sources    []Source           `json:"sources"`
	Timeline   Timeline           `json:"timeline"`
	Domains    []string           `json:"domains"`
	DocCount   int                `json:"doc_count"`
	Factors    map[string]float64 `json:"factors"`
}

type Snapshot struct {
	Meta     Meta      `json:"meta"`
	Clusters []Cluster `json:"clusters"`
}

type Exporter struct {
	store Store
	log   *zerolog.Logger
	now   func() time.Time
}

func New(store Store, log *zerolog.Logger) *Exporter {
	return &Exporter{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Build assembles the snapshot for the hottest topK clusters active in
// the last windowHours.
func (e *Exporter) Build(ctx context.Context, topK, windowHours int) (*Snapshot, error) {
	clusters, err := e.store.TopClusters(ctx, topK, windowHours)
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}

	snap := &Snapshot{
		Meta: Meta{
			GeneratedAt: e.now().UTC(),
			TopK:        topK,
			WindowHours: windowHours,
		},
		Clusters: make([]Cluster, 0, len(clusters)),
	}

	for _, c := range clusters {
		snap.Clusters = append(snap.Clusters, toCluster(c))
	}

	return snap, nil
}

// WriteFile builds the snapshot and writes it as indented JSON.
func (e *Exporter) WriteFile(ctx context.Context, path string, topK, windowHours int) error {
	snap, err := e.Build(ctx, topK, windowHours)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	e.log.Info().Str("path", path).Int("clusters", len(snap.Clusters)).Msg("snapshot written")

	return nil
}

func toCluster(c storage.StoryCluster) Cluster {
	out := Cluster{
		DedupGroup: c.ID,
		Headline:   c.Headline,
		Hotness:    c.Hotness,
		Sources:    clusterSources(c),
		Timeline:   clusterTimeline(c),
		Domains:    sortedDomains(c.Domains),
		DocCount:   c.DocCount,
		Factors:    c.Factors,
	}

	return out
}

// clusterSources lists the earliest report, the latest distinct
// update, and the strongest-source confirmation link.
func clusterSources(c storage.StoryCluster) []Source {
	var sources []Source

	if c.EarliestURL != "" {
		sources = append(sources, Source{Kind: "first", URL: c.EarliestURL})
	}

	if c.LatestURL != "" && c.LatestURL != c.EarliestURL {
		sources = append(sources, Source{Kind: "update", URL: c.LatestURL})
	}

	if u := strongestURL(c); u != "" && u != c.EarliestURL && u != c.LatestURL {
		sources = append(sources, Source{Kind: "confirm", URL: u})
	}

	return sources
}

// strongestURL picks a member link from the strongest domain, if any
// member URL belongs to it.
func strongestURL(c storage.StoryCluster) string {
	if c.StrongestDomain == "" {
		return ""
	}

	for _, u := range c.URLs {
		if containsDomain(u, c.StrongestDomain) {
			return u
		}
	}

	return ""
}

func containsDomain(url, domain string) bool {
	return domain != "" && strings.Contains(url, domain)
}

// clusterTimeline reports update only when the story actually moved
// after the first report, and confirm only when a second independent
// domain picked it up.
func clusterTimeline(c storage.StoryCluster) Timeline {
	tl := Timeline{First: c.FirstTime.UTC()}

	if c.LastTime.After(c.FirstTime) {
		update := c.LastTime.UTC()
		tl.Update = &update
	}

	if len(c.Domains) >= 2 {
		confirm := c.LastTime.UTC()
		tl.Confirm = &confirm
	}

	return tl
}

func sortedDomains(domains map[string]int) []string {
	out := make([]string, 0, len(domains))
	for d := range domains {
		out = append(out, d)
	}

	sort.Strings(out)

	return out
}
