package cluster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/index"
	"github.com/alphapulse/news-radar/internal/observability"
	"github.com/alphapulse/news-radar/internal/storage"
)

// Dedup and story-merge thresholds over cosine similarity of unit-norm
// embeddings.
const (
	TauDup   = 0.95
	TauStory = 0.89

	// Two documents merge into one story only when published within
	// this window of each other.
	StoryWindow = 48 * time.Hour

	// Neighbors fetched per document; includes the document itself.
	KNeighbors = 30

	// Cluster headlines are the seeding article's title, bounded.
	headlineMaxLen = 180
)

// Store is the persistence surface the clusterer needs.
type Store interface {
	GetPipelineState(ctx context.Context) (storage.PipelineState, error)
	NextUnvectorized(ctx context.Context, lastVectorizedID int) ([]storage.NormalizedArticle, error)
	SaveEmbedding(ctx context.Context, normalizedID int, vector []float32, model string) error
	LoadAllEmbeddings(ctx context.Context, model string) ([]storage.StoredEmbedding, error)
	ClusterOf(ctx context.Context, normalizedID int) (int, error)
	NormalizedMeta(ctx context.Context, id int) (string, time.Time, error)
	CreateCluster(ctx context.Context, headline, lang string, t time.Time) (int, error)
	AddMemberAndScore(ctx context.Context, u storage.MemberUpdate) error
	SetLastClusteredID(ctx context.Context, id int) error
}

// Embedder turns an article into a unit-norm vector.
type Embedder interface {
	Embed(ctx context.Context, title, content string) ([]float32, error)
	Model() string
	Dim() int
}

// Clusterer assigns each new normalized article to an existing story
// cluster or seeds a new one. Documents are processed strictly in id
// order; the high-water mark advances inside the same transaction that
// attaches the member, so a crash retries the document.
type Clusterer struct {
	store    Store
	embedder Embedder
	idx      *index.Flat
	log      *zerolog.Logger
	now      func() time.Time
}

func New(store Store, embedder Embedder, log *zerolog.Logger) *Clusterer {
	return &Clusterer{
		store:    store,
		embedder: embedder,
		idx:      index.NewFlat(embedder.Dim()),
		log:      log,
		now:      time.Now,
	}
}

// WarmUp rebuilds the in-memory index from stored embeddings. Must run
// once before Run; embeddings from a different model are skipped and
// re-embedded later.
func (c *Clusterer) WarmUp(ctx context.Context) error {
	stored, err := c.store.LoadAllEmbeddings(ctx, c.embedder.Model())
	if err != nil {
		return fmt.Errorf("warm up index: %w", err)
	}

	for _, e := range stored {
		if err := c.idx.Add(e.NormalizedID, e.Vector); err != nil {
			return fmt.Errorf("warm up index: add %d: %w", e.NormalizedID, err)
		}
	}

	c.log.Info().Int("vectors", c.idx.Size()).Msg("vector index warmed up")

	return nil
}

// Run processes every normalized article past the high-water mark.
// Returns the number of documents clustered.
func (c *Clusterer) Run(ctx context.Context) (int, error) {
	state, err := c.store.GetPipelineState(ctx)
	if err != nil {
		return 0, err
	}

	docs, err := c.store.NextUnvectorized(ctx, state.LastVectorizedID)
	if err != nil {
		return 0, err
	}

	var processed int

	for _, doc := range docs {
		if err := c.processDoc(ctx, doc); err != nil {
			return processed, fmt.Errorf("cluster doc %d: %w", doc.ID, err)
		}

		// Advisory bookmark; the authoritative mark advanced inside
		// the member transaction.
		if err := c.store.SetLastClusteredID(ctx, doc.ID); err != nil {
			c.log.Warn().Err(err).Int("normalized_id", doc.ID).Msg("advance clustered mark failed")
		}

		processed++
	}

	observability.VectorIndexSize.Set(float64(c.idx.Size()))

	return processed, nil
}

func (c *Clusterer) processDoc(ctx context.Context, doc storage.NormalizedArticle) error {
	tDoc := doc.PublishedAt
	if tDoc.IsZero() {
		tDoc = c.now()
	}

	vector, err := c.embedder.Embed(ctx, doc.Title, doc.Content)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	if err := c.store.SaveEmbedding(ctx, doc.ID, vector, c.embedder.Model()); err != nil {
		return err
	}

	if err := c.idx.Add(doc.ID, vector); err != nil {
		return err
	}

	neighbors, err := c.idx.Search(vector, KNeighbors)
	if err != nil {
		return err
	}

	clusterID, reason, err := c.decide(ctx, doc.ID, neighbors, doc.LanguageCode, tDoc)
	if err != nil {
		return err
	}

	if clusterID == 0 {
		clusterID, err = c.store.CreateCluster(ctx, truncateRunes(doc.Title, headlineMaxLen), doc.LanguageCode, tDoc)
		if err != nil {
			return err
		}
	}

	site := doc.Source
	if site == "" {
		site = doc.Link
	}

	err = c.store.AddMemberAndScore(ctx, storage.MemberUpdate{
		ClusterID:    clusterID,
		NormalizedID: doc.ID,
		URL:          doc.Link,
		Site:         RegistrableDomain(site),
		TimeUTC:      tDoc,
		Weight:       SourceWeight,
		Score: func(firstTime time.Time, domains map[string]int) (map[string]float64, float64) {
			return Score(c.now(), firstTime, domains)
		},
	})
	if err != nil {
		return err
	}

	observability.DocumentsClustered.WithLabelValues(decisionKind(reason)).Inc()

	c.log.Debug().
		Int("normalized_id", doc.ID).
		Int("cluster_id", clusterID).
		Str("reason", reason).
		Msg("document clustered")

	return nil
}

// decisionKind strips the similarity suffix from a decision reason
// ("dup@0.97" -> "dup") for metric labels.
func decisionKind(reason string) string {
	if i := strings.IndexByte(reason, '@'); i >= 0 {
		return reason[:i]
	}

	return reason
}

// decide picks a cluster for the document: an outright duplicate joins
// its neighbor's cluster regardless of language; a same-story match
// additionally requires the same language and publication within the
// story window. Returns 0 when a new cluster is needed.
func (c *Clusterer) decide(ctx context.Context, docID int, neighbors []index.Neighbor, lang string, tDoc time.Time) (int, string, error) {
	for _, n := range neighbors {
		if n.ID == docID || n.Score < TauDup {
			continue
		}

		cid, err := c.store.ClusterOf(ctx, n.ID)
		if err != nil {
			return 0, "", err
		}

		if cid != 0 {
			return cid, fmt.Sprintf("dup@%.2f", n.Score), nil
		}
	}

	for _, n := range neighbors {
		if n.ID == docID || n.Score < TauStory || n.Score >= TauDup {
			continue
		}

		nLang, nTime, err := c.store.NormalizedMeta(ctx, n.ID)
		if err != nil {
			return 0, "", err
		}

		if nLang != lang || nTime.IsZero() {
			continue
		}

		if absDuration(tDoc.Sub(nTime)) > StoryWindow {
			continue
		}

		cid, err := c.store.ClusterOf(ctx, n.ID)
		if err != nil {
			return 0, "", err
		}

		if cid != 0 {
			return cid, fmt.Sprintf("story@%.2f", n.Score), nil
		}
	}

	return 0, "new", nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return string(runes[:max])
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}

	return d
}
