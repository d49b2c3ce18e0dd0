package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alphapulse/news-radar/internal/storage"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	model   string
	dim     int
}

func (f *fakeEmbedder) Embed(_ context.Context, title, _ string) ([]float32, error) {
	v, ok := f.vectors[title]
	if !ok {
		return []float32{0, 0, 1}, nil
	}

	return v, nil
}

func (f *fakeEmbedder) Model() string { return f.model }
func (f *fakeEmbedder) Dim() int      { return f.dim }

type fakeClusterStore struct {
	docs       []storage.NormalizedArticle
	meta       map[int]storage.NormalizedArticle
	membership map[int]int
	clusters   map[int]string
	embeddings []storage.StoredEmbedding
	updates    []storage.MemberUpdate
	nextID     int
	lastVec    int
	lastClust  int
}

func newFakeClusterStore(docs ...storage.NormalizedArticle) *fakeClusterStore {
	s := &fakeClusterStore{
		docs:       docs,
		meta:       map[int]storage.NormalizedArticle{},
		membership: map[int]int{},
		clusters:   map[int]string{},
	}

	for _, d := range docs {
		s.meta[d.ID] = d
	}

	return s
}

func (s *fakeClusterStore) GetPipelineState(context.Context) (storage.PipelineState, error) {
	return storage.PipelineState{LastVectorizedID: s.lastVec}, nil
}

func (s *fakeClusterStore) NextUnvectorized(_ context.Context, lastVectorizedID int) ([]storage.NormalizedArticle, error) {
	var out []storage.NormalizedArticle

	for _, d := range s.docs {
		if d.ID > lastVectorizedID {
			out = append(out, d)
		}
	}

	return out, nil
}

func (s *fakeClusterStore) SaveEmbedding(_ context.Context, id int, vector []float32, model string) error {
	s.embeddings = append(s.embeddings, storage.StoredEmbedding{NormalizedID: id, Vector: vector, Model: model})

	return nil
}

func (s *fakeClusterStore) LoadAllEmbeddings(_ context.Context, model string) ([]storage.StoredEmbedding, error) {
	var out []storage.StoredEmbedding

	for _, e := range s.embeddings {
		if e.Model == model {
			out = append(out, e)
		}
	}

	return out, nil
}

func (s *fakeClusterStore) ClusterOf(_ context.Context, normalizedID int) (int, error) {
	return s.membership[normalizedID], nil
}

func (s *fakeClusterStore) NormalizedMeta(_ context.Context, id int) (string, time.Time, error) {
	d, ok := s.meta[id]
	if !ok {
		return "", time.Time{}, nil
	}

	return d.LanguageCode, d.PublishedAt, nil
}

func (s *fakeClusterStore) CreateCluster(_ context.Context, headline, _ string, _ time.Time) (int, error) {
	s.nextID++
	s.clusters[s.nextID] = headline

	return s.nextID, nil
}

func (s *fakeClusterStore) AddMemberAndScore(_ context.Context, u storage.MemberUpdate) error {
	s.membership[u.NormalizedID] = u.ClusterID
	s.updates = append(s.updates, u)
	s.lastVec = u.NormalizedID

	return nil
}

func (s *fakeClusterStore) SetLastClusteredID(_ context.Context, id int) error {
	s.lastClust = id

	return nil
}

var clusterBase = time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

func newTestClusterer(store *fakeClusterStore, vectors map[string][]float32) *Clusterer {
	logger := zerolog.Nop()

	c := New(store, &fakeEmbedder{vectors: vectors, model: "mini-lm", dim: 3}, &logger)
	c.now = func() time.Time { return clusterBase.Add(time.Hour) }

	return c
}

func TestClustererDuplicateJoinsCluster(t *testing.T) {
	docs := []storage.NormalizedArticle{
		{ID: 1, Title: "Fed hikes rates", LanguageCode: "en", PublishedAt: clusterBase, Link: "https://reuters.com/a", Source: "reuters.com"},
		{ID: 2, Title: "Fed hikes rates again", LanguageCode: "en", PublishedAt: clusterBase.Add(time.Hour), Link: "https://cnbc.com/b", Source: "cnbc.com"},
	}

	vectors := map[string][]float32{
		"Fed hikes rates":       {1, 0, 0},
		"Fed hikes rates again": {0.99, 0.14107, 0}, // cosine ≈ 0.99
	}

	store := newFakeClusterStore(docs...)
	c := newTestClusterer(store, vectors)

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Len(t, store.clusters, 1)
	require.Equal(t, store.membership[1], store.membership[2])
}

func TestClustererStoryMergeSameLanguageWithinWindow(t *testing.T) {
	docs := []storage.NormalizedArticle{
		{ID: 1, Title: "Fed hikes rates", LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
		{ID: 2, Title: "Fed raises benchmark rate", LanguageCode: "en", PublishedAt: clusterBase.Add(5 * time.Hour), Source: "cnbc.com"},
	}

	vectors := map[string][]float32{
		"Fed hikes rates":           {1, 0, 0},
		"Fed raises benchmark rate": {0.92, 0.39192, 0}, // cosine ≈ 0.92
	}

	store := newFakeClusterStore(docs...)
	c := newTestClusterer(store, vectors)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.clusters, 1)
	require.Equal(t, store.membership[1], store.membership[2])
}

func TestClustererStoryNotMergedAcrossLanguages(t *testing.T) {
	docs := []storage.NormalizedArticle{
		{ID: 1, Title: "Fed hikes rates", LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
		{ID: 2, Title: "ФРС повысила ставку", LanguageCode: "ru", PublishedAt: clusterBase.Add(time.Hour), Source: "t.me/channel"},
	}

	vectors := map[string][]float32{
		"Fed hikes rates":     {1, 0, 0},
		"ФРС повысила ставку": {0.92, 0.39192, 0},
	}

	store := newFakeClusterStore(docs...)
	c := newTestClusterer(store, vectors)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.clusters, 2)
	require.NotEqual(t, store.membership[1], store.membership[2])
}

func TestClustererStoryNotMergedOutsideWindow(t *testing.T) {
	docs := []storage.NormalizedArticle{
		{ID: 1, Title: "Fed hikes rates", LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
		{ID: 2, Title: "Fed raises benchmark rate", LanguageCode: "en", PublishedAt: clusterBase.Add(60 * time.Hour), Source: "cnbc.com"},
	}

	vectors := map[string][]float32{
		"Fed hikes rates":           {1, 0, 0},
		"Fed raises benchmark rate": {0.92, 0.39192, 0},
	}

	store := newFakeClusterStore(docs...)
	c := newTestClusterer(store, vectors)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.clusters, 2)
}

func TestClustererUnrelatedDocsGetOwnClusters(t *testing.T) {
	docs := []storage.NormalizedArticle{
		{ID: 1, Title: "Fed hikes rates", LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
		{ID: 2, Title: "Oil prices climb", LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
	}

	vectors := map[string][]float32{
		"Fed hikes rates":  {1, 0, 0},
		"Oil prices climb": {0, 1, 0},
	}

	store := newFakeClusterStore(docs...)
	c := newTestClusterer(store, vectors)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.clusters, 2)
}

func TestClustererHeadlineTruncated(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}

	docs := []storage.NormalizedArticle{
		{ID: 1, Title: string(long), LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
	}

	store := newFakeClusterStore(docs...)
	c := newTestClusterer(store, map[string][]float32{string(long): {1, 0, 0}})

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.clusters[1], 180)
}

func TestClustererResumesFromHighWaterMark(t *testing.T) {
	docs := []storage.NormalizedArticle{
		{ID: 1, Title: "Fed hikes rates", LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
		{ID: 2, Title: "Oil prices climb", LanguageCode: "en", PublishedAt: clusterBase, Source: "reuters.com"},
	}

	store := newFakeClusterStore(docs...)
	store.lastVec = 1

	c := newTestClusterer(store, map[string][]float32{
		"Fed hikes rates":  {1, 0, 0},
		"Oil prices climb": {0, 1, 0},
	})

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NotContains(t, store.membership, 1)
}

func TestClustererWarmUpRebuildsIndex(t *testing.T) {
	store := newFakeClusterStore()
	store.embeddings = []storage.StoredEmbedding{
		{NormalizedID: 1, Vector: []float32{1, 0, 0}, Model: "mini-lm"},
		{NormalizedID: 2, Vector: []float32{0, 1, 0}, Model: "other-model"},
	}

	c := newTestClusterer(store, nil)

	require.NoError(t, c.WarmUp(context.Background()))
	require.Equal(t, 1, c.idx.Size())
}
