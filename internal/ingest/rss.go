// Package ingest polls RSS and Atom feeds and appends new items to the
// raw article log. Deduplication here is by exact title only; semantic
// dedup happens later in the clusterer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/normalize"
	"github.com/alphapulse/news-radar/internal/observability"
	"github.com/alphapulse/news-radar/internal/platform/worker"
	"github.com/alphapulse/news-radar/internal/storage"
)

const (
	fetchTimeout    = 15 * time.Second
	maxFeedEntries  = 100
	headerUserAgent = "User-Agent"
)

var errHTTPStatus = errors.New("HTTP error")

// htmlCleaner exists only to reach Normalizer.CleanHTML, which does not
// use any Normalizer state.
var htmlCleaner normalize.Normalizer

// Store persists ingested articles.
type Store interface {
	InsertRawArticle(ctx context.Context, a storage.RawArticle) (int, bool, error)
}

// Ingester fetches a fixed set of feeds on a schedule.
type Ingester struct {
	store      Store
	feeds      []string
	userAgent  string
	interval   time.Duration
	httpClient *http.Client
	parser     *gofeed.Parser
	log        *zerolog.Logger
	now        func() time.Time
}

func New(store Store, feeds []string, userAgent string, interval time.Duration, log *zerolog.Logger) *Ingester {
	return &Ingester{
		store:     store,
		feeds:     feeds,
		userAgent: userAgent,
		interval:  interval,
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
		parser: gofeed.NewParser(),
		log:    log,
		now:    time.Now,
	}
}

// Loop polls all feeds every interval until the context is canceled.
func (i *Ingester) Loop(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "ingester",
		PollInterval: i.interval,
		RunOnStart:   true,
		Process: func(ctx context.Context) error {
			i.Run(ctx)

			return nil
		},
		Logger: i.log,
	})
}

// Run fetches every configured feed once. A failing feed is logged and
// skipped so one dead host cannot starve the rest.
func (i *Ingester) Run(ctx context.Context) {
	for _, feedURL := range i.feeds {
		if ctx.Err() != nil {
			return
		}

		inserted, skipped, err := i.ingestFeed(ctx, feedURL)
		if err != nil {
			i.log.Error().Err(err).Str("feed", feedURL).Msg("feed fetch failed")

			continue
		}

		observability.ArticlesIngested.WithLabelValues(feedHost(feedURL)).Add(float64(inserted))

		if inserted > 0 {
			i.log.Info().
				Str("feed", feedURL).
				Int("inserted", inserted).
				Int("skipped", skipped).
				Msg("feed ingested")
		}
	}
}

func (i *Ingester) ingestFeed(ctx context.Context, feedURL string) (inserted, skipped int, err error) {
	feed, err := i.fetchFeed(ctx, feedURL)
	if err != nil {
		return 0, 0, err
	}

	for n, item := range feed.Items {
		if n >= maxFeedEntries {
			break
		}

		if strings.TrimSpace(item.Title) == "" {
			continue
		}

		article := i.itemToArticle(feed, item, feedURL)

		_, ok, err := i.store.InsertRawArticle(ctx, article)
		if err != nil {
			return inserted, skipped, fmt.Errorf("insert article: %w", err)
		}

		if ok {
			inserted++
		} else {
			skipped++
		}
	}

	return inserted, skipped, nil
}

func (i *Ingester) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerUserAgent, i.userAgent)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errHTTPStatus, resp.StatusCode)
	}

	feed, err := i.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

func (i *Ingester) itemToArticle(feed *gofeed.Feed, item *gofeed.Item, feedURL string) storage.RawArticle {
	content := item.Content
	if content == "" {
		content = item.Description
	}

	words := normalize.CountWords(htmlCleaner.CleanHTML(content))

	a := storage.RawArticle{
		Title:       strings.TrimSpace(item.Title),
		Link:        item.Link,
		Published:   i.itemTime(item),
		Summary:     item.Description,
		Source:      sourceName(feed, feedURL),
		FeedURL:     feedURL,
		Content:     content,
		Category:    firstCategory(item),
		WordCount:   words,
		ReadingTime: normalize.ReadingTime(words),
	}

	if item.Author != nil {
		a.Author = item.Author.Name
	}

	if item.Image != nil {
		a.ImageURL = item.Image.URL
	}

	return a
}

// itemTime prefers the parsed publication time, then a best-effort
// parse of the raw string. Items with no usable date get the fetch
// time so they still sort.
func (i *Ingester) itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}

	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}

	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t.UTC()
		}
	}

	return i.now().UTC()
}

func sourceName(feed *gofeed.Feed, feedURL string) string {
	if feed.Link != "" {
		return feedHost(feed.Link)
	}

	return feedHost(feedURL)
}

func firstCategory(item *gofeed.Item) string {
	if len(item.Categories) == 0 {
		return ""
	}

	return item.Categories[0]
}

func feedHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	return u.Host
}
