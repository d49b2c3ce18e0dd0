package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/observability"
	"github.com/alphapulse/news-radar/internal/platform/worker"
	"github.com/alphapulse/news-radar/internal/storage"
)

// notifiedCap bounds the in-memory set of already-alerted stories. Old
// entries are evicted FIFO; the HotNewSince window makes re-alerting
// after eviction impossible in practice.
const notifiedCap = 512

// MonitorStore is the monitor's view of the store.
type MonitorStore interface {
	HotNewSince(ctx context.Context, threshold float32, window time.Duration) ([]storage.AnalyzedNews, error)
	ActiveSubscribers(ctx context.Context) ([]storage.Subscriber, error)
	AddSubscriber(ctx context.Context, s storage.Subscriber) error
	TouchNotification(ctx context.Context, chatID int64) error
}

// Monitor pushes hot-news alerts to subscribers.
type Monitor struct {
	store     MonitorStore
	sender    Sender
	threshold float32
	interval  time.Duration

	// legacyChatID, when non-zero, is auto-subscribed on start so
	// single-chat deployments keep working without /subscribe.
	legacyChatID int64

	notified *notifiedSet
	logger   *zerolog.Logger
}

func NewMonitor(store MonitorStore, sender Sender, threshold float32, interval time.Duration, legacyChatID int64, logger *zerolog.Logger) *Monitor {
	return &Monitor{
		store:        store,
		sender:       sender,
		threshold:    threshold,
		interval:     interval,
		legacyChatID: legacyChatID,
		notified:     newNotifiedSet(notifiedCap),
		logger:       logger,
	}
}

// Run polls for newly analyzed hot stories until the context is
// canceled.
func (m *Monitor) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "hot news monitor",
		PollInterval: m.interval,
		Process:      m.check,
		OnStart:      m.seedLegacySubscriber,
		Logger:       m.logger,
	})
}

func (m *Monitor) seedLegacySubscriber(ctx context.Context) {
	if m.legacyChatID == 0 {
		return
	}

	if err := m.store.AddSubscriber(ctx, storage.Subscriber{ChatID: m.legacyChatID}); err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", m.legacyChatID).Msg("legacy subscriber seed failed")
	}
}

// check looks twice the poll interval back so a slow cycle cannot open
// a gap between consecutive windows.
func (m *Monitor) check(ctx context.Context) error {
	hot, err := m.store.HotNewSince(ctx, m.threshold, 2*m.interval)
	if err != nil {
		return err
	}

	for _, a := range hot {
		if m.notified.Contains(a.ID) {
			continue
		}

		m.broadcast(ctx, a)
		m.notified.Add(a.ID)
	}

	return nil
}

// broadcast delivers one alert to every active subscriber. A failing
// chat (blocked bot, deleted chat) is logged and skipped so it cannot
// starve the rest.
func (m *Monitor) broadcast(ctx context.Context, a storage.AnalyzedNews) {
	subs, err := m.store.ActiveSubscribers(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("load subscribers failed")

		return
	}

	observability.ActiveSubscribers.Set(float64(len(subs)))

	if len(subs) == 0 {
		return
	}

	text := formatAlert(a)
	keyboard := analyzeKeyboard(a.ID)

	for _, sub := range subs {
		if err := sendMarkdown(m.sender, sub.ChatID, text, &keyboard); err != nil {
			observability.HotAlertsSent.WithLabelValues("error").Inc()
			m.logger.Error().Err(err).Int64("chat_id", sub.ChatID).Int("analyzed_id", a.ID).Msg("alert delivery failed")

			continue
		}

		observability.HotAlertsSent.WithLabelValues("ok").Inc()

		if err := m.store.TouchNotification(ctx, sub.ChatID); err != nil {
			m.logger.Warn().Err(err).Int64("chat_id", sub.ChatID).Msg("touch notification failed")
		}
	}

	m.logger.Info().
		Int("analyzed_id", a.ID).
		Float32("hotness", a.AIHotness).
		Int("subscribers", len(subs)).
		Msg("hot news alert sent")
}

// notifiedSet is a FIFO-bounded set of analyzed-row ids.
type notifiedSet struct {
	cap   int
	set   map[int]struct{}
	order []int
}

func newNotifiedSet(capacity int) *notifiedSet {
	return &notifiedSet{
		cap: capacity,
		set: make(map[int]struct{}, capacity),
	}
}

func (s *notifiedSet) Contains(id int) bool {
	_, ok := s.set[id]

	return ok
}

func (s *notifiedSet) Add(id int) {
	if _, ok := s.set[id]; ok {
		return
	}

	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}

	s.set[id] = struct{}{}
	s.order = append(s.order, id)
}
