package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alphapulse/news-radar/internal/storage"
)

type fakeSender struct {
	sent      []tgbotapi.MessageConfig
	failChat  int64
	failFirst bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}

	if f.failFirst {
		f.failFirst = false

		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}

	if f.failChat != 0 && msg.ChatID == f.failChat {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}

	f.sent = append(f.sent, msg)

	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakeMonitorStore struct {
	hot        []storage.AnalyzedNews
	hotErr     error
	subs       []storage.Subscriber
	subscribed []int64
	touched    []int64
}

func (f *fakeMonitorStore) HotNewSince(context.Context, float32, time.Duration) ([]storage.AnalyzedNews, error) {
	return f.hot, f.hotErr
}

func (f *fakeMonitorStore) ActiveSubscribers(context.Context) ([]storage.Subscriber, error) {
	return f.subs, nil
}

func (f *fakeMonitorStore) AddSubscriber(_ context.Context, s storage.Subscriber) error {
	f.subscribed = append(f.subscribed, s.ChatID)

	return nil
}

func (f *fakeMonitorStore) TouchNotification(_ context.Context, chatID int64) error {
	f.touched = append(f.touched, chatID)

	return nil
}

func newTestMonitor(store MonitorStore, sender Sender, legacyChatID int64) *Monitor {
	log := zerolog.Nop()

	return NewMonitor(store, sender, 0.7, time.Minute, legacyChatID, &log)
}

func TestMonitorBroadcastsToAllSubscribers(t *testing.T) {
	store := &fakeMonitorStore{
		hot: []storage.AnalyzedNews{{ID: 1, Headline: "Hot story", AIHotness: 0.9}},
		subs: []storage.Subscriber{
			{ChatID: 100},
			{ChatID: 200},
		},
	}
	sender := &fakeSender{}

	m := newTestMonitor(store, sender, 0)
	require.NoError(t, m.check(context.Background()))

	require.Len(t, sender.sent, 2)
	require.Equal(t, []int64{100, 200}, store.touched)
	require.Contains(t, sender.sent[0].Text, "HOT NEWS")
}

func TestMonitorDoesNotRealert(t *testing.T) {
	store := &fakeMonitorStore{
		hot:  []storage.AnalyzedNews{{ID: 1, Headline: "Hot story", AIHotness: 0.9}},
		subs: []storage.Subscriber{{ChatID: 100}},
	}
	sender := &fakeSender{}

	m := newTestMonitor(store, sender, 0)
	require.NoError(t, m.check(context.Background()))
	require.NoError(t, m.check(context.Background()))

	require.Len(t, sender.sent, 1)
}

func TestMonitorIsolatesFailingChat(t *testing.T) {
	store := &fakeMonitorStore{
		hot: []storage.AnalyzedNews{{ID: 1, Headline: "Hot story", AIHotness: 0.9}},
		subs: []storage.Subscriber{
			{ChatID: 100},
			{ChatID: 200},
		},
	}
	sender := &fakeSender{failChat: 100}

	m := newTestMonitor(store, sender, 0)
	require.NoError(t, m.check(context.Background()))

	// Chat 100 fails both the Markdown and the plain attempt; 200
	// still gets the alert and its delivery timestamp.
	require.Len(t, sender.sent, 1)
	require.Equal(t, int64(200), sender.sent[0].ChatID)
	require.Equal(t, []int64{200}, store.touched)
}

func TestMonitorStoreError(t *testing.T) {
	store := &fakeMonitorStore{hotErr: errors.New("db down")}

	m := newTestMonitor(store, &fakeSender{}, 0)
	require.Error(t, m.check(context.Background()))
}

func TestMonitorSeedsLegacySubscriber(t *testing.T) {
	store := &fakeMonitorStore{}

	m := newTestMonitor(store, &fakeSender{}, 42)
	m.seedLegacySubscriber(context.Background())

	require.Equal(t, []int64{42}, store.subscribed)
}

func TestMonitorNoLegacySubscriber(t *testing.T) {
	store := &fakeMonitorStore{}

	m := newTestMonitor(store, &fakeSender{}, 0)
	m.seedLegacySubscriber(context.Background())

	require.Empty(t, store.subscribed)
}

func TestNotifiedSetEviction(t *testing.T) {
	s := newNotifiedSet(3)

	for id := 1; id <= 4; id++ {
		s.Add(id)
	}

	require.False(t, s.Contains(1))
	require.True(t, s.Contains(2))
	require.True(t, s.Contains(3))
	require.True(t, s.Contains(4))

	// Re-adding an existing id does not evict.
	s.Add(4)
	require.True(t, s.Contains(2))
}
