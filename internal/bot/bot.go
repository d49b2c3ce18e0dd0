// Package bot serves the Telegram query interface: ranked story
// listings, keyword search, alert subscriptions, and on-demand
// analytical cards.
package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/enrich"
	"github.com/alphapulse/news-radar/internal/observability"
	"github.com/alphapulse/news-radar/internal/storage"
)

const (
	updateTimeoutSeconds = 30

	callbackAnalyze = "analyze_"

	msgAnalysisError = "❌ Error generating analysis. Try again later."
)

// Command names.
const (
	cmdStart       = "start"
	cmdHelp        = "help"
	cmdTop         = "top"
	cmdLatest      = "latest"
	cmdSearch      = "search"
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
	cmdMyStatus    = "mystatus"
)

// Repository is the bot's view of the store.
type Repository interface {
	TopAnalyzed(ctx context.Context, limit, hours int) ([]storage.AnalyzedNews, error)
	LatestAnalyzed(ctx context.Context, limit int) ([]storage.AnalyzedNews, error)
	SearchAnalyzed(ctx context.Context, keywords []string, limit int) ([]storage.AnalyzedNews, error)
	AnalyzedByID(ctx context.Context, id int) (*storage.AnalyzedNews, error)
	AddSubscriber(ctx context.Context, s storage.Subscriber) error
	RemoveSubscriber(ctx context.Context, chatID int64) (bool, error)
	SubscriberStatus(ctx context.Context, chatID int64) (*storage.Subscriber, error)
}

// CardGenerator produces the detailed analytical card for a story.
type CardGenerator interface {
	GenerateCard(ctx context.Context, input enrich.CardInput) string
}

// Sender is the slice of the Telegram API the bot writes through.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	repo   Repository
	cards  CardGenerator
	logger *zerolog.Logger
}

func New(token string, repo Repository, cards CardGenerator, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	logger.Info().Str("username", api.Self.UserName).Msg("telegram bot authorized")

	return &Bot{
		api:    api,
		sender: api,
		repo:   repo,
		cards:  cards,
		logger: logger,
	}, nil
}

// API exposes the underlying client so the monitor can share one
// authorized session.
func (b *Bot) API() Sender {
	return b.sender
}

// Run long-polls for updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()

			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	observability.BotCommands.WithLabelValues(cmd).Inc()

	switch cmd {
	case cmdStart, cmdHelp:
		b.handleHelp(msg)
	case cmdTop:
		b.handleTop(ctx, msg)
	case cmdLatest:
		b.handleLatest(ctx, msg)
	case cmdSearch:
		b.handleSearch(ctx, msg)
	case cmdSubscribe:
		b.handleSubscribe(ctx, msg)
	case cmdUnsubscribe:
		b.handleUnsubscribe(ctx, msg)
	case cmdMyStatus:
		b.handleMyStatus(ctx, msg)
	default:
		b.reply(msg.Chat.ID, fmt.Sprintf("❓ Unknown command: /%s. See /help.", cmd))
	}
}

// handleCallback serves the "detailed analysis" button. The card is
// generated on demand; a stored row is required but the LLM call may
// degrade to a stub.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Ack first so the button stops spinning.
	if _, err := b.sender.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn().Err(err).Msg("callback ack failed")
	}

	if query.Message == nil || !strings.HasPrefix(query.Data, callbackAnalyze) {
		return
	}

	var analyzedID int
	if _, err := fmt.Sscanf(query.Data, callbackAnalyze+"%d", &analyzedID); err != nil {
		return
	}

	chatID := query.Message.Chat.ID

	record, err := b.repo.AnalyzedByID(ctx, analyzedID)
	if err != nil || record == nil {
		if err != nil {
			b.logger.Error().Err(err).Int("analyzed_id", analyzedID).Msg("load analyzed row failed")
		}

		b.reply(chatID, msgAnalysisError)

		return
	}

	card := b.cards.GenerateCard(ctx, enrich.CardInput{
		ClusterID: record.ClusterID,
		Headline:  preferEnglish(record.HeadlineEN, record.Headline),
		Content:   preferEnglish(record.ContentEN, record.Content),
		Tickers:   record.Tickers,
		Hotness:   record.AIHotness,
	})
	if card == "" {
		b.reply(chatID, msgAnalysisError)

		return
	}

	b.replyMarkdown(chatID, formatCard(*record, card), nil)
}

// reply sends plain text with no formatting.
func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)

	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

// replyMarkdown sends sanitized legacy Markdown and degrades to plain
// text when Telegram still rejects the entity markup.
func (b *Bot) replyMarkdown(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if err := sendMarkdown(b.sender, chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

func sendMarkdown(sender Sender, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, SanitizeMarkdown(text))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	if _, err := sender.Send(msg); err == nil {
		return nil
	}

	plain := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		plain.ReplyMarkup = *keyboard
	}

	if _, err := sender.Send(plain); err != nil {
		return fmt.Errorf("send fallback message: %w", err)
	}

	return nil
}
