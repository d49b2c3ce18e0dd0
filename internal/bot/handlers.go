package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alphapulse/news-radar/internal/storage"
)

const (
	defaultListCount = 10
	maxListCount     = 20
	defaultTopHours  = 24
	maxTopHours      = 168

	searchResultLimit = 10
)

const helpText = `📡 *Financial News Radar*

/top [count] [hours] - hottest stories (default: 10 over 24h)
/latest [count] - most recently analyzed stories
/search <keywords> - keyword search across analyzed news
/subscribe - receive hot-news alerts in this chat
/unsubscribe - stop receiving alerts
/mystatus - show your subscription
/help - this message

Tap "📊 Detailed analysis" under any story for the full analytical card.`

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	b.replyMarkdown(msg.Chat.ID, helpText, nil)
}

// handleTop serves /top [count] [hours].
func (b *Bot) handleTop(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())

	count := clampArg(args, 0, defaultListCount, 1, maxListCount)
	hours := clampArg(args, 1, defaultTopHours, 1, maxTopHours)

	list, err := b.repo.TopAnalyzed(ctx, count, hours)
	if err != nil {
		b.logger.Error().Err(err).Msg("top query failed")
		b.reply(msg.Chat.ID, "❌ Error fetching news. Try again later.")

		return
	}

	if len(list) == 0 {
		b.reply(msg.Chat.ID, fmt.Sprintf("No analyzed news in the last %d hours.", hours))

		return
	}

	b.sendNewsList(msg.Chat.ID, fmt.Sprintf("🔥 *Top %d stories (last %dh)*", len(list), hours), list)
}

// handleLatest serves /latest [count].
func (b *Bot) handleLatest(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())

	count := clampArg(args, 0, defaultListCount, 1, maxListCount)

	list, err := b.repo.LatestAnalyzed(ctx, count)
	if err != nil {
		b.logger.Error().Err(err).Msg("latest query failed")
		b.reply(msg.Chat.ID, "❌ Error fetching news. Try again later.")

		return
	}

	if len(list) == 0 {
		b.reply(msg.Chat.ID, "No analyzed news yet.")

		return
	}

	b.sendNewsList(msg.Chat.ID, fmt.Sprintf("🗞 *Latest %d stories*", len(list)), list)
}

// handleSearch serves /search <keywords...>.
func (b *Bot) handleSearch(ctx context.Context, msg *tgbotapi.Message) {
	keywords := strings.Fields(msg.CommandArguments())
	if len(keywords) == 0 {
		b.reply(msg.Chat.ID, "Usage: /search <keywords>")

		return
	}

	list, err := b.repo.SearchAnalyzed(ctx, keywords, searchResultLimit)
	if err != nil {
		b.logger.Error().Err(err).Msg("search query failed")
		b.reply(msg.Chat.ID, "❌ Error searching news. Try again later.")

		return
	}

	if len(list) == 0 {
		b.reply(msg.Chat.ID, fmt.Sprintf("Nothing found for: %s", strings.Join(keywords, " ")))

		return
	}

	b.sendNewsList(msg.Chat.ID, fmt.Sprintf("🔎 *Results for %s*", strings.Join(keywords, " ")), list)
}

func (b *Bot) handleSubscribe(ctx context.Context, msg *tgbotapi.Message) {
	sub := storage.Subscriber{ChatID: msg.Chat.ID}

	if msg.From != nil {
		sub.Username = msg.From.UserName
		sub.FirstName = msg.From.FirstName
		sub.LastName = msg.From.LastName
	}

	if err := b.repo.AddSubscriber(ctx, sub); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("subscribe failed")
		b.reply(msg.Chat.ID, "❌ Error saving subscription. Try again later.")

		return
	}

	b.reply(msg.Chat.ID, "✅ Subscribed. You will receive hot-news alerts in this chat.")
}

func (b *Bot) handleUnsubscribe(ctx context.Context, msg *tgbotapi.Message) {
	removed, err := b.repo.RemoveSubscriber(ctx, msg.Chat.ID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("unsubscribe failed")
		b.reply(msg.Chat.ID, "❌ Error removing subscription. Try again later.")

		return
	}

	if !removed {
		b.reply(msg.Chat.ID, "You are not subscribed.")

		return
	}

	b.reply(msg.Chat.ID, "✅ Unsubscribed. No more alerts will be sent to this chat.")
}

func (b *Bot) handleMyStatus(ctx context.Context, msg *tgbotapi.Message) {
	sub, err := b.repo.SubscriberStatus(ctx, msg.Chat.ID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("status query failed")
		b.reply(msg.Chat.ID, "❌ Error fetching status. Try again later.")

		return
	}

	if sub == nil || !sub.IsActive {
		b.reply(msg.Chat.ID, "🔕 Not subscribed. Use /subscribe to receive hot-news alerts.")

		return
	}

	var sb strings.Builder

	sb.WriteString("🔔 *Subscription active*\n")
	fmt.Fprintf(&sb, "Since: %s\n", sub.SubscribedAt.UTC().Format("2006-01-02 15:04 UTC"))

	if !sub.LastNotificationAt.IsZero() {
		fmt.Fprintf(&sb, "Last alert: %s\n", formatTimeAgo(sub.LastNotificationAt, time.Now()))
	} else {
		sb.WriteString("Last alert: never\n")
	}

	b.replyMarkdown(msg.Chat.ID, sb.String(), nil)
}

// sendNewsList sends a header message followed by one message per
// story, each carrying its analysis button.
func (b *Bot) sendNewsList(chatID int64, header string, list []storage.AnalyzedNews) {
	b.replyMarkdown(chatID, header, nil)

	for i, a := range list {
		keyboard := analyzeKeyboard(a.ID)
		b.replyMarkdown(chatID, formatNewsItem(i+1, a), &keyboard)
	}
}

// clampArg parses args[idx] as an int, applying the default when the
// argument is missing or malformed and clamping into [min, max].
func clampArg(args []string, idx, def, min, max int) int {
	v := def

	if idx < len(args) {
		if parsed, err := strconv.Atoi(args[idx]); err == nil {
			v = parsed
		}
	}

	if v < min {
		return min
	}

	if v > max {
		return max
	}

	return v
}
