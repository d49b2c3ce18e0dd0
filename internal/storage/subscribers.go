package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Subscriber is a Telegram chat subscribed to hot-news alerts.
// Unsubscribing clears is_active; the row is kept.
type Subscriber struct {
	ChatID             int64
	Username           string
	FirstName          string
	LastName           string
	SubscribedAt       time.Time
	IsActive           bool
	LastNotificationAt time.Time
}

// AddSubscriber subscribes a chat, re-activating it if it unsubscribed
// earlier.
func (db *DB) AddSubscriber(ctx context.Context, s Subscriber) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO telegram_subscribers (chat_id, username, first_name, last_name, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (chat_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    is_active = TRUE,
		    subscribed_at = now()
	`, s.ChatID, toText(s.Username), toText(s.FirstName), toText(s.LastName)); err != nil {
		return fmt.Errorf("add subscriber: %w", err)
	}

	return nil
}

// RemoveSubscriber soft-deletes a subscription. Returns false when the
// chat was not subscribed.
func (db *DB) RemoveSubscriber(ctx context.Context, chatID int64) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE telegram_subscribers SET is_active = FALSE WHERE chat_id = $1 AND is_active = TRUE
	`, chatID)
	if err != nil {
		return false, fmt.Errorf("remove subscriber: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ActiveSubscribers returns all active subscriptions in subscription
// order.
func (db *DB) ActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT chat_id, username, first_name, last_name, subscribed_at, last_notification_at
		FROM telegram_subscribers
		WHERE is_active = TRUE
		ORDER BY subscribed_at
	`)
	if err != nil {
		return nil, fmt.Errorf("active subscribers: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber

	for rows.Next() {
		var (
			s            Subscriber
			username     pgtype.Text
			firstName    pgtype.Text
			lastName     pgtype.Text
			subscribedAt pgtype.Timestamptz
			lastNotified pgtype.Timestamptz
		)

		if err := rows.Scan(&s.ChatID, &username, &firstName, &lastName, &subscribedAt, &lastNotified); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}

		s.Username = fromText(username)
		s.FirstName = fromText(firstName)
		s.LastName = fromText(lastName)
		s.SubscribedAt = fromTimestamptz(subscribedAt)
		s.LastNotificationAt = fromTimestamptz(lastNotified)
		s.IsActive = true

		subs = append(subs, s)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", rows.Err())
	}

	return subs, nil
}

// SubscriberStatus returns the subscriber row for a chat, or nil when
// the chat never subscribed.
func (db *DB) SubscriberStatus(ctx context.Context, chatID int64) (*Subscriber, error) {
	var (
		s            Subscriber
		username     pgtype.Text
		firstName    pgtype.Text
		lastName     pgtype.Text
		subscribedAt pgtype.Timestamptz
		lastNotified pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT chat_id, username, first_name, last_name, subscribed_at, is_active, last_notification_at
		FROM telegram_subscribers
		WHERE chat_id = $1
	`, chatID).Scan(&s.ChatID, &username, &firstName, &lastName, &subscribedAt, &s.IsActive, &lastNotified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("subscriber status: %w", err)
	}

	s.Username = fromText(username)
	s.FirstName = fromText(firstName)
	s.LastName = fromText(lastName)
	s.SubscribedAt = fromTimestamptz(subscribedAt)
	s.LastNotificationAt = fromTimestamptz(lastNotified)

	return &s, nil
}

// TouchNotification records a successful alert delivery.
func (db *DB) TouchNotification(ctx context.Context, chatID int64) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE telegram_subscribers SET last_notification_at = now() WHERE chat_id = $1
	`, chatID); err != nil {
		return fmt.Errorf("touch notification: %w", err)
	}

	return nil
}
