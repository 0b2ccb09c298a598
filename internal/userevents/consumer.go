// Package userevents keeps a local replica of accounts by consuming
// user-created events from Kafka.
package userevents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/itsrifathridoy/talenthium/internal/model"
	"github.com/itsrifathridoy/talenthium/internal/store"
)

// Consumer reads user-created events and upserts them into the users table.
type Consumer struct {
	reader *kafka.Reader
	store  store.Store
	logger *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, st store.Store, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &Consumer{reader: reader, store: st, logger: logger}
}

// Run consumes until the context is cancelled. Malformed messages are logged
// and skipped; the replica tolerates gaps better than a stalled partition.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting user event consumer", "topic", c.reader.Config().Topic)
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			c.logger.Info("User event consumer shutting down")
			return nil
		}
		if err != nil {
			return err
		}

		var ev model.UserCreatedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Warn("Skipping malformed user event", "offset", msg.Offset, "error", err)
			continue
		}
		if ev.UserID == 0 {
			c.logger.Warn("Skipping user event without user id", "offset", msg.Offset)
			continue
		}

		user := model.User{UserID: ev.UserID, Username: ev.Username, Email: ev.Email}
		if err := c.store.UpsertUser(ctx, user); err != nil {
			c.logger.Error("Error upserting user from event", "user_id", ev.UserID, "error", err)
			continue
		}
		c.logger.Info("Upserted user from event", "user_id", ev.UserID)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
