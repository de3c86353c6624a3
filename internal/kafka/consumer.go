// Package kafka wraps segmentio/kafka-go for the enqueue ingest lane.
// Offsets are committed explicitly by the caller so a crash mid-batch
// replays rather than drops messages.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
	MaxWait        time.Duration
}

func (c *Config) defaults() {
	if c.MinBytes <= 0 {
		c.MinBytes = 1 << 10
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.CommitInterval <= 0 {
		c.CommitInterval = time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 50 * time.Millisecond
	}
}

type Message = kafka.Message

// Consumer reads enqueue envelopes off one topic as part of a consumer
// group.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(cfg Config) *Consumer {
	cfg.defaults()
	return &Consumer{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: cfg.CommitInterval,
		MaxWait:        cfg.MaxWait,
	})}
}

// Fetch blocks for the next message without committing it.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

// Commit acknowledges messages up to and including m.
func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.r.Close() }
