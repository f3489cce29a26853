// Package events publishes newly seen quakes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/model"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "quakemap.quakes"

// TypeQuakeNew marks the first sighting of a quake.
const TypeQuakeNew = "quake.new"

// Event is the JSON payload published for each new quake. The websocket
// stream uses the same shape.
type Event struct {
	Type        string      `json:"type"`
	RunID       string      `json:"run_id,omitempty"`
	Quake       model.Quake `json:"quake"`
	PublishedAt time.Time   `json:"published_at"`
}

// NewQuakeEvents wraps quakes as new-quake events.
func NewQuakeEvents(runID string, quakes []model.Quake, now time.Time) []Event {
	out := make([]Event, len(quakes))
	for i, q := range quakes {
		out[i] = Event{Type: TypeQuakeNew, RunID: runID, Quake: q, PublishedAt: now.UTC()}
	}
	return out
}

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// Publisher writes quake events keyed by quake id.
type Publisher struct {
	w     MessageWriter
	topic string
}

// NewKafka creates a Publisher backed by a kafka-go writer. Messages are
// hash-partitioned by quake id so updates to one quake stay ordered.
func NewKafka(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, eris.New("events: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return NewWithWriter(w, topic), nil
}

// NewWithWriter creates a Publisher over an existing writer.
func NewWithWriter(w MessageWriter, topic string) *Publisher {
	return &Publisher{w: w, topic: topic}
}

// Topic returns the topic events are written to.
func (p *Publisher) Topic() string { return p.topic }

// Publish writes events in one batch.
func (p *Publisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		if e.Quake.ID == "" {
			return eris.New("events: event without quake id")
		}
		value, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "events: marshal %s", e.Quake.ID)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.Quake.ID), Value: value})
	}

	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return eris.Wrapf(err, "events: write %d messages to %s", len(msgs), p.topic)
	}
	zap.L().Debug("events: published", zap.String("topic", p.topic), zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return eris.Wrap(p.w.Close(), "events: close writer")
}
