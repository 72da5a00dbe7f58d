// Package kafka publishes job lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/ahmethakanbesel/cartoon-api/internal/job"
)

const (
	EventSubmitted = "job.submitted"
	EventDone      = "job.done"
	EventError     = "job.error"
)

type Config struct {
	Brokers []string
	Topic   string
}

type Event struct {
	Type       string    `json:"type"`
	Job        job.Job   `json:"job"`
	DurationMS int64     `json:"durationMs,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher implements job.Observer. Events are handed to an async producer
// so callers never wait on the broker; send failures are logged and never
// affect the job.
type Publisher struct {
	topic    string
	producer sarama.AsyncProducer
	drained  chan struct{}
}

// New connects an asynchronous producer to the brokers.
func New(cfg Config) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3

	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewWithProducer(cfg.Topic, p), nil
}

// NewWithProducer wraps an existing producer. The producer must report
// errors and must not report successes.
func NewWithProducer(topic string, p sarama.AsyncProducer) *Publisher {
	pub := &Publisher{topic: topic, producer: p, drained: make(chan struct{})}
	go pub.drainErrors()
	return pub
}

func (p *Publisher) Submitted(ctx context.Context, j job.Job) {
	p.publish(ctx, Event{Type: EventSubmitted, Job: j, Time: time.Now().UTC()})
}

func (p *Publisher) Finished(ctx context.Context, j job.Job, elapsed time.Duration) {
	typ := EventDone
	if j.Status == job.StatusError {
		typ = EventError
	}
	p.publish(ctx, Event{Type: typ, Job: j, DurationMS: elapsed.Milliseconds(), Time: time.Now().UTC()})
}

func (p *Publisher) publish(_ context.Context, e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		slog.Error("kafka: encode event", "job", e.Job.ID, "error", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic:    p.topic,
		Key:      sarama.StringEncoder(e.Job.ID),
		Value:    sarama.ByteEncoder(value),
		Metadata: e.Type,
	}
	select {
	case p.producer.Input() <- msg:
	default:
		slog.Warn("kafka: producer buffer full, dropping event", "job", e.Job.ID, "type", e.Type)
	}
}

func (p *Publisher) drainErrors() {
	defer close(p.drained)
	for perr := range p.producer.Errors() {
		slog.Error("kafka: publish event", "key", perr.Msg.Key, "type", perr.Msg.Metadata, "error", perr.Err)
	}
}

// Close flushes buffered events and stops the producer. Events must not be
// published after Close.
func (p *Publisher) Close() error {
	p.producer.AsyncClose()
	<-p.drained
	return nil
}
