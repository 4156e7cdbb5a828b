package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
	"github.com/betofilippi/plataforma-hooks/internal/tracing"
)

// Publisher writes event envelopes to the events topic, the same wire shape
// the consumer reads. ERP modules run their own producers in their own
// languages; this one backs the CLI and local tooling.
type Publisher struct {
	producer *nsq.Producer
	topic    string
}

// NewPublisher connects a producer to the given nsqd TCP address.
func NewPublisher(nsqdAddr, topic string) (*Publisher, error) {
	producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: producer, topic: topic}, nil
}

// Publish wraps the event in an envelope carrying the caller's trace context
// and writes it to the topic.
func (p *Publisher) Publish(ctx context.Context, ev delivery.Event) error {
	body, err := json.Marshal(envelopeFrom(ctx, ev))
	if err != nil {
		return err
	}
	return p.producer.Publish(p.topic, body)
}

// Stop flushes and closes the producer connection.
func (p *Publisher) Stop() {
	p.producer.Stop()
}

func envelopeFrom(ctx context.Context, ev delivery.Event) Envelope {
	emitted := ev.EmittedAt
	if emitted.IsZero() {
		emitted = time.Now()
	}
	return Envelope{
		EventID:      ev.ID,
		EventType:    ev.Type,
		Payload:      ev.Payload,
		EmittedAt:    emitted.UTC().Format(time.RFC3339),
		TraceHeaders: tracing.PropagateTraceToNSQ(ctx),
	}
}
