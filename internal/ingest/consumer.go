package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
	"github.com/betofilippi/plataforma-hooks/internal/logging"
	"github.com/betofilippi/plataforma-hooks/internal/router"
	"github.com/betofilippi/plataforma-hooks/internal/tracing"
)

// Envelope is the wire shape of a domain event on the events topic.
type Envelope struct {
	EventID      string            `json:"event_id"`
	EventType    string            `json:"event_type"`
	Payload      map[string]any    `json:"payload"`
	EmittedAt    string            `json:"emitted_at"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// Consumer routes events arriving on the NSQ events topic.
type Consumer struct {
	consumer *nsq.Consumer
	router   *router.Router
	logger   *logging.Logger
}

// NewConsumer subscribes to topic on the given channel and routes each event.
func NewConsumer(topic, channel string, r *router.Router, logger *logging.Logger) (*Consumer, error) {
	conf := nsq.NewConfig()
	conf.MaxInFlight = 100
	consumer, err := nsq.NewConsumer(topic, channel, conf)
	if err != nil {
		return nil, err
	}
	c := &Consumer{consumer: consumer, router: r, logger: logger}
	consumer.AddHandler(nsq.HandlerFunc(c.handle))
	return c, nil
}

func (c *Consumer) handle(m *nsq.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		// Terminal: a bad payload never gets better on requeue.
		c.logger.Plain().WithError(err).Error("bad event payload, dropping")
		return nil
	}
	if env.EventID == "" || env.EventType == "" {
		c.logger.Plain().Error("event missing id or type, dropping")
		return nil
	}

	ctx := tracing.ExtractTraceFromNSQ(context.Background(), env.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "ingest.ConsumeEvent")
	defer span.End()

	emittedAt, _ := time.Parse(time.RFC3339, env.EmittedAt)
	_, err := c.router.Route(ctx, delivery.Event{
		ID:        env.EventID,
		Type:      env.EventType,
		Payload:   env.Payload,
		EmittedAt: emittedAt,
	})
	if err != nil {
		tracing.SetSpanError(ctx, err)
		c.logger.WithContext(ctx).WithEvent(env.EventID).WithError(err).Error("event routing failed, requeueing")
		return err // NSQ requeues on error
	}
	return nil
}

// ConnectToNSQD connects the consumer directly to one nsqd.
func (c *Consumer) ConnectToNSQD(addr string) error {
	return c.consumer.ConnectToNSQD(addr)
}

// ConnectToNSQLookupd discovers nsqd instances through lookupd.
func (c *Consumer) ConnectToNSQLookupd(addr string) error {
	return c.consumer.ConnectToNSQLookupd(addr)
}

// Stop drains the consumer and blocks until it has shut down.
func (c *Consumer) Stop() {
	c.consumer.Stop()
	<-c.consumer.StopChan
}
