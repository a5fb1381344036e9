// Package pubsub publishes change events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// ChangeEvent is the JSON payload published for each detected change.
type ChangeEvent struct {
	TargetID    string    `json:"target_id"`
	TargetName  string    `json:"target_name"`
	TargetURL   string    `json:"target_url"`
	CheckID     string    `json:"check_id"`
	Fingerprint string    `json:"fingerprint"`
	CheckedAt   time.Time `json:"checked_at"`
	Summary     string    `json:"summary"`
	Diff        string    `json:"diff,omitempty"`
	ContentURI  string    `json:"content_uri,omitempty"`
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a Publisher for an existing topic handle.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Dial creates a client for projectID and binds it to topicID.
func Dial(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, errors.New("pubsub project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{client: client, topic: client.Topic(topicID)}, nil
}

// Notify publishes the change event and waits for the server ack.
func (p *Publisher) Notify(ctx context.Context, n monitor.Notification) error {
	if p.topic == nil {
		return &monitor.DeliveryError{Reason: "pubsub publisher is not configured"}
	}
	event := ChangeEvent{
		TargetID:    n.Target.ID,
		TargetName:  n.Target.Name,
		TargetURL:   n.Target.URL,
		CheckID:     n.Check.ID,
		Fingerprint: n.Check.Fingerprint,
		CheckedAt:   n.Check.CheckedAt,
		Summary:     n.Summary,
		Diff:        n.RenderedDiff,
		ContentURI:  n.Check.ContentURI,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return &monitor.DeliveryError{Reason: "marshal change event", Err: err}
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"target_id": n.Target.ID}}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return &monitor.DeliveryError{Reason: "publish message", Err: err}
	}
	return nil
}

// Close flushes pending messages and releases the client if Dial created it.
func (p *Publisher) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
