// Package pubsub hands accepted articles to the downstream summarization
// pipeline via Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the topic.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("project id and topic id are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &Publisher{topic: client.Topic(topicID)}, nil
}

// NewWithTopic wraps an existing topic (primarily for testing).
func NewWithTopic(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals the article to JSON and publishes it. The result is
// awaited so errors surface to the caller's log, but the caller treats
// the enqueue as fire-and-forget.
func (p *Publisher) Publish(ctx context.Context, article ingest.Article) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"source_id": article.SourceID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish article: %w", err)
	}
	return nil
}

// Stop flushes and stops the underlying topic.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
