// Package publisher defines the notification contract for scrape run results.
package publisher

import "context"

// Publisher delivers a payload to a named topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// NoOp discards every publish.
type NoOp struct{}

// Publish does nothing and reports an empty id.
func (NoOp) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
