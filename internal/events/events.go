// Package events announces assessment lifecycle changes to downstream
// consumers over Redis Streams and MQTT.
package events

import (
	"context"
	"errors"
	"time"
)

// TypeSubmitted emitted once a record has been accepted by the spreadsheet
const TypeSubmitted = "assessment.submitted"

// Event lifecycle notification
type Event struct {
	Type       string         `json:"type"`
	ChataID    string         `json:"chata_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events; implementations must be safe for concurrent use
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
