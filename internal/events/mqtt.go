package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTopicPrefix events go to <prefix>/<event suffix>,
// e.g. chata/assessments/submitted
const DefaultTopicPrefix = "chata/assessments"

// MQTTClient subset of common/mqtt.Client used here
type MQTTClient interface {
	Publish(topic string, retained bool, payload []byte) error
}

// MQTT publishes JSON-encoded events to a broker
type MQTT struct {
	client MQTTClient
	prefix string
}

func NewMQTT(client MQTTClient, prefix string) *MQTT {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTT{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

// Topic topic for an event type: the part after the last dot
func (p *MQTT) Topic(eventType string) string {
	suffix := eventType
	if i := strings.LastIndex(eventType, "."); i >= 0 {
		suffix = eventType[i+1:]
	}
	return p.prefix + "/" + suffix
}

func (p *MQTT) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	return p.client.Publish(p.Topic(e.Type), false, payload)
}
