// Package notify carries "check this file" notifications between the API
// and the worker over Redis streams.
package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// sentLayout matches the naive UTC ISO timestamps of existing consumers.
const sentLayout = "2006-01-02T15:04:05.999999"

// Message is the notification envelope.
type Message struct {
	Payload json.RawMessage `json:"payload"`
	Meta    Meta            `json:"_meta"`
}

type Meta struct {
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
	Serializer string `json:"serializer"`
	Sent       string `json:"sent"`
}

// CheckFile asks the worker to verify the pending uploads of a digest.
type CheckFile struct {
	Digest string `json:"digest"`
}

func NewMessage(exchange, routingKey string, payload any, sent time.Time) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &Message{
		Payload: raw,
		Meta: Meta{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Serializer: "json",
			Sent:       sent.UTC().Format(sentLayout),
		},
	}, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(m.Payload, v)
}
