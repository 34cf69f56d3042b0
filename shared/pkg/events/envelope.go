package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire representation of a domain event.
type Envelope struct {
	EventType  string          `json:"eventType"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope from the transport body. It only checks the
// envelope itself; payload validation is up to the schema of EventType.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, mismatch("decode envelope: %v", err)
	}
	switch {
	case env.EventType == "":
		return Envelope{}, mismatch("missing eventType")
	case env.EventID == "":
		return Envelope{}, mismatch("missing eventId")
	case len(env.Payload) == 0 || string(env.Payload) == "null":
		return Envelope{}, mismatch("missing payload")
	}
	return env, nil
}
