package events

import (
	"encoding/json"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

// Envelope is the canonical shape for every event the reservation core emits
// through the outbox. It is deliberately self-contained: a consumer must be
// able to act on it without looking anything up elsewhere. Detail carries the
// already-marshaled outbox payload verbatim, avoiding a decode/re-encode
// round trip between the outbox row and the wire.
type Envelope struct {
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Detail  json.RawMessage `json:"detail"`
	TraceID string          `json:"trace_id"`
}

// NewEnvelope builds an envelope wrapping an already-serialized event payload.
func NewEnvelope(source, eventType string, detail json.RawMessage, traceID types.TraceID) Envelope {
	return Envelope{
		Source:  source,
		Type:    eventType,
		Time:    time.Now().UTC(),
		Detail:  detail,
		TraceID: traceID.String(),
	}
}

// Marshal serializes the envelope to JSON for transport.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
