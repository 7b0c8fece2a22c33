package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

func TestNewEnvelopeWrapsDetailVerbatim(t *testing.T) {
	detail := json.RawMessage(`{"reservation_id":"r-1","status":"HOLD"}`)
	traceID := types.NewTraceID()

	env := NewEnvelope("reservation-core", "reservation.created", detail, traceID)

	assert.Equal(t, "reservation-core", env.Source)
	assert.Equal(t, "reservation.created", env.Type)
	assert.Equal(t, traceID.String(), env.TraceID)
	assert.JSONEq(t, string(detail), string(env.Detail))
	assert.False(t, env.Time.IsZero())
}

func TestEnvelopeMarshalRoundTrips(t *testing.T) {
	detail := json.RawMessage(`{"order_id":"o-1"}`)
	env := NewEnvelope("reservation-core", "reservation.confirmed", detail, types.NewTraceID())

	body, err := env.Marshal()
	assert.NoError(t, err)

	var decoded Envelope
	assert.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, env.Type, decoded.Type)
	assert.JSONEq(t, string(detail), string(decoded.Detail))
}
