package types

import "github.com/google/uuid"

// CallerID identifies the party on whose behalf a request is made (a ticket buyer
// or an internal service account), analogous to a tenant in a multi-tenant system.
type CallerID string

// CorrelationID tracks a request across service and process boundaries.
type CorrelationID string

// TraceID correlates a request with the logs and events it produces.
type TraceID string

// EventID uniquely identifies a domain event.
type EventID string

// NewEventID generates a new unique EventID.
func NewEventID() EventID {
	return EventID(uuid.NewString())
}

// NewCorrelationID generates a new unique CorrelationID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// NewTraceID generates a new unique TraceID.
func NewTraceID() TraceID {
	return TraceID(uuid.NewString())
}

func (c CallerID) String() string      { return string(c) }
func (c CorrelationID) String() string { return string(c) }
func (t TraceID) String() string       { return string(t) }
func (e EventID) String() string       { return string(e) }

func (c CallerID) IsEmpty() bool      { return c == "" }
func (c CorrelationID) IsEmpty() bool { return c == "" }
func (t TraceID) IsEmpty() bool       { return t == "" }
