package domain

import (
	"encoding/json"
	"time"
)

type CallID string

// CallStatus is the lifecycle state of a call. Values are part of the
// wire format (RECONNECT snapshots and the call lookup API), keep stable.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallConnected CallStatus = "connected"
	CallEnded     CallStatus = "ended"
	CallDeclined  CallStatus = "declined"
)

// Call tracks one negotiation session between two identities, from offer
// to termination. Offer, answer and candidates are opaque to the server
// and forwarded byte-for-byte.
type Call struct {
	ID     CallID     `json:"callId"`
	Caller Identity   `json:"caller"`
	Callee Identity   `json:"callee"`
	Kind   string     `json:"kind,omitempty"`
	Status CallStatus `json:"status"`

	Offer  json.RawMessage `json:"offer,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`

	CallerCandidates []json.RawMessage `json:"callerCandidates,omitempty"`
	CalleeCandidates []json.RawMessage `json:"calleeCandidates,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	AnsweredAt time.Time `json:"answeredAt,omitzero"`
	EndedAt    time.Time `json:"endedAt,omitzero"`
}

// Other returns the participant opposite to id. An identity matching
// neither party is treated as the callee side, so the caller is returned.
func (c *Call) Other(id Identity) Identity {
	if id == c.Caller {
		return c.Callee
	}
	return c.Caller
}
