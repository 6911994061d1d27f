package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/televisit/signaling/internal/domain"
)

// handleReconnect replays the stored negotiation state to the requester
// only. The snapshot carries the opposite side's buffered candidates: the
// reconnecting peer already produced its own, it needs the ones it missed.
// A missing call gets an explicit failure so the client can stop waiting.
func (ctl *SignalWSController) handleReconnect(c *wsPeerConn, data []byte) {
	type reconnectPayload struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
		CallID string `json:"callId"`
	}
	var p reconnectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad reconnect payload")
		return
	}

	call, ok := ctl.Calls.Get(domain.CallID(p.CallID))
	if !ok {
		log.Warn().Str("module", "signal").Str("call", p.CallID).Str("identity", p.UserID).Msg("reconnect for unknown call")
		ctl.sendJSON(c, struct {
			Type   string `json:"type"`
			CallID string `json:"callId"`
			Error  string `json:"error"`
		}{
			Type:   "RECONNECT_FAILED",
			CallID: p.CallID,
			Error:  "not_found",
		})
		return
	}

	candidates := call.CallerCandidates
	if domain.Identity(p.UserID) == call.Caller {
		candidates = call.CalleeCandidates
	}
	if candidates == nil {
		candidates = []json.RawMessage{}
	}

	log.Info().Str("module", "signal").Str("call", p.CallID).Str("identity", p.UserID).Msg("reconnect snapshot")
	ctl.sendJSON(c, struct {
		Type       string            `json:"type"`
		CallID     string            `json:"callId"`
		Status     domain.CallStatus `json:"status"`
		Kind       string            `json:"kind,omitempty"`
		Offer      json.RawMessage   `json:"offer,omitempty"`
		Answer     json.RawMessage   `json:"answer,omitempty"`
		Candidates []json.RawMessage `json:"candidates"`
	}{
		Type:       "RECONNECT_OK",
		CallID:     p.CallID,
		Status:     call.Status,
		Kind:       call.Kind,
		Offer:      call.Offer,
		Answer:     call.Answer,
		Candidates: candidates,
	})
}
