package signal

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/televisit/signaling/internal/domain"
)

// handleOffer creates the call record and forwards the offer. The frame is
// re-sent with the resolved call id filled in; every other field, known or
// not, goes through untouched.
func (ctl *SignalWSController) handleOffer(c *wsPeerConn, data []byte) {
	type offerPayload struct {
		Type   string          `json:"type"`
		From   string          `json:"from"`
		To     string          `json:"to"`
		CallID string          `json:"callId"`
		Offer  json.RawMessage `json:"offer"`
		Kind   string          `json:"kind"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		return
	}

	callID := domain.CallID(p.CallID)
	if callID == "" {
		callID = domain.CallID(strconv.FormatInt(time.Now().UnixMilli(), 10))
	}
	ctl.Calls.Create(callID, domain.Identity(p.From), domain.Identity(p.To), p.Kind, p.Offer)

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("offer reframe")
		return
	}
	frame["callId"] = string(callID)
	out, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("offer marshal")
		return
	}
	ctl.relayTo(domain.Identity(p.To), p.Type, out)
}

// handleAnswer records the answer on the call, if it still exists, and
// forwards the frame. A missing call only skips the store write.
func (ctl *SignalWSController) handleAnswer(c *wsPeerConn, data []byte) {
	type answerPayload struct {
		Type   string          `json:"type"`
		CallID string          `json:"callId"`
		To     string          `json:"to"`
		Answer json.RawMessage `json:"answer"`
	}
	var p answerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}

	if !ctl.Calls.ApplyAnswer(domain.CallID(p.CallID), p.Answer) {
		log.Warn().Str("module", "signal").Str("call", p.CallID).Msg("answer for unknown call")
	}
	ctl.relayTo(domain.Identity(p.To), p.Type, data)
}

// handleCandidate buffers the candidate for later RECONNECT replay and
// forwards the frame. Storage and relay are independent: the relay goes
// out even when the call is unknown or the candidate field is missing.
func (ctl *SignalWSController) handleCandidate(c *wsPeerConn, data []byte) {
	type icePayload struct {
		Type      string          `json:"type"`
		CallID    string          `json:"callId"`
		From      string          `json:"from"`
		To        string          `json:"to"`
		Candidate json.RawMessage `json:"candidate"`
	}
	var p icePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad ice payload")
		return
	}

	if len(p.Candidate) > 0 {
		if !ctl.Calls.AppendCandidate(domain.CallID(p.CallID), domain.Identity(p.From), p.Candidate) {
			log.Warn().Str("module", "signal").Str("call", p.CallID).Msg("candidate for unknown call")
		}
	}
	ctl.relayTo(domain.Identity(p.To), p.Type, data)
}

// handleEndCall marks the call ended and tells the other participant.
// The record is kept around for a grace window so a late RECONNECT still
// learns the call ended instead of getting not-found.
func (ctl *SignalWSController) handleEndCall(c *wsPeerConn, data []byte) {
	type endPayload struct {
		Type   string `json:"type"`
		CallID string `json:"callId"`
		From   string `json:"from"`
	}
	var p endPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad end_call payload")
		return
	}

	callID := domain.CallID(p.CallID)
	call, ok := ctl.Calls.MarkEnded(callID)
	if !ok {
		log.Warn().Str("module", "signal").Str("call", p.CallID).Msg("end for unknown call")
		return
	}

	other := call.Other(domain.Identity(p.From))
	ctl.relayTo(other, p.Type, data)

	grace := ctl.Cfg.EndCallGrace
	time.AfterFunc(grace, func() {
		ctl.Calls.Remove(callID)
	})
}

// handleDecline removes the call immediately, no grace window, and
// forwards the decline to the offering side.
func (ctl *SignalWSController) handleDecline(c *wsPeerConn, data []byte) {
	type declinePayload struct {
		Type   string `json:"type"`
		CallID string `json:"callId"`
		To     string `json:"to"`
	}
	var p declinePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad decline payload")
		return
	}

	if _, ok := ctl.Calls.MarkDeclined(domain.CallID(p.CallID)); !ok {
		log.Warn().Str("module", "signal").Str("call", p.CallID).Msg("decline for unknown call")
	}
	ctl.relayTo(domain.Identity(p.To), p.Type, data)
}
