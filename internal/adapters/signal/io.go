package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/televisit/signaling/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsPeerConn) {
	ping := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *wsPeerConn) {
	defer func() {
		// Calls are left alone on purpose: a participant may reconnect
		// and pick the negotiation back up via RECONNECT.
		if id := c.Identity(); id != "" {
			ctl.Presence.Unbind(id, c)
		}
		log.Info().Str("module", "signal").Str("identity", string(c.Identity())).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("identity", string(c.Identity())).Msg("readPump read error")
				return
			}
			ctl.handleMessage(c, data)
		}
	}
}

// handleMessage dispatches one inbound frame. A frame that fails to decode
// is logged and dropped; the connection stays open either way.
func (ctl *SignalWSController) handleMessage(c *wsPeerConn, data []byte) {
	var env struct {
		Type string `json:"type"`
		To   string `json:"to"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "LOGIN":
		ctl.handleLogin(c, data)
	case "OFFER":
		ctl.handleOffer(c, data)
	case "ANSWER":
		ctl.handleAnswer(c, data)
	case "ICE":
		ctl.handleCandidate(c, data)
	case "RECONNECT":
		ctl.handleReconnect(c, data)
	case "END_CALL":
		ctl.handleEndCall(c, data)
	case "DECLINE_CALL":
		ctl.handleDecline(c, data)
	default:
		if env.To != "" {
			ctl.relayTo(domain.Identity(env.To), env.Type, data)
			return
		}
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

// relayTo forwards raw frame bytes to the addressed identity if it is
// currently present. Best-effort, at-most-once: an absent target or a
// backpressured connection just drops the frame.
func (ctl *SignalWSController) relayTo(to domain.Identity, kind string, data []byte) bool {
	target, ok := ctl.Presence.Lookup(to)
	if !ok {
		log.Warn().Str("module", "signal").Str("to", string(to)).Str("type", kind).Msg("relay target not found")
		return false
	}
	if err := target.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("to", string(to)).Str("type", kind).Msg("relay send failed")
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(c *wsPeerConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *wsPeerConn, msg string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": msg,
	})
}
