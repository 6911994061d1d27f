package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/televisit/signaling/internal/domain"
)

// handleLogin binds the claimed identity to this connection. The identity
// is taken on trust; the registry replaces any prior binding for it, so
// the newest connection wins and an older one is left orphaned.
func (ctl *SignalWSController) handleLogin(c *wsPeerConn, data []byte) {
	type loginPayload struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	var p loginPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad login payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	id := domain.Identity(p.UserID)
	if err := domain.ValidateIdentity(id); err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	if !ctl.logins.Allow(id) {
		log.Warn().Str("module", "signal").Str("identity", string(id)).Msg("login rate limited")
		ctl.sendError(c, "too_many_logins")
		return
	}

	c.setIdentity(id, domain.Role(p.Role))
	ctl.Presence.Bind(id, c)
	log.Info().Str("module", "signal").Str("identity", string(id)).Str("role", p.Role).Msg("login")

	ctl.sendJSON(c, struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}{
		Type:   "LOGIN_OK",
		UserID: p.UserID,
	})
}
