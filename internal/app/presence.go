package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/televisit/signaling/internal/domain"
)

// Conn is the outbound half of one client connection. The transport owns
// the connection; the presence registry only holds a reference for routing.
type Conn interface {
	TrySend(data []byte) error
}

// Presence maps a logged-in identity to its live connection.
// At most one entry per identity: a later login for the same identity
// replaces the earlier one.
type Presence struct {
	mu    sync.RWMutex
	conns map[domain.Identity]Conn
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[domain.Identity]Conn)}
}

func (p *Presence) Bind(id domain.Identity, conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[id] = conn
	log.Info().Str("module", "app.presence").Str("identity", string(id)).Msg("bound connection")
}

func (p *Presence) Lookup(id domain.Identity) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.conns[id]
	return conn, ok
}

// Unbind removes the entry for id only if it still points at conn.
// A close event from a replaced connection may fire after the identity
// has already re-logged in on a new one; that entry must survive.
func (p *Presence) Unbind(id domain.Identity, conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.conns[id]; ok && cur == conn {
		delete(p.conns, id)
		log.Info().Str("module", "app.presence").Str("identity", string(id)).Msg("unbound connection")
	}
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}
