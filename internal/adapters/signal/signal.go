package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/televisit/signaling/internal/app"
	"github.com/televisit/signaling/internal/config"
	"github.com/televisit/signaling/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController routes signaling messages between logged-in peers.
// All shared state lives in the injected presence registry and call store;
// the controller itself is stateless apart from the login limiter.
type SignalWSController struct {
	Presence *app.Presence
	Calls    *app.CallStore
	Cfg      *config.Config

	logins *LoginRateLimiter
}

func NewSignalWSController(cfg *config.Config, presence *app.Presence, calls *app.CallStore) *SignalWSController {
	return &SignalWSController{
		Presence: presence,
		Calls:    calls,
		Cfg:      cfg,
		logins:   NewLoginRateLimiter(10, time.Minute),
	}
}

// wsPeerConn is one client connection. identity and role are set at LOGIN
// and read on close; the send channel decouples handlers from the socket.
type wsPeerConn struct {
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	closed   bool
	identity domain.Identity
	role     domain.Role
}

func newPeerConn(ws *websocket.Conn) *wsPeerConn {
	return &wsPeerConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
}

func (c *wsPeerConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsPeerConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *wsPeerConn) setIdentity(id domain.Identity, role domain.Role) {
	c.mu.Lock()
	c.identity = id
	c.role = role
	c.mu.Unlock()
}

func (c *wsPeerConn) Identity() domain.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := newPeerConn(ws)
	log.Info().Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
	}()
}
