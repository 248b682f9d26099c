package websocket

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"courseboard/internal/notification"
	"courseboard/pkg/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The admin dashboard is served from a different origin in
		// development. Production deployments should restrict this.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Notifier is the delivery surface the inbound protocol needs. Implemented
// by dispatch.Dispatcher.
type Notifier interface {
	DeliverToUser(n *notification.Notification)
	BroadcastRaw(data []byte)
}

// Options configures the upgrade handler.
type Options struct {
	// Path is the application's notification channel, usually /api/ws.
	Path string
	// DevProxyPath, when set, names the upgrade path of the frontend
	// framework's own reload channel; requests for it are forwarded
	// opaquely to DevProxyTarget.
	DevProxyPath   string
	DevProxyTarget *url.URL

	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (o *Options) applyDefaults() {
	if o.Path == "" {
		o.Path = "/api/ws"
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 100
	}
}

// Handler sits in front of the listener's upgrade traffic. It dispatches
// by exact path: the application channel is accepted and bound into the
// registry once the client identifies, the framework dev channel is
// forwarded untouched, everything else is rejected.
type Handler struct {
	registry *Registry
	notifier Notifier
	opts     Options
	devProxy http.Handler
	log      zerolog.Logger
}

// NewHandler creates the upgrade handler.
func NewHandler(registry *Registry, notifier Notifier, opts Options, log zerolog.Logger) *Handler {
	opts.applyDefaults()

	h := &Handler{
		registry: registry,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
	if opts.DevProxyPath != "" && opts.DevProxyTarget != nil {
		h.devProxy = httputil.NewSingleHostReverseProxy(opts.DevProxyTarget)
	}
	return h
}

// ServeHTTP routes an incoming upgrade request by exact path match.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.opts.Path:
		h.handleSocket(w, r)
	case h.opts.DevProxyPath:
		if h.devProxy == nil {
			http.Error(w, "dev channel not configured", http.StatusBadGateway)
			return
		}
		h.devProxy.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleSocket upgrades the request and runs the connection lifecycle. The
// new connection stays unbound (absent from the registry) until the client
// sends an identify frame.
func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(wsConn, h.opts.SendBuffer, h.opts.WriteTimeout)
	go h.handleConnection(conn)
}

// handleConnection owns the read side of one connection. On any transport
// close, whether client disconnect or network failure, the connection is
// removed from the registry and destroyed.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Deregister(conn)
		_ = conn.Close()
		if userID, ok := conn.User(); ok {
			h.log.Debug().Int64("user_id", userID).Msg("connection closed")
		}
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		if messageType == websocket.TextMessage {
			h.dispatchFrame(conn, data)
		}
	}
}

// dispatchFrame applies the inbound protocol to one text frame. Malformed
// frames are logged and dropped; the connection stays open either way, and
// no protocol-level error reply is ever sent.
func (h *Handler) dispatchFrame(conn *Connection, data []byte) {
	env, err := events.DecodeEnvelope(data)
	if err != nil {
		h.log.Warn().Err(err).Msg("unparseable frame dropped")
		return
	}

	switch env.Event {
	case events.EventIdentify:
		userID, err := events.ParseIdentify(data)
		if err != nil {
			h.log.Warn().Err(err).Msg("invalid identify frame")
			return
		}
		// Last identify wins: drop any prior binding before registering
		// so a re-identified connection never lingers under a stale user.
		h.registry.Deregister(conn)
		conn.Bind(userID)
		h.registry.Register(userID, conn)
		h.log.Debug().Int64("user_id", userID).Msg("connection identified")

	case events.EventPing:
		if err := conn.SendRaw(events.MarshalPong()); err != nil {
			h.log.Debug().Err(err).Msg("pong not sent")
		}

	case events.EventCourseMaterialCreated:
		msg, err := events.ParseCourseMaterialCreated(data)
		if err != nil {
			h.log.Warn().Err(err).Msg("invalid course_material_created frame")
			return
		}
		for _, userID := range msg.UserIDs {
			h.notifier.DeliverToUser(notification.NewCourseMaterial(userID, msg.CourseID, msg.MaterialID))
		}

	default:
		// Catch-all: unrecognized events are relayed verbatim to every
		// open connection, sender included.
		h.notifier.BroadcastRaw(data)
	}
}
