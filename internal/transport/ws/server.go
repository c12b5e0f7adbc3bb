package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/feed-service/internal/protocol"
)

type Config struct {
	PingInterval   time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	ReadLimit      int64
	CommandTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PingInterval:   15 * time.Second,
		WriteWait:      5 * time.Second,
		SendBuffer:     256,
		ReadLimit:      1 << 20,
		CommandTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	return c
}

type Server struct {
	upgrader websocket.Upgrader
	handler  *Handler
	cfg      Config
}

func NewServer(handler *Handler, cfg Config) *Server {
	return &Server{
		handler: handler,
		cfg:     cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS: GET /ws (вход командой join_room)
// или GET /ws/rooms/{room}?username=... (вход сразу при подключении).
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(chi.URLParam(r, "room"))
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if room != "" && username == "" {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(uuid.NewString(), conn, s.cfg.SendBuffer)
	go c.writeLoop(s.cfg.PingInterval, s.cfg.WriteWait)

	// команды дорабатывают и после обрыва соединения
	base := context.WithoutCancel(r.Context())

	if room != "" {
		joinCtx, cancel := context.WithTimeout(base, s.cfg.CommandTimeout)
		s.handler.Handle(joinCtx, c, joinEnvelope(room, username))
		cancel()
	}

	s.readLoop(base, c)

	s.handler.Disconnect(c)
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.ID(), "err", err)
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.ID(), "err", err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = c.Send(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "malformed command"}})
			continue
		}

		cmdCtx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
		s.handler.Handle(cmdCtx, c, env)
		cancel()
	}
}

func joinEnvelope(room, username string) protocol.Envelope {
	raw, _ := json.Marshal(protocol.RoomPayload{Room: room, Username: username})
	return protocol.Envelope{Type: protocol.CmdJoinRoom, Payload: raw}
}
