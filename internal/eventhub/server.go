package eventhub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/consultd/consultd/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// request is an inbound request/response operation envelope.
type request struct {
	ID string          `json:"id"`
	Op string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// response acknowledges a single request by id.
type response struct {
	ID    string      `json:"id"`
	Ok    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// OpHandler executes one named request/response operation and returns
// the payload to acknowledge with, or an error.
type OpHandler func(data json.RawMessage) (interface{}, error)

// Server is the HTTP handler that upgrades authenticated connections to
// websockets and pumps events/requests across them.
type Server struct {
	hub   *Hub
	token string
	ops   map[string]OpHandler
	log   *logrus.Entry
}

// NewServer builds a Server sharing hub's client table, authenticating
// every upgrade against token.
func NewServer(hub *Hub, token string, log *logrus.Entry) *Server {
	return &Server{hub: hub, token: token, ops: make(map[string]OpHandler), log: log}
}

// RegisterOp adds a named request/response operation (e.g. "consult",
// "config.get") reachable over the hub connection.
func (s *Server) RegisterOp(name string, handler OpHandler) {
	s.ops[name] = handler
}

// ServeHTTP authenticates via the shared daemon token (header or query
// param, matching the REST boundary's auth) then upgrades to a websocket.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Daemon-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" || token != s.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	kind := model.ClientUnknown
	switch r.URL.Query().Get("kind") {
	case "proxy":
		kind = model.ClientProxy
	case "webui":
		kind = model.ClientWebUI
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	send := make(chan []byte, sendBufferSize)
	client := s.hub.Join(kind, send)
	s.log.WithField("client", client.ID).WithField("kind", kind).Info("client connected")

	done := make(chan struct{})
	go s.writePump(conn, send, done)
	s.readPump(conn, client, done)
}

func (s *Server) readPump(conn *websocket.Conn, client *Client, done chan struct{}) {
	defer func() {
		close(done)
		conn.Close()
		s.hub.Leave(client.ID)
		s.log.WithField("client", client.ID).Info("client disconnected")
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if string(raw) == "ping" {
			select {
			case client.send <- []byte("pong"):
			default:
			}
			continue
		}

		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		s.handleRequest(client, req)
	}
}

func (s *Server) handleRequest(client *Client, req request) {
	handler, ok := s.ops[req.Op]
	if !ok {
		s.ack(client, response{ID: req.ID, Ok: false, Error: "unknown op " + req.Op})
		return
	}
	data, err := handler(req.Data)
	if err != nil {
		s.ack(client, response{ID: req.ID, Ok: false, Error: err.Error()})
		return
	}
	s.ack(client, response{ID: req.ID, Ok: true, Data: data})
}

func (s *Server) ack(client *Client, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.WithError(err).Error("marshal response")
		return
	}
	select {
	case client.send <- data:
	default:
		s.log.WithField("client", client.ID).Warn("response dropped, send buffer full")
	}
}

func (s *Server) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
