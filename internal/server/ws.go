package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpalmerr/peerwatch/internal/store"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 16
	wsMaxMessage   = 1 << 20
)

// Inbound message types.
const (
	msgPanel      = "panel"
	msgVisibility = "visibility"
	msgRows       = "rows"
)

// inboundMessage is a command sent by the browser view.
type inboundMessage struct {
	Type    string       `json:"type"`
	Key     string       `json:"key,omitempty"`
	Hidden  bool         `json:"hidden,omitempty"`
	Devices []deviceJSON `json:"devices,omitempty"`
}

// errorMessage reports a rejected inbound message.
type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWebSocket runs a browser view over a WebSocket.
//
// The view receives the current rows, then every store event. It can
// activate panels, report visibility and re-render rows. When the last
// open view closes the page is marked hidden, which pauses polling until a
// view reports it visible again.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.viewOpened()
	s.logger.Debug("websocket view connected", "remote", r.RemoteAddr)

	events := s.store.Subscribe()
	send := make(chan []byte, wsSendBuffer)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.wsWriteLoop(conn, events, send, done, r)
	}()

	s.wsReadLoop(conn, send, done)

	close(done)
	s.store.Unsubscribe(events)
	wg.Wait()
	_ = conn.Close()

	s.viewClosed()
	s.logger.Debug("websocket view closed", "remote", r.RemoteAddr)
}

func (s *Server) viewOpened() {
	s.viewsMu.Lock()
	s.views++
	s.viewsMu.Unlock()
}

// viewClosed marks the page hidden once no view is left. The count and the
// hide happen under one lock so a view connecting concurrently is never
// hidden by an older view's close.
func (s *Server) viewClosed() {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()

	s.views--
	if s.views == 0 {
		s.host.SetHidden(true)
	}
}

// openViews returns the number of connected WebSocket views.
func (s *Server) openViews() int {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	return s.views
}

// wsReadLoop handles inbound commands until the connection fails.
func (s *Server) wsReadLoop(conn *websocket.Conn, send chan<- []byte, done <-chan struct{}) {
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		if errMsg := s.handleMessage(data); errMsg != "" {
			reply, _ := json.Marshal(errorMessage{Type: "error", Error: errMsg})
			select {
			case send <- reply:
			case <-done:
				return
			default:
				// view is not reading; drop the reply
			}
		}
	}
}

// handleMessage applies one inbound command and returns an error text for
// the view, or "" on success.
func (s *Server) handleMessage(data []byte) string {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "invalid message"
	}

	switch msg.Type {
	case msgPanel:
		if err := s.host.Navigate(msg.Key); err != nil {
			return err.Error()
		}
	case msgVisibility:
		s.host.SetHidden(msg.Hidden)
	case msgRows:
		s.store.SetRows(toRows(msg.Devices))
	default:
		return "unknown message type: " + msg.Type
	}
	return ""
}

// wsWriteLoop is the only writer on conn: current rows, store events,
// replies and pings.
func (s *Server) wsWriteLoop(conn *websocket.Conn, events <-chan store.Event, send <-chan []byte, done <-chan struct{}, r *http.Request) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	write := func(data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	writeEvent := func(ev store.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil
		}
		return write(data)
	}

	if err := writeEvent(store.Event{Type: store.EventReset, Rows: s.store.Rows()}); err != nil {
		_ = conn.Close()
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ev); err != nil {
				_ = conn.Close()
				return
			}

		case data := <-send:
			if err := write(data); err != nil {
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}

		case <-r.Context().Done():
			// server shutdown; closing unblocks the read loop
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			_ = conn.Close()
			return

		case <-done:
			return
		}
	}
}
