package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/bus"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/dispatch"
)

// client is one websocket connection. All writes go through send and are
// performed by writePump, so frames from concurrent workers never interleave.
type client struct {
	srv  *Server
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	written   chan struct{}
}

func newClient(s *Server, conn *websocket.Conn) *client {
	return &client{
		srv:     s,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// push queues v. With wait set it blocks until there is room or the client
// is gone; otherwise a full queue drops the frame.
func (c *client) push(v any, wait bool) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.srv.log.Warn("marshal frame: %v", err)
		return false
	}
	if wait {
		select {
		case c.send <- data:
			return true
		case <-c.done:
			return false
		}
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.written)
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readLoop delivers text frames to handle until the connection fails.
func (c *client) readLoop(handle func([]byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				c.srv.log.Debug("websocket read: %v", err)
			}
			return
		}
		if handle != nil {
			handle(data)
		}
	}
}

// serve runs the connection until either side goes away.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, setup func(*client) func(), handle func(*client, []byte)) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade: %v", err)
		return
	}
	c := newClient(s, conn)
	if !s.register(c) {
		_ = conn.Close()
		return
	}
	defer s.unregister(c)

	go c.writePump()
	if setup != nil {
		if teardown := setup(c); teardown != nil {
			defer teardown()
		}
	}

	var onData func([]byte)
	if handle != nil {
		onData = func(data []byte) { handle(c, data) }
	}
	c.readLoop(onData)
	c.close()
	<-c.written
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, nil, s.handleFrame)
}

func (s *Server) handleFrame(c *client, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.push(Outbound{Type: FrameError, Message: "invalid frame: " + err.Error()}, true)
		return
	}

	switch in.Type {
	case FrameUtterance:
		text := strings.TrimSpace(in.Text)
		if text == "" {
			c.push(Outbound{Type: FrameError, ID: in.ID, Message: "empty utterance"}, true)
			return
		}
		if _, err := s.cfg.Dispatcher.Dispatch(text, in.SessionID, c.sink(in.ID)); err != nil {
			c.push(Outbound{Type: FrameError, ID: in.ID, Message: err.Error()}, true)
		}

	case FrameAnalyze:
		if in.Path == "" {
			c.push(Outbound{Type: FrameError, ID: in.ID, Message: "missing path"}, true)
			return
		}
		path, err := s.documentPath(in.Path)
		if err != nil {
			c.push(Outbound{Type: FrameError, ID: in.ID, Message: err.Error()}, true)
			return
		}
		if _, err := s.cfg.Dispatcher.AnalyzeFile(path, c.sink(in.ID)); err != nil {
			c.push(Outbound{Type: FrameError, ID: in.ID, Message: err.Error()}, true)
		}

	case FrameStop:
		if s.cfg.Speech != nil {
			s.cfg.Speech.Stop()
		}

	case FrameSpeech:
		if in.Enabled == nil || s.cfg.Settings == nil {
			c.push(Outbound{Type: FrameError, ID: in.ID, Message: "speech frame needs enabled"}, true)
			return
		}
		s.cfg.Settings.SetSpeechEnabled(*in.Enabled)
		s.log.Info("speech %s by websocket client", onOff(*in.Enabled))
		enabled := *in.Enabled
		c.push(Outbound{Type: FrameSpeech, ID: in.ID, Enabled: &enabled}, true)

	default:
		c.push(Outbound{Type: FrameError, ID: in.ID, Message: "unknown frame type " + strconv.Quote(in.Type)}, true)
	}
}

func (c *client) sink(id string) dispatch.Sink {
	return dispatch.Sink{
		OnActivity: func(active bool) {
			c.push(Outbound{Type: FrameActivity, ID: id, Active: &active}, true)
		},
		OnResult: func(text string) {
			c.push(Outbound{Type: FrameResult, ID: id, Text: text}, true)
		},
		OnError: func(message string) {
			c.push(Outbound{Type: FrameError, ID: id, Message: message}, true)
		},
		OnProgress: func(percent int) {
			c.push(Outbound{Type: FrameProgress, ID: id, Percent: percent}, true)
		},
	}
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// handleEvents streams bus events. ?replay=N first sends the last N events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bus == nil {
		http.Error(w, "event bus not configured", http.StatusServiceUnavailable)
		return
	}
	replay := 0
	if v := r.URL.Query().Get("replay"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "replay must be a non-negative integer", http.StatusBadRequest)
			return
		}
		replay = n
	}

	s.serve(w, r, func(c *client) func() {
		if replay > 0 {
			for _, ev := range s.cfg.Bus.History(replay) {
				c.push(ev, true)
			}
		}
		id := s.cfg.Bus.Subscribe("", func(ev bus.Event) {
			if !c.push(ev, false) {
				s.log.Debug("event %s not delivered to slow client", ev.Type)
			}
		})
		return func() { _ = s.cfg.Bus.Unsubscribe(id) }
	}, nil)
}
