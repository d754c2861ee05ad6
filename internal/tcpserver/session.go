package tcpserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardhouse/roomhub/internal/logger"
	"github.com/cardhouse/roomhub/internal/server"
	"github.com/cardhouse/roomhub/internal/wire"
)

// session is one TCP connection's transport adapter. It mirrors the
// WebSocket client: commands go to the hub, hub pushes come back through the
// delivery channel, and a heartbeat timer guards liveness.
type session struct {
	conn net.Conn
	hub  *server.Hub
	send chan []byte

	id   uuid.UUID
	room uuid.UUID

	heartbeat time.Duration
	timeout   time.Duration

	connID    string
	closeOnce sync.Once
}

func newSession(conn net.Conn, hub *server.Hub, cfg server.Config) *session {
	return &session{
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, 256),
		heartbeat: cfg.HeartbeatInterval,
		timeout:   cfg.ClientTimeout,
		connID:    conn.RemoteAddr().String(),
	}
}

func (s *session) serve() {
	defer s.shutdown()

	id, err := s.hub.Connect(s.send)
	if err != nil {
		logger.WarnF("[%s] Rejecting TCP client: %v", s.connID, err)
		return
	}
	s.id = id

	go s.writePump()
	s.readLoop()
}

// shutdown closes the connection and tells the hub to retire the session,
// exactly once no matter which pump fails first.
func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		s.hub.Disconnect(s.id)
		logger.DebugF("[%s] Connection closed", s.connID)
		if err := s.conn.Close(); err != nil && !isNetClosedError(err) {
			logger.WarnF("[%s] Error occurred while closing connection: %v", s.connID, err)
		}
	})
}

// readLoop decodes frames under a rolling read deadline that doubles as the
// heartbeat window. Any decode failure drops the connection.
func (s *session) readLoop() {
	reader := bufio.NewReader(s.conn)

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			logger.WarnF("[%s] Error setting read deadline: %v", s.connID, err)
			return
		}

		req, err := wire.ReadRequest(reader)
		if err != nil {
			s.handleReadError(err)
			return
		}

		switch r := req.(type) {
		case wire.ListRequest:
			s.handleList()
		case wire.JoinRequest:
			s.handleJoin(r.Room)
		case wire.MessageRequest:
			s.handleMessage(r.Text)
		case wire.PingRequest:
			// Liveness signal only; the deadline refresh above is the effect.
		}
	}
}

func (s *session) handleReadError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client closed connection", s.connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Heartbeat timeout", s.connID)
	case isWireError(err):
		logger.WarnF("[%s] Malformed frame, dropping connection: %v", s.connID, err)
	case isNetClosedError(err):
		// Writer already tore the connection down.
	default:
		logger.ErrorF("[%s] Error occurred while reading frame: %v", s.connID, err)
	}
}

// handleList is a request/response exchange: the read loop waits for the
// hub's reply before decoding the next frame, without blocking other
// sessions.
func (s *session) handleList() {
	rooms := s.hub.ListRooms()

	list := make([]wire.Room, 0, len(rooms))
	for _, info := range rooms {
		list = append(list, wire.Room{ID: info.ID, Name: info.Name, Num: info.Num})
	}

	frame, err := wire.EncodeResponse(wire.RoomsResponse{Rooms: list})
	if err != nil {
		logger.ErrorF("[%s] Failed to encode room list: %v", s.connID, err)
		return
	}
	s.enqueue(frame)
}

func (s *session) handleJoin(roomID uuid.UUID) {
	if _, err := s.hub.JoinRoom(s.id, roomID); err != nil {
		s.enqueueText(string(server.ErrorEnvelope(server.EventEnterRoom, err.Error())))
		return
	}

	s.room = roomID
	frame, err := wire.EncodeResponse(wire.JoinedResponse{Room: roomID})
	if err != nil {
		logger.ErrorF("[%s] Failed to encode join response: %v", s.connID, err)
		return
	}
	s.enqueue(frame)
}

func (s *session) handleMessage(text string) {
	if s.room == uuid.Nil {
		s.enqueueText(string(server.ErrorEnvelope(server.EventMessage, "join a room first")))
		return
	}
	s.hub.Relay(s.id, s.room, server.MessagePayload(text))
}

// enqueueText wraps text in a Message frame and queues it.
func (s *session) enqueueText(text string) {
	frame, err := wire.EncodeResponse(wire.MessageResponse{Text: text})
	if err != nil {
		logger.WarnF("[%s] Dropping unencodable payload: %v", s.connID, err)
		return
	}
	s.enqueue(frame)
}

// enqueue queues an already-encoded frame for the write pump. The channel is
// closed by the hub when the session is retired; a frame racing that close is
// dropped.
func (s *session) enqueue(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.DebugF("[%s] Dropped frame for retired session", s.connID)
		}
	}()

	select {
	case s.send <- frame:
	default:
		logger.DebugF("[%s] Send buffer full; dropping frame", s.connID)
	}
}

// writePump writes queued frames and sends Ping probes every heartbeat
// interval. Hub pushes arrive as envelope payloads and leave as Message
// frames; frames queued by the read loop are written verbatim.
func (s *session) writePump() {
	ticker := time.NewTicker(s.heartbeat)
	defer func() {
		ticker.Stop()
		s.shutdown()
	}()

	pingFrame, _ := wire.EncodeResponse(wire.PingResponse{})

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				// Hub retired the session or is shutting down.
				return
			}

			frame := payload
			if !isFrame(payload) {
				encoded, err := wire.EncodeResponse(wire.MessageResponse{Text: string(payload)})
				if err != nil {
					logger.WarnF("[%s] Dropping undeliverable payload: %v", s.connID, err)
					continue
				}
				frame = encoded
			}

			if !s.write(frame) {
				return
			}

		case <-ticker.C:
			if !s.write(pingFrame) {
				return
			}
		}
	}
}

// write sends one frame fully, compensating for short writes.
func (s *session) write(frame []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		logger.WarnF("[%s] Error setting write deadline: %v", s.connID, err)
		return false
	}

	total := 0
	for total < len(frame) {
		n, err := s.conn.Write(frame[total:])
		if err != nil {
			if !isNetClosedError(err) {
				logger.WarnF("[%s] Failed to send frame: %v", s.connID, err)
			}
			return false
		}
		total += n
	}
	return true
}

// isFrame reports whether payload is already a terminated wire frame, as
// opposed to a bare envelope pushed by the hub.
func isFrame(payload []byte) bool {
	return len(payload) > 0 && payload[len(payload)-1] == '\n'
}

func isWireError(err error) bool {
	return errors.Is(err, wire.ErrEmptyFrame) ||
		errors.Is(err, wire.ErrFrameTooLong) ||
		errors.Is(err, wire.ErrInvalidUTF8) ||
		errors.Is(err, wire.ErrUnknownVerb) ||
		errors.Is(err, wire.ErrBadRoomID) ||
		errors.Is(err, wire.ErrBadPayload)
}

func isNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}
