// Package server coordinates session registration, room membership, and
// message relay for the roomhub service via the Hub type.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cardhouse/roomhub/internal/logger"
)

// ErrHubClosed is returned by hub requests issued after shutdown began.
var ErrHubClosed = errors.New("hub is shut down")

type connectRequest struct {
	send  chan<- []byte
	reply chan uuid.UUID
}

type disconnectRequest struct {
	id uuid.UUID
}

type createRequest struct {
	id    uuid.UUID
	name  string
	reply chan createResult
}

type createResult struct {
	info RoomInfo
	err  error
}

type joinRequest struct {
	id     uuid.UUID
	roomID uuid.UUID
	reply  chan joinResult
}

type joinResult struct {
	info RoomInfo
	err  error
}

type listRequest struct {
	reply chan []RoomInfo
}

type relayRequest struct {
	id      uuid.UUID
	roomID  uuid.UUID
	payload []byte
}

// Hub is the single authority over sessions and rooms. All mutations happen
// on the goroutine running Run, which drains the typed request channels one
// request at a time; transport adapters interact only through the exported
// methods and their delivery channels.
type Hub struct {
	sessions *registry
	rooms    *roomTable
	history  *roomHistory

	connect    chan connectRequest
	disconnect chan disconnectRequest
	create     chan createRequest
	join       chan joinRequest
	list       chan listRequest
	relay      chan relayRequest

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub ready to run. Each test or process creates its own;
// there is no ambient instance.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   newRegistry(),
		rooms:      newRoomTable(),
		history:    newRoomHistory(currentConfig().History),
		connect:    make(chan connectRequest),
		disconnect: make(chan disconnectRequest, 64),
		create:     make(chan createRequest),
		join:       make(chan joinRequest),
		list:       make(chan listRequest),
		relay:      make(chan relayRequest, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run executes the hub's event loop until Shutdown. It must run in its own
// goroutine and is the only code allowed to touch the registry and room table.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.sessions.close()
			logger.Info("Hub stopped")
			return

		case req := <-h.connect:
			req.reply <- h.handleConnect(req)

		case req := <-h.disconnect:
			h.handleDisconnect(req.id)

		case req := <-h.create:
			req.reply <- h.handleCreate(req)

		case req := <-h.join:
			req.reply <- h.handleJoin(req)

		case req := <-h.list:
			req.reply <- h.rooms.list()

		case req := <-h.relay:
			h.handleRelay(req)
		}
	}
}

func (h *Hub) handleConnect(req connectRequest) uuid.UUID {
	id := h.sessions.register(req.send)
	logger.InfoF("Session %s connected. Total sessions: %d", id, h.sessions.len())
	return id
}

// handleDisconnect retires a session: registry removal, eviction from every
// room, destruction of rooms it emptied, and a room-list push to the sessions
// that remain. A second disconnect for the same id is a no-op.
func (h *Hub) handleDisconnect(id uuid.UUID) {
	if !h.sessions.unregister(id) {
		return
	}

	emptied := h.rooms.leaveAll(id)
	for _, roomID := range emptied {
		h.history.forget(roomID)
		logger.InfoF("Room %s destroyed: last member left", roomID)
	}

	logger.InfoF("Session %s disconnected. Total sessions: %d", id, h.sessions.len())
	h.sessions.deliverAll(MarshalEnvelope(RoomInfoList{Rooms: h.rooms.list()}, EventGetRoomList, StatusOK))
}

func (h *Hub) handleCreate(req createRequest) createResult {
	info, err := h.rooms.create(req.id, req.name)
	if err != nil {
		return createResult{err: err}
	}
	logger.InfoF("Room %q created with id %s", req.name, info.ID)
	return createResult{info: info}
}

// handleJoin notifies existing members before inserting the newcomer, then
// replays recent room traffic to it. A repeat join of a room the session is
// already in returns the snapshot without re-announcing or replaying.
func (h *Hub) handleJoin(req joinRequest) joinResult {
	if !h.rooms.contains(req.roomID) {
		return joinResult{err: ErrRoomNotFound}
	}

	rejoin := h.rooms.isMember(req.roomID, req.id)

	if !rejoin {
		notice := MessagePayload("someone joined the room")
		for _, member := range h.rooms.broadcastTarget(req.roomID, req.id) {
			h.sessions.deliver(member, notice)
		}
	}

	info, err := h.rooms.join(req.roomID, req.id)
	if err != nil {
		return joinResult{err: err}
	}

	if !rejoin {
		for _, payload := range h.history.recent(req.roomID) {
			h.sessions.deliver(req.id, payload)
		}
	}

	return joinResult{info: info}
}

// handleRelay delivers a payload to every current room member except the
// sender. A room that no longer exists makes the relay a silent no-op.
func (h *Hub) handleRelay(req relayRequest) {
	if !h.rooms.contains(req.roomID) {
		return
	}

	h.history.append(req.roomID, req.payload)
	for _, member := range h.rooms.broadcastTarget(req.roomID, req.id) {
		h.sessions.deliver(member, req.payload)
	}
}

// Connect registers a delivery channel and returns the new session id. The
// hub closes the channel when the session is unregistered or the hub shuts
// down, which the adapter's write pump treats as its stop signal.
func (h *Hub) Connect(send chan<- []byte) (uuid.UUID, error) {
	req := connectRequest{send: send, reply: make(chan uuid.UUID, 1)}

	select {
	case h.connect <- req:
	case <-h.ctx.Done():
		return uuid.Nil, ErrHubClosed
	}

	select {
	case id := <-req.reply:
		return id, nil
	case <-h.done:
		return uuid.Nil, ErrHubClosed
	}
}

// Disconnect retires the session, fire and forget. Safe to call twice.
func (h *Hub) Disconnect(id uuid.UUID) {
	select {
	case h.disconnect <- disconnectRequest{id: id}:
	case <-h.ctx.Done():
	}
}

// CreateRoom creates a room named name, owned by the session. Returns
// ErrRoomExists if the name or owner id is taken.
func (h *Hub) CreateRoom(id uuid.UUID, name string) (RoomInfo, error) {
	req := createRequest{id: id, name: name, reply: make(chan createResult, 1)}

	select {
	case h.create <- req:
	case <-h.ctx.Done():
		return RoomInfo{}, ErrHubClosed
	}

	select {
	case res := <-req.reply:
		return res.info, res.err
	case <-h.done:
		return RoomInfo{}, ErrHubClosed
	}
}

// JoinRoom adds the session to the room and returns the membership snapshot.
// Returns ErrRoomNotFound for an absent room id.
func (h *Hub) JoinRoom(id, roomID uuid.UUID) (RoomInfo, error) {
	req := joinRequest{id: id, roomID: roomID, reply: make(chan joinResult, 1)}

	select {
	case h.join <- req:
	case <-h.ctx.Done():
		return RoomInfo{}, ErrHubClosed
	}

	select {
	case res := <-req.reply:
		return res.info, res.err
	case <-h.done:
		return RoomInfo{}, ErrHubClosed
	}
}

// ListRooms returns a snapshot of all rooms.
func (h *Hub) ListRooms() []RoomInfo {
	req := listRequest{reply: make(chan []RoomInfo, 1)}

	select {
	case h.list <- req:
	case <-h.ctx.Done():
		return nil
	}

	select {
	case rooms := <-req.reply:
		return rooms
	case <-h.done:
		return nil
	}
}

// Relay delivers an already-enveloped payload to the room's members, skipping
// the sender. Fire and forget; this is also the entry point for external
// collaborators pushing state-change notifications into a room (pass uuid.Nil
// as the sender to reach every member).
func (h *Hub) Relay(id, roomID uuid.UUID, payload []byte) {
	select {
	case h.relay <- relayRequest{id: id, roomID: roomID, payload: payload}:
	case <-h.ctx.Done():
	}
}

// Shutdown stops the event loop and closes every session's delivery channel.
// It returns once the loop has exited or the timeout elapsed.
func (h *Hub) Shutdown(timeout time.Duration) error {
	logger.Info("Initiating hub shutdown...")
	h.cancel()

	select {
	case <-h.done:
		logger.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		logger.Warn("Hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
