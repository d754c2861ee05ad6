// Package server tracks connected sessions and their delivery channels. The
// registry is owned by the hub goroutine; nothing else reads or writes it.
package server

import (
	"github.com/google/uuid"

	"github.com/cardhouse/roomhub/internal/logger"
)

// session is one connected client as seen by the hub: a delivery channel the
// hub pushes envelopes into, drained by the owning transport adapter.
type session struct {
	send chan<- []byte
}

type registry struct {
	sessions map[uuid.UUID]*session
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[uuid.UUID]*session),
	}
}

// register mints a fresh random session id and stores the delivery channel.
func (r *registry) register(send chan<- []byte) uuid.UUID {
	id := uuid.New()
	r.sessions[id] = &session{send: send}
	return id
}

// unregister removes the session and closes its delivery channel, which tells
// the adapter's write pump to shut down. Idempotent: the second call for the
// same id returns false and does nothing.
func (r *registry) unregister(id uuid.UUID) bool {
	sess, ok := r.sessions[id]
	if !ok {
		return false
	}
	delete(r.sessions, id)
	close(sess.send)
	return true
}

// deliver pushes a payload to one session, best effort. A full delivery
// channel means the client is not draining; the payload is dropped and the
// eventual disconnect reconciles state.
func (r *registry) deliver(id uuid.UUID, payload []byte) bool {
	sess, ok := r.sessions[id]
	if !ok {
		return false
	}

	select {
	case sess.send <- payload:
		return true
	default:
		logger.DebugF("Dropping payload for session %s: send buffer full", id)
		return false
	}
}

// deliverAll pushes a payload to every registered session.
func (r *registry) deliverAll(payload []byte) {
	for id := range r.sessions {
		r.deliver(id, payload)
	}
}

func (r *registry) len() int {
	return len(r.sessions)
}

// close unregisters every session, closing all delivery channels.
func (r *registry) close() {
	for id := range r.sessions {
		r.unregister(id)
	}
}
