// Package server keeps a bounded, expiring cache of recent room traffic so a
// joining session sees what was said just before it arrived.
package server

import (
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// roomHistory caches the last perRoom payloads of each active room. Entries
// expire after the configured TTL and the LRU bounds total memory; history is
// purely in-memory and dies with the process.
type roomHistory struct {
	cache   *expirable.LRU[uuid.UUID, [][]byte]
	perRoom int
}

func newRoomHistory(cfg HistoryConfig) *roomHistory {
	return &roomHistory{
		cache:   expirable.NewLRU[uuid.UUID, [][]byte](cfg.Size, nil, cfg.TTL),
		perRoom: cfg.PerRoom,
	}
}

// append records a relayed payload for the room, trimming to the per-room cap.
func (h *roomHistory) append(roomID uuid.UUID, payload []byte) {
	recent, _ := h.cache.Get(roomID)
	recent = append(recent, payload)
	if len(recent) > h.perRoom {
		recent = recent[len(recent)-h.perRoom:]
	}
	h.cache.Add(roomID, recent)
}

// recent returns the cached payloads for the room, oldest first.
func (h *roomHistory) recent(roomID uuid.UUID) [][]byte {
	recent, _ := h.cache.Get(roomID)
	return recent
}

// forget drops the room's history, called when the room is destroyed.
func (h *roomHistory) forget(roomID uuid.UUID) {
	h.cache.Remove(roomID)
}
