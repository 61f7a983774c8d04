package hooks

import (
	"sort"

	"github.com/taskflow-hub/realtime/internal/model"
)

// PresenceMap tracks the last known presence of every user seen on the hub.
// Updates are last writer wins; a disconnect keeps the record as offline.
type PresenceMap struct {
	base
	users map[string]model.PresenceInfo
}

// NewPresenceMap starts tracking presence.
func NewPresenceMap(sub Subscriber, opts ...Option) *PresenceMap {
	h := &PresenceMap{users: make(map[string]model.PresenceInfo)}
	h.init(opts)
	h.listen(sub, h.upsert, model.EventUserPresenceUpdated, model.EventUserConnected)
	h.listen(sub, h.disconnect, model.EventUserDisconnected)
	return h
}

func presenceFrom(evt model.RealtimeEvent) (model.PresenceInfo, bool) {
	var p model.PresenceInfo
	if len(evt.Data) > 0 {
		if err := evt.Decode(&p); err != nil {
			return p, false
		}
	}
	if p.UserID == "" {
		p.UserID = evt.UserID
	}
	if p.UserName == "" {
		p.UserName = evt.UserName
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = evt.Timestamp
	}
	return p, p.UserID != ""
}

func (h *PresenceMap) upsert(evt model.RealtimeEvent) {
	p, ok := presenceFrom(evt)
	if !ok {
		return
	}
	if p.Status == "" {
		p.Status = model.PresenceOnline
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.users[p.UserID] = p
	h.mu.Unlock()
	h.changed()
}

func (h *PresenceMap) disconnect(evt model.RealtimeEvent) {
	p, ok := presenceFrom(evt)
	if !ok {
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if prev, found := h.users[p.UserID]; found {
		prev.Status = model.PresenceOffline
		prev.LastSeen = p.LastSeen
		p = prev
	} else {
		p.Status = model.PresenceOffline
	}
	h.users[p.UserID] = p
	h.mu.Unlock()
	h.changed()
}

// User returns the presence of one user.
func (h *PresenceMap) User(userID string) (model.PresenceInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.users[userID]
	return p, ok
}

// Users returns every known user ordered by user id.
func (h *PresenceMap) Users() []model.PresenceInfo {
	return h.filter(func(model.PresenceInfo) bool { return true })
}

// OnlineUsers returns every user not offline, ordered by user id. Away and
// busy users count as online.
func (h *PresenceMap) OnlineUsers() []model.PresenceInfo {
	return h.filter(func(p model.PresenceInfo) bool { return p.Status != model.PresenceOffline })
}

func (h *PresenceMap) filter(keep func(model.PresenceInfo) bool) []model.PresenceInfo {
	h.mu.RLock()
	out := make([]model.PresenceInfo, 0, len(h.users))
	for _, p := range h.users {
		if keep(p) {
			out = append(out, p)
		}
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Close stops tracking presence.
func (h *PresenceMap) Close() {
	h.detach()
}
