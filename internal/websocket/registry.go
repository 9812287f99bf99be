package websocket

import (
	"encoding/json"
	"sync"

	"github.com/sweeply/gateway/internal/domain"
)

// Registry maintains the ephemeral mapping from room key to the set of
// locally subscribed clients. It is rebuilt from nothing on restart;
// clients resubscribe after reconnect. The map is the only shared
// mutable structure in the fan-out path, and no lock is ever held
// across a send or a storage call.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]map[*Client]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomKey]map[*Client]struct{}),
	}
}

// Subscribe adds the client to the room's subscriber set. Idempotent:
// subscribing twice is a no-op. first reports whether the room had no
// local subscribers before this call, so the caller can establish the
// broker-side subscription.
func (r *Registry) Subscribe(key domain.RoomKey, c *Client) (added, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[key]
	if !ok {
		set = make(map[*Client]struct{})
		r.rooms[key] = set
		first = true
	}
	if _, exists := set[c]; exists {
		return false, false
	}
	set[c] = struct{}{}
	return true, first
}

// Unsubscribe removes the client from the room's subscriber set; no-op
// if absent. last reports whether the room has no local subscribers left.
func (r *Registry) Unsubscribe(key domain.RoomKey, c *Client) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[key]
	if !ok {
		return false, false
	}
	if _, exists := set[c]; !exists {
		return false, false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.rooms, key)
		return true, true
	}
	return true, false
}

// Drop removes the client from every room it is subscribed to and
// returns the keys of rooms left with no local subscribers.
func (r *Registry) Drop(c *Client) []domain.RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	var emptied []domain.RoomKey
	for key, set := range r.rooms {
		if _, exists := set[c]; !exists {
			continue
		}
		delete(set, c)
		if len(set) == 0 {
			delete(r.rooms, key)
			emptied = append(emptied, key)
		}
	}
	return emptied
}

// Count returns the number of local subscribers for a room.
func (r *Registry) Count(key domain.RoomKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}

// Broadcast sends the envelope to every subscriber of the room. Individual
// send failures (closed or saturated connections) never abort delivery to
// the remaining subscribers.
func (r *Registry) Broadcast(key domain.RoomKey, env *Envelope) {
	r.broadcast(key, env, nil)
}

// BroadcastExcept is Broadcast without echoing to the originator.
func (r *Registry) BroadcastExcept(key domain.RoomKey, env *Envelope, except *Client) {
	r.broadcast(key, env, except)
}

func (r *Registry) broadcast(key domain.RoomKey, env *Envelope, except *Client) {
	r.mu.RLock()
	set, ok := r.rooms[key]
	if !ok {
		r.mu.RUnlock()
		return
	}

	// Copy subscribers to avoid holding the lock during sends
	clients := make([]*Client, 0, len(set))
	for c := range set {
		if c != except {
			clients = append(clients, c)
		}
	}
	r.mu.RUnlock()

	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	for _, c := range clients {
		c.enqueue(data)
	}
}
