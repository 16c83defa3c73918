/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

// Registry is the set of connected clients. Like History it relies on the
// Relay's lock.
type Registry struct {
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
	}
}

// Register adds c. It reports false if c was already present.
func (r *Registry) Register(c *Client) bool {
	if _, ok := r.clients[c]; ok {
		return false
	}
	r.clients[c] = struct{}{}

	return true
}

// Unregister removes c. It reports false if c was not present.
func (r *Registry) Unregister(c *Client) bool {
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)

	return true
}

func (r *Registry) Contains(c *Client) bool {
	_, ok := r.clients[c]

	return ok
}

// ForEach calls visit for every client. Clients for which visit returns
// false are removed once the walk completes, so the visitor never sees a
// registry that changes underneath it.
func (r *Registry) ForEach(visit func(c *Client) bool) []*Client {
	var dead []*Client

	for c := range r.clients {
		if !visit(c) {
			dead = append(dead, c)
		}
	}

	for _, c := range dead {
		delete(r.clients, c)
	}

	return dead
}

func (r *Registry) Len() int {
	return len(r.clients)
}
