package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Observer receives connection and event counts.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	ObserveEvent(event string)
	ClientDropped()
}

type outboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type joinRequest struct {
	client *Client
	room   string
}

type publication struct {
	room    string
	payload []byte
}

type directMessage struct {
	client  *Client
	payload []byte
}

// Hub owns room membership. Every mutation goes through its channels and is
// applied by the single Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	publish    chan publication
	direct     chan directMessage
	done       chan struct{}
	observer   Observer
}

func NewHub(observer Observer) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		publish:    make(chan publication, 64),
		direct:     make(chan directMessage, 64),
		done:       make(chan struct{}),
		observer:   observer,
	}
}

// Run serves hub operations until ctx ends. All client send channels are
// closed on return, which ends their write pumps.
func (h *Hub) Run(ctx context.Context) {
	clients := map[*Client]map[string]struct{}{}
	rooms := map[string]map[*Client]struct{}{}

	remove := func(c *Client) {
		joined, ok := clients[c]
		if !ok {
			return
		}
		for room := range joined {
			members := rooms[room]
			delete(members, c)
			if len(members) == 0 {
				delete(rooms, room)
			}
		}
		delete(clients, c)
		close(c.send)
		if h.observer != nil {
			h.observer.ConnectionClosed()
		}
	}

	deliver := func(c *Client, payload []byte) {
		select {
		case c.send <- payload:
		default:
			slog.Warn("ws_client_dropped", "user_id", c.userID, "reason", "send buffer full")
			if h.observer != nil {
				h.observer.ClientDropped()
			}
			remove(c)
		}
	}

	defer func() {
		close(h.done)
		for c := range clients {
			remove(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			clients[c] = map[string]struct{}{}
			if h.observer != nil {
				h.observer.ConnectionOpened()
			}
		case c := <-h.unregister:
			remove(c)
		case req := <-h.join:
			joined, ok := clients[req.client]
			if !ok {
				continue
			}
			joined[req.room] = struct{}{}
			if rooms[req.room] == nil {
				rooms[req.room] = map[*Client]struct{}{}
			}
			rooms[req.room][req.client] = struct{}{}
		case p := <-h.publish:
			for c := range rooms[p.room] {
				deliver(c, p.payload)
			}
		case m := <-h.direct:
			if _, ok := clients[m.client]; ok {
				deliver(m.client, m.payload)
			}
		}
	}
}

// Publish sends event to every client of room. It never blocks once the hub stopped.
func (h *Hub) Publish(room, event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		slog.Error("ws_encode_failed", "event", event, "error", err)
		return
	}
	select {
	case h.publish <- publication{room: room, payload: data}:
	case <-h.done:
	}
}

func (h *Hub) sendTo(c *Client, event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		slog.Error("ws_encode_failed", "event", event, "error", err)
		return
	}
	select {
	case h.direct <- directMessage{client: c, payload: data}:
	case <-h.done:
	}
}

// attach reports false when the hub already stopped.
func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) joinRoom(c *Client, room string) {
	select {
	case h.join <- joinRequest{client: c, room: room}:
	case <-h.done:
	}
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundEvent{Event: event, Data: payload})
}
