// Package headfeed broadcasts chain.HeadChanges to subscribed websocket
// clients, so a long-lived process can watch head movement without polling
// the graph.
package headfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/colorfulnotion/chainidx/chain"
	"github.com/colorfulnotion/chainidx/log"
	"github.com/gorilla/websocket"
)

const debugFeed = log.StoreMonitoring

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans a stream of chain.HeadChanges out to every connected client.
// Publish is the only method safe to call from the goroutine that owns the
// chain.Graph; everything else runs on the Hub's own loop.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	publish    chan chain.HeadChanges
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHub returns a Hub whose run loop is stopped by canceling ctx.
func NewHub(ctx context.Context) *Hub {
	cctx, cancel := context.WithCancel(ctx)
	h := &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		publish:    make(chan chain.HeadChanges, 16),
		ctx:        cctx,
		cancel:     cancel,
	}
	go h.run()
	return h
}

// Close stops the run loop and disconnects every client.
func (h *Hub) Close() { h.cancel() }

// Publish enqueues a HeadChanges batch for delivery to every subscriber.
// It blocks while the 16-batch queue is full, until the run loop takes a
// batch or the Hub is closed. A client whose own send buffer is full when a
// batch is delivered is disconnected.
func (h *Hub) Publish(changes chain.HeadChanges) {
	select {
	case h.publish <- changes:
	case <-h.ctx.Done():
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			for c := range h.clients {
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case changes := <-h.publish:
			data, err := json.Marshal(changes)
			if err != nil {
				log.Error(debugFeed, "headfeed: marshal head changes", "err", err)
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// drainReads discards anything the client sends; this feed is one-way.
func (c *client) drainReads() {
	defer func() { c.hub.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeHTTP upgrades the request to a websocket and subscribes it to every
// HeadChanges batch published after it connects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(debugFeed, "headfeed: upgrade", "err", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 8)}
	h.register <- c

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	c.drainReads()
	wg.Wait()
}
