package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Feed configuration
const (
	MaxFeedClients   = 100
	FeedWriteTimeout = 10 * time.Second
	FeedPongTimeout  = 60 * time.Second
	FeedPingInterval = 30 * time.Second
	feedSendBuffer   = 16
)

// RunEvent is one lifecycle event broadcast to feed subscribers
type RunEvent struct {
	Type       string `json:"type"` // run_started, shard_exited, ingest_finished, run_finished
	RunID      string `json:"run_id"`
	Variant    string `json:"variant"`
	ShardIndex int    `json:"shard_index,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
	Time       string `json:"time"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// RunFeed broadcasts run lifecycle events to WebSocket subscribers
type RunFeed struct {
	clients    map[*feedClient]bool
	broadcast  chan RunEvent
	register   chan *feedClient
	unregister chan *feedClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	once       sync.Once
}

// Global run feed instance
var GlobalRunFeed = NewRunFeed()

// NewRunFeed creates an idle run feed; Start launches its hub loop
func NewRunFeed() *RunFeed {
	return &RunFeed{
		clients:    make(map[*feedClient]bool),
		broadcast:  make(chan RunEvent, 64),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		shutdown:   make(chan struct{}),
	}
}

// Start runs the hub loop; safe to call once
func (f *RunFeed) Start() {
	f.once.Do(func() {
		go f.run()
	})
}

func (f *RunFeed) run() {
	for {
		select {
		case client := <-f.register:
			f.mu.Lock()
			if len(f.clients) >= MaxFeedClients {
				f.mu.Unlock()
				client.conn.Close()
				continue
			}
			f.clients[client] = true
			f.mu.Unlock()

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				close(client.send)
			}
			f.mu.Unlock()

		case event := <-f.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Failed to encode run event: %v", err)
				continue
			}
			f.mu.RLock()
			for client := range f.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer, drop the event for that client.
				}
			}
			f.mu.RUnlock()

		case <-f.shutdown:
			f.mu.Lock()
			for client := range f.clients {
				client.conn.Close()
				close(client.send)
			}
			f.clients = make(map[*feedClient]bool)
			f.mu.Unlock()
			return
		}
	}
}

// Publish queues one event for broadcast; never blocks the orchestrator
func (f *RunFeed) Publish(event RunEvent) {
	if event.Time == "" {
		event.Time = time.Now().Format(time.RFC3339)
	}
	select {
	case f.broadcast <- event:
	default:
		log.Println("Run feed backlog full, dropping event")
	}
}

// Stop shuts down the hub and disconnects every client
func (f *RunFeed) Stop() {
	close(f.shutdown)
}

// SubscriberCount returns the number of connected clients
func (f *RunFeed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades an HTTP request into a feed subscription
func (f *RunFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan []byte, feedSendBuffer),
	}
	f.register <- client

	go f.writePump(client)
	go f.readPump(client)
}

func (f *RunFeed) writePump(client *feedClient) {
	ticker := time.NewTicker(FeedPingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(FeedWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(FeedWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *RunFeed) readPump(client *feedClient) {
	defer func() {
		f.unregister <- client
		client.conn.Close()
	}()
	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(FeedPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(FeedPongTimeout))
		return nil
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
