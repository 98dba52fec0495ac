package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketPath is where clients connect to receive clock updates.
const WebSocketPath = "/ws"

// WebSocketTransport broadcasts JSON encoded clock updates to every
// connected WebSocket client. Updates arriving faster than the minimum send
// interval, or while the broadcast queue is full, are dropped.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan []byte
	server    *http.Server
	listener  net.Listener
	wg        sync.WaitGroup

	sendMu          sync.Mutex
	lastSend        time.Time
	minSendInterval time.Duration

	closeOnce sync.Once
}

// NewWebSocketTransport listens on addr and starts serving WebSocket clients
// on WebSocketPath. minSendInterval rate limits Send (0 disables limiting).
func NewWebSocketTransport(addr string, minSendInterval time.Duration) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websocket listen on %s: %w", addr, err)
	}

	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local monitoring tools connect from anywhere
			},
		},
		clients:         make(map[*websocket.Conn]bool),
		broadcast:       make(chan []byte, 256),
		listener:        ln,
		minSendInterval: minSendInterval,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, wst.handleWebSocket)
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		log.Infof("WebSocketTransport: Serving on %s%s", ln.Addr(), WebSocketPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	go wst.handleBroadcasts(wst.broadcast)

	return wst, nil
}

// Addr returns the address the server is listening on.
func (wst *WebSocketTransport) Addr() net.Addr {
	return wst.listener.Addr()
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Debugf("WebSocketTransport: Client connected, total: %d", total)

	// Clients never send; a read error means the peer went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		log.Debugf("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

func (wst *WebSocketTransport) handleBroadcasts(queue <-chan []byte) {
	defer wst.wg.Done()
	for msg := range queue {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(time.Second))
			if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debugf("WebSocketTransport: Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send encodes u and queues it for broadcast.
func (wst *WebSocketTransport) Send(u *ClockUpdate) error {
	wst.sendMu.Lock()
	defer wst.sendMu.Unlock()
	if wst.broadcast == nil {
		return errors.New("websocket transport is closed")
	}

	now := time.Now()
	if now.Sub(wst.lastSend) < wst.minSendInterval {
		return nil
	}
	wst.lastSend = now

	msg, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode clock update: %w", err)
	}
	select {
	case wst.broadcast <- msg:
	default:
		// Queue full, drop message
	}
	return nil
}

// Close disconnects all clients and shuts the server down. It is safe to
// call more than once.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Debugf("WebSocketTransport: Closing server")

		wst.sendMu.Lock()
		close(wst.broadcast)
		wst.broadcast = nil
		wst.sendMu.Unlock()

		err = wst.server.Close()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		wst.wg.Wait()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
