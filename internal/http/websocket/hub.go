// Package websocket manages the live activity socket: upgrading incoming
// HTTP requests and broadcasting state pushes to every connected client.
// The socket is push-only; clients which send anything are simply read and
// discarded to service pings.
package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("WebSocket")

const clientSendBuffer = 16

type (
	SocketMessage struct {
		Title string `json:"title"`
		Body  any    `json:"body"`
	}

	socketClient struct {
		id     uuid.UUID
		socket *websocket.Conn
		sendCh chan *SocketMessage
	}

	// SocketHub tracks the connected clients. A hub must be started
	// before requests can be upgraded; once the context is cancelled all
	// clients are closed and further upgrades are refused.
	SocketHub struct {
		*sync.Mutex

		upgrader *websocket.Upgrader
		clients  map[uuid.UUID]*socketClient
		running  bool

		// connectionCallback furnishes each new client with the current
		// server state, so clients need not wait for the next broadcast.
		connectionCallback func() any
	}
)

func New() *SocketHub {
	return &SocketHub{
		Mutex: &sync.Mutex{},
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*socketClient),
	}
}

// WithConnectionCallback sets the callback whose result is sent to every
// newly connected client as the body of its welcome message.
func (hub *SocketHub) WithConnectionCallback(callback func() any) {
	hub.connectionCallback = callback
}

// Start marks the hub as running and blocks until the context is
// cancelled, at which point every connected client is closed.
func (hub *SocketHub) Start(ctx context.Context) {
	hub.Lock()
	hub.running = true
	hub.Unlock()

	<-ctx.Done()

	hub.Lock()
	hub.running = false
	for _, client := range hub.clients {
		close(client.sendCh)
	}
	hub.clients = make(map[uuid.UUID]*socketClient)
	hub.Unlock()

	log.Emit(logger.STOP, "Socket hub closed\n")
}

// Broadcast queues the message for every connected client. Clients whose
// send buffer is full miss the message; the next broadcast supersedes it.
func (hub *SocketHub) Broadcast(title string, body any) {
	message := &SocketMessage{Title: title, Body: body}

	hub.Lock()
	defer hub.Unlock()
	for _, client := range hub.clients {
		select {
		case client.sendCh <- message:
		default:
			log.Emit(logger.WARNING, "Client {%v} send buffer full, dropping %s\n", client.id, title)
		}
	}
}

// UpgradeToSocket upgrades the request and services the client until it
// disconnects. Intended to be called from an HTTP handler; it blocks for
// the lifetime of the connection.
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	hub.Lock()
	if !hub.running {
		hub.Unlock()
		log.Emit(logger.ERROR, "Refusing websocket upgrade: hub is not running\n")
		return
	}
	hub.Unlock()

	socket, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Emit(logger.ERROR, "Websocket upgrade failed: %v\n", err)
		return
	}

	client := &socketClient{
		id:     uuid.New(),
		socket: socket,
		sendCh: make(chan *SocketMessage, clientSendBuffer),
	}

	// The welcome is queued while the registration lock is held: shutdown
	// closes sendCh under the same lock, so the send can never hit a
	// closed channel. The buffer is empty at this point and cannot block.
	hub.Lock()
	if !hub.running {
		hub.Unlock()
		socket.Close()
		return
	}
	hub.clients[client.id] = client
	if hub.connectionCallback != nil {
		client.sendCh <- &SocketMessage{Title: "CONNECTION_ESTABLISHED", Body: hub.connectionCallback()}
	}
	hub.Unlock()
	log.Emit(logger.NEW, "Registered new client {%v}\n", client.id)

	go client.writeLoop()

	// Read until the peer goes away; inbound payloads are ignored.
	for {
		if _, _, err := socket.ReadMessage(); err != nil {
			break
		}
	}

	hub.Lock()
	if _, ok := hub.clients[client.id]; ok {
		delete(hub.clients, client.id)
		close(client.sendCh)
	}
	hub.Unlock()
	log.Emit(logger.REMOVE, "Deregistered client {%v}\n", client.id)
}

func (client *socketClient) writeLoop() {
	defer client.socket.Close()

	for message := range client.sendCh {
		if err := client.socket.WriteJSON(message); err != nil {
			log.Emit(logger.WARNING, "Write to client {%v} failed: %v\n", client.id, err)
			return
		}
	}
}
