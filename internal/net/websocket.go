package net

import (
	"encoding/binary"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	// Match traffic is LAN/peer traffic, not browser traffic; origin checks
	// would only break native clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsPeer is one remote connection with its write lock. gorilla/websocket
// allows a single concurrent writer per conn.
type wsPeer struct {
	conn     *websocket.Conn
	playerID uint8
	writeMu  sync.Mutex
}

func (p *wsPeer) write(frame []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// WebsocketHost is the hosting side of a match: it accepts peer connections,
// assigns player slots and relays every input frame to every other peer (and
// to itself). The host is always player 0.
type WebsocketHost struct {
	mu     sync.Mutex
	peers  map[uint8]*wsPeer
	queue  []Event
	nextID uint8
	server *http.Server
	closed bool
}

// NewWebsocketHost starts listening for match peers on addr.
func NewWebsocketHost(addr string) (*WebsocketHost, error) {
	h := &WebsocketHost{
		peers:  make(map[uint8]*wsPeer),
		nextID: 1,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/match", h.handleMatch)
	h.server = &http.Server{Addr: addr, Handler: mux}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- h.server.ListenAndServe()
	}()
	log.Printf("match host listening on %s", addr)
	return h, nil
}

func (h *WebsocketHost) handleMatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if h.closed || h.nextID >= maxPeers {
		h.mu.Unlock()
		conn.Close()
		return
	}
	playerID := h.nextID
	h.nextID++
	peer := &wsPeer{conn: conn, playerID: playerID}
	h.peers[playerID] = peer
	h.queue = append(h.queue, Event{Type: EventPlayerConnected, PlayerID: playerID})
	h.mu.Unlock()

	if err := peer.write([]byte{frameWelcome, playerID}); err != nil {
		h.dropPeer(playerID)
		return
	}

	go h.readLoop(peer)
}

func (h *WebsocketHost) readLoop(peer *wsPeer) {
	for {
		_, frame, err := peer.conn.ReadMessage()
		if err != nil {
			h.dropPeer(peer.playerID)
			return
		}
		if len(frame) == 0 {
			continue
		}
		h.mu.Lock()
		switch frame[0] {
		case frameInput:
			if len(frame) >= 2 {
				batch := append([]byte(nil), frame[2:]...)
				h.queue = append(h.queue, Event{
					Type:     EventInput,
					PlayerID: frame[1],
					Batch:    batch,
				})
				h.relayLocked(peer.playerID, frame)
			}
		case frameChat:
			if len(frame) >= 2 {
				h.queue = append(h.queue, Event{
					Type:     EventChat,
					PlayerID: frame[1],
					Message:  string(frame[2:]),
				})
				h.relayLocked(peer.playerID, frame)
			}
		case frameLeave:
			h.mu.Unlock()
			h.dropPeer(peer.playerID)
			return
		}
		h.mu.Unlock()
	}
}

// relayLocked forwards a frame to every peer except its origin. Caller holds
// the mutex.
func (h *WebsocketHost) relayLocked(from uint8, frame []byte) {
	for id, peer := range h.peers {
		if id == from {
			continue
		}
		if err := peer.write(frame); err != nil {
			log.Printf("relay to player %d failed: %v", id, err)
		}
	}
}

func (h *WebsocketHost) dropPeer(playerID uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peer, ok := h.peers[playerID]
	if !ok {
		return
	}
	peer.conn.Close()
	delete(h.peers, playerID)
	h.queue = append(h.queue, Event{Type: EventPeerDisconnected, PlayerID: playerID})
	h.relayLocked(playerID, []byte{frameLeave, playerID})
}

// Service is a no-op for the host: read loops feed the queue directly.
func (h *WebsocketHost) Service() {}

// PollEvent pops the next pending event.
func (h *WebsocketHost) PollEvent() *Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil
	}
	event := h.queue[0]
	h.queue = h.queue[1:]
	return &event
}

// SendInput broadcasts the host's own batch frame.
func (h *WebsocketHost) SendInput(batch []byte) {
	frame := make([]byte, 0, len(batch)+2)
	frame = append(frame, frameInput, 0)
	frame = append(frame, batch...)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relayLocked(0, frame)
}

// SendChat broadcasts a chat line from the host.
func (h *WebsocketHost) SendChat(message string) {
	frame := append([]byte{frameChat, 0}, message...)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relayLocked(0, frame)
}

// BeginLoadingMatch pushes the match parameters to every peer and queues the
// local copy. The roster byte after the terrain tells every peer how many
// player slots the match actually has.
func (h *WebsocketHost) BeginLoadingMatch(seed int32, width, height uint32, noise []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	activeCount := uint8(1 + len(h.peers))

	frame := make([]byte, 0, 14+len(noise))
	frame = append(frame, frameMatchLoad)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(seed))
	frame = binary.LittleEndian.AppendUint32(frame, width)
	frame = binary.LittleEndian.AppendUint32(frame, height)
	frame = append(frame, noise...)
	frame = append(frame, activeCount)

	h.relayLocked(0xff, frame)
	h.queue = append(h.queue, Event{
		Type:        EventMatchLoad,
		Seed:        seed,
		MapWidth:    width,
		MapHeight:   height,
		NoiseData:   append([]byte(nil), noise...),
		ActiveCount: activeCount,
	})
}

// LocalPlayerID returns 0: the host always holds the first slot.
func (h *WebsocketHost) LocalPlayerID() uint8 { return 0 }

// Close shuts the listener and every peer connection.
func (h *WebsocketHost) Close() {
	h.mu.Lock()
	h.closed = true
	for _, peer := range h.peers {
		peer.write([]byte{frameLeave, 0})
		peer.conn.Close()
	}
	h.peers = make(map[uint8]*wsPeer)
	h.mu.Unlock()
	h.server.Close()
}

// WebsocketClient is the joining side of a match.
type WebsocketClient struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	queue    []Event
	playerID uint8
	closed   bool
}

// DialMatch connects to a host and waits for the welcome frame that assigns
// this peer's player slot.
func DialMatch(hostAddr string) (*WebsocketClient, error) {
	url := fmt.Sprintf("ws://%s/match", hostAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial match host")
	}

	_, frame, err := conn.ReadMessage()
	if err != nil || len(frame) < 2 || frame[0] != frameWelcome {
		conn.Close()
		if err == nil {
			err = errors.New("unexpected first frame from host")
		}
		return nil, errors.Wrap(err, "await welcome")
	}

	c := &WebsocketClient{conn: conn, playerID: frame[1]}
	go c.readLoop()
	log.Printf("joined match as player %d", c.playerID)
	return c, nil
}

func (c *WebsocketClient) readLoop() {
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				// The relay is gone; surface the host as the departed peer.
				c.queue = append(c.queue, Event{Type: EventPeerDisconnected, PlayerID: 0})
			}
			c.mu.Unlock()
			return
		}
		if len(frame) == 0 {
			continue
		}
		c.mu.Lock()
		switch frame[0] {
		case frameInput:
			if len(frame) >= 2 {
				c.queue = append(c.queue, Event{
					Type:     EventInput,
					PlayerID: frame[1],
					Batch:    append([]byte(nil), frame[2:]...),
				})
			}
		case frameChat:
			if len(frame) >= 2 {
				c.queue = append(c.queue, Event{
					Type:     EventChat,
					PlayerID: frame[1],
					Message:  string(frame[2:]),
				})
			}
		case frameMatchLoad:
			if len(frame) >= 13 {
				width := binary.LittleEndian.Uint32(frame[5:])
				height := binary.LittleEndian.Uint32(frame[9:])
				tileEnd := 13 + int(width)*int(height)
				if tileEnd <= len(frame) {
					event := Event{
						Type:        EventMatchLoad,
						Seed:        int32(binary.LittleEndian.Uint32(frame[1:])),
						MapWidth:    width,
						MapHeight:   height,
						NoiseData:   append([]byte(nil), frame[13:tileEnd]...),
						ActiveCount: 2,
					}
					if tileEnd < len(frame) {
						event.ActiveCount = frame[tileEnd]
					}
					c.queue = append(c.queue, event)
				}
			}
		case frameLeave:
			if len(frame) >= 2 {
				c.queue = append(c.queue, Event{Type: EventPeerDisconnected, PlayerID: frame[1]})
			}
		}
		c.mu.Unlock()
	}
}

// Service is a no-op: the read loop feeds the queue.
func (c *WebsocketClient) Service() {}

// PollEvent pops the next pending event.
func (c *WebsocketClient) PollEvent() *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	event := c.queue[0]
	c.queue = c.queue[1:]
	return &event
}

func (c *WebsocketClient) write(frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		log.Printf("websocket write failed: %v", err)
	}
}

// SendInput sends this peer's batch frame to the host for relaying.
func (c *WebsocketClient) SendInput(batch []byte) {
	frame := make([]byte, 0, len(batch)+2)
	frame = append(frame, frameInput, c.playerID)
	frame = append(frame, batch...)
	c.write(frame)
}

// SendChat sends a chat line.
func (c *WebsocketClient) SendChat(message string) {
	c.write(append([]byte{frameChat, c.playerID}, message...))
}

// BeginLoadingMatch is host-only; clients never broadcast match parameters.
func (c *WebsocketClient) BeginLoadingMatch(int32, uint32, uint32, []byte) {}

// LocalPlayerID returns the slot the host assigned.
func (c *WebsocketClient) LocalPlayerID() uint8 { return c.playerID }

// Close announces departure and drops the connection.
func (c *WebsocketClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.write([]byte{frameLeave, c.playerID})
	c.conn.Close()
}
