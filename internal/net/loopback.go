package net

// Loopback is an in-process transport for singleplayer matches and tests.
// Frames sent by one endpoint surface as events on its peers within the same
// Service cycle, in send order. A LoopbackHub wires N endpoints together the
// way the relay wires websocket peers.
type LoopbackHub struct {
	endpoints []*Loopback
}

// NewLoopbackHub creates a hub and one endpoint per player slot.
func NewLoopbackHub(players int) *LoopbackHub {
	hub := &LoopbackHub{}
	for i := 0; i < players; i++ {
		hub.endpoints = append(hub.endpoints, &Loopback{
			hub:      hub,
			playerID: uint8(i),
		})
	}
	return hub
}

// Endpoint returns the transport for a player slot.
func (h *LoopbackHub) Endpoint(player int) *Loopback {
	return h.endpoints[player]
}

// Loopback is one endpoint of an in-process mesh.
type Loopback struct {
	hub      *LoopbackHub
	playerID uint8
	queue    []Event
	closed   bool

	// DropInputs silences this endpoint's outgoing input frames. Tests use
	// it to simulate a stalled peer.
	DropInputs bool
}

// Service is a no-op: loopback delivery is synchronous.
func (l *Loopback) Service() {}

// PollEvent pops the next queued event.
func (l *Loopback) PollEvent() *Event {
	if len(l.queue) == 0 {
		return nil
	}
	event := l.queue[0]
	l.queue = l.queue[1:]
	return &event
}

// SendInput delivers the batch to every other live endpoint.
func (l *Loopback) SendInput(frame []byte) {
	if l.closed || l.DropInputs {
		return
	}
	for _, peer := range l.hub.endpoints {
		if peer == l || peer.closed {
			continue
		}
		batch := make([]byte, len(frame))
		copy(batch, frame)
		peer.queue = append(peer.queue, Event{
			Type:     EventInput,
			PlayerID: l.playerID,
			Batch:    batch,
		})
	}
}

// SendChat delivers a chat line to every other endpoint.
func (l *Loopback) SendChat(message string) {
	if l.closed {
		return
	}
	for _, peer := range l.hub.endpoints {
		if peer == l || peer.closed {
			continue
		}
		peer.queue = append(peer.queue, Event{
			Type:     EventChat,
			PlayerID: l.playerID,
			Message:  message,
		})
	}
}

// BeginLoadingMatch hands every endpoint (including the caller) the match
// parameters.
func (l *Loopback) BeginLoadingMatch(seed int32, width, height uint32, noise []byte) {
	for _, peer := range l.hub.endpoints {
		if peer.closed {
			continue
		}
		data := make([]byte, len(noise))
		copy(data, noise)
		peer.queue = append(peer.queue, Event{
			Type:        EventMatchLoad,
			PlayerID:    l.playerID,
			Seed:        seed,
			MapWidth:    width,
			MapHeight:   height,
			NoiseData:   data,
			ActiveCount: uint8(len(l.hub.endpoints)),
		})
	}
}

// LocalPlayerID returns this endpoint's player slot.
func (l *Loopback) LocalPlayerID() uint8 {
	return l.playerID
}

// Close marks the endpoint dead and surfaces PeerDisconnected on the others.
func (l *Loopback) Close() {
	if l.closed {
		return
	}
	l.closed = true
	for _, peer := range l.hub.endpoints {
		if peer == l || peer.closed {
			continue
		}
		peer.queue = append(peer.queue, Event{
			Type:     EventPeerDisconnected,
			PlayerID: l.playerID,
		})
	}
}
