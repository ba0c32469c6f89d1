// Package net provides the match transport: ordered byte frames between
// peers. The lockstep engine consumes the Transport interface and never sees
// sockets; the websocket implementation carries real matches and the
// loopback carries singleplayer and tests.
package net

// EventType tags a transport event.
type EventType uint8

const (
	EventNone EventType = iota
	EventLobbyUpdated
	EventPlayerConnected
	EventPeerDisconnected
	EventChat
	EventMatchLoad
	EventInput
)

// Event is one transport occurrence, drained via PollEvent.
type Event struct {
	Type     EventType
	PlayerID uint8

	// Chat payload.
	Message string

	// MatchLoad payload.
	Seed        int32
	NoiseData   []byte
	MapWidth    uint32
	MapHeight   uint32
	ActiveCount uint8 // player slots in the match, host slot included

	// Input payload: exactly one turn's serialized batch.
	Batch []byte
}

const maxPeers = 4

// Transport delivers ordered frames between match peers. Implementations
// must deliver each peer's input frames in send order; the lockstep engine
// depends on it.
type Transport interface {
	// Service pumps the underlying connection without blocking. Call once
	// per engine update.
	Service()

	// PollEvent returns the next pending event, or nil when the queue is
	// empty.
	PollEvent() *Event

	// SendInput broadcasts the local peer's batch frame for the current turn.
	SendInput(frame []byte)

	// SendChat broadcasts a chat line.
	SendChat(message string)

	// BeginLoadingMatch broadcasts seed and terrain to every peer. Host only.
	BeginLoadingMatch(seed int32, width, height uint32, noise []byte)

	// LocalPlayerID returns this peer's player slot.
	LocalPlayerID() uint8

	// Close tears down the connection. Remote peers observe a disconnect.
	Close()
}

// Frame type bytes on the wire. The first byte of every websocket message is
// one of these.
const (
	frameJoin      = 0x01
	frameWelcome   = 0x02
	frameChat      = 0x03
	frameMatchLoad = 0x04
	frameInput     = 0x05
	frameLeave     = 0x06
)
