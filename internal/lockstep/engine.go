// Package lockstep sequences a deterministic match over an ordered-frame
// transport. The network carries only inputs: every peer runs the same
// simulation over the same per-turn input batches and cross-checks state
// checksums at turn boundaries.
package lockstep

import (
	"encoding/binary"
	"log"

	"frontier/internal/config"
	"frontier/internal/net"
	"frontier/internal/sim"
)

// State is the engine's coarse condition, surfaced to the UI.
type State int

const (
	// StateRunning means ticks are advancing normally.
	StateRunning State = iota
	// StateWaiting means a peer's inputs are overdue past the grace period;
	// the simulation is frozen until they arrive or the peer is dropped.
	StateWaiting
	// StateDesynced means a checksum mismatch was detected. Fatal.
	StateDesynced
)

// checksumHistory bounds how many past turn checksums are kept for
// cross-peer comparison.
const checksumHistory = 64

// inputFrameHeader is the engine's framing on top of the transport: the
// batch's scheduled turn and the sender's checksum for its last completed
// turn.
const inputFrameHeader = 12 // turn u32, checksumTurn u32, checksum u32

// noChecksumTurn marks "no turn completed yet" in frame headers and the
// local history; turn 0 is a real turn and cannot double as the sentinel.
const noChecksumTurn = ^uint32(0)

// Engine drives one peer's view of a lockstep match.
type Engine struct {
	Sim       *sim.Simulation
	transport net.Transport

	localPlayer uint8
	turn        uint32 // turn currently being gathered/executed
	tickInTurn  uint32
	state       State

	// Per-player FIFO of turn batches. Each turn consumes exactly one batch
	// per active player; ordered delivery keeps the FIFOs aligned across
	// peers.
	inbox      [config.MaxPlayers][]pendingBatch
	dropped    [config.MaxPlayers]bool
	graceTicks uint32

	// Local intents buffered between turn boundaries.
	localQueue []sim.Input

	// Rolling checksum history for desync detection: checksums[turn % N].
	checksums        [checksumHistory]uint32
	checksumTurns    [checksumHistory]uint32
	lastChecksum     uint32
	lastChecksumTurn uint32

	replay   *ReplayWriter
	eventLog *EventLog

	// SimEvents accumulates UI-facing simulation events drained each tick.
	SimEvents []sim.Event
	// ChatLines accumulates chat and system messages for the UI.
	ChatLines []string
}

type pendingBatch struct {
	turn uint32
	raw  []byte
}

// NewEngine builds the engine around an initialized simulation. The initial
// TurnOffset turns are pre-seeded with empty batches for every active player
// so the pipeline starts full: the first real batch a player sends is
// scheduled TurnOffset turns out.
func NewEngine(simulation *sim.Simulation, transport net.Transport, replay *ReplayWriter, eventLog *EventLog) *Engine {
	e := &Engine{
		Sim:              simulation,
		transport:        transport,
		localPlayer:      transport.LocalPlayerID(),
		replay:           replay,
		eventLog:         eventLog,
		lastChecksumTurn: noChecksumTurn,
	}
	for i := range e.checksumTurns {
		e.checksumTurns[i] = noChecksumTurn
	}
	for player := 0; player < config.MaxPlayers; player++ {
		if !simulation.Players[player].Active {
			continue
		}
		for turn := uint32(0); turn < config.TurnOffset; turn++ {
			e.inbox[player] = append(e.inbox[player], pendingBatch{turn: turn})
		}
	}
	return e
}

// State returns the engine condition for the UI.
func (e *Engine) State() State {
	return e.state
}

// Turn returns the turn currently being executed.
func (e *Engine) Turn() uint32 {
	return e.turn
}

// QueueInput buffers a local intent for the next flush.
func (e *Engine) QueueInput(input sim.Input) {
	e.localQueue = append(e.localQueue, input)
}

// Update advances the match by at most one simulation tick. Call it at the
// tick rate. When inputs for the pending turn are missing the call leaves
// the simulation untouched and accounts the wait against the grace period.
func (e *Engine) Update() {
	e.transport.Service()
	for {
		event := e.transport.PollEvent()
		if event == nil {
			break
		}
		e.handleTransportEvent(event)
	}

	if e.state == StateDesynced {
		return
	}

	if e.tickInTurn == 0 {
		if !e.turnInputsReady() {
			e.graceTicks++
			if e.graceTicks > config.DisconnectGraceTurns*config.TicksPerTurn {
				e.state = StateWaiting
			}
			return
		}
		e.graceTicks = 0
		e.state = StateRunning
		e.beginTurn()
	}

	e.Sim.Step()
	drained := e.Sim.DrainEvents()
	e.SimEvents = append(e.SimEvents, drained...)
	if e.eventLog != nil {
		for _, simEvent := range drained {
			e.eventLog.Emit(Event{
				Type:   EventSimFeedback,
				Turn:   e.turn,
				Player: simEvent.Player,
				Detail: simEvent.Type.String(),
			})
		}
	}

	e.tickInTurn++
	if e.tickInTurn == config.TicksPerTurn {
		e.tickInTurn = 0
		e.recordChecksum()
		e.turn++
	}
}

// turnInputsReady reports whether every active peer's batch for the current
// turn has arrived. Dropped peers are backfilled with empty batches on the
// spot so the lockstep can proceed without them.
func (e *Engine) turnInputsReady() bool {
	for player := 0; player < config.MaxPlayers; player++ {
		if !e.Sim.Players[player].Active {
			continue
		}
		if len(e.inbox[player]) == 0 {
			if e.dropped[player] {
				e.inbox[player] = append(e.inbox[player], pendingBatch{turn: e.turn})
				continue
			}
			return false
		}
	}
	return true
}

// beginTurn applies every player's batch in ascending player-id order, logs
// them to the replay, and flushes the local queue for TurnOffset turns out.
func (e *Engine) beginTurn() {
	for player := 0; player < config.MaxPlayers; player++ {
		if !e.Sim.Players[player].Active {
			continue
		}
		batch := e.inbox[player][0]
		e.inbox[player] = e.inbox[player][1:]

		inputs, err := sim.DeserializeBatch(batch.raw)
		if err != nil {
			// A peer shipping garbage cannot stay in lockstep.
			log.Printf("bad input batch from player %d: %v", player, err)
			e.failDesync()
			return
		}
		e.Sim.ApplyBatch(uint8(player), inputs)

		if e.replay != nil {
			if err := e.replay.WriteTurn(uint8(player), batch.raw); err != nil {
				log.Printf("replay write failed: %v", err)
			}
		}
	}

	e.flushLocalBatch()
}

// flushLocalBatch serializes the buffered local intents (or an empty batch)
// and both broadcasts it and schedules it locally.
func (e *Engine) flushLocalBatch() {
	raw, err := sim.SerializeBatch(e.localQueue)
	if err != nil {
		// Oversized batch: drop every queued command and send an empty batch
		// rather than stall the match. The issuing player just clicks again.
		log.Printf("input batch overflow, dropping %d queued inputs", len(e.localQueue))
		raw = nil
	}
	e.localQueue = e.localQueue[:0]

	scheduled := e.turn + config.TurnOffset
	e.inbox[e.localPlayer] = append(e.inbox[e.localPlayer], pendingBatch{turn: scheduled, raw: raw})

	frame := make([]byte, 0, inputFrameHeader+len(raw))
	frame = binary.LittleEndian.AppendUint32(frame, scheduled)
	frame = binary.LittleEndian.AppendUint32(frame, e.lastChecksumTurn)
	frame = binary.LittleEndian.AppendUint32(frame, e.lastChecksum)
	frame = append(frame, raw...)
	e.transport.SendInput(frame)
}

func (e *Engine) handleTransportEvent(event *net.Event) {
	switch event.Type {
	case net.EventInput:
		e.handleInputFrame(event.PlayerID, event.Batch)

	case net.EventPeerDisconnected:
		player := event.PlayerID
		if player >= config.MaxPlayers || e.dropped[player] {
			return
		}
		e.dropped[player] = true
		e.Sim.Players[player].Active = false
		name := e.Sim.Players[player].Name
		line := name + " has left the match."
		e.ChatLines = append(e.ChatLines, line)
		log.Printf("peer disconnected: player %d (%s)", player, name)
		if e.eventLog != nil {
			e.eventLog.Emit(Event{Type: EventPeerDropped, Turn: e.turn, Player: player})
		}
		// Unfreeze immediately if this peer was the one being waited on.
		if e.state == StateWaiting {
			e.state = StateRunning
			e.graceTicks = 0
		}

	case net.EventChat:
		e.ChatLines = append(e.ChatLines, event.Message)
		if e.eventLog != nil {
			e.eventLog.Emit(Event{Type: EventChatLine, Turn: e.turn, Player: event.PlayerID, Detail: event.Message})
		}
	}
}

func (e *Engine) handleInputFrame(player uint8, frame []byte) {
	if player >= config.MaxPlayers || player == e.localPlayer {
		return
	}
	if len(frame) < inputFrameHeader {
		return
	}
	turn := binary.LittleEndian.Uint32(frame[0:])
	checksumTurn := binary.LittleEndian.Uint32(frame[4:])
	checksum := binary.LittleEndian.Uint32(frame[8:])
	raw := append([]byte(nil), frame[inputFrameHeader:]...)

	e.inbox[player] = append(e.inbox[player], pendingBatch{turn: turn, raw: raw})
	e.compareChecksum(player, checksumTurn, checksum)
}

// recordChecksum snapshots the local state hash after a completed turn.
func (e *Engine) recordChecksum() {
	value := e.Sim.Checksum()
	slot := e.turn % checksumHistory
	e.checksums[slot] = value
	e.checksumTurns[slot] = e.turn
	e.lastChecksum = value
	e.lastChecksumTurn = e.turn
	if e.eventLog != nil {
		e.eventLog.Emit(Event{Type: EventTurnComplete, Turn: e.turn, Checksum: value})
	}
}

// compareChecksum checks a peer's reported state hash against our own for
// the same turn. Mismatch is fatal: the peers have diverged and no amount of
// input exchange can reconcile them.
func (e *Engine) compareChecksum(player uint8, turn, peerChecksum uint32) {
	if e.state == StateDesynced || turn == noChecksumTurn {
		return
	}
	slot := turn % checksumHistory
	if e.checksumTurns[slot] != turn {
		return // not computed yet, or already rotated out
	}
	if e.checksums[slot] == peerChecksum {
		return
	}
	log.Printf("DESYNC at turn %d: local %08x, player %d reports %08x",
		turn, e.checksums[slot], player, peerChecksum)
	e.failDesync()
}

func (e *Engine) failDesync() {
	e.state = StateDesynced
	e.ChatLines = append(e.ChatLines, "The match has desynchronized.")
	if e.eventLog != nil {
		e.eventLog.Emit(Event{Type: EventDesync, Turn: e.turn})
	}
}

// LeaveMatch flushes a final empty batch and closes the transport. Other
// peers observe the departure as a disconnect.
func (e *Engine) LeaveMatch() {
	e.Sim.Players[e.localPlayer].HasSurrendered = true
	e.localQueue = e.localQueue[:0]
	e.flushLocalBatch()
	e.transport.Close()
}
