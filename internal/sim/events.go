package sim

import "frontier/internal/sim/grid"

// EventType classifies the feedback a tick can surface. Events are UI-facing
// only: they are appended to an ordered queue during the tick and drained
// after it completes, so a renderer never observes a partial tick. They are
// not part of the checksummed state.
type EventType uint8

const (
	EventNone EventType = iota
	EventCantBuild
	EventExitBlocked
	EventQueueFull
	EventQueuePopulationBlocked
	EventQueueExitBlocked
	EventNotEnoughGold
	EventUnderAttackAlert
	EventUnitTrained
	EventBuildingFinished
	EventUpgradeFinished
	EventEntityDied
	EventMineCollapsed
	EventPlayerDefeated
)

// String returns a human-readable event name for logs.
func (t EventType) String() string {
	switch t {
	case EventCantBuild:
		return "cant_build"
	case EventExitBlocked:
		return "exit_blocked"
	case EventQueueFull:
		return "queue_full"
	case EventQueuePopulationBlocked:
		return "queue_population_blocked"
	case EventQueueExitBlocked:
		return "queue_exit_blocked"
	case EventNotEnoughGold:
		return "not_enough_gold"
	case EventUnderAttackAlert:
		return "under_attack"
	case EventUnitTrained:
		return "unit_trained"
	case EventBuildingFinished:
		return "building_finished"
	case EventUpgradeFinished:
		return "upgrade_finished"
	case EventEntityDied:
		return "entity_died"
	case EventMineCollapsed:
		return "mine_collapsed"
	case EventPlayerDefeated:
		return "player_defeated"
	default:
		return "none"
	}
}

// Event is one queued feedback record. Player is the player the event is
// addressed to; the UI layer filters for the local player.
type Event struct {
	Type   EventType
	Player uint8
	ID     EntityID
	Cell   grid.Point
	Tick   uint32
}

func (s *Simulation) emit(eventType EventType, player uint8, id EntityID, cell grid.Point) {
	s.events = append(s.events, Event{
		Type:   eventType,
		Player: player,
		ID:     id,
		Cell:   cell,
		Tick:   s.Tick,
	})
}

// DrainEvents returns the events emitted since the last drain and resets the
// queue. Call between ticks.
func (s *Simulation) DrainEvents() []Event {
	events := s.events
	s.events = nil
	return events
}

// emitUnderAttack raises the "under attack" alert for a player, deduplicated
// so a volley against one army corner produces a single ping. The dedup
// memory is UI-side state and deliberately excluded from the checksum.
func (s *Simulation) emitUnderAttack(player uint8, cell grid.Point) {
	for _, prev := range s.alertCells[player] {
		if prev.Cell.ChebyshevDistanceTo(cell) <= AlertRadius && s.Tick-prev.Tick < alertCooldownTicks {
			return
		}
	}
	s.alertCells[player] = append(s.alertCells[player], alertMark{Cell: cell, Tick: s.Tick})
	s.emit(EventUnderAttackAlert, player, NoEntity, cell)
}

const alertCooldownTicks = 300

type alertMark struct {
	Cell grid.Point
	Tick uint32
}

// pruneAlerts drops expired alert marks; called once per tick.
func (s *Simulation) pruneAlerts() {
	for p := range s.alertCells {
		n := 0
		for _, mark := range s.alertCells[p] {
			if s.Tick-mark.Tick < alertCooldownTicks {
				s.alertCells[p][n] = mark
				n++
			}
		}
		s.alertCells[p] = s.alertCells[p][:n]
	}
}
