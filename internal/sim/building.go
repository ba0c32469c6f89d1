package sim

import (
	"frontier/internal/config"
	"frontier/internal/sim/grid"
)

// queueBlockedEventCooldown throttles the repeated "queue blocked" feedback
// while a head item stays stuck.
const queueBlockedEventCooldown = 120

// updateBuilding advances a building one tick: damage flicker, then the
// production queue. Construction progress is driven by the builder inside
// the site (see updateBuildWork), not here.
func (s *Simulation) updateBuilding(e *Entity) {
	if e.TakingDamageTimer > 0 {
		e.TakingDamageTimer--
		if e.TakingDamageTimer == 0 {
			e.Flags &^= FlagDamageFlicker
		}
	}
	if e.Mode != ModeBuildingFinished || len(e.Queue) == 0 {
		return
	}
	if e.Timer > 0 {
		e.Timer--
	}

	head := &e.Queue[0]
	player := &s.Players[e.PlayerID]

	if head.Kind == QueueUnit {
		// The head item only counts down while its population cost fits.
		unitStats := Stats(EntityType(head.Subtype))
		if player.Population+unitStats.Population > player.MaxPopulation {
			if e.Timer == 0 {
				s.emit(EventQueuePopulationBlocked, e.PlayerID, e.ID, e.Cell)
				e.Timer = queueBlockedEventCooldown
			}
			return
		}
	}

	if head.Timer > 0 {
		head.Timer--
	}
	if head.Timer > 0 {
		return
	}

	switch head.Kind {
	case QueueUnit:
		unitType := EntityType(head.Subtype)
		exit := s.Map.NearestFreeCellAround(e.Cell, Stats(e.Type).Size, Stats(unitType).Size, QueueExitSearchRadius)
		if exit == nil {
			if e.Timer == 0 {
				s.emit(EventQueueExitBlocked, e.PlayerID, e.ID, e.Cell)
				e.Timer = queueBlockedEventCooldown
			}
			return
		}
		unitID := s.spawnEntity(unitType, e.PlayerID, *exit)
		s.emit(EventUnitTrained, e.PlayerID, unitID, *exit)
		s.applyRally(e, unitID)

	case QueueUpgrade:
		player.Upgrades |= 1 << head.Subtype
		s.emit(EventUpgradeFinished, e.PlayerID, e.ID, e.Cell)
	}

	e.Queue = e.Queue[1:]
	e.Timer = 0
}

// applyRally routes a freshly trained unit to the building's rally point.
// Rallying onto a gold mine puts workers straight to work.
func (s *Simulation) applyRally(building *Entity, unitID EntityID) {
	if building.RallyPoint.X < 0 || building.RallyPoint.Y < 0 {
		return
	}
	unit := s.Pool.Get(unitID)
	if unit == nil {
		return
	}
	if id, ok := s.Map.EntityAt(grid.LayerGround, building.RallyPoint); ok {
		if target := s.Pool.Get(EntityID(id)); target != nil && target.Type == GoldMine && Stats(unit.Type).IsWorker {
			unit.Target = targetOnEntity(TargetGold, target.ID)
			return
		}
	}
	unit.Target = targetOnCell(TargetCell, building.RallyPoint)
}

// enqueueProduction pushes an item onto a building's queue, charging gold up
// front. Fails (with feedback to the issuing player only) when the queue is
// full or the gold is missing.
func (s *Simulation) enqueueProduction(building *Entity, item QueueItem) bool {
	player := &s.Players[building.PlayerID]
	if len(building.Queue) >= config.BuildingQueueMax {
		s.emit(EventQueueFull, building.PlayerID, building.ID, building.Cell)
		return false
	}

	var cost uint32
	switch item.Kind {
	case QueueUnit:
		unitType := EntityType(item.Subtype)
		if unitType >= BuildingCamp || trainableAt(unitType) != building.Type {
			return false
		}
		cost = Stats(unitType).GoldCost
		item.Timer = Stats(unitType).TrainTicks
	case QueueUpgrade:
		if item.Subtype >= UpgradeCount || player.HasUpgrade(item.Subtype) {
			return false
		}
		gold, ticks := upgradeCost(item.Subtype)
		cost = gold
		item.Timer = ticks
	default:
		return false
	}

	if player.Gold < cost {
		s.emit(EventNotEnoughGold, building.PlayerID, building.ID, building.Cell)
		return false
	}
	player.Gold -= cost
	building.Queue = append(building.Queue, item)
	return true
}

// dequeueProduction removes a queue entry and refunds its full cost exactly
// once. Index dequeueFront pops the in-progress head.
const dequeueFront = 0xff

func (s *Simulation) dequeueProduction(building *Entity, index uint8) {
	if len(building.Queue) == 0 {
		return
	}
	i := int(index)
	if index == dequeueFront {
		i = 0
	}
	if i >= len(building.Queue) {
		return
	}

	item := building.Queue[i]
	var refund uint32
	switch item.Kind {
	case QueueUnit:
		if EntityType(item.Subtype) < EntityTypeCount {
			refund = Stats(EntityType(item.Subtype)).GoldCost
		}
	case QueueUpgrade:
		refund, _ = upgradeCost(item.Subtype)
	}
	s.Players[building.PlayerID].Gold += refund

	building.Queue = append(building.Queue[:i], building.Queue[i+1:]...)
	building.Timer = 0
}

// cancelConstruction tears down an in-progress site, refunding the full cost
// and ejecting the builder.
func (s *Simulation) cancelConstruction(building *Entity) {
	if building.Mode != ModeBuildingInProgress {
		return
	}
	s.Players[building.PlayerID].Gold += Stats(building.Type).GoldCost
	building.Health = 0
	s.killEntity(building)
	// Skip the rubble animation: a canceled site vanishes immediately.
	s.clearCells(building)
	s.Pool.Remove(building.ID)
}
