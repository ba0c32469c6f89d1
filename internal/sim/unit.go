package sim

import (
	"frontier/internal/config"
	"frontier/internal/fixed"
	"frontier/internal/sim/grid"
)

// maxModeTransitionsPerTick guards the inner update loop. A unit legitimately
// chains a few transitions in one tick (arrive, dispatch, start winding up);
// anything past this is a cycle and the unit settles where it is.
const maxModeTransitionsPerTick = 8

// updateUnit advances one unit one tick. The inner loop keeps processing mode
// transitions until the movement budget is spent or the mode settles in a
// waiting state.
func (s *Simulation) updateUnit(e *Entity) {
	switch e.Mode {
	case ModeDeath, ModeDeathFade:
		return
	}

	s.tickUnitTimers(e)
	if e.Health <= 0 {
		return
	}
	if e.GarrisonID != NoEntity && e.Mode != ModeBuild && e.Mode != ModeMineIn {
		e.Mode = ModeFerry
		return
	}

	movementLeft := Stats(e.Type).Speed

	for transitions := 0; transitions < maxModeTransitionsPerTick; transitions++ {
		switch e.Mode {
		case ModeIdle:
			if !s.updateIdle(e) {
				e.Animation.Advance()
				return
			}

		case ModeMoveBlocked:
			if e.Timer > 0 {
				e.Timer--
			}
			if e.Timer == 0 {
				e.Mode = ModeIdle
				continue
			}
			return

		case ModeMove:
			settled := s.updateMove(e, &movementLeft)
			if settled {
				continue
			}
			e.Animation.Advance()
			return

		case ModeMoveFinished:
			s.dispatchArrival(e)
			continue

		case ModeBuild:
			s.updateBuildWork(e)
			return

		case ModeRepair:
			s.updateRepairWork(e)
			return

		case ModeAttackWindup:
			s.updateAttackWindup(e)
			return

		case ModeAttackCooldown:
			if e.Timer > 0 {
				e.Timer--
			}
			if e.Timer == 0 {
				if s.canStrikeTarget(e) {
					s.beginAttackWindup(e)
					return
				}
				e.Mode = ModeIdle
				continue
			}
			e.Animation.Advance()
			return

		case ModeMineIn:
			s.updateMineIn(e)
			return

		case ModeFerry:
			return

		default:
			return
		}
	}
}

// tickUnitTimers runs the passive per-tick timers: damage flicker, bleed,
// energy and bunker health regen.
func (s *Simulation) tickUnitTimers(e *Entity) {
	if e.TakingDamageTimer > 0 {
		e.TakingDamageTimer--
		if e.TakingDamageTimer == 0 {
			e.Flags &^= FlagDamageFlicker
		}
	}

	if e.BleedTimer > 0 {
		e.BleedTimer--
		e.BleedAnimation.Advance()
		if e.BleedDamageTimer > 0 {
			e.BleedDamageTimer--
		}
		if e.BleedDamageTimer == 0 {
			e.BleedDamageTimer = BleedDamageInterval
			s.dealDamage(nil, e, 1)
		}
		if e.BleedTimer == 0 {
			e.BleedDamageTimer = 0
		}
	}
	if e.Health <= 0 {
		return
	}

	stats := Stats(e.Type)
	if e.Flags&FlagInvisible != 0 {
		if e.EnergyRegenTimer > 0 {
			e.EnergyRegenTimer--
		}
		if e.EnergyRegenTimer == 0 {
			e.EnergyRegenTimer = CamoEnergyDrainInterval
			if e.Energy > 0 {
				e.Energy--
			}
			if e.Energy == 0 {
				e.Flags &^= FlagInvisible
			}
		}
	} else if stats.MaxEnergy > 0 && e.Energy < stats.MaxEnergy {
		if e.EnergyRegenTimer > 0 {
			e.EnergyRegenTimer--
		}
		if e.EnergyRegenTimer == 0 {
			e.EnergyRegenTimer = EnergyRegenInterval
			e.Energy++
		}
	}

	// Units heal while garrisoned in a bunker.
	if e.GarrisonID != NoEntity && e.Health < stats.MaxHealth {
		if carrier := s.Pool.Get(e.GarrisonID); carrier != nil && carrier.Type == BuildingBunker {
			if e.HealthRegenTimer > 0 {
				e.HealthRegenTimer--
			}
			if e.HealthRegenTimer == 0 {
				e.HealthRegenTimer = HealthRegenInterval
				e.Health++
			}
		}
	}
}

// updateIdle decides what an idle unit does next. Returns true when the mode
// changed and the update loop should continue, false to settle for the tick.
func (s *Simulation) updateIdle(e *Entity) bool {
	if e.Target.Kind == TargetNone {
		if len(e.TargetQueue) > 0 {
			e.Target = e.TargetQueue[0]
			e.TargetQueue = e.TargetQueue[1:]
			return true
		}
		// Auto-engage: combat units fight back without orders unless holding
		// position was explicitly cleared of it.
		if Stats(e.Type).Range > 0 {
			if enemyID := s.findAutoTarget(e); enemyID != NoEntity {
				e.Target = targetOnEntity(TargetEntity, enemyID)
				return true
			}
		}
		return false
	}

	if !s.targetStillValid(e) {
		e.Target = emptyTarget()
		return false
	}
	if s.targetReached(e) {
		e.Mode = ModeMoveFinished
		return true
	}

	// Holding position: an auto-acquired enemy that slipped out of range is
	// dropped rather than chased. Player orders clear the flag on assignment.
	if e.Flags&FlagHoldPosition != 0 && e.Target.Kind == TargetEntity {
		e.Target = emptyTarget()
		return false
	}

	goal, allowBlockedGoal := s.targetGoalCell(e)
	path := s.Map.Pathfind(e.Cell, goal, Stats(e.Type).Size, allowBlockedGoal)
	if len(path) == 0 {
		e.PathfindAttempts++
		e.Timer = PathPauseDuration
		e.Mode = ModeMoveBlocked
		return false
	}
	e.PathfindAttempts = 0
	e.Path = path
	e.Mode = ModeMove
	e.Animation = NewAnimation(AnimMove, -1)
	return false
}

// findAutoTarget picks the closest visible enemy within sight. Ties break on
// ascending slot order, which every peer agrees on.
func (s *Simulation) findAutoTarget(e *Entity) EntityID {
	best := NoEntity
	bestDistance := 0
	sight := Stats(e.Type).Sight
	// A unit holding position only engages what it can hit from where it
	// stands; it never chases.
	if e.Flags&FlagHoldPosition != 0 {
		sight = Stats(e.Type).Range
	}
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		other := s.Pool.AtSlot(slot)
		if other == nil || !other.IsAlive() || other.GarrisonID != NoEntity {
			continue
		}
		if other.PlayerID >= config.MaxPlayers || other.PlayerID == e.PlayerID {
			continue
		}
		if other.Type == GoldMine || other.Type == LandMine {
			continue
		}
		if s.Players[e.PlayerID].Team == s.Players[other.PlayerID].Team {
			continue
		}
		if !s.canSeeEntity(e.PlayerID, other) {
			continue
		}
		distance := footprintDistance(e.Cell, 1, other.Cell, Stats(other.Type).Size)
		if distance > sight {
			continue
		}
		if best == NoEntity || distance < bestDistance {
			best = other.ID
			bestDistance = distance
		}
	}
	return best
}

// canSeeEntity applies fog and camouflage: an invisible enemy is targetable
// only inside detection coverage.
func (s *Simulation) canSeeEntity(player uint8, e *Entity) bool {
	size := Stats(e.Type).Size
	if !s.Map.IsRectVisible(int(player), e.Cell, size) {
		return false
	}
	if e.Flags&FlagInvisible != 0 && !s.Map.IsDetected(int(player), e.Cell) {
		return false
	}
	return true
}

// footprintDistance is the chebyshev gap between two square footprints; 0
// means overlapping, 1 means adjacent.
func footprintDistance(aCell grid.Point, aSize int, bCell grid.Point, bSize int) int {
	dx := rectAxisGap(aCell.X, aSize, bCell.X, bSize)
	dy := rectAxisGap(aCell.Y, aSize, bCell.Y, bSize)
	if dx > dy {
		return dx
	}
	return dy
}

func rectAxisGap(a, aSize, b, bSize int) int {
	if a+aSize <= b {
		return b - (a + aSize - 1)
	}
	if b+bSize <= a {
		return a - (b + bSize - 1)
	}
	return 0
}

// targetStillValid checks the references behind the current target. Stale or
// garrisoned targets invalidate the order; a worker garrisoned inside a
// building site redirects attackers to the site itself.
func (s *Simulation) targetStillValid(e *Entity) bool {
	switch e.Target.Kind {
	case TargetEntity, TargetRepair, TargetBuildAssist:
		target := s.Pool.Get(e.Target.ID)
		if target == nil || !target.IsAlive() {
			return false
		}
		if target.GarrisonID != NoEntity {
			carrier := s.Pool.Get(target.GarrisonID)
			if carrier != nil && carrier.Mode == ModeBuildingInProgress && target.PlayerID != e.PlayerID {
				e.Target = targetOnEntity(TargetEntity, carrier.ID)
				return true
			}
			return false
		}
		return true
	case TargetGold:
		mine := s.Pool.Get(e.Target.ID)
		return mine != nil && mine.GoldHeld > 0
	case TargetCamp:
		camp := s.Pool.Get(e.Target.ID)
		return camp != nil && camp.IsAlive() && camp.Mode == ModeBuildingFinished
	case TargetBuild:
		return Stats(e.Type).IsWorker
	}
	return true
}

// targetGoalCell maps the current target to the cell A* should aim for.
func (s *Simulation) targetGoalCell(e *Entity) (grid.Point, bool) {
	switch e.Target.Kind {
	case TargetCell, TargetAttackMove, TargetUnload, TargetPatrol:
		return e.Target.Cell, false
	case TargetMolotov:
		return e.Target.Cell, true
	case TargetEntity, TargetRepair, TargetGold, TargetCamp, TargetBuildAssist:
		if target := s.Pool.Get(e.Target.ID); target != nil {
			return target.Cell, true
		}
		return e.Cell, false
	case TargetBuild:
		return e.Target.UnitCell, true
	}
	return e.Cell, false
}

// targetReached reports whether the unit is close enough to dispatch its
// target.
func (s *Simulation) targetReached(e *Entity) bool {
	stats := Stats(e.Type)
	switch e.Target.Kind {
	case TargetCell, TargetAttackMove, TargetUnload, TargetPatrol:
		return e.Cell == e.Target.Cell
	case TargetMolotov:
		return e.Cell.ChebyshevDistanceTo(e.Target.Cell) <= MolotovRange
	case TargetBuild:
		return e.Cell == e.Target.UnitCell || e.Cell.ChebyshevDistanceTo(e.Target.UnitCell) <= 1
	case TargetEntity:
		target := s.Pool.Get(e.Target.ID)
		if target == nil {
			return true
		}
		distance := footprintDistance(e.Cell, stats.Size, target.Cell, Stats(target.Type).Size)
		if s.isEnemyOf(e, target) && stats.Range > 0 {
			return distance <= stats.Range
		}
		return distance <= 1
	case TargetRepair, TargetGold, TargetCamp, TargetBuildAssist:
		target := s.Pool.Get(e.Target.ID)
		if target == nil {
			return true
		}
		return footprintDistance(e.Cell, stats.Size, target.Cell, Stats(target.Type).Size) <= 1
	}
	return true
}

func (s *Simulation) isEnemyOf(e, other *Entity) bool {
	if other.PlayerID >= config.MaxPlayers || e.PlayerID >= config.MaxPlayers {
		return false
	}
	if e.PlayerID == other.PlayerID {
		return false
	}
	return s.Players[e.PlayerID].Team != s.Players[other.PlayerID].Team
}

// updateMove spends the tick's movement budget walking the path. Returns true
// when the mode changed and the outer loop should continue.
func (s *Simulation) updateMove(e *Entity, movementLeft *fixed.Fixed32) bool {
	stats := Stats(e.Type)
	for *movementLeft > 0 {
		center := CellCenter(e.Cell)
		if e.Position == center {
			// At a cell center: re-evaluate before committing to the next
			// step.
			if !s.targetStillValid(e) {
				e.Target = emptyTarget()
				e.Path = nil
				e.Mode = ModeIdle
				return true
			}
			if s.targetReached(e) {
				e.Path = nil
				e.Mode = ModeMoveFinished
				return true
			}
			// Attack-move: engage anything that wanders into sight, keeping
			// the original destination queued for after the fight.
			if e.Target.Kind == TargetAttackMove || e.Target.Kind == TargetPatrol {
				if enemyID := s.findAutoTarget(e); enemyID != NoEntity {
					e.TargetQueue = append([]Target{e.Target}, e.TargetQueue...)
					e.Target = targetOnEntity(TargetEntity, enemyID)
					e.Path = nil
					e.Mode = ModeIdle
					return true
				}
			}
			if len(e.Path) == 0 {
				e.Mode = ModeMoveFinished
				return true
			}

			next := e.Path[0]
			if s.isStepBlocked(e, next) {
				e.Path = nil
				e.Timer = PathPauseDuration
				e.Mode = ModeMoveBlocked
				return true
			}
			e.Path = e.Path[1:]
			s.clearCells(e)
			e.Direction = grid.DirectionTo(e.Cell, next)
			e.Cell = next
			s.Map.SetCellRect(e.Layer(), e.Cell, stats.Size, s.cellFor(e))
		}

		var used fixed.Fixed32
		e.Position, used = e.Position.StepToward(CellCenter(e.Cell), *movementLeft)
		*movementLeft -= used
		if used == 0 && e.Position != CellCenter(e.Cell) {
			// Numeric corner: snap rather than stall forever.
			e.Position = CellCenter(e.Cell)
		}
	}
	return false
}

// isStepBlocked checks the next footprint for anything that isn't this unit.
func (s *Simulation) isStepBlocked(e *Entity, next grid.Point) bool {
	size := Stats(e.Type).Size
	for y := next.Y; y < next.Y+size; y++ {
		for x := next.X; x < next.X+size; x++ {
			cell := s.Map.CellAt(e.Layer(), grid.Point{X: x, Y: y})
			if cell.Kind == grid.CellEmpty {
				continue
			}
			if (cell.Kind == grid.CellUnit || cell.Kind == grid.CellBuilding) && EntityID(cell.Value) == e.ID {
				continue
			}
			return true
		}
	}
	return false
}

// dispatchArrival runs the MoveFinished dispatch on the target union.
func (s *Simulation) dispatchArrival(e *Entity) {
	target := e.Target
	switch target.Kind {
	case TargetNone, TargetCell, TargetAttackMove:
		s.finishTarget(e)

	case TargetPatrol:
		// Swap legs and walk back; patrol never pops from the queue.
		e.Target.Cell, e.Target.CellB = e.Target.CellB, e.Target.Cell
		e.Mode = ModeIdle

	case TargetEntity:
		s.dispatchEntityTarget(e)

	case TargetRepair:
		s.dispatchRepair(e)

	case TargetBuild:
		s.dispatchBuild(e)

	case TargetBuildAssist:
		builder := s.Pool.Get(target.ID)
		if builder != nil && builder.Mode == ModeBuild && builder.Target.BuildID != NoEntity {
			e.Target = emptyTarget()
			e.Target.Kind = TargetRepair
			e.Target.ID = builder.Target.BuildID
			e.Mode = ModeIdle
			return
		}
		s.finishTarget(e)

	case TargetUnload:
		s.unloadAll(e)
		s.finishTarget(e)

	case TargetMolotov:
		s.throwMolotov(e)
		s.finishTarget(e)

	case TargetGold:
		s.dispatchGold(e)

	case TargetCamp:
		s.dispatchCamp(e)

	default:
		s.finishTarget(e)
	}
}

// finishTarget clears the current target and settles back to idle; the idle
// update pops the next queued command.
func (s *Simulation) finishTarget(e *Entity) {
	e.Target = emptyTarget()
	e.Path = nil
	e.Mode = ModeIdle
	e.Animation = NewAnimation(AnimIdle, -1)
}

func (s *Simulation) dispatchEntityTarget(e *Entity) {
	target := s.Pool.Get(e.Target.ID)
	if target == nil || !target.IsAlive() {
		s.finishTarget(e)
		return
	}

	if s.isEnemyOf(e, target) {
		if Stats(e.Type).Range == 0 {
			s.finishTarget(e)
			return
		}
		if s.canStrikeTarget(e) {
			s.beginAttackWindup(e)
			return
		}
		// Target slipped away between pathing and arrival: chase.
		e.Mode = ModeIdle
		return
	}

	// Friendly dispatch: garrison into carriers, repair damaged buildings,
	// dig into gold mines.
	switch {
	case Stats(target.Type).GarrisonCapacity > 0 && target.Mode != ModeBuildingInProgress:
		if len(target.GarrisonedUnits) < Stats(target.Type).GarrisonCapacity && e.Type != UnitWagon {
			s.garrison(e, target)
			return
		}
		s.emit(EventExitBlocked, e.PlayerID, target.ID, target.Cell)
		s.finishTarget(e)
	case target.IsBuilding() && Stats(e.Type).IsWorker && target.Health < Stats(target.Type).MaxHealth:
		e.Target.Kind = TargetRepair
		e.Mode = ModeIdle
	case target.Type == GoldMine && Stats(e.Type).IsWorker:
		e.Target = targetOnEntity(TargetGold, target.ID)
		e.Mode = ModeIdle
	default:
		s.finishTarget(e)
	}
}

func (s *Simulation) dispatchRepair(e *Entity) {
	target := s.Pool.Get(e.Target.ID)
	if target == nil || !target.IsAlive() || !target.IsBuilding() {
		s.finishTarget(e)
		return
	}
	if !Stats(e.Type).IsWorker || target.PlayerID != e.PlayerID {
		s.finishTarget(e)
		return
	}
	if target.Health >= Stats(target.Type).MaxHealth && target.Mode == ModeBuildingFinished {
		s.finishTarget(e)
		return
	}
	e.Mode = ModeRepair
	e.Timer = RepairTickDuration
	e.CooldownTimer = 0
	e.Direction = grid.DirectionTo(e.Cell, target.Cell)
}

// dispatchBuild tests the site and either starts construction or surfaces
// CANT_BUILD. The worker's own cell is cleared for the test because the
// worker may be standing inside the future footprint.
func (s *Simulation) dispatchBuild(e *Entity) {
	target := e.Target
	stats := Stats(target.BuildType)
	player := &s.Players[e.PlayerID]

	// Land mines plant instantly on the overlay layer; no site, no garrison.
	if target.BuildType == LandMine {
		if !player.HasUpgrade(UpgradeTNT) || s.Map.IsBlocked(grid.LayerMineOverlay, target.BuildCell) {
			s.emit(EventCantBuild, e.PlayerID, NoEntity, target.BuildCell)
			s.finishTarget(e)
			return
		}
		if player.Gold < stats.GoldCost {
			s.emit(EventNotEnoughGold, e.PlayerID, NoEntity, target.BuildCell)
			s.finishTarget(e)
			return
		}
		player.Gold -= stats.GoldCost
		s.spawnEntity(LandMine, e.PlayerID, target.BuildCell)
		s.finishTarget(e)
		return
	}

	s.clearCells(e)
	buildable := s.Map.RectInBounds(target.BuildCell, stats.Size) &&
		!s.Map.IsRectBlocked(grid.LayerGround, target.BuildCell, stats.Size) &&
		s.Map.IsRectExplored(int(e.PlayerID), target.BuildCell, stats.Size)
	if !buildable {
		s.Map.SetCellRect(e.Layer(), e.Cell, Stats(e.Type).Size, s.cellFor(e))
		s.emit(EventCantBuild, e.PlayerID, NoEntity, target.BuildCell)
		s.finishTarget(e)
		return
	}
	if player.Gold < stats.GoldCost {
		s.Map.SetCellRect(e.Layer(), e.Cell, Stats(e.Type).Size, s.cellFor(e))
		s.emit(EventNotEnoughGold, e.PlayerID, NoEntity, target.BuildCell)
		s.finishTarget(e)
		return
	}

	player.Gold -= stats.GoldCost
	buildingID := s.spawnEntity(target.BuildType, e.PlayerID, target.BuildCell)
	building := s.Pool.Get(buildingID)
	building.Mode = ModeBuildingInProgress
	building.Health = stats.MaxHealth / 10

	// The worker disappears into the site until construction completes.
	e.Target.BuildID = buildingID
	e.GarrisonID = buildingID
	building.GarrisonedUnits = append(building.GarrisonedUnits, e.ID)
	e.Mode = ModeBuild
	e.Timer = BuildTickDuration
	e.Path = nil
}

// updateBuildWork advances construction from inside the site.
func (s *Simulation) updateBuildWork(e *Entity) {
	building := s.Pool.Get(e.Target.BuildID)
	if building == nil || !building.IsAlive() {
		// Site destroyed under the builder; killEntity already ejected us if
		// it could, so just reset.
		if e.GarrisonID == NoEntity {
			s.finishTarget(e)
		}
		return
	}

	// A repairer outside may have topped the site off already.
	if building.Mode != ModeBuildingInProgress {
		s.exitBuildSite(e, building)
		return
	}

	if e.Timer > 0 {
		e.Timer--
	}
	if e.Timer > 0 {
		return
	}
	e.Timer = BuildTickDuration
	building.Health++
	if building.Health < Stats(building.Type).MaxHealth {
		return
	}

	building.Health = Stats(building.Type).MaxHealth
	building.Mode = ModeBuildingFinished
	s.Players[building.PlayerID].MaxPopulation += Stats(building.Type).PopulationGive
	s.emit(EventBuildingFinished, building.PlayerID, building.ID, building.Cell)
	s.exitBuildSite(e, building)
}

// exitBuildSite places the builder back on the grid next to its site.
func (s *Simulation) exitBuildSite(e *Entity, building *Entity) {
	building.removePassenger(e.ID)
	e.GarrisonID = NoEntity

	exit := s.Map.NearestFreeCellAround(building.Cell, Stats(building.Type).Size, Stats(e.Type).Size, QueueExitSearchRadius)
	if exit == nil {
		// Nowhere to stand; drop the worker on its recorded stand cell and
		// let collision sort itself out next path.
		fallback := e.Target.UnitCell
		exit = &fallback
	}
	e.Cell = *exit
	e.Position = CellCenter(*exit)
	s.Map.SetCellRect(e.Layer(), e.Cell, Stats(e.Type).Size, s.cellFor(e))
	s.finishTarget(e)
}

// updateRepairWork heals the building one point every RepairTickDuration
// ticks, charging RepairGoldPer gold once per RepairGoldStride points.
func (s *Simulation) updateRepairWork(e *Entity) {
	building := s.Pool.Get(e.Target.ID)
	if building == nil || !building.IsAlive() {
		s.finishTarget(e)
		return
	}
	stats := Stats(building.Type)
	if building.Health >= stats.MaxHealth {
		building.Health = stats.MaxHealth
		if building.Mode == ModeBuildingInProgress {
			building.Mode = ModeBuildingFinished
			s.Players[building.PlayerID].MaxPopulation += stats.PopulationGive
			s.emit(EventBuildingFinished, building.PlayerID, building.ID, building.Cell)
		}
		s.finishTarget(e)
		return
	}

	if e.Timer > 0 {
		e.Timer--
	}
	if e.Timer > 0 {
		return
	}
	e.Timer = RepairTickDuration

	player := &s.Players[e.PlayerID]
	if e.CooldownTimer == 0 {
		if player.Gold < RepairGoldPer {
			s.emit(EventNotEnoughGold, e.PlayerID, building.ID, building.Cell)
			s.finishTarget(e)
			return
		}
		player.Gold -= RepairGoldPer
	}
	e.CooldownTimer = (e.CooldownTimer + 1) % RepairGoldStride
	building.Health++
}

// canStrikeTarget reports whether the current entity target is alive, in
// range and visible enough to hit.
func (s *Simulation) canStrikeTarget(e *Entity) bool {
	target := s.Pool.Get(e.Target.ID)
	if target == nil || !target.IsAlive() || target.GarrisonID != NoEntity {
		return false
	}
	if !s.canSeeEntity(e.PlayerID, target) {
		return false
	}
	stats := Stats(e.Type)
	return footprintDistance(e.Cell, stats.Size, target.Cell, Stats(target.Type).Size) <= stats.Range
}

func (s *Simulation) beginAttackWindup(e *Entity) {
	target := s.Pool.Get(e.Target.ID)
	if target != nil {
		e.Direction = grid.DirectionTo(e.Cell, target.Cell)
	}
	e.Mode = ModeAttackWindup
	e.Animation = NewAnimation(AnimAttack, 1)
}

// updateAttackWindup plays the swing and lands the hit on the final frame.
func (s *Simulation) updateAttackWindup(e *Entity) {
	if e.Animation.Advance() {
		return
	}

	if s.canStrikeTarget(e) {
		target := s.Pool.Get(e.Target.ID)
		damage := s.attackDamage(e, target)
		if damage > 0 {
			// Bayonet wounds keep bleeding after the hit.
			if e.Type == UnitBandit && s.Players[e.PlayerID].HasUpgrade(UpgradeBayonets) && target.IsUnit() {
				target.BleedTimer = BleedDuration
				target.BleedDamageTimer = BleedDamageInterval
				target.BleedAnimation = NewAnimation(AnimBleed, -1)
			}
			s.dealDamage(e, target, damage)
		}
		// Firing breaks camouflage.
		e.Flags &^= FlagInvisible
	}

	cooldown := Stats(e.Type).AttackCooldown
	if e.Type == UnitCowboy && s.Players[e.PlayerID].HasUpgrade(UpgradeFanHammer) && cooldown > 10 {
		cooldown -= 10
	}
	e.Mode = ModeAttackCooldown
	e.Timer = cooldown
	e.Animation = NewAnimation(AnimIdle, -1)
}

// garrison tucks a passenger into a carrier: off the grid, mode Ferry.
func (s *Simulation) garrison(e *Entity, carrier *Entity) {
	s.clearCells(e)
	e.GarrisonID = carrier.ID
	carrier.GarrisonedUnits = append(carrier.GarrisonedUnits, e.ID)
	e.Mode = ModeFerry
	e.Target = emptyTarget()
	e.Path = nil
	e.HealthRegenTimer = HealthRegenInterval
}

// unloadAll places every passenger back on the grid around the carrier.
// Passengers that cannot be placed stay aboard and the player hears about it.
func (s *Simulation) unloadAll(e *Entity) {
	blocked := false
	remaining := e.GarrisonedUnits[:0]
	for _, passengerID := range e.GarrisonedUnits {
		passenger := s.Pool.Get(passengerID)
		if passenger == nil {
			continue
		}
		if !s.unloadOne(e, passenger) {
			remaining = append(remaining, passengerID)
			blocked = true
		}
	}
	e.GarrisonedUnits = remaining
	if blocked {
		s.emit(EventExitBlocked, e.PlayerID, e.ID, e.Cell)
	}
}

// unloadOne drops a single passenger at the nearest free cell around the
// carrier. Returns false when no cell has room.
func (s *Simulation) unloadOne(carrier, passenger *Entity) bool {
	exit := s.Map.NearestFreeCellAround(carrier.Cell, Stats(carrier.Type).Size, Stats(passenger.Type).Size, QueueExitSearchRadius)
	if exit == nil {
		return false
	}
	passenger.GarrisonID = NoEntity
	passenger.Cell = *exit
	passenger.Position = CellCenter(*exit)
	passenger.Mode = ModeIdle
	passenger.Animation = NewAnimation(AnimIdle, -1)
	s.Map.SetCellRect(passenger.Layer(), passenger.Cell, Stats(passenger.Type).Size, s.cellFor(passenger))
	return true
}

// throwMolotov lobs a fire projectile at the target cell.
func (s *Simulation) throwMolotov(e *Entity) {
	s.Projectiles = append(s.Projectiles, Projectile{
		Kind:     ProjectileMolotov,
		Player:   e.PlayerID,
		Position: e.Position,
		Target:   CellCenter(e.Target.Cell),
		Velocity: fixed.FromRaw(64),
	})
	e.Flags &^= FlagInvisible
}

// dispatchGold sends the miner underground.
func (s *Simulation) dispatchGold(e *Entity) {
	mine := s.Pool.Get(e.Target.ID)
	if mine == nil || mine.GoldHeld == 0 {
		s.finishTarget(e)
		return
	}
	// One miner in a shaft at a time.
	if len(mine.GarrisonedUnits) > 0 {
		// Wait at the entrance; retry via a short blocked pause.
		e.Timer = PathPauseDuration
		e.Mode = ModeMoveBlocked
		return
	}
	s.clearCells(e)
	e.GoldMineID = mine.ID
	e.GarrisonID = mine.ID
	mine.GarrisonedUnits = append(mine.GarrisonedUnits, e.ID)
	e.Mode = ModeMineIn
	e.Timer = MineDuration
}

// updateMineIn counts down the dig and resurfaces the miner with gold.
func (s *Simulation) updateMineIn(e *Entity) {
	if e.Timer > 0 {
		e.Timer--
	}
	if e.Timer > 0 {
		return
	}

	mine := s.Pool.Get(e.GoldMineID)
	var exitAround *Entity
	if mine != nil {
		exitAround = mine
	} else {
		exitAround = e
	}
	exit := s.Map.NearestFreeCellAround(exitAround.Cell, Stats(exitAround.Type).Size, Stats(e.Type).Size, QueueExitSearchRadius)
	if exit == nil {
		s.emit(EventExitBlocked, e.PlayerID, e.GoldMineID, exitAround.Cell)
		e.Timer = PathPauseDuration
		return
	}

	take := uint32(GoldCarryMax)
	if mine != nil {
		if mine.GoldHeld < take {
			take = mine.GoldHeld
		}
		mine.GoldHeld -= take
		mine.removePassenger(e.ID)
	}
	e.GoldHeld = take
	if take > 0 {
		e.Flags |= FlagGoldHeld
	}
	e.GoldMineID = NoEntity
	e.GarrisonID = NoEntity
	e.Cell = *exit
	e.Position = CellCenter(*exit)
	e.Mode = ModeIdle
	e.Animation = NewAnimation(AnimIdle, -1)
	s.Map.SetCellRect(e.Layer(), e.Cell, Stats(e.Type).Size, s.cellFor(e))

	if mine != nil && mine.GoldHeld == 0 {
		s.emit(EventMineCollapsed, e.PlayerID, mine.ID, mine.Cell)
		mine.Health = 0
		s.killEntity(mine)
	}

	// Haul the gold home.
	if campID := s.nearestCamp(e); campID != NoEntity {
		e.Target = targetOnEntity(TargetCamp, campID)
	} else {
		e.Target = emptyTarget()
	}
}

// dispatchCamp banks the held gold and heads back to the mine.
func (s *Simulation) dispatchCamp(e *Entity) {
	camp := s.Pool.Get(e.Target.ID)
	if camp == nil || !camp.IsAlive() {
		s.finishTarget(e)
		return
	}
	s.Players[e.PlayerID].Gold += e.GoldHeld
	e.GoldHeld = 0
	e.Flags &^= FlagGoldHeld

	if mineID := s.nearestGoldMine(e); mineID != NoEntity {
		e.Target = targetOnEntity(TargetGold, mineID)
		e.Mode = ModeIdle
		return
	}
	s.finishTarget(e)
}

// nearestCamp finds the closest finished camp owned by the unit's player.
func (s *Simulation) nearestCamp(e *Entity) EntityID {
	best := NoEntity
	bestDistance := 0
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		other := s.Pool.AtSlot(slot)
		if other == nil || other.Type != BuildingCamp || other.PlayerID != e.PlayerID {
			continue
		}
		if other.Mode != ModeBuildingFinished {
			continue
		}
		distance := footprintDistance(e.Cell, 1, other.Cell, Stats(other.Type).Size)
		if best == NoEntity || distance < bestDistance {
			best = other.ID
			bestDistance = distance
		}
	}
	return best
}

// nearestGoldMine finds the closest mine with gold left.
func (s *Simulation) nearestGoldMine(e *Entity) EntityID {
	best := NoEntity
	bestDistance := 0
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		other := s.Pool.AtSlot(slot)
		if other == nil || other.Type != GoldMine || other.GoldHeld == 0 {
			continue
		}
		distance := footprintDistance(e.Cell, 1, other.Cell, Stats(other.Type).Size)
		if best == NoEntity || distance < bestDistance {
			best = other.ID
			bestDistance = distance
		}
	}
	return best
}
