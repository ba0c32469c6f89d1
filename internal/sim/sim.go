package sim

import (
	"frontier/internal/config"
	"frontier/internal/fixed"
	"frontier/internal/sim/grid"
)

// Player is the per-slot match player record.
type Player struct {
	Active         bool
	Name           string
	Team           uint32
	RecolorID      int32
	Gold           uint32
	Upgrades       uint32
	Population     uint32
	MaxPopulation  uint32
	HasSurrendered bool
}

// HasUpgrade reports whether the player researched the given upgrade bit.
func (p *Player) HasUpgrade(bit uint32) bool {
	return p.Upgrades&(1<<bit) != 0
}

// ParticleLayerCount separates ground particles from sky particles.
const ParticleLayerCount = 2

// Particle is a transient deterministic effect marker (dust, smoke). It is
// checksummed state because its lifetime consumes RNG draws on spawn.
type Particle struct {
	Kind  uint32
	Cell  grid.Point
	Timer uint32
}

// ProjectileKind discriminates in-flight payloads.
type ProjectileKind uint32

const (
	ProjectileMolotov ProjectileKind = iota
)

// Projectile travels from a source toward a target cell and applies its
// impact on arrival.
type Projectile struct {
	Kind     ProjectileKind
	Player   uint8
	Position fixed.Vec2
	Target   fixed.Vec2
	Velocity fixed.Fixed32 // cells per tick
}

// Fire burns at one cell, damaging any building footprint that overlaps it
// and occasionally spreading.
type Fire struct {
	Cell        grid.Point
	Timer       uint32
	SpreadTimer uint32
}

// Simulation is the single mutable aggregate of a match: map, entity pool,
// players, RNG and tick counter. All mutation happens inside Step, on one
// goroutine; the lockstep engine owns the instance and renderers read
// snapshots between ticks.
type Simulation struct {
	rng  RNG
	Tick uint32

	Map  *grid.Map
	Pool *EntityPool

	Players [config.MaxPlayers]Player

	Particles   [ParticleLayerCount][]Particle
	Projectiles []Projectile
	Fires       []Fire
	FireCells   []int32 // per-cell fire count, fire spread reads this
	FogReveals  []grid.FogReveal

	// UI-facing, not checksummed.
	events     []Event
	alertCells [config.MaxPlayers][]alertMark
	defeated   [config.MaxPlayers]bool
}

// spawnDirections places player starts in the map corners, in player order.
var spawnDirections = [config.MaxPlayers]grid.Direction{
	grid.DirNorthwest, grid.DirSoutheast, grid.DirNortheast, grid.DirSouthwest,
}

// New builds the initial match state from the shared seed, terrain and player
// table. Every peer calls this with identical arguments and must end up with
// an identical checksum before the first turn.
func New(seed int32, noise grid.Noise, players [config.MaxPlayers]Player) *Simulation {
	s := &Simulation{
		rng:     NewRNG(seed),
		Map:     grid.FromNoise(noise, config.MaxPlayers),
		Pool:    NewEntityPool(),
		Players: players,
	}
	s.FireCells = make([]int32, s.Map.Width*s.Map.Height)

	center := grid.Point{X: s.Map.Width / 2, Y: s.Map.Height / 2}
	spread := s.Map.Width/2 - 8
	if spread < 4 {
		spread = 4
	}

	for playerID := 0; playerID < config.MaxPlayers; playerID++ {
		if !s.Players[playerID].Active {
			continue
		}
		dir := grid.DirectionPoint[spawnDirections[playerID]]
		spawn := grid.Point{X: center.X + dir.X*spread, Y: center.Y + dir.Y*spread}
		spawn = s.findPlacement(spawn, Stats(BuildingCamp).Size)

		campID := s.spawnEntity(BuildingCamp, uint8(playerID), spawn)
		if camp := s.Pool.Get(campID); camp != nil {
			camp.Mode = ModeBuildingFinished
			camp.Health = Stats(BuildingCamp).MaxHealth
			s.Players[playerID].MaxPopulation += Stats(BuildingCamp).PopulationGive
		}

		for i := 0; i < 2; i++ {
			cell := s.Map.NearestFreeCell(grid.Point{X: spawn.X - 1, Y: spawn.Y + i}, 1, QueueExitSearchRadius)
			if cell != nil {
				s.spawnEntity(UnitMiner, uint8(playerID), *cell)
			}
		}

		// One gold mine per start, offset toward the map center.
		toCenter := grid.DirectionTo(spawn, center)
		mineCell := spawn.Add(grid.Point{
			X: grid.DirectionPoint[toCenter].X * 6,
			Y: grid.DirectionPoint[toCenter].Y * 6,
		})
		mineCell = s.findPlacement(mineCell, Stats(GoldMine).Size)
		mineID := s.spawnEntity(GoldMine, 0xff, mineCell)
		if mine := s.Pool.Get(mineID); mine != nil {
			mine.GoldHeld = 5000
		}

		s.Players[playerID].Gold = 300
	}

	return s
}

// RNGState exposes the seed for checksumming and debug surfaces.
func (s *Simulation) RNGState() int32 {
	return s.rng.State()
}

// findPlacement nudges a desired footprint origin until it fits on the map
// with every cell empty, scanning a deterministic spiral.
func (s *Simulation) findPlacement(cell grid.Point, size int) grid.Point {
	if cell.X < 0 {
		cell.X = 0
	}
	if cell.Y < 0 {
		cell.Y = 0
	}
	if cell.X+size > s.Map.Width {
		cell.X = s.Map.Width - size
	}
	if cell.Y+size > s.Map.Height {
		cell.Y = s.Map.Height - size
	}
	if !s.Map.IsRectBlocked(grid.LayerGround, cell, size) {
		return cell
	}
	if found := s.Map.NearestFreeCell(cell, size, s.Map.Width); found != nil {
		return *found
	}
	return cell
}

// spawnEntity creates an entity in its default mode and claims its cells.
func (s *Simulation) spawnEntity(entityType EntityType, playerID uint8, cell grid.Point) EntityID {
	stats := Stats(entityType)
	entity := Entity{
		Type:       entityType,
		PlayerID:   playerID,
		Cell:       cell,
		Position:   CellCenter(cell),
		Direction:  grid.DirSouth,
		Health:     stats.MaxHealth,
		Energy:     stats.MaxEnergy,
		Target:     emptyTarget(),
		GarrisonID: NoEntity,
		GoldMineID: NoEntity,
		RallyPoint: grid.Point{X: -1, Y: -1},
		Animation:  NewAnimation(AnimIdle, -1),
	}
	switch {
	case entity.IsBuilding():
		entity.Mode = ModeBuildingFinished
	default:
		entity.Mode = ModeIdle
	}

	id := s.Pool.Add(entity)
	stored := s.Pool.Get(id)
	s.Map.SetCellRect(stored.Layer(), cell, stats.Size, s.cellFor(stored))

	if entity.IsUnit() && playerID < config.MaxPlayers {
		s.Players[playerID].Population += stats.Population
	}
	return id
}

// cellFor returns the grid cell tag an entity stamps onto the map.
func (s *Simulation) cellFor(e *Entity) grid.Cell {
	kind := grid.CellUnit
	switch {
	case e.Type == GoldMine:
		kind = grid.CellGoldMine
	case e.IsBuilding():
		kind = grid.CellBuilding
	}
	return grid.Cell{Kind: kind, Value: uint32(e.ID)}
}

// clearCells releases an entity's footprint back to empty.
func (s *Simulation) clearCells(e *Entity) {
	s.Map.SetCellRect(e.Layer(), e.Cell, Stats(e.Type).Size, grid.Cell{Kind: grid.CellEmpty})
}

// Step advances the simulation exactly one tick. A tick always runs to
// completion; there are no suspension points inside it.
func (s *Simulation) Step() {
	s.Tick++

	s.fogPass()

	// Entities update in ascending slot order. Entities created during the
	// tick (trained units, placed buildings) occupy later slots or reused
	// earlier tombstones; either way every peer sees the same order because
	// the slab mutates identically everywhere.
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		entity := s.Pool.AtSlot(slot)
		if entity == nil {
			continue
		}
		switch {
		case entity.IsUnit():
			s.updateUnit(entity)
		case entity.IsBuilding():
			s.updateBuilding(entity)
		case entity.Type == LandMine:
			s.updateLandMine(entity)
		}
	}

	s.updateProjectiles()
	s.updateFires()
	s.updateParticles()
	s.reapCorpses()
	s.checkDefeats()
	s.pruneAlerts()
}

// fogPass recomputes vision and detection from scratch, then refreshes the
// ghost-building snapshots each player holds.
func (s *Simulation) fogPass() {
	s.Map.BeginFogPass()

	s.Pool.Each(func(e *Entity) {
		if !e.IsAlive() || e.GarrisonID != NoEntity || e.Mode == ModeMineIn {
			return
		}
		if e.PlayerID >= config.MaxPlayers {
			return
		}
		stats := Stats(e.Type)
		s.Map.RevealSight(int(e.PlayerID), e.Cell, stats.Size, stats.Sight)
		if stats.CanDetect {
			s.Map.RevealDetection(int(e.PlayerID), e.Cell, stats.Size, stats.Sight)
		}
	})

	// Temporary reveals (molotov impacts) tick down and drop off.
	n := 0
	for i := range s.FogReveals {
		reveal := &s.FogReveals[i]
		s.Map.RevealSight(int(reveal.Player), reveal.Cell, 1, int(reveal.Radius))
		reveal.Timer--
		if reveal.Timer > 0 {
			s.FogReveals[n] = *reveal
			n++
		}
	}
	s.FogReveals = s.FogReveals[:n]

	// Remembered enemy buildings: snapshot anything visible, forget anything
	// whose remembered cell is visible but vacated.
	for player := 0; player < config.MaxPlayers; player++ {
		if !s.Players[player].Active {
			continue
		}
		s.Pool.Each(func(e *Entity) {
			if !e.IsBuilding() && e.Type != GoldMine {
				return
			}
			if e.PlayerID == uint8(player) {
				return
			}
			size := Stats(e.Type).Size
			if s.Map.IsRectVisible(player, e.Cell, size) {
				s.Map.RememberEntity(player, uint32(e.ID), grid.RememberedEntity{
					Cell:        e.Cell,
					Size:        int32(size),
					Type:        uint32(e.Type),
					IsDestroyed: e.Mode == ModeBuildingDestroyed,
				})
			}
		})
		for id, remembered := range s.Map.Remembered[player] {
			if !s.Map.IsRectVisible(player, remembered.Cell, int(remembered.Size)) {
				continue
			}
			if entity := s.Pool.Get(EntityID(id)); entity == nil {
				s.Map.ForgetEntity(player, id)
			}
		}
	}
}

// dealDamage applies an attack from attacker (which may be nil for fires,
// bleed and mines) to defender, honoring armor and raising the defender's
// flicker and alert state.
func (s *Simulation) dealDamage(attacker *Entity, defender *Entity, damage int32) {
	if damage < 1 {
		damage = 1
	}
	defender.Health -= damage
	if defender.Health < 0 {
		defender.Health = 0
	}
	if defender.TakingDamageTimer == 0 && defender.PlayerID < config.MaxPlayers {
		s.emitUnderAttack(defender.PlayerID, defender.Cell)
	}
	defender.TakingDamageTimer = TakingDamageFlickerDuration
	defender.Flags |= FlagDamageFlicker

	if defender.Health == 0 {
		s.killEntity(defender)
	}
}

// attackDamage computes the attacker's damage against a defender, including
// upgrades and the elevation miss rule. The 50% miss on shots fired uphill is
// the only RNG draw in combat.
func (s *Simulation) attackDamage(attacker, defender *Entity) int32 {
	damage := Stats(attacker.Type).Damage
	player := &s.Players[attacker.PlayerID]
	if attacker.Type == UnitBandit && player.HasUpgrade(UpgradeBayonets) {
		damage += 1
	}
	damage -= Stats(defender.Type).Armor
	if damage < 1 {
		damage = 1
	}

	if s.elevationOf(attacker) < s.Map.Elevation(defender.Cell) {
		if s.rng.Next()%2 == 0 {
			damage = 0
		}
	}
	return damage
}

// elevationOf returns the attacker's effective elevation. A moving unit gets
// the higher of its current cell and the cell it is stepping from, so a shot
// fired while cresting a ridge doesn't count as uphill.
func (s *Simulation) elevationOf(e *Entity) int8 {
	elevation := s.Map.Elevation(e.Cell)
	if e.Mode == ModeMove {
		behind := e.Cell.Add(grid.Point{
			X: -grid.DirectionPoint[e.Direction].X,
			Y: -grid.DirectionPoint[e.Direction].Y,
		})
		if prev := s.Map.Elevation(behind); prev > elevation {
			elevation = prev
		}
	}
	return elevation
}

// killEntity transitions an entity into its death sequence.
func (s *Simulation) killEntity(e *Entity) {
	if e.PlayerID < config.MaxPlayers {
		stats := Stats(e.Type)
		if e.IsUnit() {
			if s.Players[e.PlayerID].Population >= stats.Population {
				s.Players[e.PlayerID].Population -= stats.Population
			}
		} else if e.IsBuilding() && e.Mode == ModeBuildingFinished {
			if s.Players[e.PlayerID].MaxPopulation >= stats.PopulationGive {
				s.Players[e.PlayerID].MaxPopulation -= stats.PopulationGive
			}
		}
	}

	// Refund nothing; clear intent so nothing re-dispatches on a corpse.
	e.Target = emptyTarget()
	e.TargetQueue = nil
	e.Path = nil

	// Passengers scramble out of a dying carrier or site. Anyone with no cell
	// to stand on — or caught underground in a collapsing mine — dies
	// silently, without a corpse.
	passengers := e.GarrisonedUnits
	e.GarrisonedUnits = nil
	for _, passengerID := range passengers {
		passenger := s.Pool.Get(passengerID)
		if passenger == nil {
			continue
		}
		if passenger.Mode != ModeMineIn && s.unloadOne(e, passenger) {
			passenger.Target = emptyTarget()
			passenger.TargetQueue = nil
			passenger.Path = nil
			continue
		}
		passenger.GarrisonID = NoEntity
		passenger.Health = 0
		s.Pool.Remove(passenger.ID)
	}

	if e.GarrisonID != NoEntity {
		// Dying while garrisoned: detach from the carrier and vanish.
		if carrier := s.Pool.Get(e.GarrisonID); carrier != nil {
			carrier.removePassenger(e.ID)
		}
		s.removeEntity(e)
		return
	}

	s.emit(EventEntityDied, e.PlayerID, e.ID, e.Cell)

	if e.IsBuilding() {
		e.Mode = ModeBuildingDestroyed
		e.Animation = NewAnimation(AnimDeath, 1)
		return
	}
	if e.Type == LandMine || e.Type == GoldMine {
		s.removeEntity(e)
		return
	}
	e.Mode = ModeDeath
	e.Animation = NewAnimation(AnimDeath, 1)
}

// removeEntity clears the entity's cells and frees its pool slot.
func (s *Simulation) removeEntity(e *Entity) {
	if e.GarrisonID == NoEntity && e.Mode != ModeMineIn {
		s.clearCells(e)
	}
	s.Pool.Remove(e.ID)
}

// removePassenger detaches one passenger id from a carrier's manifest.
func (e *Entity) removePassenger(id EntityID) {
	n := 0
	for _, passengerID := range e.GarrisonedUnits {
		if passengerID != id {
			e.GarrisonedUnits[n] = passengerID
			n++
		}
	}
	e.GarrisonedUnits = e.GarrisonedUnits[:n]
}

// reapCorpses advances death animations and removes entities whose fade has
// completed. Runs after the entity loop so a unit killed this tick still
// renders its first death frame.
func (s *Simulation) reapCorpses() {
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		entity := s.Pool.AtSlot(slot)
		if entity == nil {
			continue
		}
		switch entity.Mode {
		case ModeDeath:
			if !entity.Animation.Advance() {
				s.clearCells(entity)
				entity.Mode = ModeDeathFade
				entity.Animation = NewAnimation(AnimDeathFade, 1)
			}
		case ModeDeathFade:
			if !entity.Animation.Advance() {
				s.Pool.Remove(entity.ID)
			}
		case ModeBuildingDestroyed:
			if !entity.Animation.Advance() {
				s.clearCells(entity)
				s.Pool.Remove(entity.ID)
			}
		}
	}
}

// checkDefeats emits a one-shot defeat event for any player left with no
// living units or buildings.
func (s *Simulation) checkDefeats() {
	var alive [config.MaxPlayers]bool
	s.Pool.Each(func(e *Entity) {
		if e.PlayerID < config.MaxPlayers && e.IsAlive() && e.Type != GoldMine && e.Type != LandMine {
			alive[e.PlayerID] = true
		}
	})
	for player := 0; player < config.MaxPlayers; player++ {
		if !s.Players[player].Active || s.defeated[player] {
			continue
		}
		if !alive[player] || s.Players[player].HasSurrendered {
			s.defeated[player] = true
			s.emit(EventPlayerDefeated, uint8(player), NoEntity, grid.Point{})
		}
	}
}

// updateProjectiles advances each projectile and applies impacts on arrival.
func (s *Simulation) updateProjectiles() {
	n := 0
	for i := range s.Projectiles {
		proj := s.Projectiles[i]
		var used fixed.Fixed32
		proj.Position, used = proj.Position.StepToward(proj.Target, proj.Velocity)
		if used < proj.Velocity || proj.Position == proj.Target {
			s.projectileImpact(&proj)
			continue
		}
		s.Projectiles[n] = proj
		n++
	}
	s.Projectiles = s.Projectiles[:n]
}

func (s *Simulation) projectileImpact(proj *Projectile) {
	cell := grid.Point{X: proj.Target.X.Int(), Y: proj.Target.Y.Int()}
	switch proj.Kind {
	case ProjectileMolotov:
		for y := cell.Y - MolotovFireRadius; y <= cell.Y+MolotovFireRadius; y++ {
			for x := cell.X - MolotovFireRadius; x <= cell.X+MolotovFireRadius; x++ {
				s.igniteCell(grid.Point{X: x, Y: y})
			}
		}
		s.FogReveals = append(s.FogReveals, grid.FogReveal{
			Player: int32(proj.Player),
			Cell:   cell,
			Radius: MolotovFireRadius + 1,
			Timer:  FireDuration / 2,
		})
	}
}

// igniteCell starts a fire at a cell unless one already burns there.
func (s *Simulation) igniteCell(cell grid.Point) {
	if !s.Map.InBounds(cell) {
		return
	}
	if s.Map.Tiles[cell.X+cell.Y*s.Map.Width].Water {
		return
	}
	idx := cell.X + cell.Y*s.Map.Width
	if s.FireCells[idx] > 0 {
		return
	}
	s.FireCells[idx]++
	s.Fires = append(s.Fires, Fire{Cell: cell, Timer: FireDuration, SpreadTimer: FireSpreadInterval})
}

// updateFires burns buildings standing on fire cells and spreads fires at a
// bounded rate.
func (s *Simulation) updateFires() {
	// Damage pass: buildings take fire damage on an interval while any of
	// their footprint cells burn.
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		entity := s.Pool.AtSlot(slot)
		if entity == nil || !entity.IsBuilding() || !entity.IsAlive() {
			continue
		}
		burning := false
		size := Stats(entity.Type).Size
		for y := entity.Cell.Y; y < entity.Cell.Y+size && !burning; y++ {
			for x := entity.Cell.X; x < entity.Cell.X+size; x++ {
				if s.Map.InBounds(grid.Point{X: x, Y: y}) && s.FireCells[x+y*s.Map.Width] > 0 {
					burning = true
					break
				}
			}
		}
		if !burning {
			entity.Flags &^= FlagOnFire
			entity.FireDamageTimer = 0
			continue
		}
		entity.Flags |= FlagOnFire
		if entity.FireDamageTimer > 0 {
			entity.FireDamageTimer--
		}
		if entity.FireDamageTimer == 0 {
			entity.FireDamageTimer = FireDamageInterval
			s.dealDamage(nil, entity, 2)
		}
	}

	n := 0
	for i := range s.Fires {
		fire := s.Fires[i]
		fire.Timer--
		if fire.SpreadTimer > 0 {
			fire.SpreadTimer--
		}
		if fire.SpreadTimer == 0 {
			fire.SpreadTimer = FireSpreadInterval
			dir := grid.Direction(s.rng.Intn(int(grid.DirectionCount)))
			s.igniteCell(fire.Cell.Add(grid.DirectionPoint[dir]))
		}
		if fire.Timer == 0 {
			s.FireCells[fire.Cell.X+fire.Cell.Y*s.Map.Width]--
			continue
		}
		s.Fires[n] = fire
		n++
	}
	s.Fires = s.Fires[:n]
}

// updateParticles ages transient effect markers.
func (s *Simulation) updateParticles() {
	for layer := range s.Particles {
		n := 0
		for _, particle := range s.Particles[layer] {
			particle.Timer--
			if particle.Timer > 0 {
				s.Particles[layer][n] = particle
				n++
			}
		}
		s.Particles[layer] = s.Particles[layer][:n]
	}
}

// updateLandMine detonates when an enemy unit stands adjacent.
func (s *Simulation) updateLandMine(mine *Entity) {
	if mine.Health <= 0 {
		return
	}
	triggered := false
	for y := mine.Cell.Y - 1; y <= mine.Cell.Y+1 && !triggered; y++ {
		for x := mine.Cell.X - 1; x <= mine.Cell.X+1; x++ {
			id, ok := s.Map.EntityAt(grid.LayerGround, grid.Point{X: x, Y: y})
			if !ok {
				continue
			}
			entity := s.Pool.Get(EntityID(id))
			if entity != nil && entity.IsUnit() && entity.PlayerID != mine.PlayerID {
				triggered = true
				break
			}
		}
	}
	if !triggered {
		return
	}

	// Area damage at the mine's cell, then the mine is spent. Victims are
	// collected by slot order.
	blast := mine.Cell
	damage := Stats(LandMine).Damage
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		victim := s.Pool.AtSlot(slot)
		if victim == nil || victim.ID == mine.ID || !victim.IsAlive() {
			continue
		}
		if victim.Cell.ChebyshevDistanceTo(blast) <= 1 {
			s.dealDamage(mine, victim, damage-Stats(victim.Type).Armor)
		}
	}
	mine.Health = 0
	s.killEntity(mine)
}
