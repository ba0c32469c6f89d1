package sim

import (
	"frontier/internal/fixed"
	"frontier/internal/sim/grid"
)

// EntityID is an opaque handle into the EntityPool: generation in the high 16
// bits, slot index in the low 16. An id goes stale the moment its slot's
// generation advances; the pool validates on every lookup so consumers can
// hold ids across ticks without caring whether the entity is still alive.
type EntityID uint32

// NoEntity is the reserved "no entity" id.
const NoEntity EntityID = 0xffffffff

// Slot returns the pool slot index encoded in the id.
func (id EntityID) Slot() int {
	return int(id & 0xffff)
}

func (id EntityID) generation() uint16 {
	return uint16(id >> 16)
}

func makeEntityID(generation uint16, slot int) EntityID {
	return EntityID(uint32(generation)<<16 | uint32(slot)&0xffff)
}

// EntityType discriminates the entity variants. Units and buildings share the
// Entity record; the type drives the stats table and the per-mode behavior.
type EntityType uint32

const (
	UnitMiner EntityType = iota
	UnitCowboy
	UnitBandit
	UnitWagon
	UnitPyro
	UnitDetective
	UnitBalloon
	BuildingCamp
	BuildingHouse
	BuildingSaloon
	BuildingBunker
	GoldMine
	LandMine
	EntityTypeCount
)

// Mode is the entity state-machine state.
type Mode uint32

const (
	ModeIdle Mode = iota
	ModeMove
	ModeMoveBlocked
	ModeMoveFinished
	ModeBuild
	ModeRepair
	ModeAttackWindup
	ModeAttackCooldown
	ModeMineIn
	ModeDeath
	ModeDeathFade
	ModeFerry
	ModeBuildingInProgress
	ModeBuildingFinished
	ModeBuildingDestroyed
)

// Entity flags.
const (
	FlagHoldPosition uint32 = 1 << iota
	FlagInvisible
	FlagDamageFlicker
	FlagGoldHeld
	FlagOnFire
)

// Animation is the tiny deterministic animation record. It lives in the
// simulation (not the renderer) because several transitions key off
// "animation finished": attack impact lands on the wind-up's last frame and
// corpses are removed when the death fade ends. Integer counters only.
type Animation struct {
	Name           uint32
	Frame          int32
	Timer          uint32
	LoopsRemaining int32
}

// Animation names.
const (
	AnimIdle uint32 = iota
	AnimMove
	AnimAttack
	AnimDeath
	AnimDeathFade
	AnimBleed
)

// animFrameDuration is the per-frame tick count for simulation animations.
const animFrameDuration = 8

// animFrameCount gives the frame count per animation name.
var animFrameCount = [...]int32{
	AnimIdle:      1,
	AnimMove:      4,
	AnimAttack:    4,
	AnimDeath:     5,
	AnimDeathFade: 6,
	AnimBleed:     3,
}

// NewAnimation starts an animation with the given loop count (-1 loops
// forever).
func NewAnimation(name uint32, loops int32) Animation {
	return Animation{Name: name, Frame: 0, Timer: animFrameDuration, LoopsRemaining: loops}
}

// Advance steps the animation one tick. Returns true while the animation is
// still running; false once it has finished its last loop.
func (a *Animation) Advance() bool {
	if a.LoopsRemaining == 0 {
		return false
	}
	// Single-frame looping animations (idle poses) are static: ticking their
	// counters would churn the state checksum of a perfectly idle match.
	if a.LoopsRemaining < 0 && animFrameCount[a.Name] <= 1 {
		return true
	}
	if a.Timer > 0 {
		a.Timer--
	}
	if a.Timer > 0 {
		return true
	}
	a.Frame++
	if a.Frame >= animFrameCount[a.Name] {
		a.Frame = 0
		if a.LoopsRemaining > 0 {
			a.LoopsRemaining--
			if a.LoopsRemaining == 0 {
				return false
			}
		}
	}
	a.Timer = animFrameDuration
	return true
}

// IsFinished reports whether a finite animation has played out.
func (a *Animation) IsFinished() bool {
	return a.LoopsRemaining == 0
}

// OnLastFrame reports whether the animation currently shows its final frame.
func (a *Animation) OnLastFrame() bool {
	return a.Frame == animFrameCount[a.Name]-1
}

// QueueItemKind discriminates production queue entries.
type QueueItemKind uint8

const (
	QueueUnit QueueItemKind = iota
	QueueUpgrade
)

// QueueItem is one entry in a building's production queue.
type QueueItem struct {
	Kind    QueueItemKind
	Subtype uint32 // EntityType for units, upgrade bit index for upgrades
	Timer   uint32 // remaining ticks; counts down while unblocked
}

// Entity is the single record shared by units, buildings, gold mines and
// land mines. Cross-entity references are always EntityIDs, never pointers;
// the pool owns every record.
type Entity struct {
	ID       EntityID
	Type     EntityType
	PlayerID uint8
	Flags    uint32
	Mode     Mode

	Cell      grid.Point
	Position  fixed.Vec2 // sub-tile position, cell center while idle
	Direction grid.Direction

	Health int32
	Energy uint32

	Timer             uint32
	CooldownTimer     uint32
	TakingDamageTimer uint32
	FireDamageTimer   uint32
	BleedTimer        uint32
	BleedDamageTimer  uint32
	HealthRegenTimer  uint32
	EnergyRegenTimer  uint32
	PathfindAttempts  uint32

	Target      Target
	TargetQueue []Target
	Path        []grid.Point

	GarrisonedUnits []EntityID
	GarrisonID      EntityID
	GoldMineID      EntityID
	GoldHeld        uint32

	Queue      []QueueItem
	RallyPoint grid.Point

	Animation      Animation
	BleedAnimation Animation
}

// IsUnit reports whether the type is a mobile unit.
func (e *Entity) IsUnit() bool {
	return e.Type < BuildingCamp
}

// IsBuilding reports whether the type is a player building.
func (e *Entity) IsBuilding() bool {
	return e.Type >= BuildingCamp && e.Type <= BuildingBunker
}

// Layer returns the cell layer the entity occupies.
func (e *Entity) Layer() grid.Layer {
	switch {
	case e.Type == UnitBalloon:
		return grid.LayerSky
	case e.Type == LandMine:
		return grid.LayerMineOverlay
	case e.Mode == ModeMineIn:
		return grid.LayerUnderground
	default:
		return grid.LayerGround
	}
}

// IsAlive reports whether the entity still participates in the simulation.
func (e *Entity) IsAlive() bool {
	switch e.Mode {
	case ModeDeath, ModeDeathFade, ModeBuildingDestroyed:
		return false
	}
	return e.Health > 0 || e.Type == GoldMine
}

// IsSelectable reports whether a player input may reference this entity.
func (e *Entity) IsSelectable() bool {
	return e.IsAlive() && e.GarrisonID == NoEntity
}

// CenterPosition returns the fixed-point center of the entity footprint.
func (e *Entity) CenterPosition() fixed.Vec2 {
	size := Stats(e.Type).Size
	return fixed.V2(
		fixed.FromInt(e.Cell.X)+fixed.FromInt(size).Div(fixed.FromInt(2)),
		fixed.FromInt(e.Cell.Y)+fixed.FromInt(size).Div(fixed.FromInt(2)),
	)
}

// CellCenter returns the fixed-point position a unit rests at inside a cell.
func CellCenter(cell grid.Point) fixed.Vec2 {
	half := fixed.One / 2
	return fixed.V2(fixed.FromInt(cell.X)+half, fixed.FromInt(cell.Y)+half)
}
