package sim

import "frontier/internal/fixed"

// EntityStats is the static balance sheet for an entity type. The table is a
// fixed array indexed by EntityType so lookups never touch a hash map on the
// tick path.
type EntityStats struct {
	Name string
	Size int // footprint is Size×Size cells

	MaxHealth int32
	MaxEnergy uint32
	Armor     int32
	Damage    int32
	Range     int // attack range in cells, chebyshev; 0 = cannot attack
	Sight     int // vision radius in cells, chebyshev

	Speed          fixed.Fixed32 // cells per tick
	AttackCooldown uint32        // ticks between wind-ups

	GoldCost       uint32
	TrainTicks     uint32 // production queue duration
	Population     uint32 // supply consumed (units)
	PopulationGive uint32 // supply provided (buildings)

	GarrisonCapacity int
	CanDetect        bool
	CanCamo          bool
	IsWorker         bool
}

// statsTable holds per-type stats. Speeds are expressed in 1/256 cells per
// tick: a miner at raw 20 crosses a tile in ~13 ticks.
var statsTable = [EntityTypeCount]EntityStats{
	UnitMiner: {
		Name: "miner", Size: 1, MaxHealth: 25, Damage: 2, Range: 1, Sight: 7,
		Speed: fixed.FromRaw(20), AttackCooldown: 40,
		GoldCost: 50, TrainTicks: 600, Population: 1, IsWorker: true,
	},
	UnitCowboy: {
		Name: "cowboy", Size: 1, MaxHealth: 40, Damage: 4, Range: 5, Sight: 8,
		Speed: fixed.FromRaw(22), AttackCooldown: 50,
		GoldCost: 75, TrainTicks: 800, Population: 1,
	},
	UnitBandit: {
		Name: "bandit", Size: 1, MaxHealth: 50, Damage: 6, Range: 1, Sight: 7,
		Speed: fixed.FromRaw(26), AttackCooldown: 35,
		GoldCost: 100, TrainTicks: 900, Population: 1,
	},
	UnitWagon: {
		Name: "wagon", Size: 2, MaxHealth: 120, Armor: 1, Sight: 9,
		Speed: fixed.FromRaw(32),
		GoldCost: 200, TrainTicks: 1200, Population: 2,
		GarrisonCapacity: 4,
	},
	UnitPyro: {
		Name: "pyro", Size: 1, MaxHealth: 35, Damage: 3, Range: 4, Sight: 7,
		Speed: fixed.FromRaw(22), AttackCooldown: 60,
		GoldCost: 150, TrainTicks: 1000, Population: 1,
	},
	UnitDetective: {
		Name: "detective", Size: 1, MaxHealth: 30, MaxEnergy: 100, Damage: 3, Range: 4, Sight: 9,
		Speed: fixed.FromRaw(24), AttackCooldown: 50,
		GoldCost: 125, TrainTicks: 1000, Population: 1,
		CanDetect: true, CanCamo: true,
	},
	UnitBalloon: {
		Name: "balloon", Size: 1, MaxHealth: 60, Sight: 11,
		Speed: fixed.FromRaw(18),
		GoldCost: 250, TrainTicks: 1400, Population: 1,
		CanDetect: true,
	},
	BuildingCamp: {
		Name: "camp", Size: 3, MaxHealth: 400, Armor: 1, Sight: 9,
		GoldCost: 400, PopulationGive: 10,
	},
	BuildingHouse: {
		Name: "house", Size: 2, MaxHealth: 100, Sight: 4,
		GoldCost: 100, PopulationGive: 4,
	},
	BuildingSaloon: {
		Name: "saloon", Size: 3, MaxHealth: 300, Armor: 1, Sight: 6,
		GoldCost: 300,
	},
	BuildingBunker: {
		Name: "bunker", Size: 2, MaxHealth: 150, Armor: 2, Sight: 8,
		GoldCost:         150,
		GarrisonCapacity: 4,
	},
	GoldMine: {
		Name: "goldmine", Size: 3, MaxHealth: 1, Sight: 0,
	},
	LandMine: {
		Name: "landmine", Size: 1, MaxHealth: 5, Damage: 30, Sight: 1,
		GoldCost: 40,
	},
}

// Stats returns the static data for an entity type.
func Stats(t EntityType) EntityStats {
	return statsTable[t]
}

// trainableAt reports which building produces a unit type.
func trainableAt(unit EntityType) EntityType {
	switch unit {
	case UnitMiner:
		return BuildingCamp
	default:
		return BuildingSaloon
	}
}

// buildableBy reports whether a unit may place the given structure. Workers
// raise buildings; pyros bury land mines once TNT is researched (checked at
// placement).
func buildableBy(builder, building EntityType) bool {
	if building == LandMine {
		return builder == UnitPyro
	}
	if !Stats(builder).IsWorker {
		return false
	}
	switch building {
	case BuildingCamp, BuildingHouse, BuildingSaloon, BuildingBunker:
		return true
	}
	return false
}

// Upgrade bit indices for the per-player upgrade bitset.
const (
	UpgradeTNT uint32 = iota
	UpgradeBayonets
	UpgradeFanHammer
	UpgradeCount
)

// upgradeCost returns the gold cost and research duration of an upgrade.
func upgradeCost(bit uint32) (gold uint32, ticks uint32) {
	switch bit {
	case UpgradeTNT:
		return 200, 1800
	case UpgradeBayonets:
		return 150, 1500
	case UpgradeFanHammer:
		return 175, 1500
	}
	return 0, 0
}

// Gameplay pacing constants.
const (
	// PathPauseDuration is how long a unit waits in MoveBlocked before
	// repathing.
	PathPauseDuration = 30

	// BuildTickDuration is the tick cost per point of construction health.
	BuildTickDuration = 4

	// MineDuration is how long a miner stays underground per dig.
	MineDuration = 90

	// GoldCarryMax caps the gold a miner holds per trip.
	GoldCarryMax = 10

	// RepairTickDuration is the tick cost per point of repaired health;
	// RepairGoldPer gold is charged once every RepairGoldStride points.
	RepairTickDuration = 3
	RepairGoldPer      = 1 // gold per 4 health repaired
	RepairGoldStride   = 4

	// TakingDamageFlickerDuration drives the damage flicker flag.
	TakingDamageFlickerDuration = 30

	// Bleed: damage every interval for the total duration.
	BleedDuration       = 300
	BleedDamageInterval = 30

	// Fire: building damage interval and spread cadence, and fire lifetime.
	FireDamageInterval = 20
	FireSpreadInterval = 120
	FireDuration       = 600

	// Energy.
	CamoEnergyDrainInterval = 10 // 1 energy per interval while invisible
	EnergyRegenInterval     = 20

	// HealthRegenInterval applies to units garrisoned in a bunker.
	HealthRegenInterval = 60

	// AlertRadius dedupes "under attack" alerts within this cell radius.
	AlertRadius = 12

	// QueueExitSearchRadius bounds the spiral search for a free spawn cell.
	QueueExitSearchRadius = 4

	// MolotovRange is the throw distance in cells; impact ignites every cell
	// within MolotovFireRadius of the target.
	MolotovRange      = 7
	MolotovFireRadius = 1
)
