package sim

import (
	"frontier/internal/config"
	"frontier/internal/sim/grid"
)

// State checksum. At every turn boundary each peer folds its entire
// simulation state into a rolling Adler-32 and the engine compares the
// values; any divergence is a desync and ends the match. The emission order
// below is the canonical one — changing it is a protocol break.
//
// Adler-32 is cheap enough to run over the full state every turn and its
// rolling form means no intermediate buffer: fields stream straight into the
// two accumulators.

const adlerMod = 65521

type checksumWriter struct {
	a, b uint32
}

func newChecksumWriter() checksumWriter {
	return checksumWriter{a: 1, b: 0}
}

func (w *checksumWriter) sum() uint32 {
	return w.b<<16 | w.a
}

func (w *checksumWriter) bytes(data []byte) {
	for _, d := range data {
		w.a = (w.a + uint32(d)) % adlerMod
		w.b = (w.b + w.a) % adlerMod
	}
}

func (w *checksumWriter) u8(v uint8) {
	w.a = (w.a + uint32(v)) % adlerMod
	w.b = (w.b + w.a) % adlerMod
}

func (w *checksumWriter) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *checksumWriter) u32(v uint32) {
	w.u8(uint8(v))
	w.u8(uint8(v >> 8))
	w.u8(uint8(v >> 16))
	w.u8(uint8(v >> 24))
}

func (w *checksumWriter) i32(v int32) {
	w.u32(uint32(v))
}

func (w *checksumWriter) point(p grid.Point) {
	w.i32(int32(p.X))
	w.i32(int32(p.Y))
}

func (w *checksumWriter) animation(a Animation) {
	w.u32(a.Name)
	w.i32(a.Frame)
	w.u32(a.Timer)
	w.i32(a.LoopsRemaining)
}

func (w *checksumWriter) target(t Target) {
	w.u32(uint32(t.Kind))
	w.point(t.Cell)
	w.u32(uint32(t.ID))
	w.u32(uint32(t.BuildType))
	w.point(t.BuildCell)
	w.point(t.UnitCell)
	w.u32(uint32(t.BuildID))
	w.point(t.CellB)
}

// Checksum computes the canonical state hash of the whole simulation.
func (s *Simulation) Checksum() uint32 {
	w := newChecksumWriter()

	// RNG seed.
	w.i32(s.rng.State())

	// Map terrain and cells.
	w.i32(int32(s.Map.Width))
	w.i32(int32(s.Map.Height))
	w.u32(uint32(len(s.Map.Tiles)))
	for _, tile := range s.Map.Tiles {
		w.u8(uint8(tile.Elevation))
		w.boolean(tile.Water)
		w.boolean(tile.Decoration)
	}
	for layer := 0; layer < int(grid.LayerCount); layer++ {
		cells := s.Map.Cells[layer]
		w.u32(uint32(len(cells)))
		for _, cell := range cells {
			w.u8(uint8(cell.Kind))
			w.u32(cell.Value)
		}
	}

	// Pathing regions.
	w.i32(int32(s.Map.RegionCount))
	w.u32(uint32(len(s.Map.Regions)))
	for _, region := range s.Map.Regions {
		w.i32(region)
	}
	w.u32(uint32(len(s.Map.RegionConnections)))
	for _, connections := range s.Map.RegionConnections {
		w.u32(uint32(len(connections)))
		for _, c := range connections {
			w.i32(c)
		}
	}

	// Fog and detection, per player.
	for player := 0; player < config.MaxPlayers; player++ {
		fog := s.Map.Fog[player]
		w.u32(uint32(len(fog)))
		for _, f := range fog {
			w.u8(uint8(f))
		}
	}
	for player := 0; player < config.MaxPlayers; player++ {
		detection := s.Map.Detection[player]
		w.u32(uint32(len(detection)))
		for _, d := range detection {
			w.i32(d)
		}
	}

	// Remembered entities, sorted by id: map iteration order must never
	// reach the stream.
	for player := 0; player < config.MaxPlayers; player++ {
		remembered := s.Map.Remembered[player]
		w.u32(uint32(len(remembered)))
		keys := make([]uint32, 0, len(remembered))
		for id := range remembered {
			keys = append(keys, id)
		}
		sortU32(keys)
		for _, id := range keys {
			entry := remembered[id]
			w.u32(id)
			w.point(entry.Cell)
			w.i32(entry.Size)
			w.u32(entry.Type)
			w.i32(entry.FrameX)
			w.i32(entry.FrameY)
			w.boolean(entry.IsDestroyed)
		}
	}

	w.boolean(s.Map.FogDirty)

	// Entities in ascending slot order. Each entity's fields go out in the
	// fixed sequence below, which is not the Entity struct's declaration order.
	w.u32(uint32(s.Pool.Count()))
	for slot := 0; slot < s.Pool.SlotCount(); slot++ {
		e := s.Pool.AtSlot(slot)
		if e == nil {
			continue
		}
		w.u32(uint32(e.ID))
		w.u32(uint32(e.Type))
		w.u32(uint32(e.Mode))
		w.u8(e.PlayerID)
		w.u32(e.Flags)
		w.point(e.Cell)
		w.i32(e.Position.X.Raw())
		w.i32(e.Position.Y.Raw())
		w.u32(uint32(e.Direction))
		w.i32(e.Health)
		w.u32(e.Energy)
		w.u32(e.Timer)
		w.u32(e.EnergyRegenTimer)
		w.u32(e.HealthRegenTimer)
		w.animation(e.Animation)
		w.u32(uint32(len(e.GarrisonedUnits)))
		for _, id := range e.GarrisonedUnits {
			w.u32(uint32(id))
		}
		w.u32(uint32(e.GarrisonID))
		w.u32(uint32(e.GoldMineID))
		w.u32(e.GoldHeld)
		w.target(e.Target)
		w.u32(uint32(len(e.TargetQueue)))
		for _, t := range e.TargetQueue {
			w.target(t)
		}
		w.u32(uint32(len(e.Path)))
		for _, cell := range e.Path {
			w.point(cell)
		}
		w.u32(e.PathfindAttempts)
		w.u32(uint32(len(e.Queue)))
		for _, item := range e.Queue {
			w.u8(uint8(item.Kind))
			w.u32(item.Subtype)
			w.u32(item.Timer)
		}
		w.point(e.RallyPoint)
		w.u32(e.CooldownTimer)
		w.u32(e.TakingDamageTimer)
		w.u32(e.FireDamageTimer)
		w.u32(e.BleedTimer)
		w.u32(e.BleedDamageTimer)
		w.animation(e.BleedAnimation)
	}

	// Transients.
	for layer := 0; layer < ParticleLayerCount; layer++ {
		particles := s.Particles[layer]
		w.u32(uint32(len(particles)))
		for _, p := range particles {
			w.u32(p.Kind)
			w.point(p.Cell)
			w.u32(p.Timer)
		}
	}
	w.u32(uint32(len(s.Projectiles)))
	for _, p := range s.Projectiles {
		w.u32(uint32(p.Kind))
		w.u8(p.Player)
		w.i32(p.Position.X.Raw())
		w.i32(p.Position.Y.Raw())
		w.i32(p.Target.X.Raw())
		w.i32(p.Target.Y.Raw())
		w.i32(p.Velocity.Raw())
	}
	w.u32(uint32(len(s.Fires)))
	for _, f := range s.Fires {
		w.point(f.Cell)
		w.u32(f.Timer)
		w.u32(f.SpreadTimer)
	}
	w.u32(uint32(len(s.FireCells)))
	for _, c := range s.FireCells {
		w.i32(c)
	}
	w.u32(uint32(len(s.FogReveals)))
	for _, r := range s.FogReveals {
		w.i32(r.Player)
		w.point(r.Cell)
		w.i32(r.Radius)
		w.u32(r.Timer)
	}

	// Players.
	for player := 0; player < config.MaxPlayers; player++ {
		p := &s.Players[player]
		w.boolean(p.Active)
		var name [config.PlayerNameSize]byte
		copy(name[:], p.Name)
		w.bytes(name[:])
		w.u32(p.Team)
		w.i32(p.RecolorID)
		w.u32(p.Gold)
		w.u32(p.Upgrades)
		w.u32(p.Population)
		w.u32(p.MaxPopulation)
		w.boolean(p.HasSurrendered)
	}

	return w.sum()
}

// sortU32 is an insertion sort; remembered-entity key sets are small and
// this avoids pulling sort.Slice comparators into the hot path.
func sortU32(keys []uint32) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}
