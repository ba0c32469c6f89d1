package sim

import (
	"testing"

	"frontier/internal/sim/grid"
)

// TestChecksumIdenticalStates verifies two sims built from the same inputs
// hash identically — the whole premise of desync detection.
func TestChecksumIdenticalStates(t *testing.T) {
	a := newTestSim(t, 2)
	b := newTestSim(t, 2)

	if a.Checksum() != b.Checksum() {
		t.Fatal("freshly initialized identical sims disagree")
	}

	for tick := 0; tick < 120; tick++ {
		a.Step()
		b.Step()
		a.DrainEvents()
		b.DrainEvents()
		if ca, cb := a.Checksum(), b.Checksum(); ca != cb {
			t.Fatalf("tick %d: checksums diverged %08x != %08x", tick, ca, cb)
		}
	}
}

// TestChecksumSensitivity verifies single-field changes are visible
func TestChecksumSensitivity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Simulation)
	}{
		{"player gold", func(s *Simulation) { s.Players[0].Gold++ }},
		{"rng state", func(s *Simulation) { s.rng.Next() }},
		{"entity health", func(s *Simulation) {
			s.Pool.Each(func(e *Entity) { e.Health++ })
		}},
		{"upgrade bit", func(s *Simulation) { s.Players[1].Upgrades |= 1 << UpgradeTNT }},
		{"fog cell", func(s *Simulation) { s.Map.Fog[0][0] = 1 }},
		{"surrender flag", func(s *Simulation) { s.Players[0].HasSurrendered = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSim(t, 2)
			before := s.Checksum()
			tt.mutate(s)
			if s.Checksum() == before {
				t.Error("mutation invisible to the checksum")
			}
		})
	}
}

// TestChecksumRememberedOrderIndependence verifies the sorted-key emission:
// insertion order into the remembered map must not affect the hash.
func TestChecksumRememberedOrderIndependence(t *testing.T) {
	a := newTestSim(t, 2)
	b := newTestSim(t, 2)

	entries := []uint32{42, 7, 99, 13}
	for _, id := range entries {
		a.Map.RememberEntity(0, id, rememberedFor(id))
	}
	for i := len(entries) - 1; i >= 0; i-- {
		b.Map.RememberEntity(0, entries[i], rememberedFor(entries[i]))
	}

	if a.Checksum() != b.Checksum() {
		t.Error("remembered-entity insertion order leaked into the checksum")
	}
}

func rememberedFor(id uint32) grid.RememberedEntity {
	return grid.RememberedEntity{
		Cell: grid.Point{X: int(id % 16), Y: int(id / 16)},
		Size: 2,
		Type: id,
	}
}
