package grid

import "testing"

// TestFogRevealAndDemote verifies the visible -> explored -> never hidden
// lifecycle
func TestFogRevealAndDemote(t *testing.T) {
	m := NewMap(16, 16, 2)

	center := Point{X: 8, Y: 8}
	m.BeginFogPass()
	m.RevealSight(0, center, 1, 3)

	if got := m.FogAt(0, center); got != FogVisible {
		t.Fatalf("revealed cell is %v, want visible", got)
	}
	if got := m.FogAt(0, Point{X: 8 + 3, Y: 8}); got != FogVisible {
		t.Errorf("cell at sight radius is %v, want visible", got)
	}
	if got := m.FogAt(0, Point{X: 8 + 4, Y: 8}); got != FogHidden {
		t.Errorf("cell beyond sight radius is %v, want hidden", got)
	}
	// The other player saw nothing.
	if got := m.FogAt(1, center); got != FogHidden {
		t.Errorf("other player's fog is %v, want hidden", got)
	}

	// Next pass with no reveal: visible demotes to explored, never hidden.
	m.BeginFogPass()
	if got := m.FogAt(0, center); got != FogExplored {
		t.Errorf("after losing vision cell is %v, want explored", got)
	}
}

// TestFogMonotonicity verifies no cell ever returns to hidden across many
// reveal cycles
func TestFogMonotonicity(t *testing.T) {
	m := NewMap(24, 24, 1)

	seen := make([]bool, 24*24)
	positions := []Point{{3, 3}, {10, 5}, {20, 20}, {4, 18}, {12, 12}}

	for cycle := 0; cycle < 50; cycle++ {
		m.BeginFogPass()
		m.RevealSight(0, positions[cycle%len(positions)], 1, 4)

		for y := 0; y < 24; y++ {
			for x := 0; x < 24; x++ {
				state := m.FogAt(0, Point{X: x, Y: y})
				idx := x + y*24
				if seen[idx] && state == FogHidden {
					t.Fatalf("cycle %d: cell (%d,%d) returned to hidden", cycle, x, y)
				}
				if state != FogHidden {
					seen[idx] = true
				}
			}
		}
	}
}

// TestDetection verifies detection counters reset each pass and stack
func TestDetection(t *testing.T) {
	m := NewMap(16, 16, 1)
	cell := Point{X: 5, Y: 5}

	m.BeginFogPass()
	m.RevealDetection(0, cell, 1, 2)
	m.RevealDetection(0, cell, 1, 2)
	if !m.IsDetected(0, cell) {
		t.Fatal("cell should be detected")
	}
	if m.Detection[0][cell.X+cell.Y*16] != 2 {
		t.Errorf("detection counter = %d, want 2", m.Detection[0][cell.X+cell.Y*16])
	}

	m.BeginFogPass()
	if m.IsDetected(0, cell) {
		t.Error("detection should reset at pass start")
	}
}

// TestRememberedEntities verifies snapshot and forget round trips
func TestRememberedEntities(t *testing.T) {
	m := NewMap(16, 16, 2)

	snapshot := RememberedEntity{Cell: Point{X: 3, Y: 4}, Size: 2, Type: 9}
	m.RememberEntity(0, 77, snapshot)

	if got, ok := m.Remembered[0][77]; !ok || got.Cell != snapshot.Cell {
		t.Fatalf("remembered entry missing or wrong: %+v", got)
	}
	if _, ok := m.Remembered[1][77]; ok {
		t.Error("snapshot leaked to another player")
	}

	m.ForgetEntity(0, 77)
	if _, ok := m.Remembered[0][77]; ok {
		t.Error("entry survived ForgetEntity")
	}
}
