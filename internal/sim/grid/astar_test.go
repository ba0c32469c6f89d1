package grid

import "testing"

// pathMap builds an open map and blocks the listed cells with terrain.
func pathMap(t *testing.T, width, height int, blocked []Point) *Map {
	t.Helper()
	m := NewMap(width, height, 1)
	for _, cell := range blocked {
		m.SetCell(LayerGround, cell, Cell{Kind: CellBlocked})
	}
	m.ComputeRegions()
	return m
}

// TestPathfindStraightLine verifies a trivial path on open ground
func TestPathfindStraightLine(t *testing.T) {
	m := pathMap(t, 16, 16, nil)

	path := m.Pathfind(Point{X: 2, Y: 2}, Point{X: 7, Y: 2}, 1, false)
	if len(path) != 5 {
		t.Fatalf("expected 5 steps, got %d: %v", len(path), path)
	}
	if path[len(path)-1] != (Point{X: 7, Y: 2}) {
		t.Errorf("path does not end at goal: %v", path)
	}
}

// TestPathfindStepProperty verifies consecutive cells always differ by
// exactly one 8-way step
func TestPathfindStepProperty(t *testing.T) {
	m := pathMap(t, 24, 24, []Point{
		{10, 8}, {10, 9}, {10, 10}, {10, 11}, {10, 12},
		{11, 8}, {12, 8},
	})

	tests := []struct {
		name     string
		from, to Point
	}{
		{"diagonal run", Point{2, 2}, Point{20, 21}},
		{"around obstacles", Point{5, 10}, Point{18, 10}},
		{"reverse", Point{20, 20}, Point{3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := m.Pathfind(tt.from, tt.to, 1, false)
			if len(path) == 0 {
				t.Fatal("no path found")
			}
			prev := tt.from
			for i, cell := range path {
				dx := absInt(cell.X - prev.X)
				dy := absInt(cell.Y - prev.Y)
				if dx > 1 || dy > 1 || (dx == 0 && dy == 0) {
					t.Fatalf("step %d is not a single 8-way move: %v -> %v", i, prev, cell)
				}
				prev = cell
			}
		})
	}
}

// TestPathfindNoDiagonalCracks verifies a diagonal step is never produced
// between two blocked orthogonal neighbors
func TestPathfindNoDiagonalCracks(t *testing.T) {
	// A wall along x=10 with a crack: (10,5) and (10,6) blocked, so the
	// diagonal (9,5)->(10,6)... every diagonal across the wall must be
	// rejected; the path has to go around the wall end.
	var wall []Point
	for y := 0; y < 12; y++ {
		wall = append(wall, Point{X: 10, Y: y})
	}
	m := pathMap(t, 24, 24, wall)

	path := m.Pathfind(Point{X: 8, Y: 5}, Point{X: 14, Y: 5}, 1, false)
	if len(path) == 0 {
		t.Fatal("no path found")
	}
	prev := Point{X: 8, Y: 5}
	for _, cell := range path {
		if absInt(cell.X-prev.X) == 1 && absInt(cell.Y-prev.Y) == 1 {
			// Diagonal step: both shared orthogonal neighbors must not be
			// simultaneously blocked.
			a := Point{X: prev.X, Y: cell.Y}
			b := Point{X: cell.X, Y: prev.Y}
			if m.IsBlocked(LayerGround, a) && m.IsBlocked(LayerGround, b) {
				t.Fatalf("diagonal crack produced: %v -> %v", prev, cell)
			}
		}
		prev = cell
	}
}

// TestPathfindThroughGap verifies the wall-with-one-gap scenario: the path
// must pass through the gap
func TestPathfindThroughGap(t *testing.T) {
	var wall []Point
	for y := 0; y < 20; y++ {
		if y == 9 {
			continue // the gap
		}
		wall = append(wall, Point{X: 10, Y: y})
	}
	m := pathMap(t, 20, 20, wall)

	path := m.Pathfind(Point{X: 4, Y: 9}, Point{X: 16, Y: 9}, 1, false)
	if len(path) == 0 {
		t.Fatal("no path found")
	}
	throughGap := false
	for _, cell := range path {
		if cell == (Point{X: 10, Y: 9}) {
			throughGap = true
		}
		if cell.X == 10 && cell.Y != 9 {
			t.Fatalf("path crosses the wall at %v", cell)
		}
	}
	if !throughGap {
		t.Error("path does not pass through the gap")
	}
}

// TestPathfindRegionReject verifies the region pre-check rejects unreachable
// goals without searching
func TestPathfindRegionReject(t *testing.T) {
	// A full wall with no gap separates the map into two regions.
	var wall []Point
	for y := 0; y < 20; y++ {
		wall = append(wall, Point{X: 10, Y: y})
	}
	m := pathMap(t, 20, 20, wall)

	if m.RegionOf(Point{X: 2, Y: 2}) == m.RegionOf(Point{X: 15, Y: 2}) {
		t.Fatal("wall did not split regions")
	}
	path := m.Pathfind(Point{X: 2, Y: 2}, Point{X: 15, Y: 2}, 1, false)
	if path != nil {
		t.Errorf("expected nil path across disconnected regions, got %v", path)
	}
}

// TestPathfindBlockedGoal verifies the allow-blocked-goal contract: the path
// stops one cell short of an occupied goal
func TestPathfindBlockedGoal(t *testing.T) {
	m := pathMap(t, 16, 16, nil)
	goal := Point{X: 8, Y: 8}
	m.SetCell(LayerGround, goal, Cell{Kind: CellBuilding, Value: 42})

	path := m.Pathfind(Point{X: 2, Y: 8}, goal, 1, true)
	if len(path) == 0 {
		t.Fatal("no path found")
	}
	last := path[len(path)-1]
	if last == goal {
		t.Errorf("path ends on the blocked goal")
	}
	if last.ChebyshevDistanceTo(goal) != 1 {
		t.Errorf("path ends at %v, not adjacent to goal", last)
	}
}

// TestPathfindClosestFallback verifies an unreachable goal inside the same
// region budget still yields progress toward it
func TestPathfindClosestFallback(t *testing.T) {
	// Box the goal in with buildings (not terrain): regions say reachable, the
	// search cannot finish, and the fallback should walk toward the box.
	var box []Point
	goal := Point{X: 10, Y: 10}
	for _, d := range DirectionPoint {
		box = append(box, goal.Add(d))
	}
	m := NewMap(20, 20, 1)
	for _, cell := range box {
		m.SetCell(LayerGround, cell, Cell{Kind: CellBuilding, Value: 7})
	}
	m.ComputeRegions()

	path := m.Pathfind(Point{X: 2, Y: 2}, goal, 1, false)
	if len(path) == 0 {
		t.Fatal("expected fallback progress, got empty path")
	}
	start := Point{X: 2, Y: 2}
	end := path[len(path)-1]
	if end.ManhattanDistanceTo(goal) >= start.ManhattanDistanceTo(goal) {
		t.Errorf("fallback path does not approach the goal: ends at %v", end)
	}
}

// TestPathfindDeterminism verifies identical calls give identical paths
func TestPathfindDeterminism(t *testing.T) {
	m := pathMap(t, 32, 32, []Point{
		{8, 8}, {9, 8}, {10, 8}, {8, 9}, {15, 15}, {16, 15}, {14, 16},
	})

	first := m.Pathfind(Point{X: 1, Y: 1}, Point{X: 30, Y: 29}, 1, false)
	for i := 0; i < 5; i++ {
		again := m.Pathfind(Point{X: 1, Y: 1}, Point{X: 30, Y: 29}, 1, false)
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d != %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d: step %d differs", i, j)
			}
		}
	}
}
