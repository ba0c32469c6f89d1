package grid

import "frontier/internal/fixed"

// maxExpandedNodes bounds the per-call cost of Pathfind. When the budget runs
// out the search degrades to "walk toward the closest explored cell", which
// keeps a wall of units from stalling a tick.
const maxExpandedNodes = 2048

// farUnitDistance is the manhattan distance beyond which a unit-occupied cell
// is treated as passable: the blocker will likely have moved by the time the
// path gets there, and repathing handles it if not.
const farUnitDistance = 3

type pathNode struct {
	cost     fixed.Fixed32
	distance fixed.Fixed32
	// parent is an index into the explored list, or -1 for the start node.
	parent int
	cell   Point
}

func (n pathNode) score() fixed.Fixed32 {
	return n.cost + n.distance
}

// Pathfind runs A* from one cell to another for a size×size footprint and
// returns the cell sequence excluding the start, or nil when no progress at
// all is possible. Orthogonal steps cost 1, diagonals 3/2, both in
// fixed-point; the heuristic is the manhattan distance in the same type so
// cost comparisons never mix numeric domains.
//
// If the full path cannot be found (or the node budget is exhausted) the
// path to the closest explored cell is returned instead, so the unit still
// makes progress. If allowBlockedGoal is set, a blocked goal cell is treated
// as reachable from its neighbors and the returned path stops one cell short.
func (m *Map) Pathfind(from, to Point, size int, allowBlockedGoal bool) []Point {
	if from == to {
		return nil
	}
	if !m.InBounds(to) {
		return nil
	}

	// Region pre-check: if the goal is in a different region and the regions
	// are not connected, a full search would only flood the map.
	if !allowBlockedGoal && !m.RegionsConnected(from, to) {
		return nil
	}

	// The frontier stays small in practice, so a linear min-scan beats the
	// bookkeeping of a heap and keeps tie-breaking order explicit.
	frontier := make([]pathNode, 0, 64)
	explored := make([]pathNode, 0, 256)
	exploredIndex := make([]int32, m.Width*m.Height)
	for i := range exploredIndex {
		exploredIndex[i] = -1
	}
	closestExplored := 0
	foundPath := false
	var pathEnd pathNode

	frontier = append(frontier, pathNode{
		cost:     0,
		distance: fixed.FromInt(from.ManhattanDistanceTo(to)),
		parent:   -1,
		cell:     from,
	})

	// Orthogonals first within each expansion so the crack rule below can use
	// their blocked state when the diagonals are considered.
	childOrder := [DirectionCount]Direction{
		DirNorth, DirEast, DirSouth, DirWest,
		DirNortheast, DirSoutheast, DirSouthwest, DirNorthwest,
	}

	for len(frontier) > 0 {
		smallestIndex := 0
		for i := 1; i < len(frontier); i++ {
			if frontier[i].score() < frontier[smallestIndex].score() {
				smallestIndex = i
			}
		}
		smallest := frontier[smallestIndex]
		frontier = append(frontier[:smallestIndex], frontier[smallestIndex+1:]...)

		if smallest.cell == to {
			foundPath = true
			pathEnd = smallest
			break
		}

		explored = append(explored, smallest)
		exploredIndex[m.index(smallest.cell)] = int32(len(explored) - 1)
		if explored[len(explored)-1].distance < explored[closestExplored].distance {
			closestExplored = len(explored) - 1
		}
		if len(explored) >= maxExpandedNodes {
			break
		}

		orthogonalBlocked := [4]bool{true, true, true, true}
		for _, direction := range childOrder {
			var costIncrease fixed.Fixed32
			if direction%2 == 0 {
				costIncrease = fixed.FromInt(1)
			} else {
				costIncrease = fixed.FromInt(3).Div(fixed.FromInt(2))
			}
			child := pathNode{
				cost:     smallest.cost + costIncrease,
				distance: 0,
				parent:   len(explored) - 1,
				cell:     smallest.cell.Add(DirectionPoint[direction]),
			}
			child.distance = fixed.FromInt(child.cell.ManhattanDistanceTo(to))

			if !m.RectInBounds(child.cell, size) {
				continue
			}
			// A cell is steppable when its footprint is empty, when the only
			// blockers are units far from the start, or when it is the goal
			// itself sitting adjacent (lets a blocked goal terminate the
			// search instead of forcing a worst-case flood).
			if !m.isFootprintSteppable(from, child.cell, size, to, smallest.cell, allowBlockedGoal) {
				continue
			}
			// Diagonal cracks: a diagonal step requires at least one of its
			// two adjacent orthogonals to be open.
			if direction%2 == 0 {
				orthogonalBlocked[direction/2] = false
			} else {
				next := direction + 1
				if next == DirectionCount {
					next = 0
				}
				prev := direction - 1
				if orthogonalBlocked[next/2] && orthogonalBlocked[prev/2] {
					continue
				}
			}
			if exploredIndex[m.index(child.cell)] != -1 {
				continue
			}

			inFrontier := false
			for i := range frontier {
				if frontier[i].cell == child.cell {
					inFrontier = true
					if child.score() < frontier[i].score() {
						frontier[i] = child
					}
					break
				}
			}
			if !inFrontier {
				frontier = append(frontier, child)
			}
		}
	}

	var current pathNode
	if foundPath {
		current = pathEnd
	} else {
		if len(explored) == 0 {
			return nil
		}
		current = explored[closestExplored]
	}

	// Backtrack, then reverse: parents chain back to the start node.
	reversed := make([]Point, 0, current.cost.Int()+1)
	for current.parent != -1 {
		reversed = append(reversed, current.cell)
		current = explored[current.parent]
	}
	path := make([]Point, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}

	// The search may step onto a blocked goal; the unit paths as close as
	// it can and stops one cell short.
	if len(path) > 0 && path[len(path)-1] == to && m.IsRectBlocked(LayerGround, to, size) {
		path = path[:len(path)-1]
	}
	return path
}

// isFootprintSteppable applies the per-cell admission rules over a size×size
// footprint anchored at cell.
func (m *Map) isFootprintSteppable(from, cell Point, size int, goal, prev Point, allowBlockedGoal bool) bool {
	for y := cell.Y; y < cell.Y+size; y++ {
		for x := cell.X; x < cell.X+size; x++ {
			p := Point{X: x, Y: y}
			c := m.CellAt(LayerGround, p)
			if c.Kind == CellEmpty {
				continue
			}
			if c.Kind == CellUnit && from.ManhattanDistanceTo(p) > farUnitDistance {
				continue
			}
			if cell == goal && prev.ManhattanDistanceTo(cell) == 1 {
				// Goal admission: allowed when the goal is merely occupied,
				// never through terrain a unit could not stand next to.
				if allowBlockedGoal || c.Kind == CellUnit || c.Kind == CellBuilding || c.Kind == CellGoldMine {
					continue
				}
			}
			return false
		}
	}
	return true
}
