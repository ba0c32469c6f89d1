package grid

// ComputeRegions labels the connected components of terrain-passable ground
// cells. Region ids are assigned in row-major discovery order so the labeling
// itself is deterministic and checksummable. Cells blocked by terrain carry
// region -1; cells blocked only by entities keep the region of the ground
// under them (the entity can move or die).
//
// The connection lists exist for map types whose generator carves passages
// between components (ferry crossings); the generator records those pairs
// here. Components with no recorded pair are mutually unreachable and the
// pathfinder rejects routes between them without searching.
func (m *Map) ComputeRegions() {
	m.Regions = make([]int32, m.Width*m.Height)
	for i := range m.Regions {
		m.Regions[i] = -1
	}
	m.RegionCount = 0

	// Iterative flood fill; recursion depth on a 256x256 map would be unkind.
	stack := make([]Point, 0, 256)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			start := Point{X: x, Y: y}
			idx := m.index(start)
			if m.Regions[idx] != -1 || !m.isTerrainPassable(start) {
				continue
			}

			region := int32(m.RegionCount)
			m.RegionCount++
			stack = append(stack[:0], start)
			m.Regions[idx] = region
			for len(stack) > 0 {
				cell := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for d := Direction(0); d < DirectionCount; d += 2 {
					next := cell.Add(DirectionPoint[d])
					if !m.InBounds(next) || !m.isTerrainPassable(next) {
						continue
					}
					nextIdx := m.index(next)
					if m.Regions[nextIdx] == -1 {
						m.Regions[nextIdx] = region
						stack = append(stack, next)
					}
				}
			}
		}
	}

	m.RegionConnections = make([][]int32, m.RegionCount)
	for i := range m.RegionConnections {
		m.RegionConnections[i] = []int32{}
	}
}

// isTerrainPassable ignores entities: only water, cliffs and decorations make
// a cell impassable at the region level.
func (m *Map) isTerrainPassable(cell Point) bool {
	switch m.CellAt(LayerGround, cell).Kind {
	case CellBlocked, CellUnreachable, CellDecoration:
		return false
	}
	return true
}

// RegionOf returns the pathing region of a cell, or -1 for terrain-blocked
// cells.
func (m *Map) RegionOf(cell Point) int32 {
	if !m.InBounds(cell) {
		return -1
	}
	return m.Regions[m.index(cell)]
}

// ConnectRegions records a two-way passage between regions.
func (m *Map) ConnectRegions(a, b int32) {
	if a == b || a < 0 || b < 0 || int(a) >= m.RegionCount || int(b) >= m.RegionCount {
		return
	}
	m.RegionConnections[a] = appendRegion(m.RegionConnections[a], b)
	m.RegionConnections[b] = appendRegion(m.RegionConnections[b], a)
}

// appendRegion inserts in sorted order without duplicates, keeping the
// connection lists canonical for the checksum.
func appendRegion(list []int32, region int32) []int32 {
	for i, r := range list {
		if r == region {
			return list
		}
		if r > region {
			list = append(list, 0)
			copy(list[i+1:], list[i:])
			list[i] = region
			return list
		}
	}
	return append(list, region)
}

// RegionsConnected reports whether a route between two cells is admissible.
// Cells with no region (terrain-blocked goals, e.g. a repair target standing
// in water shallows) fall through to the full search.
func (m *Map) RegionsConnected(from, to Point) bool {
	a := m.RegionOf(from)
	b := m.RegionOf(to)
	if a == -1 || b == -1 {
		return true
	}
	if a == b {
		return true
	}
	for _, r := range m.RegionConnections[a] {
		if r == b {
			return true
		}
	}
	return false
}
