package grid

// FogState is a per-player, per-cell vision label.
type FogState uint8

const (
	// FogHidden cells have never been seen.
	FogHidden FogState = iota
	// FogExplored cells were seen at least once. Once a cell is explored it
	// never returns to hidden; renderers draw remembered terrain here.
	FogExplored
	// FogVisible cells are inside some friendly entity's sight radius right
	// now.
	FogVisible
)

// RememberedEntity is the snapshot a player keeps of an enemy building that
// slipped back under fog. The simulation writes these and never reads them
// back; they exist so a renderer can draw ghosts.
type RememberedEntity struct {
	Cell        Point
	Size        int32
	Type        uint32
	FrameX      int32 // sprite frame params captured at observation time
	FrameY      int32
	IsDestroyed bool
}

// FogReveal is a temporary vision grant, e.g. around a projectile impact.
type FogReveal struct {
	Player int32
	Cell   Point
	Radius int32
	Timer  uint32
}

func (m *Map) initFog(playerCount int) {
	m.Fog = make([][]FogState, playerCount)
	m.Detection = make([][]int32, playerCount)
	m.Remembered = make([]map[uint32]RememberedEntity, playerCount)
	for p := 0; p < playerCount; p++ {
		m.Fog[p] = make([]FogState, m.Width*m.Height)
		m.Detection[p] = make([]int32, m.Width*m.Height)
		m.Remembered[p] = make(map[uint32]RememberedEntity)
	}
	m.FogDirty = true
}

// PlayerCount returns the number of fog layers.
func (m *Map) PlayerCount() int {
	return m.playerCount
}

// BeginFogPass demotes every visible cell to explored and clears detection
// counters. The simulation calls this at the top of each tick, then re-reveals
// from every living entity; cells that lost their source stay explored.
func (m *Map) BeginFogPass() {
	for p := range m.Fog {
		fog := m.Fog[p]
		for i := range fog {
			if fog[i] == FogVisible {
				fog[i] = FogExplored
			}
		}
		detection := m.Detection[p]
		for i := range detection {
			detection[i] = 0
		}
	}
}

// RevealSight marks every cell within a chebyshev radius of the footprint as
// visible for the player.
func (m *Map) RevealSight(player int, cell Point, size, radius int) {
	if player < 0 || player >= len(m.Fog) {
		return
	}
	fog := m.Fog[player]
	for y := cell.Y - radius; y < cell.Y+size+radius; y++ {
		for x := cell.X - radius; x < cell.X+size+radius; x++ {
			p := Point{X: x, Y: y}
			if m.InBounds(p) {
				fog[m.index(p)] = FogVisible
			}
		}
	}
	m.FogDirty = true
}

// RevealDetection bumps the detection counter around a detector entity.
// Invisible enemies inside a detected cell are treated as visible.
func (m *Map) RevealDetection(player int, cell Point, size, radius int) {
	if player < 0 || player >= len(m.Detection) {
		return
	}
	detection := m.Detection[player]
	for y := cell.Y - radius; y < cell.Y+size+radius; y++ {
		for x := cell.X - radius; x < cell.X+size+radius; x++ {
			p := Point{X: x, Y: y}
			if m.InBounds(p) {
				detection[m.index(p)]++
			}
		}
	}
}

// FogAt returns the fog state of a cell for a player.
func (m *Map) FogAt(player int, cell Point) FogState {
	if player < 0 || player >= len(m.Fog) || !m.InBounds(cell) {
		return FogHidden
	}
	return m.Fog[player][m.index(cell)]
}

// IsDetected reports whether invisible entities at a cell are revealed to the
// player.
func (m *Map) IsDetected(player int, cell Point) bool {
	if player < 0 || player >= len(m.Detection) || !m.InBounds(cell) {
		return false
	}
	return m.Detection[player][m.index(cell)] > 0
}

// IsRectVisible reports whether any cell of a footprint is currently visible
// to the player.
func (m *Map) IsRectVisible(player int, cell Point, size int) bool {
	for y := cell.Y; y < cell.Y+size; y++ {
		for x := cell.X; x < cell.X+size; x++ {
			if m.FogAt(player, Point{X: x, Y: y}) == FogVisible {
				return true
			}
		}
	}
	return false
}

// IsRectExplored reports whether every cell of a footprint has been seen at
// least once by the player. Build placement requires this.
func (m *Map) IsRectExplored(player int, cell Point, size int) bool {
	for y := cell.Y; y < cell.Y+size; y++ {
		for x := cell.X; x < cell.X+size; x++ {
			if m.FogAt(player, Point{X: x, Y: y}) == FogHidden {
				return false
			}
		}
	}
	return true
}

// RememberEntity snapshots an enemy building the player can currently see.
func (m *Map) RememberEntity(player int, id uint32, snapshot RememberedEntity) {
	if player < 0 || player >= len(m.Remembered) {
		return
	}
	m.Remembered[player][id] = snapshot
}

// ForgetEntity drops a remembered snapshot, e.g. when the player sees the
// building's cell again and it is gone.
func (m *Map) ForgetEntity(player int, id uint32) {
	if player < 0 || player >= len(m.Remembered) {
		return
	}
	delete(m.Remembered[player], id)
}
