// Package grid provides the cell-level world model for the simulation:
// a multi-layer cell grid over a tile map, A* pathfinding with region
// pre-checks, and per-player fog of war.
//
// Everything in this package is pure integer arithmetic and iterates in
// row-major cell order. The grid is part of the lockstep state, so any
// nondeterminism here desyncs the match.
package grid

// Point is an integer cell coordinate.
type Point struct {
	X, Y int
}

// Add returns p + other.
func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// ManhattanDistanceTo returns |dx| + |dy|.
func (p Point) ManhattanDistanceTo(other Point) int {
	return absInt(p.X-other.X) + absInt(p.Y-other.Y)
}

// ChebyshevDistanceTo returns max(|dx|, |dy|).
func (p Point) ChebyshevDistanceTo(other Point) int {
	dx := absInt(p.X - other.X)
	dy := absInt(p.Y - other.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// Direction is an 8-way facing. Orthogonals are even, diagonals odd; the
// pathfinder relies on that parity for the step cost and the crack rule.
type Direction int

const (
	DirNorth Direction = iota
	DirNortheast
	DirEast
	DirSoutheast
	DirSouth
	DirSouthwest
	DirWest
	DirNorthwest
	DirectionCount
)

// DirectionPoint maps a direction to its unit cell offset.
var DirectionPoint = [DirectionCount]Point{
	{0, -1},  // north
	{1, -1},  // northeast
	{1, 0},   // east
	{1, 1},   // southeast
	{0, 1},   // south
	{-1, 1},  // southwest
	{-1, 0},  // west
	{-1, -1}, // northwest
}

// DirectionTo returns the 8-way direction from one cell toward another.
// Falls back to south when the cells are equal.
func DirectionTo(from, to Point) Direction {
	dx := sign(to.X - from.X)
	dy := sign(to.Y - from.Y)
	for d := Direction(0); d < DirectionCount; d++ {
		if DirectionPoint[d].X == dx && DirectionPoint[d].Y == dy {
			return d
		}
	}
	return DirSouth
}

// Layer selects one of the stacked cell grids.
type Layer int

const (
	LayerGround      Layer = iota // walking units and buildings
	LayerUnderground              // garrisoned and mining units
	LayerSky                      // balloons
	LayerMineOverlay              // hidden land mine placements
	LayerCount
)

// CellKind tags what occupies a cell.
type CellKind uint8

const (
	CellEmpty       CellKind = iota
	CellBlocked              // tile-level obstacle, e.g. water
	CellUnreachable          // water cliff: looks like land, never passable
	CellDecoration           // cosmetic blocker; Value holds the variant
	CellUnit                 // Value holds the occupying entity id
	CellBuilding             // Value holds the occupying entity id
	CellGoldMine             // Value holds the mine entity id
)

// Cell is one slot of a cell layer.
type Cell struct {
	Kind  CellKind
	Value uint32 // entity id or decoration variant, depending on Kind
}

// Tile is the terrain under a cell.
type Tile struct {
	Elevation  int8 // 0, 1 or 2
	Water      bool
	Decoration bool
}

// Map is the multi-layer cell grid plus terrain, regions and fog.
type Map struct {
	Width, Height int

	Tiles []Tile
	Cells [LayerCount][]Cell

	// Pathing regions: connected components of passable ground cells.
	// RegionCount regions, Regions[i] is the region id of cell i or -1.
	RegionCount       int
	Regions           []int32
	RegionConnections [][]int32

	// Fog state, one slice per player slot (see fog.go).
	playerCount int
	Fog         [][]FogState
	Detection   [][]int32
	Remembered  []map[uint32]RememberedEntity
	FogDirty    bool
}

// NewMap builds an empty map of the given size with playerCount fog layers.
// Callers normally use FromNoise instead; this constructor exists for tests.
func NewMap(width, height, playerCount int) *Map {
	m := &Map{
		Width:       width,
		Height:      height,
		Tiles:       make([]Tile, width*height),
		playerCount: playerCount,
	}
	for layer := range m.Cells {
		m.Cells[layer] = make([]Cell, width*height)
	}
	m.initFog(playerCount)
	m.ComputeRegions()
	return m
}

// InBounds reports whether the cell lies on the map.
func (m *Map) InBounds(cell Point) bool {
	return cell.X >= 0 && cell.Y >= 0 && cell.X < m.Width && cell.Y < m.Height
}

// RectInBounds reports whether a size×size footprint at cell lies on the map.
func (m *Map) RectInBounds(cell Point, size int) bool {
	return cell.X >= 0 && cell.Y >= 0 && cell.X+size <= m.Width && cell.Y+size <= m.Height
}

func (m *Map) index(cell Point) int {
	return cell.X + cell.Y*m.Width
}

// CellAt returns the tagged value at a cell. Out-of-bounds reads come back
// as blocked so callers don't need a separate bounds check on hot paths.
func (m *Map) CellAt(layer Layer, cell Point) Cell {
	if !m.InBounds(cell) {
		return Cell{Kind: CellBlocked}
	}
	return m.Cells[layer][m.index(cell)]
}

// SetCell writes a single cell.
func (m *Map) SetCell(layer Layer, cell Point, value Cell) {
	if !m.InBounds(cell) {
		return
	}
	m.Cells[layer][m.index(cell)] = value
}

// SetCellRect writes a size×size patch in one call. Entity placement and
// removal always go through here so a footprint is never half-written.
func (m *Map) SetCellRect(layer Layer, cell Point, size int, value Cell) {
	for y := cell.Y; y < cell.Y+size; y++ {
		for x := cell.X; x < cell.X+size; x++ {
			p := Point{X: x, Y: y}
			if m.InBounds(p) {
				m.Cells[layer][m.index(p)] = value
			}
		}
	}
}

// IsBlocked reports whether a cell is anything other than empty.
func (m *Map) IsBlocked(layer Layer, cell Point) bool {
	return m.CellAt(layer, cell).Kind != CellEmpty
}

// IsRectBlocked reports whether any cell of a size×size footprint is occupied.
func (m *Map) IsRectBlocked(layer Layer, cell Point, size int) bool {
	for y := cell.Y; y < cell.Y+size; y++ {
		for x := cell.X; x < cell.X+size; x++ {
			if m.IsBlocked(layer, Point{X: x, Y: y}) {
				return true
			}
		}
	}
	return false
}

// EntityAt returns the entity id occupying a cell, or (0, false).
func (m *Map) EntityAt(layer Layer, cell Point) (uint32, bool) {
	c := m.CellAt(layer, cell)
	switch c.Kind {
	case CellUnit, CellBuilding, CellGoldMine:
		return c.Value, true
	}
	return 0, false
}

// Elevation returns the tile elevation under a cell, 0 for out of bounds.
func (m *Map) Elevation(cell Point) int8 {
	if !m.InBounds(cell) {
		return 0
	}
	return m.Tiles[m.index(cell)].Elevation
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
