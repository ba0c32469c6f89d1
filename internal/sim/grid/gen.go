package grid

// Map generation. The host generates a Noise once from the match seed,
// broadcasts it inside the match-load message and writes it to the replay
// header; every peer then builds the same Map from the same bytes. Keeping
// the generator integer-only means the noise itself could be regenerated
// from the seed on any platform, but peers still exchange the bytes so a
// generator change never splits a lobby mid-upgrade.

// Tile byte encoding inside a Noise map.
const (
	noiseWater      int8 = -1
	noiseElevation0 int8 = 0
	noiseElevation1 int8 = 1
	noiseElevation2 int8 = 2
	noiseDecor0     int8 = 3 // decoration on elevation 0
	noiseDecor1     int8 = 4
	noiseDecor2     int8 = 5
)

// Noise is the serialized terrain of a match: one byte per tile.
type Noise struct {
	Width  uint32
	Height uint32
	Map    []int8
}

// Map8 returns the tile bytes as the unsigned slice wire frames carry.
func (n Noise) Map8() []byte {
	out := make([]byte, len(n.Map))
	for i, b := range n.Map {
		out[i] = byte(b)
	}
	return out
}

// SetMap8 fills the tile bytes from a wire frame.
func (n *Noise) SetMap8(data []byte) {
	n.Map = make([]int8, len(data))
	for i, b := range data {
		n.Map[i] = int8(b)
	}
}

// hash2 mixes a seed with a coordinate pair into 32 pseudo-random bits.
// Plain integer mixing (xorshift-multiply), good enough for terrain and
// exactly reproducible everywhere.
func hash2(seed int32, x, y int) uint32 {
	h := uint32(seed) ^ (uint32(x) * 0x9e3779b1) ^ (uint32(y) * 0x85ebca6b)
	h ^= h >> 16
	h *= 0x7feb352d
	h ^= h >> 15
	h *= 0x846ca68b
	h ^= h >> 16
	return h
}

// GenerateNoise produces the terrain bytes for a match. Elevation comes from
// a coarse integer value-noise lattice smoothed over a neighborhood; water
// pools in the lowest band outside a central land box; decorations are
// sprinkled on land.
func GenerateNoise(seed int32, width, height uint32) Noise {
	w := int(width)
	h := int(height)
	noise := Noise{Width: width, Height: height, Map: make([]int8, w*h)}

	const lattice = 8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Average the hash values of the four surrounding lattice points,
			// weighted by manhattan proximity. All integer math.
			lx := x / lattice
			ly := y / lattice
			fx := x % lattice
			fy := y % lattice

			v00 := int(hash2(seed, lx, ly) % 1000)
			v10 := int(hash2(seed, lx+1, ly) % 1000)
			v01 := int(hash2(seed, lx, ly+1) % 1000)
			v11 := int(hash2(seed, lx+1, ly+1) % 1000)

			top := v00*(lattice-fx) + v10*fx
			bottom := v01*(lattice-fx) + v11*fx
			value := (top*(lattice-fy) + bottom*fy) / (lattice * lattice)

			var tile int8
			switch {
			case value < 150:
				tile = noiseWater
			case value < 600:
				tile = noiseElevation0
			case value < 850:
				tile = noiseElevation1
			default:
				tile = noiseElevation2
			}

			// Keep a box around the map center land: tiles within a quarter
			// of the width and height of the middle never become water.
			if tile == noiseWater {
				cx := absInt(x - w/2)
				cy := absInt(y - h/2)
				if cx < w/4 && cy < h/4 {
					tile = noiseElevation0
				}
			}

			if tile >= noiseElevation0 && hash2(seed^0x5eed, x, y)%29 == 0 {
				tile += 3 // decoration variant of the same elevation
			}

			noise.Map[x+y*w] = tile
		}
	}

	return noise
}

// FromNoise builds the playable map from terrain bytes.
func FromNoise(noise Noise, playerCount int) *Map {
	w := int(noise.Width)
	h := int(noise.Height)
	m := &Map{
		Width:       w,
		Height:      h,
		Tiles:       make([]Tile, w*h),
		playerCount: playerCount,
	}
	for layer := range m.Cells {
		m.Cells[layer] = make([]Cell, w*h)
	}

	for i, b := range noise.Map {
		tile := &m.Tiles[i]
		switch {
		case b == noiseWater:
			tile.Water = true
			m.Cells[LayerGround][i] = Cell{Kind: CellBlocked}
		case b >= noiseDecor0:
			tile.Elevation = b - noiseDecor0
			tile.Decoration = true
			m.Cells[LayerGround][i] = Cell{Kind: CellDecoration, Value: uint32(b - noiseDecor0)}
		default:
			tile.Elevation = b
		}
	}

	// Shore cells adjacent to water on a higher elevation are water cliffs:
	// they render as land but nothing can ever stand there.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := Point{X: x, Y: y}
			i := m.index(p)
			if m.Tiles[i].Water || m.Tiles[i].Elevation == 0 {
				continue
			}
			for d := Direction(0); d < DirectionCount; d++ {
				n := p.Add(DirectionPoint[d])
				if m.InBounds(n) && m.Tiles[m.index(n)].Water {
					m.Cells[LayerGround][i] = Cell{Kind: CellUnreachable}
					break
				}
			}
		}
	}

	m.initFog(playerCount)
	m.ComputeRegions()
	return m
}
