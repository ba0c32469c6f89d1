package grid

// NearestFreeCell finds the closest cell to around whose size×size footprint
// is empty on the ground layer, scanning rings outward. Within a ring the
// scan order is fixed (top row, right column, bottom row, left column), so
// every peer picks the same cell. Returns nil when no ring within maxRadius
// has room.
func (m *Map) NearestFreeCell(around Point, size, maxRadius int) *Point {
	for radius := 0; radius <= maxRadius; radius++ {
		for _, cell := range ringCells(around, radius) {
			if m.RectInBounds(cell, size) && !m.IsRectBlocked(LayerGround, cell, size) {
				found := cell
				return &found
			}
		}
	}
	return nil
}

// NearestFreeCellAround behaves like NearestFreeCell but starts outside a
// footprint: rings grow from the border of a size×size rect at origin. Used
// for unload drops and production exits around buildings.
func (m *Map) NearestFreeCellAround(origin Point, footprint, size, maxRadius int) *Point {
	for radius := 1; radius <= maxRadius; radius++ {
		top := Point{X: origin.X - radius, Y: origin.Y - radius}
		side := footprint + 2*radius
		for _, cell := range rectBorderCells(top, side) {
			if m.RectInBounds(cell, size) && !m.IsRectBlocked(LayerGround, cell, size) {
				found := cell
				return &found
			}
		}
	}
	return nil
}

func ringCells(center Point, radius int) []Point {
	if radius == 0 {
		return []Point{center}
	}
	top := Point{X: center.X - radius, Y: center.Y - radius}
	return rectBorderCells(top, 2*radius+1)
}

// rectBorderCells walks the border of a side×side square in a fixed order.
func rectBorderCells(topLeft Point, side int) []Point {
	if side == 1 {
		return []Point{topLeft}
	}
	cells := make([]Point, 0, 4*(side-1))
	for x := 0; x < side; x++ {
		cells = append(cells, Point{X: topLeft.X + x, Y: topLeft.Y})
	}
	for y := 1; y < side; y++ {
		cells = append(cells, Point{X: topLeft.X + side - 1, Y: topLeft.Y + y})
	}
	for x := side - 2; x >= 0; x-- {
		cells = append(cells, Point{X: topLeft.X + x, Y: topLeft.Y + side - 1})
	}
	for y := side - 2; y >= 1; y-- {
		cells = append(cells, Point{X: topLeft.X, Y: topLeft.Y + y})
	}
	return cells
}
