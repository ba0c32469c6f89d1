package sim

// EntityPool is a generational slab of entities. Slots are never reshuffled:
// removal tombstones the slot and bumps its generation, so iteration order is
// stable across peers and stale ids fail validation instead of aliasing a
// newcomer. Everything that walks "all entities" iterates ascending slot
// index — that ordering is part of the lockstep contract.
type EntityPool struct {
	slots       []*Entity
	generations []uint16
	free        []int
	count       int
}

// NewEntityPool returns an empty pool.
func NewEntityPool() *EntityPool {
	return &EntityPool{}
}

// Count returns the number of live entities.
func (p *EntityPool) Count() int {
	return p.count
}

// SlotCount returns the slab length including tombstoned slots.
func (p *EntityPool) SlotCount() int {
	return len(p.slots)
}

// Add inserts an entity and returns its id. Freed slots are reused
// lowest-index-first so the slab stays compact and allocation order is
// deterministic.
func (p *EntityPool) Add(entity Entity) EntityID {
	var slot int
	if len(p.free) > 0 {
		// free is kept sorted descending; pop the smallest from the tail.
		slot = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
	} else {
		slot = len(p.slots)
		p.slots = append(p.slots, nil)
		p.generations = append(p.generations, 0)
	}

	id := makeEntityID(p.generations[slot], slot)
	entity.ID = id
	stored := entity
	p.slots[slot] = &stored
	p.count++
	return id
}

// Get returns the entity for an id, or nil when the id is stale, tombstoned
// or NoEntity. Inputs arriving from the network go through here, so a lookup
// must never panic on garbage.
func (p *EntityPool) Get(id EntityID) *Entity {
	if id == NoEntity {
		return nil
	}
	slot := id.Slot()
	if slot >= len(p.slots) || p.slots[slot] == nil {
		return nil
	}
	if p.generations[slot] != id.generation() {
		return nil
	}
	return p.slots[slot]
}

// AtSlot returns the entity at a slab index, or nil for tombstones. Used by
// the tick loop and the checksum walker.
func (p *EntityPool) AtSlot(slot int) *Entity {
	if slot >= len(p.slots) {
		return nil
	}
	return p.slots[slot]
}

// Remove tombstones the entity's slot and advances the generation. The slot
// becomes reusable; survivors keep their indices.
func (p *EntityPool) Remove(id EntityID) {
	entity := p.Get(id)
	if entity == nil {
		return
	}
	slot := id.Slot()
	p.slots[slot] = nil
	p.generations[slot]++
	p.count--
	p.insertFree(slot)
}

// insertFree keeps the free list sorted descending so Add pops the lowest
// slot in O(1).
func (p *EntityPool) insertFree(slot int) {
	i := len(p.free)
	p.free = append(p.free, 0)
	for i > 0 && p.free[i-1] < slot {
		p.free[i] = p.free[i-1]
		i--
	}
	p.free[i] = slot
}

// Each calls fn for every live entity in ascending slot order. fn must not
// add or remove entities; mutation of the visited entity is fine.
func (p *EntityPool) Each(fn func(*Entity)) {
	for slot := 0; slot < len(p.slots); slot++ {
		if p.slots[slot] != nil {
			fn(p.slots[slot])
		}
	}
}
