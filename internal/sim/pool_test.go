package sim

import "testing"

// TestPoolAddGet verifies basic insertion and lookup
func TestPoolAddGet(t *testing.T) {
	pool := NewEntityPool()

	id := pool.Add(Entity{Type: UnitMiner, PlayerID: 1})
	entity := pool.Get(id)
	if entity == nil {
		t.Fatal("Get returned nil for a live id")
	}
	if entity.ID != id {
		t.Errorf("entity.ID = %v, want %v", entity.ID, id)
	}
	if entity.Type != UnitMiner || entity.PlayerID != 1 {
		t.Errorf("entity fields lost: %+v", entity)
	}
	if pool.Count() != 1 {
		t.Errorf("Count = %d, want 1", pool.Count())
	}
}

// TestPoolStaleID verifies a removed id never resolves, even after slot reuse
func TestPoolStaleID(t *testing.T) {
	pool := NewEntityPool()

	first := pool.Add(Entity{Type: UnitMiner})
	pool.Remove(first)
	if pool.Get(first) != nil {
		t.Fatal("stale id resolved after removal")
	}

	// The slot gets reused; the stale id must still not alias the newcomer.
	second := pool.Add(Entity{Type: UnitCowboy})
	if second.Slot() != first.Slot() {
		t.Fatalf("expected slot reuse, got slot %d then %d", first.Slot(), second.Slot())
	}
	if pool.Get(first) != nil {
		t.Error("stale id aliases the reused slot")
	}
	if got := pool.Get(second); got == nil || got.Type != UnitCowboy {
		t.Error("fresh id does not resolve")
	}
}

// TestPoolGetNone verifies NoEntity and garbage ids return nil
func TestPoolGetNone(t *testing.T) {
	pool := NewEntityPool()
	pool.Add(Entity{})

	if pool.Get(NoEntity) != nil {
		t.Error("NoEntity resolved")
	}
	if pool.Get(EntityID(0xdeadbeef)) != nil {
		t.Error("garbage id resolved")
	}
}

// TestPoolIterationOrder verifies Each walks ascending slot order and
// removal keeps survivors' slots stable
func TestPoolIterationOrder(t *testing.T) {
	pool := NewEntityPool()

	var ids []EntityID
	for i := 0; i < 5; i++ {
		ids = append(ids, pool.Add(Entity{Health: int32(i)}))
	}
	pool.Remove(ids[2])

	var visited []int32
	pool.Each(func(e *Entity) {
		visited = append(visited, e.Health)
	})
	want := []int32{0, 1, 3, 4}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}
}

// TestPoolLowestSlotReuse verifies freed slots are reused lowest-first so
// allocation order is identical on every peer
func TestPoolLowestSlotReuse(t *testing.T) {
	pool := NewEntityPool()

	var ids []EntityID
	for i := 0; i < 6; i++ {
		ids = append(ids, pool.Add(Entity{}))
	}
	pool.Remove(ids[4])
	pool.Remove(ids[1])
	pool.Remove(ids[3])

	if got := pool.Add(Entity{}); got.Slot() != 1 {
		t.Errorf("first reuse got slot %d, want 1", got.Slot())
	}
	if got := pool.Add(Entity{}); got.Slot() != 3 {
		t.Errorf("second reuse got slot %d, want 3", got.Slot())
	}
	if got := pool.Add(Entity{}); got.Slot() != 4 {
		t.Errorf("third reuse got slot %d, want 4", got.Slot())
	}
}
