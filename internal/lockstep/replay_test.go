package lockstep

import (
	"os"
	"path/filepath"
	"testing"

	"frontier/internal/config"
	"frontier/internal/net"
	"frontier/internal/sim"
	"frontier/internal/sim/grid"
)

// recordMatch runs a short scripted solo match through the engine with a
// replay writer attached, returning the replay path and the live per-turn
// checksums.
func recordMatch(t *testing.T, turns int) (string, []uint32) {
	t.Helper()

	players := testPlayers(1)
	noise := flatNoise(32)
	hub := net.NewLoopbackHub(1)

	path := filepath.Join(t.TempDir(), "match.rep")
	writer, err := NewReplayWriter(path, 42, noise, players)
	if err != nil {
		t.Fatalf("replay writer: %v", err)
	}

	engine := NewEngine(sim.New(42, noise, players), hub.Endpoint(0), writer, nil)

	minerID := sim.NoEntity
	engine.Sim.Pool.Each(func(e *sim.Entity) {
		if minerID == sim.NoEntity && e.Type == sim.UnitMiner {
			minerID = e.ID
		}
	})
	engine.QueueInput(sim.Input{
		Type:       sim.InputMoveCell,
		TargetCell: grid.Point{X: 16, Y: 16},
		TargetID:   sim.NoEntity,
		EntityIDs:  []sim.EntityID{minerID},
	})

	var live []uint32
	for turn := 0; turn < turns; turn++ {
		for tick := 0; tick < config.TicksPerTurn; tick++ {
			engine.Update()
		}
		live = append(live, engine.Sim.Checksum())
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close replay: %v", err)
	}
	return path, live
}

// TestReplayRoundTrip verifies header fields survive write and read
func TestReplayRoundTrip(t *testing.T) {
	path, _ := recordMatch(t, 5)

	replay, err := ReadReplay(path)
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if replay.Seed != 42 {
		t.Errorf("seed = %d, want 42", replay.Seed)
	}
	if replay.Noise.Width != 32 || replay.Noise.Height != 32 {
		t.Errorf("map = %dx%d, want 32x32", replay.Noise.Width, replay.Noise.Height)
	}
	if !replay.Players[0].Active || replay.Players[0].Name != "peer0" {
		t.Errorf("player 0 = %+v", replay.Players[0])
	}
	if replay.Players[1].Active {
		t.Error("player 1 should be inactive")
	}
	if len(replay.Records) != 5 {
		t.Errorf("records = %d, want 5 (one per consumed turn)", len(replay.Records))
	}
}

// TestReplayReproducesChecksums is the golden determinism property: running
// the simulation over the log yields the live match's checksum sequence.
func TestReplayReproducesChecksums(t *testing.T) {
	path, live := recordMatch(t, 30)

	replay, err := ReadReplay(path)
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	replayed, err := replay.Run()
	if err != nil {
		t.Fatalf("run replay: %v", err)
	}

	if len(replayed) != len(live) {
		t.Fatalf("replayed %d turns, live match had %d", len(replayed), len(live))
	}
	for turn := range live {
		if replayed[turn] != live[turn] {
			t.Fatalf("turn %d: replay checksum %08x != live %08x", turn, replayed[turn], live[turn])
		}
	}

	// And a second run of the same file is identical to the first.
	again, err := replay.Run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for turn := range replayed {
		if again[turn] != replayed[turn] {
			t.Fatalf("turn %d: second run diverged", turn)
		}
	}
}

// TestReplayRejectsBadVersion verifies unknown versions abort the load
func TestReplayRejectsBadVersion(t *testing.T) {
	path, _ := recordMatch(t, 2)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[0] = 99
	bad := filepath.Join(t.TempDir(), "bad.rep")
	if err := os.WriteFile(bad, raw, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadReplay(bad); err == nil {
		t.Fatal("version 99 replay parsed without error")
	}
}

// TestReplayRejectsTruncation verifies a cut-off file errors instead of
// partially applying
func TestReplayRejectsTruncation(t *testing.T) {
	path, _ := recordMatch(t, 3)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Cut inside the header.
	trunc := filepath.Join(t.TempDir(), "trunc.rep")
	if err := os.WriteFile(trunc, raw[:20], 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadReplay(trunc); err == nil {
		t.Fatal("truncated replay parsed without error")
	}
}

// TestMatchIDStable verifies the id is a pure function of the header
func TestMatchIDStable(t *testing.T) {
	noise := grid.GenerateNoise(7, 32, 32)
	a := MatchID(7, noise)
	b := MatchID(7, noise)
	if a != b {
		t.Errorf("match id unstable: %s != %s", a, b)
	}
	other := MatchID(8, noise)
	if a == other {
		t.Error("different seeds produced the same match id")
	}
}
