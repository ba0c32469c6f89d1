// frontier-replay inspects and verifies .rep files: it prints the header,
// re-runs the full simulation over the input log and reports the resulting
// checksum sequence. Two runs of the same file — on any platform — must print
// identical output; that is the whole point of the format.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"frontier/internal/config"
	"frontier/internal/lockstep"
	"frontier/internal/sim"
)

func main() {
	var (
		verbose = flag.Bool("v", false, "print every turn checksum, not just the final one")
		inputs  = flag.Bool("inputs", false, "dump the decoded input records")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: frontier-replay [-v] [-inputs] <file.rep>\n")
		os.Exit(2)
	}
	path := flag.Arg(0)

	replay, err := lockstep.ReadReplay(path)
	if err != nil {
		log.Fatalf("could not read replay: %v", err)
	}

	fmt.Printf("replay %s\n", path)
	fmt.Printf("  version:  %d\n", replay.Version)
	fmt.Printf("  match id: %s\n", lockstep.MatchID(replay.Seed, replay.Noise))
	fmt.Printf("  seed:     %d\n", replay.Seed)
	fmt.Printf("  map:      %dx%d\n", replay.Noise.Width, replay.Noise.Height)
	for player := 0; player < config.MaxPlayers; player++ {
		p := replay.Players[player]
		if !p.Active {
			continue
		}
		fmt.Printf("  player %d: %q team %d\n", player, p.Name, p.Team)
	}
	fmt.Printf("  records:  %d\n", len(replay.Records))

	if *inputs {
		dumpInputs(replay)
	}

	checksums, err := replay.Run()
	if err != nil {
		log.Fatalf("replay execution failed: %v", err)
	}

	if *verbose {
		for turn, checksum := range checksums {
			fmt.Printf("turn %5d  %08x\n", turn, checksum)
		}
	}
	if len(checksums) > 0 {
		fmt.Printf("final checksum after %d turns: %08x\n", len(checksums), checksums[len(checksums)-1])
	} else {
		fmt.Println("replay contains no turns")
	}
}

func dumpInputs(replay *lockstep.ReplayData) {
	for i, record := range replay.Records {
		if len(record.Batch) == 0 {
			continue
		}
		inputs, err := sim.DeserializeBatch(record.Batch)
		if err != nil {
			fmt.Printf("record %d (player %d): %v\n", i, record.Player, err)
			continue
		}
		for _, in := range inputs {
			fmt.Printf("record %d player %d: %s ids=%d cell=(%d,%d)\n",
				i, record.Player, in.Type, len(in.EntityIDs), in.TargetCell.X, in.TargetCell.Y)
		}
	}
}
