package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"frontier/internal/api"
	"frontier/internal/config"
	"frontier/internal/lockstep"
	"frontier/internal/net"
	"frontier/internal/sim"
	"frontier/internal/sim/grid"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using environment variables only")
	}

	var (
		joinAddr  = flag.String("join", "", "host address to join (empty = host a match)")
		mapSize   = flag.Uint("map", 64, "map width/height in tiles (host only)")
		peers     = flag.Int("peers", 1, "remote peers to wait for before starting (host only)")
		replayDir = flag.String("replays", "replays", "directory for replay output")
	)
	flag.Parse()

	appConfig := config.Load()
	log.Printf("frontier match host, %d TPS, %d ticks/turn, input delay %d turns",
		config.TicksPerSecond, config.TicksPerTurn, config.TurnOffset)

	debugServer := api.NewServer()
	go func() {
		if err := debugServer.Start(listenAddr(appConfig.Server.Port)); err != nil {
			log.Printf("debug api stopped: %v", err)
		}
	}()

	var transport net.Transport
	if *joinAddr == "" {
		host, err := net.NewWebsocketHost(listenAddr(appConfig.Server.MatchPort))
		if err != nil {
			log.Fatalf("could not host match: %v", err)
		}
		transport = host
		waitForPeers(host, *peers)

		// The only wall-clock read that ever touches the simulation: the
		// host mints the seed once and broadcasts it.
		seed := int32(time.Now().Unix())
		noise := grid.GenerateNoise(seed, uint32(*mapSize), uint32(*mapSize))
		host.BeginLoadingMatch(seed, noise.Width, noise.Height, noise.Map8())
	} else {
		client, err := net.DialMatch(*joinAddr)
		if err != nil {
			log.Fatalf("could not join match: %v", err)
		}
		transport = client
	}

	load := awaitMatchLoad(transport)
	noise := grid.Noise{Width: load.MapWidth, Height: load.MapHeight}
	noise.SetMap8(load.NoiseData)

	var players [config.MaxPlayers]sim.Player
	active := int(load.ActiveCount)
	if active < 1 {
		active = 1
	}
	if active > config.MaxPlayers {
		active = config.MaxPlayers
	}
	// Every peer must build the identical player table: the names feed the
	// state checksum, so they come from the slot index, never from local
	// flags.
	for i := 0; i < active; i++ {
		players[i] = sim.Player{Active: true, Name: "player" + strconv.Itoa(i), Team: uint32(i)}
	}

	matchID := lockstep.MatchID(load.Seed, noise)
	log.Printf("match %s loading: seed %d, map %dx%d", matchID, load.Seed, load.MapWidth, load.MapHeight)

	eventLog := lockstep.NewEventLog(matchID)
	if err := eventLog.Start(appConfig.EventLog.Path, appConfig.EventLog.Compress); err != nil {
		log.Printf("event log disabled: %v", err)
	}
	defer eventLog.Stop()

	var replayWriter *lockstep.ReplayWriter
	if transport.LocalPlayerID() == 0 {
		os.MkdirAll(*replayDir, 0755)
		path := *replayDir + "/" + matchID + ".rep"
		w, err := lockstep.NewReplayWriter(path, load.Seed, noise, players)
		if err != nil {
			log.Printf("replay disabled: %v", err)
		} else {
			replayWriter = w
			defer replayWriter.Close()
			log.Printf("recording replay to %s", path)
		}
	}

	simulation := sim.New(load.Seed, noise, players)
	engine := lockstep.NewEngine(simulation, transport, replayWriter, eventLog)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / config.TicksPerSecond)
	defer ticker.Stop()

	lastTurn := engine.Turn()
	for {
		select {
		case <-stop:
			log.Println("leaving match")
			engine.LeaveMatch()
			return
		case <-ticker.C:
			start := time.Now()
			engine.Update()
			api.RecordTickDuration(time.Since(start).Seconds())
			api.RecordEntityCount(simulation.Pool.Count())
			api.RecordWaiting(engine.State() == lockstep.StateWaiting)

			for _, line := range engine.ChatLines {
				log.Printf("chat: %s", line)
			}
			engine.ChatLines = engine.ChatLines[:0]
			engine.SimEvents = engine.SimEvents[:0]

			if turn := engine.Turn(); turn != lastTurn {
				lastTurn = turn
				api.RecordTurnComplete()
				_, dropped := eventLog.Stats()
				api.RecordEventLogDropped(dropped)
				debugServer.PublishView(matchView(matchID, engine, simulation))
			}

			if engine.State() == lockstep.StateDesynced {
				api.RecordDesync()
				log.Fatal("match desynchronized, terminating")
			}
		}
	}
}

func matchView(matchID string, engine *lockstep.Engine, simulation *sim.Simulation) api.MatchView {
	view := api.MatchView{
		MatchID:     matchID,
		Turn:        engine.Turn(),
		Tick:        simulation.Tick,
		Checksum:    simulation.Checksum(),
		EntityCount: simulation.Pool.Count(),
	}
	switch engine.State() {
	case lockstep.StateRunning:
		view.State = "running"
	case lockstep.StateWaiting:
		view.State = "waiting_for_players"
	case lockstep.StateDesynced:
		view.State = "desynced"
	}
	for player := 0; player < config.MaxPlayers; player++ {
		if simulation.Players[player].Active {
			view.Players = append(view.Players, simulation.Players[player].Name)
			view.Gold = append(view.Gold, simulation.Players[player].Gold)
		}
	}
	return view
}

// waitForPeers blocks until the requested number of remote peers connect.
func waitForPeers(host *net.WebsocketHost, want int) {
	if want <= 0 {
		return
	}
	log.Printf("waiting for %d peer(s)...", want)
	connected := 0
	for connected < want {
		host.Service()
		event := host.PollEvent()
		if event == nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if event.Type == net.EventPlayerConnected {
			connected++
			log.Printf("peer %d connected (%d/%d)", event.PlayerID, connected, want)
		}
	}
}

// awaitMatchLoad pumps the transport until the match parameters arrive.
func awaitMatchLoad(transport net.Transport) *net.Event {
	for {
		transport.Service()
		event := transport.PollEvent()
		if event == nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if event.Type == net.EventMatchLoad {
			return event
		}
	}
}

func listenAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
