// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all match and server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// MATCH TIMING
// =============================================================================

// These constants define the lockstep cadence. They are fixed at compile time:
// every peer in a match must agree on them, so they are never env-overridable.
const (
	// MaxPlayers is the number of player slots in a match.
	MaxPlayers = 4

	// TicksPerSecond is the simulation rate.
	TicksPerSecond = 60

	// TicksPerTurn is how many simulation ticks run per lockstep turn.
	TicksPerTurn = 4

	// TurnOffset is the input delay in turns. An input submitted during turn T
	// takes effect at turn T+TurnOffset; this is the allowance for network
	// latency.
	TurnOffset = 3

	// DisconnectGraceTurns is how many turns the engine waits silently for a
	// missing peer before surfacing the "waiting for players" state.
	DisconnectGraceTurns = 10
)

// =============================================================================
// SIMULATION LIMITS
// =============================================================================

const (
	// InputBufferSize is the maximum serialized size of one turn's input batch.
	InputBufferSize = 1024

	// BuildingQueueMax is the production queue depth per building.
	BuildingQueueMax = 5

	// SelectionLimit bounds the entity ids carried by a single input record.
	SelectionLimit = 40

	// PlayerNameSize is the fixed on-disk size of a player name.
	PlayerNameSize = 36
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds the match host's network settings.
type ServerConfig struct {
	Port      int    // Debug API listen port
	MatchPort int    // Websocket transport listen port
	LobbyName string // Advertised lobby name
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      8080,
		MatchPort: 9090,
		LobbyName: "frontier match",
	}
}

// ServerFromEnv returns server configuration with environment variable
// overrides. Environment variables take precedence over defaults.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("FRONTIER_PORT", 0); p > 0 {
		cfg.Port = p
	}
	if p := getEnvInt("FRONTIER_MATCH_PORT", 0); p > 0 {
		cfg.MatchPort = p
	}
	if name := os.Getenv("FRONTIER_LOBBY_NAME"); name != "" {
		cfg.LobbyName = name
	}

	return cfg
}

// =============================================================================
// EVENT LOG
// =============================================================================

// EventLogConfig controls the bounded match event log.
type EventLogConfig struct {
	Path     string // Output path; empty disables the file sink
	Compress bool   // lz4-compress the output stream
}

// EventLogFromEnv returns event log configuration from the environment.
func EventLogFromEnv() EventLogConfig {
	return EventLogConfig{
		Path:     getEnvWithDefault("FRONTIER_EVENT_LOG", "events.jsonl"),
		Compress: os.Getenv("FRONTIER_EVENT_LOG_COMPRESS") == "true",
	}
}

// =============================================================================
// APP CONFIG AGGREGATE
// =============================================================================

// AppConfig aggregates all configuration for a match host process.
type AppConfig struct {
	Server   ServerConfig
	EventLog EventLogConfig
}

// Load returns the full application configuration with env overrides applied.
func Load() AppConfig {
	return AppConfig{
		Server:   ServerFromEnv(),
		EventLog: EventLogFromEnv(),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvWithDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
