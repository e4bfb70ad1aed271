// Package host is the facade over the Minecraft server this router runs
// beside: its console, its RCON port and a background scheduler.
package host

import (
	"context"
	"errors"
)

var (
	// ErrNotRunning is returned when the managed server process is down.
	ErrNotRunning = errors.New("server process not running")
	// ErrNoRCON is returned when no RCON address is configured.
	ErrNoRCON = errors.New("rcon not configured")
)

// Console is the server's chat/console stream.
type Console interface {
	// Execute sends one console command, e.g. "tellraw @a [...]".
	Execute(ctx context.Context, command string) error
	// OnLine registers a callback for every console output line.
	OnLine(fn func(line string))
}

// Host is everything the router needs from the server side.
type Host interface {
	Console
	// Query runs a command over RCON and returns its output.
	Query(ctx context.Context, command string) (string, error)
	// Players returns the online player list.
	Players(ctx context.Context) (PlayerList, error)
	// Schedule runs fn on a cron spec under a unique name.
	Schedule(name, spec string, fn func()) error
}
