package tui

import "github.com/sweepbox/sweepbox/internal/bridge"

// Async message types for Bubble Tea commands.

type engineEventMsg struct {
	event bridge.Event
}

type statusMsg string
