// Package browserpool implements the Browser Pool (spec §4.5): leased
// browser contexts with isolated storage/cookies/viewport/user-agent, one
// per concurrent render slot, optionally kept per-origin-persistent across
// leases. Grounded on the teacher's internal/render chrome pool (FIFO
// instance queue, restart policies, warmup), with the distributed
// service-registry heartbeat (Render Service fleet coordination) stripped
// since this crawler runs a single in-process pool, and per-origin cookie/
// storage-state persistence added per spec §4.5's session contract.
package browserpool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status represents the current state of a browser context.
type Status int

const (
	StatusIdle Status = iota
	StatusRendering
	StatusRestarting
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRendering:
		return "rendering"
	case StatusRestarting:
		return "restarting"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Context wraps a single Chrome browser process leased out to one render
// at a time (or, in persistent-session mode, kept bound to one origin
// across many leases).
type Context struct {
	ID              int
	origin          string // "" for ephemeral (non-persistent) contexts
	ctx             context.Context
	cancel          context.CancelFunc
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	createdAt       time.Time
	logger          *zap.Logger
	browserVersion  string

	status       int32
	requestsDone int32
	lastUsedNano int64
	currentLease string
}

// Stats summarizes the pool's current occupancy.
type Stats struct {
	TotalInstances     int
	AvailableInstances int
	ActiveInstances    int
	TotalRenders       int64
	TotalRestarts      int64
	Uptime             time.Duration
}
