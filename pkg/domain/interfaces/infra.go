package interfaces

import (
	"context"

	"github.com/m-mizutani/hauler/pkg/domain/model"
)

// Prober inspects a remote URL before a transfer is planned
type Prober interface {
	// Probe issues a HEAD request (with a ranged GET fallback) and
	// reports size, rangeability, validators, and the final URL
	Probe(ctx context.Context, rawurl string) (*model.RemoteInfo, error)
}

// ControlStore persists control files next to their data files
type ControlStore interface {
	Load(path string) (*model.Control, error)
	Save(path string, ctrl *model.Control) error
	Remove(path string) error
}

// ProgressSource exposes a live snapshot of a running transfer
type ProgressSource interface {
	Snapshot() *model.Progress
}

// Engine executes one planned transfer
type Engine interface {
	ProgressSource

	// Run downloads all pending segments and blocks until the transfer
	// completes, fails, or the context is cancelled
	Run(ctx context.Context) error
}

// EngineFactory builds an engine for one control record and data file
type EngineFactory func(ctrl *model.Control, dataPath string) Engine
