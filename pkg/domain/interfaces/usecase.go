package interfaces

import (
	"context"

	"github.com/m-mizutani/hauler/pkg/domain/model"
)

// DownloadUseCase defines the download operations exposed to the CLI
type DownloadUseCase interface {
	// Fetch starts a fresh transfer from a resolved source
	Fetch(ctx context.Context, src *model.Source) error

	// Resume continues the transfer whose data file is dataPath
	Resume(ctx context.Context, dataPath string) error
}

// PruneUseCase defines cleanup of leftover control files
type PruneUseCase interface {
	// Prune removes stale control files in dir and returns how many
	Prune(ctx context.Context, dir string) (int, error)
}
