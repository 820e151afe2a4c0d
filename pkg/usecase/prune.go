package usecase

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/interfaces"
	"github.com/m-mizutani/hauler/pkg/domain/model"
	"github.com/m-mizutani/hauler/pkg/domain/types"
)

// Prune removes leftover control files whose transfer can no longer be
// resumed: the data file is gone, or the transfer already finished.
type Prune struct {
	store interfaces.ControlStore
}

// NewPrune creates a new instance of PruneUseCase
func NewPrune(store interfaces.ControlStore) *Prune {
	return &Prune{store: store}
}

// Prune scans dir for control files and deletes the stale ones,
// returning how many were removed. Unreadable control files are left in
// place with a warning: deleting state we cannot inspect is worse than
// keeping it.
func (uc *Prune) Prune(ctx context.Context, dir string) (int, error) {
	logger := ctxlog.From(ctx)

	matches, err := filepath.Glob(filepath.Join(dir, "*"+model.ControlSuffix))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to scan download directory", goerr.T(types.TagStorage), goerr.V("dir", dir))
	}

	removed := 0
	for _, ctrlPath := range matches {
		dataPath := strings.TrimSuffix(ctrlPath, model.ControlSuffix)

		var reason string
		if _, err := os.Stat(dataPath); errors.Is(err, fs.ErrNotExist) {
			reason = "data file is gone"
		} else {
			ctrl, err := uc.store.Load(ctrlPath)
			if err != nil {
				logger.Warn("skipping unreadable control file",
					slog.String("path", ctrlPath),
					slog.Any("error", err),
				)
				continue
			}
			if ctrl.Complete() {
				reason = "transfer is already complete"
			}
		}
		if reason == "" {
			continue
		}

		if err := uc.store.Remove(ctrlPath); err != nil {
			logger.Warn("failed to remove control file",
				slog.String("path", ctrlPath),
				slog.Any("error", err),
			)
			continue
		}
		logger.Info("removed stale control file",
			slog.String("path", ctrlPath),
			slog.String("reason", reason),
		)
		removed++
	}

	return removed, nil
}
