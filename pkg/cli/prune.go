package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/hauler/pkg/cli/config"
	"github.com/m-mizutani/hauler/pkg/infra/storage"
	"github.com/m-mizutani/hauler/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdPrune() *cli.Command {
	var storageCfg config.Storage

	return &cli.Command{
		Name:  "prune",
		Usage: "Delete leftover control files whose transfer cannot be resumed",
		Flags: storageCfg.DirFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			uc := usecase.NewPrune(storage.NewControlStore())
			removed, err := uc.Prune(ctx, storageCfg.Dir)
			if err != nil {
				return err
			}

			logger.Info("prune complete",
				slog.String("dir", storageCfg.Dir),
				slog.Int("removed", removed),
			)
			return nil
		},
	}
}
