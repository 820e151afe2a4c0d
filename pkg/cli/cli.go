package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/hauler/pkg/cli/config"
	"github.com/m-mizutani/hauler/pkg/domain/model"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/m-mizutani/hauler/pkg/infra/engine"
	"github.com/m-mizutani/hauler/pkg/infra/fetch"
	"github.com/m-mizutani/hauler/pkg/infra/storage"
	"github.com/m-mizutani/hauler/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Run runs the CLI application
func Run(ctx context.Context, args []string) error {
	var (
		loggerCfg   config.Logger
		inputCfg    config.Input
		storageCfg  config.Storage
		transferCfg config.Transfer
		networkCfg  config.Network
		statusCfg   config.Status
		configPath  string
	)
	var logger *slog.Logger

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "TOML config file supplying defaults",
			Destination: &configPath,
			Sources:     cli.EnvVars("HAULER_CONFIG"),
		},
	}
	flags = append(flags, loggerCfg.Flags()...)
	flags = append(flags, inputCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)
	flags = append(flags, transferCfg.Flags()...)
	flags = append(flags, networkCfg.Flags()...)
	flags = append(flags, statusCfg.Flags()...)

	app := &cli.Command{
		Name:    "hauler",
		Usage:   "Segmented HTTP(S) downloader with resume support",
		Version: types.Version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			path := configPath
			if path == "" {
				path = config.DefaultFilePath()
			}
			if path != "" {
				file, err := config.LoadFile(path, c.IsSet("config"))
				if err != nil {
					return nil, err
				}
				if err := file.Apply(c, &loggerCfg, &transferCfg, &networkCfg, &storageCfg, &statusCfg); err != nil {
					return nil, err
				}
			}

			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)
			return ctx, nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := inputCfg.Validate(); err != nil {
				_ = cli.ShowAppHelp(c)
				return err
			}
			return runDownload(ctx, &inputCfg, &storageCfg, &transferCfg, &networkCfg, &statusCfg)
		},
		Commands: []*cli.Command{
			cmdPrune(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("hauler failed", slog.Any("error", err))
		return err
	}

	return nil
}

func runDownload(
	ctx context.Context,
	inputCfg *config.Input,
	storageCfg *config.Storage,
	transferCfg *config.Transfer,
	networkCfg *config.Network,
	statusCfg *config.Status,
) error {
	logger := ctxlog.From(ctx)

	tuning, err := transferCfg.Validate()
	if err != nil {
		return err
	}

	// Directory checks run before any network traffic
	if err := storage.EnsureDir(storageCfg.Dir); err != nil {
		return err
	}

	client, err := fetch.New(
		fetch.WithUserAgent(networkCfg.UserAgent),
		fetch.WithHeaders(networkCfg.Headers),
		fetch.WithCookiesFile(networkCfg.Cookies),
		fetch.WithTimeout(tuning.Timeout),
		fetch.WithMaxConnsPerHost(tuning.Connections),
	)
	if err != nil {
		return err
	}

	store := storage.NewControlStore()
	uc := usecase.NewDownload(
		client,
		store,
		engine.Factory(client, store, engine.Config{
			Concurrency:  tuning.Concurrency,
			Retries:      tuning.Retries,
			RetryWait:    tuning.RetryWait,
			StallTimeout: tuning.Timeout,
			MaxRate:      tuning.MaxRate,
		}),
		usecase.WithDir(storageCfg.Dir),
		usecase.WithOutput(storageCfg.Out),
		usecase.WithForce(storageCfg.Force),
		usecase.WithSplitSize(tuning.SplitSize),
		usecase.WithConcurrency(tuning.Concurrency),
		usecase.WithMinFree(tuning.MinFree),
		usecase.WithStatusAddr(statusCfg.Addr),
		usecase.WithSpaceChecker(storage.CheckFreeSpace),
	)

	// Forward SIGINT/SIGTERM as cancellation so a partial transfer
	// flushes its control file before exiting
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case inputCfg.Resume != "":
		return uc.Resume(sigCtx, resolveResumePath(inputCfg.Resume, storageCfg.Dir))

	case inputCfg.Torrent:
		path, err := storage.LatestTorrent(storageCfg.Dir)
		if err != nil {
			return err
		}
		logger.Info("using most recent torrent file", slog.String("path", path))
		src, err := model.ResolveTorrentFile(path)
		if err != nil {
			return err
		}
		return uc.Fetch(sigCtx, src)

	default:
		src, err := model.ResolveInput(inputCfg.Link)
		if err != nil {
			return err
		}
		return uc.Fetch(sigCtx, src)
	}
}

// resolveResumePath interprets a bare filename relative to the download
// directory when it does not name an existing file on its own.
func resolveResumePath(path, dir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(model.ControlPath(path)); err == nil {
		return path
	}
	inDir := filepath.Join(dir, path)
	if _, err := os.Stat(model.ControlPath(inDir)); err == nil {
		return inDir
	}
	return path
}
