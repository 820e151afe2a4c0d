package usecase

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	controller "github.com/m-mizutani/hauler/pkg/controller/http"
	"github.com/m-mizutani/hauler/pkg/domain/interfaces"
	"github.com/m-mizutani/hauler/pkg/domain/model"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/m-mizutani/hauler/pkg/utils/async"
	"github.com/m-mizutani/hauler/pkg/utils/bytefmt"
)

// SpaceChecker verifies a directory's filesystem can hold need bytes
type SpaceChecker func(dir string, need int64) error

// Download orchestrates one transfer: probe, plan or reload, disk
// check, then hand the plan to the engine.
type Download struct {
	prober    interfaces.Prober
	store     interfaces.ControlStore
	newEngine interfaces.EngineFactory

	dir         string
	out         string
	force       bool
	splitSize   int64
	concurrency int
	minFree     int64
	statusAddr  string
	checkSpace  SpaceChecker
}

// DownloadOption configures the download use case
type DownloadOption func(*Download)

// WithDir sets the download directory
func WithDir(dir string) DownloadOption {
	return func(uc *Download) {
		uc.dir = dir
	}
}

// WithOutput overrides the output filename
func WithOutput(name string) DownloadOption {
	return func(uc *Download) {
		uc.out = name
	}
}

// WithForce replaces an existing completed file instead of failing
func WithForce(force bool) DownloadOption {
	return func(uc *Download) {
		uc.force = force
	}
}

// WithSplitSize sets the minimum bytes per segment
func WithSplitSize(n int64) DownloadOption {
	return func(uc *Download) {
		uc.splitSize = n
	}
}

// WithConcurrency sets how many segment workers run at once
func WithConcurrency(n int) DownloadOption {
	return func(uc *Download) {
		uc.concurrency = n
	}
}

// WithMinFree sets the extra free space required beyond the expected size
func WithMinFree(n int64) DownloadOption {
	return func(uc *Download) {
		uc.minFree = n
	}
}

// WithStatusAddr serves live progress on the given address during the
// transfer; empty disables the endpoint
func WithStatusAddr(addr string) DownloadOption {
	return func(uc *Download) {
		uc.statusAddr = addr
	}
}

// WithSpaceChecker sets the free disk space check; nil skips it
func WithSpaceChecker(check SpaceChecker) DownloadOption {
	return func(uc *Download) {
		uc.checkSpace = check
	}
}

// NewDownload creates a new instance of DownloadUseCase
func NewDownload(prober interfaces.Prober, store interfaces.ControlStore, newEngine interfaces.EngineFactory, opts ...DownloadOption) *Download {
	uc := &Download{
		prober:      prober,
		store:       store,
		newEngine:   newEngine,
		dir:         ".",
		splitSize:   16 * 1024 * 1024,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Fetch starts a fresh transfer from a resolved source.
func (uc *Download) Fetch(ctx context.Context, src *model.Source) error {
	logger := ctxlog.From(ctx)

	logger.Info("probing source",
		slog.String("kind", string(src.Kind)),
		slog.String("url", src.URLs[0]),
	)

	info, err := uc.prober.Probe(ctx, src.URLs[0])
	if err != nil {
		return err
	}

	urls := append([]string(nil), src.URLs...)
	if info.FinalURL != "" && info.FinalURL != urls[0] {
		logger.Debug("following redirected URL", slog.String("final_url", info.FinalURL))
		urls[0] = info.FinalURL
	}

	name := uc.pickFilename(info, src)
	dataPath := filepath.Join(uc.dir, name)

	if _, err := os.Stat(model.ControlPath(dataPath)); err == nil {
		return goerr.New("a partial download already exists for this file, use --resume to continue it",
			goerr.T(types.TagBadInput),
			goerr.V("file", dataPath),
			goerr.V("control", model.ControlPath(dataPath)),
		)
	}
	if _, err := os.Stat(dataPath); err == nil && !uc.force {
		return goerr.New("file already exists, use --force to replace it",
			goerr.T(types.TagBadInput), goerr.V("file", dataPath))
	}

	size := info.Size
	if size <= 0 && src.Size > 0 {
		size = src.Size
	}
	if src.Size > 0 && info.Size > 0 && src.Size != info.Size {
		return goerr.New("web seed size does not match the torrent metadata",
			goerr.T(types.TagTransfer),
			goerr.V("torrent", src.Size),
			goerr.V("remote", info.Size),
		)
	}

	if err := uc.ensureSpace(size, 0); err != nil {
		return err
	}

	ctrl := model.NewControl(src.Raw, urls, name, size, uc.splitSize)
	ctrl.ETag = info.ETag
	ctrl.LastModified = info.LastModified
	ctrl.Segments = model.PlanSegments(size, uc.splitSize, uc.concurrency, info.Rangeable)

	logger.Info("transfer planned",
		slog.String("file", dataPath),
		slog.String("size", bytefmt.Format(max(size, 0))),
		slog.Bool("rangeable", info.Rangeable),
		slog.Int("segments", len(ctrl.Segments)),
	)

	return uc.run(ctx, ctrl, dataPath)
}

// Resume continues the transfer whose data file is dataPath. The remote
// must still serve the same content: size and validator are re-checked
// against the control file before any byte is requested.
func (uc *Download) Resume(ctx context.Context, dataPath string) error {
	logger := ctxlog.From(ctx)

	ctrl, err := uc.store.Load(model.ControlPath(dataPath))
	if err != nil {
		return err
	}

	info, err := uc.prober.Probe(ctx, ctrl.URLs[0])
	if err != nil {
		return err
	}

	if ctrl.Size > 0 && info.Size > 0 && ctrl.Size != info.Size {
		return goerr.New("remote content changed since the download started (size mismatch)",
			goerr.T(types.TagTransfer),
			goerr.V("stored", ctrl.Size),
			goerr.V("remote", info.Size),
		)
	}
	if ctrl.ETag != "" && info.ETag != "" && ctrl.ETag != info.ETag {
		return goerr.New("remote content changed since the download started (ETag mismatch)",
			goerr.T(types.TagTransfer),
			goerr.V("stored", ctrl.ETag),
			goerr.V("remote", info.ETag),
		)
	}
	if ctrl.ETag == "" && ctrl.LastModified != "" && info.LastModified != "" && ctrl.LastModified != info.LastModified {
		return goerr.New("remote content changed since the download started (Last-Modified mismatch)",
			goerr.T(types.TagTransfer),
			goerr.V("stored", ctrl.LastModified),
			goerr.V("remote", info.LastModified),
		)
	}

	// Open-ended segments restart from scratch: without a fixed range
	// there is nothing to resume against.
	for i, seg := range ctrl.Segments {
		if seg.End < 0 {
			ctrl.Segments[i].Done = 0
		}
	}

	if err := uc.ensureSpace(ctrl.Size, ctrl.Done()); err != nil {
		return err
	}

	logger.Info("resuming transfer",
		slog.String("id", ctrl.ID),
		slog.String("file", dataPath),
		slog.String("done", bytefmt.Format(ctrl.Done())),
		slog.String("size", bytefmt.Format(max(ctrl.Size, 0))),
	)

	return uc.run(ctx, ctrl, dataPath)
}

// pickFilename resolves the output name: explicit --out first, then the
// remote's Content-Disposition/path name, then the source display name.
func (uc *Download) pickFilename(info *model.RemoteInfo, src *model.Source) string {
	switch {
	case uc.out != "":
		return uc.out
	case info.Filename != "":
		return info.Filename
	case src.Name != "":
		return src.Name
	default:
		return "index.html"
	}
}

func (uc *Download) ensureSpace(size, done int64) error {
	if uc.checkSpace == nil || size <= 0 {
		return nil
	}
	need := size - done + uc.minFree
	if need < 0 {
		need = 0
	}
	return uc.checkSpace(uc.dir, need)
}

func (uc *Download) run(ctx context.Context, ctrl *model.Control, dataPath string) error {
	logger := ctxlog.From(ctx)
	eng := uc.newEngine(ctrl, dataPath)

	if uc.statusAddr != "" {
		server, err := controller.NewServer(ctx, eng, controller.WithAddr(uc.statusAddr))
		if err != nil {
			return goerr.Wrap(err, "failed to create status server")
		}

		async.Dispatch(ctx, func(ctx context.Context) error {
			ctxlog.From(ctx).Info("status server starting", slog.String("addr", uc.statusAddr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return goerr.Wrap(err, "status server failed")
			}
			return nil
		})

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to shut down status server", slog.Any("error", err))
			}
		}()
	}

	started := time.Now()
	if err := eng.Run(ctx); err != nil {
		return err
	}

	snap := eng.Snapshot()
	logger.Info("download finished",
		slog.String("file", dataPath),
		slog.String("size", bytefmt.Format(snap.Done)),
		slog.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return nil
}
