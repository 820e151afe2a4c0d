package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/interfaces"
	"github.com/m-mizutani/hauler/pkg/domain/model"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/m-mizutani/hauler/pkg/infra/fetch"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	copyBufferSize = 32 * 1024
	flushInterval  = time.Second
)

// Config tunes one transfer
type Config struct {
	Concurrency  int           // segment workers running at once
	Retries      int           // attempts per segment before the transfer fails
	RetryWait    time.Duration // pause between attempts on one segment
	StallTimeout time.Duration // cancel a request when no bytes arrive for this long
	MaxRate      int64         // overall bytes/sec cap, 0 for unlimited
}

func (c *Config) normalize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Retries < 1 {
		c.Retries = 1
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 30 * time.Second
	}
}

// Engine downloads one file as concurrent byte-range requests, writing
// every byte directly at its final offset and checkpointing progress to
// the control file.
type Engine struct {
	client   *fetch.Client
	store    interfaces.ControlStore
	ctrl     *model.Control
	dataPath string
	cfg      Config
	limiter  *rate.Limiter

	mu          sync.Mutex // guards ctrl and state
	state       model.TransferState
	totalDone   atomic.Int64
	resumedFrom int64
	startedAt   time.Time

	// set once when the server turns out to ignore range requests
	degraded atomic.Bool
}

// New creates an engine for one control record and data file
func New(client *fetch.Client, store interfaces.ControlStore, ctrl *model.Control, dataPath string, cfg Config) *Engine {
	cfg.normalize()

	e := &Engine{
		client:   client,
		store:    store,
		ctrl:     ctrl,
		dataPath: dataPath,
		cfg:      cfg,
		state:    model.StatePending,
	}
	if cfg.MaxRate > 0 {
		burst := int(cfg.MaxRate)
		if burst < 2*copyBufferSize {
			burst = 2 * copyBufferSize
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRate), burst)
	}
	return e
}

// Factory wraps New for injection into the download use case
func Factory(client *fetch.Client, store interfaces.ControlStore, cfg Config) interfaces.EngineFactory {
	return func(ctrl *model.Control, dataPath string) interfaces.Engine {
		return New(client, store, ctrl, dataPath, cfg)
	}
}

// Run executes the transfer. On success the data file is synced and the
// control file removed; on failure or cancellation the control file is
// flushed one last time and kept for resume.
func (e *Engine) Run(ctx context.Context) error {
	logger := ctxlog.From(ctx)

	file, err := os.OpenFile(e.dataPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return goerr.Wrap(err, "failed to open data file", goerr.T(types.TagStorage), goerr.V("path", e.dataPath))
	}
	defer file.Close()

	// Size the file up front for a known size. With an unknown size the
	// transfer starts from an empty file: a leftover tail from a replaced
	// file would otherwise survive past the new end of stream.
	target := e.ctrl.Size
	if target < 0 {
		target = 0
	}
	if err := file.Truncate(target); err != nil {
		return goerr.Wrap(err, "failed to size data file", goerr.T(types.TagStorage), goerr.V("path", e.dataPath))
	}

	pending := e.start()
	logger.Info("transfer started",
		slog.String("id", e.ctrl.ID),
		slog.String("file", e.dataPath),
		slog.Int64("size", e.ctrl.Size),
		slog.Int("segments", len(e.ctrl.Segments)),
		slog.Int("pending", len(pending)),
	)

	queue := make(chan int, len(pending))
	for _, idx := range pending {
		queue <- idx
	}
	close(queue)

	eg, gctx := errgroup.WithContext(ctx)
	workers := e.cfg.Concurrency
	if workers > len(pending) {
		workers = len(pending)
	}
	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			return e.worker(gctx, file, queue)
		})
	}

	stopFlush := make(chan struct{})
	var flushWG sync.WaitGroup
	flushWG.Add(1)
	go func() {
		defer flushWG.Done()
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopFlush:
				return
			case <-gctx.Done():
				return
			case <-ticker.C:
				e.flush(gctx)
			}
		}
	}()

	err = eg.Wait()
	close(stopFlush)
	flushWG.Wait()

	if err != nil {
		e.flush(ctx)
		e.setState(model.StateFailed)
		if errors.Is(err, context.Canceled) {
			logger.Warn("transfer interrupted, control file kept for resume",
				slog.String("id", e.ctrl.ID),
				slog.String("control", model.ControlPath(e.dataPath)),
			)
			return goerr.Wrap(err, "transfer interrupted")
		}
		return err
	}

	if err := e.finish(ctx, file); err != nil {
		e.flush(ctx)
		e.setState(model.StateFailed)
		return err
	}

	e.setState(model.StateCompleted)
	logger.Info("transfer completed",
		slog.String("id", e.ctrl.ID),
		slog.String("file", e.dataPath),
		slog.Int64("bytes", e.totalDone.Load()),
	)
	return nil
}

// start records the starting point and returns the indexes of segments
// that still need bytes.
func (e *Engine) start() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = model.StateRunning
	e.startedAt = time.Now()

	var pending []int
	var done int64
	for i, seg := range e.ctrl.Segments {
		done += seg.Done
		if !seg.Complete() {
			pending = append(pending, i)
		}
	}
	e.resumedFrom = done
	e.totalDone.Store(done)
	return pending
}

func (e *Engine) finish(ctx context.Context, file *os.File) error {
	if err := file.Sync(); err != nil {
		return goerr.Wrap(err, "failed to sync data file", goerr.T(types.TagStorage), goerr.V("path", e.dataPath))
	}
	if e.ctrl.Size > 0 {
		st, err := file.Stat()
		if err != nil {
			return goerr.Wrap(err, "failed to stat data file", goerr.T(types.TagStorage), goerr.V("path", e.dataPath))
		}
		if st.Size() != e.ctrl.Size {
			return goerr.New("downloaded size does not match the expected size",
				goerr.T(types.TagTransfer),
				goerr.V("expected", e.ctrl.Size),
				goerr.V("actual", st.Size()),
			)
		}
	}
	if err := e.store.Remove(model.ControlPath(e.dataPath)); err != nil {
		ctxlog.From(ctx).Warn("failed to remove control file", slog.Any("error", err))
	}
	return nil
}

func (e *Engine) worker(ctx context.Context, file *os.File, queue <-chan int) error {
	for idx := range queue {
		if e.degraded.Load() {
			// another worker owns the whole transfer now
			continue
		}
		if err := e.downloadSegment(ctx, file, idx); err != nil {
			return err
		}
	}
	return nil
}

// errTakenOver signals that a concurrent worker degraded the transfer
// to single-stream mode and this segment no longer exists.
var errTakenOver = errors.New("transfer taken over by single-stream fallback")

// wholeTransfer marks a copy that is not attributed to one segment
const wholeTransfer = -1

// retryableError marks a failure worth another attempt
type retryableError struct {
	err error
}

func (x *retryableError) Error() string {
	return "retryable: " + x.err.Error()
}

func (x *retryableError) Unwrap() error {
	return x.err
}

func retryable(err error) error {
	return &retryableError{err: err}
}

func (e *Engine) downloadSegment(ctx context.Context, file *os.File, idx int) error {
	logger := ctxlog.From(ctx)

	var lastErr error
	for attempt := 0; attempt < e.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.RetryWait):
			}
		}
		if e.degraded.Load() {
			return nil
		}

		rawurl := e.ctrl.URLs[(idx+attempt)%len(e.ctrl.URLs)]
		err := e.fetchSegment(ctx, file, idx, rawurl)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errTakenOver) {
			return nil
		}

		var rerr *retryableError
		if !errors.As(err, &rerr) {
			return err
		}
		lastErr = rerr.err
		logger.Warn("segment attempt failed",
			slog.Int("segment", idx),
			slog.Int("attempt", attempt+1),
			slog.String("url", rawurl),
			slog.Any("error", lastErr),
		)
	}

	return goerr.Wrap(lastErr, "segment failed after all retry attempts",
		goerr.T(types.TagTransfer),
		goerr.V("segment", idx),
		goerr.V("attempts", e.cfg.Retries),
	)
}

func (e *Engine) fetchSegment(ctx context.Context, file *os.File, idx int, rawurl string) error {
	seg := e.segment(idx)
	if seg.Complete() {
		return nil
	}

	// An open-ended segment cannot be resumed mid-stream: the whole
	// body comes back from offset zero, so drop any partial progress.
	if seg.End < 0 && seg.Done > 0 {
		e.rollback(idx)
		seg.Done = 0
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := e.client.NewRequest(reqCtx, rawurl)
	if err != nil {
		return err
	}

	ranged := seg.End >= 0
	if ranged {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", seg.Start+seg.Done, seg.End))
		if v := e.ctrl.Validator(); v != "" {
			req.Header.Set("If-Range", v)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return retryable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK && !ranged:
	case resp.StatusCode == http.StatusOK && ranged:
		// The server ignored the range. With nothing written yet the
		// transfer degrades once to a single stream; any progress means
		// the stored validator no longer matches the remote content.
		if e.totalDone.Load() == 0 && e.degraded.CompareAndSwap(false, true) {
			return e.takeOver(ctx, reqCtx, cancel, file, resp, rawurl)
		}
		if e.degraded.Load() {
			return errTakenOver
		}
		return goerr.New("server ignored the range request, remote content has likely changed",
			goerr.T(types.TagTransfer), goerr.V("url", rawurl))
	case isRetryableStatus(resp.StatusCode):
		return retryable(goerr.New("retryable HTTP status",
			goerr.V("status", resp.StatusCode), goerr.V("url", rawurl)))
	default:
		return goerr.New("unexpected HTTP status",
			goerr.T(types.TagTransfer), goerr.V("status", resp.StatusCode), goerr.V("url", rawurl))
	}

	var body io.Reader = resp.Body
	if ranged {
		body = io.LimitReader(resp.Body, seg.Length()-seg.Done)
	}
	if err := e.copyBody(reqCtx, cancel, file, body, seg.Start+seg.Done, idx); err != nil {
		return err
	}

	if ranged {
		if got := e.segment(idx); !got.Complete() {
			return retryable(goerr.New("response body ended before the requested range",
				goerr.V("segment", idx), goerr.V("done", got.Done), goerr.V("length", got.Length())))
		}
		return nil
	}
	e.closeOpenSegment(idx)
	return nil
}

// copyBody streams the response into the data file at absolute offsets.
// A read that stalls past StallTimeout cancels the request; the caller
// sees an ordinary read error and retries.
func (e *Engine) copyBody(ctx context.Context, cancel context.CancelFunc, file *os.File, body io.Reader, offset int64, idx int) error {
	timer := time.AfterFunc(e.cfg.StallTimeout, cancel)
	defer timer.Stop()

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			timer.Reset(e.cfg.StallTimeout)
			if e.limiter != nil {
				if lerr := e.limiter.WaitN(ctx, n); lerr != nil {
					return goerr.Wrap(lerr, "rate limiter wait interrupted", goerr.V("offset", offset))
				}
			}
			if _, werr := file.WriteAt(buf[:n], offset); werr != nil {
				return goerr.Wrap(werr, "failed to write data file",
					goerr.T(types.TagStorage), goerr.V("path", e.dataPath), goerr.V("offset", offset))
			}
			offset += int64(n)
			e.advance(idx, int64(n))
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return retryable(goerr.Wrap(rerr, "read failed", goerr.V("offset", offset)))
		}
	}
}

// takeOver rewrites the plan to one open-ended segment and downloads
// the whole body single-stream, consuming the 200 response already in
// hand for the first attempt.
func (e *Engine) takeOver(ctx, firstCtx context.Context, firstCancel context.CancelFunc, file *os.File, first *http.Response, rawurl string) error {
	ctxlog.From(ctx).Warn("server ignored range requests, falling back to a single stream",
		slog.String("url", rawurl))

	var lastErr error
	for attempt := 0; attempt < e.cfg.Retries; attempt++ {
		var resp *http.Response
		reqCtx, cancel := firstCtx, firstCancel
		if attempt == 0 && first != nil {
			resp = first
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.RetryWait):
			}

			reqCtx, cancel = context.WithCancel(ctx)
			req, err := e.client.NewRequest(reqCtx, rawurl)
			if err != nil {
				cancel()
				return err
			}
			resp, err = e.client.Do(req)
			if err != nil {
				cancel()
				lastErr = err
				continue
			}
			if resp.StatusCode != http.StatusOK {
				lastErr = goerr.New("unexpected HTTP status", goerr.V("status", resp.StatusCode), goerr.V("url", rawurl))
				resp.Body.Close()
				cancel()
				if !isRetryableStatus(resp.StatusCode) {
					return goerr.Wrap(lastErr, "single-stream download failed", goerr.T(types.TagTransfer))
				}
				continue
			}
		}

		e.totalDone.Store(0)
		err := e.copyBody(reqCtx, cancel, file, resp.Body, 0, wholeTransfer)
		resp.Body.Close()
		if attempt > 0 {
			cancel()
		}
		if err == nil {
			e.markAllComplete()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var rerr *retryableError
		if !errors.As(err, &rerr) {
			return err
		}
		lastErr = rerr.err
	}

	return goerr.Wrap(lastErr, "single-stream download failed after all retry attempts",
		goerr.T(types.TagTransfer), goerr.V("attempts", e.cfg.Retries))
}

func isRetryableStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

func (e *Engine) segment(idx int) model.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.Segments[idx]
}

func (e *Engine) advance(idx int, n int64) {
	if idx != wholeTransfer {
		e.mu.Lock()
		e.ctrl.Segments[idx].Done += n
		e.mu.Unlock()
	}
	e.totalDone.Add(n)
}

func (e *Engine) rollback(idx int) {
	e.mu.Lock()
	done := e.ctrl.Segments[idx].Done
	e.ctrl.Segments[idx].Done = 0
	e.mu.Unlock()
	e.totalDone.Add(-done)
}

// closeOpenSegment pins the end of an open-ended segment to the bytes
// actually received, so the control table can report it complete.
func (e *Engine) closeOpenSegment(idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seg := &e.ctrl.Segments[idx]
	if seg.End < 0 {
		seg.End = seg.Start + seg.Done - 1
	}
}

// markAllComplete records a finished single-stream fallback in the
// segment table without resizing it under concurrent readers.
func (e *Engine) markAllComplete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.ctrl.Segments {
		seg := &e.ctrl.Segments[i]
		if seg.End < 0 {
			seg.End = seg.Start + seg.Done - 1
			continue
		}
		seg.Done = seg.Length()
	}
}

func (e *Engine) setState(s model.TransferState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) flush(ctx context.Context) {
	e.mu.Lock()
	cp := e.ctrl.Clone()
	e.mu.Unlock()

	if err := e.store.Save(model.ControlPath(e.dataPath), cp); err != nil {
		ctxlog.From(ctx).Warn("failed to flush control file", slog.Any("error", err))
	}
}

// Snapshot implements interfaces.ProgressSource
func (e *Engine) Snapshot() *model.Progress {
	e.mu.Lock()
	state := e.state
	startedAt := e.startedAt
	resumedFrom := e.resumedFrom
	segments := make([]model.SegmentProgress, len(e.ctrl.Segments))
	for i, seg := range e.ctrl.Segments {
		segments[i] = model.SegmentProgress{Index: seg.Index, Done: seg.Done, Length: seg.Length()}
	}
	id, name, total := e.ctrl.ID, e.ctrl.Name, e.ctrl.Size
	e.mu.Unlock()

	done := e.totalDone.Load()
	p := &model.Progress{
		ID:       id,
		State:    state,
		Filename: name,
		Total:    total,
		Done:     done,
		ETA:      -1,
		Segments: segments,
	}
	if total > 0 {
		p.Percent = float64(done) / float64(total) * 100
	}
	if !startedAt.IsZero() {
		if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
			p.Rate = int64(float64(done-resumedFrom) / elapsed)
		}
	}
	if p.Rate > 0 && total > 0 {
		p.ETA = (total - done) / p.Rate
	}
	return p
}
