// Package core wires the Scanner, Watcher, Probe Cache, Job Queue,
// Transcode Worker, Library Index, Transcode State Store, Chapter-Tag
// Encoder, and Virtual Stream Assembler into the single long-lived value
// an entry point constructs once and holds for the life of the process.
//
// This replaces the teacher's samber/do/v2 DI container: there is no
// generic dependency graph to resolve here, just one fixed wiring, so a
// plain struct with an explicit Close is simpler and was the spec's own
// instructed redesign (§9).
package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/podible/podible/internal/apikey"
	"github.com/podible/podible/internal/apperr"
	"github.com/podible/podible/internal/chaptertag"
	"github.com/podible/podible/internal/config"
	"github.com/podible/podible/internal/convert"
	"github.com/podible/podible/internal/discovery"
	"github.com/podible/podible/internal/jobqueue"
	"github.com/podible/podible/internal/libraryindex"
	"github.com/podible/podible/internal/lock"
	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/probe"
	"github.com/podible/podible/internal/probecache"
	"github.com/podible/podible/internal/ratelimit"
	"github.com/podible/podible/internal/scanner"
	"github.com/podible/podible/internal/statuspush"
	"github.com/podible/podible/internal/stream"
	"github.com/podible/podible/internal/transcodestate"
	"github.com/podible/podible/internal/transcodeworker"
	"github.com/podible/podible/internal/watcher"
)

// Core holds every long-lived component and the persisted stores they
// share.
type Core struct {
	Config *config.Config
	Logger *slog.Logger

	APIKey string

	dataLock *lock.DataDir

	Probes         *probecache.Cache
	TranscodeState *transcodestate.Store
	Index          *libraryindex.Index
	Jobs           *jobqueue.Queue
	InFlight       *jobqueue.InFlight

	Scanner   *scanner.Scanner
	Worker    *transcodeworker.Worker
	Watcher   *watcher.Watcher
	Assembler *stream.Assembler
	StatusHub *statuspush.Hub
	Discovery *discovery.Service
	RateLimit *ratelimit.KeyedRateLimiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Core: it acquires the data-directory lock, loads the
// persisted stores, ensures the API key file, and wires every component.
// It does not start any background goroutine — call Start for that.
func New(cfg *config.Config, logger *slog.Logger) (*Core, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dataLock, err := lock.Acquire(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("acquire data directory lock: %w", err)
	}

	key, err := apikey.EnsureFile(filepath.Join(cfg.Data.Dir, "api-key.txt"))
	if err != nil {
		dataLock.Release() //nolint:errcheck // best-effort unwind
		return nil, fmt.Errorf("ensure api key: %w", err)
	}

	probes := probecache.New(probe.NewFFprobeEngine(""), filepath.Join(cfg.Data.Dir, "probe-cache.json"))
	if err := probes.Load(); err != nil {
		logger.Warn("load probe cache", "error", err)
	}

	transcodeState := transcodestate.New(filepath.Join(cfg.Data.Dir, "transcode-status.json"))
	if err := transcodeState.Load(); err != nil {
		logger.Warn("load transcode state", "error", err)
	}

	index := libraryindex.New(filepath.Join(cfg.Data.Dir, "library-index.json"))
	if err := index.Load(); err != nil {
		logger.Warn("load library index", "error", err)
	}

	jobs := jobqueue.New()
	inFlight := jobqueue.NewInFlight()

	coverDir := filepath.Join(cfg.Data.Dir, "covers")
	if err := os.MkdirAll(coverDir, 0o755); err != nil {
		dataLock.Release() //nolint:errcheck // best-effort unwind
		return nil, fmt.Errorf("create cover directory: %w", err)
	}
	outputDir := filepath.Join(cfg.Data.Dir, "normalized")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		dataLock.Release() //nolint:errcheck // best-effort unwind
		return nil, fmt.Errorf("create normalized output directory: %w", err)
	}

	sc := scanner.New(cfg.Library.Roots, coverDir, outputDir, probes, transcodeState, index, jobs, inFlight, logger)

	engine, err := convert.NewFFmpegEngine(cfg.Transcode.FFmpegPath)
	if err != nil {
		logger.Warn("ffmpeg engine unavailable, transcoding disabled until it is", "error", err)
	}
	worker := transcodeworker.New(jobs, inFlight, transcodeState, index, engine, logger)

	var disc *discovery.Service
	if cfg.Server.AdvertiseMDNS {
		disc = discovery.NewService(logger)
	}

	c := &Core{
		Config:         cfg,
		Logger:         logger,
		APIKey:         key,
		dataLock:       dataLock,
		Probes:         probes,
		TranscodeState: transcodeState,
		Index:          index,
		Jobs:           jobs,
		InFlight:       inFlight,
		Scanner:        sc,
		Worker:         worker,
		Assembler:      stream.New(),
		StatusHub:      statuspush.New(logger),
		Discovery:      disc,
		RateLimit:      ratelimit.New(4, 8),
	}

	w, err := watcher.New(logger, watcher.Options{}, func(ctx context.Context) {
		if err := c.Scanner.Scan(ctx); err != nil {
			logger.Error("rescan", "error", err)
		}
	})
	if err != nil {
		dataLock.Release() //nolint:errcheck // best-effort unwind
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, root := range cfg.Library.Roots {
		if err := w.Watch(root); err != nil {
			logger.Error("watch library root", "root", root, "error", err)
		}
	}
	c.Watcher = w

	return c, nil
}

// Start runs the initial scan and launches every long-lived background
// task (worker, watcher, status hub, optional mDNS advertisement). It
// returns once the initial scan completes; the background tasks continue
// until ctx is cancelled or Close is called.
func (c *Core) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.Scanner.Scan(runCtx); err != nil {
		c.Logger.Error("initial scan", "error", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Worker.Run(runCtx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.StatusHub.Run(runCtx)
	}()

	if len(c.Config.Library.Roots) > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.Watcher.Start(runCtx); err != nil {
				c.Logger.Error("watcher", "error", err)
			}
		}()
	}

	if c.Discovery != nil {
		port := 0
		fmt.Sscanf(c.Config.Server.Port, "%d", &port) //nolint:errcheck // best-effort; 0 still lets avahi pick a meaningful default downstream
		if err := c.Discovery.Start(c.Config.Server.Name, port); err != nil {
			c.Logger.Warn("mdns advertisement unavailable", "error", err)
		}
	}

	return nil
}

// Close stops every background task and releases the data-directory
// lock. It is safe to call once, after Start.
func (c *Core) Close(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.Discovery != nil {
		c.Discovery.Stop()
	}
	if err := c.Watcher.Stop(); err != nil {
		c.Logger.Warn("stop watcher", "error", err)
	}
	c.StatusHub.Shutdown(ctx)
	c.RateLimit.Stop()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.Logger.Warn("core shutdown timed out waiting for background tasks")
	}

	return c.dataLock.Release()
}

// BooksSorted returns every currently-streamable Book, newest first —
// the canonical set for the stream/chapters endpoints.
func (c *Core) BooksSorted() []*model.Book {
	return c.Index.All()
}

// Find looks up a single Book by id among the currently-streamable set.
func (c *Core) Find(id string) (*model.Book, bool) {
	return c.Index.Get(id)
}

// FeedBooksSorted returns the operator-visible superset of BooksSorted:
// every ready Book plus every single still pending transcode, so
// operators can see what the scanner has found even before it is
// streamable. Pending entries carry no primary file, so Streamable()
// reports false for them.
func (c *Core) FeedBooksSorted() []*model.Book {
	ready := c.Index.All()

	out := make([]*model.Book, 0, len(ready))
	out = append(out, ready...)

	for _, st := range c.TranscodeState.All() {
		if st.State != model.TranscodeStatePending || st.Meta == nil {
			continue
		}
		b := model.NewSingleBook(st.Meta.ID, st.Meta.Title, st.Meta.Author, st.Meta.Mime, "", 0)
		b.CoverPath = st.Meta.CoverPath
		b.EpubPath = st.Meta.EpubPath
		if st.Meta.PublishedAt != nil {
			t := time.UnixMilli(*st.Meta.PublishedAt)
			b.PublishedAt = &t
		}
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SortKey().After(out[j].SortKey())
	})
	return out
}

// Tag returns the chapter-tag prefix bytes for book, or nil for a single
// (its chapters and cover are embedded directly in the normalized
// container by the Transcode Worker; only multi books stream as a
// virtual concatenation needing a synthesized prefix).
func (c *Core) Tag(book *model.Book) []byte {
	if book.Kind != model.KindMulti {
		return nil
	}
	var cover *chaptertag.Cover
	if book.CoverPath != "" {
		if data, err := os.ReadFile(book.CoverPath); err == nil {
			cover = &chaptertag.Cover{Mime: coverMime(book.CoverPath), Data: data}
		}
	}
	return chaptertag.Encode(book.Multi.Chapters, cover)
}

func coverMime(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// ChapterEntry is one entry in the chapters(book) response, per §6's
// wire shape.
type ChapterEntry struct {
	StartTimeSeconds float64 `json:"start_time_seconds"`
	Title            string  `json:"title"`
}

// ChaptersResponse is the chapters(book) query result.
type ChaptersResponse struct {
	Version  string         `json:"version"`
	Chapters []ChapterEntry `json:"chapters"`
}

const chaptersWireVersion = "1.2.0"

// Chapters returns the chapter table for book. Multi books use their own
// synthesized table; singles have none unless the probe cache recovers
// one from the original (pre-normalization) source via the reverse
// Source/Target lookup in the Transcode State store.
func (c *Core) Chapters(ctx context.Context, book *model.Book) (ChaptersResponse, error) {
	resp := ChaptersResponse{Version: chaptersWireVersion, Chapters: []ChapterEntry{}}

	switch book.Kind {
	case model.KindMulti:
		for _, ch := range book.Multi.Chapters {
			resp.Chapters = append(resp.Chapters, ChapterEntry{
				StartTimeSeconds: float64(ch.StartMS) / 1000,
				Title:            ch.Title,
			})
		}
		return resp, nil

	case model.KindSingle:
		st, ok := c.TranscodeState.FindByTarget(book.Single.PrimaryFile)
		if !ok {
			return resp, nil
		}
		timings, err := c.Probes.Chapters(ctx, st.Source, st.MtimeMS)
		if err != nil {
			return resp, apperr.Wrap(err, apperr.CodeProbeFailed, "probe chapters")
		}
		for _, ch := range timings {
			resp.Chapters = append(resp.Chapters, ChapterEntry{
				StartTimeSeconds: float64(ch.StartMS) / 1000,
				Title:            ch.Title,
			})
		}
		return resp, nil

	default:
		return resp, nil
	}
}

// StateCounts is the per-state job count shown on the operator status page.
type StateCounts struct {
	Pending int `json:"pending"`
	Working int `json:"working"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// Status is the state-inspection snapshot for the operator status page.
type Status struct {
	QueueDepth    int                    `json:"queue_depth"`
	Counts        StateCounts            `json:"counts"`
	ActiveJob     *model.TranscodeStatus `json:"active_job,omitempty"`
	ProbeFailures []probecache.Failure   `json:"probe_failures,omitempty"`
}

// StatusSnapshot reports the current queue depth, per-state counts, the
// active job's progress sample (if any), and the probe-failure list.
func (c *Core) StatusSnapshot() Status {
	s := Status{QueueDepth: c.Jobs.Len(), ProbeFailures: c.Probes.Failures()}

	for _, st := range c.TranscodeState.All() {
		switch st.State {
		case model.TranscodeStatePending:
			s.Counts.Pending++
		case model.TranscodeStateWorking:
			s.Counts.Working++
			s.ActiveJob = st
		case model.TranscodeStateDone:
			s.Counts.Done++
		case model.TranscodeStateFailed:
			s.Counts.Failed++
		}
	}

	return s
}
