// Package transcodeworker runs the single transcode worker: it consumes
// the Job Queue one job at a time, drives a convert.Engine, and promotes
// completed output into the Library Index.
package transcodeworker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/podible/podible/internal/convert"
	"github.com/podible/podible/internal/jobqueue"
	"github.com/podible/podible/internal/libraryindex"
	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/transcodestate"
)

// persistThrottle is how often in-progress persistence is written to
// disk; logging is further rate-limited independently (see logThrottle).
const persistThrottle = 2 * time.Second

// logThrottle bounds how often a human-readable progress line is
// logged, once at least 5s of output time has elapsed since the last one.
const logThrottle = 1500 * time.Millisecond

const logProgressStep = 5 * time.Second

// Worker drains Jobs one at a time and never runs two conversions
// concurrently — the engine is CPU-heavy and progress reporting assumes
// a single active job.
type Worker struct {
	Jobs     *jobqueue.Queue
	InFlight *jobqueue.InFlight
	State    *transcodestate.Store
	Index    *libraryindex.Index
	Engine   convert.Engine
	Logger   *slog.Logger
}

// New constructs a Worker.
func New(jobs *jobqueue.Queue, inFlight *jobqueue.InFlight, state *transcodestate.Store, index *libraryindex.Index, engine convert.Engine, logger *slog.Logger) *Worker {
	return &Worker{
		Jobs:     jobs,
		InFlight: inFlight,
		State:    state,
		Index:    index,
		Engine:   engine,
		Logger:   logger,
	}
}

// Run drains jobs until ctx is cancelled. It never returns an error:
// per-job failures are recorded in the Transcode State and logged, never
// propagated, consistent with the system's "observability over
// strictness" failure policy.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ok := w.Jobs.Next(ctx)
		if !ok {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job model.Job) {
	defer w.InFlight.Remove(job.Source)

	status, ok := w.State.Get(job.Source)
	if !ok || status.Stale(job.ExpectedMtimeMS) {
		w.Logger.Debug("dropping stale transcode job", "job_id", job.ID, "source", job.Source)
		return
	}

	status.State = model.TranscodeStateWorking
	status.Error = ""
	if err := w.State.Put(status); err != nil {
		w.Logger.Error("persist working state", "source", job.Source, "error", err)
	}

	var cover []byte
	if job.Meta.CoverPath != "" {
		if data, err := os.ReadFile(job.Meta.CoverPath); err == nil {
			cover = data
		}
	}

	req := convert.Request{
		Source: job.Source,
		Target: job.Target,
		Title:  job.Meta.Title,
		Author: job.Meta.Author,
		Cover:  cover,
	}

	var lastPersist time.Time
	var lastLog time.Time
	var lastLoggedOutTime int64

	err := w.Engine.Convert(ctx, req, func(p convert.Progress) {
		if p.HasOutTime {
			status.OutTimeMS = p.OutTimeMS
		}
		if p.HasSpeed {
			status.Speed = p.Speed
		}

		now := time.Now()
		if now.Sub(lastPersist) >= persistThrottle {
			lastPersist = now
			if err := w.State.Put(status); err != nil {
				w.Logger.Warn("persist progress", "source", job.Source, "error", err)
			}
		}

		if status.OutTimeMS-lastLoggedOutTime >= logProgressStep.Milliseconds() && now.Sub(lastLog) >= logThrottle {
			lastLog = now
			lastLoggedOutTime = status.OutTimeMS
			w.Logger.Info("transcode progress",
				"source", job.Source,
				"out_time_ms", status.OutTimeMS,
				"speed", status.Speed,
			)
		}
	})

	if err != nil {
		w.fail(job, status, err)
		return
	}

	w.succeed(job, status)
}

func (w *Worker) succeed(job model.Job, status *model.TranscodeStatus) {
	// Stamp the output's mtime to the source's, so the persistent
	// identity check (Source, MtimeMS) still holds after a filesystem
	// round-trip of the output file.
	sourceTime := time.UnixMilli(status.MtimeMS)
	if err := os.Chtimes(job.Target, sourceTime, sourceTime); err != nil {
		w.Logger.Warn("stamp output mtime", "target", job.Target, "error", err)
	}

	info, err := os.Stat(job.Target)
	if err != nil {
		w.fail(job, status, fmt.Errorf("stat output: %w", err))
		return
	}

	status.State = model.TranscodeStateDone
	status.Error = ""
	if err := w.State.Put(status); err != nil {
		w.Logger.Error("persist done state", "source", job.Source, "error", err)
	}

	book := model.NewSingleBook(job.Meta.ID, job.Meta.Title, job.Meta.Author, model.MimeForPath(job.Target), job.Target, info.Size())
	book.CoverPath = job.Meta.CoverPath
	book.EpubPath = job.Meta.EpubPath
	book.Description = job.Meta.Description
	book.DescriptionHTML = job.Meta.DescriptionHTML
	book.Language = job.Meta.Language
	book.ISBN = job.Meta.ISBN
	book.Identifiers = job.Meta.Identifiers
	book.Narrator = job.Meta.Narrator
	book.Series = job.Meta.Series
	book.SeriesPart = job.Meta.SeriesPart
	book.ASIN = job.Meta.ASIN
	book.DurationSeconds = float64(status.DurationMS) / 1000
	if job.Meta.PublishedAt != nil {
		t := time.UnixMilli(*job.Meta.PublishedAt)
		book.PublishedAt = &t
	}
	now := time.Now()
	book.AddedAt = &now

	if err := w.Index.Put(book); err != nil {
		w.Logger.Error("promote book into index", "id", book.ID, "error", err)
	}

	w.Logger.Info("transcode completed", "job_id", job.ID, "source", job.Source, "target", job.Target, "size", info.Size())
}

func (w *Worker) fail(job model.Job, status *model.TranscodeStatus, cause error) {
	status.State = model.TranscodeStateFailed
	status.Error = cause.Error()
	if err := w.State.Put(status); err != nil {
		w.Logger.Error("persist failed state", "source", job.Source, "error", err)
	}
	w.Logger.Error("transcode failed", "job_id", job.ID, "source", job.Source, "error", cause)
}
