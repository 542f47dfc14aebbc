// Package probecache memoizes probe.Engine results by (path, mtime),
// persisting every probe — success or failure — so a file that fails to
// probe is not retried on every scan.
package probecache

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/persist"
	"github.com/podible/podible/internal/probe"
)

// entry is the on-disk shape for one cached probe, matching the
// persistence contract's "{ file, mtime_ms, data|null, error? }".
type entry struct {
	File    string            `json:"file"`
	MtimeMS int64             `json:"mtime_ms"`
	Data    *data             `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type data struct {
	Duration float64               `json:"duration"`
	Tags     map[string]string     `json:"tags,omitempty"`
	Chapters []model.ProbedChapter `json:"chapters,omitempty"`
}

// Cache is the process-wide probe memo. A Cache is safe for concurrent
// use by the Scanner and any out-of-band inspection tooling.
type Cache struct {
	engine probe.Engine
	path   string

	mu      sync.RWMutex
	records map[string]model.ProbeRecord
}

// New constructs an empty cache backed by engine, persisted at path.
func New(engine probe.Engine, path string) *Cache {
	return &Cache{
		engine:  engine,
		path:    path,
		records: make(map[string]model.ProbeRecord),
	}
}

// Load reads the persisted cache from disk, if present. A missing or
// unreadable file leaves the cache empty, per the store-wide contract.
func (c *Cache) Load() error {
	var entries []entry
	if _, err := persist.LoadJSON(c.path, &entries); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		rec := model.ProbeRecord{MtimeMS: e.MtimeMS, Error: e.Error}
		if e.Data != nil {
			d := e.Data.Duration
			rec.Duration = &d
			rec.Tags = e.Data.Tags
			rec.Chapters = e.Data.Chapters
		}
		c.records[e.File] = rec
	}
	return nil
}

// save persists the full cache contents. Must be called without mu held:
// it takes the read lock itself to snapshot, and encodes outside it.
func (c *Cache) save() error {
	c.mu.RLock()
	entries := make([]entry, 0, len(c.records))
	for file, rec := range c.records {
		e := entry{File: file, MtimeMS: rec.MtimeMS, Error: rec.Error}
		if rec.Duration != nil {
			e.Data = &data{Duration: *rec.Duration, Tags: rec.Tags, Chapters: rec.Chapters}
		}
		entries = append(entries, e)
	}
	c.mu.RUnlock()
	return persist.SaveJSON(c.path, entries)
}

// Probe returns the cached record for path if its stored mtime matches
// mtimeMS; otherwise it invokes the probe engine, stores the outcome
// (success or failure), persists the cache, and returns the fresh
// record.
func (c *Cache) Probe(ctx context.Context, path string, mtimeMS int64) (model.ProbeRecord, error) {
	c.mu.RLock()
	rec, ok := c.records[path]
	c.mu.RUnlock()
	if ok && rec.MtimeMS == mtimeMS {
		return rec, nil
	}

	result, err := c.engine.Probe(ctx, path)

	var fresh model.ProbeRecord
	fresh.MtimeMS = mtimeMS
	if err != nil {
		fresh.Error = err.Error()
	} else {
		d := result.Duration
		fresh.Duration = &d
		fresh.Tags = result.Tags
		fresh.Chapters = result.Chapters
	}

	c.mu.Lock()
	c.records[path] = fresh
	c.mu.Unlock()

	if saveErr := c.save(); saveErr != nil {
		return fresh, fmt.Errorf("persist probe cache: %w", saveErr)
	}
	return fresh, nil
}

// Duration returns path's probed duration in seconds, invalidating on
// mtime mismatch.
func (c *Cache) Duration(ctx context.Context, path string, mtimeMS int64) (float64, bool, error) {
	rec, err := c.Probe(ctx, path, mtimeMS)
	if err != nil {
		return 0, false, err
	}
	if rec.Duration == nil {
		return 0, false, nil
	}
	return *rec.Duration, true, nil
}

// Chapters returns path's probed chapters mapped into ChapterTimings,
// using 1000x-rounded millisecond conversions, synthesizing
// "Chapter {n}" for any chapter with no title.
func (c *Cache) Chapters(ctx context.Context, path string, mtimeMS int64) ([]model.ChapterTiming, error) {
	rec, err := c.Probe(ctx, path, mtimeMS)
	if err != nil {
		return nil, err
	}

	out := make([]model.ChapterTiming, 0, len(rec.Chapters))
	for i, ch := range rec.Chapters {
		title := ch.Tags["title"]
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		out = append(out, model.ChapterTiming{
			Title:   title,
			StartMS: int64(math.Round(ch.StartTime * 1000)),
			EndMS:   int64(math.Round(ch.EndTime * 1000)),
		})
	}
	return out, nil
}

// Failure is one probe-cache entry for which the probe engine failed and
// no data was ever recorded, for operator display.
type Failure struct {
	File  string
	Error string
}

// Failures lists every cache entry whose stored data is absent and
// whose error text is non-empty.
func (c *Cache) Failures() []Failure {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Failure, 0)
	for file, rec := range c.records {
		if rec.Duration == nil && rec.Error != "" {
			out = append(out, Failure{File: file, Error: rec.Error})
		}
	}
	return out
}
