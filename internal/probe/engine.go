// Package probe defines the pluggable contract for reading a file's
// duration, tag dictionary, and embedded chapter list without decoding
// audio, and the default ffprobe-backed implementation.
package probe

import (
	"context"

	"github.com/podible/podible/internal/model"
)

// Result is the raw output of probing one audio file.
type Result struct {
	Duration float64
	Tags     map[string]string
	Chapters []model.ProbedChapter
}

// Engine probes a single audio file. Implementations shell out to an
// external tool or parse the container natively; both are valid per the
// spec's "the implementation is free to choose an engine" clause.
type Engine interface {
	Probe(ctx context.Context, path string) (Result, error)
}
