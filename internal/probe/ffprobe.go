package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/podible/podible/internal/model"
)

// FFprobeEngine probes audio files by shelling out to ffprobe. It is the
// default Engine: it covers every container the scanner can encounter
// (mp3, m4a, m4b) uniformly, at the cost of a child-process invocation
// per probe.
type FFprobeEngine struct {
	// BinPath overrides the ffprobe binary looked up on PATH.
	BinPath string
}

// NewFFprobeEngine returns an Engine that shells out to ffprobe.
func NewFFprobeEngine(binPath string) *FFprobeEngine {
	return &FFprobeEngine{BinPath: binPath}
}

func (e *FFprobeEngine) bin() string {
	if e.BinPath != "" {
		return e.BinPath
	}
	return "ffprobe"
}

func (e *FFprobeEngine) Probe(ctx context.Context, path string) (Result, error) {
	cmd := exec.CommandContext(ctx, e.bin(), //nolint:gosec // path is server-controlled, not user input
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_chapters",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe: %w", err)
	}

	var payload ffprobeOutput
	if err := json.Unmarshal(out, &payload); err != nil {
		return Result{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var duration float64
	if payload.Format.Duration != "" {
		duration, _ = strconv.ParseFloat(payload.Format.Duration, 64)
	}

	chapters := make([]model.ProbedChapter, 0, len(payload.Chapters))
	for _, ch := range payload.Chapters {
		start, _ := strconv.ParseFloat(ch.StartTime, 64)
		end, _ := strconv.ParseFloat(ch.EndTime, 64)
		chapters = append(chapters, model.ProbedChapter{
			StartTime: start,
			EndTime:   end,
			Tags:      ch.Tags,
		})
	}

	return Result{
		Duration: duration,
		Tags:     payload.Format.Tags,
		Chapters: chapters,
	}, nil
}

type ffprobeOutput struct {
	Format   ffprobeFormat    `json:"format"`
	Chapters []ffprobeChapter `json:"chapters"`
}

type ffprobeFormat struct {
	Duration string            `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

type ffprobeChapter struct {
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Tags      map[string]string `json:"tags"`
}
