package probe

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"

	gomp4 "github.com/abema/go-mp4"

	"github.com/podible/podible/internal/model"
)

// MP4BoxEngine probes m4a/m4b containers by walking their box structure
// directly, without shelling to an external process. It only handles the
// MPEG-4 family; callers should fall back to another Engine for mp3.
type MP4BoxEngine struct{}

// NewMP4BoxEngine returns an Engine that reads MP4 boxes natively.
func NewMP4BoxEngine() *MP4BoxEngine {
	return &MP4BoxEngine{}
}

func (e *MP4BoxEngine) Probe(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path) //nolint:gosec // path is server-controlled, not user input
	if err != nil {
		return Result{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var timescale uint32
	var duration uint64
	var chplData []byte

	_, err = gomp4.ReadBoxStructure(f, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMoov(), gomp4.BoxTypeUdta():
			return h.Expand()
		case gomp4.BoxTypeMvhd():
			payload, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mvhd, ok := payload.(*gomp4.Mvhd)
			if !ok {
				return nil, nil
			}
			timescale = mvhd.Timescale
			if mvhd.Version == 0 {
				duration = uint64(mvhd.DurationV0)
			} else {
				duration = mvhd.DurationV1
			}
			return nil, nil
		case gomp4.StrToBoxType("chpl"):
			var buf bytes.Buffer
			if _, err := h.ReadData(&buf); err != nil {
				return nil, err
			}
			chplData = buf.Bytes()
			return nil, nil
		default:
			return nil, nil
		}
	})
	if err != nil {
		return Result{}, fmt.Errorf("read box structure: %w", err)
	}

	var durationSeconds float64
	if timescale > 0 {
		durationSeconds = float64(duration) / float64(timescale)
	}

	return Result{
		Duration: durationSeconds,
		Tags:     map[string]string{},
		Chapters: parseNeroChapters(chplData, durationSeconds),
	}, nil
}

// parseNeroChapters decodes the moov/udta/chpl box: a version byte, three
// flag bytes, a reserved field, a chapter count, then for each chapter an
// 8-byte 100ns-unit timestamp followed by a length-prefixed title.
func parseNeroChapters(data []byte, totalSeconds float64) []model.ProbedChapter {
	if len(data) < 8 {
		return nil
	}

	version := data[0]
	offset := 4

	var count int
	if version == 0 {
		offset += 4
		if len(data) < offset+4 {
			return nil
		}
		count = int(binary.BigEndian.Uint32(data[offset:]))
		offset += 4
	} else {
		offset++
		if len(data) < offset+1 {
			return nil
		}
		count = int(data[offset])
		offset++
	}

	type raw struct {
		startSeconds float64
		title        string
	}
	entries := make([]raw, 0, count)

	for i := 0; i < count && offset+9 <= len(data); i++ {
		ts := binary.BigEndian.Uint64(data[offset:])
		offset += 8
		titleLen := int(data[offset])
		offset++
		if offset+titleLen > len(data) {
			break
		}
		title := string(data[offset : offset+titleLen])
		offset += titleLen
		entries = append(entries, raw{startSeconds: float64(ts) / 1e7, title: title})
	}

	if len(entries) == 0 {
		return nil
	}

	chapters := make([]model.ProbedChapter, 0, len(entries))
	for i, ent := range entries {
		end := totalSeconds
		if i+1 < len(entries) {
			end = entries[i+1].startSeconds
		}
		chapters = append(chapters, model.ProbedChapter{
			StartTime: ent.startSeconds,
			EndTime:   end,
			Tags:      map[string]string{"title": ent.title},
		})
	}
	return chapters
}
