package model

// TranscodeState is the lifecycle state of a single source's normalization.
type TranscodeState string

const (
	TranscodeStatePending TranscodeState = "pending"
	TranscodeStateWorking TranscodeState = "working"
	TranscodeStateDone    TranscodeState = "done"
	TranscodeStateFailed  TranscodeState = "failed"
)

// BookMeta is the subset of Book fields needed to promote a completed
// transcode into the Library Index, snapshotted at enqueue time so the
// worker does not need to re-derive display metadata from the source.
type BookMeta struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Author          string            `json:"author"`
	Mime            Mime              `json:"mime"`
	CoverPath       string            `json:"cover_path,omitempty"`
	EpubPath        string            `json:"epub_path,omitempty"`
	PublishedAt     *int64            `json:"published_at,omitempty"` // unix millis
	Description     string            `json:"description,omitempty"`
	DescriptionHTML string            `json:"description_html,omitempty"`
	Language        string            `json:"language,omitempty"`
	ISBN            string            `json:"isbn,omitempty"`
	Identifiers     map[string]string `json:"identifiers,omitempty"`
	Narrator        string            `json:"narrator,omitempty"`
	Series          string            `json:"series,omitempty"`
	SeriesPart      string            `json:"series_part,omitempty"`
	ASIN            string            `json:"asin,omitempty"`
}

// TranscodeStatus is the persisted record of one source's normalization.
// The tuple (Source, MtimeMS) is the identity: a record whose MtimeMS no
// longer matches the source file on disk is stale and must be discarded.
type TranscodeStatus struct {
	Source  string         `json:"source"`
	Target  string         `json:"target"`
	MtimeMS int64          `json:"mtime_ms"`
	State   TranscodeState `json:"state"`
	Error   string         `json:"error,omitempty"`

	OutTimeMS  int64    `json:"out_time_ms,omitempty"`
	Speed      float64  `json:"speed,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	Meta       *BookMeta `json:"meta,omitempty"`
}

// Stale reports whether this status no longer describes the source file
// at path with modification time mtimeMS.
func (s *TranscodeStatus) Stale(mtimeMS int64) bool {
	return s.MtimeMS != mtimeMS
}

// ProbeRecord is the Probe Cache's persisted memo for one audio file.
type ProbeRecord struct {
	MtimeMS  int64            `json:"mtime_ms"`
	Duration *float64         `json:"duration,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Chapters []ProbedChapter  `json:"chapters,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ProbedChapter is a chapter as reported by the probe engine, in whatever
// time unit the engine natively reports (seconds, as a float).
type ProbedChapter struct {
	StartTime float64           `json:"start_time"`
	EndTime   float64           `json:"end_time"`
	Tags      map[string]string `json:"tags,omitempty"`
}
