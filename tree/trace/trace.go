package trace

// Level controls how much traffic is recorded.
type Level string

const (
	// LevelNone disables recording.
	LevelNone Level = "none"
	// LevelFetches records every fetch request and reply.
	LevelFetches Level = "fetches"
)

var validLevels = map[Level]bool{
	LevelNone:    true,
	LevelFetches: true,
	"":           true, // empty defaults to none
}

// IsValidLevel reports whether level names a known trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// RunTrace collects the records of one run.
type RunTrace struct {
	Level   Level
	Fetches []FetchRecord
	Replies []ReplyRecord
}

// NewRunTrace creates a trace ready for recording.
func NewRunTrace(level Level) *RunTrace {
	return &RunTrace{
		Level:   level,
		Fetches: make([]FetchRecord, 0),
		Replies: make([]ReplyRecord, 0),
	}
}

// Enabled reports whether anything is recorded. Safe on nil.
func (rt *RunTrace) Enabled() bool {
	return rt != nil && rt.Level == LevelFetches
}

// RecordFetch appends a fetch record.
func (rt *RunTrace) RecordFetch(r FetchRecord) {
	rt.Fetches = append(rt.Fetches, r)
}

// RecordReply appends a reply record.
func (rt *RunTrace) RecordReply(r ReplyRecord) {
	rt.Replies = append(rt.Replies, r)
}
