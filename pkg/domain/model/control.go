package model

import (
	"time"

	"github.com/google/uuid"
)

// ControlSuffix is appended to the data file name to form its sidecar
// control file, e.g. "video.mkv" -> "video.mkv.haul".
const ControlSuffix = ".haul"

// ControlSchemaVersion is bumped whenever the control file layout
// changes incompatibly.
const ControlSchemaVersion = 1

// ControlPath returns the control file path for a data file.
func ControlPath(dataPath string) string {
	return dataPath + ControlSuffix
}

// Segment is one byte range of a transfer. End is inclusive; End < 0
// marks an open-ended segment (unknown size or non-rangeable server).
type Segment struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Done  int64 `json:"done"`
}

// Length returns the segment size in bytes, or -1 for an open-ended
// segment.
func (x Segment) Length() int64 {
	if x.End < 0 {
		return -1
	}
	return x.End - x.Start + 1
}

// Complete reports whether all bytes of the segment have been written.
// An open-ended segment is never complete until its end is known.
func (x Segment) Complete() bool {
	length := x.Length()
	return length >= 0 && x.Done >= length
}

// Control is the sidecar state of a partial download, persisted as JSON
// next to the data file and consumed by --resume.
type Control struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	Input         string    `json:"input"`
	URLs          []string  `json:"urls"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"` // -1 when unknown
	ETag          string    `json:"etag,omitempty"`
	LastModified  string    `json:"last_modified,omitempty"`
	SplitSize     int64     `json:"split_size"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Segments      []Segment `json:"segments"`
}

// NewControl starts a control record for a fresh transfer.
func NewControl(input string, urls []string, name string, size, splitSize int64) *Control {
	return &Control{
		SchemaVersion: ControlSchemaVersion,
		ID:            uuid.NewString(),
		Input:         input,
		URLs:          urls,
		Name:          name,
		Size:          size,
		SplitSize:     splitSize,
		CreatedAt:     time.Now().UTC(),
	}
}

// Done returns the total bytes written across all segments.
func (x *Control) Done() int64 {
	var total int64
	for _, seg := range x.Segments {
		total += seg.Done
	}
	return total
}

// Complete reports whether every segment has all its bytes.
func (x *Control) Complete() bool {
	if len(x.Segments) == 0 {
		return false
	}
	for _, seg := range x.Segments {
		if !seg.Complete() {
			return false
		}
	}
	return true
}

// Validator returns the stored remote validator, ETag preferred.
func (x *Control) Validator() string {
	if x.ETag != "" {
		return x.ETag
	}
	return x.LastModified
}

// Clone returns a deep copy safe to marshal while the original keeps
// being updated.
func (x *Control) Clone() *Control {
	cp := *x
	cp.URLs = append([]string(nil), x.URLs...)
	cp.Segments = append([]Segment(nil), x.Segments...)
	return &cp
}

// maxSegmentsPerWorker caps the plan so a transfer never fans out into
// an unreasonable number of ranges.
const maxSegmentsPerWorker = 8

// PlanSegments divides a transfer of the given size into byte ranges.
// splitSize is a minimum: every segment holds at least that many bytes
// (unless the whole transfer is smaller), and the last one absorbs the
// remainder. An unknown size or a non-rangeable server yields a single
// open-ended segment.
func PlanSegments(size, splitSize int64, concurrency int, rangeable bool) []Segment {
	if size <= 0 || !rangeable || splitSize <= 0 {
		return []Segment{{Index: 0, Start: 0, End: -1}}
	}

	count := size / splitSize
	if limit := int64(concurrency) * maxSegmentsPerWorker; count > limit {
		count = limit
	}
	if count < 1 {
		count = 1
	}

	per := size / count
	segments := make([]Segment, count)
	for i := range segments {
		start := int64(i) * per
		end := start + per - 1
		if i == len(segments)-1 {
			end = size - 1
		}
		segments[i] = Segment{Index: i, Start: start, End: end}
	}
	return segments
}
