package model

// TransferState is the lifecycle of one transfer
type TransferState string

const (
	StatePending   TransferState = "pending"
	StateRunning   TransferState = "running"
	StateCompleted TransferState = "completed"
	StateFailed    TransferState = "failed"
)

// Finished reports whether the transfer reached a terminal state.
func (x TransferState) Finished() bool {
	return x == StateCompleted || x == StateFailed
}

// SegmentProgress is the per-segment slice of a progress snapshot.
type SegmentProgress struct {
	Index  int   `json:"index"`
	Done   int64 `json:"done"`
	Length int64 `json:"length"` // -1 for an open-ended segment
}

// Progress is a point-in-time snapshot of a running transfer, served by
// the status endpoint.
type Progress struct {
	ID       string            `json:"id"`
	State    TransferState     `json:"state"`
	Filename string            `json:"filename"`
	Total    int64             `json:"total"` // -1 when unknown
	Done     int64             `json:"done"`
	Percent  float64           `json:"percent"` // 0 when total is unknown
	Rate     int64             `json:"rate_bps"`
	ETA      int64             `json:"eta_seconds"` // -1 when unknown
	Segments []SegmentProgress `json:"segments"`
}
