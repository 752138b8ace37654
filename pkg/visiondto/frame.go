// Package visiondto defines the wire contract with the external vision
// collaborator. Frames arrive one per sampled video frame with no guaranteed
// validity; the position validator is the trust boundary.
package visiondto

// Frame is one observed board snapshot. Cells holds 64 piece symbols in
// square order (a1..h8): uppercase for white, lowercase for black, empty
// string for an empty square.
type Frame struct {
	Index       int      `json:"index"`
	TimestampMS int64    `json:"timestamp_ms"`
	Cells       []string `json:"cells"`
}

// Health is the vision service's readiness report.
type Health struct {
	Status  string  `json:"status"`
	Source  string  `json:"source,omitempty"`
	FPS     float64 `json:"fps,omitempty"`
	Version string  `json:"version,omitempty"`
}
