package domain

import "time"

// Analysis is one completed tracking run over a snapshot stream.
type Analysis struct {
	ID           int64
	SessionUUID  string
	Source       string
	Result       string
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	FinalFEN     string
	Frames       int
	Rejected     int
	Unresolved   int
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
}
