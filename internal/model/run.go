package model

import "time"

// TierRun records the outcome of one tier invocation.
type TierRun struct {
	ID          string    `json:"id"`
	Tier        Tier      `json:"tier"`
	Success     bool      `json:"success"`
	Selected    int       `json:"selected"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	Overrides   int       `json:"overrides"`
	Message     string    `json:"message"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns the wall-clock time the run took.
func (r TierRun) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
