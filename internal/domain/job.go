package domain

// Job is a grading request: one learner submission checked by an ordered
// list of tests inside a single sandbox lane.
type Job struct {
	ID      string      `json:"id"`
	Type    Kind        `json:"type"`
	Options InitOptions `json:"options"`
	Tests   []string    `json:"tests"`

	// TimeoutMs overrides the per-test timeout. Zero keeps the default.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// Attempts counts deliveries that were reclaimed after a worker died.
	Attempts int `json:"attempts,omitempty"`

	// RawID is the internal Stream ID from Redis (e.g. 1700000-0).
	// We need this to Acknowledge the message later.
	RawID string `json:"-"`
}

// JobResult is streamed to clients once per test, then once more with Done set.
type JobResult struct {
	JobID   string   `json:"job_id"`
	Index   int      `json:"index"`
	Test    string   `json:"test,omitempty"`
	Verdict *Verdict `json:"verdict,omitempty"`
	Done    bool     `json:"done,omitempty"`
	Passed  int      `json:"passed,omitempty"`
	Error   string   `json:"error,omitempty"`
}
