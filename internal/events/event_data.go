package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunSubmittedData contains data for RunSubmitted events
type RunSubmittedData struct {
	RunID   string `json:"run_id"`
	Backend string `json:"backend"`
	Units   int    `json:"units"`
	Pending int    `json:"pending"`
}

// EventType returns the event type for RunSubmittedData
func (d *RunSubmittedData) EventType() EventType {
	return RunSubmitted
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID   string `json:"run_id"`
	Backend string `json:"backend"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// FeedbackAppliedData contains data for FeedbackApplied events
type FeedbackAppliedData struct {
	RunID       string   `json:"run_id"`
	Iteration   int      `json:"iteration"`
	Triggers    []string `json:"triggers"`
	EnergyDelta float64  `json:"energy_delta"`
}

// EventType returns the event type for FeedbackAppliedData
func (d *FeedbackAppliedData) EventType() EventType {
	return FeedbackApplied
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID       string  `json:"run_id"`
	Status      string  `json:"status"`
	Iterations  int     `json:"iterations"`
	FinalEnergy float64 `json:"final_energy"`
	FinalScore  float64 `json:"final_score"`
	DurationMs  int64   `json:"duration_ms"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID     string `json:"run_id"`
	Kind      string `json:"kind"`
	Iteration int    `json:"iteration"`
	Error     string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
