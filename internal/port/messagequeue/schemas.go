package messagequeue

// RunStartPayload is the schema for runs.start messages.
type RunStartPayload struct {
	TenantID          string `json:"tenant_id"`
	ThreadID          string `json:"thread_id,omitempty"`
	Query             string `json:"query"`
	ApprovalCriteria  string `json:"approval_criteria,omitempty"`
	RejectionCriteria string `json:"rejection_criteria,omitempty"`
	ModelID           string `json:"model_id,omitempty"`
}

// RunEventPayload is the schema for runs.suspended, runs.completed and runs.failed messages.
type RunEventPayload struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
	State    string `json:"state"`
	Status   string `json:"status,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Lessons  int    `json:"lessons,omitempty"`
	Error    string `json:"error,omitempty"`
}
