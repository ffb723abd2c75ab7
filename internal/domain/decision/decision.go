// Package decision defines the approval decision, the reviewer correction
// classification, and the few-shot example derived from reviewed decisions.
package decision

import (
	"fmt"
	"strings"

	"github.com/Strob0t/LLManager/internal/domain"
)

// Status is the outcome proposed for a request.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ValidStatuses lists all valid decision statuses.
var ValidStatuses = []Status{StatusApproved, StatusRejected}

// IsValid reports whether s is approved or rejected.
func (s Status) IsValid() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is a status with the reviewer-facing explanation behind it.
type Decision struct {
	Status      Status `json:"status"`
	Explanation string `json:"explanation"`
}

// Validate checks that the decision has a legal status and a non-empty explanation.
func (d *Decision) Validate() error {
	if !d.Status.IsValid() {
		return fmt.Errorf("invalid status %q: must be approved or rejected: %w", d.Status, domain.ErrValidation)
	}
	if strings.TrimSpace(d.Explanation) == "" {
		return fmt.Errorf("explanation is required: %w", domain.ErrValidation)
	}
	return nil
}

// ChangeType classifies a reviewer edit.
type ChangeType string

const (
	// ChangeExplanation means the status was kept and only the explanation replaced.
	ChangeExplanation ChangeType = "explanationChanged"
	// ChangeAll means the status itself was overturned.
	ChangeAll ChangeType = "allChanged"
)

// Classify derives the change type from the original and edited decisions.
func Classify(original, edited Decision) ChangeType {
	if edited.Status == original.Status {
		return ChangeExplanation
	}
	return ChangeAll
}

// Example is a reviewed request/decision pair used to ground future reasoning.
type Example struct {
	Input       string `json:"input"`
	Answer      Status `json:"answer"`
	Explanation string `json:"explanation"`
}

// ExampleFrom builds the example persisted after a reviewer accepts or edits a decision.
func ExampleFrom(query string, d Decision) Example {
	return Example{Input: query, Answer: d.Status, Explanation: d.Explanation}
}

// Criteria carries the optional per-run approval and rejection criteria and model choice.
type Criteria struct {
	ApprovalCriteria  string `json:"approval_criteria,omitempty" yaml:"approval_criteria"`
	RejectionCriteria string `json:"rejection_criteria,omitempty" yaml:"rejection_criteria"`
	ModelID           string `json:"model_id,omitempty" yaml:"model_id"`
}

// WithDefaults fills empty fields of c from defaults.
func (c Criteria) WithDefaults(defaults Criteria) Criteria {
	if c.ApprovalCriteria == "" {
		c.ApprovalCriteria = defaults.ApprovalCriteria
	}
	if c.RejectionCriteria == "" {
		c.RejectionCriteria = defaults.RejectionCriteria
	}
	if c.ModelID == "" {
		c.ModelID = defaults.ModelID
	}
	return c
}
