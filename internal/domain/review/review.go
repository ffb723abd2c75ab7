// Package review defines the human review gate payloads: the interrupt shown
// to a reviewer and the response that resumes a suspended run.
package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
)

// ResponseType is the kind of verdict returned by the reviewer.
type ResponseType string

const (
	ResponseAccept ResponseType = "accept"
	ResponseIgnore ResponseType = "ignore"
	ResponseEdit   ResponseType = "edit"
	// ResponseRespond is free-form chat. It is never allowed at this gate.
	ResponseRespond ResponseType = "response"
)

// Outcome is the state of the review gate.
type Outcome string

const (
	OutcomeProposed Outcome = "proposed"
	OutcomeAccepted Outcome = "accepted"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeEdited   Outcome = "edited"
)

// Args carries the editable fields of a proposed decision.
type Args struct {
	Status      decision.Status `json:"status"`
	Explanation string          `json:"explanation"`
}

// Interrupt is the payload presented to the reviewer when a run suspends.
type Interrupt struct {
	Action       string `json:"action"`
	Args         Args   `json:"args"`
	AllowIgnore  bool   `json:"allow_ignore"`
	AllowAccept  bool   `json:"allow_accept"`
	AllowEdit    bool   `json:"allow_edit"`
	AllowRespond bool   `json:"allow_respond"`
	Description  string `json:"description"`
}

// NewInterrupt builds the interrupt for a proposed decision on query.
func NewInterrupt(query string, d decision.Decision) Interrupt {
	return Interrupt{
		Action:       "New Decision Request: " + string(d.Status),
		Args:         Args{Status: d.Status, Explanation: d.Explanation},
		AllowIgnore:  true,
		AllowAccept:  true,
		AllowEdit:    true,
		AllowRespond: false,
		Description:  Describe(query, d),
	}
}

// Describe renders the reviewer-facing markdown for a proposed decision.
func Describe(query string, d decision.Decision) string {
	var b strings.Builder
	b.WriteString("# Approval Request\n\n")
	b.WriteString("The following request was made by an employee:\n```\n")
	b.WriteString(query)
	b.WriteString("\n```\n\n")
	fmt.Fprintf(&b, "**LLManager** is suggesting the following action be taken: **%s**\n\n", d.Status)
	b.WriteString("The following explanation was provided behind the action:\n\n")
	b.WriteString(d.Explanation)
	b.WriteString(`

## Actions

- To accept the action, please click 'Accept' without making changes to the inputs.
- If you agree with the action, but the explanation is incorrect, please modify the 'Explanation' input, and submit.
- If you disagree with both the action and explanation, please modify the 'Status' and 'Explanation' inputs, and submit.
- If the 'request' is not relevant, or the request is invalid, please click 'Ignore' to reject the request.

## Fields

- 'Status': The status of the request. This is either 'approved' or 'rejected'.
- 'Explanation': The explanation for your final decision. This is the final reasoning behind LLManager's decision.
`)
	return b.String()
}

// Response is the reviewer's verdict that resumes a suspended run.
type Response struct {
	Type ResponseType `json:"type"`
	Args *Args        `json:"args,omitempty"`
}

// Validate checks the response shape and returns the gate outcome it maps to.
// Anything other than accept, ignore or an edit carrying both fields is rejected.
func (r *Response) Validate() (Outcome, error) {
	switch r.Type {
	case ResponseAccept:
		return OutcomeAccepted, nil
	case ResponseIgnore:
		return OutcomeIgnored, nil
	case ResponseEdit:
		if r.Args == nil || r.Args.Status == "" || strings.TrimSpace(r.Args.Explanation) == "" {
			return "", fmt.Errorf("expected an object containing 'status' and 'explanation', received %s: %w",
				describeArgs(r.Args), domain.ErrInvalidHumanResponse)
		}
		if !r.Args.Status.IsValid() {
			return "", fmt.Errorf("edited status %q must be approved or rejected: %w",
				r.Args.Status, domain.ErrInvalidHumanResponse)
		}
		return OutcomeEdited, nil
	default:
		return "", fmt.Errorf("expected 'accept', 'ignore', 'edit', received %q: %w",
			r.Type, domain.ErrInvalidHumanResponse)
	}
}

// Edited returns the replacement decision carried by an edit response.
func (r *Response) Edited() decision.Decision {
	if r.Args == nil {
		return decision.Decision{}
	}
	return decision.Decision{Status: r.Args.Status, Explanation: r.Args.Explanation}
}

// ParseResponse decodes a reviewer response. Malformed JSON is an invalid human response.
func ParseResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("decode response: %v: %w", err, domain.ErrInvalidHumanResponse)
	}
	return r, nil
}

func describeArgs(a *Args) string {
	if a == nil {
		return "null"
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Sprintf("%+v", *a)
	}
	return string(b)
}
