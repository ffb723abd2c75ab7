package review

import (
	"errors"
	"strings"
	"testing"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
)

func TestNewInterrupt(t *testing.T) {
	d := decision.Decision{Status: decision.StatusApproved, Explanation: "Books for work are reimbursable."}
	in := NewInterrupt("Requesting approval to buy a $30 book for work.", d)

	if in.Action != "New Decision Request: approved" {
		t.Errorf("unexpected action %q", in.Action)
	}
	if !in.AllowAccept || !in.AllowEdit || !in.AllowIgnore {
		t.Error("expected accept, edit and ignore to be allowed")
	}
	if in.AllowRespond {
		t.Error("respond must never be allowed")
	}
	if in.Args.Status != d.Status || in.Args.Explanation != d.Explanation {
		t.Errorf("unexpected args %+v", in.Args)
	}
	for _, want := range []string{"$30 book", "**approved**", "Books for work are reimbursable.", "## Actions", "## Fields"} {
		if !strings.Contains(in.Description, want) {
			t.Errorf("description missing %q", want)
		}
	}
}

func TestResponseValidate(t *testing.T) {
	tests := []struct {
		name    string
		resp    Response
		want    Outcome
		wantErr bool
	}{
		{"accept", Response{Type: ResponseAccept}, OutcomeAccepted, false},
		{"ignore", Response{Type: ResponseIgnore}, OutcomeIgnored, false},
		{"edit", Response{Type: ResponseEdit, Args: &Args{Status: decision.StatusRejected, Explanation: "no"}}, OutcomeEdited, false},
		{"edit without args", Response{Type: ResponseEdit}, "", true},
		{"edit missing explanation", Response{Type: ResponseEdit, Args: &Args{Status: decision.StatusRejected}}, "", true},
		{"edit missing status", Response{Type: ResponseEdit, Args: &Args{Explanation: "x"}}, "", true},
		{"edit bad status", Response{Type: ResponseEdit, Args: &Args{Status: "pending", Explanation: "x"}}, "", true},
		{"respond", Response{Type: ResponseRespond}, "", true},
		{"empty", Response{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resp.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidHumanResponse) {
				t.Errorf("expected ErrInvalidHumanResponse, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	r, err := ParseResponse([]byte(`{"type":"edit","args":{"status":"rejected","explanation":"Policy requires manager sign-off over $20."}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Edited().Status != decision.StatusRejected {
		t.Errorf("expected rejected, got %s", r.Edited().Status)
	}

	if _, err := ParseResponse([]byte(`{not json`)); !errors.Is(err, domain.ErrInvalidHumanResponse) {
		t.Errorf("expected ErrInvalidHumanResponse for malformed JSON, got %v", err)
	}
}
