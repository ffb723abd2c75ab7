package decision

import (
	"errors"
	"testing"

	"github.com/Strob0t/LLManager/internal/domain"
)

func TestDecisionValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Decision
		wantErr bool
	}{
		{"approved", Decision{Status: StatusApproved, Explanation: "within budget"}, false},
		{"rejected", Decision{Status: StatusRejected, Explanation: "needs sign-off"}, false},
		{"unknown status", Decision{Status: "maybe", Explanation: "x"}, true},
		{"empty status", Decision{Explanation: "x"}, true},
		{"blank explanation", Decision{Status: StatusApproved, Explanation: "  \n"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	original := Decision{Status: StatusApproved, Explanation: "cheap book"}

	tests := []struct {
		name   string
		edited Decision
		want   ChangeType
	}{
		{"explanation only", Decision{Status: StatusApproved, Explanation: "books under $50 are fine"}, ChangeExplanation},
		{"same everything", original, ChangeExplanation},
		{"status flipped", Decision{Status: StatusRejected, Explanation: "Policy requires manager sign-off over $20."}, ChangeAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(original, tt.edited); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExampleFrom(t *testing.T) {
	ex := ExampleFrom("buy a book", Decision{Status: StatusRejected, Explanation: "no"})
	if ex.Input != "buy a book" || ex.Answer != StatusRejected || ex.Explanation != "no" {
		t.Errorf("unexpected example: %+v", ex)
	}
}

func TestCriteriaWithDefaults(t *testing.T) {
	defaults := Criteria{ApprovalCriteria: "cheap", RejectionCriteria: "expensive", ModelID: "m1"}

	got := Criteria{ModelID: "m2"}.WithDefaults(defaults)
	if got.ModelID != "m2" {
		t.Errorf("expected run model to win, got %s", got.ModelID)
	}
	if got.ApprovalCriteria != "cheap" || got.RejectionCriteria != "expensive" {
		t.Errorf("expected default criteria, got %+v", got)
	}
}
