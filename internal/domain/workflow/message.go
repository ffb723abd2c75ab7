package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/LLManager/internal/domain"
)

// Message is one conversation turn. Content is either a plain string or a
// list of typed parts of which only text parts are kept.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content holds the text parts of a message.
type Content []string

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts "text" or [{"type":"text","text":"..."}].
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{s}
		return nil
	}
	var parts []contentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or a list of parts: %w", domain.ErrValidation)
	}
	out := make(Content, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			out = append(out, p.Text)
		}
	}
	*c = out
	return nil
}

// MarshalJSON writes single-part content as a plain string.
func (c Content) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return json.Marshal(c[0])
	}
	parts := make([]contentPart, len(c))
	for i, t := range c {
		parts[i] = contentPart{Type: "text", Text: t}
	}
	return json.Marshal(parts)
}

func isHuman(role string) bool {
	return role == "human" || role == "user"
}

// QueryFromMessages returns the text of the last human message, parts joined by newlines.
func QueryFromMessages(msgs []Message) (string, error) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !isHuman(msgs[i].Role) {
			continue
		}
		q := strings.Join(msgs[i].Content, "\n")
		if strings.TrimSpace(q) == "" {
			break
		}
		return q, nil
	}
	return "", domain.ErrEmptyQuery
}
