package conversation

import (
	"strings"

	"github.com/pkg/errors"
)

// Role tags who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) String() string { return string(r) }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ParseRole normalizes a stored role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errors.Errorf("unknown message role %q", s)
	}
	return r, nil
}

// Message is a role-tagged piece of text. Values are never mutated once built;
// pass them by value.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

func NewUserMessage(text string) Message      { return Message{Role: RoleUser, Content: text} }
func NewAssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }
func NewSystemMessage(text string) Message    { return Message{Role: RoleSystem, Content: text} }
