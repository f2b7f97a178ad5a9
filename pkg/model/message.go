package model

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat exchange with the language model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
