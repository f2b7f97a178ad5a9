package model

// ToolOutcomeKind tags the terminal result of a tool invocation.
type ToolOutcomeKind string

const (
	ToolOutcomeSuccess ToolOutcomeKind = "success"
	ToolOutcomeError   ToolOutcomeKind = "error"
	ToolOutcomeTimeout ToolOutcomeKind = "timeout"
)

// ToolOutcome is the tagged result of exactly one tool invocation.
// Content is set only for Success; Detail carries the diagnostic payload
// for Error.
type ToolOutcome struct {
	Kind    ToolOutcomeKind
	Content string
	Detail  string
}

func ToolSuccess(content string) *ToolOutcome {
	return &ToolOutcome{Kind: ToolOutcomeSuccess, Content: content}
}

func ToolError(detail string) *ToolOutcome {
	return &ToolOutcome{Kind: ToolOutcomeError, Detail: detail}
}

func ToolTimeout() *ToolOutcome {
	return &ToolOutcome{Kind: ToolOutcomeTimeout}
}
