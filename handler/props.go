package handler

// Typed property structs for the node types required by §6.2. Each
// refhandler.* handler's ParseProperties builds one of these from the raw
// property bag, rejecting a missing or invalid required field with a
// *ValidationError. Keys the struct does not name are ignored, not rejected.

// StartProps configures a start node's seed values.
type StartProps struct {
	CustomData  map[string]any
	TriggerMode string
}

// ConditionProps configures a condition node's boolean branch.
type ConditionProps struct {
	ConditionType string // "expression" | "detect_max_iterations"
	Expression    string
}

// PersonJobProps configures an LLM call with conversation memory.
type PersonJobProps struct {
	PersonID            string
	InlinePerson        map[string]any
	Prompt              string
	DefaultPrompt       string
	FirstOnlyPrompt     string
	MaxIteration        int
	ContextCleaningRule string
}

// EndpointProps configures a terminal or optional-write node.
type EndpointProps struct {
	SaveToFile bool
	FileName   string
}

// DBProps configures a file read/write/append node.
type DBProps struct {
	Operation     string // "read" | "write" | "append"
	SourceDetails string
}

// JobProps configures a sandboxed code-execution node.
type JobProps struct {
	Language string // "python" | "javascript" | "bash"
	Code     string
	Timeout  int
}

// APIJobProps configures an outbound HTTP call node.
type APIJobProps struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// UserResponseProps configures a prompt routed to the interactive handler.
type UserResponseProps struct {
	Prompt  string
	Timeout int
}

// IntegratedAPIProps configures a provider operation (notion, etc.).
type IntegratedAPIProps struct {
	Provider   string
	Operation  string
	ResourceID string
	Config     map[string]any
}
