package errors

// Template defines a registered diagnostic.
type Template struct {
	Category   Category
	Message    string
	Suggestion string
	DocURL     string
}

const docBase = "https://ripple.dev/docs/errors/"

var registry = map[string]Template{
	// Reactive graph

	"R001": {
		Category:   CategoryReactive,
		Message:    "Dependency cycle",
		Suggestion: "A computed reads itself through its dependencies; break the loop with Peek or a separate cell",
		DocURL:     docBase + "R001",
	},
	"R002": {
		Category:   CategoryReactive,
		Message:    "Source disposed",
		Suggestion: "The owner of this cell was disposed; stop using it after its widget unmounts",
		DocURL:     docBase + "R002",
	},
	"R003": {
		Category:   CategoryReactive,
		Message:    "Derive function failed",
		Suggestion: "The computed stays dirty and retries on the next read",
		DocURL:     docBase + "R003",
	},

	// Threading

	"R101": {
		Category:   CategoryThread,
		Message:    "UI-only call off the UI goroutine",
		Suggestion: "Post the call with Bridge.Post or write through an OnUI cell",
		DocURL:     docBase + "R101",
	},

	// Scopes and handlers

	"R201": {
		Category:   CategoryScope,
		Message:    "Scope build failed",
		Suggestion: "The scope shows a placeholder until one of its dependencies changes",
		DocURL:     docBase + "R201",
	},
	"R202": {
		Category:   CategoryScope,
		Message:    "Event handler panicked",
		Suggestion: "The event was dropped; writes made by the handler were flushed",
		DocURL:     docBase + "R202",
	},

	// Runtime

	"R301": {
		Category:   CategoryRuntime,
		Message:    "No event loop",
		Suggestion: "Create the app without WithClock, or pass a *clock.Loop",
		DocURL:     docBase + "R301",
	},
	"R302": {
		Category: CategoryRuntime,
		Message:  "App closed",
		DocURL:   docBase + "R302",
	},
	"R303": {
		Category: CategoryRuntime,
		Message:  "Event loop already running",
		DocURL:   docBase + "R303",
	},

	// Configuration

	"C001": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Pass --config with the path to ripple.yaml",
		DocURL:     docBase + "C001",
	},
	"C002": {
		Category:   CategoryConfig,
		Message:    "Invalid config file",
		Suggestion: "Check that the file is valid YAML or JSON",
		DocURL:     docBase + "C002",
	},
	"C003": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		DocURL:   docBase + "C003",
	},
	"C004": {
		Category: CategoryConfig,
		Message:  "Config watch failed",
		DocURL:   docBase + "C004",
	},

	// Command line

	"L001": {
		Category:   CategoryCLI,
		Message:    "Invalid argument",
		Suggestion: "Run 'ripple help' for usage",
		DocURL:     docBase + "L001",
	},
	"L002": {
		Category: CategoryCLI,
		Message:  "Devtools server failed",
		DocURL:   docBase + "L002",
	},
}

// Codes returns all registered codes.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// Lookup returns the template for a code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces a template.
func Register(code string, t Template) {
	registry[code] = t
}
