package errors

// ErrorTemplate defines the template for an error code.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry contains all registered error codes.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Config Errors (T100-T119)
	// ============================================

	"T100": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "The configuration file passed with --config does not exist or cannot be read.",
	},
	"T101": {
		Category: CategoryConfig,
		Message:  "Config file could not be parsed",
		Detail:   "telegraph.toml contains invalid TOML syntax.",
	},
	"T102": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A configuration value is out of range or has the wrong form.",
	},
	"T103": {
		Category: CategoryConfig,
		Message:  "Unknown config key",
		Detail:   "telegraph.toml contains keys that telegraph does not recognize. They are most likely misspelled.",
	},

	// ============================================
	// CLI Errors (T120-T139)
	// ============================================

	"T120": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
		Detail:   "A command line flag has a value telegraph cannot use.",
	},
	"T121": {
		Category: CategoryCLI,
		Message:  "Invalid log level",
		Detail:   "Log levels are debug, info, warn and error.",
	},
	"T122": {
		Category: CategoryCLI,
		Message:  "Invalid log format",
		Detail:   "Log formats are text and json.",
	},
	"T123": {
		Category: CategoryCLI,
		Message:  "Could not read input",
		Detail:   "The file or stream named on the command line could not be read.",
	},

	// ============================================
	// Server Errors (T140-T159)
	// ============================================

	"T140": {
		Category: CategoryServer,
		Message:  "Intake listener failed",
		Detail:   "The raw TCP intake listener could not be opened or stopped accepting connections.",
	},
	"T141": {
		Category: CategoryServer,
		Message:  "Admin server failed",
		Detail:   "The admin HTTP server serving /healthz, /metrics and /ws could not be started.",
	},
	"T142": {
		Category: CategoryServer,
		Message:  "Address already in use",
		Detail:   "Another process is already listening on the requested address.",
	},

	// ============================================
	// Protocol Errors (T160-T179)
	// ============================================

	"T160": {
		Category: CategoryProtocol,
		Message:  "Packet could not be decoded",
		Detail:   "A binary message was not a valid encoded packet.",
	},
	"T161": {
		Category: CategoryProtocol,
		Message:  "Packet too large",
		Detail:   "The input exceeded the maximum packet size.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
