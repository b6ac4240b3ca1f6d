package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// Error codes used by the derive tooling.
const (
	CodeCycle          = "D001"
	CodeComputeFailed  = "D002"
	CodeRecomputeLimit = "D003"
	CodeBatchLimit     = "D004"
	CodeWatchFailed    = "D005"
	CodeDetached       = "D006"

	CodeManifestRead     = "D101"
	CodeManifestSyntax   = "D102"
	CodeManifestInvalid  = "D103"
	CodeBehaviorCycle    = "D104"
	CodeExpressionSyntax = "D110"
	CodeExpressionEval   = "D111"
	CodeScenarioInvalid  = "D120"
	CodeExpectation      = "D121"

	CodeConfigNotFound = "D201"
	CodeConfigSyntax   = "D202"
	CodeConfigInvalid  = "D203"

	CodeCLIArgs   = "D301"
	CodeCLIFailed = "D302"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Runtime Errors (D001-D099)
	// ============================================

	CodeCycle: {
		Category:   CategoryRuntime,
		Message:    "Computed dependency cycle",
		Detail:     "A computed property reads itself, directly or through other computed properties. It keeps its previous value.",
		Suggestion: "Break the loop by reading plain data instead of another computed property",
	},
	CodeComputeFailed: {
		Category: CategoryRuntime,
		Message:  "Computed property failed",
		Detail:   "The computed expression returned an error. The property keeps its previous value; other properties are unaffected.",
	},
	CodeRecomputeLimit: {
		Category:   CategoryRuntime,
		Message:    "Computed recompute limit exceeded",
		Detail:     "A computed property was re-evaluated more often than allowed within one settle pass.",
		Suggestion: "Raise engine.maxRecompute in derive.json, or look for a value-dependent cycle",
	},
	CodeBatchLimit: {
		Category:   CategoryRuntime,
		Message:    "Batch limit exceeded",
		Detail:     "Watch actions kept queueing data updates beyond the configured number of batches.",
		Suggestion: "Check for watchers whose set action changes the value they watch",
	},
	CodeWatchFailed: {
		Category: CategoryRuntime,
		Message:  "Watch action failed",
	},
	CodeDetached: {
		Category: CategoryRuntime,
		Message:  "Component is detached",
	},

	// ============================================
	// Manifest Errors (D100-D199)
	// ============================================

	CodeManifestRead: {
		Category: CategoryManifest,
		Message:  "Cannot read manifest",
	},
	CodeManifestSyntax: {
		Category:   CategoryManifest,
		Message:    "Invalid YAML",
		Suggestion: "Check indentation and quoting; expressions containing ':' or '#' must be quoted",
	},
	CodeManifestInvalid: {
		Category: CategoryManifest,
		Message:  "Invalid component definition",
	},
	CodeBehaviorCycle: {
		Category: CategoryManifest,
		Message:  "Behavior includes itself",
		Detail:   "A behavior file is reachable from its own behaviors list.",
	},
	CodeExpressionSyntax: {
		Category: CategoryExpression,
		Message:  "Invalid expression",
		Suggestion: "Expressions use expr syntax: a.d + b[0], a ? b : c, " +
			"filter(list, # > 1)",
	},
	CodeExpressionEval: {
		Category: CategoryExpression,
		Message:  "Expression evaluation failed",
	},
	CodeScenarioInvalid: {
		Category: CategoryScenario,
		Message:  "Invalid scenario",
	},
	CodeExpectation: {
		Category: CategoryScenario,
		Message:  "Expectation not met",
	},

	// ============================================
	// Config Errors (D200-D299)
	// ============================================

	CodeConfigNotFound: {
		Category:   CategoryConfig,
		Message:    "derive.json not found",
		Suggestion: "Run 'derive init' or pass --config",
	},
	CodeConfigSyntax: {
		Category: CategoryConfig,
		Message:  "Invalid derive.json",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},

	// ============================================
	// CLI Errors (D300-D399)
	// ============================================

	CodeCLIArgs: {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
	CodeCLIFailed: {
		Category: CategoryCLI,
		Message:  "Command failed",
	},
}

// GetAllCodes returns all registered error codes, sorted.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
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
