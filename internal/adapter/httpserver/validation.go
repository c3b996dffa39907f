package httpserver

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/textgen-horde/pkg/textx"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var validPromptID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidatePromptID validates a prompt or generation id. Both are issued as
// UUIDs, so anything outside the unreserved charset is rejected outright.
func ValidatePromptID(id string) ValidationResult {
	if id == "" {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "id",
					Code:    "REQUIRED",
					Message: "Prompt ID is required",
				},
			},
		}
	}

	if len(id) > 64 {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "id",
					Code:    "TOO_LONG",
					Message: "Prompt ID is too long (max 64 characters)",
				},
			},
		}
	}

	if !validPromptID.MatchString(id) {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "id",
					Code:    "INVALID_FORMAT",
					Message: "Prompt ID contains invalid characters",
				},
			},
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateUsername validates a registration username. The '#' separator is
// reserved for unique aliases ("username#id") and never part of the name.
func ValidateUsername(username string) ValidationResult {
	if username == "" {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "username",
					Code:    "REQUIRED",
					Message: "Username is required",
				},
			},
		}
	}

	if utf8.RuneCountInString(username) > 50 {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "username",
					Code:    "TOO_LONG",
					Message: "Username is too long (max 50 characters)",
				},
			},
		}
	}

	if strings.ContainsRune(username, '#') {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "username",
					Code:    "INVALID_FORMAT",
					Message: "Username must not contain '#'",
				},
			},
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateWorkerName validates a worker name from a generate poll.
func ValidateWorkerName(name string) ValidationResult {
	if name == "" {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "name",
					Code:    "REQUIRED",
					Message: "Worker name is required",
				},
			},
		}
	}

	if utf8.RuneCountInString(name) > 100 {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "name",
					Code:    "TOO_LONG",
					Message: "Worker name is too long (max 100 characters)",
				},
			},
		}
	}

	return ValidationResult{Valid: true}
}

// SanitizeString sanitizes a short string input such as a username or
// worker name. Prompt bodies are never run through this: they are free
// text and only bounded by the token estimate check.
func SanitizeString(input string) string {
	return textx.TruncateRunes(textx.Clean(input), 1000)
}
