package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return fmt.Sprintf("Error: %s\n", err.Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", e.Message))
	if e.Path != "" {
		sb.WriteString(fmt.Sprintf("  Path: %s\n", e.Path))
	}
	sb.WriteString(fmt.Sprintf("  Kind: %s\n", e.Kind))
	return sb.String()
}

// jsonError is the JSON representation of an Error.
type jsonError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Path      string `json:"path,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	StoreKind string `json:"store_kind,omitempty"`
	Cause     string `json:"cause,omitempty"`
}

// FormatJSON returns a JSON representation of the error, suitable for a
// machine-readable response body.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	e, ok := err.(*Error)
	if !ok {
		e = New(KindInternal, err.Error())
	}

	je := jsonError{
		Kind:      string(e.Kind),
		Message:   e.Message,
		Path:      e.Path,
		Retryable: e.Retryable,
		StoreKind: e.StoreKind,
	}
	if e.Cause != nil {
		je.Cause = e.Cause.Error()
	}
	return json.Marshal(je)
}

// FormatForLog returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	e, ok := err.(*Error)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	result := map[string]any{
		"error_kind": string(e.Kind),
		"message":    e.Message,
	}
	if e.Path != "" {
		result["path"] = e.Path
	}
	if e.StoreKind != "" {
		result["store_kind"] = e.StoreKind
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}
