package config

import (
	"fmt"
	"strings"
)

// ConfigurationError describes one problem found while loading configuration.
type ConfigurationError struct {
	FilePath    string   `json:"filePath,omitempty"`
	Field       string   `json:"field,omitempty"`
	ErrorType   string   `json:"errorType"` // io, parse, env or validation
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	LineNumber  int      `json:"lineNumber,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(ce.ErrorType)
	b.WriteString(" error")
	if ce.FilePath != "" {
		b.WriteString(" in ")
		b.WriteString(ce.FilePath)
		if ce.LineNumber > 0 {
			fmt.Fprintf(&b, ":%d", ce.LineNumber)
		}
	}
	if ce.Field != "" {
		fmt.Fprintf(&b, " (%s)", ce.Field)
	}
	b.WriteString(": ")
	b.WriteString(ce.Message)
	return b.String()
}

// DetailedError returns a multi-line message with details and suggestions.
func (ce ConfigurationError) DetailedError() string {
	parts := []string{ce.Error()}
	if ce.Details != "" {
		parts = append(parts, "  Details: "+ce.Details)
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, s := range ce.Suggestions {
			parts = append(parts, "    - "+s)
		}
	}
	return strings.Join(parts, "\n")
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (cec *ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	}
	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Add appends err to the collection.
func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// GetDetailedReport returns a detailed report of all errors
func (cec *ConfigurationErrorCollection) GetDetailedReport() string {
	if len(cec.Errors) == 0 {
		return "No configuration errors to report"
	}
	parts := []string{fmt.Sprintf("Configuration error report (%d errors):", len(cec.Errors))}
	for _, err := range cec.Errors {
		parts = append(parts, err.DetailedError())
	}
	return strings.Join(parts, "\n")
}

// errOrNil returns the collection as an error, or nil when it is empty.
func (cec *ConfigurationErrorCollection) errOrNil() error {
	if !cec.HasErrors() {
		return nil
	}
	return cec
}
