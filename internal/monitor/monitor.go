// Package monitor checks JSON documents against a JSON schema contract. The
// settings package uses it to reject malformed plugin settings on load and
// before save.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ContractMonitor validates documents against a compiled JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles the schema at schemaPath.
// The schemaPath should be an absolute path or relative to the execution directory.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + schemaPath))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", schemaPath, err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// NewContractMonitorFromString compiles an in-memory schema, typically one
// embedded in the binary.
func NewContractMonitorFromString(schema string) (*ContractMonitor, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("error compiling schema: %w", err)
	}
	return &ContractMonitor{schema: s}, nil
}

// Validate validates a raw JSON document.
// It returns true if valid, or false and a list of validation errors if invalid.
func (cm *ContractMonitor) Validate(document []byte) (bool, []string, error) {
	return cm.validate(gojsonschema.NewBytesLoader(document))
}

// ValidateValue validates a Go value as it would be marshaled to JSON.
func (cm *ContractMonitor) ValidateValue(v interface{}) (bool, []string, error) {
	return cm.validate(gojsonschema.NewGoLoader(v))
}

func (cm *ContractMonitor) validate(doc gojsonschema.JSONLoader) (bool, []string, error) {
	result, err := cm.schema.Validate(doc)
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, errs, nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
