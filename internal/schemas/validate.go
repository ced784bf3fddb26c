// Package schemas provides JSON Schema validation for stage output documents.
// Stage schemas are embedded at compile time.
package schemas

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/diligence-engine/internal/types"
)

//go:embed *.json
var schemaFiles embed.FS

var (
	cache   = make(map[string]*gojsonschema.Schema)
	cacheMu sync.RWMutex
)

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError represents a schema validation failure with field paths
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("schema validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Name    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Name, e.Message)
}

func (e *SchemaLoadError) Unwrap() error { return e.Cause }

// load compiles and caches an embedded schema by stage id.
func load(stageID string) (*gojsonschema.Schema, error) {
	cacheMu.RLock()
	if schema, ok := cache[stageID]; ok {
		cacheMu.RUnlock()
		return schema, nil
	}
	cacheMu.RUnlock()

	data, err := schemaFiles.ReadFile(stageID + ".json")
	if err != nil {
		return nil, &SchemaLoadError{Name: stageID, Message: "no embedded schema", Cause: err}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &SchemaLoadError{Name: stageID, Message: "schema failed to compile", Cause: err}
	}

	cacheMu.Lock()
	cache[stageID] = schema
	cacheMu.Unlock()
	return schema, nil
}

// Has reports whether a schema is embedded for the stage.
func Has(stageID string) bool {
	if _, err := schemaFiles.ReadFile(stageID + ".json"); err != nil {
		return false
	}
	return true
}

// Validate checks a JSON document against the stage's embedded schema.
// Returns nil when the document conforms, *ValidationError when it does not.
func Validate(stageID, jsonContent string) error {
	schema, err := load(stageID)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(jsonContent))
	if err != nil {
		return &SchemaLoadError{Name: stageID, Message: "document failed to load", Cause: err}
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}

// Annotate folds schema errors into bundle annotations: "required" failures
// become missing fields, everything else an invalid value. This feeds the
// corrective prompt with exact field paths.
func Annotate(stageID, jsonContent string, into *types.BundleValidation) error {
	err := Validate(stageID, jsonContent)
	if err == nil {
		return nil
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}

	for _, fieldErr := range validationErr.Errors {
		if strings.Contains(fieldErr.Message, "required") {
			into.MissingRequired = append(into.MissingRequired, missingField(fieldErr))
			continue
		}
		into.InvalidValues = append(into.InvalidValues, types.InvalidValue{
			Field:  fieldErr.Field,
			Reason: fieldErr.Message,
		})
	}
	return nil
}

// missingField extracts the property name from a required-property error.
func missingField(fieldErr FieldError) string {
	// gojsonschema reports "<field> is required" with Field() set to the parent.
	if idx := strings.Index(fieldErr.Message, " is required"); idx > 0 {
		name := strings.TrimSpace(fieldErr.Message[:idx])
		if fieldErr.Field != "(root)" {
			return fieldErr.Field + "." + name
		}
		return name
	}
	return fieldErr.Field
}

// ClearCache drops compiled schemas. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]*gojsonschema.Schema)
	cacheMu.Unlock()
}
