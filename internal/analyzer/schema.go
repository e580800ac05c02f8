package analyzer

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	profileSchema = mustLoadSchema("schemas/profile.json")
	postingSchema = mustLoadSchema("schemas/posting.json")
)

func mustLoadSchema(name string) *gojsonschema.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("read schema %s: %v", name, err))
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// ValidationError lists the ways a model response violates its schema.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is a single violation at a field path.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// decode validates raw against schema and unmarshals it into target.
func decode(raw string, schema *gojsonschema.Schema, target any) error {
	cleaned := extractJSON(raw)
	if !json.Valid([]byte(cleaned)) {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: "response is not valid JSON"}}}
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return fmt.Errorf("validate response: %w", err)
	}
	if !result.Valid() {
		verr := &ValidationError{}
		for _, e := range result.Errors() {
			verr.Errors = append(verr.Errors, FieldError{Field: e.Field(), Message: e.Description()})
		}
		return verr
	}

	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	return nil
}

// extractJSON strips markdown fences and any prose around the outermost object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}
