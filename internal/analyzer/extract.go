package analyzer

import (
	"context"
	"embed"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/YixingZhengAu/JobSeeker/internal/ai"
	"github.com/YixingZhengAu/JobSeeker/internal/utils"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

//go:embed prompts/*.md
var promptFS embed.FS

var strictTemplate = mustReadPrompt("prompts/strict.md")

const defaultMaxLogLength = 200

func mustReadPrompt(name string) string {
	data, err := promptFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return strings.TrimSpace(string(data))
}

func buildPrompt(template string, values map[string]string) string {
	prompt := template
	for placeholder, value := range values {
		prompt = strings.ReplaceAll(prompt, placeholder, value)
	}
	return prompt
}

// errBackend marks failures of the model backend itself, as opposed to
// responses that did not match the schema.
type errBackend struct {
	err error
}

func (e *errBackend) Error() string { return e.err.Error() }

func (e *errBackend) Unwrap() error { return e.err }

// extractor asks a generator for a JSON document matching a schema. A response
// that fails validation is retried once with a stricter instruction listing the
// violations; backend errors are not retried here since generators retry
// transient failures themselves.
type extractor struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func (e *extractor) extract(ctx context.Context, op, system, message string, schema *gojsonschema.Schema, target any) error {
	raw, err := e.generate(ctx, op, system, message)
	if err != nil {
		return err
	}

	err = decode(raw, schema, target)
	var verr *ValidationError
	if err == nil || !errors.As(err, &verr) {
		return err
	}

	e.logger.Warn("model response rejected, retrying with strict prompt",
		zap.String("operation", op),
		zap.Error(err),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	strict := message + "\n\n" + buildPrompt(strictTemplate, map[string]string{"{{VIOLATIONS}}": verr.Error()})
	raw, err = e.generate(ctx, op, system, strict)
	if err != nil {
		return err
	}
	return decode(raw, schema, target)
}

func (e *extractor) generate(ctx context.Context, op, system, message string) (string, error) {
	e.logger.Debug("model request",
		zap.String("operation", op),
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return "", &errBackend{err: err}
	}

	e.logger.Debug("model response",
		zap.String("operation", op),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)
	return raw, nil
}

// cleanList trims entries, drops empties and removes case-insensitive duplicates.
func cleanList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
