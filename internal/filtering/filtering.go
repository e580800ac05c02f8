// Package filtering drops unwanted postings between retrieval and ranking.
package filtering

import (
	"context"
	"fmt"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"go.uber.org/zap"
)

// Filter represents a single filtering step applied to postings. Validate
// resolves the step's settings and must finish before the first Apply; Apply
// only reads them and may run concurrently.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, p *jobs.Postings) (*jobs.Postings, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	ExcludeCompanies []string `mapstructure:"exclude-companies"`
	RedFlags         []string `mapstructure:"red-flags"`
	ExcludeFile      string   `mapstructure:"exclude-file"`
	Disabled         []string `mapstructure:"disabled"`
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns the standard filter chain.
func Default() []Filter {
	return []Filter{NewCompanies(), NewRedFlags(), NewExcludeFile()}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Configure validates every enabled step against cfg. Call it once, before
// the steps are shared between requests.
func Configure(cfg *Config, steps []Filter) error {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

// Run executes configured filters sequentially and returns the remaining postings.
func Run(ctx context.Context, deps Deps, steps []Filter, p *jobs.Postings) (*jobs.Postings, error) {
	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}

		next, info, err := step.Apply(ctx, deps, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Info("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		p = next
	}

	return p, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
