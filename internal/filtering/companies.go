package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
)

type companiesFilter struct {
	disabled  bool
	reason    string
	companies []string
}

// NewCompanies creates a filter that removes postings by companies configured in the config.
// Company names are compared case-insensitively.
func NewCompanies() Filter {
	return &companiesFilter{}
}

func (f *companiesFilter) Name() string { return "companies" }

func (f *companiesFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *companiesFilter) IsEnabled() bool { return !f.disabled }

func (f *companiesFilter) Validate(cfg *Config) error {
	f.companies = nil
	if cfg == nil {
		return nil
	}
	for _, company := range cfg.ExcludeCompanies {
		if normalized := jobs.Normalize(company); normalized != "" {
			f.companies = append(f.companies, normalized)
		}
	}
	return nil
}

func (f *companiesFilter) Apply(_ context.Context, deps Deps, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()
	if len(f.companies) == 0 {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	blocked := make(map[string]struct{}, len(f.companies))
	for _, company := range f.companies {
		blocked[company] = struct{}{}
	}

	excluded := p.Keep(func(posting *jobs.Posting) bool {
		_, drop := blocked[jobs.Normalize(posting.Company)]
		return !drop
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding postings by companies",
			zap.Strings("excluded_companies", f.companies),
			zap.Strings("excluded_postings", excluded),
			zap.Int("postings_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(excluded), Left: p.Len()}, nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.companies) > 0 {
		details["companies"] = strings.Join(f.companies, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
