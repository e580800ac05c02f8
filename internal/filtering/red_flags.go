package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
)

type redFlagsFilter struct {
	disabled bool
	reason   string
	flags    []string
}

// NewRedFlags creates a filter that removes postings mentioning any configured red-flag term.
func NewRedFlags() Filter {
	return &redFlagsFilter{}
}

func (f *redFlagsFilter) Name() string { return "red_flags" }

func (f *redFlagsFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *redFlagsFilter) IsEnabled() bool { return !f.disabled }

func (f *redFlagsFilter) Validate(cfg *Config) error {
	f.flags = nil
	if cfg == nil {
		return nil
	}
	for _, flag := range cfg.RedFlags {
		if flag = strings.ToLower(strings.TrimSpace(flag)); flag != "" {
			f.flags = append(f.flags, flag)
		}
	}
	return nil
}

func (f *redFlagsFilter) Apply(_ context.Context, deps Deps, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()
	if len(f.flags) == 0 {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	excluded := p.Keep(func(posting *jobs.Posting) bool {
		return !ContainsRedFlag(posting, f.flags)
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding postings with red flags",
			zap.Strings("red_flags", f.flags),
			zap.Strings("excluded_postings", excluded),
			zap.Int("postings_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(excluded), Left: p.Len()}, nil
}

func (f *redFlagsFilter) Status() Status {
	details := map[string]string{}
	if len(f.flags) > 0 {
		details["red_flags"] = strings.Join(f.flags, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

// ContainsRedFlag reports whether the posting's title, company or summary
// mentions any of the flags, case-insensitively.
func ContainsRedFlag(posting *jobs.Posting, flags []string) bool {
	if len(flags) == 0 {
		return false
	}
	combined := strings.ToLower(posting.Title + " " + posting.Company + " " + posting.Summary)
	for _, flag := range flags {
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return true
		}
	}
	return false
}
