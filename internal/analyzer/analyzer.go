// Package analyzer turns free text into structured profiles with a language model.
package analyzer

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/YixingZhengAu/JobSeeker/internal/ai"
	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"go.uber.org/zap"
)

// DefaultMaxTitles caps how many candidate titles a profile carries.
const DefaultMaxTitles = 5

var (
	profileSystemPrompt = mustReadPrompt("prompts/profile_system.md")
	profileTemplate     = mustReadPrompt("prompts/profile.md")
)

// Config tunes the analyzer.
type Config struct {
	MaxTitles int `mapstructure:"max-titles" validate:"gte=1,lte=10"`
}

// Analyzer extracts a UserProfile from a free-text description.
type Analyzer struct {
	extractor
	maxTitles int
}

func New(generator ai.Generator, cfg Config, maxLogLength int, log *zap.Logger) *Analyzer {
	if cfg.MaxTitles <= 0 {
		cfg.MaxTitles = DefaultMaxTitles
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Analyzer{
		extractor: extractor{
			generator: generator,
			logger:    logger.WithFields(log, zap.String("component", "analyzer")),
			maxLogLen: maxLogLength,
		},
		maxTitles: cfg.MaxTitles,
	}
}

type profileResponse struct {
	JobTitles        []string `json:"job_titles"`
	MandatorySkills  []string `json:"mandatory_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	Industries       []string `json:"industries"`
	Location         *string  `json:"location"`
	Reasoning        *string  `json:"reasoning"`
}

// Analyze returns the profile for description. It fails with an invalid input
// error for blank input and with an analysis error when the model cannot
// produce a usable profile. A returned profile has at least one title.
func (a *Analyzer) Analyze(ctx context.Context, description string) (*jobs.UserProfile, error) {
	text := strings.TrimSpace(description)
	if text == "" {
		return nil, jobs.InvalidInputError("analyze", "description must not be empty")
	}

	message := buildPrompt(profileTemplate, map[string]string{
		"{{MAX_TITLES}}":  strconv.Itoa(a.maxTitles),
		"{{DESCRIPTION}}": text,
	})

	var resp profileResponse
	if err := a.extract(ctx, "analyze", profileSystemPrompt, message, profileSchema, &resp); err != nil {
		var backend *errBackend
		if errors.As(err, &backend) {
			return nil, jobs.AnalysisError("analyze", "language model is unavailable", backend.err)
		}
		return nil, jobs.AnalysisError("analyze", "language model returned an unusable profile", err)
	}

	profile := &jobs.UserProfile{
		CandidateTitles:  capTitles(cleanList(resp.JobTitles), a.maxTitles),
		MandatorySkills:  cleanList(resp.MandatorySkills),
		NiceToHaveSkills: cleanList(resp.NiceToHaveSkills),
		Industries:       cleanList(resp.Industries),
		Raw:              text,
	}
	if resp.Location != nil {
		profile.Location = strings.TrimSpace(*resp.Location)
		if jobs.NormalizeLocation(profile.Location) == "" {
			profile.Location = ""
		}
	}
	if resp.Reasoning != nil {
		profile.Reasoning = strings.TrimSpace(*resp.Reasoning)
	}

	if len(profile.CandidateTitles) == 0 {
		return nil, jobs.AnalysisError("analyze", "language model returned no job titles", nil)
	}

	a.logger.Info("description analyzed",
		zap.Strings("titles", profile.CandidateTitles),
		zap.Int("mandatory_skills", len(profile.MandatorySkills)),
		zap.Int("nice_to_have_skills", len(profile.NiceToHaveSkills)),
		zap.String("location", profile.Location),
	)

	return profile, nil
}

// capTitles keeps at most max titles, skipping ones that normalize to an
// already kept title.
func capTitles(titles []string, max int) []string {
	seen := make(map[string]struct{}, len(titles))
	out := make([]string, 0, min(len(titles), max))
	for _, title := range titles {
		key := jobs.Normalize(title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, title)
		if len(out) == max {
			break
		}
	}
	return out
}
