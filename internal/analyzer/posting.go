package analyzer

import (
	"context"
	"errors"
	"strings"

	"github.com/YixingZhengAu/JobSeeker/internal/ai"
	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"go.uber.org/zap"
)

const maxPageTextRunes = 12000

var (
	postingSystemPrompt = mustReadPrompt("prompts/posting_system.md")
	postingTemplate     = mustReadPrompt("prompts/posting.md")
)

// PostingAnalyzer fills a posting's structured fields from its page text.
type PostingAnalyzer struct {
	extractor
}

func NewPostingAnalyzer(generator ai.Generator, maxLogLength int, log *zap.Logger) *PostingAnalyzer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &PostingAnalyzer{extractor: extractor{
		generator: generator,
		logger:    logger.WithFields(log, zap.String("component", "posting_analyzer")),
		maxLogLen: maxLogLength,
	}}
}

type postingResponse struct {
	JobTitle         *string  `json:"job_title"`
	CompanyName      *string  `json:"company_name"`
	MandatorySkills  []string `json:"mandatory_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	SoftSkills       []string `json:"soft_skills"`
	Industries       []string `json:"industries"`
	Responsibilities []string `json:"responsibilities"`
}

// Enrich returns posting with skills, industries and responsibilities taken
// from pageText. Listed title and company are kept when already known.
func (p *PostingAnalyzer) Enrich(ctx context.Context, posting jobs.Posting, pageText string) (jobs.Posting, error) {
	text := strings.TrimSpace(pageText)
	if text == "" {
		return posting, jobs.InvalidInputError("enrich", "posting page text is empty")
	}
	if runes := []rune(text); len(runes) > maxPageTextRunes {
		text = string(runes[:maxPageTextRunes])
	}

	message := buildPrompt(postingTemplate, map[string]string{
		"{{TITLE}}":     orNone(posting.Title),
		"{{COMPANY}}":   orNone(posting.Company),
		"{{PAGE_TEXT}}": text,
	})

	var resp postingResponse
	if err := p.extract(ctx, "enrich", postingSystemPrompt, message, postingSchema, &resp); err != nil {
		var backend *errBackend
		if errors.As(err, &backend) {
			return posting, jobs.AnalysisError("enrich", "language model is unavailable", backend.err)
		}
		return posting, jobs.AnalysisError("enrich", "language model returned unusable posting details", err)
	}

	if posting.Title == "" && resp.JobTitle != nil {
		posting.Title = strings.TrimSpace(*resp.JobTitle)
	}
	if posting.Company == "" && resp.CompanyName != nil {
		posting.Company = strings.TrimSpace(*resp.CompanyName)
	}
	posting.MandatorySkills = prefer(cleanList(resp.MandatorySkills), posting.MandatorySkills)
	posting.NiceToHaveSkills = prefer(cleanList(resp.NiceToHaveSkills), posting.NiceToHaveSkills)
	posting.SoftSkills = prefer(cleanList(resp.SoftSkills), posting.SoftSkills)
	posting.Industries = prefer(cleanList(resp.Industries), posting.Industries)
	posting.Responsibilities = prefer(cleanList(resp.Responsibilities), posting.Responsibilities)

	p.logger.Debug("posting enriched",
		zap.String("url", posting.URL),
		zap.Int("mandatory_skills", len(posting.MandatorySkills)),
	)
	return posting, nil
}

func prefer(extracted, existing []string) []string {
	if len(extracted) > 0 {
		return extracted
	}
	return existing
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
