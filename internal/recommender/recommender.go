// Package recommender runs the recommendation pipeline end to end:
// analyze the description, retrieve candidates, filter and rank them.
package recommender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/filtering"
	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 120 * time.Second
	DefaultMaxTopN = 10
)

type Analyzer interface {
	Analyze(ctx context.Context, description string) (*jobs.UserProfile, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, queries []jobs.Query, maxPerTitle int) ([]jobs.Posting, error)
}

type Ranker interface {
	Rank(ctx context.Context, profile *jobs.UserProfile, candidates []jobs.Posting, topN int) ([]jobs.ScoredCandidate, error)
}

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds request-level limits.
type Config struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxTopN int           `mapstructure:"max-top-n" validate:"gte=1"`
}

// Deps wires the pipeline stages. Filters and the pingers are optional.
// Filters are configured from FilterConfig once, in New.
type Deps struct {
	Analyzer     Analyzer
	Retriever    Retriever
	Ranker       Ranker
	Filters      []filtering.Filter
	FilterConfig *filtering.Config
	Cache        Pinger
	Model        Pinger
}

// Request is one recommendation request.
type Request struct {
	Description string `json:"description" validate:"required"`
	TopN        int    `json:"top_n" validate:"gte=1"`
}

// Job is one recommended posting as returned to callers.
type Job struct {
	URL              string   `json:"url"`
	Title            string   `json:"title"`
	Company          string   `json:"company"`
	Location         string   `json:"location,omitempty"`
	SimilarityScore  float64  `json:"similarity_score"`
	MandatorySkills  []string `json:"mandatory_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	SoftSkills       []string `json:"soft_skills"`
	Industries       []string `json:"industries"`
	Responsibilities []string `json:"responsibilities"`
	Rationale        string   `json:"rationale,omitempty"`
}

// Response is the outcome of a recommendation request. Success is false only
// when the request is rejected, the analysis fails, the request times out or
// no candidate survives.
type Response struct {
	Success   bool           `json:"success"`
	Jobs      []Job          `json:"jobs"`
	Message   string         `json:"message"`
	ErrorKind jobs.ErrorKind `json:"error_kind,omitempty"`
	RequestID string         `json:"request_id"`
	Titles    []string       `json:"titles,omitempty"`
}

// Recommender is safe for concurrent use; every request gets its own profile
// and candidate set.
type Recommender struct {
	deps     Deps
	cfg      Config
	validate *validator.Validate
	logger   *zap.Logger
	newID    func() string
}

func New(deps Deps, cfg Config, log *zap.Logger) (*Recommender, error) {
	if deps.Analyzer == nil || deps.Retriever == nil || deps.Ranker == nil {
		return nil, errors.New("analyzer, retriever and ranker are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTopN <= 0 {
		cfg.MaxTopN = DefaultMaxTopN
	}
	if deps.FilterConfig == nil {
		deps.FilterConfig = &filtering.Config{}
	}
	if err := filtering.Configure(deps.FilterConfig, deps.Filters); err != nil {
		return nil, fmt.Errorf("configure filters: %w", err)
	}
	return &Recommender{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger.WithFields(log, zap.String("component", "recommender")),
		newID:    uuid.NewString,
	}, nil
}

type outcome struct {
	profile *jobs.UserProfile
	ranked  []jobs.ScoredCandidate
	err     error
}

// Recommend returns up to topN postings for description, best first. The
// returned Response is never nil; err is non-nil exactly when Success is false
// and carries the same kind as Response.ErrorKind.
func (r *Recommender) Recommend(ctx context.Context, description string, topN int) (*Response, error) {
	requestID := r.newID()
	log := logger.WithRequest(r.logger, requestID)

	req := Request{Description: strings.TrimSpace(description), TopN: topN}
	if err := r.check(req); err != nil {
		log.Info("recommendation request rejected", zap.Error(err))
		return failure(requestID, err), err
	}

	log.Info("recommendation requested",
		zap.Int("top_n", req.TopN),
		zap.Int("description_length", len(req.Description)),
	)
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		profile, ranked, err := r.run(ctx, log, req)
		done <- outcome{profile: profile, ranked: ranked, err: err}
	}()

	var result outcome
	select {
	case result = <-done:
	case <-ctx.Done():
		result = outcome{err: ctx.Err()}
	}

	if result.err != nil {
		err := classify(ctx, result.err)
		log.Warn("recommendation failed",
			zap.String("error_kind", string(jobs.KindOf(err))),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		resp := failure(requestID, err)
		if result.profile != nil {
			resp.Titles = result.profile.CandidateTitles
		}
		return resp, err
	}

	resp := &Response{
		Success:   true,
		Jobs:      toJobs(result.ranked),
		RequestID: requestID,
		Titles:    result.profile.CandidateTitles,
	}
	resp.Message = fmt.Sprintf("found %d matching jobs for %s", len(resp.Jobs), strings.Join(result.profile.CandidateTitles, ", "))

	log.Info("recommendation finished",
		zap.Int("jobs", len(resp.Jobs)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

func (r *Recommender) check(req Request) error {
	if err := r.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "Description":
				return jobs.InvalidInputError("recommend", "description must not be empty")
			case "TopN":
				return jobs.InvalidInputError("recommend", fmt.Sprintf("top_n must be between 1 and %d", r.cfg.MaxTopN))
			}
		}
		return jobs.InvalidInputError("recommend", err.Error())
	}
	if err := r.validate.Var(req.TopN, fmt.Sprintf("lte=%d", r.cfg.MaxTopN)); err != nil {
		return jobs.InvalidInputError("recommend", fmt.Sprintf("top_n must be between 1 and %d", r.cfg.MaxTopN))
	}
	return nil
}

func (r *Recommender) run(ctx context.Context, log *zap.Logger, req Request) (*jobs.UserProfile, []jobs.ScoredCandidate, error) {
	profile, err := r.deps.Analyzer.Analyze(ctx, req.Description)
	if err != nil {
		return nil, nil, err
	}

	queries := profile.Queries()
	if len(queries) == 0 {
		return profile, nil, jobs.AnalysisError("recommend", "no usable job titles in the profile", nil)
	}

	candidates, err := r.deps.Retriever.Retrieve(ctx, queries, 0)
	if err != nil {
		return profile, nil, err
	}

	if len(r.deps.Filters) > 0 && len(candidates) > 0 {
		filtered, err := filtering.Run(ctx, filtering.Deps{Logger: log}, r.deps.Filters, jobs.NewPostings(candidates))
		if err != nil {
			return profile, nil, fmt.Errorf("filter candidates: %w", err)
		}
		candidates = filtered.Values()
	}

	if len(candidates) == 0 {
		return profile, nil, jobs.ScrapeError("recommend",
			"no job postings found for "+strings.Join(profile.CandidateTitles, ", "), nil)
	}

	ranked, err := r.deps.Ranker.Rank(ctx, profile, candidates, req.TopN)
	if err != nil {
		return profile, nil, err
	}
	return profile, ranked, nil
}

// classify maps a pipeline failure onto the error taxonomy. Once the request
// deadline has passed any failure is reported as a timeout.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return jobs.TimeoutError("recommend", err)
	}
	if errors.Is(err, context.Canceled) {
		return jobs.NewError(jobs.KindInternal, "recommend", "request canceled", err)
	}
	var typed *jobs.Error
	if errors.As(err, &typed) {
		return err
	}
	return jobs.NewError(jobs.KindInternal, "recommend", "internal error", err)
}

func failure(requestID string, err error) *Response {
	return &Response{
		Success:   false,
		Jobs:      []Job{},
		Message:   jobs.MessageOf(err),
		ErrorKind: jobs.KindOf(err),
		RequestID: requestID,
	}
}

func toJobs(ranked []jobs.ScoredCandidate) []Job {
	out := make([]Job, 0, len(ranked))
	for _, c := range ranked {
		p := c.Posting
		out = append(out, Job{
			URL:              p.URL,
			Title:            p.Title,
			Company:          p.Company,
			Location:         p.Location,
			SimilarityScore:  c.Score,
			MandatorySkills:  nonNil(p.MandatorySkills),
			NiceToHaveSkills: nonNil(p.NiceToHaveSkills),
			SoftSkills:       nonNil(p.SoftSkills),
			Industries:       nonNil(p.Industries),
			Responsibilities: nonNil(p.Responsibilities),
			Rationale:        c.Rationale,
		})
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
