// Package ranking scores candidate postings against a user profile.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/YixingZhengAu/JobSeeker/internal/ai"
	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSkillWeight     = 0.4
	DefaultSemanticWeight  = 0.6
	DefaultMandatoryWeight = 2

	defaultEmbedBatch       = 32
	defaultEmbedConcurrency = 4
	weightTolerance         = 1e-6
)

// Config holds the scoring weights.
type Config struct {
	SkillWeight      float64 `mapstructure:"skill-weight" validate:"gte=0,lte=1"`
	SemanticWeight   float64 `mapstructure:"semantic-weight" validate:"gte=0,lte=1"`
	MandatoryWeight  float64 `mapstructure:"mandatory-weight" validate:"gte=1"`
	EmbedBatch       int     `mapstructure:"embed-batch" validate:"gte=0"`
	EmbedConcurrency int     `mapstructure:"embed-concurrency" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		SkillWeight:      DefaultSkillWeight,
		SemanticWeight:   DefaultSemanticWeight,
		MandatoryWeight:  DefaultMandatoryWeight,
		EmbedBatch:       defaultEmbedBatch,
		EmbedConcurrency: defaultEmbedConcurrency,
	}
}

// Validate checks that the two score weights are non-negative and sum to 1.
func (c Config) Validate() error {
	if c.SkillWeight < 0 || c.SemanticWeight < 0 {
		return errors.New("ranking weights must not be negative")
	}
	if sum := c.SkillWeight + c.SemanticWeight; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("ranking weights must sum to 1, got %.4f", sum)
	}
	if c.MandatoryWeight < 1 {
		return errors.New("mandatory skill weight must be at least 1")
	}
	return nil
}

// Ranker orders postings by a weighted mix of skill overlap and embedding
// similarity. It never mutates the postings it is given.
type Ranker struct {
	embedder ai.Embedder
	cfg      Config
	memo     *embeddingMemo
	logger   *zap.Logger
}

func New(embedder ai.Embedder, cfg Config, log *zap.Logger) (*Ranker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = defaultEmbedBatch
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = defaultEmbedConcurrency
	}
	return &Ranker{
		embedder: embedder,
		cfg:      cfg,
		memo:     newEmbeddingMemo(0),
		logger:   logger.WithFields(log, zap.String("component", "ranking")),
	}, nil
}

// Rank scores candidates against profile and returns at most topN of them,
// best first. Equal scores keep the input order.
func (r *Ranker) Rank(ctx context.Context, profile *jobs.UserProfile, candidates []jobs.Posting, topN int) ([]jobs.ScoredCandidate, error) {
	if topN < 1 {
		return nil, jobs.InvalidInputError("rank", "top_n must be at least 1")
	}
	if len(candidates) == 0 {
		return nil, jobs.InvalidInputError("rank", "no candidates to rank")
	}
	if profile == nil {
		return nil, jobs.InvalidInputError("rank", "profile is required")
	}

	semantic, semanticOK, err := r.semanticScores(ctx, profile, candidates)
	if err != nil {
		return nil, err
	}

	scored := make([]jobs.ScoredCandidate, 0, len(candidates))
	for i := range candidates {
		posting := &candidates[i]
		match := skillOverlap(profile.MandatorySkills, profile.NiceToHaveSkills, posting.Skills(), posting.Text(), r.cfg.MandatoryWeight)

		score := r.cfg.SkillWeight*match.score + r.cfg.SemanticWeight*semantic[i]
		scored = append(scored, jobs.ScoredCandidate{
			Posting:       *posting,
			Score:         clamp01(score),
			SkillScore:    match.score,
			SemanticScore: semantic[i],
			Rationale:     rationale(match, semantic[i], semanticOK[i]),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}

	r.logger.Debug("candidates ranked", zap.Int("candidates", len(candidates)), zap.Int("returned", len(scored)))
	return scored, nil
}

// semanticScores returns the rescaled cosine similarity of every candidate to
// the profile. A candidate whose vector is unavailable scores 0 and is marked
// as such. Only context cancellation is returned as an error.
func (r *Ranker) semanticScores(ctx context.Context, profile *jobs.UserProfile, candidates []jobs.Posting) ([]float64, []bool, error) {
	scores := make([]float64, len(candidates))
	ok := make([]bool, len(candidates))

	if r.embedder == nil {
		return scores, ok, nil
	}

	profileVectors, err := r.embedder.Embed(ctx, []string{profile.EmbeddingText()})
	if err != nil || len(profileVectors) != 1 {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		r.logger.Warn("profile embedding failed; ranking on skills only", zap.Error(err))
		return scores, ok, nil
	}
	profileVector := profileVectors[0]

	vectors, err := r.postingVectors(ctx, candidates)
	if err != nil {
		return nil, nil, err
	}

	for i, v := range vectors {
		if v == nil {
			continue
		}
		scores[i] = (cosine(profileVector, v) + 1) / 2
		ok[i] = true
	}
	return scores, ok, nil
}

// postingVectors embeds the candidates that are not memoized yet, in batches
// running concurrently. A failed batch leaves its entries nil.
func (r *Ranker) postingVectors(ctx context.Context, candidates []jobs.Posting) ([][]float32, error) {
	vectors := make([][]float32, len(candidates))
	var pending []int
	for i := range candidates {
		if v, found := r.memo.get(memoKey(&candidates[i])); found {
			vectors[i] = v
			continue
		}
		pending = append(pending, i)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.EmbedConcurrency)

	for start := 0; start < len(pending); start += r.cfg.EmbedBatch {
		batch := pending[start:min(start+r.cfg.EmbedBatch, len(pending))]
		g.Go(func() error {
			texts := make([]string, 0, len(batch))
			for _, idx := range batch {
				texts = append(texts, candidates[idx].Text())
			}

			result, err := r.embedder.Embed(ctx, texts)
			if err == nil && len(result) != len(batch) {
				err = fmt.Errorf("expected %d embeddings, got %d", len(batch), len(result))
			}
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Warn("posting embedding failed", zap.Int("postings", len(batch)), zap.Error(err))
				}
				return nil
			}

			for k, idx := range batch {
				vectors[idx] = result[k]
				r.memo.put(memoKey(&candidates[idx]), result[k])
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, c))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func rationale(match skillMatch, semantic float64, semanticOK bool) string {
	var notes []string

	matched := strings.Join(match.matched, ", ")
	switch {
	case match.score >= 0.7:
		notes = append(notes, fmt.Sprintf("Strong skill match (%s)", matched))
	case match.score >= 0.4:
		notes = append(notes, fmt.Sprintf("Moderate skill match (%s)", matched))
	case match.score > 0:
		notes = append(notes, fmt.Sprintf("Weak skill match (%s)", matched))
	default:
		notes = append(notes, "No profile skills matched")
	}

	if len(match.missingMandatory) > 0 {
		notes = append(notes, "Missing mandatory: "+strings.Join(match.missingMandatory, ", "))
	}

	if semanticOK {
		notes = append(notes, fmt.Sprintf("Semantic similarity %.2f", semantic))
	} else {
		notes = append(notes, "Semantic similarity unavailable")
	}

	return strings.Join(notes, ". ")
}
