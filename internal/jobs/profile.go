package jobs

import "strings"

// UserProfile is the structured result of analyzing a free-text description.
type UserProfile struct {
	CandidateTitles  []string `json:"candidate_titles"`
	MandatorySkills  []string `json:"mandatory_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	Industries       []string `json:"industries"`
	Location         string   `json:"location,omitempty"`
	Reasoning        string   `json:"reasoning,omitempty"`
	Raw              string   `json:"-"`
}

// Queries returns one Query per candidate title, in title order.
func (u *UserProfile) Queries() []Query {
	queries := make([]Query, 0, len(u.CandidateTitles))
	for _, title := range u.CandidateTitles {
		q := NewQuery(title, u.Location)
		if q.IsZero() {
			continue
		}
		queries = append(queries, q)
	}
	return queries
}

// Text flattens the profile for embeddings, in the same "Key: value" layout as Posting.Text.
func (u *UserProfile) Text() string {
	p := Posting{
		Title:            strings.Join(u.CandidateTitles, " / "),
		MandatorySkills:  u.MandatorySkills,
		NiceToHaveSkills: u.NiceToHaveSkills,
		Industries:       u.Industries,
	}
	return p.Text()
}

// EmbeddingText is the text the profile is compared with postings by: the
// original description, or the flattened profile when there is none.
func (u *UserProfile) EmbeddingText() string {
	if raw := strings.TrimSpace(u.Raw); raw != "" {
		return raw
	}
	return u.Text()
}

// ScoredCandidate is a posting with its final ranking score.
type ScoredCandidate struct {
	Posting       Posting `json:"posting"`
	Score         float64 `json:"score"`
	SkillScore    float64 `json:"skill_score"`
	SemanticScore float64 `json:"semantic_score"`
	Rationale     string  `json:"rationale"`
}
