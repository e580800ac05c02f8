package ranking

import (
	"strings"
	"unicode"
)

var skillAliases = map[string]string{
	"golang":              "go",
	"postgres":            "postgresql",
	"psql":                "postgresql",
	"k8s":                 "kubernetes",
	"js":                  "javascript",
	"ts":                  "typescript",
	"node":                "node.js",
	"nodejs":              "node.js",
	"react.js":            "react",
	"reactjs":             "react",
	"amazon web services": "aws",
	"gcp":                 "google cloud",
	"ml":                  "machine learning",
}

// normalizeSkill lowercases a skill name, collapses whitespace, trims trailing
// punctuation and maps common aliases onto one canonical name.
func normalizeSkill(skill string) string {
	s := strings.ToLower(strings.Join(strings.Fields(skill), " "))
	s = strings.TrimRight(s, ".,;:")
	if canonical, ok := skillAliases[s]; ok {
		return canonical
	}
	return s
}

type skillMatch struct {
	score            float64
	matched          []string
	missingMandatory []string
}

// skillOverlap scores how much of the profile's skill set a posting covers.
// Mandatory profile skills weigh mandatoryWeight, nice-to-have skills weigh 1.
// Postings without structured skills are matched against their free text.
func skillOverlap(mandatory, niceToHave []string, postingSkills []string, postingText string, mandatoryWeight float64) skillMatch {
	have := make(map[string]struct{}, len(postingSkills))
	for _, s := range postingSkills {
		if n := normalizeSkill(s); n != "" {
			have[n] = struct{}{}
		}
	}
	text := strings.ToLower(postingText)

	contains := func(skill string) bool {
		if len(have) > 0 {
			_, ok := have[skill]
			return ok
		}
		return containsTerm(text, skill)
	}

	var result skillMatch
	var total, score float64
	seen := make(map[string]struct{})

	visit := func(skills []string, weight float64, mandatory bool) {
		for _, raw := range skills {
			skill := normalizeSkill(raw)
			if skill == "" {
				continue
			}
			if _, dup := seen[skill]; dup {
				continue
			}
			seen[skill] = struct{}{}
			total += weight
			if contains(skill) {
				score += weight
				result.matched = append(result.matched, skill)
			} else if mandatory {
				result.missingMandatory = append(result.missingMandatory, skill)
			}
		}
	}

	visit(mandatory, mandatoryWeight, true)
	visit(niceToHave, 1, false)

	if total > 0 {
		result.score = score / total
	}
	return result
}

// containsTerm reports whether term occurs in text on word boundaries.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)
		if boundary(text, start-1) && boundary(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
