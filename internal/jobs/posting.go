package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Posting is one job advertisement scraped from a job board. URL is its identity.
type Posting struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Company          string    `json:"company,omitempty"`
	Location         string    `json:"location,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	MandatorySkills  []string  `json:"mandatory_skills,omitempty"`
	NiceToHaveSkills []string  `json:"nice_to_have_skills,omitempty"`
	SoftSkills       []string  `json:"soft_skills,omitempty"`
	Industries       []string  `json:"industries,omitempty"`
	Responsibilities []string  `json:"responsibilities,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Text flattens the posting into a single "Key: value | ..." line used for embeddings.
func (p *Posting) Text() string {
	parts := make([]string, 0, 8)
	add := func(key string, values ...string) {
		joined := strings.TrimSpace(strings.Join(compact(values), ", "))
		if joined == "" {
			return
		}
		parts = append(parts, key+": "+joined)
	}

	add("Job title", p.Title)
	add("Company", p.Company)
	add("Mandatory skills", p.MandatorySkills...)
	add("Nice to have skills", p.NiceToHaveSkills...)
	add("Soft skills", p.SoftSkills...)
	add("Industries", p.Industries...)
	add("Responsibilities", p.Responsibilities...)
	add("Summary", p.Summary)

	return strings.Join(parts, " | ")
}

// Skills returns mandatory and nice-to-have skills of the posting.
func (p *Posting) Skills() []string {
	skills := make([]string, 0, len(p.MandatorySkills)+len(p.NiceToHaveSkills))
	skills = append(skills, p.MandatorySkills...)
	return append(skills, p.NiceToHaveSkills...)
}

// Postings is an ordered list of postings.
type Postings struct {
	Items []*Posting
}

func NewPostings(items []Posting) *Postings {
	p := &Postings{Items: make([]*Posting, 0, len(items))}
	for i := range items {
		item := items[i]
		p.Items = append(p.Items, &item)
	}
	return p
}

func (p *Postings) Len() int {
	return len(p.Items)
}

// Values returns the postings as a plain slice, preserving order.
func (p *Postings) Values() []Posting {
	out := make([]Posting, 0, len(p.Items))
	for _, item := range p.Items {
		out = append(out, *item)
	}
	return out
}

// URLs returns posting urls in order.
func (p *Postings) URLs() []string {
	urls := make([]string, 0, len(p.Items))
	for _, posting := range p.Items {
		urls = append(urls, posting.URL)
	}
	return urls
}

// Keep retains postings for which keep returns true and returns urls of the dropped ones.
// Order of the remaining postings is preserved.
func (p *Postings) Keep(keep func(*Posting) bool) []string {
	var dropped []string
	kept := p.Items[:0]
	for _, posting := range p.Items {
		if keep(posting) {
			kept = append(kept, posting)
			continue
		}
		dropped = append(dropped, posting.URL)
	}
	for i := len(kept); i < len(p.Items); i++ {
		p.Items[i] = nil
	}
	p.Items = kept
	return dropped
}

// DumpToTmpFile writes postings as indented JSON into a temporary file and returns its name.
func (p *Postings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "postings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ReportByCompany groups postings by company name.
func (p *Postings) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, posting := range p.Items {
		key := posting.Company
		if key == "" {
			key = "unknown"
		}
		report[key] = append(report[key], map[string]string{
			"title":    posting.Title,
			"url":      posting.URL,
			"location": posting.Location,
			"skills":   strings.Join(posting.MandatorySkills, ", "),
		})
	}
	return report
}

// DedupByURL returns postings with duplicates removed, keeping the first occurrence.
func DedupByURL(postings []Posting) []Posting {
	seen := make(map[string]struct{}, len(postings))
	out := make([]Posting, 0, len(postings))
	for _, posting := range postings {
		if _, ok := seen[posting.URL]; ok {
			continue
		}
		seen[posting.URL] = struct{}{}
		out = append(out, posting)
	}
	return out
}

// Validate reports whether the posting can be stored.
func (p *Posting) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("posting %q has no url", p.Title)
	}
	return nil
}

func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
