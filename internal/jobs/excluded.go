package jobs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// ExcludedPostings is the on-disk list of postings a user dismissed.
type ExcludedPostings struct {
	Items []*ExcludedPosting
}

type ExcludedPosting struct {
	URL        string
	Title      string
	Company    string
	ExcludedAt time.Time
}

// ToExcluded converts postings into exclude entries stamped with now.
func (p *Postings) ToExcluded(now time.Time) *ExcludedPostings {
	excluded := &ExcludedPostings{}
	for _, posting := range p.Items {
		excluded.Items = append(excluded.Items, &ExcludedPosting{
			URL:        posting.URL,
			Title:      posting.Title,
			Company:    posting.Company,
			ExcludedAt: now.UTC(),
		})
	}
	return excluded
}

// GetExcludedPostingsFromFile reads the exclude file. A missing or empty file is an empty list.
func GetExcludedPostingsFromFile(path string) (*ExcludedPostings, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ExcludedPostings{}, nil
		}
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedPostings{}, nil
	}

	var excluded ExcludedPostings
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedPostings) Append(s *ExcludedPostings) {
	e.Items = append(e.Items, s.Items...)
}

func (e *ExcludedPostings) URLs() []string {
	urls := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		urls = append(urls, item.URL)
	}
	return urls
}

func (e *ExcludedPostings) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
