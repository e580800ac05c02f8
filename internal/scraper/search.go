package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
)

const (
	FormatHTML = "html"
	FormatJSON = "json"
)

// Board describes the external job board.
type Board struct {
	BaseURL string `mapstructure:"base-url" validate:"required,url"`
	// Format selects the listing parser: "html" pages or a "json" search API.
	Format        string        `mapstructure:"format" validate:"oneof=html json"`
	MaxPages      int           `mapstructure:"max-pages" validate:"gte=1"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0"`
	UserAgent     string        `mapstructure:"user-agent"`
	Browser       bool          `mapstructure:"browser"`
	EnrichDetails bool          `mapstructure:"enrich-details"`
}

// SearchURL returns the listing url for q and a 1-based page.
//
// HTML boards use path search: {base}/{title}-jobs/in-{location}?page=N.
// JSON boards use query parameters: {base}?what=...&where=...&page=N.
func (b Board) SearchURL(q jobs.Query, page int) (string, error) {
	if q.IsZero() {
		return "", fmt.Errorf("empty query")
	}
	base, err := url.Parse(strings.TrimRight(b.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid board url %q", b.BaseURL)
	}

	values := base.Query()
	switch b.Format {
	case FormatJSON:
		values.Set("what", q.Title)
		if q.Location != "" {
			values.Set("where", q.Location)
		}
		values.Set("page", strconv.Itoa(page))
	default:
		path := base.Path + "/" + slug(q.Title) + "-jobs"
		if q.Location != "" {
			path += "/in-" + slug(q.Location)
		}
		base.Path = path
		if page > 1 {
			values.Set("page", strconv.Itoa(page))
		}
	}
	base.RawQuery = values.Encode()

	return base.String(), nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
