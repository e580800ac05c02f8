package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/mitchellh/mapstructure"
)

const jobPathMarker = "/job/"

// Listing is one parsed search results page.
type Listing struct {
	Postings []jobs.Posting
	HasNext  bool
}

var (
	cardSelector     = `article[data-automation="normalJob"], article[data-automation="premiumJob"], [data-card-type="JobCard"]`
	titleSelectors   = []string{`a[data-automation="jobTitle"]`, `a[data-automation="job-link"]`, `a[href*="/job/"]`}
	companySelector  = `a[data-automation="jobCompany"], [data-automation="advertiser-name"]`
	locationSelector = `[data-automation="jobLocation"]`
	summarySelector  = `[data-automation="jobShortDescription"]`
	nextPageSelector = `a[data-automation="page-next"]`
)

// ParseListingHTML extracts postings from a job board results page. Cards
// without a usable job url are dropped. pageURL resolves relative links.
func ParseListingHTML(pageURL string, body []byte) (*Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	listing := &Listing{HasNext: doc.Find(nextPageSelector).Length() > 0}

	cards := doc.Find(cardSelector)
	if cards.Length() == 0 {
		// Some layouts render bare title links without card wrappers.
		doc.Find(titleSelectors[0]).Each(func(_ int, link *goquery.Selection) {
			if jobURL, ok := resolveJobURL(base, link.AttrOr("href", "")); ok {
				listing.Postings = append(listing.Postings, jobs.Posting{URL: jobURL, Title: cleanText(link.Text())})
			}
		})
		listing.Postings = jobs.DedupByURL(listing.Postings)
		return listing, nil
	}

	cards.Each(func(_ int, card *goquery.Selection) {
		var link *goquery.Selection
		for _, selector := range titleSelectors {
			if found := card.Find(selector).First(); found.Length() > 0 {
				link = found
				break
			}
		}
		if link == nil {
			return
		}

		jobURL, ok := resolveJobURL(base, link.AttrOr("href", ""))
		if !ok {
			return
		}

		posting := jobs.Posting{
			URL:      jobURL,
			Title:    cleanText(link.Text()),
			Company:  cleanText(card.Find(companySelector).First().Text()),
			Location: cleanText(card.Find(locationSelector).First().Text()),
			Summary:  cleanText(card.Find(summarySelector).First().Text()),
		}
		card.Find("ul li").Each(func(_ int, item *goquery.Selection) {
			if text := cleanText(item.Text()); text != "" {
				posting.Responsibilities = append(posting.Responsibilities, text)
			}
		})

		listing.Postings = append(listing.Postings, posting)
	})

	listing.Postings = jobs.DedupByURL(listing.Postings)
	return listing, nil
}

// resolveJobURL returns the canonical absolute url of a job link: resolved
// against base, with query and fragment removed. Links that do not point at a
// job page are rejected.
func resolveJobURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Host == "" || (abs.Scheme != "http" && abs.Scheme != "https") {
		return "", false
	}
	if !strings.Contains(abs.Path, jobPathMarker) {
		return "", false
	}
	abs.RawQuery = ""
	abs.Fragment = ""
	return abs.String(), true
}

// jsonPosting is one item of a JSON search response. Company and location
// may be plain strings or objects carrying a display name.
type jsonPosting struct {
	URL              string   `json:"url"`
	RedirectURL      string   `json:"redirect_url"`
	Title            string   `json:"title"`
	Company          any      `json:"company"`
	Location         any      `json:"location"`
	Description      string   `json:"description"`
	MandatorySkills  []string `json:"mandatory_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	SoftSkills       []string `json:"soft_skills"`
	Industries       []string `json:"industries"`
	Responsibilities []string `json:"responsibilities"`
}

type jsonListing struct {
	Items   []map[string]any `json:"items"`
	Results []map[string]any `json:"results"`
	Page    int              `json:"page"`
	Pages   int              `json:"pages"`
	Next    string           `json:"next"`
	HasNext bool             `json:"has_next"`
}

// ParseListingJSON extracts postings from a JSON search response. Items
// live under "items" or "results"; items without a url are dropped.
func ParseListingJSON(pageURL string, body []byte) (*Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var raw jsonListing
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	items := raw.Items
	if len(items) == 0 {
		items = raw.Results
	}

	listing := &Listing{
		HasNext: raw.HasNext || raw.Next != "" || (raw.Pages > 0 && raw.Page > 0 && raw.Page < raw.Pages),
	}

	for _, item := range items {
		var decoded jsonPosting
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           &decoded,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(item); err != nil {
			return nil, fmt.Errorf("decode listing item: %w", err)
		}

		link := decoded.URL
		if link == "" {
			link = decoded.RedirectURL
		}
		ref, err := url.Parse(strings.TrimSpace(link))
		if link == "" || err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Host == "" {
			continue
		}

		listing.Postings = append(listing.Postings, jobs.Posting{
			URL:              abs.String(),
			Title:            cleanText(decoded.Title),
			Company:          displayName(decoded.Company),
			Location:         displayName(decoded.Location),
			Summary:          cleanText(decoded.Description),
			MandatorySkills:  decoded.MandatorySkills,
			NiceToHaveSkills: decoded.NiceToHaveSkills,
			SoftSkills:       decoded.SoftSkills,
			Industries:       decoded.Industries,
			Responsibilities: decoded.Responsibilities,
		})
	}

	listing.Postings = jobs.DedupByURL(listing.Postings)
	return listing, nil
}

func displayName(v any) string {
	switch val := v.(type) {
	case string:
		return cleanText(val)
	case map[string]any:
		for _, key := range []string{"display_name", "name"} {
			if s, ok := val[key].(string); ok {
				return cleanText(s)
			}
		}
	}
	return ""
}

// detailSelectors locate the description block on a posting page.
var detailSelectors = []string{
	`[data-automation="jobAdDetails"]`,
	`[data-automation="jobDescription"]`,
	".job-description",
	"#job-description",
	"main",
	"article",
}

// ExtractMainText returns the readable text of a posting page.
func ExtractMainText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript").Remove()

	content := doc.Find("body")
	for _, selector := range detailSelectors {
		if found := doc.Find(selector); found.Length() > 0 {
			content = found.First()
			break
		}
	}

	return cleanText(content.Text()), nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
