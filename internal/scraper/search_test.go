package scraper

import (
	"testing"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardSearchURL(t *testing.T) {
	t.Parallel()

	html := Board{BaseURL: "https://www.seek.com.au/", Format: FormatHTML}
	jsonBoard := Board{BaseURL: "https://api.jobs.example/search?country=au", Format: FormatJSON}

	tests := []struct {
		name   string
		board  Board
		query  jobs.Query
		page   int
		expect string
	}{
		{
			name:   "title only",
			board:  html,
			query:  jobs.NewQuery("Software Engineer", ""),
			page:   1,
			expect: "https://www.seek.com.au/software-engineer-jobs",
		},
		{
			name:   "with location and page",
			board:  html,
			query:  jobs.NewQuery("C++ Developer", "Sydney or Melbourne"),
			page:   2,
			expect: "https://www.seek.com.au/c-developer-jobs/in-sydney?page=2",
		},
		{
			name:   "json api",
			board:  jsonBoard,
			query:  jobs.NewQuery("Data Engineer", "Perth"),
			page:   1,
			expect: "https://api.jobs.example/search?country=au&page=1&what=data+engineer&where=perth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.board.SearchURL(tt.query, tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestBoardSearchURLErrors(t *testing.T) {
	t.Parallel()

	_, err := Board{BaseURL: "https://www.seek.com.au"}.SearchURL(jobs.Query{}, 1)
	assert.Error(t, err)

	_, err = Board{BaseURL: "not a url"}.SearchURL(jobs.NewQuery("go", ""), 1)
	assert.Error(t, err)
}
