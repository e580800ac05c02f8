package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/YixingZhengAu/JobSeeker/internal/jobs"
	"github.com/YixingZhengAu/JobSeeker/internal/recommender"

	"github.com/manifoldco/promptui"
	"go.uber.org/zap"
)

const (
	PromptShowJobs            = "Show job details"
	PromptReportByCompanies   = "Report by companies"
	PromptJobsToFile          = "Dump jobs to file"
	PromptPrintJSON           = "Print JSON"
	PromptExit                = "Exit"
	PromptBack                = "back"
	PromptAppendToExcludeFile = "Dismiss all shown jobs (append to exclude file)"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowJobs, PromptReportByCompanies, PromptJobsToFile, PromptPrintJSON, PromptExit},
}

// browse lets the user walk through a successful response.
func browse(logger *zap.Logger, config *Config, resp *recommender.Response) error {
	postings := toPostings(resp.Jobs)
	logger.Info(resp.Message, zap.Int("jobs", postings.Len()))

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		if err := handleAction(action, logger, config, resp, postings); err != nil {
			return err
		}
	}
}

func handleAction(action string, logger *zap.Logger, config *Config, resp *recommender.Response, postings *jobs.Postings) error {
	switch action {
	case PromptShowJobs:
		return showJobs(logger, config, resp, postings)
	case PromptReportByCompanies:
		pretty, _ := json.MarshalIndent(postings.ReportByCompany(), "", "  ")
		logger.Info(string(pretty), zap.Int("jobs count", postings.Len()))
		return nil
	case PromptJobsToFile:
		filename, err := postings.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptPrintJSON:
		return printJSON(os.Stdout, resp)
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func showJobs(logger *zap.Logger, config *Config, resp *recommender.Response, postings *jobs.Postings) error {
	for {
		items := make([]string, 0, len(resp.Jobs)+2)
		for i, job := range resp.Jobs {
			items = append(items, fmt.Sprintf("%d. %.2f %s / %s / %s", i+1, job.SimilarityScore, job.Title, job.Company, job.URL))
		}

		excludeFile := config.Filters.ExcludeFile
		if excludeFile != "" && postings.Len() != 0 {
			items = append(items, PromptAppendToExcludeFile)
		}

		jobPrompt := promptui.Select{
			Label: "Choose a job and press ENTER",
			Items: append(items, PromptBack),
			Size:  10,
		}

		index, selected, err := jobPrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptBack:
			return nil
		case PromptAppendToExcludeFile:
			excluded, err := jobs.GetExcludedPostingsFromFile(excludeFile)
			if err != nil {
				return err
			}

			excluded.Append(postings.ToExcluded(time.Now()))

			if err = excluded.ToFile(excludeFile); err != nil {
				return err
			}

			logger.Info("jobs appended to exclude file",
				zap.String("path", excludeFile),
				zap.Int("count", postings.Len()),
			)
			return nil
		default:
			pretty, _ := json.MarshalIndent(resp.Jobs[index], "", "  ")
			fmt.Println(string(pretty))
		}
	}
}

func toPostings(recommended []recommender.Job) *jobs.Postings {
	items := make([]jobs.Posting, 0, len(recommended))
	for _, job := range recommended {
		items = append(items, jobs.Posting{
			URL:              job.URL,
			Title:            job.Title,
			Company:          job.Company,
			Location:         job.Location,
			MandatorySkills:  job.MandatorySkills,
			NiceToHaveSkills: job.NiceToHaveSkills,
			SoftSkills:       job.SoftSkills,
			Industries:       job.Industries,
			Responsibilities: job.Responsibilities,
		})
	}
	return jobs.NewPostings(items)
}
