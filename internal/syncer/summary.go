package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hwops/assetsync/internal/transport"
)

// Summary aggregates a run's outcomes.
type Summary struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Updated     int     `json:"updated"`
	Skipped     int     `json:"skipped"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"success_rate"`

	// SkipReasons counts skips by reason text; ErrorTypes counts failures
	// by coarse class so a run report shows "8 permission errors" rather
	// than eight stack traces.
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
	ErrorTypes  map[string]int `json:"error_types,omitempty"`
}

// Summarize rolls outcomes up into a summary.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{
		Total:       len(outcomes),
		SkipReasons: make(map[string]int),
		ErrorTypes:  make(map[string]int),
	}

	for i := range outcomes {
		out := &outcomes[i]
		switch {
		case out.Skipped:
			s.Successful++
			s.Skipped++
			s.SkipReasons[out.SkipReason]++
		case out.Success:
			s.Successful++
			if out.Updated {
				s.Updated++
			}
		default:
			s.Errors++
			s.ErrorTypes[classifyError(out.Err)]++
		}
	}

	if s.Total > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.Total) * 100
	}
	if len(s.SkipReasons) == 0 {
		s.SkipReasons = nil
	}
	if len(s.ErrorTypes) == 0 {
		s.ErrorTypes = nil
	}
	return s
}

func classifyError(err error) string {
	if err == nil {
		return "Other"
	}

	var rle *transport.RateLimitError
	if errors.As(err, &rle) {
		return "Rate Limited"
	}

	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 403:
			return "Permission Denied"
		case apiErr.StatusCode == 404:
			return "Not Found"
		case apiErr.StatusCode >= 500:
			return "Server Error"
		}
	}

	var exhausted *transport.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return "Server Error"
	}

	return "Other"
}

// resultsFile is the artifact written after each run.
type resultsFile struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Results   []Outcome `json:"results"`
}

// WriteResults saves a run's outcomes and summary under dir and returns
// the file path. Filenames embed the run timestamp so artifacts accumulate
// rather than overwrite.
func WriteResults(dir string, outcomes []Outcome, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	artifact := resultsFile{
		Timestamp: now,
		Summary:   Summarize(outcomes),
		Results:   outcomes,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	path := filepath.Join(dir, "sync_results_"+now.Format("20060102_150405")+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}
	return path, nil
}
