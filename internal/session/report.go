package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/washsense/washsense/internal/fsm"
)

const reportWidth = 50

// Report renders a human-readable assessment of a session.
func Report(history []fsm.HistoryEntry, score *fsm.Score) string {
	var b strings.Builder
	rule := strings.Repeat("=", reportWidth)
	thin := strings.Repeat("-", reportWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "  HAND WASHING ASSESSMENT REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	if len(history) == 0 {
		fmt.Fprintln(&b, "No session data recorded.")
		return b.String()
	}

	t0 := history[0].EnterTime
	last := history[len(history)-1]
	end := last.EnterTime
	if last.ExitTime != nil {
		end = *last.ExitTime
	}

	fmt.Fprintf(&b, "Total session time: %.1fs\n", end.Sub(t0).Seconds())
	fmt.Fprintf(&b, "States visited: %d\n", len(history))
	completed := "No"
	if last.State == fsm.Done {
		completed = "Yes"
	}
	fmt.Fprintf(&b, "Completed: %s\n", completed)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, thin)
	fmt.Fprintln(&b, "  STATE BREAKDOWN")
	fmt.Fprintln(&b, thin)
	for _, entry := range history {
		start := entry.EnterTime.Sub(t0).Seconds()
		stop := last.EnterTime.Sub(t0).Seconds()
		if entry.ExitTime != nil {
			stop = entry.ExitTime.Sub(t0).Seconds()
		}
		fmt.Fprintf(&b, "  %-16s %6.1fs - %6.1fs  (%.1fs)\n", entry.State, start, stop, stop-start)
	}
	fmt.Fprintln(&b)

	if score != nil {
		fmt.Fprintln(&b, thin)
		fmt.Fprintln(&b, "  SCORE")
		fmt.Fprintln(&b, thin)
		for _, state := range fsm.Order {
			detail, ok := score.Details[state]
			if !ok {
				continue
			}
			status := "MISS"
			if detail.Completed {
				status = "PASS"
			}
			fmt.Fprintf(&b, "  %-16s %3d/%3d  [%s]\n", state, detail.Points, detail.MaxPoints, status)
		}
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "  TOTAL: %d/%d\n", score.Total, score.MaxTotal)
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)

	return b.String()
}

// WriteReport renders the report and writes it next to the session log.
func WriteReport(outputDir string, history []fsm.HistoryEntry, score *fsm.Score) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(outputDir, "report.txt")
	if err := os.WriteFile(path, []byte(Report(history, score)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
