package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"swarmfuzz/internal/config"
	"swarmfuzz/internal/detect"
)

const logTailLimit = 40

// FormatBody renders the structured issue body sent to the tracker.
func FormatBody(issue *detect.Issue, frequency string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Detected by swarmfuzz %s\n", config.BuildInfo())
	fmt.Fprintf(&b, "Detector: `%s`  Area: `%s`  Severity: %s\n", issue.Detector, issue.Area, issue.Severity)
	fmt.Fprintf(&b, "Detected at: %s  Frequency: %s\n\n", issue.DetectedAt.Format(time.RFC3339), frequency)

	fmt.Fprintf(&b, "## Expected\n%s\n\n", issue.Expected)
	fmt.Fprintf(&b, "## Observed\n%s\n\n", issue.Observed)

	if len(issue.Steps) > 0 {
		b.WriteString("## Reproduction\n")
		for i, step := range issue.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}

	ev := issue.Evidence
	if len(ev.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n\n", strings.Join(ev.Participants, ", "))
	}

	if len(ev.StateTable) > 0 {
		b.WriteString("## Member state\n\n| member | state |\n|---|---|\n")
		names := make([]string, 0, len(ev.StateTable))
		for name := range ev.StateTable {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "| %s | %s |\n", name, ev.StateTable[name])
		}
		b.WriteString("\n")
	}

	if ev.HTTPDetail != nil {
		fmt.Fprintf(&b, "## HTTP failure\n```\n%s\n```\n\n", ev.HTTPDetail.Error())
	}

	if len(ev.Coverage) > 0 {
		fmt.Fprintf(&b, "## Endpoint coverage\n%s\n\n", strings.Join(ev.Coverage, ", "))
	}

	if len(ev.Logs) > 0 {
		logs := ev.Logs
		if len(logs) > logTailLimit {
			logs = logs[len(logs)-logTailLimit:]
		}
		fmt.Fprintf(&b, "## Log tail\n```\n%s\n```\n", strings.Join(logs, "\n"))
	}

	return b.String()
}
