// internal/scheduler/materialize.go
package scheduler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"report-worker/internal/models"
)

const periodLayout = "2006-01-02 15:04:05"

// Raw query templates carry a placeholder span over archive_date (older
// templates) or created_at (newer ones) that gets swapped for the computed
// period on every firing. First match only, case-insensitive.
var betweenPatterns = []struct {
	field string
	re    *regexp.Regexp
}{
	{"archive_date", regexp.MustCompile(`(?i)archive_date\s+BETWEEN\s+'[^']*'\s+AND\s+'[^']*'`)},
	{"created_at", regexp.MustCompile(`(?i)created_at\s+BETWEEN\s+'[^']*'\s+AND\s+'[^']*'`)},
}

// RewriteConditions drops any archive_date condition left in the template
// and appends fresh period bounds.
func RewriteConditions(conditions []models.Condition, start, end time.Time) []models.Condition {
	out := make([]models.Condition, 0, len(conditions)+2)
	for _, cond := range conditions {
		if cond.Type == models.ConditionBasic && cond.Field == "archive_date" {
			continue
		}
		out = append(out, cond)
	}
	out = append(out,
		models.BasicCondition("archive_date", ">", start.Format(periodLayout)),
		models.BasicCondition("archive_date", "<", end.Format(periodLayout)),
	)
	return out
}

// SubstitutePeriod replaces the first BETWEEN span found in a raw query
// template with the computed period bounds.
func SubstitutePeriod(query string, start, end time.Time) string {
	for _, pat := range betweenPatterns {
		if loc := pat.re.FindStringIndex(query); loc != nil {
			replacement := fmt.Sprintf("%s BETWEEN '%s' AND '%s'",
				pat.field, start.Format(periodLayout), end.Format(periodLayout))
			return query[:loc[0]] + replacement + query[loc[1]:]
		}
	}
	return query
}

// pathHostile matches characters that are unsafe in artifact filenames.
var pathHostile = regexp.MustCompile(`[/\\:*?"<>|\s]+`)

// TimestampedName sanitizes a report name and appends a local-time suffix so
// successive firings never collide on the filesystem.
func TimestampedName(name string, now time.Time) string {
	clean := pathHostile.ReplaceAllString(strings.TrimSpace(name), "_")
	clean = strings.Trim(clean, "_")
	if clean == "" {
		clean = "report"
	}
	return fmt.Sprintf("%s_%s", clean, now.Format("20060102_150405"))
}
