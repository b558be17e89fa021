package alerting

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/datalens-dev/datalens/internal/models"
	"github.com/datalens-dev/datalens/internal/notifier"
)

// maxQueryPreview bounds how much of the query text the notification shows.
const maxQueryPreview = 100

// comparatorPhrase describes a comparator in notification prose.
func comparatorPhrase(c models.Comparator) string {
	switch c {
	case models.ComparatorGT:
		return "above"
	case models.ComparatorLT:
		return "below"
	case models.ComparatorGE:
		return "at or above"
	case models.ComparatorLE:
		return "at or below"
	case models.ComparatorEQ:
		return "equal to"
	case models.ComparatorNE:
		return "different from"
	}
	return string(c)
}

// renderMessage builds the notification for a triggered alert. The same
// rendered body is sent over every channel and stored in the alert history.
func renderMessage(alert *models.Alert, metricValue float64, now time.Time) *notifier.Message {
	metric := alert.Metric
	if metric == "" {
		metric = "metric"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Alert %q triggered at %s\n", alert.Name, now.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&body, "%s is %g, %s threshold %g (%s %g)\n",
		metric, metricValue, comparatorPhrase(alert.Comparator), alert.Threshold,
		alert.Comparator, alert.Threshold)
	fmt.Fprintf(&body, "Query: %s", truncate(alert.Query, maxQueryPreview))

	return &notifier.Message{
		AlertName: alert.Name,
		Subject:   fmt.Sprintf("DataLens Alert: %s", alert.Name),
		Body:      body.String(),
	}
}

// truncate shortens a string to at most max bytes with an ellipsis,
// backing up so the cut never splits a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
