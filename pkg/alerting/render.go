package alerting

import (
	"fmt"
	"html"
	"strings"

	"github.com/k3a/html2text"
)

// severityColors maps severities to the attachment colors chat clients
// render. Unknown severities fall back to gray.
var severityColors = map[string]string{
	"info":     "#439fe0",
	"low":      "#439fe0",
	"medium":   "#daa038",
	"warning":  "#daa038",
	"high":     "#d00000",
	"critical": "#d00000",
}

func severityColor(severity string) string {
	if c, ok := severityColors[strings.ToLower(severity)]; ok {
		return c
	}
	return "#808080"
}

// renderSubject builds the severity-tagged subject line shared by email and
// chat deliveries.
func renderSubject(alert *Alert) string {
	if alert.Resolved {
		return fmt.Sprintf("[RESOLVED] %s: %s on %s", strings.ToUpper(alert.Severity), alert.Metric, alert.Database)
	}
	return fmt.Sprintf("[%s] %s on %s", strings.ToUpper(alert.Severity), alert.Metric, alert.Database)
}

// renderHTML builds the HTML body used by the email channel and, via
// html2text, the plain-text body used everywhere else.
func renderHTML(alert *Alert) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h3>%s</h3>", html.EscapeString(renderSubject(alert)))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(alert.Message))
	b.WriteString("<table>")
	fmt.Fprintf(&b, "<tr><td>Database</td><td>%s</td></tr>", html.EscapeString(alert.Database))
	fmt.Fprintf(&b, "<tr><td>Metric</td><td>%s</td></tr>", html.EscapeString(alert.Metric))
	fmt.Fprintf(&b, "<tr><td>Severity</td><td>%s</td></tr>", html.EscapeString(alert.Severity))
	fmt.Fprintf(&b, "<tr><td>Current value</td><td>%.2f</td></tr>", alert.CurrentValue)
	fmt.Fprintf(&b, "<tr><td>Threshold</td><td>%.2f</td></tr>", alert.ThresholdValue)
	fmt.Fprintf(&b, "<tr><td>Time</td><td>%s</td></tr>", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("</table>")
	fmt.Fprintf(&b, "<p><small>Alert ID: %s</small></p>", html.EscapeString(alert.ID))
	b.WriteString("</body></html>")
	return b.String()
}

// renderText derives the plain-text rendition from the HTML body so both
// stay in sync.
func renderText(alert *Alert) string {
	return html2text.HTML2Text(renderHTML(alert))
}
