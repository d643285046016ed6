package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubjectTagsSeverity(t *testing.T) {
	alert := testAlert("critical")
	subject := renderSubject(alert)
	assert.Equal(t, "[CRITICAL] connection_usage_percent on orders", subject)

	alert.Resolved = true
	assert.Equal(t, "[RESOLVED] CRITICAL: connection_usage_percent on orders", renderSubject(alert))
}

func TestRenderTextDerivedFromHTML(t *testing.T) {
	alert := testAlert("warning")
	text := renderText(alert)

	assert.Contains(t, text, alert.Message)
	assert.Contains(t, text, "orders")
	assert.Contains(t, text, "connection_usage_percent")
	assert.NotContains(t, text, "<html>")
	assert.NotContains(t, text, "<td>")
}

func TestRenderHTMLEscapesContent(t *testing.T) {
	alert := testAlert("warning")
	alert.Message = `usage <script>alert("x")</script>`
	html := renderHTML(alert)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestSeverityColorFallback(t *testing.T) {
	assert.Equal(t, severityColors["critical"], severityColor("CRITICAL"))
	assert.Equal(t, "#808080", severityColor("unknown"))
}
