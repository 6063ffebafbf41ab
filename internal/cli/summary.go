package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vk/ucdpipe/internal/dag"
	"github.com/vk/ucdpipe/internal/result"
)

var (
	colorTitle = lipgloss.Color("#7C3AED")
	colorOK    = lipgloss.Color("#10B981")
	colorMuted = lipgloss.Color("#6B7280")
	colorError = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK)
	errStyle   = lipgloss.NewStyle().Foreground(colorError)
	boxStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// RenderSummary formats the counters and errors of a run for a terminal.
func RenderSummary(res *result.RunResult) string {
	s := res.Summary
	rows := []struct {
		label string
		value string
	}{
		{"run", s.RunID},
		{"versions", fmt.Sprint(s.Versions)},
		{"files", fmt.Sprint(s.TotalFiles)},
		{"matched", fmt.Sprint(s.MatchedFiles)},
		{"fallback", fmt.Sprint(s.FallbackFiles)},
		{"skipped", fmt.Sprint(s.SkippedFiles)},
		{"filtered", fmt.Sprint(s.FilteredFiles)},
		{"route tasks", fmt.Sprint(s.RouteTasks)},
		{"outputs", fmt.Sprint(s.TotalOutputs)},
		{"cache", fmt.Sprintf("%d hit(s), %d miss(es)", s.CacheHits, s.CacheMisses)},
		{"duration", s.Duration.String()},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Run summary"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r.label))
		b.WriteString(r.value)
		b.WriteString("\n")
	}

	if len(res.Errors) == 0 {
		b.WriteString(okStyle.Render("no errors"))
		return boxStyle.Render(b.String())
	}
	b.WriteString(errStyle.Render(fmt.Sprintf("%d error(s):", len(res.Errors))))
	for _, e := range res.Errors {
		b.WriteString("\n- ")
		b.WriteString(e.Error())
	}
	return boxStyle.Render(b.String())
}

// RenderGraph lists the execution order and the layers of g.
func RenderGraph(g *dag.Graph) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Order"))
	b.WriteString("\n")
	for i, id := range g.Order() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, id)
	}
	b.WriteString(titleStyle.Render("Layers"))
	for i, ids := range g.LayerIDs() {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("layer %d", i)))
		b.WriteString(strings.Join(ids, ", "))
	}
	return boxStyle.Render(b.String())
}
