package report

import (
	"io"
	"strconv"

	"github.com/nao1215/deepresearch/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs run reports in Markdown format.
// This is the format of the sources.md file in the working directory.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeSources(md, report)
	w.writeFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("Research Sources")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Topic", truncateString(report.Topic, 80)},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Search Iterations", strconv.Itoa(report.Iteration)},
			{"Fetches Attempted", strconv.Itoa(report.Attempted)},
		},
	})
	md.PlainText("")
}

// writeSummary writes the fetch outcome summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Fetch Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Fetched", strconv.Itoa(report.Succeeded() - report.CachedCount())},
			{"Served from cache", strconv.Itoa(report.CachedCount())},
			{"Failed", strconv.Itoa(report.Failed())},
			{"**Total**", "**" + strconv.Itoa(len(report.Sources)) + "**"},
		},
	})
	md.PlainText("")

	if len(report.Sources) > 0 {
		w.writePieChart(md, report)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart for fetch outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.RunReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Fetch Outcome Distribution"),
		piechart.WithShowData(true),
	)

	if fetched := report.Succeeded() - report.CachedCount(); fetched > 0 {
		chart.LabelAndIntValue("Fetched", uint64(fetched))
	}
	if cached := report.CachedCount(); cached > 0 {
		chart.LabelAndIntValue("Cached", uint64(cached))
	}
	if failed := report.Failed(); failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(failed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on fetch outcomes.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.RunReport) {
	switch {
	case report.Succeeded() == 0 && report.Attempted > 0:
		md.Cautionf(
			"All %d fetch attempt(s) failed. The answer is based on no downloaded content.",
			report.Attempted,
		)
	case report.HasFailures():
		md.Warningf(
			"%d fetch(es) failed. The answer may be missing material from those sources.",
			report.Failed(),
		)
	default:
		md.Tip("All attempted fetches succeeded.")
	}
	md.PlainText("")
}

// writeSources writes the consulted sources table.
func (w *MarkdownWriter) writeSources(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Consulted Sources")
	md.PlainText("")

	if len(report.Sources) == 0 {
		md.PlainText("No sources were fetched during this run.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Sources))
	for i, source := range report.Sources {
		title := source.Title
		if title == "" {
			title = "-"
		}
		contentType := source.ContentType
		if contentType == "" {
			contentType = "-"
		}

		rows[i] = []string{
			truncateString(source.URL, 70),
			truncateString(title, 50),
			contentType,
			string(source.Outcome),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Title", "Type", "Outcome"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes the failed fetch list.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.RunReport) {
	if !report.HasFailures() {
		return
	}

	md.H2("Failed Fetches")
	md.PlainText("")
	md.BulletList(report.FailedURLs...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [deepresearch](https://github.com/nao1215/deepresearch)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
